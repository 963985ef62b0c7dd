package lead

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/features/access"
	"lead-routing/internal/features/assignment"
	"lead-routing/internal/features/notification"
	"lead-routing/internal/features/pipeline"
	"lead-routing/internal/features/shift"
	"lead-routing/internal/features/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Internal interfaces to break circular dependencies

type ShiftResolver interface {
	ResolveAt(ctx context.Context, ts time.Time) (*shift.Shift, error)
}

type Balancer interface {
	Assign(ctx context.Context, subj assignment.Subject, stage *pipeline.Stage, assignedBy string) (string, error)
	SelfAssign(ctx context.Context, subj assignment.Subject, userID string, stage *pipeline.Stage, assignedBy string) error
	AssignedUsers(ctx context.Context, refID string) ([]string, error)
	ClearAssignments(ctx context.Context, refID string) error
}

type Authorizer interface {
	IsAdmin(caller models.Caller) bool
	AuthorizeOverride(ctx context.Context, caller models.Caller, current *pipeline.Stage) error
	CanAccess(ctx context.Context, caller models.Caller, doc access.Document, op access.Operation) (bool, error)
	VisibilityFor(ctx context.Context, caller models.Caller) (*access.VisibilityPredicate, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev notification.RoutingEvent)
	AddComment(ctx context.Context, comment *notification.TimelineComment) error
}

type NameDirectory interface {
	FullNames(ctx context.Context, ids []string) map[string]string
}

type TransferEngine interface {
	MarkDone(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error)
	SendBack(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error)
	Reject(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error)
	ManagerOverride(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error)

	// RouteNewLead binds a freshly inserted lead to its first department.
	RouteNewLead(ctx context.Context, caller models.Caller, leadID string) (*TransferResult, error)
	// Reassign balances a routed lead that has no owner, or routes it if it never was.
	Reassign(ctx context.Context, caller models.Caller, leadID string) (*TransferResult, error)

	GetDepartmentHistory(ctx context.Context, caller models.Caller, leadID string) ([]HistoryEntry, error)
}

type TransferEngineImpl struct {
	Leads       LeadRepository
	Locker      Locker
	Pipeline    pipeline.RegistryProvider
	Shifts      ShiftResolver
	Assignments Balancer
	Access      Authorizer
	Notifier    Notifier
	Users       NameDirectory
	Logger      *zap.Logger
}

func NewTransferEngine(
	leads LeadRepository,
	locker Locker,
	provider pipeline.RegistryProvider,
	shifts shift.ShiftService,
	assignments assignment.AssignmentService,
	accessService access.AccessService,
	notifier notification.Dispatcher,
	users user.UserService,
	logger *zap.Logger,
) TransferEngine {
	return &TransferEngineImpl{
		Leads:       leads,
		Locker:      locker,
		Pipeline:    provider,
		Shifts:      shifts,
		Assignments: assignments,
		Access:      accessService,
		Notifier:    notifier,
		Users:       users,
		Logger:      logger,
	}
}

// plan is what a transition decided to do. A nil target completes the lead in place.
type plan struct {
	target           *pipeline.Stage
	action           Action
	status           TransferStatus
	departmentStatus DepartmentStatus
	notes            string
}

type decideFunc func(reg *pipeline.Registry, lead *Lead, current *pipeline.Stage) (*plan, error)

func (e *TransferEngineImpl) MarkDone(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error) {
	return e.transition(ctx, caller, "mark done", req, func(reg *pipeline.Registry, lead *Lead, current *pipeline.Stage) (*plan, error) {
		if err := notDone("mark done", lead); err != nil {
			return nil, err
		}
		if current.IsTerminal {
			return &plan{status: Completed}, nil
		}

		next, err := reg.NextStage(current.ID)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, routingerr.InvalidTransition("mark done", "no next stage configured after %s", current.Name)
		}
		if err := reg.CheckTransition(current.ID, next.ID, pipeline.Forward); err != nil {
			return nil, err
		}
		return &plan{target: next, action: ActionForward, status: Transferred, departmentStatus: StatusWorking}, nil
	})
}

func (e *TransferEngineImpl) SendBack(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error) {
	return e.transition(ctx, caller, "send back", req, func(reg *pipeline.Registry, lead *Lead, current *pipeline.Stage) (*plan, error) {
		if err := notDone("send back", lead); err != nil {
			return nil, err
		}
		prev, err := reg.PreviousStage(current.ID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, routingerr.InvalidTransition("send back", "no previous stage configured before %s", current.Name)
		}
		return &plan{target: prev, action: ActionBackward, status: SentBack, departmentStatus: StatusWorking, notes: req.Notes}, nil
	})
}

func (e *TransferEngineImpl) Reject(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error) {
	return e.transition(ctx, caller, "reject", req, func(reg *pipeline.Registry, lead *Lead, current *pipeline.Stage) (*plan, error) {
		if err := notDone("reject", lead); err != nil {
			return nil, err
		}
		first, err := reg.FirstStage()
		if err != nil {
			return nil, err
		}
		if first.ID == current.ID {
			return nil, routingerr.InvalidTransition("reject", "lead is already at the first stage")
		}
		if err := reg.CheckTransition(current.ID, first.ID, pipeline.Reject); err != nil {
			return nil, err
		}
		// Rejected wins over the Working default of a transfer.
		return &plan{target: first, action: ActionReject, status: Rejected, departmentStatus: StatusRejected, notes: req.Notes}, nil
	})
}

func (e *TransferEngineImpl) ManagerOverride(ctx context.Context, caller models.Caller, req TransferRequest) (*TransferResult, error) {
	return e.transition(ctx, caller, "manager override", req, func(reg *pipeline.Registry, lead *Lead, current *pipeline.Stage) (*plan, error) {
		if err := e.Access.AuthorizeOverride(ctx, caller, current); err != nil {
			return nil, err
		}
		targetID, err := primitive.ObjectIDFromHex(req.TargetStage)
		if err != nil {
			return nil, routingerr.Validation("manager override", "invalid target stage ID")
		}
		target, err := reg.Stage(targetID)
		if err != nil {
			return nil, err
		}
		if target.ID == current.ID {
			return nil, routingerr.InvalidTransition("manager override", "lead is already in %s", current.Name)
		}
		return &plan{target: target, action: ActionManagerOverride, status: OverrideTransferred, departmentStatus: StatusWorking, notes: req.Notes}, nil
	})
}

func notDone(op string, lead *Lead) error {
	if lead.DepartmentStatus == StatusDone {
		return routingerr.InvalidTransition(op, "lead lifecycle is already completed")
	}
	return nil
}

// locked loads the lead under its exclusive lock and runs fn.
func (e *TransferEngineImpl) locked(ctx context.Context, op, leadID string, fn func(lead *Lead) (*TransferResult, error)) (*TransferResult, error) {
	id, err := primitive.ObjectIDFromHex(leadID)
	if err != nil {
		return nil, routingerr.Validation(op, "invalid lead ID")
	}

	unlock, err := e.Locker.TryLock(ctx, id.Hex())
	if err != nil {
		return nil, err
	}
	defer unlock()

	lead, err := e.Leads.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return fn(lead)
}

func (e *TransferEngineImpl) transition(ctx context.Context, caller models.Caller, op string, req TransferRequest, decide decideFunc) (*TransferResult, error) {
	return e.locked(ctx, op, req.LeadID, func(lead *Lead) (*TransferResult, error) {
		if !lead.Routed() {
			return nil, routingerr.InvalidTransition(op, "lead has not been assigned to any department yet")
		}
		if req.ExpectedDepartment != "" && req.ExpectedDepartment != lead.CurrentDepartment.Hex() {
			return nil, routingerr.Conflict(op, "lead is no longer in department %s", req.ExpectedDepartment)
		}

		ok, err := e.Access.CanAccess(ctx, caller, lead.Document(), access.OpWrite)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, routingerr.Authorization(op, "not permitted to route this lead")
		}

		reg, current, err := e.currentStage(ctx, op, lead)
		if err != nil {
			return nil, err
		}

		p, err := decide(reg, lead, current)
		if err != nil {
			return nil, err
		}
		if p.target == nil {
			return e.complete(ctx, caller, lead, current)
		}
		return e.executeTransfer(ctx, caller, lead, current, p)
	})
}

func (e *TransferEngineImpl) currentStage(ctx context.Context, op string, lead *Lead) (*pipeline.Registry, *pipeline.Stage, error) {
	reg, err := e.Pipeline.Registry(ctx)
	if err != nil {
		return nil, nil, err
	}
	// a disabled stage still holds its leads until they are routed out
	current, err := reg.StoredStage(*lead.CurrentDepartment)
	if err != nil {
		return nil, nil, routingerr.Configuration(op, "current department %s is not a pipeline stage", lead.CurrentDepartment.Hex())
	}
	return reg, current, nil
}

func (e *TransferEngineImpl) executeTransfer(ctx context.Context, caller models.Caller, lead *Lead, from *pipeline.Stage, p *plan) (*TransferResult, error) {
	now := caller.Now()
	leadID := lead.ID.Hex()
	logger := e.Logger.With(zap.String("lead_id", leadID), zap.String("action", string(p.action)))

	lead.closeOpenEntry(now, e.currentAssignee(ctx, lead, logger))
	lead.enter(p.target.ID, now, p.action, "", p.notes)
	lead.DepartmentStatus = p.departmentStatus

	if err := e.Leads.Save(ctx, lead); err != nil {
		return nil, err
	}

	// Everything below runs after the durable write and never fails the transfer.
	if err := e.Assignments.ClearAssignments(ctx, leadID); err != nil {
		logger.Warn("failed to clear previous assignments", zap.Error(err))
	}

	result := &TransferResult{
		Status: p.status,
		LeadID: leadID,
		From:   from.Name,
		FromID: from.ID,
		To:     p.target.Name,
		ToID:   p.target.ID,
	}
	_ = e.balance(ctx, caller, lead, p.target, result, logger)

	e.announce(ctx, caller, lead, p.target, string(p.action), transferComment(p.action, p.target.Name, p.notes), assignees(result.AssignedUser), logger)

	logger.Info("lead transferred",
		zap.String("from", from.Name),
		zap.String("to", p.target.Name),
		zap.String("user", result.AssignedUser),
	)
	return result, nil
}

func (e *TransferEngineImpl) complete(ctx context.Context, caller models.Caller, lead *Lead, current *pipeline.Stage) (*TransferResult, error) {
	now := caller.Now()
	leadID := lead.ID.Hex()
	logger := e.Logger.With(zap.String("lead_id", leadID), zap.String("action", EventCompleted))

	assigned, err := e.Assignments.AssignedUsers(ctx, leadID)
	if err != nil {
		logger.Warn("failed to load assigned users", zap.Error(err))
	}
	fallback := ""
	if len(assigned) > 0 {
		fallback = assigned[0]
	}

	lead.DepartmentStatus = StatusDone
	lead.closeOpenEntry(now, fallback)
	if err := e.Leads.Save(ctx, lead); err != nil {
		return nil, err
	}

	if err := e.Assignments.ClearAssignments(ctx, leadID); err != nil {
		logger.Warn("failed to clear assignments of completed lead", zap.Error(err))
	}

	content := fmt.Sprintf("Lead lifecycle completed at %s", current.Name)
	e.announce(ctx, caller, lead, current, EventCompleted, content, assigned, logger)

	logger.Info("lead lifecycle completed", zap.String("stage", current.Name))
	return &TransferResult{
		Status:       Completed,
		LeadID:       leadID,
		From:         current.Name,
		FromID:       current.ID,
		To:           current.Name,
		ToID:         current.ID,
		AssignedUser: lead.Owner,
	}, nil
}

func (e *TransferEngineImpl) RouteNewLead(ctx context.Context, caller models.Caller, leadID string) (*TransferResult, error) {
	return e.locked(ctx, "route lead", leadID, func(lead *Lead) (*TransferResult, error) {
		return e.routeNew(ctx, caller, lead)
	})
}

func (e *TransferEngineImpl) routeNew(ctx context.Context, caller models.Caller, lead *Lead) (*TransferResult, error) {
	if lead.Routed() {
		return nil, routingerr.InvalidTransition("route lead", "lead is already routed")
	}

	reg, err := e.Pipeline.Registry(ctx)
	if err != nil {
		return nil, err
	}

	// A department member creating a lead keeps it in their own department.
	var stage *pipeline.Stage
	self := false
	if caller.UserID != "" && caller.UserID == lead.CreatedBy {
		if own := reg.DepartmentStages(caller.Roles); len(own) > 0 {
			stage = &own[0]
			self = true
		}
	}
	if stage == nil {
		if stage, err = reg.FirstStage(); err != nil {
			return nil, err
		}
	}

	sh, err := e.Shifts.ResolveAt(ctx, lead.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("resolve shift: %w", err)
	}
	if sh != nil {
		id := sh.ID
		lead.CurrentShift = &id
	}

	leadID := lead.ID.Hex()
	logger := e.Logger.With(zap.String("lead_id", leadID), zap.String("action", EventInitialAssignment))

	assigned := ""
	if self {
		assigned = caller.UserID
		lead.Owner = caller.UserID
	}
	lead.enter(stage.ID, caller.Now(), ActionInitial, assigned, "")
	lead.DepartmentStatus = StatusWorking

	if err := e.Leads.Save(ctx, lead); err != nil {
		return nil, err
	}

	result := &TransferResult{Status: Routed, LeadID: leadID, To: stage.Name, ToID: stage.ID}

	var content string
	if self {
		if err := e.Assignments.SelfAssign(ctx, subject(lead), caller.UserID, stage, caller.UserID); err != nil {
			logger.Warn("failed to self-assign lead", zap.String("user", caller.UserID), zap.Error(err))
		}
		result.AssignedUser = caller.UserID
		content = fmt.Sprintf("Lead created and self-assigned by %s in %s", caller.UserID, stage.Name)
	} else {
		_ = e.balance(ctx, caller, lead, stage, result, logger)
		content = fmt.Sprintf("Lead assigned to %s", stage.Name)
		if sh != nil {
			content += fmt.Sprintf(" (%s)", sh.Name)
		}
	}

	e.announce(ctx, caller, lead, stage, EventInitialAssignment, content, assignees(result.AssignedUser), logger)

	logger.Info("lead routed", zap.String("stage", stage.Name), zap.String("user", result.AssignedUser))
	return result, nil
}

func (e *TransferEngineImpl) Reassign(ctx context.Context, caller models.Caller, leadID string) (*TransferResult, error) {
	return e.locked(ctx, "reassign lead", leadID, func(lead *Lead) (*TransferResult, error) {
		if !lead.Routed() {
			return e.routeNew(ctx, caller, lead)
		}
		if err := notDone("reassign lead", lead); err != nil {
			return nil, err
		}
		if lead.Owner != "" {
			return nil, routingerr.Conflict("reassign lead", "lead is already owned by %s", lead.Owner)
		}

		_, stage, err := e.currentStage(ctx, "reassign lead", lead)
		if err != nil {
			return nil, err
		}

		result := &TransferResult{
			Status: Routed,
			LeadID: lead.ID.Hex(),
			From:   stage.Name,
			FromID: stage.ID,
			To:     stage.Name,
			ToID:   stage.ID,
		}
		logger := e.Logger.With(zap.String("lead_id", result.LeadID), zap.String("action", "Resync"))
		if err := e.balance(ctx, caller, lead, stage, result, logger); err != nil {
			return result, err
		}
		return result, nil
	})
}

// balance assigns lead within stage and records the outcome on the lead.
// The returned error has already been logged.
func (e *TransferEngineImpl) balance(ctx context.Context, caller models.Caller, lead *Lead, stage *pipeline.Stage, result *TransferResult, logger *zap.Logger) error {
	assignee, err := e.Assignments.Assign(ctx, subject(lead), stage, caller.UserID)
	if err != nil {
		if errors.Is(err, routingerr.ErrNoEligibleMembers) {
			logger.Warn("lead left unassigned", zap.String("stage", stage.Name), zap.Error(err))
		} else {
			logger.Warn("assignment failed", zap.String("stage", stage.Name), zap.Error(err))
		}
		result.AssignmentSkipped = true
		assignee = ""
	}

	lead.Owner = assignee
	if entry := lead.OpenEntry(); entry != nil {
		entry.AssignedUser = assignee
	}
	if saveErr := e.Leads.Save(ctx, lead); saveErr != nil {
		logger.Warn("failed to record assignee on lead", zap.String("user", assignee), zap.Error(saveErr))
	}

	result.AssignedUser = assignee
	return err
}

// currentAssignee names the user to stamp on the entry being closed when none was recorded.
func (e *TransferEngineImpl) currentAssignee(ctx context.Context, lead *Lead, logger *zap.Logger) string {
	if entry := lead.OpenEntry(); entry == nil || entry.AssignedUser != "" {
		return ""
	}
	users, err := e.Assignments.AssignedUsers(ctx, lead.ID.Hex())
	if err != nil {
		logger.Warn("failed to load assigned users", zap.Error(err))
		return ""
	}
	if len(users) == 0 {
		return ""
	}
	return users[0]
}

func (e *TransferEngineImpl) announce(ctx context.Context, caller models.Caller, lead *Lead, stage *pipeline.Stage, action, content string, assigned []string, logger *zap.Logger) {
	comment := &notification.TimelineComment{
		LeadID:    lead.ID.Hex(),
		Action:    action,
		Content:   content,
		CreatedBy: caller.UserID,
		CreatedAt: caller.Now(),
	}
	if err := e.Notifier.AddComment(ctx, comment); err != nil {
		logger.Warn("failed to add timeline comment", zap.Error(err))
	}

	e.Notifier.Notify(ctx, notification.RoutingEvent{
		LeadID:        lead.ID.Hex(),
		LeadName:      lead.Label(),
		StageName:     stage.Name,
		ManagerRole:   stage.ManagerRole,
		Action:        action,
		Actor:         caller.UserID,
		AssignedUsers: assigned,
	})
}

func (e *TransferEngineImpl) GetDepartmentHistory(ctx context.Context, caller models.Caller, leadID string) ([]HistoryEntry, error) {
	id, err := primitive.ObjectIDFromHex(leadID)
	if err != nil {
		return nil, routingerr.Validation("department history", "invalid lead ID")
	}
	lead, err := e.Leads.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := e.Access.CanAccess(ctx, caller, lead.Document(), access.OpRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, routingerr.Authorization("department history", "not permitted to read this lead")
	}

	stageNames := make(map[primitive.ObjectID]string)
	if reg, err := e.Pipeline.Registry(ctx); err != nil {
		e.Logger.Warn("failed to load pipeline for history names", zap.String("lead_id", leadID), zap.Error(err))
	} else {
		for _, s := range reg.StoredStages() {
			stageNames[s.ID] = s.Name
		}
	}

	names := e.Users.FullNames(ctx, lead.HistoricalAssignees())

	entries := make([]HistoryEntry, 0, len(lead.DepartmentHistory))
	for _, h := range lead.DepartmentHistory {
		name, ok := stageNames[h.Department]
		if !ok {
			name = h.Department.Hex()
		}
		entries = append(entries, HistoryEntry{
			LogEntry:         h,
			DepartmentName:   name,
			AssignedUserName: names[h.AssignedUser],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].EnteredAt.Before(entries[j].EnteredAt) })
	return entries, nil
}

func subject(lead *Lead) assignment.Subject {
	subj := assignment.Subject{ID: lead.ID.Hex()}
	if lead.CurrentShift != nil {
		subj.Shift = *lead.CurrentShift
	}
	return subj
}

func assignees(u string) []string {
	if u == "" {
		return nil
	}
	return []string{u}
}

var actionLabels = map[Action]string{
	ActionForward:         "moved forward to",
	ActionBackward:        "sent back to",
	ActionReject:          "rejected back to",
	ActionManagerOverride: "manually transferred to",
}

func transferComment(action Action, stage, notes string) string {
	label, ok := actionLabels[action]
	if !ok {
		label = "transferred to"
	}
	content := fmt.Sprintf("Lead %s %s", label, stage)
	if notes != "" {
		content += " — " + notes
	}
	return content
}
