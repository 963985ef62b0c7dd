package access

import (
	"context"
	"fmt"
	"sort"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/config"
	"lead-routing/internal/features/pipeline"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AssignmentLookup answers open-assignment questions for department members.
type AssignmentLookup interface {
	OpenAssignmentLeadIDs(ctx context.Context, user string) ([]string, error)
	HasOpenAssignment(ctx context.Context, user, refID string) (bool, error)
}

type AccessService interface {
	IsAdmin(caller models.Caller) bool
	HasAppAccess(ctx context.Context, caller models.Caller) (bool, error)
	// AuthorizeOverride requires an admin or the manager role of the lead's current stage.
	AuthorizeOverride(ctx context.Context, caller models.Caller, current *pipeline.Stage) error
	VisibilityFor(ctx context.Context, caller models.Caller) (*VisibilityPredicate, error)
	CanAccess(ctx context.Context, caller models.Caller, doc Document, op Operation) (bool, error)
}

type AccessServiceImpl struct {
	Evaluators  *Registry
	Assignments AssignmentLookup
	AdminRoles  []string
	Logger      *zap.Logger
}

func NewAccessService(evaluators *Registry, assignments AssignmentLookup, cfg *config.Config, logger *zap.Logger) AccessService {
	return &AccessServiceImpl{
		Evaluators:  evaluators,
		Assignments: assignments,
		AdminRoles:  cfg.Routing.AdminRoles,
		Logger:      logger,
	}
}

func (s *AccessServiceImpl) IsAdmin(caller models.Caller) bool {
	return caller.HasAnyRole(s.AdminRoles)
}

func (s *AccessServiceImpl) HasAppAccess(ctx context.Context, caller models.Caller) (bool, error) {
	if s.IsAdmin(caller) {
		return true, nil
	}
	grants, err := s.Evaluators.Grants(ctx, caller)
	if err != nil {
		return false, err
	}
	return len(grants) > 0, nil
}

func (s *AccessServiceImpl) AuthorizeOverride(ctx context.Context, caller models.Caller, current *pipeline.Stage) error {
	if s.IsAdmin(caller) {
		return nil
	}
	if current != nil && caller.HasRole(current.ManagerRole) {
		return nil
	}
	name := "no department"
	if current != nil {
		name = current.Name
	}
	return routingerr.Authorization("manager override", "only the manager of %s may override", name)
}

type stageGrants struct {
	manager, member bool
}

func departmentGrants(grants []Grant) map[primitive.ObjectID]*stageGrants {
	out := make(map[primitive.ObjectID]*stageGrants)
	for _, g := range grants {
		if g.StageID.IsZero() {
			continue
		}
		sg, ok := out[g.StageID]
		if !ok {
			sg = &stageGrants{}
			out[g.StageID] = sg
		}
		switch g.Capability {
		case DepartmentManagerRole:
			sg.manager = true
		case DepartmentRole:
			sg.member = true
		}
	}
	return out
}

func (s *AccessServiceImpl) VisibilityFor(ctx context.Context, caller models.Caller) (*VisibilityPredicate, error) {
	if s.IsAdmin(caller) {
		return &VisibilityPredicate{Unrestricted: true}, nil
	}

	grants, err := s.Evaluators.Grants(ctx, caller)
	if err != nil {
		return nil, err
	}
	byStage := departmentGrants(grants)
	if len(byStage) == 0 {
		return &VisibilityPredicate{UseDefault: true, UserID: caller.UserID}, nil
	}

	pred := &VisibilityPredicate{UserID: caller.UserID}
	needAssigned := false
	for stageID, sg := range byStage {
		if sg.manager {
			pred.DepartmentIDs = append(pred.DepartmentIDs, stageID)
		} else if sg.member {
			needAssigned = true
		}
	}

	if needAssigned {
		ids, err := s.Assignments.OpenAssignmentLeadIDs(ctx, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("load open assignments: %w", err)
		}
		for _, id := range ids {
			oid, err := primitive.ObjectIDFromHex(id)
			if err != nil {
				s.Logger.Debug("skipping assignment with foreign reference id", zap.String("reference_id", id))
				continue
			}
			pred.AssignedLeadIDs = append(pred.AssignedLeadIDs, oid)
		}
	}

	sortObjectIDs(pred.DepartmentIDs)
	return pred, nil
}

func (s *AccessServiceImpl) CanAccess(ctx context.Context, caller models.Caller, doc Document, op Operation) (bool, error) {
	if s.IsAdmin(caller) {
		return true, nil
	}
	if doc.CurrentDepartment == nil {
		return true, nil
	}
	if op == OpRead && contains(doc.HistoricalAssignees, caller.UserID) {
		return true, nil
	}

	grants, err := s.Evaluators.Grants(ctx, caller)
	if err != nil {
		return false, err
	}
	byStage := departmentGrants(grants)
	if len(byStage) == 0 {
		return caller.UserID != "" && (doc.Owner == caller.UserID || doc.CreatedBy == caller.UserID), nil
	}

	if sg, ok := byStage[*doc.CurrentDepartment]; ok && sg.manager {
		return true, nil
	}

	member := false
	for _, sg := range byStage {
		if sg.member && !sg.manager {
			member = true
			break
		}
	}
	if !member {
		return false, nil
	}
	return s.Assignments.HasOpenAssignment(ctx, caller.UserID, doc.ID.Hex())
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortObjectIDs(ids []primitive.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
}
