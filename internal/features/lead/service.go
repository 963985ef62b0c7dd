package lead

import (
	"context"
	"strings"
	"sync"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/features/access"
	"lead-routing/internal/features/notification"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type TimelineReader interface {
	Timeline(ctx context.Context, leadID string) ([]notification.TimelineComment, error)
}

type LeadService interface {
	// CreateLead inserts the lead and runs initial routing. A routing failure is
	// reported in the result; the lead stays inserted for the sweep to pick up.
	CreateLead(ctx context.Context, caller models.Caller, lead *Lead) (*CreateResult, error)
	GetLead(ctx context.Context, caller models.Caller, id string) (*Lead, error)
	ListLeads(ctx context.Context, caller models.Caller, page, limit int64) ([]Lead, int64, error)
	UpdateLead(ctx context.Context, caller models.Caller, id string, patch LeadPatch) (*Lead, error)
	Timeline(ctx context.Context, caller models.Caller, id string) ([]notification.TimelineComment, error)

	RegisterHook(hook PreWriteHook)
}

type LeadServiceImpl struct {
	Leads    LeadRepository
	Locker   Locker
	Engine   TransferEngine
	Access   Authorizer
	Comments TimelineReader
	Logger   *zap.Logger

	mu    sync.RWMutex
	hooks []PreWriteHook
}

func NewLeadService(leads LeadRepository, locker Locker, engine TransferEngine, accessService access.AccessService, dispatcher notification.Dispatcher, logger *zap.Logger) LeadService {
	s := &LeadServiceImpl{
		Leads:    leads,
		Locker:   locker,
		Engine:   engine,
		Access:   accessService,
		Comments: dispatcher,
		Logger:   logger,
	}
	s.RegisterHook(RoutingGuard)
	return s
}

func (s *LeadServiceImpl) RegisterHook(hook PreWriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *LeadServiceImpl) CreateLead(ctx context.Context, caller models.Caller, lead *Lead) (*CreateResult, error) {
	lead.Name = strings.TrimSpace(lead.Name)
	if lead.Name == "" {
		return nil, routingerr.Validation("create lead", "lead name is required")
	}

	// Routing state is only ever set by the engine.
	lead.ID = primitive.NilObjectID
	lead.CurrentDepartment = nil
	lead.CurrentShift = nil
	lead.DepartmentStatus = ""
	lead.DepartmentHistory = nil
	lead.Owner = ""
	lead.CreatedBy = caller.UserID
	lead.CreatedAt = caller.Now()

	if err := s.Leads.Insert(ctx, lead); err != nil {
		return nil, err
	}

	result := &CreateResult{Lead: lead}
	routing, err := s.Engine.RouteNewLead(ctx, caller, lead.ID.Hex())
	if err != nil {
		s.Logger.Warn("initial routing failed", zap.String("lead_id", lead.ID.Hex()), zap.Error(err))
		result.RoutingError = err.Error()
		return result, nil
	}
	result.Routing = routing

	if fresh, err := s.Leads.FindByID(ctx, lead.ID); err == nil {
		result.Lead = fresh
	}
	return result, nil
}

func (s *LeadServiceImpl) load(ctx context.Context, op, id string) (*Lead, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, routingerr.Validation(op, "invalid lead ID")
	}
	return s.Leads.FindByID(ctx, objID)
}

func (s *LeadServiceImpl) authorize(ctx context.Context, caller models.Caller, op string, lead *Lead, kind access.Operation) error {
	ok, err := s.Access.CanAccess(ctx, caller, lead.Document(), kind)
	if err != nil {
		return err
	}
	if !ok {
		return routingerr.Authorization(op, "not permitted to %s this lead", kind)
	}
	return nil
}

func (s *LeadServiceImpl) GetLead(ctx context.Context, caller models.Caller, id string) (*Lead, error) {
	lead, err := s.load(ctx, "get lead", id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, "get lead", lead, access.OpRead); err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *LeadServiceImpl) ListLeads(ctx context.Context, caller models.Caller, page, limit int64) ([]Lead, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	pred, err := s.Access.VisibilityFor(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	return s.Leads.List(ctx, pred.Filter(), page, limit)
}

func (s *LeadServiceImpl) UpdateLead(ctx context.Context, caller models.Caller, id string, patch LeadPatch) (*Lead, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, routingerr.Validation("update lead", "invalid lead ID")
	}

	unlock, err := s.Locker.TryLock(ctx, objID.Hex())
	if err != nil {
		return nil, err
	}
	defer unlock()

	before, err := s.Leads.FindByID(ctx, objID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, "update lead", before, access.OpWrite); err != nil {
		return nil, err
	}

	after := patch.Apply(before)
	after.Name = strings.TrimSpace(after.Name)
	if after.Name == "" {
		return nil, routingerr.Validation("update lead", "lead name is required")
	}

	s.mu.RLock()
	hooks := append([]PreWriteHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx, before, after); err != nil {
			return nil, err
		}
	}

	if err := s.Leads.Save(ctx, after); err != nil {
		return nil, err
	}
	return after, nil
}

func (s *LeadServiceImpl) Timeline(ctx context.Context, caller models.Caller, id string) ([]notification.TimelineComment, error) {
	lead, err := s.GetLead(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.Comments.Timeline(ctx, lead.ID.Hex())
}
