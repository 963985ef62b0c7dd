package pipeline

import (
	"context"
	"strings"

	"lead-routing/internal/common/models"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/config"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RegistryProvider hands out a fresh snapshot of the pipeline.
type RegistryProvider interface {
	Registry(ctx context.Context) (*Registry, error)
}

type PipelineService interface {
	RegistryProvider

	CreateStage(ctx context.Context, stage *Stage) error
	GetStage(ctx context.Context, id string) (*Stage, error)
	ListStages(ctx context.Context) ([]Stage, error)
	UpdateStage(ctx context.Context, id string, stage *Stage) error
	DeleteStage(ctx context.Context, id string) error

	CreateRule(ctx context.Context, rule *TransitionRule) error
	ListRules(ctx context.Context) ([]TransitionRule, error)
	UpdateRule(ctx context.Context, id string, rule *TransitionRule) error
	DeleteRule(ctx context.Context, id string) error

	TransferTargets(ctx context.Context, stageID string) ([]TransferTarget, error)
	StagesFor(ctx context.Context, caller models.Caller) ([]Stage, error)
	ManagedStagesFor(ctx context.Context, caller models.Caller) ([]Stage, error)
}

// StageOccupancy counts the records currently sitting in a stage.
type StageOccupancy interface {
	CountInStage(ctx context.Context, stageID primitive.ObjectID) (int64, error)
}

type PipelineServiceImpl struct {
	StageRepo  StageRepository
	RuleRepo   RuleRepository
	Occupancy  StageOccupancy
	AdminRoles []string
	Logger     *zap.Logger
}

func NewPipelineService(stageRepo StageRepository, ruleRepo RuleRepository, occupancy StageOccupancy, cfg *config.Config, logger *zap.Logger) PipelineService {
	return &PipelineServiceImpl{
		StageRepo:  stageRepo,
		RuleRepo:   ruleRepo,
		Occupancy:  occupancy,
		AdminRoles: cfg.Routing.AdminRoles,
		Logger:     logger,
	}
}

func (s *PipelineServiceImpl) Registry(ctx context.Context) (*Registry, error) {
	stages, err := s.StageRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.RuleRepo.FindEnabled(ctx)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(stages, rules)
	for _, p := range reg.Problems() {
		s.Logger.Warn("pipeline configuration problem", zap.Error(p))
	}
	return reg, nil
}

func parseID(op, kind, id string) (primitive.ObjectID, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, routingerr.Validation(op, "invalid %s ID", kind)
	}
	return objID, nil
}

// Stages

func (s *PipelineServiceImpl) CreateStage(ctx context.Context, stage *Stage) error {
	stage.ID = primitive.NilObjectID
	if err := s.validateStage(ctx, stage); err != nil {
		return err
	}
	return s.StageRepo.Create(ctx, stage)
}

func (s *PipelineServiceImpl) GetStage(ctx context.Context, id string) (*Stage, error) {
	objID, err := parseID("get stage", "stage", id)
	if err != nil {
		return nil, err
	}
	return s.StageRepo.FindByID(ctx, objID)
}

func (s *PipelineServiceImpl) ListStages(ctx context.Context) ([]Stage, error) {
	return s.StageRepo.FindAll(ctx)
}

func (s *PipelineServiceImpl) UpdateStage(ctx context.Context, id string, stage *Stage) error {
	objID, err := parseID("update stage", "stage", id)
	if err != nil {
		return err
	}
	stage.ID = objID
	if err := s.validateStage(ctx, stage); err != nil {
		return err
	}
	return s.StageRepo.Update(ctx, stage)
}

func (s *PipelineServiceImpl) DeleteStage(ctx context.Context, id string) error {
	objID, err := parseID("delete stage", "stage", id)
	if err != nil {
		return err
	}

	refs, err := s.RuleRepo.CountByStage(ctx, objID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return routingerr.Conflict("delete stage", "stage is referenced by %d transition rules", refs)
	}

	leads, err := s.Occupancy.CountInStage(ctx, objID)
	if err != nil {
		return err
	}
	if leads > 0 {
		return routingerr.Conflict("delete stage", "%d leads are still in this stage", leads)
	}
	return s.StageRepo.Delete(ctx, objID)
}

func (s *PipelineServiceImpl) validateStage(ctx context.Context, stage *Stage) error {
	const op = "validate stage"

	stage.Name = strings.TrimSpace(stage.Name)
	if stage.Name == "" {
		return routingerr.Validation(op, "stage name is required")
	}
	if stage.Order < 1 {
		return routingerr.Validation(op, "stage order must be a positive integer")
	}

	seen := make(map[string]bool, len(stage.TeamMembers))
	for _, m := range stage.TeamMembers {
		if m.User == "" {
			return routingerr.Validation(op, "team member user is required")
		}
		if seen[m.User] {
			return routingerr.Validation(op, "user %s is listed twice in the team", m.User)
		}
		seen[m.User] = true
	}

	stage.InternalStatuses = cleanStatuses(stage.InternalStatuses)

	if !stage.Enabled {
		return nil
	}
	enabled, err := s.StageRepo.FindEnabled(ctx)
	if err != nil {
		return err
	}
	for _, other := range enabled {
		if other.ID != stage.ID && other.Order == stage.Order {
			return routingerr.Configuration(op, "stage %q already uses order %d", other.Name, stage.Order)
		}
	}
	return nil
}

func cleanStatuses(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, st := range in {
		st = strings.TrimSpace(st)
		if st == "" || seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	return out
}

// Rules

func (s *PipelineServiceImpl) CreateRule(ctx context.Context, rule *TransitionRule) error {
	rule.ID = primitive.NilObjectID
	if err := s.validateRule(ctx, rule); err != nil {
		return err
	}
	return s.RuleRepo.Create(ctx, rule)
}

func (s *PipelineServiceImpl) ListRules(ctx context.Context) ([]TransitionRule, error) {
	return s.RuleRepo.FindAll(ctx)
}

func (s *PipelineServiceImpl) UpdateRule(ctx context.Context, id string, rule *TransitionRule) error {
	objID, err := parseID("update rule", "rule", id)
	if err != nil {
		return err
	}
	rule.ID = objID
	if err := s.validateRule(ctx, rule); err != nil {
		return err
	}
	return s.RuleRepo.Update(ctx, rule)
}

func (s *PipelineServiceImpl) DeleteRule(ctx context.Context, id string) error {
	objID, err := parseID("delete rule", "rule", id)
	if err != nil {
		return err
	}
	return s.RuleRepo.Delete(ctx, objID)
}

func (s *PipelineServiceImpl) validateRule(ctx context.Context, rule *TransitionRule) error {
	const op = "validate rule"

	if rule.From.IsZero() || rule.To.IsZero() {
		return routingerr.Validation(op, "from_stage and to_stage are required")
	}
	if rule.From == rule.To {
		return routingerr.Validation(op, "from stage and to stage cannot be the same")
	}
	if !rule.Type.Storable() {
		return routingerr.Validation(op, "transition type must be Forward, Backward or Reject")
	}

	from, err := s.StageRepo.FindByID(ctx, rule.From)
	if err != nil {
		return err
	}
	to, err := s.StageRepo.FindByID(ctx, rule.To)
	if err != nil {
		return err
	}

	existing, err := s.RuleRepo.FindByPair(ctx, rule.From, rule.To)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != rule.ID {
			return routingerr.Configuration(op, "a transition rule from %s to %s already exists", from.Name, to.Name)
		}
	}
	return nil
}

// Queries

func (s *PipelineServiceImpl) TransferTargets(ctx context.Context, stageID string) ([]TransferTarget, error) {
	objID, err := parseID("transfer targets", "stage", stageID)
	if err != nil {
		return nil, err
	}
	reg, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	return reg.TransferTargets(objID)
}

func (s *PipelineServiceImpl) StagesFor(ctx context.Context, caller models.Caller) ([]Stage, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	if caller.HasAnyRole(s.AdminRoles) {
		return reg.Stages(), nil
	}
	return reg.StagesForRoles(caller.Roles), nil
}

func (s *PipelineServiceImpl) ManagedStagesFor(ctx context.Context, caller models.Caller) ([]Stage, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	if caller.HasAnyRole(s.AdminRoles) {
		return reg.Stages(), nil
	}
	return reg.ManagedStages(caller.Roles), nil
}
