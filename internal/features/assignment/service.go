package assignment

import (
	"context"
	"fmt"

	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/config"
	"lead-routing/internal/features/pipeline"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Subject is the routed record as the balancer sees it.
type Subject struct {
	ID    string
	Shift primitive.ObjectID
}

type AssignmentService interface {
	// Assign picks the least-loaded eligible member of stage and moves the
	// record's grants to them. NoEligibleMembers when the stage has no active member.
	Assign(ctx context.Context, subj Subject, stage *pipeline.Stage, assignedBy string) (string, error)
	// SelfAssign gives the record to user directly, with the same grant handling as Assign.
	SelfAssign(ctx context.Context, subj Subject, user string, stage *pipeline.Stage, assignedBy string) error

	AssignedUsers(ctx context.Context, refID string) ([]string, error)
	ClearAssignments(ctx context.Context, refID string) error
	OpenAssignmentLeadIDs(ctx context.Context, user string) ([]string, error)
	HasOpenAssignment(ctx context.Context, user, refID string) (bool, error)
}

type AssignmentServiceImpl struct {
	Assignments   AssignmentRepository
	Shares        ShareRepository
	ReferenceType string
	Logger        *zap.Logger
}

func NewAssignmentService(assignments AssignmentRepository, shares ShareRepository, cfg *config.Config, logger *zap.Logger) AssignmentService {
	return &AssignmentServiceImpl{
		Assignments:   assignments,
		Shares:        shares,
		ReferenceType: cfg.Routing.LeadReferenceType,
		Logger:        logger,
	}
}

func (s *AssignmentServiceImpl) Assign(ctx context.Context, subj Subject, stage *pipeline.Stage, assignedBy string) (string, error) {
	pool := EligiblePool(stage, subj.Shift)
	if len(pool) == 0 {
		return "", routingerr.NoEligibleMembers("assign", "no active team members in %s", stage.Name)
	}

	// Read-then-select without a cross-user lock; concurrent transfers may pick the same member.
	counts, err := s.Assignments.CountOpenByUser(ctx, s.ReferenceType, pool)
	if err != nil {
		return "", fmt.Errorf("count open assignments: %w", err)
	}

	selected := LeastLoaded(pool, counts)
	if err := s.give(ctx, subj, selected, stage, assignedBy); err != nil {
		return "", err
	}

	s.Logger.Info("lead assigned",
		zap.String("lead_id", subj.ID),
		zap.String("stage", stage.Name),
		zap.String("user", selected),
		zap.Int("load", counts[selected]),
	)
	return selected, nil
}

func (s *AssignmentServiceImpl) SelfAssign(ctx context.Context, subj Subject, user string, stage *pipeline.Stage, assignedBy string) error {
	return s.give(ctx, subj, user, stage, assignedBy)
}

// give replaces the record's direct assignment with one for user. Prior share
// holders keep read access. Grant changes are best-effort; only the new
// assignment record is required.
func (s *AssignmentServiceImpl) give(ctx context.Context, subj Subject, user string, stage *pipeline.Stage, assignedBy string) error {
	logger := s.Logger.With(zap.String("lead_id", subj.ID), zap.String("stage", stage.Name))

	previous, err := s.Shares.FindByReference(ctx, s.ReferenceType, subj.ID)
	if err != nil {
		logger.Warn("failed to load previous shares", zap.Error(err))
	}

	if _, err := s.Assignments.CancelOpen(ctx, s.ReferenceType, subj.ID); err != nil {
		logger.Warn("failed to clear previous assignment", zap.Error(err))
	}

	for _, old := range previous {
		if old.User == user {
			continue
		}
		downgraded := Share{ReferenceType: s.ReferenceType, ReferenceID: subj.ID, User: old.User, Read: true}
		if err := s.Shares.Upsert(ctx, &downgraded); err != nil {
			logger.Warn("failed to downgrade share", zap.String("user", old.User), zap.Error(err))
		}
	}

	err = s.Assignments.Create(ctx, &Assignment{
		ReferenceType: s.ReferenceType,
		ReferenceID:   subj.ID,
		AllocatedTo:   user,
		Status:        StatusOpen,
		Description:   fmt.Sprintf("Auto-assigned by Lead Routing (Department: %s)", stage.Name),
		AssignedBy:    assignedBy,
	})
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	grant := Share{ReferenceType: s.ReferenceType, ReferenceID: subj.ID, User: user, Read: true, Write: true, Share: true}
	if err := s.Shares.Upsert(ctx, &grant); err != nil {
		logger.Warn("failed to grant share", zap.String("user", user), zap.Error(err))
	}
	return nil
}

func (s *AssignmentServiceImpl) AssignedUsers(ctx context.Context, refID string) ([]string, error) {
	open, err := s.Assignments.FindOpen(ctx, s.ReferenceType, refID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(open))
	users := make([]string, 0, len(open))
	for _, a := range open {
		if !seen[a.AllocatedTo] {
			seen[a.AllocatedTo] = true
			users = append(users, a.AllocatedTo)
		}
	}
	return users, nil
}

func (s *AssignmentServiceImpl) ClearAssignments(ctx context.Context, refID string) error {
	_, err := s.Assignments.CancelOpen(ctx, s.ReferenceType, refID)
	return err
}

func (s *AssignmentServiceImpl) OpenAssignmentLeadIDs(ctx context.Context, user string) ([]string, error) {
	return s.Assignments.OpenReferenceIDs(ctx, s.ReferenceType, user)
}

func (s *AssignmentServiceImpl) HasOpenAssignment(ctx context.Context, user, refID string) (bool, error) {
	return s.Assignments.HasOpen(ctx, s.ReferenceType, refID, user)
}
