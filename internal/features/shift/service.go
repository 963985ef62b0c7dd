package shift

import (
	"context"
	"strings"
	"time"

	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/config"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ShiftService interface {
	CreateShift(ctx context.Context, shift *Shift) error
	GetShift(ctx context.Context, id string) (*Shift, error)
	ListShifts(ctx context.Context) ([]Shift, error)
	UpdateShift(ctx context.Context, id string, shift *Shift) error
	DeleteShift(ctx context.Context, id string) error

	// ResolveAt picks the shift for ts among the enabled shifts. nil when none are configured.
	ResolveAt(ctx context.Context, ts time.Time) (*Shift, error)
}

type ShiftServiceImpl struct {
	Repo     ShiftRepository
	Location *time.Location
	Logger   *zap.Logger
}

func NewShiftService(repo ShiftRepository, cfg *config.Config, logger *zap.Logger) ShiftService {
	return &ShiftServiceImpl{
		Repo:     repo,
		Location: cfg.Routing.Location(),
		Logger:   logger,
	}
}

func (s *ShiftServiceImpl) CreateShift(ctx context.Context, shift *Shift) error {
	if err := validateShift(shift); err != nil {
		return err
	}
	shift.ID = primitive.NilObjectID
	return s.Repo.Create(ctx, shift)
}

func (s *ShiftServiceImpl) GetShift(ctx context.Context, id string) (*Shift, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, routingerr.Validation("get shift", "invalid shift ID")
	}
	return s.Repo.FindByID(ctx, objID)
}

func (s *ShiftServiceImpl) ListShifts(ctx context.Context) ([]Shift, error) {
	return s.Repo.FindAll(ctx)
}

func (s *ShiftServiceImpl) UpdateShift(ctx context.Context, id string, shift *Shift) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return routingerr.Validation("update shift", "invalid shift ID")
	}
	if err := validateShift(shift); err != nil {
		return err
	}
	shift.ID = objID
	return s.Repo.Update(ctx, shift)
}

func (s *ShiftServiceImpl) DeleteShift(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return routingerr.Validation("delete shift", "invalid shift ID")
	}
	return s.Repo.Delete(ctx, objID)
}

func (s *ShiftServiceImpl) ResolveAt(ctx context.Context, ts time.Time) (*Shift, error) {
	shifts, err := s.Repo.FindEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}

	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	resolved := Resolve(ts.In(loc), shifts)
	if resolved == nil {
		s.Logger.Warn("no enabled shift has a valid window", zap.Int("shifts", len(shifts)))
	}
	return resolved, nil
}

func validateShift(shift *Shift) error {
	shift.Name = strings.TrimSpace(shift.Name)
	if shift.Name == "" {
		return routingerr.Validation("validate shift", "shift name is required")
	}
	if shift.StartTime == "" || shift.EndTime == "" {
		return routingerr.Validation("validate shift", "both start time and end time are required")
	}

	start, end, err := shift.Window()
	if err != nil {
		return routingerr.Validation("validate shift", "%v", err)
	}
	if start == end && shift.Enabled {
		return routingerr.Validation("validate shift", "an enabled shift cannot start and end at %s", start)
	}

	// normalise so stored strings sort in clock order
	shift.StartTime = start.String()
	shift.EndTime = end.String()
	return nil
}
