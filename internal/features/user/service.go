package user

import (
	"context"
	"errors"

	"lead-routing/internal/common/routingerr"

	"go.uber.org/zap"
)

type UserService interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	// UsersWithRole returns enabled holders of role.
	UsersWithRole(ctx context.Context, role string) ([]User, error)
	// FullName falls back to the id when the user is unknown.
	FullName(ctx context.Context, id string) string
	FullNames(ctx context.Context, ids []string) map[string]string
}

type UserServiceImpl struct {
	UserRepo UserRepository
	Logger   *zap.Logger
}

func NewUserService(userRepo UserRepository, logger *zap.Logger) UserService {
	return &UserServiceImpl{
		UserRepo: userRepo,
		Logger:   logger,
	}
}

func (s *UserServiceImpl) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.UserRepo.FindByID(ctx, id)
}

func (s *UserServiceImpl) UsersWithRole(ctx context.Context, role string) ([]User, error) {
	if role == "" {
		return nil, nil
	}
	return s.UserRepo.FindEnabledByRole(ctx, role)
}

func (s *UserServiceImpl) FullName(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	u, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, routingerr.ErrNotFound) {
			s.Logger.Warn("failed to look up user name", zap.String("user", id), zap.Error(err))
		}
		return id
	}
	if u.Name == "" {
		return id
	}
	return u.Name
}

func (s *UserServiceImpl) FullNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = id
	}

	users, err := s.UserRepo.FindByIDs(ctx, ids)
	if err != nil {
		s.Logger.Warn("failed to look up user names", zap.Int("users", len(ids)), zap.Error(err))
		return names
	}
	for _, u := range users {
		if u.Name != "" {
			names[u.ID] = u.Name
		}
	}
	return names
}
