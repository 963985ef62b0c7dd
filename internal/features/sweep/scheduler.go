package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lead-routing/internal/common/models"
	"lead-routing/internal/config"
	"lead-routing/internal/features/lead"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const runTimeout = 10 * time.Minute

type Sweeper interface {
	SweepUnassigned(ctx context.Context, caller models.Caller) (*lead.BatchResult, error)
}

// Scheduler periodically resyncs leads that were left unrouted or unowned.
type Scheduler struct {
	Sweeper  Sweeper
	Schedule string
	Logger   *zap.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
}

func NewScheduler(batch lead.BatchService, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Sweeper:  batch,
		Schedule: cfg.Routing.ResyncSchedule,
		Logger:   logger.Named("sweep"),
	}
}

// Start registers the sweep job. An empty schedule disables it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Schedule == "" {
		s.Logger.Info("lead sweep disabled")
		return nil
	}
	if s.scheduler != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.Logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddFunc(s.Schedule, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", s.Schedule, err)
	}

	c.Start()
	s.scheduler = c
	s.Logger.Info("lead sweep scheduled", zap.String("schedule", s.Schedule))
	return nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	c := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}

func (s *Scheduler) RunOnce(ctx context.Context) (*lead.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.Sweeper.SweepUnassigned(ctx, models.SystemCaller)
	if err != nil {
		s.Logger.Error("lead sweep failed", zap.Error(err))
		return nil, err
	}

	s.Logger.Info("lead sweep finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(started)),
	)
	return result, nil
}
