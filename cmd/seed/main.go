package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"lead-routing/internal/config"
	"lead-routing/internal/database"
	"lead-routing/internal/features/lead"
	"lead-routing/internal/features/pipeline"
	"lead-routing/internal/features/shift"
	"lead-routing/internal/logger"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type ruleSeed struct {
	From string                  `json:"from"`
	To   string                  `json:"to"`
	Type pipeline.TransitionType `json:"type"`
}

type seedData struct {
	Stages []pipeline.Stage `json:"stages"`
	Shifts []shift.Shift    `json:"shifts"`
	Rules  []ruleSeed       `json:"rules"`
}

// Data path, assuming the seeder runs from the repository root
const dataPath = "cmd/seed/data/pipeline.json"

func readSeed(path string) (*seedData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data seedData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &data, nil
}

// seedPipeline creates missing stages, shifts and rules. Existing entries are matched by name and left alone.
func seedPipeline(ctx context.Context, data *seedData, pipelines pipeline.PipelineService, shifts shift.ShiftService, logger *zap.Logger) error {
	existing, err := pipelines.ListStages(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]pipeline.Stage, len(existing))
	for _, s := range existing {
		byName[s.Name] = s
	}

	for i := range data.Stages {
		stage := data.Stages[i]
		if _, ok := byName[stage.Name]; ok {
			logger.Info("stage exists, skipping", zap.String("stage", stage.Name))
			continue
		}
		if err := pipelines.CreateStage(ctx, &stage); err != nil {
			return fmt.Errorf("create stage %s: %w", stage.Name, err)
		}
		byName[stage.Name] = stage
		logger.Info("created stage", zap.String("stage", stage.Name), zap.Int("order", stage.Order))
	}

	currentShifts, err := shifts.ListShifts(ctx)
	if err != nil {
		return err
	}
	shiftNames := make(map[string]bool, len(currentShifts))
	for _, s := range currentShifts {
		shiftNames[s.Name] = true
	}
	for i := range data.Shifts {
		sh := data.Shifts[i]
		if shiftNames[sh.Name] {
			logger.Info("shift exists, skipping", zap.String("shift", sh.Name))
			continue
		}
		if err := shifts.CreateShift(ctx, &sh); err != nil {
			return fmt.Errorf("create shift %s: %w", sh.Name, err)
		}
		logger.Info("created shift", zap.String("shift", sh.Name), zap.String("start", sh.StartTime), zap.String("end", sh.EndTime))
	}

	rules, err := pipelines.ListRules(ctx)
	if err != nil {
		return err
	}
	type pair struct{ from, to string }
	haveRule := make(map[pair]bool, len(rules))
	for _, r := range rules {
		haveRule[pair{r.From.Hex(), r.To.Hex()}] = true
	}
	for _, r := range data.Rules {
		from, okFrom := byName[r.From]
		to, okTo := byName[r.To]
		if !okFrom || !okTo {
			return fmt.Errorf("rule %s -> %s names an unknown stage", r.From, r.To)
		}
		if haveRule[pair{from.ID.Hex(), to.ID.Hex()}] {
			continue
		}
		rule := &pipeline.TransitionRule{From: from.ID, To: to.ID, Type: r.Type, Enabled: true}
		if err := pipelines.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("create rule %s -> %s: %w", r.From, r.To, err)
		}
		logger.Info("created transition", zap.String("from", r.From), zap.String("to", r.To), zap.String("type", string(r.Type)))
	}
	return nil
}

// Seed runs the database seeding
func Seed(lc fx.Lifecycle, pipelines pipeline.PipelineService, shifts shift.ShiftService, logger *zap.Logger, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()

				logger.Info("seeding lead routing pipeline", zap.String("path", dataPath))
				data, err := readSeed(dataPath)
				if err != nil {
					logger.Error("failed to read seed data", zap.Error(err))
					return
				}
				if err := seedPipeline(context.Background(), data, pipelines, shifts, logger); err != nil {
					logger.Error("seeding failed", zap.Error(err))
					return
				}
				logger.Info("lead routing setup completed")
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			pipeline.NewStageRepository,
			pipeline.NewRuleRepository,
			lead.NewLeadRepository,
			func(r lead.LeadRepository) pipeline.StageOccupancy { return r },
			pipeline.NewPipelineService,
			shift.NewShiftRepository,
			shift.NewShiftService,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(Seed),
	)

	app.Run()
}
