package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "lead-routing/internal/common/api"
	"lead-routing/internal/common/routingerr"
	"lead-routing/internal/config"
	"lead-routing/internal/database"
	"lead-routing/internal/features/access"
	"lead-routing/internal/features/assignment"
	"lead-routing/internal/features/lead"
	"lead-routing/internal/features/notification"
	"lead-routing/internal/features/pipeline"
	"lead-routing/internal/features/shift"
	"lead-routing/internal/features/sweep"
	"lead-routing/internal/features/system"
	"lead-routing/internal/features/user"
	"lead-routing/internal/logger"
	"lead-routing/internal/middleware"
	"lead-routing/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return routingerr.Respond(c, err)
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	logger.Info("registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		logger.Debug("setting up route", zap.String("route", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	leadRepo lead.LeadRepository,
	locker *lead.MongoLocker,
	ruleRepo pipeline.RuleRepository,
	assignmentRepo assignment.AssignmentRepository,
	shareRepo assignment.ShareRepository,
	logger *zap.Logger,
) {
	repos := map[string]any{
		"leads":       leadRepo,
		"lead_locks":  locker,
		"rules":       ruleRepo,
		"assignments": assignmentRepo,
		"shares":      shareRepo,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// Use a background context with timeout for index creation
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				for name, repo := range repos {
					indexed, ok := repo.(database.IndexedRepository)
					if !ok {
						continue
					}
					if err := indexed.EnsureIndexes(ctx); err != nil {
						logger.Error("failed to ensure indexes", zap.String("collection", name), zap.Error(err))
					}
				}
			}()
			return nil
		},
	})
}

// StartSweep runs the unassigned-lead sweep alongside the server.
func StartSweep(lc fx.Lifecycle, scheduler *sweep.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop()
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Repository
			shift.NewShiftRepository,
			pipeline.NewStageRepository,
			pipeline.NewRuleRepository,
			assignment.NewAssignmentRepository,
			assignment.NewShareRepository,
			user.NewUserRepository,
			notification.NewNotificationRepository,
			notification.NewCommentRepository,
			lead.NewLeadRepository,
			lead.NewMongoLocker,

			shift.NewShiftService,
			pipeline.NewPipelineService,
			assignment.NewAssignmentService,
			user.NewUserService,
			notification.NewNotificationService,
			notification.NewHub,
			notification.NewDispatcher,
			access.NewDefaultRegistry,
			access.NewAccessService,
			lead.NewTransferEngine,
			lead.NewLeadService,
			lead.NewHistoryService,
			lead.NewBatchService,
			sweep.NewScheduler,

			// Interface Adapters to break circular dependencies and satisfy Fx
			func(s pipeline.PipelineService) pipeline.RegistryProvider { return s },
			func(s assignment.AssignmentService) access.AssignmentLookup { return s },
			func(s user.UserService) notification.RoleDirectory { return s },
			func(l *lead.MongoLocker) lead.Locker { return l },
			func(r lead.LeadRepository) pipeline.StageOccupancy { return r },

			// Initialize Controller
			shift.NewShiftController,
			pipeline.NewPipelineController,
			user.NewUserController,
			notification.NewNotificationController,
			lead.NewLeadController,
			system.NewSystemController,

			// Initialize API Routes
			AsRoute(shift.NewShiftApi),
			AsRoute(pipeline.NewPipelineApi),
			AsRoute(user.NewUserApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(lead.NewLeadApi),
			AsRoute(system.NewSystemApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartSweep,
			InitializeIndexes,
		),
	)

	app.Run()
}
