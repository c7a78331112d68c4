package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/database"
	"github.com/temcen/basketrec/internal/handlers"
	"github.com/temcen/basketrec/internal/middleware"
	"github.com/temcen/basketrec/internal/services"
	"github.com/temcen/basketrec/internal/validation"
	"github.com/temcen/basketrec/pkg/models"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	registry  *prometheus.Registry
	services  *services.Services
	handlers  *handlers.Handlers
	validator *validation.SchemaValidator
	router    *gin.Engine
	cancel    context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: SetupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize services
	svc, err := services.New(cfg, app.logger, db, app.registry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.validator, err = validation.NewEmbeddedValidator()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load request schemas: %w", err)
	}

	app.handlers = handlers.New(app.logger, cfg, svc)
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start runs the background work: the optional first fit and the retrain
// command consumer. It returns without waiting for either.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.config.Dataset.TrainOnStart {
		go func() {
			info, err := a.services.Recommender.Retrain(ctx, models.RetrainRequest{Reason: "startup"})
			if err != nil {
				a.logger.WithError(err).Error("Initial training failed, serving will return 503 until a retrain succeeds")
				return
			}
			a.logger.WithFields(logrus.Fields{
				"version": info.Version,
				"users":   info.Users,
				"items":   info.Items,
			}).Info("Initial model installed")
		}()
	}

	if a.services.MessageBus != nil {
		go func() {
			err := a.services.MessageBus.ConsumeRetrainCommands(ctx, a.services.Recommender.HandleRetrainCommand)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Retrain command consumer stopped")
			}
		}()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SetupLogger builds the process logger from the logging settings.
func SetupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config.Security.CORS))

	// Health check endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/health/live", a.handlers.Health.Live)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	validate := middleware.NewValidationMiddleware(a.validator)

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		if a.services.RateLimit != nil {
			api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
		}

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:userId", validate.ValidateQueryParams(), a.handlers.Recommendation.Get)
			recommendations.POST("/batch", validate.ValidateBatchRequest(), a.handlers.Recommendation.GetBatch)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/retrain", validate.ValidateRetrainRequest(), a.handlers.Admin.Retrain)
			admin.GET("/model", a.handlers.Admin.Model)
			admin.GET("/config", a.handlers.Admin.GetConfig)
		}
	}

	a.router = router
}
