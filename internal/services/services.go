package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/database"
	"github.com/temcen/basketrec/internal/dataset"
	"github.com/temcen/basketrec/internal/messaging"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/internal/prefilter"
)

type Services struct {
	Auth        *AuthService
	Health      *HealthService
	RateLimit   *RateLimitService
	MessageBus  *messaging.MessageBus
	Metrics     *Metrics
	Registry    *ml.Registry
	Recommender *Recommender
}

// New wires the serving stack. Optional backends missing from db leave the
// matching feature off.
func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, reg prometheus.Registerer) (*Services, error) {
	s := &Services{
		Auth:    NewAuthService(cfg.Auth, logger),
		Health:  NewHealthService(reg, logger),
		Metrics: NewMetrics(reg, logger),
	}

	s.Registry = NewRegistry(cfg, logger)

	source, err := NewDataSource(cfg, db, logger)
	if err != nil {
		return nil, err
	}

	var cache RecommendationCache
	if cfg.Caching.Enabled && db.Redis != nil {
		cache = NewRedisCache(db.Redis, cfg.Caching.RecommendationsTTL, logger)
	}
	if cfg.Auth.RateLimit.Enabled && db.Redis != nil {
		s.RateLimit = NewRateLimitService(db.Redis, cfg.Auth.RateLimit, logger)
	}

	var events EventPublisher
	if cfg.Kafka.Enabled {
		bus, err := messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize message bus: %w", err)
		}
		s.MessageBus = bus
		events = bus
	}

	s.Recommender, err = NewRecommender(s.Registry, source, cache, events, s.Metrics, cfg.Ranking, logger)
	if err != nil {
		return nil, err
	}

	s.Health.AddCheck("model", true, func(context.Context) error {
		_, err := s.Registry.Current()
		return err
	})
	if db.PG != nil {
		s.Health.AddCheck("postgresql", false, db.PingPostgreSQL)
	}
	if db.Redis != nil {
		s.Health.AddCheck("redis", false, db.PingRedis)
	}

	return s, nil
}

// NewRegistry builds an empty model registry from the model and prefilter
// settings.
func NewRegistry(cfg *config.Config, logger *logrus.Logger) *ml.Registry {
	engine := ml.NewEngine(ml.EngineConfigFromConfig(cfg.Models), logger)
	pf := prefilter.New(prefilter.OptionsFromConfig(cfg.Prefilter), logger)
	weighting := ml.WeightingConfig{
		Enabled: cfg.Models.Weighting,
		K1:      cfg.Models.BM25K1,
		B:       cfg.Models.BM25B,
	}
	return ml.NewRegistry(engine, pf, weighting, cfg.Models.Factors, logger)
}

// NewDataSource picks the retrain input named by cfg.Dataset.Source.
func NewDataSource(cfg *config.Config, db *database.Database, logger *logrus.Logger) (DataSource, error) {
	switch cfg.Dataset.Source {
	case "postgres":
		if db == nil || db.PG == nil {
			return nil, fmt.Errorf("dataset source postgres needs a database connection")
		}
		return dataset.NewRepository(db.PG, 0, logger), nil
	case "csv":
		return dataset.NewCSVSource(cfg.Dataset.TransactionsPath, cfg.Dataset.ProductsPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.Dataset.Source)
	}
}
