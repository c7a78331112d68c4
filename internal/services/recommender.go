package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/messaging"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/pkg/models"
)

// DataSource supplies the transaction log and item metadata for a retrain.
type DataSource interface {
	Load(ctx context.Context) ([]models.Transaction, models.Catalog, error)
}

// EventPublisher announces retrains and served lists.
type EventPublisher interface {
	PublishModelRetrained(ctx context.Context, event messaging.ModelRetrainedEvent) error
	PublishRecommendations(ctx context.Context, event messaging.RecommendationsGeneratedEvent) error
}

// Recommender serves final lists from the installed snapshot and runs
// retrains. Cache and events are optional.
type Recommender struct {
	registry  *ml.Registry
	generator *CandidateGenerator
	reranker  *Reranker
	source    DataSource
	cache     RecommendationCache
	events    EventPublisher
	metrics   *Metrics
	config    config.RankingConfig
	mode      PrivateLabelMode
	logger    *logrus.Logger
}

func NewRecommender(
	registry *ml.Registry,
	source DataSource,
	cache RecommendationCache,
	events EventPublisher,
	metrics *Metrics,
	cfg config.RankingConfig,
	logger *logrus.Logger,
) (*Recommender, error) {
	mode, err := ParsePrivateLabelMode(cfg.PrivateLabelMode)
	if err != nil {
		return nil, err
	}
	if cfg.Count <= 0 {
		cfg.Count = 5
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}

	return &Recommender{
		registry:  registry,
		generator: NewCandidateGenerator(cfg),
		reranker:  NewReranker(cfg),
		source:    source,
		cache:     cache,
		events:    events,
		metrics:   metrics,
		config:    cfg,
		mode:      mode,
		logger:    logger,
	}, nil
}

// Recommend returns the final list for userID. Users unknown to the snapshot
// get the cold-start list; count <= 0 selects the configured default.
func (r *Recommender) Recommend(ctx context.Context, userID int64, count int) (*models.RecommendationResponse, error) {
	start := time.Now()

	snap, err := r.registry.Current()
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = r.config.Count
	}

	if r.cache != nil {
		list, hit := r.cache.Get(ctx, snap.Version, userID, count)
		if r.metrics != nil {
			r.metrics.ObserveCache(hit)
		}
		if hit {
			return r.response(snap, userID, list, true), nil
		}
	}

	result, cold, err := r.rank(snap, userID, count)
	if err != nil {
		return nil, fmt.Errorf("failed to rank recommendations: %w", err)
	}

	list := &CachedList{Result: result, ColdStart: cold, GeneratedAt: time.Now().UTC()}
	if r.cache != nil {
		r.cache.Set(ctx, snap.Version, userID, count, list)
	}
	if r.metrics != nil {
		r.metrics.ObserveRecommendation(cold, time.Since(start), result)
	}

	resp := r.response(snap, userID, list, false)
	r.publish(ctx, resp)

	r.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"count":      len(result.Items),
		"short":      result.Short,
		"cold_start": cold,
		"latency":    time.Since(start),
	}).Debug("Recommendations generated")

	return resp, nil
}

// Rank runs candidate generation and re-ranking against snap without cache
// or events.
func (r *Recommender) Rank(snap *ml.Snapshot, userID int64, count int) (RerankResult, bool, error) {
	return r.rank(snap, userID, count)
}

func (r *Recommender) rank(snap *ml.Snapshot, userID int64, count int) (RerankResult, bool, error) {
	candidates, err := r.candidates(snap, userID, count)
	if errors.Is(err, models.ErrNotFound) {
		return r.reranker.Rerank(snap.Catalog, RerankInput{
			GlobalTop: snap.Purchases.OverallTop(0),
			N:         count,
		}), true, nil
	}
	if err != nil {
		return RerankResult{}, false, err
	}

	return r.reranker.Rerank(snap.Catalog, RerankInput{
		Candidates:  candidates,
		PersonalTop: snap.Purchases.UserTop(userID, 0),
		CostlyPool:  snap.Purchases.CostlyTop(r.reranker.CostlyPrice(), 0),
		GlobalTop:   snap.Purchases.OverallTop(0),
		N:           count,
	}), false, nil
}

func (r *Recommender) candidates(snap *ml.Snapshot, userID int64, count int) ([]int64, error) {
	byItems, err := r.generator.SimilarItems(snap, userID, count, r.mode)
	if err != nil {
		return nil, err
	}
	byUsers, err := r.generator.SimilarUsers(snap, userID, count)
	if err != nil {
		return nil, err
	}
	return append(byItems, byUsers...), nil
}

func (r *Recommender) response(snap *ml.Snapshot, userID int64, list *CachedList, cacheHit bool) *models.RecommendationResponse {
	recs := make([]models.Recommendation, 0, len(list.Result.Items))
	for i, it := range list.Result.Items {
		rec := models.Recommendation{
			ItemID:   it.ItemID,
			Position: i + 1,
			Source:   it.Source,
			Price:    snap.Catalog.Price(it.ItemID),
		}
		if item, ok := snap.Catalog.Item(it.ItemID); ok {
			rec.SubCategory = item.SubCategory
		}
		recs = append(recs, rec)
	}

	return &models.RecommendationResponse{
		UserID:          userID,
		Recommendations: recs,
		Short:           list.Result.Short,
		ColdStart:       list.ColdStart,
		ModelVersion:    snap.Version,
		GeneratedAt:     list.GeneratedAt,
		CacheHit:        cacheHit,
	}
}

func (r *Recommender) publish(ctx context.Context, resp *models.RecommendationResponse) {
	if r.events == nil {
		return
	}

	event := messaging.RecommendationsGeneratedEvent{
		UserID:       resp.UserID,
		Short:        resp.Short,
		ColdStart:    resp.ColdStart,
		ModelVersion: resp.ModelVersion,
	}
	for _, rec := range resp.Recommendations {
		event.ItemIDs = append(event.ItemIDs, rec.ItemID)
		event.Sources = append(event.Sources, rec.Source)
	}

	if err := r.events.PublishRecommendations(ctx, event); err != nil {
		r.logger.WithError(err).WithField("user_id", resp.UserID).Warn("Failed to publish recommendation event")
	}
}

// RecommendBatch serves several users concurrently. Responses keep request
// order; the first hard error cancels the rest.
func (r *Recommender) RecommendBatch(ctx context.Context, reqs []models.RecommendationRequest) ([]models.RecommendationResponse, error) {
	responses := make([]models.RecommendationResponse, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.BatchConcurrency)

	for i, req := range reqs {
		g.Go(func() error {
			resp, err := r.Recommend(gctx, req.UserID, req.Count)
			if err != nil {
				return fmt.Errorf("user %d: %w", req.UserID, err)
			}
			responses[i] = *resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Retrain reloads the data source and installs a new snapshot.
func (r *Recommender) Retrain(ctx context.Context, req models.RetrainRequest) (models.ModelInfo, error) {
	start := time.Now()

	info, err := r.retrain(ctx, req)
	if r.metrics != nil {
		r.metrics.ObserveRetrain(err, time.Since(start), info.Users, info.Items)
	}
	if err != nil {
		r.logger.WithError(err).WithField("reason", req.Reason).Error("Retrain failed")
		return models.ModelInfo{}, err
	}
	return info, nil
}

func (r *Recommender) retrain(ctx context.Context, req models.RetrainRequest) (models.ModelInfo, error) {
	if r.source == nil {
		return models.ModelInfo{}, fmt.Errorf("no data source configured: %w", models.ErrData)
	}

	transactions, catalog, err := r.source.Load(ctx)
	if err != nil {
		return models.ModelInfo{}, fmt.Errorf("failed to load training data: %w", err)
	}

	start := time.Now()
	snap, err := r.registry.Train(ctx, ml.TrainInput{
		Transactions: transactions,
		Catalog:      catalog,
		TakeNPopular: req.TakeNPopular,
		Reason:       req.Reason,
	})
	if err != nil {
		return models.ModelInfo{}, err
	}
	info := snap.Info()

	if r.events != nil {
		event := messaging.ModelRetrainedEvent{
			Version:     snap.Version,
			TrainingRun: snap.TrainingRun,
			Users:       info.Users,
			Items:       info.Items,
			KeptItems:   snap.Report.Kept,
			Reason:      req.Reason,
			DurationMs:  time.Since(start).Milliseconds(),
		}
		if err := r.events.PublishModelRetrained(ctx, event); err != nil {
			r.logger.WithError(err).WithField("version", snap.Version).Warn("Failed to publish model event")
		}
	}

	return info, nil
}

// HandleRetrainCommand adapts Retrain to the message bus consumer. A command
// that arrives while a retrain is running is dropped.
func (r *Recommender) HandleRetrainCommand(ctx context.Context, cmd messaging.RetrainCommand) error {
	_, err := r.Retrain(ctx, models.RetrainRequest{TakeNPopular: cmd.TakeNPopular, Reason: cmd.Reason})
	if errors.Is(err, ml.ErrTrainingInProgress) {
		r.logger.WithField("command_id", cmd.CommandID).Info("Retrain already running, command skipped")
		return nil
	}
	return err
}

// ModelInfo describes the installed snapshot.
func (r *Recommender) ModelInfo() (models.ModelInfo, error) {
	snap, err := r.registry.Current()
	if err != nil {
		return models.ModelInfo{}, err
	}
	return snap.Info(), nil
}
