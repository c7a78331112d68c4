package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/messaging"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/internal/prefilter"
	"github.com/temcen/basketrec/pkg/models"
)

type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) Load(ctx context.Context) ([]models.Transaction, models.Catalog, error) {
	args := m.Called(ctx)
	txs, _ := args.Get(0).([]models.Transaction)
	catalog, _ := args.Get(1).(models.Catalog)
	return txs, catalog, args.Error(2)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishModelRetrained(ctx context.Context, event messaging.ModelRetrainedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishRecommendations(ctx context.Context, event messaging.RecommendationsGeneratedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*CachedList
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*CachedList)}
}

func (c *memoryCache) Get(_ context.Context, version uuid.UUID, userID int64, count int) (*CachedList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.entries[cacheKey(version, userID, count)]
	return list, ok
}

func (c *memoryCache) Set(_ context.Context, version uuid.UUID, userID int64, count int, list *CachedList) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(version, userID, count)] = list
}

func newTestRecommender(t *testing.T, source DataSource, cache RecommendationCache, events EventPublisher) (*Recommender, *ml.Registry, *Metrics) {
	t.Helper()
	logger := testLogger()
	cfg := config.Default()

	engine := ml.NewEngine(ml.EngineConfig{Factors: 4, Iterations: 5}, logger)
	registry := ml.NewRegistry(engine, prefilter.New(prefilter.DefaultOptions(), logger),
		ml.WeightingConfig{Enabled: true, K1: 100, B: 0.8}, 4, logger)
	metrics := NewMetrics(prometheus.NewRegistry(), logger)

	rec, err := NewRecommender(registry, source, cache, events, metrics, cfg.Ranking, logger)
	require.NoError(t, err)
	return rec, registry, metrics
}

func TestRecommender_Recommend(t *testing.T) {
	rec, registry, metrics := newTestRecommender(t, nil, nil, nil)

	_, err := rec.Recommend(context.Background(), 1, 5)
	assert.ErrorIs(t, err, models.ErrNoModel)

	snap := fixtureSnapshot(t)
	registry.Install(snap)

	t.Run("KnownUser", func(t *testing.T) {
		resp, err := rec.Recommend(context.Background(), 1, 5)
		require.NoError(t, err)

		assert.False(t, resp.ColdStart)
		assert.False(t, resp.Short)
		assert.Equal(t, snap.Version, resp.ModelVersion)

		var ids []int64
		var sources []string
		for i, r := range resp.Recommendations {
			ids = append(ids, r.ItemID)
			sources = append(sources, r.Source)
			assert.Equal(t, i+1, r.Position)
		}
		assert.Equal(t, []int64{13, 10, 12, 15, 11}, ids)
		assert.Equal(t, []string{
			models.SourceCostly,
			models.SourcePersonal,
			models.SourcePersonal,
			models.SourceCandidate,
			models.SourceGlobal,
		}, sources)
		assert.Equal(t, "CHEESE", resp.Recommendations[0].SubCategory)
		assert.InDelta(t, 9.0, resp.Recommendations[0].Price, 1e-9)
	})

	t.Run("ColdUserGetsGlobalTop", func(t *testing.T) {
		resp, err := rec.Recommend(context.Background(), 99, 5)
		require.NoError(t, err)

		assert.True(t, resp.ColdStart)
		var ids []int64
		for _, r := range resp.Recommendations {
			ids = append(ids, r.ItemID)
			assert.Equal(t, models.SourceGlobal, r.Source)
		}
		assert.Equal(t, []int64{11, 10, 13, 12, 15}, ids)
	})

	t.Run("SentinelOnlyUserIsCold", func(t *testing.T) {
		resp, err := rec.Recommend(context.Background(), 5, 3)
		require.NoError(t, err)
		assert.True(t, resp.ColdStart)
		assert.Len(t, resp.Recommendations, 3)
	})

	t.Run("DefaultCount", func(t *testing.T) {
		resp, err := rec.Recommend(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Len(t, resp.Recommendations, 5)
	})

	t.Run("ShortList", func(t *testing.T) {
		// Only five categories exist in the catalog.
		resp, err := rec.Recommend(context.Background(), 1, 8)
		require.NoError(t, err)
		assert.True(t, resp.Short)
		assert.Len(t, resp.Recommendations, 5)
	})

	assert.Greater(t, testutil.ToFloat64(metrics.requests.WithLabelValues("cold")), 0.0)
	assert.Greater(t, testutil.ToFloat64(metrics.shortLists), 0.0)
}

func TestRecommender_Cache(t *testing.T) {
	cache := newMemoryCache()
	events := new(MockEventPublisher)
	events.On("PublishRecommendations", mock.Anything, mock.AnythingOfType("messaging.RecommendationsGeneratedEvent")).Return(nil).Once()

	rec, registry, metrics := newTestRecommender(t, nil, cache, events)
	registry.Install(fixtureSnapshot(t))

	first, err := rec.Recommend(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := rec.Recommend(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Recommendations, second.Recommendations)

	// A new snapshot changes the key.
	registry.Install(fixtureSnapshot(t))
	events.On("PublishRecommendations", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	third, err := rec.Recommend(context.Background(), 1, 5)
	require.NoError(t, err, "publish failures are logged, not returned")
	assert.False(t, third.CacheHit)

	events.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
}

func TestRecommender_RecommendBatch(t *testing.T) {
	rec, registry, _ := newTestRecommender(t, nil, nil, nil)
	registry.Install(fixtureSnapshot(t))

	reqs := []models.RecommendationRequest{
		{UserID: 1, Count: 5},
		{UserID: 99, Count: 3},
		{UserID: 2},
		{UserID: 4, Count: 2},
	}

	responses, err := rec.RecommendBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, responses, len(reqs))

	for i, resp := range responses {
		assert.Equal(t, reqs[i].UserID, resp.UserID)
	}
	assert.True(t, responses[1].ColdStart)
	assert.Len(t, responses[1].Recommendations, 3)
	assert.Len(t, responses[3].Recommendations, 2)

	single, err := rec.Recommend(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, single.Recommendations, responses[0].Recommendations)
}

func TestRecommender_RecommendBatchWithoutModel(t *testing.T) {
	rec, _, _ := newTestRecommender(t, nil, nil, nil)

	_, err := rec.RecommendBatch(context.Background(), []models.RecommendationRequest{{UserID: 1}})
	assert.ErrorIs(t, err, models.ErrNoModel)
}

// trainingLog gives ten users in two groups of five; each group buys its own
// three items.
func trainingLog() []models.Transaction {
	var txs []models.Transaction
	for u := int64(1); u <= 10; u++ {
		base := int64(100)
		if u > 5 {
			base = 200
		}
		for i := int64(0); i < 3; i++ {
			txs = append(txs, models.Transaction{
				UserID:     u,
				ItemID:     base + i,
				Quantity:   float64(1 + (u+i)%3),
				SalesValue: float64(1+(u+i)%3) * (2 + float64(i)*4),
				WeekNo:     20,
			})
		}
	}
	return txs
}

func TestRecommender_Retrain(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		source := new(MockDataSource)
		source.On("Load", mock.Anything).Return(trainingLog(), models.Catalog{}, nil)

		events := new(MockEventPublisher)
		events.On("PublishModelRetrained", mock.Anything, mock.MatchedBy(func(e messaging.ModelRetrainedEvent) bool {
			return e.Users == 10 && e.Items == 6 && e.Reason == "nightly"
		})).Return(nil)
		events.On("PublishRecommendations", mock.Anything, mock.Anything).Return(nil)

		rec, _, metrics := newTestRecommender(t, source, nil, events)

		info, err := rec.Retrain(context.Background(), models.RetrainRequest{Reason: "nightly"})
		require.NoError(t, err)
		assert.Equal(t, 10, info.Users)
		assert.Equal(t, 6, info.Items)

		current, err := rec.ModelInfo()
		require.NoError(t, err)
		assert.Equal(t, info.Version, current.Version)

		resp, err := rec.Recommend(context.Background(), 1, 3)
		require.NoError(t, err)
		assert.False(t, resp.ColdStart)
		assert.NotEmpty(t, resp.Recommendations)
		for _, r := range resp.Recommendations {
			assert.True(t, r.ItemID >= 100 && r.ItemID < 300)
		}

		source.AssertExpectations(t)
		events.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.retrains.WithLabelValues("success")))
	})

	t.Run("EmptyLogKeepsNoModel", func(t *testing.T) {
		source := new(MockDataSource)
		source.On("Load", mock.Anything).Return([]models.Transaction{}, models.Catalog{}, nil)

		rec, _, metrics := newTestRecommender(t, source, nil, nil)

		_, err := rec.Retrain(context.Background(), models.RetrainRequest{})
		assert.ErrorIs(t, err, models.ErrData)

		_, err = rec.ModelInfo()
		assert.ErrorIs(t, err, models.ErrNoModel)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.retrains.WithLabelValues("failure")))
	})

	t.Run("LoadFailure", func(t *testing.T) {
		source := new(MockDataSource)
		source.On("Load", mock.Anything).Return(nil, nil, errors.New("connection refused"))

		rec, _, _ := newTestRecommender(t, source, nil, nil)

		_, err := rec.Retrain(context.Background(), models.RetrainRequest{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load training data")
	})

	t.Run("NoSource", func(t *testing.T) {
		rec, _, _ := newTestRecommender(t, nil, nil, nil)
		_, err := rec.Retrain(context.Background(), models.RetrainRequest{})
		assert.ErrorIs(t, err, models.ErrData)
	})

	t.Run("RetrainCommand", func(t *testing.T) {
		source := new(MockDataSource)
		source.On("Load", mock.Anything).Return(trainingLog(), models.Catalog(nil), nil)

		rec, _, _ := newTestRecommender(t, source, nil, nil)
		err := rec.HandleRetrainCommand(context.Background(), messaging.RetrainCommand{
			CommandID:    uuid.New(),
			TakeNPopular: 4,
			Reason:       "kafka",
		})
		require.NoError(t, err)

		info, err := rec.ModelInfo()
		require.NoError(t, err)
		assert.Equal(t, 4, info.Items)
	})
}

func TestNewRecommender_InvalidMode(t *testing.T) {
	cfg := config.Default().Ranking
	cfg.PrivateLabelMode = "bogus"

	_, err := NewRecommender(nil, nil, nil, nil, nil, cfg, testLogger())
	assert.Error(t, err)
}
