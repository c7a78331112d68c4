package ml

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/basketrec/internal/prefilter"
	"github.com/temcen/basketrec/pkg/models"
)

// communityLog returns ten users split into two groups of five, each group
// buying its own three items.
func communityLog() []models.Transaction {
	var txs []models.Transaction
	for u := int64(1); u <= 10; u++ {
		base := int64(100)
		if u > 5 {
			base = 200
		}
		for i := int64(0); i < 3; i++ {
			for q := int64(0); q <= (u+i)%3; q++ {
				txs = append(txs, models.Transaction{
					UserID:     u,
					ItemID:     base + i,
					Quantity:   1,
					SalesValue: 3,
					WeekNo:     10,
				})
			}
		}
	}
	return txs
}

func newTestRegistry(engine Engine) *Registry {
	logger := testLogger()
	pf := prefilter.New(prefilter.DefaultOptions(), logger)
	return NewRegistry(engine, pf, WeightingConfig{Enabled: true, K1: 100, B: 0.8}, 4, logger)
}

type stubEngine struct {
	fail    error
	started chan struct{}
	release chan struct{}
	inner   Engine
}

func (s *stubEngine) FitPersonal(ctx context.Context, counts mat.Matrix) (PersonalModel, error) {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return s.inner.FitPersonal(ctx, counts)
}

func (s *stubEngine) FitGlobal(ctx context.Context, weighted mat.Matrix) (GlobalModel, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.inner.FitGlobal(ctx, weighted)
}

func TestRegistry(t *testing.T) {
	realEngine := NewEngine(EngineConfig{Factors: 4, Iterations: 5}, testLogger())

	t.Run("NoModelBeforeTraining", func(t *testing.T) {
		registry := newTestRegistry(realEngine)
		_, err := registry.Current()
		assert.ErrorIs(t, err, models.ErrNoModel)
	})

	t.Run("TrainInstallsSnapshot", func(t *testing.T) {
		registry := newTestRegistry(realEngine)

		snap, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog(), Reason: "test"})
		require.NoError(t, err)

		current, err := registry.Current()
		require.NoError(t, err)
		assert.Same(t, snap, current)

		info := snap.Info()
		assert.Equal(t, 10, info.Users)
		assert.Equal(t, 6, info.Items)
		assert.Equal(t, 4, info.Factors)
		assert.NotEmpty(t, info.TrainingRun)
		assert.Equal(t, 6, snap.Report.Kept)
		assert.Equal(t, []int64{100, 101, 102, 200, 201, 202}, snap.IDs().Items())
	})

	t.Run("TakeNPopularOverride", func(t *testing.T) {
		registry := newTestRegistry(realEngine)

		snap, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog(), TakeNPopular: 2})
		require.NoError(t, err)

		_, items := snap.Matrix.Dims()
		assert.Equal(t, 2, items)
	})

	t.Run("EmptyInputKeepsPrevious", func(t *testing.T) {
		registry := newTestRegistry(realEngine)
		first, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		require.NoError(t, err)

		_, err = registry.Train(context.Background(), TrainInput{})
		assert.ErrorIs(t, err, models.ErrData)

		current, err := registry.Current()
		require.NoError(t, err)
		assert.Equal(t, first.Version, current.Version)
	})

	t.Run("FitFailureKeepsPrevious", func(t *testing.T) {
		engine := &stubEngine{inner: realEngine}
		registry := newTestRegistry(engine)
		first, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		require.NoError(t, err)

		engine.fail = errors.New("solver diverged")
		_, err = registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		assert.Error(t, err)

		current, err := registry.Current()
		require.NoError(t, err)
		assert.Equal(t, first.Version, current.Version)
	})

	t.Run("RetrainIsExclusive", func(t *testing.T) {
		engine := &stubEngine{
			inner:   realEngine,
			started: make(chan struct{}),
			release: make(chan struct{}),
		}
		registry := newTestRegistry(engine)

		var wg sync.WaitGroup
		wg.Add(1)
		var firstErr error
		go func() {
			defer wg.Done()
			_, firstErr = registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		}()

		<-engine.started
		_, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		assert.ErrorIs(t, err, ErrTrainingInProgress)

		close(engine.release)
		wg.Wait()
		assert.NoError(t, firstErr)
	})

	t.Run("SnapshotsAreDistinct", func(t *testing.T) {
		registry := newTestRegistry(realEngine)
		a, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		require.NoError(t, err)
		b, err := registry.Train(context.Background(), TrainInput{Transactions: communityLog()})
		require.NoError(t, err)
		assert.NotEqual(t, a.Version, b.Version)
	})
}
