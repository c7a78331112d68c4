package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/matrix"
	"github.com/temcen/basketrec/internal/prefilter"
	"github.com/temcen/basketrec/pkg/models"
)

// ErrTrainingInProgress is returned when a retrain is requested while another
// one is still running.
var ErrTrainingInProgress = errors.New("training already in progress")

// Snapshot is one fitted generation of the recommender. It is never mutated
// after installation, so any number of queries may read it concurrently.
type Snapshot struct {
	Version     uuid.UUID
	FittedAt    time.Time
	TrainingRun string

	Matrix    *matrix.InteractionMatrix
	Purchases *matrix.PurchaseIndex
	Catalog   *matrix.CatalogIndex
	Report    *prefilter.Report

	Personal PersonalModel
	Global   GlobalModel
	Factors  int
}

// IDs is a shorthand for the snapshot's id mapping.
func (s *Snapshot) IDs() *matrix.IDMap { return s.Matrix.IDs() }

func (s *Snapshot) Info() models.ModelInfo {
	users, items := s.Matrix.Dims()
	return models.ModelInfo{
		Version:     s.Version,
		FittedAt:    s.FittedAt,
		Users:       users,
		Items:       items,
		Factors:     s.Factors,
		TrainingRun: s.TrainingRun,
	}
}

// WeightingConfig controls the BM25 transform applied before the global fit.
type WeightingConfig struct {
	Enabled bool
	K1      float64
	B       float64
}

// TrainInput is the raw material for one retrain.
type TrainInput struct {
	Transactions []models.Transaction
	Catalog      models.Catalog
	// TakeNPopular overrides the prefilter's top-N when positive.
	TakeNPopular int
	Reason       string
}

// Registry holds the currently installed snapshot and runs retrains. Readers
// never block: the snapshot pointer is swapped atomically once a retrain has
// fully succeeded.
type Registry struct {
	engine    Engine
	prefilter *prefilter.Prefilter
	weighting WeightingConfig
	factors   int

	current atomic.Pointer[Snapshot]
	trainMu sync.Mutex
	logger  *logrus.Logger
}

func NewRegistry(engine Engine, pf *prefilter.Prefilter, weighting WeightingConfig, factors int, logger *logrus.Logger) *Registry {
	return &Registry{
		engine:    engine,
		prefilter: pf,
		weighting: weighting,
		factors:   factors,
		logger:    logger,
	}
}

// Current returns the installed snapshot or ErrNoModel.
func (r *Registry) Current() (*Snapshot, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, models.ErrNoModel
	}
	return snap, nil
}

// Train runs prefilter, matrix build and both fits, then installs the result.
// On any failure the previous snapshot stays in place.
func (r *Registry) Train(ctx context.Context, in TrainInput) (*Snapshot, error) {
	if !r.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer r.trainMu.Unlock()

	start := time.Now()
	run := uuid.New()

	pf := r.prefilter
	if in.TakeNPopular > 0 {
		opts := pf.Options()
		opts.TakeNPopular = in.TakeNPopular
		pf = prefilter.New(opts, r.logger)
	}

	filtered, report, err := pf.Apply(in.Transactions, in.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter transactions: %w", err)
	}

	im, err := matrix.Build(filtered)
	if err != nil {
		return nil, fmt.Errorf("failed to build interaction matrix: %w", err)
	}

	personal, err := r.engine.FitPersonal(ctx, im.Counts())
	if err != nil {
		return nil, err
	}

	weighted := im.Counts()
	if r.weighting.Enabled {
		weighted = BM25Weight(im.Counts(), r.weighting.K1, r.weighting.B)
	}
	global, err := r.engine.FitGlobal(ctx, weighted)
	if err != nil {
		return nil, err
	}

	purchases := matrix.NewPurchaseIndex(filtered)
	snap := &Snapshot{
		Version:     uuid.New(),
		FittedAt:    time.Now().UTC(),
		TrainingRun: run.String(),
		Matrix:      im,
		Purchases:   purchases,
		Catalog:     matrix.NewCatalogIndex(in.Catalog, purchases),
		Report:      report,
		Personal:    personal,
		Global:      global,
		Factors:     r.factors,
	}

	r.Install(snap)

	users, items := im.Dims()
	r.logger.WithFields(logrus.Fields{
		"version":     snap.Version,
		"users":       users,
		"items":       items,
		"kept_items":  report.Kept,
		"reason":      in.Reason,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Model snapshot installed")

	return snap, nil
}

// Install swaps in snap unconditionally.
func (r *Registry) Install(snap *Snapshot) {
	r.current.Store(snap)
}
