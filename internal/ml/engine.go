package ml

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/basketrec/internal/config"
)

// Scored is a matrix index paired with a model score.
type Scored struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// PersonalModel ranks items from a user's own purchase history.
type PersonalModel interface {
	// Recommend scores items for userRow given the row's interaction vector.
	// Only items with a positive score are returned, best first.
	Recommend(userRow int, known mat.Vector, n int, excludeKnown bool) []Scored
}

// GlobalModel answers neighbourhood queries over the whole population. Both
// queries include the query row itself, usually in first position.
type GlobalModel interface {
	SimilarItems(itemCol, n int) []Scored
	SimilarUsers(userRow, n int) []Scored
}

// Engine fits the two candidate models. Implementations must be deterministic
// for identical input.
type Engine interface {
	FitPersonal(ctx context.Context, counts mat.Matrix) (PersonalModel, error)
	FitGlobal(ctx context.Context, weighted mat.Matrix) (GlobalModel, error)
}

// EngineConfig holds the hyperparameters of the default engine.
type EngineConfig struct {
	Factors        int
	Regularization float64
	Iterations     int
	Alpha          float64
	NumWorkers     int
	PersonalK      int
}

// DefaultEngineConfig returns the hyperparameters used in production.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Factors:        20,
		Regularization: 0.001,
		Iterations:     15,
		Alpha:          1.0,
		NumWorkers:     4,
		PersonalK:      1,
	}
}

// EngineConfigFromConfig maps the models section of the application config.
func EngineConfigFromConfig(cfg config.ModelConfig) EngineConfig {
	return EngineConfig{
		Factors:        cfg.Factors,
		Regularization: cfg.Regularization,
		Iterations:     cfg.Iterations,
		Alpha:          cfg.Alpha,
		NumWorkers:     cfg.NumWorkers,
		PersonalK:      cfg.PersonalK,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.Factors <= 0 {
		c.Factors = d.Factors
	}
	if c.Regularization <= 0 {
		c.Regularization = d.Regularization
	}
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	if c.Alpha <= 0 {
		c.Alpha = d.Alpha
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = d.NumWorkers
	}
	if c.PersonalK <= 0 {
		c.PersonalK = d.PersonalK
	}
	return c
}

// DefaultEngine pairs an item-item nearest neighbour model for personal
// recommendations with implicit ALS for the global model.
type DefaultEngine struct {
	config EngineConfig
	logger *logrus.Logger
}

func NewEngine(cfg EngineConfig, logger *logrus.Logger) *DefaultEngine {
	return &DefaultEngine{
		config: cfg.withDefaults(),
		logger: logger,
	}
}

func (e *DefaultEngine) FitPersonal(ctx context.Context, counts mat.Matrix) (PersonalModel, error) {
	model, err := fitItemItem(ctx, counts, e.config.PersonalK, e.config.NumWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to fit personal model: %w", err)
	}

	rows, cols := counts.Dims()
	e.logger.WithFields(logrus.Fields{
		"users": rows,
		"items": cols,
		"k":     e.config.PersonalK,
	}).Debug("Personal model fitted")

	return model, nil
}

func (e *DefaultEngine) FitGlobal(ctx context.Context, weighted mat.Matrix) (GlobalModel, error) {
	model, err := fitALS(ctx, weighted, e.config)
	if err != nil {
		return nil, fmt.Errorf("failed to fit global model: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"factors":    e.config.Factors,
		"iterations": e.config.Iterations,
	}).Debug("Global model fitted")

	return model, nil
}

// topScored sorts by score descending, ties to the smaller index, and keeps n.
func topScored(scored []Scored, n int) []Scored {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Index < scored[j].Index
	})
	if n >= 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sparseRows converts a matrix to per-row lists of non-zero entries in
// ascending column order.
func sparseRows(m mat.Matrix) [][]entry {
	rows, cols := m.Dims()
	out := make([][]entry, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := m.At(r, c); v != 0 {
				out[r] = append(out[r], entry{index: c, value: v})
			}
		}
	}
	return out
}

// sparseCols is sparseRows over the transpose.
func sparseCols(m mat.Matrix) [][]entry {
	return sparseRows(m.T())
}

type entry struct {
	index int
	value float64
}

// chunks splits [0, n) into at most workers contiguous ranges.
func chunks(n, workers int) [][2]int {
	if workers <= 0 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
