package ml

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ALSModel is an implicit-feedback matrix factorisation (Hu, Koren, Volinsky
// 2008). Confidence is 1 + alpha*r for every non-zero cell r and the
// preference is 1 wherever r > 0.
type ALSModel struct {
	userFactors *mat.Dense
	itemFactors *mat.Dense
	userNorms   []float64
	itemNorms   []float64
}

func fitALS(ctx context.Context, weighted mat.Matrix, cfg EngineConfig) (*ALSModel, error) {
	numUsers, numItems := weighted.Dims()
	if numUsers == 0 || numItems == 0 {
		return nil, fmt.Errorf("empty interaction matrix")
	}
	factors := cfg.Factors

	userItems := sparseRows(weighted)
	itemUsers := sparseCols(weighted)
	for _, rows := range [][][]entry{userItems, itemUsers} {
		for _, row := range rows {
			for k := range row {
				row[k].value = 1 + cfg.Alpha*row[k].value
			}
		}
	}

	x := mat.NewDense(numUsers, factors, nil)
	y := mat.NewDense(numItems, factors, nil)
	initFactors(x)
	initFactors(y)

	for iter := 0; iter < cfg.Iterations; iter++ {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		if err := alsStep(x, y, userItems, cfg.Regularization, cfg.NumWorkers); err != nil {
			return nil, fmt.Errorf("user step %d: %w", iter, err)
		}

		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		if err := alsStep(y, x, itemUsers, cfg.Regularization, cfg.NumWorkers); err != nil {
			return nil, fmt.Errorf("item step %d: %w", iter, err)
		}
	}

	return &ALSModel{
		userFactors: x,
		itemFactors: y,
		userNorms:   rowNorms(x),
		itemNorms:   rowNorms(y),
	}, nil
}

// initFactors fills m with small deterministic values so identical input
// always fits the same model.
func initFactors(m *mat.Dense) {
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for f := 0; f < cols; f++ {
			m.Set(r, f, 0.1*(float64((r*cols+f)%1000)/1000.0-0.5)+0.01)
		}
	}
}

// alsStep re-solves every row of target with fixed held constant:
//
//	(FᵀF + Fᵀ(Cᵤ − I)F + λI) xᵤ = FᵀCᵤpᵤ
func alsStep(target, fixed *mat.Dense, confidence [][]entry, lambda float64, workers int) error {
	rows, factors := target.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, fixed.T())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, span := range chunks(rows, workers) {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			a := mat.NewSymDense(factors, nil)
			b := mat.NewVecDense(factors, nil)
			sol := mat.NewVecDense(factors, nil)
			var chol mat.Cholesky

			for r := start; r < end; r++ {
				a.CopySym(&gram)
				for f := 0; f < factors; f++ {
					a.SetSym(f, f, a.At(f, f)+lambda)
				}
				b.Zero()

				for _, e := range confidence[r] {
					vec := fixed.RawRowView(e.index)
					for f1 := 0; f1 < factors; f1++ {
						for f2 := f1; f2 < factors; f2++ {
							a.SetSym(f1, f2, a.At(f1, f2)+(e.value-1)*vec[f1]*vec[f2])
						}
						b.SetVec(f1, b.AtVec(f1)+e.value*vec[f1])
					}
				}

				if ok := chol.Factorize(a); !ok {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("row %d: system is not positive definite", r)
					}
					mu.Unlock()
					continue
				}
				if err := chol.SolveVecTo(sol, b); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("row %d: %w", r, err)
					}
					mu.Unlock()
					continue
				}
				target.SetRow(r, sol.RawVector().Data)
			}
		}(span[0], span[1])
	}
	wg.Wait()

	return firstErr
}

func rowNorms(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	norms := make([]float64, rows)
	for r := 0; r < rows; r++ {
		norms[r] = floats.Norm(m.RawRowView(r), 2)
	}
	return norms
}

// cosineNeighbours ranks every row of m against row q by cosine similarity.
func cosineNeighbours(m *mat.Dense, norms []float64, q, n int) []Scored {
	rows, _ := m.Dims()
	if q < 0 || q >= rows || n <= 0 {
		return nil
	}
	query := m.RawRowView(q)
	scored := make([]Scored, 0, rows)
	for r := 0; r < rows; r++ {
		denom := norms[q] * norms[r]
		score := 0.0
		if denom > 0 {
			score = floats.Dot(query, m.RawRowView(r)) / denom
		}
		if math.IsNaN(score) {
			score = 0
		}
		scored = append(scored, Scored{Index: r, Score: score})
	}
	// The query row always leads, even when its norm is zero.
	scored[q].Score = math.Inf(1)
	out := topScored(scored, n)
	out[0].Score = 1
	return out
}

func (m *ALSModel) SimilarItems(itemCol, n int) []Scored {
	return cosineNeighbours(m.itemFactors, m.itemNorms, itemCol, n)
}

func (m *ALSModel) SimilarUsers(userRow, n int) []Scored {
	return cosineNeighbours(m.userFactors, m.userNorms, userRow, n)
}

// UserFactors exposes the fitted user factor matrix read-only.
func (m *ALSModel) UserFactors() mat.Matrix { return m.userFactors }

// ItemFactors exposes the fitted item factor matrix read-only.
func (m *ALSModel) ItemFactors() mat.Matrix { return m.itemFactors }
