package ml

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ItemItemModel keeps, for every item, its K most co-purchased items by the
// dot product of their user columns. With K=1 an item's only neighbour is
// usually itself, which turns the model into an "own purchases" ranker.
type ItemItemModel struct {
	neighbours [][]Scored
	numItems   int
}

func fitItemItem(ctx context.Context, counts mat.Matrix, k, workers int) (*ItemItemModel, error) {
	if cancelled(ctx) {
		return nil, ctx.Err()
	}

	userItems := sparseRows(counts)
	itemUsers := sparseCols(counts)
	numItems := len(itemUsers)

	model := &ItemItemModel{
		neighbours: make([][]Scored, numItems),
		numItems:   numItems,
	}

	var wg sync.WaitGroup
	for _, span := range chunks(numItems, workers) {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			scratch := make([]float64, numItems)
			touched := make([]int, 0, 64)
			for i := start; i < end; i++ {
				for _, u := range itemUsers[i] {
					for _, j := range userItems[u.index] {
						if scratch[j.index] == 0 {
							touched = append(touched, j.index)
						}
						scratch[j.index] += u.value * j.value
					}
				}

				scored := make([]Scored, 0, len(touched))
				for _, j := range touched {
					if scratch[j] > 0 {
						scored = append(scored, Scored{Index: j, Score: scratch[j]})
					}
					scratch[j] = 0
				}
				touched = touched[:0]

				model.neighbours[i] = topScored(scored, k)
			}
		}(span[0], span[1])
	}
	wg.Wait()

	if cancelled(ctx) {
		return nil, ctx.Err()
	}
	return model, nil
}

func (m *ItemItemModel) Recommend(userRow int, known mat.Vector, n int, excludeKnown bool) []Scored {
	scores := make(map[int]float64)
	for i := 0; i < known.Len() && i < m.numItems; i++ {
		c := known.AtVec(i)
		if c == 0 {
			continue
		}
		for _, nb := range m.neighbours[i] {
			scores[nb.Index] += c * nb.Score
		}
	}

	out := make([]Scored, 0, len(scores))
	for idx, s := range scores {
		if s <= 0 {
			continue
		}
		if excludeKnown && idx < known.Len() && known.AtVec(idx) != 0 {
			continue
		}
		out = append(out, Scored{Index: idx, Score: s})
	}
	return topScored(out, n)
}

// Neighbours returns the retained neighbours of itemCol.
func (m *ItemItemModel) Neighbours(itemCol int) []Scored {
	return append([]Scored(nil), m.neighbours[itemCol]...)
}
