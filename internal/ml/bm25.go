package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// idfFloor keeps weights strictly positive for users who bought almost every
// item, so the transform stays monotonic in the raw count.
const idfFloor = 1e-6

// BM25Weight re-weights a user×item count matrix before the global fit. Items
// are treated as documents and users as terms: an item's weight is damped by
// its total interaction volume relative to the average item, and a user's
// contribution by how many distinct items they bought.
func BM25Weight(counts mat.Matrix, k1, b float64) *mat.Dense {
	users, items := counts.Dims()
	out := mat.NewDense(users, items, nil)
	if users == 0 || items == 0 {
		return out
	}

	itemLength := make([]float64, items)
	userDocs := make([]float64, users)
	total := 0.0
	for u := 0; u < users; u++ {
		for i := 0; i < items; i++ {
			v := counts.At(u, i)
			if v == 0 {
				continue
			}
			itemLength[i] += v
			userDocs[u]++
			total += v
		}
	}
	avgLength := total / float64(items)
	if avgLength == 0 {
		return out
	}

	n := float64(items)
	for u := 0; u < users; u++ {
		idf := math.Max(math.Log(n)-math.Log1p(userDocs[u]), idfFloor)
		for i := 0; i < items; i++ {
			v := counts.At(u, i)
			if v == 0 {
				continue
			}
			norm := k1 * (1 - b + b*itemLength[i]/avgLength)
			out.Set(u, i, v*(k1+1)/(norm+v)*idf)
		}
	}
	return out
}
