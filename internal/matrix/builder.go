package matrix

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/temcen/basketrec/pkg/models"
)

// InteractionMatrix is the dense user×item count matrix. Rows are known
// users and columns eligible items, both in ascending id order. A cell holds
// the number of transactions the user made for the item.
type InteractionMatrix struct {
	counts *mat.Dense
	ids    *IDMap
}

// Build pivots prefiltered transactions into an InteractionMatrix. The
// sentinel item never becomes a column, so users who only bought filtered-out
// items get no row and are treated as cold.
func Build(transactions []models.Transaction) (*InteractionMatrix, error) {
	if len(transactions) == 0 {
		return nil, fmt.Errorf("matrix: empty transaction log: %w", models.ErrData)
	}

	type cell struct {
		user int64
		item int64
	}

	cells := make(map[cell]float64)
	userSet := make(map[int64]struct{})
	itemSet := make(map[int64]struct{})

	for _, t := range transactions {
		if models.IsSentinel(t.ItemID) {
			continue
		}
		cells[cell{t.UserID, t.ItemID}]++
		userSet[t.UserID] = struct{}{}
		itemSet[t.ItemID] = struct{}{}
	}

	if len(cells) == 0 {
		return nil, fmt.Errorf("matrix: no eligible items after prefiltering: %w", models.ErrData)
	}

	ids := newIDMap(sortedKeys(userSet), sortedKeys(itemSet))

	counts := mat.NewDense(ids.NumUsers(), ids.NumItems(), nil)
	for c, n := range cells {
		counts.Set(ids.userToRow[c.user], ids.itemToCol[c.item], n)
	}

	return &InteractionMatrix{counts: counts, ids: ids}, nil
}

func sortedKeys(set map[int64]struct{}) []int64 {
	keys := make([]int64, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (m *InteractionMatrix) IDs() *IDMap { return m.ids }

// Counts exposes the matrix read-only.
func (m *InteractionMatrix) Counts() mat.Matrix { return m.counts }

// Dims returns (users, items).
func (m *InteractionMatrix) Dims() (int, int) { return m.counts.Dims() }

// At returns the interaction count at (row, col).
func (m *InteractionMatrix) At(row, col int) float64 { return m.counts.At(row, col) }

// UserVector returns a copy of one user's row.
func (m *InteractionMatrix) UserVector(row int) *mat.VecDense {
	_, cols := m.counts.Dims()
	v := mat.NewVecDense(cols, nil)
	v.CopyVec(m.counts.RowView(row))
	return v
}

// NonZero returns the number of non-empty cells.
func (m *InteractionMatrix) NonZero() int {
	rows, _ := m.counts.Dims()
	n := 0
	for r := 0; r < rows; r++ {
		for _, v := range m.counts.RawRowView(r) {
			if v != 0 {
				n++
			}
		}
	}
	return n
}
