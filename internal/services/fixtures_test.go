package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/basketrec/internal/matrix"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// Four households, six products.
//
//	user 1: 10 (3 units), 12 (2), 11 (1)
//	user 2: 13 (4), 10 (1)
//	user 3: 14 (2), 15 (1)
//	user 4: 11 (5)
func fixtureTransactions() []models.Transaction {
	tx := func(user, item int64, qty, unit float64) models.Transaction {
		return models.Transaction{UserID: user, ItemID: item, Quantity: qty, SalesValue: qty * unit, WeekNo: 40}
	}
	return []models.Transaction{
		tx(1, 10, 3, 2),
		tx(1, 12, 2, 3),
		tx(1, 11, 1, 1.5),
		tx(2, 13, 4, 9),
		tx(2, 10, 1, 2),
		tx(3, 14, 2, 2.5),
		tx(3, 15, 1, 8),
		tx(4, 11, 5, 1.5),
		tx(5, models.SentinelItemID, 2, 4),
	}
}

func fixtureCatalog() models.Catalog {
	return models.Catalog{
		10: {ItemID: 10, Department: "GROCERY", SubCategory: "MILK"},
		11: {ItemID: 11, Department: "GROCERY", SubCategory: "BREAD"},
		12: {ItemID: 12, Department: "GROCERY", SubCategory: "EGGS", PrivateLabel: true},
		13: {ItemID: 13, Department: "GROCERY", SubCategory: "CHEESE"},
		14: {ItemID: 14, Department: "GROCERY", SubCategory: "MILK"},
		15: {ItemID: 15, Department: "PRODUCE", SubCategory: "FRUIT", PrivateLabel: true},
	}
}

// tablePersonal ranks a user's own items by interaction count.
type tablePersonal struct{}

func (tablePersonal) Recommend(_ int, known mat.Vector, n int, _ bool) []ml.Scored {
	var out []ml.Scored
	for i := 0; i < known.Len(); i++ {
		if v := known.AtVec(i); v > 0 {
			out = append(out, ml.Scored{Index: i, Score: v})
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// tableGlobal answers neighbourhood queries from fixed tables. Columns:
// 10→0 11→1 12→2 13→3 14→4 15→5. Rows: user 1→0 2→1 3→2 4→3.
type tableGlobal struct {
	items map[int][]int
	users map[int][]int
}

func lookup(table map[int][]int, q, n int) []ml.Scored {
	order, ok := table[q]
	if !ok {
		order = []int{q}
	}
	var out []ml.Scored
	for i, idx := range order {
		if i == n {
			break
		}
		out = append(out, ml.Scored{Index: idx, Score: 1 - float64(i)*0.1})
	}
	return out
}

func (g tableGlobal) SimilarItems(col, n int) []ml.Scored { return lookup(g.items, col, n) }
func (g tableGlobal) SimilarUsers(row, n int) []ml.Scored { return lookup(g.users, row, n) }

func fixtureSnapshot(t *testing.T) *ml.Snapshot {
	t.Helper()

	txs := fixtureTransactions()
	im, err := matrix.Build(txs)
	require.NoError(t, err)

	purchases := matrix.NewPurchaseIndex(txs)
	return &ml.Snapshot{
		Version:   uuid.New(),
		FittedAt:  time.Now().UTC(),
		Matrix:    im,
		Purchases: purchases,
		Catalog:   matrix.NewCatalogIndex(fixtureCatalog(), purchases),
		Personal:  tablePersonal{},
		Global: tableGlobal{
			items: map[int][]int{
				0: {0, 3, 5},
				1: {1, 0},
				2: {2, 4, 1},
			},
			users: map[int][]int{
				0: {0, 1, 3, 2},
				1: {1, 0},
			},
		},
		Factors: 2,
	}
}
