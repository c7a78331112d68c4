package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prices(p map[int64]float64) func(int64) float64 {
	return func(id int64) float64 { return p[id] }
}

func TestMetricsAtK(t *testing.T) {
	recommended := []int64{143, 156, 1134, 991, 27, 1543, 3345, 533, 11, 43}
	bought := []int64{521, 32, 143, 991}
	price := prices(map[int64]float64{
		143: 10, 156: 20, 1134: 30, 991: 40, 27: 50,
		521: 5, 32: 5,
	})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"HitRate", HitRateAtK(recommended, bought, 5), 1},
		{"HitRateMiss", HitRateAtK(recommended[4:], bought, 2), 0},
		{"Precision", PrecisionAtK(recommended, bought, 5), 2.0 / 5},
		{"Recall", RecallAtK(recommended, bought, 5), 2.0 / 4},
		{"MoneyPrecision", MoneyPrecisionAtK(recommended, bought, price, 5), 50.0 / 150},
		{"MoneyRecall", MoneyRecallAtK(recommended, bought, price, 5), 50.0 / 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got, 1e-9)
		})
	}
}

func TestMetricsEdgeCases(t *testing.T) {
	zero := prices(nil)

	assert.Equal(t, 0.0, PrecisionAtK(nil, []int64{1}, 5))
	assert.Equal(t, 0.0, PrecisionAtK([]int64{1}, []int64{1}, 0))
	assert.Equal(t, 0.0, RecallAtK([]int64{1}, nil, 5))
	assert.Equal(t, 0.0, MoneyPrecisionAtK([]int64{1}, []int64{1}, zero, 5))
	assert.Equal(t, 0.0, MoneyRecallAtK([]int64{1}, []int64{1}, zero, 5))

	// Short lists are scored on what they contain.
	assert.Equal(t, 1.0, PrecisionAtK([]int64{7}, []int64{7, 8}, 5))

	// Repeated purchases count once.
	assert.Equal(t, 1.0, RecallAtK([]int64{7}, []int64{7, 7, 7}, 5))
}

func TestGroupBought(t *testing.T) {
	got := GroupBought([][2]int64{{1, 10}, {2, 20}, {1, 11}, {1, 10}})
	assert.Equal(t, map[int64][]int64{1: {10, 11}, 2: {20}}, got)
}

func TestBuildCasesAndEvaluate(t *testing.T) {
	bought := map[int64][]int64{
		3: {30},
		1: {10, 11},
		2: {20},
	}
	lists := map[int64][]int64{
		1: {10, 99},
		2: {98, 97},
		3: {30},
	}
	recommend := func(_ context.Context, userID int64, k int) ([]int64, error) {
		return lists[userID], nil
	}

	cases, err := BuildCases(context.Background(), bought, recommend, 2, 2)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, int64(1), cases[0].UserID)
	assert.Equal(t, int64(3), cases[2].UserID)

	report := Evaluate(cases, prices(map[int64]float64{10: 2, 11: 2, 20: 1, 30: 5, 99: 2, 98: 1, 97: 1}), 2)
	assert.Equal(t, 3, report.Users)
	assert.InDelta(t, 2.0/3, report.HitRate, 1e-9)
	assert.InDelta(t, (0.5+0+1)/3, report.Precision, 1e-9)
	assert.InDelta(t, (0.5+0+1)/3, report.Recall, 1e-9)
	assert.InDelta(t, (0.5+0+1)/3, report.MoneyPrecision, 1e-9)
	assert.InDelta(t, (0.5+0+1)/3, report.MoneyRecall, 1e-9)

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, Report{K: 5}, Evaluate(nil, prices(nil), 5))
	})

	t.Run("RecommendError", func(t *testing.T) {
		failing := func(context.Context, int64, int) ([]int64, error) {
			return nil, errors.New("no model")
		}
		_, err := BuildCases(context.Background(), bought, failing, 2, 0)
		assert.Error(t, err)
	})
}
