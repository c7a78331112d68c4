// Package evaluation scores recommendation lists against held-out purchases.
package evaluation

func truncate(recommended []int64, k int) []int64 {
	if k < 0 {
		k = 0
	}
	if len(recommended) > k {
		return recommended[:k]
	}
	return recommended
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// HitRateAtK is 1 when any of the top k recommendations was bought, else 0.
func HitRateAtK(recommended, bought []int64, k int) float64 {
	boughtSet := toSet(bought)
	for _, id := range truncate(recommended, k) {
		if _, ok := boughtSet[id]; ok {
			return 1
		}
	}
	return 0
}

// PrecisionAtK is the share of the top k recommendations that were bought.
func PrecisionAtK(recommended, bought []int64, k int) float64 {
	top := truncate(recommended, k)
	if len(top) == 0 {
		return 0
	}
	return float64(hits(top, bought)) / float64(len(top))
}

// RecallAtK is the share of bought items found in the top k recommendations.
func RecallAtK(recommended, bought []int64, k int) float64 {
	boughtSet := toSet(bought)
	if len(boughtSet) == 0 {
		return 0
	}
	topSet := toSet(truncate(recommended, k))
	found := 0
	for id := range boughtSet {
		if _, ok := topSet[id]; ok {
			found++
		}
	}
	return float64(found) / float64(len(boughtSet))
}

// MoneyPrecisionAtK weights precision by price: revenue of the relevant top k
// items over revenue of all top k items.
func MoneyPrecisionAtK(recommended, bought []int64, price func(int64) float64, k int) float64 {
	top := truncate(recommended, k)
	boughtSet := toSet(bought)

	var relevant, total float64
	for _, id := range top {
		p := price(id)
		total += p
		if _, ok := boughtSet[id]; ok {
			relevant += p
		}
	}
	if total == 0 {
		return 0
	}
	return relevant / total
}

// MoneyRecallAtK is revenue of the relevant top k items over revenue of
// everything bought.
func MoneyRecallAtK(recommended, bought []int64, price func(int64) float64, k int) float64 {
	boughtSet := toSet(bought)

	var boughtRevenue float64
	for id := range boughtSet {
		boughtRevenue += price(id)
	}
	if boughtRevenue == 0 {
		return 0
	}

	var relevant float64
	for _, id := range truncate(recommended, k) {
		if _, ok := boughtSet[id]; ok {
			relevant += price(id)
		}
	}
	return relevant / boughtRevenue
}

func hits(top, bought []int64) int {
	boughtSet := toSet(bought)
	n := 0
	for _, id := range top {
		if _, ok := boughtSet[id]; ok {
			n++
		}
	}
	return n
}
