package matrix

import (
	"sort"

	"github.com/temcen/basketrec/pkg/models"
)

// ItemQuantity pairs an item with a summed quantity.
type ItemQuantity struct {
	ItemID   int64
	Quantity float64
}

// PurchaseIndex holds the ranked purchase histories derived from the
// prefiltered log. Lists are sorted by quantity, descending, with ties broken
// by the smaller item id. The sentinel item is excluded everywhere.
type PurchaseIndex struct {
	byUser  map[int64][]ItemQuantity
	overall []ItemQuantity
	prices  map[int64]float64
}

func NewPurchaseIndex(transactions []models.Transaction) *PurchaseIndex {
	type userItem struct {
		user int64
		item int64
	}

	perUser := make(map[userItem]float64)
	perItem := make(map[int64]float64)
	priceSum := make(map[int64]float64)
	priceRows := make(map[int64]int)

	for _, t := range transactions {
		if models.IsSentinel(t.ItemID) {
			continue
		}
		perUser[userItem{t.UserID, t.ItemID}] += t.Quantity
		perItem[t.ItemID] += t.Quantity
		priceSum[t.ItemID] += t.Price()
		priceRows[t.ItemID]++
	}

	idx := &PurchaseIndex{
		byUser: make(map[int64][]ItemQuantity),
		prices: make(map[int64]float64, len(priceSum)),
	}
	for k, q := range perUser {
		idx.byUser[k.user] = append(idx.byUser[k.user], ItemQuantity{ItemID: k.item, Quantity: q})
	}
	for user := range idx.byUser {
		sortByQuantity(idx.byUser[user])
	}
	for item, q := range perItem {
		idx.overall = append(idx.overall, ItemQuantity{ItemID: item, Quantity: q})
	}
	sortByQuantity(idx.overall)

	for item, sum := range priceSum {
		idx.prices[item] = sum / float64(priceRows[item])
	}

	return idx
}

func sortByQuantity(list []ItemQuantity) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Quantity != list[j].Quantity {
			return list[i].Quantity > list[j].Quantity
		}
		return list[i].ItemID < list[j].ItemID
	})
}

// UserTop returns up to n of the user's most purchased items; n <= 0 means all.
func (p *PurchaseIndex) UserTop(userID int64, n int) []int64 {
	return head(p.byUser[userID], n)
}

// UserQuantities returns the user's ranked history with quantities.
func (p *PurchaseIndex) UserQuantities(userID int64) []ItemQuantity {
	return append([]ItemQuantity(nil), p.byUser[userID]...)
}

// OverallTop returns up to n of the most purchased items across all users.
func (p *PurchaseIndex) OverallTop(n int) []int64 {
	return head(p.overall, n)
}

// MeanPrice returns the mean unit price observed for itemID.
func (p *PurchaseIndex) MeanPrice(itemID int64) (float64, bool) {
	price, ok := p.prices[itemID]
	return price, ok
}

// CostlyTop returns up to n items whose mean unit price exceeds minPrice,
// in overall popularity order.
func (p *PurchaseIndex) CostlyTop(minPrice float64, n int) []int64 {
	var out []int64
	for _, iq := range p.overall {
		if n > 0 && len(out) >= n {
			break
		}
		if p.prices[iq.ItemID] > minPrice {
			out = append(out, iq.ItemID)
		}
	}
	return out
}

func head(list []ItemQuantity, n int) []int64 {
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = list[i].ItemID
	}
	return out
}
