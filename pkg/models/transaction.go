package models

// SentinelItemID stands in for every item removed by the catalog prefilter.
// It is never eligible for recommendation.
const SentinelItemID int64 = 999999

type Transaction struct {
	UserID     int64   `json:"user_id" db:"household_key"`
	ItemID     int64   `json:"item_id" db:"product_id"`
	Quantity   float64 `json:"quantity" db:"quantity"`
	SalesValue float64 `json:"sales_value" db:"sales_value"`
	WeekNo     int     `json:"week_no" db:"week_no"`
}

// Price returns the unit price paid in this transaction.
func (t Transaction) Price() float64 {
	qty := t.Quantity
	if qty < 1 {
		qty = 1
	}
	return t.SalesValue / qty
}

type Item struct {
	ItemID       int64   `json:"item_id" db:"product_id"`
	Department   string  `json:"department" db:"department"`
	SubCategory  string  `json:"sub_category" db:"sub_commodity_desc"`
	PrivateLabel bool    `json:"private_label"`
	Price        float64 `json:"price,omitempty"`
}

// Catalog is the optional item metadata table keyed by item id.
type Catalog map[int64]Item

// IsSentinel reports whether id is the synthetic "other" item.
func IsSentinel(id int64) bool {
	return id == SentinelItemID
}
