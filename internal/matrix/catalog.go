package matrix

import (
	"strconv"

	"github.com/temcen/basketrec/pkg/models"
)

// CatalogIndex answers category, price and private-label lookups for the
// re-ranker. It is built once per snapshot.
type CatalogIndex struct {
	catalog   models.Catalog
	purchases *PurchaseIndex
}

func NewCatalogIndex(catalog models.Catalog, purchases *PurchaseIndex) *CatalogIndex {
	if catalog == nil {
		catalog = models.Catalog{}
	}
	return &CatalogIndex{catalog: catalog, purchases: purchases}
}

// Category returns the sub-category key of itemID. An item without metadata
// forms a category of its own.
func (c *CatalogIndex) Category(itemID int64) string {
	if item, ok := c.catalog[itemID]; ok && item.SubCategory != "" {
		return item.SubCategory
	}
	return "#" + strconv.FormatInt(itemID, 10)
}

// Price returns the mean observed unit price, falling back to the catalog
// list price. Unknown items cost zero.
func (c *CatalogIndex) Price(itemID int64) float64 {
	if c.purchases != nil {
		if p, ok := c.purchases.MeanPrice(itemID); ok {
			return p
		}
	}
	if item, ok := c.catalog[itemID]; ok {
		return item.Price
	}
	return 0
}

func (c *CatalogIndex) IsPrivateLabel(itemID int64) bool {
	return c.catalog[itemID].PrivateLabel
}

func (c *CatalogIndex) Item(itemID int64) (models.Item, bool) {
	item, ok := c.catalog[itemID]
	return item, ok
}
