package prefilter

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

// Options are the catalog thresholds. Zero values fall back to the defaults.
type Options struct {
	TakeNPopular      int
	MaxBuyerShare     float64
	MinBuyerShare     float64
	MinDepartmentSize int
	MinPrice          float64
	MaxPrice          float64
	RecentWeeks       int
}

func DefaultOptions() Options {
	return Options{
		TakeNPopular:      5000,
		MaxBuyerShare:     0.6,
		MinBuyerShare:     0.01,
		MinDepartmentSize: 150,
		MinPrice:          1,
		MaxPrice:          45,
		RecentWeeks:       16,
	}
}

func OptionsFromConfig(cfg config.PrefilterConfig) Options {
	opts := Options{
		TakeNPopular:      cfg.TakeNPopular,
		MaxBuyerShare:     cfg.MaxBuyerShare,
		MinBuyerShare:     cfg.MinBuyerShare,
		MinDepartmentSize: cfg.MinDepartmentSize,
		MinPrice:          cfg.MinPrice,
		MaxPrice:          cfg.MaxPrice,
		RecentWeeks:       cfg.RecentWeeks,
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TakeNPopular <= 0 {
		o.TakeNPopular = def.TakeNPopular
	}
	if o.MaxBuyerShare <= 0 {
		o.MaxBuyerShare = def.MaxBuyerShare
	}
	if o.MinBuyerShare <= 0 {
		o.MinBuyerShare = def.MinBuyerShare
	}
	if o.MinDepartmentSize <= 0 {
		o.MinDepartmentSize = def.MinDepartmentSize
	}
	if o.MinPrice <= 0 {
		o.MinPrice = def.MinPrice
	}
	if o.MaxPrice <= 0 {
		o.MaxPrice = def.MaxPrice
	}
	if o.RecentWeeks <= 0 {
		o.RecentWeeks = def.RecentWeeks
	}
	return o
}

// Report counts how many items each rule removed, in rule order.
type Report struct {
	Users           int `json:"users"`
	MaxWeek         int `json:"max_week"`
	InputItems      int `json:"input_items"`
	TooCommon       int `json:"too_common"`
	TooRare         int `json:"too_rare"`
	SmallDepartment int `json:"small_department"`
	PriceOutOfBand  int `json:"price_out_of_band"`
	Stale           int `json:"stale"`
	BeyondTopN      int `json:"beyond_top_n"`
	Kept            int `json:"kept"`
}

// ItemStats are the per-item aggregates every rule is evaluated on.
type ItemStats struct {
	ItemID    int64
	Buyers    int
	MeanPrice float64
	LastWeek  int
	Quantity  float64
}

type Prefilter struct {
	opts   Options
	logger *logrus.Logger
}

func New(opts Options, logger *logrus.Logger) *Prefilter {
	return &Prefilter{
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Options returns the effective thresholds.
func (p *Prefilter) Options() Options { return p.opts }

// Apply restricts the item universe of transactions to the eligible top-N
// items. Excluded items are relabelled to the sentinel id; no transaction is
// dropped. catalog may be nil.
func (p *Prefilter) Apply(transactions []models.Transaction, catalog models.Catalog) ([]models.Transaction, *Report, error) {
	if len(transactions) == 0 {
		return nil, nil, fmt.Errorf("prefilter: empty transaction log: %w", models.ErrData)
	}

	stats, users, maxWeek := Aggregate(transactions)
	report := &Report{
		Users:      users,
		MaxWeek:    maxWeek,
		InputItems: len(stats),
	}

	smallDepartments := p.smallDepartments(catalog)

	survivors := make([]ItemStats, 0, len(stats))
	for _, s := range stats {
		share := float64(s.Buyers) / float64(users)
		switch {
		case share > p.opts.MaxBuyerShare:
			report.TooCommon++
		case share < p.opts.MinBuyerShare:
			report.TooRare++
		case p.inSmallDepartment(s.ItemID, catalog, smallDepartments):
			report.SmallDepartment++
		case s.MeanPrice <= p.opts.MinPrice || s.MeanPrice >= p.opts.MaxPrice:
			report.PriceOutOfBand++
		case s.LastWeek < maxWeek-p.opts.RecentWeeks:
			report.Stale++
		default:
			survivors = append(survivors, s)
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].Quantity != survivors[j].Quantity {
			return survivors[i].Quantity > survivors[j].Quantity
		}
		return survivors[i].ItemID < survivors[j].ItemID
	})

	if len(survivors) > p.opts.TakeNPopular {
		report.BeyondTopN = len(survivors) - p.opts.TakeNPopular
		survivors = survivors[:p.opts.TakeNPopular]
	}
	report.Kept = len(survivors)

	keep := make(map[int64]struct{}, len(survivors))
	for _, s := range survivors {
		keep[s.ItemID] = struct{}{}
	}

	out := make([]models.Transaction, len(transactions))
	for i, t := range transactions {
		if _, ok := keep[t.ItemID]; !ok {
			t.ItemID = models.SentinelItemID
		}
		out[i] = t
	}

	p.logger.WithFields(logrus.Fields{
		"users":             report.Users,
		"input_items":       report.InputItems,
		"too_common":        report.TooCommon,
		"too_rare":          report.TooRare,
		"small_department":  report.SmallDepartment,
		"price_out_of_band": report.PriceOutOfBand,
		"stale":             report.Stale,
		"beyond_top_n":      report.BeyondTopN,
		"kept":              report.Kept,
	}).Info("Catalog prefilter applied")

	return out, report, nil
}

func (p *Prefilter) smallDepartments(catalog models.Catalog) map[string]bool {
	if len(catalog) == 0 {
		return nil
	}

	sizes := make(map[string]int)
	for _, item := range catalog {
		sizes[item.Department]++
	}

	small := make(map[string]bool)
	for dept, n := range sizes {
		if n < p.opts.MinDepartmentSize {
			small[dept] = true
		}
	}
	return small
}

// Items without metadata are never dropped by the department rule.
func (p *Prefilter) inSmallDepartment(itemID int64, catalog models.Catalog, small map[string]bool) bool {
	if len(small) == 0 {
		return false
	}
	item, ok := catalog[itemID]
	if !ok {
		return false
	}
	return small[item.Department]
}

// Aggregate computes per-item statistics over the whole log, together with
// the number of distinct users and the maximum week number. The sentinel
// item is skipped. The result is ordered by item id.
func Aggregate(transactions []models.Transaction) ([]ItemStats, int, int) {
	type acc struct {
		buyers   map[int64]struct{}
		priceSum float64
		rows     int
		lastWeek int
		quantity float64
	}

	users := make(map[int64]struct{})
	byItem := make(map[int64]*acc)
	maxWeek := 0

	for _, t := range transactions {
		users[t.UserID] = struct{}{}
		if t.WeekNo > maxWeek {
			maxWeek = t.WeekNo
		}
		if models.IsSentinel(t.ItemID) {
			continue
		}

		a, ok := byItem[t.ItemID]
		if !ok {
			a = &acc{buyers: make(map[int64]struct{}), lastWeek: t.WeekNo}
			byItem[t.ItemID] = a
		}
		a.buyers[t.UserID] = struct{}{}
		a.priceSum += t.Price()
		a.rows++
		a.quantity += t.Quantity
		if t.WeekNo > a.lastWeek {
			a.lastWeek = t.WeekNo
		}
	}

	stats := make([]ItemStats, 0, len(byItem))
	for id, a := range byItem {
		stats = append(stats, ItemStats{
			ItemID:    id,
			Buyers:    len(a.buyers),
			MeanPrice: a.priceSum / float64(a.rows),
			LastWeek:  a.lastWeek,
			Quantity:  a.quantity,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ItemID < stats[j].ItemID })

	return stats, len(users), maxWeek
}
