package services

import (
	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

// ItemIndex resolves the per-item facts the re-ranker needs.
type ItemIndex interface {
	Category(itemID int64) string
	Price(itemID int64) float64
}

// RerankInput carries every pool the re-ranker may draw from.
type RerankInput struct {
	Candidates  []int64
	PersonalTop []int64
	CostlyPool  []int64
	GlobalTop   []int64
	N           int
}

type RankedItem struct {
	ItemID int64  `json:"item_id"`
	Source string `json:"source"`
}

// RerankResult is the final list. Short is set when the pools together could
// not supply N category-distinct items.
type RerankResult struct {
	Items []RankedItem `json:"items"`
	Short bool         `json:"short"`
}

func (r RerankResult) ItemIDs() []int64 {
	ids := make([]int64, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ItemID
	}
	return ids
}

// Reranker turns raw candidates into a fixed-size list with one item per
// sub-category, opening with a high-margin item.
type Reranker struct {
	costlyPrice     float64
	personalTarget  int
	candidateTarget int
}

func NewReranker(cfg config.RankingConfig) *Reranker {
	r := &Reranker{
		costlyPrice:     cfg.CostlyPrice,
		personalTarget:  cfg.PersonalTargetLength,
		candidateTarget: cfg.CandidateTargetLength,
	}
	if r.costlyPrice <= 0 {
		r.costlyPrice = 7
	}
	if r.personalTarget <= 0 {
		r.personalTarget = 3
	}
	if r.candidateTarget <= 0 {
		r.candidateTarget = 5
	}
	return r
}

// CostlyPrice is the unit price above which an item opens the list.
func (r *Reranker) CostlyPrice() float64 { return r.costlyPrice }

// Dedupe removes repeated ids, keeping first occurrences in order.
func Dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type rerankState struct {
	index      ItemIndex
	items      []RankedItem
	usedItems  map[int64]struct{}
	usedGroups map[string]struct{}
}

func (s *rerankState) admit(item int64, source string) bool {
	if models.IsSentinel(item) {
		return false
	}
	if _, ok := s.usedItems[item]; ok {
		return false
	}
	group := s.index.Category(item)
	if _, ok := s.usedGroups[group]; ok {
		return false
	}
	s.usedItems[item] = struct{}{}
	s.usedGroups[group] = struct{}{}
	s.items = append(s.items, RankedItem{ItemID: item, Source: source})
	return true
}

// fill scans pool until the list reaches target, admitting items that pass
// accept.
func (s *rerankState) fill(pool []int64, target int, source string, accept func(int64) bool) {
	for _, item := range pool {
		if len(s.items) >= target {
			return
		}
		if accept != nil && !accept(item) {
			continue
		}
		s.admit(item, source)
	}
}

func (r *Reranker) Rerank(index ItemIndex, in RerankInput) RerankResult {
	if in.N <= 0 {
		return RerankResult{}
	}

	candidates := Dedupe(in.Candidates)
	state := &rerankState{
		index:      index,
		usedItems:  make(map[int64]struct{}),
		usedGroups: make(map[string]struct{}),
	}

	// A: one high-margin opener.
	opener := clamp(1, in.N)
	state.fill(candidates, opener, models.SourceCostly, func(item int64) bool {
		return index.Price(item) > r.costlyPrice
	})
	state.fill(in.CostlyPool, opener, models.SourceCostly, nil)

	// B: what the user already buys.
	state.fill(in.PersonalTop, clamp(r.personalTarget, in.N), models.SourcePersonal, nil)

	// C: novel candidates only.
	bought := make(map[int64]struct{}, len(in.PersonalTop))
	for _, item := range in.PersonalTop {
		bought[item] = struct{}{}
	}
	state.fill(candidates, clamp(r.candidateTarget, in.N), models.SourceCandidate, func(item int64) bool {
		_, ok := bought[item]
		return !ok
	})

	// D: global popularity.
	state.fill(in.GlobalTop, in.N, models.SourceGlobal, nil)

	// E: any pool, item and category constraints only.
	for _, pool := range [][]int64{candidates, in.PersonalTop, in.CostlyPool, in.GlobalTop} {
		state.fill(pool, in.N, models.SourceSweep, nil)
	}

	return RerankResult{
		Items: state.items,
		Short: len(state.items) < in.N,
	}
}

func clamp(target, n int) int {
	if target > n {
		return n
	}
	return target
}
