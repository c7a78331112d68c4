package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/pkg/models"
)

// PrivateLabelMode controls how private-label items take part in
// similar-item candidate generation.
type PrivateLabelMode int

const (
	// PrivateLabelAny uses every top purchase as a source and accepts any
	// substitute.
	PrivateLabelAny PrivateLabelMode = iota
	// PrivateLabelSkipSources drops private-label items from the sources.
	PrivateLabelSkipSources
	// PrivateLabelOnly only accepts private-label substitutes, scanning a
	// wider neighbourhood of each source.
	PrivateLabelOnly
)

func (m PrivateLabelMode) String() string {
	switch m {
	case PrivateLabelSkipSources:
		return "skip_sources"
	case PrivateLabelOnly:
		return "only"
	default:
		return "any"
	}
}

func ParsePrivateLabelMode(s string) (PrivateLabelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return PrivateLabelAny, nil
	case "skip_sources", "skip":
		return PrivateLabelSkipSources, nil
	case "only":
		return PrivateLabelOnly, nil
	default:
		return PrivateLabelAny, fmt.Errorf("unknown private label mode %q", s)
	}
}

// CandidateGenerator derives raw candidate lists from a snapshot. It holds
// no state besides its neighbourhood sizes; every call reads the snapshot it
// is given.
type CandidateGenerator struct {
	similarUsers           int
	privateLabelNeighbours int
}

func NewCandidateGenerator(cfg config.RankingConfig) *CandidateGenerator {
	g := &CandidateGenerator{
		similarUsers:           cfg.SimilarUsers,
		privateLabelNeighbours: cfg.PrivateLabelNeighbours,
	}
	if g.similarUsers <= 0 {
		g.similarUsers = 6
	}
	if g.privateLabelNeighbours <= 0 {
		g.privateLabelNeighbours = 20
	}
	return g
}

// SimilarItems returns one substitute per source among the user's top-n
// purchases, in the sources' popularity order. A source without an
// acceptable substitute contributes nothing.
func (g *CandidateGenerator) SimilarItems(snap *ml.Snapshot, userID int64, n int, mode PrivateLabelMode) ([]int64, error) {
	if _, err := snap.IDs().UserRow(userID); err != nil {
		return nil, fmt.Errorf("similar items for user %d: %w", userID, err)
	}
	if n <= 0 {
		return nil, nil
	}

	sources := make([]int64, 0, n)
	for _, item := range snap.Purchases.UserTop(userID, 0) {
		if len(sources) == n {
			break
		}
		if mode == PrivateLabelSkipSources && snap.Catalog.IsPrivateLabel(item) {
			continue
		}
		sources = append(sources, item)
	}

	out := make([]int64, 0, len(sources))
	for _, source := range sources {
		col, err := snap.IDs().ItemColumn(source)
		if err != nil {
			continue
		}

		width := 2
		if mode == PrivateLabelOnly {
			width = g.privateLabelNeighbours
		}

		for _, s := range snap.Global.SimilarItems(col, width) {
			if s.Index == col {
				continue
			}
			item := snap.IDs().ItemID(s.Index)
			if mode == PrivateLabelOnly && !snap.Catalog.IsPrivateLabel(item) {
				continue
			}
			out = append(out, item)
			break
		}
	}
	return out, nil
}

// SimilarUsers returns up to n items bought by the user's nearest neighbours,
// ordered by the neighbours' summed quantity, minus whatever the personal
// model would already surface for the user.
func (g *CandidateGenerator) SimilarUsers(snap *ml.Snapshot, userID int64, n int) ([]int64, error) {
	row, err := snap.IDs().UserRow(userID)
	if err != nil {
		return nil, fmt.Errorf("similar users for user %d: %w", userID, err)
	}
	if n <= 0 {
		return nil, nil
	}

	own := make(map[int64]struct{})
	for _, s := range PersonalTop(snap, row, n) {
		own[s] = struct{}{}
	}

	totals := make(map[int64]float64)
	for _, s := range snap.Global.SimilarUsers(row, g.similarUsers) {
		if s.Index == row {
			continue
		}
		for _, iq := range snap.Purchases.UserQuantities(snap.IDs().UserID(s.Index)) {
			totals[iq.ItemID] += iq.Quantity
		}
	}

	ranked := make([]int64, 0, len(totals))
	for item := range totals {
		if _, skip := own[item]; skip {
			continue
		}
		ranked = append(ranked, item)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if totals[ranked[i]] != totals[ranked[j]] {
			return totals[ranked[i]] > totals[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// PersonalTop returns the item ids the personal model ranks highest for the
// user at row, known items included.
func PersonalTop(snap *ml.Snapshot, row, n int) []int64 {
	scored := snap.Personal.Recommend(row, snap.Matrix.UserVector(row), n, false)
	out := make([]int64, 0, len(scored))
	for _, s := range scored {
		item := snap.IDs().ItemID(s.Index)
		if models.IsSentinel(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}
