package evaluation

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Case is one user's recommendation list and the items they went on to buy.
type Case struct {
	UserID      int64
	Recommended []int64
	Bought      []int64
}

// Report holds metric averages over every evaluated user.
type Report struct {
	Users          int     `json:"users"`
	K              int     `json:"k"`
	HitRate        float64 `json:"hit_rate"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	MoneyPrecision float64 `json:"money_precision"`
	MoneyRecall    float64 `json:"money_recall"`
}

// Recommend produces a list for one user.
type Recommend func(ctx context.Context, userID int64, k int) ([]int64, error)

// GroupBought collects the distinct items each user bought, in first
// purchase order.
func GroupBought(pairs [][2]int64) map[int64][]int64 {
	out := make(map[int64][]int64)
	seen := make(map[[2]int64]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out[p[0]] = append(out[p[0]], p[1])
	}
	return out
}

// BuildCases asks recommend for a top-k list for every user in bought,
// running up to workers calls at once. Cases come back ordered by user id.
func BuildCases(ctx context.Context, bought map[int64][]int64, recommend Recommend, k, workers int) ([]Case, error) {
	if workers <= 0 {
		workers = 1
	}

	users := make([]int64, 0, len(bought))
	for u := range bought {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	cases := make([]Case, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range users {
		g.Go(func() error {
			recs, err := recommend(gctx, u, k)
			if err != nil {
				return fmt.Errorf("user %d: %w", u, err)
			}
			cases[i] = Case{UserID: u, Recommended: recs, Bought: bought[u]}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cases, nil
}

// Evaluate averages every metric at k over cases. price is used by the money
// metrics.
func Evaluate(cases []Case, price func(int64) float64, k int) Report {
	report := Report{Users: len(cases), K: k}
	if len(cases) == 0 {
		return report
	}

	for _, c := range cases {
		report.HitRate += HitRateAtK(c.Recommended, c.Bought, k)
		report.Precision += PrecisionAtK(c.Recommended, c.Bought, k)
		report.Recall += RecallAtK(c.Recommended, c.Bought, k)
		report.MoneyPrecision += MoneyPrecisionAtK(c.Recommended, c.Bought, price, k)
		report.MoneyRecall += MoneyRecallAtK(c.Recommended, c.Bought, price, k)
	}

	n := float64(len(cases))
	report.HitRate /= n
	report.Precision /= n
	report.Recall /= n
	report.MoneyPrecision /= n
	report.MoneyRecall /= n
	return report
}
