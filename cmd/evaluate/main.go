package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/temcen/basketrec/internal/app"
	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/internal/dataset"
	"github.com/temcen/basketrec/internal/evaluation"
	"github.com/temcen/basketrec/internal/ml"
	"github.com/temcen/basketrec/internal/services"
	"github.com/temcen/basketrec/pkg/models"
)

func main() {
	var (
		transactionsPath = flag.String("transactions", "data/transaction_data.csv", "transaction log CSV")
		productsPath     = flag.String("products", "data/product.csv", "product metadata CSV, empty to skip")
		holdoutWeeks     = flag.Int("holdout-weeks", 3, "trailing weeks held out as the test set")
		k                = flag.Int("k", 5, "list length to evaluate")
		workers          = flag.Int("workers", 8, "concurrent users ranked at once")
		useConfig        = flag.Bool("config", false, "read tuning from config.yaml and the environment instead of defaults")
	)
	flag.Parse()

	cfg := config.Default()
	if *useConfig {
		loaded, err := config.Load()
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load configuration")
		}
		cfg = loaded
	}
	logger := app.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := dataset.NewCSVSource(*transactionsPath, *productsPath, logger)
	txs, catalog, err := source.Load(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load dataset")
	}

	train, test := dataset.SplitByWeek(txs, *holdoutWeeks)
	logger.WithFields(logrus.Fields{
		"train":         len(train),
		"test":          len(test),
		"holdout_weeks": *holdoutWeeks,
	}).Info("Dataset split")

	registry := services.NewRegistry(cfg, logger)
	snap, err := registry.Train(ctx, ml.TrainInput{
		Transactions: train,
		Catalog:      catalog,
		Reason:       "offline evaluation",
	})
	if err != nil {
		logger.WithError(err).Fatal("Training failed")
	}

	recommender, err := services.NewRecommender(registry, nil, nil, nil, nil, cfg.Ranking, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build recommender")
	}

	pairs := make([][2]int64, len(test))
	for i, tx := range test {
		pairs[i] = [2]int64{tx.UserID, tx.ItemID}
	}

	cases, err := evaluation.BuildCases(ctx, evaluation.GroupBought(pairs), func(_ context.Context, userID int64, n int) ([]int64, error) {
		result, _, err := recommender.Rank(snap, userID, n)
		if err != nil {
			return nil, err
		}
		return result.ItemIDs(), nil
	}, *k, *workers)
	if err != nil {
		logger.WithError(err).Fatal("Failed to rank test users")
	}

	report := evaluation.Evaluate(cases, testPrices(test, snap), *k)

	logger.WithFields(logrus.Fields{
		"users":           report.Users,
		"hit_rate":        report.HitRate,
		"precision":       report.Precision,
		"recall":          report.Recall,
		"money_precision": report.MoneyPrecision,
		"money_recall":    report.MoneyRecall,
		"k":               *k,
	}).Info("Evaluation finished")

	if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
		logger.WithError(err).Fatal("Failed to write report")
	}
}

// testPrices prices items by their mean unit price in the held-out weeks,
// falling back to the training snapshot for items never bought there.
func testPrices(test []models.Transaction, snap *ml.Snapshot) func(int64) float64 {
	sum := make(map[int64]float64)
	n := make(map[int64]float64)
	for _, tx := range test {
		sum[tx.ItemID] += tx.Price()
		n[tx.ItemID]++
	}
	return func(itemID int64) float64 {
		if c := n[itemID]; c > 0 {
			return sum[itemID] / c
		}
		return snap.Catalog.Price(itemID)
	}
}
