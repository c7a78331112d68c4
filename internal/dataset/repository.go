package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/pkg/models"
)

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const (
	transactionsQuery = `
		SELECT household_key, product_id, quantity, sales_value, week_no
		FROM transactions
		WHERE week_no >= $1
		ORDER BY week_no, household_key`

	productsQuery = `
		SELECT product_id,
			COALESCE(department, ''),
			COALESCE(brand, ''),
			COALESCE(sub_commodity_desc, '')
		FROM products`
)

// Repository loads the transaction log and item metadata from PostgreSQL.
type Repository struct {
	db       Querier
	fromWeek int
	logger   *logrus.Logger
}

// NewRepository reads every transaction from fromWeek on; zero loads the
// whole log.
func NewRepository(db Querier, fromWeek int, logger *logrus.Logger) *Repository {
	return &Repository{db: db, fromWeek: fromWeek, logger: logger}
}

func (r *Repository) Transactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, transactionsQuery, r.fromWeek)
	if err != nil {
		return nil, fmt.Errorf("transactions query failed: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.UserID, &tx.ItemID, &tx.Quantity, &tx.SalesValue, &tx.WeekNo); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txs, nil
}

func (r *Repository) Catalog(ctx context.Context) (models.Catalog, error) {
	rows, err := r.db.Query(ctx, productsQuery)
	if err != nil {
		return nil, fmt.Errorf("products query failed: %w", err)
	}
	defer rows.Close()

	catalog := make(models.Catalog)
	for rows.Next() {
		var (
			id                         int64
			department, brand, subDesc string
		)
		if err := rows.Scan(&id, &department, &brand, &subDesc); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		catalog[id] = newItem(id, department, brand, subDesc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	return catalog, nil
}

// Load implements the recommender's data source.
func (r *Repository) Load(ctx context.Context) ([]models.Transaction, models.Catalog, error) {
	start := time.Now()

	txs, err := r.Transactions(ctx)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := r.Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"transactions": len(txs),
		"items":        len(catalog),
		"from_week":    r.fromWeek,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Training data loaded from PostgreSQL")

	return txs, catalog, nil
}

func newItem(id int64, department, brand, subDesc string) models.Item {
	return models.Item{
		ItemID:       id,
		Department:   NormalizeLabel(department),
		SubCategory:  NormalizeLabel(subDesc),
		PrivateLabel: IsPrivateLabel(brand),
	}
}
