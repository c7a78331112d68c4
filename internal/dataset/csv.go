package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/pkg/models"
)

var (
	transactionColumns = []string{"household_key", "product_id", "quantity", "sales_value", "week_no"}
	productColumns     = []string{"product_id", "department", "brand", "sub_commodity_desc"}
)

// CSVSource reads the retail dataset from its two export files.
type CSVSource struct {
	transactionsPath string
	productsPath     string
	logger           *logrus.Logger
}

// NewCSVSource reads transactions from transactionsPath. productsPath may be
// empty, in which case the catalog is empty.
func NewCSVSource(transactionsPath, productsPath string, logger *logrus.Logger) *CSVSource {
	return &CSVSource{
		transactionsPath: transactionsPath,
		productsPath:     productsPath,
		logger:           logger,
	}
}

func (s *CSVSource) Load(ctx context.Context) ([]models.Transaction, models.Catalog, error) {
	txs, err := readFile(s.transactionsPath, ReadTransactions)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	catalog := models.Catalog{}
	if s.productsPath != "" {
		catalog, err = readFile(s.productsPath, ReadCatalog)
		if err != nil {
			return nil, nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"transactions": len(txs),
		"items":        len(catalog),
		"path":         s.transactionsPath,
	}).Info("Training data loaded from CSV")

	return txs, catalog, nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ReadTransactions parses a transaction export. Column order is free; the
// header must name household_key, product_id, quantity, sales_value and
// week_no (case-insensitive). Other columns are ignored.
func ReadTransactions(r io.Reader) ([]models.Transaction, error) {
	reader, cols, err := openCSV(r, transactionColumns)
	if err != nil {
		return nil, err
	}

	var txs []models.Transaction
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %v: %w", err, models.ErrData)
		}
		line, _ := reader.FieldPos(0)

		tx, err := parseTransaction(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, models.ErrData)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func parseTransaction(record []string, cols map[string]int) (models.Transaction, error) {
	var tx models.Transaction
	var err error

	if tx.UserID, err = strconv.ParseInt(field(record, cols, "household_key"), 10, 64); err != nil {
		return tx, fmt.Errorf("household_key: %w", err)
	}
	if tx.ItemID, err = strconv.ParseInt(field(record, cols, "product_id"), 10, 64); err != nil {
		return tx, fmt.Errorf("product_id: %w", err)
	}
	if tx.Quantity, err = strconv.ParseFloat(field(record, cols, "quantity"), 64); err != nil {
		return tx, fmt.Errorf("quantity: %w", err)
	}
	if tx.SalesValue, err = strconv.ParseFloat(field(record, cols, "sales_value"), 64); err != nil {
		return tx, fmt.Errorf("sales_value: %w", err)
	}
	if tx.WeekNo, err = strconv.Atoi(field(record, cols, "week_no")); err != nil {
		return tx, fmt.Errorf("week_no: %w", err)
	}
	return tx, nil
}

// ReadCatalog parses a product export into item metadata.
func ReadCatalog(r io.Reader) (models.Catalog, error) {
	reader, cols, err := openCSV(r, productColumns)
	if err != nil {
		return nil, err
	}

	catalog := make(models.Catalog)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %v: %w", err, models.ErrData)
		}
		line, _ := reader.FieldPos(0)

		id, err := strconv.ParseInt(field(record, cols, "product_id"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: product_id: %v: %w", line, err, models.ErrData)
		}
		catalog[id] = newItem(id,
			field(record, cols, "department"),
			field(record, cols, "brand"),
			field(record, cols, "sub_commodity_desc"),
		)
	}

	return catalog, nil
}

func openCSV(r io.Reader, required []string) (*csv.Reader, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("empty csv: %w", models.ErrData)
		}
		return nil, nil, fmt.Errorf("failed to read csv header: %v: %w", err, models.ErrData)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q: %w", name, models.ErrData)
		}
	}
	reader.FieldsPerRecord = len(header)

	return reader, cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	return strings.TrimSpace(record[cols[name]])
}
