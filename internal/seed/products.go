package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// LoadProducts ingests the CSV into an empty products table. A populated table is left alone.
// Columns: barcode, name, price, cost_price, stock, min_stock, category, emoji.
func LoadProducts(db *sqlx.DB, csvPath string, logger *zap.Logger) error {
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM products`); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open product catalog %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("read product header: %w", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("start product seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO products (barcode, name, price, cost_price, stock, min_stock, category, emoji) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare product insert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("unable to read product row", zap.Int("line", line), zap.Error(err))
			continue
		}
		row, err := parseProduct(record)
		if err != nil {
			logger.Warn("skipping product row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if _, err := stmt.Exec(row.barcode, row.name, row.price, row.costPrice, row.stock, row.minStock, row.category, row.emoji); err != nil {
			logger.Warn("unable to insert product", zap.String("name", row.name), zap.Error(err))
			continue
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit product seed: %w", err)
	}
	logger.Info("seeded product catalog", zap.Int("rows", rows))
	return nil
}

type productRow struct {
	barcode   *string
	name      string
	price     int64
	costPrice int64
	stock     int64
	minStock  int64
	category  string
	emoji     string
}

func parseProduct(record []string) (productRow, error) {
	if len(record) < 5 {
		return productRow{}, fmt.Errorf("expected at least 5 columns, got %d", len(record))
	}
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	row := productRow{name: field(1), category: field(6), emoji: field(7), minStock: 5}
	if row.name == "" {
		return productRow{}, errors.New("name is required")
	}
	if code := field(0); code != "" {
		row.barcode = &code
	}
	if row.category == "" {
		row.category = "Makanan"
	}
	if row.emoji == "" {
		row.emoji = "🍽️"
	}

	var err error
	if row.price, err = parseAmount(field(2)); err != nil {
		return productRow{}, fmt.Errorf("price: %w", err)
	}
	if row.costPrice, err = parseAmount(field(3)); err != nil {
		return productRow{}, fmt.Errorf("cost_price: %w", err)
	}
	if row.stock, err = parseAmount(field(4)); err != nil {
		return productRow{}, fmt.Errorf("stock: %w", err)
	}
	if v := field(5); v != "" {
		if row.minStock, err = parseAmount(v); err != nil {
			return productRow{}, fmt.Errorf("min_stock: %w", err)
		}
	}
	return row, nil
}

func parseAmount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
