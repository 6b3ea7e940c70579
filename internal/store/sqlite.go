package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/DimBertolami/latestbot/internal/model"
)

const sqliteSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS paper_trades (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT NOT NULL UNIQUE,
    timestamp     TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    side          TEXT NOT NULL,
    quantity      TEXT NOT NULL,
    price         TEXT NOT NULL,
    value         TEXT NOT NULL,
    balance_after TEXT NOT NULL,
    order_type    TEXT NOT NULL
);`

// SQLiteStore implements Store on a local SQLite file. Decimals and
// timestamps are stored as text so they round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path and applies
// the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps ":memory:" on one connection
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paper_trades (id, timestamp, symbol, side, quantity, price, value, balance_after, order_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Timestamp.UTC().Format(time.RFC3339Nano), t.Symbol, string(t.Side),
		t.Quantity.String(), t.Price.String(), t.Value.String(), t.BalanceAfter.String(),
		t.OrderType,
	)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, symbol, side, quantity, price, value, balance_after, order_type
		 FROM (SELECT * FROM paper_trades ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var ts, side, qtyS, priceS, valueS, balS string
		if err := rows.Scan(&t.ID, &ts, &t.Symbol, &side,
			&qtyS, &priceS, &valueS, &balS, &t.OrderType); err != nil {
			return nil, err
		}
		if t.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("trade %s timestamp: %w", t.ID, err)
		}
		t.Side = model.Side(side)
		if t.Quantity, err = decimal.NewFromString(qtyS); err != nil {
			return nil, fmt.Errorf("trade %s quantity: %w", t.ID, err)
		}
		if t.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		t.Value, _ = decimal.NewFromString(valueS)
		t.BalanceAfter, _ = decimal.NewFromString(balS)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) ClearTrades(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM paper_trades`)
	return err
}
