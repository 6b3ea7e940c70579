package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS paper_trades (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	timestamp     TIMESTAMPTZ NOT NULL,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	quantity      NUMERIC NOT NULL,
	price         NUMERIC NOT NULL,
	value         NUMERIC NOT NULL,
	balance_after NUMERIC NOT NULL,
	order_type    TEXT NOT NULL
)`

// PostgresStore implements Store using PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the journal table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate paper_trades: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO paper_trades (id, timestamp, symbol, side, quantity, price, value, balance_after, order_type)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, t.Timestamp, t.Symbol, string(t.Side),
		t.Quantity.String(), t.Price.String(), t.Value.String(), t.BalanceAfter.String(),
		t.OrderType,
	)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	// LIMIT NULL is no limit in PostgreSQL.
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, symbol, side,
		        quantity::TEXT, price::TEXT, value::TEXT, balance_after::TEXT, order_type
		 FROM (SELECT * FROM paper_trades ORDER BY seq DESC LIMIT $1) recent
		 ORDER BY seq`, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) ClearTrades(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE paper_trades`)
	return err
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

var _ rowScanner = (pgx.Rows)(nil)

func scanTrades(rows rowScanner) ([]model.Trade, error) {
	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var side, qtyS, priceS, valueS, balS string

		if err := rows.Scan(&t.ID, &t.Timestamp, &t.Symbol, &side,
			&qtyS, &priceS, &valueS, &balS, &t.OrderType); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		var err error
		if t.Quantity, err = decimal.NewFromString(qtyS); err != nil {
			return nil, fmt.Errorf("trade %s quantity: %w", t.ID, err)
		}
		if t.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		t.Value, _ = decimal.NewFromString(valueS)
		t.BalanceAfter, _ = decimal.NewFromString(balS)
		t.Timestamp = t.Timestamp.UTC()

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
