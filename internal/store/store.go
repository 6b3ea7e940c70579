// Package store defines the persistence interface for the trade journal.
// Implementations include PostgreSQL and SQLite (durable), Redis (read-through
// cache over either), and in-memory (for testing and development).
package store

import (
	"context"

	"github.com/DimBertolami/latestbot/internal/model"
)

// Store is the trade journal. Trades are appended in execution order and
// never modified; the whole journal is cleared on account reset.
type Store interface {
	// InsertTrade appends an executed trade.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// ListTrades returns the latest limit trades, oldest first.
	// A limit of zero or less returns the whole journal.
	ListTrades(ctx context.Context, limit int) ([]model.Trade, error)

	// ClearTrades removes every trade.
	ClearTrades(ctx context.Context) error
}

// latest trims an execution-ordered slice to its last limit elements.
func latest(trades []model.Trade, limit int) []model.Trade {
	if limit > 0 && len(trades) > limit {
		return trades[len(trades)-limit:]
	}
	return trades
}
