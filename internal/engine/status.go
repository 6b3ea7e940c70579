package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/analytics"
	"github.com/DimBertolami/latestbot/internal/ledger"
	"github.com/DimBertolami/latestbot/internal/metrics"
	"github.com/DimBertolami/latestbot/internal/model"
	"github.com/DimBertolami/latestbot/internal/pricing"
)

// Status returns the full engine snapshot. Held symbols are priced first;
// the ledger is then read under a single read lock.
func (e *Engine) Status(ctx context.Context) model.Status {
	cfg := e.cfg.Get()

	quotes := e.resolve(ctx, e.ledger.Holdings())
	snap := e.ledger.Snapshot()
	value, _ := snap.PortfolioValue(e.priceFrom(quotes))
	metrics.PortfolioValue.Set(value.InexactFloat64())

	mode := cfg.Mode
	if mode == "" {
		mode = "paper"
	}
	limit := len(snap.History)
	if n := cfg.MaxHistoryItems; n > 0 {
		limit = n
	}

	return model.Status{
		IsRunning:         e.running.Load(),
		Mode:              mode,
		Balance:           snap.Balance,
		Holdings:          snap.Holdings,
		BaseCurrency:      cfg.BaseCurrency,
		PortfolioValue:    value,
		Performance:       analytics.Compute(snap.History, snap.Samples, value, snap.Initial),
		TradeHistory:      snap.Recent(limit),
		LastPrices:        e.prices.LastPrices(),
		PriceTiers:        e.prices.Tiers(),
		PricesLive:        e.prices.Live(),
		APIKeysConfigured: e.creds.Configured(),
		LastUpdated:       e.now(),
	}
}

// PortfolioValue values the account at current prices.
func (e *Engine) PortfolioValue(ctx context.Context) decimal.Decimal {
	quotes := e.resolve(ctx, e.ledger.Holdings())
	value, _ := e.ledger.PortfolioValue(e.priceFrom(quotes))
	return value
}

// Balance returns the cash balance.
func (e *Engine) Balance() decimal.Decimal {
	return e.ledger.Balance()
}

// Holdings returns a copy of the current holdings.
func (e *Engine) Holdings() map[string]decimal.Decimal {
	return e.ledger.Holdings()
}

// resolve prices every held symbol. No lock is held while querying.
func (e *Engine) resolve(ctx context.Context, holdings map[string]decimal.Decimal) map[string]model.Quote {
	quotes := make(map[string]model.Quote, len(holdings))
	for sym := range holdings {
		if q, err := e.prices.Price(ctx, sym); err == nil {
			quotes[sym] = q
		}
	}
	return quotes
}

// priceFrom values symbols from quotes, falling back to the last
// resolution of any tier.
func (e *Engine) priceFrom(quotes map[string]model.Quote) ledger.PriceFunc {
	return func(sym string) (decimal.Decimal, error) {
		if q, ok := quotes[sym]; ok {
			return q.Price, nil
		}
		if q, ok := e.prices.LastQuote(sym); ok {
			return q.Price, nil
		}
		return decimal.Zero, fmt.Errorf("%w for %s", pricing.ErrNoPriceAvailable, sym)
	}
}

// recordSample appends a valuation sample using quotes plus last known
// prices; it performs no I/O.
func (e *Engine) recordSample(quotes map[string]model.Quote) {
	value, skipped := e.ledger.PortfolioValue(e.priceFrom(quotes))
	if len(skipped) > 0 {
		// An unpriced holding would show up as a false drawdown.
		slog.Debug("balance sample skipped", "unpriced", slices.Sorted(maps.Keys(skipped)))
		return
	}
	e.ledger.Record(model.BalanceSample{Time: e.now(), Value: value})
	metrics.PortfolioValue.Set(value.InexactFloat64())
}
