package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/ledger"
	"github.com/DimBertolami/latestbot/internal/metrics"
	"github.com/DimBertolami/latestbot/internal/model"
	"github.com/DimBertolami/latestbot/internal/pricing"
	"github.com/DimBertolami/latestbot/internal/risk"
	"github.com/DimBertolami/latestbot/internal/symbol"
)

// PlaceOrder fills a market order at the current price. Every accepted
// order fills completely; a rejected one leaves the ledger untouched.
func (e *Engine) PlaceOrder(ctx context.Context, sym, side string, quantity decimal.Decimal) (bool, string) {
	t, err := e.PlaceOrderErr(ctx, sym, side, quantity)
	if err != nil {
		return false, rejectionMessage(err, sym)
	}
	return true, acceptMessage(t)
}

// Buy places a buy order.
func (e *Engine) Buy(ctx context.Context, sym string, quantity decimal.Decimal) (bool, string) {
	return e.PlaceOrder(ctx, sym, string(model.SideBuy), quantity)
}

// Sell places a sell order.
func (e *Engine) Sell(ctx context.Context, sym string, quantity decimal.Decimal) (bool, string) {
	return e.PlaceOrder(ctx, sym, string(model.SideSell), quantity)
}

// PlaceOrderErr is PlaceOrder returning the committed trade or a typed error.
func (e *Engine) PlaceOrderErr(ctx context.Context, sym, side string, quantity decimal.Decimal) (model.Trade, error) {
	if !e.running.Load() {
		return e.reject(ErrNotRunning, "not_running")
	}
	if !quantity.IsPositive() {
		return e.reject(ErrInvalidQuantity, "invalid_quantity")
	}
	sym = symbol.Normalize(sym)
	if err := symbol.Validate(sym); err != nil {
		return e.reject(err, "invalid_symbol")
	}
	s, err := model.ParseSide(side)
	if err != nil {
		return e.reject(err, "invalid_side")
	}
	return e.execute(ctx, sym, s, quantity, nil)
}

// execute resolves the price unless quote is given, then commits to the
// ledger and the journal under the mutation lock.
func (e *Engine) execute(ctx context.Context, sym string, side model.Side, quantity decimal.Decimal, quote *model.Quote) (model.Trade, error) {
	start := time.Now()

	if quote == nil {
		q, err := e.prices.Price(ctx, sym)
		if err != nil {
			return e.reject(err, "no_price")
		}
		quote = &q
	}

	e.mu.Lock()
	if !e.running.Load() {
		e.mu.Unlock()
		return e.reject(ErrNotRunning, "not_running")
	}
	t, err := e.ledger.Apply(model.Trade{
		ID:        uuid.New().String(),
		Timestamp: e.now(),
		Symbol:    sym,
		Side:      side,
		Quantity:  quantity,
		Price:     quote.Price,
		OrderType: model.OrderTypeMarket,
	})
	if err != nil {
		e.mu.Unlock()
		return e.reject(err, reason(err))
	}
	// The journal must see trades in ledger order and never after a Reset.
	if err := e.journal.InsertTrade(ctx, &t); err != nil {
		slog.Error("failed to journal trade", "trade_id", t.ID, "err", err)
	}
	e.mu.Unlock()

	e.recordSample(nil)

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	slog.Info("paper trade executed",
		"trade_id", t.ID,
		"symbol", t.Symbol,
		"side", string(t.Side),
		"qty", t.Quantity.String(),
		"price", t.Price.String(),
		"price_tier", string(quote.Tier),
		"balance_after", t.BalanceAfter.String(),
	)
	e.notify(Event{Type: EventTradeExecuted, Message: acceptMessage(t), Trade: &t, Time: t.Timestamp})
	return t, nil
}

func (e *Engine) reject(err error, why string) (model.Trade, error) {
	metrics.OrderRejections.WithLabelValues(why).Inc()
	slog.Warn("order rejected", "reason", why, "err", err)
	return model.Trade{}, err
}

func reason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, risk.ErrMaxPositions):
		return "max_positions"
	}
	return "invalid_trade"
}

func acceptMessage(t model.Trade) string {
	verb := "Bought"
	if t.Side == model.SideSell {
		verb = "Sold"
	}
	return fmt.Sprintf("%s %s %s at %s", verb, t.Quantity, t.Symbol, t.Price)
}

func rejectionMessage(err error, sym string) string {
	switch {
	case errors.Is(err, ErrNotRunning):
		return "Trading is not running"
	case errors.Is(err, ErrInvalidQuantity):
		return "Quantity must be positive"
	case errors.Is(err, symbol.ErrInvalidSymbol):
		return fmt.Sprintf("Invalid symbol: %q", sym)
	case errors.Is(err, model.ErrInvalidSide):
		return "Side must be buy or sell"
	case errors.Is(err, pricing.ErrNoPriceAvailable):
		return fmt.Sprintf("No price available for %s", symbol.Normalize(sym))
	}
	return err.Error()
}
