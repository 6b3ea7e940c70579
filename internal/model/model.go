// Package model defines the core domain types shared across the paper engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidSide is returned when an order side is neither buy nor sell.
var ErrInvalidSide = errors.New("model: side must be buy or sell")

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", ErrInvalidSide
}

// OrderTypeMarket is the only order type paper mode fills.
const OrderTypeMarket = "market"

// Trade is an immutable record of an executed paper order.
// Once appended to the ledger history it is never modified or deleted.
type Trade struct {
	ID           string          `json:"id" db:"id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Side         Side            `json:"side" db:"side"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Value        decimal.Decimal `json:"value" db:"value"` // quantity × price
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	OrderType    string          `json:"type" db:"order_type"`
}

// SignedValue is the cash effect of the trade: negative for buys, positive for sells.
func (t Trade) SignedValue() decimal.Decimal {
	if t.Side == SideBuy {
		return t.Value.Neg()
	}
	return t.Value
}

// BalanceSample is one point of the portfolio valuation series.
type BalanceSample struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

// Tier identifies which fallback level produced a price.
type Tier string

const (
	TierLive      Tier = "live"
	TierCached    Tier = "cached"
	TierSynthetic Tier = "synthetic"
)

// Quote is a resolved price together with the tier that produced it.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Tier   Tier            `json:"tier"`
	Time   time.Time       `json:"time"`
}

// Performance is derived from the trade history and valuation on every query.
// It is never stored.
type Performance struct {
	TotalTrades int             `json:"total_trades"`
	WinRate     float64         `json:"win_rate"`
	ProfitLoss  decimal.Decimal `json:"profit_loss"`
	ReturnPct   decimal.Decimal `json:"return_pct"`
	SharpeRatio float64         `json:"sharpe_ratio"`
	MaxDrawdown float64         `json:"max_drawdown"`
}

// Status is the full snapshot consumed by the status exporter and HTTP layer.
type Status struct {
	IsRunning         bool                       `json:"is_running"`
	Mode              string                     `json:"mode"`
	Balance           decimal.Decimal            `json:"balance"`
	Holdings          map[string]decimal.Decimal `json:"holdings"`
	BaseCurrency      string                     `json:"base_currency"`
	PortfolioValue    decimal.Decimal            `json:"portfolio_value"`
	Performance       Performance                `json:"performance"`
	TradeHistory      []Trade                    `json:"trade_history"`
	LastPrices        map[string]decimal.Decimal `json:"last_prices"`
	PriceTiers        map[string]Tier            `json:"price_tiers"`
	PricesLive        bool                       `json:"prices_live"`
	APIKeysConfigured bool                       `json:"api_keys_configured"`
	LastUpdated       time.Time                  `json:"last_updated"`
}

// APIStatus reports credential configuration and reachability.
type APIStatus struct {
	KeysConfigured bool `json:"keys_configured"`
	APIWorking     bool `json:"api_working"`
}
