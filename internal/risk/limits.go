// Package risk applies the strategy_settings guards to signal-driven orders:
// how many distinct symbols may be held at once and how large a new
// position is. Manual orders bypass it and are bound only by the ledger.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/config"
)

// ErrMaxPositions is returned when opening a new symbol would exceed
// MaxPositions distinct holdings.
var ErrMaxPositions = errors.New("risk: maximum open positions reached")

// ErrSizeTooSmall is returned when sizing yields no tradable quantity.
var ErrSizeTooSmall = errors.New("risk: position size rounds to zero")

// QuantityPlaces is the precision of sized quantities.
const QuantityPlaces = 8

// Limits guards entries made by the evaluation loop.
type Limits struct {
	// MaxPositions caps the number of distinct symbols held. Zero disables it.
	MaxPositions int

	// PositionSize is the fraction of the cash balance committed per entry.
	PositionSize decimal.Decimal
}

// NewLimits builds limits from strategy settings. A position size outside
// (0, 1] is clamped to 1.
func NewLimits(s config.StrategySettings) *Limits {
	size := decimal.NewFromFloat(s.PositionSize)
	if !size.IsPositive() || size.GreaterThan(decimal.NewFromInt(1)) {
		size = decimal.NewFromInt(1)
	}
	maxPos := s.MaxPositions
	if maxPos < 0 {
		maxPos = 0
	}
	return &Limits{MaxPositions: maxPos, PositionSize: size}
}

// CheckEntry validates a buy of symbol against the current holdings.
// Adding to a symbol already held never counts as a new position.
func (l *Limits) CheckEntry(holdings map[string]decimal.Decimal, symbol string) error {
	if l.MaxPositions == 0 {
		return nil
	}
	if q, ok := holdings[symbol]; ok && q.IsPositive() {
		return nil
	}

	open := 0
	for _, q := range holdings {
		if q.IsPositive() {
			open++
		}
	}
	if open >= l.MaxPositions {
		return ErrMaxPositions
	}
	return nil
}

// Size is balance × PositionSize / price, truncated to QuantityPlaces so
// the cost never exceeds the committed cash.
func (l *Limits) Size(balance, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() || !balance.IsPositive() {
		return decimal.Zero, ErrSizeTooSmall
	}
	qty := balance.Mul(l.PositionSize).Div(price).Truncate(QuantityPlaces)
	if !qty.IsPositive() {
		return decimal.Zero, ErrSizeTooSmall
	}
	return qty, nil
}
