// Package strategy turns price observations into trade intents for the
// evaluation loop.
package strategy

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/config"
	"github.com/DimBertolami/latestbot/internal/model"
)

// Intent is a proposed order. A zero Quantity on a buy leaves sizing to the
// risk limits.
type Intent struct {
	Side     model.Side
	Quantity decimal.Decimal
	Reason   string
}

// Signal decides whether to trade symbol at price given the quantity held.
type Signal interface {
	Evaluate(symbol string, price, held decimal.Decimal) (Intent, bool)
}

type track struct {
	ref   decimal.Decimal // lowest price since the last exit
	last  decimal.Decimal
	entry decimal.Decimal // zero while flat
	peak  decimal.Decimal
}

// Threshold is a percent-move signal configured by strategy_settings.
// Flat, it buys once price rises BuyThreshold percent off its low. Holding,
// it sells the whole position on stop loss, take profit, a single-step
// drop of SellThreshold percent, or the trailing stop.
type Threshold struct {
	settings config.StrategySettings

	mu     sync.Mutex
	tracks map[string]*track
}

// NewThreshold creates a signal from settings.
func NewThreshold(settings config.StrategySettings) *Threshold {
	return &Threshold{settings: settings, tracks: make(map[string]*track)}
}

// Reset forgets every reference price.
func (s *Threshold) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tracks)
}

func (s *Threshold) Evaluate(symbol string, price, held decimal.Decimal) (Intent, bool) {
	if !price.IsPositive() {
		return Intent{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.tracks[symbol]
	if !ok {
		tr = &track{ref: price, last: price}
		s.tracks[symbol] = tr
	}
	prev := tr.last
	tr.last = price

	if !held.IsPositive() {
		if !tr.entry.IsZero() {
			// The position closed since the last look; re-anchor at the exit.
			tr.entry, tr.peak, tr.ref = decimal.Zero, decimal.Zero, price
			return Intent{}, false
		}
		if price.LessThan(tr.ref) {
			tr.ref = price
			return Intent{}, false
		}
		if pct(tr.ref, price) >= s.settings.BuyThreshold && ok {
			tr.ref = price
			return Intent{Side: model.SideBuy, Reason: "buy threshold reached"}, true
		}
		return Intent{}, false
	}

	if tr.entry.IsZero() {
		tr.entry, tr.peak = price, price
	}
	if price.GreaterThan(tr.peak) {
		tr.peak = price
	}

	var reason string
	move := pct(tr.entry, price)
	switch {
	case move <= s.settings.StopLoss:
		reason = "stop loss"
	case move >= s.settings.TakeProfit:
		reason = "take profit"
	case pct(prev, price) <= s.settings.SellThreshold:
		reason = "sell threshold reached"
	case s.settings.TrailingStop && tr.peak.GreaterThan(tr.entry) &&
		pct(tr.peak, price) <= -s.settings.TrailingStopPct:
		reason = "trailing stop"
	default:
		return Intent{}, false
	}

	// Entry and peak survive until a flat observation confirms the fill.
	return Intent{Side: model.SideSell, Quantity: held, Reason: reason}, true
}

// pct is the percent change from a to b.
func pct(a, b decimal.Decimal) float64 {
	if a.IsZero() {
		return 0
	}
	return b.Sub(a).Div(a).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
