package strategy_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/DimBertolami/latestbot/internal/config"
	"github.com/DimBertolami/latestbot/internal/model"
	"github.com/DimBertolami/latestbot/internal/strategy"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func settings() config.StrategySettings {
	s := config.Default().StrategySettings
	s.TrailingStop = false
	return s
}

func TestThreshold_FirstObservationNeverTrades(t *testing.T) {
	s := strategy.NewThreshold(settings())
	_, ok := s.Evaluate("BTCUSDT", d(100), decimal.Zero)
	assert.False(t, ok)
}

func TestThreshold_BuysOnRiseFromLow(t *testing.T) {
	s := strategy.NewThreshold(settings())

	_, ok := s.Evaluate("BTCUSDT", d(100), decimal.Zero)
	assert.False(t, ok)
	_, ok = s.Evaluate("BTCUSDT", d(95), decimal.Zero) // new low
	assert.False(t, ok)
	_, ok = s.Evaluate("BTCUSDT", d(96), decimal.Zero) // +1.05% off low
	assert.False(t, ok)

	in, ok := s.Evaluate("BTCUSDT", d(96.5), decimal.Zero) // +1.58%
	assert.True(t, ok)
	assert.Equal(t, model.SideBuy, in.Side)
	assert.True(t, in.Quantity.IsZero(), "buy sizing is left to risk limits")
}

func TestThreshold_SellRules(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		reason string
	}{
		{"take profit", []float64{100, 101, 102, 103}, "take profit"},
		{"stop loss", []float64{100, 99.5, 99, 98.5, 98, 97.5}, "stop loss"},
		{"sharp single drop", []float64{100, 98.9}, "sell threshold reached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := strategy.NewThreshold(settings())
			held := d(0.5)

			var got strategy.Intent
			var fired bool
			for _, p := range tt.prices {
				got, fired = s.Evaluate("BTCUSDT", d(p), held)
				if fired {
					break
				}
			}
			assert.True(t, fired)
			assert.Equal(t, model.SideSell, got.Side)
			assert.True(t, got.Quantity.Equal(held), "sells the whole position")
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestThreshold_TrailingStop(t *testing.T) {
	st := settings()
	st.TrailingStop = true
	st.TrailingStopPct = 1.0
	s := strategy.NewThreshold(st)
	held := d(1)

	for _, p := range []float64{100, 101, 102} {
		_, ok := s.Evaluate("ETHUSDT", d(p), held)
		assert.False(t, ok, "price %v", p)
	}
	_, ok := s.Evaluate("ETHUSDT", d(101.5), held) // -0.49% off peak
	assert.False(t, ok)

	in, ok := s.Evaluate("ETHUSDT", d(100.9), held) // -1.08% off peak
	assert.True(t, ok)
	assert.Equal(t, "trailing stop", in.Reason)
}

func TestThreshold_SymbolsAreIndependent(t *testing.T) {
	s := strategy.NewThreshold(settings())
	s.Evaluate("BTCUSDT", d(100), decimal.Zero)
	s.Evaluate("ETHUSDT", d(10), decimal.Zero)

	_, ok := s.Evaluate("ETHUSDT", d(10.05), decimal.Zero)
	assert.False(t, ok)
	_, ok = s.Evaluate("BTCUSDT", d(102), decimal.Zero)
	assert.True(t, ok)
}

func TestThreshold_Reset(t *testing.T) {
	s := strategy.NewThreshold(settings())
	s.Evaluate("BTCUSDT", d(100), decimal.Zero)
	s.Reset()

	_, ok := s.Evaluate("BTCUSDT", d(110), decimal.Zero)
	assert.False(t, ok, "after reset the next price is a fresh first observation")
}

func TestThreshold_UnfilledSellKeepsPosition(t *testing.T) {
	st := settings()
	st.TrailingStop = true
	st.TrailingStopPct = 1.0
	s := strategy.NewThreshold(st)
	held := d(1)

	for _, p := range []float64{100, 102, 101.5} {
		_, ok := s.Evaluate("ETHUSDT", d(p), held)
		assert.False(t, ok, "price %v", p)
	}
	in, ok := s.Evaluate("ETHUSDT", d(100.9), held) // -1.08% off peak
	assert.True(t, ok)
	assert.Equal(t, "trailing stop", in.Reason)

	// The order was not filled: the peak from 102 still applies.
	in, ok = s.Evaluate("ETHUSDT", d(100.8), held)
	assert.True(t, ok)
	assert.Equal(t, "trailing stop", in.Reason)
}

func TestThreshold_ReanchorsAfterExit(t *testing.T) {
	s := strategy.NewThreshold(settings())
	held := d(1)

	s.Evaluate("BTCUSDT", d(100), held)
	_, ok := s.Evaluate("BTCUSDT", d(103), held)
	assert.True(t, ok, "take profit")

	// Flat at 103: the exit price becomes the new reference, so the old
	// low of 100 does not trigger an immediate rebuy.
	_, ok = s.Evaluate("BTCUSDT", d(103), decimal.Zero)
	assert.False(t, ok)
	_, ok = s.Evaluate("BTCUSDT", d(103.5), decimal.Zero)
	assert.False(t, ok)

	in, ok := s.Evaluate("BTCUSDT", d(104.6), decimal.Zero) // +1.55% off 103
	assert.True(t, ok)
	assert.Equal(t, model.SideBuy, in.Side)
}
