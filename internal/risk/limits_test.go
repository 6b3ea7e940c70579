package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/config"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNewLimits_FromDefaults(t *testing.T) {
	l := NewLimits(config.Default().StrategySettings)
	if l.MaxPositions != 5 {
		t.Errorf("MaxPositions = %d, want 5", l.MaxPositions)
	}
	if !l.PositionSize.Equal(d(0.1)) {
		t.Errorf("PositionSize = %s, want 0.1", l.PositionSize)
	}
}

func TestNewLimits_ClampsSize(t *testing.T) {
	for _, size := range []float64{0, -0.5, 3} {
		l := NewLimits(config.StrategySettings{PositionSize: size})
		if !l.PositionSize.Equal(d(1)) {
			t.Errorf("size %v: PositionSize = %s, want 1", size, l.PositionSize)
		}
	}
}

func TestCheckEntry_WithinLimit(t *testing.T) {
	l := &Limits{MaxPositions: 2}
	holdings := map[string]decimal.Decimal{"BTCUSDT": d(0.1)}

	if err := l.CheckEntry(holdings, "ETHUSDT"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckEntry_LimitReached(t *testing.T) {
	l := &Limits{MaxPositions: 2}
	holdings := map[string]decimal.Decimal{"BTCUSDT": d(0.1), "ETHUSDT": d(1)}

	if err := l.CheckEntry(holdings, "SOLUSDT"); !errors.Is(err, ErrMaxPositions) {
		t.Errorf("expected ErrMaxPositions, got %v", err)
	}
}

func TestCheckEntry_AddingToHeldSymbol(t *testing.T) {
	l := &Limits{MaxPositions: 2}
	holdings := map[string]decimal.Decimal{"BTCUSDT": d(0.1), "ETHUSDT": d(1)}

	// Both slots are used, but BTCUSDT is already one of them.
	if err := l.CheckEntry(holdings, "BTCUSDT"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckEntry_Disabled(t *testing.T) {
	l := &Limits{}
	holdings := map[string]decimal.Decimal{"A1USDT": d(1), "B1USDT": d(1)}
	if err := l.CheckEntry(holdings, "C1USDT"); err != nil {
		t.Errorf("MaxPositions=0 must not limit, got %v", err)
	}
}

func TestSize(t *testing.T) {
	l := &Limits{PositionSize: d(0.1)}

	qty, err := l.Size(d(10000), d(50000))
	if err != nil {
		t.Fatal(err)
	}
	if !qty.Equal(d(0.02)) {
		t.Errorf("Size = %s, want 0.02", qty)
	}

	qty, err = l.Size(d(10000), d(3))
	if err != nil {
		t.Fatal(err)
	}
	// 1000/3 truncated to 8 places
	if !qty.Equal(decimal.RequireFromString("333.33333333")) {
		t.Errorf("Size = %s", qty)
	}
	if qty.Mul(d(3)).GreaterThan(d(1000)) {
		t.Error("sized cost must not exceed committed cash")
	}
}

func TestSize_TooSmall(t *testing.T) {
	l := &Limits{PositionSize: d(0.1)}

	if _, err := l.Size(d(0.0000001), d(50000)); !errors.Is(err, ErrSizeTooSmall) {
		t.Errorf("expected ErrSizeTooSmall, got %v", err)
	}
	if _, err := l.Size(decimal.Zero, d(1)); !errors.Is(err, ErrSizeTooSmall) {
		t.Errorf("expected ErrSizeTooSmall for empty balance, got %v", err)
	}
}
