// Package analytics derives performance figures from the trade history and
// the portfolio valuation series. Everything here is a pure function and is
// recomputed on each call.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/model"
)

// PeriodsPerYear annualizes the Sharpe ratio assuming one sample per day.
const PeriodsPerYear = 365

var hundred = decimal.NewFromInt(100)

type lot struct {
	qty   decimal.Decimal
	price decimal.Decimal
}

// WinRate is the fraction of round-trip sells whose proceeds exceed the
// cost of the lots they closed. Lots are matched first in, first out per
// symbol. It is 0 when no sell closed any lot.
func WinRate(trades []model.Trade) float64 {
	open := make(map[string][]lot)
	var trips, wins int

	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			open[t.Symbol] = append(open[t.Symbol], lot{qty: t.Quantity, price: t.Price})

		case model.SideSell:
			lots := open[t.Symbol]
			remaining := t.Quantity
			matched := decimal.Zero
			cost := decimal.Zero

			for len(lots) > 0 && remaining.IsPositive() {
				take := decimal.Min(lots[0].qty, remaining)
				cost = cost.Add(take.Mul(lots[0].price))
				matched = matched.Add(take)
				remaining = remaining.Sub(take)
				if lots[0].qty.Equal(take) {
					lots = lots[1:]
				} else {
					lots[0].qty = lots[0].qty.Sub(take)
				}
			}
			open[t.Symbol] = lots

			if !matched.IsPositive() {
				continue
			}
			trips++
			if matched.Mul(t.Price).GreaterThan(cost) {
				wins++
			}
		}
	}

	if trips == 0 {
		return 0
	}
	return float64(wins) / float64(trips)
}

// ProfitLoss is the portfolio value minus the initial balance.
func ProfitLoss(portfolioValue, initial decimal.Decimal) decimal.Decimal {
	return portfolioValue.Sub(initial)
}

// ReturnPct is pl as a percentage of initial, or 0 when initial is 0.
func ReturnPct(pl, initial decimal.Decimal) decimal.Decimal {
	if initial.IsZero() {
		return decimal.Zero
	}
	return pl.Div(initial).Mul(hundred)
}

// SharpeRatio is the mean simple return between consecutive samples divided
// by the sample standard deviation, annualized by sqrt(PeriodsPerYear).
// It is 0 with fewer than two returns, zero deviation, or a non-positive
// sample value.
func SharpeRatio(samples []model.BalanceSample) float64 {
	if len(samples) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1].Value.InexactFloat64(), samples[i].Value.InexactFloat64()
		if prev <= 0 || cur <= 0 {
			return 0
		}
		returns = append(returns, cur/prev-1)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(PeriodsPerYear)
}

// MaxDrawdown is the largest decline from a running peak to a later
// trough, as a fraction of that peak.
func MaxDrawdown(values []decimal.Decimal) float64 {
	if len(values) == 0 {
		return 0
	}

	peak := values[0]
	maxDD := decimal.Zero
	for _, v := range values[1:] {
		if v.GreaterThan(peak) {
			peak = v
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		if dd := peak.Sub(v).Div(peak); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD.InexactFloat64()
}

// Values extracts the valuation series from samples.
func Values(samples []model.BalanceSample) []decimal.Decimal {
	out := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

// Compute assembles the full performance snapshot.
func Compute(trades []model.Trade, samples []model.BalanceSample, portfolioValue, initial decimal.Decimal) model.Performance {
	pl := ProfitLoss(portfolioValue, initial)
	return model.Performance{
		TotalTrades: len(trades),
		WinRate:     WinRate(trades),
		ProfitLoss:  pl,
		ReturnPct:   ReturnPct(pl, initial).Round(4),
		SharpeRatio: SharpeRatio(samples),
		MaxDrawdown: MaxDrawdown(Values(samples)),
	}
}
