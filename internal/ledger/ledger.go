// Package ledger holds the paper account: cash balance, holdings per symbol,
// the append-only trade history and the portfolio valuation samples.
//
// Every mutation happens under a single write lock so that a trade is
// checked and committed atomically and readers always see a consistent view.
package ledger

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/model"
)

var (
	ErrInsufficientFunds    = errors.New("ledger: insufficient balance")
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")
	ErrInvalidTrade         = errors.New("ledger: quantity and price must be positive")
)

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	initial  decimal.Decimal
	balance  decimal.Decimal
	holdings map[string]decimal.Decimal
	history  []model.Trade
	samples  []model.BalanceSample
}

// New creates a ledger funded with initial and seeds one balance sample.
func New(initial decimal.Decimal, at time.Time) *Ledger {
	l := &Ledger{}
	l.reset(initial, at)
	return l
}

// Snapshot is a consistent copy of the ledger state.
type Snapshot struct {
	Initial  decimal.Decimal
	Balance  decimal.Decimal
	Holdings map[string]decimal.Decimal
	History  []model.Trade
	Samples  []model.BalanceSample
}

// Apply checks t against the current state and commits it. It fills in
// Value and BalanceAfter and returns the committed trade. A rejected trade
// leaves the ledger unchanged.
func (l *Ledger) Apply(t model.Trade) (model.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apply(t)
}

func (l *Ledger) apply(t model.Trade) (model.Trade, error) {
	if !t.Quantity.IsPositive() || !t.Price.IsPositive() {
		return model.Trade{}, ErrInvalidTrade
	}
	t.Value = t.Quantity.Mul(t.Price)
	held := l.holdings[t.Symbol]

	switch t.Side {
	case model.SideBuy:
		if t.Value.GreaterThan(l.balance) {
			return model.Trade{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, t.Value, l.balance)
		}
		l.balance = l.balance.Sub(t.Value)
		l.holdings[t.Symbol] = held.Add(t.Quantity)

	case model.SideSell:
		if t.Quantity.GreaterThan(held) {
			return model.Trade{}, fmt.Errorf("%w: want %s %s, have %s", ErrInsufficientHoldings, t.Quantity, t.Symbol, held)
		}
		l.balance = l.balance.Add(t.Value)
		if rest := held.Sub(t.Quantity); rest.IsZero() {
			delete(l.holdings, t.Symbol)
		} else {
			l.holdings[t.Symbol] = rest
		}

	default:
		return model.Trade{}, model.ErrInvalidSide
	}

	t.BalanceAfter = l.balance
	if t.OrderType == "" {
		t.OrderType = model.OrderTypeMarket
	}
	l.history = append(l.history, t)
	return t, nil
}

// Balance returns the cash balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Holdings returns a copy of the non-zero holdings.
func (l *Ledger) Holdings() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.holdings)
}

// Held returns the quantity held of symbol.
func (l *Ledger) Held(symbol string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holdings[symbol]
}

// History returns every trade in execution order.
func (l *Ledger) History() []model.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.history)
}

// Record appends a valuation sample.
func (l *Ledger) Record(s model.BalanceSample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, s)
}

// Snapshot returns balance, holdings, history and samples read under one lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Initial:  l.initial,
		Balance:  l.balance,
		Holdings: maps.Clone(l.holdings),
		History:  slices.Clone(l.history),
		Samples:  slices.Clone(l.samples),
	}
}

// Reset refunds the account with balance and drops holdings, history and
// samples. One sample at the new balance is recorded.
func (l *Ledger) Reset(balance decimal.Decimal, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset(balance, at)
}

func (l *Ledger) reset(balance decimal.Decimal, at time.Time) {
	l.initial = balance
	l.balance = balance
	l.holdings = make(map[string]decimal.Decimal)
	l.history = nil
	l.samples = []model.BalanceSample{{Time: at, Value: balance}}
}

// Replay rebuilds the state from a journal of trades, in order, on top of
// the initial balance. On the first violation the ledger is left freshly
// reset and the error is returned.
func (l *Ledger) Replay(trades []model.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := time.Now().UTC()
	if len(l.samples) > 0 {
		at = l.samples[0].Time
	}
	l.reset(l.initial, at)

	for i, t := range trades {
		if _, err := l.apply(t); err != nil {
			l.reset(l.initial, at)
			return fmt.Errorf("replay trade %d (%s): %w", i, t.ID, err)
		}
	}
	if len(trades) > 0 {
		l.samples = append(l.samples, model.BalanceSample{
			Time:  trades[len(trades)-1].Timestamp,
			Value: l.balance.Add(costBasis(l.history, l.holdings)),
		})
	}
	return nil
}

// PriceFunc values a symbol; an error means its value is unknown.
type PriceFunc func(symbol string) (decimal.Decimal, error)

// PortfolioValue is balance plus every holding valued by price. Symbols
// that cannot be priced are left out and reported in skipped.
func (s Snapshot) PortfolioValue(price PriceFunc) (value decimal.Decimal, skipped map[string]error) {
	value = s.Balance
	for _, sym := range slices.Sorted(maps.Keys(s.Holdings)) {
		p, err := price(sym)
		if err != nil {
			if skipped == nil {
				skipped = make(map[string]error)
			}
			skipped[sym] = err
			continue
		}
		value = value.Add(s.Holdings[sym].Mul(p))
	}
	return value, skipped
}

// PortfolioValue values the current state; see Snapshot.PortfolioValue.
func (l *Ledger) PortfolioValue(price PriceFunc) (decimal.Decimal, map[string]error) {
	return l.Snapshot().PortfolioValue(price)
}

// costBasis values holdings at the price of the last trade in each symbol.
// Used only to seed a sample after replay, before any live price is known.
func costBasis(history []model.Trade, holdings map[string]decimal.Decimal) decimal.Decimal {
	last := make(map[string]decimal.Decimal, len(holdings))
	for _, t := range history {
		last[t.Symbol] = t.Price
	}
	total := decimal.Zero
	for sym, qty := range holdings {
		total = total.Add(qty.Mul(last[sym]))
	}
	return total
}

// Recent returns at most n of the latest trades in the snapshot, oldest
// first. It is never nil.
func (s Snapshot) Recent(n int) []model.Trade {
	if n <= 0 {
		return []model.Trade{}
	}
	trades := s.History
	if len(trades) > n {
		trades = trades[len(trades)-n:]
	}
	return append([]model.Trade{}, trades...)
}
