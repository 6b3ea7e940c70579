// Package pricing resolves the current price of a symbol through three
// tiers: the live exchange connection, the last live price seen, and a
// synthetic stand-in used only when no exchange connection is configured.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/exchange"
	"github.com/DimBertolami/latestbot/internal/metrics"
	"github.com/DimBertolami/latestbot/internal/model"
)

// ErrNoPriceAvailable is returned when no tier can produce a price.
var ErrNoPriceAvailable = errors.New("pricing: no price available")

// ConnProvider hands out the current exchange connection, or nil.
type ConnProvider interface {
	Conn() exchange.Conn
}

type synthetic struct {
	base   decimal.Decimal
	spread decimal.Decimal // full width of the jitter band
}

var syntheticPrices = map[string]synthetic{
	"BTCUSDT": {decimal.NewFromInt(46700), decimal.NewFromInt(100)},
	"ETHUSDT": {decimal.NewFromInt(3220), decimal.NewFromInt(20)},
	"ADAUSDT": {decimal.RequireFromString("0.35"), decimal.RequireFromString("0.01")},
	"SOLUSDT": {decimal.NewFromInt(142), decimal.NewFromInt(3)},
	"DOTUSDT": {decimal.RequireFromString("7.5"), decimal.RequireFromString("0.2")},
	"XRPUSDT": {decimal.RequireFromString("0.53"), decimal.RequireFromString("0.01")},
}

// DefaultSyntheticPrice is used for symbols without a synthetic entry.
var DefaultSyntheticPrice = decimal.NewFromInt(100)

// Source is safe for concurrent use.
type Source struct {
	conns  ConnProvider
	jitter func() float64
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]decimal.Decimal // live prices only
	last  map[string]model.Quote
}

// Option configures a Source.
type Option func(*Source)

// WithJitter replaces the uniform [0,1) generator used for synthetic prices.
func WithJitter(fn func() float64) Option {
	return func(s *Source) { s.jitter = fn }
}

// WithClock sets the time source stamped on quotes.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// NewSource creates a price source reading live prices through conns.
func NewSource(conns ConnProvider, opts ...Option) *Source {
	s := &Source{
		conns:  conns,
		jitter: rand.Float64,
		now:    func() time.Time { return time.Now().UTC() },
		cache:  make(map[string]decimal.Decimal),
		last:   make(map[string]model.Quote),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Live reports whether a live exchange connection is currently held.
func (s *Source) Live() bool {
	return s.conn() != nil
}

// Price resolves symbol with a single attempt per tier.
func (s *Source) Price(ctx context.Context, symbol string) (model.Quote, error) {
	if conn := s.conn(); conn != nil {
		price, err := conn.Price(ctx, symbol)
		if err == nil && price.IsPositive() {
			s.mu.Lock()
			s.cache[symbol] = price
			s.mu.Unlock()
			return s.remember(symbol, price, model.TierLive), nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %s", exchange.ErrBadPrice, price)
		}
		slog.Warn("live price unavailable, using cache", "symbol", symbol, "err", err)

		if cached, ok := s.CachedPrice(symbol); ok {
			return s.remember(symbol, cached, model.TierCached), nil
		}
		metrics.PriceResolutions.WithLabelValues("none").Inc()
		return model.Quote{}, fmt.Errorf("%w for %s: %w", ErrNoPriceAvailable, symbol, err)
	}

	if cached, ok := s.CachedPrice(symbol); ok {
		return s.remember(symbol, cached, model.TierCached), nil
	}
	return s.remember(symbol, s.synthesize(symbol), model.TierSynthetic), nil
}

// CachedPrice returns the last live price for symbol without any I/O.
func (s *Source) CachedPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.cache[symbol]
	return p, ok
}

// LastQuote returns the most recent resolution for symbol, whatever its tier.
func (s *Source) LastQuote(symbol string) (model.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.last[symbol]
	return q, ok
}

// LastPrices returns a copy of the live price cache.
func (s *Source) LastPrices() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.cache)
}

// Tiers returns the tier of the latest resolution per symbol.
func (s *Source) Tiers() map[string]model.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Tier, len(s.last))
	for sym, q := range s.last {
		out[sym] = q.Tier
	}
	return out
}

// ClearCache forgets all cached and remembered prices.
func (s *Source) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cache)
	clear(s.last)
}

func (s *Source) conn() exchange.Conn {
	if s.conns == nil {
		return nil
	}
	return s.conns.Conn()
}

func (s *Source) remember(symbol string, price decimal.Decimal, tier model.Tier) model.Quote {
	q := model.Quote{Symbol: symbol, Price: price, Tier: tier, Time: s.now()}
	s.mu.Lock()
	s.last[symbol] = q
	s.mu.Unlock()
	metrics.PriceResolutions.WithLabelValues(string(tier)).Inc()
	return q
}

// synthesize returns base + (u - 0.5) * spread for known symbols.
func (s *Source) synthesize(symbol string) decimal.Decimal {
	syn, ok := syntheticPrices[symbol]
	if !ok {
		return DefaultSyntheticPrice
	}
	u := decimal.NewFromFloat(s.jitter()).Sub(decimal.NewFromFloat(0.5))
	return syn.base.Add(u.Mul(syn.spread)).Round(8)
}
