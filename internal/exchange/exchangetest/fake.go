// Package exchangetest provides an in-memory exchange.Conn for tests.
package exchangetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DimBertolami/latestbot/internal/exchange"
)

// ErrDown is returned by a Conn that has been marked unreachable.
var ErrDown = errors.New("exchangetest: connection down")

// Conn is a scriptable exchange connection.
type Conn struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	down   bool
	calls  int
}

// NewConn returns a reachable connection with no prices.
func NewConn() *Conn {
	return &Conn{prices: make(map[string]decimal.Decimal)}
}

// SetPrice sets the price returned for symbol.
func (c *Conn) SetPrice(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

// SetDown makes every call fail (true) or succeed (false).
func (c *Conn) SetDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

// PriceCalls returns how many Price calls were made.
func (c *Conn) PriceCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Conn) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return ErrDown
	}
	return nil
}

func (c *Conn) ServerTime(context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return time.Time{}, ErrDown
	}
	return time.Now().UTC(), nil
}

func (c *Conn) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.down {
		return decimal.Zero, ErrDown
	}
	p, ok := c.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}
	return p, nil
}

// Dialer returns an exchange.Dialer handing out conn when the key pair
// matches; any other pair fails to connect. An empty wantKey accepts all.
func Dialer(conn *Conn, wantKey string) exchange.Dialer {
	return func(ctx context.Context, key, secret string) (exchange.Conn, error) {
		if wantKey != "" && key != wantKey {
			return nil, errors.New("exchangetest: invalid API key")
		}
		if err := conn.Ping(ctx); err != nil {
			return nil, err
		}
		return conn, nil
	}
}
