// Package exchange is the remote exchange query surface used by the paper
// engine: connectivity probe, server time and current price per symbol.
// Order placement is deliberately absent; paper mode never routes orders.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	mainnetURL = "https://api.binance.com"
	testnetURL = "https://testnet.binance.vision"
)

var (
	// ErrRateLimited is returned without waiting when the local request
	// budget is exhausted.
	ErrRateLimited = errors.New("exchange: local rate limit exceeded")

	// ErrBadPrice is returned when the exchange reports a non-positive or
	// unparsable price.
	ErrBadPrice = errors.New("exchange: invalid price in response")

	// ErrUnknownSymbol is returned when the exchange has no ticker for the symbol.
	ErrUnknownSymbol = errors.New("exchange: unknown symbol")
)

// Conn is a live connection to the exchange.
type Conn interface {
	Ping(ctx context.Context) error
	ServerTime(ctx context.Context) (time.Time, error)
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Dialer establishes a connection for a credential pair.
type Dialer func(ctx context.Context, key, secret string) (Conn, error)

// Options tune the Binance client.
type Options struct {
	Testnet bool
	Timeout time.Duration // per request; 0 → 5s
	RPS     float64       // sustained requests per second; 0 → 10
	Burst   int           // 0 → 20
}

// Client wraps the Binance spot REST client.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient builds a client without contacting the exchange.
func NewClient(key, secret string, opts Options) *Client {
	api := binance.NewClient(key, secret)
	api.BaseURL = mainnetURL
	if opts.Testnet {
		api.BaseURL = testnetURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		timeout: opts.Timeout,
	}
}

// Dial builds a Client and pings it.
func Dial(ctx context.Context, key, secret string, opts Options) (*Client, error) {
	c := NewClient(key, secret, opts)
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect to binance: %w", err)
	}
	return c, nil
}

// NewDialer returns a Dialer backed by Dial.
func NewDialer(opts Options) Dialer {
	return func(ctx context.Context, key, secret string) (Conn, error) {
		c, err := Dial(ctx, key, secret, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	return wrap(c.api.NewPingService().Do(ctx))
}

// ServerTime returns the exchange clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer cancel()

	ms, err := c.api.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, wrap(err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Price returns the latest traded price for symbol.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer cancel()

	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, wrap(err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrBadPrice, symbol, p.Price)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
}

func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if !c.limiter.Allow() {
		return nil, nil, ErrRateLimited
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}

// wrap annotates Binance API errors with their numeric code.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if common.IsAPIError(err) {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("binance api error %d: %w", apiErr.Code, err)
		}
	}
	return fmt.Errorf("binance: %w", err)
}
