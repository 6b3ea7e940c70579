// Package engine is the paper trading engine: it owns the run state, the
// ledger and the evaluation loop, and executes orders against resolved
// prices. All ledger mutations are serialized through one mutex; price
// resolution always happens before that mutex is taken.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DimBertolami/latestbot/internal/config"
	"github.com/DimBertolami/latestbot/internal/credentials"
	"github.com/DimBertolami/latestbot/internal/ledger"
	"github.com/DimBertolami/latestbot/internal/model"
	"github.com/DimBertolami/latestbot/internal/pricing"
	"github.com/DimBertolami/latestbot/internal/risk"
	"github.com/DimBertolami/latestbot/internal/store"
	"github.com/DimBertolami/latestbot/internal/strategy"
)

var (
	ErrNotRunning      = errors.New("engine: trading is not running")
	ErrInvalidQuantity = errors.New("engine: quantity must be positive")
)

// Result is the outcome of a lifecycle or credential command.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func success(msg string) Result { return Result{OK: true, Message: msg} }
func failure(msg string) Result { return Result{OK: false, Message: msg} }

// Event types published to the Notifier.
const (
	EventTradeExecuted = "trade_executed"
	EventStarted       = "trading_started"
	EventStopped       = "trading_stopped"
	EventReset         = "account_reset"
)

// Event is a state change broadcast to observers.
type Event struct {
	Type    string       `json:"type"`
	Message string       `json:"message,omitempty"`
	Trade   *model.Trade `json:"trade,omitempty"`
	Time    time.Time    `json:"time"`
}

// Notifier receives engine events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// StartOptions control Start.
type StartOptions struct {
	// AllowSynthetic acknowledges running on synthetic prices when no API
	// keys are configured.
	AllowSynthetic bool
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      *config.Store
	prices   *pricing.Source
	creds    *credentials.Manager
	journal  store.Store
	signal   strategy.Signal
	limits   *risk.Limits
	notifier Notifier
	now      func() time.Time

	ledger *ledger.Ledger

	mu sync.Mutex // serializes ledger mutations and journal writes

	life    sync.Mutex // serializes Start/Stop/Reset
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the trade journal. The default is an in-memory store.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.journal = s }
}

// WithSignal sets the signal consulted by the evaluation loop. Without one
// the loop only tracks prices and valuation.
func WithSignal(s strategy.Signal) Option {
	return func(e *Engine) { e.signal = s }
}

// WithLimits sets the guards applied to signal-driven orders.
func WithLimits(l *risk.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithNotifier sets the receiver of engine events.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock sets the time source for trades and samples.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a stopped engine funded with the configured balance.
func New(cfg *config.Store, prices *pricing.Source, creds *credentials.Manager, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		prices:  prices,
		creds:   creds,
		journal: store.NewMemoryStore(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = ledger.New(cfg.Get().Balance, e.now())
	return e
}

// Restore rebuilds the ledger from the trade journal. On failure the
// ledger stays at the configured balance and the error is returned.
func (e *Engine) Restore(ctx context.Context) error {
	trades, err := e.journal.ListTrades(ctx, 0)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.Replay(trades); err != nil {
		return err
	}
	if len(trades) > 0 {
		slog.Info("restored ledger from journal", "trades", len(trades), "balance", e.ledger.Balance().String())
	}
	return nil
}

// History returns the latest limit trades from the journal, oldest first.
func (e *Engine) History(ctx context.Context, limit int) ([]model.Trade, error) {
	return e.journal.ListTrades(ctx, limit)
}

func (e *Engine) notify(ev Event) {
	if e.notifier == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.notifier.Notify(ev)
}
