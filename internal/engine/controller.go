package engine

import (
	"context"
	"log/slog"

	"github.com/DimBertolami/latestbot/internal/metrics"
	"github.com/DimBertolami/latestbot/internal/model"
)

type resetter interface {
	Reset()
}

// State is the controller run state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Running reports whether trading is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// State returns the current run state.
func (e *Engine) State() State {
	if e.running.Load() {
		return StateRunning
	}
	return StateStopped
}

// Start enables trading and launches the evaluation loop. Without API keys
// it first tries to recover them; if that fails it only proceeds when
// synthetic prices were acknowledged by opts or the configuration.
func (e *Engine) Start(ctx context.Context, opts StartOptions) Result {
	e.life.Lock()
	defer e.life.Unlock()

	if e.running.Load() {
		return success("Trading already running")
	}

	cfg := e.cfg.Get()
	interval, err := cfg.Interval()
	if err != nil {
		return failure(err.Error())
	}

	synthetic := opts.AllowSynthetic || cfg.AllowSynthetic
	switch {
	case e.creds.Configured():
		if e.creds.Conn() == nil {
			e.creds.Connect(ctx)
		}
	case synthetic:
		slog.Warn("starting without API keys, prices are synthetic")
	default:
		if _, ok := e.creds.Recover(ctx); !ok {
			return failure("API keys not configured")
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running.Store(true)
	metrics.EngineRunning.Set(1)

	go e.run(loopCtx, interval, e.done)

	slog.Info("trading started", "interval", interval.String(), "symbols", cfg.Symbols, "live_prices", e.prices.Live())
	e.notify(Event{Type: EventStarted, Message: "Trading started"})
	return success("Trading started")
}

// Stop halts trading and waits for the evaluation loop to exit. Stopping a
// stopped engine succeeds.
func (e *Engine) Stop() Result {
	e.life.Lock()
	defer e.life.Unlock()

	if !e.stop() {
		return success("Trading already stopped")
	}
	slog.Info("trading stopped")
	e.notify(Event{Type: EventStopped, Message: "Trading stopped"})
	return success("Trading stopped")
}

// stop must be called with life held. It reports whether the engine was running.
func (e *Engine) stop() bool {
	if !e.running.Swap(false) {
		return false
	}
	metrics.EngineRunning.Set(0)

	e.cancel()
	<-e.done
	e.cancel, e.done = nil, nil

	// A manual order that passed its running check commits before we return.
	e.mu.Lock()
	e.mu.Unlock()
	return true
}

// Reset stops trading and restores the account to the configured balance,
// clearing holdings, history, cached prices and the journal.
func (e *Engine) Reset(ctx context.Context) Result {
	e.life.Lock()
	defer e.life.Unlock()

	e.stop()
	balance := e.cfg.Get().Balance

	e.mu.Lock()
	e.ledger.Reset(balance, e.now())
	e.prices.ClearCache()
	if r, ok := e.signal.(resetter); ok {
		r.Reset()
	}
	if err := e.journal.ClearTrades(ctx); err != nil {
		slog.Error("failed to clear trade journal", "err", err)
	}
	e.mu.Unlock()

	slog.Info("account reset", "balance", balance.String())
	e.notify(Event{Type: EventReset, Message: "Account reset"})
	return success("Account reset")
}

// UpdateCredentials stores a new API key pair and reconnects.
func (e *Engine) UpdateCredentials(ctx context.Context, key, secret string) Result {
	if err := e.creds.Update(ctx, key, secret); err != nil {
		return failure("API key and secret are required")
	}
	return success("API keys updated")
}

// APIStatus reports whether keys are configured and the exchange answers.
func (e *Engine) APIStatus(ctx context.Context) model.APIStatus {
	configured := e.creds.Configured()
	return model.APIStatus{
		KeysConfigured: configured,
		APIWorking:     configured && e.creds.TestConnection(ctx),
	}
}
