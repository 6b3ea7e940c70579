package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/DimBertolami/latestbot/internal/metrics"
	"github.com/DimBertolami/latestbot/internal/model"
)

// run drives evaluation cycles until ctx is cancelled. The first cycle
// starts immediately.
func (e *Engine) run(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.evaluate(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// evaluate runs one cycle over the configured symbols. Failures are
// logged and never end the loop.
func (e *Engine) evaluate(ctx context.Context) {
	cfg := e.cfg.Get()
	quotes := make(map[string]model.Quote, len(cfg.Symbols))

	for _, sym := range cfg.Symbols {
		if ctx.Err() != nil {
			return
		}

		q, err := e.prices.Price(ctx, sym)
		if err != nil {
			slog.Warn("evaluation: price unavailable", "symbol", sym, "err", err)
			continue
		}
		quotes[sym] = q

		if e.signal != nil {
			e.act(ctx, q)
		}
	}

	if ctx.Err() != nil {
		return
	}
	e.recordSample(quotes)
}

// act asks the signal for an intent on q and executes it within the risk
// limits.
func (e *Engine) act(ctx context.Context, q model.Quote) {
	intent, ok := e.signal.Evaluate(q.Symbol, q.Price, e.ledger.Held(q.Symbol))
	if !ok {
		return
	}

	qty := intent.Quantity
	if intent.Side == model.SideBuy && e.limits != nil {
		if err := e.limits.CheckEntry(e.ledger.Holdings(), q.Symbol); err != nil {
			metrics.OrderRejections.WithLabelValues(reason(err)).Inc()
			slog.Info("signal skipped", "symbol", q.Symbol, "reason", intent.Reason, "err", err)
			return
		}
		if qty.IsZero() {
			sized, err := e.limits.Size(e.ledger.Balance(), q.Price)
			if err != nil {
				slog.Info("signal skipped", "symbol", q.Symbol, "reason", intent.Reason, "err", err)
				return
			}
			qty = sized
		}
	}
	if !qty.IsPositive() {
		return
	}

	slog.Info("signal", "symbol", q.Symbol, "side", string(intent.Side), "reason", intent.Reason, "qty", qty.String())
	if _, err := e.execute(ctx, q.Symbol, intent.Side, qty, &q); err != nil {
		slog.Warn("signal order rejected", "symbol", q.Symbol, "err", err)
	}
}
