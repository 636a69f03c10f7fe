package sim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gridmesh/p2p-market/internal/agent"
	"github.com/gridmesh/p2p-market/internal/market"
	"github.com/gridmesh/p2p-market/internal/metrics"
	"github.com/gridmesh/p2p-market/internal/model"
	"github.com/gridmesh/p2p-market/internal/store"
)

// Runner drives simulation runs: it builds the agent roster, steps one
// market instance through its intervals, archives trades and welfare
// records, and broadcasts settled intervals to WebSocket clients.
type Runner struct {
	store store.Store
	hub   *WSHub // optional; nil disables broadcasting
}

// NewRunner creates a runner. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewRunner(st store.Store, hub *WSHub) *Runner {
	return &Runner{store: st, hub: hub}
}

// Start executes a run in a background goroutine. The run record must
// already be persisted with status "running".
func (r *Runner) Start(run *model.Run, mcfg market.Config) {
	go func() {
		if err := r.Execute(context.Background(), run, mcfg); err != nil {
			slog.Error("run failed", "run_id", run.ID, "err", err)
		}
	}()
}

// Execute runs a simulation to completion synchronously, updating the
// run record as it finishes. Identical run parameters and seed produce
// an identical trade sequence.
func (r *Runner) Execute(ctx context.Context, run *model.Run, mcfg market.Config) error {
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	roster, err := agent.BuildRoster(run.Agents, run.Seed)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	m, err := market.New(mcfg)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	logger := slog.With("run_id", run.ID, "mechanism", m.Mechanism())
	logger.Info("run started", "intervals", run.Intervals, "agents", len(roster), "seed", run.Seed)

	for i := 0; i < run.Intervals; i++ {
		select {
		case <-ctx.Done():
			return r.fail(ctx, run, ctx.Err())
		default:
		}

		res, err := r.step(m, roster)
		if err != nil {
			return r.fail(ctx, run, err)
		}

		r.account(run, res)
		r.observe(m.Mechanism(), res)

		if len(res.Trades) > 0 {
			if err := r.store.InsertTrades(ctx, run.ID, res.Trades); err != nil {
				return r.fail(ctx, run, err)
			}
		}
		if err := r.store.InsertWelfareRecord(ctx, run.ID, res.Welfare); err != nil {
			return r.fail(ctx, run, err)
		}

		r.announce(run, m.Mechanism(), res)
	}

	now := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.CompletedAt = &now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	logger.Info("run completed",
		"posted_kwh", run.PostedKWh.String(),
		"traded_kwh", run.TradedKWh.String(),
		"realized_surplus", run.RealizedSurplus.String(),
		"no_trade_intervals", run.NoTradeIntervals,
	)
	return nil
}

// step drives one full interval: collect every agent's intents under the
// configured info-set, then clear.
func (r *Runner) step(m *market.Market, roster []agent.Agent) (*market.IntervalResult, error) {
	start := time.Now()
	if err := m.BeginInterval(); err != nil {
		return nil, err
	}
	for _, a := range roster {
		view := m.View()
		if err := m.Collect(a.ID(), a.Decide(view, m.Interval())...); err != nil {
			return nil, err
		}
	}
	res, err := m.Clear()
	if err != nil {
		return nil, err
	}
	metrics.IntervalDuration.WithLabelValues(m.Mechanism()).Observe(time.Since(start).Seconds())
	return res, nil
}

func (r *Runner) account(run *model.Run, res *market.IntervalResult) {
	run.PostedKWh = run.PostedKWh.Add(res.PostedKWh)
	run.TradedKWh = run.TradedKWh.Add(res.TradedKWh)
	run.RealizedSurplus = run.RealizedSurplus.Add(res.Welfare.RealizedSurplus)
	if res.Welfare.NoTrade {
		run.NoTradeIntervals++
	} else {
		run.PlannerBound = run.PlannerBound.Add(res.Welfare.PlannerBound)
	}
}

func (r *Runner) observe(mechanism string, res *market.IntervalResult) {
	if n := len(res.Trades); n > 0 {
		metrics.TradesTotal.WithLabelValues(mechanism).Add(float64(n))
		metrics.ClearedVolume.WithLabelValues(mechanism).Add(res.TradedKWh.InexactFloat64())
	}
	if res.Welfare.NoTrade {
		metrics.NoTradeIntervals.Inc()
	} else {
		metrics.NormalizedWelfare.WithLabelValues(mechanism).Observe(res.Welfare.NormalizedWelfare.InexactFloat64())
	}
	for _, rej := range res.Rejections {
		metrics.IntentRejections.WithLabelValues(rejectionReason(rej.Err)).Inc()
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

func (r *Runner) announce(run *model.Run, mechanism string, res *market.IntervalResult) {
	if r.hub == nil {
		return
	}
	msg := WSMessage{
		Type:         "interval_settled",
		RunID:        run.ID,
		Interval:     res.Interval,
		Mechanism:    mechanism,
		Trades:       len(res.Trades),
		TradedKWh:    res.TradedKWh.String(),
		NoTrade:      res.Welfare.NoTrade,
		RealizedSurp: res.Welfare.RealizedSurplus.String(),
	}
	if n := len(res.Trades); n > 0 {
		msg.LastPrice = res.Trades[n-1].Price.String()
	}
	r.hub.Broadcast(msg)
}

// fail marks the run failed and persists the terminal state. The
// original error is returned so callers can log it. A fresh context is
// used for the write so a canceled run still records its failure.
func (r *Runner) fail(_ context.Context, run *model.Run, cause error) error {
	now := time.Now().UTC()
	run.Status = model.RunStatusFailed
	run.CompletedAt = &now
	if err := r.store.UpdateRun(context.Background(), run); err != nil {
		slog.Error("failed to persist run failure", "run_id", run.ID, "err", err)
	}
	return cause
}
