// Package store defines the persistence interface for the simulator's
// instrumentation boundary: runs, per-interval trades, and welfare
// records. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing). The clearing core
// itself performs no I/O; only settled interval results pass through
// here.
package store

import (
	"context"

	"github.com/gridmesh/p2p-market/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// --- Runs ---

	// CreateRun persists a new run in the running state.
	CreateRun(ctx context.Context, run *model.Run) error

	// UpdateRun overwrites a run's status and totals.
	UpdateRun(ctx context.Context, run *model.Run) error

	// GetRun retrieves a run by its ID.
	GetRun(ctx context.Context, id string) (*model.Run, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]model.Run, error)

	// --- Immutable trade ledger ---

	// InsertTrades appends one interval's trades for a run.
	InsertTrades(ctx context.Context, runID string, trades []model.Trade) error

	// GetTradesByRun returns a run's trades in sequence order.
	GetTradesByRun(ctx context.Context, runID string) ([]model.Trade, error)

	// --- Welfare records ---

	// InsertWelfareRecord appends one interval's welfare record.
	InsertWelfareRecord(ctx context.Context, runID string, rec model.WelfareRecord) error

	// GetWelfareByRun returns a run's welfare records in interval order.
	GetWelfareByRun(ctx context.Context, runID string) ([]model.WelfareRecord, error)
}
