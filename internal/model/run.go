package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one simulation run: a single market instance driven over a
// fixed number of intervals by one agent roster. Totals are filled when
// the run completes.
type Run struct {
	ID               string          `json:"id"`
	Mechanism        string          `json:"mechanism"`
	InfoSet          InfoSet         `json:"info_set"`
	Agents           []string        `json:"agents"`
	Intervals        int             `json:"intervals"`
	Seed             int64           `json:"seed"`
	Status           string          `json:"status"`
	PostedKWh        decimal.Decimal `json:"posted_kwh"`
	TradedKWh        decimal.Decimal `json:"traded_kwh"`
	RealizedSurplus  decimal.Decimal `json:"realized_surplus"`
	PlannerBound     decimal.Decimal `json:"planner_bound"`
	NoTradeIntervals int             `json:"no_trade_intervals"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}
