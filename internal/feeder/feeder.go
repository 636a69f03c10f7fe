// Package feeder models the scalar distribution-feeder capacity
// constraint: a cap on total matched energy per 5-minute interval. It
// deliberately stops short of power-flow physics; the cap is the only
// network effect the clearing core honors.
package feeder

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrCapExceeded is returned when a requested allocation does not fit in
// the remaining interval headroom.
var ErrCapExceeded = errors.New("feeder: capacity cap exceeded")

// Limit is a per-interval energy cap in kWh. The zero value is
// unlimited.
type Limit struct {
	cap  *decimal.Decimal
	used decimal.Decimal
}

// Unlimited returns a limit that never binds.
func Unlimited() *Limit { return &Limit{} }

// NewLimit creates a cap of capKWh per interval. Non-positive caps are
// treated as a hard zero (nothing clears).
func NewLimit(capKWh decimal.Decimal) *Limit {
	return &Limit{cap: &capKWh}
}

// FromKW converts a feeder power rating (kW) into a per-interval energy
// cap given the interval length in minutes.
func FromKW(kw decimal.Decimal, intervalMinutes int) *Limit {
	dtH := decimal.NewFromInt(int64(intervalMinutes)).Div(decimal.NewFromInt(60))
	return NewLimit(kw.Mul(dtH))
}

// Bounded reports whether the limit carries a cap at all.
func (l *Limit) Bounded() bool { return l != nil && l.cap != nil }

// Cap returns the configured cap; zero when unlimited.
func (l *Limit) Cap() decimal.Decimal {
	if !l.Bounded() {
		return decimal.Zero
	}
	return *l.cap
}

// Headroom returns the energy still allocatable this interval. The
// second return is false when the limit is unbounded.
func (l *Limit) Headroom() (decimal.Decimal, bool) {
	if !l.Bounded() {
		return decimal.Zero, false
	}
	h := l.cap.Sub(l.used)
	if h.IsNegative() {
		h = decimal.Zero
	}
	return h, true
}

// Clamp returns the portion of the requested energy that fits in the
// remaining headroom and records it as used.
func (l *Limit) Clamp(requested decimal.Decimal) decimal.Decimal {
	if !l.Bounded() {
		return requested
	}
	h, _ := l.Headroom()
	granted := decimal.Min(requested, h)
	if granted.IsNegative() {
		granted = decimal.Zero
	}
	l.used = l.used.Add(granted)
	return granted
}

// Reserve records the requested energy as used, or returns
// ErrCapExceeded without any state change when it does not fit.
func (l *Limit) Reserve(requested decimal.Decimal) error {
	if !l.Bounded() {
		return nil
	}
	h, _ := l.Headroom()
	if requested.GreaterThan(h) {
		return ErrCapExceeded
	}
	l.used = l.used.Add(requested)
	return nil
}

// NextInterval resets the per-interval usage. Safe on a nil (unlimited)
// limit.
func (l *Limit) NextInterval() {
	if l == nil {
		return
	}
	l.used = decimal.Zero
}
