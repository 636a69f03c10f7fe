package feeder

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestUnlimited_NeverBinds(t *testing.T) {
	l := Unlimited()
	if l.Bounded() {
		t.Error("unlimited limit must not report bounded")
	}
	if got := l.Clamp(d(1e6)); !got.Equal(d(1e6)) {
		t.Errorf("unlimited clamp must pass through, got %s", got)
	}
	if err := l.Reserve(d(1e6)); err != nil {
		t.Errorf("unlimited reserve must succeed, got %v", err)
	}
}

func TestNilLimit_IsUnlimited(t *testing.T) {
	var l *Limit
	if l.Bounded() {
		t.Error("nil limit must not report bounded")
	}
	l.NextInterval() // must not panic
}

func TestClamp_WithinHeadroom(t *testing.T) {
	l := NewLimit(d(10))
	if got := l.Clamp(d(4)); !got.Equal(d(4)) {
		t.Errorf("expected full grant 4, got %s", got)
	}
	if h, _ := l.Headroom(); !h.Equal(d(6)) {
		t.Errorf("expected headroom 6, got %s", h)
	}
}

func TestClamp_PartialGrant(t *testing.T) {
	l := NewLimit(d(10))
	l.Clamp(d(8))
	if got := l.Clamp(d(5)); !got.Equal(d(2)) {
		t.Errorf("expected partial grant 2, got %s", got)
	}
	if got := l.Clamp(d(1)); !got.IsZero() {
		t.Errorf("exhausted cap must grant zero, got %s", got)
	}
}

func TestReserve_AllOrNothing(t *testing.T) {
	l := NewLimit(d(10))
	if err := l.Reserve(d(7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Reserve(d(4)); err != ErrCapExceeded {
		t.Errorf("expected ErrCapExceeded, got %v", err)
	}
	// The failed reserve must not consume headroom.
	if err := l.Reserve(d(3)); err != nil {
		t.Errorf("remaining headroom 3 should admit 3, got %v", err)
	}
}

func TestNextInterval_ResetsUsage(t *testing.T) {
	l := NewLimit(d(5))
	l.Clamp(d(5))
	l.NextInterval()
	if got := l.Clamp(d(5)); !got.Equal(d(5)) {
		t.Errorf("expected full headroom after interval reset, got %s", got)
	}
}

func TestFromKW_ConvertsToIntervalEnergy(t *testing.T) {
	// 24 kW over a 5-minute interval is 2 kWh.
	l := FromKW(d(24), 5)
	if !l.Cap().Equal(d(2)) {
		t.Errorf("expected 2 kWh cap, got %s", l.Cap())
	}
}

func TestZeroCap_NothingClears(t *testing.T) {
	l := NewLimit(d(0))
	if !l.Bounded() {
		t.Error("zero cap is still a bounded limit")
	}
	if got := l.Clamp(d(3)); !got.IsZero() {
		t.Errorf("zero cap must grant nothing, got %s", got)
	}
}
