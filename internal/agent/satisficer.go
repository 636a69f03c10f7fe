package agent

import (
	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/model"
)

// Satisficer accepts the first resting quote within its tolerance
// instead of searching for the best one: it scans at most KMax opposite
// levels and lifts the first whose price is within TauPercent of its
// anchor. Otherwise it posts the base quote and waits.
type Satisficer struct {
	*Prosumer

	// TauPercent widens the acceptable price window around the anchor.
	TauPercent decimal.Decimal

	// KMax bounds how many opposite levels are examined.
	KMax int
}

// NewSatisficer builds a satisficer with the reference parameters
// (tau = 5%, K = 3).
func NewSatisficer(id string, seed int64) *Satisficer {
	return &Satisficer{
		Prosumer:   NewProsumer(id, seed),
		TauPercent: decimal.NewFromInt(5),
		KMax:       3,
	}
}

// Decide lifts the first good-enough maker or posts the base quote.
func (s *Satisficer) Decide(view model.MarketView, interval int) []model.Intent {
	price, qty, side, ok := s.Quote(interval)
	if !ok {
		return nil
	}

	limit := s.tolerated(price, side)
	if lvl, found := bestFeasible(view, side, limit, s.KMax); found {
		return []model.Intent{accept(side, lvl, qty)}
	}
	return []model.Intent{{Type: model.IntentSubmit, Side: side, Price: price, Quantity: qty}}
}

// tolerated stretches the anchor price by tau in the concessive
// direction: buyers accept paying up to tau more, sellers accept
// receiving up to tau less.
func (s *Satisficer) tolerated(anchor decimal.Decimal, side model.Side) decimal.Decimal {
	tau := anchor.Mul(s.TauPercent).Div(decimal.NewFromInt(100))
	if side == model.Buy {
		return anchor.Add(tau)
	}
	return anchor.Sub(tau)
}
