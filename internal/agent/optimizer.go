package agent

import (
	"github.com/gridmesh/p2p-market/internal/model"
)

// Optimizer evaluates the full visible depth and lifts the best
// feasible maker (the one leaving it the most surplus against its
// anchor). When nothing feasible rests, it posts its base quote.
type Optimizer struct {
	*Prosumer
}

// NewOptimizer builds the optimizing strategy.
func NewOptimizer(id string, seed int64) *Optimizer {
	return &Optimizer{Prosumer: NewProsumer(id, seed)}
}

// Decide accepts the best feasible maker or posts.
func (o *Optimizer) Decide(view model.MarketView, interval int) []model.Intent {
	price, qty, side, ok := o.Quote(interval)
	if !ok {
		return nil
	}
	if lvl, found := bestFeasible(view, side, price, 0); found {
		return []model.Intent{accept(side, lvl, qty)}
	}
	return []model.Intent{{Type: model.IntentSubmit, Side: side, Price: price, Quantity: qty}}
}
