package agent

import (
	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/model"
)

// Learner runs epsilon-greedy bandit learning over price offsets applied
// to the base quote. The reward proxy is 1 when the offset quote would
// cross the visible book (an acceptance-probability estimate), else 0.
// When the chosen offset is feasible the learner lifts the best maker;
// otherwise it posts the offset quote.
type Learner struct {
	*Prosumer

	// Epsilon is the exploration rate.
	Epsilon float64

	// ArmsCents are the candidate offsets in c/kWh, applied upward for
	// buys and downward for sells.
	ArmsCents []float64

	counts []int
	values []float64
}

// NewLearner builds a learner with the reference arm grid
// (-2..+2 c/kWh) and epsilon 0.1.
func NewLearner(id string, seed int64) *Learner {
	return &Learner{
		Prosumer:  NewProsumer(id, seed),
		Epsilon:   0.1,
		ArmsCents: []float64{-2, -1, 0, 1, 2},
	}
}

// Decide chooses an arm, scores it against the visible book, and either
// lifts the best feasible maker or posts the offset quote.
func (l *Learner) Decide(view model.MarketView, interval int) []model.Intent {
	anchor, qty, side, ok := l.Quote(interval)
	if !ok {
		return nil
	}

	arm := l.chooseArm()
	offset := decimal.NewFromFloat(l.ArmsCents[arm])
	if side == model.Sell {
		offset = offset.Neg()
	}
	price := anchor.Add(offset)
	if price.LessThanOrEqual(decimal.Zero) {
		price = anchor
	}

	lvl, feasible := bestFeasible(view, side, price, 0)
	if feasible {
		l.updateArm(arm, 1)
		return []model.Intent{accept(side, lvl, qty)}
	}
	l.updateArm(arm, 0)
	return []model.Intent{{Type: model.IntentSubmit, Side: side, Price: price, Quantity: qty}}
}

func (l *Learner) chooseArm() int {
	l.ensureArms()
	if l.rng.Float64() < l.Epsilon {
		return l.rng.Intn(len(l.ArmsCents))
	}
	best := 0
	for i, v := range l.values {
		if v > l.values[best] {
			best = i
		}
	}
	return best
}

// updateArm folds the reward into the arm's running mean.
func (l *Learner) updateArm(arm int, reward float64) {
	l.ensureArms()
	l.counts[arm]++
	n := float64(l.counts[arm])
	l.values[arm] += (reward - l.values[arm]) / n
}

func (l *Learner) ensureArms() {
	if len(l.counts) != len(l.ArmsCents) {
		l.counts = make([]int, len(l.ArmsCents))
		l.values = make([]float64, len(l.ArmsCents))
	}
}
