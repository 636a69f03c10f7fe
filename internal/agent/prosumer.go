// Package agent implements the prosumer decision strategies that drive
// simulation runs: zero-intelligence constrained (zic), satisficer,
// optimizer, and an epsilon-greedy learner. Agents are external to the
// clearing core: each produces at most one batch of order intents per
// interval from the read-only market view the core hands it.
package agent

import (
	"hash/fnv"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/env"
	"github.com/gridmesh/p2p-market/internal/model"
)

// Agent produces order intents for one interval. Decide is called at
// most once per agent per interval, with the view the configured
// info-set allows.
type Agent interface {
	ID() string
	Decide(view model.MarketView, interval int) []model.Intent
}

// Prosumer is the shared base: a household with load/PV/EV profiles and
// an optional battery. Its net position sets the side and size of the
// interval's quote; strategy subtypes only decide pricing and whether to
// lift an existing quote.
type Prosumer struct {
	AgentID string

	// Per-interval energy profiles in kWh. Missing profiles are zero.
	Load []float64
	PV   []float64
	EV   []float64

	Battery *env.Battery

	// Retail is the anchor price in c/kWh buyers stay under and
	// sellers stay over.
	Retail decimal.Decimal

	rng *rand.Rand
}

// NewProsumer creates the base agent with a deterministic per-agent RNG
// derived from the run seed and the agent id.
func NewProsumer(id string, seed int64) *Prosumer {
	return &Prosumer{
		AgentID: id,
		Retail:  decimal.NewFromFloat(env.RetailPriceCkWh),
		rng:     rand.New(rand.NewSource(seed ^ int64(idHash(id)))),
	}
}

// ID implements Agent.
func (p *Prosumer) ID() string { return p.AgentID }

// NetKWh is the interval's net energy need after self-consumption and
// battery dispatch: positive means the household must buy, negative
// means it has surplus to sell.
func (p *Prosumer) NetKWh(interval int) float64 {
	net := at(p.Load, interval) + at(p.EV, interval) - at(p.PV, interval)
	if p.Battery == nil {
		return net
	}

	dtH := float64(env.StepMinutes) / 60.0
	if net > 0 {
		res, err := p.Battery.Step(0, net/dtH, dtH)
		if err == nil {
			net -= res.DischargeKW * dtH
		}
	} else if net < 0 {
		res, err := p.Battery.Step(-net/dtH, 0, dtH)
		if err == nil {
			net += res.ChargeKW * dtH
		}
	}
	return net
}

// Quote derives the interval's base quote from the net position: buyers
// anchor slightly above retail would overpay, so the base bid sits just
// under retail and the base offer just over the feed-in side. Returns
// ok=false when the household is balanced.
func (p *Prosumer) Quote(interval int) (price, qty decimal.Decimal, side model.Side, ok bool) {
	net := p.NetKWh(interval)
	const eps = 1e-9
	switch {
	case net > eps:
		return p.Retail.Add(decimal.NewFromFloat(0.7)), decimal.NewFromFloat(net).Round(3), model.Buy, true
	case net < -eps:
		return p.Retail.Sub(decimal.NewFromFloat(1.3)), decimal.NewFromFloat(-net).Round(3), model.Sell, true
	default:
		return decimal.Zero, decimal.Zero, "", false
	}
}

// Decide posts the base quote unmodified. Strategy subtypes override
// this with their own pricing.
func (p *Prosumer) Decide(_ model.MarketView, interval int) []model.Intent {
	price, qty, side, ok := p.Quote(interval)
	if !ok {
		return nil
	}
	return []model.Intent{{Type: model.IntentSubmit, Side: side, Price: price, Quantity: qty}}
}

// bestFeasible scans up to maxScan opposite price levels for the best
// maker price this side could accept at its limit. maxScan <= 0 scans
// the whole depth. Requires the "book" info-set; without depth there is
// nothing to accept against.
func bestFeasible(view model.MarketView, side model.Side, limit decimal.Decimal, maxScan int) (model.PriceLevel, bool) {
	if view.Depth == nil {
		return model.PriceLevel{}, false
	}
	opposite := view.Depth.Asks
	if side == model.Sell {
		opposite = view.Depth.Bids
	}

	for i, lvl := range opposite {
		if maxScan > 0 && i >= maxScan {
			break
		}
		feasible := lvl.Price.LessThanOrEqual(limit)
		if side == model.Sell {
			feasible = lvl.Price.GreaterThanOrEqual(limit)
		}
		if feasible {
			// Levels are best-first, so the first feasible one is
			// the best available maker price.
			return lvl, true
		}
	}
	return model.PriceLevel{}, false
}

// accept builds the marketable intent that lifts a maker level: a limit
// at the maker's own price, so the maker-price rule executes there.
func accept(side model.Side, lvl model.PriceLevel, qty decimal.Decimal) model.Intent {
	return model.Intent{
		Type:     model.IntentSubmit,
		Side:     side,
		Price:    lvl.Price,
		Quantity: decimal.Min(qty, lvl.Quantity),
	}
}

func at(profile []float64, i int) float64 {
	if len(profile) == 0 {
		return 0
	}
	return profile[i%len(profile)]
}

func idHash(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}
