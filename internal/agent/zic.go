package agent

import (
	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/model"
)

// ZIC price band bounds in c/kWh.
const (
	zicBandLow  = 10.0
	zicBandHigh = 25.0
)

// ZIC is the zero-intelligence constrained baseline: it quotes its net
// position at a uniform-random price within a plausible band, never
// reacting to the book. The constraint is budgetary — bids never exceed
// the band's feasible range above cost, mirroring Gode–Sunder ZI-C.
type ZIC struct {
	*Prosumer
}

// NewZIC builds the baseline strategy.
func NewZIC(id string, seed int64) *ZIC {
	return &ZIC{Prosumer: NewProsumer(id, seed)}
}

// Decide posts the net position at a random in-band price. Without
// profiles the side is a fair coin flip with a small fixed quantity, so
// bare rosters still generate two-sided flow.
func (z *ZIC) Decide(_ model.MarketView, interval int) []model.Intent {
	_, qty, side, ok := z.Quote(interval)
	if !ok {
		if z.rng.Intn(2) == 0 {
			side = model.Sell
		} else {
			side = model.Buy
		}
		qty = decimal.NewFromFloat(0.5)
	}

	price := zicBandLow + z.rng.Float64()*(zicBandHigh-zicBandLow)
	return []model.Intent{{
		Type:     model.IntentSubmit,
		Side:     side,
		Price:    decimal.NewFromFloat(price).Round(1),
		Quantity: qty,
	}}
}
