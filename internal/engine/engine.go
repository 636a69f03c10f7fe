// Package engine implements the two clearing mechanisms that share the
// order book: the continuous double auction (CDA), which matches every
// incoming order against the resting book on arrival under the
// maker-price rule, and the periodic call auction, which batches all
// resting orders and clears once per interval at a uniform price.
//
// A mechanism is selected once per market instance; the interval
// controller never dispatches on mechanism type itself.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/book"
	"github.com/gridmesh/p2p-market/internal/feeder"
	"github.com/gridmesh/p2p-market/internal/model"
)

// Mechanism names accepted in configuration.
const (
	MechanismCDA  = "cda"
	MechanismCall = "call"
)

// TieRule selects the clearing price inside a flat crossing range of the
// call auction's demand and supply curves.
type TieRule string

const (
	TieMidpoint TieRule = "midpoint" // midpoint of the range, rounded to resolution
	TieLow      TieRule = "low"      // demand-side end of the range
	TieHigh     TieRule = "high"     // supply-side end of the range
)

// Mechanism is the clearing strategy of one market instance.
//
// Submit processes one incoming order arrival; under CDA it may emit
// trades immediately, under the call auction it only rests the order.
// EndInterval completes the interval: a no-op for CDA, the uniform-price
// batch clearing for the call auction. Trades are returned without
// interval/sequence stamps; the controller assigns those.
type Mechanism interface {
	Name() string
	Submit(b *book.Book, o *model.Order, nextSeq func() uint64) ([]model.Trade, error)
	EndInterval(b *book.Book) ([]model.Trade, error)
}

// Options carries the mechanism configuration fixed per market instance.
type Options struct {
	// PriceResolution is the fixed-point tick size for clearing prices.
	PriceResolution decimal.Decimal

	// Feeder caps total matched energy per interval. Nil means
	// unlimited.
	Feeder *feeder.Limit

	// TieRule resolves a flat crossing range; defaults to TieMidpoint.
	TieRule TieRule
}

// New constructs the mechanism named by the configuration.
func New(name string, opts Options) (Mechanism, error) {
	if opts.PriceResolution.LessThanOrEqual(decimal.Zero) {
		opts.PriceResolution = model.DefaultPriceResolution
	}
	if opts.TieRule == "" {
		opts.TieRule = TieMidpoint
	}
	switch name {
	case MechanismCDA:
		return &CDA{}, nil
	case MechanismCall:
		return &Call{opts: opts}, nil
	default:
		return nil, fmt.Errorf("engine: unknown mechanism %q", name)
	}
}

// crossed reports whether an incoming order's limit crosses a resting
// opposite order.
func crossed(incoming, resting *model.Order) bool {
	if incoming.Side == model.Buy {
		return incoming.Price.GreaterThanOrEqual(resting.Price)
	}
	return resting.Price.GreaterThanOrEqual(incoming.Price)
}

// makeTrade builds a trade record between an incoming (taker) and
// resting (maker) order at the given execution price.
func makeTrade(taker, maker *model.Order, price, qty decimal.Decimal) model.Trade {
	t := model.Trade{
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		Price:        price,
		Quantity:     qty,
	}
	if taker.Side == model.Buy {
		t.BuyerAgentID, t.SellerAgentID = taker.AgentID, maker.AgentID
		t.BuyerLimit, t.SellerLimit = taker.Price, maker.Price
	} else {
		t.BuyerAgentID, t.SellerAgentID = maker.AgentID, taker.AgentID
		t.BuyerLimit, t.SellerLimit = maker.Price, taker.Price
	}
	return t
}
