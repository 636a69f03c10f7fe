// Package model defines the core domain types shared across the market
// simulator. All prices and energy quantities use shopspring/decimal —
// never float64 for money or traded energy.
package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DefaultPriceResolution is the fixed-point tick size (c/kWh) applied to
// every admitted price and to computed clearing prices.
var DefaultPriceResolution = decimal.NewFromFloat(0.1)

var (
	// ErrInvalidOrder is returned when an order has a non-positive price
	// or quantity, or a malformed side. The order never enters the book.
	ErrInvalidOrder = errors.New("market: invalid order")

	// ErrNotFound is returned by cancel/modify referencing a dead or
	// unknown order id. Book state is unchanged.
	ErrNotFound = errors.New("market: order not found")

	// ErrInvariantViolation indicates the book was found crossed after an
	// event, or a trade exceeded an order's remaining quantity. It is
	// fatal for the market instance: the matching logic is broken and the
	// instance must stop rather than continue with corrupted state.
	ErrInvariantViolation = errors.New("market: invariant violation")
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a limit order for energy in one interval. The intent fields
// (ID, AgentID, Side, Price, QuantityOriginal) are immutable after
// submission; QuantityRemaining is decremented by fills, and ArrivalSeq
// is reassigned only by priority-resetting modifications.
type Order struct {
	ID                uint64          `json:"id"`
	AgentID           string          `json:"agent_id"`
	Side              Side            `json:"side"`
	Price             decimal.Decimal `json:"price"`              // c/kWh, fixed-point
	QuantityOriginal  decimal.Decimal `json:"quantity_original"`  // kWh
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"` // kWh
	ArrivalSeq        uint64          `json:"arrival_seq"`
	Interval          int             `json:"interval"`
}

// Filled reports whether the order has no remaining quantity.
func (o *Order) Filled() bool { return o.QuantityRemaining.LessThanOrEqual(decimal.Zero) }

// Trade is an immutable record of one match. Price is the execution
// price: the resting (maker) order's price under the CDA maker-price
// rule, or the uniform clearing price in a call auction. Buyer and
// seller limit prices are captured at match time for welfare accounting.
type Trade struct {
	MakerOrderID  uint64          `json:"maker_order_id"`
	TakerOrderID  uint64          `json:"taker_order_id"`
	BuyerAgentID  string          `json:"buyer_agent_id"`
	SellerAgentID string          `json:"seller_agent_id"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	BuyerLimit    decimal.Decimal `json:"buyer_limit"`
	SellerLimit   decimal.Decimal `json:"seller_limit"`
	Interval      int             `json:"interval"`
	Sequence      uint64          `json:"sequence"`
}

// WelfareRecord reports realized and attainable surplus for one interval.
// NoTrade marks intervals where no feasible trade exists (planner bound
// zero); it must be reported as such, not silently as zero, so aggregate
// statistics are not biased.
type WelfareRecord struct {
	Interval          int             `json:"interval"`
	RealizedSurplus   decimal.Decimal `json:"realized_surplus"`
	PlannerBound      decimal.Decimal `json:"planner_bound"`
	NormalizedWelfare decimal.Decimal `json:"normalized_welfare"`
	NoTrade           bool            `json:"no_trade"`
}

// PriceLevel is one aggregated depth entry in a book snapshot.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// BookSnapshot is a read-only copy of the resting depth per side, best
// priority first.
type BookSnapshot struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// Ticker is the last-trade view exposed under the "ticker" info-set.
type Ticker struct {
	LastPrice    decimal.Decimal `json:"last_price"`
	LastQuantity decimal.Decimal `json:"last_quantity"`
	Traded       bool            `json:"traded"`
}

// InfoSet selects how much market state agents are allowed to observe.
type InfoSet string

const (
	InfoSetBook   InfoSet = "book"   // full depth
	InfoSetTicker InfoSet = "ticker" // last trade only
)

// MarketView is the read-only view handed to a deciding agent. Depth is
// populated only under the "book" info-set; the ticker is always present.
type MarketView struct {
	Interval int           `json:"interval"`
	BestBid  *PriceLevel   `json:"best_bid,omitempty"`
	BestAsk  *PriceLevel   `json:"best_ask,omitempty"`
	Depth    *BookSnapshot `json:"depth,omitempty"`
	Ticker   Ticker        `json:"ticker"`
}

// IntentType enumerates the order events an agent may produce.
type IntentType string

const (
	IntentSubmit IntentType = "submit"
	IntentCancel IntentType = "cancel"
	IntentModify IntentType = "modify"
)

// Intent is one order event produced by an agent for the current
// interval. Submits use Side/Price/Quantity; cancels use OrderID;
// modifies use OrderID plus any of NewPrice/NewQuantity.
type Intent struct {
	Type        IntentType
	Side        Side
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	OrderID     uint64
	NewPrice    *decimal.Decimal
	NewQuantity *decimal.Decimal
}

// RoundToResolution snaps a price to the fixed-point grid (half-away
// rounding), matching the resolution applied at order admission.
func RoundToResolution(p, resolution decimal.Decimal) decimal.Decimal {
	if resolution.LessThanOrEqual(decimal.Zero) {
		return p
	}
	return p.Div(resolution).Round(0).Mul(resolution)
}
