// Package welfare computes per-interval surplus accounting: the realized
// quote surplus of executed trades and the planner's efficient-allocation
// bound over the same quote set. The planner bound is an efficiency
// ceiling; realized surplus exceeding it indicates a matching bug.
package welfare

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/model"
)

// Quote is one side's posted (price, quantity) pair as it entered the
// interval, before any matching.
type Quote struct {
	Side     model.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Realized sums buyer plus seller surplus over the interval's trades,
// each side measured against its own limit price:
//
//	((buyerLimit - price) + (price - sellerLimit)) * quantity
//
// The trade price cancels out, so realized surplus is independent of the
// price rule (maker price or uniform) that produced the trades.
func Realized(trades []model.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		perUnit := t.BuyerLimit.Sub(t.Price).Add(t.Price.Sub(t.SellerLimit))
		total = total.Add(perUnit.Mul(t.Quantity))
	}
	return total
}

// PlannerBound is the surplus a hypothetical planner extracts from the
// same quotes under optimal matching: bids sorted descending, asks
// ascending, matched pairwise while bid >= ask. Mechanism constraints
// (maker price, feeder cap) are ignored. Returns the bound and the
// energy the planner would trade.
func PlannerBound(quotes []Quote) (bound, traded decimal.Decimal) {
	type pq struct {
		price, qty decimal.Decimal
	}
	var bids, asks []pq
	for _, q := range quotes {
		if q.Side == model.Buy {
			bids = append(bids, pq{q.Price, q.Quantity})
		} else {
			asks = append(asks, pq{q.Price, q.Quantity})
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].price.GreaterThan(bids[j].price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].price.LessThan(asks[j].price) })

	bound, traded = decimal.Zero, decimal.Zero
	i, j := 0, 0
	for i < len(bids) && j < len(asks) {
		if bids[i].price.LessThan(asks[j].price) {
			break
		}
		qty := decimal.Min(bids[i].qty, asks[j].qty)
		bound = bound.Add(bids[i].price.Sub(asks[j].price).Mul(qty))
		traded = traded.Add(qty)
		bids[i].qty = bids[i].qty.Sub(qty)
		asks[j].qty = asks[j].qty.Sub(qty)
		if bids[i].qty.LessThanOrEqual(decimal.Zero) {
			i++
		}
		if asks[j].qty.LessThanOrEqual(decimal.Zero) {
			j++
		}
	}
	return bound, traded
}

// Evaluate builds the interval's welfare record. When the planner bound
// is zero (flat or non-crossing quotes), the record carries the
// distinguished NoTrade marker instead of a zero ratio.
func Evaluate(interval int, trades []model.Trade, quotes []Quote) model.WelfareRecord {
	realized := Realized(trades)
	bound, _ := PlannerBound(quotes)

	rec := model.WelfareRecord{
		Interval:        interval,
		RealizedSurplus: realized,
		PlannerBound:    bound,
	}
	if bound.LessThanOrEqual(decimal.Zero) {
		rec.NoTrade = true
		return rec
	}
	rec.NormalizedWelfare = realized.Div(bound)
	return rec
}
