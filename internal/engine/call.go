package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/book"
	"github.com/gridmesh/p2p-market/internal/model"
)

// Call clears the book once per interval at a single uniform price.
//
// Orders only rest during the interval; at interval end the cumulative
// demand and supply curves are intersected, the clearing price is picked
// inside the crossing range per the tie rule, and the matched quantity —
// optionally capped by feeder capacity — is allocated in price-then-
// arrival priority. Unmatched remainders are discarded, never rolled
// into the next interval.
type Call struct {
	opts Options
}

// Name implements Mechanism.
func (*Call) Name() string { return MechanismCall }

// Submit rests the incoming order; no intra-interval matching occurs.
func (*Call) Submit(b *book.Book, o *model.Order, nextSeq func() uint64) ([]model.Trade, error) {
	o.ArrivalSeq = nextSeq()
	if err := b.Add(o); err != nil {
		return nil, err
	}
	return nil, nil
}

// EndInterval computes the uniform-price clearing. A non-crossing book
// clears zero trades; that is a normal, reportable outcome.
func (c *Call) EndInterval(b *book.Book) ([]model.Trade, error) {
	defer b.Reset() // call auctions never carry orders across intervals
	c.opts.Feeder.NextInterval()

	bids, asks := b.Bids(), b.Asks()
	if len(bids) == 0 || len(asks) == 0 {
		return nil, nil
	}
	if bids[0].Price.LessThan(asks[0].Price) {
		return nil, nil // curves never cross
	}

	low, high := crossingRange(bids, asks)
	price := c.clearingPrice(low, high)

	matched := decimal.Min(demandAt(bids, low), supplyAt(asks, high))
	if c.opts.Feeder.Bounded() {
		matched = c.opts.Feeder.Clamp(matched)
	}
	if matched.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	return allocate(bids, asks, matched, price), nil
}

// crossingRange brackets the intersection of the cumulative demand and
// supply curves over the grid of quoted prices. Demand dominates supply
// at the low end of the grid and supply dominates at the high end; the
// bracket is [highest price with D >= S, lowest price with S >= D],
// falling back to the grid edge when one side dominates throughout.
func crossingRange(bids, asks []*model.Order) (low, high decimal.Decimal) {
	grid := priceGrid(bids, asks)

	low, high = grid[0], grid[len(grid)-1]
	for _, p := range grid {
		if demandAt(bids, p).GreaterThanOrEqual(supplyAt(asks, p)) {
			low = p
		}
	}
	for i := len(grid) - 1; i >= 0; i-- {
		p := grid[i]
		if supplyAt(asks, p).GreaterThanOrEqual(demandAt(bids, p)) {
			high = p
		}
	}
	if high.LessThan(low) {
		// One side dominates over the whole grid; clear at the
		// dominated side's end.
		low, high = high, low
	}
	return low, high
}

func (c *Call) clearingPrice(low, high decimal.Decimal) decimal.Decimal {
	switch c.opts.TieRule {
	case TieLow:
		return low
	case TieHigh:
		return high
	default:
		two := decimal.NewFromInt(2)
		return model.RoundToResolution(low.Add(high).Div(two), c.opts.PriceResolution)
	}
}

// priceGrid returns the sorted distinct quoted prices of both sides.
func priceGrid(bids, asks []*model.Order) []decimal.Decimal {
	var grid []decimal.Decimal
	seen := make(map[string]bool)
	for _, o := range append(append([]*model.Order{}, bids...), asks...) {
		k := o.Price.String()
		if !seen[k] {
			seen[k] = true
			grid = append(grid, o.Price)
		}
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i].LessThan(grid[j]) })
	return grid
}

// demandAt is the cumulative bid quantity willing to pay at least p.
func demandAt(bids []*model.Order, p decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, o := range bids {
		if o.Price.GreaterThanOrEqual(p) {
			total = total.Add(o.QuantityRemaining)
		}
	}
	return total
}

// supplyAt is the cumulative ask quantity willing to sell at most p.
func supplyAt(asks []*model.Order, p decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, o := range asks {
		if o.Price.LessThanOrEqual(p) {
			total = total.Add(o.QuantityRemaining)
		}
	}
	return total
}

// allocate fills the matched quantity across both sides in price-then-
// arrival priority and pairs the fills into uniform-price trades. The
// earlier-arriving order of each pair is recorded as the maker.
func allocate(bids, asks []*model.Order, matched, price decimal.Decimal) []model.Trade {
	bidFills := fills(bids, matched)
	askFills := fills(asks, matched)

	var trades []model.Trade
	i, j := 0, 0
	for i < len(bidFills) && j < len(askFills) {
		bf, af := &bidFills[i], &askFills[j]
		qty := decimal.Min(bf.qty, af.qty)

		maker, taker := bf.order, af.order
		if af.order.ArrivalSeq < bf.order.ArrivalSeq {
			maker, taker = af.order, bf.order
		}
		trades = append(trades, makeTrade(taker, maker, price, qty))

		bf.order.QuantityRemaining = bf.order.QuantityRemaining.Sub(qty)
		af.order.QuantityRemaining = af.order.QuantityRemaining.Sub(qty)
		bf.qty = bf.qty.Sub(qty)
		af.qty = af.qty.Sub(qty)
		if bf.qty.LessThanOrEqual(decimal.Zero) {
			i++
		}
		if af.qty.LessThanOrEqual(decimal.Zero) {
			j++
		}
	}
	return trades
}

type fill struct {
	order *model.Order
	qty   decimal.Decimal
}

func fills(side []*model.Order, budget decimal.Decimal) []fill {
	var out []fill
	for _, o := range side {
		if budget.LessThanOrEqual(decimal.Zero) {
			break
		}
		qty := decimal.Min(o.QuantityRemaining, budget)
		out = append(out, fill{order: o, qty: qty})
		budget = budget.Sub(qty)
	}
	return out
}
