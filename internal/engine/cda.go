package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/book"
	"github.com/gridmesh/p2p-market/internal/model"
)

// CDA matches incoming orders continuously against the resting book.
//
// Trade price is always the resting (maker) order's quoted price, even
// when the incoming limit is more aggressive. Ties at the same price are
// broken strictly by arrival sequence; the book's ordering guarantees
// that, so the engine only ever consumes the front of the opposite side.
type CDA struct{}

// Name implements Mechanism.
func (*CDA) Name() string { return MechanismCDA }

// Submit runs the match loop for one incoming order, then rests any
// remainder at a fresh arrival sequence. The book must be uncrossed when
// Submit returns; a crossed book is a matching bug and fatal.
func (*CDA) Submit(b *book.Book, o *model.Order, nextSeq func() uint64) ([]model.Trade, error) {
	var trades []model.Trade

	for !o.Filled() {
		resting := bestOpposite(b, o.Side)
		if resting == nil || !crossed(o, resting) {
			break
		}

		qty := decimal.Min(o.QuantityRemaining, resting.QuantityRemaining)
		if qty.LessThanOrEqual(decimal.Zero) {
			return trades, fmt.Errorf("%w: non-positive match quantity %s (taker %d, maker %d)",
				model.ErrInvariantViolation, qty, o.ID, resting.ID)
		}

		trades = append(trades, makeTrade(o, resting, resting.Price, qty))

		o.QuantityRemaining = o.QuantityRemaining.Sub(qty)
		resting.QuantityRemaining = resting.QuantityRemaining.Sub(qty)
		if o.QuantityRemaining.IsNegative() || resting.QuantityRemaining.IsNegative() {
			return trades, fmt.Errorf("%w: fill exceeds remaining quantity (taker %d, maker %d)",
				model.ErrInvariantViolation, o.ID, resting.ID)
		}
		if resting.Filled() {
			b.Remove(resting)
		}
	}

	if !o.Filled() {
		o.ArrivalSeq = nextSeq()
		if err := b.Add(o); err != nil {
			return trades, err
		}
	}

	if b.IsCrossed() {
		return trades, fmt.Errorf("%w: book crossed after submit of order %d", model.ErrInvariantViolation, o.ID)
	}
	return trades, nil
}

// EndInterval is a no-op for the CDA: whether resting orders survive the
// interval boundary is the controller's configuration, not a matching
// concern.
func (*CDA) EndInterval(*book.Book) ([]model.Trade, error) {
	return nil, nil
}

func bestOpposite(b *book.Book, s model.Side) *model.Order {
	if s == model.Buy {
		return b.BestAsk()
	}
	return b.BestBid()
}
