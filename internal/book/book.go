// Package book implements the limit order book with strict price-time
// priority. Bids are ordered by price descending then arrival sequence
// ascending; asks by price ascending then arrival sequence ascending.
//
// The book exclusively owns the live orders of one market instance. It
// never matches by itself: the engine package drives matching and calls
// back into the book to remove exhausted makers.
package book

import (
	"fmt"

	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/model"
)

// orderKey orders entries within one side of the book.
type orderKey struct {
	price decimal.Decimal
	seq   uint64
}

// bidOrder ranks bids best-first: highest price, then earliest arrival.
type bidOrder struct{}

func (bidOrder) Compare(lhs, rhs interface{}) int {
	l, r := lhs.(orderKey), rhs.(orderKey)
	if c := r.price.Cmp(l.price); c != 0 {
		return c
	}
	return compareSeq(l.seq, r.seq)
}

func (bidOrder) CalcScore(key interface{}) float64 {
	return -key.(orderKey).price.InexactFloat64()
}

// askOrder ranks asks best-first: lowest price, then earliest arrival.
type askOrder struct{}

func (askOrder) Compare(lhs, rhs interface{}) int {
	l, r := lhs.(orderKey), rhs.(orderKey)
	if c := l.price.Cmp(r.price); c != 0 {
		return c
	}
	return compareSeq(l.seq, r.seq)
}

func (askOrder) CalcScore(key interface{}) float64 {
	return key.(orderKey).price.InexactFloat64()
}

func compareSeq(l, r uint64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

// Book holds the resting orders of one market instance. It is not safe
// for concurrent use; one instance is driven by exactly one goroutine.
type Book struct {
	bids   *skiplist.SkipList
	asks   *skiplist.SkipList
	orders map[uint64]*model.Order
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids:   skiplist.New(bidOrder{}),
		asks:   skiplist.New(askOrder{}),
		orders: make(map[uint64]*model.Order),
	}
}

// Add rests an order at its priority position. The order must already
// carry a validated price/quantity and a fresh arrival sequence.
func (b *Book) Add(o *model.Order) error {
	if !o.Side.Valid() || o.Price.LessThanOrEqual(decimal.Zero) || o.QuantityRemaining.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: side=%s price=%s qty=%s", model.ErrInvalidOrder, o.Side, o.Price, o.QuantityRemaining)
	}
	if _, exists := b.orders[o.ID]; exists {
		return fmt.Errorf("%w: duplicate id %d", model.ErrInvalidOrder, o.ID)
	}
	b.sideList(o.Side).Set(orderKey{price: o.Price, seq: o.ArrivalSeq}, o)
	b.orders[o.ID] = o
	return nil
}

// Cancel removes a resting order. Cancelling a dead or unknown id
// returns ErrNotFound and leaves the book unchanged.
func (b *Book) Cancel(id uint64) (*model.Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", model.ErrNotFound, id)
	}
	b.remove(o)
	return o, nil
}

// Remove deletes a live order without cancel semantics. Used by the
// engine when a maker is fully filled.
func (b *Book) Remove(o *model.Order) {
	b.remove(o)
}

func (b *Book) remove(o *model.Order) {
	b.sideList(o.Side).Remove(orderKey{price: o.Price, seq: o.ArrivalSeq})
	delete(b.orders, o.ID)
}

// Modify applies a price and/or quantity change to a live order.
//
// Exchange semantics: any price change or quantity increase resets the
// arrival sequence (nextSeq supplies the fresh value) and the order is
// removed from the book so the caller can re-enter it through the
// matching path; reset=true signals this. A quantity decrease at an
// unchanged price keeps time priority and is applied in place.
//
// A resulting quantity <= 0 is an implicit cancel: the order is removed
// and ErrInvalidOrder returned.
func (b *Book) Modify(id uint64, newPrice, newQty *decimal.Decimal, nextSeq func() uint64) (o *model.Order, reset bool, err error) {
	o, ok := b.orders[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: order %d", model.ErrNotFound, id)
	}

	price := o.Price
	if newPrice != nil {
		price = *newPrice
	}
	qty := o.QuantityRemaining
	if newQty != nil {
		qty = *newQty
	}

	if price.LessThanOrEqual(decimal.Zero) || qty.LessThanOrEqual(decimal.Zero) {
		b.remove(o)
		return o, false, fmt.Errorf("%w: modify to price=%s qty=%s cancels order %d", model.ErrInvalidOrder, price, qty, id)
	}

	priceChanged := !price.Equal(o.Price)
	qtyIncreased := qty.GreaterThan(o.QuantityRemaining)

	if !priceChanged && !qtyIncreased {
		// In-place shrink keeps the arrival sequence.
		o.QuantityRemaining = qty
		return o, false, nil
	}

	b.remove(o)
	o.Price = price
	o.QuantityRemaining = qty
	if qty.GreaterThan(o.QuantityOriginal) {
		o.QuantityOriginal = qty
	}
	o.ArrivalSeq = nextSeq()
	return o, true, nil
}

// Get returns a live order by id.
func (b *Book) Get(id uint64) (*model.Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// BestBid returns the top-priority bid, or nil when the side is empty.
func (b *Book) BestBid() *model.Order {
	return front(b.bids)
}

// BestAsk returns the top-priority ask, or nil when the side is empty.
func (b *Book) BestAsk() *model.Order {
	return front(b.asks)
}

func front(l *skiplist.SkipList) *model.Order {
	e := l.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*model.Order)
}

// IsCrossed reports whether best bid price >= best ask price. It is an
// internal consistency check: it must never be true after the engine has
// completely processed an event.
func (b *Book) IsCrossed() bool {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// Bids returns the live bids in priority order.
func (b *Book) Bids() []*model.Order { return collect(b.bids) }

// Asks returns the live asks in priority order.
func (b *Book) Asks() []*model.Order { return collect(b.asks) }

func collect(l *skiplist.SkipList) []*model.Order {
	out := make([]*model.Order, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*model.Order))
	}
	return out
}

// Len returns the number of live orders on both sides.
func (b *Book) Len() int { return len(b.orders) }

// Snapshot aggregates resting depth into price levels, best first.
func (b *Book) Snapshot() model.BookSnapshot {
	return model.BookSnapshot{
		Bids: levels(b.bids),
		Asks: levels(b.asks),
	}
}

func levels(l *skiplist.SkipList) []model.PriceLevel {
	var out []model.PriceLevel
	for e := l.Front(); e != nil; e = e.Next() {
		o := e.Value.(*model.Order)
		if n := len(out); n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Quantity = out[n-1].Quantity.Add(o.QuantityRemaining)
			out[n-1].Orders++
			continue
		}
		out = append(out, model.PriceLevel{Price: o.Price, Quantity: o.QuantityRemaining, Orders: 1})
	}
	return out
}

// Reset discards every resting order. Used between intervals when
// resting orders do not persist, and after a call-auction clearing.
func (b *Book) Reset() {
	b.bids.Init()
	b.asks.Init()
	b.orders = make(map[uint64]*model.Order)
}

func (b *Book) sideList(s model.Side) *skiplist.SkipList {
	if s == model.Buy {
		return b.bids
	}
	return b.asks
}
