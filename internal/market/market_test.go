package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/engine"
	"github.com/gridmesh/p2p-market/internal/feeder"
	"github.com/gridmesh/p2p-market/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newMarket(t *testing.T, cfg Config) *Market {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func submit(side model.Side, price, qty float64) model.Intent {
	return model.Intent{Type: model.IntentSubmit, Side: side, Price: d(price), Quantity: d(qty)}
}

func cancel(orderID uint64) model.Intent {
	return model.Intent{Type: model.IntentCancel, OrderID: orderID}
}

func modify(orderID uint64, newPrice, newQty *decimal.Decimal) model.Intent {
	return model.Intent{Type: model.IntentModify, OrderID: orderID, NewPrice: newPrice, NewQuantity: newQty}
}

// --- Lifecycle ---

func TestMarket_LifecycleEnforced(t *testing.T) {
	m := newMarket(t, Config{})

	// Fresh instance sits in Settled; collecting requires BeginInterval.
	if err := m.Collect("a", submit(model.Buy, 10, 1)); !errors.Is(err, ErrBadState) {
		t.Errorf("Collect before BeginInterval: expected ErrBadState, got %v", err)
	}
	if _, err := m.Clear(); !errors.Is(err, ErrBadState) {
		t.Errorf("Clear before BeginInterval: expected ErrBadState, got %v", err)
	}

	if err := m.BeginInterval(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != StateCollecting {
		t.Errorf("expected collecting state, got %s", m.State())
	}
	if err := m.BeginInterval(); !errors.Is(err, ErrBadState) {
		t.Errorf("double BeginInterval: expected ErrBadState, got %v", err)
	}

	if _, err := m.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != StateSettled {
		t.Errorf("expected settled state after Clear, got %s", m.State())
	}
	if _, err := m.Clear(); !errors.Is(err, ErrBadState) {
		t.Errorf("double Clear: expected ErrBadState, got %v", err)
	}
}

func TestMarket_IntervalAdvances(t *testing.T) {
	m := newMarket(t, Config{})
	for want := 1; want <= 3; want++ {
		m.BeginInterval()
		if m.Interval() != want {
			t.Errorf("expected interval %d, got %d", want, m.Interval())
		}
		m.Clear()
	}
}

func TestMarket_OneCollectPerAgentPerInterval(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()

	if err := m.Collect("a", submit(model.Buy, 10, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Collect("a", submit(model.Buy, 11, 1)); err == nil {
		t.Error("second Collect for the same agent must be rejected")
	}

	m.Clear()
	m.BeginInterval()
	if err := m.Collect("a", submit(model.Buy, 10, 1)); err != nil {
		t.Errorf("new interval must admit the agent again, got %v", err)
	}
}

// --- CDA clearing through the controller ---

func TestMarket_CDATradeStamping(t *testing.T) {
	m := newMarket(t, Config{Mechanism: engine.MechanismCDA})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 10, 3))
	m.Collect("b", submit(model.Sell, 8, 3))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Interval != 1 || tr.Sequence != 1 {
		t.Errorf("expected interval=1 sequence=1, got %d/%d", tr.Interval, tr.Sequence)
	}
	if !tr.Price.Equal(d(10)) {
		t.Errorf("expected maker price 10, got %s", tr.Price)
	}
	if !res.PostedKWh.Equal(d(6)) || !res.TradedKWh.Equal(d(3)) {
		t.Errorf("expected posted=6 traded=3, got %s/%s", res.PostedKWh, res.TradedKWh)
	}
}

func TestMarket_TradeSequenceMonotonicAcrossIntervals(t *testing.T) {
	m := newMarket(t, Config{})
	var last uint64
	for i := 0; i < 3; i++ {
		m.BeginInterval()
		m.Collect("a", submit(model.Buy, 10, 1))
		m.Collect("b", submit(model.Sell, 9, 1))
		res, err := m.Clear()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, tr := range res.Trades {
			if tr.Sequence <= last {
				t.Errorf("trade sequence not monotonic: %d after %d", tr.Sequence, last)
			}
			last = tr.Sequence
		}
	}
}

func TestMarket_DeterministicAgentOrdering(t *testing.T) {
	// The same intent set collected in different call orders must produce
	// an identical trade sequence: intents apply in ascending agent id.
	run := func(first, second string) []model.Trade {
		m := newMarket(t, Config{})
		m.BeginInterval()
		intents := map[string]model.Intent{
			"alice": submit(model.Buy, 10, 2),
			"bob":   submit(model.Sell, 9, 2),
		}
		m.Collect(first, intents[first])
		m.Collect(second, intents[second])
		res, err := m.Clear()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res.Trades
	}

	a := run("alice", "bob")
	b := run("bob", "alice")

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 trade in each run, got %d/%d", len(a), len(b))
	}
	if a[0].MakerOrderID != b[0].MakerOrderID || !a[0].Price.Equal(b[0].Price) {
		t.Errorf("collection order leaked into the outcome: %+v vs %+v", a[0], b[0])
	}
	// Alice's bid applies first, so it is the resting maker at price 10.
	if !a[0].Price.Equal(d(10)) {
		t.Errorf("expected maker price 10 (alice's bid resting), got %s", a[0].Price)
	}
}

// --- Rejections ---

func TestMarket_RecoverableErrorsBecomeRejections(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, -5, 1)) // invalid price
	m.Collect("b", cancel(999))              // unknown id
	m.Collect("c", submit(model.Buy, 10, 1)) // fine

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("recoverable errors must not fail the interval: %v", err)
	}
	if len(res.Rejections) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(res.Rejections))
	}
	if !errors.Is(res.Rejections[0].Err, model.ErrInvalidOrder) {
		t.Errorf("expected ErrInvalidOrder, got %v", res.Rejections[0].Err)
	}
	if !errors.Is(res.Rejections[1].Err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", res.Rejections[1].Err)
	}
	// The valid submit still rested.
	if len(res.Book.Bids) != 1 {
		t.Errorf("expected the valid bid resting, got %+v", res.Book)
	}
	// Rejected submits do not count as posted energy.
	if !res.PostedKWh.Equal(d(1)) {
		t.Errorf("expected posted 1, got %s", res.PostedKWh)
	}
}

// --- Cancel and modify through the controller ---

func TestMarket_CancelWithinInterval(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	// Order ids are assigned in agent-id order, so agent "a"'s submit
	// becomes order 1 before "b"'s cancel applies.
	m.Collect("a", submit(model.Buy, 10, 2))
	m.Collect("b", cancel(1))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rejections) != 0 {
		t.Fatalf("expected clean cancel, got rejections %+v", res.Rejections)
	}
	if len(res.Book.Bids) != 0 {
		t.Errorf("cancelled order must leave the book, got %+v", res.Book.Bids)
	}
}

func TestMarket_ModifyShrinkKeepsPriority(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	q := d(3)
	m.Collect("a", submit(model.Buy, 10, 5))  // order 1
	m.Collect("b", submit(model.Buy, 10, 5))  // order 2
	m.Collect("c", modify(1, nil, &q))        // shrink in place
	m.Collect("d", submit(model.Sell, 10, 8)) // sweeps both

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(res.Trades))
	}
	// Order 1 kept time priority despite the later modify.
	if res.Trades[0].MakerOrderID != 1 || !res.Trades[0].Quantity.Equal(d(3)) {
		t.Errorf("expected first fill against order 1 x 3, got maker=%d qty=%s",
			res.Trades[0].MakerOrderID, res.Trades[0].Quantity)
	}
	if res.Trades[1].MakerOrderID != 2 || !res.Trades[1].Quantity.Equal(d(5)) {
		t.Errorf("expected second fill against order 2 x 5, got maker=%d qty=%s",
			res.Trades[1].MakerOrderID, res.Trades[1].Quantity)
	}
}

func TestMarket_ModifyPriceChangeRematches(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	p := d(10)
	m.Collect("a", submit(model.Sell, 12, 1)) // order 1, rests
	m.Collect("b", submit(model.Buy, 10, 1))  // order 2, rests
	m.Collect("c", modify(1, &p, nil))        // reprice into the bid

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("repriced order must rematch immediately, got %d trades", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.MakerOrderID != 2 || !tr.Price.Equal(d(10)) {
		t.Errorf("expected fill against resting bid 2 at 10, got maker=%d price=%s",
			tr.MakerOrderID, tr.Price)
	}
}

func TestMarket_ModifyToZeroIsImplicitCancel(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	q := d(0)
	m.Collect("a", submit(model.Buy, 10, 2))
	m.Collect("b", modify(1, nil, &q))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rejections) != 1 || !errors.Is(res.Rejections[0].Err, model.ErrInvalidOrder) {
		t.Errorf("implicit cancel must surface as an ErrInvalidOrder rejection, got %+v", res.Rejections)
	}
	if len(res.Book.Bids) != 0 {
		t.Errorf("implicitly cancelled order must leave the book")
	}
}

// --- Resting order persistence ---

func TestMarket_BookFlushedBetweenIntervalsByDefault(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 10, 2))
	m.Clear()

	m.BeginInterval()
	m.Collect("b", submit(model.Sell, 9, 2))
	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("previous interval's bid must not survive, got %d trades", len(res.Trades))
	}
}

func TestMarket_PersistRestingCarriesOrders(t *testing.T) {
	m := newMarket(t, Config{PersistResting: true})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 10, 2))
	m.Clear()

	m.BeginInterval()
	m.Collect("b", submit(model.Sell, 9, 2))
	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("carried-over bid must be matchable, got %d trades", len(res.Trades))
	}
	if !res.Trades[0].Price.Equal(d(10)) {
		t.Errorf("expected maker price 10 from the carried bid, got %s", res.Trades[0].Price)
	}
	// The carried quote enters the new interval's planner quote set.
	if res.Welfare.NoTrade || !res.Welfare.PlannerBound.Equal(d(2)) {
		t.Errorf("expected planner bound 2 over carried quotes, got %+v", res.Welfare)
	}
}

// --- Info set ---

func TestMarket_BookInfoSetExposesDepth(t *testing.T) {
	m := newMarket(t, Config{InfoSet: model.InfoSetBook, PersistResting: true})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 10, 2))
	m.Clear()
	m.BeginInterval()

	v := m.View()
	if v.Depth == nil || len(v.Depth.Bids) != 1 {
		t.Fatal("book info-set must expose resting depth")
	}
	if v.BestBid == nil || !v.BestBid.Price.Equal(d(10)) {
		t.Errorf("expected best bid 10, got %+v", v.BestBid)
	}
}

func TestMarket_TickerInfoSetHidesDepth(t *testing.T) {
	m := newMarket(t, Config{InfoSet: model.InfoSetTicker})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 10, 1))
	m.Collect("b", submit(model.Sell, 9, 1))
	m.Clear()

	v := m.View()
	if v.Depth != nil || v.BestBid != nil || v.BestAsk != nil {
		t.Error("ticker info-set must hide depth")
	}
	if !v.Ticker.Traded || !v.Ticker.LastPrice.Equal(d(10)) {
		t.Errorf("ticker must carry the last trade, got %+v", v.Ticker)
	}
}

// --- Call mode through the controller ---

func TestMarket_CallModeClearsAtIntervalEnd(t *testing.T) {
	m := newMarket(t, Config{Mechanism: engine.MechanismCall})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 12, 2))
	m.Collect("b", submit(model.Buy, 10, 2))
	m.Collect("c", submit(model.Sell, 9, 2))
	m.Collect("d", submit(model.Sell, 11, 2))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TradedKWh.Equal(d(4)) {
		t.Errorf("expected 4 kWh cleared, got %s", res.TradedKWh)
	}
	for _, tr := range res.Trades {
		if !tr.Price.Equal(res.Trades[0].Price) {
			t.Error("call clearing must be uniform-price")
		}
		if tr.Interval != 1 {
			t.Errorf("expected interval stamp 1, got %d", tr.Interval)
		}
	}
	// Unmatched remainders are discarded.
	if len(res.Book.Bids) != 0 || len(res.Book.Asks) != 0 {
		t.Errorf("call book must be empty after clearing, got %+v", res.Book)
	}
}

func TestMarket_CallModeFeederCap(t *testing.T) {
	m := newMarket(t, Config{
		Mechanism: engine.MechanismCall,
		Feeder:    feeder.NewLimit(d(1)),
	})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 12, 2))
	m.Collect("b", submit(model.Sell, 9, 2))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TradedKWh.Equal(d(1)) {
		t.Errorf("feeder cap 1 must clamp cleared energy, got %s", res.TradedKWh)
	}
	// The planner bound ignores the cap; welfare reflects the shortfall.
	if !res.Welfare.PlannerBound.Equal(d(6)) {
		t.Errorf("expected planner bound 6, got %s", res.Welfare.PlannerBound)
	}
	if !res.Welfare.RealizedSurplus.Equal(d(3)) {
		t.Errorf("expected realized 3, got %s", res.Welfare.RealizedSurplus)
	}
}

// --- Welfare integration ---

func TestMarket_WelfareFullEfficiency(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 12, 2))
	m.Collect("b", submit(model.Sell, 9, 2))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Welfare.NoTrade {
		t.Fatal("crossing interval must not be NoTrade")
	}
	if !res.Welfare.NormalizedWelfare.Equal(d(1)) {
		t.Errorf("full fill of the efficient pair: expected welfare 1, got %s",
			res.Welfare.NormalizedWelfare)
	}
}

func TestMarket_NoTradeIntervalMarked(t *testing.T) {
	m := newMarket(t, Config{})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 8, 2))
	m.Collect("b", submit(model.Sell, 11, 2))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(res.Trades))
	}
	if !res.Welfare.NoTrade {
		t.Error("non-crossing interval must carry the NoTrade marker")
	}
}

// --- Price resolution ---

func TestMarket_PricesSnappedToResolution(t *testing.T) {
	m := newMarket(t, Config{PriceResolution: d(0.1)})
	m.BeginInterval()
	m.Collect("a", submit(model.Buy, 10.07, 1))

	res, err := m.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Book.Bids) != 1 || !res.Book.Bids[0].Price.Equal(d(10.1)) {
		t.Errorf("expected admitted price 10.1, got %+v", res.Book.Bids)
	}
}
