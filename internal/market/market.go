// Package market drives one market instance through fixed 5-minute
// intervals: it collects order intents from agents in a deterministic
// order, invokes the configured clearing mechanism, and hands each
// settled interval's trades, book snapshot, and welfare record to the
// instrumentation boundary.
//
// A Market is a strictly sequential computation. It owns its order book
// and all sequence counters; parallelism is only valid across distinct
// instances. Given the same configuration and the same intent stream,
// the emitted trade sequence is bit-reproducible.
package market

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/book"
	"github.com/gridmesh/p2p-market/internal/engine"
	"github.com/gridmesh/p2p-market/internal/feeder"
	"github.com/gridmesh/p2p-market/internal/model"
	"github.com/gridmesh/p2p-market/internal/welfare"
)

// State is the per-interval lifecycle phase.
type State string

const (
	StateCollecting State = "collecting_intents"
	StateClearing   State = "clearing"
	StateSettled    State = "settled"
)

// ErrBadState is returned when an operation is invoked outside its
// lifecycle phase.
var ErrBadState = errors.New("market: operation not valid in current state")

// Config fixes one market instance's behavior for its whole lifetime.
type Config struct {
	// Mechanism is engine.MechanismCDA or engine.MechanismCall.
	Mechanism string

	// InfoSet controls the view handed to agents: full depth ("book")
	// or last trade only ("ticker").
	InfoSet model.InfoSet

	// PriceResolution is the fixed-point tick size; admitted prices are
	// rounded to it.
	PriceResolution decimal.Decimal

	// Feeder optionally caps matched energy per interval (call mode).
	Feeder *feeder.Limit

	// PersistResting keeps unfilled CDA orders resting across interval
	// boundaries (true limit orders). When false the book is flushed
	// before each interval's intents are collected. Call auctions
	// always discard remainders regardless of this flag.
	PersistResting bool

	// IntervalMinutes is the logical interval length. Only a bucketing
	// key; the core never consults wall-clock time.
	IntervalMinutes int

	// TieRule resolves flat call-auction crossing ranges.
	TieRule engine.TieRule
}

func (c *Config) applyDefaults() {
	if c.Mechanism == "" {
		c.Mechanism = engine.MechanismCDA
	}
	if c.InfoSet == "" {
		c.InfoSet = model.InfoSetBook
	}
	if c.PriceResolution.LessThanOrEqual(decimal.Zero) {
		c.PriceResolution = model.DefaultPriceResolution
	}
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 5
	}
}

// Rejection reports one recoverable intent failure (invalid order,
// unknown id). The caller decides whether to care; book state is
// unaffected beyond the documented implicit-cancel case.
type Rejection struct {
	AgentID string
	Intent  model.Intent
	Err     error
}

// IntervalResult is everything the instrumentation boundary receives for
// one settled interval.
type IntervalResult struct {
	Interval   int
	Trades     []model.Trade
	Book       model.BookSnapshot
	Welfare    model.WelfareRecord
	Rejections []Rejection
	PostedKWh  decimal.Decimal
	TradedKWh  decimal.Decimal
}

type queuedIntent struct {
	agentID string
	seq     int // arrival position within Collect calls, for stable ordering
	intent  model.Intent
}

// Market is one simulated market instance.
type Market struct {
	cfg  Config
	book *book.Book
	mech engine.Mechanism

	state    State
	interval int

	nextOrderID uint64
	nextArrival uint64
	tradeSeq    uint64

	queue   []queuedIntent
	decided map[string]bool
	quotes  []welfare.Quote
	ticker  model.Ticker

	failed error // sticky after an invariant violation
}

// New creates a market instance ready for its first BeginInterval.
func New(cfg Config) (*Market, error) {
	cfg.applyDefaults()
	mech, err := engine.New(cfg.Mechanism, engine.Options{
		PriceResolution: cfg.PriceResolution,
		Feeder:          cfg.Feeder,
		TieRule:         cfg.TieRule,
	})
	if err != nil {
		return nil, err
	}
	return &Market{
		cfg:     cfg,
		book:    book.New(),
		mech:    mech,
		state:   StateSettled,
		decided: make(map[string]bool),
	}, nil
}

// Mechanism returns the active clearing mechanism's name.
func (m *Market) Mechanism() string { return m.mech.Name() }

// Interval returns the current interval index.
func (m *Market) Interval() int { return m.interval }

// State returns the current lifecycle phase.
func (m *Market) State() State { return m.state }

// Book exposes the live book for consistency checks in tests.
func (m *Market) Book() *book.Book { return m.book }

// BeginInterval transitions to CollectingIntents for the next interval.
// Without persistent resting orders the book is flushed first; with
// them, the carried-over depth re-enters the interval's quote set so the
// planner bound sees the same quotes the mechanism can match.
func (m *Market) BeginInterval() error {
	if m.failed != nil {
		return m.failed
	}
	if m.state != StateSettled {
		return fmt.Errorf("%w: BeginInterval from %s", ErrBadState, m.state)
	}
	m.interval++
	m.state = StateCollecting
	m.queue = m.queue[:0]
	m.decided = make(map[string]bool)
	m.quotes = m.quotes[:0]

	if !m.cfg.PersistResting {
		m.book.Reset()
	}
	for _, o := range append(m.book.Bids(), m.book.Asks()...) {
		m.quotes = append(m.quotes, welfare.Quote{Side: o.Side, Price: o.Price, Quantity: o.QuantityRemaining})
	}
	return nil
}

// View constructs the read-only market view for a deciding agent,
// honoring the configured info-set.
func (m *Market) View() model.MarketView {
	v := model.MarketView{Interval: m.interval, Ticker: m.ticker}
	if m.cfg.InfoSet != model.InfoSetBook {
		return v
	}
	snap := m.book.Snapshot()
	v.Depth = &snap
	if len(snap.Bids) > 0 {
		v.BestBid = &snap.Bids[0]
	}
	if len(snap.Asks) > 0 {
		v.BestAsk = &snap.Asks[0]
	}
	return v
}

// Collect accepts one agent's intents for the current interval. At most
// one Collect call per agent per interval is allowed.
func (m *Market) Collect(agentID string, intents ...model.Intent) error {
	if m.failed != nil {
		return m.failed
	}
	if m.state != StateCollecting {
		return fmt.Errorf("%w: Collect in %s", ErrBadState, m.state)
	}
	if m.decided[agentID] {
		return fmt.Errorf("market: agent %s already decided in interval %d", agentID, m.interval)
	}
	m.decided[agentID] = true
	for _, in := range intents {
		m.queue = append(m.queue, queuedIntent{agentID: agentID, seq: len(m.queue), intent: in})
	}
	return nil
}

// Clear applies the collected intents in ascending agent-id order
// (stable within one agent's intent list), completes the mechanism's
// interval clearing, evaluates welfare, and settles the interval.
//
// Recoverable intent errors are reported as Rejections; an invariant
// violation poisons the instance permanently.
func (m *Market) Clear() (*IntervalResult, error) {
	if m.failed != nil {
		return nil, m.failed
	}
	if m.state != StateCollecting {
		return nil, fmt.Errorf("%w: Clear in %s", ErrBadState, m.state)
	}
	m.state = StateClearing

	sort.SliceStable(m.queue, func(i, j int) bool {
		if m.queue[i].agentID != m.queue[j].agentID {
			return m.queue[i].agentID < m.queue[j].agentID
		}
		return m.queue[i].seq < m.queue[j].seq
	})

	res := &IntervalResult{
		Interval:  m.interval,
		PostedKWh: decimal.Zero,
		TradedKWh: decimal.Zero,
	}

	for _, q := range m.queue {
		trades, err := m.applyIntent(q.agentID, q.intent, res)
		if err != nil {
			if errors.Is(err, model.ErrInvariantViolation) {
				m.failed = err
				return nil, err
			}
			res.Rejections = append(res.Rejections, Rejection{AgentID: q.agentID, Intent: q.intent, Err: err})
			continue
		}
		m.appendTrades(res, trades)
	}

	trades, err := m.mech.EndInterval(m.book)
	if err != nil {
		if errors.Is(err, model.ErrInvariantViolation) {
			m.failed = err
		}
		return nil, err
	}
	m.appendTrades(res, trades)

	if m.book.IsCrossed() {
		m.failed = fmt.Errorf("%w: book crossed at interval %d settlement", model.ErrInvariantViolation, m.interval)
		return nil, m.failed
	}

	res.Book = m.book.Snapshot()
	res.Welfare = welfare.Evaluate(m.interval, res.Trades, m.quotes)
	m.state = StateSettled
	return res, nil
}

func (m *Market) applyIntent(agentID string, in model.Intent, res *IntervalResult) ([]model.Trade, error) {
	switch in.Type {
	case model.IntentSubmit:
		trades, err := m.submit(agentID, in)
		if err == nil {
			res.PostedKWh = res.PostedKWh.Add(in.Quantity)
		}
		return trades, err
	case model.IntentCancel:
		_, err := m.book.Cancel(in.OrderID)
		return nil, err
	case model.IntentModify:
		return m.modify(in)
	default:
		return nil, fmt.Errorf("%w: unknown intent type %q", model.ErrInvalidOrder, in.Type)
	}
}

// submit validates, admits, and routes a new order through the
// mechanism. The quote enters the interval's planner quote set with its
// original quantity before any matching.
func (m *Market) submit(agentID string, in model.Intent) ([]model.Trade, error) {
	if !in.Side.Valid() {
		return nil, fmt.Errorf("%w: side %q", model.ErrInvalidOrder, in.Side)
	}
	if in.Price.LessThanOrEqual(decimal.Zero) || in.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: price=%s qty=%s", model.ErrInvalidOrder, in.Price, in.Quantity)
	}

	m.nextOrderID++
	o := &model.Order{
		ID:                m.nextOrderID,
		AgentID:           agentID,
		Side:              in.Side,
		Price:             model.RoundToResolution(in.Price, m.cfg.PriceResolution),
		QuantityOriginal:  in.Quantity,
		QuantityRemaining: in.Quantity,
		ArrivalSeq:        m.nextSeq(),
		Interval:          m.interval,
	}

	m.quotes = append(m.quotes, welfare.Quote{Side: o.Side, Price: o.Price, Quantity: o.QuantityOriginal})
	return m.mech.Submit(m.book, o, m.nextSeq)
}

// modify applies the exchange modify semantics. A priority-resetting
// change (price change or quantity increase) re-enters the order through
// the mechanism so it can match immediately; a quantity decrease stays
// in place with its original time priority.
func (m *Market) modify(in model.Intent) ([]model.Trade, error) {
	o, reset, err := m.book.Modify(in.OrderID, in.NewPrice, in.NewQuantity, m.nextSeq)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, nil
	}
	o.Price = model.RoundToResolution(o.Price, m.cfg.PriceResolution)
	m.quotes = append(m.quotes, welfare.Quote{Side: o.Side, Price: o.Price, Quantity: o.QuantityRemaining})
	return m.mech.Submit(m.book, o, m.nextSeq)
}

func (m *Market) appendTrades(res *IntervalResult, trades []model.Trade) {
	for _, t := range trades {
		m.tradeSeq++
		t.Sequence = m.tradeSeq
		t.Interval = m.interval
		res.Trades = append(res.Trades, t)
		res.TradedKWh = res.TradedKWh.Add(t.Quantity)
		m.ticker = model.Ticker{LastPrice: t.Price, LastQuantity: t.Quantity, Traded: true}
	}
}

func (m *Market) nextSeq() uint64 {
	m.nextArrival++
	return m.nextArrival
}
