package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary and energy values are stored as NUMERIC for exact
// decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, mechanism, info_set, agents, intervals, seed, status,
		                   posted_kwh, traded_kwh, realized_surplus, planner_bound,
		                   no_trade_intervals, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12, $13)`,
		run.ID, run.Mechanism, string(run.InfoSet), strings.Join(run.Agents, ","),
		run.Intervals, run.Seed, run.Status,
		run.PostedKWh.String(), run.TradedKWh.String(),
		run.RealizedSurplus.String(), run.PlannerBound.String(),
		run.NoTradeIntervals, run.CreatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs
		 SET status = $2, posted_kwh = $3::NUMERIC, traded_kwh = $4::NUMERIC,
		     realized_surplus = $5::NUMERIC, planner_bound = $6::NUMERIC,
		     no_trade_intervals = $7, completed_at = $8
		 WHERE id = $1`,
		run.ID, run.Status,
		run.PostedKWh.String(), run.TradedKWh.String(),
		run.RealizedSurplus.String(), run.PlannerBound.String(),
		run.NoTradeIntervals, run.CompletedAt,
	)
	return err
}

const runColumns = `id, mechanism, info_set, agents, intervals, seed, status,
	posted_kwh::TEXT, traded_kwh::TEXT, realized_surplus::TEXT, planner_bound::TEXT,
	no_trade_intervals, created_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var infoSet, agents string
	var posted, traded, realized, bound string

	err := row.Scan(&run.ID, &run.Mechanism, &infoSet, &agents,
		&run.Intervals, &run.Seed, &run.Status,
		&posted, &traded, &realized, &bound,
		&run.NoTradeIntervals, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	run.InfoSet = model.InfoSet(infoSet)
	if agents != "" {
		run.Agents = strings.Split(agents, ",")
	}
	run.PostedKWh, _ = decimal.NewFromString(posted)
	run.TradedKWh, _ = decimal.NewFromString(traded)
	run.RealizedSurplus, _ = decimal.NewFromString(realized)
	run.PlannerBound, _ = decimal.NewFromString(bound)
	return &run, nil
}

func (s *PostgresStore) InsertTrades(ctx context.Context, runID string, trades []model.Trade) error {
	for _, t := range trades {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO trades (run_id, sequence, interval_index, maker_order_id, taker_order_id,
			                     buyer_agent_id, seller_agent_id, price, quantity, buyer_limit, seller_limit)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC)`,
			runID, t.Sequence, t.Interval, t.MakerOrderID, t.TakerOrderID,
			t.BuyerAgentID, t.SellerAgentID,
			t.Price.String(), t.Quantity.String(),
			t.BuyerLimit.String(), t.SellerLimit.String(),
		)
		if err != nil {
			return fmt.Errorf("insert trade %d of run %s: %w", t.Sequence, runID, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetTradesByRun(ctx context.Context, runID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sequence, interval_index, maker_order_id, taker_order_id,
		        buyer_agent_id, seller_agent_id,
		        price::TEXT, quantity::TEXT, buyer_limit::TEXT, seller_limit::TEXT
		 FROM trades WHERE run_id = $1 ORDER BY sequence ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var price, qty, bl, sl string
		if err := rows.Scan(&t.Sequence, &t.Interval, &t.MakerOrderID, &t.TakerOrderID,
			&t.BuyerAgentID, &t.SellerAgentID, &price, &qty, &bl, &sl); err != nil {
			return nil, err
		}
		t.Price, _ = decimal.NewFromString(price)
		t.Quantity, _ = decimal.NewFromString(qty)
		t.BuyerLimit, _ = decimal.NewFromString(bl)
		t.SellerLimit, _ = decimal.NewFromString(sl)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) InsertWelfareRecord(ctx context.Context, runID string, rec model.WelfareRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO welfare (run_id, interval_index, realized_surplus, planner_bound, normalized_welfare, no_trade)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
		runID, rec.Interval,
		rec.RealizedSurplus.String(), rec.PlannerBound.String(),
		rec.NormalizedWelfare.String(), rec.NoTrade,
	)
	return err
}

func (s *PostgresStore) GetWelfareByRun(ctx context.Context, runID string) ([]model.WelfareRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT interval_index, realized_surplus::TEXT, planner_bound::TEXT, normalized_welfare::TEXT, no_trade
		 FROM welfare WHERE run_id = $1 ORDER BY interval_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.WelfareRecord
	for rows.Next() {
		var rec model.WelfareRecord
		var realized, bound, norm string
		if err := rows.Scan(&rec.Interval, &realized, &bound, &norm, &rec.NoTrade); err != nil {
			return nil, err
		}
		rec.RealizedSurplus, _ = decimal.NewFromString(realized)
		rec.PlannerBound, _ = decimal.NewFromString(bound)
		rec.NormalizedWelfare, _ = decimal.NewFromString(norm)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
