package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridmesh/p2p-market/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateRun(ctx context.Context, run *model.Run) error {
	if err := s.primary.CreateRun(ctx, run); err != nil {
		return err
	}
	s.cacheRun(ctx, run)
	return nil
}

func (s *CachedStore) UpdateRun(ctx context.Context, run *model.Run) error {
	if err := s.primary.UpdateRun(ctx, run); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, runKey(run.ID))
	return nil
}

func (s *CachedStore) InsertTrades(ctx context.Context, runID string, trades []model.Trade) error {
	if err := s.primary.InsertTrades(ctx, runID, trades); err != nil {
		return err
	}
	// Invalidate the trade list for this run.
	s.rdb.Del(ctx, tradesKey(runID))
	return nil
}

func (s *CachedStore) InsertWelfareRecord(ctx context.Context, runID string, rec model.WelfareRecord) error {
	if err := s.primary.InsertWelfareRecord(ctx, runID, rec); err != nil {
		return err
	}
	s.rdb.Del(ctx, welfareKey(runID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if err == nil {
		var run model.Run
		if json.Unmarshal(data, &run) == nil {
			return &run, nil
		}
	}

	// Cache miss: read from primary.
	run, err := s.primary.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheRun(ctx, run)
	return run, nil
}

func (s *CachedStore) GetTradesByRun(ctx context.Context, runID string) ([]model.Trade, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, tradesKey(runID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	// Cache miss.
	trades, err := s.primary.GetTradesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(runID), data, s.ttl)
	}
	return trades, nil
}

func (s *CachedStore) GetWelfareByRun(ctx context.Context, runID string) ([]model.WelfareRecord, error) {
	data, err := s.rdb.Get(ctx, welfareKey(runID)).Bytes()
	if err == nil {
		var recs []model.WelfareRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.GetWelfareByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, welfareKey(runID), data, s.ttl)
	}
	return recs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListRuns(ctx context.Context) ([]model.Run, error) {
	return s.primary.ListRuns(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheRun(ctx context.Context, run *model.Run) {
	if data, err := json.Marshal(run); err == nil {
		s.rdb.Set(ctx, runKey(run.ID), data, s.ttl)
	}
}

func runKey(id string) string     { return fmt.Sprintf("run:%s", id) }
func tradesKey(id string) string  { return fmt.Sprintf("trades:%s", id) }
func welfareKey(id string) string { return fmt.Sprintf("welfare:%s", id) }
