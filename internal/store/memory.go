package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gridmesh/p2p-market/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*model.Run
	trades  map[string][]model.Trade
	welfare map[string][]model.WelfareRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*model.Run),
		trades:  make(map[string][]model.Trade),
		welfare: make(map[string][]model.WelfareRecord),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	// Store a copy to avoid external mutation.
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s not found", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

func (s *MemoryStore) InsertTrades(_ context.Context, runID string, trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[runID] = append(s.trades[runID], trades...)
	return nil
}

func (s *MemoryStore) GetTradesByRun(_ context.Context, runID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Trade(nil), s.trades[runID]...), nil
}

func (s *MemoryStore) InsertWelfareRecord(_ context.Context, runID string, rec model.WelfareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.welfare[runID] = append(s.welfare[runID], rec)
	return nil
}

func (s *MemoryStore) GetWelfareByRun(_ context.Context, runID string) ([]model.WelfareRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.WelfareRecord(nil), s.welfare[runID]...), nil
}
