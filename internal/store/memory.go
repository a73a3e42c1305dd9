package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spigell/screener/internal/interview"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Create(_ context.Context, id string, profile interview.CandidateProfile, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; ok {
		return fmt.Errorf("session %s already exists", id)
	}
	m.records[id] = &Record{
		ID:        id,
		Profile:   profile.Clone(),
		Status:    interview.StatusCreated,
		Turns:     []interview.Turn{},
		CreatedAt: at,
		UpdatedAt: at,
	}
	return nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, id string, turn interview.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("append turn to %s: %w", id, ErrNotFound)
	}
	rec.Turns = append(rec.Turns, turn)
	rec.UpdatedAt = turn.Timestamp
	return nil
}

func (m *MemoryStore) Finalize(_ context.Context, id string, outcome interview.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("finalize %s: %w", id, ErrNotFound)
	}
	rec.Status = outcome.Status
	rec.Outcome = &outcome
	rec.UpdatedAt = outcome.EndedAt
	*rec = rec.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return rec.clone(), nil
}

func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.clone())
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
