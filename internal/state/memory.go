package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// MemoryStore implements bandit.BeliefStore in process memory.
// Nothing survives a restart; use it for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]bandit.Record
	now     func() time.Time
}

var _ bandit.BeliefStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]bandit.Record),
		now:     time.Now,
	}
}

// Put overwrites a record verbatim. Seeding helper for tests and imports.
func (m *MemoryStore) Put(rec bandit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Arm] = rec
}

func (m *MemoryStore) Get(_ context.Context, arm string) (bandit.Record, bool, error) {
	if arm == "" {
		return bandit.Record{}, false, fmt.Errorf("arm name is empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[arm]
	return rec, ok, nil
}

func (m *MemoryStore) List(_ context.Context) ([]bandit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]bandit.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Arm < out[j].Arm })
	return out, nil
}

func (m *MemoryStore) EnsureArms(_ context.Context, arms []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	created := 0
	for _, arm := range arms {
		if _, ok := m.records[arm]; ok {
			continue
		}
		m.records[arm] = bandit.Record{Arm: arm, Alpha: bandit.PriorAlpha, Beta: bandit.PriorBeta, UpdatedAt: now}
		created++
	}
	return created, nil
}

func (m *MemoryStore) Increment(_ context.Context, arm string, dAlpha, dBeta float64) (bandit.Record, error) {
	if arm == "" {
		return bandit.Record{}, fmt.Errorf("arm name is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[arm]
	if !ok {
		rec = bandit.Record{Arm: arm, Alpha: bandit.PriorAlpha, Beta: bandit.PriorBeta}
	}
	rec.Alpha += dAlpha
	rec.Beta += dBeta
	rec.UpdatedAt = m.now().UTC()
	m.records[arm] = rec
	return rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, arms []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, arm := range arms {
		if _, ok := m.records[arm]; ok {
			delete(m.records, arm)
			deleted++
		}
	}
	return deleted, nil
}
