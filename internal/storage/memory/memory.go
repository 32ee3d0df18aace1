// Package memory is an in-process storage.Repository, used in tests and as
// the default backend when no durable store is configured.
package memory

import (
	"context"
	"sync"

	"github.com/nicheradar/nicheradar/internal/storage"
)

// ensure memoryRepo implements storage.Repository
var _ storage.Repository = (*memoryRepo)(nil)

type memoryRepo struct {
	mu      sync.RWMutex
	reports map[string]storage.Report
	facts   map[string]bool
}

func New() storage.Repository {
	return &memoryRepo{
		reports: make(map[string]storage.Report),
		facts:   make(map[string]bool),
	}
}

func (m *memoryRepo) SaveReport(ctx context.Context, report *storage.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = *report
	return nil
}

func (m *memoryRepo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &report, nil
}

func (m *memoryRepo) MarkFact(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[key] = true
	return nil
}

func (m *memoryRepo) CheckFact(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.facts[key], nil
}

func (m *memoryRepo) Close() error {
	return nil
}
