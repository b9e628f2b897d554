// Package catalog provides an in-memory ledger.Catalog.
//
// The catalog is an external collaborator in the overall system: it owns
// identity issuance for grades and locations. This implementation stands
// in for it in tests and single-binary deployments; the sqlite store
// offers a durable alternative.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/packline/carton-ledger/ledger"
)

// Memory is a thread-safe in-memory Catalog.
type Memory struct {
	mu        sync.RWMutex
	grades    map[ledger.GradeID]ledger.Grade
	locations map[ledger.LocationID]ledger.Location
}

var _ ledger.Catalog = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		grades:    make(map[ledger.GradeID]ledger.Grade),
		locations: make(map[ledger.LocationID]ledger.Location),
	}
}

// AddGrade registers a grade. Registering an existing ID renames it;
// balances and ledger entries reference the ID, so reports pick up the
// new name retroactively.
func (m *Memory) AddGrade(id ledger.GradeID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grades[id] = ledger.Grade{ID: id, Name: name}
}

func (m *Memory) AddLocation(id ledger.LocationID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[id] = ledger.Location{ID: id, Name: name}
}

func (m *Memory) Grade(_ context.Context, id ledger.GradeID) (ledger.Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grades[id]
	if !ok {
		return ledger.Grade{}, fmt.Errorf("grade %s: %w", id, ledger.ErrNotFound)
	}
	return g, nil
}

func (m *Memory) Location(_ context.Context, id ledger.LocationID) (ledger.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locations[id]
	if !ok {
		return ledger.Location{}, fmt.Errorf("location %s: %w", id, ledger.ErrNotFound)
	}
	return l, nil
}

func (m *Memory) Grades(_ context.Context) ([]ledger.Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Grade, 0, len(m.grades))
	for _, g := range m.grades {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Locations(_ context.Context) ([]ledger.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Location, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
