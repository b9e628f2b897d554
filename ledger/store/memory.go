// Package store provides an in-memory ledger.TxStore for tests and dev.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/packline/carton-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory is an in-memory TxStore. Transactions stage their writes in an
// overlay and publish them under a short write lock, so readers observe
// each transaction all at once or not at all. Serialization of
// validate-then-apply is the engine's job, not the store's.
type Memory struct {
	mu       sync.RWMutex
	balances map[ledger.Pair]int64
	entries  []ledger.Entry
	nextSeq  int64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[ledger.Pair]int64)}
}

func (m *Memory) Balance(_ context.Context, grade ledger.GradeID, location ledger.LocationID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[ledger.Pair{Grade: grade, Location: location}], nil
}

func (m *Memory) Balances(_ context.Context) ([]ledger.StockBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.StockBalance, 0, len(m.balances))
	for p, n := range m.balances {
		out = append(out, ledger.StockBalance{Grade: p.Grade, Location: p.Location, Cartons: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Grade != out[j].Grade {
			return out[i].Grade < out[j].Grade
		}
		return out[i].Location < out[j].Location
	})
	return out, nil
}

func (m *Memory) ApplyDelta(_ context.Context, grade ledger.GradeID, location ledger.LocationID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(ledger.Pair{Grade: grade, Location: location}, delta)
}

func (m *Memory) Append(_ context.Context, e *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(e)
	return nil
}

func (m *Memory) Entries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range m.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// applyLocked enforces non-negativity as a backstop; the engine has
// already validated under its pair locks.
func (m *Memory) applyLocked(p ledger.Pair, delta int64) error {
	next := m.balances[p] + delta
	if next < 0 {
		return fmt.Errorf("balance %s would go negative (%d)", p, next)
	}
	m.balances[p] = next
	return nil
}

func (m *Memory) appendLocked(e *ledger.Entry) {
	m.nextSeq++
	e.Seq = m.nextSeq
	m.entries = append(m.entries, *e)
}

// =============================================================================
// TRANSACTIONS - Staged overlay, atomic publish
// =============================================================================

// WithTx runs fn against a staged view. Nothing fn writes is visible to
// other readers until fn returns nil; then all of it is published under
// one write lock. On error the staged writes are discarded.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	view := &txView{parent: m, deltas: make(map[ledger.Pair]int64)}

	if err := fn(view); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole batch before touching anything, so a backstop
	// failure cannot publish a partial transaction.
	for p, d := range view.deltas {
		if m.balances[p]+d < 0 {
			return fmt.Errorf("balance %s would go negative (%d)", p, m.balances[p]+d)
		}
	}
	for p, d := range view.deltas {
		m.balances[p] += d
	}
	for _, e := range view.appended {
		m.appendLocked(e)
	}
	return nil
}

// txView is a Store bound to one in-flight transaction. Reads see the
// committed state plus this transaction's own staged writes.
type txView struct {
	parent   *Memory
	deltas   map[ledger.Pair]int64
	appended []*ledger.Entry
}

func (v *txView) Balance(ctx context.Context, grade ledger.GradeID, location ledger.LocationID) (int64, error) {
	p := ledger.Pair{Grade: grade, Location: location}
	committed, err := v.parent.Balance(ctx, grade, location)
	if err != nil {
		return 0, err
	}
	return committed + v.deltas[p], nil
}

func (v *txView) Balances(ctx context.Context) ([]ledger.StockBalance, error) {
	rows, err := v.parent.Balances(ctx)
	if err != nil {
		return nil, err
	}
	staged := make(map[ledger.Pair]int64, len(v.deltas))
	for p, d := range v.deltas {
		staged[p] = d
	}
	for i := range rows {
		p := ledger.Pair{Grade: rows[i].Grade, Location: rows[i].Location}
		if d, ok := staged[p]; ok {
			rows[i].Cartons += d
			delete(staged, p)
		}
	}
	for p, d := range staged {
		rows = append(rows, ledger.StockBalance{Grade: p.Grade, Location: p.Location, Cartons: d})
	}
	return rows, nil
}

func (v *txView) ApplyDelta(_ context.Context, grade ledger.GradeID, location ledger.LocationID, delta int64) error {
	v.deltas[ledger.Pair{Grade: grade, Location: location}] += delta
	return nil
}

func (v *txView) Append(_ context.Context, e *ledger.Entry) error {
	v.appended = append(v.appended, e)
	return nil
}

func (v *txView) Entries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	out, err := v.parent.Entries(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, e := range v.appended {
		if f.Matches(*e) {
			out = append(out, *e)
		}
	}
	return out, nil
}
