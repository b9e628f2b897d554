/*
engine.go - The mutation engine

PURPOSE:
  The Engine is the only writer of the balance store and the ledger.
  It turns business events (production, transfer, shipment) into
  transactions: a set of (grade, location, delta) pairs plus exactly
  one ledger entry, applied as a single atomic unit or not at all.

ALGORITHM (Apply):
  1. Merge the transaction's deltas per (grade, location) pair, so two
     lines against the same pair validate against their cumulative
     effect, never a stale per-line snapshot.
  2. Lock every touched pair, in sorted order (no deadlocks).
  3. Inside one storage transaction: validate every net-negative delta
     against the current balance, apply all deltas, append the entry.
  4. Any failure - insufficient stock or storage - rolls the whole
     transaction back. A half-applied shipment is a data corruption
     incident, not a minor bug.

CONCURRENCY:
  Two concurrent Applies touching the same pair are serialized by the
  pair locks; Applies over disjoint pairs proceed independently. There
  is no engine-wide lock. Reads (report.go) bypass the locks entirely
  and see either the pre- or post-commit state of any transaction.

SEE ALSO:
  - shipment.go: Multi-line shipments resolved into one Apply call
  - store.go: The WithTx atomicity contract the engine relies on
*/
package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// TRANSACTION - Ephemeral unit of work
// =============================================================================

// Delta is one balance effect of a transaction.
type Delta struct {
	Grade    GradeID
	Location LocationID
	Cartons  int64 // signed
}

// Transaction is a request to apply a set of balance deltas plus exactly
// one ledger entry, atomically. It has no lifecycle beyond the Apply
// call that consumes it.
type Transaction struct {
	Deltas []Delta
	Entry  Entry
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine validates and applies transactions against a TxStore.
type Engine struct {
	store   TxStore
	catalog Catalog

	// Location roles. Production entries create stock at production;
	// transfers move production -> storage.
	production LocationID
	storage    LocationID

	locks pairLocks
	log   zerolog.Logger
}

// NewEngine builds an engine. production and storage are the catalog
// IDs of the two location roles; both must exist in the catalog.
func NewEngine(store TxStore, catalog Catalog, production, storage LocationID, log zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		catalog:    catalog,
		production: production,
		storage:    storage,
		log:        log,
	}
}

// =============================================================================
// BUSINESS OPERATIONS
// =============================================================================

// RecordProduction creates cartons of a grade at the production location.
func (e *Engine) RecordProduction(ctx context.Context, grade GradeID, cartons int64, date Date) (EntryID, error) {
	if err := e.checkQuantity(cartons); err != nil {
		return "", err
	}
	if err := e.checkDate(date); err != nil {
		return "", err
	}
	if err := e.checkGrade(ctx, grade); err != nil {
		return "", err
	}

	return e.Apply(ctx, Transaction{
		Deltas: []Delta{{Grade: grade, Location: e.production, Cartons: cartons}},
		Entry:  Entry{Kind: EntryProduction, Grade: grade, Cartons: cartons, Date: date},
	})
}

// RecordTransfer moves cartons of a grade from production to storage.
// Total stock across the two locations is unchanged.
func (e *Engine) RecordTransfer(ctx context.Context, grade GradeID, cartons int64, date Date) (EntryID, error) {
	if err := e.checkQuantity(cartons); err != nil {
		return "", err
	}
	if err := e.checkDate(date); err != nil {
		return "", err
	}
	if err := e.checkGrade(ctx, grade); err != nil {
		return "", err
	}

	return e.Apply(ctx, Transaction{
		Deltas: []Delta{
			{Grade: grade, Location: e.production, Cartons: -cartons},
			{Grade: grade, Location: e.storage, Cartons: cartons},
		},
		Entry: Entry{Kind: EntryTransfer, Grade: grade, Cartons: cartons, Date: date},
	})
}

// =============================================================================
// APPLY - Validate-then-apply, atomically
// =============================================================================

// Apply validates and commits one transaction. On success it returns the
// ID of the appended ledger entry. On rejection nothing is applied and
// nothing is appended.
func (e *Engine) Apply(ctx context.Context, txn Transaction) (EntryID, error) {
	merged := mergeDeltas(txn.Deltas)
	if len(merged) == 0 {
		return "", &ValidationError{Field: "deltas", Reason: "transaction has no balance effect"}
	}

	entry := txn.Entry
	if entry.ID == "" {
		entry.ID = EntryID(uuid.NewString())
	}

	// Exclusive locks per touched pair, held across validate-then-apply.
	// Sorted order so two transactions over overlapping pairs cannot
	// deadlock each other.
	unlock := e.locks.lockAll(pairsOf(merged))
	defer unlock()

	err := e.store.WithTx(ctx, func(s Store) error {
		for _, d := range merged {
			if d.Cartons >= 0 {
				continue
			}
			current, err := s.Balance(ctx, d.Grade, d.Location)
			if err != nil {
				return err
			}
			if current+d.Cartons < 0 {
				return &InsufficientStockError{
					Grade:     d.Grade,
					Location:  d.Location,
					Available: current,
					Requested: -d.Cartons,
					Shortfall: -(current + d.Cartons),
				}
			}
		}

		for _, d := range merged {
			if d.Cartons == 0 {
				continue
			}
			if err := s.ApplyDelta(ctx, d.Grade, d.Location, d.Cartons); err != nil {
				return err
			}
		}

		return s.Append(ctx, &entry)
	})
	if err != nil {
		err = storageFault("apply", err)
		e.log.Debug().Str("kind", string(txn.Entry.Kind)).Err(err).Msg("transaction rejected")
		return "", err
	}

	e.log.Info().
		Str("entry_id", string(entry.ID)).
		Str("kind", string(entry.Kind)).
		Str("date", entry.Date.String()).
		Msg("transaction committed")
	return entry.ID, nil
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func (e *Engine) checkQuantity(cartons int64) error {
	if cartons <= 0 {
		return &ValidationError{Field: "cartons", Reason: "quantity must be a positive carton count"}
	}
	return nil
}

func (e *Engine) checkDate(date Date) error {
	if date.IsZero() {
		return &ValidationError{Field: "date", Reason: "date is required"}
	}
	return nil
}

func (e *Engine) checkGrade(ctx context.Context, grade GradeID) error {
	if grade == "" {
		return &ValidationError{Field: "grade_id", Reason: "grade is required"}
	}
	if _, err := e.catalog.Grade(ctx, grade); err != nil {
		if IsClientError(err) {
			return &ValidationError{Field: "grade_id", Reason: "unknown grade " + string(grade)}
		}
		return storageFault("catalog lookup", err)
	}
	return nil
}

func (e *Engine) checkLocation(ctx context.Context, location LocationID) error {
	if location == "" {
		return &ValidationError{Field: "source_location_id", Reason: "location is required"}
	}
	if _, err := e.catalog.Location(ctx, location); err != nil {
		if IsClientError(err) {
			return &ValidationError{Field: "source_location_id", Reason: "unknown location " + string(location)}
		}
		return storageFault("catalog lookup", err)
	}
	return nil
}

// =============================================================================
// DELTA MERGING
// =============================================================================

// mergeDeltas sums deltas per (grade, location) and returns them sorted
// by pair. Merging is what makes validation cumulative: a transaction
// with two lines against one pair is judged by their sum.
func mergeDeltas(deltas []Delta) []Delta {
	sums := make(map[Pair]int64, len(deltas))
	for _, d := range deltas {
		sums[Pair{Grade: d.Grade, Location: d.Location}] += d.Cartons
	}

	merged := make([]Delta, 0, len(sums))
	for p, n := range sums {
		merged = append(merged, Delta{Grade: p.Grade, Location: p.Location, Cartons: n})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Grade != merged[j].Grade {
			return merged[i].Grade < merged[j].Grade
		}
		return merged[i].Location < merged[j].Location
	})
	return merged
}

func pairsOf(deltas []Delta) []Pair {
	pairs := make([]Pair, len(deltas))
	for i, d := range deltas {
		pairs[i] = Pair{Grade: d.Grade, Location: d.Location}
	}
	return pairs
}

// =============================================================================
// PAIR LOCKS - One mutex per (grade, location), created on first use
// =============================================================================

// pairLocks hands out a mutex per balance pair. The map only ever grows;
// it is bounded by |grades| x |locations|.
type pairLocks struct {
	mu sync.Mutex
	m  map[Pair]*sync.Mutex
}

// lockAll acquires the mutex of every pair. Pairs must be sorted and
// deduplicated (mergeDeltas guarantees both). Returns the unlock func.
func (pl *pairLocks) lockAll(pairs []Pair) func() {
	locks := make([]*sync.Mutex, len(pairs))

	pl.mu.Lock()
	if pl.m == nil {
		pl.m = make(map[Pair]*sync.Mutex)
	}
	for i, p := range pairs {
		l, ok := pl.m[p]
		if !ok {
			l = &sync.Mutex{}
			pl.m[p] = l
		}
		locks[i] = l
	}
	pl.mu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
