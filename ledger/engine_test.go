/*
engine_test.go - Executable specification of the mutation engine

ORGANIZATION:
  1. Business operations - production, transfer, shipment basics
  2. Validation - malformed requests never reach the apply path
  3. Atomicity - all-or-nothing across multi-delta transactions
  4. Concurrency - serializable applies per (grade, location) pair

Each test has GIVEN/WHEN/THEN comments stating the scenario.
*/
package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packline/carton-ledger/catalog"
	"github.com/packline/carton-ledger/ledger"
	"github.com/packline/carton-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	gradeA = ledger.GradeID("grade-a")
	gradeB = ledger.GradeID("grade-b")

	locProduction = ledger.LocationID("production-floor")
	locStorage    = ledger.LocationID("storage")
)

func newTestCatalog() *catalog.Memory {
	cat := catalog.NewMemory()
	cat.AddGrade(gradeA, "Grade A")
	cat.AddGrade(gradeB, "Grade B")
	cat.AddLocation(locProduction, "Production Floor")
	cat.AddLocation(locStorage, "Storage")
	return cat
}

func newTestEngine() (*ledger.Engine, *store.Memory) {
	st := store.NewMemory()
	eng := ledger.NewEngine(st, newTestCatalog(), locProduction, locStorage, zerolog.Nop())
	return eng, st
}

func date(day int) ledger.Date {
	return ledger.NewDate(2025, time.March, day)
}

func balanceOf(t *testing.T, st ledger.Store, g ledger.GradeID, l ledger.LocationID) int64 {
	t.Helper()
	n, err := st.Balance(context.Background(), g, l)
	require.NoError(t, err)
	return n
}

// =============================================================================
// BUSINESS OPERATIONS
// =============================================================================

func TestEngine_Production_CreatesStockAtProductionLocation(t *testing.T) {
	// GIVEN: empty balances
	// WHEN: 100 cartons of grade A are produced
	// THEN: balance(A, production) = 100 and one production entry exists

	eng, st := newTestEngine()
	ctx := context.Background()

	id, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.Equal(t, int64(100), balanceOf(t, st, gradeA, locProduction))

	entries, err := st.Entries(ctx, ledger.EntryFilter{Kind: ledger.EntryProduction})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryID(id), entries[0].ID)
	assert.Equal(t, gradeA, entries[0].Grade)
	assert.Equal(t, int64(100), entries[0].Cartons)
	assert.Equal(t, date(1), entries[0].Date)
}

func TestEngine_Transfer_ConservesTotalStock(t *testing.T) {
	// GIVEN: balance(A, production) = 100
	// WHEN: 40 cartons are transferred to storage
	// THEN: production = 60, storage = 40, total unchanged

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)

	_, err = eng.RecordTransfer(ctx, gradeA, 40, date(2))
	require.NoError(t, err)

	prod := balanceOf(t, st, gradeA, locProduction)
	stor := balanceOf(t, st, gradeA, locStorage)
	assert.Equal(t, int64(60), prod)
	assert.Equal(t, int64(40), stor)
	assert.Equal(t, int64(100), prod+stor, "transfer must conserve total stock")
}

func TestEngine_Transfer_InsufficientProduction_Rejected(t *testing.T) {
	// GIVEN: balance(A, production) = 10
	// WHEN: transferring 25 cartons
	// THEN: rejected with the pair and shortfall, balances unchanged

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 10, date(1))
	require.NoError(t, err)

	_, err = eng.RecordTransfer(ctx, gradeA, 25, date(2))
	require.Error(t, err)

	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, gradeA, short.Grade)
	assert.Equal(t, locProduction, short.Location)
	assert.Equal(t, int64(10), short.Available)
	assert.Equal(t, int64(25), short.Requested)
	assert.Equal(t, int64(15), short.Shortfall)

	assert.Equal(t, int64(10), balanceOf(t, st, gradeA, locProduction))
	assert.Equal(t, int64(0), balanceOf(t, st, gradeA, locStorage))
}

func TestEngine_Shipment_MultipleLines_AllApplied(t *testing.T) {
	// GIVEN: production = 60, storage = 40 (after produce 100, transfer 40)
	// WHEN: shipping 60 from production and 40 from storage
	// THEN: both balances reach 0 and ONE entry with two lines is recorded

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)
	_, err = eng.RecordTransfer(ctx, gradeA, 40, date(2))
	require.NoError(t, err)

	_, err = eng.RecordShipment(ctx, ledger.ShipmentRequest{
		Destination: "Port X",
		Date:        date(3),
		Lines: []ledger.ShipmentLine{
			{Grade: gradeA, Source: locProduction, Cartons: 60},
			{Grade: gradeA, Source: locStorage, Cartons: 40},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), balanceOf(t, st, gradeA, locProduction))
	assert.Equal(t, int64(0), balanceOf(t, st, gradeA, locStorage))

	entries, err := st.Entries(ctx, ledger.EntryFilter{Kind: ledger.EntryShipment})
	require.NoError(t, err)
	require.Len(t, entries, 1, "one shipment = one ledger entry")
	assert.Equal(t, "Port X", entries[0].Destination)
	assert.Len(t, entries[0].Lines, 2)
}

// =============================================================================
// VALIDATION - Rejected before the apply path
// =============================================================================

func TestEngine_Validation_NonPositiveQuantity(t *testing.T) {
	eng, st := newTestEngine()
	ctx := context.Background()

	for _, qty := range []int64{0, -5} {
		_, err := eng.RecordProduction(ctx, gradeA, qty, date(1))
		assert.ErrorIs(t, err, ledger.ErrInvalidRequest, "quantity %d", qty)
	}

	entries, err := st.Entries(ctx, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be appended for a malformed request")
}

func TestEngine_Validation_UnknownGrade(t *testing.T) {
	eng, _ := newTestEngine()

	_, err := eng.RecordProduction(context.Background(), "grade-z", 10, date(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestEngine_Validation_EmptyShipment(t *testing.T) {
	eng, _ := newTestEngine()

	_, err := eng.RecordShipment(context.Background(), ledger.ShipmentRequest{
		Destination: "Port X",
		Date:        date(1),
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest, "a shipment with zero lines is malformed")
}

func TestEngine_Validation_ShipmentLineChecks(t *testing.T) {
	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)

	cases := []struct {
		name string
		line ledger.ShipmentLine
	}{
		{"zero quantity", ledger.ShipmentLine{Grade: gradeA, Source: locProduction, Cartons: 0}},
		{"negative quantity", ledger.ShipmentLine{Grade: gradeA, Source: locProduction, Cartons: -3}},
		{"unknown grade", ledger.ShipmentLine{Grade: "grade-z", Source: locProduction, Cartons: 1}},
		{"unknown location", ledger.ShipmentLine{Grade: gradeA, Source: "dock-9", Cartons: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.RecordShipment(ctx, ledger.ShipmentRequest{
				Destination: "Port X",
				Date:        date(2),
				Lines:       []ledger.ShipmentLine{tc.line},
			})
			assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
		})
	}

	assert.Equal(t, int64(100), balanceOf(t, st, gradeA, locProduction))
}

func TestEngine_Validation_MissingDate(t *testing.T) {
	eng, _ := newTestEngine()

	_, err := eng.RecordProduction(context.Background(), gradeA, 10, ledger.Date{})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

// =============================================================================
// ATOMICITY - All lines commit or none do
// =============================================================================

func TestEngine_Shipment_OneLineShort_NothingApplied(t *testing.T) {
	// GIVEN: production = 60, storage = 40
	// WHEN: shipping 60 from production and 50 from storage
	// THEN: rejected for (A, storage) with shortfall 10; BOTH balances
	//       unchanged and no ledger entry appended

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)
	_, err = eng.RecordTransfer(ctx, gradeA, 40, date(2))
	require.NoError(t, err)

	_, err = eng.RecordShipment(ctx, ledger.ShipmentRequest{
		Destination: "Port X",
		Date:        date(3),
		Lines: []ledger.ShipmentLine{
			{Grade: gradeA, Source: locProduction, Cartons: 60},
			{Grade: gradeA, Source: locStorage, Cartons: 50},
		},
	})
	require.Error(t, err)

	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, locStorage, short.Location)
	assert.Equal(t, int64(10), short.Shortfall)

	assert.Equal(t, int64(60), balanceOf(t, st, gradeA, locProduction),
		"the sufficient line must not have been applied")
	assert.Equal(t, int64(40), balanceOf(t, st, gradeA, locStorage))

	entries, err := st.Entries(ctx, ledger.EntryFilter{Kind: ledger.EntryShipment})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_Shipment_DuplicateLines_ValidatedCumulatively(t *testing.T) {
	// GIVEN: storage = 40
	// WHEN: shipping two lines of 25 each from (A, storage)
	// THEN: rejected - the cumulative 50 exceeds 40, even though each
	//       line alone would pass

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 40, date(1))
	require.NoError(t, err)
	_, err = eng.RecordTransfer(ctx, gradeA, 40, date(1))
	require.NoError(t, err)

	_, err = eng.RecordShipment(ctx, ledger.ShipmentRequest{
		Destination: "Port X",
		Date:        date(2),
		Lines: []ledger.ShipmentLine{
			{Grade: gradeA, Source: locStorage, Cartons: 25},
			{Grade: gradeA, Source: locStorage, Cartons: 25},
		},
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Equal(t, int64(40), balanceOf(t, st, gradeA, locStorage))

	// And the equivalent single line of 40 commits.
	_, err = eng.RecordShipment(ctx, ledger.ShipmentRequest{
		Destination: "Port X",
		Date:        date(2),
		Lines:       []ledger.ShipmentLine{{Grade: gradeA, Source: locStorage, Cartons: 40}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), balanceOf(t, st, gradeA, locStorage))
}

func TestEngine_Shipment_DuplicateLines_MergeEquivalence(t *testing.T) {
	// Two lines of a and b against one pair behave exactly like one
	// line of a+b, for validation and for resulting balances.

	run := func(lines []ledger.ShipmentLine) int64 {
		eng, st := newTestEngine()
		ctx := context.Background()
		_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
		require.NoError(t, err)
		_, err = eng.RecordShipment(ctx, ledger.ShipmentRequest{
			Destination: "Port X", Date: date(2), Lines: lines,
		})
		require.NoError(t, err)
		return balanceOf(t, st, gradeA, locProduction)
	}

	split := run([]ledger.ShipmentLine{
		{Grade: gradeA, Source: locProduction, Cartons: 30},
		{Grade: gradeA, Source: locProduction, Cartons: 20},
	})
	merged := run([]ledger.ShipmentLine{
		{Grade: gradeA, Source: locProduction, Cartons: 50},
	})
	assert.Equal(t, merged, split)
}

func TestEngine_StorageFault_RollsBackWholeTransaction(t *testing.T) {
	// GIVEN: a store that fails applying the storage-side delta
	// WHEN: a transfer runs (two deltas + one entry)
	// THEN: a retryable storage fault is surfaced and the production
	//       delta is rolled back too

	mem := store.NewMemory()
	faulty := &faultStore{Memory: mem, failPair: ledger.Pair{Grade: gradeA, Location: locStorage}}
	eng := ledger.NewEngine(faulty, newTestCatalog(), locProduction, locStorage, zerolog.Nop())
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)

	_, err = eng.RecordTransfer(ctx, gradeA, 40, date(2))
	require.Error(t, err)
	assert.True(t, ledger.IsRetryable(err), "storage faults are retryable")
	assert.False(t, ledger.IsClientError(err))

	assert.Equal(t, int64(100), balanceOf(t, mem, gradeA, locProduction))
	assert.Equal(t, int64(0), balanceOf(t, mem, gradeA, locStorage))

	entries, err := mem.Entries(ctx, ledger.EntryFilter{Kind: ledger.EntryTransfer})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// faultStore fails ApplyDelta for one pair inside transactions.
type faultStore struct {
	*store.Memory
	failPair ledger.Pair
}

func (f *faultStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.Memory.WithTx(ctx, func(s ledger.Store) error {
		return fn(&faultView{Store: s, failPair: f.failPair})
	})
}

type faultView struct {
	ledger.Store
	failPair ledger.Pair
}

func (f *faultView) ApplyDelta(ctx context.Context, g ledger.GradeID, l ledger.LocationID, delta int64) error {
	if (ledger.Pair{Grade: g, Location: l}) == f.failPair {
		return fmt.Errorf("disk full")
	}
	return f.Store.ApplyDelta(ctx, g, l, delta)
}

// =============================================================================
// CONCURRENCY - Serializable per pair, never negative
// =============================================================================

func TestEngine_ConcurrentShipments_ExactFit_AllCommit(t *testing.T) {
	// GIVEN: production = 100
	// WHEN: 10 concurrent shipments of 10 cartons each
	// THEN: all commit and the final balance is exactly 0

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 100, date(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.RecordShipment(ctx, ledger.ShipmentRequest{
				Destination: "Port X",
				Date:        date(2),
				Lines:       []ledger.ShipmentLine{{Grade: gradeA, Source: locProduction, Cartons: 10}},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "shipment %d", i)
	}
	assert.Equal(t, int64(0), balanceOf(t, st, gradeA, locProduction))
}

func TestEngine_ConcurrentShipments_Oversubscribed_ExactSubsetCommits(t *testing.T) {
	// GIVEN: production = 50
	// WHEN: 10 concurrent shipments of 10 cartons each (100 requested)
	// THEN: exactly 5 commit, 5 fail with insufficient stock, and the
	//       balance ends at 0 without ever going negative

	eng, st := newTestEngine()
	ctx := context.Background()

	_, err := eng.RecordProduction(ctx, gradeA, 50, date(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.RecordShipment(ctx, ledger.ShipmentRequest{
				Destination: "Port X",
				Date:        date(2),
				Lines:       []ledger.ShipmentLine{{Grade: gradeA, Source: locProduction, Cartons: 10}},
			})
		}(i)
	}
	wg.Wait()

	committed, rejected := 0, 0
	for _, err := range errs {
		if err == nil {
			committed++
		} else {
			require.ErrorIs(t, err, ledger.ErrInsufficientStock)
			rejected++
		}
	}
	assert.Equal(t, 5, committed)
	assert.Equal(t, 5, rejected)
	assert.Equal(t, int64(0), balanceOf(t, st, gradeA, locProduction))

	entries, err := st.Entries(ctx, ledger.EntryFilter{Kind: ledger.EntryShipment})
	require.NoError(t, err)
	assert.Len(t, entries, 5, "exactly the committed shipments are in the ledger")
}

func TestEngine_ConcurrentDisjointPairs_AllCommit(t *testing.T) {
	// Transactions over disjoint pairs must not serialize against each
	// other; they must all commit regardless of interleaving.

	eng, st := newTestEngine()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := gradeA
			if i%2 == 1 {
				g = gradeB
			}
			_, errs[i] = eng.RecordProduction(ctx, g, 5, date(1))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "production %d", i)
	}
	assert.Equal(t, int64(50), balanceOf(t, st, gradeA, locProduction))
	assert.Equal(t, int64(50), balanceOf(t, st, gradeB, locProduction))
}

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

func TestErrors_Classification(t *testing.T) {
	short := &ledger.InsufficientStockError{Grade: gradeA, Location: locStorage, Shortfall: 10}
	assert.True(t, ledger.IsClientError(short))
	assert.False(t, ledger.IsRetryable(short))
	assert.ErrorIs(t, short, ledger.ErrInsufficientStock)

	val := &ledger.ValidationError{Field: "cartons", Reason: "must be positive"}
	assert.True(t, ledger.IsClientError(val))
	assert.ErrorIs(t, val, ledger.ErrInvalidRequest)

	fault := &ledger.StorageFaultError{Op: "apply", Err: errors.New("disk full")}
	assert.True(t, ledger.IsRetryable(fault))
	assert.False(t, ledger.IsClientError(fault))
	assert.ErrorIs(t, fault, ledger.ErrStorageFault)
}
