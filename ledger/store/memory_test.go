package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packline/carton-ledger/ledger"
	"github.com/packline/carton-ledger/ledger/store"
)

const (
	gradeA = ledger.GradeID("grade-a")
	locA   = ledger.LocationID("production-floor")
	locB   = ledger.LocationID("storage")
)

func mar(day int) ledger.Date { return ledger.NewDate(2025, time.March, day) }

func TestMemory_Balance_AbsentIsZero(t *testing.T) {
	m := store.NewMemory()

	n, err := m.Balance(context.Background(), gradeA, locA)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMemory_ApplyDelta_AccumulatesAndBackstops(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ApplyDelta(ctx, gradeA, locA, 10))
	require.NoError(t, m.ApplyDelta(ctx, gradeA, locA, -4))

	n, err := m.Balance(ctx, gradeA, locA)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	// Backstop: the store itself refuses to go negative.
	assert.Error(t, m.ApplyDelta(ctx, gradeA, locA, -7))
}

func TestMemory_Append_AssignsIncreasingSeq(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	e1 := &ledger.Entry{ID: "e1", Kind: ledger.EntryProduction, Grade: gradeA, Cartons: 5, Date: mar(1)}
	e2 := &ledger.Entry{ID: "e2", Kind: ledger.EntryProduction, Grade: gradeA, Cartons: 5, Date: mar(2)}
	require.NoError(t, m.Append(ctx, e1))
	require.NoError(t, m.Append(ctx, e2))

	assert.Less(t, e1.Seq, e2.Seq)

	entries, err := m.Entries(ctx, ledger.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntryID("e1"), entries[0].ID)
}

func TestMemory_WithTx_ErrorDiscardsStagedWrites(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.ApplyDelta(ctx, gradeA, locA, 100))

	err := m.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.ApplyDelta(ctx, gradeA, locA, -60))
		require.NoError(t, s.Append(ctx, &ledger.Entry{ID: "e1", Kind: ledger.EntryShipment, Date: mar(1)}))
		return errors.New("abort")
	})
	require.Error(t, err)

	n, err := m.Balance(ctx, gradeA, locA)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n, "aborted transaction must leave no trace")

	entries, err := m.Entries(ctx, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemory_WithTx_ViewSeesOwnWrites(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.ApplyDelta(ctx, gradeA, locA, 50))

	err := m.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.ApplyDelta(ctx, gradeA, locA, -20))

		n, err := s.Balance(ctx, gradeA, locA)
		require.NoError(t, err)
		assert.Equal(t, int64(30), n, "a transaction reads its own staged deltas")

		// Other readers still see the committed state.
		outside, err := m.Balance(ctx, gradeA, locA)
		require.NoError(t, err)
		assert.Equal(t, int64(50), outside)
		return nil
	})
	require.NoError(t, err)

	n, err := m.Balance(ctx, gradeA, locA)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
}

func TestMemory_WithTx_PublishesAtomically(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.ApplyDelta(ctx, gradeA, locA, 25))
		require.NoError(t, s.ApplyDelta(ctx, gradeA, locB, 75))
		return s.Append(ctx, &ledger.Entry{ID: "e1", Kind: ledger.EntryProduction, Grade: gradeA, Cartons: 100, Date: mar(1)})
	})
	require.NoError(t, err)

	balances, err := m.Balances(ctx)
	require.NoError(t, err)
	assert.Len(t, balances, 2)

	entries, err := m.Entries(ctx, ledger.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotZero(t, entries[0].Seq)
}

func TestMemory_Entries_FilterMatching(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, &ledger.Entry{ID: "p1", Kind: ledger.EntryProduction, Grade: gradeA, Cartons: 5, Date: mar(1)}))
	require.NoError(t, m.Append(ctx, &ledger.Entry{
		ID: "s1", Kind: ledger.EntryShipment, Date: mar(3), Destination: "Port X",
		Lines: []ledger.ShipmentLine{{Grade: gradeA, Source: locA, Cartons: 2}},
	}))

	shipments, err := m.Entries(ctx, ledger.EntryFilter{Kind: ledger.EntryShipment})
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, ledger.EntryID("s1"), shipments[0].ID)

	// A grade filter matches shipments through their lines.
	byGrade, err := m.Entries(ctx, ledger.EntryFilter{Grade: gradeA})
	require.NoError(t, err)
	assert.Len(t, byGrade, 2)

	ranged, err := m.Entries(ctx, ledger.EntryFilter{From: mar(2), To: mar(4)})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, ledger.EntryID("s1"), ranged[0].ID)
}
