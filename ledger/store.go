/*
store.go - Persistence contract for balances and the ledger

PURPOSE:
  Defines the interface between the engine and storage. Two
  implementations ship with the repo:
  - ledger/store: in-memory (tests, dev)
  - store/sqlite: durable SQLite

APPEND-ONLY CONTRACT:
  The ledger side of the store has Append and Entries only. No Update
  or Delete methods exist; corrections are compensating entries.

ATOMICITY:
  WithTx is the transaction boundary. Every write the engine performs
  happens inside one WithTx call: either all balance deltas and the
  ledger entry are visible to readers, or none are. A store must never
  expose a partially-applied transaction to a concurrent reader.

SERIALIZATION:
  The store does NOT serialize validate-then-apply sequences; the
  engine does, with per-(grade, location) locks. The store only has to
  make each committed transaction atomic and its writes durable.
*/
package ledger

import "context"

// Store persists stock balances and ledger entries.
type Store interface {
	// Balance returns the current carton count for the pair.
	// A pair with no row is zero, not an error.
	Balance(ctx context.Context, grade GradeID, location LocationID) (int64, error)

	// Balances returns every balance row, including explicit zeros.
	Balances(ctx context.Context) ([]StockBalance, error)

	// ApplyDelta adds delta to the pair's balance, creating the row if
	// absent. The engine validates non-negativity before calling; the
	// store may enforce it again as a backstop.
	ApplyDelta(ctx context.Context, grade GradeID, location LocationID, delta int64) error

	// Append persists one ledger entry and assigns its Seq.
	// This is the ONLY ledger write operation.
	Append(ctx context.Context, e *Entry) error

	// Entries returns entries matching the filter in append order.
	Entries(ctx context.Context, f EntryFilter) ([]Entry, error)
}

// TxStore is a Store whose writes can be grouped into one atomic unit.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error, nothing fn wrote becomes visible.
	// If fn returns nil, all of it becomes visible at once.
	WithTx(ctx context.Context, fn func(Store) error) error
}
