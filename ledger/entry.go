/*
entry.go - Immutable ledger entries

PURPOSE:
  The ledger is the append-only system of record. Every accepted
  transaction leaves exactly one Entry behind; balances are derived
  state that could be rebuilt by replaying the entries in order.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. ORDERED: Entries are totally ordered by append time; that order
     is stable for iteration

CORRECTIONS:
  A mistake is never edited in place. Record a compensating entry
  (e.g. a production entry for an over-shipped quantity) and leave
  both in the history.

SEE ALSO:
  - store.go: Persistence contract for entries and balances
  - engine.go: The only writer of entries
*/
package ledger

// =============================================================================
// ENTRY KINDS
// =============================================================================

type EntryKind string

const (
	// EntryProduction records stock created at the production location.
	EntryProduction EntryKind = "production"
	// EntryTransfer records stock moved from production to storage.
	EntryTransfer EntryKind = "transfer"
	// EntryShipment records stock removed from one or more source
	// locations and shipped to a destination.
	EntryShipment EntryKind = "shipment"
)

// =============================================================================
// ENTRY - One immutable record per accepted transaction
// =============================================================================

// ShipmentLine is one (grade, source location, quantity) component of a
// shipment entry.
type ShipmentLine struct {
	Grade   GradeID
	Source  LocationID
	Cartons int64
}

// Entry is an immutable record of one accepted transaction.
//
// Field usage by kind:
//   production: Grade, Cartons
//   transfer:   Grade, Cartons
//   shipment:   Destination, Lines
type Entry struct {
	ID   EntryID
	Kind EntryKind
	Date Date

	// Production and transfer entries.
	Grade   GradeID
	Cartons int64

	// Shipment entries.
	Destination string
	Lines       []ShipmentLine

	// Seq is the append order, assigned by the store. Stable and
	// strictly increasing; never reused.
	Seq int64
}

// =============================================================================
// ENTRY FILTER - Read-side selection
// =============================================================================

// EntryFilter narrows Entries(). Zero-value fields match everything.
type EntryFilter struct {
	Kind  EntryKind
	Grade GradeID
	From  Date
	To    Date
}

// Matches reports whether e passes the filter. Shipment entries match a
// grade filter if any line references the grade.
func (f EntryFilter) Matches(e Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Grade != "" && !entryTouchesGrade(e, f.Grade) {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	return true
}

func entryTouchesGrade(e Entry, g GradeID) bool {
	if e.Grade == g {
		return true
	}
	for _, l := range e.Lines {
		if l.Grade == g {
			return true
		}
	}
	return false
}
