/*
Package ledger is the carton stock ledger and transaction engine.

PURPOSE:
  This package contains the core types and algorithms for tracking
  carton-unit inventory per (grade, location) pair: a derived balance
  store, an append-only ledger of every accepted transaction, and the
  mutation engine that applies multi-delta transactions atomically.

KEY CONCEPTS IN THIS FILE (types.go):
  - GradeID/LocationID: Opaque catalog identifiers (never display names)
  - Date: A calendar date without time-of-day (ledger entries are dated)
  - StockBalance: Current carton count for one (grade, location) pair
  - Catalog: Read-only registry of grades and locations (external)

DESIGN PRINCIPLES:
  1. Non-negativity: No committed transaction may leave a balance < 0
  2. Atomicity: All deltas of a transaction apply together, or none do
  3. Immutability: Ledger entries are never edited, only compensated
  4. Identity, not value: Balances and entries reference grades and
     locations by ID; names are resolved through the Catalog at read time

SEE ALSO:
  - entry.go: Ledger entry variants (production, transfer, shipment)
  - engine.go: The mutation engine (validate-then-apply, atomically)
  - report.go: Read-only reporting over balances and the ledger
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// GradeID identifies a product grade. Issued by the Catalog, opaque here.
type GradeID string

// LocationID identifies a stock location. Issued by the Catalog, opaque here.
type LocationID string

// EntryID identifies one ledger entry.
type EntryID string

// =============================================================================
// DATE - Calendar date without time-of-day
// =============================================================================

// Date is a calendar date. Carton movements are dated by business day;
// there is no time-of-day in the data model.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

func Today() Date {
	now := time.Now().UTC()
	return Date{Year: now.Year(), Month: now.Month(), Day: now.Day()}
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool       { return d == Date{} }
func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool  { return d.Time().After(o.Time()) }
func (d Date) String() string     { return d.Time().Format("2006-01-02") }

// =============================================================================
// STOCK BALANCE - Derived state, one row per (grade, location)
// =============================================================================

// StockBalance is the current carton count for one (grade, location) pair.
// Absence of a row means zero; an explicit zero row reads the same.
// Rows are mutated exclusively by the Engine.
type StockBalance struct {
	Grade    GradeID
	Location LocationID
	Cartons  int64
}

// Pair is a (grade, location) balance key.
type Pair struct {
	Grade    GradeID
	Location LocationID
}

func (p Pair) String() string {
	return fmt.Sprintf("%s@%s", p.Grade, p.Location)
}

// =============================================================================
// CATALOG - External registry of grades and locations
// =============================================================================

// Grade is a product category for cartons. Owned by the Catalog.
type Grade struct {
	ID   GradeID
	Name string
}

// Location is a named place stock can reside. Owned by the Catalog.
type Location struct {
	ID   LocationID
	Name string
}

// Catalog resolves identifiers to display names. It is an external
// collaborator: the ledger consumes it and never issues identities.
// Implementations must be safe for concurrent use.
type Catalog interface {
	Grade(ctx context.Context, id GradeID) (Grade, error)
	Location(ctx context.Context, id LocationID) (Location, error)
	Grades(ctx context.Context) ([]Grade, error)
	Locations(ctx context.Context) ([]Location, error)
}
