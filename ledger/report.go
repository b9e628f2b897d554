/*
report.go - Read-only reporting over balances and the ledger

PURPOSE:
  Answers the read side: current stock per (grade, location), totals
  per grade, and shipment history. Never mutates anything.

NAME RESOLUTION:
  Balances and entries carry identifiers only. Reports resolve display
  names through the Catalog at read time, so a renamed grade or
  location is reflected retroactively.

CONSISTENCY:
  Reads go straight to the store, outside the engine's pair locks. A
  report may be slightly stale relative to an in-flight Apply, but it
  never observes a negative or partially-applied balance: stores
  publish each transaction atomically.
*/
package ledger

import (
	"context"
	"sort"
)

// Reporter exposes read-only views. It needs the same location roles as
// the engine to replay production and transfer entries.
type Reporter struct {
	store      Store
	catalog    Catalog
	production LocationID
	storage    LocationID
}

func NewReporter(store Store, catalog Catalog, production, storage LocationID) *Reporter {
	return &Reporter{store: store, catalog: catalog, production: production, storage: storage}
}

// Balance returns the current carton count for one pair. Zero if absent.
func (r *Reporter) Balance(ctx context.Context, grade GradeID, location LocationID) (int64, error) {
	n, err := r.store.Balance(ctx, grade, location)
	return n, storageFault("balance read", err)
}

// TotalsByGrade sums each grade's balance across every location. Every
// grade registered in the catalog appears, including those at zero.
func (r *Reporter) TotalsByGrade(ctx context.Context) (map[GradeID]int64, error) {
	grades, err := r.catalog.Grades(ctx)
	if err != nil {
		return nil, storageFault("catalog read", err)
	}
	balances, err := r.store.Balances(ctx)
	if err != nil {
		return nil, storageFault("balance read", err)
	}

	totals := make(map[GradeID]int64, len(grades))
	for _, g := range grades {
		totals[g.ID] = 0
	}
	for _, b := range balances {
		totals[b.Grade] += b.Cartons
	}
	return totals, nil
}

// =============================================================================
// STOCK BY LOCATION
// =============================================================================

// StockRow is one line of a stock report, with the grade name resolved.
type StockRow struct {
	Grade     GradeID
	GradeName string
	Cartons   int64
}

// StockReport lists a location's stock per grade plus a totals row.
// TotalCartons is presentation convenience, recomputed on every read
// and never persisted.
type StockReport struct {
	Location     Location
	Rows         []StockRow
	TotalCartons int64
}

// StockByLocation reports every grade's balance at one location,
// including catalog grades with no stock there.
func (r *Reporter) StockByLocation(ctx context.Context, location LocationID) (*StockReport, error) {
	loc, err := r.catalog.Location(ctx, location)
	if err != nil {
		if IsClientError(err) {
			return nil, err
		}
		return nil, storageFault("catalog read", err)
	}
	grades, err := r.catalog.Grades(ctx)
	if err != nil {
		return nil, storageFault("catalog read", err)
	}
	balances, err := r.store.Balances(ctx)
	if err != nil {
		return nil, storageFault("balance read", err)
	}

	byGrade := make(map[GradeID]int64)
	for _, b := range balances {
		if b.Location == location {
			byGrade[b.Grade] = b.Cartons
		}
	}

	report := &StockReport{Location: loc}
	for _, g := range grades {
		n := byGrade[g.ID]
		report.Rows = append(report.Rows, StockRow{Grade: g.ID, GradeName: g.Name, Cartons: n})
		report.TotalCartons += n
	}
	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].GradeName < report.Rows[j].GradeName })
	return report, nil
}

// =============================================================================
// SHIPMENT HISTORY
// =============================================================================

// ShipmentRecordLine is one shipment line with names resolved.
type ShipmentRecordLine struct {
	Grade      GradeID
	GradeName  string
	Source     LocationID
	SourceName string
	Cartons    int64
}

// ShipmentRecord is one committed shipment. TotalCartons sums the lines.
type ShipmentRecord struct {
	ID           EntryID
	Date         Date
	Destination  string
	Lines        []ShipmentRecordLine
	TotalCartons int64
}

// Shipments returns shipment history in append order, names resolved via
// the catalog at read time. The filter's Kind field is ignored.
func (r *Reporter) Shipments(ctx context.Context, f EntryFilter) ([]ShipmentRecord, error) {
	f.Kind = EntryShipment
	entries, err := r.store.Entries(ctx, f)
	if err != nil {
		return nil, storageFault("ledger read", err)
	}

	records := make([]ShipmentRecord, 0, len(entries))
	for _, e := range entries {
		rec := ShipmentRecord{ID: e.ID, Date: e.Date, Destination: e.Destination}
		for _, l := range e.Lines {
			line := ShipmentRecordLine{Grade: l.Grade, Source: l.Source, Cartons: l.Cartons}
			if g, err := r.catalog.Grade(ctx, l.Grade); err == nil {
				line.GradeName = g.Name
			}
			if loc, err := r.catalog.Location(ctx, l.Source); err == nil {
				line.SourceName = loc.Name
			}
			rec.Lines = append(rec.Lines, line)
			rec.TotalCartons += l.Cartons
		}
		records = append(records, rec)
	}
	return records, nil
}

// History returns raw ledger entries matching the filter, in append order.
func (r *Reporter) History(ctx context.Context, f EntryFilter) ([]Entry, error) {
	entries, err := r.store.Entries(ctx, f)
	return entries, storageFault("ledger read", err)
}

// =============================================================================
// RECONCILIATION - Replay the ledger against stored balances
// =============================================================================

// BalanceDrift is a pair whose stored balance disagrees with the ledger.
type BalanceDrift struct {
	Pair     Pair
	Stored   int64
	Replayed int64
}

// ReplayBalances recomputes every balance from the ledger and diffs the
// result against the balance store. An empty result means the derived
// state matches its source of truth. Read-only; repair is a human call.
func (r *Reporter) ReplayBalances(ctx context.Context) ([]BalanceDrift, error) {
	entries, err := r.store.Entries(ctx, EntryFilter{})
	if err != nil {
		return nil, storageFault("ledger read", err)
	}

	replayed := make(map[Pair]int64)
	for _, e := range entries {
		switch e.Kind {
		case EntryProduction:
			replayed[Pair{Grade: e.Grade, Location: r.production}] += e.Cartons
		case EntryTransfer:
			replayed[Pair{Grade: e.Grade, Location: r.production}] -= e.Cartons
			replayed[Pair{Grade: e.Grade, Location: r.storage}] += e.Cartons
		case EntryShipment:
			for _, l := range e.Lines {
				replayed[Pair{Grade: l.Grade, Location: l.Source}] -= l.Cartons
			}
		}
	}

	balances, err := r.store.Balances(ctx)
	if err != nil {
		return nil, storageFault("balance read", err)
	}
	stored := make(map[Pair]int64, len(balances))
	for _, b := range balances {
		stored[Pair{Grade: b.Grade, Location: b.Location}] = b.Cartons
	}

	var drift []BalanceDrift
	for p, want := range replayed {
		if stored[p] != want {
			drift = append(drift, BalanceDrift{Pair: p, Stored: stored[p], Replayed: want})
		}
	}
	for p, have := range stored {
		if _, seen := replayed[p]; !seen && have != 0 {
			drift = append(drift, BalanceDrift{Pair: p, Stored: have, Replayed: 0})
		}
	}
	sort.Slice(drift, func(i, j int) bool {
		if drift[i].Pair.Grade != drift[j].Pair.Grade {
			return drift[i].Pair.Grade < drift[j].Pair.Grade
		}
		return drift[i].Pair.Location < drift[j].Pair.Location
	})
	return drift, nil
}
