/*
shipment.go - Shipment allocation

PURPOSE:
  Resolves a shipment request - a destination, a date, and an ordered
  list of (grade, source location, quantity) lines - into exactly ONE
  engine transaction covering every line.

WHY ONE TRANSACTION:
  Processing lines with independent commits is the principal hazard
  this design guards against: some lines shipped and decremented,
  others rejected and untouched, for what the caller believes is a
  single shipment. All lines commit together or none do.

DUPLICATE LINES:
  Lines for the same (grade, location) are summed before validation,
  so an overdraft cannot slip through by being split across two lines.
  The ledger entry keeps the caller's original lines verbatim.
*/
package ledger

import "context"

// ShipmentRequest is a request to ship cartons to a destination.
type ShipmentRequest struct {
	Destination string
	Date        Date
	Lines       []ShipmentLine
}

// RecordShipment validates the request and applies all its lines as one
// atomic transaction. Malformed requests (no lines, a non-positive line
// quantity, an unknown grade or location) are rejected before the
// mutation engine is involved.
func (e *Engine) RecordShipment(ctx context.Context, req ShipmentRequest) (EntryID, error) {
	if req.Destination == "" {
		return "", &ValidationError{Field: "destination", Reason: "destination is required"}
	}
	if err := e.checkDate(req.Date); err != nil {
		return "", err
	}
	if len(req.Lines) == 0 {
		return "", &ValidationError{Field: "lines", Reason: "shipment has no lines"}
	}

	deltas := make([]Delta, 0, len(req.Lines))
	lines := make([]ShipmentLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		if err := e.checkQuantity(l.Cartons); err != nil {
			return "", err
		}
		if err := e.checkGrade(ctx, l.Grade); err != nil {
			return "", err
		}
		if err := e.checkLocation(ctx, l.Source); err != nil {
			return "", err
		}
		deltas = append(deltas, Delta{Grade: l.Grade, Location: l.Source, Cartons: -l.Cartons})
		lines = append(lines, l)
	}

	// Apply merges deltas per pair, so duplicate lines validate against
	// their cumulative effect.
	return e.Apply(ctx, Transaction{
		Deltas: deltas,
		Entry: Entry{
			Kind:        EntryShipment,
			Date:        req.Date,
			Destination: req.Destination,
			Lines:       lines,
		},
	})
}
