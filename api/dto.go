/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the API surface. These decouple the ledger's
  internal model from the wire contract: identifiers stay snake_case
  strings, dates are "2006-01-02", quantities are integer carton counts.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients

VALIDATION:
  Shape validation (parseable date, well-formed JSON) happens in the
  handlers; business validation (positive quantities, known grades,
  sufficient stock) belongs to the ledger engine and is surfaced
  through the error mapping in handlers.go.
*/
package api

// =============================================================================
// MUTATION REQUESTS
// =============================================================================

// ProductionRequest records cartons produced on a date.
type ProductionRequest struct {
	ProductionDate string `json:"production_date"`
	GradeID        string `json:"grade_id"`
	Cartons        int64  `json:"cartons"`
}

// TransferRequest moves cartons from the production floor to storage.
type TransferRequest struct {
	TransferDate string `json:"transfer_date"`
	GradeID      string `json:"grade_id"`
	Cartons      int64  `json:"cartons"`
}

// ShipmentLineRequest is one line of a shipment.
type ShipmentLineRequest struct {
	GradeID          string `json:"grade_id"`
	SourceLocationID string `json:"source_location_id"`
	Cartons          int64  `json:"cartons"`
}

// ShipmentRequest ships cartons from one or more locations to a destination.
type ShipmentRequest struct {
	ShipmentDate string                `json:"shipment_date"`
	Destination  string                `json:"destination"`
	Lines        []ShipmentLineRequest `json:"lines"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// CommitDTO acknowledges a committed transaction.
type CommitDTO struct {
	Status  string `json:"status"`
	EntryID string `json:"entry_id"`
}

// ErrorDTO is the uniform error payload.
type ErrorDTO struct {
	Error string `json:"error"`
	Code  string `json:"code"` // validation_error, insufficient_stock, not_found, storage_fault

	// Set for insufficient_stock only.
	GradeID    string `json:"grade_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	Available  *int64 `json:"available,omitempty"`
	Requested  *int64 `json:"requested,omitempty"`
	Shortfall  *int64 `json:"shortfall,omitempty"`
}

// GradeDTO and LocationDTO are catalog rows.
type GradeDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LocationDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StockRowDTO is one grade's stock at the reported location.
type StockRowDTO struct {
	GradeID string `json:"grade_id"`
	Grade   string `json:"grade"`
	Cartons int64  `json:"cartons"`
}

// StockReportDTO is a per-location stock table plus its totals row.
type StockReportDTO struct {
	LocationID   string        `json:"location_id"`
	Location     string        `json:"location"`
	Rows         []StockRowDTO `json:"rows"`
	TotalCartons int64         `json:"total_cartons"`
}

// GradeTotalDTO is one grade's balance summed across all locations.
type GradeTotalDTO struct {
	GradeID string `json:"grade_id"`
	Grade   string `json:"grade"`
	Cartons int64  `json:"cartons"`
}

// GradeTotalsDTO is the totals-by-grade table plus its totals row.
type GradeTotalsDTO struct {
	Rows         []GradeTotalDTO `json:"rows"`
	TotalCartons int64           `json:"total_cartons"`
}

// ShipmentLineDTO is one shipment line with names resolved at read time.
type ShipmentLineDTO struct {
	GradeID    string `json:"grade_id"`
	Grade      string `json:"grade"`
	SourceID   string `json:"source_location_id"`
	Source     string `json:"source"`
	Cartons    int64  `json:"cartons"`
}

// ShipmentDTO is one committed shipment.
type ShipmentDTO struct {
	ID           string            `json:"id"`
	ShipmentDate string            `json:"shipment_date"`
	Destination  string            `json:"destination"`
	Lines        []ShipmentLineDTO `json:"lines"`
	TotalCartons int64             `json:"total_cartons"`
}

// LedgerEntryDTO is one raw ledger entry for the history endpoint.
type LedgerEntryDTO struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	Kind        string            `json:"kind"`
	Date        string            `json:"date"`
	GradeID     string            `json:"grade_id,omitempty"`
	Cartons     int64             `json:"cartons,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Lines       []ShipmentLineDTO `json:"lines,omitempty"`
}

// DriftDTO is one pair whose stored balance disagrees with the ledger.
type DriftDTO struct {
	GradeID    string `json:"grade_id"`
	LocationID string `json:"location_id"`
	Stored     int64  `json:"stored"`
	Replayed   int64  `json:"replayed"`
}

// ReconciliationDTO reports the ledger replay check.
type ReconciliationDTO struct {
	Consistent bool       `json:"consistent"`
	Drift      []DriftDTO `json:"drift,omitempty"`
}
