/*
handlers.go - HTTP handlers for the carton stock ledger

PURPOSE:
  Exposes the ledger engine and reporter over REST. Handlers parse and
  shape-check requests, delegate to the ledger, and map its error
  taxonomy onto HTTP statuses.

ENDPOINTS:
  Mutations (engine):
    POST /api/production    Record cartons produced
    POST /api/transfers     Move cartons production -> storage
    POST /api/shipments     Ship cartons (multi-line, atomic)

  Reads (reporter/catalog):
    GET  /api/stock?location=<id>   Stock by grade at a location
    GET  /api/stock/totals          Totals by grade across locations
    GET  /api/shipments             Shipment history, names resolved
    GET  /api/ledger                Raw ledger entries (kind/grade/date filters)
    GET  /api/reconciliation        Replay the ledger against balances
    GET  /api/grades                Catalog passthrough
    GET  /api/locations             Catalog passthrough

ERROR MAPPING:
  400 validation_error     Malformed request; never reached the engine
  404 not_found            Unknown grade/location on a read path
  409 insufficient_stock   Would drive a balance negative; includes the
                           offending pair and the shortfall
  500 storage_fault        Persistence failed; rolled back, retryable
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/packline/carton-ledger/ledger"
)

// Handler holds the dependencies of every endpoint.
type Handler struct {
	Engine   *ledger.Engine
	Reporter *ledger.Reporter
	Catalog  ledger.Catalog
	Log      zerolog.Logger
}

func NewHandler(engine *ledger.Engine, reporter *ledger.Reporter, cat ledger.Catalog, log zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Reporter: reporter, Catalog: cat, Log: log}
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (h *Handler) RecordProduction(w http.ResponseWriter, r *http.Request) {
	var req ProductionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	date, err := ledger.ParseDate(req.ProductionDate)
	if err != nil {
		h.writeError(w, &ledger.ValidationError{Field: "production_date", Reason: "expected YYYY-MM-DD"})
		return
	}

	id, err := h.Engine.RecordProduction(r.Context(), ledger.GradeID(req.GradeID), req.Cartons, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, CommitDTO{Status: "committed", EntryID: string(id)})
}

func (h *Handler) RecordTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	date, err := ledger.ParseDate(req.TransferDate)
	if err != nil {
		h.writeError(w, &ledger.ValidationError{Field: "transfer_date", Reason: "expected YYYY-MM-DD"})
		return
	}

	id, err := h.Engine.RecordTransfer(r.Context(), ledger.GradeID(req.GradeID), req.Cartons, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, CommitDTO{Status: "committed", EntryID: string(id)})
}

func (h *Handler) RecordShipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ledger.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	date, err := ledger.ParseDate(req.ShipmentDate)
	if err != nil {
		h.writeError(w, &ledger.ValidationError{Field: "shipment_date", Reason: "expected YYYY-MM-DD"})
		return
	}

	lines := make([]ledger.ShipmentLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, ledger.ShipmentLine{
			Grade:   ledger.GradeID(l.GradeID),
			Source:  ledger.LocationID(l.SourceLocationID),
			Cartons: l.Cartons,
		})
	}

	id, err := h.Engine.RecordShipment(r.Context(), ledger.ShipmentRequest{
		Destination: req.Destination,
		Date:        date,
		Lines:       lines,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, CommitDTO{Status: "committed", EntryID: string(id)})
}

// =============================================================================
// READS
// =============================================================================

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	loc := r.URL.Query().Get("location")
	if loc == "" {
		h.writeError(w, &ledger.ValidationError{Field: "location", Reason: "location query parameter is required"})
		return
	}

	report, err := h.Reporter.StockByLocation(r.Context(), ledger.LocationID(loc))
	if err != nil {
		h.writeError(w, err)
		return
	}

	dto := StockReportDTO{
		LocationID:   string(report.Location.ID),
		Location:     report.Location.Name,
		Rows:         make([]StockRowDTO, 0, len(report.Rows)),
		TotalCartons: report.TotalCartons,
	}
	for _, row := range report.Rows {
		dto.Rows = append(dto.Rows, StockRowDTO{GradeID: string(row.Grade), Grade: row.GradeName, Cartons: row.Cartons})
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetStockTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Reporter.TotalsByGrade(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	grades, err := h.Catalog.Grades(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	dto := GradeTotalsDTO{Rows: make([]GradeTotalDTO, 0, len(grades))}
	for _, g := range grades {
		n := totals[g.ID]
		dto.Rows = append(dto.Rows, GradeTotalDTO{GradeID: string(g.ID), Grade: g.Name, Cartons: n})
		dto.TotalCartons += n
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEntryFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	records, err := h.Reporter.Shipments(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]ShipmentDTO, 0, len(records))
	for _, rec := range records {
		dto := ShipmentDTO{
			ID:           string(rec.ID),
			ShipmentDate: rec.Date.String(),
			Destination:  rec.Destination,
			TotalCartons: rec.TotalCartons,
		}
		for _, l := range rec.Lines {
			dto.Lines = append(dto.Lines, ShipmentLineDTO{
				GradeID:  string(l.Grade),
				Grade:    l.GradeName,
				SourceID: string(l.Source),
				Source:   l.SourceName,
				Cartons:  l.Cartons,
			})
		}
		dtos = append(dtos, dto)
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEntryFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filter.Kind = ledger.EntryKind(kind)
	}

	entries, err := h.Reporter.History(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dto := LedgerEntryDTO{
			ID:          string(e.ID),
			Seq:         e.Seq,
			Kind:        string(e.Kind),
			Date:        e.Date.String(),
			GradeID:     string(e.Grade),
			Cartons:     e.Cartons,
			Destination: e.Destination,
		}
		for _, l := range e.Lines {
			dto.Lines = append(dto.Lines, ShipmentLineDTO{
				GradeID:  string(l.Grade),
				SourceID: string(l.Source),
				Cartons:  l.Cartons,
			})
		}
		dtos = append(dtos, dto)
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Reporter.ReplayBalances(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	dto := ReconciliationDTO{Consistent: len(drift) == 0}
	for _, d := range drift {
		dto.Drift = append(dto.Drift, DriftDTO{
			GradeID:    string(d.Pair.Grade),
			LocationID: string(d.Pair.Location),
			Stored:     d.Stored,
			Replayed:   d.Replayed,
		})
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListGrades(w http.ResponseWriter, r *http.Request) {
	grades, err := h.Catalog.Grades(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]GradeDTO, 0, len(grades))
	for _, g := range grades {
		dtos = append(dtos, GradeDTO{ID: string(g.ID), Name: g.Name})
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.Catalog.Locations(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]LocationDTO, 0, len(locations))
	for _, l := range locations {
		dtos = append(dtos, LocationDTO{ID: string(l.ID), Name: l.Name})
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseEntryFilter(r *http.Request) (ledger.EntryFilter, error) {
	var f ledger.EntryFilter
	q := r.URL.Query()
	if g := q.Get("grade"); g != "" {
		f.Grade = ledger.GradeID(g)
	}
	if from := q.Get("from"); from != "" {
		d, err := ledger.ParseDate(from)
		if err != nil {
			return f, &ledger.ValidationError{Field: "from", Reason: "expected YYYY-MM-DD"}
		}
		f.From = d
	}
	if to := q.Get("to"); to != "" {
		d, err := ledger.ParseDate(to)
		if err != nil {
			return f, &ledger.ValidationError{Field: "to", Reason: "expected YYYY-MM-DD"}
		}
		f.To = d
	}
	return f, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error().Err(err).Msg("encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var short *ledger.InsufficientStockError
	switch {
	case errors.As(err, &short):
		available, requested, shortfall := short.Available, short.Requested, short.Shortfall
		h.writeJSON(w, http.StatusConflict, ErrorDTO{
			Error:      short.Error(),
			Code:       "insufficient_stock",
			GradeID:    string(short.Grade),
			LocationID: string(short.Location),
			Available:  &available,
			Requested:  &requested,
			Shortfall:  &shortfall,
		})
	case errors.Is(err, ledger.ErrInvalidRequest):
		h.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, ledger.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, ErrorDTO{Error: err.Error(), Code: "not_found"})
	default:
		h.Log.Error().Err(err).Msg("request failed")
		h.writeJSON(w, http.StatusInternalServerError, ErrorDTO{Error: err.Error(), Code: "storage_fault"})
	}
}
