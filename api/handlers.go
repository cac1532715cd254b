/*
handlers.go - HTTP API handlers for the progress allocation engine

PURPOSE:
  Exposes the allocation and reconciliation engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Physical advances:
    GET    /api/physicals               List records (filters)
    POST   /api/physicals               Register a record
    GET    /api/physicals/{id}          Get a record
    PUT    /api/physicals/{id}          Edit a PENDING record
    DELETE /api/physicals/{id}          Delete a PENDING record
    POST   /api/physicals/{id}/status   Transition status (audited)
    GET    /api/physicals/{id}/history  Status audit trail
    GET    /api/analytics/approvals     Approval latency stats

  Estimations:
    GET    /api/estimations                       List (filters)
    POST   /api/estimations                       Create
    GET    /api/estimations/{id}                  Get
    DELETE /api/estimations/{id}                  Delete (DRAFT only)
    POST   /api/estimations/{id}/status           Change status
    GET    /api/estimations/{id}/details          List detail lines
    POST   /api/estimations/{id}/details          Add detail line
    PUT    /api/estimations/{id}/details/{did}    Edit detail line
    DELETE /api/estimations/{id}/details/{did}    Remove detail line
    GET    /api/estimations/{id}/compare          Planned vs real
    POST   /api/estimations/{id}/commitments      Bulk commitment status
    POST   /api/estimations/import                Import from schedule

  Commitments:
    GET    /api/commitments             List (filters)
    POST   /api/commitments             Create tracking row
    GET    /api/commitments/{id}        Get
    PUT    /api/commitments/{id}        Edit (variance re-derived)

  Schedules:
    GET    /api/schedules                         List (filters)
    POST   /api/schedules                         Create
    GET    /api/schedules/{id}                    Get
    POST   /api/schedules/{id}/deactivate         Deactivate (terminal)
    POST   /api/schedules/{id}/duplicate          Duplicate as draft copy
    GET    /api/schedules/{id}/validate           Consistency report
    GET    /api/schedules/{id}/activities         List activities
    POST   /api/schedules/{id}/activities         Add activity
    GET    /api/schedules/{id}/chain              Stored chain
    POST   /api/schedules/{id}/chain/recompute    Replace chain

  Activities:
    GET    /api/activities/{id}           Get
    PUT    /api/activities/{id}           Edit
    DELETE /api/activities/{id}           Remove
    POST   /api/activities/{id}/progress  Set progress (0-100)
    POST   /api/activities/{id}/concepts  Link concepts
    DELETE /api/activities/{id}/concepts  Unlink concepts

  Reconciliation:
    GET    /api/reconciliation/summary    Period summary + weekly chart
    GET    /api/reconciliation/dashboard  Physical vs financial + months

ACTOR SCOPING:
  The acting user arrives in the X-Actor-ID header. An absent header
  means an unrestricted system caller. Scoped actors only see records of
  constructions they are assigned to.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Actor lacks assignment to the owning construction
  - 404: Resource not found
  - 409: Conflict (frozen records, duplicate concept lines)
  - 422: Computation errors (empty schedule for chain selection)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/progress-engine/engine"
	"github.com/warp/progress-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store

	Ledger      *engine.Ledger
	Estimations *engine.EstimationService
	Commitments *engine.CommitmentTracker
	Schedules   *engine.ScheduleService
	Chains      *engine.ChainSelector
	Importer    *engine.Importer
	Reconciler  *engine.Reconciler
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:       store,
		Ledger:      engine.NewLedger(store),
		Estimations: engine.NewEstimationService(store),
		Commitments: engine.NewCommitmentTracker(store),
		Schedules:   engine.NewScheduleService(store),
		Chains:      engine.NewChainSelector(store),
		Importer:    engine.NewImporter(store),
		Reconciler:  engine.NewReconciler(store),
	}
}

// actor extracts the acting user from the request. Empty means an
// unrestricted system caller.
func actor(r *http.Request) engine.ActorID {
	return engine.ActorID(r.Header.Get("X-Actor-ID"))
}

// =============================================================================
// PHYSICAL ADVANCE HANDLERS
// =============================================================================

// ListPhysicals returns physical records matching the query filters.
func (h *Handler) ListPhysicals(w http.ResponseWriter, r *http.Request) {
	var filter engine.PhysicalFilter
	q := r.URL.Query()
	if v := q.Get("concept"); v != "" {
		id := engine.ConceptID(v)
		filter.Concept.ConceptID = &id
	}
	if v := q.Get("work_item"); v != "" {
		id := engine.WorkItemID(v)
		filter.Concept.WorkItemID = &id
	}
	if v := q.Get("catalog"); v != "" {
		id := engine.CatalogID(v)
		filter.Concept.CatalogID = &id
	}
	if v := q.Get("status"); v != "" {
		status := engine.PhysicalStatus(v)
		filter.Status = &status
	}
	if v := q.Get("from"); v != "" {
		date, err := engine.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		filter.From = &date
	}
	if v := q.Get("to"); v != "" {
		date, err := engine.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		filter.To = &date
	}

	physicals, err := h.Ledger.List(r.Context(), actor(r), filter)
	if err != nil {
		writeEngineError(w, "Failed to list physical records", err)
		return
	}

	dtos := make([]PhysicalDTO, len(physicals))
	for i := range physicals {
		dtos[i] = toPhysicalDTO(&physicals[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePhysical registers a new PENDING record.
func (h *Handler) CreatePhysical(w http.ResponseWriter, r *http.Request) {
	var req CreatePhysicalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := engine.CreatePhysicalInput{
		ConceptID: engine.ConceptID(req.ConceptID),
		Volume:    decimal.NewFromFloat(req.Volume),
		Comments:  req.Comments,
	}
	if req.Date != "" {
		date, err := engine.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		in.Date = date
	}

	physical, err := h.Ledger.Create(r.Context(), actor(r), in)
	if err != nil {
		writeEngineError(w, "Failed to create physical record", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPhysicalDTO(physical))
}

// GetPhysical returns a single record.
func (h *Handler) GetPhysical(w http.ResponseWriter, r *http.Request) {
	id := engine.PhysicalID(chi.URLParam(r, "id"))

	physical, err := h.Ledger.Get(r.Context(), actor(r), id)
	if err != nil {
		writeEngineError(w, "Failed to get physical record", err)
		return
	}
	writeJSON(w, http.StatusOK, toPhysicalDTO(physical))
}

// UpdatePhysical edits a PENDING record.
func (h *Handler) UpdatePhysical(w http.ResponseWriter, r *http.Request) {
	id := engine.PhysicalID(chi.URLParam(r, "id"))

	var req UpdatePhysicalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var in engine.UpdatePhysicalInput
	if req.Volume != nil {
		volume := decimal.NewFromFloat(*req.Volume)
		in.Volume = &volume
	}
	in.Comments = req.Comments

	physical, err := h.Ledger.Update(r.Context(), actor(r), id, in)
	if err != nil {
		writeEngineError(w, "Failed to update physical record", err)
		return
	}
	writeJSON(w, http.StatusOK, toPhysicalDTO(physical))
}

// DeletePhysical removes a PENDING record.
func (h *Handler) DeletePhysical(w http.ResponseWriter, r *http.Request) {
	id := engine.PhysicalID(chi.URLParam(r, "id"))

	if err := h.Ledger.Delete(r.Context(), actor(r), id); err != nil {
		writeEngineError(w, "Failed to delete physical record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionPhysical changes a record's status with an audit row.
func (h *Handler) TransitionPhysical(w http.ResponseWriter, r *http.Request) {
	id := engine.PhysicalID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	physical, err := h.Ledger.UpdateStatus(r.Context(), actor(r), id, engine.PhysicalStatus(req.Status))
	if err != nil {
		writeEngineError(w, "Failed to change status", err)
		return
	}
	writeJSON(w, http.StatusOK, toPhysicalDTO(physical))
}

// PhysicalHistory returns a record's status audit trail.
func (h *Handler) PhysicalHistory(w http.ResponseWriter, r *http.Request) {
	id := engine.PhysicalID(chi.URLParam(r, "id"))

	history, err := h.Ledger.History(r.Context(), actor(r), id)
	if err != nil {
		writeEngineError(w, "Failed to get history", err)
		return
	}

	dtos := make([]StatusChangeDTO, len(history))
	for i, change := range history {
		dtos[i] = toStatusChangeDTO(change)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApprovalStats returns approval-latency analytics for the window.
func (h *Handler) ApprovalStats(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	stats, err := h.Ledger.ApprovalLatency(r.Context(), &period)
	if err != nil {
		writeEngineError(w, "Failed to compute approval stats", err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalStatsDTO{
		ApprovedCount: stats.Approved,
		AverageDays:   stats.AvgDays.InexactFloat64(),
	})
}

// =============================================================================
// ESTIMATION HANDLERS
// =============================================================================

// ListEstimations returns estimations matching the query filters.
func (h *Handler) ListEstimations(w http.ResponseWriter, r *http.Request) {
	var filter engine.EstimationFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := engine.EstimationStatus(v)
		filter.Status = &status
	}
	if v := q.Get("planned"); v != "" {
		planned := v == "true"
		filter.Planned = &planned
	}
	if v := q.Get("construction"); v != "" {
		id := engine.ConstructionID(v)
		filter.ConstructionID = &id
	}

	estimations, err := h.Estimations.List(r.Context(), actor(r), filter)
	if err != nil {
		writeEngineError(w, "Failed to list estimations", err)
		return
	}

	dtos := make([]EstimationDTO, len(estimations))
	for i := range estimations {
		dtos[i] = toEstimationDTO(&estimations[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEstimation creates a DRAFT estimation.
func (h *Handler) CreateEstimation(w http.ResponseWriter, r *http.Request) {
	var req CreateEstimationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM-DD)", err)
		return
	}

	in := engine.CreateEstimationInput{
		Name:           req.Name,
		Period:         period,
		ConstructionID: engine.ConstructionID(req.ConstructionID),
		Planned:        req.Planned,
	}
	if req.ScheduleID != nil {
		id := engine.ScheduleID(*req.ScheduleID)
		in.ScheduleID = &id
	}

	estimation, err := h.Estimations.Create(r.Context(), actor(r), in)
	if err != nil {
		writeEngineError(w, "Failed to create estimation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEstimationDTO(estimation))
}

// GetEstimation returns a single estimation.
func (h *Handler) GetEstimation(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	estimation, err := h.Estimations.Get(r.Context(), actor(r), id)
	if err != nil {
		writeEngineError(w, "Failed to get estimation", err)
		return
	}
	writeJSON(w, http.StatusOK, toEstimationDTO(estimation))
}

// DeleteEstimation removes a DRAFT estimation and its lines.
func (h *Handler) DeleteEstimation(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	if err := h.Estimations.Delete(r.Context(), actor(r), id); err != nil {
		writeEngineError(w, "Failed to delete estimation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionEstimation changes an estimation's status.
func (h *Handler) TransitionEstimation(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	estimation, err := h.Estimations.UpdateStatus(r.Context(), actor(r), id, engine.EstimationStatus(req.Status))
	if err != nil {
		writeEngineError(w, "Failed to change status", err)
		return
	}
	writeJSON(w, http.StatusOK, toEstimationDTO(estimation))
}

// ListDetails returns an estimation's detail lines.
func (h *Handler) ListDetails(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	details, err := h.Estimations.Details(r.Context(), actor(r), id)
	if err != nil {
		writeEngineError(w, "Failed to list details", err)
		return
	}

	dtos := make([]DetailDTO, len(details))
	for i := range details {
		dtos[i] = toDetailDTO(&details[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddDetail appends a detail line and recomputes the total.
func (h *Handler) AddDetail(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	var req CreateDetailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := engine.DetailInput{
		ConceptID: engine.ConceptID(req.ConceptID),
		Volume:    decimal.NewFromFloat(req.Volume),
		Amount:    decimal.NewFromFloat(req.Amount),
	}
	if req.ExecutionDate != nil {
		date, err := engine.ParseDate(*req.ExecutionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid execution_date (use YYYY-MM-DD)", err)
			return
		}
		in.ExecutionDate = &date
	}
	if req.ActivityID != nil {
		activityID := engine.ActivityID(*req.ActivityID)
		in.ActivityID = &activityID
	}

	detail, err := h.Estimations.AddDetail(r.Context(), actor(r), id, in)
	if err != nil {
		writeEngineError(w, "Failed to add detail", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDetailDTO(detail))
}

// UpdateDetail edits a detail line and recomputes the total.
func (h *Handler) UpdateDetail(w http.ResponseWriter, r *http.Request) {
	detailID := engine.DetailID(chi.URLParam(r, "detailID"))

	var req UpdateDetailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var in engine.UpdateDetailInput
	if req.Volume != nil {
		volume := decimal.NewFromFloat(*req.Volume)
		in.Volume = &volume
	}
	if req.Amount != nil {
		amount := decimal.NewFromFloat(*req.Amount)
		in.Amount = &amount
	}
	if req.ExecutionDate != nil {
		date, err := engine.ParseDate(*req.ExecutionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid execution_date (use YYYY-MM-DD)", err)
			return
		}
		in.ExecutionDate = &date
	}

	detail, err := h.Estimations.UpdateDetail(r.Context(), actor(r), detailID, in)
	if err != nil {
		writeEngineError(w, "Failed to update detail", err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailDTO(detail))
}

// RemoveDetail deletes a detail line and recomputes the total.
func (h *Handler) RemoveDetail(w http.ResponseWriter, r *http.Request) {
	detailID := engine.DetailID(chi.URLParam(r, "detailID"))

	if err := h.Estimations.RemoveDetail(r.Context(), actor(r), detailID); err != nil {
		writeEngineError(w, "Failed to remove detail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompareWithReal pits planned lines against approved physical volume.
func (h *Handler) CompareWithReal(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	rows, err := h.Estimations.CompareWithReal(r.Context(), actor(r), id)
	if err != nil {
		writeEngineError(w, "Failed to compare with real", err)
		return
	}

	dtos := make([]ComparisonRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = ComparisonRowDTO{
			DetailID:           string(row.DetailID),
			ConceptID:          string(row.ConceptID),
			Concept:            row.Concept,
			PlannedVolume:      row.PlannedVolume.InexactFloat64(),
			RealVolume:         row.RealVolume.InexactFloat64(),
			Variance:           row.Variance.InexactFloat64(),
			VariancePercentage: row.VariancePercentage.InexactFloat64(),
			Status:             row.Status,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateCommitmentStatuses bulk-sets commitment status on detail lines.
func (h *Handler) UpdateCommitmentStatuses(w http.ResponseWriter, r *http.Request) {
	id := engine.EstimationID(chi.URLParam(r, "id"))

	var req UpdateCommitmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	detailIDs := make([]engine.DetailID, len(req.DetailIDs))
	for i, detailID := range req.DetailIDs {
		detailIDs[i] = engine.DetailID(detailID)
	}

	updated, err := h.Estimations.UpdateCommitments(r.Context(), actor(r), id, detailIDs, engine.CommitmentStatus(req.Status))
	if err != nil {
		writeEngineError(w, "Failed to update commitments", err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateCommitmentsResponse{Updated: updated})
}

// ImportFromSchedule builds an estimation from a schedule window.
func (h *Handler) ImportFromSchedule(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Importer.ImportFromSchedule(r.Context(), actor(r), engine.ImportInput{
		ConstructionID: engine.ConstructionID(req.ConstructionID),
		ScheduleID:     engine.ScheduleID(req.ScheduleID),
		Period:         period,
		Name:           req.Name,
	})
	if err != nil {
		writeEngineError(w, "Failed to import from schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportResponse{
		Estimation:     toEstimationDTO(result.Estimation),
		DetailsCreated: result.DetailsCreated,
	})
}

// =============================================================================
// COMMITMENT HANDLERS
// =============================================================================

// ListCommitments returns tracking rows matching the query filters.
func (h *Handler) ListCommitments(w http.ResponseWriter, r *http.Request) {
	var filter engine.CommitmentFilter
	q := r.URL.Query()
	if v := q.Get("detail"); v != "" {
		id := engine.DetailID(v)
		filter.DetailID = &id
	}
	if v := q.Get("estimation"); v != "" {
		id := engine.EstimationID(v)
		filter.EstimationID = &id
	}
	if v := q.Get("status"); v != "" {
		status := engine.TrackingStatus(v)
		filter.Status = &status
	}
	if v := q.Get("planned_from"); v != "" {
		date, err := engine.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid planned_from date", err)
			return
		}
		filter.PlannedFrom = &date
	}
	if v := q.Get("planned_to"); v != "" {
		date, err := engine.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid planned_to date", err)
			return
		}
		filter.PlannedTo = &date
	}

	commitments, err := h.Commitments.List(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list commitments", err)
		return
	}

	dtos := make([]CommitmentDTO, len(commitments))
	for i := range commitments {
		dtos[i] = toCommitmentDTO(&commitments[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCommitment creates a tracking row with derived variance.
func (h *Handler) CreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	plannedDate, err := engine.ParseDate(req.PlannedDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid planned_date (use YYYY-MM-DD)", err)
		return
	}

	in := engine.CreateCommitmentInput{
		DetailID:      engine.DetailID(req.DetailID),
		PlannedDate:   plannedDate,
		PlannedVolume: decimal.NewFromFloat(req.PlannedVolume),
		Status:        engine.TrackingStatus(req.Status),
		Comments:      req.Comments,
	}
	if req.ActualDate != nil {
		date, err := engine.ParseDate(*req.ActualDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid actual_date (use YYYY-MM-DD)", err)
			return
		}
		in.ActualDate = &date
	}
	if req.ActualVolume != nil {
		volume := decimal.NewFromFloat(*req.ActualVolume)
		in.ActualVolume = &volume
	}

	commitment, err := h.Commitments.Create(r.Context(), in)
	if err != nil {
		writeEngineError(w, "Failed to create commitment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitmentDTO(commitment))
}

// GetCommitment returns a single tracking row.
func (h *Handler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	id := engine.CommitmentID(chi.URLParam(r, "id"))

	commitment, err := h.Commitments.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(commitment))
}

// UpdateCommitment edits a tracking row; variance is re-derived.
func (h *Handler) UpdateCommitment(w http.ResponseWriter, r *http.Request) {
	id := engine.CommitmentID(chi.URLParam(r, "id"))

	var req UpdateCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var in engine.UpdateCommitmentInput
	if req.PlannedDate != nil {
		date, err := engine.ParseDate(*req.PlannedDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid planned_date (use YYYY-MM-DD)", err)
			return
		}
		in.PlannedDate = &date
	}
	if req.PlannedVolume != nil {
		volume := decimal.NewFromFloat(*req.PlannedVolume)
		in.PlannedVolume = &volume
	}
	if req.ActualDate != nil {
		date, err := engine.ParseDate(*req.ActualDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid actual_date (use YYYY-MM-DD)", err)
			return
		}
		in.ActualDate = &date
	}
	if req.ActualVolume != nil {
		volume := decimal.NewFromFloat(*req.ActualVolume)
		in.ActualVolume = &volume
	}
	if req.Status != nil {
		status := engine.TrackingStatus(*req.Status)
		in.Status = &status
	}
	in.Comments = req.Comments

	commitment, err := h.Commitments.Update(r.Context(), id, in)
	if err != nil {
		writeEngineError(w, "Failed to update commitment", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(commitment))
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns schedules matching the query filters.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	var filter engine.ScheduleFilter
	q := r.URL.Query()
	if v := q.Get("construction"); v != "" {
		id := engine.ConstructionID(v)
		filter.ConstructionID = &id
	}
	if v := q.Get("active"); v != "" {
		active := v == "true"
		filter.Active = &active
	}

	schedules, err := h.Schedules.List(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i := range schedules {
		dtos[i] = toScheduleDTO(&schedules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSchedule creates an active schedule.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	schedule, err := h.Schedules.Create(r.Context(), engine.CreateScheduleInput{
		ConstructionID: engine.ConstructionID(req.ConstructionID),
		Name:           req.Name,
		Description:    req.Description,
	})
	if err != nil {
		writeEngineError(w, "Failed to create schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(schedule))
}

// GetSchedule returns a single schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	schedule, err := h.Schedules.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

// DeactivateSchedule retires a schedule. Idempotent.
func (h *Handler) DeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	schedule, err := h.Schedules.Deactivate(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to deactivate schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(schedule))
}

// DuplicateSchedule copies a schedule with zeroed progress.
func (h *Handler) DuplicateSchedule(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	schedule, err := h.Schedules.Duplicate(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to duplicate schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(schedule))
}

// ValidateSchedule reports budget, date, and coverage problems.
func (h *Handler) ValidateSchedule(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	report, err := h.Schedules.Validate(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to validate schedule", err)
		return
	}

	dto := ValidationReportDTO{
		Valid:           report.Valid,
		Errors:          report.Errors,
		MissingConcepts: make([]string, len(report.MissingConcepts)),
	}
	if dto.Errors == nil {
		dto.Errors = []string{}
	}
	for i, conceptID := range report.MissingConcepts {
		dto.MissingConcepts[i] = string(conceptID)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListActivities returns a schedule's activities.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	activities, err := h.Schedules.Activities(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to list activities", err)
		return
	}

	dtos := make([]ActivityDTO, len(activities))
	for i := range activities {
		dtos[i] = toActivityDTO(&activities[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddActivity appends an activity to the schedule.
func (h *Handler) AddActivity(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	in, ok := activityInputFromRequest(w, r)
	if !ok {
		return
	}

	activity, err := h.Schedules.AddActivity(r.Context(), id, in)
	if err != nil {
		writeEngineError(w, "Failed to add activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(activity))
}

// GetActivity returns a single activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := engine.ActivityID(chi.URLParam(r, "id"))

	activity, err := h.Schedules.Activity(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(activity))
}

// UpdateActivity edits an activity's name, description, and window.
func (h *Handler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	id := engine.ActivityID(chi.URLParam(r, "id"))

	in, ok := activityInputFromRequest(w, r)
	if !ok {
		return
	}

	activity, err := h.Schedules.UpdateActivity(r.Context(), id, in)
	if err != nil {
		writeEngineError(w, "Failed to update activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(activity))
}

// RemoveActivity deletes an activity and its concept links.
func (h *Handler) RemoveActivity(w http.ResponseWriter, r *http.Request) {
	id := engine.ActivityID(chi.URLParam(r, "id"))

	if err := h.Schedules.RemoveActivity(r.Context(), id); err != nil {
		writeEngineError(w, "Failed to remove activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProgress sets an activity's progress percentage (0-100).
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id := engine.ActivityID(chi.URLParam(r, "id"))

	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	activity, err := h.Schedules.UpdateProgress(r.Context(), id, decimal.NewFromFloat(req.Progress))
	if err != nil {
		writeEngineError(w, "Failed to update progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(activity))
}

// LinkConcepts associates concepts with the activity.
func (h *Handler) LinkConcepts(w http.ResponseWriter, r *http.Request) {
	id := engine.ActivityID(chi.URLParam(r, "id"))

	var req ConceptLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Schedules.AddConcepts(r.Context(), id, toConceptIDs(req.ConceptIDs))
	if err != nil {
		writeEngineError(w, "Failed to link concepts", err)
		return
	}

	resp := ConceptLinkResponse{Added: []string{}, Existing: []string{}}
	for _, conceptID := range result.Added {
		resp.Added = append(resp.Added, string(conceptID))
	}
	for _, conceptID := range result.Existing {
		resp.Existing = append(resp.Existing, string(conceptID))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UnlinkConcepts removes concept associations from the activity.
func (h *Handler) UnlinkConcepts(w http.ResponseWriter, r *http.Request) {
	id := engine.ActivityID(chi.URLParam(r, "id"))

	var req ConceptLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	removed, err := h.Schedules.RemoveConcepts(r.Context(), id, toConceptIDs(req.ConceptIDs))
	if err != nil {
		writeEngineError(w, "Failed to unlink concepts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// =============================================================================
// CHAIN HANDLERS
// =============================================================================

// GetChain returns the stored activity chain for a schedule.
func (h *Handler) GetChain(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	chain, err := h.Chains.Current(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get chain", err)
		return
	}
	writeJSON(w, http.StatusOK, toChainDTO(chain))
}

// RecomputeChain replaces the stored chain from current activities.
func (h *Handler) RecomputeChain(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	chain, err := h.Chains.Recompute(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to recompute chain", err)
		return
	}
	writeJSON(w, http.StatusOK, toChainDTO(chain))
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// GetSummary returns the period reconciliation summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	req := engine.SummaryRequest{
		Period:   period,
		Filter:   conceptFilterFromQuery(r),
		Page:     intQuery(r, "page", engine.DefaultPage),
		PageSize: intQuery(r, "page_size", engine.DefaultPageSize),
	}
	if v := r.URL.Query().Get("schedule"); v != "" {
		id := engine.ScheduleID(v)
		req.ScheduleID = &id
	}

	summary, err := h.Reconciler.Summarize(r.Context(), req)
	if err != nil {
		writeEngineError(w, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// GetDashboard returns the physical-vs-financial dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	req := engine.DashboardRequest{
		Period: period,
		Filter: conceptFilterFromQuery(r),
	}
	if v := r.URL.Query().Get("schedule"); v != "" {
		id := engine.ScheduleID(v)
		req.ScheduleID = &id
	}

	dashboard, err := h.Reconciler.DashboardView(r.Context(), req)
	if err != nil {
		writeEngineError(w, "Failed to compute dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(dashboard))
}

// =============================================================================
// REQUEST PARSING HELPERS
// =============================================================================

// periodFromQuery reads period_start/period_end, defaulting to the
// calendar month containing today when both are absent.
func periodFromQuery(r *http.Request) (engine.Period, error) {
	start := r.URL.Query().Get("period_start")
	end := r.URL.Query().Get("period_end")
	if start == "" && end == "" {
		return engine.CurrentMonth(), nil
	}
	return parsePeriod(start, end)
}

func parsePeriod(start, end string) (engine.Period, error) {
	startDate, err := engine.ParseDate(start)
	if err != nil {
		return engine.Period{}, err
	}
	endDate, err := engine.ParseDate(end)
	if err != nil {
		return engine.Period{}, err
	}
	return engine.Period{Start: startDate, End: endDate}, nil
}

func conceptFilterFromQuery(r *http.Request) engine.ConceptFilter {
	var filter engine.ConceptFilter
	q := r.URL.Query()
	if v := q.Get("concept"); v != "" {
		id := engine.ConceptID(v)
		filter.ConceptID = &id
	}
	if v := q.Get("work_item"); v != "" {
		id := engine.WorkItemID(v)
		filter.WorkItemID = &id
	}
	if v := q.Get("catalog"); v != "" {
		id := engine.CatalogID(v)
		filter.CatalogID = &id
	}
	return filter
}

func activityInputFromRequest(w http.ResponseWriter, r *http.Request) (engine.ActivityInput, bool) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return engine.ActivityInput{}, false
	}

	window, err := parsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid activity dates (use YYYY-MM-DD)", err)
		return engine.ActivityInput{}, false
	}
	return engine.ActivityInput{
		Name:        req.Name,
		Description: req.Description,
		Window:      window,
	}, true
}

func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func toConceptIDs(ids []string) []engine.ConceptID {
	out := make([]engine.ConceptID, len(ids))
	for i, id := range ids {
		out[i] = engine.ConceptID(id)
	}
	return out
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps domain error kinds to HTTP status codes.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case engine.IsPermission(err):
		writeError(w, http.StatusForbidden, message, err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsComputation(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
