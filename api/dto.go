/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DECIMALS:
  Domain decimals are serialized as JSON numbers (float64). The float
  conversion happens only at the API boundary; all arithmetic stays in
  shopspring/decimal.

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/reconcile.go: Summary/Dashboard result types
*/
package api

import (
	"time"

	"github.com/warp/progress-engine/engine"
)

// =============================================================================
// PHYSICAL ADVANCE
// =============================================================================

// PhysicalDTO represents a physical advance record in API responses.
type PhysicalDTO struct {
	ID        string  `json:"id"`
	ConceptID string  `json:"concept_id"`
	Volume    float64 `json:"volume"`
	Date      string  `json:"date"`
	Status    string  `json:"status"`
	Comments  string  `json:"comments,omitempty"`
}

// CreatePhysicalRequest is the request to register a physical advance.
type CreatePhysicalRequest struct {
	ConceptID string  `json:"concept_id"`
	Volume    float64 `json:"volume"`
	Date      string  `json:"date,omitempty"`
	Comments  string  `json:"comments,omitempty"`
}

// UpdatePhysicalRequest edits a PENDING record. Nil fields are untouched.
type UpdatePhysicalRequest struct {
	Volume   *float64 `json:"volume,omitempty"`
	Comments *string  `json:"comments,omitempty"`
}

// TransitionRequest is the request to change a record's status.
type TransitionRequest struct {
	Status string `json:"status"`
}

// StatusChangeDTO is one audit-trail row.
type StatusChangeDTO struct {
	ID             string  `json:"id"`
	PreviousStatus string  `json:"previous_status"`
	NewStatus      string  `json:"new_status"`
	ChangedAt      string  `json:"changed_at"`
	ChangedBy      *string `json:"changed_by,omitempty"`
}

// ApprovalStatsDTO reports PENDING->APPROVED latency.
type ApprovalStatsDTO struct {
	ApprovedCount int     `json:"approved_count"`
	AverageDays   float64 `json:"average_days"`
}

// =============================================================================
// ESTIMATIONS
// =============================================================================

// EstimationDTO represents an estimation in API responses.
type EstimationDTO struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	PeriodStart     string  `json:"period_start"`
	PeriodEnd       string  `json:"period_end"`
	TotalAmount     float64 `json:"total_amount"`
	Status          string  `json:"status"`
	ConstructionID  string  `json:"construction_id"`
	Planned         bool    `json:"is_planned"`
	BasedOnSchedule bool    `json:"based_on_schedule"`
	ScheduleID      *string `json:"schedule_id,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// CreateEstimationRequest is the request to create an estimation.
type CreateEstimationRequest struct {
	Name           string  `json:"name"`
	PeriodStart    string  `json:"period_start"`
	PeriodEnd      string  `json:"period_end"`
	ConstructionID string  `json:"construction_id"`
	Planned        bool    `json:"is_planned"`
	ScheduleID     *string `json:"schedule_id,omitempty"`
}

// DetailDTO represents an estimation detail line.
type DetailDTO struct {
	ID                   string  `json:"id"`
	EstimationID         string  `json:"estimation_id"`
	ConceptID            string  `json:"concept_id"`
	Volume               float64 `json:"volume"`
	Amount               float64 `json:"amount"`
	ExecutionDate        *string `json:"execution_date,omitempty"`
	CommitmentStatus     string  `json:"commitment_status"`
	ActivityID           *string `json:"activity_id,omitempty"`
	ImportedFromSchedule bool    `json:"imported_from_schedule"`
}

// CreateDetailRequest is the request to add a detail line.
type CreateDetailRequest struct {
	ConceptID     string  `json:"concept_id"`
	Volume        float64 `json:"volume"`
	Amount        float64 `json:"amount"`
	ExecutionDate *string `json:"execution_date,omitempty"`
	ActivityID    *string `json:"activity_id,omitempty"`
}

// UpdateDetailRequest edits a detail line. Nil fields are untouched.
type UpdateDetailRequest struct {
	Volume        *float64 `json:"volume,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	ExecutionDate *string  `json:"execution_date,omitempty"`
}

// ComparisonRowDTO is one planned-vs-real line.
type ComparisonRowDTO struct {
	DetailID           string  `json:"detail_id"`
	ConceptID          string  `json:"concept_id"`
	Concept            string  `json:"concept"`
	PlannedVolume      float64 `json:"planned_volume"`
	RealVolume         float64 `json:"real_volume"`
	Variance           float64 `json:"variance"`
	VariancePercentage float64 `json:"variance_percentage"`
	Status             string  `json:"status"`
}

// UpdateCommitmentsRequest bulk-sets commitment status on detail lines.
type UpdateCommitmentsRequest struct {
	DetailIDs []string `json:"detail_ids"`
	Status    string   `json:"status"`
}

// UpdateCommitmentsResponse reports how many lines changed.
type UpdateCommitmentsResponse struct {
	Updated int `json:"updated"`
}

// =============================================================================
// COMMITMENT TRACKING
// =============================================================================

// CommitmentDTO represents a commitment tracking row.
type CommitmentDTO struct {
	ID                 string   `json:"id"`
	DetailID           string   `json:"detail_id"`
	PlannedDate        string   `json:"planned_date"`
	ActualDate         *string  `json:"actual_date,omitempty"`
	PlannedVolume      float64  `json:"planned_volume"`
	ActualVolume       *float64 `json:"actual_volume,omitempty"`
	VariancePercentage *float64 `json:"variance_percentage,omitempty"`
	Status             string   `json:"status"`
	Comments           string   `json:"comments,omitempty"`
}

// CreateCommitmentRequest is the request to create a tracking row.
type CreateCommitmentRequest struct {
	DetailID      string   `json:"detail_id"`
	PlannedDate   string   `json:"planned_date"`
	PlannedVolume float64  `json:"planned_volume"`
	ActualDate    *string  `json:"actual_date,omitempty"`
	ActualVolume  *float64 `json:"actual_volume,omitempty"`
	Status        string   `json:"status,omitempty"`
	Comments      string   `json:"comments,omitempty"`
}

// UpdateCommitmentRequest edits a tracking row. Nil fields are untouched.
type UpdateCommitmentRequest struct {
	PlannedDate   *string  `json:"planned_date,omitempty"`
	PlannedVolume *float64 `json:"planned_volume,omitempty"`
	ActualDate    *string  `json:"actual_date,omitempty"`
	ActualVolume  *float64 `json:"actual_volume,omitempty"`
	Status        *string  `json:"status,omitempty"`
	Comments      *string  `json:"comments,omitempty"`
}

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleDTO represents a schedule in API responses.
type ScheduleDTO struct {
	ID             string `json:"id"`
	ConstructionID string `json:"construction_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Active         bool   `json:"is_active"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreateScheduleRequest is the request to create a schedule.
type CreateScheduleRequest struct {
	ConstructionID string `json:"construction_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
}

// ActivityDTO represents an activity in API responses.
type ActivityDTO struct {
	ID          string  `json:"id"`
	ScheduleID  string  `json:"schedule_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Progress    float64 `json:"progress"`
}

// ActivityRequest is the request to create or update an activity.
type ActivityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

// ProgressRequest sets an activity's progress percentage.
type ProgressRequest struct {
	Progress float64 `json:"progress"`
}

// ConceptLinkRequest links or unlinks concepts on an activity.
type ConceptLinkRequest struct {
	ConceptIDs []string `json:"concept_ids"`
}

// ConceptLinkResponse reports the outcome of a link request.
type ConceptLinkResponse struct {
	Added    []string `json:"added"`
	Existing []string `json:"existing"`
}

// ValidationReportDTO is the schedule consistency report.
type ValidationReportDTO struct {
	Valid           bool     `json:"valid"`
	Errors          []string `json:"errors"`
	MissingConcepts []string `json:"missing_concepts"`
}

// ChainDTO represents a stored activity chain.
type ChainDTO struct {
	ScheduleID   string         `json:"schedule_id"`
	CalculatedAt string         `json:"calculated_at"`
	Notes        string         `json:"notes,omitempty"`
	Links        []ChainLinkDTO `json:"links"`
}

// ChainLinkDTO is one ordered chain member.
type ChainLinkDTO struct {
	ActivityID    string `json:"activity_id"`
	SequenceOrder int    `json:"sequence_order"`
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportRequest builds an estimation from a schedule window.
type ImportRequest struct {
	ConstructionID string `json:"construction_id"`
	ScheduleID     string `json:"schedule_id"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	Name           string `json:"name,omitempty"`
}

// ImportResponse reports what the import created.
type ImportResponse struct {
	Estimation     EstimationDTO `json:"estimation"`
	DetailsCreated int           `json:"details_created"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// PeriodDTO is a date window.
type PeriodDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// SummaryTotalsDTO is the period-level rollup.
type SummaryTotalsDTO struct {
	TotalProgrammedAmount float64 `json:"total_programmed_amount"`
	TotalExecutedAmount   float64 `json:"total_executed_amount"`
	PeriodPercentage      float64 `json:"period_percentage"`
	ConceptsCount         int     `json:"concepts_count"`
	CompletedConcepts     int     `json:"completed_concepts"`
}

// ApprovalInfoDTO is latency metadata for an executed concept.
type ApprovalInfoDTO struct {
	SubmissionDate string `json:"submission_date"`
	ApprovalDate   string `json:"approval_date"`
	DaysToApprove  int    `json:"days_to_approve"`
}

// ConceptRowDTO is one concept's reconciliation line.
type ConceptRowDTO struct {
	ID                        string           `json:"id"`
	Description               string           `json:"description"`
	Unit                      string           `json:"unit"`
	Quantity                  float64          `json:"quantity"`
	UnitPrice                 float64          `json:"unit_price"`
	ProgrammedVolume          float64          `json:"programmed_volume"`
	ProgrammedAmount          float64          `json:"programmed_amount"`
	ExecutedVolume            float64          `json:"executed_volume"`
	ExecutedAmount            float64          `json:"executed_amount"`
	ApprovalInfo              *ApprovalInfoDTO `json:"approval_info"`
	ProgressPercentage        float64          `json:"progress_percentage"`
	GlobalPercentage          float64          `json:"global_percentage"`
	FinancialGlobalPercentage float64          `json:"financial_global_percentage"`
}

// WeekBucketDTO is one weekly execution slice.
type WeekBucketDTO struct {
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	ExecutedVolume float64 `json:"executed_volume"`
	ExecutedAmount float64 `json:"executed_amount"`
}

// ChartDataDTO carries the weekly series keyed by label.
type ChartDataDTO struct {
	Weeks map[string]WeekBucketDTO `json:"weeks"`
}

// PaginationDTO describes the returned page.
type PaginationDTO struct {
	TotalItems int `json:"total_items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Program status values returned in summary and dashboard responses.
const (
	ProgramFound = "program_found"
	NoProgram    = "no_program"
)

// SummaryResponse is the reconciliation summary payload.
type SummaryResponse struct {
	Period        PeriodDTO        `json:"period"`
	Summary       SummaryTotalsDTO `json:"summary"`
	Details       []ConceptRowDTO  `json:"details"`
	ChartData     ChartDataDTO     `json:"chart_data"`
	Pagination    PaginationDTO    `json:"pagination"`
	ProgramStatus string           `json:"program_status"`
	ProgramSource string           `json:"program_source,omitempty"`
}

// SeriesTotalDTO is an amount and its percentage against a reference.
type SeriesTotalDTO struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// DashboardSummaryDTO is the global physical-vs-financial rollup.
type DashboardSummaryDTO struct {
	Programmed SeriesTotalDTO `json:"programmed"`
	Physical   SeriesTotalDTO `json:"physical"`
	Financial  SeriesTotalDTO `json:"financial"`
	Difference SeriesTotalDTO `json:"difference"`
}

// MonthBucketDTO is one monthly slice of all three series.
type MonthBucketDTO struct {
	Month      string         `json:"month"`
	Programmed SeriesTotalDTO `json:"programmed"`
	Physical   SeriesTotalDTO `json:"physical"`
	Financial  SeriesTotalDTO `json:"financial"`
}

// DashboardRowDTO compares one concept's physical and financial series.
type DashboardRowDTO struct {
	ID                  string  `json:"id"`
	Description         string  `json:"description"`
	Unit                string  `json:"unit"`
	Quantity            float64 `json:"quantity"`
	UnitPrice           float64 `json:"unit_price"`
	ProgrammedVolume    float64 `json:"programmed_volume"`
	ProgrammedAmount    float64 `json:"programmed_amount"`
	PhysicalVolume      float64 `json:"physical_volume"`
	PhysicalAmount      float64 `json:"physical_amount"`
	PhysicalPercentage  float64 `json:"physical_percentage"`
	FinancialVolume     float64 `json:"financial_volume"`
	FinancialAmount     float64 `json:"financial_amount"`
	FinancialPercentage float64 `json:"financial_percentage"`
}

// DashboardResponse is the physical-vs-financial dashboard payload.
type DashboardResponse struct {
	Summary       DashboardSummaryDTO `json:"summary"`
	Months        []MonthBucketDTO    `json:"months"`
	Details       []DashboardRowDTO   `json:"details"`
	ProgramStatus string              `json:"program_status"`
	ProgramSource string              `json:"program_source,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPhysicalDTO(p *engine.Physical) PhysicalDTO {
	return PhysicalDTO{
		ID:        string(p.ID),
		ConceptID: string(p.ConceptID),
		Volume:    p.Volume.InexactFloat64(),
		Date:      p.Date.String(),
		Status:    string(p.Status),
		Comments:  p.Comments,
	}
}

func toStatusChangeDTO(c engine.StatusChange) StatusChangeDTO {
	dto := StatusChangeDTO{
		ID:             c.ID,
		PreviousStatus: string(c.Previous),
		NewStatus:      string(c.New),
		ChangedAt:      c.ChangedAt.Format(time.RFC3339),
	}
	if c.ChangedBy != nil {
		actor := string(*c.ChangedBy)
		dto.ChangedBy = &actor
	}
	return dto
}

func toEstimationDTO(e *engine.Estimation) EstimationDTO {
	dto := EstimationDTO{
		ID:              string(e.ID),
		Name:            e.Name,
		PeriodStart:     e.Period.Start.String(),
		PeriodEnd:       e.Period.End.String(),
		TotalAmount:     e.TotalAmount.InexactFloat64(),
		Status:          string(e.Status),
		ConstructionID:  string(e.ConstructionID),
		Planned:         e.Planned,
		BasedOnSchedule: e.BasedOnSchedule,
	}
	if e.ScheduleID != nil {
		id := string(*e.ScheduleID)
		dto.ScheduleID = &id
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toDetailDTO(d *engine.EstimationDetail) DetailDTO {
	dto := DetailDTO{
		ID:                   string(d.ID),
		EstimationID:         string(d.EstimationID),
		ConceptID:            string(d.ConceptID),
		Volume:               d.Volume.InexactFloat64(),
		Amount:               d.Amount.InexactFloat64(),
		CommitmentStatus:     string(d.CommitmentStatus),
		ImportedFromSchedule: d.ImportedFromSchedule,
	}
	if d.ExecutionDate != nil {
		date := d.ExecutionDate.String()
		dto.ExecutionDate = &date
	}
	if d.ActivityID != nil {
		id := string(*d.ActivityID)
		dto.ActivityID = &id
	}
	return dto
}

func toCommitmentDTO(c *engine.CommitmentTracking) CommitmentDTO {
	dto := CommitmentDTO{
		ID:            string(c.ID),
		DetailID:      string(c.DetailID),
		PlannedDate:   c.PlannedDate.String(),
		PlannedVolume: c.PlannedVolume.InexactFloat64(),
		Status:        string(c.Status),
		Comments:      c.Comments,
	}
	if c.ActualDate != nil {
		date := c.ActualDate.String()
		dto.ActualDate = &date
	}
	if c.ActualVolume != nil {
		v := c.ActualVolume.InexactFloat64()
		dto.ActualVolume = &v
	}
	if c.Variance != nil {
		v := c.Variance.InexactFloat64()
		dto.VariancePercentage = &v
	}
	return dto
}

func toScheduleDTO(s *engine.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:             string(s.ID),
		ConstructionID: string(s.ConstructionID),
		Name:           s.Name,
		Description:    s.Description,
		Active:         s.Active,
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toActivityDTO(a *engine.Activity) ActivityDTO {
	return ActivityDTO{
		ID:          string(a.ID),
		ScheduleID:  string(a.ScheduleID),
		Name:        a.Name,
		Description: a.Description,
		StartDate:   a.Window.Start.String(),
		EndDate:     a.Window.End.String(),
		Progress:    a.Progress.InexactFloat64(),
	}
}

func toChainDTO(c *engine.ActivityChain) ChainDTO {
	dto := ChainDTO{
		ScheduleID:   string(c.ScheduleID),
		CalculatedAt: c.CalculatedAt.Format(time.RFC3339),
		Notes:        c.Notes,
		Links:        make([]ChainLinkDTO, len(c.Links)),
	}
	for i, link := range c.Links {
		dto.Links[i] = ChainLinkDTO{
			ActivityID:    string(link.ActivityID),
			SequenceOrder: link.SequenceOrder,
		}
	}
	return dto
}

func toSummaryResponse(s *engine.Summary) SummaryResponse {
	resp := SummaryResponse{
		Period: PeriodDTO{
			StartDate: s.Period.Start.String(),
			EndDate:   s.Period.End.String(),
		},
		Summary: SummaryTotalsDTO{
			TotalProgrammedAmount: s.Totals.ProgrammedAmount.InexactFloat64(),
			TotalExecutedAmount:   s.Totals.ExecutedAmount.InexactFloat64(),
			PeriodPercentage:      s.Totals.PeriodPercentage.InexactFloat64(),
			ConceptsCount:         s.Totals.ConceptCount,
			CompletedConcepts:     s.Totals.CompletedConcepts,
		},
		Details:   make([]ConceptRowDTO, len(s.Rows)),
		ChartData: ChartDataDTO{Weeks: make(map[string]WeekBucketDTO, len(s.Weeks))},
		Pagination: PaginationDTO{
			TotalItems: s.Pagination.TotalItems,
			Page:       s.Pagination.Page,
			PageSize:   s.Pagination.PageSize,
			TotalPages: s.Pagination.TotalPages,
		},
		ProgramStatus: NoProgram,
	}
	if s.ProgramFound {
		resp.ProgramStatus = ProgramFound
		resp.ProgramSource = s.ProgramSource
	}

	for i, row := range s.Rows {
		dto := ConceptRowDTO{
			ID:                        string(row.ConceptID),
			Description:               row.Description,
			Unit:                      row.Unit,
			Quantity:                  row.Quantity.InexactFloat64(),
			UnitPrice:                 row.UnitPrice.InexactFloat64(),
			ProgrammedVolume:          row.ProgrammedVolume.InexactFloat64(),
			ProgrammedAmount:          row.ProgrammedAmount.InexactFloat64(),
			ExecutedVolume:            row.ExecutedVolume.InexactFloat64(),
			ExecutedAmount:            row.ExecutedAmount.InexactFloat64(),
			ProgressPercentage:        row.ProgressPercentage.InexactFloat64(),
			GlobalPercentage:          row.GlobalPercentage.InexactFloat64(),
			FinancialGlobalPercentage: row.FinancialGlobalPercentage.InexactFloat64(),
		}
		if row.Approval != nil {
			dto.ApprovalInfo = &ApprovalInfoDTO{
				SubmissionDate: row.Approval.SubmissionDate.String(),
				ApprovalDate:   row.Approval.ApprovalDate.String(),
				DaysToApprove:  row.Approval.DaysToApprove,
			}
		}
		resp.Details[i] = dto
	}

	for _, week := range s.Weeks {
		resp.ChartData.Weeks[week.Label] = WeekBucketDTO{
			StartDate:      week.Window.Start.String(),
			EndDate:        week.Window.End.String(),
			ExecutedVolume: week.ExecutedVolume.InexactFloat64(),
			ExecutedAmount: week.ExecutedAmount.InexactFloat64(),
		}
	}
	return resp
}

func toSeriesTotalDTO(s engine.SeriesTotal) SeriesTotalDTO {
	return SeriesTotalDTO{
		Amount:     s.Amount.InexactFloat64(),
		Percentage: s.Percentage.InexactFloat64(),
	}
}

func toDashboardResponse(d *engine.Dashboard) DashboardResponse {
	resp := DashboardResponse{
		Summary: DashboardSummaryDTO{
			Programmed: toSeriesTotalDTO(d.Summary.Programmed),
			Physical:   toSeriesTotalDTO(d.Summary.Physical),
			Financial:  toSeriesTotalDTO(d.Summary.Financial),
			Difference: toSeriesTotalDTO(d.Summary.Difference),
		},
		Months:        make([]MonthBucketDTO, len(d.Months)),
		Details:       make([]DashboardRowDTO, len(d.Rows)),
		ProgramStatus: NoProgram,
	}
	if d.ProgramFound {
		resp.ProgramStatus = ProgramFound
		resp.ProgramSource = d.ProgramSource
	}

	for i, month := range d.Months {
		resp.Months[i] = MonthBucketDTO{
			Month:      month.Label,
			Programmed: toSeriesTotalDTO(month.Programmed),
			Physical:   toSeriesTotalDTO(month.Physical),
			Financial:  toSeriesTotalDTO(month.Financial),
		}
	}
	for i, row := range d.Rows {
		resp.Details[i] = DashboardRowDTO{
			ID:                  string(row.ConceptID),
			Description:         row.Description,
			Unit:                row.Unit,
			Quantity:            row.Quantity.InexactFloat64(),
			UnitPrice:           row.UnitPrice.InexactFloat64(),
			ProgrammedVolume:    row.ProgrammedVolume.InexactFloat64(),
			ProgrammedAmount:    row.ProgrammedAmount.InexactFloat64(),
			PhysicalVolume:      row.PhysicalVolume.InexactFloat64(),
			PhysicalAmount:      row.PhysicalAmount.InexactFloat64(),
			PhysicalPercentage:  row.PhysicalPercentage.InexactFloat64(),
			FinancialVolume:     row.FinancialVolume.InexactFloat64(),
			FinancialAmount:     row.FinancialAmount.InexactFloat64(),
			FinancialPercentage: row.FinancialPercentage.InexactFloat64(),
		}
	}
	return resp
}
