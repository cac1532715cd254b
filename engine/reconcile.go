/*
reconcile.go - Progress reconciliation

PURPOSE:
  The orchestrator. Combines three independent views of execution over a
  common window:

  ┌──────────────────────────────────────────────────────────────┐
  │                                                              │
  │   Allocator            Progress Ledger      Estimations      │
  │   (programmed)         (approved physical)  (APPROVED/PAID)  │
  │        │                      │                   │          │
  │        └──────────┬───────────┴───────────────────┘          │
  │                   ▼                                          │
  │        concept rows + period totals + time buckets           │
  │                                                              │
  └──────────────────────────────────────────────────────────────┘

  Two variants share the resolution step but bucket differently:

  Summary   - concept rows with approval metadata, paged, plus weekly
              executed buckets. Program and execution are both scoped
              to the requested window.
  Dashboard - per-concept physical vs financial comparison where the
              executed series are all-time, plus monthly buckets
              (capped at 12) that re-run the allocator per month.

PERCENTAGES:
  progress         = executed physical / programmed, per window
  global           = executed physical / contracted quantity
  financial global = executed amount / contracted amount

SEE ALSO:
  - allocator.go: the programmed-volume source chain
  - ledger.go: ApprovedVolume is the only physical read path used here
*/
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// Monthly series are capped so an oversized window cannot explode
	// the response.
	maxMonthBuckets = 12

	DefaultPage     = 1
	DefaultPageSize = 50
)

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Store     Store
	Allocator *Allocator
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{Store: store, Allocator: &Allocator{Catalog: store, Schedules: store, Estimations: store}}
}

// SummaryRequest parameterizes the detail-summary variant.
type SummaryRequest struct {
	Period     Period
	Filter     ConceptFilter
	ScheduleID *ScheduleID
	Page       int
	PageSize   int
}

// ApprovalInfo surfaces the most recent PENDING -> APPROVED transition
// in-range for a concept with executed volume.
type ApprovalInfo struct {
	SubmissionDate Date
	ApprovalDate   Date
	DaysToApprove  int
}

// ConceptRow is one concept's reconciliation line for the window.
type ConceptRow struct {
	ConceptID   ConceptID
	Description string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal

	ProgrammedVolume decimal.Decimal
	ProgrammedAmount decimal.Decimal
	ExecutedVolume   decimal.Decimal
	ExecutedAmount   decimal.Decimal

	Approval *ApprovalInfo

	ProgressPercentage        decimal.Decimal
	GlobalPercentage          decimal.Decimal
	FinancialGlobalPercentage decimal.Decimal
}

// Completed reports whether the concept met its program for the window.
func (r ConceptRow) Completed() bool {
	return r.ProgrammedVolume.IsPositive() && r.ProgressPercentage.GreaterThanOrEqual(oneHundred)
}

// WeekBucket is one 7-day slice of executed physical progress.
type WeekBucket struct {
	Label          string
	Window         Period
	ExecutedVolume decimal.Decimal
	ExecutedAmount decimal.Decimal
}

type SummaryTotals struct {
	ProgrammedAmount  decimal.Decimal
	ExecutedAmount    decimal.Decimal
	PeriodPercentage  decimal.Decimal
	ConceptCount      int
	CompletedConcepts int
}

type Pagination struct {
	TotalItems int
	Page       int
	PageSize   int
	TotalPages int
}

// Summary is the full detail-summary result.
type Summary struct {
	Period     Period
	Totals     SummaryTotals
	Rows       []ConceptRow
	Weeks      []WeekBucket
	Pagination Pagination

	ProgramFound  bool
	ProgramSource string
}

// Summarize produces the concept-level reconciliation for the window.
// Totals and the completed count cover every relevant concept, not just
// the returned page.
func (r *Reconciler) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	if !req.Period.Valid() {
		return nil, invalidf("period", "start %s is after end %s", req.Period.Start, req.Period.End)
	}
	page, pageSize := req.Page, req.PageSize
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	program, err := r.Allocator.Resolve(ctx, ProgramRequest{Window: req.Period, Filter: req.Filter, ScheduleID: req.ScheduleID})
	if err != nil {
		return nil, err
	}

	concepts, err := r.Store.Concepts(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("loading concepts: %w", err)
	}
	sort.Slice(concepts, func(i, j int) bool { return concepts[i].ID < concepts[j].ID })

	conceptIDs := make([]ConceptID, len(concepts))
	for i, c := range concepts {
		conceptIDs[i] = c.ID
	}

	executed, err := r.Store.ApprovedVolumes(ctx, conceptIDs, &req.Period)
	if err != nil {
		return nil, fmt.Errorf("loading executed volumes: %w", err)
	}

	approvalInfo, err := r.approvalInfo(ctx, req.Period, executed)
	if err != nil {
		return nil, err
	}

	// Relevance: keep concepts with a program or execution. With no
	// explicit filter and nothing relevant, fall back to the full set.
	relevant := make([]Concept, 0, len(concepts))
	for _, c := range concepts {
		if program.Volume(c.ID).IsPositive() || executed[c.ID].IsPositive() {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 && req.Filter.Empty() {
		relevant = concepts
	}

	totals := SummaryTotals{ConceptCount: len(relevant)}
	rows := make([]ConceptRow, 0, len(relevant))
	for _, c := range relevant {
		row := r.conceptRow(c, program, executed)
		row.Approval = approvalInfo[c.ID]

		totals.ProgrammedAmount = totals.ProgrammedAmount.Add(row.ProgrammedAmount)
		totals.ExecutedAmount = totals.ExecutedAmount.Add(row.ExecutedAmount)
		if row.Completed() {
			totals.CompletedConcepts++
		}
		rows = append(rows, row)
	}
	totals.PeriodPercentage = Percent(totals.ExecutedAmount, totals.ProgrammedAmount)

	weeks, err := r.weeklyBuckets(ctx, req.Period, conceptIDs)
	if err != nil {
		return nil, err
	}

	totalPages := (len(rows) + pageSize - 1) / pageSize
	return &Summary{
		Period: req.Period,
		Totals: totals,
		Rows:   pageOf(rows, page, pageSize),
		Weeks:  weeks,
		Pagination: Pagination{
			TotalItems: len(rows),
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
		ProgramFound:  program.Found,
		ProgramSource: program.Source,
	}, nil
}

func (r *Reconciler) conceptRow(c Concept, program Program, executed map[ConceptID]decimal.Decimal) ConceptRow {
	programmedVolume := program.Volume(c.ID)
	executedVolume := executed[c.ID]
	executedAmount := executedVolume.Mul(c.UnitPrice)

	return ConceptRow{
		ConceptID:   c.ID,
		Description: c.Description,
		Unit:        c.Unit,
		Quantity:    c.Quantity,
		UnitPrice:   c.UnitPrice,

		ProgrammedVolume: programmedVolume,
		ProgrammedAmount: programmedVolume.Mul(c.UnitPrice),
		ExecutedVolume:   executedVolume,
		ExecutedAmount:   executedAmount,

		ProgressPercentage:        Percent(executedVolume, programmedVolume),
		GlobalPercentage:          Percent(executedVolume, c.Quantity),
		FinancialGlobalPercentage: Percent(executedAmount, c.ContractAmount()),
	}
}

// approvalInfo maps each executing concept to its most recent approval
// transition whose record date falls in the window.
func (r *Reconciler) approvalInfo(ctx context.Context, window Period, executed map[ConceptID]decimal.Decimal) (map[ConceptID]*ApprovalInfo, error) {
	if len(executed) == 0 {
		return nil, nil
	}
	approvals, err := r.Store.Approvals(ctx, &window)
	if err != nil {
		return nil, fmt.Errorf("loading approvals: %w", err)
	}

	// Approvals come back oldest first; later entries win.
	info := make(map[ConceptID]*ApprovalInfo)
	for _, a := range approvals {
		if !executed[a.ConceptID].IsPositive() {
			continue
		}
		info[a.ConceptID] = &ApprovalInfo{
			SubmissionDate: a.SubmittedOn,
			ApprovalDate:   a.ApprovedOn,
			DaysToApprove:  a.DaysToApprove(),
		}
	}
	return info, nil
}

// weeklyBuckets partitions the window into 7-day slices and aggregates
// approved records whose date falls inside each slice. No per-bucket
// re-proration of the program.
func (r *Reconciler) weeklyBuckets(ctx context.Context, window Period, conceptIDs []ConceptID) ([]WeekBucket, error) {
	prices := make(map[ConceptID]decimal.Decimal, len(conceptIDs))
	for _, id := range conceptIDs {
		concept, err := r.Store.Concept(ctx, id)
		if err != nil {
			return nil, err
		}
		if concept != nil {
			prices[id] = concept.UnitPrice
		}
	}

	var buckets []WeekBucket
	for _, week := range window.Weeks() {
		records, err := r.Store.ApprovedPhysicals(ctx, conceptIDs, week)
		if err != nil {
			return nil, fmt.Errorf("loading weekly execution: %w", err)
		}

		volume, amount := decimal.Zero, decimal.Zero
		for _, rec := range records {
			volume = volume.Add(rec.Volume)
			amount = amount.Add(rec.Volume.Mul(prices[rec.ConceptID]))
		}

		buckets = append(buckets, WeekBucket{
			Label:          fmt.Sprintf("Week %02d/%02d", week.Start.Day(), int(week.Start.Month())),
			Window:         week,
			ExecutedVolume: volume,
			ExecutedAmount: amount,
		})
	}
	return buckets, nil
}

func pageOf(rows []ConceptRow, page, pageSize int) []ConceptRow {
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []ConceptRow{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// =============================================================================
// DASHBOARD - Physical vs financial comparison
// =============================================================================

// DashboardRequest parameterizes the dashboard variant. The window only
// scopes the program and the monthly series; executed totals are
// all-time.
type DashboardRequest struct {
	Period     Period
	Filter     ConceptFilter
	ScheduleID *ScheduleID
}

// SeriesTotal is an amount with its percentage against a reference
// total.
type SeriesTotal struct {
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

// MonthBucket is one calendar-month slice of all three series.
type MonthBucket struct {
	Label      string
	Window     Period
	Programmed SeriesTotal
	Physical   SeriesTotal
	Financial  SeriesTotal
}

// DashboardRow compares one concept's physical and financial execution.
type DashboardRow struct {
	ConceptID   ConceptID
	Description string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal

	ProgrammedVolume decimal.Decimal
	ProgrammedAmount decimal.Decimal

	PhysicalVolume     decimal.Decimal
	PhysicalAmount     decimal.Decimal
	PhysicalPercentage decimal.Decimal

	FinancialVolume     decimal.Decimal
	FinancialAmount     decimal.Decimal
	FinancialPercentage decimal.Decimal
}

// DashboardSummary carries the global physical-vs-financial picture.
type DashboardSummary struct {
	Programmed SeriesTotal
	Physical   SeriesTotal
	Financial  SeriesTotal
	Difference SeriesTotal
}

type Dashboard struct {
	Summary DashboardSummary
	Months  []MonthBucket
	Rows    []DashboardRow

	ProgramFound  bool
	ProgramSource string
}

// DashboardView produces the physical-vs-financial comparison. The
// programmed series is scoped to the window; physical and financial
// execution are accumulated all-time, and each concept's percentages are
// taken against its programmed amount for the window.
func (r *Reconciler) DashboardView(ctx context.Context, req DashboardRequest) (*Dashboard, error) {
	if !req.Period.Valid() {
		return nil, invalidf("period", "start %s is after end %s", req.Period.Start, req.Period.End)
	}

	program, err := r.Allocator.Resolve(ctx, ProgramRequest{Window: req.Period, Filter: req.Filter, ScheduleID: req.ScheduleID})
	if err != nil {
		return nil, err
	}

	concepts, err := r.Store.Concepts(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("loading concepts: %w", err)
	}
	sort.Slice(concepts, func(i, j int) bool { return concepts[i].ID < concepts[j].ID })

	conceptIDs := make([]ConceptID, len(concepts))
	for i, c := range concepts {
		conceptIDs[i] = c.ID
	}

	physical, err := r.Store.ApprovedVolumes(ctx, conceptIDs, nil)
	if err != nil {
		return nil, fmt.Errorf("loading physical execution: %w", err)
	}
	financial, err := r.Store.FinancialExecution(ctx, conceptIDs)
	if err != nil {
		return nil, fmt.Errorf("loading financial execution: %w", err)
	}

	var totalProgrammed, totalPhysical, totalFinancial, totalContract decimal.Decimal
	rows := make([]DashboardRow, 0, len(concepts))
	for _, c := range concepts {
		programmedVolume := program.Volume(c.ID)
		programmedAmount := programmedVolume.Mul(c.UnitPrice)
		physicalVolume := physical[c.ID]
		physicalAmount := physicalVolume.Mul(c.UnitPrice)
		fin := financial[c.ID]

		totalProgrammed = totalProgrammed.Add(programmedAmount)
		totalPhysical = totalPhysical.Add(physicalAmount)
		totalFinancial = totalFinancial.Add(fin.Amount)
		totalContract = totalContract.Add(c.ContractAmount())

		rows = append(rows, DashboardRow{
			ConceptID:   c.ID,
			Description: c.Description,
			Unit:        c.Unit,
			Quantity:    c.Quantity,
			UnitPrice:   c.UnitPrice,

			ProgrammedVolume: programmedVolume,
			ProgrammedAmount: programmedAmount,

			PhysicalVolume:     physicalVolume,
			PhysicalAmount:     physicalAmount,
			PhysicalPercentage: Percent(physicalAmount, programmedAmount),

			FinancialVolume:     fin.Volume,
			FinancialAmount:     fin.Amount,
			FinancialPercentage: Percent(fin.Amount, programmedAmount),
		})
	}

	months, err := r.monthlyBuckets(ctx, req, conceptIDs, totalProgrammed)
	if err != nil {
		return nil, err
	}

	physicalPct := Percent(totalPhysical, totalProgrammed)
	financialPct := Percent(totalFinancial, totalProgrammed)
	return &Dashboard{
		Summary: DashboardSummary{
			Programmed: SeriesTotal{Amount: totalProgrammed, Percentage: Percent(totalProgrammed, totalContract)},
			Physical:   SeriesTotal{Amount: totalPhysical, Percentage: physicalPct},
			Financial:  SeriesTotal{Amount: totalFinancial, Percentage: financialPct},
			Difference: SeriesTotal{Amount: totalPhysical.Sub(totalFinancial), Percentage: physicalPct.Sub(financialPct)},
		},
		Months:        months,
		Rows:          rows,
		ProgramFound:  program.Found,
		ProgramSource: program.Source,
	}, nil
}

// monthlyBuckets partitions the window by calendar month, capped at 12,
// and re-runs the allocator restricted to each sub-window. Financial
// execution counts estimations whose whole period lies inside the month.
func (r *Reconciler) monthlyBuckets(ctx context.Context, req DashboardRequest, conceptIDs []ConceptID, totalProgrammed decimal.Decimal) ([]MonthBucket, error) {
	prices := make(map[ConceptID]decimal.Decimal, len(conceptIDs))
	for _, id := range conceptIDs {
		concept, err := r.Store.Concept(ctx, id)
		if err != nil {
			return nil, err
		}
		if concept != nil {
			prices[id] = concept.UnitPrice
		}
	}

	var buckets []MonthBucket
	for _, month := range req.Period.Months(maxMonthBuckets) {
		monthProgram, err := r.Allocator.Resolve(ctx, ProgramRequest{Window: month, Filter: req.Filter, ScheduleID: req.ScheduleID})
		if err != nil {
			return nil, err
		}
		programmedAmount := decimal.Zero
		for id, volume := range monthProgram.Volumes {
			programmedAmount = programmedAmount.Add(volume.Mul(prices[id]))
		}

		records, err := r.Store.ApprovedPhysicals(ctx, conceptIDs, month)
		if err != nil {
			return nil, fmt.Errorf("loading monthly physical execution: %w", err)
		}
		physicalAmount := decimal.Zero
		for _, rec := range records {
			physicalAmount = physicalAmount.Add(rec.Volume.Mul(prices[rec.ConceptID]))
		}

		financialAmount, err := r.Store.FinancialAmountWithin(ctx, conceptIDs, month)
		if err != nil {
			return nil, fmt.Errorf("loading monthly financial execution: %w", err)
		}

		buckets = append(buckets, MonthBucket{
			Label:      fmt.Sprintf("%04d-%02d", month.Start.Year(), int(month.Start.Month())),
			Window:     month,
			Programmed: SeriesTotal{Amount: programmedAmount, Percentage: Percent(programmedAmount, totalProgrammed)},
			Physical:   SeriesTotal{Amount: physicalAmount, Percentage: Percent(physicalAmount, totalProgrammed)},
			Financial:  SeriesTotal{Amount: financialAmount, Percentage: Percent(financialAmount, totalProgrammed)},
		})
	}
	return buckets, nil
}
