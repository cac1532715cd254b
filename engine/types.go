/*
Package engine provides the progress allocation and reconciliation core.

PURPOSE:
  This package contains the domain types and algorithms that reconcile three
  independent views of construction-project execution: the programmed plan
  derived from a schedule, the physical progress reported from the field, and
  the financial progress captured in estimations. The same engine derives
  programmed volumes for arbitrary date windows, aggregates approved execution,
  and computes completion and variance metrics at concept, weekly, and monthly
  granularity.

KEY CONCEPTS IN THIS FILE (types.go):
  - Concept: a billable line item of contracted work (quantity x unit price)
  - Schedule/Activity: time-bounded plan entries associated with concepts
  - Estimation/EstimationDetail: financial-period summaries and their lines
  - CommitmentTracking: planned-vs-actual deviation per estimation line
  - Typed IDs: strong typing prevents mixing concept/schedule/activity ids

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every volume, amount, and percentage
  2. Type Safety: distinct ID types for each entity
  3. Explicit DI: services receive store interfaces, never package globals
  4. Auditability: every physical status change is paired with a history row

SEE ALSO:
  - period.go: Date/Period math and proration
  - allocator.go: programmed-volume resolution
  - ledger.go: physical advance lifecycle
  - reconcile.go: concept/period/bucket summaries
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ConceptID string
type CatalogID string
type WorkItemID string
type ConstructionID string
type ScheduleID string
type ActivityID string
type PhysicalID string
type EstimationID string
type DetailID string
type CommitmentID string
type ActorID string

// =============================================================================
// CATALOG - Billable work items (owned by the external catalog; read-only here)
// =============================================================================

type Classification string

const (
	ClassOrdinary      Classification = "ORD"
	ClassAdditional    Classification = "ADI"
	ClassExtraordinary Classification = "EXT"
)

// Concept is a contracted line item. The engine never mutates concepts;
// every computation keys off quantity and unit price.
type Concept struct {
	ID             ConceptID
	CatalogID      CatalogID
	WorkItemID     WorkItemID
	Description    string
	Unit           string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	Classification Classification
	Active         bool
}

// ContractAmount returns quantity x unit price, the concept's full value.
func (c Concept) ContractAmount() decimal.Decimal {
	return c.Quantity.Mul(c.UnitPrice)
}

type Catalog struct {
	ID             CatalogID
	ConstructionID ConstructionID
	Name           string
	Active         bool
}

type WorkItem struct {
	ID        WorkItemID
	CatalogID CatalogID
	Name      string
	Active    bool
}

// Construction is the owning project for a catalog of concepts.
type Construction struct {
	ID        ConstructionID
	Name      string
	StartDate Date
	EndDate   Date
	Budget    decimal.Decimal
	Status    string
}

// ConceptFilter narrows catalog queries. Nil fields match everything.
type ConceptFilter struct {
	ConceptID  *ConceptID
	WorkItemID *WorkItemID
	CatalogID  *CatalogID
}

// Empty reports whether no filter dimension is set.
func (f ConceptFilter) Empty() bool {
	return f.ConceptID == nil && f.WorkItemID == nil && f.CatalogID == nil
}

// =============================================================================
// SCHEDULE - Programmed plan
// =============================================================================

// Schedule owns an ordered collection of activities for one construction.
// Deactivation is terminal; there is no reactivation path.
type Schedule struct {
	ID             ScheduleID
	ConstructionID ConstructionID
	Name           string
	Description    string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Activity is a scheduled time window associated with one or more concepts.
// Start <= End is enforced on write; progress is a 0-100 percentage.
type Activity struct {
	ID          ActivityID
	ScheduleID  ScheduleID
	Name        string
	Description string
	Window      Period
	Progress    decimal.Decimal
}

// DurationDays returns the inclusive day count of the activity window.
func (a Activity) DurationDays() int {
	return a.Window.Days()
}

// =============================================================================
// PHYSICAL ADVANCE - Field-reported progress
// =============================================================================

type PhysicalStatus string

const (
	PhysicalPending  PhysicalStatus = "PENDING"
	PhysicalApproved PhysicalStatus = "APPROVED"
	PhysicalRejected PhysicalStatus = "REJECTED"
)

// ValidPhysicalStatus reports whether s is one of the three known states.
func ValidPhysicalStatus(s PhysicalStatus) bool {
	switch s {
	case PhysicalPending, PhysicalApproved, PhysicalRejected:
		return true
	}
	return false
}

// Physical is a field-reported quantity of completed work. The record date is
// set at creation and never changes; status moves only through the ledger.
type Physical struct {
	ID        PhysicalID
	ConceptID ConceptID
	Volume    decimal.Decimal
	Date      Date
	Status    PhysicalStatus
	Comments  string
}

// StatusChange is an immutable audit row recorded on every status transition.
type StatusChange struct {
	ID         string
	PhysicalID PhysicalID
	Previous   PhysicalStatus
	New        PhysicalStatus
	ChangedAt  time.Time
	ChangedBy  *ActorID
}

// Approval pairs a PENDING->APPROVED transition with the submission date of
// the underlying physical record, for latency metrics.
type Approval struct {
	PhysicalID  PhysicalID
	ConceptID   ConceptID
	SubmittedOn Date
	ApprovedOn  Date
	ChangedAt   time.Time
}

// DaysToApprove is the whole-day latency between submission and approval.
func (a Approval) DaysToApprove() int {
	return DaysBetween(a.SubmittedOn, a.ApprovedOn)
}

// =============================================================================
// ESTIMATION - Financial-period summary
// =============================================================================

type EstimationStatus string

const (
	EstimationDraft     EstimationStatus = "DRAFT"
	EstimationSubmitted EstimationStatus = "SUBMITTED"
	EstimationApproved  EstimationStatus = "APPROVED"
	EstimationPaid      EstimationStatus = "PAID"
)

func ValidEstimationStatus(s EstimationStatus) bool {
	switch s {
	case EstimationDraft, EstimationSubmitted, EstimationApproved, EstimationPaid:
		return true
	}
	return false
}

// CountsAsExecuted reports whether details of this estimation contribute to
// executed financial volume. Only approved or paid estimations count.
func (s EstimationStatus) CountsAsExecuted() bool {
	return s == EstimationApproved || s == EstimationPaid
}

// Estimation summarizes a financial period. TotalAmount is derived from the
// detail rows and is never authored directly.
type Estimation struct {
	ID              EstimationID
	Name            string
	Period          Period
	TotalAmount     decimal.Decimal
	Status          EstimationStatus
	ConstructionID  ConstructionID
	Planned         bool
	BasedOnSchedule bool
	ScheduleID      *ScheduleID
	CreatedBy       *ActorID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CommitmentStatus string

const (
	CommitmentPending   CommitmentStatus = "PENDING"
	CommitmentCommitted CommitmentStatus = "COMMITTED"
	CommitmentExecuted  CommitmentStatus = "EXECUTED"
	CommitmentDelayed   CommitmentStatus = "DELAYED"
)

func ValidCommitmentStatus(s CommitmentStatus) bool {
	switch s {
	case CommitmentPending, CommitmentCommitted, CommitmentExecuted, CommitmentDelayed:
		return true
	}
	return false
}

// EstimationDetail is a single financial line: one concept within one
// estimation, unique per (estimation, concept) pair.
type EstimationDetail struct {
	ID                   DetailID
	EstimationID         EstimationID
	ConceptID            ConceptID
	Volume               decimal.Decimal
	Amount               decimal.Decimal
	ExecutionDate        *Date
	CommitmentStatus     CommitmentStatus
	ActivityID           *ActivityID
	ImportedFromSchedule bool
}

// =============================================================================
// COMMITMENT TRACKING - Planned vs actual per estimation line
// =============================================================================

type TrackingStatus string

const (
	TrackOnTrack   TrackingStatus = "ON_TRACK"
	TrackDelayed   TrackingStatus = "DELAYED"
	TrackAdvanced  TrackingStatus = "ADVANCED"
	TrackCompleted TrackingStatus = "COMPLETED"
)

func ValidTrackingStatus(s TrackingStatus) bool {
	switch s {
	case TrackOnTrack, TrackDelayed, TrackAdvanced, TrackCompleted:
		return true
	}
	return false
}

// CommitmentTracking records planned-vs-actual execution for one estimation
// line. Variance is derived; it stays nil until an actual volume is known and
// the planned volume is positive.
type CommitmentTracking struct {
	ID            CommitmentID
	DetailID      DetailID
	PlannedDate   Date
	ActualDate    *Date
	PlannedVolume decimal.Decimal
	ActualVolume  *decimal.Decimal
	Variance      *decimal.Decimal
	Status        TrackingStatus
	Comments      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// =============================================================================
// CRITICAL PATH (heuristic chain)
// =============================================================================

// ActivityChain is the persisted result of the non-overlap chain selection.
// It is NOT a true CPM critical path: no float or early/late dates are
// computed, only a chronologically ordered, pairwise non-overlapping chain.
type ActivityChain struct {
	ScheduleID   ScheduleID
	CalculatedAt time.Time
	Notes        string
	Links        []ChainLink
}

// ChainLink is one selected activity with its 1-based selection order.
type ChainLink struct {
	ActivityID    ActivityID
	SequenceOrder int
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var oneHundred = decimal.NewFromInt(100)

// Percent returns part/whole x 100, or zero when whole is not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(oneHundred)
}

// MustDecimal parses s, returning zero on failure. For constants in tests
// and seed data only.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
