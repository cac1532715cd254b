/*
store.go - Persistence interfaces for the reconciliation engine

PURPOSE:
  Defines the boundary between domain logic and the database. Services
  receive these interfaces explicitly (no package-level singletons), so the
  same engine runs against SQLite in production and the in-memory store in
  tests.

KEY INTERFACES:
  CatalogStore:    read access to concepts/catalogs/constructions
  ScheduleStore:   schedules, activities, and concept associations
  PhysicalStore:   physical advances and their status history
  EstimationStore: estimations, detail lines, financial aggregates
  CommitmentStore: planned-vs-actual tracking rows
  ChainStore:      persisted non-overlap activity chains
  AssignmentStore: actor-to-construction assignments

ATOMICITY:
  TxStore.WithTx executes a closure against a transactional view of the
  whole store. Detail mutation + total recomputation, and status transition
  + history append, always run inside one WithTx unit so concurrent writers
  cannot interleave read-modify-write cycles.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - engine/store/memory.go: in-memory for testing
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG
// =============================================================================

// CatalogStore reads the externally-owned concept catalog. Save methods exist
// for seeding and import only; the engine never mutates catalog data.
type CatalogStore interface {
	// Concepts returns active concepts matching the filter.
	Concepts(ctx context.Context, filter ConceptFilter) ([]Concept, error)

	Concept(ctx context.Context, id ConceptID) (*Concept, error)

	// ConstructionIDs returns the distinct constructions reachable from the
	// filtered concepts (concept -> catalog -> construction).
	ConstructionIDs(ctx context.Context, filter ConceptFilter) ([]ConstructionID, error)

	ConstructionForConcept(ctx context.Context, id ConceptID) (ConstructionID, error)

	Construction(ctx context.Context, id ConstructionID) (*Construction, error)

	SaveConstruction(ctx context.Context, c *Construction) error
	SaveCatalog(ctx context.Context, c *Catalog) error
	SaveWorkItem(ctx context.Context, w *WorkItem) error
	SaveConcept(ctx context.Context, c *Concept) error
}

// =============================================================================
// SCHEDULE
// =============================================================================

// ScheduleFilter narrows schedule listings. Nil fields match everything.
type ScheduleFilter struct {
	ConstructionID *ConstructionID
	Active         *bool
}

type ScheduleStore interface {
	SaveSchedule(ctx context.Context, s *Schedule) error
	Schedule(ctx context.Context, id ScheduleID) (*Schedule, error)
	Schedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)

	// ActiveSchedules returns active schedules belonging to any of the given
	// constructions, in creation order.
	ActiveSchedules(ctx context.Context, constructions []ConstructionID) ([]Schedule, error)

	SaveActivity(ctx context.Context, a *Activity) error
	Activity(ctx context.Context, id ActivityID) (*Activity, error)
	DeleteActivity(ctx context.Context, id ActivityID) error

	// Activities returns all activities of a schedule ordered by start date.
	Activities(ctx context.Context, scheduleID ScheduleID) ([]Activity, error)

	// ActivitiesInWindow returns the schedule's activities whose window
	// intersects the period, ordered by start date.
	ActivitiesInWindow(ctx context.Context, scheduleID ScheduleID, window Period) ([]Activity, error)

	// LinkConcept associates a concept with an activity. Returns false when
	// the association already exists (at most one per pair).
	LinkConcept(ctx context.Context, activityID ActivityID, conceptID ConceptID) (bool, error)

	// UnlinkConcepts removes associations, returning how many were deleted.
	UnlinkConcepts(ctx context.Context, activityID ActivityID, conceptIDs []ConceptID) (int, error)

	ActivityConceptIDs(ctx context.Context, activityID ActivityID) ([]ConceptID, error)

	// ScheduleConceptIDs returns the distinct concepts associated with any
	// activity of the schedule.
	ScheduleConceptIDs(ctx context.Context, scheduleID ScheduleID) ([]ConceptID, error)
}

// =============================================================================
// PHYSICAL
// =============================================================================

// PhysicalFilter narrows physical listings.
type PhysicalFilter struct {
	Concept       ConceptFilter
	Status        *PhysicalStatus
	From          *Date
	To            *Date
	Constructions []ConstructionID // non-nil: restrict to these constructions
}

type PhysicalStore interface {
	SavePhysical(ctx context.Context, p *Physical) error
	Physical(ctx context.Context, id PhysicalID) (*Physical, error)
	Physicals(ctx context.Context, filter PhysicalFilter) ([]Physical, error)
	DeletePhysical(ctx context.Context, id PhysicalID) error

	// AppendStatusChange records one immutable audit row.
	AppendStatusChange(ctx context.Context, change StatusChange) error

	StatusHistory(ctx context.Context, id PhysicalID) ([]StatusChange, error)

	// ApprovedVolumes sums APPROVED volumes per concept. A nil period means
	// all time; otherwise only records dated inside the period count.
	ApprovedVolumes(ctx context.Context, conceptIDs []ConceptID, period *Period) (map[ConceptID]decimal.Decimal, error)

	// ApprovedPhysicals returns APPROVED records for the concepts dated
	// inside the period, for time-bucketed aggregation.
	ApprovedPhysicals(ctx context.Context, conceptIDs []ConceptID, period Period) ([]Physical, error)

	// Approvals returns PENDING->APPROVED history rows joined with the
	// submission date of the underlying record, ordered by change time
	// ascending. A nil period means all time; otherwise only rows whose
	// record date falls inside the period are returned.
	Approvals(ctx context.Context, period *Period) ([]Approval, error)
}

// =============================================================================
// ESTIMATION
// =============================================================================

// EstimationFilter narrows estimation listings. Nil fields match everything.
type EstimationFilter struct {
	Status         *EstimationStatus
	Planned        *bool
	ConstructionID *ConstructionID
	Constructions  []ConstructionID // non-nil: restrict to these constructions
}

// FinancialTotal aggregates executed financial volume and amount per concept.
type FinancialTotal struct {
	Volume decimal.Decimal
	Amount decimal.Decimal
}

type EstimationStore interface {
	SaveEstimation(ctx context.Context, e *Estimation) error
	Estimation(ctx context.Context, id EstimationID) (*Estimation, error)
	Estimations(ctx context.Context, filter EstimationFilter) ([]Estimation, error)
	DeleteEstimation(ctx context.Context, id EstimationID) error

	SaveDetail(ctx context.Context, d *EstimationDetail) error
	Detail(ctx context.Context, id DetailID) (*EstimationDetail, error)
	Details(ctx context.Context, estimationID EstimationID) ([]EstimationDetail, error)
	DeleteDetail(ctx context.Context, id DetailID) error

	// SumDetailAmounts returns the sum of detail amounts for an estimation,
	// zero when it has no details.
	SumDetailAmounts(ctx context.Context, estimationID EstimationID) (decimal.Decimal, error)

	// PlannedEstimations returns is_planned estimations whose period
	// intersects the window, ordered by period start.
	PlannedEstimations(ctx context.Context, window Period) ([]Estimation, error)

	// FinancialExecution aggregates volume and amount per concept over
	// details whose owning estimation is APPROVED or PAID.
	FinancialExecution(ctx context.Context, conceptIDs []ConceptID) (map[ConceptID]FinancialTotal, error)

	// FinancialAmountWithin sums detail amounts of APPROVED/PAID estimations
	// whose whole period lies inside the window.
	FinancialAmountWithin(ctx context.Context, conceptIDs []ConceptID, window Period) (decimal.Decimal, error)
}

// =============================================================================
// COMMITMENT TRACKING
// =============================================================================

type CommitmentFilter struct {
	DetailID     *DetailID
	EstimationID *EstimationID
	Status       *TrackingStatus
	PlannedFrom  *Date
	PlannedTo    *Date
}

type CommitmentStore interface {
	SaveCommitment(ctx context.Context, c *CommitmentTracking) error
	Commitment(ctx context.Context, id CommitmentID) (*CommitmentTracking, error)
	Commitments(ctx context.Context, filter CommitmentFilter) ([]CommitmentTracking, error)
}

// =============================================================================
// CHAIN
// =============================================================================

type ChainStore interface {
	// ReplaceChain atomically replaces any prior chain for the schedule.
	ReplaceChain(ctx context.Context, chain ActivityChain) error

	// Chain returns the persisted chain, nil when none has been computed.
	Chain(ctx context.Context, scheduleID ScheduleID) (*ActivityChain, error)
}

// =============================================================================
// ASSIGNMENT - Actor-to-construction scoping
// =============================================================================

// Assignment links an actor to a construction they may report against.
type Assignment struct {
	ID             string
	Actor          ActorID
	ConstructionID ConstructionID
	Role           string
	Active         bool
}

type AssignmentStore interface {
	SaveAssignment(ctx context.Context, a Assignment) error

	// AssignedConstructions returns active assignments for the actor.
	AssignedConstructions(ctx context.Context, actor ActorID) ([]ConstructionID, error)

	IsAssigned(ctx context.Context, actor ActorID, construction ConstructionID) (bool, error)
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store is everything the engine persists or reads.
type Store interface {
	CatalogStore
	ScheduleStore
	PhysicalStore
	EstimationStore
	CommitmentStore
	ChainStore
	AssignmentStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, otherwise committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
