/*
estimation.go - Financial estimation lifecycle

PURPOSE:
  Owns estimations and their detail lines:
  1. Estimation CRUD with construction scoping
  2. Detail mutations that keep total_amount consistent
  3. Planned-vs-real comparison for planned estimations
  4. Bulk commitment-status updates on detail lines

TOTAL INVARIANT:
  Estimation.total_amount is never authored. Every detail create, update,
  or delete recomputes the owning estimation's total from its rows inside
  the same transaction, so the total can never drift from its details
  even under concurrent writes.

UNIQUENESS:
  A concept appears at most once per estimation. Adding a second line for
  the same concept is a conflict, not a merge.

SEE ALSO:
  - commitment.go: per-line planned-vs-actual tracking
  - importer.go: builds planned estimations from schedules
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ESTIMATION SERVICE
// =============================================================================

type EstimationService struct {
	Store TxStore

	now func() time.Time
}

func NewEstimationService(store TxStore) *EstimationService {
	return &EstimationService{Store: store, now: time.Now}
}

// CreateEstimationInput carries caller-supplied fields of a new estimation.
type CreateEstimationInput struct {
	Name           string
	Period         Period
	ConstructionID ConstructionID
	Planned        bool
	ScheduleID     *ScheduleID
}

// Create registers a DRAFT estimation with zero total.
func (es *EstimationService) Create(ctx context.Context, actor ActorID, in CreateEstimationInput) (*Estimation, error) {
	if in.Name == "" {
		return nil, invalidf("name", "must not be empty")
	}
	if !in.Period.Valid() {
		return nil, invalidf("period", "start %s is after end %s", in.Period.Start, in.Period.End)
	}

	construction, err := es.Store.Construction(ctx, in.ConstructionID)
	if err != nil {
		return nil, fmt.Errorf("loading construction: %w", err)
	}
	if construction == nil {
		return nil, notFound("construction", string(in.ConstructionID))
	}
	if err := es.authorize(ctx, actor, in.ConstructionID); err != nil {
		return nil, err
	}

	now := es.now()
	estimation := &Estimation{
		ID:              EstimationID(uuid.NewString()),
		Name:            in.Name,
		Period:          in.Period,
		TotalAmount:     decimal.Zero,
		Status:          EstimationDraft,
		ConstructionID:  in.ConstructionID,
		Planned:         in.Planned,
		BasedOnSchedule: in.ScheduleID != nil,
		ScheduleID:      in.ScheduleID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if actor != "" {
		a := actor
		estimation.CreatedBy = &a
	}
	if err := es.Store.SaveEstimation(ctx, estimation); err != nil {
		return nil, fmt.Errorf("saving estimation: %w", err)
	}
	return estimation, nil
}

// Get returns the estimation, treating out-of-scope records as absent.
func (es *EstimationService) Get(ctx context.Context, actor ActorID, id EstimationID) (*Estimation, error) {
	estimation, err := es.Store.Estimation(ctx, id)
	if err != nil {
		return nil, err
	}
	if estimation == nil {
		return nil, notFound("estimation", string(id))
	}
	if actor != "" {
		ok, err := es.Store.IsAssigned(ctx, actor, estimation.ConstructionID)
		if err != nil {
			return nil, fmt.Errorf("checking assignment: %w", err)
		}
		if !ok {
			return nil, notFound("estimation", string(id))
		}
	}
	return estimation, nil
}

// List returns estimations matching the filter, restricted to the actor's
// assigned constructions.
func (es *EstimationService) List(ctx context.Context, actor ActorID, filter EstimationFilter) ([]Estimation, error) {
	if actor != "" {
		constructions, err := es.Store.AssignedConstructions(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("loading assignments: %w", err)
		}
		// Stores treat a nil restriction as unrestricted; an actor with
		// no assignments must see nothing, not everything.
		if constructions == nil {
			constructions = []ConstructionID{}
		}
		filter.Constructions = constructions
	}
	return es.Store.Estimations(ctx, filter)
}

// UpdateStatus moves the estimation to a new status. Valid statuses only;
// no transition graph is enforced beyond validity.
func (es *EstimationService) UpdateStatus(ctx context.Context, actor ActorID, id EstimationID, to EstimationStatus) (*Estimation, error) {
	if !ValidEstimationStatus(to) {
		return nil, invalidf("status", "unknown status %q", to)
	}
	estimation, err := es.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := es.authorize(ctx, actor, estimation.ConstructionID); err != nil {
		return nil, err
	}
	if estimation.Status == to {
		return estimation, nil
	}
	estimation.Status = to
	estimation.UpdatedAt = es.now()
	if err := es.Store.SaveEstimation(ctx, estimation); err != nil {
		return nil, fmt.Errorf("saving estimation: %w", err)
	}
	return estimation, nil
}

// Delete removes a DRAFT estimation along with its details.
func (es *EstimationService) Delete(ctx context.Context, actor ActorID, id EstimationID) error {
	estimation, err := es.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := es.authorize(ctx, actor, estimation.ConstructionID); err != nil {
		return err
	}
	if estimation.Status != EstimationDraft {
		return fmt.Errorf("%w: estimation %s is %s, only DRAFT estimations can be deleted", ErrConflict, id, estimation.Status)
	}
	return es.Store.DeleteEstimation(ctx, id)
}

// =============================================================================
// DETAIL LINES - Mutations keep total_amount consistent
// =============================================================================

// DetailInput carries the fields of a new or updated detail line.
type DetailInput struct {
	ConceptID     ConceptID
	Volume        decimal.Decimal
	Amount        decimal.Decimal
	ExecutionDate *Date
	ActivityID    *ActivityID
}

// AddDetail appends a line to the estimation, rejecting duplicates per
// concept, and recomputes the total in the same transaction.
func (es *EstimationService) AddDetail(ctx context.Context, actor ActorID, estimationID EstimationID, in DetailInput) (*EstimationDetail, error) {
	estimation, err := es.Get(ctx, actor, estimationID)
	if err != nil {
		return nil, err
	}
	if err := es.authorize(ctx, actor, estimation.ConstructionID); err != nil {
		return nil, err
	}
	if !in.Volume.IsPositive() {
		return nil, invalidf("volume", "must be greater than zero, got %s", in.Volume)
	}
	if !in.Amount.IsPositive() {
		return nil, invalidf("amount", "must be greater than zero, got %s", in.Amount)
	}

	concept, err := es.Store.Concept(ctx, in.ConceptID)
	if err != nil {
		return nil, fmt.Errorf("loading concept: %w", err)
	}
	if concept == nil {
		return nil, notFound("concept", string(in.ConceptID))
	}

	detail := &EstimationDetail{
		ID:               DetailID(uuid.NewString()),
		EstimationID:     estimationID,
		ConceptID:        in.ConceptID,
		Volume:           in.Volume,
		Amount:           in.Amount,
		ExecutionDate:    in.ExecutionDate,
		CommitmentStatus: CommitmentPending,
		ActivityID:       in.ActivityID,
	}

	err = es.Store.WithTx(ctx, func(s Store) error {
		existing, err := s.Details(ctx, estimationID)
		if err != nil {
			return err
		}
		for _, d := range existing {
			if d.ConceptID == in.ConceptID {
				return fmt.Errorf("%w: concept %s already has a line in estimation %s", ErrConflict, in.ConceptID, estimationID)
			}
		}
		if err := s.SaveDetail(ctx, detail); err != nil {
			return fmt.Errorf("saving detail: %w", err)
		}
		return es.recomputeTotal(ctx, s, estimationID)
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateDetailInput carries the editable fields of a detail line. Nil
// fields are left unchanged; the concept is immutable.
type UpdateDetailInput struct {
	Volume        *decimal.Decimal
	Amount        *decimal.Decimal
	ExecutionDate *Date
}

// UpdateDetail edits a line and recomputes the total atomically.
func (es *EstimationService) UpdateDetail(ctx context.Context, actor ActorID, id DetailID, in UpdateDetailInput) (*EstimationDetail, error) {
	detail, err := es.Store.Detail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, notFound("estimation detail", string(id))
	}
	estimation, err := es.Get(ctx, actor, detail.EstimationID)
	if err != nil {
		return nil, err
	}
	if err := es.authorize(ctx, actor, estimation.ConstructionID); err != nil {
		return nil, err
	}

	if in.Volume != nil {
		if !in.Volume.IsPositive() {
			return nil, invalidf("volume", "must be greater than zero, got %s", in.Volume)
		}
		detail.Volume = *in.Volume
	}
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, invalidf("amount", "must be greater than zero, got %s", in.Amount)
		}
		detail.Amount = *in.Amount
	}
	if in.ExecutionDate != nil {
		d := *in.ExecutionDate
		detail.ExecutionDate = &d
	}

	err = es.Store.WithTx(ctx, func(s Store) error {
		if err := s.SaveDetail(ctx, detail); err != nil {
			return fmt.Errorf("saving detail: %w", err)
		}
		return es.recomputeTotal(ctx, s, detail.EstimationID)
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// RemoveDetail deletes a line and recomputes the total atomically.
func (es *EstimationService) RemoveDetail(ctx context.Context, actor ActorID, id DetailID) error {
	detail, err := es.Store.Detail(ctx, id)
	if err != nil {
		return err
	}
	if detail == nil {
		return notFound("estimation detail", string(id))
	}
	estimation, err := es.Get(ctx, actor, detail.EstimationID)
	if err != nil {
		return err
	}
	if err := es.authorize(ctx, actor, estimation.ConstructionID); err != nil {
		return err
	}

	return es.Store.WithTx(ctx, func(s Store) error {
		if err := s.DeleteDetail(ctx, id); err != nil {
			return fmt.Errorf("deleting detail: %w", err)
		}
		return es.recomputeTotal(ctx, s, detail.EstimationID)
	})
}

// Details returns the estimation's lines.
func (es *EstimationService) Details(ctx context.Context, actor ActorID, estimationID EstimationID) ([]EstimationDetail, error) {
	if _, err := es.Get(ctx, actor, estimationID); err != nil {
		return nil, err
	}
	return es.Store.Details(ctx, estimationID)
}

// recomputeTotal rewrites the estimation's total from its detail rows.
// Idempotent: re-running it never changes a consistent total.
func (es *EstimationService) recomputeTotal(ctx context.Context, s Store, estimationID EstimationID) error {
	total, err := s.SumDetailAmounts(ctx, estimationID)
	if err != nil {
		return fmt.Errorf("summing details: %w", err)
	}
	estimation, err := s.Estimation(ctx, estimationID)
	if err != nil {
		return err
	}
	if estimation == nil {
		return notFound("estimation", string(estimationID))
	}
	estimation.TotalAmount = total
	estimation.UpdatedAt = es.now()
	if err := s.SaveEstimation(ctx, estimation); err != nil {
		return fmt.Errorf("saving total: %w", err)
	}
	return nil
}

// =============================================================================
// PLANNED VS REAL - Comparison for planned estimations
// =============================================================================

const (
	CompareNoProgress = "NO_PROGRESS"
	ComparePartial    = "PARTIAL"
	CompareCompleted  = "COMPLETED"
)

// ComparisonRow pits one planned line against approved physical volume
// reported for its concept inside the estimation period.
type ComparisonRow struct {
	DetailID           DetailID
	ConceptID          ConceptID
	Concept            string
	PlannedVolume      decimal.Decimal
	RealVolume         decimal.Decimal
	Variance           decimal.Decimal
	VariancePercentage decimal.Decimal
	Status             string
}

// CompareWithReal reports, per detail line of a planned estimation, how the
// approved physical volume in the period stacks up against the plan.
// Only planned estimations qualify.
func (es *EstimationService) CompareWithReal(ctx context.Context, actor ActorID, id EstimationID) ([]ComparisonRow, error) {
	estimation, err := es.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !estimation.Planned {
		return nil, invalidf("estimation", "comparison is only available for planned estimations")
	}

	details, err := es.Store.Details(ctx, id)
	if err != nil {
		return nil, err
	}

	conceptIDs := make([]ConceptID, 0, len(details))
	for _, d := range details {
		conceptIDs = append(conceptIDs, d.ConceptID)
	}
	period := estimation.Period
	approved, err := es.Store.ApprovedVolumes(ctx, conceptIDs, &period)
	if err != nil {
		return nil, fmt.Errorf("loading approved volumes: %w", err)
	}

	rows := make([]ComparisonRow, 0, len(details))
	for _, d := range details {
		real := approved[d.ConceptID]

		var variancePct decimal.Decimal
		switch {
		case d.Volume.IsPositive():
			variancePct = real.Sub(d.Volume).Div(d.Volume).Mul(decimal.NewFromInt(100))
		case real.IsZero():
			variancePct = decimal.Zero
		default:
			variancePct = decimal.NewFromInt(100)
		}

		status := ComparePartial
		switch {
		case real.IsZero():
			status = CompareNoProgress
		case real.GreaterThanOrEqual(d.Volume):
			status = CompareCompleted
		}

		row := ComparisonRow{
			DetailID:           d.ID,
			ConceptID:          d.ConceptID,
			PlannedVolume:      d.Volume,
			RealVolume:         real,
			Variance:           real.Sub(d.Volume),
			VariancePercentage: variancePct,
			Status:             status,
		}
		if concept, err := es.Store.Concept(ctx, d.ConceptID); err == nil && concept != nil {
			row.Concept = concept.Description
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// =============================================================================
// BULK COMMITMENT STATUS
// =============================================================================

// UpdateCommitments sets the commitment status of the named detail lines
// of one estimation, returning how many lines actually belonged to it.
func (es *EstimationService) UpdateCommitments(ctx context.Context, actor ActorID, id EstimationID, detailIDs []DetailID, status CommitmentStatus) (int, error) {
	if len(detailIDs) == 0 {
		return 0, invalidf("detail_ids", "must not be empty")
	}
	if !ValidCommitmentStatus(status) {
		return 0, invalidf("status", "unknown status %q", status)
	}

	estimation, err := es.Get(ctx, actor, id)
	if err != nil {
		return 0, err
	}
	if err := es.authorize(ctx, actor, estimation.ConstructionID); err != nil {
		return 0, err
	}

	wanted := make(map[DetailID]bool, len(detailIDs))
	for _, d := range detailIDs {
		wanted[d] = true
	}

	updated := 0
	err = es.Store.WithTx(ctx, func(s Store) error {
		details, err := s.Details(ctx, id)
		if err != nil {
			return err
		}
		for i := range details {
			if !wanted[details[i].ID] {
				continue
			}
			details[i].CommitmentStatus = status
			if err := s.SaveDetail(ctx, &details[i]); err != nil {
				return fmt.Errorf("saving detail: %w", err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (es *EstimationService) authorize(ctx context.Context, actor ActorID, construction ConstructionID) error {
	if actor == "" {
		return nil
	}
	ok, err := es.Store.IsAssigned(ctx, actor, construction)
	if err != nil {
		return fmt.Errorf("checking assignment: %w", err)
	}
	if !ok {
		return &PermissionError{Actor: actor, Construction: construction}
	}
	return nil
}
