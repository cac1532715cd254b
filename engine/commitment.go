/*
commitment.go - Planned-vs-actual commitment tracking

PURPOSE:
  Tracks execution commitments at the granularity of a single estimation
  line: a planned date and volume against an optional actual date and
  volume, with a derived percentage deviation.

VARIANCE RULE:
  variance = (actual - planned) / planned x 100,
  computed only when actual_volume is present AND planned_volume > 0.
  Otherwise variance stays unset - nil, never zero. The field is derived
  on every write and never accepted from the caller.

SEE ALSO:
  - estimation.go: owning detail lines and bulk status updates
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
// COMMITMENT TRACKER
// =============================================================================

type CommitmentTracker struct {
	Store TxStore

	now func() time.Time
}

func NewCommitmentTracker(store TxStore) *CommitmentTracker {
	return &CommitmentTracker{Store: store, now: time.Now}
}

// CreateCommitmentInput carries the caller-supplied fields. Variance is
// derived, never supplied.
type CreateCommitmentInput struct {
	DetailID      DetailID
	PlannedDate   Date
	PlannedVolume decimal.Decimal
	ActualDate    *Date
	ActualVolume  *decimal.Decimal
	Status        TrackingStatus
	Comments      string
}

// Create registers a tracking row for a detail line.
func (ct *CommitmentTracker) Create(ctx context.Context, in CreateCommitmentInput) (*CommitmentTracking, error) {
	if !in.PlannedVolume.IsPositive() {
		return nil, invalidf("planned_volume", "must be greater than zero, got %s", in.PlannedVolume)
	}
	if in.ActualVolume != nil && in.ActualVolume.IsNegative() {
		return nil, invalidf("actual_volume", "must not be negative, got %s", in.ActualVolume)
	}
	if in.PlannedDate.IsZero() {
		return nil, invalidf("planned_date", "is required")
	}
	status := in.Status
	if status == "" {
		status = TrackOnTrack
	}
	if !ValidTrackingStatus(status) {
		return nil, invalidf("status", "unknown status %q", status)
	}

	detail, err := ct.Store.Detail(ctx, in.DetailID)
	if err != nil {
		return nil, fmt.Errorf("loading detail: %w", err)
	}
	if detail == nil {
		return nil, notFound("estimation detail", string(in.DetailID))
	}

	now := ct.now()
	commitment := &CommitmentTracking{
		ID:            CommitmentID(uuid.NewString()),
		DetailID:      in.DetailID,
		PlannedDate:   in.PlannedDate,
		ActualDate:    in.ActualDate,
		PlannedVolume: in.PlannedVolume,
		ActualVolume:  in.ActualVolume,
		Variance:      varianceOf(in.PlannedVolume, in.ActualVolume),
		Status:        status,
		Comments:      in.Comments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ct.Store.SaveCommitment(ctx, commitment); err != nil {
		return nil, fmt.Errorf("saving commitment: %w", err)
	}
	return commitment, nil
}

// UpdateCommitmentInput carries the editable fields; nil means unchanged.
type UpdateCommitmentInput struct {
	PlannedDate   *Date
	PlannedVolume *decimal.Decimal
	ActualDate    *Date
	ActualVolume  *decimal.Decimal
	Status        *TrackingStatus
	Comments      *string
}

// Update edits a tracking row and re-derives the variance.
func (ct *CommitmentTracker) Update(ctx context.Context, id CommitmentID, in UpdateCommitmentInput) (*CommitmentTracking, error) {
	commitment, err := ct.Store.Commitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if commitment == nil {
		return nil, notFound("commitment", string(id))
	}

	if in.PlannedVolume != nil {
		if !in.PlannedVolume.IsPositive() {
			return nil, invalidf("planned_volume", "must be greater than zero, got %s", in.PlannedVolume)
		}
		commitment.PlannedVolume = *in.PlannedVolume
	}
	if in.ActualVolume != nil {
		if in.ActualVolume.IsNegative() {
			return nil, invalidf("actual_volume", "must not be negative, got %s", in.ActualVolume)
		}
		v := *in.ActualVolume
		commitment.ActualVolume = &v
	}
	if in.PlannedDate != nil {
		commitment.PlannedDate = *in.PlannedDate
	}
	if in.ActualDate != nil {
		d := *in.ActualDate
		commitment.ActualDate = &d
	}
	if in.Status != nil {
		if !ValidTrackingStatus(*in.Status) {
			return nil, invalidf("status", "unknown status %q", *in.Status)
		}
		commitment.Status = *in.Status
	}
	if in.Comments != nil {
		commitment.Comments = *in.Comments
	}

	commitment.Variance = varianceOf(commitment.PlannedVolume, commitment.ActualVolume)
	commitment.UpdatedAt = ct.now()

	if err := ct.Store.SaveCommitment(ctx, commitment); err != nil {
		return nil, fmt.Errorf("saving commitment: %w", err)
	}
	return commitment, nil
}

// Get returns the tracking row.
func (ct *CommitmentTracker) Get(ctx context.Context, id CommitmentID) (*CommitmentTracking, error) {
	commitment, err := ct.Store.Commitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if commitment == nil {
		return nil, notFound("commitment", string(id))
	}
	return commitment, nil
}

// List returns tracking rows matching the filter, planned date ascending.
func (ct *CommitmentTracker) List(ctx context.Context, filter CommitmentFilter) ([]CommitmentTracking, error) {
	return ct.Store.Commitments(ctx, filter)
}

// varianceOf derives the percentage deviation, nil when actual is absent
// or planned is non-positive.
func varianceOf(planned decimal.Decimal, actual *decimal.Decimal) *decimal.Decimal {
	if actual == nil || !planned.IsPositive() {
		return nil
	}
	v := actual.Sub(planned).Div(planned).Mul(decimal.NewFromInt(100))
	return &v
}
