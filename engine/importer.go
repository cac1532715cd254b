/*
importer.go - Schedule-to-estimation import

PURPOSE:
  Builds a planned DRAFT estimation from a schedule: every activity
  overlapping the requested period contributes one prorated line per
  associated concept. The whole import - estimation, lines, and total -
  lands in a single transaction.

PRORATION:
  Same day math as the allocator, with the full-coverage rule spelled
  out: an activity entirely inside the period gets fraction = 1.0. Each
  line's execution date is the midpoint of the activity's in-period
  span.

  A concept reached through several activities is merged into one line
  (volumes and amounts summed, the earliest activity providing the
  execution date), keeping one line per (estimation, concept).

SEE ALSO:
  - estimation.go: the detail lines this produces
  - allocator.go: the read-side counterpart of this proration
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
// IMPORTER
// =============================================================================

type Importer struct {
	Store TxStore

	now func() time.Time
}

func NewImporter(store TxStore) *Importer {
	return &Importer{Store: store, now: time.Now}
}

// ImportInput names the schedule, the owning construction, the period to
// prorate over, and the new estimation's name. All fields are required.
type ImportInput struct {
	ConstructionID ConstructionID
	ScheduleID     ScheduleID
	Period         Period
	Name           string
}

// ImportResult reports what the import created.
type ImportResult struct {
	Estimation     *Estimation
	DetailsCreated int
}

// ImportFromSchedule creates a planned DRAFT estimation whose lines are
// the schedule's overlapping activities prorated to the period.
func (im *Importer) ImportFromSchedule(ctx context.Context, actor ActorID, in ImportInput) (*ImportResult, error) {
	if in.Name == "" {
		return nil, invalidf("name", "must not be empty")
	}
	if !in.Period.Valid() {
		return nil, invalidf("period", "start %s is after end %s", in.Period.Start, in.Period.End)
	}

	construction, err := im.Store.Construction(ctx, in.ConstructionID)
	if err != nil {
		return nil, fmt.Errorf("loading construction: %w", err)
	}
	if construction == nil {
		return nil, notFound("construction", string(in.ConstructionID))
	}
	schedule, err := im.Store.Schedule(ctx, in.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("loading schedule: %w", err)
	}
	if schedule == nil {
		return nil, notFound("schedule", string(in.ScheduleID))
	}

	if actor != "" {
		ok, err := im.Store.IsAssigned(ctx, actor, in.ConstructionID)
		if err != nil {
			return nil, fmt.Errorf("checking assignment: %w", err)
		}
		if !ok {
			return nil, &PermissionError{Actor: actor, Construction: in.ConstructionID}
		}
	}

	activities, err := im.Store.ActivitiesInWindow(ctx, in.ScheduleID, in.Period)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	now := im.now()
	scheduleID := in.ScheduleID
	estimation := &Estimation{
		ID:              EstimationID(uuid.NewString()),
		Name:            in.Name,
		Period:          in.Period,
		TotalAmount:     decimal.Zero,
		Status:          EstimationDraft,
		ConstructionID:  in.ConstructionID,
		Planned:         true,
		BasedOnSchedule: true,
		ScheduleID:      &scheduleID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if actor != "" {
		a := actor
		estimation.CreatedBy = &a
	}

	lines, err := im.prorateLines(ctx, activities, in.Period)
	if err != nil {
		return nil, err
	}

	err = im.Store.WithTx(ctx, func(s Store) error {
		if err := s.SaveEstimation(ctx, estimation); err != nil {
			return fmt.Errorf("saving estimation: %w", err)
		}
		total := decimal.Zero
		for i := range lines {
			lines[i].EstimationID = estimation.ID
			if err := s.SaveDetail(ctx, &lines[i]); err != nil {
				return fmt.Errorf("saving detail: %w", err)
			}
			total = total.Add(lines[i].Amount)
		}
		estimation.TotalAmount = total
		estimation.UpdatedAt = im.now()
		return s.SaveEstimation(ctx, estimation)
	})
	if err != nil {
		return nil, err
	}

	return &ImportResult{Estimation: estimation, DetailsCreated: len(lines)}, nil
}

// prorateLines builds one merged line per concept across the overlapping
// activities.
func (im *Importer) prorateLines(ctx context.Context, activities []Activity, period Period) ([]EstimationDetail, error) {
	byConcept := make(map[ConceptID]int)
	var lines []EstimationDetail

	for i := range activities {
		activity := activities[i]
		overlap, ok := activity.Window.Intersection(period)
		if !ok {
			continue
		}
		totalDays := activity.Window.Days()
		if totalDays <= 0 {
			continue
		}

		daysInPeriod := overlap.Days()
		fraction := decimal.NewFromInt(1)
		if daysInPeriod < totalDays {
			fraction = decimal.NewFromInt(int64(daysInPeriod)).Div(decimal.NewFromInt(int64(totalDays)))
		}
		executionDate := overlap.Start.AddDays(daysInPeriod / 2)

		conceptIDs, err := im.Store.ActivityConceptIDs(ctx, activity.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range conceptIDs {
			concept, err := im.Store.Concept(ctx, id)
			if err != nil {
				return nil, err
			}
			if concept == nil {
				continue
			}

			volume := concept.Quantity.Mul(fraction)
			amount := volume.Mul(concept.UnitPrice)

			if idx, seen := byConcept[id]; seen {
				lines[idx].Volume = lines[idx].Volume.Add(volume)
				lines[idx].Amount = lines[idx].Amount.Add(amount)
				continue
			}

			activityID := activity.ID
			date := executionDate
			lines = append(lines, EstimationDetail{
				ID:                   DetailID(uuid.NewString()),
				ConceptID:            id,
				Volume:               volume,
				Amount:               amount,
				ExecutionDate:        &date,
				CommitmentStatus:     CommitmentPending,
				ActivityID:           &activityID,
				ImportedFromSchedule: true,
			})
			byConcept[id] = len(lines) - 1
		}
	}
	return lines, nil
}
