/*
schedule.go - Schedule and activity management

PURPOSE:
  CRUD and lifecycle for schedules and their activities:
  1. Schedule create / deactivate / duplicate / validate
  2. Activity create / update / delete with date ordering enforced
  3. Concept association (many-to-many, one link per pair)
  4. Per-activity progress updates (0-100)

LIFECYCLE:
  Deactivation is terminal. There is no reactivation path; a deactivated
  schedule stops feeding the allocator's implicit tier but keeps its data
  for history. Duplication produces a fresh active copy with progress
  reset to zero.

VALIDATION:
  Validate checks three things against the owning construction: the
  summed contract amount of all linked concepts stays within budget, no
  activity ends after the construction does, and reports which of the
  construction's concepts are not linked to any activity.

SEE ALSO:
  - allocator.go: consumes active schedules
  - chain.go: chain selection over a schedule's activities
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
// SCHEDULE SERVICE
// =============================================================================

type ScheduleService struct {
	Store TxStore

	now func() time.Time
}

func NewScheduleService(store TxStore) *ScheduleService {
	return &ScheduleService{Store: store, now: time.Now}
}

// CreateScheduleInput carries the fields of a new schedule.
type CreateScheduleInput struct {
	ConstructionID ConstructionID
	Name           string
	Description    string
}

// Create registers an active schedule for the construction.
func (ss *ScheduleService) Create(ctx context.Context, in CreateScheduleInput) (*Schedule, error) {
	if in.Name == "" {
		return nil, invalidf("name", "must not be empty")
	}
	construction, err := ss.Store.Construction(ctx, in.ConstructionID)
	if err != nil {
		return nil, fmt.Errorf("loading construction: %w", err)
	}
	if construction == nil {
		return nil, notFound("construction", string(in.ConstructionID))
	}

	now := ss.now()
	schedule := &Schedule{
		ID:             ScheduleID(uuid.NewString()),
		ConstructionID: in.ConstructionID,
		Name:           in.Name,
		Description:    in.Description,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := ss.Store.SaveSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("saving schedule: %w", err)
	}
	return schedule, nil
}

// Get returns the schedule.
func (ss *ScheduleService) Get(ctx context.Context, id ScheduleID) (*Schedule, error) {
	schedule, err := ss.Store.Schedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, notFound("schedule", string(id))
	}
	return schedule, nil
}

// List returns schedules matching the filter.
func (ss *ScheduleService) List(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	return ss.Store.Schedules(ctx, filter)
}

// Deactivate turns the schedule off. Terminal: no reactivation.
func (ss *ScheduleService) Deactivate(ctx context.Context, id ScheduleID) (*Schedule, error) {
	schedule, err := ss.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !schedule.Active {
		return schedule, nil
	}
	schedule.Active = false
	schedule.UpdatedAt = ss.now()
	if err := ss.Store.SaveSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("saving schedule: %w", err)
	}
	return schedule, nil
}

// Duplicate copies the schedule, its activities, and their concept links
// into a fresh active schedule with all progress reset to zero.
func (ss *ScheduleService) Duplicate(ctx context.Context, id ScheduleID) (*Schedule, error) {
	original, err := ss.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	activities, err := ss.Store.Activities(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	now := ss.now()
	copySchedule := &Schedule{
		ID:             ScheduleID(uuid.NewString()),
		ConstructionID: original.ConstructionID,
		Name:           "Copy of " + original.Name,
		Description:    original.Description,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = ss.Store.WithTx(ctx, func(s Store) error {
		if err := s.SaveSchedule(ctx, copySchedule); err != nil {
			return fmt.Errorf("saving schedule copy: %w", err)
		}
		for _, activity := range activities {
			copyActivity := &Activity{
				ID:          ActivityID(uuid.NewString()),
				ScheduleID:  copySchedule.ID,
				Name:        activity.Name,
				Description: activity.Description,
				Window:      activity.Window,
				Progress:    decimal.Zero,
			}
			if err := s.SaveActivity(ctx, copyActivity); err != nil {
				return fmt.Errorf("saving activity copy: %w", err)
			}

			conceptIDs, err := s.ActivityConceptIDs(ctx, activity.ID)
			if err != nil {
				return err
			}
			for _, conceptID := range conceptIDs {
				if _, err := s.LinkConcept(ctx, copyActivity.ID, conceptID); err != nil {
					return fmt.Errorf("linking concept: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copySchedule, nil
}

// ValidationReport is the outcome of schedule validation. The schedule
// is valid only when no errors were found and every construction concept
// is linked to some activity.
type ValidationReport struct {
	Valid           bool
	Errors          []string
	MissingConcepts []ConceptID
}

// Validate checks the schedule against its construction's budget and end
// date and reports unlinked concepts.
func (ss *ScheduleService) Validate(ctx context.Context, id ScheduleID) (*ValidationReport, error) {
	schedule, err := ss.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	construction, err := ss.Store.Construction(ctx, schedule.ConstructionID)
	if err != nil {
		return nil, fmt.Errorf("loading construction: %w", err)
	}
	if construction == nil {
		return nil, notFound("construction", string(schedule.ConstructionID))
	}

	activities, err := ss.Store.Activities(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	report := &ValidationReport{}

	// Budget: summed contract amount of every linked concept, counted
	// once per link.
	total := decimal.Zero
	var latestEnd Date
	for _, activity := range activities {
		conceptIDs, err := ss.Store.ActivityConceptIDs(ctx, activity.ID)
		if err != nil {
			return nil, err
		}
		for _, conceptID := range conceptIDs {
			concept, err := ss.Store.Concept(ctx, conceptID)
			if err != nil {
				return nil, err
			}
			if concept != nil {
				total = total.Add(concept.ContractAmount())
			}
		}
		if latestEnd.IsZero() || activity.Window.End.After(latestEnd) {
			latestEnd = activity.Window.End
		}
	}
	if total.GreaterThan(construction.Budget) {
		report.Errors = append(report.Errors, fmt.Sprintf("schedule total %s exceeds construction budget %s", total, construction.Budget))
	}
	if !latestEnd.IsZero() && latestEnd.After(construction.EndDate) {
		report.Errors = append(report.Errors, fmt.Sprintf("schedule ends %s, after construction end %s", latestEnd, construction.EndDate))
	}

	linked, err := ss.Store.ScheduleConceptIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading linked concepts: %w", err)
	}
	linkedSet := make(map[ConceptID]bool, len(linked))
	for _, cid := range linked {
		linkedSet[cid] = true
	}

	all, err := ss.Store.Concepts(ctx, ConceptFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading concepts: %w", err)
	}
	for _, concept := range all {
		owner, err := ss.Store.ConstructionForConcept(ctx, concept.ID)
		if err != nil {
			continue
		}
		if owner != construction.ID || linkedSet[concept.ID] {
			continue
		}
		report.MissingConcepts = append(report.MissingConcepts, concept.ID)
	}

	report.Valid = len(report.Errors) == 0 && len(report.MissingConcepts) == 0
	return report, nil
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// ActivityInput carries the fields of a new or updated activity.
type ActivityInput struct {
	Name        string
	Description string
	Window      Period
}

// AddActivity appends an activity to the schedule, enforcing start <= end.
func (ss *ScheduleService) AddActivity(ctx context.Context, scheduleID ScheduleID, in ActivityInput) (*Activity, error) {
	if in.Name == "" {
		return nil, invalidf("name", "must not be empty")
	}
	if !in.Window.Valid() {
		return nil, invalidf("dates", "start %s is after end %s", in.Window.Start, in.Window.End)
	}
	if _, err := ss.Get(ctx, scheduleID); err != nil {
		return nil, err
	}

	activity := &Activity{
		ID:          ActivityID(uuid.NewString()),
		ScheduleID:  scheduleID,
		Name:        in.Name,
		Description: in.Description,
		Window:      in.Window,
		Progress:    decimal.Zero,
	}
	if err := ss.Store.SaveActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("saving activity: %w", err)
	}
	return activity, nil
}

// Activity returns one activity.
func (ss *ScheduleService) Activity(ctx context.Context, id ActivityID) (*Activity, error) {
	activity, err := ss.Store.Activity(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, notFound("activity", string(id))
	}
	return activity, nil
}

// Activities returns the schedule's activities.
func (ss *ScheduleService) Activities(ctx context.Context, scheduleID ScheduleID) ([]Activity, error) {
	if _, err := ss.Get(ctx, scheduleID); err != nil {
		return nil, err
	}
	return ss.Store.Activities(ctx, scheduleID)
}

// UpdateActivity edits an activity's fields.
func (ss *ScheduleService) UpdateActivity(ctx context.Context, id ActivityID, in ActivityInput) (*Activity, error) {
	activity, err := ss.Activity(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		activity.Name = in.Name
	}
	if in.Description != "" {
		activity.Description = in.Description
	}
	if !in.Window.Start.IsZero() || !in.Window.End.IsZero() {
		if !in.Window.Valid() {
			return nil, invalidf("dates", "start %s is after end %s", in.Window.Start, in.Window.End)
		}
		activity.Window = in.Window
	}
	if err := ss.Store.SaveActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("saving activity: %w", err)
	}
	return activity, nil
}

// RemoveActivity deletes an activity and its concept links.
func (ss *ScheduleService) RemoveActivity(ctx context.Context, id ActivityID) error {
	if _, err := ss.Activity(ctx, id); err != nil {
		return err
	}
	return ss.Store.DeleteActivity(ctx, id)
}

// UpdateProgress sets the activity's progress percentage, 0-100.
func (ss *ScheduleService) UpdateProgress(ctx context.Context, id ActivityID, progress decimal.Decimal) (*Activity, error) {
	if progress.IsNegative() || progress.GreaterThan(oneHundred) {
		return nil, invalidf("progress_percentage", "must be between 0 and 100, got %s", progress)
	}
	activity, err := ss.Activity(ctx, id)
	if err != nil {
		return nil, err
	}
	activity.Progress = progress
	if err := ss.Store.SaveActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("saving activity: %w", err)
	}
	return activity, nil
}

// ConceptLinkResult reports which concepts a link operation touched.
type ConceptLinkResult struct {
	Added    []ConceptID
	Existing []ConceptID
}

// AddConcepts links concepts to the activity, once per pair. Unknown
// concept ids are reported as not-found.
func (ss *ScheduleService) AddConcepts(ctx context.Context, activityID ActivityID, conceptIDs []ConceptID) (*ConceptLinkResult, error) {
	if _, err := ss.Activity(ctx, activityID); err != nil {
		return nil, err
	}

	result := &ConceptLinkResult{}
	for _, conceptID := range conceptIDs {
		concept, err := ss.Store.Concept(ctx, conceptID)
		if err != nil {
			return nil, err
		}
		if concept == nil {
			return nil, notFound("concept", string(conceptID))
		}
		created, err := ss.Store.LinkConcept(ctx, activityID, conceptID)
		if err != nil {
			return nil, fmt.Errorf("linking concept: %w", err)
		}
		if created {
			result.Added = append(result.Added, conceptID)
		} else {
			result.Existing = append(result.Existing, conceptID)
		}
	}
	return result, nil
}

// RemoveConcepts unlinks concepts from the activity, returning how many
// links were removed.
func (ss *ScheduleService) RemoveConcepts(ctx context.Context, activityID ActivityID, conceptIDs []ConceptID) (int, error) {
	if _, err := ss.Activity(ctx, activityID); err != nil {
		return 0, err
	}
	return ss.Store.UnlinkConcepts(ctx, activityID, conceptIDs)
}
