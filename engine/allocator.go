/*
allocator.go - Programmed-volume resolution

PURPOSE:
  Converts schedule activities into a per-concept programmed volume for an
  arbitrary date window. Resolution walks an explicit, ordered list of
  sources and stops at the first one that yields data; sources are never
  merged:

    1. Explicit schedule (when a schedule id is supplied)
    2. First active schedule reachable from the filtered concepts
       (only when no explicit schedule was requested)
    3. First planned estimation intersecting the window (volumes taken at
       full value, no proration)

  An empty program is a distinct, explicit result (Found=false), not a
  default conjured from a swallowed failure: store errors and missing
  schedule ids propagate to the caller.

PRORATION:
  For an activity intersecting the window,
    fraction = overlap_days / total_days
  with overlap_days and total_days both inclusive counts, clamped to 1.0
  when the overlap covers the activity and treated as 0 when the activity
  has a non-positive duration. Each associated concept accumulates
  quantity x fraction.

SEE ALSO:
  - period.go: OverlapFraction
  - reconcile.go: the main consumer
*/
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROGRAM - Resolution result
// =============================================================================

// ProgramRequest describes one resolution: the window, the concept scope,
// and optionally an explicit schedule.
type ProgramRequest struct {
	Window     Period
	Filter     ConceptFilter
	ScheduleID *ScheduleID
}

// Program maps concepts to programmed volume for the requested window.
// Absence from Volumes is equivalent to zero. Source carries provenance
// ("schedule:<name>" or "planned_estimation:<name>") and is empty when no
// source yielded data.
type Program struct {
	Volumes map[ConceptID]decimal.Decimal
	Found   bool
	Source  string
}

// Volume returns the programmed volume for a concept, zero when absent.
func (p Program) Volume(id ConceptID) decimal.Decimal {
	if v, ok := p.Volumes[id]; ok {
		return v
	}
	return decimal.Zero
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocator resolves programmed volumes through the ordered source chain.
type Allocator struct {
	Catalog     CatalogStore
	Schedules   ScheduleStore
	Estimations EstimationStore
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{Catalog: store, Schedules: store, Estimations: store}
}

// Resolve runs the source chain for the request. The returned Program has
// Found=false only when every source yielded nothing; any store failure or
// missing explicit schedule id is an error, never an implicit empty result.
func (al *Allocator) Resolve(ctx context.Context, req ProgramRequest) (Program, error) {
	if !req.Window.Valid() {
		return Program{}, invalidf("period", "start %s is after end %s", req.Window.Start, req.Window.End)
	}

	concepts, err := al.Catalog.Concepts(ctx, req.Filter)
	if err != nil {
		return Program{}, fmt.Errorf("loading concepts: %w", err)
	}
	scope := conceptScope(concepts)

	type resolver func(context.Context, ProgramRequest, map[ConceptID]Concept) (*Program, error)

	chain := []resolver{al.fromExplicitSchedule, al.fromActiveSchedules, al.fromPlannedEstimations}
	for _, resolve := range chain {
		program, err := resolve(ctx, req, scope)
		if err != nil {
			return Program{}, err
		}
		if program != nil {
			return *program, nil
		}
	}

	return Program{Volumes: map[ConceptID]decimal.Decimal{}, Found: false}, nil
}

func conceptScope(concepts []Concept) map[ConceptID]Concept {
	scope := make(map[ConceptID]Concept, len(concepts))
	for _, c := range concepts {
		scope[c.ID] = c
	}
	return scope
}

// fromExplicitSchedule prorates the supplied schedule's overlapping
// activities. Returns nil (continue the chain) when no schedule id was
// given or the schedule yields nothing.
func (al *Allocator) fromExplicitSchedule(ctx context.Context, req ProgramRequest, scope map[ConceptID]Concept) (*Program, error) {
	if req.ScheduleID == nil {
		return nil, nil
	}

	schedule, err := al.Schedules.Schedule(ctx, *req.ScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, notFound("schedule", string(*req.ScheduleID))
	}

	volumes, err := al.prorateSchedule(ctx, schedule.ID, req.Window, scope)
	if err != nil {
		return nil, err
	}
	if len(volumes) == 0 {
		return nil, nil
	}
	return &Program{Volumes: volumes, Found: true, Source: "schedule:" + schedule.Name}, nil
}

// fromActiveSchedules walks active schedules reachable from the filtered
// concepts and takes the first whose overlapping activities yield data.
// Deliberate precedence, not merging. Skipped entirely when an explicit
// schedule was requested.
func (al *Allocator) fromActiveSchedules(ctx context.Context, req ProgramRequest, scope map[ConceptID]Concept) (*Program, error) {
	if req.ScheduleID != nil {
		return nil, nil
	}

	constructions, err := al.Catalog.ConstructionIDs(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("resolving constructions: %w", err)
	}
	schedules, err := al.Schedules.ActiveSchedules(ctx, constructions)
	if err != nil {
		return nil, fmt.Errorf("loading active schedules: %w", err)
	}

	for _, schedule := range schedules {
		volumes, err := al.prorateSchedule(ctx, schedule.ID, req.Window, scope)
		if err != nil {
			return nil, err
		}
		if len(volumes) > 0 {
			return &Program{Volumes: volumes, Found: true, Source: "schedule:" + schedule.Name}, nil
		}
	}
	return nil, nil
}

// fromPlannedEstimations takes the first planned estimation intersecting
// the window whose filtered details are non-empty, summing detail volumes
// at full value regardless of the overlap fraction.
func (al *Allocator) fromPlannedEstimations(ctx context.Context, req ProgramRequest, scope map[ConceptID]Concept) (*Program, error) {
	estimations, err := al.Estimations.PlannedEstimations(ctx, req.Window)
	if err != nil {
		return nil, fmt.Errorf("loading planned estimations: %w", err)
	}

	for _, est := range estimations {
		details, err := al.Estimations.Details(ctx, est.ID)
		if err != nil {
			return nil, err
		}

		volumes := make(map[ConceptID]decimal.Decimal)
		for _, d := range details {
			if _, ok := scope[d.ConceptID]; !ok {
				continue
			}
			volumes[d.ConceptID] = volumes[d.ConceptID].Add(d.Volume)
		}
		if len(volumes) > 0 {
			return &Program{Volumes: volumes, Found: true, Source: "planned_estimation:" + est.Name}, nil
		}
	}
	return nil, nil
}

// prorateSchedule accumulates quantity x fraction for every concept of
// every activity intersecting the window. Activities with zero overlap or
// non-positive duration contribute nothing.
func (al *Allocator) prorateSchedule(ctx context.Context, scheduleID ScheduleID, window Period, scope map[ConceptID]Concept) (map[ConceptID]decimal.Decimal, error) {
	activities, err := al.Schedules.ActivitiesInWindow(ctx, scheduleID, window)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	volumes := make(map[ConceptID]decimal.Decimal)
	for _, activity := range activities {
		fraction := activity.Window.OverlapFraction(window)
		if !fraction.IsPositive() {
			continue
		}

		conceptIDs, err := al.Schedules.ActivityConceptIDs(ctx, activity.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range conceptIDs {
			concept, ok := scope[id]
			if !ok {
				continue
			}
			volumes[id] = volumes[id].Add(concept.Quantity.Mul(fraction))
		}
	}
	return volumes, nil
}
