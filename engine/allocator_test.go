package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/progress-engine/engine"
)

// =============================================================================
// SCHEDULE PRORATION
// =============================================================================

func TestAllocator_ProratesActiveSchedule(t *testing.T) {
	// GIVEN: Concept q (quantity=100, price=10), activity Jan 1 - Jan 10
	// WHEN: Resolving the program for Jan 1 - Jan 5
	// THEN: fraction 5/10 -> programmed volume 50

	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "act1", window(time.January, 1, time.January, 10), "q")

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.January, 1, time.January, 5),
	})
	require.NoError(t, err)

	assert.True(t, program.Found)
	assert.Equal(t, "schedule:Schedule sch1", program.Source)
	assert.True(t, program.Volume("q").Equal(engine.MustDecimal("50")),
		"got %s", program.Volume("q"))
}

func TestAllocator_FullContainmentIsFullVolume(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "act1", window(time.March, 5, time.March, 12), "q")

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.March, 1, time.March, 31),
	})
	require.NoError(t, err)

	assert.True(t, program.Volume("q").Equal(engine.MustDecimal("100")),
		"got %s", program.Volume("q"))
}

func TestAllocator_NoOverlapContributesNothing(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "act1", window(time.January, 1, time.January, 10), "q")

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.June, 1, time.June, 30),
	})
	require.NoError(t, err)

	// Nothing programmed in the window, so no source yields data.
	assert.False(t, program.Found)
	assert.True(t, program.Volume("q").IsZero())
}

// =============================================================================
// RESOLUTION TIERS
// =============================================================================

func TestAllocator_ExplicitScheduleWins(t *testing.T) {
	// Two active schedules; the request names the second one.
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "act1", window(time.January, 1, time.January, 10), "q")
	addSchedule(t, s, "sch2", true)
	addActivity(t, s, "sch2", "act2", window(time.January, 1, time.January, 5), "q")

	scheduleID := engine.ScheduleID("sch2")
	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window:     window(time.January, 1, time.January, 5),
		ScheduleID: &scheduleID,
	})
	require.NoError(t, err)

	assert.Equal(t, "schedule:Schedule sch2", program.Source)
	assert.True(t, program.Volume("q").Equal(engine.MustDecimal("100")))
}

func TestAllocator_UnknownExplicitScheduleIsNotFound(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)

	scheduleID := engine.ScheduleID("missing")
	allocator := engine.NewAllocator(s)
	_, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window:     window(time.January, 1, time.January, 5),
		ScheduleID: &scheduleID,
	})

	assert.True(t, engine.IsNotFound(err))
}

func TestAllocator_FirstActiveScheduleWins(t *testing.T) {
	// Deterministic precedence: the earliest-created active schedule
	// supplies the program; later ones are not merged in.
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "act1", window(time.January, 1, time.January, 10), "q")
	addSchedule(t, s, "sch2", true)
	addActivity(t, s, "sch2", "act2", window(time.January, 1, time.January, 5), "q")

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.January, 1, time.January, 5),
	})
	require.NoError(t, err)

	assert.Equal(t, "schedule:Schedule sch1", program.Source)
	assert.True(t, program.Volume("q").Equal(engine.MustDecimal("50")))
}

func TestAllocator_InactiveSchedulesAreSkipped(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", false)
	addActivity(t, s, "sch1", "act1", window(time.January, 1, time.January, 10), "q")

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.January, 1, time.January, 5),
	})
	require.NoError(t, err)

	assert.False(t, program.Found)
	assert.Empty(t, program.Volumes)
}

func TestAllocator_FallsBackToPlannedEstimation(t *testing.T) {
	// GIVEN: No active schedule, but a planned estimation intersecting
	// the window with a line for concept q
	// THEN: the line's volume is used without proration

	s := newCatalogStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEstimation(ctx, &engine.Estimation{
		ID:             "est1",
		Name:           "January plan",
		Period:         window(time.January, 1, time.January, 31),
		ConstructionID: "c1",
		Status:         engine.EstimationDraft,
		Planned:        true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}))
	require.NoError(t, s.SaveDetail(ctx, &engine.EstimationDetail{
		ID:           "det1",
		EstimationID: "est1",
		ConceptID:    "q",
		Volume:       engine.MustDecimal("42"),
		Amount:       engine.MustDecimal("420"),
	}))

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(ctx, engine.ProgramRequest{
		Window: window(time.January, 1, time.January, 5),
	})
	require.NoError(t, err)

	assert.True(t, program.Found)
	assert.Equal(t, "planned_estimation:January plan", program.Source)
	assert.True(t, program.Volume("q").Equal(engine.MustDecimal("42")))
}

func TestAllocator_NothingFound(t *testing.T) {
	s := newCatalogStore(t)

	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.January, 1, time.January, 5),
	})
	require.NoError(t, err)

	assert.False(t, program.Found)
	assert.Empty(t, program.Volumes)
	assert.True(t, program.Volume("q").IsZero())
}

func TestAllocator_FilterScopesConcepts(t *testing.T) {
	// Concepts outside the filter never appear in the program.
	s := newCatalogStore(t)
	addConcept(t, s, "other", "50", "20")
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "act1", window(time.January, 1, time.January, 10), "q", "other")

	conceptID := engine.ConceptID("q")
	allocator := engine.NewAllocator(s)
	program, err := allocator.Resolve(context.Background(), engine.ProgramRequest{
		Window: window(time.January, 1, time.January, 10),
		Filter: engine.ConceptFilter{ConceptID: &conceptID},
	})
	require.NoError(t, err)

	assert.True(t, program.Volume("q").Equal(engine.MustDecimal("100")))
	_, ok := program.Volumes["other"]
	assert.False(t, ok)
}
