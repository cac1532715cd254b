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
// PURE SELECTION
// =============================================================================

func TestSelectChain_SkipsOverlaps(t *testing.T) {
	// GIVEN: three activities where the second overlaps the first
	activities := []engine.Activity{
		{ID: "a1", Window: window(time.January, 1, time.January, 5)},
		{ID: "a2", Window: window(time.January, 3, time.January, 8)},
		{ID: "a3", Window: window(time.January, 10, time.January, 12)},
	}

	links, err := engine.SelectChain(activities)
	require.NoError(t, err)

	// THEN: the overlapping activity is skipped, order is preserved
	require.Len(t, links, 2)
	assert.Equal(t, engine.ActivityID("a1"), links[0].ActivityID)
	assert.Equal(t, engine.ActivityID("a3"), links[1].ActivityID)
	assert.Equal(t, 1, links[0].SequenceOrder)
	assert.Equal(t, 2, links[1].SequenceOrder)
}

func TestSelectChain_SortsByStartDate(t *testing.T) {
	// Input order must not matter.
	activities := []engine.Activity{
		{ID: "late", Window: window(time.March, 1, time.March, 10)},
		{ID: "early", Window: window(time.January, 1, time.January, 10)},
	}

	links, err := engine.SelectChain(activities)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, engine.ActivityID("early"), links[0].ActivityID)
	assert.Equal(t, engine.ActivityID("late"), links[1].ActivityID)
}

func TestSelectChain_EmptyScheduleIsComputationError(t *testing.T) {
	_, err := engine.SelectChain(nil)
	assert.True(t, engine.IsComputation(err))
}

// =============================================================================
// RECOMPUTE AND CURRENT
// =============================================================================

func TestChainSelector_RecomputePersists(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "a1", window(time.January, 1, time.January, 5), "q")
	addActivity(t, s, "sch1", "a2", window(time.January, 3, time.January, 8), "q")
	addActivity(t, s, "sch1", "a3", window(time.January, 10, time.January, 12), "q")

	selector := engine.NewChainSelector(s)
	ctx := context.Background()

	chain, err := selector.Recompute(ctx, "sch1")
	require.NoError(t, err)
	assert.Len(t, chain.Links, 2)
	assert.Equal(t, "non-overlapping chain heuristic, not CPM", chain.Notes)

	// The stored chain matches the recompute result.
	stored, err := selector.Current(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, chain.Links, stored.Links)
}

func TestChainSelector_RecomputeReplacesPrior(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "a1", window(time.January, 1, time.January, 5), "q")

	selector := engine.NewChainSelector(s)
	ctx := context.Background()

	_, err := selector.Recompute(ctx, "sch1")
	require.NoError(t, err)

	// WHEN: a later activity appears and the chain is recomputed
	addActivity(t, s, "sch1", "a2", window(time.January, 10, time.January, 12), "q")
	chain, err := selector.Recompute(ctx, "sch1")
	require.NoError(t, err)

	// THEN: the prior single-link chain was replaced, not appended to
	assert.Len(t, chain.Links, 2)
	stored, err := selector.Current(ctx, "sch1")
	require.NoError(t, err)
	assert.Len(t, stored.Links, 2)
}

func TestChainSelector_CurrentWithoutChain(t *testing.T) {
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)

	_, err := engine.NewChainSelector(s).Current(context.Background(), "sch1")
	assert.True(t, engine.IsNotFound(err))
}

func TestChainSelector_RecomputeUnknownSchedule(t *testing.T) {
	s := newCatalogStore(t)

	_, err := engine.NewChainSelector(s).Recompute(context.Background(), "ghost")
	assert.True(t, engine.IsNotFound(err))
}
