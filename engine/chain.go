/*
chain.go - Activity chain selection

PURPOSE:
  Picks an ordered, non-overlapping chain of activities from a schedule
  and persists it as the schedule's current chain, replacing any prior
  result.

  This is a documented heuristic, not Critical Path Method: no early/late
  starts, no float. Sort by start date, always take the first activity,
  then take each subsequent one iff it starts on or after the end of the
  chain's tail. The output is *a* valid non-overlapping chain, not
  necessarily the longest one.

EDGE CASES:
  A schedule with no activities cannot produce a chain; that is reported
  as a structured computation error, not a store failure.

SEE ALSO:
  - store.go: ChainStore.ReplaceChain
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// CHAIN SELECTOR
// =============================================================================

type ChainSelector struct {
	Store TxStore

	now func() time.Time
}

func NewChainSelector(store TxStore) *ChainSelector {
	return &ChainSelector{Store: store, now: time.Now}
}

// SelectChain runs the greedy non-overlap selection over the activities.
// Pure: no store access, no persistence. Fails with a computation error
// when no activities are given.
func SelectChain(activities []Activity) ([]ChainLink, error) {
	if len(activities) == 0 {
		return nil, &ComputationError{Reason: "schedule has no activities"}
	}

	sorted := make([]Activity, len(activities))
	copy(sorted, activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Window.Start.Before(sorted[j].Window.Start)
	})

	links := []ChainLink{{ActivityID: sorted[0].ID, SequenceOrder: 1}}
	tailEnd := sorted[0].Window.End
	for _, activity := range sorted[1:] {
		if activity.Window.Start.Before(tailEnd) {
			continue
		}
		links = append(links, ChainLink{ActivityID: activity.ID, SequenceOrder: len(links) + 1})
		tailEnd = activity.Window.End
	}
	return links, nil
}

// Recompute selects a fresh chain for the schedule and replaces the
// stored one.
func (cs *ChainSelector) Recompute(ctx context.Context, scheduleID ScheduleID) (*ActivityChain, error) {
	schedule, err := cs.Store.Schedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, notFound("schedule", string(scheduleID))
	}

	activities, err := cs.Store.Activities(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	links, err := SelectChain(activities)
	if err != nil {
		return nil, err
	}

	chain := ActivityChain{
		ScheduleID:   scheduleID,
		CalculatedAt: cs.now(),
		Notes:        "non-overlapping chain heuristic, not CPM",
		Links:        links,
	}
	if err := cs.Store.ReplaceChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("replacing chain: %w", err)
	}
	return &chain, nil
}

// Current returns the stored chain for the schedule, if any.
func (cs *ChainSelector) Current(ctx context.Context, scheduleID ScheduleID) (*ActivityChain, error) {
	chain, err := cs.Store.Chain(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, notFound("activity chain", string(scheduleID))
	}
	return chain, nil
}
