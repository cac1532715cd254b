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
// CREATION AND EDITING
// =============================================================================

func TestLedger_CreateStartsPending(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)

	physical, err := ledger.Create(context.Background(), "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
		Date:      day(time.February, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, engine.PhysicalPending, physical.Status)
	assert.NotEmpty(t, physical.ID)

	history, err := ledger.History(context.Background(), "", physical.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "creation writes no history rows")
}

func TestLedger_CreateRejectsNonPositiveVolume(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)

	_, err := ledger.Create(context.Background(), "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("0"),
	})
	assert.True(t, engine.IsValidation(err))

	_, err = ledger.Create(context.Background(), "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("-5"),
	})
	assert.True(t, engine.IsValidation(err))
}

func TestLedger_CreateRejectsUnknownConcept(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)

	_, err := ledger.Create(context.Background(), "", engine.CreatePhysicalInput{
		ConceptID: "missing",
		Volume:    engine.MustDecimal("10"),
	})
	assert.True(t, engine.IsNotFound(err))
}

func TestLedger_OnlyPendingRecordsCanBeEdited(t *testing.T) {
	// GIVEN: An APPROVED record
	// WHEN: Editing or deleting it
	// THEN: Conflict; its volume already feeds executed totals

	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	physical := approvedPhysical(t, ledger, "q", "20", day(time.February, 10))

	volume := engine.MustDecimal("30")
	_, err := ledger.Update(context.Background(), "", physical.ID, engine.UpdatePhysicalInput{Volume: &volume})
	assert.True(t, engine.IsConflict(err))

	err = ledger.Delete(context.Background(), "", physical.ID)
	assert.True(t, engine.IsConflict(err))
}

func TestLedger_UpdatePendingRecord(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
		Date:      day(time.February, 10),
	})
	require.NoError(t, err)

	volume := engine.MustDecimal("35")
	comments := "remeasured"
	updated, err := ledger.Update(ctx, "", physical.ID, engine.UpdatePhysicalInput{
		Volume:   &volume,
		Comments: &comments,
	})
	require.NoError(t, err)

	assert.True(t, updated.Volume.Equal(volume))
	assert.Equal(t, "remeasured", updated.Comments)
}

// =============================================================================
// STATUS TRANSITIONS AND AUDIT TRAIL
// =============================================================================

func TestLedger_TransitionWritesExactlyOneHistoryRow(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
		Date:      day(time.February, 10),
	})
	require.NoError(t, err)

	approved, err := ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalApproved)
	require.NoError(t, err)
	assert.Equal(t, engine.PhysicalApproved, approved.Status)

	history, err := ledger.History(ctx, "", physical.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, engine.PhysicalPending, history[0].Previous)
	assert.Equal(t, engine.PhysicalApproved, history[0].New)
}

func TestLedger_SameStatusWriteIsNoOp(t *testing.T) {
	// Repeated writes of the current status produce zero history rows.
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical := approvedPhysical(t, ledger, "q", "20", day(time.February, 10))

	again, err := ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalApproved)
	require.NoError(t, err)
	assert.Equal(t, engine.PhysicalApproved, again.Status)

	history, err := ledger.History(ctx, "", physical.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_InvalidStatusRejected(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
	})
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, "", physical.ID, "SHIPPED")
	assert.True(t, engine.IsValidation(err))
}

func TestLedger_OpenPolicyAllowsRejectedToApproved(t *testing.T) {
	// The transition table is explicitly any-to-any among valid statuses.
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
	})
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalRejected)
	require.NoError(t, err)
	_, err = ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalApproved)
	require.NoError(t, err)

	history, err := ledger.History(ctx, "", physical.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLedger_RestrictivePolicyBlocksTransition(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ledger.Policy = engine.TransitionPolicy{
		engine.PhysicalPending: {engine.PhysicalApproved, engine.PhysicalRejected},
	}
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
	})
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalRejected)
	require.NoError(t, err)

	// REJECTED has no outgoing transitions under this policy.
	_, err = ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalApproved)
	assert.True(t, engine.IsConflict(err))
}

// =============================================================================
// APPROVAL ANALYTICS
// =============================================================================

func TestLedger_ApprovalLatency(t *testing.T) {
	// GIVEN: A record reported 3 days ago, approved today
	// THEN: average latency over that single record is 3 days

	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)

	approvedPhysical(t, ledger, "q", "20", engine.Today().AddDays(-3))

	stats, err := ledger.ApprovalLatency(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Approved)
	assert.True(t, stats.AvgDays.Equal(engine.MustDecimal("3")), "got %s", stats.AvgDays)
}

func TestLedger_ApprovedVolumeSumsPerConcept(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	approvedPhysical(t, ledger, "q", "20", day(time.February, 5))
	approvedPhysical(t, ledger, "q", "15", day(time.February, 20))

	// A PENDING record must not count.
	_, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("99"),
		Date:      day(time.February, 25),
	})
	require.NoError(t, err)

	period := window(time.February, 1, time.February, 28)
	volumes, err := ledger.ApprovedVolume(ctx, []engine.ConceptID{"q"}, &period)
	require.NoError(t, err)

	assert.True(t, volumes["q"].Equal(engine.MustDecimal("35")), "got %s", volumes["q"])
}

// =============================================================================
// ACTOR SCOPING
// =============================================================================

func TestLedger_ScopedActorCannotSeeForeignRecords(t *testing.T) {
	// GIVEN: A record in a construction the actor is not assigned to
	// THEN: reads behave as not-found, writes as permission denied

	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
	})
	require.NoError(t, err)

	_, err = ledger.Get(ctx, "outsider", physical.ID)
	assert.True(t, engine.IsNotFound(err))

	_, err = ledger.Create(ctx, "outsider", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("5"),
	})
	assert.True(t, engine.IsPermission(err))
}

func TestLedger_AssignedActorHasAccess(t *testing.T) {
	s := newCatalogStore(t)
	require.NoError(t, s.SaveAssignment(context.Background(), engine.Assignment{
		ID:             "a1",
		Actor:          "resident",
		ConstructionID: "c1",
		Role:           "resident",
		Active:         true,
	}))
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	physical, err := ledger.Create(ctx, "resident", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
	})
	require.NoError(t, err)

	got, err := ledger.Get(ctx, "resident", physical.ID)
	require.NoError(t, err)
	assert.Equal(t, physical.ID, got.ID)

	records, err := ledger.List(ctx, "resident", engine.PhysicalFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLedger_ScopedListFiltersForeignRecords(t *testing.T) {
	s := newCatalogStore(t)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	_, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
	})
	require.NoError(t, err)

	records, err := ledger.List(ctx, "outsider", engine.PhysicalFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}
