package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/progress-engine/engine"
)

func newEstimation(t *testing.T, es *engine.EstimationService, planned bool) *engine.Estimation {
	t.Helper()
	estimation, err := es.Create(context.Background(), "", engine.CreateEstimationInput{
		Name:           "Test estimation",
		Period:         window(time.February, 1, time.February, 28),
		ConstructionID: "c1",
		Planned:        planned,
	})
	require.NoError(t, err)
	return estimation
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestEstimation_CreateStartsDraftWithZeroTotal(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)

	estimation := newEstimation(t, es, false)

	assert.Equal(t, engine.EstimationDraft, estimation.Status)
	assert.True(t, estimation.TotalAmount.IsZero())
	assert.False(t, estimation.BasedOnSchedule)
}

func TestEstimation_CreateRejectsInvalidPeriod(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)

	_, err := es.Create(context.Background(), "", engine.CreateEstimationInput{
		Name:           "Backwards",
		Period:         engine.Period{Start: day(time.March, 10), End: day(time.March, 1)},
		ConstructionID: "c1",
	})
	assert.True(t, engine.IsValidation(err))
}

func TestEstimation_DeleteOnlyDraft(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, false)
	_, err := es.UpdateStatus(ctx, "", estimation.ID, engine.EstimationApproved)
	require.NoError(t, err)

	err = es.Delete(ctx, "", estimation.ID)
	assert.True(t, engine.IsConflict(err))
}

func TestEstimation_UpdateStatusRejectsUnknown(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)

	estimation := newEstimation(t, es, false)
	_, err := es.UpdateStatus(context.Background(), "", estimation.ID, "ARCHIVED")
	assert.True(t, engine.IsValidation(err))
}

// =============================================================================
// DETAIL LINES AND TOTAL INVARIANT
// =============================================================================

func TestEstimation_TotalTracksDetailLifecycle(t *testing.T) {
	// GIVEN: An estimation with total 0
	// WHEN: Adding a 300 line, then removing it
	// THEN: total goes 0 -> 300 -> 0

	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, false)

	detail, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("30"),
		Amount:    engine.MustDecimal("300"),
	})
	require.NoError(t, err)

	afterAdd, err := es.Get(ctx, "", estimation.ID)
	require.NoError(t, err)
	assert.True(t, afterAdd.TotalAmount.Equal(engine.MustDecimal("300")),
		"got %s", afterAdd.TotalAmount)

	require.NoError(t, es.RemoveDetail(ctx, "", detail.ID))

	afterRemove, err := es.Get(ctx, "", estimation.ID)
	require.NoError(t, err)
	assert.True(t, afterRemove.TotalAmount.IsZero(), "got %s", afterRemove.TotalAmount)
}

func TestEstimation_TotalFollowsDetailUpdate(t *testing.T) {
	s := newCatalogStore(t)
	addConcept(t, s, "r", "50", "20")
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, false)

	_, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("10"),
		Amount:    engine.MustDecimal("100"),
	})
	require.NoError(t, err)
	detail, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "r",
		Volume:    engine.MustDecimal("5"),
		Amount:    engine.MustDecimal("100"),
	})
	require.NoError(t, err)

	amount := engine.MustDecimal("250")
	_, err = es.UpdateDetail(ctx, "", detail.ID, engine.UpdateDetailInput{Amount: &amount})
	require.NoError(t, err)

	estimation, err = es.Get(ctx, "", estimation.ID)
	require.NoError(t, err)
	assert.True(t, estimation.TotalAmount.Equal(engine.MustDecimal("350")),
		"got %s", estimation.TotalAmount)
}

func TestEstimation_DuplicateConceptLineRejected(t *testing.T) {
	// One line per concept and estimation.
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, false)

	_, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("10"),
		Amount:    engine.MustDecimal("100"),
	})
	require.NoError(t, err)

	_, err = es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("5"),
		Amount:    engine.MustDecimal("50"),
	})
	assert.True(t, engine.IsConflict(err))

	// The failed add must not disturb the total.
	estimation, err = es.Get(ctx, "", estimation.ID)
	require.NoError(t, err)
	assert.True(t, estimation.TotalAmount.Equal(engine.MustDecimal("100")))
}

func TestEstimation_AddDetailRejectsNegativeValues(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)

	estimation := newEstimation(t, es, false)

	_, err := es.AddDetail(context.Background(), "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("-1"),
		Amount:    engine.MustDecimal("100"),
	})
	assert.True(t, engine.IsValidation(err))
}

// =============================================================================
// PLANNED VS REAL COMPARISON
// =============================================================================

func TestEstimation_CompareWithReal(t *testing.T) {
	// GIVEN: A planned line of 100 and 60 approved within the period
	// THEN: variance -40, -40%, PARTIAL

	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, true)
	_, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("100"),
		Amount:    engine.MustDecimal("1000"),
	})
	require.NoError(t, err)

	approvedPhysical(t, ledger, "q", "60", day(time.February, 15))
	// Outside the estimation period: must not count.
	approvedPhysical(t, ledger, "q", "500", day(time.April, 1))

	rows, err := es.CompareWithReal(ctx, "", estimation.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.True(t, row.PlannedVolume.Equal(engine.MustDecimal("100")))
	assert.True(t, row.RealVolume.Equal(engine.MustDecimal("60")), "got %s", row.RealVolume)
	assert.True(t, row.Variance.Equal(engine.MustDecimal("-40")))
	assert.True(t, row.VariancePercentage.Equal(engine.MustDecimal("-40")))
	assert.Equal(t, engine.ComparePartial, row.Status)
}

func TestEstimation_CompareWithRealStatuses(t *testing.T) {
	s := newCatalogStore(t)
	addConcept(t, s, "done", "100", "10")
	addConcept(t, s, "idle", "100", "10")
	es := engine.NewEstimationService(s)
	ledger := engine.NewLedger(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, true)
	for _, conceptID := range []engine.ConceptID{"done", "idle"} {
		_, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
			ConceptID: conceptID,
			Volume:    engine.MustDecimal("50"),
			Amount:    engine.MustDecimal("500"),
		})
		require.NoError(t, err)
	}

	approvedPhysical(t, ledger, "done", "50", day(time.February, 10))

	rows, err := es.CompareWithReal(ctx, "", estimation.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byConcept := map[engine.ConceptID]engine.ComparisonRow{}
	for _, row := range rows {
		byConcept[row.ConceptID] = row
	}
	assert.Equal(t, engine.CompareCompleted, byConcept["done"].Status)
	assert.Equal(t, engine.CompareNoProgress, byConcept["idle"].Status)
}

func TestEstimation_CompareWithRealRequiresPlanned(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)

	estimation := newEstimation(t, es, false)
	_, err := es.CompareWithReal(context.Background(), "", estimation.ID)
	assert.True(t, engine.IsValidation(err))
}

// =============================================================================
// BULK COMMITMENT STATUS
// =============================================================================

func TestEstimation_UpdateCommitmentsBulk(t *testing.T) {
	s := newCatalogStore(t)
	addConcept(t, s, "r", "50", "20")
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, false)
	d1, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q", Volume: engine.MustDecimal("10"), Amount: engine.MustDecimal("100"),
	})
	require.NoError(t, err)
	d2, err := es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "r", Volume: engine.MustDecimal("5"), Amount: engine.MustDecimal("100"),
	})
	require.NoError(t, err)

	updated, err := es.UpdateCommitments(ctx, "", estimation.ID,
		[]engine.DetailID{d1.ID, d2.ID}, engine.CommitmentCommitted)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	details, err := es.Details(ctx, "", estimation.ID)
	require.NoError(t, err)
	for _, detail := range details {
		assert.Equal(t, engine.CommitmentCommitted, detail.CommitmentStatus)
	}
}

func TestEstimation_UpdateCommitmentsRejectsUnknownStatus(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)

	estimation := newEstimation(t, es, false)
	_, err := es.UpdateCommitments(context.Background(), "", estimation.ID,
		[]engine.DetailID{"whatever"}, "SHIPPED")
	assert.True(t, engine.IsValidation(err))
}

// =============================================================================
// ACTOR SCOPING
// =============================================================================

func TestEstimation_ScopedActorDenied(t *testing.T) {
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	estimation := newEstimation(t, es, false)

	_, err := es.Get(ctx, "outsider", estimation.ID)
	assert.True(t, engine.IsNotFound(err))

	_, err = es.Create(ctx, "outsider", engine.CreateEstimationInput{
		Name:           "Denied",
		Period:         window(time.March, 1, time.March, 31),
		ConstructionID: "c1",
	})
	assert.True(t, engine.IsPermission(err))
}

func TestEstimation_ScopedListFiltersForeignRecords(t *testing.T) {
	// GIVEN: an estimation on a construction the actor is not assigned to
	s := newCatalogStore(t)
	es := engine.NewEstimationService(s)
	ctx := context.Background()

	newEstimation(t, es, false)

	// THEN: an actor with no assignments sees nothing
	foreign, err := es.List(ctx, "outsider", engine.EstimationFilter{})
	require.NoError(t, err)
	assert.Empty(t, foreign)

	// AND: an assigned actor sees the record
	require.NoError(t, s.SaveAssignment(ctx, engine.Assignment{
		ID:             "a1",
		Actor:          "resident",
		ConstructionID: "c1",
		Role:           "resident",
		Active:         true,
	}))
	visible, err := es.List(ctx, "resident", engine.EstimationFilter{})
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}
