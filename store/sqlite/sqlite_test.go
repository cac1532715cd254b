package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/progress-engine/engine"
	"github.com/warp/progress-engine/store/sqlite"
)

func day(month time.Month, d int) engine.Date {
	return engine.NewDate(2025, month, d)
}

func window(startMonth time.Month, startDay int, endMonth time.Month, endDay int) engine.Period {
	return engine.Period{Start: day(startMonth, startDay), End: day(endMonth, endDay)}
}

// newStore opens an in-memory database with the full schema applied and
// seeds the catalog chain down to concept "q".
func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.SaveConstruction(ctx, &engine.Construction{
		ID:        "c1",
		Name:      "Test project",
		StartDate: day(time.January, 1),
		EndDate:   day(time.December, 31),
		Budget:    decimal.NewFromInt(100000),
		Status:    "ACTIVE",
	}))
	require.NoError(t, s.SaveCatalog(ctx, &engine.Catalog{
		ID:             "cat1",
		ConstructionID: "c1",
		Name:           "Main catalog",
		Active:         true,
	}))
	require.NoError(t, s.SaveWorkItem(ctx, &engine.WorkItem{
		ID:        "wi1",
		CatalogID: "cat1",
		Name:      "Earthworks",
		Active:    true,
	}))
	require.NoError(t, s.SaveConcept(ctx, &engine.Concept{
		ID:          "q",
		CatalogID:   "cat1",
		WorkItemID:  "wi1",
		Description: "Concrete",
		Unit:        "m3",
		Quantity:    engine.MustDecimal("100"),
		UnitPrice:   engine.MustDecimal("10"),
		Active:      true,
	}))
	return s
}

func savePhysical(t *testing.T, s engine.Store, id engine.PhysicalID, volume string, date engine.Date, status engine.PhysicalStatus) {
	t.Helper()
	require.NoError(t, s.SavePhysical(context.Background(), &engine.Physical{
		ID:        id,
		ConceptID: "q",
		Volume:    engine.MustDecimal(volume),
		Date:      date,
		Status:    status,
	}))
}

// =============================================================================
// ROUNDTRIPS
// =============================================================================

func TestStore_ConceptRoundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	concept, err := s.Concept(ctx, "q")
	require.NoError(t, err)
	require.NotNil(t, concept)
	assert.Equal(t, "Concrete", concept.Description)
	assert.True(t, concept.Quantity.Equal(engine.MustDecimal("100")))
	assert.True(t, concept.UnitPrice.Equal(engine.MustDecimal("10")))

	missing, err := s.Concept(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	owner, err := s.ConstructionForConcept(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, engine.ConstructionID("c1"), owner)

	_, err = s.ConstructionForConcept(ctx, "ghost")
	assert.True(t, engine.IsNotFound(err))
}

func TestStore_ConceptFilterScoping(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	catalogID := engine.CatalogID("cat1")
	scoped, err := s.Concepts(ctx, engine.ConceptFilter{CatalogID: &catalogID})
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	other := engine.CatalogID("other")
	empty, err := s.Concepts(ctx, engine.ConceptFilter{CatalogID: &other})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ScheduleAndActivities(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.SaveSchedule(ctx, &engine.Schedule{
		ID:             "sch1",
		ConstructionID: "c1",
		Name:           "Phase one",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
	require.NoError(t, s.SaveActivity(ctx, &engine.Activity{
		ID:         "a1",
		ScheduleID: "sch1",
		Name:       "Foundations",
		Window:     window(time.January, 1, time.January, 31),
		Progress:   decimal.Zero,
	}))
	require.NoError(t, s.SaveActivity(ctx, &engine.Activity{
		ID:         "a2",
		ScheduleID: "sch1",
		Name:       "Columns",
		Window:     window(time.March, 1, time.March, 31),
		Progress:   decimal.Zero,
	}))

	inWindow, err := s.ActivitiesInWindow(ctx, "sch1", window(time.January, 15, time.February, 15))
	require.NoError(t, err)
	require.Len(t, inWindow, 1)
	assert.Equal(t, engine.ActivityID("a1"), inWindow[0].ID)

	active, err := s.ActiveSchedules(ctx, []engine.ConstructionID{"c1"})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Upsert: saving again with a new name overwrites, not duplicates.
	require.NoError(t, s.SaveSchedule(ctx, &engine.Schedule{
		ID:             "sch1",
		ConstructionID: "c1",
		Name:           "Phase one revised",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
	all, err := s.Schedules(ctx, engine.ScheduleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Phase one revised", all[0].Name)
}

func TestStore_ConceptLinks(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.SaveSchedule(ctx, &engine.Schedule{
		ID: "sch1", ConstructionID: "c1", Name: "Phase one", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SaveActivity(ctx, &engine.Activity{
		ID: "a1", ScheduleID: "sch1", Name: "Foundations",
		Window: window(time.January, 1, time.January, 31), Progress: decimal.Zero,
	}))

	created, err := s.LinkConcept(ctx, "a1", "q")
	require.NoError(t, err)
	assert.True(t, created)

	// Second link of the same pair is reported as already present.
	created, err = s.LinkConcept(ctx, "a1", "q")
	require.NoError(t, err)
	assert.False(t, created)

	linked, err := s.ScheduleConceptIDs(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, []engine.ConceptID{"q"}, linked)

	removed, err := s.UnlinkConcepts(ctx, "a1", []engine.ConceptID{"q", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

// =============================================================================
// PHYSICALS AND HISTORY
// =============================================================================

func TestStore_ApprovedVolumesWindowFiltering(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	savePhysical(t, s, "p1", "20", day(time.January, 5), engine.PhysicalApproved)
	savePhysical(t, s, "p2", "15", day(time.January, 20), engine.PhysicalApproved)
	savePhysical(t, s, "p3", "99", day(time.June, 1), engine.PhysicalApproved)
	savePhysical(t, s, "p4", "40", day(time.January, 10), engine.PhysicalPending)

	january := window(time.January, 1, time.January, 31)
	volumes, err := s.ApprovedVolumes(ctx, []engine.ConceptID{"q"}, &january)
	require.NoError(t, err)
	assert.True(t, volumes["q"].Equal(engine.MustDecimal("35")), "got %s", volumes["q"])

	allTime, err := s.ApprovedVolumes(ctx, []engine.ConceptID{"q"}, nil)
	require.NoError(t, err)
	assert.True(t, allTime["q"].Equal(engine.MustDecimal("134")), "got %s", allTime["q"])

	records, err := s.ApprovedPhysicals(ctx, []engine.ConceptID{"q"}, january)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_StatusHistoryAndApprovals(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	savePhysical(t, s, "p1", "20", day(time.January, 5), engine.PhysicalApproved)
	actor := engine.ActorID("resident")
	changedAt := time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendStatusChange(ctx, engine.StatusChange{
		ID:         uuid.NewString(),
		PhysicalID: "p1",
		Previous:   engine.PhysicalPending,
		New:        engine.PhysicalApproved,
		ChangedAt:  changedAt,
		ChangedBy:  &actor,
	}))

	history, err := s.StatusHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, engine.PhysicalPending, history[0].Previous)
	require.NotNil(t, history[0].ChangedBy)
	assert.Equal(t, actor, *history[0].ChangedBy)

	january := window(time.January, 1, time.January, 31)
	approvals, err := s.Approvals(ctx, &january)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, day(time.January, 5), approvals[0].SubmittedOn)
	assert.Equal(t, day(time.January, 8), approvals[0].ApprovedOn)
	assert.Equal(t, 3, approvals[0].DaysToApprove())
}

// =============================================================================
// ESTIMATIONS
// =============================================================================

func saveEstimation(t *testing.T, s engine.Store, id engine.EstimationID, status engine.EstimationStatus) {
	t.Helper()
	now := time.Now()
	require.NoError(t, s.SaveEstimation(context.Background(), &engine.Estimation{
		ID:             id,
		Name:           "Estimation " + string(id),
		Period:         window(time.February, 1, time.February, 28),
		TotalAmount:    decimal.Zero,
		Status:         status,
		ConstructionID: "c1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

func TestStore_DetailUniquePerConcept(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	saveEstimation(t, s, "e1", engine.EstimationDraft)

	require.NoError(t, s.SaveDetail(ctx, &engine.EstimationDetail{
		ID:           "d1",
		EstimationID: "e1",
		ConceptID:    "q",
		Volume:       engine.MustDecimal("10"),
		Amount:       engine.MustDecimal("100"),
	}))

	// A second row for the same (estimation, concept) pair violates the
	// unique constraint; updating the first row by id does not.
	err := s.SaveDetail(ctx, &engine.EstimationDetail{
		ID:           "d2",
		EstimationID: "e1",
		ConceptID:    "q",
		Volume:       engine.MustDecimal("5"),
		Amount:       engine.MustDecimal("50"),
	})
	assert.Error(t, err)

	require.NoError(t, s.SaveDetail(ctx, &engine.EstimationDetail{
		ID:           "d1",
		EstimationID: "e1",
		ConceptID:    "q",
		Volume:       engine.MustDecimal("25"),
		Amount:       engine.MustDecimal("250"),
	}))
	total, err := s.SumDetailAmounts(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, total.Equal(engine.MustDecimal("250")), "got %s", total)
}

func TestStore_FinancialExecutionCountsApprovedAndPaid(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	saveEstimation(t, s, "e1", engine.EstimationPaid)
	saveEstimation(t, s, "e2", engine.EstimationDraft)
	require.NoError(t, s.SaveDetail(ctx, &engine.EstimationDetail{
		ID: "d1", EstimationID: "e1", ConceptID: "q",
		Volume: engine.MustDecimal("10"), Amount: engine.MustDecimal("100"),
	}))
	require.NoError(t, s.SaveDetail(ctx, &engine.EstimationDetail{
		ID: "d2", EstimationID: "e2", ConceptID: "q",
		Volume: engine.MustDecimal("99"), Amount: engine.MustDecimal("990"),
	}))

	execution, err := s.FinancialExecution(ctx, []engine.ConceptID{"q"})
	require.NoError(t, err)
	assert.True(t, execution["q"].Volume.Equal(engine.MustDecimal("10")))
	assert.True(t, execution["q"].Amount.Equal(engine.MustDecimal("100")))

	february := window(time.February, 1, time.February, 28)
	amount, err := s.FinancialAmountWithin(ctx, []engine.ConceptID{"q"}, february)
	require.NoError(t, err)
	assert.True(t, amount.Equal(engine.MustDecimal("100")), "got %s", amount)

	march := window(time.March, 1, time.March, 31)
	amount, err = s.FinancialAmountWithin(ctx, []engine.ConceptID{"q"}, march)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxCommits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx engine.Store) error {
		savePhysical(t, tx, "p1", "20", day(time.January, 5), engine.PhysicalPending)
		return nil
	})
	require.NoError(t, err)

	physical, err := s.Physical(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, physical)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx engine.Store) error {
		savePhysical(t, tx, "p1", "20", day(time.January, 5), engine.PhysicalPending)
		return boom
	})
	require.ErrorIs(t, err, boom)

	physical, err := s.Physical(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, physical)
}

// =============================================================================
// CHAINS AND ASSIGNMENTS
// =============================================================================

func TestStore_ReplaceChain(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.SaveSchedule(ctx, &engine.Schedule{
		ID: "sch1", ConstructionID: "c1", Name: "Phase one", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	for _, id := range []engine.ActivityID{"a1", "a2"} {
		require.NoError(t, s.SaveActivity(ctx, &engine.Activity{
			ID: id, ScheduleID: "sch1", Name: string(id),
			Window: window(time.January, 1, time.January, 31), Progress: decimal.Zero,
		}))
	}

	require.NoError(t, s.ReplaceChain(ctx, engine.ActivityChain{
		ScheduleID:   "sch1",
		CalculatedAt: now,
		Notes:        "first pass",
		Links: []engine.ChainLink{
			{ActivityID: "a1", SequenceOrder: 1},
			{ActivityID: "a2", SequenceOrder: 2},
		},
	}))
	require.NoError(t, s.ReplaceChain(ctx, engine.ActivityChain{
		ScheduleID:   "sch1",
		CalculatedAt: now,
		Notes:        "second pass",
		Links:        []engine.ChainLink{{ActivityID: "a2", SequenceOrder: 1}},
	}))

	chain, err := s.Chain(ctx, "sch1")
	require.NoError(t, err)
	require.NotNil(t, chain)
	assert.Equal(t, "second pass", chain.Notes)
	require.Len(t, chain.Links, 1)
	assert.Equal(t, engine.ActivityID("a2"), chain.Links[0].ActivityID)

	missing, err := s.Chain(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Assignments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAssignment(ctx, engine.Assignment{
		ID: "as1", Actor: "resident", ConstructionID: "c1", Role: "resident", Active: true,
	}))

	ok, err := s.IsAssigned(ctx, "resident", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAssigned(ctx, "outsider", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	constructions, err := s.AssignedConstructions(ctx, "resident")
	require.NoError(t, err)
	assert.Equal(t, []engine.ConstructionID{"c1"}, constructions)
}
