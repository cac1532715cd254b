package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/progress-engine/engine"
	"github.com/warp/progress-engine/engine/store"
)

// newReconcileWorld seeds the shared catalog with a schedule covering
// January and a handful of approved records inside it.
func newReconcileWorld(t *testing.T) (*engine.Reconciler, *store.Memory, *engine.Ledger) {
	t.Helper()
	s := newCatalogStore(t)
	addSchedule(t, s, "sch1", true)
	addActivity(t, s, "sch1", "a1", window(time.January, 1, time.January, 31), "q")

	ledger := engine.NewLedger(s)
	return engine.NewReconciler(s), s, ledger
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummarize_RowAndTotals(t *testing.T) {
	// GIVEN: the full January program (100 units) and 30 approved units
	reconciler, _, ledger := newReconcileWorld(t)
	approvedPhysical(t, ledger, "q", "20", day(time.January, 5))
	approvedPhysical(t, ledger, "q", "10", day(time.January, 20))

	summary, err := reconciler.Summarize(context.Background(), engine.SummaryRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	require.Len(t, summary.Rows, 1)
	row := summary.Rows[0]
	assert.Equal(t, engine.ConceptID("q"), row.ConceptID)
	assert.True(t, row.ProgrammedVolume.Equal(engine.MustDecimal("100")), "got %s", row.ProgrammedVolume)
	assert.True(t, row.ExecutedVolume.Equal(engine.MustDecimal("30")), "got %s", row.ExecutedVolume)
	// Unit price is 10.
	assert.True(t, row.ExecutedAmount.Equal(engine.MustDecimal("300")), "got %s", row.ExecutedAmount)
	assert.True(t, row.ProgressPercentage.Equal(engine.MustDecimal("30")), "got %s", row.ProgressPercentage)
	assert.True(t, row.GlobalPercentage.Equal(engine.MustDecimal("30")), "got %s", row.GlobalPercentage)

	assert.True(t, summary.ProgramFound)
	assert.Equal(t, "schedule:Schedule sch1", summary.ProgramSource)
	assert.Equal(t, 1, summary.Totals.ConceptCount)
	assert.Equal(t, 0, summary.Totals.CompletedConcepts)
	assert.True(t, summary.Totals.ExecutedAmount.Equal(engine.MustDecimal("300")))
	assert.True(t, summary.Totals.PeriodPercentage.Equal(engine.MustDecimal("30")))
}

func TestSummarize_CompletedConceptCounted(t *testing.T) {
	reconciler, _, ledger := newReconcileWorld(t)
	approvedPhysical(t, ledger, "q", "100", day(time.January, 15))

	summary, err := reconciler.Summarize(context.Background(), engine.SummaryRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Totals.CompletedConcepts)
	require.Len(t, summary.Rows, 1)
	assert.True(t, summary.Rows[0].Completed())
}

func TestSummarize_WeeklyBucketsSumToPeriodTotal(t *testing.T) {
	// Records in different weeks land in different buckets, and the
	// bucket volumes sum to the period's executed volume.
	reconciler, _, ledger := newReconcileWorld(t)
	approvedPhysical(t, ledger, "q", "20", day(time.January, 2))
	approvedPhysical(t, ledger, "q", "10", day(time.January, 20))

	summary, err := reconciler.Summarize(context.Background(), engine.SummaryRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	require.Len(t, summary.Weeks, 5)
	total := decimal.Zero
	nonEmpty := 0
	for _, week := range summary.Weeks {
		total = total.Add(week.ExecutedVolume)
		if week.ExecutedVolume.IsPositive() {
			nonEmpty++
		}
	}
	assert.True(t, total.Equal(engine.MustDecimal("30")), "got %s", total)
	assert.Equal(t, 2, nonEmpty)
	assert.Equal(t, "Week 01/01", summary.Weeks[0].Label)
}

func TestSummarize_ApprovalInfoAttached(t *testing.T) {
	reconciler, _, ledger := newReconcileWorld(t)
	approvedPhysical(t, ledger, "q", "20", day(time.January, 5))

	summary, err := reconciler.Summarize(context.Background(), engine.SummaryRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	require.Len(t, summary.Rows, 1)
	require.NotNil(t, summary.Rows[0].Approval)
	assert.Equal(t, day(time.January, 5), summary.Rows[0].Approval.SubmissionDate)
}

func TestSummarize_NoProgramNoExecution(t *testing.T) {
	// No schedule, no estimation, no records: the program chain finds
	// nothing and the unfiltered concept set is still listed.
	s := newCatalogStore(t)
	reconciler := engine.NewReconciler(s)

	summary, err := reconciler.Summarize(context.Background(), engine.SummaryRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	assert.False(t, summary.ProgramFound)
	assert.Empty(t, summary.ProgramSource)
	require.Len(t, summary.Rows, 1)
	assert.True(t, summary.Rows[0].ProgrammedVolume.IsZero())
}

func TestSummarize_PaginationDefaultsAndSlicing(t *testing.T) {
	reconciler, s, ledger := newReconcileWorld(t)
	addConcept(t, s, "r", "200", "5")
	approvedPhysical(t, ledger, "q", "10", day(time.January, 5))
	approvedPhysical(t, ledger, "r", "10", day(time.January, 5))

	ctx := context.Background()
	full, err := reconciler.Summarize(ctx, engine.SummaryRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPage, full.Pagination.Page)
	assert.Equal(t, engine.DefaultPageSize, full.Pagination.PageSize)
	assert.Equal(t, 2, full.Pagination.TotalItems)

	paged, err := reconciler.Summarize(ctx, engine.SummaryRequest{
		Period:   window(time.January, 1, time.January, 31),
		Page:     2,
		PageSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, paged.Rows, 1)
	assert.Equal(t, engine.ConceptID("r"), paged.Rows[0].ConceptID)
	assert.Equal(t, 2, paged.Pagination.TotalPages)
	// Totals still cover both concepts.
	assert.Equal(t, 2, paged.Totals.ConceptCount)
}

func TestSummarize_InvalidPeriod(t *testing.T) {
	reconciler, _, _ := newReconcileWorld(t)

	_, err := reconciler.Summarize(context.Background(), engine.SummaryRequest{
		Period: engine.Period{Start: day(time.March, 10), End: day(time.March, 1)},
	})
	assert.True(t, engine.IsValidation(err))
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestDashboard_PhysicalVersusFinancial(t *testing.T) {
	// GIVEN: 30 units approved physically and a PAID estimation worth 200
	reconciler, s, ledger := newReconcileWorld(t)
	ctx := context.Background()
	approvedPhysical(t, ledger, "q", "30", day(time.January, 10))

	es := engine.NewEstimationService(s)
	estimation, err := es.Create(ctx, "", engine.CreateEstimationInput{
		Name:           "January billing",
		Period:         window(time.January, 1, time.January, 31),
		ConstructionID: "c1",
	})
	require.NoError(t, err)
	_, err = es.AddDetail(ctx, "", estimation.ID, engine.DetailInput{
		ConceptID: "q",
		Volume:    engine.MustDecimal("20"),
		Amount:    engine.MustDecimal("200"),
	})
	require.NoError(t, err)
	for _, status := range []engine.EstimationStatus{engine.EstimationSubmitted, engine.EstimationApproved, engine.EstimationPaid} {
		_, err = es.UpdateStatus(ctx, "", estimation.ID, status)
		require.NoError(t, err)
	}

	dashboard, err := reconciler.DashboardView(ctx, engine.DashboardRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	require.Len(t, dashboard.Rows, 1)
	row := dashboard.Rows[0]
	assert.True(t, row.PhysicalAmount.Equal(engine.MustDecimal("300")), "got %s", row.PhysicalAmount)
	assert.True(t, row.FinancialAmount.Equal(engine.MustDecimal("200")), "got %s", row.FinancialAmount)
	assert.True(t, row.FinancialVolume.Equal(engine.MustDecimal("20")), "got %s", row.FinancialVolume)

	// Program is 100 units at price 10.
	assert.True(t, dashboard.Summary.Programmed.Amount.Equal(engine.MustDecimal("1000")))
	assert.True(t, dashboard.Summary.Physical.Percentage.Equal(engine.MustDecimal("30")))
	assert.True(t, dashboard.Summary.Financial.Percentage.Equal(engine.MustDecimal("20")))
	assert.True(t, dashboard.Summary.Difference.Amount.Equal(engine.MustDecimal("100")))
	assert.True(t, dashboard.Summary.Difference.Percentage.Equal(engine.MustDecimal("10")))
}

func TestDashboard_PhysicalExecutionIsAllTime(t *testing.T) {
	// A record outside the requested window still counts toward the
	// physical series.
	reconciler, _, ledger := newReconcileWorld(t)
	approvedPhysical(t, ledger, "q", "25", day(time.June, 10))

	dashboard, err := reconciler.DashboardView(context.Background(), engine.DashboardRequest{
		Period: window(time.January, 1, time.January, 31),
	})
	require.NoError(t, err)

	require.Len(t, dashboard.Rows, 1)
	assert.True(t, dashboard.Rows[0].PhysicalVolume.Equal(engine.MustDecimal("25")))
}

func TestDashboard_MonthlyBuckets(t *testing.T) {
	reconciler, _, ledger := newReconcileWorld(t)
	approvedPhysical(t, ledger, "q", "10", day(time.January, 10))

	dashboard, err := reconciler.DashboardView(context.Background(), engine.DashboardRequest{
		Period: window(time.January, 1, time.March, 31),
	})
	require.NoError(t, err)

	require.Len(t, dashboard.Months, 3)
	assert.Equal(t, "2025-01", dashboard.Months[0].Label)
	assert.Equal(t, "2025-03", dashboard.Months[2].Label)
	// The schedule only covers January; later months carry no program.
	assert.True(t, dashboard.Months[0].Programmed.Amount.IsPositive())
	assert.True(t, dashboard.Months[1].Programmed.Amount.IsZero())
	assert.True(t, dashboard.Months[0].Physical.Amount.Equal(engine.MustDecimal("100")))
	assert.True(t, dashboard.Months[1].Physical.Amount.IsZero())
}
