package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/progress-engine/engine"
	"github.com/warp/progress-engine/engine/store"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// newCatalogStore seeds a construction with one catalog, one work item,
// and concept "q" (quantity 100, unit price 10).
func newCatalogStore(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory()
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
	addConcept(t, s, "q", "100", "10")
	return s
}

func addConcept(t *testing.T, s *store.Memory, id engine.ConceptID, quantity, unitPrice string) {
	t.Helper()
	require.NoError(t, s.SaveConcept(context.Background(), &engine.Concept{
		ID:          id,
		CatalogID:   "cat1",
		WorkItemID:  "wi1",
		Description: "Concept " + string(id),
		Unit:        "m3",
		Quantity:    engine.MustDecimal(quantity),
		UnitPrice:   engine.MustDecimal(unitPrice),
		Active:      true,
	}))
}

func addSchedule(t *testing.T, s *store.Memory, id engine.ScheduleID, active bool) {
	t.Helper()
	require.NoError(t, s.SaveSchedule(context.Background(), &engine.Schedule{
		ID:             id,
		ConstructionID: "c1",
		Name:           "Schedule " + string(id),
		Active:         active,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}))
}

func addActivity(t *testing.T, s *store.Memory, scheduleID engine.ScheduleID, id engine.ActivityID, w engine.Period, concepts ...engine.ConceptID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveActivity(ctx, &engine.Activity{
		ID:         id,
		ScheduleID: scheduleID,
		Name:       "Activity " + string(id),
		Window:     w,
		Progress:   decimal.Zero,
	}))
	for _, conceptID := range concepts {
		_, err := s.LinkConcept(ctx, id, conceptID)
		require.NoError(t, err)
	}
}

func approvedPhysical(t *testing.T, ledger *engine.Ledger, concept engine.ConceptID, volume string, date engine.Date) *engine.Physical {
	t.Helper()
	ctx := context.Background()
	physical, err := ledger.Create(ctx, "", engine.CreatePhysicalInput{
		ConceptID: concept,
		Volume:    engine.MustDecimal(volume),
		Date:      date,
	})
	require.NoError(t, err)
	physical, err = ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalApproved)
	require.NoError(t, err)
	return physical
}
