/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:

	Populates the database with a realistic construction project for
	testing and demos: a construction with its catalog of concepts, an
	active schedule with linked activities, approved physical advances,
	a planned estimation with detail lines, and commitment tracking.

HOW THE DEMO DATASET WORKS:
 1. Create a construction + catalog + work items + concepts
 2. Create an active schedule and link concepts to its activities
 3. Register physical advances, approving some through the ledger
 4. Import a planned estimation from the schedule
 5. Add commitment tracking on the imported lines
 6. Assign a demo actor to the construction

USAGE VIA API:

	POST /api/demo/load

NOTE:

	Catalog and schedule rows carry fixed IDs and upsert; advances,
	estimations, and commitments get fresh IDs per load, so run against a
	fresh database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: HTTP surface
  - store/sqlite/sqlite.go: Persistence
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/progress-engine/engine"
)

// LoadDemoData populates the store with the demo construction project.
func (h *Handler) LoadDemoData(w http.ResponseWriter, r *http.Request) {
	if err := seedDemo(r.Context(), h); err != nil {
		writeEngineError(w, "Failed to load demo data", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func seedDemo(ctx context.Context, h *Handler) error {
	year := time.Now().Year()
	start := engine.NewDate(year, time.January, 1)
	end := engine.NewDate(year, time.December, 31)

	construction := &engine.Construction{
		ID:        "demo-construction",
		Name:      "Riverside Office Complex",
		StartDate: start,
		EndDate:   end,
		Budget:    decimal.NewFromInt(5_000_000),
		Status:    "ACTIVE",
	}
	if err := h.Store.SaveConstruction(ctx, construction); err != nil {
		return err
	}

	catalog := &engine.Catalog{
		ID:             "demo-catalog",
		ConstructionID: construction.ID,
		Name:           "Main contract catalog",
		Active:         true,
	}
	if err := h.Store.SaveCatalog(ctx, catalog); err != nil {
		return err
	}

	workItem := &engine.WorkItem{
		ID:        "demo-structural",
		CatalogID: catalog.ID,
		Name:      "Structural works",
		Active:    true,
	}
	if err := h.Store.SaveWorkItem(ctx, workItem); err != nil {
		return err
	}

	concepts := []*engine.Concept{
		{
			ID:          "demo-concrete",
			CatalogID:   catalog.ID,
			WorkItemID:  workItem.ID,
			Description: "Structural concrete f'c=250",
			Unit:        "m3",
			Quantity:    decimal.NewFromInt(1200),
			UnitPrice:   decimal.NewFromInt(1850),
			Active:      true,
		},
		{
			ID:          "demo-steel",
			CatalogID:   catalog.ID,
			WorkItemID:  workItem.ID,
			Description: "Reinforcement steel grade 42",
			Unit:        "ton",
			Quantity:    decimal.NewFromInt(95),
			UnitPrice:   decimal.NewFromInt(24500),
			Active:      true,
		},
		{
			ID:          "demo-formwork",
			CatalogID:   catalog.ID,
			WorkItemID:  workItem.ID,
			Description: "Formwork for vertical elements",
			Unit:        "m2",
			Quantity:    decimal.NewFromInt(3400),
			UnitPrice:   decimal.NewFromInt(320),
			Active:      true,
		},
	}
	for _, concept := range concepts {
		if err := h.Store.SaveConcept(ctx, concept); err != nil {
			return err
		}
	}

	if err := h.Store.SaveAssignment(ctx, engine.Assignment{
		ID:             "demo-assignment",
		Actor:          "demo-resident",
		ConstructionID: construction.ID,
		Role:           "resident",
		Active:         true,
	}); err != nil {
		return err
	}

	schedule := &engine.Schedule{
		ID:             "demo-schedule",
		ConstructionID: construction.ID,
		Name:           "Baseline program",
		Description:    "Structural phase baseline",
		Active:         true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := h.Store.SaveSchedule(ctx, schedule); err != nil {
		return err
	}

	activities := []struct {
		id       engine.ActivityID
		name     string
		window   engine.Period
		concepts []engine.ConceptID
	}{
		{
			id:   "demo-foundations",
			name: "Foundations",
			window: engine.Period{
				Start: engine.NewDate(year, time.January, 10),
				End:   engine.NewDate(year, time.March, 15),
			},
			concepts: []engine.ConceptID{"demo-concrete", "demo-steel"},
		},
		{
			id:   "demo-columns",
			name: "Columns and walls",
			window: engine.Period{
				Start: engine.NewDate(year, time.March, 20),
				End:   engine.NewDate(year, time.June, 30),
			},
			concepts: []engine.ConceptID{"demo-concrete", "demo-formwork"},
		},
		{
			id:   "demo-slabs",
			name: "Slabs",
			window: engine.Period{
				Start: engine.NewDate(year, time.July, 1),
				End:   engine.NewDate(year, time.October, 31),
			},
			concepts: []engine.ConceptID{"demo-concrete", "demo-steel", "demo-formwork"},
		},
	}
	for _, a := range activities {
		activity := &engine.Activity{
			ID:         a.id,
			ScheduleID: schedule.ID,
			Name:       a.name,
			Window:     a.window,
			Progress:   decimal.Zero,
		}
		if err := h.Store.SaveActivity(ctx, activity); err != nil {
			return err
		}
		for _, conceptID := range a.concepts {
			if _, err := h.Store.LinkConcept(ctx, a.id, conceptID); err != nil {
				return err
			}
		}
	}

	// Reported advances, some approved through the ledger so history and
	// latency analytics have data.
	reports := []struct {
		concept engine.ConceptID
		volume  int64
		date    engine.Date
		approve bool
	}{
		{"demo-concrete", 80, engine.NewDate(year, time.January, 25), true},
		{"demo-concrete", 120, engine.NewDate(year, time.February, 20), true},
		{"demo-steel", 12, engine.NewDate(year, time.February, 5), true},
		{"demo-formwork", 150, engine.NewDate(year, time.February, 28), false},
	}
	for _, report := range reports {
		physical, err := h.Ledger.Create(ctx, "", engine.CreatePhysicalInput{
			ConceptID: report.concept,
			Volume:    decimal.NewFromInt(report.volume),
			Date:      report.date,
		})
		if err != nil {
			return err
		}
		if report.approve {
			if _, err := h.Ledger.UpdateStatus(ctx, "", physical.ID, engine.PhysicalApproved); err != nil {
				return err
			}
		}
	}

	// Planned estimation imported from the schedule for Q1.
	result, err := h.Importer.ImportFromSchedule(ctx, "", engine.ImportInput{
		ConstructionID: construction.ID,
		ScheduleID:     schedule.ID,
		Period: engine.Period{
			Start: engine.NewDate(year, time.January, 1),
			End:   engine.NewDate(year, time.March, 31),
		},
		Name: "Q1 planned estimation",
	})
	if err != nil {
		return err
	}

	details, err := h.Store.Details(ctx, result.Estimation.ID)
	if err != nil {
		return err
	}
	for _, detail := range details {
		plannedDate := engine.NewDate(year, time.February, 15)
		if detail.ExecutionDate != nil {
			plannedDate = *detail.ExecutionDate
		}
		if _, err := h.Commitments.Create(ctx, engine.CreateCommitmentInput{
			DetailID:      detail.ID,
			PlannedDate:   plannedDate,
			PlannedVolume: detail.Volume,
		}); err != nil {
			return err
		}
	}

	return nil
}
