// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/progress-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	constructions map[engine.ConstructionID]engine.Construction
	catalogs      map[engine.CatalogID]engine.Catalog
	workItems     map[engine.WorkItemID]engine.WorkItem
	concepts      map[engine.ConceptID]engine.Concept

	schedules        map[engine.ScheduleID]engine.Schedule
	activities       map[engine.ActivityID]engine.Activity
	activityConcepts map[engine.ActivityID][]engine.ConceptID

	physicals map[engine.PhysicalID]engine.Physical
	history   map[engine.PhysicalID][]engine.StatusChange

	estimations map[engine.EstimationID]engine.Estimation
	details     map[engine.DetailID]engine.EstimationDetail
	commitments map[engine.CommitmentID]engine.CommitmentTracking

	chains      map[engine.ScheduleID]engine.ActivityChain
	assignments map[string]engine.Assignment
}

func NewMemory() *Memory {
	return &Memory{
		constructions:    make(map[engine.ConstructionID]engine.Construction),
		catalogs:         make(map[engine.CatalogID]engine.Catalog),
		workItems:        make(map[engine.WorkItemID]engine.WorkItem),
		concepts:         make(map[engine.ConceptID]engine.Concept),
		schedules:        make(map[engine.ScheduleID]engine.Schedule),
		activities:       make(map[engine.ActivityID]engine.Activity),
		activityConcepts: make(map[engine.ActivityID][]engine.ConceptID),
		physicals:        make(map[engine.PhysicalID]engine.Physical),
		history:          make(map[engine.PhysicalID][]engine.StatusChange),
		estimations:      make(map[engine.EstimationID]engine.Estimation),
		details:          make(map[engine.DetailID]engine.EstimationDetail),
		commitments:      make(map[engine.CommitmentID]engine.CommitmentTracking),
		chains:           make(map[engine.ScheduleID]engine.ActivityChain),
		assignments:      make(map[string]engine.Assignment),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveConstruction(_ context.Context, c *engine.Construction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constructions[c.ID] = *c
	return nil
}

func (m *Memory) SaveCatalog(_ context.Context, c *engine.Catalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogs[c.ID] = *c
	return nil
}

func (m *Memory) SaveWorkItem(_ context.Context, w *engine.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workItems[w.ID] = *w
	return nil
}

func (m *Memory) SaveConcept(_ context.Context, c *engine.Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concepts[c.ID] = *c
	return nil
}

func (m *Memory) Construction(_ context.Context, id engine.ConstructionID) (*engine.Construction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.constructions[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) Concept(_ context.Context, id engine.ConceptID) (*engine.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.concepts[id]; ok {
		return &c, nil
	}
	return nil, nil
}

// Concepts returns active concepts matching the filter, id ascending.
func (m *Memory) Concepts(_ context.Context, filter engine.ConceptFilter) ([]engine.Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Concept
	for _, c := range m.concepts {
		if c.Active && m.matchesFilter(c, filter) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) matchesFilter(c engine.Concept, filter engine.ConceptFilter) bool {
	if filter.ConceptID != nil && c.ID != *filter.ConceptID {
		return false
	}
	if filter.WorkItemID != nil && c.WorkItemID != *filter.WorkItemID {
		return false
	}
	if filter.CatalogID != nil && c.CatalogID != *filter.CatalogID {
		return false
	}
	return true
}

func (m *Memory) ConstructionIDs(_ context.Context, filter engine.ConceptFilter) ([]engine.ConstructionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[engine.ConstructionID]bool)
	var result []engine.ConstructionID
	for _, c := range m.concepts {
		if !c.Active || !m.matchesFilter(c, filter) {
			continue
		}
		catalog, ok := m.catalogs[c.CatalogID]
		if !ok || seen[catalog.ConstructionID] {
			continue
		}
		seen[catalog.ConstructionID] = true
		result = append(result, catalog.ConstructionID)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (m *Memory) ConstructionForConcept(_ context.Context, id engine.ConceptID) (engine.ConstructionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	concept, ok := m.concepts[id]
	if !ok {
		return "", &engine.NotFoundError{Entity: "concept", ID: string(id)}
	}
	catalog, ok := m.catalogs[concept.CatalogID]
	if !ok {
		return "", &engine.NotFoundError{Entity: "catalog", ID: string(concept.CatalogID)}
	}
	return catalog.ConstructionID, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) SaveSchedule(_ context.Context, s *engine.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = *s
	return nil
}

func (m *Memory) Schedule(_ context.Context, id engine.ScheduleID) (*engine.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.schedules[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) Schedules(_ context.Context, filter engine.ScheduleFilter) ([]engine.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Schedule
	for _, s := range m.schedules {
		if filter.ConstructionID != nil && s.ConstructionID != *filter.ConstructionID {
			continue
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		result = append(result, s)
	}
	sortSchedules(result)
	return result, nil
}

// ActiveSchedules returns active schedules for the constructions, oldest
// first so the allocator's "first wins" tier is deterministic.
func (m *Memory) ActiveSchedules(_ context.Context, constructions []engine.ConstructionID) ([]engine.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[engine.ConstructionID]bool, len(constructions))
	for _, id := range constructions {
		wanted[id] = true
	}

	var result []engine.Schedule
	for _, s := range m.schedules {
		if s.Active && wanted[s.ConstructionID] {
			result = append(result, s)
		}
	}
	sortSchedules(result)
	return result, nil
}

func sortSchedules(schedules []engine.Schedule) {
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].CreatedAt.Equal(schedules[j].CreatedAt) {
			return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
		}
		return schedules[i].ID < schedules[j].ID
	})
}

func (m *Memory) SaveActivity(_ context.Context, a *engine.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = *a
	return nil
}

func (m *Memory) Activity(_ context.Context, id engine.ActivityID) (*engine.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.activities[id]; ok {
		return &a, nil
	}
	return nil, nil
}

// DeleteActivity removes the activity and its concept links.
func (m *Memory) DeleteActivity(_ context.Context, id engine.ActivityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activities, id)
	delete(m.activityConcepts, id)
	return nil
}

func (m *Memory) Activities(_ context.Context, scheduleID engine.ScheduleID) ([]engine.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activitiesLocked(scheduleID, nil), nil
}

func (m *Memory) ActivitiesInWindow(_ context.Context, scheduleID engine.ScheduleID, window engine.Period) ([]engine.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activitiesLocked(scheduleID, &window), nil
}

func (m *Memory) activitiesLocked(scheduleID engine.ScheduleID, window *engine.Period) []engine.Activity {
	var result []engine.Activity
	for _, a := range m.activities {
		if a.ScheduleID != scheduleID {
			continue
		}
		if window != nil && !a.Window.Intersects(*window) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Window.Start.Equal(result[j].Window.Start) {
			return result[i].Window.Start.Before(result[j].Window.Start)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// LinkConcept associates a concept with an activity, once per pair.
func (m *Memory) LinkConcept(_ context.Context, activityID engine.ActivityID, conceptID engine.ConceptID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.activityConcepts[activityID] {
		if existing == conceptID {
			return false, nil
		}
	}
	m.activityConcepts[activityID] = append(m.activityConcepts[activityID], conceptID)
	return true, nil
}

func (m *Memory) UnlinkConcepts(_ context.Context, activityID engine.ActivityID, conceptIDs []engine.ConceptID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[engine.ConceptID]bool, len(conceptIDs))
	for _, id := range conceptIDs {
		drop[id] = true
	}

	kept := m.activityConcepts[activityID][:0]
	removed := 0
	for _, id := range m.activityConcepts[activityID] {
		if drop[id] {
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.activityConcepts[activityID] = kept
	return removed, nil
}

func (m *Memory) ActivityConceptIDs(_ context.Context, activityID engine.ActivityID) ([]engine.ConceptID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.ConceptID{}, m.activityConcepts[activityID]...), nil
}

func (m *Memory) ScheduleConceptIDs(_ context.Context, scheduleID engine.ScheduleID) ([]engine.ConceptID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[engine.ConceptID]bool)
	var result []engine.ConceptID
	for _, a := range m.activitiesLocked(scheduleID, nil) {
		for _, id := range m.activityConcepts[a.ID] {
			if !seen[id] {
				seen[id] = true
				result = append(result, id)
			}
		}
	}
	return result, nil
}

// =============================================================================
// PHYSICALS
// =============================================================================

func (m *Memory) SavePhysical(_ context.Context, p *engine.Physical) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.physicals[p.ID] = *p
	return nil
}

func (m *Memory) Physical(_ context.Context, id engine.PhysicalID) (*engine.Physical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.physicals[id]; ok {
		return &p, nil
	}
	return nil, nil
}

// DeletePhysical removes the record and its history.
func (m *Memory) DeletePhysical(_ context.Context, id engine.PhysicalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.physicals, id)
	delete(m.history, id)
	return nil
}

func (m *Memory) Physicals(_ context.Context, filter engine.PhysicalFilter) ([]engine.Physical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var restrict map[engine.ConstructionID]bool
	if filter.Constructions != nil {
		restrict = make(map[engine.ConstructionID]bool, len(filter.Constructions))
		for _, id := range filter.Constructions {
			restrict[id] = true
		}
	}

	var result []engine.Physical
	for _, p := range m.physicals {
		concept, ok := m.concepts[p.ConceptID]
		if !ok || !m.matchesFilter(concept, filter.Concept) {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.From != nil && p.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && p.Date.After(*filter.To) {
			continue
		}
		if restrict != nil {
			catalog, ok := m.catalogs[concept.CatalogID]
			if !ok || !restrict[catalog.ConstructionID] {
				continue
			}
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) AppendStatusChange(_ context.Context, change engine.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[change.PhysicalID] = append(m.history[change.PhysicalID], change)
	return nil
}

func (m *Memory) StatusHistory(_ context.Context, id engine.PhysicalID) ([]engine.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.StatusChange{}, m.history[id]...), nil
}

func (m *Memory) ApprovedVolumes(_ context.Context, conceptIDs []engine.ConceptID, period *engine.Period) (map[engine.ConceptID]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := conceptSet(conceptIDs)
	result := make(map[engine.ConceptID]decimal.Decimal)
	for _, p := range m.physicals {
		if p.Status != engine.PhysicalApproved || !wanted[p.ConceptID] {
			continue
		}
		if period != nil && !period.Contains(p.Date) {
			continue
		}
		result[p.ConceptID] = result[p.ConceptID].Add(p.Volume)
	}
	return result, nil
}

func (m *Memory) ApprovedPhysicals(_ context.Context, conceptIDs []engine.ConceptID, period engine.Period) ([]engine.Physical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := conceptSet(conceptIDs)
	var result []engine.Physical
	for _, p := range m.physicals {
		if p.Status == engine.PhysicalApproved && wanted[p.ConceptID] && period.Contains(p.Date) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Approvals returns PENDING -> APPROVED transitions, optionally filtered
// by the underlying record's date, oldest transition first.
func (m *Memory) Approvals(_ context.Context, period *engine.Period) ([]engine.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Approval
	for physicalID, changes := range m.history {
		physical, ok := m.physicals[physicalID]
		if !ok {
			continue
		}
		if period != nil && !period.Contains(physical.Date) {
			continue
		}
		for _, change := range changes {
			if change.Previous != engine.PhysicalPending || change.New != engine.PhysicalApproved {
				continue
			}
			result = append(result, engine.Approval{
				PhysicalID:  physicalID,
				ConceptID:   physical.ConceptID,
				SubmittedOn: physical.Date,
				ApprovedOn:  engine.DateOf(change.ChangedAt),
				ChangedAt:   change.ChangedAt,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChangedAt.Before(result[j].ChangedAt) })
	return result, nil
}

func conceptSet(ids []engine.ConceptID) map[engine.ConceptID]bool {
	set := make(map[engine.ConceptID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// =============================================================================
// ESTIMATIONS
// =============================================================================

func (m *Memory) SaveEstimation(_ context.Context, e *engine.Estimation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimations[e.ID] = *e
	return nil
}

func (m *Memory) Estimation(_ context.Context, id engine.EstimationID) (*engine.Estimation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.estimations[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) Estimations(_ context.Context, filter engine.EstimationFilter) ([]engine.Estimation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var restrict map[engine.ConstructionID]bool
	if filter.Constructions != nil {
		restrict = make(map[engine.ConstructionID]bool, len(filter.Constructions))
		for _, id := range filter.Constructions {
			restrict[id] = true
		}
	}

	var result []engine.Estimation
	for _, e := range m.estimations {
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.Planned != nil && e.Planned != *filter.Planned {
			continue
		}
		if filter.ConstructionID != nil && e.ConstructionID != *filter.ConstructionID {
			continue
		}
		if restrict != nil && !restrict[e.ConstructionID] {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteEstimation removes the estimation and its detail lines.
func (m *Memory) DeleteEstimation(_ context.Context, id engine.EstimationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.estimations, id)
	for detailID, d := range m.details {
		if d.EstimationID == id {
			delete(m.details, detailID)
		}
	}
	return nil
}

func (m *Memory) SaveDetail(_ context.Context, d *engine.EstimationDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[d.ID] = *d
	return nil
}

func (m *Memory) Detail(_ context.Context, id engine.DetailID) (*engine.EstimationDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *Memory) Details(_ context.Context, estimationID engine.EstimationID) ([]engine.EstimationDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.EstimationDetail
	for _, d := range m.details {
		if d.EstimationID == estimationID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) DeleteDetail(_ context.Context, id engine.DetailID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.details, id)
	return nil
}

func (m *Memory) SumDetailAmounts(_ context.Context, estimationID engine.EstimationID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, d := range m.details {
		if d.EstimationID == estimationID {
			total = total.Add(d.Amount)
		}
	}
	return total, nil
}

func (m *Memory) PlannedEstimations(_ context.Context, window engine.Period) ([]engine.Estimation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Estimation
	for _, e := range m.estimations {
		if e.Planned && e.Period.Intersects(window) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) FinancialExecution(_ context.Context, conceptIDs []engine.ConceptID) (map[engine.ConceptID]engine.FinancialTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := conceptSet(conceptIDs)
	result := make(map[engine.ConceptID]engine.FinancialTotal)
	for _, d := range m.details {
		if !wanted[d.ConceptID] {
			continue
		}
		estimation, ok := m.estimations[d.EstimationID]
		if !ok || !estimation.Status.CountsAsExecuted() {
			continue
		}
		total := result[d.ConceptID]
		total.Volume = total.Volume.Add(d.Volume)
		total.Amount = total.Amount.Add(d.Amount)
		result[d.ConceptID] = total
	}
	return result, nil
}

// FinancialAmountWithin sums executed detail amounts for estimations
// whose whole period lies inside the window.
func (m *Memory) FinancialAmountWithin(_ context.Context, conceptIDs []engine.ConceptID, window engine.Period) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := conceptSet(conceptIDs)
	total := decimal.Zero
	for _, d := range m.details {
		if !wanted[d.ConceptID] {
			continue
		}
		estimation, ok := m.estimations[d.EstimationID]
		if !ok || !estimation.Status.CountsAsExecuted() {
			continue
		}
		if estimation.Period.Start.Before(window.Start) || estimation.Period.End.After(window.End) {
			continue
		}
		total = total.Add(d.Amount)
	}
	return total, nil
}

// =============================================================================
// COMMITMENTS
// =============================================================================

func (m *Memory) SaveCommitment(_ context.Context, c *engine.CommitmentTracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitments[c.ID] = *c
	return nil
}

func (m *Memory) Commitment(_ context.Context, id engine.CommitmentID) (*engine.CommitmentTracking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.commitments[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) Commitments(_ context.Context, filter engine.CommitmentFilter) ([]engine.CommitmentTracking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.CommitmentTracking
	for _, c := range m.commitments {
		if filter.DetailID != nil && c.DetailID != *filter.DetailID {
			continue
		}
		if filter.EstimationID != nil {
			detail, ok := m.details[c.DetailID]
			if !ok || detail.EstimationID != *filter.EstimationID {
				continue
			}
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.PlannedFrom != nil && c.PlannedDate.Before(*filter.PlannedFrom) {
			continue
		}
		if filter.PlannedTo != nil && c.PlannedDate.After(*filter.PlannedTo) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PlannedDate.Equal(result[j].PlannedDate) {
			return result[i].PlannedDate.Before(result[j].PlannedDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// CHAINS
// =============================================================================

func (m *Memory) ReplaceChain(_ context.Context, chain engine.ActivityChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain.Links = append([]engine.ChainLink{}, chain.Links...)
	m.chains[chain.ScheduleID] = chain
	return nil
}

func (m *Memory) Chain(_ context.Context, scheduleID engine.ScheduleID) (*engine.ActivityChain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if chain, ok := m.chains[scheduleID]; ok {
		chain.Links = append([]engine.ChainLink{}, chain.Links...)
		return &chain, nil
	}
	return nil, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (m *Memory) SaveAssignment(_ context.Context, a engine.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) AssignedConstructions(_ context.Context, actor engine.ActorID) ([]engine.ConstructionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.ConstructionID
	for _, a := range m.assignments {
		if a.Actor == actor && a.Active {
			result = append(result, a.ConstructionID)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (m *Memory) IsAssigned(_ context.Context, actor engine.ActorID, construction engine.ConstructionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assignments {
		if a.Actor == actor && a.ConstructionID == construction && a.Active {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store, restoring a snapshot if fn
// fails. Transactions are serialized; fn must not call WithTx again.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	constructions    map[engine.ConstructionID]engine.Construction
	catalogs         map[engine.CatalogID]engine.Catalog
	workItems        map[engine.WorkItemID]engine.WorkItem
	concepts         map[engine.ConceptID]engine.Concept
	schedules        map[engine.ScheduleID]engine.Schedule
	activities       map[engine.ActivityID]engine.Activity
	activityConcepts map[engine.ActivityID][]engine.ConceptID
	physicals        map[engine.PhysicalID]engine.Physical
	history          map[engine.PhysicalID][]engine.StatusChange
	estimations      map[engine.EstimationID]engine.Estimation
	details          map[engine.DetailID]engine.EstimationDetail
	commitments      map[engine.CommitmentID]engine.CommitmentTracking
	chains           map[engine.ScheduleID]engine.ActivityChain
	assignments      map[string]engine.Assignment
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		constructions:    copyMap(m.constructions),
		catalogs:         copyMap(m.catalogs),
		workItems:        copyMap(m.workItems),
		concepts:         copyMap(m.concepts),
		schedules:        copyMap(m.schedules),
		activities:       copyMap(m.activities),
		activityConcepts: copySliceMap(m.activityConcepts),
		physicals:        copyMap(m.physicals),
		history:          copySliceMap(m.history),
		estimations:      copyMap(m.estimations),
		details:          copyMap(m.details),
		commitments:      copyMap(m.commitments),
		chains:           copyMap(m.chains),
		assignments:      copyMap(m.assignments),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.constructions = s.constructions
	m.catalogs = s.catalogs
	m.workItems = s.workItems
	m.concepts = s.concepts
	m.schedules = s.schedules
	m.activities = s.activities
	m.activityConcepts = s.activityConcepts
	m.physicals = s.physicals
	m.history = s.history
	m.estimations = s.estimations
	m.details = s.details
	m.commitments = s.commitments
	m.chains = s.chains
	m.assignments = s.assignments
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copySliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	for k, v := range src {
		dst[k] = append([]V{}, v...)
	}
	return dst
}
