/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.Store and engine.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  constructions, catalogs, work_items, concepts:  the billing catalog
  schedules, activities, activity_concepts:       schedule data
  physicals, physical_status_history:             advance records + audit
  estimations, estimation_details:                financial periods
  commitment_tracking:                            planned-vs-actual rows
  activity_chains, activity_chain_links:          stored chain selections
  assignments:                                    actor-to-construction scoping

AUDIT ENFORCEMENT:
  physical_status_history is append-only: no UPDATE or DELETE statements
  exist for it. History rows only disappear with their physical record
  (ON DELETE CASCADE).

DECIMALS:
  Volumes, amounts, and percentages are stored as TEXT and aggregated in
  Go with shopspring/decimal. SQLite's REAL arithmetic is not acceptable
  for money.

CONCURRENCY:
  Uses a mutex to serialize writers. SQLite is opened with WAL
  (Write-Ahead Logging): multiple readers don't block, single writer at
  a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/progress.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := engine.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/progress-engine/engine"
)

// querier is the subset of *sql.DB and *sql.Tx the queries run against.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Catalog hierarchy: construction -> catalog -> work item -> concept
	CREATE TABLE IF NOT EXISTS constructions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		budget TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS catalogs (
		id TEXT PRIMARY KEY,
		construction_id TEXT NOT NULL REFERENCES constructions(id),
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_catalogs_construction
		ON catalogs(construction_id);

	CREATE TABLE IF NOT EXISTS work_items (
		id TEXT PRIMARY KEY,
		catalog_id TEXT NOT NULL REFERENCES catalogs(id),
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		catalog_id TEXT NOT NULL REFERENCES catalogs(id),
		work_item_id TEXT NOT NULL,
		description TEXT NOT NULL,
		unit TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		classification TEXT NOT NULL DEFAULT 'ORD',
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_concepts_catalog ON concepts(catalog_id);
	CREATE INDEX IF NOT EXISTS idx_concepts_work_item ON concepts(work_item_id);

	-- Schedules and activities
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		construction_id TEXT NOT NULL REFERENCES constructions(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_construction_active
		ON schedules(construction_id, is_active);

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		progress TEXT NOT NULL DEFAULT '0'
	);

	-- Hot path: the allocator selects overlapping activities per schedule
	CREATE INDEX IF NOT EXISTS idx_activities_schedule_dates
		ON activities(schedule_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS activity_concepts (
		activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		PRIMARY KEY (activity_id, concept_id)
	);

	-- Physical advance records and their append-only audit trail
	CREATE TABLE IF NOT EXISTS physicals (
		id TEXT PRIMARY KEY,
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		volume TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		comments TEXT NOT NULL DEFAULT ''
	);

	-- Hot path: approved volume per concept and window
	CREATE INDEX IF NOT EXISTS idx_physicals_concept_status_date
		ON physicals(concept_id, status, date);

	CREATE TABLE IF NOT EXISTS physical_status_history (
		id TEXT PRIMARY KEY,
		physical_id TEXT NOT NULL REFERENCES physicals(id) ON DELETE CASCADE,
		previous_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		changed_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_physical
		ON physical_status_history(physical_id, changed_at);
	CREATE INDEX IF NOT EXISTS idx_history_transition
		ON physical_status_history(previous_status, new_status);

	-- Estimations and detail lines
	CREATE TABLE IF NOT EXISTS estimations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'DRAFT',
		construction_id TEXT NOT NULL REFERENCES constructions(id),
		is_planned BOOLEAN NOT NULL DEFAULT FALSE,
		based_on_schedule BOOLEAN NOT NULL DEFAULT FALSE,
		schedule_id TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_estimations_planned_period
		ON estimations(is_planned, period_start, period_end);
	CREATE INDEX IF NOT EXISTS idx_estimations_status
		ON estimations(status);

	CREATE TABLE IF NOT EXISTS estimation_details (
		id TEXT PRIMARY KEY,
		estimation_id TEXT NOT NULL REFERENCES estimations(id) ON DELETE CASCADE,
		concept_id TEXT NOT NULL REFERENCES concepts(id),
		volume TEXT NOT NULL,
		amount TEXT NOT NULL,
		execution_date TEXT,
		commitment_status TEXT NOT NULL DEFAULT 'PENDING',
		activity_id TEXT,
		imported_from_schedule BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (estimation_id, concept_id)
	);

	CREATE INDEX IF NOT EXISTS idx_details_concept
		ON estimation_details(concept_id);

	-- Commitment tracking per detail line
	CREATE TABLE IF NOT EXISTS commitment_tracking (
		id TEXT PRIMARY KEY,
		detail_id TEXT NOT NULL REFERENCES estimation_details(id) ON DELETE CASCADE,
		planned_date TEXT NOT NULL,
		actual_date TEXT,
		planned_volume TEXT NOT NULL,
		actual_volume TEXT,
		variance_percentage TEXT,
		status TEXT NOT NULL DEFAULT 'ON_TRACK',
		comments TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commitments_detail
		ON commitment_tracking(detail_id);
	CREATE INDEX IF NOT EXISTS idx_commitments_planned_date
		ON commitment_tracking(planned_date);

	-- Stored activity chains, one per schedule
	CREATE TABLE IF NOT EXISTS activity_chains (
		schedule_id TEXT PRIMARY KEY REFERENCES schedules(id) ON DELETE CASCADE,
		calculated_at TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS activity_chain_links (
		schedule_id TEXT NOT NULL REFERENCES activity_chains(schedule_id) ON DELETE CASCADE,
		activity_id TEXT NOT NULL REFERENCES activities(id),
		sequence_order INTEGER NOT NULL,
		PRIMARY KEY (schedule_id, sequence_order)
	);

	-- Actor-to-construction scoping
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL,
		construction_id TEXT NOT NULL REFERENCES constructions(id),
		role TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (actor, construction_id)
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_actor
		ON assignments(actor, is_active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES - Shared between the root store and open transactions
// =============================================================================

type queries struct {
	q querier
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *queries) SaveConstruction(ctx context.Context, c *engine.Construction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO constructions (id, name, start_date, end_date, budget, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, start_date = excluded.start_date,
			end_date = excluded.end_date, budget = excluded.budget,
			status = excluded.status
	`, c.ID, c.Name, c.StartDate.String(), c.EndDate.String(), c.Budget.String(), c.Status)
	if err != nil {
		return fmt.Errorf("failed to save construction: %w", err)
	}
	return nil
}

func (s *queries) SaveCatalog(ctx context.Context, c *engine.Catalog) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO catalogs (id, construction_id, name, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			construction_id = excluded.construction_id,
			name = excluded.name, is_active = excluded.is_active
	`, c.ID, c.ConstructionID, c.Name, c.Active)
	if err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}

func (s *queries) SaveWorkItem(ctx context.Context, w *engine.WorkItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO work_items (id, catalog_id, name, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			catalog_id = excluded.catalog_id, name = excluded.name,
			is_active = excluded.is_active
	`, w.ID, w.CatalogID, w.Name, w.Active)
	if err != nil {
		return fmt.Errorf("failed to save work item: %w", err)
	}
	return nil
}

func (s *queries) SaveConcept(ctx context.Context, c *engine.Concept) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO concepts
			(id, catalog_id, work_item_id, description, unit, quantity, unit_price, classification, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			catalog_id = excluded.catalog_id, work_item_id = excluded.work_item_id,
			description = excluded.description, unit = excluded.unit,
			quantity = excluded.quantity, unit_price = excluded.unit_price,
			classification = excluded.classification, is_active = excluded.is_active
	`, c.ID, c.CatalogID, c.WorkItemID, c.Description, c.Unit,
		c.Quantity.String(), c.UnitPrice.String(), c.Classification, c.Active)
	if err != nil {
		return fmt.Errorf("failed to save concept: %w", err)
	}
	return nil
}

func (s *queries) Construction(ctx context.Context, id engine.ConstructionID) (*engine.Construction, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, start_date, end_date, budget, status
		FROM constructions WHERE id = ?
	`, id)

	var c engine.Construction
	var start, end, budget string
	err := row.Scan(&c.ID, &c.Name, &start, &end, &budget, &c.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan construction: %w", err)
	}
	if c.StartDate, err = engine.ParseDate(start); err != nil {
		return nil, err
	}
	if c.EndDate, err = engine.ParseDate(end); err != nil {
		return nil, err
	}
	if c.Budget, err = decimal.NewFromString(budget); err != nil {
		return nil, fmt.Errorf("bad budget for construction %s: %w", c.ID, err)
	}
	return &c, nil
}

const conceptColumns = `id, catalog_id, work_item_id, description, unit, quantity, unit_price, classification, is_active`

func (s *queries) Concept(ctx context.Context, id engine.ConceptID) (*engine.Concept, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+conceptColumns+` FROM concepts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query concept: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanConcept(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *queries) Concepts(ctx context.Context, filter engine.ConceptFilter) ([]engine.Concept, error) {
	query := `SELECT ` + conceptColumns + ` FROM concepts WHERE is_active = TRUE`
	var args []any
	if filter.ConceptID != nil {
		query += ` AND id = ?`
		args = append(args, *filter.ConceptID)
	}
	if filter.WorkItemID != nil {
		query += ` AND work_item_id = ?`
		args = append(args, *filter.WorkItemID)
	}
	if filter.CatalogID != nil {
		query += ` AND catalog_id = ?`
		args = append(args, *filter.CatalogID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	var concepts []engine.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

func scanConcept(rows *sql.Rows) (engine.Concept, error) {
	var c engine.Concept
	var quantity, unitPrice string
	err := rows.Scan(&c.ID, &c.CatalogID, &c.WorkItemID, &c.Description, &c.Unit,
		&quantity, &unitPrice, &c.Classification, &c.Active)
	if err != nil {
		return c, fmt.Errorf("failed to scan concept: %w", err)
	}
	if c.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return c, fmt.Errorf("bad quantity for concept %s: %w", c.ID, err)
	}
	if c.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return c, fmt.Errorf("bad unit price for concept %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *queries) ConstructionIDs(ctx context.Context, filter engine.ConceptFilter) ([]engine.ConstructionID, error) {
	query := `
		SELECT DISTINCT cat.construction_id
		FROM concepts c
		JOIN catalogs cat ON cat.id = c.catalog_id
		WHERE c.is_active = TRUE`
	var args []any
	if filter.ConceptID != nil {
		query += ` AND c.id = ?`
		args = append(args, *filter.ConceptID)
	}
	if filter.WorkItemID != nil {
		query += ` AND c.work_item_id = ?`
		args = append(args, *filter.WorkItemID)
	}
	if filter.CatalogID != nil {
		query += ` AND c.catalog_id = ?`
		args = append(args, *filter.CatalogID)
	}
	query += ` ORDER BY cat.construction_id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query construction ids: %w", err)
	}
	defer rows.Close()

	var ids []engine.ConstructionID
	for rows.Next() {
		var id engine.ConstructionID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *queries) ConstructionForConcept(ctx context.Context, id engine.ConceptID) (engine.ConstructionID, error) {
	var constructionID engine.ConstructionID
	err := s.q.QueryRowContext(ctx, `
		SELECT cat.construction_id
		FROM concepts c JOIN catalogs cat ON cat.id = c.catalog_id
		WHERE c.id = ?
	`, id).Scan(&constructionID)
	if err == sql.ErrNoRows {
		return "", &engine.NotFoundError{Entity: "concept", ID: string(id)}
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve construction: %w", err)
	}
	return constructionID, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *queries) SaveSchedule(ctx context.Context, sc *engine.Schedule) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO schedules (id, construction_id, name, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			construction_id = excluded.construction_id, name = excluded.name,
			description = excluded.description, is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, sc.ID, sc.ConstructionID, sc.Name, sc.Description, sc.Active,
		sc.CreatedAt.UTC().Format(time.RFC3339), sc.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

const scheduleColumns = `id, construction_id, name, description, is_active, created_at, updated_at`

func (s *queries) Schedule(ctx context.Context, id engine.ScheduleID) (*engine.Schedule, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sc, err := scanSchedule(rows)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *queries) Schedules(ctx context.Context, filter engine.ScheduleFilter) ([]engine.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE 1=1`
	var args []any
	if filter.ConstructionID != nil {
		query += ` AND construction_id = ?`
		args = append(args, *filter.ConstructionID)
	}
	if filter.Active != nil {
		query += ` AND is_active = ?`
		args = append(args, *filter.Active)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return s.querySchedules(ctx, query, args...)
}

func (s *queries) ActiveSchedules(ctx context.Context, constructions []engine.ConstructionID) ([]engine.Schedule, error) {
	if len(constructions) == 0 {
		return nil, nil
	}
	query := `SELECT ` + scheduleColumns + ` FROM schedules
		WHERE is_active = TRUE AND construction_id IN (` + placeholders(len(constructions)) + `)
		ORDER BY created_at ASC, id ASC`
	args := make([]any, len(constructions))
	for i, id := range constructions {
		args[i] = id
	}
	return s.querySchedules(ctx, query, args...)
}

func (s *queries) querySchedules(ctx context.Context, query string, args ...any) ([]engine.Schedule, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []engine.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func scanSchedule(rows *sql.Rows) (engine.Schedule, error) {
	var sc engine.Schedule
	var createdAt, updatedAt string
	err := rows.Scan(&sc.ID, &sc.ConstructionID, &sc.Name, &sc.Description, &sc.Active, &createdAt, &updatedAt)
	if err != nil {
		return sc, fmt.Errorf("failed to scan schedule: %w", err)
	}
	sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return sc, nil
}

func (s *queries) SaveActivity(ctx context.Context, a *engine.Activity) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO activities (id, schedule_id, name, description, start_date, end_date, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schedule_id = excluded.schedule_id, name = excluded.name,
			description = excluded.description, start_date = excluded.start_date,
			end_date = excluded.end_date, progress = excluded.progress
	`, a.ID, a.ScheduleID, a.Name, a.Description,
		a.Window.Start.String(), a.Window.End.String(), a.Progress.String())
	if err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}
	return nil
}

const activityColumns = `id, schedule_id, name, description, start_date, end_date, progress`

func (s *queries) Activity(ctx context.Context, id engine.ActivityID) (*engine.Activity, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *queries) DeleteActivity(ctx context.Context, id engine.ActivityID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM activity_concepts WHERE activity_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete activity links: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	return nil
}

func (s *queries) Activities(ctx context.Context, scheduleID engine.ScheduleID) ([]engine.Activity, error) {
	return s.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE schedule_id = ?
		ORDER BY start_date ASC, id ASC
	`, scheduleID)
}

func (s *queries) ActivitiesInWindow(ctx context.Context, scheduleID engine.ScheduleID, window engine.Period) ([]engine.Activity, error) {
	return s.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE schedule_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC
	`, scheduleID, window.End.String(), window.Start.String())
}

func (s *queries) queryActivities(ctx context.Context, query string, args ...any) ([]engine.Activity, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []engine.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func scanActivity(rows *sql.Rows) (engine.Activity, error) {
	var a engine.Activity
	var start, end, progress string
	err := rows.Scan(&a.ID, &a.ScheduleID, &a.Name, &a.Description, &start, &end, &progress)
	if err != nil {
		return a, fmt.Errorf("failed to scan activity: %w", err)
	}
	if a.Window.Start, err = engine.ParseDate(start); err != nil {
		return a, err
	}
	if a.Window.End, err = engine.ParseDate(end); err != nil {
		return a, err
	}
	if a.Progress, err = decimal.NewFromString(progress); err != nil {
		return a, fmt.Errorf("bad progress for activity %s: %w", a.ID, err)
	}
	return a, nil
}

func (s *queries) LinkConcept(ctx context.Context, activityID engine.ActivityID, conceptID engine.ConceptID) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO activity_concepts (activity_id, concept_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, activityID, conceptID)
	if err != nil {
		return false, fmt.Errorf("failed to link concept: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *queries) UnlinkConcepts(ctx context.Context, activityID engine.ActivityID, conceptIDs []engine.ConceptID) (int, error) {
	if len(conceptIDs) == 0 {
		return 0, nil
	}
	args := []any{activityID}
	for _, id := range conceptIDs {
		args = append(args, id)
	}
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM activity_concepts
		WHERE activity_id = ? AND concept_id IN (`+placeholders(len(conceptIDs))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink concepts: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *queries) ActivityConceptIDs(ctx context.Context, activityID engine.ActivityID) ([]engine.ConceptID, error) {
	return s.queryConceptIDs(ctx, `
		SELECT concept_id FROM activity_concepts
		WHERE activity_id = ? ORDER BY concept_id ASC
	`, activityID)
}

func (s *queries) ScheduleConceptIDs(ctx context.Context, scheduleID engine.ScheduleID) ([]engine.ConceptID, error) {
	return s.queryConceptIDs(ctx, `
		SELECT DISTINCT ac.concept_id
		FROM activity_concepts ac
		JOIN activities a ON a.id = ac.activity_id
		WHERE a.schedule_id = ?
		ORDER BY ac.concept_id ASC
	`, scheduleID)
}

func (s *queries) queryConceptIDs(ctx context.Context, query string, args ...any) ([]engine.ConceptID, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query concept ids: %w", err)
	}
	defer rows.Close()

	var ids []engine.ConceptID
	for rows.Next() {
		var id engine.ConceptID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// PHYSICALS
// =============================================================================

func (s *queries) SavePhysical(ctx context.Context, p *engine.Physical) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO physicals (id, concept_id, volume, date, status, comments)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume = excluded.volume, status = excluded.status,
			comments = excluded.comments
	`, p.ID, p.ConceptID, p.Volume.String(), p.Date.String(), p.Status, p.Comments)
	if err != nil {
		return fmt.Errorf("failed to save physical: %w", err)
	}
	return nil
}

const physicalColumns = `id, concept_id, volume, date, status, comments`

func (s *queries) Physical(ctx context.Context, id engine.PhysicalID) (*engine.Physical, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+physicalColumns+` FROM physicals WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query physical: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPhysical(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *queries) DeletePhysical(ctx context.Context, id engine.PhysicalID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM physical_status_history WHERE physical_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM physicals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete physical: %w", err)
	}
	return nil
}

func (s *queries) Physicals(ctx context.Context, filter engine.PhysicalFilter) ([]engine.Physical, error) {
	query := `
		SELECT p.id, p.concept_id, p.volume, p.date, p.status, p.comments
		FROM physicals p
		JOIN concepts c ON c.id = p.concept_id
		JOIN catalogs cat ON cat.id = c.catalog_id
		WHERE 1=1`
	var args []any
	if filter.Concept.ConceptID != nil {
		query += ` AND p.concept_id = ?`
		args = append(args, *filter.Concept.ConceptID)
	}
	if filter.Concept.WorkItemID != nil {
		query += ` AND c.work_item_id = ?`
		args = append(args, *filter.Concept.WorkItemID)
	}
	if filter.Concept.CatalogID != nil {
		query += ` AND c.catalog_id = ?`
		args = append(args, *filter.Concept.CatalogID)
	}
	if filter.Status != nil {
		query += ` AND p.status = ?`
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		query += ` AND p.date >= ?`
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		query += ` AND p.date <= ?`
		args = append(args, filter.To.String())
	}
	if filter.Constructions != nil {
		if len(filter.Constructions) == 0 {
			return nil, nil
		}
		query += ` AND cat.construction_id IN (` + placeholders(len(filter.Constructions)) + `)`
		for _, id := range filter.Constructions {
			args = append(args, id)
		}
	}
	query += ` ORDER BY p.date ASC, p.id ASC`

	return s.queryPhysicals(ctx, query, args...)
}

func (s *queries) queryPhysicals(ctx context.Context, query string, args ...any) ([]engine.Physical, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query physicals: %w", err)
	}
	defer rows.Close()

	var physicals []engine.Physical
	for rows.Next() {
		p, err := scanPhysical(rows)
		if err != nil {
			return nil, err
		}
		physicals = append(physicals, p)
	}
	return physicals, rows.Err()
}

func scanPhysical(rows *sql.Rows) (engine.Physical, error) {
	var p engine.Physical
	var volume, date string
	err := rows.Scan(&p.ID, &p.ConceptID, &volume, &date, &p.Status, &p.Comments)
	if err != nil {
		return p, fmt.Errorf("failed to scan physical: %w", err)
	}
	if p.Volume, err = decimal.NewFromString(volume); err != nil {
		return p, fmt.Errorf("bad volume for physical %s: %w", p.ID, err)
	}
	if p.Date, err = engine.ParseDate(date); err != nil {
		return p, err
	}
	return p, nil
}

// AppendStatusChange inserts an audit row. Append-only: there is no
// update or delete path for history.
func (s *queries) AppendStatusChange(ctx context.Context, change engine.StatusChange) error {
	var changedBy any
	if change.ChangedBy != nil {
		changedBy = string(*change.ChangedBy)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO physical_status_history
			(id, physical_id, previous_status, new_status, changed_at, changed_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`, change.ID, change.PhysicalID, change.Previous, change.New,
		change.ChangedAt.UTC().Format(time.RFC3339Nano), changedBy)
	if err != nil {
		return fmt.Errorf("failed to append status change: %w", err)
	}
	return nil
}

func (s *queries) StatusHistory(ctx context.Context, id engine.PhysicalID) ([]engine.StatusChange, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, physical_id, previous_status, new_status, changed_at, changed_by
		FROM physical_status_history
		WHERE physical_id = ?
		ORDER BY changed_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var changes []engine.StatusChange
	for rows.Next() {
		var change engine.StatusChange
		var changedAt string
		var changedBy sql.NullString
		if err := rows.Scan(&change.ID, &change.PhysicalID, &change.Previous, &change.New, &changedAt, &changedBy); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		change.ChangedAt, _ = time.Parse(time.RFC3339Nano, changedAt)
		if changedBy.Valid {
			actor := engine.ActorID(changedBy.String)
			change.ChangedBy = &actor
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func (s *queries) ApprovedVolumes(ctx context.Context, conceptIDs []engine.ConceptID, period *engine.Period) (map[engine.ConceptID]decimal.Decimal, error) {
	result := make(map[engine.ConceptID]decimal.Decimal)
	if len(conceptIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT concept_id, volume FROM physicals
		WHERE status = ? AND concept_id IN (` + placeholders(len(conceptIDs)) + `)`
	args := []any{engine.PhysicalApproved}
	for _, id := range conceptIDs {
		args = append(args, id)
	}
	if period != nil {
		query += ` AND date >= ? AND date <= ?`
		args = append(args, period.Start.String(), period.End.String())
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved volumes: %w", err)
	}
	defer rows.Close()

	// Decimals sum in Go, not SQL.
	for rows.Next() {
		var conceptID engine.ConceptID
		var volume string
		if err := rows.Scan(&conceptID, &volume); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(volume)
		if err != nil {
			return nil, fmt.Errorf("bad volume for concept %s: %w", conceptID, err)
		}
		result[conceptID] = result[conceptID].Add(v)
	}
	return result, rows.Err()
}

func (s *queries) ApprovedPhysicals(ctx context.Context, conceptIDs []engine.ConceptID, period engine.Period) ([]engine.Physical, error) {
	if len(conceptIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + physicalColumns + ` FROM physicals
		WHERE status = ? AND concept_id IN (` + placeholders(len(conceptIDs)) + `)
		  AND date >= ? AND date <= ?
		ORDER BY date ASC, id ASC`
	args := []any{engine.PhysicalApproved}
	for _, id := range conceptIDs {
		args = append(args, id)
	}
	args = append(args, period.Start.String(), period.End.String())
	return s.queryPhysicals(ctx, query, args...)
}

func (s *queries) Approvals(ctx context.Context, period *engine.Period) ([]engine.Approval, error) {
	query := `
		SELECT h.physical_id, p.concept_id, p.date, h.changed_at
		FROM physical_status_history h
		JOIN physicals p ON p.id = h.physical_id
		WHERE h.previous_status = ? AND h.new_status = ?`
	args := []any{engine.PhysicalPending, engine.PhysicalApproved}
	if period != nil {
		query += ` AND p.date >= ? AND p.date <= ?`
		args = append(args, period.Start.String(), period.End.String())
	}
	query += ` ORDER BY h.changed_at ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []engine.Approval
	for rows.Next() {
		var a engine.Approval
		var date, changedAt string
		if err := rows.Scan(&a.PhysicalID, &a.ConceptID, &date, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		if a.SubmittedOn, err = engine.ParseDate(date); err != nil {
			return nil, err
		}
		a.ChangedAt, _ = time.Parse(time.RFC3339Nano, changedAt)
		a.ApprovedOn = engine.DateOf(a.ChangedAt)
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// =============================================================================
// ESTIMATIONS
// =============================================================================

func (s *queries) SaveEstimation(ctx context.Context, e *engine.Estimation) error {
	var scheduleID, createdBy any
	if e.ScheduleID != nil {
		scheduleID = string(*e.ScheduleID)
	}
	if e.CreatedBy != nil {
		createdBy = string(*e.CreatedBy)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO estimations
			(id, name, period_start, period_end, total_amount, status, construction_id,
			 is_planned, based_on_schedule, schedule_id, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, period_start = excluded.period_start,
			period_end = excluded.period_end, total_amount = excluded.total_amount,
			status = excluded.status, is_planned = excluded.is_planned,
			based_on_schedule = excluded.based_on_schedule,
			schedule_id = excluded.schedule_id, updated_at = excluded.updated_at
	`, e.ID, e.Name, e.Period.Start.String(), e.Period.End.String(),
		e.TotalAmount.String(), e.Status, e.ConstructionID,
		e.Planned, e.BasedOnSchedule, scheduleID, createdBy,
		e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save estimation: %w", err)
	}
	return nil
}

const estimationColumns = `id, name, period_start, period_end, total_amount, status, construction_id,
	is_planned, based_on_schedule, schedule_id, created_by, created_at, updated_at`

func (s *queries) Estimation(ctx context.Context, id engine.EstimationID) (*engine.Estimation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+estimationColumns+` FROM estimations WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEstimation(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *queries) Estimations(ctx context.Context, filter engine.EstimationFilter) ([]engine.Estimation, error) {
	query := `SELECT ` + estimationColumns + ` FROM estimations WHERE 1=1`
	var args []any
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Planned != nil {
		query += ` AND is_planned = ?`
		args = append(args, *filter.Planned)
	}
	if filter.ConstructionID != nil {
		query += ` AND construction_id = ?`
		args = append(args, *filter.ConstructionID)
	}
	if filter.Constructions != nil {
		if len(filter.Constructions) == 0 {
			return nil, nil
		}
		query += ` AND construction_id IN (` + placeholders(len(filter.Constructions)) + `)`
		for _, id := range filter.Constructions {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return s.queryEstimations(ctx, query, args...)
}

func (s *queries) PlannedEstimations(ctx context.Context, window engine.Period) ([]engine.Estimation, error) {
	return s.queryEstimations(ctx, `
		SELECT `+estimationColumns+` FROM estimations
		WHERE is_planned = TRUE AND period_start <= ? AND period_end >= ?
		ORDER BY created_at ASC, id ASC
	`, window.End.String(), window.Start.String())
}

func (s *queries) queryEstimations(ctx context.Context, query string, args ...any) ([]engine.Estimation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimations: %w", err)
	}
	defer rows.Close()

	var estimations []engine.Estimation
	for rows.Next() {
		e, err := scanEstimation(rows)
		if err != nil {
			return nil, err
		}
		estimations = append(estimations, e)
	}
	return estimations, rows.Err()
}

func scanEstimation(rows *sql.Rows) (engine.Estimation, error) {
	var e engine.Estimation
	var start, end, total, createdAt, updatedAt string
	var scheduleID, createdBy sql.NullString
	err := rows.Scan(&e.ID, &e.Name, &start, &end, &total, &e.Status, &e.ConstructionID,
		&e.Planned, &e.BasedOnSchedule, &scheduleID, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan estimation: %w", err)
	}
	if e.Period.Start, err = engine.ParseDate(start); err != nil {
		return e, err
	}
	if e.Period.End, err = engine.ParseDate(end); err != nil {
		return e, err
	}
	if e.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return e, fmt.Errorf("bad total for estimation %s: %w", e.ID, err)
	}
	if scheduleID.Valid {
		id := engine.ScheduleID(scheduleID.String)
		e.ScheduleID = &id
	}
	if createdBy.Valid {
		actor := engine.ActorID(createdBy.String)
		e.CreatedBy = &actor
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

func (s *queries) DeleteEstimation(ctx context.Context, id engine.EstimationID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM estimation_details WHERE estimation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete details: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM estimations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete estimation: %w", err)
	}
	return nil
}

func (s *queries) SaveDetail(ctx context.Context, d *engine.EstimationDetail) error {
	var executionDate, activityID any
	if d.ExecutionDate != nil {
		executionDate = d.ExecutionDate.String()
	}
	if d.ActivityID != nil {
		activityID = string(*d.ActivityID)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO estimation_details
			(id, estimation_id, concept_id, volume, amount, execution_date,
			 commitment_status, activity_id, imported_from_schedule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume = excluded.volume, amount = excluded.amount,
			execution_date = excluded.execution_date,
			commitment_status = excluded.commitment_status
	`, d.ID, d.EstimationID, d.ConceptID, d.Volume.String(), d.Amount.String(),
		executionDate, d.CommitmentStatus, activityID, d.ImportedFromSchedule)
	if err != nil {
		return fmt.Errorf("failed to save detail: %w", err)
	}
	return nil
}

const detailColumns = `id, estimation_id, concept_id, volume, amount, execution_date,
	commitment_status, activity_id, imported_from_schedule`

func (s *queries) Detail(ctx context.Context, id engine.DetailID) (*engine.EstimationDetail, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+detailColumns+` FROM estimation_details WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	d, err := scanDetail(rows)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *queries) Details(ctx context.Context, estimationID engine.EstimationID) ([]engine.EstimationDetail, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+detailColumns+` FROM estimation_details
		WHERE estimation_id = ? ORDER BY id ASC
	`, estimationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	defer rows.Close()

	var details []engine.EstimationDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func scanDetail(rows *sql.Rows) (engine.EstimationDetail, error) {
	var d engine.EstimationDetail
	var volume, amount string
	var executionDate, activityID sql.NullString
	err := rows.Scan(&d.ID, &d.EstimationID, &d.ConceptID, &volume, &amount,
		&executionDate, &d.CommitmentStatus, &activityID, &d.ImportedFromSchedule)
	if err != nil {
		return d, fmt.Errorf("failed to scan detail: %w", err)
	}
	if d.Volume, err = decimal.NewFromString(volume); err != nil {
		return d, fmt.Errorf("bad volume for detail %s: %w", d.ID, err)
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return d, fmt.Errorf("bad amount for detail %s: %w", d.ID, err)
	}
	if executionDate.Valid {
		date, err := engine.ParseDate(executionDate.String)
		if err != nil {
			return d, err
		}
		d.ExecutionDate = &date
	}
	if activityID.Valid {
		id := engine.ActivityID(activityID.String)
		d.ActivityID = &id
	}
	return d, nil
}

func (s *queries) DeleteDetail(ctx context.Context, id engine.DetailID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM estimation_details WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detail: %w", err)
	}
	return nil
}

func (s *queries) SumDetailAmounts(ctx context.Context, estimationID engine.EstimationID) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT amount FROM estimation_details WHERE estimation_id = ?`, estimationID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query detail amounts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad detail amount: %w", err)
		}
		total = total.Add(a)
	}
	return total, rows.Err()
}

func (s *queries) FinancialExecution(ctx context.Context, conceptIDs []engine.ConceptID) (map[engine.ConceptID]engine.FinancialTotal, error) {
	result := make(map[engine.ConceptID]engine.FinancialTotal)
	if len(conceptIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT d.concept_id, d.volume, d.amount
		FROM estimation_details d
		JOIN estimations e ON e.id = d.estimation_id
		WHERE e.status IN (?, ?) AND d.concept_id IN (` + placeholders(len(conceptIDs)) + `)`
	args := []any{engine.EstimationApproved, engine.EstimationPaid}
	for _, id := range conceptIDs {
		args = append(args, id)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query financial execution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var conceptID engine.ConceptID
		var volume, amount string
		if err := rows.Scan(&conceptID, &volume, &amount); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(volume)
		if err != nil {
			return nil, fmt.Errorf("bad volume for concept %s: %w", conceptID, err)
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount for concept %s: %w", conceptID, err)
		}
		total := result[conceptID]
		total.Volume = total.Volume.Add(v)
		total.Amount = total.Amount.Add(a)
		result[conceptID] = total
	}
	return result, rows.Err()
}

func (s *queries) FinancialAmountWithin(ctx context.Context, conceptIDs []engine.ConceptID, window engine.Period) (decimal.Decimal, error) {
	if len(conceptIDs) == 0 {
		return decimal.Zero, nil
	}

	query := `
		SELECT d.amount
		FROM estimation_details d
		JOIN estimations e ON e.id = d.estimation_id
		WHERE e.status IN (?, ?)
		  AND e.period_start >= ? AND e.period_end <= ?
		  AND d.concept_id IN (` + placeholders(len(conceptIDs)) + `)`
	args := []any{engine.EstimationApproved, engine.EstimationPaid,
		window.Start.String(), window.End.String()}
	for _, id := range conceptIDs {
		args = append(args, id)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query financial amounts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad detail amount: %w", err)
		}
		total = total.Add(a)
	}
	return total, rows.Err()
}

// =============================================================================
// COMMITMENTS
// =============================================================================

func (s *queries) SaveCommitment(ctx context.Context, c *engine.CommitmentTracking) error {
	var actualDate, actualVolume, variance any
	if c.ActualDate != nil {
		actualDate = c.ActualDate.String()
	}
	if c.ActualVolume != nil {
		actualVolume = c.ActualVolume.String()
	}
	if c.Variance != nil {
		variance = c.Variance.String()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO commitment_tracking
			(id, detail_id, planned_date, actual_date, planned_volume, actual_volume,
			 variance_percentage, status, comments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			planned_date = excluded.planned_date, actual_date = excluded.actual_date,
			planned_volume = excluded.planned_volume, actual_volume = excluded.actual_volume,
			variance_percentage = excluded.variance_percentage, status = excluded.status,
			comments = excluded.comments, updated_at = excluded.updated_at
	`, c.ID, c.DetailID, c.PlannedDate.String(), actualDate, c.PlannedVolume.String(),
		actualVolume, variance, c.Status, c.Comments,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save commitment: %w", err)
	}
	return nil
}

const commitmentColumns = `id, detail_id, planned_date, actual_date, planned_volume, actual_volume,
	variance_percentage, status, comments, created_at, updated_at`

func (s *queries) Commitment(ctx context.Context, id engine.CommitmentID) (*engine.CommitmentTracking, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+commitmentColumns+` FROM commitment_tracking WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanCommitment(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *queries) Commitments(ctx context.Context, filter engine.CommitmentFilter) ([]engine.CommitmentTracking, error) {
	query := `
		SELECT ct.id, ct.detail_id, ct.planned_date, ct.actual_date, ct.planned_volume,
		       ct.actual_volume, ct.variance_percentage, ct.status, ct.comments,
		       ct.created_at, ct.updated_at
		FROM commitment_tracking ct`
	var args []any
	if filter.EstimationID != nil {
		query += ` JOIN estimation_details d ON d.id = ct.detail_id`
	}
	query += ` WHERE 1=1`
	if filter.DetailID != nil {
		query += ` AND ct.detail_id = ?`
		args = append(args, *filter.DetailID)
	}
	if filter.EstimationID != nil {
		query += ` AND d.estimation_id = ?`
		args = append(args, *filter.EstimationID)
	}
	if filter.Status != nil {
		query += ` AND ct.status = ?`
		args = append(args, *filter.Status)
	}
	if filter.PlannedFrom != nil {
		query += ` AND ct.planned_date >= ?`
		args = append(args, filter.PlannedFrom.String())
	}
	if filter.PlannedTo != nil {
		query += ` AND ct.planned_date <= ?`
		args = append(args, filter.PlannedTo.String())
	}
	query += ` ORDER BY ct.planned_date ASC, ct.id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitments: %w", err)
	}
	defer rows.Close()

	var commitments []engine.CommitmentTracking
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

func scanCommitment(rows *sql.Rows) (engine.CommitmentTracking, error) {
	var c engine.CommitmentTracking
	var plannedDate, plannedVolume, createdAt, updatedAt string
	var actualDate, actualVolume, variance sql.NullString
	err := rows.Scan(&c.ID, &c.DetailID, &plannedDate, &actualDate, &plannedVolume,
		&actualVolume, &variance, &c.Status, &c.Comments, &createdAt, &updatedAt)
	if err != nil {
		return c, fmt.Errorf("failed to scan commitment: %w", err)
	}
	if c.PlannedDate, err = engine.ParseDate(plannedDate); err != nil {
		return c, err
	}
	if c.PlannedVolume, err = decimal.NewFromString(plannedVolume); err != nil {
		return c, fmt.Errorf("bad planned volume for commitment %s: %w", c.ID, err)
	}
	if actualDate.Valid {
		date, err := engine.ParseDate(actualDate.String)
		if err != nil {
			return c, err
		}
		c.ActualDate = &date
	}
	if actualVolume.Valid {
		v, err := decimal.NewFromString(actualVolume.String)
		if err != nil {
			return c, fmt.Errorf("bad actual volume for commitment %s: %w", c.ID, err)
		}
		c.ActualVolume = &v
	}
	if variance.Valid {
		v, err := decimal.NewFromString(variance.String)
		if err != nil {
			return c, fmt.Errorf("bad variance for commitment %s: %w", c.ID, err)
		}
		c.Variance = &v
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

// =============================================================================
// CHAINS
// =============================================================================

// ReplaceChain swaps the stored chain for the schedule in one shot.
func (s *queries) ReplaceChain(ctx context.Context, chain engine.ActivityChain) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM activity_chain_links WHERE schedule_id = ?`, chain.ScheduleID); err != nil {
		return fmt.Errorf("failed to clear chain links: %w", err)
	}
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM activity_chains WHERE schedule_id = ?`, chain.ScheduleID); err != nil {
		return fmt.Errorf("failed to clear chain: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO activity_chains (schedule_id, calculated_at, notes)
		VALUES (?, ?, ?)
	`, chain.ScheduleID, chain.CalculatedAt.UTC().Format(time.RFC3339), chain.Notes); err != nil {
		return fmt.Errorf("failed to save chain: %w", err)
	}
	for _, link := range chain.Links {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO activity_chain_links (schedule_id, activity_id, sequence_order)
			VALUES (?, ?, ?)
		`, chain.ScheduleID, link.ActivityID, link.SequenceOrder); err != nil {
			return fmt.Errorf("failed to save chain link: %w", err)
		}
	}
	return nil
}

func (s *queries) Chain(ctx context.Context, scheduleID engine.ScheduleID) (*engine.ActivityChain, error) {
	var chain engine.ActivityChain
	var calculatedAt string
	err := s.q.QueryRowContext(ctx, `
		SELECT schedule_id, calculated_at, notes
		FROM activity_chains WHERE schedule_id = ?
	`, scheduleID).Scan(&chain.ScheduleID, &calculatedAt, &chain.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chain: %w", err)
	}
	chain.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)

	rows, err := s.q.QueryContext(ctx, `
		SELECT activity_id, sequence_order
		FROM activity_chain_links
		WHERE schedule_id = ?
		ORDER BY sequence_order ASC
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link engine.ChainLink
		if err := rows.Scan(&link.ActivityID, &link.SequenceOrder); err != nil {
			return nil, err
		}
		chain.Links = append(chain.Links, link)
	}
	return &chain, rows.Err()
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (s *queries) SaveAssignment(ctx context.Context, a engine.Assignment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO assignments (id, actor, construction_id, role, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(actor, construction_id) DO UPDATE SET
			role = excluded.role, is_active = excluded.is_active
	`, a.ID, a.Actor, a.ConstructionID, a.Role, a.Active)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

func (s *queries) AssignedConstructions(ctx context.Context, actor engine.ActorID) ([]engine.ConstructionID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT construction_id FROM assignments
		WHERE actor = ? AND is_active = TRUE
		ORDER BY construction_id ASC
	`, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var ids []engine.ConstructionID
	for rows.Next() {
		var id engine.ConstructionID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *queries) IsAssigned(ctx context.Context, actor engine.ActorID, construction engine.ConstructionID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assignments
		WHERE actor = ? AND construction_id = ? AND is_active = TRUE
	`, actor, construction).Scan(&count)
	return count > 0, err
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
