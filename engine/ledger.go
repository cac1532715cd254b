/*
ledger.go - Physical progress ledger

PURPOSE:
  Owns the lifecycle of physical advance records:
  1. Creation: validate and register a PENDING record
  2. Review: move between PENDING / APPROVED / REJECTED
  3. Audit: every effective transition appends exactly one history row
  4. Metrics: approved volume sums and approval latency

STATUS FLOW:
  ┌─────────────────────────────────────────────────────────┐
  │                                                         │
  │   Field crew       ┌──────────┐   Reviewer decides      │
  │   reports     ──▶  │ PENDING  │ ──▶ APPROVED / REJECTED │
  │   volume           └──────────┘                         │
  │                                                         │
  │   Any pair of distinct statuses is a legal transition   │
  │   under the default policy (REJECTED ──▶ APPROVED       │
  │   included); the policy object is the single place      │
  │   where that rule lives.                                │
  │                                                         │
  └─────────────────────────────────────────────────────────┘

AUDIT INVARIANT:
  old != new  ──▶ exactly one history row, written in the same
                  transaction as the status itself
  old == new  ──▶ no-op, zero rows

SCOPING:
  Every operation takes the acting user. Actors only see and touch
  records whose concept belongs to a construction they are assigned
  to; reads outside that scope behave as not-found, writes fail with
  a permission error. The empty actor is the system itself and is
  unrestricted.

SEE ALSO:
  - reconcile.go: consumes ApprovedVolume as the only physical read path
  - store.go: PhysicalStore, AssignmentStore
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSITION POLICY - Which status moves are legal
// =============================================================================

// TransitionPolicy decides whether a status move is allowed. The default
// permits every pair of distinct valid statuses; stricter deployments can
// swap in their own table.
type TransitionPolicy map[PhysicalStatus][]PhysicalStatus

// OpenTransitions allows any valid status to move to any other.
var OpenTransitions = TransitionPolicy{
	PhysicalPending:  {PhysicalApproved, PhysicalRejected},
	PhysicalApproved: {PhysicalPending, PhysicalRejected},
	PhysicalRejected: {PhysicalPending, PhysicalApproved},
}

func (p TransitionPolicy) Allows(from, to PhysicalStatus) bool {
	for _, s := range p[from] {
		if s == to {
			return true
		}
	}
	return false
}

// =============================================================================
// LEDGER - Physical record service
// =============================================================================

type Ledger struct {
	Store  TxStore
	Policy TransitionPolicy

	now func() time.Time
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store, Policy: OpenTransitions, now: time.Now}
}

// CreatePhysicalInput carries the caller-supplied fields of a new record.
// Date defaults to today when zero.
type CreatePhysicalInput struct {
	ConceptID ConceptID
	Volume    decimal.Decimal
	Date      Date
	Comments  string
}

// Create registers a new PENDING record for the concept.
func (l *Ledger) Create(ctx context.Context, actor ActorID, in CreatePhysicalInput) (*Physical, error) {
	if !in.Volume.IsPositive() {
		return nil, invalidf("volume", "must be greater than zero, got %s", in.Volume)
	}

	concept, err := l.Store.Concept(ctx, in.ConceptID)
	if err != nil {
		return nil, fmt.Errorf("loading concept: %w", err)
	}
	if concept == nil {
		return nil, notFound("concept", string(in.ConceptID))
	}

	if err := l.authorizeConcept(ctx, actor, in.ConceptID); err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = Today()
	}

	physical := &Physical{
		ID:        PhysicalID(uuid.NewString()),
		ConceptID: in.ConceptID,
		Volume:    in.Volume,
		Date:      date,
		Status:    PhysicalPending,
		Comments:  in.Comments,
	}
	if err := l.Store.SavePhysical(ctx, physical); err != nil {
		return nil, fmt.Errorf("saving physical record: %w", err)
	}
	return physical, nil
}

// Get returns the record, treating records outside the actor's assigned
// constructions as absent.
func (l *Ledger) Get(ctx context.Context, actor ActorID, id PhysicalID) (*Physical, error) {
	physical, err := l.Store.Physical(ctx, id)
	if err != nil {
		return nil, err
	}
	if physical == nil {
		return nil, notFound("physical record", string(id))
	}
	visible, err := l.inScope(ctx, actor, physical.ConceptID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, notFound("physical record", string(id))
	}
	return physical, nil
}

// List returns records matching the filter, restricted to the actor's
// assigned constructions.
func (l *Ledger) List(ctx context.Context, actor ActorID, filter PhysicalFilter) ([]Physical, error) {
	if actor != "" {
		constructions, err := l.Store.AssignedConstructions(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("loading assignments: %w", err)
		}
		// Stores treat a nil restriction as unrestricted; an actor with
		// no assignments must see nothing, not everything.
		if constructions == nil {
			constructions = []ConstructionID{}
		}
		filter.Constructions = constructions
	}
	return l.Store.Physicals(ctx, filter)
}

// UpdatePhysicalInput carries the editable fields. Nil fields are left as
// they are; the record date and concept are immutable.
type UpdatePhysicalInput struct {
	Volume   *decimal.Decimal
	Comments *string
}

// Update edits volume and comments on a PENDING record. Reviewed records
// are frozen: their volumes already feed executed totals.
func (l *Ledger) Update(ctx context.Context, actor ActorID, id PhysicalID, in UpdatePhysicalInput) (*Physical, error) {
	physical, err := l.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := l.authorizeConcept(ctx, actor, physical.ConceptID); err != nil {
		return nil, err
	}
	if physical.Status != PhysicalPending {
		return nil, fmt.Errorf("%w: record %s is %s, only PENDING records can be edited", ErrConflict, id, physical.Status)
	}

	if in.Volume != nil {
		if !in.Volume.IsPositive() {
			return nil, invalidf("volume", "must be greater than zero, got %s", in.Volume)
		}
		physical.Volume = *in.Volume
	}
	if in.Comments != nil {
		physical.Comments = *in.Comments
	}

	if err := l.Store.SavePhysical(ctx, physical); err != nil {
		return nil, fmt.Errorf("saving physical record: %w", err)
	}
	return physical, nil
}

// Delete removes a PENDING record. Reviewed records are kept for audit.
func (l *Ledger) Delete(ctx context.Context, actor ActorID, id PhysicalID) error {
	physical, err := l.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := l.authorizeConcept(ctx, actor, physical.ConceptID); err != nil {
		return err
	}
	if physical.Status != PhysicalPending {
		return fmt.Errorf("%w: record %s is %s, only PENDING records can be deleted", ErrConflict, id, physical.Status)
	}
	return l.Store.DeletePhysical(ctx, id)
}

// UpdateStatus moves the record to a new status. A same-status write is a
// no-op with zero history rows; an effective transition writes the status
// and exactly one audit row in the same transaction.
func (l *Ledger) UpdateStatus(ctx context.Context, actor ActorID, id PhysicalID, to PhysicalStatus) (*Physical, error) {
	if !ValidPhysicalStatus(to) {
		return nil, invalidf("status", "unknown status %q", to)
	}

	physical, err := l.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := l.authorizeConcept(ctx, actor, physical.ConceptID); err != nil {
		return nil, err
	}

	if physical.Status == to {
		return physical, nil
	}
	if !l.Policy.Allows(physical.Status, to) {
		return nil, fmt.Errorf("%w: transition %s -> %s is not allowed", ErrConflict, physical.Status, to)
	}

	from := physical.Status
	change := StatusChange{
		ID:         uuid.NewString(),
		PhysicalID: physical.ID,
		Previous:   from,
		New:        to,
		ChangedAt:  l.now(),
	}
	if actor != "" {
		a := actor
		change.ChangedBy = &a
	}

	err = l.Store.WithTx(ctx, func(s Store) error {
		physical.Status = to
		if err := s.SavePhysical(ctx, physical); err != nil {
			return fmt.Errorf("saving status: %w", err)
		}
		if err := s.AppendStatusChange(ctx, change); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
		return nil
	})
	if err != nil {
		physical.Status = from
		return nil, err
	}
	return physical, nil
}

// History returns the audit trail for a record, oldest first.
func (l *Ledger) History(ctx context.Context, actor ActorID, id PhysicalID) ([]StatusChange, error) {
	if _, err := l.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return l.Store.StatusHistory(ctx, id)
}

// =============================================================================
// METRICS - Approved volume and latency
// =============================================================================

// ApprovedVolume sums APPROVED volume per concept, optionally restricted
// to a date window. This is the only physical read path reconciliation
// uses.
func (l *Ledger) ApprovedVolume(ctx context.Context, conceptIDs []ConceptID, period *Period) (map[ConceptID]decimal.Decimal, error) {
	return l.Store.ApprovedVolumes(ctx, conceptIDs, period)
}

// ApprovalStats summarizes PENDING -> APPROVED transitions in a window.
type ApprovalStats struct {
	Approved int
	AvgDays  decimal.Decimal
}

// ApprovalLatency averages, over PENDING -> APPROVED history rows in the
// window, the whole-day gap between the record's report date and the
// approval. Zero stats when nothing qualifies.
func (l *Ledger) ApprovalLatency(ctx context.Context, period *Period) (ApprovalStats, error) {
	approvals, err := l.Store.Approvals(ctx, period)
	if err != nil {
		return ApprovalStats{}, fmt.Errorf("loading approvals: %w", err)
	}
	if len(approvals) == 0 {
		return ApprovalStats{AvgDays: decimal.Zero}, nil
	}

	total := decimal.Zero
	for _, a := range approvals {
		total = total.Add(decimal.NewFromInt(int64(a.DaysToApprove())))
	}
	return ApprovalStats{
		Approved: len(approvals),
		AvgDays:  total.Div(decimal.NewFromInt(int64(len(approvals)))),
	}, nil
}

// =============================================================================
// SCOPING HELPERS
// =============================================================================

// authorizeConcept rejects writes by actors not assigned to the concept's
// construction. The empty actor is unrestricted.
func (l *Ledger) authorizeConcept(ctx context.Context, actor ActorID, conceptID ConceptID) error {
	if actor == "" {
		return nil
	}
	construction, err := l.Store.ConstructionForConcept(ctx, conceptID)
	if err != nil {
		return fmt.Errorf("resolving construction: %w", err)
	}
	ok, err := l.Store.IsAssigned(ctx, actor, construction)
	if err != nil {
		return fmt.Errorf("checking assignment: %w", err)
	}
	if !ok {
		return &PermissionError{Actor: actor, Construction: construction}
	}
	return nil
}

// inScope reports whether the actor may see records for the concept.
func (l *Ledger) inScope(ctx context.Context, actor ActorID, conceptID ConceptID) (bool, error) {
	if actor == "" {
		return true, nil
	}
	construction, err := l.Store.ConstructionForConcept(ctx, conceptID)
	if err != nil {
		return false, fmt.Errorf("resolving construction: %w", err)
	}
	return l.Store.IsAssigned(ctx, actor, construction)
}
