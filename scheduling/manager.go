/*
manager.go - Maintenance request lifecycle

PURPOSE:
  Owns every state change of a maintenance request:
  1. Create: re-validate a proposal and reserve center + technician
  2. PostWorkLog: the assigned technician reports progress
  3. RequestReassignment: move the job to another team for the same window
  4. Cancel: release the bookings and retire the request

COMMIT FLOW (Create):
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  validate ──▶ reserve center ──▶ reserve technician ──▶ insert   │
  │     │               │                    │                 │     │
  │     ▼               ▼                    ▼                 ▼     │
  │  400 error     409 stale        release center,     release both │
  │  (nothing       (nothing          409 stale          return error│
  │   reserved)     reserved)                                        │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

  All input validation runs before the first reservation. After a partial
  reservation every failure path releases what it took.

SERIALIZATION:
  Bookings are serialized per resource by the IntervalIndex. Work logs and
  reassignments are serialized per request id by a keyed mutex here; two
  different requests never contend.

REASSIGNMENT ORDER:
  reserve new technician ──▶ update request ──▶ release old technician
  If the update fails the new booking is released and the old one was
  never touched.

SEE ALSO:
  - resolver.go: Proposals and first-fit selection
  - status.go: Allowed transitions
*/
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	store    Store
	resolver *Resolver
	logger   *zap.Logger
	metrics  Metrics
	clock    func() time.Time
	locks    *xsync.Map[RequestID, *sync.Mutex]
}

type ManagerOption func(*Manager)

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock replaces time.Now. Tests use it to pin "now" before fixtures.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		logger:  zap.NewNop(),
		metrics: NopMetrics{},
		clock:   time.Now,
		locks:   xsync.NewMap[RequestID, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resolver = &Resolver{Directory: store, Index: store, Metrics: m.metrics, Clock: m.clock}
	return m
}

// Resolver exposes the manager's Availability Resolver.
func (m *Manager) Resolver() *Resolver { return m.resolver }

func (m *Manager) lock(id RequestID) func() {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

// forget drops the lock of a request that reached a terminal state. Callers
// hold the lock; later callers see the terminal status and never mutate.
func (m *Manager) forget(id RequestID) {
	m.locks.Delete(id)
}

// LockCount reports how many requests currently have a lock entry.
func (m *Manager) LockCount() int { return m.locks.Size() }

// =============================================================================
// PROPOSE
// =============================================================================

// Propose runs the resolver on behalf of a caller who may schedule work.
// Non-admin callers are confined to their own company's equipment.
func (m *Manager) Propose(ctx context.Context, caller Caller, equipmentID EquipmentID, teamID TeamID, start time.Time, hours int) (*Proposal, error) {
	if !caller.CanSchedule() {
		return nil, fmt.Errorf("%w: role %q cannot schedule maintenance", ErrForbidden, caller.Role)
	}
	proposal, err := m.resolver.Propose(ctx, equipmentID, teamID, start, hours)
	if err != nil {
		return nil, err
	}
	if err := checkCallerCompany(caller, "equipment", int64(equipmentID), proposal.Equipment.CompanyID); err != nil {
		return nil, err
	}
	return proposal, nil
}

func checkCallerCompany(caller Caller, resource string, id int64, company CompanyID) error {
	if caller.Role == RoleAdmin || caller.CompanyID == company {
		return nil
	}
	return &CrossCompanyError{Resource: resource, ResourceID: id, Expected: caller.CompanyID, Actual: company}
}

// =============================================================================
// CREATE
// =============================================================================

// CreateInput is a confirmed proposal plus the request's descriptive fields.
type CreateInput struct {
	Title          string
	Description    string
	Type           MaintenanceType
	Priority       Priority // defaults to medium
	EquipmentID    EquipmentID
	TeamID         TeamID
	WorkCenterID   WorkCenterID
	TechnicianID   UserID
	ScheduledStart time.Time
	DurationHours  int
}

func (in *CreateInput) validate(now time.Time) error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "is required")
	}
	if !in.Type.Valid() {
		return invalid("maintenance_type", "must be preventive or corrective, got %q", in.Type)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return invalid("priority", "unknown priority %q", in.Priority)
	}
	return validateWindow(in.ScheduledStart, in.DurationHours, now)
}

// Create commits a proposal. The chosen center and technician are
// re-validated by reservation; losing a race returns *AvailabilityStaleError
// and leaves nothing reserved.
func (m *Manager) Create(ctx context.Context, caller Caller, in CreateInput) (*Request, error) {
	if !caller.CanSchedule() {
		return nil, fmt.Errorf("%w: role %q cannot create maintenance requests", ErrForbidden, caller.Role)
	}

	// 1. Validate everything before touching the index
	if err := in.validate(m.clock()); err != nil {
		return nil, err
	}
	equipment, team, err := m.resolver.resolveScope(ctx, in.EquipmentID, in.TeamID)
	if err != nil {
		return nil, err
	}
	if err := checkCallerCompany(caller, "equipment", int64(equipment.ID), equipment.CompanyID); err != nil {
		return nil, err
	}
	center, err := m.loadWorkCenter(ctx, in.WorkCenterID, equipment.CompanyID)
	if err != nil {
		return nil, err
	}
	technician, err := m.loadTechnician(ctx, in.TechnicianID, *team)
	if err != nil {
		return nil, err
	}

	id, err := m.store.NextRequestID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate request id: %w", err)
	}
	window := WindowFor(in.ScheduledStart, in.DurationHours)

	// 2. Reserve the work center, then the technician
	centerRef := WorkCenterRef(center.ID)
	centerHold, err := m.store.Reserve(ctx, centerRef, window, center.EffectiveCapacity(), id)
	if err != nil {
		return nil, m.reserveFailed(err, centerRef, window)
	}

	techRef := TechnicianRef(technician.ID)
	techHold, err := m.store.Reserve(ctx, techRef, window, 1, id)
	if err != nil {
		m.release(ctx, id, centerHold)
		return nil, m.reserveFailed(err, techRef, window)
	}

	// 3. Insert the request
	now := m.clock()
	department := equipment.DepartmentID
	if department == nil {
		department = caller.DepartmentID
	}
	req := Request{
		ID:             id,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Type:           in.Type,
		Priority:       in.Priority,
		Status:         StatusScheduled,
		CompanyID:      equipment.CompanyID,
		DepartmentID:   department,
		EquipmentID:    equipment.ID,
		WorkCenterID:   center.ID,
		TeamID:         team.ID,
		TechnicianID:   technician.ID,
		ScheduledStart: in.ScheduledStart,
		DurationHours:  in.DurationHours,
		WorkCenterHold: centerHold,
		TechnicianHold: techHold,
		CreatedBy:      caller.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.InsertRequest(ctx, req); err != nil {
		m.release(ctx, id, centerHold, techHold)
		return nil, fmt.Errorf("failed to insert request: %w", err)
	}

	m.metrics.StatusChanged(StatusScheduled)
	m.logger.Info("maintenance request scheduled",
		zap.Int64("request_id", int64(id)),
		zap.Int64("work_center_id", int64(center.ID)),
		zap.Int64("technician_id", int64(technician.ID)),
		zap.Stringer("window", window),
	)
	return &req, nil
}

func (m *Manager) loadWorkCenter(ctx context.Context, id WorkCenterID, company CompanyID) (*WorkCenter, error) {
	wc, err := m.store.GetWorkCenter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load work center: %w", err)
	}
	if wc == nil {
		return nil, invalid("work_center", "unknown work center %d", id)
	}
	if wc.CompanyID != company {
		return nil, &CrossCompanyError{Resource: "work_center", ResourceID: int64(id), Expected: company, Actual: wc.CompanyID}
	}
	return wc, nil
}

func (m *Manager) loadTechnician(ctx context.Context, id UserID, team Team) (*User, error) {
	if !team.HasMember(id) {
		return nil, invalid("assigned_technician", "user %d is not a member of team %d", id, team.ID)
	}
	user, err := m.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load technician: %w", err)
	}
	if user == nil || user.Role != RoleTechnician {
		return nil, invalid("assigned_technician", "user %d is not a technician", id)
	}
	if user.CompanyID != team.CompanyID {
		return nil, &CrossCompanyError{Resource: "technician", ResourceID: int64(id), Expected: team.CompanyID, Actual: user.CompanyID}
	}
	return user, nil
}

// reserveFailed records a conflict and converts it for the caller.
func (m *Manager) reserveFailed(err error, res ResourceRef, window Interval) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		m.metrics.ReservationConflict(res.Kind)
		m.logger.Info("reservation lost",
			zap.String("resource", string(res.Kind)),
			zap.Int64("resource_id", res.ID),
			zap.Stringer("window", window),
		)
		return staleFrom(err, res, window)
	}
	return fmt.Errorf("failed to reserve %s %d: %w", res.Kind, res.ID, err)
}

// release drops bookings, logging failures. Unknown ids are already free.
func (m *Manager) release(ctx context.Context, owner RequestID, holds ...BookingID) {
	for _, hold := range holds {
		if hold == "" {
			continue
		}
		err := m.store.Release(ctx, hold)
		switch {
		case err == nil:
		case errors.Is(err, ErrBookingNotFound):
			m.logger.Warn("booking already released",
				zap.Int64("request_id", int64(owner)), zap.String("booking_id", string(hold)))
		default:
			m.logger.Error("failed to release booking",
				zap.Int64("request_id", int64(owner)), zap.String("booking_id", string(hold)), zap.Error(err))
		}
	}
}

// =============================================================================
// WORK LOGS
// =============================================================================

// PostWorkLog appends a work-log entry by the assigned technician and moves
// the request to the entry's status. A completed entry retires the request
// and frees its bookings.
func (m *Manager) PostWorkLog(ctx context.Context, caller Caller, id RequestID, note string, status WorkLogStatus) (*Request, *WorkLogEntry, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, nil, invalid("note", "is required")
	}
	if !status.Valid() {
		return nil, nil, invalid("status", "must be in_progress, blocked or completed, got %q", status)
	}

	req, unlock, err := m.lockRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	if err := m.checkAssigned(req, caller); err != nil {
		return nil, nil, err
	}

	next := status.RequestStatus()
	if !req.Status.CanTransition(next) {
		return nil, nil, invalid("status", "cannot move from %s to %s", req.Status, next)
	}

	// 1. Commit the new status; bookings are only released once the entry is logged
	now := m.clock()
	prev := *req
	from := req.Status
	req.Status = next
	req.UpdatedAt = now
	if next != StatusCompleted {
		req.Priority = PriorityCritical
	}
	var holds []BookingID
	if next.Terminal() {
		holds = []BookingID{req.WorkCenterHold, req.TechnicianHold}
		req.WorkCenterHold, req.TechnicianHold = "", ""
	}
	if err := m.store.UpdateRequest(ctx, *req); err != nil {
		return nil, nil, fmt.Errorf("failed to update request: %w", err)
	}

	// 2. Journal the entry, restoring the request if that fails
	entry, err := m.store.AppendWorkLog(ctx, WorkLogEntry{
		RequestID:    id,
		TechnicianID: caller.ID,
		Note:         note,
		Status:       status,
		CreatedAt:    now,
	})
	if err != nil {
		if rerr := m.store.UpdateRequest(ctx, prev); rerr != nil {
			m.logger.Error("failed to restore request after work log failure",
				zap.Int64("request_id", int64(id)), zap.Error(rerr))
		}
		return nil, nil, fmt.Errorf("failed to append work log: %w", err)
	}

	// 3. Free the bookings of a retired request
	m.release(ctx, id, holds...)
	if next.Terminal() {
		m.forget(id)
	}

	m.transitioned(id, from, next)
	return req, &entry, nil
}

// loadRequest returns ErrRequestNotFound when missing.
func (m *Manager) loadRequest(ctx context.Context, id RequestID) (*Request, error) {
	req, err := m.store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
	}
	return req, nil
}

// lockRequest takes the request's lock and loads it. Unknown ids never get
// a lock entry, and a terminal request's entry is dropped.
func (m *Manager) lockRequest(ctx context.Context, id RequestID) (*Request, func(), error) {
	if _, err := m.loadRequest(ctx, id); err != nil {
		return nil, nil, err
	}
	unlock := m.lock(id)
	req, err := m.loadRequest(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if req.Status.Terminal() {
		m.forget(id)
	}
	return req, unlock, nil
}

// checkAssigned rejects terminal requests first, then anyone but the
// assigned technician.
func (m *Manager) checkAssigned(req *Request, caller Caller) error {
	if req.Status.Terminal() {
		return &TerminalStateError{RequestID: req.ID, Status: req.Status}
	}
	if caller.ID != req.TechnicianID {
		return &NotAssignedTechnicianError{RequestID: req.ID, Caller: caller.ID, Assigned: req.TechnicianID}
	}
	return nil
}

func (m *Manager) transitioned(id RequestID, from, to Status) {
	m.metrics.StatusChanged(to)
	m.logger.Info("maintenance request transitioned",
		zap.Int64("request_id", int64(id)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// =============================================================================
// REASSIGNMENT
// =============================================================================

// RequestReassignment moves a request to newTeam for its original window.
// When no member of the new team is free the attempt is recorded as
// rejected and returned without error; the assignment is unchanged.
func (m *Manager) RequestReassignment(ctx context.Context, caller Caller, id RequestID, newTeam TeamID, reason string) (*ReassignmentEvent, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}

	req, unlock, err := m.lockRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := m.checkAssigned(req, caller); err != nil {
		return nil, err
	}

	team, err := m.store.GetTeam(ctx, newTeam)
	if err != nil {
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	if team == nil {
		return nil, invalid("new_team", "unknown maintenance team %d", newTeam)
	}
	equipment, err := m.store.GetEquipment(ctx, req.EquipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load equipment: %w", err)
	}
	company := req.CompanyID
	if equipment != nil {
		company = equipment.CompanyID
	}
	if team.CompanyID != company {
		return nil, &CrossCompanyError{Resource: "maintenance_team", ResourceID: int64(team.ID), Expected: company, Actual: team.CompanyID}
	}

	event := ReassignmentEvent{
		RequestID:     id,
		RequestedBy:   caller.ID,
		OldTeam:       req.TeamID,
		NewTeam:       team.ID,
		OldTechnician: req.TechnicianID,
		Reason:        reason,
		CreatedAt:     m.clock(),
	}

	window := req.Window()
	candidate, err := m.resolver.firstFit(ctx, *team, window, req.TechnicianID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return m.recordReassignment(ctx, event, ReassignmentRejected)
	}

	// Reserve the new technician before letting go of the old one
	newHold := req.TechnicianHold
	if candidate.ID != req.TechnicianID {
		ref := TechnicianRef(candidate.ID)
		newHold, err = m.store.Reserve(ctx, ref, window, 1, id)
		if err != nil {
			stale := m.reserveFailed(err, ref, window)
			if !IsRetryable(stale) {
				return nil, stale
			}
			rejected, recErr := m.recordReassignment(ctx, event, ReassignmentRejected)
			if recErr != nil {
				return nil, recErr
			}
			return rejected, stale
		}
	}

	oldHold := req.TechnicianHold
	req.TeamID = team.ID
	req.TechnicianID = candidate.ID
	req.TechnicianHold = newHold
	req.Priority = PriorityCritical
	req.UpdatedAt = event.CreatedAt
	if err := m.store.UpdateRequest(ctx, *req); err != nil {
		if newHold != oldHold {
			m.release(ctx, id, newHold)
		}
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	if newHold != oldHold {
		m.release(ctx, id, oldHold)
	}

	event.NewTechnician = &candidate.ID
	return m.recordReassignment(ctx, event, ReassignmentApplied)
}

func (m *Manager) recordReassignment(ctx context.Context, event ReassignmentEvent, outcome ReassignmentOutcome) (*ReassignmentEvent, error) {
	event.Outcome = outcome
	saved, err := m.store.AppendReassignment(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record reassignment: %w", err)
	}
	m.metrics.ReassignmentRecorded(outcome)
	fields := []zap.Field{
		zap.Int64("request_id", int64(event.RequestID)),
		zap.Int64("old_team", int64(event.OldTeam)),
		zap.Int64("new_team", int64(event.NewTeam)),
		zap.String("outcome", string(outcome)),
	}
	if event.NewTechnician != nil {
		fields = append(fields, zap.Int64("new_technician", int64(*event.NewTechnician)))
	}
	m.logger.Info("reassignment recorded", fields...)
	return &saved, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel retires a non-terminal request and frees both bookings.
func (m *Manager) Cancel(ctx context.Context, caller Caller, id RequestID) (*Request, error) {
	if !caller.CanSchedule() {
		return nil, fmt.Errorf("%w: role %q cannot cancel maintenance requests", ErrForbidden, caller.Role)
	}

	req, unlock, err := m.lockRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !Visible(caller, *req) {
		return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
	}
	if req.Status.Terminal() {
		return nil, &TerminalStateError{RequestID: id, Status: req.Status}
	}

	from := req.Status
	holds := []BookingID{req.WorkCenterHold, req.TechnicianHold}
	req.Status = StatusCancelled
	req.WorkCenterHold, req.TechnicianHold = "", ""
	req.UpdatedAt = m.clock()
	if err := m.store.UpdateRequest(ctx, *req); err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	m.release(ctx, id, holds...)
	m.forget(id)

	m.transitioned(id, from, StatusCancelled)
	return req, nil
}

// =============================================================================
// QUERIES - Role-scoped reads
// =============================================================================

// Visible reports whether caller may see req. Admins see everything,
// technicians their assignments, users what they created or what belongs
// to their department.
func Visible(caller Caller, req Request) bool {
	switch caller.Role {
	case RoleAdmin:
		return true
	case RoleTechnician:
		return req.TechnicianID == caller.ID
	case RoleUser:
		if req.CreatedBy == caller.ID {
			return true
		}
		return caller.DepartmentID != nil && req.DepartmentID != nil && *caller.DepartmentID == *req.DepartmentID
	}
	return false
}

// Get returns a request the caller may see. Invisible requests are
// reported as not found.
func (m *Manager) Get(ctx context.Context, caller Caller, id RequestID) (*Request, error) {
	req, err := m.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(caller, *req) {
		return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
	}
	return req, nil
}

// List narrows filter to the caller's visibility and returns matches
// newest first.
func (m *Manager) List(ctx context.Context, caller Caller, filter RequestFilter) ([]Request, error) {
	switch caller.Role {
	case RoleAdmin:
	case RoleTechnician:
		id := caller.ID
		filter.TechnicianID = &id
	case RoleUser:
		id := caller.ID
		filter.CreatedBy = &id
		filter.DepartmentID = caller.DepartmentID
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, caller.Role)
	}
	return m.store.ListRequests(ctx, filter)
}

// WorkLogs returns the request's timeline, oldest first.
func (m *Manager) WorkLogs(ctx context.Context, caller Caller, id RequestID) ([]WorkLogEntry, error) {
	if _, err := m.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return m.store.WorkLogs(ctx, id)
}

// Reassignments returns every reassignment attempt, oldest first.
func (m *Manager) Reassignments(ctx context.Context, caller Caller, id RequestID) ([]ReassignmentEvent, error) {
	if _, err := m.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return m.store.Reassignments(ctx, id)
}
