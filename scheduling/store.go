/*
store.go - Persistence interfaces for the scheduling engine

PURPOSE:
  Defines the boundary between the engine and storage. Two implementations
  exist: scheduling/store (in-memory, for tests and ephemeral servers) and
  store/sqlite (durable).

KEY INTERFACES:
  Directory:     Read-only lookup of companies, equipment, centers, teams, users
  IntervalIndex: Per-resource bookings with atomic check-and-insert
  RequestStore:  Maintenance request rows
  AuditLog:      Append-only work logs and reassignment events

APPEND-ONLY CONTRACT:
  AuditLog has no Update or Delete. Entries are written once.

ATOMIC RESERVE:
  IntervalIndex.Reserve must check capacity and insert under one critical
  section per resource. There is no separate "check then write" path in
  the engine; IsFree is advisory and only used for proposals.

MISSING RECORDS:
  Get* lookups return (nil, nil) when the record does not exist.

SEE ALSO:
  - scheduling/store/memory.go: In-memory implementation
  - store/sqlite/sqlite.go: SQLite implementation
*/
package scheduling

import (
	"context"
	"time"
)

// =============================================================================
// DIRECTORY - Read-only resource lookups
// =============================================================================

type Directory interface {
	GetCompany(ctx context.Context, id CompanyID) (*Company, error)
	GetDepartment(ctx context.Context, id DepartmentID) (*Department, error)
	GetCategory(ctx context.Context, id CategoryID) (*EquipmentCategory, error)
	GetEquipment(ctx context.Context, id EquipmentID) (*Equipment, error)
	ListEquipment(ctx context.Context, company CompanyID) ([]Equipment, error)
	GetWorkCenter(ctx context.Context, id WorkCenterID) (*WorkCenter, error)
	ListWorkCenters(ctx context.Context, company CompanyID) ([]WorkCenter, error)
	GetTeam(ctx context.Context, id TeamID) (*Team, error)
	ListTeams(ctx context.Context, company CompanyID) ([]Team, error)
	GetUser(ctx context.Context, id UserID) (*User, error)
}

// DirectoryWriter seeds directory records. The engine never calls it; the
// excluded CRUD layer and the demo scenarios do.
type DirectoryWriter interface {
	SaveCompany(ctx context.Context, c Company) error
	SaveDepartment(ctx context.Context, d Department) error
	SaveCategory(ctx context.Context, c EquipmentCategory) error
	SaveEquipment(ctx context.Context, e Equipment) error
	SaveWorkCenter(ctx context.Context, wc WorkCenter) error
	SaveTeam(ctx context.Context, t Team) error
	SaveUser(ctx context.Context, u User) error
}

// =============================================================================
// INTERVAL INDEX - Bookings per resource
// =============================================================================

type IntervalIndex interface {
	// IsFree reports whether one more booking of res fits in window.
	IsFree(ctx context.Context, res ResourceRef, window Interval, capacity int) (bool, error)

	// Reserve atomically checks capacity and inserts a booking.
	// Returns *ConflictError when the resource is full.
	Reserve(ctx context.Context, res ResourceRef, window Interval, capacity int, owner RequestID) (BookingID, error)

	// Release removes a booking. Returns ErrBookingNotFound for unknown ids.
	Release(ctx context.Context, id BookingID) error

	// Bookings lists the bookings of res that overlap window.
	Bookings(ctx context.Context, res ResourceRef, window Interval) ([]Booking, error)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	TechnicianID *UserID

	// Requests created by the user OR owned by the department.
	CreatedBy    *UserID
	DepartmentID *DepartmentID

	Statuses    []Status
	EquipmentID *EquipmentID

	// Requests whose window overlaps [From, To).
	From *time.Time
	To   *time.Time
}

// Matches applies the filter to a request in memory.
func (f RequestFilter) Matches(r Request) bool {
	if f.TechnicianID != nil && r.TechnicianID != *f.TechnicianID {
		return false
	}
	if f.CreatedBy != nil || f.DepartmentID != nil {
		owned := f.CreatedBy != nil && r.CreatedBy == *f.CreatedBy
		inDept := f.DepartmentID != nil && r.DepartmentID != nil && *r.DepartmentID == *f.DepartmentID
		if !owned && !inDept {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.EquipmentID != nil && r.EquipmentID != *f.EquipmentID {
		return false
	}
	w := r.Window()
	if f.From != nil && !w.End.After(*f.From) {
		return false
	}
	if f.To != nil && !w.Start.Before(*f.To) {
		return false
	}
	return true
}

type RequestStore interface {
	// NextRequestID allocates an id before bookings are taken, so bookings
	// can name their owner.
	NextRequestID(ctx context.Context) (RequestID, error)
	InsertRequest(ctx context.Context, r Request) error
	UpdateRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, id RequestID) (*Request, error)
	// ListRequests returns matches newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// =============================================================================
// AUDIT LOG - Append-only
// =============================================================================

type AuditLog interface {
	// AppendWorkLog assigns the entry an id and persists it.
	AppendWorkLog(ctx context.Context, entry WorkLogEntry) (WorkLogEntry, error)
	AppendReassignment(ctx context.Context, event ReassignmentEvent) (ReassignmentEvent, error)

	// WorkLogs returns a request's entries ordered by CreatedAt, then id.
	WorkLogs(ctx context.Context, id RequestID) ([]WorkLogEntry, error)
	Reassignments(ctx context.Context, id RequestID) ([]ReassignmentEvent, error)
}

// Store bundles everything a backend provides.
type Store interface {
	Directory
	DirectoryWriter
	IntervalIndex
	RequestStore
	AuditLog
}
