/*
Package scheduling provides the maintenance scheduling and assignment engine.

PURPOSE:
  This package owns the hard part of the maintenance portal: deciding whether
  a technician and a work center are free for a window, committing the
  assignment atomically, and governing the request afterwards through
  work-log updates and reassignments with a full audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Directory records: Company, Department, Equipment, WorkCenter, Team, User
  - MaintenanceRequest: the scheduled job and its lifecycle status
  - WorkLogEntry / ReassignmentEvent: immutable audit records
  - Booking: an interval held on a work center or technician
  - Caller: the pre-authenticated identity performing an operation

DESIGN PRINCIPLES:
  1. Directory records are read-only inputs; the engine never edits them
  2. Audit records are append-only; nothing updates or deletes them
  3. Bookings are the only shared mutable state contended across requests
  4. Type Safety: distinct ID types keep team ids out of technician slots

SEE ALSO:
  - interval.go: Half-open windows and peak-overlap counting
  - resolver.go: Availability proposals
  - manager.go: Request lifecycle
  - store.go: Persistence interfaces
*/
package scheduling

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID int64
type DepartmentID int64
type CategoryID int64
type EquipmentID int64
type WorkCenterID int64
type TeamID int64
type UserID int64
type RequestID int64
type WorkLogID int64
type EventID int64

// BookingID identifies a reservation in the interval index.
type BookingID string

// =============================================================================
// ROLES & CALLER
// =============================================================================

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleUser       Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTechnician, RoleUser:
		return true
	}
	return false
}

// Caller is the identity an operation runs as. Authentication happens
// upstream; the engine trusts these fields.
type Caller struct {
	ID           UserID
	Role         Role
	CompanyID    CompanyID
	DepartmentID *DepartmentID
}

// CanSchedule reports whether the caller may create or cancel requests.
func (c Caller) CanSchedule() bool {
	return c.Role == RoleAdmin || c.Role == RoleUser
}

// =============================================================================
// RESOURCE DIRECTORY RECORDS
// =============================================================================

type Company struct {
	ID       CompanyID
	Name     string
	Location string
}

type Department struct {
	ID        DepartmentID
	Name      string
	CompanyID CompanyID
}

// EquipmentCategory groups equipment. DefaultTechnician is a hint only.
type EquipmentCategory struct {
	ID                CategoryID
	Name              string
	DefaultTechnician *UserID
}

type Equipment struct {
	ID           EquipmentID
	Name         string
	SerialNumber string
	CompanyID    CompanyID
	CategoryID   CategoryID
	DepartmentID *DepartmentID
	EmployeeID   *UserID
}

// WorkCenter is a location that can host up to Capacity concurrent jobs.
type WorkCenter struct {
	ID             WorkCenterID
	Name           string
	Code           string
	CompanyID      CompanyID
	CostPerHour    decimal.Decimal
	Capacity       int
	TimeEfficiency decimal.Decimal // percent
	OEETarget      decimal.Decimal // percent
}

// EffectiveCapacity never reports less than one slot.
func (wc WorkCenter) EffectiveCapacity() int {
	if wc.Capacity < 1 {
		return 1
	}
	return wc.Capacity
}

// EstimatedCost is the cost of holding the center for the given hours.
func (wc WorkCenter) EstimatedCost(hours int) decimal.Decimal {
	return wc.CostPerHour.Mul(decimal.NewFromInt(int64(hours)))
}

// Team is a maintenance team. Members keeps the declared order, which is the
// order first-fit selection walks.
type Team struct {
	ID        TeamID
	Name      string
	CompanyID CompanyID
	Members   []UserID
}

// HasMember reports whether the user belongs to the team.
func (t Team) HasMember(id UserID) bool {
	for _, m := range t.Members {
		if m == id {
			return true
		}
	}
	return false
}

type User struct {
	ID           UserID
	Email        string
	Role         Role
	CompanyID    CompanyID
	DepartmentID *DepartmentID
}

// Caller converts a directory user into the identity operations run as.
func (u User) Caller() Caller {
	return Caller{ID: u.ID, Role: u.Role, CompanyID: u.CompanyID, DepartmentID: u.DepartmentID}
}

// =============================================================================
// MAINTENANCE REQUEST
// =============================================================================

type MaintenanceType string

const (
	MaintenancePreventive MaintenanceType = "preventive"
	MaintenanceCorrective MaintenanceType = "corrective"
)

func (t MaintenanceType) Valid() bool {
	return t == MaintenancePreventive || t == MaintenanceCorrective
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Request is a scheduled maintenance job. WorkCenterID, ScheduledStart and
// DurationHours never change after creation; TeamID and TechnicianID change
// only through an applied reassignment.
type Request struct {
	ID             RequestID
	Title          string
	Description    string
	Type           MaintenanceType
	Priority       Priority
	Status         Status
	CompanyID      CompanyID
	DepartmentID   *DepartmentID
	EquipmentID    EquipmentID
	WorkCenterID   WorkCenterID
	TeamID         TeamID
	TechnicianID   UserID
	ScheduledStart time.Time
	DurationHours  int
	WorkCenterHold BookingID
	TechnicianHold BookingID
	CreatedBy      UserID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Window returns the interval the request occupies.
func (r Request) Window() Interval {
	return WindowFor(r.ScheduledStart, r.DurationHours)
}

// =============================================================================
// AUDIT RECORDS
// =============================================================================

type WorkLogStatus string

const (
	WorkLogInProgress WorkLogStatus = "in_progress"
	WorkLogBlocked    WorkLogStatus = "blocked"
	WorkLogCompleted  WorkLogStatus = "completed"
)

func (s WorkLogStatus) Valid() bool {
	switch s {
	case WorkLogInProgress, WorkLogBlocked, WorkLogCompleted:
		return true
	}
	return false
}

// RequestStatus is the lifecycle status a work log moves its request to.
func (s WorkLogStatus) RequestStatus() Status {
	switch s {
	case WorkLogBlocked:
		return StatusBlocked
	case WorkLogCompleted:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

type WorkLogEntry struct {
	ID           WorkLogID
	RequestID    RequestID
	TechnicianID UserID
	Note         string
	Status       WorkLogStatus
	CreatedAt    time.Time
}

type ReassignmentOutcome string

const (
	ReassignmentApplied  ReassignmentOutcome = "applied"
	ReassignmentRejected ReassignmentOutcome = "rejected"
)

// ReassignmentEvent records a reassignment attempt, applied or not.
type ReassignmentEvent struct {
	ID            EventID
	RequestID     RequestID
	RequestedBy   UserID
	OldTeam       TeamID
	NewTeam       TeamID
	OldTechnician UserID
	NewTechnician *UserID
	Reason        string
	Outcome       ReassignmentOutcome
	CreatedAt     time.Time
}

func (e ReassignmentEvent) Applied() bool { return e.Outcome == ReassignmentApplied }

// =============================================================================
// BOOKINGS
// =============================================================================

type ResourceKind string

const (
	ResourceWorkCenter ResourceKind = "work_center"
	ResourceTechnician ResourceKind = "technician"
)

// ResourceRef names one bookable resource.
type ResourceRef struct {
	Kind ResourceKind
	ID   int64
}

func WorkCenterRef(id WorkCenterID) ResourceRef {
	return ResourceRef{Kind: ResourceWorkCenter, ID: int64(id)}
}

func TechnicianRef(id UserID) ResourceRef {
	return ResourceRef{Kind: ResourceTechnician, ID: int64(id)}
}

// Booking holds one capacity unit of a resource over a window.
type Booking struct {
	ID        BookingID
	Resource  ResourceRef
	Window    Interval
	RequestID RequestID
}
