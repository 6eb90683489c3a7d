// Package store provides in-memory implementations of the scheduling store
// interfaces.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements scheduling.Store. Directory, requests and the audit log
// share one RWMutex; the interval index locks per resource (see index.go).
type Memory struct {
	mu sync.RWMutex

	companies   map[scheduling.CompanyID]scheduling.Company
	departments map[scheduling.DepartmentID]scheduling.Department
	categories  map[scheduling.CategoryID]scheduling.EquipmentCategory
	equipment   map[scheduling.EquipmentID]scheduling.Equipment
	centers     map[scheduling.WorkCenterID]scheduling.WorkCenter
	teams       map[scheduling.TeamID]scheduling.Team
	users       map[scheduling.UserID]scheduling.User

	requests      map[scheduling.RequestID]scheduling.Request
	workLogs      map[scheduling.RequestID][]scheduling.WorkLogEntry
	reassignments map[scheduling.RequestID][]scheduling.ReassignmentEvent

	nextRequest atomic.Int64
	nextLog     atomic.Int64
	nextEvent   atomic.Int64

	slots    *xsync.Map[scheduling.ResourceRef, *slot]
	bookings *xsync.Map[scheduling.BookingID, scheduling.ResourceRef]
}

var _ scheduling.Store = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{}
	m.init()
	return m
}

func (m *Memory) init() {
	m.companies = make(map[scheduling.CompanyID]scheduling.Company)
	m.departments = make(map[scheduling.DepartmentID]scheduling.Department)
	m.categories = make(map[scheduling.CategoryID]scheduling.EquipmentCategory)
	m.equipment = make(map[scheduling.EquipmentID]scheduling.Equipment)
	m.centers = make(map[scheduling.WorkCenterID]scheduling.WorkCenter)
	m.teams = make(map[scheduling.TeamID]scheduling.Team)
	m.users = make(map[scheduling.UserID]scheduling.User)
	m.requests = make(map[scheduling.RequestID]scheduling.Request)
	m.workLogs = make(map[scheduling.RequestID][]scheduling.WorkLogEntry)
	m.reassignments = make(map[scheduling.RequestID][]scheduling.ReassignmentEvent)
	m.nextRequest.Store(0)
	m.nextLog.Store(0)
	m.nextEvent.Store(0)
	if m.slots == nil {
		m.slots = xsync.NewMap[scheduling.ResourceRef, *slot]()
		m.bookings = xsync.NewMap[scheduling.BookingID, scheduling.ResourceRef]()
		return
	}
	m.slots.Clear()
	m.bookings.Clear()
}

// Reset drops every record. Used when reloading demo scenarios.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func lookup[K comparable, V any](mu *sync.RWMutex, records map[K]V, id K) *V {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := records[id]
	if !ok {
		return nil
	}
	return &v
}

func (m *Memory) GetCompany(_ context.Context, id scheduling.CompanyID) (*scheduling.Company, error) {
	return lookup(&m.mu, m.companies, id), nil
}

func (m *Memory) GetDepartment(_ context.Context, id scheduling.DepartmentID) (*scheduling.Department, error) {
	return lookup(&m.mu, m.departments, id), nil
}

func (m *Memory) GetCategory(_ context.Context, id scheduling.CategoryID) (*scheduling.EquipmentCategory, error) {
	return lookup(&m.mu, m.categories, id), nil
}

func (m *Memory) GetEquipment(_ context.Context, id scheduling.EquipmentID) (*scheduling.Equipment, error) {
	return lookup(&m.mu, m.equipment, id), nil
}

func (m *Memory) GetWorkCenter(_ context.Context, id scheduling.WorkCenterID) (*scheduling.WorkCenter, error) {
	return lookup(&m.mu, m.centers, id), nil
}

func (m *Memory) GetUser(_ context.Context, id scheduling.UserID) (*scheduling.User, error) {
	return lookup(&m.mu, m.users, id), nil
}

func (m *Memory) GetTeam(_ context.Context, id scheduling.TeamID) (*scheduling.Team, error) {
	t := lookup(&m.mu, m.teams, id)
	if t != nil {
		t.Members = slices.Clone(t.Members)
	}
	return t, nil
}

func (m *Memory) ListEquipment(_ context.Context, company scheduling.CompanyID) ([]scheduling.Equipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.Equipment
	for _, e := range m.equipment {
		if e.CompanyID == company {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b scheduling.Equipment) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) ListWorkCenters(_ context.Context, company scheduling.CompanyID) ([]scheduling.WorkCenter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.WorkCenter
	for _, wc := range m.centers {
		if wc.CompanyID == company {
			out = append(out, wc)
		}
	}
	slices.SortFunc(out, func(a, b scheduling.WorkCenter) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) ListTeams(_ context.Context, company scheduling.CompanyID) ([]scheduling.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.Team
	for _, t := range m.teams {
		if t.CompanyID == company {
			t.Members = slices.Clone(t.Members)
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b scheduling.Team) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func save[K comparable, V any](mu *sync.RWMutex, records map[K]V, id K, v V) error {
	mu.Lock()
	defer mu.Unlock()
	records[id] = v
	return nil
}

func (m *Memory) SaveCompany(_ context.Context, c scheduling.Company) error {
	return save(&m.mu, m.companies, c.ID, c)
}

func (m *Memory) SaveDepartment(_ context.Context, d scheduling.Department) error {
	return save(&m.mu, m.departments, d.ID, d)
}

func (m *Memory) SaveCategory(_ context.Context, c scheduling.EquipmentCategory) error {
	return save(&m.mu, m.categories, c.ID, c)
}

func (m *Memory) SaveEquipment(_ context.Context, e scheduling.Equipment) error {
	return save(&m.mu, m.equipment, e.ID, e)
}

func (m *Memory) SaveWorkCenter(_ context.Context, wc scheduling.WorkCenter) error {
	return save(&m.mu, m.centers, wc.ID, wc)
}

// SaveTeam stores the team with duplicate members removed, first
// occurrence kept.
func (m *Memory) SaveTeam(_ context.Context, t scheduling.Team) error {
	t.Members = uniqueMembers(t.Members)
	return save(&m.mu, m.teams, t.ID, t)
}

func (m *Memory) SaveUser(_ context.Context, u scheduling.User) error {
	return save(&m.mu, m.users, u.ID, u)
}

func uniqueMembers(in []scheduling.UserID) []scheduling.UserID {
	seen := make(map[scheduling.UserID]bool, len(in))
	out := make([]scheduling.UserID, 0, len(in))
	for _, id := range in {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) NextRequestID(_ context.Context) (scheduling.RequestID, error) {
	return scheduling.RequestID(m.nextRequest.Add(1)), nil
}

func (m *Memory) InsertRequest(_ context.Context, r scheduling.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[r.ID]; exists {
		return &scheduling.ValidationError{Field: "id", Message: "request already exists"}
	}
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) UpdateRequest(_ context.Context, r scheduling.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[r.ID]; !exists {
		return scheduling.ErrRequestNotFound
	}
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id scheduling.RequestID) (*scheduling.Request, error) {
	return lookup(&m.mu, m.requests, id), nil
}

func (m *Memory) ListRequests(_ context.Context, filter scheduling.RequestFilter) ([]scheduling.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.Request
	for _, r := range m.requests {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b scheduling.Request) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// =============================================================================
// AUDIT LOG - Append-only
// =============================================================================

func (m *Memory) AppendWorkLog(_ context.Context, entry scheduling.WorkLogEntry) (scheduling.WorkLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = scheduling.WorkLogID(m.nextLog.Add(1))
	m.workLogs[entry.RequestID] = append(m.workLogs[entry.RequestID], entry)
	return entry, nil
}

func (m *Memory) AppendReassignment(_ context.Context, event scheduling.ReassignmentEvent) (scheduling.ReassignmentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = scheduling.EventID(m.nextEvent.Add(1))
	if event.NewTechnician != nil {
		tech := *event.NewTechnician
		event.NewTechnician = &tech
	}
	m.reassignments[event.RequestID] = append(m.reassignments[event.RequestID], event)
	return event, nil
}

func (m *Memory) WorkLogs(_ context.Context, id scheduling.RequestID) ([]scheduling.WorkLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.workLogs[id])
	slices.SortStableFunc(out, func(a, b scheduling.WorkLogEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) Reassignments(_ context.Context, id scheduling.RequestID) ([]scheduling.ReassignmentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.reassignments[id])
	slices.SortStableFunc(out, func(a, b scheduling.ReassignmentEvent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
