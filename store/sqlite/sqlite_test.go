package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearguard/maintenance-engine/scheduling"
	"github.com/gearguard/maintenance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var dec28 = time.Date(2025, 12, 28, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seed writes one company with team [5, 6] and a single work center.
func seed(t *testing.T, store *sqlite.Store) {
	ctx := context.Background()
	dept := scheduling.DepartmentID(3)
	require.NoError(t, store.SaveCompany(ctx, scheduling.Company{ID: 1, Name: "GearGuard Industries", Location: "Ahmedabad"}))
	require.NoError(t, store.SaveDepartment(ctx, scheduling.Department{ID: dept, Name: "Operations", CompanyID: 1}))
	require.NoError(t, store.SaveCategory(ctx, scheduling.EquipmentCategory{ID: 1, Name: "CNC"}))
	for _, u := range []scheduling.User{
		{ID: 5, Email: "tech5@gearguard.test", Role: scheduling.RoleTechnician, CompanyID: 1},
		{ID: 6, Email: "tech6@gearguard.test", Role: scheduling.RoleTechnician, CompanyID: 1},
		{ID: 7, Email: "ops@gearguard.test", Role: scheduling.RoleUser, CompanyID: 1, DepartmentID: &dept},
	} {
		require.NoError(t, store.SaveUser(ctx, u))
	}
	require.NoError(t, store.SaveTeam(ctx, scheduling.Team{ID: 10, Name: "Mechanical", CompanyID: 1, Members: []scheduling.UserID{5, 6}}))
	require.NoError(t, store.SaveWorkCenter(ctx, scheduling.WorkCenter{
		ID: 100, Name: "Assembly A", Code: "ASM-A", CompanyID: 1,
		CostPerHour: decimal.RequireFromString("450.50"), Capacity: 1,
		TimeEfficiency: decimal.NewFromInt(100), OEETarget: decimal.NewFromInt(85),
	}))
	require.NoError(t, store.SaveEquipment(ctx, scheduling.Equipment{ID: 200, Name: "CNC Mill", SerialNumber: "CNC-1", CompanyID: 1, CategoryID: 1, DepartmentID: &dept}))
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestDirectory_RoundTripsRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store)

	wc, err := store.GetWorkCenter(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, wc)
	assert.True(t, decimal.RequireFromString("450.50").Equal(wc.CostPerHour))
	assert.Equal(t, 1, wc.Capacity)

	eq, err := store.GetEquipment(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, eq.DepartmentID)
	assert.Equal(t, scheduling.DepartmentID(3), *eq.DepartmentID)
	assert.Nil(t, eq.EmployeeID)

	u, err := store.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, scheduling.RoleTechnician, u.Role)

	missing, err := store.GetCompany(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveTeam_KeepsDeclaredOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveTeam(ctx, scheduling.Team{ID: 1, Name: "T", CompanyID: 1, Members: []scheduling.UserID{9, 3, 9, 4}}))

	team, err := store.GetTeam(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []scheduling.UserID{9, 3, 4}, team.Members)

	// Saving again replaces the member list
	require.NoError(t, store.SaveTeam(ctx, scheduling.Team{ID: 1, Name: "T", CompanyID: 1, Members: []scheduling.UserID{4}}))
	teams, err := store.ListTeams(ctx, 1)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, []scheduling.UserID{4}, teams[0].Members)
}

// =============================================================================
// INTERVAL INDEX
// =============================================================================

func TestReserve_CapacityAndTouchingWindows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	res := scheduling.WorkCenterRef(100)

	_, err := store.Reserve(ctx, res, scheduling.WindowFor(dec28, 2), 2, 1)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, res, scheduling.WindowFor(dec28.Add(time.Hour), 2), 2, 2)
	require.NoError(t, err)

	_, err = store.Reserve(ctx, res, scheduling.WindowFor(dec28.Add(time.Hour), 1), 2, 3)
	assert.ErrorIs(t, err, scheduling.ErrConflict)

	_, err = store.Reserve(ctx, res, scheduling.WindowFor(dec28.Add(3*time.Hour), 1), 2, 4)
	assert.NoError(t, err)
}

func TestRelease_UnknownBooking(t *testing.T) {
	store := newTestStore(t)
	err := store.Release(context.Background(), "missing")
	assert.ErrorIs(t, err, scheduling.ErrBookingNotFound)
}

func TestBookings_PersistAcrossReopen(t *testing.T) {
	// GIVEN: A file-backed store with one booking
	// WHEN: The store is reopened
	// THEN: The booking still blocks the window and migrations are idempotent

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gearguard.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, scheduling.TechnicianRef(5), scheduling.WindowFor(dec28, 2), 1, 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	free, err := reopened.IsFree(ctx, scheduling.TechnicianRef(5), scheduling.WindowFor(dec28.Add(time.Hour), 1), 1)
	require.NoError(t, err)
	assert.False(t, free)
}

// =============================================================================
// LIFECYCLE ON SQLITE
// =============================================================================

func newManager(store *sqlite.Store) *scheduling.Manager {
	now := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	return scheduling.NewManager(store, scheduling.WithClock(func() time.Time { return now }))
}

func input(tech scheduling.UserID) scheduling.CreateInput {
	return scheduling.CreateInput{
		Title: "Spindle alignment", Type: scheduling.MaintenancePreventive,
		EquipmentID: 200, TeamID: 10, WorkCenterID: 100, TechnicianID: tech,
		ScheduledStart: dec28, DurationHours: 2,
	}
}

func TestLifecycle_CreateWorkLogComplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store)
	m := newManager(store)
	requester := scheduling.Caller{ID: 7, Role: scheduling.RoleUser, CompanyID: 1}
	tech := scheduling.Caller{ID: 5, Role: scheduling.RoleTechnician, CompanyID: 1}

	req, err := m.Create(ctx, requester, input(5))
	require.NoError(t, err)
	assert.Equal(t, scheduling.RequestID(1), req.ID)

	_, _, err = m.PostWorkLog(ctx, tech, req.ID, "Alignment started", scheduling.WorkLogInProgress)
	require.NoError(t, err)
	done, _, err := m.PostWorkLog(ctx, tech, req.ID, "Aligned", scheduling.WorkLogCompleted)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, done.Status)
	assert.Equal(t, scheduling.PriorityCritical, done.Priority)

	stored, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, stored.Status)
	assert.Empty(t, stored.WorkCenterHold)
	assert.Equal(t, dec28, stored.ScheduledStart)

	logs, err := store.WorkLogs(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Alignment started", logs[0].Note)

	free, err := store.IsFree(ctx, scheduling.WorkCenterRef(100), req.Window(), 1)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestLifecycle_ConcurrentCreatesOneWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store)
	m := newManager(store)
	requester := scheduling.Caller{ID: 7, Role: scheduling.RoleUser, CompanyID: 1}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins, stale int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, requester, input(6))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, scheduling.ErrAvailabilityStale) {
				stale++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, stale)
}

func TestListRequests_Filters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store)
	m := newManager(store)
	requester := scheduling.Caller{ID: 7, Role: scheduling.RoleUser, CompanyID: 1}

	first, err := m.Create(ctx, requester, input(5))
	require.NoError(t, err)
	later := input(5)
	later.ScheduledStart = dec28.Add(48 * time.Hour)
	second, err := m.Create(ctx, requester, later)
	require.NoError(t, err)
	_, err = m.Cancel(ctx, requester, first.ID)
	require.NoError(t, err)

	scheduled, err := store.ListRequests(ctx, scheduling.RequestFilter{Statuses: []scheduling.Status{scheduling.StatusScheduled}})
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, second.ID, scheduled[0].ID)

	dept := scheduling.DepartmentID(3)
	other := scheduling.UserID(99)
	byDept, err := store.ListRequests(ctx, scheduling.RequestFilter{CreatedBy: &other, DepartmentID: &dept})
	require.NoError(t, err)
	assert.Len(t, byDept, 2)

	from, to := dec28.Add(time.Hour), dec28.Add(2*time.Hour)
	windowed, err := store.ListRequests(ctx, scheduling.RequestFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, first.ID, windowed[0].ID)
}

func TestReassignment_RejectedEventPersists(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store)
	require.NoError(t, store.SaveTeam(ctx, scheduling.Team{ID: 11, Name: "Empty", CompanyID: 1, Members: []scheduling.UserID{7}}))
	m := newManager(store)

	req, err := m.Create(ctx, scheduling.Caller{ID: 7, Role: scheduling.RoleUser, CompanyID: 1}, input(5))
	require.NoError(t, err)

	event, err := m.RequestReassignment(ctx, scheduling.Caller{ID: 5, Role: scheduling.RoleTechnician, CompanyID: 1}, req.ID, 11, "Needs electrician")
	require.NoError(t, err)
	assert.Equal(t, scheduling.ReassignmentRejected, event.Outcome)

	history, err := store.Reassignments(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].NewTechnician)
	assert.Equal(t, "Needs electrician", history[0].Reason)
}

func TestReset_RestartsSequences(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store)
	_, err := store.NextRequestID(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	id, err := store.NextRequestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduling.RequestID(1), id)
	wc, err := store.GetWorkCenter(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, wc)
}
