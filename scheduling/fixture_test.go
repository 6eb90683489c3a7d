package scheduling_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gearguard/maintenance-engine/scheduling"
	"github.com/gearguard/maintenance-engine/scheduling/store"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================
//
// Company 1 (GearGuard):
//   admin 1, requester 7 (department 3), technicians 5 and 6
//   team 10 "Mechanical" members [5, 6]
//   team 11 "Electrical" members [9]      technician 9
//   team 12 "Empty"      members [7]      no technicians at all
//   work center 100 cost 450 capacity 1
//   work center 101 cost 500 capacity 2
//   equipment 200 (department 3)
//
// Company 2:
//   technician 8, team 20 members [8], work center 300, equipment 201

var (
	fixtureNow = time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	dec28      = time.Date(2025, 12, 28, 10, 0, 0, 0, time.UTC)
)

const (
	adminID     scheduling.UserID = 1
	tech5       scheduling.UserID = 5
	tech6       scheduling.UserID = 6
	requesterID scheduling.UserID = 7
	tech8       scheduling.UserID = 8
	tech9       scheduling.UserID = 9

	mechanical scheduling.TeamID = 10
	electrical scheduling.TeamID = 11
	emptyTeam  scheduling.TeamID = 12
	foreign    scheduling.TeamID = 20

	centerW   scheduling.WorkCenterID = 100
	centerBig scheduling.WorkCenterID = 101
	centerFar scheduling.WorkCenterID = 300

	press   scheduling.EquipmentID = 200
	lathe2  scheduling.EquipmentID = 201
	deptOps scheduling.DepartmentID = 3
)

type fixture struct {
	store   *store.Memory
	manager *scheduling.Manager
	admin   scheduling.Caller
	user    scheduling.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	dept := deptOps

	require.NoError(t, mem.SaveCompany(ctx, scheduling.Company{ID: 1, Name: "GearGuard Industries", Location: "Ahmedabad"}))
	require.NoError(t, mem.SaveCompany(ctx, scheduling.Company{ID: 2, Name: "Other Works"}))
	require.NoError(t, mem.SaveDepartment(ctx, scheduling.Department{ID: deptOps, Name: "Operations", CompanyID: 1}))

	users := []scheduling.User{
		{ID: adminID, Email: "admin@gearguard.test", Role: scheduling.RoleAdmin, CompanyID: 1},
		{ID: tech5, Email: "tech5@gearguard.test", Role: scheduling.RoleTechnician, CompanyID: 1},
		{ID: tech6, Email: "tech6@gearguard.test", Role: scheduling.RoleTechnician, CompanyID: 1},
		{ID: requesterID, Email: "ops@gearguard.test", Role: scheduling.RoleUser, CompanyID: 1, DepartmentID: &dept},
		{ID: tech8, Email: "tech8@other.test", Role: scheduling.RoleTechnician, CompanyID: 2},
		{ID: tech9, Email: "tech9@gearguard.test", Role: scheduling.RoleTechnician, CompanyID: 1},
	}
	for _, u := range users {
		require.NoError(t, mem.SaveUser(ctx, u))
	}

	teams := []scheduling.Team{
		{ID: mechanical, Name: "Mechanical", CompanyID: 1, Members: []scheduling.UserID{tech5, tech6}},
		{ID: electrical, Name: "Electrical", CompanyID: 1, Members: []scheduling.UserID{tech9}},
		{ID: emptyTeam, Name: "Empty", CompanyID: 1, Members: []scheduling.UserID{requesterID}},
		{ID: foreign, Name: "Foreign", CompanyID: 2, Members: []scheduling.UserID{tech8}},
	}
	for _, tm := range teams {
		require.NoError(t, mem.SaveTeam(ctx, tm))
	}

	centers := []scheduling.WorkCenter{
		{ID: centerW, Name: "Assembly A", Code: "ASM-A", CompanyID: 1, CostPerHour: decimal.NewFromInt(450), Capacity: 1},
		{ID: centerBig, Name: "Assembly B", Code: "ASM-B", CompanyID: 1, CostPerHour: decimal.NewFromInt(500), Capacity: 2},
		{ID: centerFar, Name: "Remote", Code: "REM", CompanyID: 2, CostPerHour: decimal.NewFromInt(100), Capacity: 1},
	}
	for _, wc := range centers {
		require.NoError(t, mem.SaveWorkCenter(ctx, wc))
	}

	require.NoError(t, mem.SaveCategory(ctx, scheduling.EquipmentCategory{ID: 1, Name: "Presses"}))
	require.NoError(t, mem.SaveEquipment(ctx, scheduling.Equipment{ID: press, Name: "Hydraulic Press", SerialNumber: "HP-1", CompanyID: 1, CategoryID: 1, DepartmentID: &dept}))
	require.NoError(t, mem.SaveEquipment(ctx, scheduling.Equipment{ID: lathe2, Name: "Lathe", SerialNumber: "L-2", CompanyID: 2, CategoryID: 1}))

	return &fixture{
		store:   mem,
		manager: scheduling.NewManager(mem, scheduling.WithClock(func() time.Time { return fixtureNow })),
		admin:   users[0].Caller(),
		user:    users[3].Caller(),
	}
}

func technician(id scheduling.UserID) scheduling.Caller {
	return scheduling.Caller{ID: id, Role: scheduling.RoleTechnician, CompanyID: 1}
}

// createInput is a valid create for the press on the mechanical team.
func createInput(center scheduling.WorkCenterID, tech scheduling.UserID, start time.Time, hours int) scheduling.CreateInput {
	return scheduling.CreateInput{
		Title:          "Replace hydraulic seal",
		Type:           scheduling.MaintenanceCorrective,
		EquipmentID:    press,
		TeamID:         mechanical,
		WorkCenterID:   center,
		TechnicianID:   tech,
		ScheduledStart: start,
		DurationHours:  hours,
	}
}

// schedule creates a request and fails the test on error.
func (f *fixture) schedule(t *testing.T, center scheduling.WorkCenterID, tech scheduling.UserID, start time.Time, hours int) *scheduling.Request {
	t.Helper()
	req, err := f.manager.Create(context.Background(), f.user, createInput(center, tech, start, hours))
	require.NoError(t, err)
	return req
}
