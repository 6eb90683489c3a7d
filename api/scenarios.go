/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the directory with a realistic
	plant: a company, its maintenance staff, teams, work centers and
	equipment. The portal front-end and the API tests both start from these.

AVAILABLE SCENARIOS:

	gearguard:       GearGuard Industries with two single-technician teams
	                 and one two-slot assembly line
	gearguard-busy:  Same plant plus a third mechanic and a request that
	                 already holds tech1 tomorrow 10:00-12:00

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Save directory records through scheduling.DirectoryWriter
 3. Optionally schedule requests through the Manager, so bookings are real

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "gearguard"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - cmd/server/main.go: -seed flag
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	ScenarioGearGuard     = "gearguard"
	ScenarioGearGuardBusy = "gearguard-busy"
)

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioGearGuard,
		Name:        "GearGuard Industries",
		Description: "Mechanical and Electrical teams, one technician each, Assembly Line A with two slots",
	},
	{
		ID:          ScenarioGearGuardBusy,
		Name:        "GearGuard Busy Day",
		Description: "tech1 already booked tomorrow 10:00-12:00; proposals fall through to tech3",
	},
}

// Fixture ids shared by both scenarios.
const (
	demoCompany    scheduling.CompanyID    = 1
	demoDepartment scheduling.DepartmentID = 1
	demoCategory   scheduling.CategoryID   = 1

	demoAdmin scheduling.UserID = 1
	demoTech1 scheduling.UserID = 2
	demoTech2 scheduling.UserID = 3
	demoUser  scheduling.UserID = 4
	demoTech3 scheduling.UserID = 5

	demoEquipment  scheduling.EquipmentID  = 1
	demoWorkCenter scheduling.WorkCenterID = 1

	demoMechanical scheduling.TeamID = 1
	demoElectrical scheduling.TeamID = 2
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.bind(w, r, &req) {
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

// Seed resets the store and loads the named scenario.
func (h *Handler) Seed(ctx context.Context, id string) error {
	if !knownScenario(id) {
		return fmt.Errorf("unknown scenario %q", id)
	}
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.setScenario("")

	var err error
	switch id {
	case ScenarioGearGuard:
		err = h.loadGearGuard(ctx)
	case ScenarioGearGuardBusy:
		err = h.loadGearGuardBusy(ctx)
	}
	if err != nil {
		return err
	}

	h.setScenario(id)
	h.Logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadGearGuard(ctx context.Context) error {
	dept := demoDepartment
	tech1 := demoTech1

	steps := []func() error{
		func() error {
			return h.Store.SaveCompany(ctx, scheduling.Company{ID: demoCompany, Name: "GearGuard Industries", Location: "Ahmedabad"})
		},
		func() error {
			return h.Store.SaveDepartment(ctx, scheduling.Department{ID: demoDepartment, Name: "Maintenance", CompanyID: demoCompany})
		},
		func() error { return h.saveUser(ctx, demoAdmin, "admin@test.com", scheduling.RoleAdmin) },
		func() error { return h.saveUser(ctx, demoTech1, "tech1@test.com", scheduling.RoleTechnician) },
		func() error { return h.saveUser(ctx, demoTech2, "tech2@test.com", scheduling.RoleTechnician) },
		func() error { return h.saveUser(ctx, demoUser, "user@test.com", scheduling.RoleUser) },
		func() error {
			return h.Store.SaveCategory(ctx, scheduling.EquipmentCategory{ID: demoCategory, Name: "CNC", DefaultTechnician: &tech1})
		},
		func() error {
			return h.Store.SaveEquipment(ctx, scheduling.Equipment{
				ID:           demoEquipment,
				Name:         "CNC Machine #1",
				SerialNumber: "CNC-001",
				CompanyID:    demoCompany,
				CategoryID:   demoCategory,
				DepartmentID: &dept,
			})
		},
		func() error {
			return h.Store.SaveWorkCenter(ctx, scheduling.WorkCenter{
				ID:             demoWorkCenter,
				Name:           "Assembly Line A",
				Code:           "ASM-A",
				CompanyID:      demoCompany,
				CostPerHour:    decimal.NewFromInt(500),
				Capacity:       2,
				TimeEfficiency: decimal.NewFromInt(90),
				OEETarget:      decimal.NewFromInt(95),
			})
		},
		func() error {
			return h.Store.SaveTeam(ctx, scheduling.Team{ID: demoMechanical, Name: "Mechanical Team", CompanyID: demoCompany, Members: []scheduling.UserID{demoTech1}})
		},
		func() error {
			return h.Store.SaveTeam(ctx, scheduling.Team{ID: demoElectrical, Name: "Electrical Team", CompanyID: demoCompany, Members: []scheduling.UserID{demoTech2}})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadGearGuardBusy(ctx context.Context) error {
	// 1. Base plant
	if err := h.loadGearGuard(ctx); err != nil {
		return err
	}

	// 2. A second mechanic, after tech1 in first-fit order
	if err := h.saveUser(ctx, demoTech3, "tech3@test.com", scheduling.RoleTechnician); err != nil {
		return err
	}
	if err := h.Store.SaveTeam(ctx, scheduling.Team{
		ID: demoMechanical, Name: "Mechanical Team", CompanyID: demoCompany,
		Members: []scheduling.UserID{demoTech1, demoTech3},
	}); err != nil {
		return err
	}

	// 3. Hold tech1 tomorrow 10:00-12:00 through the real booking path
	requester, err := h.Store.GetUser(ctx, demoUser)
	if err != nil {
		return err
	}
	start := tomorrowAt(h.now(), 10)
	_, err = h.Manager.Create(ctx, requester.Caller(), scheduling.CreateInput{
		Title:          "Spindle vibration",
		Description:    "Operator reports vibration above 3000 rpm",
		Type:           scheduling.MaintenanceCorrective,
		Priority:       scheduling.PriorityHigh,
		EquipmentID:    demoEquipment,
		TeamID:         demoMechanical,
		WorkCenterID:   demoWorkCenter,
		TechnicianID:   demoTech1,
		ScheduledStart: start,
		DurationHours:  2,
	})
	return err
}

func (h *Handler) saveUser(ctx context.Context, id scheduling.UserID, email string, role scheduling.Role) error {
	dept := demoDepartment
	return h.Store.SaveUser(ctx, scheduling.User{ID: id, Email: email, Role: role, CompanyID: demoCompany, DepartmentID: &dept})
}

func tomorrowAt(now time.Time, hour int) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}
