/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the scheduling engine's model from the external contract the portal
  front-end speaks.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  bind() before the engine sees them. The engine re-validates everything
  that matters for scheduling; the tags only reject malformed JSON early.

TIME FORMAT:
  scheduled_start accepts RFC 3339 and the zone-less forms the portal's
  datetime-local inputs send ("2006-01-02T15:04:05", "2006-01-02T15:04"),
  read as UTC. Responses always use RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AvailabilityRequest asks for a proposal.
type AvailabilityRequest struct {
	Equipment       int64  `json:"equipment" validate:"required,gt=0"`
	MaintenanceTeam int64  `json:"maintenance_team" validate:"required,gt=0"`
	ScheduledStart  string `json:"scheduled_start" validate:"required"`
	DurationHours   int    `json:"duration_hours" validate:"required,min=1,max=8760"`
}

// CreateMaintenanceRequest commits a proposal. AssignedTeam falls back to
// MaintenanceTeam so the availability body can be reused as-is.
type CreateMaintenanceRequest struct {
	Title              string `json:"title" validate:"required"`
	Description        string `json:"description"`
	MaintenanceType    string `json:"maintenance_type" validate:"required,oneof=preventive corrective"`
	Priority           string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Equipment          int64  `json:"equipment" validate:"required,gt=0"`
	WorkCenter         int64  `json:"work_center" validate:"required,gt=0"`
	AssignedTeam       int64  `json:"assigned_team" validate:"required_without=MaintenanceTeam"`
	MaintenanceTeam    int64  `json:"maintenance_team" validate:"required_without=AssignedTeam"`
	AssignedTechnician int64  `json:"assigned_technician" validate:"required,gt=0"`
	ScheduledStart     string `json:"scheduled_start" validate:"required"`
	DurationHours      int    `json:"duration_hours" validate:"required,min=1,max=8760"`
}

func (r CreateMaintenanceRequest) team() scheduling.TeamID {
	if r.AssignedTeam != 0 {
		return scheduling.TeamID(r.AssignedTeam)
	}
	return scheduling.TeamID(r.MaintenanceTeam)
}

// WorkLogRequest is posted by the assigned technician.
type WorkLogRequest struct {
	MaintenanceID int64  `json:"maintenance_id" validate:"required,gt=0"`
	Note          string `json:"note" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=in_progress blocked completed"`
}

// ReassignRequest moves a request to another team.
type ReassignRequest struct {
	MaintenanceID int64  `json:"maintenance_id" validate:"required,gt=0"`
	NewTeam       int64  `json:"new_team" validate:"required,gt=0"`
	Reason        string `json:"reason" validate:"required"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type TechnicianDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// WorkCenterOptionDTO is one free work center in a proposal.
type WorkCenterOptionDTO struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	CostPerHour   decimal.Decimal `json:"cost_per_hour"`
	Capacity      int             `json:"capacity"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
}

// AvailabilityResponse mirrors the portal's proposal card.
type AvailabilityResponse struct {
	AssignedTechnician   TechnicianDTO         `json:"assigned_technician"`
	AvailableWorkCenters []WorkCenterOptionDTO `json:"available_work_centers"`
	ScheduledStart       string                `json:"scheduled_start"`
	ScheduledEnd         string                `json:"scheduled_end"`
}

// NoAvailabilityResponse is returned with 409 when nothing fits.
type NoAvailabilityResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// MaintenanceDTO is a request plus the display names the portal shows.
type MaintenanceDTO struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	MaintenanceType    string `json:"maintenance_type"`
	Priority           string `json:"priority"`
	Status             string `json:"status"`
	Equipment          int64  `json:"equipment"`
	EquipmentName      string `json:"equipment_name,omitempty"`
	WorkCenter         int64  `json:"work_center"`
	WorkCenterName     string `json:"work_center_name,omitempty"`
	AssignedTeam       int64  `json:"assigned_team"`
	TeamName           string `json:"team_name,omitempty"`
	AssignedTechnician int64  `json:"assigned_technician"`
	TechnicianEmail    string `json:"technician_email,omitempty"`
	ScheduledStart     string `json:"scheduled_start"`
	ScheduledEnd       string `json:"scheduled_end"`
	DurationHours      int    `json:"duration_hours"`
	CreatedBy          int64  `json:"created_by"`
	CreatedAt          string `json:"created_at"`
}

type WorkLogDTO struct {
	ID              int64  `json:"id"`
	MaintenanceID   int64  `json:"maintenance_id"`
	Technician      int64  `json:"technician"`
	TechnicianEmail string `json:"technician_email,omitempty"`
	Note            string `json:"note"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// WorkLogResponse acknowledges a posted work log.
type WorkLogResponse struct {
	Message     string         `json:"message"`
	WorkLog     WorkLogDTO     `json:"work_log"`
	Maintenance MaintenanceDTO `json:"maintenance"`
}

type ReassignmentDTO struct {
	ID            int64  `json:"id"`
	MaintenanceID int64  `json:"maintenance_id"`
	RequestedBy   int64  `json:"requested_by"`
	OldTeam       int64  `json:"old_team"`
	NewTeam       int64  `json:"new_team"`
	OldTechnician int64  `json:"old_technician"`
	NewTechnician *int64 `json:"new_technician"`
	Reason        string `json:"reason"`
	Applied       bool   `json:"applied"`
	CreatedAt     string `json:"created_at"`
}

// ReassignResponse is returned with 200 when applied and 409 when rejected.
type ReassignResponse struct {
	Message string          `json:"message"`
	Event   ReassignmentDTO `json:"event"`
}

type EquipmentDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	Category     int64  `json:"category"`
	Department   *int64 `json:"department"`
}

type WorkCenterDTO struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Code           string          `json:"code"`
	CostPerHour    decimal.Decimal `json:"cost_per_hour"`
	Capacity       int             `json:"capacity"`
	TimeEfficiency decimal.Decimal `json:"time_efficiency"`
	OEETarget      decimal.Decimal `json:"oee_target"`
}

type TeamDTO struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

var startLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseStart reads a scheduled_start value.
func parseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &scheduling.ValidationError{
		Field:   "scheduled_start",
		Message: fmt.Sprintf("%q is not an ISO-8601 date-time", s),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toWorkCenterOption(wc scheduling.WorkCenter, hours int) WorkCenterOptionDTO {
	return WorkCenterOptionDTO{
		ID:            int64(wc.ID),
		Name:          wc.Name,
		Code:          wc.Code,
		CostPerHour:   wc.CostPerHour,
		Capacity:      wc.EffectiveCapacity(),
		EstimatedCost: wc.EstimatedCost(hours),
	}
}

func toWorkLogDTO(e scheduling.WorkLogEntry, email string) WorkLogDTO {
	return WorkLogDTO{
		ID:              int64(e.ID),
		MaintenanceID:   int64(e.RequestID),
		Technician:      int64(e.TechnicianID),
		TechnicianEmail: email,
		Note:            e.Note,
		Status:          string(e.Status),
		CreatedAt:       formatTime(e.CreatedAt),
	}
}

func toReassignmentDTO(e scheduling.ReassignmentEvent) ReassignmentDTO {
	dto := ReassignmentDTO{
		ID:            int64(e.ID),
		MaintenanceID: int64(e.RequestID),
		RequestedBy:   int64(e.RequestedBy),
		OldTeam:       int64(e.OldTeam),
		NewTeam:       int64(e.NewTeam),
		OldTechnician: int64(e.OldTechnician),
		Reason:        e.Reason,
		Applied:       e.Applied(),
		CreatedAt:     formatTime(e.CreatedAt),
	}
	if e.NewTechnician != nil {
		id := int64(*e.NewTechnician)
		dto.NewTechnician = &id
	}
	return dto
}

func toEquipmentDTO(e scheduling.Equipment) EquipmentDTO {
	dto := EquipmentDTO{
		ID:           int64(e.ID),
		Name:         e.Name,
		SerialNumber: e.SerialNumber,
		Category:     int64(e.CategoryID),
	}
	if e.DepartmentID != nil {
		id := int64(*e.DepartmentID)
		dto.Department = &id
	}
	return dto
}

func toWorkCenterDTO(wc scheduling.WorkCenter) WorkCenterDTO {
	return WorkCenterDTO{
		ID:             int64(wc.ID),
		Name:           wc.Name,
		Code:           wc.Code,
		CostPerHour:    wc.CostPerHour,
		Capacity:       wc.EffectiveCapacity(),
		TimeEfficiency: wc.TimeEfficiency,
		OEETarget:      wc.OEETarget,
	}
}

func toTeamDTO(t scheduling.Team) TeamDTO {
	members := make([]int64, len(t.Members))
	for i, m := range t.Members {
		members[i] = int64(m)
	}
	return TeamDTO{ID: int64(t.ID), Name: t.Name, Members: members}
}
