/*
handlers.go - HTTP API handlers for the maintenance scheduling engine

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to scheduling.Manager.

ENDPOINTS:
  Scheduling:
    POST   /api/maintenance/availability       Propose technician + work centers
    POST   /api/maintenance                    Commit a proposal
    POST   /api/maintenance/{id}/cancel        Cancel and release bookings

  Queries (scoped by caller role):
    GET    /api/maintenance                    List (status, equipment, from, to)
    GET    /api/maintenance/{id}               Detail
    GET    /api/maintenance/{id}/worklogs      Work logs, oldest first
    GET    /api/maintenance/{id}/reassignments Reassignment events, oldest first
    GET    /api/maintenance/export             xlsx workbook (admin)

  Technician actions:
    POST   /api/maintenance/worklog            Progress update
    POST   /api/maintenance/reassign           Move to another team

  Directory:
    GET    /api/directory/equipment|work-centers|teams

REQUEST FLOW:
  1. Resolve caller (identity middleware)
  2. Bind and validate the body
  3. Call the engine
  4. Serialize response
  5. Map engine errors to HTTP status (writeEngineError)

ERROR HANDLING:
  - 400: Validation errors, cross-company references
  - 401: Missing or unknown caller
  - 403: Role may not act, or caller is not the assigned technician
  - 404: Request not found or not visible to the caller
  - 409: No availability, stale availability, terminal state,
         rejected reassignment
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gearguard/maintenance-engine/report"
	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is a scheduling store the demo scenarios can wipe.
type Backend interface {
	scheduling.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Backend
	Manager *scheduling.Manager
	Logger  *zap.Logger

	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler. A nil logger is replaced by a no-op one.
func NewHandler(store Backend, manager *scheduling.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Manager:  manager,
		Logger:   logger,
		validate: newValidator(),
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// SCHEDULING HANDLERS
// =============================================================================

// Availability proposes a technician and the free work centers for a window.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req AvailabilityRequest
	if !h.bind(w, r, &req) {
		return
	}
	start, err := parseStart(req.ScheduledStart)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	proposal, err := h.Manager.Propose(r.Context(), caller,
		scheduling.EquipmentID(req.Equipment), scheduling.TeamID(req.MaintenanceTeam), start, req.DurationHours)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !proposal.Available() {
		writeJSON(w, http.StatusConflict, NoAvailabilityResponse{
			Error:  noAvailabilityMessage(proposal.Reason),
			Reason: string(proposal.Reason),
		})
		return
	}

	centers := make([]WorkCenterOptionDTO, len(proposal.WorkCenters))
	for i, wc := range proposal.WorkCenters {
		centers[i] = toWorkCenterOption(wc, req.DurationHours)
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		AssignedTechnician:   TechnicianDTO{ID: int64(proposal.Technician.ID), Email: proposal.Technician.Email},
		AvailableWorkCenters: centers,
		ScheduledStart:       formatTime(proposal.Window.Start),
		ScheduledEnd:         formatTime(proposal.Window.End),
	})
}

func noAvailabilityMessage(reason scheduling.NoAvailabilityReason) string {
	switch reason {
	case scheduling.NoTechnician:
		return "No available technician in selected team"
	case scheduling.NoWorkCenter:
		return "No work center is free for the selected window"
	}
	return "No availability"
}

// CreateMaintenance commits a proposal.
func (h *Handler) CreateMaintenance(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req CreateMaintenanceRequest
	if !h.bind(w, r, &req) {
		return
	}
	start, err := parseStart(req.ScheduledStart)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	created, err := h.Manager.Create(r.Context(), caller, scheduling.CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		Type:           scheduling.MaintenanceType(req.MaintenanceType),
		Priority:       scheduling.Priority(req.Priority),
		EquipmentID:    scheduling.EquipmentID(req.Equipment),
		TeamID:         req.team(),
		WorkCenterID:   scheduling.WorkCenterID(req.WorkCenter),
		TechnicianID:   scheduling.UserID(req.AssignedTechnician),
		ScheduledStart: start,
		DurationHours:  req.DurationHours,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.newNames().maintenance(r.Context(), *created))
}

// CancelMaintenance cancels a request and frees its bookings.
func (h *Handler) CancelMaintenance(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.Manager.Cancel(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newNames().maintenance(r.Context(), *cancelled))
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// ListMaintenance lists the requests visible to the caller.
func (h *Handler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	filter, err := parseFilter(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	requests, err := h.Manager.List(r.Context(), caller, filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	names := h.newNames()
	dtos := make([]MaintenanceDTO, len(requests))
	for i, req := range requests {
		dtos[i] = names.maintenance(r.Context(), req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// parseFilter reads ?status=a,b&equipment=N&from=T&to=T.
func parseFilter(r *http.Request) (scheduling.RequestFilter, error) {
	var filter scheduling.RequestFilter
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status := scheduling.Status(strings.TrimSpace(s))
			if !status.Valid() {
				return filter, &scheduling.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if v := q.Get("equipment"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, &scheduling.ValidationError{Field: "equipment", Message: "must be an integer id"}
		}
		eq := scheduling.EquipmentID(id)
		filter.EquipmentID = &eq
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := parseStart(v)
		if err != nil {
			return filter, &scheduling.ValidationError{Field: bound.name, Message: fmt.Sprintf("%q is not an ISO-8601 date-time", v)}
		}
		*bound.dst = &t
	}
	return filter, nil
}

// GetMaintenance returns a single request.
func (h *Handler) GetMaintenance(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	req, err := h.Manager.Get(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newNames().maintenance(r.Context(), *req))
}

// ListWorkLogs returns a request's work logs, oldest first.
func (h *Handler) ListWorkLogs(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	entries, err := h.Manager.WorkLogs(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	names := h.newNames()
	dtos := make([]WorkLogDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toWorkLogDTO(e, names.email(r.Context(), e.TechnicianID))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListReassignments returns a request's reassignment events, oldest first.
func (h *Handler) ListReassignments(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	events, err := h.Manager.Reassignments(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]ReassignmentDTO, len(events))
	for i, e := range events {
		dtos[i] = toReassignmentDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportMaintenance streams every request and its work logs as xlsx.
func (h *Handler) ExportMaintenance(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if caller.Role != scheduling.RoleAdmin {
		writeError(w, http.StatusForbidden, "Only admins can export maintenance requests", nil)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	requests, err := h.Manager.List(r.Context(), caller, filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	logs := make(map[scheduling.RequestID][]scheduling.WorkLogEntry, len(requests))
	for _, req := range requests {
		entries, err := h.Store.WorkLogs(r.Context(), req.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load work logs", err)
			return
		}
		logs[req.ID] = entries
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+report.FileName(h.now()))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteRequests(w, requests, logs); err != nil {
		h.Logger.Error("failed to write export", zap.Error(err))
	}
}

// =============================================================================
// TECHNICIAN HANDLERS
// =============================================================================

// PostWorkLog records a progress update from the assigned technician.
func (h *Handler) PostWorkLog(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if caller.Role != scheduling.RoleTechnician {
		writeError(w, http.StatusForbidden, "Only technicians can add work logs", nil)
		return
	}

	var req WorkLogRequest
	if !h.bind(w, r, &req) {
		return
	}

	updated, entry, err := h.Manager.PostWorkLog(r.Context(), caller,
		scheduling.RequestID(req.MaintenanceID), req.Note, scheduling.WorkLogStatus(req.Status))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	names := h.newNames()
	writeJSON(w, http.StatusCreated, WorkLogResponse{
		Message:     "Work log added successfully.",
		WorkLog:     toWorkLogDTO(*entry, names.email(r.Context(), entry.TechnicianID)),
		Maintenance: names.maintenance(r.Context(), *updated),
	})
}

// Reassign moves the request to another team. A rejected attempt is still
// recorded and answered with 409.
func (h *Handler) Reassign(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if caller.Role != scheduling.RoleTechnician {
		writeError(w, http.StatusForbidden, "Only technicians can reassign maintenance", nil)
		return
	}

	var req ReassignRequest
	if !h.bind(w, r, &req) {
		return
	}

	event, err := h.Manager.RequestReassignment(r.Context(), caller,
		scheduling.RequestID(req.MaintenanceID), scheduling.TeamID(req.NewTeam), req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if !event.Applied() {
		writeJSON(w, http.StatusConflict, ReassignResponse{
			Message: "No available technician in selected team.",
			Event:   toReassignmentDTO(*event),
		})
		return
	}
	writeJSON(w, http.StatusOK, ReassignResponse{
		Message: "Maintenance reassigned successfully.",
		Event:   toReassignmentDTO(*event),
	})
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// ListEquipment returns the caller's company equipment.
func (h *Handler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	equipment, err := h.Store.ListEquipment(r.Context(), caller.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list equipment", err)
		return
	}
	dtos := make([]EquipmentDTO, len(equipment))
	for i, e := range equipment {
		dtos[i] = toEquipmentDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListWorkCenters returns the caller's company work centers.
func (h *Handler) ListWorkCenters(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	centers, err := h.Store.ListWorkCenters(r.Context(), caller.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list work centers", err)
		return
	}
	dtos := make([]WorkCenterDTO, len(centers))
	for i, wc := range centers {
		dtos[i] = toWorkCenterDTO(wc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListTeams returns the caller's company teams with members in order.
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	teams, err := h.Store.ListTeams(r.Context(), caller.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teams", err)
		return
	}
	dtos := make([]TeamDTO, len(teams))
	for i, t := range teams {
		dtos[i] = toTeamDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DISPLAY NAMES
// =============================================================================

// displayNames decorates requests with directory names, memoized per response.
type displayNames struct {
	dir         scheduling.Directory
	equipment   map[scheduling.EquipmentID]string
	workCenters map[scheduling.WorkCenterID]string
	teams       map[scheduling.TeamID]string
	emails      map[scheduling.UserID]string
}

func (h *Handler) newNames() *displayNames {
	return &displayNames{
		dir:         h.Store,
		equipment:   map[scheduling.EquipmentID]string{},
		workCenters: map[scheduling.WorkCenterID]string{},
		teams:       map[scheduling.TeamID]string{},
		emails:      map[scheduling.UserID]string{},
	}
}

// memo returns cache[id], filling it with load on a miss. Lookup failures
// leave the name empty.
func memo[K comparable](cache map[K]string, id K, load func() string) string {
	if v, ok := cache[id]; ok {
		return v
	}
	v := load()
	cache[id] = v
	return v
}

func (n *displayNames) email(ctx context.Context, id scheduling.UserID) string {
	return memo(n.emails, id, func() string {
		if u, err := n.dir.GetUser(ctx, id); err == nil && u != nil {
			return u.Email
		}
		return ""
	})
}

func (n *displayNames) maintenance(ctx context.Context, req scheduling.Request) MaintenanceDTO {
	window := req.Window()
	return MaintenanceDTO{
		ID:              int64(req.ID),
		Title:           req.Title,
		Description:     req.Description,
		MaintenanceType: string(req.Type),
		Priority:        string(req.Priority),
		Status:          string(req.Status),
		Equipment:       int64(req.EquipmentID),
		EquipmentName: memo(n.equipment, req.EquipmentID, func() string {
			if e, err := n.dir.GetEquipment(ctx, req.EquipmentID); err == nil && e != nil {
				return e.Name
			}
			return ""
		}),
		WorkCenter: int64(req.WorkCenterID),
		WorkCenterName: memo(n.workCenters, req.WorkCenterID, func() string {
			if wc, err := n.dir.GetWorkCenter(ctx, req.WorkCenterID); err == nil && wc != nil {
				return wc.Name
			}
			return ""
		}),
		AssignedTeam: int64(req.TeamID),
		TeamName: memo(n.teams, req.TeamID, func() string {
			if t, err := n.dir.GetTeam(ctx, req.TeamID); err == nil && t != nil {
				return t.Name
			}
			return ""
		}),
		AssignedTechnician: int64(req.TechnicianID),
		TechnicianEmail:    n.email(ctx, req.TechnicianID),
		ScheduledStart:     formatTime(window.Start),
		ScheduledEnd:       formatTime(window.End),
		DurationHours:      req.DurationHours,
		CreatedBy:          int64(req.CreatedBy),
		CreatedAt:          formatTime(req.CreatedAt),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps scheduling errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, scheduling.ErrCrossCompany):
		writeError(w, http.StatusBadRequest, "Resource belongs to another company", err)
	case errors.Is(err, scheduling.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed for your role", err)
	case errors.Is(err, scheduling.ErrNotAssignedTechnician):
		writeError(w, http.StatusForbidden, "You are not assigned to this maintenance request", err)
	case scheduling.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Maintenance request not found", err)
	case scheduling.IsRetryable(err):
		writeError(w, http.StatusConflict, "Availability changed, propose again", err)
	case errors.Is(err, scheduling.ErrTerminalState):
		writeError(w, http.StatusConflict, "Maintenance request is closed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// bind decodes and validates a JSON body, answering 400 itself on failure.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, len(fieldErrs))
			for i, fe := range fieldErrs {
				msgs[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
			}
			writeError(w, http.StatusBadRequest, "Invalid request", errors.New(strings.Join(msgs, "; ")))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func requestID(w http.ResponseWriter, r *http.Request) (scheduling.RequestID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid maintenance id", err)
		return 0, false
	}
	return scheduling.RequestID(id), true
}
