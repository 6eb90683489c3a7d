package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// REQUEST STORE (scheduling.RequestStore interface)
// =============================================================================

var requestColumns = []string{
	"id", "title", "description", "maintenance_type", "priority", "status",
	"company_id", "department_id", "equipment_id", "work_center_id", "team_id", "technician_id",
	"scheduled_start", "duration_hours", "work_center_hold", "technician_hold",
	"created_by", "created_at", "updated_at",
}

func (s *Store) NextRequestID(ctx context.Context) (scheduling.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO request_sequence (allocated_at) VALUES (?)", formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate request id: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return scheduling.RequestID(id), nil
}

func (s *Store) InsertRequest(ctx context.Context, r scheduling.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_requests
		(id, title, description, maintenance_type, priority, status,
		 company_id, department_id, equipment_id, work_center_id, team_id, technician_id,
		 scheduled_start, scheduled_end, duration_hours, work_center_hold, technician_hold,
		 created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.ID), r.Title, r.Description, string(r.Type), string(r.Priority), string(r.Status),
		int64(r.CompanyID), nullID(r.DepartmentID), int64(r.EquipmentID), int64(r.WorkCenterID),
		int64(r.TeamID), int64(r.TechnicianID),
		formatTime(r.ScheduledStart), formatTime(r.Window().End), r.DurationHours,
		string(r.WorkCenterHold), string(r.TechnicianHold),
		int64(r.CreatedBy), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return &scheduling.ValidationError{Field: "id", Message: "request already exists"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// UpdateRequest writes the mutable columns. Window, equipment and work
// center are fixed at creation and are not touched.
func (s *Store) UpdateRequest(ctx context.Context, r scheduling.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_requests SET
			title = ?, description = ?, priority = ?, status = ?,
			team_id = ?, technician_id = ?, work_center_hold = ?, technician_hold = ?,
			updated_at = ?
		WHERE id = ?`,
		r.Title, r.Description, string(r.Priority), string(r.Status),
		int64(r.TeamID), int64(r.TechnicianID), string(r.WorkCenterHold), string(r.TechnicianHold),
		formatTime(r.UpdatedAt), int64(r.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return scheduling.ErrRequestNotFound
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id scheduling.RequestID) (*scheduling.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := sq.Select(requestColumns...).
		From("maintenance_requests").
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, err
	}
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &r, nil
}

// ListRequests translates the filter into SQL predicates.
func (s *Store) ListRequests(ctx context.Context, f scheduling.RequestFilter) ([]scheduling.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := sq.Select(requestColumns...).From("maintenance_requests")
	if f.TechnicianID != nil {
		q = q.Where(sq.Eq{"technician_id": int64(*f.TechnicianID)})
	}
	if f.CreatedBy != nil || f.DepartmentID != nil {
		var owner sq.Or
		if f.CreatedBy != nil {
			owner = append(owner, sq.Eq{"created_by": int64(*f.CreatedBy)})
		}
		if f.DepartmentID != nil {
			owner = append(owner, sq.Eq{"department_id": int64(*f.DepartmentID)})
		}
		q = q.Where(owner)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	if f.EquipmentID != nil {
		q = q.Where(sq.Eq{"equipment_id": int64(*f.EquipmentID)})
	}
	if f.From != nil {
		q = q.Where(sq.Gt{"scheduled_end": formatTime(*f.From)})
	}
	if f.To != nil {
		q = q.Where(sq.Lt{"scheduled_start": formatTime(*f.To)})
	}

	query, args, err := q.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row interface{ Scan(...any) error }) (scheduling.Request, error) {
	var (
		r                          scheduling.Request
		dept                       sql.NullInt64
		start, created, updated    string
		centerHold, technicianHold string
	)
	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &r.Type, &r.Priority, &r.Status,
		&r.CompanyID, &dept, &r.EquipmentID, &r.WorkCenterID, &r.TeamID, &r.TechnicianID,
		&start, &r.DurationHours, &centerHold, &technicianHold,
		&r.CreatedBy, &created, &updated,
	)
	if err != nil {
		return r, err
	}
	r.DepartmentID = idPtr[scheduling.DepartmentID](dept)
	r.WorkCenterHold = scheduling.BookingID(centerHold)
	r.TechnicianHold = scheduling.BookingID(technicianHold)
	if r.ScheduledStart, err = parseTime(start); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, err
	}
	r.UpdatedAt, err = parseTime(updated)
	return r, err
}

// =============================================================================
// AUDIT LOG (scheduling.AuditLog interface) - INSERT only
// =============================================================================

func (s *Store) AppendWorkLog(ctx context.Context, e scheduling.WorkLogEntry) (scheduling.WorkLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := insertID(ctx, s.db, `
		INSERT INTO work_logs (request_id, technician_id, note, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		int64(e.RequestID), int64(e.TechnicianID), e.Note, string(e.Status), formatTime(e.CreatedAt))
	if err != nil {
		return e, fmt.Errorf("failed to append work log: %w", err)
	}
	e.ID = scheduling.WorkLogID(id)
	return e, nil
}

func (s *Store) AppendReassignment(ctx context.Context, e scheduling.ReassignmentEvent) (scheduling.ReassignmentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := insertID(ctx, s.db, `
		INSERT INTO reassignment_events
		(request_id, requested_by, old_team, new_team, old_technician, new_technician, reason, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(e.RequestID), int64(e.RequestedBy), int64(e.OldTeam), int64(e.NewTeam),
		int64(e.OldTechnician), nullID(e.NewTechnician), e.Reason, string(e.Outcome), formatTime(e.CreatedAt))
	if err != nil {
		return e, fmt.Errorf("failed to append reassignment: %w", err)
	}
	e.ID = scheduling.EventID(id)
	return e, nil
}

func insertID(ctx context.Context, db execer, query string, args ...any) (int64, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) WorkLogs(ctx context.Context, id scheduling.RequestID) ([]scheduling.WorkLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, technician_id, note, status, created_at
		FROM work_logs WHERE request_id = ?
		ORDER BY created_at ASC, id ASC`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query work logs: %w", err)
	}
	defer rows.Close()

	var out []scheduling.WorkLogEntry
	for rows.Next() {
		var (
			e       scheduling.WorkLogEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.TechnicianID, &e.Note, &e.Status, &created); err != nil {
			return nil, fmt.Errorf("failed to scan work log: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Reassignments(ctx context.Context, id scheduling.RequestID) ([]scheduling.ReassignmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, requested_by, old_team, new_team, old_technician, new_technician,
		       reason, outcome, created_at
		FROM reassignment_events WHERE request_id = ?
		ORDER BY created_at ASC, id ASC`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query reassignments: %w", err)
	}
	defer rows.Close()

	var out []scheduling.ReassignmentEvent
	for rows.Next() {
		var (
			e       scheduling.ReassignmentEvent
			newTech sql.NullInt64
			created string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.RequestedBy, &e.OldTeam, &e.NewTeam, &e.OldTechnician,
			&newTech, &e.Reason, &e.Outcome, &created); err != nil {
			return nil, fmt.Errorf("failed to scan reassignment: %w", err)
		}
		e.NewTechnician = idPtr[scheduling.UserID](newTech)
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
