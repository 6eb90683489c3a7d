package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// DIRECTORY - Read side
// =============================================================================

func (s *Store) GetCompany(ctx context.Context, id scheduling.CompanyID) (*scheduling.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c scheduling.Company
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, location FROM companies WHERE id = ?", int64(id),
	).Scan(&c.ID, &c.Name, &c.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

func (s *Store) GetDepartment(ctx context.Context, id scheduling.DepartmentID) (*scheduling.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d scheduling.Department
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, company_id FROM departments WHERE id = ?", int64(id),
	).Scan(&d.ID, &d.Name, &d.CompanyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &d, nil
}

func (s *Store) GetCategory(ctx context.Context, id scheduling.CategoryID) (*scheduling.EquipmentCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c    scheduling.EquipmentCategory
		tech sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, default_technician FROM equipment_categories WHERE id = ?", int64(id),
	).Scan(&c.ID, &c.Name, &tech)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	c.DefaultTechnician = idPtr[scheduling.UserID](tech)
	return &c, nil
}

const equipmentColumns = "id, name, serial_number, company_id, category_id, department_id, employee_id"

func scanEquipment(row interface{ Scan(...any) error }) (scheduling.Equipment, error) {
	var (
		e          scheduling.Equipment
		dept, empl sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Name, &e.SerialNumber, &e.CompanyID, &e.CategoryID, &dept, &empl)
	e.DepartmentID = idPtr[scheduling.DepartmentID](dept)
	e.EmployeeID = idPtr[scheduling.UserID](empl)
	return e, err
}

func (s *Store) GetEquipment(ctx context.Context, id scheduling.EquipmentID) (*scheduling.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := scanEquipment(s.db.QueryRowContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipment WHERE id = ?", int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment: %w", err)
	}
	return &e, nil
}

func (s *Store) ListEquipment(ctx context.Context, company scheduling.CompanyID) ([]scheduling.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipment WHERE company_id = ? ORDER BY id", int64(company))
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const workCenterColumns = "id, name, code, company_id, cost_per_hour, capacity, time_efficiency, oee_target"

func scanWorkCenter(row interface{ Scan(...any) error }) (scheduling.WorkCenter, error) {
	var wc scheduling.WorkCenter
	err := row.Scan(&wc.ID, &wc.Name, &wc.Code, &wc.CompanyID, &wc.CostPerHour, &wc.Capacity, &wc.TimeEfficiency, &wc.OEETarget)
	return wc, err
}

func (s *Store) GetWorkCenter(ctx context.Context, id scheduling.WorkCenterID) (*scheduling.WorkCenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wc, err := scanWorkCenter(s.db.QueryRowContext(ctx,
		"SELECT "+workCenterColumns+" FROM work_centers WHERE id = ?", int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work center: %w", err)
	}
	return &wc, nil
}

func (s *Store) ListWorkCenters(ctx context.Context, company scheduling.CompanyID) ([]scheduling.WorkCenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workCenterColumns+" FROM work_centers WHERE company_id = ? ORDER BY id", int64(company))
	if err != nil {
		return nil, fmt.Errorf("failed to list work centers: %w", err)
	}
	defer rows.Close()

	var out []scheduling.WorkCenter
	for rows.Next() {
		wc, err := scanWorkCenter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work center: %w", err)
		}
		out = append(out, wc)
	}
	return out, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id scheduling.UserID) (*scheduling.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		u    scheduling.User
		dept sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, role, company_id, department_id FROM users WHERE id = ?", int64(id),
	).Scan(&u.ID, &u.Email, &u.Role, &u.CompanyID, &dept)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.DepartmentID = idPtr[scheduling.DepartmentID](dept)
	return &u, nil
}

func (s *Store) GetTeam(ctx context.Context, id scheduling.TeamID) (*scheduling.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t scheduling.Team
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, company_id FROM teams WHERE id = ?", int64(id),
	).Scan(&t.ID, &t.Name, &t.CompanyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	if t.Members, err = s.members(ctx, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTeams loads teams first and members second; the two result sets are
// never open at once.
func (s *Store) ListTeams(ctx context.Context, company scheduling.CompanyID) ([]scheduling.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, company_id FROM teams WHERE company_id = ? ORDER BY id", int64(company))
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	var out []scheduling.Team
	for rows.Next() {
		var t scheduling.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.CompanyID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Members, err = s.members(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// members returns team members in declared order. Caller holds s.mu.
func (s *Store) members(ctx context.Context, team scheduling.TeamID) ([]scheduling.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM team_members WHERE team_id = ? ORDER BY position", int64(team))
	if err != nil {
		return nil, fmt.Errorf("failed to load team members: %w", err)
	}
	defer rows.Close()

	var out []scheduling.UserID
	for rows.Next() {
		var id scheduling.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// =============================================================================
// DIRECTORY - Write side (seeding, demo scenarios)
// =============================================================================

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) SaveCompany(ctx context.Context, c scheduling.Company) error {
	return s.exec(ctx, `
		INSERT INTO companies (id, name, location) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, location = excluded.location`,
		int64(c.ID), c.Name, c.Location)
}

func (s *Store) SaveDepartment(ctx context.Context, d scheduling.Department) error {
	return s.exec(ctx, `
		INSERT INTO departments (id, name, company_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, company_id = excluded.company_id`,
		int64(d.ID), d.Name, int64(d.CompanyID))
}

func (s *Store) SaveCategory(ctx context.Context, c scheduling.EquipmentCategory) error {
	return s.exec(ctx, `
		INSERT INTO equipment_categories (id, name, default_technician) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, default_technician = excluded.default_technician`,
		int64(c.ID), c.Name, nullID(c.DefaultTechnician))
}

func (s *Store) SaveEquipment(ctx context.Context, e scheduling.Equipment) error {
	return s.exec(ctx, `
		INSERT INTO equipment (`+equipmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, serial_number = excluded.serial_number,
			company_id = excluded.company_id, category_id = excluded.category_id,
			department_id = excluded.department_id, employee_id = excluded.employee_id`,
		int64(e.ID), e.Name, e.SerialNumber, int64(e.CompanyID), int64(e.CategoryID),
		nullID(e.DepartmentID), nullID(e.EmployeeID))
}

func (s *Store) SaveWorkCenter(ctx context.Context, wc scheduling.WorkCenter) error {
	return s.exec(ctx, `
		INSERT INTO work_centers (`+workCenterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, code = excluded.code, company_id = excluded.company_id,
			cost_per_hour = excluded.cost_per_hour, capacity = excluded.capacity,
			time_efficiency = excluded.time_efficiency, oee_target = excluded.oee_target`,
		int64(wc.ID), wc.Name, wc.Code, int64(wc.CompanyID),
		wc.CostPerHour.String(), wc.Capacity, wc.TimeEfficiency.String(), wc.OEETarget.String())
}

func (s *Store) SaveUser(ctx context.Context, u scheduling.User) error {
	return s.exec(ctx, `
		INSERT INTO users (id, email, role, company_id, department_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email, role = excluded.role,
			company_id = excluded.company_id, department_id = excluded.department_id`,
		int64(u.ID), u.Email, string(u.Role), int64(u.CompanyID), nullID(u.DepartmentID))
}

// SaveTeam replaces the team and its member list. Duplicate members keep
// their first position.
func (s *Store) SaveTeam(ctx context.Context, t scheduling.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO teams (id, name, company_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, company_id = excluded.company_id`,
		int64(t.ID), t.Name, int64(t.CompanyID)); err != nil {
		return fmt.Errorf("failed to save team: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM team_members WHERE team_id = ?", int64(t.ID)); err != nil {
		return fmt.Errorf("failed to clear team members: %w", err)
	}
	for pos, member := range t.Members {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO team_members (team_id, user_id, position) VALUES (?, ?, ?)",
			int64(t.ID), int64(member), pos); err != nil {
			return fmt.Errorf("failed to save team member: %w", err)
		}
	}
	return tx.Commit()
}
