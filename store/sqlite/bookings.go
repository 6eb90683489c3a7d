package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// INTERVAL INDEX (scheduling.IntervalIndex interface)
// =============================================================================

func (s *Store) overlapping(ctx context.Context, db querier, res scheduling.ResourceRef, window scheduling.Interval) ([]scheduling.Booking, error) {
	// Half-open overlap: start_at < window.End AND end_at > window.Start
	rows, err := db.QueryContext(ctx, `
		SELECT id, start_at, end_at, request_id
		FROM bookings
		WHERE resource_kind = ? AND resource_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		string(res.Kind), res.ID, formatTime(window.End), formatTime(window.Start))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Booking
	for rows.Next() {
		var (
			b          scheduling.Booking
			start, end string
		)
		if err := rows.Scan(&b.ID, &start, &end, &b.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		if b.Window.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if b.Window.End, err = parseTime(end); err != nil {
			return nil, err
		}
		b.Resource = res
		out = append(out, b)
	}
	return out, rows.Err()
}

func windows(bookings []scheduling.Booking) []scheduling.Interval {
	out := make([]scheduling.Interval, len(bookings))
	for i, b := range bookings {
		out[i] = b.Window
	}
	return out
}

func (s *Store) IsFree(ctx context.Context, res scheduling.ResourceRef, window scheduling.Interval, capacity int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held, err := s.overlapping(ctx, s.db, res, window)
	if err != nil {
		return false, err
	}
	return scheduling.HasCapacity(window, windows(held), capacity), nil
}

// Reserve checks capacity and inserts inside one write transaction.
func (s *Store) Reserve(ctx context.Context, res scheduling.ResourceRef, window scheduling.Interval, capacity int, owner scheduling.RequestID) (scheduling.BookingID, error) {
	if !window.Valid() {
		return "", fmt.Errorf("invalid window %s", window)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	held, err := s.overlapping(ctx, tx, res, window)
	if err != nil {
		return "", err
	}
	intervals := windows(held)
	if !scheduling.HasCapacity(window, intervals, capacity) {
		return "", &scheduling.ConflictError{
			Resource: res,
			Window:   window,
			Capacity: capacity,
			Active:   scheduling.PeakOverlap(window, intervals),
		}
	}

	id := scheduling.BookingID(uuid.NewString())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (id, resource_kind, resource_id, start_at, end_at, request_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(id), string(res.Kind), res.ID, formatTime(window.Start), formatTime(window.End), int64(owner),
	); err != nil {
		return "", fmt.Errorf("failed to insert booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit booking: %w", err)
	}
	return id, nil
}

func (s *Store) Release(ctx context.Context, id scheduling.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to release booking: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", scheduling.ErrBookingNotFound, id)
	}
	return nil
}

func (s *Store) Bookings(ctx context.Context, res scheduling.ResourceRef, window scheduling.Interval) ([]scheduling.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlapping(ctx, s.db, res, window)
}
