package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// =============================================================================
// INTERVAL INDEX - One lock per resource
// =============================================================================

// slot holds one resource's bookings sorted by window start. Reserve runs
// its capacity check and insert under mu, so two callers racing for the
// same resource are serialized while different resources proceed in parallel.
type slot struct {
	mu       sync.Mutex
	bookings []scheduling.Booking
}

func (m *Memory) slot(res scheduling.ResourceRef) *slot {
	s, _ := m.slots.LoadOrStore(res, &slot{})
	return s
}

// overlappingLocked returns the windows of bookings that overlap window.
func (s *slot) overlappingLocked(window scheduling.Interval) []scheduling.Interval {
	var held []scheduling.Interval
	for _, b := range s.bookings {
		if !b.Window.Start.Before(window.End) {
			break
		}
		if b.Window.Overlaps(window) {
			held = append(held, b.Window)
		}
	}
	return held
}

func (m *Memory) IsFree(_ context.Context, res scheduling.ResourceRef, window scheduling.Interval, capacity int) (bool, error) {
	s := m.slot(res)
	s.mu.Lock()
	defer s.mu.Unlock()
	return scheduling.HasCapacity(window, s.overlappingLocked(window), capacity), nil
}

func (m *Memory) Reserve(_ context.Context, res scheduling.ResourceRef, window scheduling.Interval, capacity int, owner scheduling.RequestID) (scheduling.BookingID, error) {
	if !window.Valid() {
		return "", fmt.Errorf("invalid window %s", window)
	}

	s := m.slot(res)
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.overlappingLocked(window)
	if !scheduling.HasCapacity(window, held, capacity) {
		return "", &scheduling.ConflictError{
			Resource: res,
			Window:   window,
			Capacity: capacity,
			Active:   scheduling.PeakOverlap(window, held),
		}
	}

	b := scheduling.Booking{
		ID:        scheduling.BookingID(uuid.NewString()),
		Resource:  res,
		Window:    window,
		RequestID: owner,
	}

	// Binary search for insertion point by start
	i := sort.Search(len(s.bookings), func(i int) bool {
		return s.bookings[i].Window.Start.After(window.Start)
	})
	s.bookings = append(s.bookings, scheduling.Booking{})
	copy(s.bookings[i+1:], s.bookings[i:])
	s.bookings[i] = b

	m.bookings.Store(b.ID, res)
	return b.ID, nil
}

func (m *Memory) Release(_ context.Context, id scheduling.BookingID) error {
	res, ok := m.bookings.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("%w: %s", scheduling.ErrBookingNotFound, id)
	}

	s := m.slot(res)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.bookings {
		if b.ID == id {
			s.bookings = append(s.bookings[:i], s.bookings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", scheduling.ErrBookingNotFound, id)
}

func (m *Memory) Bookings(_ context.Context, res scheduling.ResourceRef, window scheduling.Interval) ([]scheduling.Booking, error) {
	s := m.slot(res)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduling.Booking
	for _, b := range s.bookings {
		if b.Window.Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}
