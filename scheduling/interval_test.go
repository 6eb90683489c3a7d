package scheduling_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gearguard/maintenance-engine/scheduling"
)

func at(hour int) time.Time {
	return time.Date(2025, 12, 28, hour, 0, 0, 0, time.UTC)
}

func span(from, to int) scheduling.Interval {
	return scheduling.Interval{Start: at(from), End: at(to)}
}

func TestInterval_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b scheduling.Interval
		want bool
	}{
		{"identical", span(10, 12), span(10, 12), true},
		{"partial", span(10, 12), span(11, 13), true},
		{"contained", span(10, 14), span(11, 12), true},
		{"touching end to start", span(10, 12), span(12, 14), false},
		{"touching start to end", span(12, 14), span(10, 12), false},
		{"disjoint", span(8, 9), span(10, 12), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestWindowFor_IsHalfOpen(t *testing.T) {
	w := scheduling.WindowFor(at(10), 2)
	assert.Equal(t, at(10), w.Start)
	assert.Equal(t, at(12), w.End)
	assert.Equal(t, 2*time.Hour, w.Duration())
	assert.True(t, w.Valid())
	assert.False(t, scheduling.WindowFor(at(10), 0).Valid())
}

func TestPeakOverlap_CountsBusiestInstant(t *testing.T) {
	// GIVEN: Bookings 10-12 and 12-14 touch but never coexist
	// WHEN: Asking for the peak over 10-14
	// THEN: Only one is active at any instant

	held := []scheduling.Interval{span(10, 12), span(12, 14)}
	assert.Equal(t, 1, scheduling.PeakOverlap(span(10, 14), held))

	// GIVEN: A third booking 11-13 overlaps both
	held = append(held, span(11, 13))
	assert.Equal(t, 2, scheduling.PeakOverlap(span(10, 14), held))
}

func TestPeakOverlap_CountsDuringWindowNotJustAtStart(t *testing.T) {
	// GIVEN: A booking that starts in the middle of the window
	// WHEN: Checking a window that is free at its start
	// THEN: The later booking is still counted

	held := []scheduling.Interval{span(11, 12)}
	assert.Equal(t, 1, scheduling.PeakOverlap(span(10, 13), held))
	assert.False(t, scheduling.HasCapacity(span(10, 13), held, 1))
}

func TestPeakOverlap_IgnoresOutsideWindow(t *testing.T) {
	held := []scheduling.Interval{span(6, 8), span(8, 10), span(14, 16)}
	assert.Equal(t, 0, scheduling.PeakOverlap(span(10, 14), held))
}

func TestHasCapacity_NonOverlappingPairsFitCapacityTwo(t *testing.T) {
	// GIVEN: Capacity 2 with 10-11 and 12-13 booked (never simultaneous)
	// WHEN: Booking 10-13
	// THEN: Peak is 1, so one more fits; after that, 10-13 is full

	held := []scheduling.Interval{span(10, 11), span(12, 13)}
	assert.True(t, scheduling.HasCapacity(span(10, 13), held, 2))

	held = append(held, span(10, 13))
	assert.False(t, scheduling.HasCapacity(span(10, 13), held, 2))
}

func TestHasCapacity_ZeroCapacityMeansOne(t *testing.T) {
	assert.True(t, scheduling.HasCapacity(span(10, 12), nil, 0))
	assert.False(t, scheduling.HasCapacity(span(10, 12), []scheduling.Interval{span(9, 11)}, 0))
}
