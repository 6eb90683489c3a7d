package scheduling

import (
	"slices"
	"time"
)

// =============================================================================
// INTERVAL - Half-open availability window
// =============================================================================

// Interval is the half-open window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// MaxDurationHours bounds a single booking to one year.
const MaxDurationHours = 24 * 365

// WindowFor returns [start, start+hours).
func WindowFor(start time.Time, hours int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(hours) * time.Hour)}
}

// Valid reports whether the interval has positive length.
func (i Interval) Valid() bool { return i.End.After(i.Start) }

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Overlaps reports whether two windows share an instant. Touching endpoints
// do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) String() string {
	return "[" + i.Start.UTC().Format(time.RFC3339) + ", " + i.End.UTC().Format(time.RFC3339) + ")"
}

// =============================================================================
// PEAK OVERLAP - How many bookings are active at the busiest instant
// =============================================================================

// PeakOverlap returns the largest number of the given intervals that are
// simultaneously active at any instant inside window. Intervals outside the
// window are ignored.
//
// A sweep over start/end edges: an end and a start at the same instant never
// coexist, so ends are processed first.
func PeakOverlap(window Interval, held []Interval) int {
	type edge struct {
		at    time.Time
		delta int
	}

	edges := make([]edge, 0, len(held)*2)
	for _, h := range held {
		if !h.Overlaps(window) {
			continue
		}
		start, end := h.Start, h.End
		if start.Before(window.Start) {
			start = window.Start
		}
		if end.After(window.End) {
			end = window.End
		}
		edges = append(edges, edge{at: start, delta: 1}, edge{at: end, delta: -1})
	}

	slices.SortFunc(edges, func(a, b edge) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return a.delta - b.delta
	})

	active, peak := 0, 0
	for _, e := range edges {
		active += e.delta
		if active > peak {
			peak = active
		}
	}
	return peak
}

// HasCapacity reports whether one more booking fits in window given the
// already held intervals and the resource capacity.
func HasCapacity(window Interval, held []Interval, capacity int) bool {
	if capacity < 1 {
		capacity = 1
	}
	return PeakOverlap(window, held) < capacity
}
