package scheduling

// =============================================================================
// STATUS - Request lifecycle states
// =============================================================================
//
//   new ──▶ scheduled ──▶ in_progress ◀──▶ blocked
//                │              │              │
//                └──────────────┴──────────────┴──▶ completed
//
//   cancelled is reachable from every non-terminal state.

type Status string

const (
	StatusNew        Status = "new"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusNew:        {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled},
	StatusBlocked:    {StatusBlocked, StatusInProgress, StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusScheduled, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Holds reports whether a request in status s keeps its bookings.
func (s Status) Holds() bool {
	return s == StatusScheduled || s == StatusInProgress || s == StatusBlocked
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
