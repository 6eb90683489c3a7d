/*
resolver.go - Availability proposals

PURPOSE:
  Answers "who and where could do this job in this window?" without
  reserving anything. The client may abandon a proposal, so Propose is
  strictly read-only; the commit re-validates through IntervalIndex.Reserve.

ALGORITHM:
  1. Equipment and team must belong to the same company
  2. Candidate centers: every work center of that company with a free slot
     over [start, start+duration), ordered by cost_per_hour then id
  3. Candidate technician: the FIRST free member in declared team order
     (first-fit; earlier members are preferred, not the least loaded)
  4. No center or no technician -> unavailable proposal, not an error

SEE ALSO:
  - interval.go: Capacity semantics
  - manager.go: Create consumes a proposal
*/
package scheduling

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"
)

// NoAvailabilityReason explains an empty proposal.
type NoAvailabilityReason string

const (
	NoWorkCenter NoAvailabilityReason = "no_work_center"
	NoTechnician NoAvailabilityReason = "no_technician"
)

// Proposal is the resolver's answer for one window.
type Proposal struct {
	Equipment   Equipment
	Team        Team
	Window      Interval
	WorkCenters []WorkCenter
	Technician  *User
	Reason      NoAvailabilityReason
}

// Available reports whether both a center and a technician were found.
func (p *Proposal) Available() bool {
	return p.Reason == "" && p.Technician != nil && len(p.WorkCenters) > 0
}

// Resolver builds proposals from the directory and the interval index.
type Resolver struct {
	Directory Directory
	Index     IntervalIndex
	Metrics   Metrics

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewResolver(dir Directory, index IntervalIndex) *Resolver {
	return &Resolver{Directory: dir, Index: index, Metrics: NopMetrics{}, Clock: time.Now}
}

func (r *Resolver) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock()
}

func (r *Resolver) metrics() Metrics {
	if r.Metrics == nil {
		return NopMetrics{}
	}
	return r.Metrics
}

// Propose computes an availability proposal. It never reserves.
func (r *Resolver) Propose(ctx context.Context, equipmentID EquipmentID, teamID TeamID, start time.Time, hours int) (*Proposal, error) {
	if err := validateWindow(start, hours, r.now()); err != nil {
		return nil, err
	}

	equipment, team, err := r.resolveScope(ctx, equipmentID, teamID)
	if err != nil {
		return nil, err
	}

	window := WindowFor(start, hours)
	proposal := &Proposal{Equipment: *equipment, Team: *team, Window: window}

	proposal.WorkCenters, err = r.FreeWorkCenters(ctx, equipment.CompanyID, window)
	if err != nil {
		return nil, err
	}
	proposal.Technician, err = r.FirstFreeTechnician(ctx, *team, window)
	if err != nil {
		return nil, err
	}

	switch {
	case len(proposal.WorkCenters) == 0:
		proposal.Reason = NoWorkCenter
	case proposal.Technician == nil:
		proposal.Reason = NoTechnician
	}

	r.metrics().ProposalServed(proposal.Available(), proposal.Reason)
	return proposal, nil
}

// resolveScope loads equipment and team and checks they share a company.
func (r *Resolver) resolveScope(ctx context.Context, equipmentID EquipmentID, teamID TeamID) (*Equipment, *Team, error) {
	equipment, err := r.Directory.GetEquipment(ctx, equipmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load equipment: %w", err)
	}
	if equipment == nil {
		return nil, nil, invalid("equipment", "unknown equipment %d", equipmentID)
	}

	team, err := r.Directory.GetTeam(ctx, teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load team: %w", err)
	}
	if team == nil {
		return nil, nil, invalid("maintenance_team", "unknown maintenance team %d", teamID)
	}
	if team.CompanyID != equipment.CompanyID {
		return nil, nil, &CrossCompanyError{
			Resource:   "maintenance_team",
			ResourceID: int64(team.ID),
			Expected:   equipment.CompanyID,
			Actual:     team.CompanyID,
		}
	}
	return equipment, team, nil
}

// FreeWorkCenters returns the company's centers with a free slot over
// window, cheapest first, ties broken by id.
func (r *Resolver) FreeWorkCenters(ctx context.Context, company CompanyID, window Interval) ([]WorkCenter, error) {
	centers, err := r.Directory.ListWorkCenters(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("failed to list work centers: %w", err)
	}

	free := make([]WorkCenter, 0, len(centers))
	for _, wc := range centers {
		ok, err := r.Index.IsFree(ctx, WorkCenterRef(wc.ID), window, wc.EffectiveCapacity())
		if err != nil {
			return nil, fmt.Errorf("failed to check work center %d: %w", wc.ID, err)
		}
		if ok {
			free = append(free, wc)
		}
	}

	slices.SortFunc(free, func(a, b WorkCenter) int {
		if c := a.CostPerHour.Cmp(b.CostPerHour); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return free, nil
}

// FirstFreeTechnician walks team members in declared order and returns the
// first eligible technician free over window, or nil.
func (r *Resolver) FirstFreeTechnician(ctx context.Context, team Team, window Interval) (*User, error) {
	return r.firstFit(ctx, team, window, 0)
}

// firstFit is FirstFreeTechnician where holder already owns window and
// counts as free.
func (r *Resolver) firstFit(ctx context.Context, team Team, window Interval, holder UserID) (*User, error) {
	for _, member := range team.Members {
		user, err := r.Directory.GetUser(ctx, member)
		if err != nil {
			return nil, fmt.Errorf("failed to load team member %d: %w", member, err)
		}
		if !eligibleTechnician(user, team.CompanyID) {
			continue
		}
		if holder != 0 && user.ID == holder {
			return user, nil
		}
		ok, err := r.Index.IsFree(ctx, TechnicianRef(user.ID), window, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to check technician %d: %w", user.ID, err)
		}
		if ok {
			return user, nil
		}
	}
	return nil, nil
}

func eligibleTechnician(u *User, company CompanyID) bool {
	return u != nil && u.Role == RoleTechnician && u.CompanyID == company
}

func validateWindow(start time.Time, hours int, now time.Time) error {
	if start.IsZero() {
		return invalid("scheduled_start", "is required")
	}
	if hours < 1 {
		return invalid("duration_hours", "must be at least 1, got %d", hours)
	}
	if hours > MaxDurationHours || !WindowFor(start, hours).Valid() {
		return invalid("duration_hours", "must be at most %d, got %d", MaxDurationHours, hours)
	}
	if start.Before(now) {
		return invalid("scheduled_start", "cannot be in the past")
	}
	return nil
}
