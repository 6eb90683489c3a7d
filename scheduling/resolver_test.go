package scheduling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearguard/maintenance-engine/scheduling"
)

func TestPropose_FirstFitPicksFirstDeclaredMember(t *testing.T) {
	// GIVEN: Team [5, 6] both free on Dec 28 10:00 for 2h
	// WHEN: Proposing for the press
	// THEN: Technician 5 is chosen and centers come cheapest first

	f := newFixture(t)
	p, err := f.manager.Propose(context.Background(), f.user, press, mechanical, dec28, 2)
	require.NoError(t, err)

	require.True(t, p.Available())
	assert.Equal(t, tech5, p.Technician.ID)
	require.Len(t, p.WorkCenters, 2)
	assert.Equal(t, centerW, p.WorkCenters[0].ID)
	assert.Equal(t, centerBig, p.WorkCenters[1].ID)
	assert.Equal(t, scheduling.WindowFor(dec28, 2), p.Window)
}

func TestPropose_SkipsBookedMember(t *testing.T) {
	// GIVEN: Technician 5 already booked 10:00-12:00 elsewhere
	// WHEN: Proposing the same window
	// THEN: Technician 6 is chosen, order preserved

	f := newFixture(t)
	_, err := f.store.Reserve(context.Background(), scheduling.TechnicianRef(tech5), scheduling.WindowFor(dec28, 2), 1, 999)
	require.NoError(t, err)

	p, err := f.manager.Propose(context.Background(), f.user, press, mechanical, dec28, 2)
	require.NoError(t, err)
	require.True(t, p.Available())
	assert.Equal(t, tech6, p.Technician.ID)
}

func TestPropose_TouchingBookingDoesNotBlock(t *testing.T) {
	// GIVEN: Technician 5 booked 08:00-10:00
	// WHEN: Proposing 10:00-12:00
	// THEN: Technician 5 is still free

	f := newFixture(t)
	_, err := f.store.Reserve(context.Background(), scheduling.TechnicianRef(tech5), scheduling.WindowFor(dec28.Add(-2*time.Hour), 2), 1, 999)
	require.NoError(t, err)

	p, err := f.manager.Propose(context.Background(), f.user, press, mechanical, dec28, 2)
	require.NoError(t, err)
	assert.Equal(t, tech5, p.Technician.ID)
}

func TestPropose_NoTechnicianIsNotAnError(t *testing.T) {
	f := newFixture(t)

	p, err := f.manager.Propose(context.Background(), f.user, press, emptyTeam, dec28, 2)
	require.NoError(t, err)
	assert.False(t, p.Available())
	assert.Equal(t, scheduling.NoTechnician, p.Reason)
	assert.Len(t, p.WorkCenters, 2)
}

func TestPropose_NoWorkCenter(t *testing.T) {
	// GIVEN: Both centers full for the window
	ctx := context.Background()
	f := newFixture(t)
	w := scheduling.WindowFor(dec28, 2)
	_, err := f.store.Reserve(ctx, scheduling.WorkCenterRef(centerW), w, 1, 900)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := f.store.Reserve(ctx, scheduling.WorkCenterRef(centerBig), w, 2, scheduling.RequestID(901+i))
		require.NoError(t, err)
	}

	p, err := f.manager.Propose(ctx, f.user, press, mechanical, dec28, 2)
	require.NoError(t, err)
	assert.False(t, p.Available())
	assert.Equal(t, scheduling.NoWorkCenter, p.Reason)
}

func TestPropose_CapacityTwoCenterStaysAvailableWithOneBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.Reserve(ctx, scheduling.WorkCenterRef(centerBig), scheduling.WindowFor(dec28, 2), 2, 900)
	require.NoError(t, err)
	_, err = f.store.Reserve(ctx, scheduling.WorkCenterRef(centerW), scheduling.WindowFor(dec28, 2), 1, 901)
	require.NoError(t, err)

	p, err := f.manager.Propose(ctx, f.user, press, mechanical, dec28, 2)
	require.NoError(t, err)
	require.Len(t, p.WorkCenters, 1)
	assert.Equal(t, centerBig, p.WorkCenters[0].ID)
}

func TestPropose_CrossCompanyTeamRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Propose(context.Background(), f.admin, press, foreign, dec28, 2)

	var cross *scheduling.CrossCompanyError
	require.ErrorAs(t, err, &cross)
	assert.Equal(t, scheduling.CompanyID(1), cross.Expected)
	assert.Equal(t, scheduling.CompanyID(2), cross.Actual)
	assert.True(t, scheduling.IsClientError(err))
}

func TestPropose_CallerConfinedToOwnCompany(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Propose(context.Background(), f.user, lathe2, foreign, dec28, 2)
	assert.ErrorIs(t, err, scheduling.ErrCrossCompany)

	_, err = f.manager.Propose(context.Background(), f.admin, lathe2, foreign, dec28, 2)
	assert.NoError(t, err)
}

func TestPropose_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		equipment scheduling.EquipmentID
		team      scheduling.TeamID
		start     time.Time
		hours     int
		field     string
	}{
		{"zero duration", press, mechanical, dec28, 0, "duration_hours"},
		{"duration over a year", press, mechanical, dec28, scheduling.MaxDurationHours + 1, "duration_hours"},
		{"duration that overflows the window", press, mechanical, dec28, 3_000_000, "duration_hours"},
		{"past start", press, mechanical, fixtureNow.Add(-time.Hour), 2, "scheduled_start"},
		{"missing start", press, mechanical, time.Time{}, 2, "scheduled_start"},
		{"unknown equipment", 9999, mechanical, dec28, 2, "equipment"},
		{"unknown team", press, 9999, dec28, 2, "maintenance_team"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Propose(ctx, f.user, tt.equipment, tt.team, tt.start, tt.hours)
			var verr *scheduling.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPropose_TechnicianRoleForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Propose(context.Background(), technician(tech5), press, mechanical, dec28, 2)
	assert.ErrorIs(t, err, scheduling.ErrForbidden)
}

func TestPropose_NeverReserves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.manager.Propose(ctx, f.user, press, mechanical, dec28, 2)
		require.NoError(t, err)
	}

	bookings, err := f.store.Bookings(ctx, scheduling.TechnicianRef(tech5), scheduling.WindowFor(dec28, 2))
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestFirstFreeTechnician_SkipsNonTechniciansAndOtherCompanies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	team := scheduling.Team{ID: 77, CompanyID: 1, Members: []scheduling.UserID{requesterID, tech8, adminID, tech6}}

	u, err := f.manager.Resolver().FirstFreeTechnician(ctx, team, scheduling.WindowFor(dec28, 1))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, tech6, u.ID)
}
