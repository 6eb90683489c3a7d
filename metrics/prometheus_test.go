package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearguard/maintenance-engine/metrics"
	"github.com/gearguard/maintenance-engine/scheduling"
)

func TestPrometheus_CountsEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheus(reg, "test")

	m.ProposalServed(true, "")
	m.ProposalServed(false, scheduling.NoTechnician)
	m.ProposalServed(false, scheduling.NoTechnician)
	m.ReservationConflict(scheduling.ResourceTechnician)
	m.StatusChanged(scheduling.StatusScheduled)
	m.ReassignmentRecorded(scheduling.ReassignmentRejected)

	expected := `
# HELP test_scheduling_proposals_total Availability proposals served by outcome (available, no_work_center, no_technician).
# TYPE test_scheduling_proposals_total counter
test_scheduling_proposals_total{outcome="available"} 1
test_scheduling_proposals_total{outcome="no_technician"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_scheduling_proposals_total"))

	count, err := testutil.GatherAndCount(reg,
		"test_scheduling_reservation_conflicts_total",
		"test_lifecycle_transitions_total",
		"test_lifecycle_reassignments_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPrometheus_NothingRegisteredUntilUsed(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewPrometheus(reg, "")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
