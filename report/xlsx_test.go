package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gearguard/maintenance-engine/report"
	"github.com/gearguard/maintenance-engine/scheduling"
)

func TestWriteRequests(t *testing.T) {
	// GIVEN: Two requests, one with two work-log entries
	// WHEN: Writing the workbook
	// THEN: Both sheets carry a header plus one row per record

	start := time.Date(2025, 12, 28, 10, 0, 0, 0, time.UTC)
	requests := []scheduling.Request{
		{ID: 2, Title: "Spindle noise", Type: scheduling.MaintenanceCorrective, Priority: scheduling.PriorityCritical,
			Status: scheduling.StatusInProgress, EquipmentID: 200, TeamID: 10, TechnicianID: 5, WorkCenterID: 100,
			ScheduledStart: start, DurationHours: 2, CreatedBy: 7, CreatedAt: start.Add(-48 * time.Hour)},
		{ID: 1, Title: "Quarterly lubrication", Type: scheduling.MaintenancePreventive, Priority: scheduling.PriorityLow,
			Status: scheduling.StatusScheduled, EquipmentID: 200, TeamID: 10, TechnicianID: 6, WorkCenterID: 101,
			ScheduledStart: start, DurationHours: 1, CreatedBy: 1, CreatedAt: start.Add(-72 * time.Hour)},
	}
	logs := map[scheduling.RequestID][]scheduling.WorkLogEntry{
		2: {
			{ID: 1, RequestID: 2, TechnicianID: 5, Note: "Started teardown", Status: scheduling.WorkLogInProgress, CreatedAt: start},
			{ID: 2, RequestID: 2, TechnicianID: 5, Note: "Waiting on bearing", Status: scheduling.WorkLogBlocked, CreatedAt: start.Add(time.Hour)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteRequests(&buf, requests, logs))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(report.RequestsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, []string{"2", "Spindle noise", "corrective", "critical", "in_progress"}, rows[1][:5])
	assert.Equal(t, "2025-12-28 10:00", rows[1][9])
	assert.Equal(t, "2025-12-28 12:00", rows[1][10])

	logRows, err := f.GetRows(report.WorkLogsSheet)
	require.NoError(t, err)
	require.Len(t, logRows, 3)
	assert.Equal(t, "Waiting on bearing", logRows[2][4])
	assert.Equal(t, "blocked", logRows[2][3])
}

func TestWriteRequests_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteRequests(&buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.RequestsSheet, report.WorkLogsSheet}, f.GetSheetList())
	rows, err := f.GetRows(report.RequestsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "maintenance_2025-12-01.xlsx", report.FileName(time.Date(2025, 12, 1, 23, 0, 0, 0, time.UTC)))
}
