// Package report renders maintenance requests as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gearguard/maintenance-engine/scheduling"
)

const (
	RequestsSheet = "Requests"
	WorkLogsSheet = "Work Logs"

	// ContentType is the MIME type of the workbook WriteRequests produces.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	cellTime = "2006-01-02 15:04"
)

var requestHeaders = []interface{}{
	"ID", "Title", "Type", "Priority", "Status", "Equipment", "Team",
	"Technician", "Work Center", "Scheduled Start", "Scheduled End",
	"Duration (h)", "Created By", "Created At",
}

var workLogHeaders = []interface{}{
	"Request ID", "Entry ID", "Technician", "Status", "Note", "Logged At",
}

// WriteRequests writes a workbook with one row per request on the Requests
// sheet and every work-log entry of those requests on the Work Logs sheet.
func WriteRequests(w io.Writer, requests []scheduling.Request, logs map[scheduling.RequestID][]scheduling.WorkLogEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RequestsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(WorkLogsSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeHeader(f, RequestsSheet, requestHeaders, bold); err != nil {
		return err
	}
	row := 2
	for _, req := range requests {
		window := req.Window()
		values := []interface{}{
			int64(req.ID), req.Title, string(req.Type), string(req.Priority), string(req.Status),
			int64(req.EquipmentID), int64(req.TeamID), int64(req.TechnicianID), int64(req.WorkCenterID),
			window.Start.UTC().Format(cellTime), window.End.UTC().Format(cellTime),
			req.DurationHours, int64(req.CreatedBy), req.CreatedAt.UTC().Format(cellTime),
		}
		if err := setRow(f, RequestsSheet, row, values); err != nil {
			return err
		}
		row++
	}
	f.SetColWidth(RequestsSheet, "B", "B", 40)
	f.SetColWidth(RequestsSheet, "J", "K", 18)
	f.SetColWidth(RequestsSheet, "N", "N", 18)

	if err := writeHeader(f, WorkLogsSheet, workLogHeaders, bold); err != nil {
		return err
	}
	row = 2
	for _, req := range requests {
		for _, entry := range logs[req.ID] {
			values := []interface{}{
				int64(entry.RequestID), int64(entry.ID), int64(entry.TechnicianID),
				string(entry.Status), entry.Note, entry.CreatedAt.UTC().Format(cellTime),
			}
			if err := setRow(f, WorkLogsSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}
	f.SetColWidth(WorkLogsSheet, "E", "E", 60)
	f.SetColWidth(WorkLogsSheet, "F", "F", 18)

	return f.Write(w)
}

// FileName is the attachment name for an export produced at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("maintenance_%s.xlsx", now.UTC().Format("2006-01-02"))
}

func writeHeader(f *excelize.File, sheet string, headers []interface{}, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	return f.SetSheetRow(sheet, "A"+strconv.Itoa(row), &values)
}
