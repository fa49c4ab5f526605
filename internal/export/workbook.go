package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rollcall/internal/attendance"
	"rollcall/internal/model"
)

// ErrNoRecords is returned when the selected range holds no attendance for the subject.
var ErrNoRecords = errors.New("no attendance records in range")

const (
	allDatesSheet = "All Dates"
	sheetLayout   = "Jan-02"
	yearLayout    = "Jan-02-2006"
	longLayout    = "Jan 02, 2006"
	editedLayout  = "2006-01-02 15:04"
	blank         = "-"
)

var dayColumns = []interface{}{"Serial No.", "USN", "Student Name", "Status", "Time", "Reason", "Marked By", "Edited By", "Edited At"}

var allColumns = []interface{}{"Date", "Serial No.", "USN", "Student Name", "Status", "Time", "Reason", "Marked By", "Edited By"}

// Request describes one subject export.
type Request struct {
	Subject string
	Teacher string
	From    string
	To      string
}

// FileName is the suggested download name.
func (r Request) FileName() string {
	return fmt.Sprintf("%s_Attendance_%s_to_%s.xlsx", strings.ReplaceAll(r.Subject, " ", "_"), r.From, r.To)
}

// Workbook renders one sheet per date, newest first, plus an "All Dates" sheet when
// more than one date is present. Sheets carry the year when the dates span several.
// Students without a record show as ABSENT.
func Workbook(req Request, sheets []attendance.DaySheet, loc *time.Location) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, ErrNoRecords
	}
	if loc == nil {
		loc = time.Local
	}
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	days, names, err := sheetNames(sheets)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	first := f.GetSheetName(0)
	for i, sheet := range sheets {
		day, name := days[i], names[i]
		if i == 0 {
			err = f.SetSheetName(first, name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeDay(f, name, req, sheet, day, bold, loc); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if len(sheets) > 1 {
		if _, err := f.NewSheet(allDatesSheet); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeAll(f, sheets, bold, loc); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// sheetNames parses every sheet date and picks a distinct tab name for each.
func sheetNames(sheets []attendance.DaySheet) ([]time.Time, []string, error) {
	days := make([]time.Time, len(sheets))
	years := make(map[int]struct{})
	for i, sheet := range sheets {
		day, err := time.Parse(model.DateLayout, sheet.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("sheet date %q: %w", sheet.Date, err)
		}
		days[i] = day
		years[day.Year()] = struct{}{}
	}
	layout := sheetLayout
	if len(years) > 1 {
		layout = yearLayout
	}

	names := make([]string, len(days))
	taken := map[string]bool{allDatesSheet: true}
	for i, day := range days {
		name := day.Format(layout)
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s (%d)", day.Format(layout), n)
		}
		taken[name] = true
		names[i] = name
	}
	return days, names, nil
}

// Write renders the workbook straight into w.
func Write(w io.Writer, req Request, sheets []attendance.DaySheet, loc *time.Location) error {
	f, err := Workbook(req, sheets, loc)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

func writeDay(f *excelize.File, name string, req Request, sheet attendance.DaySheet, day time.Time, bold int, loc *time.Location) error {
	header := [][]interface{}{
		{"Subject: " + req.Subject},
		{"Teacher: " + req.Teacher},
		{"Date: " + day.Format(longLayout)},
		{fmt.Sprintf("Time: %s - %s", sheet.StartTime, sheet.EndTime)},
		{},
		dayColumns,
	}
	for i, row := range header {
		if err := setRow(f, name, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(name, "A6", "I6", bold); err != nil {
		return err
	}
	for i, r := range sheet.Rows {
		cells := append([]interface{}{strconv.Itoa(i + 1)}, rowCells(r, loc)...)
		if err := setRow(f, name, i+7, cells); err != nil {
			return err
		}
	}
	return f.SetColWidth(name, "A", "I", 16)
}

func writeAll(f *excelize.File, sheets []attendance.DaySheet, bold int, loc *time.Location) error {
	if err := setRow(f, allDatesSheet, 1, allColumns); err != nil {
		return err
	}
	if err := f.SetCellStyle(allDatesSheet, "A1", "I1", bold); err != nil {
		return err
	}
	row := 2
	for _, sheet := range sheets {
		day, _ := time.Parse(model.DateLayout, sheet.Date)
		for i, r := range sheet.Rows {
			cells := rowCells(r, loc)
			cells = append([]interface{}{day.Format(longLayout), strconv.Itoa(i + 1)}, cells[:len(cells)-1]...)
			if err := setRow(f, allDatesSheet, row, cells); err != nil {
				return err
			}
			row++
		}
	}
	return f.SetColWidth(allDatesSheet, "A", "I", 16)
}

// rowCells renders a roster row from USN through Edited At.
func rowCells(r attendance.RosterRow, loc *time.Location) []interface{} {
	cells := []interface{}{r.Student.USN, r.Student.Name, strings.ToUpper(string(r.Status)), blank, blank, blank, blank, blank}
	if rec := r.Record; rec != nil {
		cells[3] = orBlank(rec.Time)
		cells[4] = orBlank(rec.Reason)
		cells[5] = orBlank(rec.MarkedBy)
		cells[6] = orBlank(rec.EditedBy)
		if rec.EditedAt != nil {
			cells[7] = rec.EditedAt.In(loc).Format(editedLayout)
		}
	}
	return cells
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	if len(cells) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func orBlank(s string) string {
	if s == "" {
		return blank
	}
	return s
}
