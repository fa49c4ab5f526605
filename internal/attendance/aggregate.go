package attendance

import (
	"math"
	"slices"
	"sort"
	"time"

	"rollcall/internal/model"
)

// Reader is the read side of the entity store used for reporting.
type Reader interface {
	Students() []model.Student
	SessionsWhere(keep func(model.ClassSession) bool) []model.ClassSession
	RecordsWhere(keep func(model.AttendanceRecord) bool) []model.AttendanceRecord
}

// Reports computes attendance aggregates on demand. Nothing is cached.
type Reports struct {
	store Reader
	loc   *time.Location
}

// NewReports creates the aggregation engine.
func NewReports(st Reader, loc *time.Location) *Reports {
	if loc == nil {
		loc = time.Local
	}
	return &Reports{store: st, loc: loc}
}

// SubjectPercentage is one subject line of a student's report.
type SubjectPercentage struct {
	Subject    string `json:"subject"`
	Percentage int    `json:"percentage"`
	Present    int    `json:"present"`
	Total      int    `json:"total"`
}

// Stats is a student's overall attendance summary.
type Stats struct {
	Total             int                 `json:"total"`
	Present           int                 `json:"present"`
	Absent            int                 `json:"absent"`
	Late              int                 `json:"late"`
	OverallPercentage int                 `json:"overallPercentage"`
	BySubject         []SubjectPercentage `json:"bySubject"`
}

// RosterRow is one enrolled student on a roster. Inferred rows have no stored record
// and are reported absent.
type RosterRow struct {
	Student  model.Student           `json:"student"`
	Record   *model.AttendanceRecord `json:"record,omitempty"`
	Status   model.Status            `json:"status"`
	Inferred bool                    `json:"inferred"`
}

// DaySheet groups a subject's roster for one date, as used by the spreadsheet export.
type DaySheet struct {
	Date      string
	StartTime string
	EndTime   string
	Rows      []RosterRow
}

// Percentage rounds attended/total to a whole percent, 0 when total is 0.
func Percentage(attended, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(attended) / float64(total)))
}

type tally struct{ present, total int }

func (r *Reports) tallyBySubject(records []model.AttendanceRecord) map[string]*tally {
	out := make(map[string]*tally)
	for _, rec := range records {
		t, ok := out[rec.Subject]
		if !ok {
			t = &tally{}
			out[rec.Subject] = t
		}
		t.total++
		if rec.Status.Attended() {
			t.present++
		}
	}
	return out
}

// subjectOrder lists the subjects of sessions matching keep in the order they were
// first scheduled, followed by extra subjects not yet seen.
func (r *Reports) subjectOrder(keep func(model.ClassSession) bool, extra []model.AttendanceRecord) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range r.store.SessionsWhere(keep) {
		if !seen[s.Subject] {
			seen[s.Subject] = true
			out = append(out, s.Subject)
		}
	}
	for _, rec := range extra {
		if !seen[rec.Subject] {
			seen[rec.Subject] = true
			out = append(out, rec.Subject)
		}
	}
	return out
}

// SubjectPercentages reports per-subject attendance for a student, omitting subjects
// with no records.
func (r *Reports) SubjectPercentages(studentID string) []SubjectPercentage {
	records := r.AttendanceForStudent(studentID)
	counts := r.tallyBySubject(records)
	out := []SubjectPercentage{}
	for _, subject := range r.subjectOrder(nil, records) {
		t, ok := counts[subject]
		if !ok || t.total == 0 {
			continue
		}
		out = append(out, SubjectPercentage{Subject: subject, Percentage: Percentage(t.present, t.total), Present: t.present, Total: t.total})
	}
	return out
}

// SubjectPercentagesAll reports every subject the student is enrolled in or has
// records for, with 0% where there are no records.
func (r *Reports) SubjectPercentagesAll(studentID string) []SubjectPercentage {
	records := r.AttendanceForStudent(studentID)
	counts := r.tallyBySubject(records)
	enrolled := func(s model.ClassSession) bool { return s.Enrolls(studentID) }
	out := []SubjectPercentage{}
	for _, subject := range r.subjectOrder(enrolled, records) {
		line := SubjectPercentage{Subject: subject}
		if t, ok := counts[subject]; ok {
			line.Present, line.Total = t.present, t.total
			line.Percentage = Percentage(t.present, t.total)
		}
		out = append(out, line)
	}
	return out
}

// OverallStats counts a student's marks across all subjects.
func (r *Reports) OverallStats(studentID string) Stats {
	var st Stats
	for _, rec := range r.AttendanceForStudent(studentID) {
		st.Total++
		switch rec.Status {
		case model.StatusPresent:
			st.Present++
		case model.StatusAbsent:
			st.Absent++
		case model.StatusLate:
			st.Late++
		}
	}
	st.OverallPercentage = Percentage(st.Present+st.Late, st.Total)
	st.BySubject = r.SubjectPercentagesAll(studentID)
	return st
}

// AttendanceForStudent returns every record of a student.
func (r *Reports) AttendanceForStudent(studentID string) []model.AttendanceRecord {
	return r.store.RecordsWhere(func(rec model.AttendanceRecord) bool { return rec.StudentID == studentID })
}

// RecentAttendance returns the student's newest records first. limit <= 0 means 10.
func (r *Reports) RecentAttendance(studentID string, limit int) []model.AttendanceRecord {
	if limit <= 0 {
		limit = 10
	}
	records := r.AttendanceForStudent(studentID)
	slices.SortStableFunc(records, func(a, b model.AttendanceRecord) int {
		return b.MarkedAt(r.loc).Compare(a.MarkedAt(r.loc))
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

// AttendanceForClass returns the records of one session.
func (r *Reports) AttendanceForClass(classID string) []model.AttendanceRecord {
	return r.store.RecordsWhere(func(rec model.AttendanceRecord) bool { return rec.ClassID == classID })
}

// AttendanceForSubject returns the records across all sessions of a subject.
func (r *Reports) AttendanceForSubject(subject string) []model.AttendanceRecord {
	return r.store.RecordsWhere(func(rec model.AttendanceRecord) bool { return rec.Subject == subject })
}

// AttendanceDatesForSubject lists the dates with records for a subject, newest first.
func (r *Reports) AttendanceDatesForSubject(subject string) []string {
	return uniqueDatesDesc(r.AttendanceForSubject(subject))
}

// AttendanceByDateRange returns records dated between from and to inclusive (YYYY-MM-DD).
func (r *Reports) AttendanceByDateRange(from, to string) []model.AttendanceRecord {
	return r.store.RecordsWhere(func(rec model.AttendanceRecord) bool {
		return rec.Date >= from && rec.Date <= to
	})
}

// SubjectsForTeacher lists the distinct subjects a teacher holds sessions for, sorted.
func (r *Reports) SubjectsForTeacher(teacherID string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, s := range r.store.SessionsWhere(func(s model.ClassSession) bool { return s.TeacherID == teacherID }) {
		if !seen[s.Subject] {
			seen[s.Subject] = true
			out = append(out, s.Subject)
		}
	}
	sort.Strings(out)
	return out
}

// SubjectRoster returns every student enrolled in any session of the subject, in
// store order.
func (r *Reports) SubjectRoster(subject string) []model.Student {
	enrolled := make(map[string]bool)
	for _, s := range r.store.SessionsWhere(func(s model.ClassSession) bool { return s.Subject == subject }) {
		for _, id := range s.StudentIDs {
			enrolled[id] = true
		}
	}
	var out []model.Student
	for _, st := range r.store.Students() {
		if enrolled[st.ID] {
			out = append(out, st)
		}
	}
	return out
}

// RosterForSubjectOnDate pairs every enrolled student with their record on date. A
// student with no record gets an inferred absent row; nothing is stored for it.
func (r *Reports) RosterForSubjectOnDate(subject, date string) []RosterRow {
	records := r.store.RecordsWhere(func(rec model.AttendanceRecord) bool {
		return rec.Subject == subject && rec.Date == date
	})
	return r.roster(subject, records)
}

func (r *Reports) roster(subject string, records []model.AttendanceRecord) []RosterRow {
	byStudent := make(map[string]model.AttendanceRecord, len(records))
	for _, rec := range records {
		if _, ok := byStudent[rec.StudentID]; !ok {
			byStudent[rec.StudentID] = rec
		}
	}
	students := r.SubjectRoster(subject)
	rows := make([]RosterRow, 0, len(students))
	for _, st := range students {
		row := RosterRow{Student: st, Status: model.StatusAbsent, Inferred: true}
		if rec, ok := byStudent[st.ID]; ok {
			row.Record, row.Status, row.Inferred = &rec, rec.Status, false
		}
		rows = append(rows, row)
	}
	return rows
}

// SubjectSheets builds one roster per date with records for the subject between
// from and to, newest date first.
func (r *Reports) SubjectSheets(subject, from, to string) []DaySheet {
	records := r.store.RecordsWhere(func(rec model.AttendanceRecord) bool {
		return rec.Subject == subject && rec.Date >= from && rec.Date <= to
	})
	var sheets []DaySheet
	for _, date := range uniqueDatesDesc(records) {
		var day []model.AttendanceRecord
		for _, rec := range records {
			if rec.Date == date {
				day = append(day, rec)
			}
		}
		sheet := DaySheet{Date: date, Rows: r.roster(subject, day)}
		classID := day[0].ClassID
		if sessions := r.store.SessionsWhere(func(s model.ClassSession) bool { return s.ID == classID }); len(sessions) > 0 {
			sheet.StartTime, sheet.EndTime = sessions[0].StartTime, sessions[0].EndTime
		}
		sheets = append(sheets, sheet)
	}
	return sheets
}

func uniqueDatesDesc(records []model.AttendanceRecord) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, rec := range records {
		if !seen[rec.Date] {
			seen[rec.Date] = true
			out = append(out, rec.Date)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
