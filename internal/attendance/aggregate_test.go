package attendance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/model"
	"rollcall/internal/store"
)

func putRecord(t *testing.T, m *store.Memory, s model.ClassSession, studentID string, status model.Status) {
	t.Helper()
	st, ok := m.FindStudentByID(studentID)
	require.True(t, ok)
	require.NoError(t, m.InsertAttendanceRecord(model.AttendanceRecord{
		ID:          fmt.Sprintf("R-%s-%s", s.ID, studentID),
		ClassID:     s.ID,
		ClassName:   s.Name,
		Subject:     s.Subject,
		StudentID:   st.ID,
		StudentName: st.Name,
		StudentUSN:  st.USN,
		Date:        s.Date,
		Time:        s.StartTime,
		Status:      status,
		TeacherID:   s.TeacherID,
		TeacherName: s.TeacherName,
	}))
}

// networksHistory gives student 1 three present, one late and one absent mark in
// Networks, spread over five days.
func networksHistory(t *testing.T) (*store.Memory, *Reports) {
	t.Helper()
	m, _, _ := fixture(t)
	statuses := []model.Status{model.StatusPresent, model.StatusPresent, model.StatusPresent, model.StatusLate, model.StatusAbsent}
	for i, status := range statuses {
		date := time.Date(2025, 3, 3+i, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
		s := addSession(t, m, fmt.Sprintf("N%d", i), "Networks", date, "09:00", []string{"1", "2", "3"}, false)
		putRecord(t, m, s, "1", status)
	}
	addSession(t, m, "OS1", "Operating Systems", testDate, "11:00", []string{"1", "2"}, true)
	return m, NewReports(m, time.UTC)
}

func TestSubjectPercentages(t *testing.T) {
	_, r := networksHistory(t)
	got := r.SubjectPercentages("1")
	require.Len(t, got, 1)
	assert.Equal(t, SubjectPercentage{Subject: "Networks", Percentage: 80, Present: 4, Total: 5}, got[0])

	assert.Empty(t, r.SubjectPercentages("2"))
}

func TestSubjectPercentagesAllIncludesZeroSubjects(t *testing.T) {
	_, r := networksHistory(t)
	got := r.SubjectPercentagesAll("1")
	require.Len(t, got, 2)
	assert.Equal(t, "Networks", got[0].Subject)
	assert.Equal(t, SubjectPercentage{Subject: "Operating Systems"}, got[1])

	none := r.SubjectPercentagesAll("3")
	require.Len(t, none, 1)
	assert.Equal(t, 0, none[0].Percentage)
}

func TestOverallStats(t *testing.T) {
	_, r := networksHistory(t)
	st := r.OverallStats("1")
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 3, st.Present)
	assert.Equal(t, 1, st.Late)
	assert.Equal(t, 1, st.Absent)
	assert.Equal(t, 80, st.OverallPercentage)
	assert.Len(t, st.BySubject, 2)

	empty := r.OverallStats("9")
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 0, empty.OverallPercentage)
}

func TestPercentageBounds(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	for total := 1; total <= 40; total++ {
		for attended := 0; attended <= total; attended++ {
			p := Percentage(attended, total)
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)
		}
	}
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 50, Percentage(1, 2))
	assert.Equal(t, 33, Percentage(1, 3))
}

func TestRosterForSubjectOnDate(t *testing.T) {
	m, r := networksHistory(t)
	c1, _ := m.FindClassByID("C1")
	putRecord(t, m, c1, "2", model.StatusLate)

	rows := r.RosterForSubjectOnDate("Networks", testDate)
	require.Len(t, rows, 3)

	assert.Equal(t, "1", rows[0].Student.ID)
	assert.True(t, rows[0].Inferred)
	assert.Equal(t, model.StatusAbsent, rows[0].Status)
	assert.Nil(t, rows[0].Record)

	assert.Equal(t, "2", rows[1].Student.ID)
	assert.False(t, rows[1].Inferred)
	assert.Equal(t, model.StatusLate, rows[1].Status)
	require.NotNil(t, rows[1].Record)

	_, _, _, records := m.Counts()
	assert.Equal(t, 6, records, "inferred rows are not stored")
}

func TestSubjectQueries(t *testing.T) {
	_, r := networksHistory(t)
	assert.Len(t, r.AttendanceForSubject("Networks"), 5)
	assert.Equal(t, []string{"2025-03-07", "2025-03-06", "2025-03-05", "2025-03-04", "2025-03-03"}, r.AttendanceDatesForSubject("Networks"))
	assert.Len(t, r.AttendanceByDateRange("2025-03-04", "2025-03-05"), 2)
	assert.Equal(t, []string{"Networks", "Operating Systems"}, r.SubjectsForTeacher("T1"))
	assert.Empty(t, r.SubjectsForTeacher("T2"))

	recent := r.RecentAttendance("1", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "2025-03-07", recent[0].Date)
	assert.Equal(t, "2025-03-06", recent[1].Date)
}

func TestSubjectSheets(t *testing.T) {
	_, r := networksHistory(t)
	sheets := r.SubjectSheets("Networks", "2025-03-05", "2025-03-06")
	require.Len(t, sheets, 2)
	assert.Equal(t, "2025-03-06", sheets[0].Date)
	assert.Equal(t, "09:00", sheets[0].StartTime)
	assert.Equal(t, "10:30", sheets[0].EndTime)
	require.Len(t, sheets[0].Rows, 3)
	assert.False(t, sheets[0].Rows[0].Inferred)
	assert.True(t, sheets[0].Rows[1].Inferred)
}
