package store

import (
	"fmt"
	"time"

	"rollcall/internal/model"
)

var seedStudents = []model.Student{
	{ID: "1", Name: "Aarav Sharma", Email: "aarav.sharma@example.com", USN: "1BY24CS001", Course: "Computer Science", Semester: 3},
	{ID: "2", Name: "Vivaan Patel", Email: "vivaan.patel@example.com", USN: "1BY24CS002", Course: "Computer Science", Semester: 3},
	{ID: "3", Name: "Aditya Verma", Email: "aditya.verma@example.com", USN: "1BY24CS003", Course: "Computer Science", Semester: 3},
	{ID: "4", Name: "Diya Gupta", Email: "diya.gupta@example.com", USN: "1BY24CS004", Course: "Computer Science", Semester: 3},
	{ID: "5", Name: "Ishaan Kumar", Email: "ishaan.kumar@example.com", USN: "1BY24CS005", Course: "Computer Science", Semester: 3},
	{ID: "6", Name: "Ananya Reddy", Email: "ananya.reddy@example.com", USN: "1BY24CS006", Course: "Computer Science", Semester: 3},
	{ID: "7", Name: "Rohan Singh", Email: "rohan.singh@example.com", USN: "1BY24CS007", Course: "Computer Science", Semester: 3},
	{ID: "8", Name: "Kavya Iyer", Email: "kavya.iyer@example.com", USN: "1BY24CS008", Course: "Computer Science", Semester: 3},
}

var seedTeachers = []model.Teacher{
	{ID: "T1", Name: "Dr. Anjali Mehta", Email: "anjali.mehta@university.edu", Department: "Computer Science"},
	{ID: "T2", Name: "Prof. Rajesh Iyer", Email: "rajesh.iyer@university.edu", Department: "Mathematics"},
	{ID: "T3", Name: "Dr. Priya Sharma", Email: "priya.sharma@university.edu", Department: "Physics"},
}

type seedSession struct {
	id      string
	subject string
	day     int // relative to the seed day
	start   string
	active  bool
}

var seedSessions = []seedSession{
	{"C1", "Data Structures and Algorithms", 0, "09:00", true},
	{"C2", "Operating Systems", 0, "11:00", true},
	{"C6", "Computer Networks", 0, "13:00", true},
	{"C11", "Cloud Computing", 0, "18:30", true},
	{"C12", "Artificial Intelligence", 0, "19:00", true},
	{"C13", "Web Development", 0, "19:15", true},
	{"C3", "Database Management Systems", 0, "15:00", false},
	{"C7", "Software Engineering", 0, "16:00", false},
	{"C8", "Data Structures and Algorithms", 1, "09:00", false},
	{"C9", "Operating Systems", 1, "11:00", false},
	{"C10", "Machine Learning", 2, "09:00", false},
	{"C4", "Data Structures and Algorithms", -1, "09:00", false},
	{"C5", "Operating Systems", -1, "11:00", false},
}

type seedRecord struct {
	id        string
	classID   string
	studentID string
	time      string
	status    model.Status
}

var seedRecords = []seedRecord{
	{"A1", "C1", "1", "09:05", model.StatusPresent},
	{"A2", "C1", "2", "09:15", model.StatusPresent},
	{"A3", "C1", "5", "09:18", model.StatusPresent},
	{"A4", "C4", "1", "09:10", model.StatusPresent},
	{"A5", "C4", "2", "09:12", model.StatusPresent},
	{"A6", "C4", "8", "09:25", model.StatusLate},
	{"A7", "C5", "3", "11:05", model.StatusLate},
	{"A8", "C5", "6", "11:00", model.StatusPresent},
}

const (
	seedDuration = 90
	seedTeacher  = "T1"
)

// Seed fills m with the demo roster: every session is laid out relative to the
// calendar day of today in loc.
func Seed(m *Memory, today time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	today = today.In(loc)
	base := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	for _, s := range seedStudents {
		if err := m.AddStudent(s); err != nil {
			return err
		}
	}
	for _, t := range seedTeachers {
		if err := m.AddTeacher(t); err != nil {
			return err
		}
	}

	teacher, _ := m.FindTeacherByID(seedTeacher)
	roster := make([]string, 0, len(seedStudents))
	for _, s := range seedStudents {
		roster = append(roster, s.ID)
	}

	for _, ss := range seedSessions {
		date := base.AddDate(0, 0, ss.day).Format(model.DateLayout)
		start, end, err := model.SessionWindow(date, ss.start, seedDuration, loc)
		if err != nil {
			return fmt.Errorf("seed session %s: %w", ss.id, err)
		}
		session := model.ClassSession{
			ID:          ss.id,
			Name:        ss.subject,
			Subject:     ss.subject,
			TeacherID:   teacher.ID,
			TeacherName: teacher.Name,
			Course:      "Computer Science",
			Semester:    3,
			Date:        date,
			StartTime:   ss.start,
			EndTime:     end.Format(model.ClockLayout),
			Duration:    seedDuration,
			StudentIDs:  roster,
			QRCode:      model.SessionToken(ss.id, date, ss.start),
			CreatedAt:   start.Add(-10 * time.Minute),
			StartsAt:    start,
			ExpiresAt:   end,
			IsActive:    ss.active,
		}
		if err := m.InsertClassSession(session); err != nil {
			return err
		}
	}

	for _, sr := range seedRecords {
		session, _ := m.FindClassByID(sr.classID)
		student, _ := m.FindStudentByID(sr.studentID)
		rec := model.AttendanceRecord{
			ID:          sr.id,
			ClassID:     session.ID,
			ClassName:   session.Name,
			Subject:     session.Subject,
			StudentID:   student.ID,
			StudentName: student.Name,
			StudentUSN:  student.USN,
			Date:        session.Date,
			Time:        sr.time,
			Status:      sr.status,
			TeacherID:   session.TeacherID,
			TeacherName: session.TeacherName,
			MarkedBy:    student.ID,
		}
		if err := m.InsertAttendanceRecord(rec); err != nil {
			return err
		}
	}
	return nil
}
