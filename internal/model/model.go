package model

import (
	"fmt"
	"slices"
	"time"
)

// Layouts used for the calendar date and local time-of-day fields.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Status is the outcome stored on an attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	default:
		return false
	}
}

// Attended is true for statuses that count towards the attendance percentage.
func (s Status) Attended() bool {
	switch s {
	case StatusPresent, StatusLate:
		return true
	default:
		return false
	}
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown attendance status %q", v)
	}
	return s, nil
}

// Student is an enrolled learner. USN is the institutional roll code, e.g. 1BY24CS001.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	USN      string `json:"usn"`
	Course   string `json:"course"`
	Semester int    `json:"semester,omitempty"`
}

// Teacher owns class sessions.
type Teacher struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// ClassSession is one scheduled occurrence of a subject with its own QR token.
type ClassSession struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	TeacherID   string    `json:"teacherId"`
	TeacherName string    `json:"teacherName"`
	Course      string    `json:"course"`
	Semester    int       `json:"semester,omitempty"`
	Date        string    `json:"date"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Duration    int       `json:"duration"`
	StudentIDs  []string  `json:"studentIds"`
	QRCode      string    `json:"qrCode"`
	CreatedAt   time.Time `json:"createdAt"`
	StartsAt    time.Time `json:"startsAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IsActive    bool      `json:"isActive"`
}

// Enrolls reports whether the student is on the session roster.
func (c ClassSession) Enrolls(studentID string) bool {
	return slices.Contains(c.StudentIDs, studentID)
}

// Clone returns a copy that shares no slices with c.
func (c ClassSession) Clone() ClassSession {
	c.StudentIDs = slices.Clone(c.StudentIDs)
	return c
}

// AttendanceRecord is a single mark for one student in one session. Names are copied
// at marking time and are not refreshed from the entities.
type AttendanceRecord struct {
	ID          string     `json:"id"`
	ClassID     string     `json:"classId"`
	ClassName   string     `json:"className"`
	Subject     string     `json:"subject"`
	StudentID   string     `json:"studentId"`
	StudentName string     `json:"studentName"`
	StudentUSN  string     `json:"studentUSN"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Status      Status     `json:"status"`
	TeacherID   string     `json:"teacherId"`
	TeacherName string     `json:"teacherName"`
	MarkedBy    string     `json:"markedBy,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	EditedBy    string     `json:"editedBy,omitempty"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
}

// MarkedAt combines Date and Time in loc. Records with unparsable fields sort as zero time.
func (r AttendanceRecord) MarkedAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, r.Date+" "+r.Time, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SessionWindow resolves the start and end instants of a session held on date at
// startTime for durationMin minutes.
func SessionWindow(date, startTime string, durationMin int, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+startTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse session start: %w", err)
	}
	return start, start.Add(time.Duration(durationMin) * time.Minute), nil
}

// SessionToken is the plain QR payload printed for a session.
func SessionToken(id, date, startTime string) string {
	return fmt.Sprintf("CLASS-%s-%s-%s", id, date, startTime)
}
