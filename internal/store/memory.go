package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"rollcall/internal/model"
)

var (
	// ErrNotFound is returned by mutating calls that target an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRecord guards the one-record-per-student-per-session invariant.
	ErrDuplicateRecord = errors.New("duplicate attendance record")
	// ErrDuplicateSession is returned when a session id or QR token is already taken.
	ErrDuplicateSession = errors.New("duplicate class session")
	// ErrDuplicateEntity is returned when a student or teacher id is already taken.
	ErrDuplicateEntity = errors.New("duplicate entity")
	// ErrInvalidSession is returned when a session's clock fields disagree or its roster
	// lists a student twice.
	ErrInvalidSession = errors.New("inconsistent class session")
)

// DuplicateRecordError names the (class, student) pair that already has a record.
type DuplicateRecordError struct {
	ClassID   string
	StudentID string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("attendance for student %s in class %s already recorded", e.StudentID, e.ClassID)
}

func (e *DuplicateRecordError) Unwrap() error { return ErrDuplicateRecord }

type markKey struct {
	classID   string
	studentID string
}

// Memory holds every collection in process memory. All methods are safe for
// concurrent use and hand out copies, never pointers into the collections.
type Memory struct {
	mu       sync.RWMutex
	loc      *time.Location
	students []model.Student
	teachers []model.Teacher
	sessions []model.ClassSession
	records  []model.AttendanceRecord

	studentIdx map[string]int
	teacherIdx map[string]int
	sessionIdx map[string]int
	qrIdx      map[string]int
	recordIdx  map[string]int
	markIdx    map[markKey]int
}

// NewMemory returns an empty store that reads session clock times in the local zone.
func NewMemory() *Memory {
	return NewMemoryIn(time.Local)
}

// NewMemoryIn returns an empty store that reads session clock times in loc.
func NewMemoryIn(loc *time.Location) *Memory {
	if loc == nil {
		loc = time.Local
	}
	return &Memory{
		loc:        loc,
		studentIdx: make(map[string]int),
		teacherIdx: make(map[string]int),
		sessionIdx: make(map[string]int),
		qrIdx:      make(map[string]int),
		recordIdx:  make(map[string]int),
		markIdx:    make(map[markKey]int),
	}
}

// AddStudent appends a student.
func (m *Memory) AddStudent(s model.Student) error {
	if s.ID == "" {
		return errors.New("student id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.studentIdx[s.ID]; ok {
		return fmt.Errorf("student %s: %w", s.ID, ErrDuplicateEntity)
	}
	m.studentIdx[s.ID] = len(m.students)
	m.students = append(m.students, s)
	return nil
}

// AddTeacher appends a teacher.
func (m *Memory) AddTeacher(t model.Teacher) error {
	if t.ID == "" {
		return errors.New("teacher id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teacherIdx[t.ID]; ok {
		return fmt.Errorf("teacher %s: %w", t.ID, ErrDuplicateEntity)
	}
	m.teacherIdx[t.ID] = len(m.teachers)
	m.teachers = append(m.teachers, t)
	return nil
}

// InsertClassSession appends a session. Both the id and the QR token must be unique.
// StartsAt and ExpiresAt are recomputed from Date, StartTime and Duration.
func (m *Memory) InsertClassSession(s model.ClassSession) error {
	if s.ID == "" || s.QRCode == "" {
		return errors.New("session id and qr code required")
	}
	s, err := m.window(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessionIdx[s.ID]; ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrDuplicateSession)
	}
	if _, ok := m.qrIdx[s.QRCode]; ok {
		return fmt.Errorf("qr code %s: %w", s.QRCode, ErrDuplicateSession)
	}
	m.sessionIdx[s.ID] = len(m.sessions)
	m.qrIdx[s.QRCode] = len(m.sessions)
	m.sessions = append(m.sessions, s.Clone())
	return nil
}

// window checks that the clock fields of s agree and fills the derived instants. A
// session that already carries StartsAt keeps that instant's zone.
func (m *Memory) window(s model.ClassSession) (model.ClassSession, error) {
	if s.Duration <= 0 {
		return s, fmt.Errorf("session %s: duration %d: %w", s.ID, s.Duration, ErrInvalidSession)
	}
	loc := m.loc
	if !s.StartsAt.IsZero() {
		loc = s.StartsAt.Location()
	}
	start, end, err := model.SessionWindow(s.Date, s.StartTime, s.Duration, loc)
	if err != nil {
		return s, fmt.Errorf("session %s: %w: %w", s.ID, ErrInvalidSession, err)
	}
	switch {
	case !s.StartsAt.IsZero() && !s.StartsAt.Equal(start):
		return s, fmt.Errorf("session %s: startsAt %s is not %s %s: %w", s.ID, s.StartsAt, s.Date, s.StartTime, ErrInvalidSession)
	case s.EndTime != "" && s.EndTime != end.Format(model.ClockLayout):
		return s, fmt.Errorf("session %s: endTime %s does not match %d minutes from %s: %w", s.ID, s.EndTime, s.Duration, s.StartTime, ErrInvalidSession)
	case !s.ExpiresAt.IsZero() && !s.ExpiresAt.Equal(end):
		return s, fmt.Errorf("session %s: expiresAt %s is not date+endTime: %w", s.ID, s.ExpiresAt, ErrInvalidSession)
	}

	seen := make(map[string]struct{}, len(s.StudentIDs))
	for _, id := range s.StudentIDs {
		if _, dup := seen[id]; dup {
			return s, fmt.Errorf("session %s: student %s listed twice: %w", s.ID, id, ErrInvalidSession)
		}
		seen[id] = struct{}{}
	}

	s.StartsAt, s.ExpiresAt = start, end
	s.EndTime = end.Format(model.ClockLayout)
	return s, nil
}

// SetSessionActive flips the administrative flag of a session.
func (m *Memory) SetSessionActive(id string, active bool) (model.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.sessionIdx[id]
	if !ok {
		return model.ClassSession{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	m.sessions[i].IsActive = active
	return m.sessions[i].Clone(), nil
}

// InsertAttendanceRecord appends a record, failing with *DuplicateRecordError when the
// (classId, studentId) pair already has one.
func (m *Memory) InsertAttendanceRecord(r model.AttendanceRecord) error {
	if r.ID == "" {
		return errors.New("record id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markKey{classID: r.ClassID, studentID: r.StudentID}
	if _, ok := m.markIdx[key]; ok {
		return &DuplicateRecordError{ClassID: r.ClassID, StudentID: r.StudentID}
	}
	if _, ok := m.recordIdx[r.ID]; ok {
		return fmt.Errorf("record id %s: %w", r.ID, ErrDuplicateRecord)
	}
	m.recordIdx[r.ID] = len(m.records)
	m.markIdx[key] = len(m.records)
	m.records = append(m.records, r)
	return nil
}

// UpdateAttendanceRecord applies fn to the stored record. The identity fields (id,
// class, student) cannot be changed through fn.
func (m *Memory) UpdateAttendanceRecord(id string, fn func(*model.AttendanceRecord)) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.recordIdx[id]
	if !ok {
		return model.AttendanceRecord{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	rec := m.records[i]
	fn(&rec)
	rec.ID, rec.ClassID, rec.StudentID = m.records[i].ID, m.records[i].ClassID, m.records[i].StudentID
	m.records[i] = rec
	return rec, nil
}

// FindStudentByID looks a student up by id.
func (m *Memory) FindStudentByID(id string) (model.Student, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.studentIdx[id]
	if !ok {
		return model.Student{}, false
	}
	return m.students[i], true
}

// FindTeacherByID looks a teacher up by id.
func (m *Memory) FindTeacherByID(id string) (model.Teacher, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.teacherIdx[id]
	if !ok {
		return model.Teacher{}, false
	}
	return m.teachers[i], true
}

// FindClassByID returns a copy of the session with that id.
func (m *Memory) FindClassByID(id string) (model.ClassSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.sessionIdx[id]
	if !ok {
		return model.ClassSession{}, false
	}
	return m.sessions[i].Clone(), true
}

// FindClassByQRCode is an exact match on the session token.
func (m *Memory) FindClassByQRCode(token string) (model.ClassSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.qrIdx[token]
	if !ok {
		return model.ClassSession{}, false
	}
	return m.sessions[i].Clone(), true
}

// FindRecordByID looks a record up by its own id.
func (m *Memory) FindRecordByID(id string) (model.AttendanceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.recordIdx[id]
	if !ok {
		return model.AttendanceRecord{}, false
	}
	return m.records[i], true
}

// FindRecord returns the record for a student in a session, if any.
func (m *Memory) FindRecord(classID, studentID string) (model.AttendanceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.markIdx[markKey{classID: classID, studentID: studentID}]
	if !ok {
		return model.AttendanceRecord{}, false
	}
	return m.records[i], true
}

// Students returns every student in insertion order.
func (m *Memory) Students() []model.Student {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Student, len(m.students))
	copy(out, m.students)
	return out
}

// Teachers returns every teacher in insertion order.
func (m *Memory) Teachers() []model.Teacher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Teacher, len(m.teachers))
	copy(out, m.teachers)
	return out
}

// Sessions returns every session in insertion order.
func (m *Memory) Sessions() []model.ClassSession {
	return m.SessionsWhere(nil)
}

// SessionsWhere returns the sessions matching keep; a nil keep matches all.
func (m *Memory) SessionsWhere(keep func(model.ClassSession) bool) []model.ClassSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ClassSession
	for _, s := range m.sessions {
		if keep == nil || keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Records returns every attendance record in insertion order.
func (m *Memory) Records() []model.AttendanceRecord {
	return m.RecordsWhere(nil)
}

// RecordsWhere returns the records matching keep; a nil keep matches all.
func (m *Memory) RecordsWhere(keep func(model.AttendanceRecord) bool) []model.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AttendanceRecord
	for _, r := range m.records {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Counts reports collection sizes.
func (m *Memory) Counts() (students, teachers, sessions, records int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), len(m.teachers), len(m.sessions), len(m.records)
}
