package attendance

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"rollcall/internal/model"
)

// DefaultLateGrace is how long after the start a mark still counts as present.
const DefaultLateGrace = 15 * time.Minute

// Store is the entity store the service reads and writes.
type Store interface {
	SessionLookup
	RecordLookup
	FindStudentByID(id string) (model.Student, bool)
	FindTeacherByID(id string) (model.Teacher, bool)
	FindRecordByID(id string) (model.AttendanceRecord, bool)
	InsertAttendanceRecord(r model.AttendanceRecord) error
	UpdateAttendanceRecord(id string, fn func(*model.AttendanceRecord)) (model.AttendanceRecord, error)
	InsertClassSession(s model.ClassSession) error
	SetSessionActive(id string, active bool) (model.ClassSession, error)
	SessionsWhere(keep func(model.ClassSession) bool) []model.ClassSession
}

// Service coordinates QR resolution, eligibility and recording.
type Service struct {
	store    Store
	resolver *Resolver
	grace    time.Duration
	loc      *time.Location
	validate *validator.Validate
	newID    func() string

	// mu spans the eligibility check and the insert of a single mark.
	mu sync.Mutex
}

// NewService creates a service backed by a store. Session dates and clock times are
// interpreted in loc.
func NewService(st Store, grace time.Duration, loc *time.Location) *Service {
	if grace <= 0 {
		grace = DefaultLateGrace
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:    st,
		resolver: NewResolver(st),
		grace:    grace,
		loc:      loc,
		validate: newValidator(),
		newID:    uuid.NewString,
	}
}

// Location is the zone session times are expressed in.
func (s *Service) Location() *time.Location { return s.loc }

// ResolveQrPayload maps scanned text to a session.
func (s *Service) ResolveQrPayload(text string) (Scan, error) {
	return s.resolver.Resolve(text)
}

// EvaluateSessionValidity is EvaluateValidity exposed on the service.
func (s *Service) EvaluateSessionValidity(session model.ClassSession, now time.Time) Validity {
	return EvaluateValidity(session, now)
}

// CheckEligibility checks a student against the current state of the session.
func (s *Service) CheckEligibility(session model.ClassSession, student model.Student, now time.Time) Eligibility {
	return CheckEligibility(s.store, s.fresh(session), student.ID, now)
}

// StatusAt computes the status of a mark made at now: present up to and including
// start plus the grace period, late afterwards.
func (s *Service) StatusAt(session model.ClassSession, now time.Time) model.Status {
	if now.After(session.StartsAt.Add(s.grace)) {
		return model.StatusLate
	}
	return model.StatusPresent
}

// RecordAttendance marks the student present or late. It fails with a *RejectionError
// when the student is not eligible and with a store duplicate error if another mark
// slipped in.
func (s *Service) RecordAttendance(session model.ClassSession, student model.Student, now time.Time) (model.AttendanceRecord, error) {
	return s.record(session, student, student.ID, now)
}

func (s *Service) record(session model.ClassSession, student model.Student, markedBy string, now time.Time) (model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session = s.fresh(session)
	if err := s.admit(session, student, now); err != nil {
		return model.AttendanceRecord{}, err
	}
	rec := s.newRecord(session, student, s.StatusAt(session, now), markedBy, "", now)
	if err := s.store.InsertAttendanceRecord(rec); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("record attendance: %w", err)
	}
	return rec, nil
}

// SelfReport lets a student report present (status computed as for a scan) or absent
// with a reason.
func (s *Service) SelfReport(session model.ClassSession, student model.Student, status model.Status, reason string, now time.Time) (model.AttendanceRecord, error) {
	switch status {
	case model.StatusPresent:
		return s.RecordAttendance(session, student, now)
	case model.StatusAbsent:
	default:
		return model.AttendanceRecord{}, fmt.Errorf("%w: students report present or absent", ErrInvalidStatus)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.AttendanceRecord{}, ErrReasonRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session = s.fresh(session)
	if err := s.admit(session, student, now); err != nil {
		return model.AttendanceRecord{}, err
	}
	rec := s.newRecord(session, student, model.StatusAbsent, student.ID, reason, now)
	if err := s.store.InsertAttendanceRecord(rec); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("report absence: %w", err)
	}
	return rec, nil
}

// MarkAbsent persists an explicit absence from the roster view. Only the session's
// teacher may do it and the time window is not checked.
func (s *Service) MarkAbsent(sessionID, studentID, teacherID, reason string, now time.Time) (model.AttendanceRecord, error) {
	session, ok := s.store.FindClassByID(sessionID)
	if !ok {
		return model.AttendanceRecord{}, ErrSessionNotFound
	}
	if session.TeacherID != teacherID {
		return model.AttendanceRecord{}, ErrForbidden
	}
	student, ok := s.store.FindStudentByID(studentID)
	if !ok {
		return model.AttendanceRecord{}, ErrUnknownStudent
	}
	if !session.Enrolls(student.ID) {
		return model.AttendanceRecord{}, rejection(NotEnrolled, session, now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store.FindRecord(session.ID, student.ID); ok {
		return model.AttendanceRecord{}, rejection(AlreadyMarked, session, now)
	}
	rec := s.newRecord(session, student, model.StatusAbsent, teacherID, strings.TrimSpace(reason), now)
	if err := s.store.InsertAttendanceRecord(rec); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("mark absent: %w", err)
	}
	return rec, nil
}

// EditAttendance overrides status and reason of an existing record. It skips the
// eligibility checks but only the teacher of the record's session may edit it.
func (s *Service) EditAttendance(recordID string, status model.Status, reason, editorTeacherID string, now time.Time) (model.AttendanceRecord, error) {
	if !status.Valid() {
		return model.AttendanceRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	rec, ok := s.store.FindRecordByID(recordID)
	if !ok {
		return model.AttendanceRecord{}, ErrRecordNotFound
	}
	if _, ok := s.store.FindTeacherByID(editorTeacherID); !ok {
		return model.AttendanceRecord{}, ErrUnknownTeacher
	}
	owner := rec.TeacherID
	if session, ok := s.store.FindClassByID(rec.ClassID); ok {
		owner = session.TeacherID
	}
	if owner != editorTeacherID {
		return model.AttendanceRecord{}, ErrForbidden
	}

	editedAt := now
	updated, err := s.store.UpdateAttendanceRecord(recordID, func(r *model.AttendanceRecord) {
		r.Status = status
		r.Reason = strings.TrimSpace(reason)
		r.EditedBy = editorTeacherID
		r.EditedAt = &editedAt
	})
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("edit attendance: %w", err)
	}
	return updated, nil
}

// fresh reloads the session so flag changes made after the caller fetched it apply.
func (s *Service) fresh(session model.ClassSession) model.ClassSession {
	if current, ok := s.store.FindClassByID(session.ID); ok {
		return current
	}
	return session
}

func (s *Service) admit(session model.ClassSession, student model.Student, now time.Time) error {
	outcome := CheckEligibility(s.store, session, student.ID, now)
	if outcome == Eligible {
		return nil
	}
	return rejection(outcome, session, now)
}

func (s *Service) newRecord(session model.ClassSession, student model.Student, status model.Status, markedBy, reason string, now time.Time) model.AttendanceRecord {
	return model.AttendanceRecord{
		ID:          s.newID(),
		ClassID:     session.ID,
		ClassName:   session.Name,
		Subject:     session.Subject,
		StudentID:   student.ID,
		StudentName: student.Name,
		StudentUSN:  student.USN,
		Date:        session.Date,
		Time:        now.In(s.loc).Format(model.ClockLayout),
		Status:      status,
		TeacherID:   session.TeacherID,
		TeacherName: session.TeacherName,
		MarkedBy:    markedBy,
		Reason:      reason,
	}
}
