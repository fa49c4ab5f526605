package attendance

import (
	"fmt"
	"time"

	"rollcall/internal/model"
)

// Role of the actor driving a scan.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Actor is the trusted id handed over by the login step.
type Actor struct {
	Role Role
	ID   string
}

// ScanCheckIn handles a decoded QR text. A student scans a session token to mark
// themselves; a teacher scans a student claim to mark that student in one of their
// own sessions.
func (s *Service) ScanCheckIn(payload string, actor Actor, now time.Time) (model.AttendanceRecord, error) {
	scan, err := s.resolver.Resolve(payload)
	if err != nil {
		return model.AttendanceRecord{}, err
	}

	switch scan.Kind {
	case SessionToken:
		if actor.Role != RoleStudent {
			return model.AttendanceRecord{}, fmt.Errorf("%w: session codes are scanned by students", ErrForbidden)
		}
		student, ok := s.store.FindStudentByID(actor.ID)
		if !ok {
			return model.AttendanceRecord{}, ErrUnknownStudent
		}
		return s.RecordAttendance(scan.Session, student, now)

	case StudentClaimCode:
		if actor.Role != RoleTeacher || scan.Session.TeacherID != actor.ID {
			return model.AttendanceRecord{}, fmt.Errorf("%w: only the class teacher scans student codes", ErrForbidden)
		}
		if scan.ClaimExpired(now) {
			return model.AttendanceRecord{}, &RejectionError{
				Outcome:  SessionExpired,
				Validity: Expired,
				Reason:   fmt.Sprintf("This attendance code expired at %s.", scan.Claim.ValidUntil.In(s.loc).Format(model.ClockLayout)),
			}
		}
		student, ok := s.store.FindStudentByID(scan.Claim.StudentID)
		if !ok {
			return model.AttendanceRecord{}, ErrUnknownStudent
		}
		return s.record(scan.Session, student, actor.ID, now)

	default:
		return model.AttendanceRecord{}, ErrInvalidPayload
	}
}
