package attendance

import (
	"fmt"
	"time"

	"rollcall/internal/model"
)

// Eligibility is the outcome of checking whether a student may mark a session.
type Eligibility int

const (
	Eligible Eligibility = iota
	NotEnrolled
	AlreadyMarked
	SessionExpired
)

func (e Eligibility) String() string {
	switch e {
	case Eligible:
		return "eligible"
	case NotEnrolled:
		return "not_enrolled"
	case AlreadyMarked:
		return "already_marked"
	case SessionExpired:
		return "session_expired"
	default:
		return fmt.Sprintf("eligibility(%d)", int(e))
	}
}

func (e Eligibility) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// RecordLookup finds an existing mark for a student in a session.
type RecordLookup interface {
	FindRecord(classID, studentID string) (model.AttendanceRecord, bool)
}

// CheckEligibility runs, in order: the session must be usable, the student must be on
// the roster, and no record may exist yet for this session.
func CheckEligibility(records RecordLookup, s model.ClassSession, studentID string, now time.Time) Eligibility {
	if !Usable(s, now) {
		return SessionExpired
	}
	if !s.Enrolls(studentID) {
		return NotEnrolled
	}
	if _, ok := records.FindRecord(s.ID, studentID); ok {
		return AlreadyMarked
	}
	return Eligible
}

func rejection(outcome Eligibility, s model.ClassSession, now time.Time) *RejectionError {
	v := EvaluateValidity(s, now)
	err := &RejectionError{Outcome: outcome, Validity: v}
	switch outcome {
	case NotEnrolled:
		err.Reason = fmt.Sprintf("You are not enrolled in %s. Only enrolled students can mark attendance.", s.Name)
	case AlreadyMarked:
		err.Reason = fmt.Sprintf("Attendance for %s on %s is already marked.", s.Name, s.Date)
	case SessionExpired:
		switch v {
		case NotStarted:
			err.Reason = fmt.Sprintf("%s has not started yet. It opens at %s.", s.Name, s.StartTime)
		case Expired:
			err.Reason = fmt.Sprintf("This QR code has expired. Class ended at %s.", s.EndTime)
		default:
			err.Reason = fmt.Sprintf("%s is not open for attendance.", s.Name)
		}
	default:
		err.Reason = outcome.String()
	}
	return err
}
