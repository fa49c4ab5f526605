package attendance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrSessionNotFound = errors.New("no class session matches this code")
	ErrNotStarted      = errors.New("class session has not started yet")
	ErrSessionExpired  = errors.New("class session is closed for attendance")
	ErrNotEnrolled     = errors.New("student is not enrolled in this class")
	ErrAlreadyMarked   = errors.New("attendance already marked for this class")
	ErrForbidden       = errors.New("actor may not act on this class")
	ErrUnknownStudent  = errors.New("unknown student")
	ErrUnknownTeacher  = errors.New("unknown teacher")
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrInvalidPayload  = errors.New("unrecognised qr payload")
	ErrReasonRequired  = errors.New("a reason is required")
	ErrInvalidStatus   = errors.New("invalid attendance status")
	ErrValidation      = errors.New("invalid session")
)

// RejectionError is returned when a mark fails eligibility. Reason is meant for the actor.
type RejectionError struct {
	Outcome  Eligibility
	Validity Validity
	Reason   string
}

func (e *RejectionError) Error() string { return e.Reason }

// Unwrap maps the outcome onto the package sentinels. A session that is not open
// unwraps to ErrNotStarted or ErrSessionExpired depending on its time window.
func (e *RejectionError) Unwrap() error {
	switch e.Outcome {
	case NotEnrolled:
		return ErrNotEnrolled
	case AlreadyMarked:
		return ErrAlreadyMarked
	case SessionExpired:
		if e.Validity == NotStarted {
			return ErrNotStarted
		}
		return ErrSessionExpired
	default:
		return nil
	}
}

// ValidationError lists the offending fields of a session creation request, keyed by
// their wire name with the failed rule as value.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid session: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
