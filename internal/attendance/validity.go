package attendance

import (
	"fmt"
	"time"

	"rollcall/internal/model"
)

// Validity is the time-window state of a session.
type Validity int

const (
	NotStarted Validity = iota
	Ongoing
	Expired
)

func (v Validity) String() string {
	switch v {
	case NotStarted:
		return "not_started"
	case Ongoing:
		return "ongoing"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("validity(%d)", int(v))
	}
}

func (v Validity) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// EvaluateValidity places now relative to the session window. Both ends are inclusive.
func EvaluateValidity(s model.ClassSession, now time.Time) Validity {
	switch {
	case now.Before(s.StartsAt):
		return NotStarted
	case !now.After(s.ExpiresAt):
		return Ongoing
	default:
		return Expired
	}
}

// Usable reports whether the session QR may be presented or scanned: the window is
// open and the creator has the session switched on.
func Usable(s model.ClassSession, now time.Time) bool {
	return s.IsActive && EvaluateValidity(s, now) == Ongoing
}
