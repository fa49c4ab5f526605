package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rollcall/internal/model"
)

// StudentAttendanceType tags the JSON payload a student presents for a teacher to scan.
const StudentAttendanceType = "student_attendance"

// PayloadKind tells which QR wire format was scanned.
type PayloadKind int

const (
	SessionToken PayloadKind = iota
	StudentClaimCode
)

// StudentClaim is the structured payload shown on a student's device.
type StudentClaim struct {
	Type       string    `json:"type"`
	ClassID    string    `json:"classId"`
	StudentID  string    `json:"studentId"`
	Timestamp  time.Time `json:"timestamp"`
	ValidUntil time.Time `json:"validUntil"`
}

// NewStudentClaim builds the payload for a student in a session, valid until the session expires.
func NewStudentClaim(s model.ClassSession, studentID string, now time.Time) StudentClaim {
	return StudentClaim{
		Type:       StudentAttendanceType,
		ClassID:    s.ID,
		StudentID:  studentID,
		Timestamp:  now.UTC(),
		ValidUntil: s.ExpiresAt.UTC(),
	}
}

// Encode renders the claim as the QR text.
func (c StudentClaim) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode student claim: %w", err)
	}
	return string(b), nil
}

// Scan is a resolved QR payload.
type Scan struct {
	Kind    PayloadKind
	Session model.ClassSession
	Claim   *StudentClaim
}

// ClaimExpired applies the claim's own validUntil on top of the session window.
func (s Scan) ClaimExpired(now time.Time) bool {
	return s.Claim != nil && !s.Claim.ValidUntil.IsZero() && now.After(s.Claim.ValidUntil)
}

// SessionLookup is the part of the entity store the resolver needs.
type SessionLookup interface {
	FindClassByID(id string) (model.ClassSession, bool)
	FindClassByQRCode(token string) (model.ClassSession, bool)
}

// Resolver maps decoded QR text to a session.
type Resolver struct {
	sessions SessionLookup
}

// NewResolver creates a resolver over the session index.
func NewResolver(sessions SessionLookup) *Resolver {
	return &Resolver{sessions: sessions}
}

// Resolve accepts either a plain session token, matched exactly against the session
// QR codes, or a student claim JSON object. Anything that does not lead to a session,
// malformed claims included, is ErrSessionNotFound. It never mutates the store.
func (r *Resolver) Resolve(payload string) (Scan, error) {
	if strings.HasPrefix(strings.TrimSpace(payload), "{") {
		return r.resolveClaim(payload)
	}
	s, ok := r.sessions.FindClassByQRCode(payload)
	if !ok {
		return Scan{}, ErrSessionNotFound
	}
	return Scan{Kind: SessionToken, Session: s}, nil
}

func (r *Resolver) resolveClaim(payload string) (Scan, error) {
	var claim StudentClaim
	if err := json.Unmarshal([]byte(payload), &claim); err != nil {
		return Scan{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if claim.Type != StudentAttendanceType || claim.ClassID == "" || claim.StudentID == "" {
		return Scan{}, ErrSessionNotFound
	}
	s, ok := r.sessions.FindClassByID(claim.ClassID)
	if !ok {
		return Scan{}, ErrSessionNotFound
	}
	return Scan{Kind: StudentClaimCode, Session: s, Claim: &claim}, nil
}
