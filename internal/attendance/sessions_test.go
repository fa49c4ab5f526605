package attendance

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() SessionInput {
	return SessionInput{
		Subject:    "Compiler Design",
		Date:       testDate,
		StartTime:  "14:00",
		Duration:   90,
		StudentIDs: []string{"1", "2"},
		IsActive:   true,
	}
}

func TestCreateSession(t *testing.T) {
	m, svc, _ := fixture(t)
	s, err := svc.CreateSession(validInput(), "T1", at(13, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, "Compiler Design", s.Name)
	assert.Equal(t, "15:30", s.EndTime)
	assert.Equal(t, "Computer Science", s.Course)
	assert.Equal(t, "Dr. Anjali Mehta", s.TeacherName)
	assert.True(t, s.ExpiresAt.Equal(at(15, 30, 0)))
	assert.True(t, s.StartsAt.Equal(at(14, 0, 0)))
	assert.Equal(t, s.Duration, int(s.ExpiresAt.Sub(s.StartsAt).Minutes()))
	assert.True(t, strings.HasPrefix(s.QRCode, "CLASS-"+s.ID+"-"))
	assert.True(t, strings.HasSuffix(s.QRCode, "-2025-03-10-14:00"))

	stored, ok := m.FindClassByQRCode(s.QRCode)
	require.True(t, ok)
	assert.Equal(t, s.ID, stored.ID)
}

func TestCreateSessionValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*SessionInput)
		field string
		rule  string
	}{
		{"missing subject", func(in *SessionInput) { in.Subject = "   " }, "subject", "required"},
		{"bad date", func(in *SessionInput) { in.Date = "10/03/2025" }, "date", "datetime"},
		{"bad start", func(in *SessionInput) { in.StartTime = "25:00" }, "startTime", "datetime"},
		{"short duration", func(in *SessionInput) { in.Duration = 10 }, "duration", "min"},
		{"odd duration", func(in *SessionInput) { in.Duration = 50 }, "duration", "quarterhour"},
		{"no students", func(in *SessionInput) { in.StudentIDs = nil }, "studentIds", "required"},
		{"duplicate students", func(in *SessionInput) { in.StudentIDs = []string{"1", "1"} }, "studentIds", "unique"},
		{"unknown student", func(in *SessionInput) { in.StudentIDs = []string{"1", "404"} }, "studentIds", "known"},
		{"crosses midnight", func(in *SessionInput) { in.StartTime = "23:30"; in.Duration = 60 }, "duration", "sameday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc, _ := fixture(t)
			in := validInput()
			tt.edit(&in)

			_, err := svc.CreateSession(in, "T1", at(13, 0, 0))
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.rule, verr.Fields[tt.field], "fields: %v", verr.Fields)

			_, _, sessions, _ := m.Counts()
			assert.Equal(t, 1, sessions)
		})
	}
}

func TestCreateSessionUnknownTeacher(t *testing.T) {
	_, svc, _ := fixture(t)
	_, err := svc.CreateSession(validInput(), "T404", at(13, 0, 0))
	assert.ErrorIs(t, err, ErrUnknownTeacher)
}

func TestSessionListings(t *testing.T) {
	m, svc, _ := fixture(t)
	addSession(t, m, "C2", "Operating Systems", testDate, "11:00", []string{"1"}, true)
	addSession(t, m, "C3", "Databases", testDate, "15:00", []string{"2"}, false)
	addSession(t, m, "C4", "Networks", testDate, "09:30", []string{"1"}, false)

	ongoing := svc.OngoingSessions(at(9, 45, 0))
	require.Len(t, ongoing, 1)
	assert.Equal(t, "C1", ongoing[0].ID)

	upcoming := svc.UpcomingSessions(at(9, 45, 0))
	require.Len(t, upcoming, 2)
	assert.Equal(t, "C2", upcoming[0].ID)
	assert.Equal(t, "C3", upcoming[1].ID)

	mine := svc.SessionsForStudent("1")
	require.Len(t, mine, 3)
	assert.Equal(t, "C1", mine[0].ID)
	assert.Equal(t, "C4", mine[1].ID)

	assert.Len(t, svc.SessionsForTeacher("T1"), 4)
	assert.Empty(t, svc.SessionsForTeacher("T2"))
}

func TestSetSessionActive(t *testing.T) {
	_, svc, s := fixture(t)
	_, err := svc.SetSessionActive(s.ID, "T2", false)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.SetSessionActive(s.ID, "T1", false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Empty(t, svc.OngoingSessions(at(9, 30, 0)))
}

func TestStudentClaim(t *testing.T) {
	_, svc, s := fixture(t)

	claim, err := svc.StudentClaim(s.ID, "1", at(9, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, StudentAttendanceType, claim.Type)
	assert.True(t, claim.ValidUntil.Equal(s.ExpiresAt))

	_, err = svc.StudentClaim(s.ID, "9", at(9, 10, 0))
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = svc.StudentClaim(s.ID, "1", at(11, 0, 0))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestPresentSession(t *testing.T) {
	_, svc, s := fixture(t)

	got, err := svc.PresentSession(s.ID, "T1", at(9, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, s.QRCode, got.QRCode)

	_, err = svc.PresentSession(s.ID, "T2", at(9, 0, 0))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.PresentSession(s.ID, "T1", at(8, 59, 0))
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = svc.PresentSession("nope", "T1", at(9, 0, 0))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
