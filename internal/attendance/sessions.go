package attendance

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"rollcall/internal/model"
)

// SessionInput is the teacher's create-session form.
type SessionInput struct {
	Name       string   `json:"name" validate:"max=120"`
	Subject    string   `json:"subject" validate:"required,max=120"`
	Course     string   `json:"course" validate:"max=120"`
	Semester   int      `json:"semester" validate:"gte=0,lte=12"`
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string   `json:"startTime" validate:"required,datetime=15:04"`
	Duration   int      `json:"duration" validate:"required,min=15,max=720,quarterhour"`
	StudentIDs []string `json:"studentIds" validate:"required,min=1,unique,dive,required"`
	IsActive   bool     `json:"isActive"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("quarterhour", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%15 == 0
	})
	return v
}

// CreateSession validates the form and stores a new session owned by the teacher.
// Nothing is stored when validation fails.
func (s *Service) CreateSession(in SessionInput, teacherID string, now time.Time) (model.ClassSession, error) {
	teacher, ok := s.store.FindTeacherByID(teacherID)
	if !ok {
		return model.ClassSession{}, ErrUnknownTeacher
	}
	in.Subject = strings.TrimSpace(in.Subject)
	in.Name = strings.TrimSpace(in.Name)

	fields := make(map[string]string)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return model.ClassSession{}, fmt.Errorf("validate session: %w", err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return model.ClassSession{}, &ValidationError{Fields: fields}
	}

	for _, id := range in.StudentIDs {
		if _, ok := s.store.FindStudentByID(id); !ok {
			fields["studentIds"] = "known"
			break
		}
	}
	start, end, err := model.SessionWindow(in.Date, in.StartTime, in.Duration, s.loc)
	if err != nil {
		fields["date"] = "datetime"
	} else if end.Format(model.DateLayout) != in.Date {
		fields["duration"] = "sameday"
	}
	if len(fields) > 0 {
		return model.ClassSession{}, &ValidationError{Fields: fields}
	}

	name := in.Name
	if name == "" {
		name = in.Subject
	}
	course := in.Course
	if course == "" {
		course = teacher.Department
	}
	id := s.newID()
	session := model.ClassSession{
		ID:          id,
		Name:        name,
		Subject:     in.Subject,
		TeacherID:   teacher.ID,
		TeacherName: teacher.Name,
		Course:      course,
		Semester:    in.Semester,
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     end.Format(model.ClockLayout),
		Duration:    in.Duration,
		StudentIDs:  slices.Clone(in.StudentIDs),
		QRCode:      model.SessionToken(id, in.Date, in.StartTime),
		CreatedAt:   now,
		StartsAt:    start,
		ExpiresAt:   end,
		IsActive:    in.IsActive,
	}
	if err := s.store.InsertClassSession(session); err != nil {
		return model.ClassSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// SetSessionActive publishes or deactivates a session. Only its teacher may do so.
func (s *Service) SetSessionActive(sessionID, teacherID string, active bool) (model.ClassSession, error) {
	session, ok := s.store.FindClassByID(sessionID)
	if !ok {
		return model.ClassSession{}, ErrSessionNotFound
	}
	if session.TeacherID != teacherID {
		return model.ClassSession{}, ErrForbidden
	}
	return s.store.SetSessionActive(sessionID, active)
}

// Session looks a session up by id.
func (s *Service) Session(id string) (model.ClassSession, error) {
	session, ok := s.store.FindClassByID(id)
	if !ok {
		return model.ClassSession{}, ErrSessionNotFound
	}
	return session, nil
}

// SessionsForTeacher lists the teacher's sessions by start time.
func (s *Service) SessionsForTeacher(teacherID string) []model.ClassSession {
	return byStart(s.store.SessionsWhere(func(c model.ClassSession) bool {
		return c.TeacherID == teacherID
	}))
}

// SessionsForStudent lists the sessions the student is enrolled in by start time.
func (s *Service) SessionsForStudent(studentID string) []model.ClassSession {
	return byStart(s.store.SessionsWhere(func(c model.ClassSession) bool {
		return c.Enrolls(studentID)
	}))
}

// OngoingSessions lists sessions whose QR is usable at now.
func (s *Service) OngoingSessions(now time.Time) []model.ClassSession {
	return byStart(s.store.SessionsWhere(func(c model.ClassSession) bool {
		return Usable(c, now)
	}))
}

// UpcomingSessions lists sessions that have not started at now.
func (s *Service) UpcomingSessions(now time.Time) []model.ClassSession {
	return byStart(s.store.SessionsWhere(func(c model.ClassSession) bool {
		return EvaluateValidity(c, now) == NotStarted
	}))
}

// StudentClaim builds the code an enrolled student shows to the teacher while the
// session is usable.
func (s *Service) StudentClaim(sessionID, studentID string, now time.Time) (StudentClaim, error) {
	session, ok := s.store.FindClassByID(sessionID)
	if !ok {
		return StudentClaim{}, ErrSessionNotFound
	}
	if _, ok := s.store.FindStudentByID(studentID); !ok {
		return StudentClaim{}, ErrUnknownStudent
	}
	if !Usable(session, now) {
		return StudentClaim{}, rejection(SessionExpired, session, now)
	}
	if !session.Enrolls(studentID) {
		return StudentClaim{}, rejection(NotEnrolled, session, now)
	}
	return NewStudentClaim(session, studentID, now), nil
}

// PresentSession returns the session whose token the teacher is about to display. It
// fails unless the teacher owns the session and it is usable at now.
func (s *Service) PresentSession(sessionID, teacherID string, now time.Time) (model.ClassSession, error) {
	session, ok := s.store.FindClassByID(sessionID)
	if !ok {
		return model.ClassSession{}, ErrSessionNotFound
	}
	if session.TeacherID != teacherID {
		return model.ClassSession{}, ErrForbidden
	}
	if !Usable(session, now) {
		return model.ClassSession{}, rejection(SessionExpired, session, now)
	}
	return session, nil
}

func byStart(sessions []model.ClassSession) []model.ClassSession {
	slices.SortStableFunc(sessions, func(a, b model.ClassSession) int {
		return a.StartsAt.Compare(b.StartsAt)
	})
	return sessions
}
