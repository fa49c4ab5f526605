package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/audit"
	"rollcall/internal/model"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

const (
	testKey    = "handler-test-key"
	testIssuer = "rollcall-test"
	testDate   = "2025-03-10"
)

type env struct {
	router *gin.Engine
	store  *store.Memory
	queue  *queue.InMemory
	now    time.Time
}

func clock(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }

func insertSession(t *testing.T, m *store.Memory, id, subject, date, start string, students []string) model.ClassSession {
	t.Helper()
	from, to, err := model.SessionWindow(date, start, 90, time.UTC)
	require.NoError(t, err)
	s := model.ClassSession{
		ID: id, Name: subject, Subject: subject,
		TeacherID: "T1", TeacherName: "Dr. Anjali Mehta", Course: "Computer Science",
		Date: date, StartTime: start, EndTime: to.Format(model.ClockLayout), Duration: 90,
		StudentIDs: students, QRCode: model.SessionToken(id, date, start),
		StartsAt: from, ExpiresAt: to, IsActive: true,
	}
	require.NoError(t, m.InsertClassSession(s))
	return s
}

func populate(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.AddTeacher(model.Teacher{ID: "T1", Name: "Dr. Anjali Mehta", Department: "Computer Science"}))
	require.NoError(t, m.AddTeacher(model.Teacher{ID: "T2", Name: "Prof. Rajesh Iyer", Department: "Mathematics"}))
	for _, st := range []model.Student{
		{ID: "1", Name: "Aarav Sharma", USN: "1BY24CS001"},
		{ID: "2", Name: "Vivaan Patel", USN: "1BY24CS002"},
		{ID: "3", Name: "Aditya Verma", USN: "1BY24CS003"},
		{ID: "9", Name: "Rohan Singh", USN: "1BY24CS009"},
	} {
		require.NoError(t, m.AddStudent(st))
	}
	insertSession(t, m, "C1", "Networks", testDate, "09:00", []string{"1", "2", "3"})
	prev := insertSession(t, m, "C0", "Networks", "2025-03-09", "09:00", []string{"1", "2", "3"})
	require.NoError(t, m.InsertAttendanceRecord(model.AttendanceRecord{
		ID: "A1", ClassID: prev.ID, ClassName: prev.Name, Subject: prev.Subject,
		StudentID: "1", StudentName: "Aarav Sharma", StudentUSN: "1BY24CS001",
		Date: prev.Date, Time: "09:02", Status: model.StatusPresent, TeacherID: "T1", MarkedBy: "1",
	}))
	return m
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := populate(t)

	e := &env{store: m, queue: queue.NewInMemory(64), now: clock(9, 5)}
	svc := attendance.NewService(m, 0, time.UTC)
	h := New(Options{
		Service:       svc,
		Reports:       attendance.NewReports(m, time.UTC),
		Directory:     m,
		Publisher:     audit.NewPublisher(e.queue, nil),
		JWTIssuer:     testIssuer,
		JWTSigningKey: testKey,
		QRSize:        128,
		Now:           func() time.Time { return e.now },
	})
	e.router = gin.New()
	h.Register(e.router)
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) login(t *testing.T, role, id string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/login", "", gin.H{"role": role, "id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["accessToken"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func record(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	rec, ok := decode(t, w)["record"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return rec
}

func (e *env) drain(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := e.queue.Consume(ctx)
	require.NoError(t, err)
	var types []string
	for {
		select {
		case msg := <-ch:
			types = append(types, msg.Type)
		case <-time.After(50 * time.Millisecond):
			return types
		}
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/v1/login", "", gin.H{"role": "student", "id": "404"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/v1/login", "", gin.H{"role": "admin", "id": "1"}).Code)

	w := e.do(t, http.MethodPost, "/v1/login", "", gin.H{"role": "teacher", "id": "T1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Dr. Anjali Mehta", body["name"])

	w = e.do(t, http.MethodPost, "/v1/token/refresh", "", gin.H{"refreshToken": body["refreshToken"]})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["accessToken"])

	w = e.do(t, http.MethodPost, "/v1/token/refresh", "", gin.H{"refreshToken": body["accessToken"]})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/v1/sessions", "", nil).Code)
}

func TestScanSessionToken(t *testing.T) {
	e := newEnv(t)
	qr := model.SessionToken("C1", testDate, "09:00")

	w := e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "1"), gin.H{"payload": qr})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := record(t, w)
	assert.Equal(t, "present", rec["status"])
	assert.Equal(t, "1", rec["markedBy"])
	assert.Equal(t, testDate, rec["date"])

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "1"), gin.H{"payload": qr})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_marked", decode(t, w)["outcome"])

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "9"), gin.H{"payload": qr})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_enrolled", decode(t, w)["outcome"])

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "2"), gin.H{"payload": "CLASS-nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "2"), gin.H{"payload": `{"type":`})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "teacher", "T1"), gin.H{"payload": qr})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, []string{audit.TypeRecorded}, e.drain(t))
}

func TestScanLateAndExpired(t *testing.T) {
	e := newEnv(t)
	qr := model.SessionToken("C1", testDate, "09:00")

	e.now = clock(9, 20)
	w := e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "2"), gin.H{"payload": qr})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "late", record(t, w)["status"])

	e.now = clock(10, 31)
	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "student", "3"), gin.H{"payload": qr})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "expired", body["validity"])
	assert.Contains(t, body["error"], "expired")
}

func TestStudentClaimScannedByTeacher(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/v1/sessions/C1/claim", e.login(t, "student", "2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode(t, w)["payload"].(string)

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "teacher", "T2"), gin.H{"payload": payload})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/v1/scan", e.login(t, "teacher", "T1"), gin.H{"payload": payload})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := record(t, w)
	assert.Equal(t, "2", rec["studentId"])
	assert.Equal(t, "T1", rec["markedBy"])

	w = e.do(t, http.MethodGet, "/v1/sessions/C1/claim.png", e.login(t, "student", "9"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEligibility(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/v1/sessions/C1/eligibility", e.login(t, "student", "1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "eligible", body["eligibility"])
	assert.Equal(t, "present", body["status"])

	w = e.do(t, http.MethodGet, "/v1/sessions/C1/eligibility", e.login(t, "student", "9"), nil)
	assert.Equal(t, "not_enrolled", decode(t, w)["eligibility"])

	w = e.do(t, http.MethodGet, "/v1/sessions/C1/validity", e.login(t, "teacher", "T2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ongoing", decode(t, w)["validity"])
}

func TestSelfReport(t *testing.T) {
	e := newEnv(t)
	token := e.login(t, "student", "3")

	w := e.do(t, http.MethodPost, "/v1/sessions/C1/report", token, gin.H{"status": "absent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/sessions/C1/report", token, gin.H{"status": "late"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/sessions/C1/report", token, gin.H{"status": "absent", "reason": "Medical appointment"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := record(t, w)
	assert.Equal(t, "absent", rec["status"])
	assert.Equal(t, "Medical appointment", rec["reason"])
}

func TestSessionManagement(t *testing.T) {
	e := newEnv(t)
	teacher := e.login(t, "teacher", "T1")

	w := e.do(t, http.MethodPost, "/v1/sessions", teacher, gin.H{"subject": "Compilers", "date": testDate, "startTime": "14:00", "duration": 50, "studentIds": []string{"1"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{"duration": "quarterhour"}, decode(t, w)["fields"])

	w = e.do(t, http.MethodPost, "/v1/sessions", teacher, gin.H{"subject": "Compilers", "date": testDate, "startTime": "14:00", "duration": 60, "studentIds": []string{"1"}, "isActive": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "15:00", created["endTime"])
	assert.Equal(t, "not_started", created["validity"])

	w = e.do(t, http.MethodPost, "/v1/sessions", e.login(t, "student", "1"), gin.H{"subject": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/v1/sessions/upcoming", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["sessions"], 1)

	w = e.do(t, http.MethodGet, "/v1/sessions/ongoing", e.login(t, "student", "9"), nil)
	assert.Len(t, decode(t, w)["sessions"], 0)

	w = e.do(t, http.MethodGet, "/v1/sessions/C1/qr.png", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = e.do(t, http.MethodGet, "/v1/sessions/C1/qr.png", e.login(t, "teacher", "T2"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/v1/sessions/C1/active", teacher, gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["usable"])

	w = e.do(t, http.MethodGet, "/v1/sessions/C1/qr.png", teacher, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, "/v1/sessions", e.login(t, "student", "1"), nil)
	assert.Len(t, decode(t, w)["sessions"], 3)
}

func TestMarkAbsentAndEdit(t *testing.T) {
	e := newEnv(t)
	teacher := e.login(t, "teacher", "T1")

	w := e.do(t, http.MethodPost, "/v1/sessions/C1/absent", e.login(t, "teacher", "T2"), gin.H{"studentId": "3"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/v1/sessions/C1/absent", teacher, gin.H{"studentId": "3", "reason": "No show"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := record(t, w)["id"].(string)

	w = e.do(t, http.MethodPost, "/v1/sessions/C1/absent", teacher, gin.H{"studentId": "3"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPatch, "/v1/attendance/"+id, teacher, gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPatch, "/v1/attendance/"+id, e.login(t, "teacher", "T2"), gin.H{"status": "present"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPatch, "/v1/attendance/"+id, teacher, gin.H{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := record(t, w)
	assert.Equal(t, "present", rec["status"])
	assert.Equal(t, "T1", rec["editedBy"])
	assert.NotEmpty(t, rec["editedAt"])

	w = e.do(t, http.MethodPatch, "/v1/attendance/missing", teacher, gin.H{"status": "present"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []string{audit.TypeRecorded, audit.TypeEdited}, e.drain(t))
}

func TestStudentReports(t *testing.T) {
	e := newEnv(t)
	student := e.login(t, "student", "1")

	w := e.do(t, http.MethodGet, "/v1/students/1/stats", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["total"])
	assert.Equal(t, 100.0, body["overallPercentage"])

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/v1/students/2/stats", student, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/students/2/stats", e.login(t, "teacher", "T1"), nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/v1/students/404/stats", e.login(t, "teacher", "T1"), nil).Code)

	w = e.do(t, http.MethodGet, "/v1/students/2/subjects?all=true", e.login(t, "student", "2"), nil)
	subjects := decode(t, w)["subjects"].([]interface{})
	require.Len(t, subjects, 1)
	assert.Equal(t, 0.0, subjects[0].(map[string]interface{})["percentage"])

	w = e.do(t, http.MethodGet, "/v1/students/1/recent?limit=5", student, nil)
	assert.Len(t, decode(t, w)["records"], 1)
}

func TestSubjectReports(t *testing.T) {
	e := newEnv(t)
	teacher := e.login(t, "teacher", "T1")

	w := e.do(t, http.MethodGet, "/v1/subjects", teacher, nil)
	assert.Equal(t, []interface{}{"Networks"}, decode(t, w)["subjects"])

	w = e.do(t, http.MethodGet, "/v1/subjects/Networks/dates", teacher, nil)
	assert.Equal(t, []interface{}{"2025-03-09"}, decode(t, w)["dates"])

	w = e.do(t, http.MethodGet, "/v1/subjects/Networks/roster?date=2025-03-09", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode(t, w)["rows"].([]interface{})
	require.Len(t, rows, 3)
	assert.Equal(t, false, rows[0].(map[string]interface{})["inferred"])
	assert.Equal(t, true, rows[1].(map[string]interface{})["inferred"])

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/v1/subjects/Networks/roster?date=yesterday", teacher, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/v1/subjects/Networks/attendance", e.login(t, "teacher", "T2"), nil).Code)

	w = e.do(t, http.MethodGet, "/v1/subjects/Networks/export.xlsx?from=2025-03-01&to=2025-03-31", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Networks_Attendance_2025-03-01_to_2025-03-31.xlsx")
	assert.NotZero(t, w.Body.Len())

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/v1/subjects/Networks/export.xlsx?from=2024-01-01&to=2024-01-31", teacher, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/v1/subjects/Networks/export.xlsx?from=2025-03-31&to=2025-03-01", teacher, nil).Code)
}
