package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/export"
	"rollcall/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// studentParam resolves :id and lets students read only their own reports.
func (h *Handler) studentParam(c *gin.Context) (model.Student, bool) {
	id := c.Param("id")
	actor := actorOf(c)
	if actor.Role == attendance.RoleStudent && actor.ID != id {
		h.fail(c, attendance.ErrForbidden)
		return model.Student{}, false
	}
	st, ok := h.dir.FindStudentByID(id)
	if !ok {
		h.fail(c, attendance.ErrUnknownStudent)
		return model.Student{}, false
	}
	return st, true
}

func (h *Handler) studentSubjects(c *gin.Context) {
	st, ok := h.studentParam(c)
	if !ok {
		return
	}
	var subjects []attendance.SubjectPercentage
	if all, _ := strconv.ParseBool(c.Query("all")); all {
		subjects = h.reports.SubjectPercentagesAll(st.ID)
	} else {
		subjects = h.reports.SubjectPercentages(st.ID)
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (h *Handler) studentStats(c *gin.Context) {
	st, ok := h.studentParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.reports.OverallStats(st.ID))
}

func (h *Handler) studentRecent(c *gin.Context) {
	st, ok := h.studentParam(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": h.reports.RecentAttendance(st.ID, limit)})
}

func (h *Handler) teacherSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subjects": h.reports.SubjectsForTeacher(actorOf(c).ID)})
}

// subjectParam resolves :subject, restricted to subjects the teacher runs.
func (h *Handler) subjectParam(c *gin.Context) (string, bool) {
	subject := c.Param("subject")
	if !slices.Contains(h.reports.SubjectsForTeacher(actorOf(c).ID), subject) {
		h.fail(c, fmt.Errorf("%w: %s is not one of your subjects", attendance.ErrForbidden, subject))
		return "", false
	}
	return subject, true
}

func (h *Handler) subjectAttendance(c *gin.Context) {
	subject, ok := h.subjectParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": h.reports.AttendanceForSubject(subject)})
}

func (h *Handler) subjectDates(c *gin.Context) {
	subject, ok := h.subjectParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": h.reports.AttendanceDatesForSubject(subject)})
}

func (h *Handler) subjectRoster(c *gin.Context) {
	subject, ok := h.subjectParam(c)
	if !ok {
		return
	}
	date := c.Query("date")
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		badRequest(c, errors.New("date must be YYYY-MM-DD"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "rows": h.reports.RosterForSubjectOnDate(subject, date)})
}

func (h *Handler) subjectExport(c *gin.Context) {
	subject, ok := h.subjectParam(c)
	if !ok {
		return
	}
	from, to := c.Query("from"), c.Query("to")
	for _, d := range []string{from, to} {
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			badRequest(c, errors.New("from and to must be YYYY-MM-DD"))
			return
		}
	}
	if from > to {
		badRequest(c, errors.New("from is after to"))
		return
	}

	teacher, _ := h.dir.FindTeacherByID(actorOf(c).ID)
	req := export.Request{Subject: subject, Teacher: teacher.Name, From: from, To: to}
	var buf bytes.Buffer
	if err := export.Write(&buf, req, h.reports.SubjectSheets(subject, from, to), h.svc.Location()); err != nil {
		if errors.Is(err, export.ErrNoRecords) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.FileName()))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
