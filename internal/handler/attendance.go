package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/model"
)

func (h *Handler) recorded(c *gin.Context, rec model.AttendanceRecord) {
	h.pub.Recorded(c.Request.Context(), rec, h.now())
	c.JSON(http.StatusCreated, gin.H{
		"record":  rec,
		"message": fmt.Sprintf("Attendance marked as %s for %s.", rec.Status, rec.ClassName),
	})
}

func (h *Handler) scan(c *gin.Context) {
	var req struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.ScanCheckIn(req.Payload, actorOf(c), h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recorded(c, rec)
}

func (h *Handler) selfReport(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", attendance.ErrInvalidStatus, err))
		return
	}
	s, err := h.svc.Session(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	st, ok := h.dir.FindStudentByID(actorOf(c).ID)
	if !ok {
		h.fail(c, attendance.ErrUnknownStudent)
		return
	}
	rec, err := h.svc.SelfReport(s, st, status, req.Reason, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recorded(c, rec)
}

func (h *Handler) markAbsent(c *gin.Context) {
	var req struct {
		StudentID string `json:"studentId" binding:"required"`
		Reason    string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.MarkAbsent(c.Param("id"), req.StudentID, actorOf(c).ID, req.Reason, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recorded(c, rec)
}

func (h *Handler) editAttendance(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	now := h.now()
	rec, err := h.svc.EditAttendance(c.Param("id"), model.Status(req.Status), req.Reason, actorOf(c).ID, now)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.pub.Edited(c.Request.Context(), rec, now)
	c.JSON(http.StatusOK, gin.H{"record": rec})
}
