package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/model"
	"rollcall/internal/qrimage"
)

type sessionView struct {
	model.ClassSession
	Validity attendance.Validity `json:"validity"`
	Usable   bool                `json:"usable"`
}

func views(sessions []model.ClassSession, now time.Time) []sessionView {
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, view(s, now))
	}
	return out
}

func view(s model.ClassSession, now time.Time) sessionView {
	return sessionView{ClassSession: s, Validity: attendance.EvaluateValidity(s, now), Usable: attendance.Usable(s, now)}
}

// visibleTo keeps the sessions a student is enrolled in or a teacher runs.
func visibleTo(actor attendance.Actor, sessions []model.ClassSession) []model.ClassSession {
	out := sessions[:0]
	for _, s := range sessions {
		if (actor.Role == attendance.RoleTeacher && s.TeacherID == actor.ID) ||
			(actor.Role == attendance.RoleStudent && s.Enrolls(actor.ID)) {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) listSessions(c *gin.Context) {
	actor := actorOf(c)
	var sessions []model.ClassSession
	if actor.Role == attendance.RoleTeacher {
		sessions = h.svc.SessionsForTeacher(actor.ID)
	} else {
		sessions = h.svc.SessionsForStudent(actor.ID)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views(sessions, h.now())})
}

func (h *Handler) ongoingSessions(c *gin.Context) {
	now := h.now()
	c.JSON(http.StatusOK, gin.H{"sessions": views(visibleTo(actorOf(c), h.svc.OngoingSessions(now)), now)})
}

func (h *Handler) upcomingSessions(c *gin.Context) {
	now := h.now()
	c.JSON(http.StatusOK, gin.H{"sessions": views(visibleTo(actorOf(c), h.svc.UpcomingSessions(now)), now)})
}

func (h *Handler) createSession(c *gin.Context) {
	var in attendance.SessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	now := h.now()
	s, err := h.svc.CreateSession(in, actorOf(c).ID, now)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(s, now))
}

func (h *Handler) setActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.svc.SetSessionActive(c.Param("id"), actorOf(c).ID, *req.Active)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view(s, h.now()))
}

func (h *Handler) sessionValidity(c *gin.Context) {
	s, err := h.svc.Session(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	v := view(s, h.now())
	c.JSON(http.StatusOK, gin.H{
		"id":        s.ID,
		"validity":  v.Validity,
		"usable":    v.Usable,
		"isActive":  s.IsActive,
		"startsAt":  s.StartsAt,
		"expiresAt": s.ExpiresAt,
	})
}

func (h *Handler) sessionQR(c *gin.Context) {
	s, err := h.svc.PresentSession(c.Param("id"), actorOf(c).ID, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.png(c, s.QRCode)
}

func (h *Handler) claimPayload(c *gin.Context) (string, bool) {
	claim, err := h.svc.StudentClaim(c.Param("id"), actorOf(c).ID, h.now())
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	payload, err := claim.Encode()
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	return payload, true
}

func (h *Handler) studentClaim(c *gin.Context) {
	if payload, ok := h.claimPayload(c); ok {
		c.JSON(http.StatusOK, gin.H{"payload": payload})
	}
}

func (h *Handler) studentClaimQR(c *gin.Context) {
	if payload, ok := h.claimPayload(c); ok {
		h.png(c, payload)
	}
}

func (h *Handler) png(c *gin.Context, content string) {
	img, err := qrimage.PNG(content, h.qrSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", img)
}

func (h *Handler) eligibility(c *gin.Context) {
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
	now := h.now()
	outcome := h.svc.CheckEligibility(s, st, now)
	resp := gin.H{
		"eligibility": outcome,
		"validity":    attendance.EvaluateValidity(s, now),
	}
	if outcome == attendance.Eligible {
		resp["status"] = h.svc.StatusAt(s, now)
	}
	c.JSON(http.StatusOK, resp)
}
