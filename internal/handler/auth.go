package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required,oneof=student teacher"`
		ID   string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var name string
	switch attendance.Role(req.Role) {
	case attendance.RoleStudent:
		st, ok := h.dir.FindStudentByID(req.ID)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown student"})
			return
		}
		name = st.Name
	case attendance.RoleTeacher:
		t, ok := h.dir.FindTeacherByID(req.ID)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown teacher"})
			return
		}
		name = t.Name
	}

	tokens, err := auth.Issue(req.ID, req.Role, h.issuer, h.signingKey, h.accessTTL, h.refreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresAt":    tokens.AccessExp.Unix(),
		"role":         req.Role,
		"id":           req.ID,
		"name":         name,
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, _, err := auth.Refresh(req.RefreshToken, h.issuer, h.signingKey, h.accessTTL, h.refreshTTL)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresAt":    tokens.AccessExp.Unix(),
	})
}
