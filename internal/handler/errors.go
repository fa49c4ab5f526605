package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/store"
)

// fail maps engine errors onto HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		verr *attendance.ValidationError
		rej  *attendance.RejectionError
		dup  *store.DuplicateRecordError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session", "fields": verr.Fields})

	case errors.As(err, &rej):
		h.metrics.Rejections.WithLabelValues(rej.Outcome.String()).Inc()
		h.log.Info("attendance rejected",
			zap.String("outcome", rej.Outcome.String()),
			zap.String("validity", rej.Validity.String()),
			zap.String("actor", actorOf(c).ID),
		)
		c.JSON(statusFor(err), gin.H{"error": rej.Reason, "outcome": rej.Outcome, "validity": rej.Validity})

	case errors.As(err, &dup):
		h.log.Error("duplicate attendance insert", zap.String("class", dup.ClassID), zap.String("student", dup.StudentID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record attendance, please try again"})

	default:
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.JSON(status, gin.H{"error": "internal error"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrRecordNotFound),
		errors.Is(err, attendance.ErrUnknownStudent),
		errors.Is(err, attendance.ErrUnknownTeacher),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrNotStarted),
		errors.Is(err, attendance.ErrSessionExpired),
		errors.Is(err, attendance.ErrAlreadyMarked):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrNotEnrolled),
		errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrInvalidPayload),
		errors.Is(err, attendance.ErrReasonRequired),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
