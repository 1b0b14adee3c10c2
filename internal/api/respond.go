package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

const unexpectedMessage = "An unexpected error occurred"

// statusFor maps an error kind onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrExpired):
		return http.StatusGone
	case errors.Is(err, attendance.ErrInvalidState), errors.Is(err, attendance.ErrNoActiveSession):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error body. Unclassified errors are logged and hidden from the caller.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := unexpectedMessage
	var e *attendance.Error
	switch {
	case errors.As(err, &e):
		msg = e.Message
	case errors.Is(err, attendance.ErrNoActiveSession):
		msg = "No active academic session"
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
}

// actor returns the caller; routes are always mounted behind auth.Bearer.
func actor(c *gin.Context) auth.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

func actorOf(u attendance.User) auth.Actor {
	return auth.Actor{ID: u.ID, Role: u.Role}
}
