package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/export"
)

const sessionKey = "session"

// withSession resolves the active academic session for session-scoped routes.
func (h *Handler) withSession(c *gin.Context) {
	sess, err := h.svc.ActiveSession(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func sessionFrom(c *gin.Context) *attendance.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(*attendance.Session)
	return sess
}

func (h *Handler) dashboard(c *gin.Context) {
	a := actor(c)
	sess := sessionFrom(c)
	switch a.Role {
	case auth.RoleStudent:
		rows, err := h.svc.StudentDashboard(c.Request.Context(), a, sess)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "session": sess, "subjects": nonNil(rows)})
	case auth.RoleTeacher:
		rows, err := h.svc.TeacherDashboard(c.Request.Context(), a, sess)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "session": sess, "subjects": nonNil(rows)})
	case auth.RoleAdmin:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Admins have no dashboard"})
	default:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Unknown role"})
	}
}

func (h *Handler) subjectSummary(c *gin.Context) {
	sum, err := h.svc.SubjectReport(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": sum})
}

func (h *Handler) chart(c *gin.Context) {
	chart, err := h.svc.SubjectChart(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "labels": chart.Labels, "data": chart.Data})
}

func (h *Handler) reportXLSX(c *gin.Context) {
	sum, err := h.svc.SubjectReport(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	buf, err := export.SubjectWorkbook(sum)
	if err != nil {
		h.fail(c, err)
		return
	}
	name := strings.ReplaceAll(sum.SubjectName, `"`, "")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-attendance.xlsx"`, name))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// parseDay accepts a bare date or a full RFC 3339 timestamp, as calendar widgets send either.
func parseDay(s string) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *Handler) calendar(c *gin.Context) {
	from, okFrom := parseDay(c.Query("start"))
	to, okTo := parseDay(c.Query("end"))
	if !okFrom || !okTo {
		badRequest(c, "start and end must be dates")
		return
	}
	events, err := h.svc.CalendarEvents(c.Request.Context(), actor(c), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

func (h *Handler) attendanceByDate(c *gin.Context) {
	day, ok := parseDay(c.Query("date"))
	if !ok {
		badRequest(c, "date must be formatted as YYYY-MM-DD")
		return
	}
	rows, err := h.svc.AttendanceOn(c.Request.Context(), actor(c), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": nonNil(rows)})
}
