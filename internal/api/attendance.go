package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON data")
		return
	}
	u, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	token, exp, err := h.issuer.Issue(actorOf(u))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"access_token": token,
		"expires_at":   exp.Unix(),
		"user":         u,
	})
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		QRCodeData string `json:"qr_code_data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON data")
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), actor(c), req.QRCodeData)
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Created {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Attendance submitted and awaiting approval.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Attendance already marked (status: %s).", res.Attendance.Status),
	})
}

func (h *Handler) generateQR(c *gin.Context) {
	qr, err := h.svc.IssueQRCode(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"qr_code_data": qr.Token,
		"lecture_id":   qr.LectureID,
		"expires_at":   qr.ExpiresAt,
	})
}

// qrPNG renders the live token; tokens are only minted by generateQR.
func (h *Handler) qrPNG(c *gin.Context) {
	qr, err := h.svc.LiveQRCode(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	png, err := qrcode.Encode(qr.Token, qrcode.Medium, 256)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-QR-Expires-At", qr.ExpiresAt.UTC().Format(time.RFC3339))
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) approve(c *gin.Context) {
	a, err := h.svc.Approve(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": a})
}

func (h *Handler) reject(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// An unreadable body falls back to the default reason.
	_ = c.ShouldBindJSON(&req)
	a, err := h.svc.Reject(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": a})
}

func (h *Handler) approveAll(c *gin.Context) {
	rows, err := h.svc.ApproveAll(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "approved": len(rows), "attendance": nonNil(rows)})
}

func (h *Handler) manualMark(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON data")
		return
	}
	a, err := h.svc.ManualMark(c.Request.Context(), actor(c), c.Param("id"), req.StudentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": a})
}

func (h *Handler) pending(c *gin.Context) {
	rows, err := h.svc.PendingClaims(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": nonNil(rows)})
}

func (h *Handler) scheduleLecture(c *gin.Context) {
	var req struct {
		Date string `json:"date" binding:"required"`
		Time string `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON data")
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		badRequest(c, "Lecture date must be formatted as YYYY-MM-DD")
		return
	}
	l, err := h.svc.ScheduleLecture(c.Request.Context(), actor(c), c.Param("id"), date, req.Time)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "lecture": l})
}

func (h *Handler) listLectures(c *gin.Context) {
	rows, err := h.svc.ListLectures(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lectures": nonNil(rows)})
}

func (h *Handler) archive(c *gin.Context) {
	var req struct {
		Days int `json:"days"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON data")
			return
		}
	}
	if req.Days == 0 {
		req.Days = h.archiveDays
	}
	n, err := h.svc.ArchiveLectures(c.Request.Context(), actor(c), req.Days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "archived": n})
}

func (h *Handler) enroll(c *gin.Context) {
	class, err := h.svc.Enroll(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Enrolled in " + class.Name})
}

func (h *Handler) unenroll(c *gin.Context) {
	class, err := h.svc.Unenroll(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Left " + class.Name})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
