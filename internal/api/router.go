package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/notify"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps is everything the HTTP surface needs.
type Deps struct {
	Service         *attendance.Service
	Issuer          *auth.Issuer
	Relay           notify.Relay
	Logger          *zap.Logger
	Gatherer        prometheus.Gatherer
	Origins         []string
	RateLimitPerMin int
	ArchiveDays     int
	Checks          map[string]HealthCheck
}

// Handler holds the gin handlers.
type Handler struct {
	svc         *attendance.Service
	issuer      *auth.Issuer
	relay       notify.Relay
	logger      *zap.Logger
	archiveDays int
	checks      map[string]HealthCheck
	upgrader    websocket.Upgrader
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	if d.ArchiveDays <= 0 {
		d.ArchiveDays = attendance.DefaultRetentionDays
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &Handler{
		svc:         d.Service,
		issuer:      d.Issuer,
		relay:       d.Relay,
		logger:      d.Logger,
		archiveDays: d.ArchiveDays,
		checks:      d.Checks,
		upgrader:    websocket.Upgrader{CheckOrigin: originChecker(d.Origins)},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.AccessLog(d.Logger))
	r.Use(corsMiddleware(d.Origins))
	r.Use(securityHeaders())
	if d.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.health)

	r.POST("/v1/auth/login", h.login)

	v1 := r.Group("/v1", auth.Bearer(d.Issuer))
	// Role is checked by the service so the scan keeps its own message.
	v1.POST("/mark-attendance", h.markAttendance)
	v1.GET("/subjects/:id/summary", h.subjectSummary)
	v1.GET("/dashboard", h.withSession, h.dashboard)

	teacher := v1.Group("", auth.Require(auth.RoleTeacher))
	teacher.POST("/lectures/:id/generate-qr", h.generateQR)
	teacher.GET("/lectures/:id/qr.png", h.qrPNG)
	teacher.GET("/lectures/:id/pending", h.pending)
	teacher.POST("/lectures/:id/approve-all", h.approveAll)
	teacher.POST("/lectures/:id/mark", h.manualMark)
	teacher.POST("/lectures/archive", h.archive)
	teacher.POST("/attendance/:id/approve", h.approve)
	teacher.POST("/attendance/:id/reject", h.reject)
	teacher.POST("/subjects/:id/lectures", h.scheduleLecture)
	teacher.GET("/subjects/:id/lectures", h.listLectures)
	teacher.GET("/subjects/:id/chart", h.chart)
	teacher.GET("/subjects/:id/report.xlsx", h.reportXLSX)

	student := v1.Group("", auth.Require(auth.RoleStudent))
	student.GET("/calendar", h.calendar)
	student.GET("/attendance-by-date", h.attendanceByDate)
	student.POST("/classes/:id/enroll", h.enroll)
	student.POST("/classes/:id/unenroll", h.unenroll)

	ws := r.Group("/ws", auth.BearerOrQuery(d.Issuer))
	ws.GET("/student", auth.Require(auth.RoleStudent), h.studentSocket)
	ws.GET("/lectures/:id", auth.Require(auth.RoleTeacher), h.lectureSocket)

	return r
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || len(allowed) == 0 || allowed[origin]
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
