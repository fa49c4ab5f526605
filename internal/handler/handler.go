package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/audit"
	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
)

// Directory resolves the ids handed over at login.
type Directory interface {
	FindStudentByID(id string) (model.Student, bool)
	FindTeacherByID(id string) (model.Teacher, bool)
}

// Options wires the HTTP layer to the engine.
type Options struct {
	Service   *attendance.Service
	Reports   *attendance.Reports
	Directory Directory
	Publisher *audit.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Limiter   *httpmiddleware.TokenBucket

	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	QRSize        int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves the /v1 API.
type Handler struct {
	svc     *attendance.Service
	reports *attendance.Reports
	dir     Directory
	pub     *audit.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	limiter *httpmiddleware.TokenBucket

	issuer     string
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
	qrSize     int
	now        func() time.Time
}

// New builds the handler. Logger, Metrics and Now default to a no-op logger,
// unregistered collectors and time.Now.
func New(o Options) *Handler {
	h := &Handler{
		svc:        o.Service,
		reports:    o.Reports,
		dir:        o.Directory,
		pub:        o.Publisher,
		metrics:    o.Metrics,
		log:        o.Logger,
		limiter:    o.Limiter,
		issuer:     o.JWTIssuer,
		signingKey: o.JWTSigningKey,
		accessTTL:  o.AccessTTL,
		refreshTTL: o.RefreshTTL,
		qrSize:     o.QRSize,
		now:        o.Now,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.accessTTL <= 0 {
		h.accessTTL = 15 * time.Minute
	}
	if h.refreshTTL <= 0 {
		h.refreshTTL = 24 * time.Hour
	}
	return h
}

// Register mounts every route under /v1.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	public := v1.Group("")
	if h.limiter != nil {
		public.Use(h.limiter.GinMiddleware())
	}
	public.POST("/login", h.login)
	public.POST("/token/refresh", h.refresh)

	authed := v1.Group("", auth.ActorAuth(h.signingKey, h.issuer))
	if h.limiter != nil {
		authed.Use(h.limiter.GinMiddlewareBy(actorKey))
	}
	teacher := authed.Group("", auth.RequireRole(string(attendance.RoleTeacher)))
	student := authed.Group("", auth.RequireRole(string(attendance.RoleStudent)))

	authed.GET("/sessions", h.listSessions)
	authed.GET("/sessions/ongoing", h.ongoingSessions)
	authed.GET("/sessions/upcoming", h.upcomingSessions)
	authed.GET("/sessions/:id/validity", h.sessionValidity)
	authed.POST("/scan", h.scan)

	teacher.POST("/sessions", h.createSession)
	teacher.POST("/sessions/:id/active", h.setActive)
	teacher.GET("/sessions/:id/qr.png", h.sessionQR)
	teacher.POST("/sessions/:id/absent", h.markAbsent)
	teacher.PATCH("/attendance/:id", h.editAttendance)

	student.GET("/sessions/:id/claim", h.studentClaim)
	student.GET("/sessions/:id/claim.png", h.studentClaimQR)
	student.GET("/sessions/:id/eligibility", h.eligibility)
	student.POST("/sessions/:id/report", h.selfReport)

	authed.GET("/students/:id/subjects", h.studentSubjects)
	authed.GET("/students/:id/stats", h.studentStats)
	authed.GET("/students/:id/recent", h.studentRecent)

	teacher.GET("/subjects", h.teacherSubjects)
	teacher.GET("/subjects/:subject/attendance", h.subjectAttendance)
	teacher.GET("/subjects/:subject/dates", h.subjectDates)
	teacher.GET("/subjects/:subject/roster", h.subjectRoster)
	teacher.GET("/subjects/:subject/export.xlsx", h.subjectExport)
}

func actorKey(c *gin.Context) string {
	claims, ok := auth.FromContext(c)
	if !ok {
		return ""
	}
	return claims.Role + ":" + claims.Subject
}

func actorOf(c *gin.Context) attendance.Actor {
	claims, _ := auth.FromContext(c)
	return attendance.Actor{Role: attendance.Role(claims.Role), ID: claims.Subject}
}
