package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uniattend/internal/auth"
	"uniattend/internal/faceclient"
	"uniattend/internal/httpmiddleware"
	"uniattend/internal/metrics"
	"uniattend/internal/model"
	"uniattend/internal/rollup"
	"uniattend/internal/system"
)

// Verifier checks a check-in image against the student's enrolled face.
type Verifier interface {
	Verify(ctx context.Context, userID, imageURL string) (faceclient.Verification, error)
}

// Options configure the router. Zero values are usable.
type Options struct {
	Production      bool
	RateLimitPerMin int
	AllowOrigins    []string
	// Health reports dependency status for /healthz; any false value turns it into 503.
	Health func(ctx context.Context) map[string]bool
	Now    func() time.Time
}

// Handler serves the HTTP API over a System.
type Handler struct {
	sys     *system.System
	face    Verifier
	rollups rollup.Store
	log     *zap.Logger
	now     func() time.Time
}

// NewRouter builds the gin engine with middleware and every route. face and
// rollups may be nil; the routes that need them then answer 503.
func NewRouter(sys *system.System, face Verifier, rollups rollup.Store, m *metrics.Metrics, log *zap.Logger, opts Options) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Handler{sys: sys, face: face, rollups: rollups, log: log.Named("http"), now: opts.Now}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.log, "/healthz", "/metrics"))
	r.Use(m.GinMiddleware())
	r.Use(cors.New(corsConfig(opts.AllowOrigins)))
	r.Use(securityHeaders(opts.Production))
	r.Use(httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin, nil).GinMiddleware())

	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if opts.Health != nil {
			for name, ok := range opts.Health(c.Request.Context()) {
				body[name] = ok
				if !ok {
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
				}
			}
		}
		c.JSON(status, body)
	})

	v1 := r.Group("/v1")
	v1.POST("/users", h.register)
	v1.POST("/sessions", h.login)

	authed := v1.Group("", auth.RequireSession(sys.Sessions()))
	authed.DELETE("/sessions/current", h.logout)
	authed.GET("/me", h.me)
	authed.PATCH("/me", h.updateMe)
	authed.PUT("/me/password", h.changePassword)
	authed.GET("/users/:id", h.getUser)

	authed.POST("/courses", auth.RequireRole(model.RoleInstructor), h.createCourse)
	authed.GET("/courses", h.listCourses)
	authed.GET("/courses/:id", h.getCourse)
	authed.PATCH("/courses/:id", auth.RequireRole(model.RoleInstructor), h.updateCourse)
	authed.PUT("/courses/:id/students/:studentID", auth.RequireRole(model.RoleInstructor), h.enroll)
	authed.DELETE("/courses/:id/students/:studentID", auth.RequireRole(model.RoleInstructor), h.unenroll)

	authed.POST("/courses/:id/attendance", auth.RequireRole(model.RoleInstructor), h.markAttendance)
	authed.POST("/courses/:id/checkin", auth.RequireRole(model.RoleStudent), h.checkIn)
	authed.GET("/courses/:id/attendance", h.listAttendance)
	authed.GET("/courses/:id/summary", h.summary)
	authed.GET("/courses/:id/rollup", auth.RequireRole(model.RoleInstructor), h.rollup)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	// Credentials are only allowed for an explicit origin list.
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func securityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}
