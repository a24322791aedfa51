package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers groups the resource handlers by who may call them.
type Handlers struct {
	Health  Handler
	Clinic  Handler
	Slot    Handler
	Booking Handler
	Nearby  Handler
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	RequestTimeout   time.Duration
	MaxBodySize      int64
	ServiceName      string
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	log *logger.Logger,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	middleware.RegisterValidators()

	engine := gin.New() // Use New() instead of Default() for more control

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
	}

	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultSizeLimitConfig().MaxBodySize
	}

	// Add core middlewares
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		otelgin.Middleware(config.ServiceName),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.ErrorHandler(log),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodySize}),
	)

	// Add CORS with config
	engine.Use(middleware.CORS(config.CORSConfig))

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	// Add version header
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	// Health check endpoints
	r.handlers.Health.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	doctors := rg.Group("")
	doctors.Use(r.auth.RequireRole(model.RoleDoctor, model.RoleAdmin))
	r.handlers.Clinic.RegisterRoutes(doctors)
	r.handlers.Slot.RegisterRoutes(doctors)

	students := rg.Group("")
	students.Use(r.auth.RequireRole(model.RoleStudent))
	r.handlers.Booking.RegisterRoutes(students)

	anyone := rg.Group("")
	anyone.Use(r.auth.RequireRole(model.RoleStudent, model.RoleDoctor, model.RoleAdmin))
	r.handlers.Nearby.RegisterRoutes(anyone)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
