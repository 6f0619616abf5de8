package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/analyses"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/services/health"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/config"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/metrics"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server/middleware"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server/respond"
)

// RouterDeps carries the handlers mounted on the router.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	Health          *health.Service
	// RateLimiter is shared across routers when set; tests inject a clock through it.
	RateLimiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.IsDevLike() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		otelgin.Middleware(serviceName(cfg)),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigins),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		report := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	if deps.AnalysisHandler != nil {
		var submitMiddleware []gin.HandlerFunc
		if cfg.RateLimitAnalyzePerMin > 0 {
			submitMiddleware = append(submitMiddleware, middleware.RateLimit(middleware.RateLimitConfig{
				Name:    "analyze",
				Rule:    middleware.PerMinute(cfg.RateLimitAnalyzePerMin, cfg.RateLimitAnalyzeBurst),
				Limiter: deps.RateLimiter,
			}))
		}
		deps.AnalysisHandler.RegisterRoutes(api, submitMiddleware...)
	}

	return r
}

func serviceName(cfg config.Config) string {
	if cfg.ServiceName == "" {
		return "medbeauty-api"
	}
	return cfg.ServiceName
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
