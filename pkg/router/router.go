package router

import (
	"net/http"
	"time"

	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/health"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Router is the dev server's gin engine with the shared middleware chain installed
type Router struct {
	Engine  *gin.Engine
	Logger  *logger.Logger
	Config  *config.Config
	Health  *health.Checker
	limiter *middleware.RateLimiter
}

// New creates the engine. Routes are registered by the caller.
func New(cfg *config.Config, log *logger.Logger, checker *health.Checker) *Router {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(log))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	// 429 is reserved for the per-user message quota, so throttling answers 503
	limiter := middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Server.RateLimit),
		Burst:          cfg.Server.RateLimitBurst,
		ExpiryDuration: time.Hour,
		StatusCode:     throttleStatus(cfg.API.QuotaStatus),
	})
	engine.Use(limiter.Middleware())
	engine.Use(corsMiddleware())

	r := &Router{
		Engine:  engine,
		Logger:  log,
		Config:  cfg,
		Health:  checker,
		limiter: limiter,
	}
	r.setupHealthRoutes()
	return r
}

func throttleStatus(quotaStatus int) int {
	if quotaStatus == http.StatusTooManyRequests {
		return http.StatusServiceUnavailable
	}
	return http.StatusTooManyRequests
}

func (r *Router) setupHealthRoutes() {
	if r.Health != nil {
		r.Engine.GET("/health", r.Health.Handler())
		r.Engine.GET("/api/health", r.Health.Handler())
	}
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Close stops background work owned by the router
func (r *Router) Close() {
	r.limiter.Stop()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID, Content-Disposition")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
