package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/health"
	"ai-productivity-app/assistant/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(t *testing.T) *Router {
	gin.SetMode(gin.TestMode)
	cfg := config.Load()
	cfg.Server.RateLimit = 100
	cfg.Server.RateLimitBurst = 100
	r := New(cfg, logger.Nop(), health.NewChecker(nil, 0))
	t.Cleanup(r.Close)
	return r
}

func TestHealthRoute(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestPanicIsRecovered(t *testing.T) {
	r := newRouter(t)
	r.Engine.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SERVER_ERROR")
}

func TestPreflight(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/conversations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestThrottleStatusAvoidsQuotaStatus(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, throttleStatus(http.StatusTooManyRequests))
	assert.Equal(t, http.StatusTooManyRequests, throttleStatus(http.StatusPaymentRequired))
}

func TestMissingSchemaSkipsValidation(t *testing.T) {
	r := newRouter(t)
	assert.False(t, r.AddOpenAPIValidation("does/not/exist.yaml"))
}
