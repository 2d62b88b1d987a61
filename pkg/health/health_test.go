package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCriticalComponentDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewChecker(nil, 0)

	failing := true
	c.RegisterStoreCheck(func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	})
	c.RunChecks(context.Background())

	assert.False(t, c.IsSystemHealthy())
	assert.Equal(t, "connection refused", c.GetStatus()["store"].Error)

	r := gin.New()
	r.GET("/health", c.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing = false
	c.RunChecks(context.Background())
	assert.True(t, c.IsSystemHealthy())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNonCriticalDownIsHealthy(t *testing.T) {
	c := NewChecker(nil, 0)
	c.RegisterCheck("responder", false, func(context.Context) (Status, string, error) {
		return StatusDegraded, "slow", errors.New("timeout")
	})
	c.RunChecks(context.Background())
	assert.True(t, c.IsSystemHealthy())
	assert.Equal(t, StatusDegraded, c.GetStatus()["responder"].Status)
}
