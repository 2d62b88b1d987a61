package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-productivity-app/assistant/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
openapi: 3.0.3
info:
  title: test
  version: "1"
paths:
  /items:
    get:
      parameters:
        - name: page
          in: query
          schema:
            type: integer
            minimum: 1
      responses:
        "200":
          description: ok
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [text]
              properties:
                text:
                  type: string
                  minLength: 1
      responses:
        "200":
          description: ok
`

func newEngine(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidatorFromData([]byte(doc))
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/items", ok)
	r.POST("/items", ok)
	r.GET("/other", ok)
	return r
}

func TestQueryValidation(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items?page=2", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items?page=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestBodyValidation(t *testing.T) {
	r := newEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUndocumentedRoutePasses(t *testing.T) {
	r := newEngine(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
