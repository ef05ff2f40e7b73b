package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("api", "0.1.0", "json", &buf)

	logger.InfoContext(WithRequestID(context.Background(), "req-1"), "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "0.1.0", entry["version"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestSetupTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("api", "0.1.0", "text", &buf)

	logger.Info("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "service=api")
}

func TestLogErrorWithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("api", "0.1.0", "json", &buf)

	err := oops.Code("USER_STORE_FAILED").With("username", "alice").Errorf("boom")
	LogError(context.Background(), logger, "signup failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "USER_STORE_FAILED", entry["code"])
}

func TestLogErrorWithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("api", "0.1.0", "json", &buf)

	LogError(context.Background(), logger, "failed", errors.New("plain"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["error"], "plain")
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := Setup("api", "0.1.0", "json", &buf)

	var seen string
	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), seen)
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(Setup("api", "0.1.0", "json", &bytes.Buffer{})))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}
