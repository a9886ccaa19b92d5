package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func ready(t *testing.T, checks map[string]HealthChecker) (int, readinessResponse) {
	t.Helper()
	r := gin.New()
	r.GET("/ready", NewHealthHandler("test", checks).Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHealthHandler_ReadyOptionalDependencies(t *testing.T) {
	code, resp := ready(t, map[string]HealthChecker{
		"redis":    nil,
		"database": checkFunc(func(context.Context) error { return nil }),
	})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disabled", resp.Checks["redis"].Status)
	assert.Equal(t, "ok", resp.Checks["database"].Status)
}

func TestHealthHandler_ReadyFailure(t *testing.T) {
	code, resp := ready(t, map[string]HealthChecker{
		"redis": checkFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"].Error)
}
