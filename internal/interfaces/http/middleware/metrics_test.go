package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"z-song-ai-api/pkg/metrics"
)

func TestMetrics_SeparatesStreamFromUnary(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.POST("/v1/test-metrics/songs/:id/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "event: done\ndata: {}\n\n")
	})
	r.POST("/v1/test-metrics/songs", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"id": "s1"})
	})

	for _, path := range []string{"/v1/test-metrics/songs/a/stream", "/v1/test-metrics/songs/b/stream", "/v1/test-metrics/songs"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	}

	streamRoute := "/v1/test-metrics/songs/:id/stream"
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", streamRoute, "200", modeStream)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", streamRoute, "200", modeUnary)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/v1/test-metrics/songs", "201", modeUnary)))
}

func TestMetrics_UnmatchedRouteCollapses(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())

	for _, path := range []string{"/test-metrics/x1", "/test-metrics/x2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("DELETE", "unmatched", "404", modeUnary)))
}
