package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"z-song-ai-api/pkg/metrics"
)

const (
	modeUnary  = "unary"
	modeStream = "stream"
)

// Metrics 按路由模板记录请求指标；SSE 生成流单独统计时长与结束方式
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start).Seconds()

		if isEventStream(c) {
			outcome := "completed"
			if c.Request.Context().Err() != nil {
				outcome = "client_gone"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(method, route, status, modeStream).Inc()
			metrics.SSEStreamDuration.WithLabelValues(route, outcome).Observe(elapsed)
			return
		}

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, status, modeUnary).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed)
		if size := c.Writer.Size(); size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}

func isEventStream(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}
