package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-song-ai-api/pkg/logger"
)

// TraceIDHeader 响应中回写的 trace ID
const TraceIDHeader = "X-Trace-ID"

// Trace 为每个请求建立 server span，skipPaths（探活、指标）除外
func Trace(serviceName string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		_, skipped := skip[r.URL.Path]
		return !skipped
	}))
}

// TraceContext 把 trace/span ID 写入日志上下文与响应头，并在 span 上标注调用方与请求
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if !sc.IsValid() {
			c.Next()
			return
		}

		span.SetAttributes(
			attribute.String("client.id", ClientID(c)),
			attribute.String("request.id", c.GetString("request_id")),
		)
		traceID := sc.TraceID().String()
		c.Set("trace_id", traceID)
		c.Header(TraceIDHeader, traceID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
