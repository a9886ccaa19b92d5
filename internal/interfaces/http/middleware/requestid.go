// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"z-song-ai-api/pkg/logger"
)

const (
	// RequestIDHeader 请求 ID 头
	RequestIDHeader = "X-Request-ID"
	// ClientIDHeader 调用方标识头，用于限流与配额
	ClientIDHeader = "X-Client-ID"

	anonymousClient = "anonymous"
	maxClientIDLen  = 64
)

// RequestID 注入请求 ID 与调用方标识
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		clientID := strings.TrimSpace(c.GetHeader(ClientIDHeader))
		if clientID == "" || len(clientID) > maxClientIDLen {
			clientID = anonymousClient
		}

		c.Set("request_id", requestID)
		c.Set("client_id", clientID)

		ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID)
		ctx = logger.WithContext(ctx, logger.ClientIDKey, clientID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// ClientID 读取 RequestID 中间件解析出的调用方标识
func ClientID(c *gin.Context) string {
	if id := c.GetString("client_id"); id != "" {
		return id
	}
	return anonymousClient
}
