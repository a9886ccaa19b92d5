package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"z-song-ai-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerSecond 每个调用方每秒请求数
	RequestsPerSecond int
	// Burst 本地令牌桶突发容量
	Burst int
	// KeyPrefix 分布式限流键前缀
	KeyPrefix string
}

// RateLimiter 分布式限流器，由 redis.RateLimiter 实现
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按 client_id + 路由限流。distributed 为空或出错时退回进程内令牌桶。
func RateLimit(cfg RateLimitConfig, distributed RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit"
	}
	local := newLocalLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := cfg.KeyPrefix + ":" + ClientID(c) + ":" + route

		allowed := false
		if distributed != nil {
			ok, err := distributed.Allow(c.Request.Context(), key, cfg.RequestsPerSecond, time.Second)
			if err == nil {
				allowed = ok
			} else {
				logger.Warn(c.Request.Context(), "distributed rate limiter unavailable, using local limiter", "error", err.Error())
				allowed = local.allow(key)
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     http.StatusTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}
		c.Next()
	}
}

// maxLocalKeys 超过后清空重建，限制内存占用
const maxLocalKeys = 10000

type localLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLocalLimiter(limit rate.Limit, burst int) *localLimiter {
	return &localLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLocalKeys {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
