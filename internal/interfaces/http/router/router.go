// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"z-song-ai-api/internal/config"
	"z-song-ai-api/internal/interfaces/http/handler"
	"z-song-ai-api/internal/interfaces/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	engine  *gin.Engine
	cfg     *config.Config
	limiter middleware.RateLimiter
	songs   *handler.SongHandler
	health  *handler.HealthHandler
}

// New 创建路由器；limiter 为空时只使用进程内限流
func New(cfg *config.Config, songs *handler.SongHandler, health *handler.HealthHandler, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:  gin.New(),
		cfg:     cfg,
		limiter: limiter,
		songs:   songs,
		health:  health,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, "/health", "/ready", "/live", r.metricsPath()))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.health.Health)
	r.engine.GET("/ready", r.health.Ready)
	r.engine.GET("/live", r.health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             r.cfg.Security.RateLimit.Burst,
	}, r.limiter))

	songs := v1.Group("/songs")
	{
		songs.POST("/generate", r.songs.Generate)
		songs.POST("/generate/stream", r.songs.GenerateStream)
		songs.POST("/score", r.songs.Score)
	}

	v1.GET("/resilience/breakers", r.songs.Breakers)
}
