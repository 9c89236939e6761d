// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/domain/repository"
	"portfolio-rag-api/internal/interfaces/http/handler"
	"portfolio-rag-api/internal/interfaces/http/middleware"
)

// Handlers 路由用到的处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Query   *handler.QueryHandler
	Ingest  *handler.IngestHandler
	Metrics *handler.MetricsHandler
}

// Options 可选依赖
type Options struct {
	// RequestLogs 为空时不写 request_logs
	RequestLogs repository.RequestLogRepository
	// RateLimiter 为空时不限流
	RateLimiter  middleware.RateLimiter
	RateLimitKey middleware.KeyFunc
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	opts     Options
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, opts Options) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = cfg.Ingest.MaxUploadBytes + 1<<20

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
		opts:     opts,
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
	r.engine.Use(middleware.RequestID())

	if r.opts.RequestLogs != nil {
		r.engine.Use(middleware.RequestLog(r.opts.RequestLogs, r.cfg.Observability.Metrics.Path, "/health", "/live"))
	}
	// recovery 在请求日志之内，panic 仍会落一条 500 记录
	r.engine.Use(middleware.Recovery())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) setupRoutes() {
	h := r.handlers

	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/live", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	limit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
	}, r.opts.RateLimiter, r.opts.RateLimitKey)

	RegisterRoutes(r.engine.Group("", limit), middleware.RequireWriteKey(r.cfg.Security.WriteAPIKey), h)
}
