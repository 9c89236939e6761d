package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
	"portfolio-rag-api/internal/domain/service"
	"portfolio-rag-api/pkg/logger"
)

const tokenUsageKey = "token_usage"

// SetTokenUsage 由处理器写入本次请求的 token 用量
func SetTokenUsage(c *gin.Context, usage *entity.TokenUsage) {
	if usage != nil {
		c.Set(tokenUsageKey, usage)
	}
}

// RequestLog 每个请求写一条 request_logs，并输出访问日志
func RequestLog(repo repository.RequestLogRepository, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		ctx, collector := service.WithUsageCollector(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		entry := &entity.RequestLog{
			RequestID:  c.GetString(requestIDKey),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: status,
			LatencyMs:  float64(latency.Microseconds()) / 1000.0,
			Success:    status < 500,
		}
		if status >= 500 && len(c.Errors) > 0 {
			entry.Error = entity.StringPtr(c.Errors.Last().Error())
		}
		// 处理器显式写入的用量优先，否则取网关记录的累计值
		usage := collector.Usage()
		if v, ok := c.Get(tokenUsageKey); ok {
			if u, ok := v.(*entity.TokenUsage); ok {
				usage = u
			}
		}
		if usage != nil {
			entry.PromptTokens = &usage.PromptTokens
			entry.CompletionTokens = &usage.CompletionTokens
			entry.TotalTokens = &usage.TotalTokens
		}

		logger.Info(ctx, "api request",
			"method", entry.Method,
			"path", entry.Path,
			"status", status,
			"duration_ms", latency.Milliseconds(),
			"ip", c.ClientIP(),
		)
		// 请求已结束，落库不受客户端断开影响
		if err := repo.Create(context.WithoutCancel(ctx), entry); err != nil {
			logger.Error(ctx, "failed to log request", err)
		}
	}
}
