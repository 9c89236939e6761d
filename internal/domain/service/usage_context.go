// Package service 定义跨层共享的领域服务契约
package service

import (
	"context"
	"strings"
	"sync"

	"portfolio-rag-api/internal/domain/entity"
)

type usageCtxKey struct{}

type workflowCtxKey struct{}

// UsageCollector 汇总一次请求内所有生成调用的 token 用量，请求日志中间件在请求结束时读取
type UsageCollector struct {
	mu    sync.Mutex
	usage *entity.TokenUsage
}

// Add 累加一次调用的用量
func (c *UsageCollector) Add(u entity.TokenUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usage == nil {
		c.usage = &entity.TokenUsage{}
	}
	c.usage.PromptTokens += u.PromptTokens
	c.usage.CompletionTokens += u.CompletionTokens
	c.usage.TotalTokens += u.TotalTokens
}

// Usage 没有任何调用时返回 nil
func (c *UsageCollector) Usage() *entity.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usage == nil {
		return nil
	}
	u := *c.usage
	return &u
}

// WithUsageCollector 在 context 中挂载新的用量收集器
func WithUsageCollector(ctx context.Context) (context.Context, *UsageCollector) {
	c := &UsageCollector{}
	return context.WithValue(ctx, usageCtxKey{}, c), c
}

// RecordUsage 将用量记入 context 中的收集器，没有收集器时忽略
func RecordUsage(ctx context.Context, u *entity.TokenUsage) {
	if ctx == nil || u == nil {
		return
	}
	if c, ok := ctx.Value(usageCtxKey{}).(*UsageCollector); ok {
		c.Add(*u)
	}
}

// WithWorkflow 标记调用所属流程（query/eval/ingest），用于指标与日志
func WithWorkflow(ctx context.Context, workflow string) context.Context {
	w := strings.TrimSpace(workflow)
	if w == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowCtxKey{}, w)
}

func WorkflowFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(workflowCtxKey{}).(string)
	if !ok || s == "" {
		return "unknown"
	}
	return s
}
