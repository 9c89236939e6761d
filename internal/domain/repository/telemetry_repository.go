package repository

import (
	"context"
	"time"

	"portfolio-rag-api/internal/domain/entity"
)

// RequestLogRepository 请求日志仓储接口
type RequestLogRepository interface {
	// Create 写入一条请求日志
	Create(ctx context.Context, log *entity.RequestLog) error

	// ListSince 获取指定路径自 since 起的请求，按时间升序
	ListSince(ctx context.Context, path string, since time.Time) ([]*entity.RequestLog, error)
}

// RetrievalEventRepository 检索事件仓储接口
type RetrievalEventRepository interface {
	// Create 写入一条检索事件
	Create(ctx context.Context, event *entity.RetrievalEvent) error

	// ListRecent 获取指定来源最近的事件，按时间倒序
	ListRecent(ctx context.Context, source entity.RetrievalSource, limit int) ([]*entity.RetrievalEvent, error)
}

// EvalRunRepository 评测记录仓储接口
type EvalRunRepository interface {
	Create(ctx context.Context, run *entity.EvalRun) error

	// Latest 最近一次评测，没有时返回 nil
	Latest(ctx context.Context) (*entity.EvalRun, error)

	// ListRecent 最近 limit 次评测，按时间升序
	ListRecent(ctx context.Context, limit int) ([]*entity.EvalRun, error)
}

// QueryRunRepository 问答记录与反馈仓储接口
type QueryRunRepository interface {
	Create(ctx context.Context, run *entity.QueryRun) error

	// GetByID 不存在时返回 nil
	GetByID(ctx context.Context, id int64) (*entity.QueryRun, error)

	// ListWithFeedback 最近的问答记录及其反馈，按时间倒序
	ListWithFeedback(ctx context.Context, limit int) ([]*entity.QueryRunWithFeedback, error)

	// UpsertFeedback 写入或覆盖反馈
	UpsertFeedback(ctx context.Context, feedback *entity.QueryRunFeedback) (*entity.QueryRunFeedback, error)

	// ConfidenceSince since 起问答的平均正确概率与样本数
	ConfidenceSince(ctx context.Context, since time.Time) (avg float64, samples int64, err error)

	// FeedbackSince since 起反馈的正确率与样本数
	FeedbackSince(ctx context.Context, since time.Time) (accuracy float64, samples int64, err error)
}
