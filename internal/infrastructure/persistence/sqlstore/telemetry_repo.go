package sqlstore

import (
	"context"
	"fmt"
	"time"

	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
)

// RequestLogRepository 请求日志仓储实现
type RequestLogRepository struct {
	client *Client
}

// NewRequestLogRepository 创建请求日志仓储
func NewRequestLogRepository(client *Client) *RequestLogRepository {
	return &RequestLogRepository{client: client}
}

var _ repository.RequestLogRepository = (*RequestLogRepository)(nil)

// Create 写入请求日志
func (r *RequestLogRepository) Create(ctx context.Context, log *entity.RequestLog) error {
	ctx, span := tracer.Start(ctx, "sqlstore.RequestLogRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(log).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create request log: %w", err)
	}
	return nil
}

// ListSince 获取指定路径自 since 起的请求
func (r *RequestLogRepository) ListSince(ctx context.Context, path string, since time.Time) ([]*entity.RequestLog, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.RequestLogRepository.ListSince")
	defer span.End()

	var logs []*entity.RequestLog
	if err := getDB(ctx, r.client.db).
		Where("path = ? AND ts_utc >= ?", path, since.UTC()).
		Order("ts_utc ASC, id ASC").
		Find(&logs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}
	return logs, nil
}

// RetrievalEventRepository 检索事件仓储实现
type RetrievalEventRepository struct {
	client *Client
}

// NewRetrievalEventRepository 创建检索事件仓储
func NewRetrievalEventRepository(client *Client) *RetrievalEventRepository {
	return &RetrievalEventRepository{client: client}
}

var _ repository.RetrievalEventRepository = (*RetrievalEventRepository)(nil)

// Create 写入检索事件
func (r *RetrievalEventRepository) Create(ctx context.Context, event *entity.RetrievalEvent) error {
	ctx, span := tracer.Start(ctx, "sqlstore.RetrievalEventRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create retrieval event: %w", err)
	}
	return nil
}

// ListRecent 最近的检索事件
func (r *RetrievalEventRepository) ListRecent(ctx context.Context, source entity.RetrievalSource, limit int) ([]*entity.RetrievalEvent, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.RetrievalEventRepository.ListRecent")
	defer span.End()

	var events []*entity.RetrievalEvent
	if err := getDB(ctx, r.client.db).
		Where("source = ?", source).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list retrieval events: %w", err)
	}
	return events, nil
}

// EvalRunRepository 评测记录仓储实现
type EvalRunRepository struct {
	client *Client
}

// NewEvalRunRepository 创建评测记录仓储
func NewEvalRunRepository(client *Client) *EvalRunRepository {
	return &EvalRunRepository{client: client}
}

var _ repository.EvalRunRepository = (*EvalRunRepository)(nil)

// Create 写入评测记录
func (r *EvalRunRepository) Create(ctx context.Context, run *entity.EvalRun) error {
	ctx, span := tracer.Start(ctx, "sqlstore.EvalRunRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(run).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create eval run: %w", err)
	}
	return nil
}

// Latest 最近一次评测
func (r *EvalRunRepository) Latest(ctx context.Context) (*entity.EvalRun, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.EvalRunRepository.Latest")
	defer span.End()

	var runs []*entity.EvalRun
	if err := getDB(ctx, r.client.db).Order("id DESC").Limit(1).Find(&runs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest eval run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// ListRecent 最近 limit 次评测，按时间升序返回
func (r *EvalRunRepository) ListRecent(ctx context.Context, limit int) ([]*entity.EvalRun, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.EvalRunRepository.ListRecent")
	defer span.End()

	var runs []*entity.EvalRun
	if err := getDB(ctx, r.client.db).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list eval runs: %w", err)
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}
