package repository

import (
	"context"

	"portfolio-rag-api/internal/domain/entity"
)

// IngestionJobRepository 导入任务仓储接口
type IngestionJobRepository interface {
	Create(ctx context.Context, job *entity.IngestionJob) error

	// GetByID 不存在时返回 nil
	GetByID(ctx context.Context, id int64) (*entity.IngestionJob, error)

	// Update 保存任务状态
	Update(ctx context.Context, job *entity.IngestionJob) error

	// List 最近的任务，按 ID 倒序
	List(ctx context.Context, limit int) ([]*entity.IngestionJob, error)

	// ListAll 全部任务，用于统计
	ListAll(ctx context.Context) ([]*entity.IngestionJob, error)
}

// IngestedSourceRepository 已导入来源仓储接口
type IngestedSourceRepository interface {
	// Record 登记来源，(source, doc_id) 已存在时忽略
	Record(ctx context.Context, source *entity.IngestedSource) error

	// List 最近登记的来源，按 ID 倒序
	List(ctx context.Context, limit int) ([]*entity.IngestedSource, error)

	Count(ctx context.Context) (int64, error)

	// Clear 删除全部登记，返回删除条数
	Clear(ctx context.Context) (int64, error)
}

// IndexStateRepository 索引状态仓储接口
type IndexStateRepository interface {
	Get(ctx context.Context) (*entity.IndexState, error)

	// MarkReset 记录一次重置并返回最新状态
	MarkReset(ctx context.Context) (*entity.IndexState, error)
}

// AppSettingRepository 应用设置仓储接口
type AppSettingRepository interface {
	// Get 返回设置值，ok 表示是否存在
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	Set(ctx context.Context, key, value string) error
}
