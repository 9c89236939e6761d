// Package ingestion 导入任务的提交、执行与索引管理
package ingestion

import (
	"context"
	"time"

	"portfolio-rag-api/internal/domain/entity"
)

// Task 队列中的一次导入任务
type Task struct {
	JobID      int64             `json:"job_id"`
	SourceType entity.SourceType `json:"source_type"`
	// Source 上传时为文件名，链接导入时为 URL
	Source   string `json:"source"`
	Filename string `json:"filename,omitempty"`
	Content  []byte `json:"content,omitempty"`
}

// Queue 任务队列
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

// LinkFetcher 链接校验与抓取
type LinkFetcher interface {
	ValidateURL(ctx context.Context, raw string) error
	FetchLinkText(ctx context.Context, raw string) (filename string, text string, err error)
}

// Options 导入参数
type Options struct {
	MaxUploadBytes int64
	LinkMaxRetries int
	LinkBackoff    time.Duration
}

// ResetResult 重置索引的结果
type ResetResult struct {
	VectorCount    int64
	SourcesCleared int64
	State          *entity.IndexState
}

// SourcesView 已导入来源列表
type SourcesView struct {
	Total int64
	State *entity.IndexState
	Items []*entity.IngestedSource
}
