package dto

import (
	"time"

	"portfolio-rag-api/internal/application/ingestion"
	"portfolio-rag-api/internal/domain/entity"
)

// LinkIngestRequest 链接导入
type LinkIngestRequest struct {
	URL string `json:"url" binding:"required,min=10"`
}

// JobAcceptedResponse 任务已入队
type JobAcceptedResponse struct {
	JobID  int64            `json:"job_id"`
	Status entity.JobStatus `json:"status"`
}

// JobListResponse 任务列表
type JobListResponse struct {
	Jobs []*entity.IngestionJob `json:"jobs"`
}

// ResetRequest 重置索引
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

// ResetResponse 重置结果
type ResetResponse struct {
	Status         string     `json:"status"`
	VectorCount    int64      `json:"vector_count"`
	SourcesCleared int64      `json:"sources_cleared"`
	LastResetUTC   *time.Time `json:"last_reset_utc"`
	ResetCount     int        `json:"reset_count"`
	Message        string     `json:"message"`
}

// ToResetResponse 转换重置结果
func ToResetResponse(r *ingestion.ResetResult) *ResetResponse {
	resp := &ResetResponse{
		Status:         "ok",
		VectorCount:    r.VectorCount,
		SourcesCleared: r.SourcesCleared,
		Message:        "Vector index reset completed.",
	}
	if r.State != nil {
		resp.LastResetUTC = r.State.LastResetUTC
		resp.ResetCount = r.State.ResetCount
	}
	return resp
}

// SourcesResponse 已导入来源
type SourcesResponse struct {
	TotalSources int64                    `json:"total_sources"`
	LastResetUTC *time.Time               `json:"last_reset_utc"`
	ResetCount   int                      `json:"reset_count"`
	Items        []*entity.IngestedSource `json:"items"`
}

// ToSourcesResponse 转换来源列表
func ToSourcesResponse(v *ingestion.SourcesView) *SourcesResponse {
	items := v.Items
	if items == nil {
		items = []*entity.IngestedSource{}
	}
	resp := &SourcesResponse{TotalSources: v.Total, Items: items}
	if v.State != nil {
		resp.LastResetUTC = v.State.LastResetUTC
		resp.ResetCount = v.State.ResetCount
	}
	return resp
}
