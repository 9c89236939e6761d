package entity

import (
	"fmt"
	"time"
)

// SourceType 导入来源类型
type SourceType string

const (
	SourceTypeUpload SourceType = "upload"
	SourceTypeLink   SourceType = "link"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// IsTerminal 终态不再迁移
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// IngestSummary 一次索引写入的摘要
type IngestSummary struct {
	Docs        int   `json:"docs"`
	Chunks      int   `json:"chunks"`
	VectorCount int64 `json:"vector_count"`
}

// IngestionJob 文档导入任务
type IngestionJob struct {
	ID           int64          `json:"job_id" gorm:"primaryKey;autoIncrement"`
	CreatedAt    time.Time      `json:"created_utc" gorm:"column:ts_utc;index;not null"`
	UpdatedAt    time.Time      `json:"updated_utc" gorm:"column:updated_utc;not null"`
	SourceType   SourceType     `json:"source_type" gorm:"type:varchar(16);not null"`
	Source       string         `json:"source" gorm:"type:text;not null"`
	Status       JobStatus      `json:"status" gorm:"type:varchar(16);index;not null"`
	AttemptCount int            `json:"attempt_count" gorm:"not null;default:0"`
	MaxAttempts  int            `json:"max_attempts" gorm:"not null;default:1"`
	LatencyMs    *float64       `json:"latency_ms"`
	Summary      *IngestSummary `json:"summary" gorm:"column:summary_json;type:text;serializer:json"`
	Error        *string        `json:"error" gorm:"type:text"`
}

func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// NewIngestionJob 创建排队中的任务
func NewIngestionJob(sourceType SourceType, source string, maxAttempts int) *IngestionJob {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &IngestionJob{
		SourceType:  sourceType,
		Source:      source,
		Status:      JobStatusQueued,
		MaxAttempts: maxAttempts,
	}
}

// StartAttempt 进入第 attempt 次执行
func (j *IngestionJob) StartAttempt(attempt int) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %d already %s", j.ID, j.Status)
	}
	if attempt < 1 || attempt > j.MaxAttempts {
		return fmt.Errorf("job %d attempt %d out of range 1..%d", j.ID, attempt, j.MaxAttempts)
	}
	j.Status = JobStatusRunning
	j.AttemptCount = attempt
	return nil
}

// Succeed 任务成功
func (j *IngestionJob) Succeed(summary IngestSummary, latency time.Duration) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %d already %s", j.ID, j.Status)
	}
	j.Status = JobStatusSuccess
	j.Summary = &summary
	j.Error = nil
	j.setLatency(latency)
	return nil
}

// Fail 任务失败（不再重试）
func (j *IngestionJob) Fail(errMsg string, latency time.Duration) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %d already %s", j.ID, j.Status)
	}
	j.Status = JobStatusError
	j.Error = &errMsg
	j.setLatency(latency)
	return nil
}

// CanRetry 是否还有剩余尝试次数
func (j *IngestionJob) CanRetry() bool {
	return !j.Status.IsTerminal() && j.AttemptCount < j.MaxAttempts
}

func (j *IngestionJob) setLatency(latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1000.0
	j.LatencyMs = &ms
}
