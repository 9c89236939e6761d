package telemetry

import (
	"context"
	"time"
)

// TrendPoint 一个时间桶内的请求统计
type TrendPoint struct {
	BucketUTC    string  `json:"bucket_utc"`
	Requests     int     `json:"requests"`
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`
}

// EvalTrendPoint 一次评测的关键指标
type EvalTrendPoint struct {
	TsUTC        time.Time `json:"ts_utc"`
	RecallAt5    float64   `json:"recall_at_5"`
	EvalPassRate float64   `json:"eval_pass_rate"`
	EvalCoverage float64   `json:"eval_coverage"`
	LatencyP95Ms float64   `json:"latency_p95_ms"`
}

// History 指标趋势
type History struct {
	WindowHours   int              `json:"window_hours"`
	BucketMinutes int              `json:"bucket_minutes"`
	RequestTrend  []TrendPoint     `json:"request_trend"`
	EvalTrend     []EvalTrendPoint `json:"eval_trend"`
}

// Summary 近 24 小时的运行与质量概览
type Summary struct {
	UpdatedAt                  time.Time `json:"updated_at"`
	LatencyP95Ms               float64   `json:"latency_p95_ms"`
	SuccessRate                float64   `json:"success_rate"`
	ErrorRate                  float64   `json:"error_rate"`
	Requests24h                int       `json:"requests_24h"`
	RecallAt5                  float64   `json:"recall_at_5"`
	EvalPassRate               float64   `json:"eval_pass_rate"`
	EvalCoverage               float64   `json:"eval_coverage"`
	CorrectnessConfidenceAvg24 float64   `json:"correctness_confidence_avg_24h"`
	ConfidenceSamples24h       int64     `json:"confidence_samples_24h"`
	FeedbackAccuracyRate24h    float64   `json:"feedback_accuracy_rate_24h"`
	FeedbackSamples24h         int64     `json:"feedback_samples_24h"`
	CalibratedQuality24h       float64   `json:"calibrated_quality_24h"`
}

// IngestionStats 导入任务统计
type IngestionStats struct {
	TotalJobs    int     `json:"total_jobs"`
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate"`
	LatencyP50Ms float64 `json:"latency_p50_ms"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`
	AvgAttempts  float64 `json:"avg_attempts"`
	RetriedJobs  int     `json:"retried_jobs"`
}

// Cache 读穿缓存，由 redis 缓存实现
type Cache interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest any, loader func(ctx context.Context) (any, error)) error
}
