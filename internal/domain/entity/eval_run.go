package entity

import "time"

// EvalRun 一次离线评测的聚合结果
type EvalRun struct {
	ID                int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt         time.Time `json:"ts_utc" gorm:"column:ts_utc;index;not null"`
	TotalCases        int       `json:"total_cases" gorm:"not null"`
	RetrievalHitRate  float64   `json:"retrieval_hit_rate" gorm:"not null"`
	RecallAtK         float64   `json:"recall_at_k" gorm:"not null"`
	RecallAt5         float64   `json:"recall_at_5" gorm:"column:recall_at_5;not null;default:0"`
	GroundednessProxy float64   `json:"groundedness_proxy" gorm:"not null;default:0"`
	EvalPassRate      float64   `json:"eval_pass_rate" gorm:"not null"`
	EvalCoverage      float64   `json:"eval_coverage" gorm:"not null;default:0"`
	LatencyP50Ms      float64   `json:"latency_p50_ms" gorm:"column:latency_p50_ms;not null"`
	LatencyP95Ms      float64   `json:"latency_p95_ms" gorm:"column:latency_p95_ms;not null"`
	MetricsJSON       string    `json:"-" gorm:"column:metrics_json;type:text;not null"`
}

func (EvalRun) TableName() string {
	return "eval_runs"
}
