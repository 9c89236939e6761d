// Package evaluation 基于标注集的离线评测与质量门禁
package evaluation

import (
	"context"
	"time"

	"portfolio-rag-api/internal/application/retrieval"
)

// ReportFileName 最新评测报告文件名
const ReportFileName = "eval_latest.json"

// Case 一条评测用例
type Case struct {
	ID                 string   `json:"id"`
	Question           string   `json:"question"`
	ExpectedDocIDs     []string `json:"expected_doc_ids"`
	ExpectedSubstrings []string `json:"expected_substrings"`
}

// CaseResult 单条用例的结果
type CaseResult struct {
	ID                string   `json:"id"`
	Hit               bool     `json:"hit"`
	RecallAtK         float64  `json:"recall_at_k"`
	RecallAt5         float64  `json:"recall_at_5"`
	GroundednessProxy float64  `json:"groundedness_proxy"`
	Passed            bool     `json:"passed"`
	RetrievedDocIDs   []string `json:"retrieved_doc_ids"`
	LatencyMs         float64  `json:"latency_ms"`
	Error             string   `json:"error,omitempty"`
}

// RunMetrics 一次评测的聚合指标，也是报告文件的内容
type RunMetrics struct {
	TimestampUTC      time.Time    `json:"timestamp_utc"`
	TotalCases        int          `json:"total_cases"`
	ProcessedCases    int          `json:"processed_cases"`
	RetrievalHitRate  float64      `json:"retrieval_hit_rate"`
	RecallAtK         float64      `json:"recall_at_k"`
	RecallAt5         float64      `json:"recall_at_5"`
	GroundednessProxy float64      `json:"groundedness_proxy"`
	EvalPassRate      float64      `json:"eval_pass_rate"`
	EvalCoverage      float64      `json:"eval_coverage"`
	LatencyP50Ms      float64      `json:"latency_p50_ms"`
	LatencyP95Ms      float64      `json:"latency_p95_ms"`
	Details           []CaseResult `json:"details"`
}

// Answerer 评测调用的问答能力，由 retrieval.Pipeline 实现
type Answerer interface {
	Answer(ctx context.Context, question string, k int, chatModel string) (*retrieval.AnswerResult, error)
}
