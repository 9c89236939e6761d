// Package entity 定义领域实体
package entity

import "time"

// RequestLog 一次 HTTP 请求的记录，由请求日志中间件写入
type RequestLog struct {
	ID               int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt        time.Time `json:"ts_utc" gorm:"column:ts_utc;index;not null"`
	RequestID        string    `json:"request_id" gorm:"type:varchar(64)"`
	Method           string    `json:"method" gorm:"type:varchar(16);not null"`
	Path             string    `json:"path" gorm:"type:varchar(255);index;not null"`
	StatusCode       int       `json:"status_code" gorm:"not null"`
	LatencyMs        float64   `json:"latency_ms" gorm:"not null"`
	Success          bool      `json:"success" gorm:"not null"`
	PromptTokens     *int      `json:"prompt_tokens"`
	CompletionTokens *int      `json:"completion_tokens"`
	TotalTokens      *int      `json:"total_tokens"`
	Error            *string   `json:"error" gorm:"type:text"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}

// RetrievalSource 检索事件来源
type RetrievalSource string

const (
	RetrievalSourceLiveQuery RetrievalSource = "live_query"
	RetrievalSourceEval      RetrievalSource = "eval"
)

// RetrievalEvent 一次检索的结果记录（线上问答与评测共用）
type RetrievalEvent struct {
	ID              int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time       `json:"ts_utc" gorm:"column:ts_utc;index;not null"`
	RequestID       string          `json:"request_id" gorm:"type:varchar(128)"`
	Source          RetrievalSource `json:"source" gorm:"type:varchar(32);index;not null"`
	QueryText       string          `json:"query_text" gorm:"type:text;not null"`
	TopK            int             `json:"top_k" gorm:"not null"`
	Hit             bool            `json:"hit" gorm:"not null"`
	RecallAtK       float64         `json:"recall_at_k" gorm:"not null;default:0"`
	RecallAt5       float64         `json:"recall_at_5" gorm:"column:recall_at_5;not null;default:0"`
	Citations       []Citation      `json:"citations" gorm:"column:citations_json;type:text;serializer:json"`
	RetrievedDocIDs []string        `json:"retrieved_doc_ids" gorm:"column:retrieved_doc_ids_json;type:text;serializer:json"`
	Error           *string         `json:"error" gorm:"type:text"`
}

func (RetrievalEvent) TableName() string {
	return "retrieval_events"
}

// Citation 答案引用的上下文片段
type Citation struct {
	Rank        int     `json:"rank"`
	DocID       string  `json:"doc_id"`
	Source      string  `json:"source"`
	ChunkIndex  int     `json:"chunk_index"`
	Distance    float64 `json:"distance"`
	TextPreview string  `json:"text_preview"`
}

// StringPtr 空字符串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
