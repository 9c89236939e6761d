package entity

import "time"

// TokenUsage 一次生成调用的 token 统计
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// QueryRun 一次成功问答的完整记录
type QueryRun struct {
	ID                     int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt              time.Time  `json:"ts_utc" gorm:"column:ts_utc;index;not null"`
	RequestID              string     `json:"request_id" gorm:"type:varchar(64)"`
	Question               string     `json:"question" gorm:"type:text;not null"`
	Answer                 string     `json:"answer" gorm:"type:text;not null"`
	Citations              []Citation `json:"citations" gorm:"column:citations_json;type:text;serializer:json"`
	RetrievedDocIDs        []string   `json:"retrieved_doc_ids" gorm:"column:retrieved_doc_ids_json;type:text;serializer:json"`
	LatencyMs              float64    `json:"latency_ms" gorm:"not null"`
	TopK                   *int       `json:"top_k"`
	CorrectnessProbability *float64   `json:"correctness_probability"`
	ChatModel              *string    `json:"chat_model" gorm:"type:varchar(128)"`
}

func (QueryRun) TableName() string {
	return "query_runs"
}

// QueryRunFeedback 人工对问答结果的判定，每个 query run 至多一条
type QueryRunFeedback struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt  time.Time `json:"ts_utc" gorm:"column:ts_utc;index;not null"`
	QueryRunID int64     `json:"query_run_id" gorm:"uniqueIndex;not null"`
	IsCorrect  bool      `json:"is_correct" gorm:"not null"`
	Note       *string   `json:"note" gorm:"type:text"`
}

func (QueryRunFeedback) TableName() string {
	return "query_run_feedback"
}

// QueryRunWithFeedback 带反馈的问答记录
type QueryRunWithFeedback struct {
	QueryRun
	FeedbackIsCorrect *bool      `json:"feedback_is_correct" gorm:"column:feedback_is_correct"`
	FeedbackNote      *string    `json:"feedback_note" gorm:"column:feedback_note"`
	FeedbackTsUTC     *time.Time `json:"feedback_ts_utc" gorm:"column:feedback_ts_utc"`
}
