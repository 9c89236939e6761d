package dto

import (
	"time"

	"portfolio-rag-api/internal/application/query"
	"portfolio-rag-api/internal/domain/entity"
)

// QueryRequest 问答请求
type QueryRequest struct {
	Question string `json:"question" binding:"required,min=3"`
	TopK     *int   `json:"top_k" binding:"omitempty,min=1"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	Answer                 string            `json:"answer"`
	Citations              []entity.Citation `json:"citations"`
	RetrievedDocIDs        []string          `json:"retrieved_doc_ids"`
	LatencyMs              float64           `json:"latency_ms"`
	CorrectnessProbability float64           `json:"correctness_probability"`
	ChatModel              string            `json:"chat_model"`
	EmbedModel             string            `json:"embed_model"`
	QueryRunID             int64             `json:"query_run_id,omitempty"`
	TokenUsage             TokenUsage        `json:"token_usage"`
}

// TokenUsage 用量未知时各字段为 null
type TokenUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// ToTokenUsage 转换 token 用量
func ToTokenUsage(u *entity.TokenUsage) TokenUsage {
	if u == nil {
		return TokenUsage{}
	}
	p, c, t := u.PromptTokens, u.CompletionTokens, u.TotalTokens
	return TokenUsage{PromptTokens: &p, CompletionTokens: &c, TotalTokens: &t}
}

// ToQueryResponse 转换问答结果
func ToQueryResponse(a *query.Answer) *QueryResponse {
	citations := a.Citations
	if citations == nil {
		citations = []entity.Citation{}
	}
	docIDs := a.RetrievedDocIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	return &QueryResponse{
		Answer:                 a.Answer,
		Citations:              citations,
		RetrievedDocIDs:        docIDs,
		LatencyMs:              a.LatencyMs(),
		CorrectnessProbability: a.CorrectnessProbability,
		ChatModel:              a.ChatModel,
		EmbedModel:             a.EmbedModel,
		QueryRunID:             a.QueryRunID,
		TokenUsage:             ToTokenUsage(a.TokenUsage),
	}
}

// QueryHistoryItem 历史问答条目
type QueryHistoryItem struct {
	TsUTC    time.Time `json:"ts_utc"`
	Question string    `json:"question"`
	TopK     int       `json:"top_k"`
	Hit      bool      `json:"hit"`
	Error    *string   `json:"error"`
}

// QueryHistoryResponse 历史问答
type QueryHistoryResponse struct {
	Items []*QueryHistoryItem `json:"items"`
}

// ToQueryHistoryResponse 转换检索事件
func ToQueryHistoryResponse(events []*entity.RetrievalEvent) *QueryHistoryResponse {
	items := make([]*QueryHistoryItem, 0, len(events))
	for _, e := range events {
		items = append(items, &QueryHistoryItem{
			TsUTC:    e.CreatedAt,
			Question: e.QueryText,
			TopK:     e.TopK,
			Hit:      e.Hit,
			Error:    e.Error,
		})
	}
	return &QueryHistoryResponse{Items: items}
}

// QueryRunsResponse 问答记录
type QueryRunsResponse struct {
	Items []*entity.QueryRunWithFeedback `json:"items"`
}

// FeedbackRequest 人工反馈
type FeedbackRequest struct {
	IsCorrect *bool  `json:"is_correct" binding:"required"`
	Note      string `json:"note" binding:"max=400"`
}

// FeedbackResponse 反馈结果
type FeedbackResponse struct {
	QueryRunID int64     `json:"query_run_id"`
	IsCorrect  bool      `json:"is_correct"`
	Note       *string   `json:"note"`
	TsUTC      time.Time `json:"ts_utc"`
}

// ToFeedbackResponse 转换反馈
func ToFeedbackResponse(f *entity.QueryRunFeedback) *FeedbackResponse {
	return &FeedbackResponse{
		QueryRunID: f.QueryRunID,
		IsCorrect:  f.IsCorrect,
		Note:       f.Note,
		TsUTC:      f.CreatedAt,
	}
}

// ModelsResponse 模型信息
type ModelsResponse struct {
	ChatModel           string   `json:"chat_model"`
	ActiveChatModel     string   `json:"active_chat_model"`
	DefaultChatModel    string   `json:"default_chat_model"`
	AvailableChatModels []string `json:"available_chat_models"`
	EmbedModel          string   `json:"embed_model"`
	OllamaBaseURL       string   `json:"ollama_base_url"`
}

// ToModelsResponse 转换模型信息
func ToModelsResponse(v *query.ModelsView) *ModelsResponse {
	return &ModelsResponse{
		ChatModel:           v.ActiveChatModel,
		ActiveChatModel:     v.ActiveChatModel,
		DefaultChatModel:    v.DefaultChatModel,
		AvailableChatModels: v.AvailableChatModels,
		EmbedModel:          v.EmbedModel,
		OllamaBaseURL:       v.BaseURL,
	}
}

// SelectModelRequest 选择对话模型
type SelectModelRequest struct {
	ChatModel string `json:"chat_model"`
}
