// Package query 在线问答、问答记录与对话模型选择
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
	"portfolio-rag-api/internal/domain/service"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/metrics"
)

// ModelsCacheKey 模型列表缓存键
const ModelsCacheKey = "rag:models"

// Cache 读穿缓存
type Cache interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest any, loader func(ctx context.Context) (any, error)) error
}

// Service 问答服务
type Service struct {
	pipeline *retrieval.Pipeline
	gateway  retrieval.Gateway
	events   repository.RetrievalEventRepository
	runs     repository.QueryRunRepository
	settings repository.AppSettingRepository

	cache     Cache
	modelsTTL time.Duration
}

// NewService 创建问答服务
func NewService(
	pipeline *retrieval.Pipeline,
	gateway retrieval.Gateway,
	events repository.RetrievalEventRepository,
	runs repository.QueryRunRepository,
	settings repository.AppSettingRepository,
) *Service {
	return &Service{
		pipeline: pipeline,
		gateway:  gateway,
		events:   events,
		runs:     runs,
		settings: settings,
	}
}

// WithModelsCache 缓存模型列表，ttl <= 0 时不缓存
func (s *Service) WithModelsCache(cache Cache, ttl time.Duration) *Service {
	if cache != nil && ttl > 0 {
		s.cache = cache
		s.modelsTTL = ttl
	}
	return s
}

// Answer 一次问答的返回
type Answer struct {
	*retrieval.AnswerResult
	QueryRunID int64
	TopK       int
}

// Ask 使用当前选用的对话模型回答问题，并记录检索事件与问答记录
func (s *Service) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	ctx = service.WithWorkflow(ctx, "query")
	k := topK
	if k <= 0 {
		k = s.pipeline.TopK()
	}
	model, err := s.ActiveChatModel(ctx)
	if err != nil {
		return nil, err
	}

	requestID := logger.RequestID(ctx)
	result, err := s.pipeline.Answer(ctx, question, k, model)
	if err != nil {
		msg := errorText(err)
		s.logEvent(ctx, &entity.RetrievalEvent{
			RequestID: requestID,
			Source:    entity.RetrievalSourceLiveQuery,
			QueryText: question,
			TopK:      k,
			Error:     &msg,
		})
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	hit := len(result.Citations) > 0
	recall := 0.0
	if hit {
		recall = 1
	}
	s.logEvent(ctx, &entity.RetrievalEvent{
		RequestID:       requestID,
		Source:          entity.RetrievalSourceLiveQuery,
		QueryText:       question,
		TopK:            k,
		Hit:             hit,
		RecallAtK:       recall,
		RecallAt5:       recall,
		Citations:       result.Citations,
		RetrievedDocIDs: result.RetrievedDocIDs,
	})

	prob := result.CorrectnessProbability
	run := &entity.QueryRun{
		RequestID:              requestID,
		Question:               question,
		Answer:                 result.Answer,
		Citations:              result.Citations,
		RetrievedDocIDs:        result.RetrievedDocIDs,
		LatencyMs:              result.LatencyMs(),
		TopK:                   &k,
		CorrectnessProbability: &prob,
		ChatModel:              entity.StringPtr(result.ChatModel),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		// 记录失败不影响回答
		logger.Error(ctx, "failed to log query run", err)
	}

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryCorrectnessProbability.Observe(prob)
	logger.Info(ctx, "query answered",
		"top_k", k,
		"citations", len(result.Citations),
		"chat_model", result.ChatModel,
		"correctness_probability", prob,
		"latency_ms", result.LatencyMs(),
	)
	return &Answer{AnswerResult: result, QueryRunID: run.ID, TopK: k}, nil
}

func (s *Service) logEvent(ctx context.Context, event *entity.RetrievalEvent) {
	metrics.RetrievalHits.WithLabelValues(string(event.Source), fmt.Sprint(event.Hit)).Inc()
	if err := s.events.Create(ctx, event); err != nil {
		logger.Error(ctx, "failed to log retrieval event", err)
	}
}

// History 最近的线上问答检索事件
func (s *Service) History(ctx context.Context, limit int) ([]*entity.RetrievalEvent, error) {
	return s.events.ListRecent(ctx, entity.RetrievalSourceLiveQuery, repository.ClampLimit(limit, 200))
}

// Runs 最近的问答记录及反馈
func (s *Service) Runs(ctx context.Context, limit int) ([]*entity.QueryRunWithFeedback, error) {
	return s.runs.ListWithFeedback(ctx, repository.ClampLimit(limit, 500))
}

// SubmitFeedback 写入或覆盖人工反馈
func (s *Service) SubmitFeedback(ctx context.Context, runID int64, isCorrect bool, note string) (*entity.QueryRunFeedback, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load query run")
	}
	if run == nil {
		return nil, apperrors.New(apperrors.CodeQueryRunNotFound, "Query run not found.")
	}
	return s.runs.UpsertFeedback(ctx, &entity.QueryRunFeedback{
		QueryRunID: runID,
		IsCorrect:  isCorrect,
		Note:       entity.StringPtr(strings.TrimSpace(note)),
	})
}

// errorText 面向用户的错误原因
func errorText(err error) string {
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err).Cause()
	}
	return err.Error()
}
