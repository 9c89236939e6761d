package query

import (
	"context"
	"slices"
	"strings"

	"portfolio-rag-api/internal/domain/entity"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
)

// ModelsView 模型信息
type ModelsView struct {
	ActiveChatModel     string
	DefaultChatModel    string
	AvailableChatModels []string
	EmbedModel          string
	BaseURL             string
}

// ActiveChatModel 已选用的对话模型，未设置时为默认模型
func (s *Service) ActiveChatModel(ctx context.Context) (string, error) {
	value, ok, err := s.settings.Get(ctx, entity.SettingActiveChatModel)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load active chat model")
	}
	if ok && value != "" {
		return value, nil
	}
	return s.gateway.ChatModel(), nil
}

// Models 当前模型配置与可用模型
func (s *Service) Models(ctx context.Context) (*ModelsView, error) {
	active, err := s.ActiveChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return s.view(active, s.availableModels(ctx)), nil
}

// SelectModel 选用对话模型；能取到可用列表时必须在列表中
func (s *Service) SelectModel(ctx context.Context, name string) (*ModelsView, error) {
	requested := strings.TrimSpace(name)
	if requested == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "chat_model cannot be empty.")
	}
	available := s.availableModels(ctx)
	if len(available) > 0 && !slices.Contains(available, requested) {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "Model not found in local Ollama tags: %s", requested)
	}
	if err := s.settings.Set(ctx, entity.SettingActiveChatModel, requested); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save active chat model")
	}
	logger.Info(ctx, "active chat model changed", "chat_model", requested)
	return s.view(requested, available), nil
}

func (s *Service) view(active string, available []string) *ModelsView {
	if available == nil {
		available = []string{}
	}
	return &ModelsView{
		ActiveChatModel:     active,
		DefaultChatModel:    s.gateway.ChatModel(),
		AvailableChatModels: available,
		EmbedModel:          s.gateway.EmbedModel(),
		BaseURL:             s.gateway.BaseURL(),
	}
}

// availableModels 尽力获取可用模型，失败按空列表处理；失败结果不缓存
func (s *Service) availableModels(ctx context.Context) []string {
	load := func(ctx context.Context) (any, error) {
		list := s.gateway.ListModels(ctx)
		if !list.Available() {
			return nil, list.Err
		}
		return list.Models, nil
	}

	if s.cache == nil {
		models, err := load(ctx)
		if err != nil {
			logger.Warn(ctx, "model list unavailable", "error", err.Error())
			return nil
		}
		return models.([]string)
	}

	var models []string
	if err := s.cache.GetOrLoad(ctx, ModelsCacheKey, s.modelsTTL, &models, load); err != nil {
		logger.Warn(ctx, "model list unavailable", "error", err.Error())
		return nil
	}
	return models
}
