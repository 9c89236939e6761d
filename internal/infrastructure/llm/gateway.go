package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/service"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/metrics"
	"portfolio-rag-api/pkg/tracer"
)

// ModelLister 列出服务端可用模型
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Gateway 组合 eino Embedder 与 ChatModel 实现检索所需的网关
type Gateway struct {
	provider   string
	embedder   embedding.Embedder
	chat       model.BaseChatModel
	lister     ModelLister
	chatModel  string
	embedModel string
	baseURL    string
}

var _ retrieval.Gateway = (*Gateway)(nil)

// NewGateway 按 provider 创建网关
func NewGateway(ctx context.Context, cfg *config.LLMConfig) (*Gateway, error) {
	g := &Gateway{
		provider:   cfg.Provider,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
	}

	switch cfg.Provider {
	case "ollama", "":
		client := NewOllamaClient(cfg.BaseURL, cfg.Timeout)
		g.provider = "ollama"
		g.embedder = &ollamaEmbedder{client: client, model: cfg.EmbedModel}
		g.chat = &ollamaChatModel{client: client, model: cfg.ChatModel}
		g.lister = client
		g.baseURL = client.BaseURL()
	case "openai":
		embedder, err := newOpenAIEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		chat, err := newOpenAIChatModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		g.embedder = embedder
		g.chat = chat
		g.lister = newOpenAIModelLister(cfg)
		g.baseURL = cfg.BaseURL
	default:
		return nil, apperrors.New(apperrors.CodeConfiguration, "unsupported llm.provider").WithDetail(cfg.Provider)
	}
	return g, nil
}

// NewGatewayWith 使用给定组件创建网关
func NewGatewayWith(provider string, embedder embedding.Embedder, chat model.BaseChatModel, lister ModelLister, chatModel, embedModel, baseURL string) *Gateway {
	return &Gateway{
		provider:   provider,
		embedder:   embedder,
		chat:       chat,
		lister:     lister,
		chatModel:  chatModel,
		embedModel: embedModel,
		baseURL:    baseURL,
	}
}

// Embed 嵌入文本，向量转为 float32
func (g *Gateway) Embed(ctx context.Context, texts []string) (out [][]float32, err error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	ctx, span := tracer.Start(ctx, "llm.Embed", trace.WithAttributes(
		attribute.String("llm.provider", g.provider),
		attribute.String("llm.model", g.embedModel),
		attribute.Int("llm.inputs", len(texts)),
	))
	defer span.End()
	defer g.observe("embed", g.embedModel, time.Now(), &err)

	vectors, err := g.embedder.EmbedStrings(ctx, texts, embedding.WithModel(g.embedModel))
	if err != nil {
		tracer.Fail(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embedding request failed")
	}
	if len(vectors) != len(texts) {
		err = apperrors.Newf(apperrors.CodeEmbeddingFailed, "embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
		tracer.Fail(span, err)
		return nil, err
	}

	out = make([][]float32, len(vectors))
	for i, v := range vectors {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out, nil
}

// Generate 单次生成，token 用量写入 context 中的收集器
func (g *Gateway) Generate(ctx context.Context, prompt string, chatModel string) (gen *retrieval.Generation, err error) {
	if chatModel == "" {
		chatModel = g.chatModel
	}
	ctx, span := tracer.Start(ctx, "llm.Generate", trace.WithAttributes(
		attribute.String("llm.provider", g.provider),
		attribute.String("llm.model", chatModel),
		attribute.String("llm.workflow", service.WorkflowFromContext(ctx)),
	))
	defer span.End()
	defer g.observe("generate", chatModel, time.Now(), &err)

	msg, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, model.WithModel(chatModel))
	if err != nil {
		tracer.Fail(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "generation request failed")
	}
	if msg == nil {
		err = apperrors.New(apperrors.CodeLLMCallFailed, "generation returned no message")
		tracer.Fail(span, err)
		return nil, err
	}

	gen = &retrieval.Generation{Text: msg.Content, Model: chatModel}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := msg.ResponseMeta.Usage
		gen.Usage = &entity.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
		metrics.LLMTokensUsed.WithLabelValues(g.provider, chatModel, "prompt").Add(float64(u.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(g.provider, chatModel, "completion").Add(float64(u.CompletionTokens))
		span.SetAttributes(attribute.Int("llm.total_tokens", u.TotalTokens))
	}
	service.RecordUsage(ctx, gen.Usage)
	return gen, nil
}

// ListModels 尽力获取模型列表，失败时通过 Err 标记
func (g *Gateway) ListModels(ctx context.Context) retrieval.ModelList {
	if g.lister == nil {
		return retrieval.ModelList{Err: fmt.Errorf("model listing not supported by provider %s", g.provider)}
	}
	ctx, span := tracer.Start(ctx, "llm.ListModels")
	defer span.End()

	models, err := g.lister.ListModels(ctx)
	if err != nil {
		tracer.Fail(span, err)
		return retrieval.ModelList{Err: err}
	}
	return retrieval.ModelList{Models: models}
}

// Ping 检查网关可达
func (g *Gateway) Ping(ctx context.Context) error {
	return g.ListModels(ctx).Err
}

func (g *Gateway) ChatModel() string  { return g.chatModel }
func (g *Gateway) EmbedModel() string { return g.embedModel }
func (g *Gateway) BaseURL() string    { return g.baseURL }

func (g *Gateway) observe(op, modelName string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.LLMCallDuration.WithLabelValues(g.provider, modelName, op).Observe(time.Since(start).Seconds())
	metrics.LLMCallTotal.WithLabelValues(g.provider, modelName, op, status).Inc()
}
