package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	embopenai "github.com/cloudwego/eino-ext/components/embedding/openai"
	chatopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"

	"portfolio-rag-api/internal/config"
)

// newOpenAIEmbedder 创建 OpenAI 兼容的 Embedder
func newOpenAIEmbedder(ctx context.Context, cfg *config.LLMConfig) (embedding.Embedder, error) {
	embedder, err := embopenai.NewEmbedder(ctx, &embopenai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.EmbedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedder: %w", err)
	}
	return embedder, nil
}

// newOpenAIChatModel 创建 OpenAI 兼容的 ChatModel
func newOpenAIChatModel(ctx context.Context, cfg *config.LLMConfig) (model.BaseChatModel, error) {
	temperature := float32(0)
	chatModel, err := chatopenai.NewChatModel(ctx, &chatopenai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.ChatModel,
		Temperature: &temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}
	return chatModel, nil
}

// openAIModelLister 读取 OpenAI 兼容服务的 /models
type openAIModelLister struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newOpenAIModelLister(cfg *config.LLMConfig) *openAIModelLister {
	return &openAIModelLister{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *openAIModelLister) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list models request failed: status=%d", resp.StatusCode)
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	names := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		names = append(names, m.ID)
	}
	return names, nil
}
