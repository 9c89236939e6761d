// Package llm 提供嵌入与生成网关实现（Ollama 原生接口 / OpenAI 兼容接口）
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"portfolio-rag-api/internal/domain/entity"
)

// OllamaClient Ollama HTTP 客户端
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient 创建 Ollama 客户端
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL 服务地址
func (c *OllamaClient) BaseURL() string {
	return c.baseURL
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type legacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed 调用 /api/embed；旧版本服务返回 404 时逐条回退到 /api/embeddings
func (c *OllamaClient) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var resp embedResponse
	status, err := c.postJSON(ctx, "/api/embed", &embedRequest{Model: model, Input: texts}, &resp)
	if status == http.StatusNotFound {
		return c.legacyEmbed(ctx, model, texts)
	}
	if err != nil {
		return nil, err
	}
	if resp.Embeddings == nil {
		return nil, fmt.Errorf("ollama embed response missing embeddings list")
	}
	return resp.Embeddings, nil
}

func (c *OllamaClient) legacyEmbed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		var resp legacyEmbedResponse
		if _, err := c.postJSON(ctx, "/api/embeddings", &legacyEmbedRequest{Model: model, Prompt: text}, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Embedding)
	}
	return out, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response        *string `json:"response"`
	PromptEvalCount *int    `json:"prompt_eval_count"`
	EvalCount       *int    `json:"eval_count"`
}

// Generate 非流式生成，usage 仅在服务端同时返回两项计数时给出
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, *entity.TokenUsage, error) {
	var resp generateResponse
	if _, err := c.postJSON(ctx, "/api/generate", &generateRequest{Model: model, Prompt: prompt}, &resp); err != nil {
		return "", nil, err
	}
	if resp.Response == nil {
		return "", nil, fmt.Errorf("ollama generate response missing response text")
	}

	var usage *entity.TokenUsage
	if resp.PromptEvalCount != nil && resp.EvalCount != nil {
		usage = &entity.TokenUsage{
			PromptTokens:     *resp.PromptEvalCount,
			CompletionTokens: *resp.EvalCount,
			TotalTokens:      *resp.PromptEvalCount + *resp.EvalCount,
		}
	}
	return strings.TrimSpace(*resp.Response), usage, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 读取 /api/tags 中的本地模型名
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var resp tagsResponse
	if _, err := c.do(req, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func (c *OllamaClient) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *OllamaClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("ollama %s %s: status=%d body=%s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return resp.StatusCode, nil
}
