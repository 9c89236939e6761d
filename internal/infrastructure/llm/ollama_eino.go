package llm

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ollamaEmbedder 以 eino Embedder 形式暴露 Ollama 嵌入
type ollamaEmbedder struct {
	client *OllamaClient
	model  string
}

var _ embedding.Embedder = (*ollamaEmbedder)(nil)

func (e *ollamaEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{Model: &e.model}, opts...)
	return e.client.Embed(ctx, *options.Model, texts)
}

// ollamaChatModel 以 eino ChatModel 形式暴露 /api/generate，消息按行拼成单个 prompt
type ollamaChatModel struct {
	client *OllamaClient
	model  string
}

var _ model.BaseChatModel = (*ollamaChatModel)(nil)

func (m *ollamaChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Model: &m.model}, opts...)

	prompt := ""
	for i, msg := range input {
		if i > 0 {
			prompt += "\n"
		}
		prompt += msg.Content
	}

	text, usage, err := m.client.Generate(ctx, *options.Model, prompt)
	if err != nil {
		return nil, err
	}
	out := schema.AssistantMessage(text, nil)
	if usage != nil {
		out.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			},
		}
	}
	return out, nil
}

func (m *ollamaChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
