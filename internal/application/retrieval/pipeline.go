package retrieval

import (
	"context"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/tracer"
)

const (
	// NoContextAnswer 索引为空时的固定回答
	NoContextAnswer = "No indexed context was found. Ingest documents first."

	previewRunes = 180
	unknownField = "unknown"
)

// Pipeline 检索问答编排：嵌入问题、检索、组装提示词、生成、评估置信度
type Pipeline struct {
	gateway Gateway
	index   VectorIndex
	topK    int
}

// NewPipeline 创建检索问答管线
func NewPipeline(gateway Gateway, index VectorIndex, topK int) *Pipeline {
	if topK <= 0 {
		topK = 5
	}
	return &Pipeline{gateway: gateway, index: index, topK: topK}
}

// Retrieval 检索阶段的结果，texts 与 citations 一一对应
type Retrieval struct {
	Citations       []entity.Citation
	RetrievedDocIDs []string
	texts           []string
}

// Retrieve 嵌入问题并查询最近的 k 个片段，排名即索引返回顺序
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) (*Retrieval, error) {
	if k <= 0 {
		k = p.topK
	}
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(attribute.Int("top_k", k)))
	defer span.End()

	vectors, err := p.gateway.Embed(ctx, []string{question})
	if err != nil {
		tracer.Fail(span, err)
		return nil, embedFailed(err)
	}
	if len(vectors) == 0 {
		err := embedFailed(errEmptyEmbedding)
		tracer.Fail(span, err)
		return nil, err
	}

	chunks, err := p.index.Query(ctx, vectors[0], k)
	if err != nil {
		tracer.Fail(span, err)
		return nil, vectorFailed(err, "query")
	}

	out := &Retrieval{
		Citations:       make([]entity.Citation, 0, len(chunks)),
		RetrievedDocIDs: make([]string, 0, len(chunks)),
		texts:           make([]string, 0, len(chunks)),
	}
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		docID := orUnknown(c.DocID)
		if _, ok := seen[docID]; !ok {
			seen[docID] = struct{}{}
			out.RetrievedDocIDs = append(out.RetrievedDocIDs, docID)
		}
		out.Citations = append(out.Citations, entity.Citation{
			Rank:        i + 1,
			DocID:       docID,
			Source:      orUnknown(c.Source),
			ChunkIndex:  c.ChunkIndex,
			Distance:    math.Round(c.Distance*1e5) / 1e5,
			TextPreview: truncateRunes(c.Text, previewRunes),
		})
		out.texts = append(out.texts, c.Text)
	}
	span.SetAttributes(attribute.Int("citations", len(out.Citations)))
	return out, nil
}

// Answer 检索并生成答案；无检索结果时直接返回固定低置信度回答，不调用生成
func (p *Pipeline) Answer(ctx context.Context, question string, k int, chatModel string) (*AnswerResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "retrieval.Answer")
	defer span.End()

	if strings.TrimSpace(chatModel) == "" {
		chatModel = p.gateway.ChatModel()
	}

	ret, err := p.Retrieve(ctx, question, k)
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}

	result := &AnswerResult{
		Citations:       ret.Citations,
		RetrievedDocIDs: ret.RetrievedDocIDs,
		ChatModel:       chatModel,
		EmbedModel:      p.gateway.EmbedModel(),
	}
	if len(ret.Citations) == 0 {
		result.Answer = NoContextAnswer
		result.CorrectnessProbability = NoContextProbability
		result.Latency = time.Since(start)
		logger.Debug(ctx, "no indexed context for question")
		return result, nil
	}

	prompt := BuildPrompt(question, ret.Citations, ret.texts)
	gen, err := p.gateway.Generate(ctx, prompt, chatModel)
	if err != nil {
		tracer.Fail(span, err)
		return nil, generateFailed(err)
	}

	result.Answer = gen.Text
	result.TokenUsage = gen.Usage
	result.RetrievedContext = strings.Join(ret.texts, "\n")
	result.CorrectnessProbability = EstimateCorrectness(gen.Text, ret.Citations)
	result.Latency = time.Since(start)

	span.SetAttributes(
		attribute.String("chat_model", chatModel),
		attribute.Float64("correctness_probability", result.CorrectnessProbability),
	)
	return result, nil
}

// TopK 默认检索条数
func (p *Pipeline) TopK() int {
	return p.topK
}

func orUnknown(s string) string {
	if s == "" {
		return unknownField
	}
	return s
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
