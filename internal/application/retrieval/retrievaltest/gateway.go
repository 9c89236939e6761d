// Package retrievaltest 提供检索相关测试替身
package retrievaltest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/domain/entity"
)

// Dim 假嵌入的维度
const Dim = 16

// Gateway 确定性的假网关：按词哈希生成向量，生成结果可配置
type Gateway struct {
	mu sync.Mutex

	Answer    string
	Usage     *entity.TokenUsage
	EmbedErr  error
	GenErr    error
	Models    []string
	ModelsErr error

	EmbedCalls    int
	GenerateCalls int
	Prompts       []string
	ModelsUsed    []string
}

var _ retrieval.Gateway = (*Gateway)(nil)

func (g *Gateway) Embed(_ context.Context, texts []string) ([][]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.EmbedCalls++
	if g.EmbedErr != nil {
		return nil, g.EmbedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (g *Gateway) Generate(_ context.Context, prompt, model string) (*retrieval.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GenerateCalls++
	g.Prompts = append(g.Prompts, prompt)
	g.ModelsUsed = append(g.ModelsUsed, model)
	if g.GenErr != nil {
		return nil, g.GenErr
	}
	return &retrieval.Generation{Text: g.Answer, Model: model, Usage: g.Usage}, nil
}

func (g *Gateway) ListModels(context.Context) retrieval.ModelList {
	return retrieval.ModelList{Models: g.Models, Err: g.ModelsErr}
}

func (g *Gateway) ChatModel() string  { return "fake-chat" }
func (g *Gateway) EmbedModel() string { return "fake-embed" }
func (g *Gateway) BaseURL() string    { return "http://fake" }

// Vector 按小写词哈希累加得到单位向量
func Vector(text string) []float32 {
	v := make([]float32, Dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dim] += 1
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
