package retrieval

import "context"

// Gateway 嵌入与生成能力（port），由基础设施层提供实现
type Gateway interface {
	// Embed 按输入顺序返回向量
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Generate 单次非流式生成，model 为空时使用默认对话模型
	Generate(ctx context.Context, prompt string, model string) (*Generation, error)

	// ListModels 尽力获取可用的对话模型
	ListModels(ctx context.Context) ModelList

	ChatModel() string
	EmbedModel() string
	BaseURL() string
}

// VectorIndex 向量索引能力（port），实现需支持并发调用
type VectorIndex interface {
	// Upsert 按 ChunkID 覆盖写入
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error

	// Query 返回距离最近的 k 个片段，顺序即排名
	Query(ctx context.Context, vector []float32, k int) ([]RetrievedChunk, error)

	Count(ctx context.Context) (int64, error)

	// Reset 清空索引并返回清空后的数量
	Reset(ctx context.Context) (int64, error)
}
