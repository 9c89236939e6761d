package retrieval

import (
	"time"

	"portfolio-rag-api/internal/domain/entity"
)

// Document 待索引的一篇文档
type Document struct {
	DocID  string
	Source string
	Text   string
}

// Chunk 文档切分后的片段，ChunkID 由 DocID 与序号确定
type Chunk struct {
	ChunkID    string
	Text       string
	DocID      string
	Source     string
	ChunkIndex int
}

// RetrievedChunk 检索命中的片段，Distance 为余弦距离
type RetrievedChunk struct {
	Chunk
	Distance float64
}

// Generation 一次生成调用的结果，Usage 在服务端未返回时为 nil
type Generation struct {
	Text  string
	Model string
	Usage *entity.TokenUsage
}

// ModelList 模型列表查询结果，Err 非空表示列表不可用，调用方应按空列表处理
type ModelList struct {
	Models []string
	Err    error
}

// Available 列表是否可用
func (l ModelList) Available() bool {
	return l.Err == nil
}

// AnswerResult 一次问答的结果
type AnswerResult struct {
	Answer                 string
	Citations              []entity.Citation
	RetrievedDocIDs        []string
	RetrievedContext       string
	CorrectnessProbability float64
	ChatModel              string
	EmbedModel             string
	TokenUsage             *entity.TokenUsage
	Latency                time.Duration
}

// LatencyMs 延迟毫秒数
func (r *AnswerResult) LatencyMs() float64 {
	return float64(r.Latency.Microseconds()) / 1000.0
}

// IngestSummary 索引写入摘要
type IngestSummary = entity.IngestSummary
