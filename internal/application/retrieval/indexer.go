package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/metrics"
	"portfolio-rag-api/pkg/tracer"
)

const defaultEmbeddingBatch = 32

// Indexer 切分文档、分批嵌入并写入向量索引
type Indexer struct {
	chunker   *Chunker
	gateway   Gateway
	index     VectorIndex
	batchSize int
}

// NewIndexer 创建索引器
func NewIndexer(chunker *Chunker, gateway Gateway, index VectorIndex, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}
	return &Indexer{
		chunker:   chunker,
		gateway:   gateway,
		index:     index,
		batchSize: batchSize,
	}
}

// IngestDocuments 索引一批文档；片段 ID 确定，重复导入覆盖旧向量
func (i *Indexer) IngestDocuments(ctx context.Context, docs []Document) (IngestSummary, error) {
	ctx, span := tracer.Start(ctx, "retrieval.IngestDocuments", trace.WithAttributes(attribute.Int("docs", len(docs))))
	defer span.End()

	var chunks []Chunk
	for _, doc := range docs {
		parts, err := i.chunker.BuildChunks(doc)
		if err != nil {
			tracer.Fail(span, err)
			return IngestSummary{}, err
		}
		chunks = append(chunks, parts...)
	}

	for start := 0; start < len(chunks); start += i.batchSize {
		end := min(start+i.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}
		vectors, err := i.gateway.Embed(ctx, texts)
		if err != nil {
			tracer.Fail(span, err)
			return IngestSummary{}, embedFailed(err)
		}
		if len(vectors) != len(batch) {
			err := embedFailed(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
			tracer.Fail(span, err)
			return IngestSummary{}, err
		}
		if err := i.index.Upsert(ctx, batch, vectors); err != nil {
			tracer.Fail(span, err)
			return IngestSummary{}, vectorFailed(err, "upsert")
		}
	}

	count, err := i.index.Count(ctx)
	if err != nil {
		tracer.Fail(span, err)
		return IngestSummary{}, vectorFailed(err, "count")
	}

	distinct := make(map[string]struct{}, len(docs))
	for _, c := range chunks {
		distinct[c.DocID] = struct{}{}
	}
	summary := IngestSummary{Docs: len(distinct), Chunks: len(chunks), VectorCount: count}
	metrics.IngestionChunksTotal.Add(float64(len(chunks)))
	logger.Info(ctx, "documents indexed", "docs", summary.Docs, "chunks", summary.Chunks, "vector_count", summary.VectorCount)
	return summary, nil
}

// Reset 清空向量索引
func (i *Indexer) Reset(ctx context.Context) (int64, error) {
	count, err := i.index.Reset(ctx)
	if err != nil {
		return 0, vectorFailed(err, "reset")
	}
	return count, nil
}

// Count 当前索引中的向量数
func (i *Indexer) Count(ctx context.Context) (int64, error) {
	count, err := i.index.Count(ctx)
	if err != nil {
		return 0, vectorFailed(err, "count")
	}
	return count, nil
}
