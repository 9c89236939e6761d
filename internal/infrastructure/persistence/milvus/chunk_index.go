package milvus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/pkg/metrics"
)

const backendName = "milvus"

// ChunkIndex 基于 Milvus 的片段向量索引，集合在首次写入时创建
type ChunkIndex struct {
	client     *Client
	collection string

	mu    sync.Mutex
	ready bool
}

// NewChunkIndex 创建片段索引
func NewChunkIndex(client *Client, collection string) *ChunkIndex {
	return &ChunkIndex{client: client, collection: collection}
}

var _ retrieval.VectorIndex = (*ChunkIndex)(nil)

// ensureCollection 确保集合、索引存在并已加载；create=false 时集合不存在返回 false
func (x *ChunkIndex) ensureCollection(ctx context.Context, create bool) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ready {
		return true, nil
	}

	exists, err := x.client.HasCollection(ctx, x.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if !create {
			return false, nil
		}
		if err := x.createCollection(ctx); err != nil {
			return false, err
		}
	}
	if err := x.client.LoadCollection(ctx, x.collection); err != nil {
		return false, fmt.Errorf("failed to load collection: %w", err)
	}
	x.ready = true
	return true, nil
}

func (x *ChunkIndex) createCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", x.collection)))
	defer span.End()

	cfg := x.client.config
	collName := x.client.CollectionName(x.collection)
	if err := x.client.milvus.CreateCollection(ctx, ChunksSchema(collName, cfg.Dimension), entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, cfg.HNSWM, cfg.HNSWEfConstruction)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := x.client.milvus.CreateIndex(ctx, collName, FieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Upsert 按 chunk_id 覆盖写入
func (x *ChunkIndex) Upsert(ctx context.Context, chunks []retrieval.Chunk, vectors [][]float32) (err error) {
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("collection", x.collection),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()
	defer func() { observe("upsert", err) }()

	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if _, err := x.ensureCollection(ctx, true); err != nil {
		span.RecordError(err)
		return err
	}

	ids := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	indexes := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		docIDs[i] = c.DocID
		sources[i] = c.Source
		indexes[i] = int64(c.ChunkIndex)
		texts[i] = c.Text
	}

	_, err = x.client.milvus.Upsert(ctx, x.client.CollectionName(x.collection), "",
		entity.NewColumnVarChar(FieldChunkID, ids),
		entity.NewColumnFloatVector(FieldVector, len(vectors[0]), vectors),
		entity.NewColumnVarChar(FieldDocID, docIDs),
		entity.NewColumnVarChar(FieldSource, sources),
		entity.NewColumnInt64(FieldChunkIndex, indexes),
		entity.NewColumnVarChar(FieldText, texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// Query 检索最近的 k 个片段；COSINE 得分为相似度，距离取 1-score
func (x *ChunkIndex) Query(ctx context.Context, vector []float32, k int) (out []retrieval.RetrievedChunk, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", x.collection),
			attribute.Int("top_k", k),
		))
	defer span.End()
	defer func() { observe("query", err) }()

	ok, err := x.ensureCollection(ctx, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok || k <= 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(max(x.client.config.SearchEf, k))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := x.client.milvus.Search(ctx,
		x.client.CollectionName(x.collection),
		nil,
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		FieldVector,
		entity.COSINE,
		k,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			rc := retrieval.RetrievedChunk{Distance: 1 - float64(result.Scores[i])}
			if rc.Distance < 0 {
				rc.Distance = 0
			}
			if col, ok := result.Fields.GetColumn(FieldChunkID).(*entity.ColumnVarChar); ok {
				rc.ChunkID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(FieldDocID).(*entity.ColumnVarChar); ok {
				rc.DocID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(FieldSource).(*entity.ColumnVarChar); ok {
				rc.Source = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(FieldText).(*entity.ColumnVarChar); ok {
				rc.Text = col.Data()[i]
			}
			rc.ChunkIndex = -1
			if col, ok := result.Fields.GetColumn(FieldChunkIndex).(*entity.ColumnInt64); ok {
				rc.ChunkIndex = int(col.Data()[i])
			}
			out = append(out, rc)
		}
	}

	metrics.VectorSearchDuration.WithLabelValues(backendName, x.collection).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// Count 集合中的片段数
func (x *ChunkIndex) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "milvus.Count",
		trace.WithAttributes(attribute.String("collection", x.collection)))
	defer span.End()

	ok, err := x.ensureCollection(ctx, false)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	rs, err := x.client.milvus.Query(ctx, x.client.CollectionName(x.collection), nil, "", []string{"count(*)"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	col, ok := rs.GetColumn("count(*)").(*entity.ColumnInt64)
	if !ok || col.Len() == 0 {
		return 0, nil
	}
	return col.Data()[0], nil
}

// Reset 删除并重建集合
func (x *ChunkIndex) Reset(ctx context.Context) (n int64, err error) {
	ctx, span := tracer.Start(ctx, "milvus.Reset",
		trace.WithAttributes(attribute.String("collection", x.collection)))
	defer span.End()
	defer func() { observe("reset", err) }()

	x.mu.Lock()
	x.ready = false
	x.mu.Unlock()

	exists, err := x.client.HasCollection(ctx, x.collection)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		if err := x.client.DropCollection(ctx, x.collection); err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	if _, err := x.ensureCollection(ctx, true); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return x.Count(ctx)
}

// Ping 检查 Milvus 连接
func (x *ChunkIndex) Ping(ctx context.Context) error {
	return x.client.HealthCheck(ctx)
}

func observe(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.VectorOpsTotal.WithLabelValues(backendName, op, status).Inc()
}
