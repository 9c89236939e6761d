// Package memory 提供进程内向量索引，用于本地运行与测试
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/pkg/metrics"
)

const backendName = "memory"

type entry struct {
	chunk  retrieval.Chunk
	vector []float32
	norm   float64
}

// VectorIndex 暴力余弦检索的内存索引，按写入顺序保存，ChunkID 相同则原地覆盖
type VectorIndex struct {
	mu      sync.RWMutex
	entries []entry
	pos     map[string]int
}

// NewVectorIndex 创建内存索引
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{pos: make(map[string]int)}
}

var _ retrieval.VectorIndex = (*VectorIndex)(nil)

// Upsert 写入或覆盖片段
func (v *VectorIndex) Upsert(_ context.Context, chunks []retrieval.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, c := range chunks {
		// 复制向量，调用方之后修改切片不影响索引
		vec := append([]float32(nil), vectors[i]...)
		e := entry{chunk: c, vector: vec, norm: norm(vec)}
		if idx, ok := v.pos[c.ChunkID]; ok {
			v.entries[idx] = e
			continue
		}
		v.pos[c.ChunkID] = len(v.entries)
		v.entries = append(v.entries, e)
	}
	metrics.VectorOpsTotal.WithLabelValues(backendName, "upsert", "success").Inc()
	return nil
}

// Query 返回余弦距离最小的 k 个片段
func (v *VectorIndex) Query(_ context.Context, vector []float32, k int) ([]retrieval.RetrievedChunk, error) {
	start := time.Now()
	v.mu.RLock()
	defer v.mu.RUnlock()

	if k <= 0 || len(v.entries) == 0 {
		return nil, nil
	}
	qn := norm(vector)
	out := make([]retrieval.RetrievedChunk, 0, len(v.entries))
	for _, e := range v.entries {
		if len(e.vector) != len(vector) {
			return nil, fmt.Errorf("vector dimension mismatch: index has %d, query has %d", len(e.vector), len(vector))
		}
		out = append(out, retrieval.RetrievedChunk{
			Chunk:    e.chunk,
			Distance: cosineDistance(e.vector, e.norm, vector, qn),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}

	metrics.VectorSearchDuration.WithLabelValues(backendName, "").Observe(time.Since(start).Seconds())
	metrics.VectorOpsTotal.WithLabelValues(backendName, "query", "success").Inc()
	return out, nil
}

// Count 当前片段数
func (v *VectorIndex) Count(context.Context) (int64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return int64(len(v.entries)), nil
}

// Reset 清空索引
func (v *VectorIndex) Reset(context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = nil
	v.pos = make(map[string]int)
	metrics.VectorOpsTotal.WithLabelValues(backendName, "reset", "success").Inc()
	return 0, nil
}

// Ping 内存索引总是可用
func (v *VectorIndex) Ping(context.Context) error {
	return nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosineDistance(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	d := 1 - dot/(an*bn)
	if d < 0 {
		return 0
	}
	return d
}
