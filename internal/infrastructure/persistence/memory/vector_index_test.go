package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-rag-api/internal/application/retrieval"
)

func chunk(id, doc string, idx int) retrieval.Chunk {
	return retrieval.Chunk{ChunkID: id, DocID: doc, Source: doc + ".md", ChunkIndex: idx, Text: id}
}

func TestVectorIndex_QueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	idx := NewVectorIndex()
	require.NoError(t, idx.Upsert(ctx,
		[]retrieval.Chunk{chunk("a", "docA", 0), chunk("b", "docB", 0), chunk("c", "docC", 0)},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	))

	got, err := idx.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-9)
	assert.Equal(t, "c", got[1].ChunkID)
	assert.InDelta(t, 1-0.7071067811865475, got[1].Distance, 1e-6)
}

func TestVectorIndex_UpsertOverwritesAndReset(t *testing.T) {
	ctx := context.Background()
	idx := NewVectorIndex()
	require.NoError(t, idx.Upsert(ctx, []retrieval.Chunk{chunk("a", "docA", 0)}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, []retrieval.Chunk{chunk("a", "docA", 0)}, [][]float32{{0, 1}}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := idx.Query(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-9)

	n, err = idx.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	got, err = idx.Query(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVectorIndex_RejectsMismatch(t *testing.T) {
	idx := NewVectorIndex()
	err := idx.Upsert(context.Background(), []retrieval.Chunk{chunk("a", "d", 0)}, nil)
	assert.Error(t, err)
}

func TestVectorIndex_UpsertCopiesVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewVectorIndex()
	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(ctx, []retrieval.Chunk{chunk("a", "docA", 0)}, [][]float32{vec}))

	vec[0], vec[1] = 0, 1

	got, err := idx.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-9)
}
