package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/domain/entity"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(context.Background()))
	return client
}

func TestMigrate_IsIdempotentAndSeedsIndexState(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, client.Migrate(ctx))

	state, err := NewIndexStateRepository(client).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.ResetCount)
	assert.Nil(t, state.LastResetUTC)
}

func TestIndexStateRepository_MarkReset(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewIndexStateRepository(client)

	first, err := repo.MarkReset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ResetCount)
	require.NotNil(t, first.LastResetUTC)

	second, err := repo.MarkReset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ResetCount)
}

func TestIngestionJobRepository_Lifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewIngestionJobRepository(client)

	job := entity.NewIngestionJob(entity.SourceTypeLink, "https://example.com/a.md", 3)
	require.NoError(t, repo.Create(ctx, job))
	require.NotZero(t, job.ID)

	require.NoError(t, job.StartAttempt(1))
	require.NoError(t, repo.Update(ctx, job))
	require.NoError(t, job.Succeed(entity.IngestSummary{Docs: 1, Chunks: 4, VectorCount: 4}, 1500*time.Millisecond))
	require.NoError(t, repo.Update(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.JobStatusSuccess, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 4, got.Summary.Chunks)
	require.NotNil(t, got.LatencyMs)
	assert.InDelta(t, 1500.0, *got.LatencyMs, 0.001)

	missing, err := repo.GetByID(ctx, job.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	second := entity.NewIngestionJob(entity.SourceTypeUpload, "notes.md", 1)
	require.NoError(t, repo.Create(ctx, second))
	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestIngestedSourceRepository_RecordIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewIngestedSourceRepository(client)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Record(ctx, &entity.IngestedSource{
			SourceType: entity.SourceTypeUpload, Source: "notes.md", DocID: "notes.md",
		}))
	}
	require.NoError(t, repo.Record(ctx, &entity.IngestedSource{
		SourceType: entity.SourceTypeLink, Source: "https://example.com/x", DocID: "https_____example.com__x",
	}))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cleared, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)

	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryRunRepository_FeedbackUpsertAndAggregates(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewQueryRunRepository(client)

	p1, p2 := 0.8, 0.4
	run1 := &entity.QueryRun{Question: "q1", Answer: "a1", CorrectnessProbability: &p1,
		Citations: []entity.Citation{{Rank: 1, DocID: "d", Source: "s", ChunkIndex: 0}}}
	run2 := &entity.QueryRun{Question: "q2", Answer: "a2", CorrectnessProbability: &p2}
	require.NoError(t, repo.Create(ctx, run1))
	require.NoError(t, repo.Create(ctx, run2))

	_, err := repo.UpsertFeedback(ctx, &entity.QueryRunFeedback{QueryRunID: run1.ID, IsCorrect: false})
	require.NoError(t, err)
	note := "verified"
	saved, err := repo.UpsertFeedback(ctx, &entity.QueryRunFeedback{QueryRunID: run1.ID, IsCorrect: true, Note: &note})
	require.NoError(t, err)
	assert.True(t, saved.IsCorrect)

	rows, err := repo.ListWithFeedback(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, run2.ID, rows[0].ID)
	assert.Nil(t, rows[0].FeedbackIsCorrect)
	require.NotNil(t, rows[1].FeedbackIsCorrect)
	assert.True(t, *rows[1].FeedbackIsCorrect)
	assert.Equal(t, "verified", *rows[1].FeedbackNote)
	require.Len(t, rows[1].Citations, 1)

	since := time.Now().Add(-time.Hour)
	avg, n, err := repo.ConfidenceSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.InDelta(t, 0.6, avg, 1e-9)

	acc, fbN, err := repo.FeedbackSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fbN)
	assert.InDelta(t, 1.0, acc, 1e-9)
}

func TestAppSettingRepository_SetOverwrites(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewAppSettingRepository(client)

	_, ok, err := repo.Get(ctx, entity.SettingActiveChatModel)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, entity.SettingActiveChatModel, "llama3.2:3b"))
	require.NoError(t, repo.Set(ctx, entity.SettingActiveChatModel, "qwen2.5:7b"))
	v, ok, err := repo.Get(ctx, entity.SettingActiveChatModel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "qwen2.5:7b", v)
}

func TestEvalRunRepository_ListRecentAscending(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewEvalRunRepository(client)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &entity.EvalRun{TotalCases: i, MetricsJSON: "{}"}))
	}
	runs, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].TotalCases)
	assert.Equal(t, 3, runs[1].TotalCases)

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.TotalCases)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRequestLogRepository(client)
	tx := NewTxManager(client)

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, &entity.RequestLog{Method: "POST", Path: "/query", StatusCode: 200}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	logs, err := repo.ListSince(ctx, "/query", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, logs)
}
