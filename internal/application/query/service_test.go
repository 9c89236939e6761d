package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/application/retrieval/retrievaltest"
	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/infrastructure/persistence/memory"
	"portfolio-rag-api/internal/infrastructure/persistence/sqlstore"
	apperrors "portfolio-rag-api/pkg/errors"
)

type fixture struct {
	svc     *Service
	gateway *retrievaltest.Gateway
	indexer *retrieval.Indexer
	events  *sqlstore.RetrievalEventRepository
	runs    *sqlstore.QueryRunRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, err := sqlstore.NewClient(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(context.Background()))

	gw := &retrievaltest.Gateway{
		Answer: "Go is used for services [1].",
		Usage:  &entity.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	index := memory.NewVectorIndex()
	chunker, err := retrieval.NewChunker(200, 20)
	require.NoError(t, err)

	f := &fixture{
		gateway: gw,
		indexer: retrieval.NewIndexer(chunker, gw, index, 8),
		events:  sqlstore.NewRetrievalEventRepository(client),
		runs:    sqlstore.NewQueryRunRepository(client),
	}
	f.svc = NewService(
		retrieval.NewPipeline(gw, index, 4),
		gw,
		f.events,
		f.runs,
		sqlstore.NewAppSettingRepository(client),
	)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	_, err := f.indexer.IngestDocuments(context.Background(), []retrieval.Document{
		{DocID: "go_md", Source: "go.md", Text: "Go is used for services and command line tools."},
	})
	require.NoError(t, err)
}

func TestAsk_LogsEventAndRun(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	ans, err := f.svc.Ask(ctx, "what is go used for", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, ans.TopK)
	assert.Equal(t, "fake-chat", ans.ChatModel)
	assert.NotEmpty(t, ans.Citations)
	assert.NotZero(t, ans.QueryRunID)

	events, err := f.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Hit)
	assert.Equal(t, 1.0, events[0].RecallAt5)
	assert.Nil(t, events[0].Error)

	runs, err := f.svc.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "what is go used for", runs[0].Question)
	require.NotNil(t, runs[0].TopK)
	assert.Equal(t, 4, *runs[0].TopK)
	assert.Nil(t, runs[0].FeedbackIsCorrect)
}

func TestAsk_EmptyIndexIsMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ans, err := f.svc.Ask(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Equal(t, retrieval.NoContextAnswer, ans.Answer)
	assert.Equal(t, 0, f.gateway.GenerateCalls)

	events, err := f.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Hit)
	assert.Equal(t, 0.0, events[0].RecallAtK)
}

func TestAsk_FailureRecordsError(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.gateway.GenErr = errors.New("connection refused")
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, "what is go used for", 2)
	require.Error(t, err)

	events, err := f.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Contains(t, *events[0].Error, "connection refused")

	runs, err := f.svc.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestAsk_UsesSelectedModel(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.gateway.Models = []string{"fake-chat", "llama3"}
	ctx := context.Background()

	view, err := f.svc.SelectModel(ctx, "  llama3 ")
	require.NoError(t, err)
	assert.Equal(t, "llama3", view.ActiveChatModel)
	assert.Equal(t, "fake-chat", view.DefaultChatModel)

	ans, err := f.svc.Ask(ctx, "what is go used for", 2)
	require.NoError(t, err)
	assert.Equal(t, "llama3", ans.ChatModel)
	assert.Equal(t, []string{"llama3"}, f.gateway.ModelsUsed)
}

func TestSelectModel_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SelectModel(ctx, "   ")
	require.Error(t, err)
	assert.Equal(t, "chat_model cannot be empty.", apperrors.AsAppError(err).Message)

	f.gateway.Models = []string{"fake-chat"}
	_, err = f.svc.SelectModel(ctx, "mistral")
	require.Error(t, err)
	assert.Equal(t, "Model not found in local Ollama tags: mistral", apperrors.AsAppError(err).Message)

	// 取不到可用列表时不校验
	f.gateway.Models = nil
	f.gateway.ModelsErr = errors.New("ollama down")
	view, err := f.svc.SelectModel(ctx, "mistral")
	require.NoError(t, err)
	assert.Equal(t, "mistral", view.ActiveChatModel)
	assert.Equal(t, []string{}, view.AvailableChatModels)
}

func TestModels_Defaults(t *testing.T) {
	f := newFixture(t)
	f.gateway.Models = []string{"fake-chat", "llama3"}

	view, err := f.svc.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-chat", view.ActiveChatModel)
	assert.Equal(t, "fake-embed", view.EmbedModel)
	assert.Equal(t, "http://fake", view.BaseURL)
	assert.Equal(t, []string{"fake-chat", "llama3"}, view.AvailableChatModels)
}

type stubCache struct {
	loads int
	value []string
}

func (c *stubCache) GetOrLoad(ctx context.Context, _ string, _ time.Duration, dest any, loader func(ctx context.Context) (any, error)) error {
	if c.value == nil {
		c.loads++
		v, err := loader(ctx)
		if err != nil {
			return err
		}
		c.value = v.([]string)
	}
	*dest.(*[]string) = c.value
	return nil
}

func TestModels_Cached(t *testing.T) {
	f := newFixture(t)
	f.gateway.Models = []string{"llama3"}
	cache := &stubCache{}
	f.svc.WithModelsCache(cache, time.Minute)
	ctx := context.Background()

	_, err := f.svc.Models(ctx)
	require.NoError(t, err)
	f.gateway.Models = []string{"changed"}
	view, err := f.svc.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.loads)
	assert.Equal(t, []string{"llama3"}, view.AvailableChatModels)
}

func TestSubmitFeedback(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.svc.SubmitFeedback(ctx, 999, true, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeQueryRunNotFound))

	ans, err := f.svc.Ask(ctx, "what is go used for", 2)
	require.NoError(t, err)

	fb, err := f.svc.SubmitFeedback(ctx, ans.QueryRunID, false, "   ")
	require.NoError(t, err)
	assert.Nil(t, fb.Note)

	fb, err = f.svc.SubmitFeedback(ctx, ans.QueryRunID, true, "  looks right ")
	require.NoError(t, err)
	require.NotNil(t, fb.Note)
	assert.Equal(t, "looks right", *fb.Note)

	runs, err := f.svc.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].FeedbackIsCorrect)
	assert.True(t, *runs[0].FeedbackIsCorrect)
}
