package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-rag-api/internal/application/ingestion"
	"portfolio-rag-api/internal/application/query"
	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/application/retrieval/retrievaltest"
	"portfolio-rag-api/internal/application/telemetry"
	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/infrastructure/document"
	"portfolio-rag-api/internal/infrastructure/persistence/memory"
	"portfolio-rag-api/internal/infrastructure/persistence/sqlstore"
	"portfolio-rag-api/internal/interfaces/http/handler"
)

const testKey = "secret"

type captureQueue struct {
	mu    sync.Mutex
	tasks []ingestion.Task
}

func (q *captureQueue) Enqueue(_ context.Context, task ingestion.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type env struct {
	engine   *gin.Engine
	gateway  *retrievaltest.Gateway
	indexer  *retrieval.Indexer
	queue    *captureQueue
	requests *sqlstore.RequestLogRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, err := sqlstore.NewClient(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(context.Background()))

	cfg := &config.Config{}
	cfg.App.Name = "portfolio-rag-api"
	cfg.Ingest.MaxUploadBytes = 1 << 10
	cfg.Security.WriteAPIKey = testKey
	cfg.Observability.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}

	gw := &retrievaltest.Gateway{
		Answer: "Go powers the services [1].",
		Usage:  &entity.TokenUsage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}
	index := memory.NewVectorIndex()
	chunker, err := retrieval.NewChunker(200, 20)
	require.NoError(t, err)
	indexer := retrieval.NewIndexer(chunker, gw, index, 8)

	jobs := sqlstore.NewIngestionJobRepository(client)
	requests := sqlstore.NewRequestLogRepository(client)
	runs := sqlstore.NewQueryRunRepository(client)

	fetcher := document.NewFetcher(document.URLPolicy{BlockedHosts: []string{"localhost"}}, time.Second, cfg.Ingest.MaxUploadBytes)
	ctrl := ingestion.NewController(jobs, sqlstore.NewIngestedSourceRepository(client), sqlstore.NewIndexStateRepository(client),
		indexer, fetcher, ingestion.Options{MaxUploadBytes: cfg.Ingest.MaxUploadBytes, LinkMaxRetries: 1})
	queue := &captureQueue{}
	ctrl.SetQueue(queue)

	svc := query.NewService(retrieval.NewPipeline(gw, index, 4), gw,
		sqlstore.NewRetrievalEventRepository(client), runs, sqlstore.NewAppSettingRepository(client))
	agg := telemetry.NewAggregator(requests, sqlstore.NewEvalRunRepository(client), runs, jobs)

	r := New(cfg, Handlers{
		Health:  handler.NewHealthHandler(handler.Dependency{Name: "database", Pinger: client, Required: true}, handler.Dependency{Name: "gateway", Pinger: okPinger{}}),
		Query:   handler.NewQueryHandler(svc, 15),
		Ingest:  handler.NewIngestHandler(ctrl, cfg.Ingest.MaxUploadBytes),
		Metrics: handler.NewMetricsHandler(agg),
	}, Options{RequestLogs: requests})

	return &env{engine: r.Engine(), gateway: gw, indexer: indexer, queue: queue, requests: requests}
}

func (e *env) do(t *testing.T, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = e.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuery_LogsTokenUsage(t *testing.T) {
	e := newEnv(t)
	_, err := e.indexer.IngestDocuments(context.Background(), []retrieval.Document{
		{DocID: "go_md", Source: "go.md", Text: "Go powers the backend services."},
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/query", map[string]any{"question": "what powers the services", "top_k": 2}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Go powers the services [1].", body["answer"])
	assert.Equal(t, "fake-chat", body["chat_model"])
	assert.Equal(t, "fake-embed", body["embed_model"])
	assert.NotEmpty(t, body["citations"])
	usage := body["token_usage"].(map[string]any)
	assert.Equal(t, float64(12), usage["prompt_tokens"])
	assert.Equal(t, float64(16), usage["total_tokens"])

	logs, err := e.requests.ListSince(context.Background(), "/query", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	require.NotNil(t, logs[0].TotalTokens)
	assert.Equal(t, 16, *logs[0].TotalTokens)

	w = e.do(t, http.MethodGet, "/query/history?limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "what powers the services", items[0].(map[string]any)["question"])
}

func TestQuery_EmptyIndexReturnsNullTokenUsage(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/query", map[string]any{"question": "anything indexed yet?"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "No indexed context was found. Ingest documents first.", body["answer"])
	assert.Equal(t, []any{}, body["citations"])

	usage, ok := body["token_usage"].(map[string]any)
	require.True(t, ok, "token_usage must always be an object")
	for _, k := range []string{"prompt_tokens", "completion_tokens", "total_tokens"} {
		v, present := usage[k]
		assert.True(t, present, k)
		assert.Nil(t, v, k)
	}
}

func TestQuery_Validation(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/query", map[string]any{"question": "hi"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/query", map[string]any{"question": "valid question", "top_k": 16}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery_FailureIs500(t *testing.T) {
	e := newEnv(t)
	_, err := e.indexer.IngestDocuments(context.Background(), []retrieval.Document{
		{DocID: "go_md", Source: "go.md", Text: "Go powers the backend services."},
	})
	require.NoError(t, err)
	e.gateway.GenErr = assert.AnError

	w := e.do(t, http.MethodPost, "/query", map[string]any{"question": "what powers the services"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["detail"], "Query failed: ")

	logs, err := e.requests.ListSince(context.Background(), "/query", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.NotNil(t, logs[0].Error)
}

func TestWriteKeyRequired(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/ingest/reset", map[string]any{"confirm": true}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Missing or invalid X-API-Key.", decode(t, w)["detail"])

	w = e.do(t, http.MethodPost, "/ingest/reset", map[string]any{"confirm": true}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReset(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/ingest/reset", map[string]any{"confirm": false}, testKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Reset requires confirm=true.", decode(t, w)["detail"])

	w = e.do(t, http.MethodPost, "/ingest/reset", map[string]any{"confirm": true}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["reset_count"])

	w = e.do(t, http.MethodGet, "/ingest/sources", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["reset_count"])
}

func TestUploadQueuesJob(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.md")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("# Notes\nGo and SQL."))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "queued", body["status"])
	require.Len(t, e.queue.tasks, 1)
	assert.Equal(t, "notes.md", e.queue.tasks[0].Filename)

	w = e.do(t, http.MethodGet, "/ingest/jobs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["jobs"], 1)
}

func TestLinkRejected(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/ingest/link", map[string]any{"url": "http://localhost/page"}, testKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Rejected link: Host is blocked.", decode(t, w)["detail"])
	assert.Empty(t, e.queue.tasks)
}

func TestNotFound(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/ingest/jobs/42", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Ingestion job not found.", decode(t, w)["detail"])

	w = e.do(t, http.MethodPost, "/query/runs/42/feedback", map[string]any{"is_correct": true}, testKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Query run not found.", decode(t, w)["detail"])
}

func TestModels(t *testing.T) {
	e := newEnv(t)
	e.gateway.Models = []string{"fake-chat", "llama3"}

	w := e.do(t, http.MethodPost, "/models/select", map[string]any{"chat_model": " "}, testKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "chat_model cannot be empty.", decode(t, w)["detail"])

	w = e.do(t, http.MethodPost, "/models/select", map[string]any{"chat_model": "llama3"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/models", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "llama3", body["chat_model"])
	assert.Equal(t, "fake-chat", body["default_chat_model"])
	assert.Equal(t, "http://fake", body["ollama_base_url"])
}

func TestMetricsEndpoints(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/metrics/summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "latency_p95_ms")

	w = e.do(t, http.MethodGet, "/metrics/history?hours=2&bucket_minutes=30", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/metrics/ingestion", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portfolio_rag_http_requests_total")
}
