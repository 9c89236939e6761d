package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

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

func TestLoadCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden.jsonl")
	body := `{"id":"c1","question":"What stack?","expected_doc_ids":["about"],"expected_substrings":["Go"]}

{"id":"c2","question":"Anything else?"}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cases, err := LoadCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "c1", cases[0].ID)
	assert.Equal(t, []string{"about"}, cases[0].ExpectedDocIDs)
	assert.Empty(t, cases[1].ExpectedSubstrings)

	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o600))
	_, err = LoadCases(path)
	assert.ErrorContains(t, err, "line 1")

	_, err = LoadCases(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestScoring(t *testing.T) {
	hit, recall := scoreRetrieval([]string{"a", "b"}, []string{"b", "c", "b"})
	assert.True(t, hit)
	assert.Equal(t, 0.5, recall)

	hit, recall = scoreRetrieval(nil, []string{"a"})
	assert.False(t, hit)
	assert.Equal(t, 0.0, recall)

	assert.Equal(t, 0.5, recallAt5(0.5, 3))
	assert.Equal(t, 0.5, recallAt5(0.5, 5))

	assert.True(t, containsAll("go and redis", nil))
	assert.False(t, containsAll("go and redis", []string{"go", "kafka"}))
	assert.Equal(t, 1.0, supportRatio("", nil))
	assert.Equal(t, 0.5, supportRatio("go and redis", []string{"go", "kafka"}))
}

type flakyAnswerer struct {
	inner  Answerer
	failOn string
}

func (a *flakyAnswerer) Answer(ctx context.Context, question string, k int, model string) (*retrieval.AnswerResult, error) {
	if question == a.failOn {
		return nil, apperrors.Wrap(errors.New("connection refused"), apperrors.CodeGatewayError, "embed request failed")
	}
	return a.inner.Answer(ctx, question, k, model)
}

func newHarness(t *testing.T) (*Harness, *sqlstore.RetrievalEventRepository, *sqlstore.EvalRunRepository) {
	t.Helper()
	ctx := context.Background()
	client, err := sqlstore.NewClient(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(ctx))

	gateway := &retrievaltest.Gateway{Answer: "Built with Go services [1]."}
	index := memory.NewVectorIndex()
	chunker, err := retrieval.NewChunker(400, 40)
	require.NoError(t, err)
	_, err = retrieval.NewIndexer(chunker, gateway, index, 8).IngestDocuments(ctx, []retrieval.Document{
		{DocID: "about", Source: "about.md", Text: "I build Go services and retrieval systems."},
		{DocID: "projects", Source: "projects.md", Text: "Projects include a vector search API."},
	})
	require.NoError(t, err)

	events := sqlstore.NewRetrievalEventRepository(client)
	runs := sqlstore.NewEvalRunRepository(client)
	answerer := &flakyAnswerer{inner: retrieval.NewPipeline(gateway, index, 5), failOn: "broken question"}
	return NewHarness(answerer, events, runs, 5), events, runs
}

func TestHarness_Run(t *testing.T) {
	h, events, runs := newHarness(t)
	ctx := context.Background()

	cases := []Case{
		{ID: "c1", Question: "go services", ExpectedDocIDs: []string{"about"}, ExpectedSubstrings: []string{"Go"}},
		{ID: "c2", Question: "python", ExpectedDocIDs: []string{"missing"}, ExpectedSubstrings: []string{"python"}},
		{ID: "c3", Question: "anything"},
		{ID: "c4", Question: "broken question", ExpectedDocIDs: []string{"about"}},
	}
	m, err := h.Run(ctx, cases)
	require.NoError(t, err)

	assert.Equal(t, 4, m.TotalCases)
	assert.Equal(t, 3, m.ProcessedCases)
	assert.InDelta(t, 0.75, m.EvalCoverage, 1e-9)
	assert.InDelta(t, 1.0/3, m.RetrievalHitRate, 1e-9)
	assert.InDelta(t, 1.0/3, m.RecallAtK, 1e-9)
	assert.InDelta(t, 1.0/3, m.RecallAt5, 1e-9)
	assert.InDelta(t, 2.0/3, m.EvalPassRate, 1e-9)
	assert.InDelta(t, 2.0/3, m.GroundednessProxy, 1e-9)
	require.Len(t, m.Details, 4)
	assert.True(t, m.Details[0].Hit)
	assert.Contains(t, m.Details[0].RetrievedDocIDs, "about")
	assert.Contains(t, m.Details[3].Error, "embed request failed")

	logged, err := events.ListRecent(ctx, entity.RetrievalSourceEval, 10)
	require.NoError(t, err)
	require.Len(t, logged, 4)
	assert.Equal(t, "eval::c4", logged[0].RequestID)
	require.NotNil(t, logged[0].Error)
	assert.False(t, logged[0].Hit)
	assert.Equal(t, "eval::c1", logged[3].RequestID)
	assert.True(t, logged[3].Hit)

	latest, err := runs.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 4, latest.TotalCases)
	assert.InDelta(t, m.RecallAt5, latest.RecallAt5, 1e-9)
	assert.Contains(t, latest.MetricsJSON, `"processed_cases":3`)
}

func TestHarness_RunEmpty(t *testing.T) {
	h, _, _ := newHarness(t)
	m, err := h.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalCases)
	assert.Equal(t, 0.0, m.EvalCoverage)
	assert.Equal(t, 0.0, m.LatencyP95Ms)
}

func TestReportRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	m := &RunMetrics{TotalCases: 2, ProcessedCases: 2, RecallAt5: 0.5, EvalCoverage: 1}

	path, err := WriteReport(dir, m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ReportFileName), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"total_cases\": 2")

	got, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.RecallAt5)

	_, err = ReadReport(filepath.Join(dir, "nope.json"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeReportNotFound))
}

func TestGate(t *testing.T) {
	th := DefaultGateThresholds()

	ok := &RunMetrics{EvalCoverage: 1, RecallAt5: 0.5, EvalPassRate: 0.5, LatencyP95Ms: 20000}
	assert.Empty(t, Gate(ok, th))

	bad := &RunMetrics{EvalCoverage: 0.9, RecallAt5: 0.2, EvalPassRate: 0.1, LatencyP95Ms: 25000}
	failures := Gate(bad, th)
	require.Len(t, failures, 4)
	assert.Equal(t, "eval_coverage below threshold: 0.9 < 1", failures[0])
	assert.Equal(t, "recall_at_5 below threshold: 0.2 < 0.45", failures[1])
	assert.Equal(t, "latency_p95_ms above threshold: 25000 > 20000", failures[3])
}
