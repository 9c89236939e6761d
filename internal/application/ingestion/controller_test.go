package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"sync"
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

type captureQueue struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (q *captureQueue) Enqueue(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type scriptedFetcher struct {
	mu       sync.Mutex
	failures int
	err      error
	text     string
	calls    int
}

func (f *scriptedFetcher) ValidateURL(_ context.Context, raw string) error {
	if raw == "http://localhost/x" {
		return apperrors.New(apperrors.CodeURLRejected, "Host is blocked.")
	}
	return nil
}

func (f *scriptedFetcher) FetchLinkText(_ context.Context, _ string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", "", f.err
	}
	return "page.html", f.text, nil
}

type fixture struct {
	ctrl    *Controller
	queue   *captureQueue
	fetcher *scriptedFetcher
	index   *memory.VectorIndex
	jobs    *sqlstore.IngestionJobRepository
	sources *sqlstore.IngestedSourceRepository
	sleeps  []time.Duration
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

	chunker, err := retrieval.NewChunker(200, 20)
	require.NoError(t, err)
	index := memory.NewVectorIndex()
	indexer := retrieval.NewIndexer(chunker, &retrievaltest.Gateway{}, index, 8)

	f := &fixture{
		queue:   &captureQueue{},
		fetcher: &scriptedFetcher{text: "Portfolio service notes about Go and vector search."},
		index:   index,
		jobs:    sqlstore.NewIngestionJobRepository(client),
		sources: sqlstore.NewIngestedSourceRepository(client),
	}
	f.ctrl = NewController(
		f.jobs,
		f.sources,
		sqlstore.NewIndexStateRepository(client),
		indexer,
		f.fetcher,
		Options{MaxUploadBytes: 64, LinkMaxRetries: 2, LinkBackoff: time.Second},
	)
	f.ctrl.SetQueue(f.queue)
	f.ctrl.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func TestSubmitUpload_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.SubmitUpload(ctx, "notes.md", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEmptyPayload, apperrors.AsAppError(err).Code)
	assert.Equal(t, "Empty upload.", apperrors.AsAppError(err).Message)

	_, err = f.ctrl.SubmitUpload(ctx, "notes.md", make([]byte, 65))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePayloadTooLarge, apperrors.AsAppError(err).Code)
	assert.Equal(t, "Upload too large. Limit is 64 bytes.", apperrors.AsAppError(err).Message)

	_, err = f.ctrl.SubmitUpload(ctx, "notes.docx", []byte("hello"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnsupportedFormat, apperrors.AsAppError(err).Code)

	assert.Empty(t, f.queue.tasks)
}

func TestSubmitUpload_DefaultsFilename(t *testing.T) {
	f := newFixture(t)
	job, err := f.ctrl.SubmitUpload(context.Background(), "", []byte("plain text body"))
	require.NoError(t, err)
	assert.Equal(t, "upload.txt", job.Source)
	assert.Equal(t, 1, job.MaxAttempts)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, job.ID, f.queue.tasks[0].JobID)
}

func TestRun_UploadSucceedsAndRecordsSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.ctrl.SubmitUpload(ctx, "notes.md", []byte("# Notes\n\nGo services and retrieval."))
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusQueued, job.Status)

	require.NoError(t, f.ctrl.Run(ctx, f.queue.tasks[0]))

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSuccess, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.Docs)
	assert.Positive(t, got.Summary.Chunks)

	view, err := f.ctrl.ListSources(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Total)
	assert.Equal(t, entity.SourceTypeUpload, view.Items[0].SourceType)
	assert.Equal(t, "notes.md", view.Items[0].Source)
}

func TestRun_UploadExtractionFailureIsSingleAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.ctrl.SubmitUpload(ctx, "broken.pdf", []byte("not a pdf"))
	require.NoError(t, err)

	err = f.ctrl.Run(ctx, f.queue.tasks[0])
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeJobExhausted))

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusError, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.Error)
	assert.Empty(t, f.sleeps)
}

func TestSubmitLink_RejectsBlockedURL(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.SubmitLink(context.Background(), "http://localhost/x")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeURLRejected, apperrors.AsAppError(err).Code)
	assert.Empty(t, f.queue.tasks)
}

func TestRun_LinkRetriesWithExponentialBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.failures = 2
	f.fetcher.err = apperrors.New(apperrors.CodeFetchFailed, "Fetch failed with HTTP 503.")

	job, err := f.ctrl.SubmitLink(ctx, "https://example.com/about")
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxAttempts)

	require.NoError(t, f.ctrl.Run(ctx, f.queue.tasks[0]))

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSuccess, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)

	view, err := f.ctrl.ListSources(ctx, 10)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, entity.SourceTypeLink, view.Items[0].SourceType)
	assert.Equal(t, retrieval.SourceToDocID("https://example.com/about"), view.Items[0].DocID)
}

func TestRun_PersistsAttemptBeforeBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.failures = 2
	f.fetcher.err = apperrors.New(apperrors.CodeFetchFailed, "Fetch failed with HTTP 503.")

	job, err := f.ctrl.SubmitLink(ctx, "https://example.com/slow")
	require.NoError(t, err)

	// 等待期间外部读取到的应是进行中的尝试
	var seen []*entity.IngestionJob
	f.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		got, err := f.ctrl.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		seen = append(seen, got)
		return nil
	}

	require.NoError(t, f.ctrl.Run(ctx, f.queue.tasks[0]))

	require.Len(t, seen, 2)
	for i, got := range seen {
		assert.Equal(t, entity.JobStatusRunning, got.Status)
		assert.Equal(t, i+1, got.AttemptCount)
		assert.False(t, got.UpdatedAt.Before(job.UpdatedAt))
		assert.Nil(t, got.Summary)
	}
}

func TestRun_LinkSucceedsOnSecondAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.failures = 1
	f.fetcher.err = apperrors.New(apperrors.CodeFetchFailed, "Fetch failed with HTTP 502.")

	job, err := f.ctrl.SubmitLink(ctx, "https://example.com/flaky")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Run(ctx, f.queue.tasks[0]))

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSuccess, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Nil(t, got.Error)
	assert.Equal(t, []time.Duration{time.Second}, f.sleeps)
}

func TestRun_LinkExhaustedKeepsLastError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.failures = 10
	f.fetcher.err = apperrors.New(apperrors.CodeFetchFailed, "Fetch failed with HTTP 500.")

	job, err := f.ctrl.SubmitLink(ctx, "https://example.com/down")
	require.NoError(t, err)

	err = f.ctrl.Run(ctx, f.queue.tasks[0])
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeJobExhausted))

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusError, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
	require.NotNil(t, got.Error)
	assert.Equal(t, "Fetch failed with HTTP 500.", *got.Error)
	assert.Equal(t, 3, f.fetcher.calls)
	assert.Len(t, f.sleeps, 2)
}

func TestRun_SkipsFinishedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.SubmitUpload(ctx, "notes.txt", []byte("hello world"))
	require.NoError(t, err)
	task := f.queue.tasks[0]
	require.NoError(t, f.ctrl.Run(ctx, task))
	require.NoError(t, f.ctrl.Run(ctx, task))

	got, err := f.ctrl.GetJob(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestRun_UnknownJob(t *testing.T) {
	f := newFixture(t)
	err := f.ctrl.Run(context.Background(), Task{JobID: 999, SourceType: entity.SourceTypeUpload})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeJobNotFound, apperrors.AsAppError(err).Code)
}

func TestSubmit_EnqueueFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.queue.err = apperrors.New(apperrors.CodeServiceUnavailable, "ingestion queue is full")

	_, err := f.ctrl.SubmitUpload(ctx, "notes.txt", []byte("hello"))
	require.Error(t, err)

	jobs, err := f.ctrl.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.JobStatusError, jobs[0].Status)
}

func TestReset_ClearsIndexAndSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.SubmitUpload(ctx, "notes.txt", []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Run(ctx, f.queue.tasks[0]))

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	require.Positive(t, count)

	res, err := f.ctrl.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.VectorCount)
	assert.Equal(t, int64(1), res.SourcesCleared)
	assert.Equal(t, 1, res.State.ResetCount)
	assert.NotNil(t, res.State.LastResetUTC)

	view, err := f.ctrl.ListSources(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.Total)
}

func TestIngestDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "projects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "about.md"), []byte("About me and Go."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects", "rag.txt"), []byte("A retrieval project."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o600))

	summary, err := f.ctrl.IngestDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Docs)
	assert.Equal(t, int64(2), summary.VectorCount)

	count, err := f.sources.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestWorkerPool_RunsQueuedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pool := NewWorkerPool(f.ctrl, 2, 8)
	f.ctrl.SetQueue(pool)
	pool.Start(ctx)

	job, err := f.ctrl.SubmitUpload(ctx, "notes.txt", []byte("hello from the pool"))
	require.NoError(t, err)
	require.NoError(t, pool.Stop())

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSuccess, got.Status)

	err = pool.Enqueue(ctx, Task{JobID: 1})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeQueueError, apperrors.AsAppError(err).Code)
}

func TestWorkerPool_RejectsWhenFull(t *testing.T) {
	pool := NewWorkerPool(nil, 1, 1)
	ctx := context.Background()
	require.NoError(t, pool.Enqueue(ctx, Task{JobID: 1}))

	err := pool.Enqueue(ctx, Task{JobID: 2})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeServiceUnavailable, apperrors.AsAppError(err).Code)
	require.NoError(t, pool.Stop())
}

func TestWorkerPool_StopFailsUnstartedJobs(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	pool := NewWorkerPool(f.ctrl, 1, 8)
	f.ctrl.SetQueue(pool)
	first, err := f.ctrl.SubmitUpload(ctx, "a.txt", []byte("first queued document"))
	require.NoError(t, err)
	second, err := f.ctrl.SubmitUpload(ctx, "b.txt", []byte("second queued document"))
	require.NoError(t, err)

	cancel()
	pool.Start(ctx)
	require.NoError(t, pool.Stop())

	for _, id := range []int64{first.ID, second.ID} {
		got, err := f.ctrl.GetJob(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, entity.JobStatusError, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, WorkerStoppedReason, *got.Error)
		assert.Equal(t, 0, got.AttemptCount)
	}
}

func TestAbandon_IgnoresFinishedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.ctrl.SubmitUpload(ctx, "notes.txt", []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Run(ctx, f.queue.tasks[0]))
	require.NoError(t, f.ctrl.Abandon(ctx, f.queue.tasks[0], WorkerStoppedReason))

	got, err := f.ctrl.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSuccess, got.Status)
}
