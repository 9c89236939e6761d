package ingestion

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
	"portfolio-rag-api/internal/infrastructure/document"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/metrics"
	"portfolio-rag-api/pkg/tracer"
)

const defaultUploadName = "upload.txt"

// Controller 导入任务控制器：同步校验并建任务，异步执行
type Controller struct {
	jobs    repository.IngestionJobRepository
	sources repository.IngestedSourceRepository
	state   repository.IndexStateRepository
	indexer *retrieval.Indexer
	fetcher LinkFetcher
	queue   Queue
	opts    Options

	// sleep 可在测试中替换
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController 创建导入控制器
func NewController(
	jobs repository.IngestionJobRepository,
	sources repository.IngestedSourceRepository,
	state repository.IndexStateRepository,
	indexer *retrieval.Indexer,
	fetcher LinkFetcher,
	opts Options,
) *Controller {
	return &Controller{
		jobs:    jobs,
		sources: sources,
		state:   state,
		indexer: indexer,
		fetcher: fetcher,
		opts:    opts,
		sleep:   sleepContext,
	}
}

// SetQueue 设置任务队列（队列依赖控制器执行任务，需在构造后注入）
func (c *Controller) SetQueue(q Queue) {
	c.queue = q
}

// SubmitUpload 校验上传并创建任务
func (c *Controller) SubmitUpload(ctx context.Context, filename string, raw []byte) (*entity.IngestionJob, error) {
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CodeEmptyPayload, "Empty upload.")
	}
	if int64(len(raw)) > c.opts.MaxUploadBytes {
		return nil, apperrors.Newf(apperrors.CodePayloadTooLarge, "Upload too large. Limit is %d bytes.", c.opts.MaxUploadBytes)
	}
	if filename == "" {
		filename = defaultUploadName
	}
	if !document.IsSupported(filename) {
		return nil, apperrors.New(apperrors.CodeUnsupportedFormat, "Unsupported upload extension. Use .pdf, .md, or .txt.")
	}

	job := entity.NewIngestionJob(entity.SourceTypeUpload, filename, 1)
	return job, c.submit(ctx, job, Task{
		SourceType: entity.SourceTypeUpload,
		Source:     filename,
		Filename:   filename,
		Content:    raw,
	})
}

// SubmitLink 校验链接并创建任务
func (c *Controller) SubmitLink(ctx context.Context, url string) (*entity.IngestionJob, error) {
	if err := c.fetcher.ValidateURL(ctx, url); err != nil {
		return nil, err
	}
	job := entity.NewIngestionJob(entity.SourceTypeLink, url, c.opts.LinkMaxRetries+1)
	return job, c.submit(ctx, job, Task{
		SourceType: entity.SourceTypeLink,
		Source:     url,
	})
}

func (c *Controller) submit(ctx context.Context, job *entity.IngestionJob, task Task) error {
	if c.queue == nil {
		return apperrors.New(apperrors.CodeQueueError, "ingestion queue is not configured")
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create ingestion job")
	}
	task.JobID = job.ID
	if err := c.queue.Enqueue(ctx, task); err != nil {
		// 入队失败直接终结任务，避免长期停留在 queued
		_ = job.Fail(errorText(err), 0)
		if uerr := c.jobs.Update(ctx, job); uerr != nil {
			logger.Error(ctx, "failed to mark unqueued job", uerr, "job_id", job.ID)
		}
		return err
	}
	metrics.IngestionJobsTotal.WithLabelValues(string(job.SourceType), string(entity.JobStatusQueued)).Inc()
	logger.Info(ctx, "ingestion job queued", "job_id", job.ID, "source_type", job.SourceType, "source", job.Source)
	return nil
}

// Run 执行任务：逐次尝试，失败时按 backoff×2^(n-1) 等待后重试，最终写入终态
func (c *Controller) Run(ctx context.Context, task Task) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, task.JobID)
	ctx, span := tracer.Start(ctx, "ingestion.Run", trace.WithAttributes(
		attribute.Int64("job_id", task.JobID),
		attribute.String("source_type", string(task.SourceType)),
	))
	defer span.End()

	job, err := c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		tracer.Fail(span, err)
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load ingestion job")
	}
	if job == nil {
		return apperrors.New(apperrors.CodeJobNotFound, "Ingestion job not found.").WithDetail(fmt.Sprint(task.JobID))
	}
	if job.Status.IsTerminal() {
		// 重复投递
		logger.Warn(ctx, "ingestion job already finished", "status", job.Status)
		return nil
	}

	start := time.Now()
	var lastErr error
	for attempt := job.AttemptCount + 1; attempt <= job.MaxAttempts; attempt++ {
		if err := job.StartAttempt(attempt); err != nil {
			lastErr = err
			break
		}
		if err := c.jobs.Update(ctx, job); err != nil {
			tracer.Fail(span, err)
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update ingestion job")
		}

		summary, docID, err := c.runOnce(ctx, task)
		if err == nil {
			return c.finishSuccess(ctx, job, task, docID, summary, time.Since(start))
		}
		lastErr = err
		logger.Warn(ctx, "ingestion attempt failed", "attempt", attempt, "max_attempts", job.MaxAttempts, "error", errorText(err))

		if attempt < job.MaxAttempts {
			if serr := c.sleep(ctx, c.backoff(attempt)); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no attempts left")
	}
	tracer.Fail(span, lastErr)
	return c.finishError(ctx, job, lastErr, time.Since(start))
}

// backoff 第 attempt 次失败后的等待时间
func (c *Controller) backoff(attempt int) time.Duration {
	return time.Duration(float64(c.opts.LinkBackoff) * math.Pow(2, float64(attempt-1)))
}

func (c *Controller) runOnce(ctx context.Context, task Task) (entity.IngestSummary, string, error) {
	var doc retrieval.Document
	switch task.SourceType {
	case entity.SourceTypeUpload:
		text, err := document.ExtractText(task.Filename, task.Content)
		if err != nil {
			return entity.IngestSummary{}, "", err
		}
		doc = retrieval.Document{DocID: retrieval.SourceToDocID(task.Filename), Source: task.Filename, Text: text}
	case entity.SourceTypeLink:
		_, text, err := c.fetcher.FetchLinkText(ctx, task.Source)
		if err != nil {
			return entity.IngestSummary{}, "", err
		}
		doc = retrieval.Document{DocID: retrieval.SourceToDocID(task.Source), Source: task.Source, Text: text}
	default:
		return entity.IngestSummary{}, "", apperrors.New(apperrors.CodeInvalidParam, "unknown source type").WithDetail(string(task.SourceType))
	}

	summary, err := c.indexer.IngestDocuments(ctx, []retrieval.Document{doc})
	if err != nil {
		return entity.IngestSummary{}, "", err
	}
	return summary, doc.DocID, nil
}

func (c *Controller) finishSuccess(ctx context.Context, job *entity.IngestionJob, task Task, docID string, summary entity.IngestSummary, latency time.Duration) error {
	if err := job.Succeed(summary, latency); err != nil {
		return err
	}
	if err := c.jobs.Update(ctx, job); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update ingestion job")
	}
	if err := c.sources.Record(ctx, &entity.IngestedSource{
		SourceType: task.SourceType,
		Source:     task.Source,
		DocID:      docID,
	}); err != nil {
		logger.Error(ctx, "failed to record ingested source", err, "doc_id", docID)
	}

	metrics.IngestionJobsTotal.WithLabelValues(string(job.SourceType), string(entity.JobStatusSuccess)).Inc()
	metrics.IngestionJobDuration.WithLabelValues(string(job.SourceType)).Observe(latency.Seconds())
	logger.Info(ctx, "ingestion job succeeded",
		"attempts", job.AttemptCount,
		"docs", summary.Docs,
		"chunks", summary.Chunks,
		"vector_count", summary.VectorCount,
	)
	return nil
}

func (c *Controller) finishError(ctx context.Context, job *entity.IngestionJob, cause error, latency time.Duration) error {
	// 取消时使用独立 context 落库终态
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	msg := errorText(cause)
	if err := job.Fail(msg, latency); err != nil {
		return err
	}
	if err := c.jobs.Update(writeCtx, job); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update ingestion job")
	}

	metrics.IngestionJobsTotal.WithLabelValues(string(job.SourceType), string(entity.JobStatusError)).Inc()
	metrics.IngestionJobDuration.WithLabelValues(string(job.SourceType)).Observe(latency.Seconds())
	logger.Warn(ctx, "ingestion job failed", "attempts", job.AttemptCount, "error", msg)
	return apperrors.Wrap(cause, apperrors.CodeJobExhausted, "ingestion attempts exhausted")
}

// Abandon 未执行的任务直接置为 error，已是终态时忽略
func (c *Controller) Abandon(ctx context.Context, task Task, reason string) error {
	job, err := c.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load ingestion job")
	}
	if job == nil || job.Status.IsTerminal() {
		return nil
	}
	if err := job.Fail(reason, 0); err != nil {
		return err
	}
	if err := c.jobs.Update(ctx, job); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update ingestion job")
	}
	metrics.IngestionJobsTotal.WithLabelValues(string(job.SourceType), string(entity.JobStatusError)).Inc()
	logger.Warn(ctx, "ingestion job abandoned", "job_id", job.ID, "reason", reason)
	return nil
}

// GetJob 查询任务，不存在返回 nil
func (c *Controller) GetJob(ctx context.Context, id int64) (*entity.IngestionJob, error) {
	return c.jobs.GetByID(ctx, id)
}

// ListJobs 最近的任务
func (c *Controller) ListJobs(ctx context.Context, limit int) ([]*entity.IngestionJob, error) {
	return c.jobs.List(ctx, repository.ClampLimit(limit, 100))
}

// ListSources 已导入来源及索引状态
func (c *Controller) ListSources(ctx context.Context, limit int) (*SourcesView, error) {
	total, err := c.sources.Count(ctx)
	if err != nil {
		return nil, err
	}
	state, err := c.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	items, err := c.sources.List(ctx, repository.ClampLimit(limit, 1000))
	if err != nil {
		return nil, err
	}
	return &SourcesView{Total: total, State: state, Items: items}, nil
}

// Reset 清空向量索引与来源登记，并记录重置
func (c *Controller) Reset(ctx context.Context) (*ResetResult, error) {
	count, err := c.indexer.Reset(ctx)
	if err != nil {
		return nil, err
	}
	cleared, err := c.sources.Clear(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to clear ingested sources")
	}
	state, err := c.state.MarkReset(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to record index reset")
	}
	logger.Info(ctx, "vector index reset", "sources_cleared", cleared, "reset_count", state.ResetCount)
	return &ResetResult{VectorCount: count, SourcesCleared: cleared, State: state}, nil
}

// IngestDirectory 同步导入目录下全部可读文档
func (c *Controller) IngestDirectory(ctx context.Context, root string) (entity.IngestSummary, error) {
	files, err := document.WalkDirectory(root)
	if err != nil {
		return entity.IngestSummary{}, apperrors.Wrap(err, apperrors.CodeIngestionFailed, "failed to read documents")
	}
	docs := make([]retrieval.Document, 0, len(files))
	for _, f := range files {
		docs = append(docs, retrieval.Document{DocID: f.DocID, Source: f.Source, Text: f.Text})
	}
	summary, err := c.indexer.IngestDocuments(ctx, docs)
	if err != nil {
		return entity.IngestSummary{}, err
	}
	for _, f := range files {
		if err := c.sources.Record(ctx, &entity.IngestedSource{
			SourceType: entity.SourceTypeUpload,
			Source:     f.Source,
			DocID:      f.DocID,
		}); err != nil {
			logger.Error(ctx, "failed to record ingested source", err, "doc_id", f.DocID)
		}
	}
	return summary, nil
}

// errorText 任务错误信息，AppError 不带错误码前缀
func errorText(err error) string {
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err).Cause()
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
