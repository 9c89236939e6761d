package telemetry

import (
	"context"
	"sort"
	"time"

	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
	apperrors "portfolio-rag-api/pkg/errors"
)

const (
	// QueryPath 统计的问答接口路径
	QueryPath = "/query"

	summaryWindow      = 24 * time.Hour
	evalTrendLimit     = 30
	feedbackFullWeight = 20
	bucketLayout       = "2006-01-02T15:04:00Z"

	// SummaryCacheKey 概览缓存键
	SummaryCacheKey = "rag:metrics:summary"
)

// Aggregator 从事件表按需计算指标，结果不落库
type Aggregator struct {
	requests  repository.RequestLogRepository
	evalRuns  repository.EvalRunRepository
	queryRuns repository.QueryRunRepository
	jobs      repository.IngestionJobRepository

	cache      Cache
	summaryTTL time.Duration
	now        func() time.Time
}

// NewAggregator 创建指标聚合器
func NewAggregator(
	requests repository.RequestLogRepository,
	evalRuns repository.EvalRunRepository,
	queryRuns repository.QueryRunRepository,
	jobs repository.IngestionJobRepository,
) *Aggregator {
	return &Aggregator{
		requests:  requests,
		evalRuns:  evalRuns,
		queryRuns: queryRuns,
		jobs:      jobs,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithSummaryCache 启用概览缓存，ttl <= 0 时不缓存
func (a *Aggregator) WithSummaryCache(cache Cache, ttl time.Duration) *Aggregator {
	if cache != nil && ttl > 0 {
		a.cache = cache
		a.summaryTTL = ttl
	}
	return a
}

// BucketRequests 按分钟桶聚合请求，bucketMinutes 限制在 [1,60]；只返回有数据的桶，按时间升序
func BucketRequests(events []*entity.RequestLog, bucketMinutes int) []TrendPoint {
	bucket := clamp(bucketMinutes, 1, 60)

	type acc struct {
		start     time.Time
		successes int
		latencies []float64
	}
	var order []time.Time
	buckets := make(map[time.Time]*acc)
	for _, e := range events {
		ts := e.CreatedAt.UTC()
		start := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute()-ts.Minute()%bucket, 0, 0, time.UTC)
		b, ok := buckets[start]
		if !ok {
			b = &acc{start: start}
			buckets[start] = b
			order = append(order, start)
		}
		if e.Success {
			b.successes++
		}
		b.latencies = append(b.latencies, e.LatencyMs)
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	points := make([]TrendPoint, 0, len(order))
	for _, start := range order {
		b := buckets[start]
		n := len(b.latencies)
		rate := float64(b.successes) / float64(n)
		points = append(points, TrendPoint{
			BucketUTC:    b.start.Format(bucketLayout),
			Requests:     n,
			SuccessRate:  rate,
			ErrorRate:    1 - rate,
			LatencyP95Ms: Percentile(b.latencies, 0.95),
		})
	}
	return points
}

// History 最近 hours 小时的问答请求趋势与最近的评测趋势
func (a *Aggregator) History(ctx context.Context, hours, bucketMinutes int) (*History, error) {
	hours = clamp(hours, 1, 168)
	bucketMinutes = clamp(bucketMinutes, 1, 60)

	since := a.now().Add(-time.Duration(hours) * time.Hour)
	events, err := a.requests.ListSince(ctx, QueryPath, since)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load request logs")
	}
	runs, err := a.evalRuns.ListRecent(ctx, repository.ClampLimit(evalTrendLimit, 200))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load eval runs")
	}

	trend := make([]EvalTrendPoint, 0, len(runs))
	for _, r := range runs {
		trend = append(trend, EvalTrendPoint{
			TsUTC:        r.CreatedAt.UTC(),
			RecallAt5:    r.RecallAt5,
			EvalPassRate: r.EvalPassRate,
			EvalCoverage: r.EvalCoverage,
			LatencyP95Ms: r.LatencyP95Ms,
		})
	}
	return &History{
		WindowHours:   hours,
		BucketMinutes: bucketMinutes,
		RequestTrend:  BucketRequests(events, bucketMinutes),
		EvalTrend:     trend,
	}, nil
}

// Summary 近 24 小时概览；启用缓存时短时间内复用
func (a *Aggregator) Summary(ctx context.Context) (*Summary, error) {
	if a.cache == nil {
		return a.buildSummary(ctx)
	}
	var out Summary
	err := a.cache.GetOrLoad(ctx, SummaryCacheKey, a.summaryTTL, &out, func(ctx context.Context) (any, error) {
		return a.buildSummary(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Aggregator) buildSummary(ctx context.Context) (*Summary, error) {
	now := a.now()
	since := now.Add(-summaryWindow)

	events, err := a.requests.ListSince(ctx, QueryPath, since)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load request logs")
	}
	out := &Summary{UpdatedAt: now, Requests24h: len(events)}

	if len(events) > 0 {
		latencies := make([]float64, 0, len(events))
		successes := 0
		for _, e := range events {
			latencies = append(latencies, e.LatencyMs)
			if e.Success {
				successes++
			}
		}
		out.SuccessRate = float64(successes) / float64(len(events))
		out.ErrorRate = float64(len(events)-successes) / float64(len(events))
		out.LatencyP95Ms = Percentile(latencies, 0.95)
	}

	latest, err := a.evalRuns.Latest(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load latest eval run")
	}
	if latest != nil {
		out.RecallAt5 = latest.RecallAt5
		out.EvalPassRate = latest.EvalPassRate
		out.EvalCoverage = latest.EvalCoverage
	}

	out.CorrectnessConfidenceAvg24, out.ConfidenceSamples24h, err = a.queryRuns.ConfidenceSince(ctx, since)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to aggregate confidence")
	}
	out.FeedbackAccuracyRate24h, out.FeedbackSamples24h, err = a.queryRuns.FeedbackSince(ctx, since)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to aggregate feedback")
	}
	out.CalibratedQuality24h = Calibrate(out.CorrectnessConfidenceAvg24, out.FeedbackAccuracyRate24h, out.FeedbackSamples24h)
	return out, nil
}

// Calibrate 以人工反馈校准启发式置信度，反馈满 20 条时完全采用反馈正确率
func Calibrate(confidence, accuracy float64, feedbackSamples int64) float64 {
	if feedbackSamples <= 0 {
		return confidence
	}
	w := float64(min(feedbackSamples, feedbackFullWeight)) / feedbackFullWeight
	return (1-w)*confidence + w*accuracy
}

// IngestionStats 全部导入任务的统计
func (a *Aggregator) IngestionStats(ctx context.Context) (*IngestionStats, error) {
	jobs, err := a.jobs.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load ingestion jobs")
	}
	out := &IngestionStats{TotalJobs: len(jobs)}
	if len(jobs) == 0 {
		return out, nil
	}

	var successes, errs, attempts int
	var latencies []float64
	for _, j := range jobs {
		switch j.Status {
		case entity.JobStatusSuccess:
			successes++
		case entity.JobStatusError:
			errs++
		}
		attempts += j.AttemptCount
		if j.AttemptCount > 1 {
			out.RetriedJobs++
		}
		if j.LatencyMs != nil {
			latencies = append(latencies, *j.LatencyMs)
		}
	}
	total := float64(len(jobs))
	out.SuccessRate = float64(successes) / total
	out.ErrorRate = float64(errs) / total
	out.AvgAttempts = float64(attempts) / total
	out.LatencyP50Ms = Percentile(latencies, 0.5)
	out.LatencyP95Ms = Percentile(latencies, 0.95)
	return out, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
