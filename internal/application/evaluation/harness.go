package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/internal/application/telemetry"
	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
	"portfolio-rag-api/internal/domain/service"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/metrics"
	"portfolio-rag-api/pkg/tracer"
)

// Harness 顺序执行评测用例并记录结果
type Harness struct {
	answerer Answerer
	events   repository.RetrievalEventRepository
	runs     repository.EvalRunRepository
	topK     int
	now      func() time.Time
}

// NewHarness 创建评测器
func NewHarness(answerer Answerer, events repository.RetrievalEventRepository, runs repository.EvalRunRepository, topK int) *Harness {
	return &Harness{
		answerer: answerer,
		events:   events,
		runs:     runs,
		topK:     topK,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunFile 加载评测集并执行
func (h *Harness) RunFile(ctx context.Context, path string) (*RunMetrics, error) {
	cases, err := LoadCases(path)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, cases)
}

// Run 顺序执行全部用例；单条失败只记录并降低覆盖率
func (h *Harness) Run(ctx context.Context, cases []Case) (*RunMetrics, error) {
	ctx = service.WithWorkflow(ctx, "eval")
	ctx, span := tracer.Start(ctx, "evaluation.Run", trace.WithAttributes(
		attribute.Int("cases", len(cases)),
		attribute.Int("top_k", h.topK),
	))
	defer span.End()

	var (
		hits, passed              int
		recall, recall5, grounded float64
		latencies                 []float64
		details                   = make([]CaseResult, 0, len(cases))
	)
	for _, c := range cases {
		caseCtx := logger.WithContext(ctx, logger.EvalCaseIDKey, c.ID)
		res, ok := h.runCase(caseCtx, c)
		details = append(details, res)
		if !ok {
			continue
		}
		if res.Hit {
			hits++
		}
		if res.Passed {
			passed++
		}
		recall += res.RecallAtK
		recall5 += res.RecallAt5
		grounded += res.GroundednessProxy
		latencies = append(latencies, res.LatencyMs)
	}

	processed := len(latencies)
	out := &RunMetrics{
		TimestampUTC:   h.now(),
		TotalCases:     len(cases),
		ProcessedCases: processed,
		LatencyP50Ms:   telemetry.Percentile(latencies, 0.5),
		LatencyP95Ms:   telemetry.Percentile(latencies, 0.95),
		Details:        details,
	}
	if processed > 0 {
		n := float64(processed)
		out.RetrievalHitRate = float64(hits) / n
		out.RecallAtK = recall / n
		out.RecallAt5 = recall5 / n
		out.GroundednessProxy = grounded / n
		out.EvalPassRate = float64(passed) / n
	}
	if len(cases) > 0 {
		out.EvalCoverage = float64(processed) / float64(len(cases))
	}

	if err := h.persist(ctx, out); err != nil {
		tracer.Fail(span, err)
		return nil, err
	}
	observe(out)
	logger.Info(ctx, "evaluation finished",
		"total_cases", out.TotalCases,
		"processed_cases", out.ProcessedCases,
		"recall_at_5", out.RecallAt5,
		"eval_pass_rate", out.EvalPassRate,
		"latency_p95_ms", out.LatencyP95Ms,
	)
	return out, nil
}

func (h *Harness) runCase(ctx context.Context, c Case) (CaseResult, bool) {
	res := CaseResult{ID: c.ID}
	event := &entity.RetrievalEvent{
		RequestID: "eval::" + c.ID,
		Source:    entity.RetrievalSourceEval,
		QueryText: c.Question,
		TopK:      h.topK,
	}

	answer, err := h.answerer.Answer(ctx, c.Question, h.topK, "")
	if err != nil {
		msg := errorText(err)
		res.Error = msg
		event.Error = &msg
		logger.Warn(ctx, "eval case failed", "error", msg)
		h.logEvent(ctx, event)
		return res, false
	}

	res.RetrievedDocIDs = answer.RetrievedDocIDs
	res.Hit, res.RecallAtK = scoreRetrieval(c.ExpectedDocIDs, answer.RetrievedDocIDs)
	res.RecallAt5 = recallAt5(res.RecallAtK, h.topK)

	terms := lowerTerms(c.ExpectedSubstrings)
	res.Passed = containsAll(strings.ToLower(answer.Answer), terms)
	res.GroundednessProxy = supportRatio(strings.ToLower(answer.RetrievedContext), terms)
	res.LatencyMs = math.Round(answer.LatencyMs()*100) / 100

	event.Hit = res.Hit
	event.RecallAtK = res.RecallAtK
	event.RecallAt5 = res.RecallAt5
	event.Citations = answer.Citations
	event.RetrievedDocIDs = answer.RetrievedDocIDs
	h.logEvent(ctx, event)
	return res, true
}

// scoreRetrieval 命中与召回；没有期望文档时均为 0
func scoreRetrieval(expected, retrieved []string) (bool, float64) {
	want := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		want[id] = struct{}{}
	}
	if len(want) == 0 {
		return false, 0
	}
	matched := make(map[string]struct{}, len(want))
	for _, id := range retrieved {
		if _, ok := want[id]; ok {
			matched[id] = struct{}{}
		}
	}
	return len(matched) > 0, float64(len(matched)) / float64(len(want))
}

// recallAt5 保持既有公式：top_k 不足 5 时同样取召回值（截断到 1）
func recallAt5(recall float64, topK int) float64 {
	if topK >= 5 {
		return recall
	}
	return math.Min(1, recall)
}

func lowerTerms(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// supportRatio 期望词在检索上下文中出现的比例，没有期望词时为 1
func supportRatio(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 1
	}
	supported := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			supported++
		}
	}
	return float64(supported) / float64(len(terms))
}

func (h *Harness) logEvent(ctx context.Context, event *entity.RetrievalEvent) {
	metrics.RetrievalHits.WithLabelValues(string(event.Source), fmt.Sprint(event.Hit)).Inc()
	if err := h.events.Create(ctx, event); err != nil {
		logger.Error(ctx, "failed to log eval retrieval event", err)
	}
}

func (h *Harness) persist(ctx context.Context, m *RunMetrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode eval metrics: %w", err)
	}
	run := &entity.EvalRun{
		CreatedAt:         m.TimestampUTC,
		TotalCases:        m.TotalCases,
		RetrievalHitRate:  m.RetrievalHitRate,
		RecallAtK:         m.RecallAtK,
		RecallAt5:         m.RecallAt5,
		GroundednessProxy: m.GroundednessProxy,
		EvalPassRate:      m.EvalPassRate,
		EvalCoverage:      m.EvalCoverage,
		LatencyP50Ms:      m.LatencyP50Ms,
		LatencyP95Ms:      m.LatencyP95Ms,
		MetricsJSON:       string(raw),
	}
	if err := h.runs.Create(ctx, run); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save eval run")
	}
	return nil
}

func observe(m *RunMetrics) {
	metrics.EvalRunsTotal.Inc()
	metrics.EvalLastMetric.WithLabelValues("recall_at_5").Set(m.RecallAt5)
	metrics.EvalLastMetric.WithLabelValues("eval_pass_rate").Set(m.EvalPassRate)
	metrics.EvalLastMetric.WithLabelValues("eval_coverage").Set(m.EvalCoverage)
	metrics.EvalLastMetric.WithLabelValues("latency_p95_ms").Set(m.LatencyP95Ms)
}

// WriteReport 把指标写成缩进 JSON 报告，返回文件路径
func WriteReport(dir string, m *RunMetrics) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	path := filepath.Join(dir, ReportFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ReadReport 读取评测报告，文件不存在时返回 CodeReportNotFound
func ReadReport(path string) (*RunMetrics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.CodeReportNotFound, "Eval report not found").WithDetail(path)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var m RunMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	return &m, nil
}

func errorText(err error) string {
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err).Cause()
	}
	return err.Error()
}
