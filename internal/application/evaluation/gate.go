package evaluation

import "fmt"

// GateThresholds 质量门禁阈值
type GateThresholds struct {
	MinEvalCoverage float64
	MinRecallAt5    float64
	MinEvalPassRate float64
	MaxLatencyP95Ms float64
}

// DefaultGateThresholds 默认阈值
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		MinEvalCoverage: 1.0,
		MinRecallAt5:    0.45,
		MinEvalPassRate: 0.5,
		MaxLatencyP95Ms: 20000,
	}
}

// Gate 逐项比较指标与阈值，返回不达标项，空表示通过
func Gate(m *RunMetrics, t GateThresholds) []string {
	var failures []string
	if m.EvalCoverage < t.MinEvalCoverage {
		failures = append(failures, fmt.Sprintf("eval_coverage below threshold: %v < %v", m.EvalCoverage, t.MinEvalCoverage))
	}
	if m.RecallAt5 < t.MinRecallAt5 {
		failures = append(failures, fmt.Sprintf("recall_at_5 below threshold: %v < %v", m.RecallAt5, t.MinRecallAt5))
	}
	if m.EvalPassRate < t.MinEvalPassRate {
		failures = append(failures, fmt.Sprintf("eval_pass_rate below threshold: %v < %v", m.EvalPassRate, t.MinEvalPassRate))
	}
	if m.LatencyP95Ms > t.MaxLatencyP95Ms {
		failures = append(failures, fmt.Sprintf("latency_p95_ms above threshold: %v > %v", m.LatencyP95Ms, t.MaxLatencyP95Ms))
	}
	return failures
}
