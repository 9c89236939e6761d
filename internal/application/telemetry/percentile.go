// Package telemetry 请求、问答、评测与导入指标的聚合
package telemetry

import "sort"

// Percentile 线性插值分位数，p 取 [0,1]；空切片返回 0
func Percentile(values []float64, p float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}
	ordered := make([]float64, len(values))
	copy(ordered, values)
	sort.Float64s(ordered)

	index := float64(len(ordered)-1) * p
	lower := int(index)
	upper := min(lower+1, len(ordered)-1)
	if lower == upper {
		return ordered[lower]
	}
	weight := index - float64(lower)
	return ordered[lower]*(1-weight) + ordered[upper]*weight
}
