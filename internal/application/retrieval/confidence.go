package retrieval

import (
	"regexp"
	"strings"

	"portfolio-rag-api/internal/domain/entity"
)

var referenceMarker = regexp.MustCompile(`\[(\d+)\]`)

const (
	// NoContextProbability 无检索结果时的固定置信度
	NoContextProbability = 0.1

	minProbability = 0.05
	maxProbability = 0.95
	hedgedCap      = 0.6

	coverageCap  = 6
	referenceCap = 5
)

// EstimateCorrectness 由引用数量、平均距离和答案中的 [n] 引用估算正确概率
// 这是启发式代理值，权重与阈值需与历史遥测保持一致
func EstimateCorrectness(answer string, citations []entity.Citation) float64 {
	n := len(citations)
	if n == 0 {
		return NoContextProbability
	}

	coverage := float64(min(n, coverageCap)) / coverageCap

	var sum float64
	for _, c := range citations {
		sum += c.Distance
	}
	dist := distanceScore(sum / float64(n))

	refs := make(map[string]struct{})
	for _, m := range referenceMarker.FindAllStringSubmatch(answer, -1) {
		refs[strings.TrimLeft(m[1], "0")] = struct{}{}
	}
	// 分母上限为 5，与 coverage 的 6 不同，保持原样
	reference := float64(min(len(refs), n)) / float64(max(1, min(n, referenceCap)))

	raw := 0.1 + 0.35*coverage + 0.4*dist + 0.15*reference
	lower := strings.ToLower(answer)
	if strings.Contains(lower, "insufficient") || strings.Contains(lower, "not enough context") {
		raw = min(raw, hedgedCap)
	}
	return max(minProbability, min(maxProbability, raw))
}

func distanceScore(avg float64) float64 {
	switch {
	case avg <= 0.25:
		return 1.0
	case avg <= 0.5:
		return 0.8
	case avg <= 0.8:
		return 0.6
	case avg <= 1.2:
		return 0.4
	default:
		return 0.2
	}
}
