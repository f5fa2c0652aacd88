// Package evaluation computes ranking-quality metrics from logged searches
// and recorded interactions.
package evaluation

import (
	"fmt"
	"math"
)

// MetricKind is the closed set of metric types an evaluation run produces.
type MetricKind string

const (
	MetricNDCG10      MetricKind = "ndcg@10"
	MetricRecall10    MetricKind = "recall@10"
	MetricPrecision10 MetricKind = "precision@10"
	MetricMRR         MetricKind = "mrr"
	MetricCustom      MetricKind = "custom"
)

// ParseMetricKind validates a raw metric kind string.
func ParseMetricKind(s string) (MetricKind, error) {
	switch MetricKind(s) {
	case MetricNDCG10, MetricRecall10, MetricPrecision10, MetricMRR, MetricCustom:
		return MetricKind(s), nil
	default:
		return "", fmt.Errorf("unknown metric kind %q", s)
	}
}

// cutoff is the rank depth for the @10 metrics.
const cutoff = 10

// precisionAt returns the fraction of the first k positions that are
// relevant. Positions beyond the returned list count as non-relevant.
func precisionAt(relevant []bool, k int) float64 {
	hits := 0
	for i := 0; i < k && i < len(relevant); i++ {
		if relevant[i] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// recallAt returns the fraction of all known-relevant items found in the
// first k positions. ok is false when totalRelevant is zero: such queries
// carry no recall information and are excluded from the average rather
// than dividing by zero.
func recallAt(relevant []bool, k, totalRelevant int) (value float64, ok bool) {
	if totalRelevant == 0 {
		return 0, false
	}
	hits := 0
	for i := 0; i < k && i < len(relevant); i++ {
		if relevant[i] {
			hits++
		}
	}
	return float64(hits) / float64(totalRelevant), true
}

// ndcgAt computes NDCG with binary gains: DCG = Σ rel_i / log2(i+1) over
// the first k positions (i is the 1-based rank), IDCG is the DCG of the
// ideal ordering with all totalRelevant items first.
//
// When IDCG is zero (no relevant items exist for the query) NDCG is
// defined as 1.0 by convention: an ordering with nothing to get right is
// trivially perfect. This is a policy choice, not arithmetic — it keeps
// no-signal queries from dragging the average toward zero.
func ndcgAt(relevant []bool, k, totalRelevant int) float64 {
	var dcg float64
	for i := 0; i < k && i < len(relevant); i++ {
		if relevant[i] {
			dcg += 1 / math.Log2(float64(i)+2)
		}
	}

	ideal := totalRelevant
	if ideal > k {
		ideal = k
	}
	var idcg float64
	for i := 0; i < ideal; i++ {
		idcg += 1 / math.Log2(float64(i)+2)
	}

	if idcg == 0 {
		return 1.0
	}
	return dcg / idcg
}

// reciprocalRank returns 1/rank of the first relevant result in the
// returned list, or 0 when none is relevant.
func reciprocalRank(relevant []bool) float64 {
	for i, rel := range relevant {
		if rel {
			return 1 / float64(i+1)
		}
	}
	return 0
}
