package usecase

import (
	"math"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

// scoreRetrieval computes the ranked-retrieval metrics for one question:
// retrieved is the ranked top-k result, relevant the ground-truth chunk IDs.
// All metrics land in [0, 1]; an empty relevant set scores zero across the
// board rather than dividing by zero.
func scoreRetrieval(retrieved []string, relevant []string) map[domain.MetricName]float64 {
	metrics := map[domain.MetricName]float64{
		domain.MetricHitRate:   0,
		domain.MetricMRR:       0,
		domain.MetricPrecision: 0,
		domain.MetricRecall:    0,
		domain.MetricAP:        0,
		domain.MetricNDCG:      0,
	}
	if len(retrieved) == 0 || len(relevant) == 0 {
		return metrics
	}

	relevantSet := make(map[string]bool, len(relevant))
	for _, id := range relevant {
		relevantSet[id] = true
	}

	var (
		hits      int
		firstRank int
		sumPrec   float64
		dcg       float64
	)
	for i, id := range retrieved {
		if !relevantSet[id] {
			continue
		}
		hits++
		if firstRank == 0 {
			firstRank = i + 1
		}
		// Precision at this relevant hit's rank feeds average precision.
		sumPrec += float64(hits) / float64(i+1)
		dcg += 1.0 / math.Log2(float64(i+2))
	}

	if hits > 0 {
		metrics[domain.MetricHitRate] = 1
		metrics[domain.MetricMRR] = 1.0 / float64(firstRank)
	}
	metrics[domain.MetricPrecision] = float64(hits) / float64(len(retrieved))
	metrics[domain.MetricRecall] = float64(hits) / float64(len(relevant))
	metrics[domain.MetricAP] = sumPrec / float64(len(relevant))

	// Ideal DCG places every relevant chunk at the top of the ranking.
	idealHits := len(relevant)
	if idealHits > len(retrieved) {
		idealHits = len(retrieved)
	}
	var idcg float64
	for i := 0; i < idealHits; i++ {
		idcg += 1.0 / math.Log2(float64(i+2))
	}
	if idcg > 0 {
		metrics[domain.MetricNDCG] = dcg / idcg
	}
	return metrics
}

// meanMetrics averages per-question metric maps. Every map is expected to
// carry the full metric set.
func meanMetrics(records []map[domain.MetricName]float64) map[domain.MetricName]float64 {
	out := make(map[domain.MetricName]float64, len(domain.MetricNames))
	if len(records) == 0 {
		return out
	}
	for _, name := range domain.MetricNames {
		var sum float64
		for _, rec := range records {
			sum += rec[name]
		}
		out[name] = sum / float64(len(records))
	}
	return out
}
