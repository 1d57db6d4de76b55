package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets define the service level objectives for the pipeline.
// These targets are used to measure and monitor pipeline health.
const (
	// SuccessRateSLO defines the target ratio of topics that produce a published article (95%)
	SuccessRateSLO = 0.95

	// CostPerArticleSLO defines the maximum acceptable average LLM spend per article in USD
	CostPerArticleSLO = 0.05

	// QualityScoreSLO defines the minimum acceptable average quality score of accepted items
	QualityScoreSLO = 0.60

	// ProcessingLatencyP95SLO defines the target p95 for end-to-end topic processing in seconds
	ProcessingLatencyP95SLO = 30.0
)

// SLO tracking metrics
// These gauges are updated from session tracker snapshots (e.g., at the end of
// each processing batch) to track whether the pipeline is meeting its targets.
var (
	// SLOSuccessRate tracks the current topic success ratio (0-1)
	// calculated as: articles_generated / topics_processed
	SLOSuccessRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_success_rate_ratio",
			Help: "Current topic success ratio (0-1), target: 0.95",
		},
	)

	// SLOCostPerArticle tracks the current average LLM spend per article in USD
	SLOCostPerArticle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_cost_per_article_usd",
			Help: "Current average LLM cost per article in USD, target: <= 0.05",
		},
	)

	// SLOAverageQuality tracks the current average quality score of accepted items (0-1)
	SLOAverageQuality = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_average_quality_score",
			Help: "Current average quality score of accepted items (0-1), target: >= 0.60",
		},
	)

	// SLOProcessingLatencyP95 tracks the current p95 of topic processing in seconds
	// calculated from the queue_handle_duration_seconds histogram
	SLOProcessingLatencyP95 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_processing_latency_p95_seconds",
			Help: "Current p95 topic processing latency in seconds, target: 30",
		},
	)
)

// UpdateSuccessRate updates the topic success rate SLO metric.
// Call this with the session tracker's derived success_rate after each batch.
func UpdateSuccessRate(ratio float64) {
	SLOSuccessRate.Set(ratio)
}

// UpdateCostPerArticle updates the cost-per-article SLO metric.
// Call this with the session tracker's derived cost_per_article after each batch.
func UpdateCostPerArticle(usd float64) {
	SLOCostPerArticle.Set(usd)
}

// UpdateAverageQuality updates the average quality score SLO metric.
func UpdateAverageQuality(score float64) {
	SLOAverageQuality.Set(score)
}

// UpdateProcessingLatencyP95 updates the p95 processing latency SLO metric.
//
// Example using Prometheus query:
//
//	histogram_quantile(0.95, rate(queue_handle_duration_seconds_bucket[5m]))
func UpdateProcessingLatencyP95(seconds float64) {
	SLOProcessingLatencyP95.Set(seconds)
}
