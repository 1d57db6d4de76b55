// Package session aggregates per-process pipeline statistics: topics,
// articles, tokens, spend and quality. Counters only ever grow, so any
// goroutine may record without coordination and Snapshot is a consistent
// read of monotonically increasing values.
package session

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"contentmill/internal/observability/slo"
)

// Tracker accumulates counters for one processor instance. Fractional
// quantities are stored scaled to integers (micro-dollars, milli-quality,
// nanoseconds) so plain atomic adds suffice.
type Tracker struct {
	processorID string
	startedAt   time.Time

	topicsProcessed atomic.Int64
	topicsFailed    atomic.Int64
	articles        atomic.Int64
	inputTokens     atomic.Int64
	outputTokens    atomic.Int64
	microUSD        atomic.Int64
	words           atomic.Int64
	qualityMilli    atomic.Int64
	processingNanos atomic.Int64
}

// NewTracker creates a tracker for the given processor identity.
func NewTracker(processorID string) *Tracker {
	return &Tracker{
		processorID: processorID,
		startedAt:   time.Now().UTC(),
	}
}

// ProcessorID returns the identity used for leases and attempt records.
func (t *Tracker) ProcessorID() string { return t.processorID }

// RecordTopic records the outcome and duration of one topic attempt.
func (t *Tracker) RecordTopic(success bool, duration time.Duration) {
	if success {
		t.topicsProcessed.Add(1)
	} else {
		t.topicsFailed.Add(1)
	}
	t.processingNanos.Add(duration.Nanoseconds())
}

// RecordArticle records the usage and editorial numbers of one generated
// article. Call it only for successful generations.
func (t *Tracker) RecordArticle(inputTokens, outputTokens int, costUSD, qualityScore float64, wordCount int) {
	t.articles.Add(1)
	t.inputTokens.Add(int64(inputTokens))
	t.outputTokens.Add(int64(outputTokens))
	t.microUSD.Add(int64(math.Round(costUSD * 1e6)))
	t.qualityMilli.Add(int64(math.Round(qualityScore * 1000)))
	t.words.Add(int64(wordCount))
}

// Snapshot is a point-in-time view of the session with derived metrics.
type Snapshot struct {
	ProcessorID       string  `json:"processor_id"`
	StartedAt         string  `json:"started_at"`
	TopicsProcessed   int64   `json:"topics_processed"`
	TopicsFailed      int64   `json:"topics_failed"`
	ArticlesGenerated int64   `json:"articles_generated"`
	InputTokens       int64   `json:"input_tokens"`
	OutputTokens      int64   `json:"output_tokens"`
	TotalTokens       int64   `json:"total_tokens"`
	CostUSD           float64 `json:"cost_usd"`
	ProcessingSeconds float64 `json:"processing_seconds"`
	CostPerArticle    float64 `json:"cost_per_article"`
	WordsPerArticle   float64 `json:"words_per_article"`
	SuccessRate       float64 `json:"success_rate"`
	AverageQuality    float64 `json:"average_quality"`
}

// Snapshot derives the session metrics from the current counter values.
func (t *Tracker) Snapshot() Snapshot {
	var (
		processed = t.topicsProcessed.Load()
		failed    = t.topicsFailed.Load()
		articles  = t.articles.Load()
		input     = t.inputTokens.Load()
		output    = t.outputTokens.Load()
		micro     = t.microUSD.Load()
		words     = t.words.Load()
		quality   = t.qualityMilli.Load()
		nanos     = t.processingNanos.Load()
	)

	s := Snapshot{
		ProcessorID:       t.processorID,
		StartedAt:         t.startedAt.Format(time.RFC3339),
		TopicsProcessed:   processed,
		TopicsFailed:      failed,
		ArticlesGenerated: articles,
		InputTokens:       input,
		OutputTokens:      output,
		TotalTokens:       input + output,
		CostUSD:           float64(micro) / 1e6,
		ProcessingSeconds: time.Duration(nanos).Seconds(),
	}

	if articles > 0 {
		s.CostPerArticle = s.CostUSD / float64(articles)
		s.WordsPerArticle = float64(words) / float64(articles)
		s.AverageQuality = float64(quality) / 1000.0 / float64(articles)
	}
	if total := processed + failed; total > 0 {
		s.SuccessRate = float64(processed) / float64(total)
	}

	return s
}

// PublishSLO pushes the snapshot's derived metrics to the SLO gauges.
// Returns the snapshot so callers can attach it to a response payload.
func (t *Tracker) PublishSLO() Snapshot {
	s := t.Snapshot()
	slo.UpdateSuccessRate(s.SuccessRate)
	slo.UpdateCostPerArticle(s.CostPerArticle)
	slo.UpdateAverageQuality(s.AverageQuality)
	return s
}

// LogSummary writes the session totals, typically at shutdown.
func (t *Tracker) LogSummary(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s := t.Snapshot()
	logger.Info("session summary",
		slog.String("processor_id", s.ProcessorID),
		slog.Int64("topics_processed", s.TopicsProcessed),
		slog.Int64("topics_failed", s.TopicsFailed),
		slog.Int64("articles_generated", s.ArticlesGenerated),
		slog.Int64("total_tokens", s.TotalTokens),
		slog.Float64("cost_usd", s.CostUSD),
		slog.Float64("cost_per_article", s.CostPerArticle),
		slog.Float64("words_per_article", s.WordsPerArticle),
		slog.Float64("success_rate", s.SuccessRate),
		slog.Float64("average_quality", s.AverageQuality),
		slog.Float64("processing_seconds", s.ProcessingSeconds))
}
