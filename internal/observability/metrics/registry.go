// Package metrics provides centralized Prometheus metrics for the pipeline services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collection metrics track source adapters and the collection cycle
var (
	// ItemsCollectedTotal counts items pulled from sources before any filtering
	ItemsCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "items_collected_total",
			Help: "Total number of items collected from sources",
		},
		[]string{"source"},
	)

	// ItemsRejectedTotal counts items dropped by the quality gate or deduplication
	ItemsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "items_rejected_total",
			Help: "Total number of items rejected during collection",
		},
		[]string{"source", "reason"},
	)

	// ItemsPublishedTotal counts items that entered the processing pipeline
	ItemsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "items_published_total",
			Help: "Total number of items published into the pipeline",
		},
		[]string{"source"},
	)

	// CollectionCycleDuration measures a full collection cycle
	CollectionCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collection_cycle_duration_seconds",
			Help:    "Time taken to run a full collection cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// SourceFetchDuration measures time to fetch one page from a source
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Time taken to fetch a page from a source",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		},
		[]string{"source"},
	)

	// SourceFetchErrors counts errors while fetching from sources
	SourceFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_errors_total",
			Help: "Total number of source fetch errors",
		},
		[]string{"source", "error_type"},
	)

	// RateLimitHitsTotal counts 429 responses per upstream host
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Total number of 429 responses received from upstream hosts",
		},
		[]string{"host"},
	)

	// RateLimitBackoffSeconds tracks the current adaptive backoff per host
	RateLimitBackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limit_backoff_seconds",
			Help: "Current adaptive backoff delay per upstream host",
		},
		[]string{"host"},
	)
)

// Queue metrics track message flow between pipeline stages
var (
	// QueueMessagesSentTotal counts messages enqueued per queue and operation
	QueueMessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_sent_total",
			Help: "Total number of messages sent to queues",
		},
		[]string{"queue", "operation"},
	)

	// QueueMessagesReceivedTotal counts messages received per queue
	QueueMessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_received_total",
			Help: "Total number of messages received from queues",
		},
		[]string{"queue"},
	)

	// QueueMessagesCompletedTotal counts messages acked after successful handling
	QueueMessagesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_completed_total",
			Help: "Total number of messages completed (acked)",
		},
		[]string{"queue"},
	)

	// QueueMessagesDeadLetteredTotal counts messages moved to the dead-letter queue
	QueueMessagesDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_dead_lettered_total",
			Help: "Total number of messages dead-lettered",
		},
		[]string{"queue", "reason"},
	)

	// QueueHandleDuration measures end-to-end handling time per message
	QueueHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_handle_duration_seconds",
			Help:    "Time taken to handle a queue message",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"queue"},
	)
)

// Topic processing metrics track LLM usage and cost
var (
	// TopicsProcessedTotal counts processed topics by outcome
	TopicsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topics_processed_total",
			Help: "Total number of topics processed",
		},
		[]string{"status"},
	)

	// LLMRequestsTotal counts LLM API requests by provider, model and outcome
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	// LLMTokensTotal counts tokens consumed by direction (input/output)
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "direction"},
	)

	// LLMCostUSDTotal accumulates estimated LLM spend in USD
	LLMCostUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Estimated LLM API cost in USD",
		},
		[]string{"provider", "model"},
	)

	// LLMRequestDuration measures LLM API call latency
	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// LeaseConflictsTotal counts topics skipped because another worker held the lease
	LeaseConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lease_conflicts_total",
			Help: "Total number of topic lease conflicts",
		},
	)

	// BudgetRejectionsTotal counts topics abandoned due to cost caps
	BudgetRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_rejections_total",
			Help: "Total number of topics abandoned due to cost caps",
		},
		[]string{"scope"},
	)
)

// Rendering and publishing metrics track the delivery half of the pipeline
var (
	// MarkdownRenderedTotal counts rendered markdown documents by template
	MarkdownRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markdown_rendered_total",
			Help: "Total number of markdown documents rendered",
		},
		[]string{"template"},
	)

	// SiteBuildsTotal counts site builds by outcome
	SiteBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_builds_total",
			Help: "Total number of static site builds",
		},
		[]string{"status"},
	)

	// SiteBuildDuration measures static site generator execution time
	SiteBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "site_build_duration_seconds",
			Help:    "Static site build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// FilesDeployedTotal counts files uploaded to the live site
	FilesDeployedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "files_deployed_total",
			Help: "Total number of files deployed to the live site",
		},
	)

	// DeployRollbacksTotal counts deployments rolled back from backup
	DeployRollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deploy_rollbacks_total",
			Help: "Total number of deployments rolled back",
		},
	)

	// DeployDuration measures the full build-and-deploy operation
	DeployDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deploy_duration_seconds",
			Help:    "Full build-and-deploy duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// Notification metrics track deploy announcements to outbound channels
var (
	// NotificationsDispatchedTotal counts announcements handed to a channel
	NotificationsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of deploy announcements dispatched to channels",
		},
		[]string{"channel"},
	)

	// NotificationsSentTotal counts announcement deliveries by outcome
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of deploy announcements sent",
		},
		[]string{"channel", "status"},
	)

	// NotificationDuration measures one announcement delivery, retries included
	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Time taken to deliver one deploy announcement",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// NotificationsDroppedTotal counts announcements shed before sending
	NotificationsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Total number of deploy announcements dropped before sending",
		},
		[]string{"channel", "reason"},
	)

	// NotificationBreakerOpensTotal counts circuit breaker open events
	NotificationBreakerOpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_breaker_opens_total",
			Help: "Total number of notification circuit breaker opens",
		},
		[]string{"channel"},
	)

	// NotificationChannelsEnabled reports the enabled channel count
	NotificationChannelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_channels_enabled",
			Help: "Number of enabled notification channels",
		},
	)
)

// Resilience metrics track circuit breaker behavior across all stages
var (
	// BreakerStateChangesTotal counts breaker transitions by breaker name
	// and the state entered
	BreakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_state_changes_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "to"},
	)
)

// Orchestrator metrics track pipeline triggers
var (
	// CronTriggersTotal counts cron-fired collection wake-ups by outcome
	CronTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_triggers_total",
			Help: "Total number of cron-triggered collection requests",
		},
		[]string{"status"},
	)

	// BlobEventsTotal counts blob-created events by container and outcome
	BlobEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_events_total",
			Help: "Total number of blob-created events observed",
		},
		[]string{"container", "outcome"},
	)
)

// Storage metrics track blob store performance
var (
	// BlobOperationsTotal counts blob store operations by type and result
	BlobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_operations_total",
			Help: "Total number of blob store operations",
		},
		[]string{"operation", "result"},
	)

	// BlobOperationDuration measures blob store operation latency
	BlobOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blob_operation_duration_seconds",
			Help:    "Blob store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)
)

// RecordQueueHandle records the handling duration for a message from the named queue.
func RecordQueueHandle(queue string, duration time.Duration) {
	QueueHandleDuration.WithLabelValues(queue).Observe(duration.Seconds())
}
