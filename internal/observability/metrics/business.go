package metrics

import (
	"time"
)

// RecordItemCollected records one item pulled from the named source.
func RecordItemCollected(source string) {
	ItemsCollectedTotal.WithLabelValues(source).Inc()
}

// RecordItemRejected records one item dropped during collection.
// Reason should be a stable machine-readable string such as
// "title_too_short" or "duplicate_content".
func RecordItemRejected(source, reason string) {
	ItemsRejectedTotal.WithLabelValues(source, reason).Inc()
}

// RecordItemPublished records one item that passed all gates and was
// enqueued for topic processing.
func RecordItemPublished(source string) {
	ItemsPublishedTotal.WithLabelValues(source).Inc()
}

// RecordCollectionCycle records the duration of a full collection cycle.
func RecordCollectionCycle(duration time.Duration) {
	CollectionCycleDuration.Observe(duration.Seconds())
}

// RecordSourceFetch records a page fetch from a source.
// This metric helps track upstream latency and source health.
func RecordSourceFetch(source string, duration time.Duration) {
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordSourceFetchError records an error while fetching from a source.
func RecordSourceFetchError(source, errorType string) {
	SourceFetchErrors.WithLabelValues(source, errorType).Inc()
}

// RecordRateLimitHit records a 429 response from an upstream host.
func RecordRateLimitHit(host string) {
	RateLimitHitsTotal.WithLabelValues(host).Inc()
}

// UpdateBackoffDelay updates the current adaptive backoff gauge for a host.
// The gauge should drop back to zero after a successful response.
func UpdateBackoffDelay(host string, delay time.Duration) {
	RateLimitBackoffSeconds.WithLabelValues(host).Set(delay.Seconds())
}

// RecordQueueSend records a message sent to a queue.
func RecordQueueSend(queue, operation string) {
	QueueMessagesSentTotal.WithLabelValues(queue, operation).Inc()
}

// RecordQueueReceive records messages received from a queue.
func RecordQueueReceive(queue string, count int) {
	QueueMessagesReceivedTotal.WithLabelValues(queue).Add(float64(count))
}

// RecordQueueCompleted records a message acked after successful handling.
func RecordQueueCompleted(queue string) {
	QueueMessagesCompletedTotal.WithLabelValues(queue).Inc()
}

// RecordQueueDeadLettered records a message moved to the dead-letter queue.
func RecordQueueDeadLettered(queue, reason string) {
	QueueMessagesDeadLetteredTotal.WithLabelValues(queue, reason).Inc()
}

// RecordTopicProcessed records the outcome of one topic processing attempt.
// Status should be either "success" or "failure".
func RecordTopicProcessed(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	TopicsProcessedTotal.WithLabelValues(status).Inc()
}

// RecordLLMRequest records an LLM API call with its token usage and cost.
//
// Parameters:
//   - provider: LLM provider name (e.g., "openai", "anthropic")
//   - model: model identifier used for the request
//   - duration: end-to-end request latency
//   - inputTokens, outputTokens: usage reported by the provider
//   - costUSD: estimated cost of the call in USD
//   - success: whether the call returned a usable response
//
// Example:
//
//	start := time.Now()
//	resp, err := provider.Generate(ctx, req)
//	metrics.RecordLLMRequest("openai", model, time.Since(start),
//	    resp.InputTokens, resp.OutputTokens, cost, err == nil)
func RecordLLMRequest(provider, model string, duration time.Duration, inputTokens, outputTokens int, costUSD float64, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
	LLMRequestDuration.Observe(duration.Seconds())

	if inputTokens > 0 {
		LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
	if costUSD > 0 {
		LLMCostUSDTotal.WithLabelValues(provider, model).Add(costUSD)
	}
}

// RecordLeaseConflict records a topic skipped because another worker held the lease.
func RecordLeaseConflict() {
	LeaseConflictsTotal.Inc()
}

// RecordBudgetRejection records a topic abandoned due to a cost cap.
// Scope should be "session" or "topic".
func RecordBudgetRejection(scope string) {
	BudgetRejectionsTotal.WithLabelValues(scope).Inc()
}

// RecordMarkdownRendered records one rendered markdown document.
func RecordMarkdownRendered(template string) {
	MarkdownRenderedTotal.WithLabelValues(template).Inc()
}

// RecordSiteBuild records a static site build and its duration.
func RecordSiteBuild(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	SiteBuildsTotal.WithLabelValues(status).Inc()
	SiteBuildDuration.Observe(duration.Seconds())
}

// RecordDeploy records a completed deployment.
func RecordDeploy(filesUploaded int, duration time.Duration, rolledBack bool) {
	if filesUploaded > 0 {
		FilesDeployedTotal.Add(float64(filesUploaded))
	}
	if rolledBack {
		DeployRollbacksTotal.Inc()
	}
	DeployDuration.Observe(duration.Seconds())
}

// RecordNotificationDispatch records one announcement handed to a channel.
func RecordNotificationDispatch(channel string) {
	NotificationsDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordNotificationResult records the outcome of one announcement delivery.
func RecordNotificationResult(channel string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	NotificationsSentTotal.WithLabelValues(channel, status).Inc()
	NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationDropped records an announcement shed before sending.
// Reason should be "pool_full" or "breaker_open".
func RecordNotificationDropped(channel, reason string) {
	NotificationsDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordNotificationBreakerOpen records a channel circuit breaker opening.
func RecordNotificationBreakerOpen(channel string) {
	NotificationBreakerOpensTotal.WithLabelValues(channel).Inc()
}

// SetNotificationChannels updates the enabled channel count gauge.
func SetNotificationChannels(count int) {
	NotificationChannelsEnabled.Set(float64(count))
}

// RecordBreakerStateChange records a circuit breaker entering a new state.
func RecordBreakerStateChange(breaker, to string) {
	BreakerStateChangesTotal.WithLabelValues(breaker, to).Inc()
}

// RecordCronTrigger records one cron-fired collection wake-up.
func RecordCronTrigger(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	CronTriggersTotal.WithLabelValues(status).Inc()
}

// RecordBlobEvent records one blob-created event and how it was routed.
// Outcome should be "routed", "ignored" or "failed".
func RecordBlobEvent(container, outcome string) {
	BlobEventsTotal.WithLabelValues(container, outcome).Inc()
}

// RecordBlobOperation records a blob store operation.
// Operation should describe the call (e.g., "upload", "download", "list").
func RecordBlobOperation(operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BlobOperationsTotal.WithLabelValues(operation, result).Inc()
	BlobOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
