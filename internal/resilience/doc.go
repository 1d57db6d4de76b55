// Package resilience provides reliability and fault tolerance patterns for the pipeline.
// It includes circuit breakers and retry logic so that a misbehaving upstream
// (an LLM vendor, a source API, a scraped site) degrades one stage instead of
// cascading through the queue consumers.
//
// The package supports:
//   - Circuit breakers for external API calls (OpenAI, Anthropic, content sources)
//   - Retry logic with exponential backoff, jitter, and Retry-After hints
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.DefaultConfig("my-service"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callExternalService()
//	})
//
//	retryConfig := retry.DefaultConfig()
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience
