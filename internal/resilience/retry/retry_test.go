package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   5 * time.Millisecond,
		MaxDelay:       50 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestWithBackoff_FirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithBackoff_RecoversFromTransientFailures(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return &HTTPError{StatusCode: 503, Message: "upstream overloaded"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	lastErr := &HTTPError{StatusCode: 500, Message: "llm provider down"}
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return lastErr
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("final error should wrap the last failure, got %v", err)
	}
}

func TestWithBackoff_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	badRequest := &HTTPError{StatusCode: 400, Message: "malformed prompt"}
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return badRequest
	})

	if attempts != 1 {
		t.Errorf("4xx should not be retried, got %d attempts", attempts)
	}
	if !errors.Is(err, badRequest) {
		t.Errorf("expected the original error back unwrapped, got %v", err)
	}
}

func TestWithBackoff_WrappedErrorsStillClassified(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return fmt.Errorf("fetch r/programming page 2: %w",
			&HTTPError{StatusCode: 502, Message: "bad gateway"})
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("wrapped 502 should retry, got %d attempts", attempts)
	}
}

func TestWithBackoff_ContextCancelAbortsWait(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := WithBackoff(ctx, cfg, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return &HTTPError{StatusCode: 500, Message: "flaky"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("cancel during the wait should stop new attempts, got %d", attempts)
	}
}

func TestWithBackoff_HonorsRetryAfterHint(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Millisecond

	attempts := 0
	var gaps []time.Duration
	last := time.Now()
	err := WithBackoff(context.Background(), cfg, func() error {
		gaps = append(gaps, time.Since(last))
		last = time.Now()
		attempts++
		if attempts == 1 {
			return &HTTPError{
				StatusCode: 429,
				Message:    "slow down",
				RetryAfter: 40 * time.Millisecond,
			}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	// The wait before attempt 2 must follow the server hint, not the 1ms
	// schedule.
	if gaps[1] < 40*time.Millisecond {
		t.Errorf("expected >= 40ms wait from Retry-After, got %v", gaps[1])
	}
}

func TestWithBackoff_RetryAfterClampedToMaxDelay(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxDelay = 20 * time.Millisecond

	attempts := 0
	start := time.Now()
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return &HTTPError{
				StatusCode: 429,
				Message:    "slow down",
				RetryAfter: 10 * time.Second,
			}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("hint should be clamped at MaxDelay, waited %v", elapsed)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"http 500", &HTTPError{StatusCode: 500}, true},
		{"http 502", &HTTPError{StatusCode: 502}, true},
		{"http 503", &HTTPError{StatusCode: 503}, true},
		{"http 429", &HTTPError{StatusCode: 429}, true},
		{"http 408", &HTTPError{StatusCode: 408}, true},
		{"http 400", &HTTPError{StatusCode: 400}, false},
		{"http 404", &HTTPError{StatusCode: 404}, false},
		{"http 401", &HTTPError{StatusCode: 401}, false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"socket timeout", syscall.ETIMEDOUT, true},
		{"network unreachable", syscall.ENETUNREACH, true},
		{"plain error", errors.New("parse failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestConfigPresets(t *testing.T) {
	if cfg := DefaultConfig(); cfg.MaxAttempts != 3 || cfg.InitialDelay != time.Second || cfg.MaxDelay != 30*time.Second {
		t.Errorf("unexpected DefaultConfig: %+v", cfg)
	}
	if cfg := SourceFetchConfig(); cfg.MaxAttempts != 5 {
		t.Errorf("source fetches retry harder than the default, got %+v", cfg)
	}
	if cfg := LLMAPIConfig(); cfg.InitialDelay != 2*time.Second || cfg.MaxDelay != 10*time.Second {
		t.Errorf("unexpected LLMAPIConfig: %+v", cfg)
	}
	if cfg := QueueConfig(); cfg.InitialDelay != 100*time.Millisecond || cfg.MaxDelay != time.Second {
		t.Errorf("queue retries stay sub-second, got %+v", cfg)
	}
	if cfg := WebScraperConfig(); cfg.MaxAttempts != 3 {
		t.Errorf("unexpected WebScraperConfig: %+v", cfg)
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: 429, Message: "rate limited by upstream"}
	if got := err.Error(); got != "HTTP 429: rate limited by upstream" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond

	seen := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		got := addJitter(base, 0.2)
		if got < base || got > 120*time.Millisecond {
			t.Fatalf("jittered value %v outside [%v, %v]", got, base, 120*time.Millisecond)
		}
		seen[got] = true
	}
	if len(seen) < 2 {
		t.Error("jitter should vary across calls")
	}

	if got := addJitter(base, 0); got != base {
		t.Errorf("zero fraction must be a no-op, got %v", got)
	}
	if got := addJitter(base, 5.0); got < base || got > 2*base {
		t.Errorf("fraction above 1 clamps to 1, got %v", got)
	}
}
