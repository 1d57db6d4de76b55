package process

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"unicode/utf8"

	"contentmill/internal/infra/llm"
	"contentmill/internal/observability/metrics"
)

// Default cost caps in USD.
const (
	DefaultSessionBudgetUSD = 1.00
	DefaultAttemptBudgetUSD = 0.05
)

// Budget holds the two cost caps that guard LLM spend: a per-attempt cap
// checked against the prospective cost of one generation, and a session cap
// checked against the tracker's cumulative spend. A cap of zero or less
// disables that check.
type Budget struct {
	SessionMaxUSD float64
	AttemptMaxUSD float64
}

// LoadBudget reads the caps from the environment, falling back to the
// defaults for missing or unparseable values.
//
//	PROCESS_SESSION_BUDGET_USD  total session spend cap (default 1.00)
//	PROCESS_ATTEMPT_BUDGET_USD  single attempt cap      (default 0.05)
func LoadBudget() Budget {
	return Budget{
		SessionMaxUSD: envBudget("PROCESS_SESSION_BUDGET_USD", DefaultSessionBudgetUSD),
		AttemptMaxUSD: envBudget("PROCESS_ATTEMPT_BUDGET_USD", DefaultAttemptBudgetUSD),
	}
}

func envBudget(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid budget value, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Float64("default", fallback))
		return fallback
	}
	return v
}

// Check reports whether one more attempt with the given prospective cost
// fits both caps. sessionSpentUSD is the tracker's cumulative session cost.
// A failure wraps ErrBudgetExceeded and is recorded per rejected scope.
func (b Budget) Check(sessionSpentUSD, attemptEstimateUSD float64) error {
	if b.AttemptMaxUSD > 0 && attemptEstimateUSD > b.AttemptMaxUSD {
		metrics.RecordBudgetRejection("attempt")
		return fmt.Errorf("%w: estimated attempt cost $%.6f over per-attempt cap $%.2f",
			ErrBudgetExceeded, attemptEstimateUSD, b.AttemptMaxUSD)
	}
	if b.SessionMaxUSD > 0 && sessionSpentUSD+attemptEstimateUSD > b.SessionMaxUSD {
		metrics.RecordBudgetRejection("session")
		return fmt.Errorf("%w: session spend $%.6f plus attempt $%.6f over session cap $%.2f",
			ErrBudgetExceeded, sessionSpentUSD, attemptEstimateUSD, b.SessionMaxUSD)
	}
	return nil
}

// EstimateAttemptCost bounds the cost of one generation before it is made:
// the system and user prompts at roughly four runes per input token, plus
// the full configured output allowance at the model's output price.
func EstimateAttemptCost(model, system, prompt string, maxOutputTokens int) float64 {
	inputTokens := (utf8.RuneCountInString(system) + utf8.RuneCountInString(prompt)) / 4
	if inputTokens < 1 {
		inputTokens = 1
	}
	cost, err := llm.Cost(model, inputTokens, maxOutputTokens)
	if err != nil {
		return 0
	}
	return cost
}
