package llm

import (
	"fmt"
	"math"
)

// ModelPricing holds USD prices per 1,000 tokens.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PricingTable maps model identifiers to token prices. Exported so cost
// expectations in tests stay in lockstep with the table. Unknown models
// fall back to the cheapest row.
var PricingTable = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":                {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4-turbo":                {InputPer1K: 0.01, OutputPer1K: 0.03},
	"gpt-3.5-turbo":              {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"claude-sonnet-4-5-20250929": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku-20241022":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
}

// Cost computes the USD cost of one generation, rounded to 6 decimals.
// Negative token counts are a caller bug and return an error.
func Cost(model string, inputTokens, outputTokens int) (float64, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return 0, fmt.Errorf("negative token count: input=%d output=%d", inputTokens, outputTokens)
	}

	pricing, ok := PricingTable[model]
	if !ok {
		pricing = cheapestPricing()
	}

	cost := float64(inputTokens)/1000.0*pricing.InputPer1K +
		float64(outputTokens)/1000.0*pricing.OutputPer1K
	return math.Round(cost*1e6) / 1e6, nil
}

// cheapestPricing returns the lowest-priced table row. Ties break on the
// model name so the fallback is stable across map iteration order.
func cheapestPricing() ModelPricing {
	var (
		best     ModelPricing
		bestName string
		found    bool
	)
	for name, pricing := range PricingTable {
		total := pricing.InputPer1K + pricing.OutputPer1K
		bestTotal := best.InputPer1K + best.OutputPer1K
		if !found || total < bestTotal || (total == bestTotal && name < bestName) {
			best = pricing
			bestName = name
			found = true
		}
	}
	return best
}
