package review

import (
	"sort"

	"contentmill/internal/domain/entity"
	"contentmill/internal/utils/text"
)

// DefaultThreshold is the minimum quality score an item needs to stay in
// the batch.
const DefaultThreshold = 0.60

// DefaultPerSourceCap bounds how many items one source tag may contribute
// to a ranked batch.
const DefaultPerSourceCap = 3

// Scoring signals, recorded alongside the score for observability.
const (
	SignalPaywall      = "paywall"
	SignalComparison   = "comparison"
	SignalListicle     = "listicle"
	SignalLongContent  = "long_content"
	SignalShortContent = "short_content"
)

const (
	paywallPenalty    = 0.40
	comparisonPenalty = 0.25
	listiclePenalty   = 0.20
	lengthAdjustment  = 0.10

	longContentRunes  = 2000
	shortContentRunes = 300
)

// ScoredItem pairs an item with its quality score and the signals that
// produced it.
type ScoredItem struct {
	Item    *entity.StandardItem
	Score   float64
	Signals []string
}

// Score rates an item in [0,1], starting from 1.0 and applying fixed
// penalties for paywall, comparison, and listicle signals, plus a length
// bonus or penalty. It is pure.
func Score(item *entity.StandardItem) (float64, []string) {
	score := 1.0
	var signals []string

	if IsPaywalled(item) {
		score -= paywallPenalty
		signals = append(signals, SignalPaywall)
	}
	if IsComparison(item.Title) {
		score -= comparisonPenalty
		signals = append(signals, SignalComparison)
	}
	if IsListicle(item.Title) {
		score -= listiclePenalty
		signals = append(signals, SignalListicle)
	}

	switch runes := text.CountRunes(item.Content); {
	case runes >= longContentRunes:
		score += lengthAdjustment
		signals = append(signals, SignalLongContent)
	case runes < shortContentRunes:
		score -= lengthAdjustment
		signals = append(signals, SignalShortContent)
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, signals
}

// Accept reports whether a score clears the threshold. An item scoring
// exactly at the threshold is dropped: a paywalled item with an otherwise
// clean body lands exactly on the default threshold and must not pass.
func Accept(score, threshold float64) bool {
	return score > threshold
}

// RankWithDiversity orders scored items best-first and caps how many items
// any single source tag contributes. Ties keep their input order.
func RankWithDiversity(items []ScoredItem, perSource int) []ScoredItem {
	if perSource <= 0 {
		perSource = DefaultPerSourceCap
	}

	ranked := make([]ScoredItem, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	counts := make(map[entity.Source]int)
	result := make([]ScoredItem, 0, len(ranked))
	for _, si := range ranked {
		if counts[si.Item.Source] >= perSource {
			continue
		}
		counts[si.Item.Source]++
		result = append(result, si)
	}
	return result
}
