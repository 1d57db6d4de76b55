// Package fixtures provides test data generators shared by the pipeline's
// test suites. Bodies are assembled from coherent sentences so that
// length-sensitive code (quality scoring, enhancement thresholds, prompt
// budgets) sees realistic text instead of repeated filler.
package fixtures

import (
	"strings"
)

// BodyOptions configures one generated item body.
type BodyOptions struct {
	// Runes is the target length in runes. The result lands within ±10%.
	Runes int

	// Language selects the sentence bank: "english" (default) or "japanese".
	Language string

	// IncludeEmoji mixes emoji-bearing sentences into the body.
	IncludeEmoji bool
}

// GenerateBody builds an item body matching the provided options.
//
// Example:
//
//	body := fixtures.GenerateBody(fixtures.BodyOptions{
//	    Runes:    2500,
//	    Language: "english",
//	})
func GenerateBody(opts BodyOptions) string {
	if opts.Runes <= 0 {
		opts.Runes = 1000
	}
	bank, emoji := englishSentences, englishEmojiSentences
	if opts.Language == "japanese" {
		bank, emoji = japaneseSentences, japaneseEmojiSentences
	}
	return build(bank, emoji, opts.Runes, opts.IncludeEmoji)
}

// The convenience lengths below are tuned to the quality gate's content
// bands: short bodies sit under the short-content penalty line, long bodies
// clear the long-content bonus line, neutral bodies land between the two.

// GenerateShortBody returns roughly 200 runes, inside the short-content band.
func GenerateShortBody() string {
	return GenerateBody(BodyOptions{Runes: 200})
}

// GenerateNeutralBody returns roughly 1000 runes, between the content bands.
func GenerateNeutralBody() string {
	return GenerateBody(BodyOptions{Runes: 1000})
}

// GenerateLongBody returns roughly 2500 runes, inside the long-content band.
func GenerateLongBody() string {
	return GenerateBody(BodyOptions{Runes: 2500})
}

// GenerateJapaneseBody returns roughly 2500 runes of Japanese text. Useful
// for paths where rune and byte counts diverge sharply.
func GenerateJapaneseBody() string {
	return GenerateBody(BodyOptions{Runes: 2500, Language: "japanese"})
}

// GenerateBodyWithEmoji returns roughly 2500 runes with emoji mixed in, for
// exercising Unicode handling in counting and rendering code.
func GenerateBodyWithEmoji() string {
	return GenerateBody(BodyOptions{Runes: 2500, IncludeEmoji: true})
}

// build cycles through the sentence bank until the accumulated text lands
// within ±10% of the target rune count. Emoji sentences, when enabled, are
// spread through the body rather than clustered at one end.
func build(bank, emojiBank []string, targetRunes int, includeEmoji bool) string {
	var builder strings.Builder
	currentLength := 0
	sentenceIndex := 0
	emojiIndex := 0
	emojiStride := targetRunes / 5
	if emojiStride < 1 {
		emojiStride = 1
	}

	for {
		var sentence string
		if includeEmoji && emojiIndex < len(emojiBank) && currentLength%emojiStride < 100 {
			sentence = emojiBank[emojiIndex]
			emojiIndex++
		} else {
			sentence = bank[sentenceIndex%len(bank)]
			sentenceIndex++
		}

		sentenceLength := len([]rune(sentence))
		if currentLength > 0 {
			sentenceLength++ // separating space
		}
		potentialLength := currentLength + sentenceLength

		// Once past 90% of the target, stop before overshooting 110%.
		if currentLength >= int(float64(targetRunes)*0.9) {
			if potentialLength > int(float64(targetRunes)*1.1) {
				break
			}
		}

		if currentLength > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(sentence)
		currentLength = len([]rune(builder.String()))

		if currentLength >= targetRunes {
			break
		}
	}

	return builder.String()
}

var englishSentences = []string{
	"The maintainers shipped the release after a six week stabilization window.",
	"Benchmarks on commodity hardware show a thirty percent drop in tail latency.",
	"The advisory recommends rotating credentials issued before the patch date.",
	"Cluster operators reported the regression only on nodes upgraded in place.",
	"A new storage engine trades write amplification for faster point reads.",
	"The proposal moves configuration parsing out of the hot path entirely.",
	"Contributors debated the change for months before the final design landed.",
	"Early adopters flagged memory growth under sustained connection churn.",
	"The managed offering now replicates snapshots across three regions.",
	"Static analysis caught the race before it reached a tagged release.",
	"Downstream distributions are expected to pick up the fix within the week.",
	"The team open sourced the scheduler that powered the internal platform.",
	"Observability data suggested the bottleneck lived in serialization, not IO.",
	"The deprecation timeline gives integrators two major versions to migrate.",
	"A reproducible build pipeline closed the gap between CI and production.",
}

var englishEmojiSentences = []string{
	"The rollout finished ahead of schedule 🚀✨",
	"Community response to the beta has been strong 🎉💬",
	"Dashboards stayed green through the migration 📊✅",
	"The fix landed minutes before the release cut 🔧⏱️",
	"Contributors from twelve time zones joined the sprint 🌍🤝",
}

var japaneseSentences = []string{
	"今回のリリースでは、増分バックアップと高速なレプリケーションが追加されました。",
	"メンテナーによると、この不具合は既存環境をそのまま更新した場合のみ発生します。",
	"新しいストレージエンジンは書き込み効率を犠牲にして読み取り速度を向上させます。",
	"クラウド事業者は、三つのリージョンにまたがるスナップショット複製を開始しました。",
	"静的解析によって、リリース前に競合状態が検出されました。",
	"提案された変更は、設定の解析処理を高速経路から完全に切り離すものです。",
	"ベンチマークの結果、テイルレイテンシが約三割低減したことが確認されました。",
	"コミュニティでは数か月にわたる議論の末、最終的な設計が採用されました。",
	"監視データは、ボトルネックが入出力ではなく直列化処理にあることを示していました。",
	"移行期間として、メジャーバージョン二つ分の猶予が設けられています。",
	"再現可能なビルド基盤の導入により、CIと本番環境の差異が解消されました。",
	"社内プラットフォームを支えてきたスケジューラがオープンソース化されました。",
}

var japaneseEmojiSentences = []string{
	"展開は予定より早く完了しました 🚀✨",
	"ベータ版への反応は非常に好意的です 🎉💬",
	"移行中もダッシュボードは正常のままでした 📊✅",
	"修正はリリース直前に取り込まれました 🔧⏱️",
	"世界中のコントリビューターが開発に参加しました 🌍🤝",
}
