// Package review implements the quality gate applied to every collected
// item before it is queued for processing, plus the scoring signals used
// to rank the surviving batch.
package review

import (
	"strings"
	"unicode"

	"contentmill/internal/domain/entity"
	"contentmill/internal/utils/text"
)

// Rejection reasons are stable strings recorded as metric labels. Renaming
// one breaks dashboards.
const (
	ReasonMissingRequiredField = "missing_required_field"
	ReasonInvalidFieldType     = "invalid_field_type"
	ReasonTitleTooShort        = "title_too_short"
	ReasonContentTooShort      = "content_too_short"
	ReasonTitleNotReadable     = "title_not_readable"
	ReasonContentMostlyMarkup  = "content_mostly_markup"
	ReasonNoTechnicalKeywords  = "no_technical_keywords"
	ReasonOfftopicSource       = "offtopic_source"
)

const (
	minTitleRunes   = 10
	minContentRunes = 100

	// maxMarkupRatio rejects bodies dominated by raw HTML or JSON.
	maxMarkupRatio = 0.15

	// minReadableRatio is the share of title characters that must be
	// alphanumeric or whitespace.
	minReadableRatio = 0.5
)

// techKeywords is the relevance vocabulary for strict mode. An item passes
// when any keyword occurs in its title or content.
var techKeywords = []string{
	"programming", "software", "code", "developer", "engineering",
	"api", "database", "server", "cloud", "kubernetes", "docker",
	"linux", "security", "network", "python", "javascript", "typescript",
	"golang", "rust", "java", "devops", "machine learning", "data",
	"open source", "framework", "compiler", "algorithm", "infrastructure",
}

// offtopicSources lists community names that never produce technical
// content regardless of keywords.
var offtopicSources = map[string]struct{}{
	"funny":          {},
	"videos":         {},
	"showerthoughts": {},
	"pics":           {},
	"aww":            {},
	"memes":          {},
	"todayilearned":  {},
}

// Review runs the quality gate on one item: schema, readability, and (in
// strict mode) relevance. It is pure and returns the stable rejection
// reason for the first failing check, or true with an empty reason.
func Review(item *entity.StandardItem, strict bool) (bool, string) {
	// Schema.
	if item == nil || item.ID == "" || item.Title == "" || item.Content == "" || item.Source == "" {
		return false, ReasonMissingRequiredField
	}
	if !item.Source.Valid() {
		return false, ReasonInvalidFieldType
	}
	for _, v := range item.Metadata {
		if v == nil {
			return false, ReasonInvalidFieldType
		}
	}

	// Readability.
	title := strings.TrimSpace(item.Title)
	content := strings.TrimSpace(item.Content)
	if text.CountRunes(title) < minTitleRunes {
		return false, ReasonTitleTooShort
	}
	if text.CountRunes(content) < minContentRunes {
		return false, ReasonContentTooShort
	}
	if readableRatio(title) < minReadableRatio {
		return false, ReasonTitleNotReadable
	}
	if markupRatio(content) > maxMarkupRatio {
		return false, ReasonContentMostlyMarkup
	}

	// Relevance.
	if strict {
		if !hasTechKeyword(title, content) {
			return false, ReasonNoTechnicalKeywords
		}
		community := strings.ToLower(item.MetaString(entity.MetaSubreddit))
		if _, blocked := offtopicSources[community]; blocked {
			return false, ReasonOfftopicSource
		}
	}

	return true, ""
}

// readableRatio returns the share of runes that are letters, digits, or
// whitespace.
func readableRatio(s string) float64 {
	if s == "" {
		return 0
	}
	total, readable := 0, 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			readable++
		}
	}
	return float64(readable) / float64(total)
}

// markupRatio returns the share of markup-opening characters in content.
func markupRatio(content string) float64 {
	runes := text.CountRunes(content)
	if runes == 0 {
		return 0
	}
	markers := strings.Count(content, "<") + strings.Count(content, "{")
	return float64(markers) / float64(runes)
}

func hasTechKeyword(title, content string) bool {
	haystack := strings.ToLower(title + " " + content)
	for _, kw := range techKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
