package review_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"contentmill/internal/domain/entity"
	"contentmill/internal/usecase/review"
)

func validItem() *entity.StandardItem {
	return &entity.StandardItem{
		ID:     "abc",
		Title:  "Understanding Python Async",
		Source: entity.SourceReddit,
		Content: "Python's async model builds on an event loop that schedules coroutines " +
			"cooperatively. This post walks through how await points interact with the " +
			"scheduler and where blocking calls sneak in. It covers task creation, " +
			"cancellation semantics, and the difference between CPU-bound and IO-bound " +
			"workloads, then closes with a checklist for migrating an existing codebase " +
			"from threads to coroutines without losing throughput.",
		CollectedAt: time.Now().UTC(),
		Metadata: map[string]any{
			entity.MetaSubreddit: "programming",
			entity.MetaScore:     100,
		},
	}
}

func TestReviewAcceptsValidItem(t *testing.T) {
	ok, reason := review.Review(validItem(), true)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestReviewRejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entity.StandardItem)
		strict bool
		reason string
	}{
		{
			name:   "missing title",
			mutate: func(i *entity.StandardItem) { i.Title = "" },
			reason: review.ReasonMissingRequiredField,
		},
		{
			name:   "missing content",
			mutate: func(i *entity.StandardItem) { i.Content = "" },
			reason: review.ReasonMissingRequiredField,
		},
		{
			name:   "missing id",
			mutate: func(i *entity.StandardItem) { i.ID = "" },
			reason: review.ReasonMissingRequiredField,
		},
		{
			name:   "unknown source tag",
			mutate: func(i *entity.StandardItem) { i.Source = "usenet" },
			reason: review.ReasonInvalidFieldType,
		},
		{
			name:   "null metadata value",
			mutate: func(i *entity.StandardItem) { i.Metadata["score"] = nil },
			reason: review.ReasonInvalidFieldType,
		},
		{
			name:   "short title",
			mutate: func(i *entity.StandardItem) { i.Title = "Too short" },
			reason: review.ReasonTitleTooShort,
		},
		{
			name:   "short content",
			mutate: func(i *entity.StandardItem) { i.Content = "barely anything here" },
			reason: review.ReasonContentTooShort,
		},
		{
			name:   "unreadable title",
			mutate: func(i *entity.StandardItem) { i.Title = "$$$###!!!@@@^^^&&&***" },
			reason: review.ReasonTitleNotReadable,
		},
		{
			name: "markup dominant content",
			mutate: func(i *entity.StandardItem) {
				i.Content = strings.Repeat("<div><span>{x}</span></div>", 20)
			},
			reason: review.ReasonContentMostlyMarkup,
		},
		{
			name: "no technical keywords in strict mode",
			mutate: func(i *entity.StandardItem) {
				i.Title = "My favourite breakfast recipes"
				i.Content = strings.Repeat("Pancakes and maple syrup make a great morning. ", 5)
			},
			strict: true,
			reason: review.ReasonNoTechnicalKeywords,
		},
		{
			name: "offtopic community in strict mode",
			mutate: func(i *entity.StandardItem) {
				i.Metadata[entity.MetaSubreddit] = "showerthoughts"
			},
			strict: true,
			reason: review.ReasonOfftopicSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(item)
			ok, reason := review.Review(item, tt.strict)
			assert.False(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestReviewRelaxedModeSkipsRelevance(t *testing.T) {
	item := validItem()
	item.Title = "My favourite breakfast recipes"
	item.Content = strings.Repeat("Pancakes and maple syrup make a great morning. ", 5)

	ok, reason := review.Review(item, false)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestReviewNilItem(t *testing.T) {
	ok, reason := review.Review(nil, false)
	assert.False(t, ok)
	assert.Equal(t, review.ReasonMissingRequiredField, reason)
}
