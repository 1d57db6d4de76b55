// Package entity defines the core domain entities for the content pipeline.
// It contains the fundamental business objects such as StandardItem, ArticleArtifact
// and TopicState, along with their validation rules and domain-specific errors.
package entity

import "time"

// Source identifies the kind of upstream a StandardItem was collected from.
type Source string

// Known source tags. Adapters must emit one of these; downstream stages
// treat unknown tags as a validation failure.
const (
	SourceReddit   Source = "reddit"
	SourceMastodon Source = "mastodon"
	SourceRSS      Source = "rss"
	SourceWeb      Source = "web"
)

// Valid reports whether s is one of the known source tags.
func (s Source) Valid() bool {
	switch s {
	case SourceReddit, SourceMastodon, SourceRSS, SourceWeb:
		return true
	}
	return false
}

// Metadata keys populated by the source adapters. Values are scalars
// (string, int, float64 or bool); null values are never stored.
const (
	MetaSubreddit  = "subreddit"
	MetaScore      = "score"
	MetaUpvotes    = "upvotes"
	MetaComments   = "num_comments"
	MetaBoosts     = "boosts"
	MetaFavourites = "favourites"
	MetaAuthor     = "author"
	MetaSourceURL  = "source_url"
)

// StandardItem is the normalized record produced by every source adapter.
// Items are immutable after standardization: downstream stages read them
// but never modify them.
type StandardItem struct {
	// ID is the source-scoped unique identifier of the item.
	ID string `json:"id"`

	// Title is the item headline. Never empty after standardization.
	Title string `json:"title"`

	// Content is the item body text. Link-dominant sources fall back to
	// "Link: <url>" so the downstream length check can still pass.
	Content string `json:"content"`

	// Source is the adapter tag the item came from.
	Source Source `json:"source"`

	// URL is the optional canonical link of the item.
	URL string `json:"url,omitempty"`

	// CollectedAt is the UTC instant the item was standardized.
	CollectedAt time.Time `json:"collected_at"`

	// Metadata carries per-source scalar attributes (see Meta* keys).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of a standardized item:
// required fields present, known source tag, UTC collection time and
// no null metadata values.
func (i *StandardItem) Validate() error {
	if i.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if i.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if i.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if !i.Source.Valid() {
		return &ValidationError{Field: "source", Message: "unknown source tag: " + string(i.Source)}
	}
	if i.CollectedAt.IsZero() {
		return &ValidationError{Field: "collected_at", Message: "collected_at is required"}
	}
	for k, v := range i.Metadata {
		if v == nil {
			return &ValidationError{Field: "metadata." + k, Message: "metadata values must not be null"}
		}
	}
	return nil
}

// MetaString returns the string value stored under key, or "" when the key
// is absent or holds a non-string value.
func (i *StandardItem) MetaString(key string) string {
	if i.Metadata == nil {
		return ""
	}
	if s, ok := i.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// MetaInt returns the integer value stored under key. JSON round-trips turn
// numbers into float64, so both native ints and floats are accepted.
// Returns 0 when the key is absent or holds a non-numeric value.
func (i *StandardItem) MetaInt(key string) int {
	if i.Metadata == nil {
		return 0
	}
	switch v := i.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// SourceURL returns the best available link for the item: the source_url
// metadata entry when present, otherwise the canonical URL field.
func (i *StandardItem) SourceURL() string {
	if u := i.MetaString(MetaSourceURL); u != "" {
		return u
	}
	return i.URL
}

// Upvotes returns the vote count reported by the source. Reddit reports it
// under "score"; an explicit "upvotes" key wins when both are present.
func (i *StandardItem) Upvotes() int {
	if v := i.MetaInt(MetaUpvotes); v != 0 {
		return v
	}
	return i.MetaInt(MetaScore)
}

// CollectedContent is the collection blob written by the collector: one
// cycle's accepted items plus the identifiers downstream stages use to
// reference them.
type CollectedContent struct {
	CollectionID string         `json:"collection_id"`
	CollectedAt  time.Time      `json:"collected_at"`
	Items        []StandardItem `json:"items"`
}
