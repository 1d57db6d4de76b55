package entity

import "fmt"

// Operation names carried inside queue envelopes. Consumers dispatch on
// these values and dead-letter anything they do not recognize.
const (
	// OpCollectContent wakes the collector with a source list (orchestrator cron).
	OpCollectContent = "collect_content"

	// OpProcessTopic asks the processor to enrich one collected item.
	OpProcessTopic = "process_topic"

	// OpProcessCollection asks the processor to fan out a whole collection
	// blob (orchestrator blob-created path).
	OpProcessCollection = "process_collection"

	// OpMarkdownGenerated and OpGenerateMarkdown ask the renderer to turn an
	// article artifact into markdown. Both spellings are accepted on receive;
	// OpMarkdownGenerated is what the processor sends.
	OpMarkdownGenerated = "markdown_generated"
	OpGenerateMarkdown  = "generate_markdown"

	// OpRegenerateMarkdown is the operator request to re-render the N most
	// recent article artifacts.
	OpRegenerateMarkdown = "regenerate_markdown"
)

// TopicMessage is the payload of a process_topic envelope, one per item
// accepted by the collector. Timestamps travel as ISO-8601 strings so
// consumers tolerate payloads written by older producers.
type TopicMessage struct {
	TopicID        string  `json:"topic_id"`
	Title          string  `json:"title"`
	Source         Source  `json:"source"`
	CollectedAt    string  `json:"collected_at"`
	PriorityScore  float64 `json:"priority_score"`
	CollectionID   string  `json:"collection_id"`
	CollectionBlob string  `json:"collection_blob"`

	// Optional passthrough fields from the item metadata.
	Subreddit string `json:"subreddit,omitempty"`
	URL       string `json:"url,omitempty"`
	Upvotes   int    `json:"upvotes,omitempty"`
	Comments  int    `json:"comments,omitempty"`
	Boosts    int    `json:"boosts,omitempty"`
	Author    string `json:"author,omitempty"`

	// ContentHash is the collector's hash of the original title+content.
	// The processor copies it into the artifact's source metadata so the
	// same-day duplicate filter can match republished items.
	ContentHash string `json:"content_hash,omitempty"`
}

// Validate checks the required fields of a topic message. A failure here is
// non-retryable: the message is malformed and belongs in the dead-letter queue.
func (m *TopicMessage) Validate() error {
	if m.TopicID == "" {
		return &ValidationError{Field: "topic_id", Message: "topic_id is required"}
	}
	if m.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if !m.Source.Valid() {
		return &ValidationError{Field: "source", Message: "unknown source tag: " + string(m.Source)}
	}
	if m.CollectedAt == "" {
		return &ValidationError{Field: "collected_at", Message: "collected_at is required"}
	}
	if m.PriorityScore < 0 || m.PriorityScore > 1 {
		return &ValidationError{
			Field:   "priority_score",
			Message: fmt.Sprintf("priority_score must be in [0,1], got %g", m.PriorityScore),
		}
	}
	if m.CollectionID == "" {
		return &ValidationError{Field: "collection_id", Message: "collection_id is required"}
	}
	if m.CollectionBlob == "" {
		return &ValidationError{Field: "collection_blob", Message: "collection_blob is required"}
	}
	return nil
}

// CorrelationID returns the fixed-format id used to follow one item across
// every stage's logs: "<collection_id>_<topic_id>".
func (m *TopicMessage) CorrelationID() string {
	return m.CollectionID + "_" + m.TopicID
}

// CollectionRequest is the payload of a collect_content envelope (the
// orchestrator's cron wake-up).
type CollectionRequest struct {
	// Sources lists the adapter names to run; empty means all configured.
	Sources []string `json:"sources,omitempty"`

	// MaxItems caps the number of items collected this cycle; zero means
	// the collector's configured default.
	MaxItems int `json:"max_items,omitempty"`
}

// CollectionProcessingRequest is the payload of a process_collection
// envelope: the orchestrator noticed a new collection blob and asks the
// processor to expand it.
type CollectionProcessingRequest struct {
	CollectionID   string `json:"collection_id,omitempty"`
	CollectionBlob string `json:"collection_blob"`
}

// Validate checks the required fields of a collection processing request.
func (r *CollectionProcessingRequest) Validate() error {
	if r.CollectionBlob == "" {
		return &ValidationError{Field: "collection_blob", Message: "collection_blob is required"}
	}
	return nil
}

// MarkdownRequest is the payload of markdown_generated / generate_markdown
// envelopes on the markdown queue.
type MarkdownRequest struct {
	// ArticleBlob is the processed-content path of the article artifact.
	ArticleBlob string `json:"article_blob"`

	TopicID  string `json:"topic_id,omitempty"`
	Template string `json:"template,omitempty"`

	// Count is used by regenerate_markdown: re-render the N most recent
	// article artifacts instead of a single blob.
	Count int `json:"count,omitempty"`
}

// Validate checks the required fields of a markdown request.
func (r *MarkdownRequest) Validate() error {
	if r.ArticleBlob == "" && r.Count <= 0 {
		return &ValidationError{Field: "article_blob", Message: "article_blob or count is required"}
	}
	return nil
}

// PublishRequest is the payload of envelopes on the site-publishing queue.
type PublishRequest struct {
	// MarkdownBlob is the markdown-content path that triggered the build.
	// Informational: the builder always collects every markdown blob.
	MarkdownBlob string `json:"markdown_blob,omitempty"`

	// ForceRebuild skips freshness checks and always rebuilds the site.
	ForceRebuild bool `json:"force_rebuild,omitempty"`
}
