package entity

// ArticleArtifact is the enriched article written by the topic processor to
// the processed-content container at articles/YYYY-MM-DD/{slug}.json.
// Artifacts are write-once; reprocessing the same topic on the same day
// overwrites the identical path with identical content.
type ArticleArtifact struct {
	// Title is the LLM-generated article headline.
	Title string `json:"title"`

	// Slug is the URL-safe identifier derived from the title.
	Slug string `json:"slug"`

	// SEOTitle is the title truncated to at most 60 characters.
	SEOTitle string `json:"seo_title"`

	// PublishedDate is the UTC publication instant in ISO-8601 form.
	// Stored as a string so artifacts written with or without a timezone
	// offset or fractional seconds stay readable.
	PublishedDate string `json:"published_date"`

	// Content is the Markdown article body.
	Content string `json:"content"`

	// ArticleContent is an alternate body field accepted for compatibility
	// with older artifacts; renderers fall back to it when Content is empty.
	ArticleContent string `json:"article_content,omitempty"`

	// SourceMetadata carries the original source tag, source_url and any
	// passthrough attributes from the collected item.
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`

	// Cost is the LLM spend for this article in USD.
	Cost float64 `json:"cost"`

	// QualityScore is the editorial score assigned at collection time.
	QualityScore float64 `json:"quality_score"`

	// WordCount is the number of words in the article body.
	WordCount int `json:"word_count"`

	// Optional front-matter fields.
	Author   string   `json:"author,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`

	// Optional hero image block.
	HeroImage   string `json:"hero_image,omitempty"`
	ImageAlt    string `json:"image_alt,omitempty"`
	ImageCredit string `json:"image_credit,omitempty"`

	// TopicID links the artifact back to the queue message that produced it.
	TopicID string `json:"topic_id,omitempty"`
}

// Validate checks the fields every consumer of an artifact relies on.
func (a *ArticleArtifact) Validate() error {
	if a.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if a.Slug == "" {
		return &ValidationError{Field: "slug", Message: "slug is required"}
	}
	if a.PublishedDate == "" {
		return &ValidationError{Field: "published_date", Message: "published_date is required"}
	}
	if len(a.SEOTitle) > 0 && len([]rune(a.SEOTitle)) > 60 {
		return &ValidationError{Field: "seo_title", Message: "seo_title must be at most 60 characters"}
	}
	return nil
}

// SourceTag returns the original source tag recorded in the artifact's
// source metadata, or "" when absent.
func (a *ArticleArtifact) SourceTag() string {
	if a.SourceMetadata == nil {
		return ""
	}
	if s, ok := a.SourceMetadata["source"].(string); ok {
		return s
	}
	return ""
}

// SourceURL returns the original item link recorded in the artifact's
// source metadata, or "" when absent.
func (a *ArticleArtifact) SourceURL() string {
	if a.SourceMetadata == nil {
		return ""
	}
	if s, ok := a.SourceMetadata[MetaSourceURL].(string); ok {
		return s
	}
	return ""
}

// Body returns the article body: Content when set, otherwise the legacy
// ArticleContent field. An empty return means front matter only.
func (a *ArticleArtifact) Body() string {
	if a.Content != "" {
		return a.Content
	}
	return a.ArticleContent
}
