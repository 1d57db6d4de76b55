package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validItem() StandardItem {
	return StandardItem{
		ID:          "abc123",
		Title:       "Understanding Go Concurrency",
		Content:     "Goroutines and channels form the backbone of concurrent Go programs.",
		Source:      SourceReddit,
		URL:         "https://reddit.com/r/golang/abc123",
		CollectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata: map[string]any{
			MetaSubreddit: "golang",
			MetaScore:     142,
			MetaAuthor:    "gopher",
		},
	}
}

func TestStandardItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StandardItem)
		wantErr bool
		field   string
	}{
		{name: "valid item", mutate: func(i *StandardItem) {}, wantErr: false},
		{name: "missing id", mutate: func(i *StandardItem) { i.ID = "" }, wantErr: true, field: "id"},
		{name: "missing title", mutate: func(i *StandardItem) { i.Title = "" }, wantErr: true, field: "title"},
		{name: "missing content", mutate: func(i *StandardItem) { i.Content = "" }, wantErr: true, field: "content"},
		{name: "unknown source", mutate: func(i *StandardItem) { i.Source = "usenet" }, wantErr: true, field: "source"},
		{name: "zero collected_at", mutate: func(i *StandardItem) { i.CollectedAt = time.Time{} }, wantErr: true, field: "collected_at"},
		{name: "null metadata value", mutate: func(i *StandardItem) { i.Metadata["score"] = nil }, wantErr: true, field: "metadata.score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)

			err := item.Validate()

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestStandardItem_MetaAccessors(t *testing.T) {
	item := validItem()

	assert.Equal(t, "golang", item.MetaString(MetaSubreddit))
	assert.Equal(t, "", item.MetaString("missing"))
	assert.Equal(t, "", item.MetaString(MetaScore), "non-string value yields empty string")

	assert.Equal(t, 142, item.MetaInt(MetaScore))
	assert.Equal(t, 0, item.MetaInt("missing"))
	assert.Equal(t, 0, item.MetaInt(MetaAuthor), "non-numeric value yields zero")
}

// After a JSON round trip metadata numbers come back as float64; the
// accessors must still read them.
func TestStandardItem_MetaIntAfterJSONRoundTrip(t *testing.T) {
	item := validItem()

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var decoded StandardItem
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, 142, decoded.MetaInt(MetaScore))
	assert.Equal(t, "golang", decoded.MetaString(MetaSubreddit))
}

func TestStandardItem_SourceURL(t *testing.T) {
	item := validItem()
	assert.Equal(t, item.URL, item.SourceURL(), "falls back to canonical URL")

	item.Metadata[MetaSourceURL] = "https://example.com/original"
	assert.Equal(t, "https://example.com/original", item.SourceURL(), "metadata source_url wins")

	item.Metadata = nil
	item.URL = ""
	assert.Equal(t, "", item.SourceURL())
}
