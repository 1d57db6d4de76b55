package collect_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/domain/entity"
	"contentmill/internal/usecase/collect"
	"contentmill/internal/usecase/dedup"
)

func TestTopicID(t *testing.T) {
	hash := dedup.HashContent("Go Runtime Scheduler Internals", "body")
	require.Len(t, hash, 64)

	t.Run("item id wins", func(t *testing.T) {
		item := &entity.StandardItem{ID: "abc123"}
		assert.Equal(t, "abc123", collect.TopicID(item, hash))
	})

	t.Run("hash prefix when id missing", func(t *testing.T) {
		item := &entity.StandardItem{}
		assert.Equal(t, "topic_"+hash[:12], collect.TopicID(item, hash))
	})

	t.Run("uuid when nothing else is usable", func(t *testing.T) {
		item := &entity.StandardItem{}
		got := collect.TopicID(item, "")
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
	})

	t.Run("deterministic for the same hash", func(t *testing.T) {
		item := &entity.StandardItem{}
		assert.Equal(t, collect.TopicID(item, hash), collect.TopicID(item, hash))
	})
}
