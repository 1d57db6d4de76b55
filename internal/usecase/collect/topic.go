package collect

import (
	"time"

	"github.com/google/uuid"

	"contentmill/internal/domain/entity"
)

// topicHashPrefix is how many content-hash characters the fallback topic
// id keeps.
const topicHashPrefix = 12

// TopicID returns the queue identity for an item: the source-scoped item
// id when present, otherwise a prefix of the content hash so a retried
// item maps back to the same topic, and only as a last resort a random id.
func TopicID(item *entity.StandardItem, contentHash string) string {
	if item.ID != "" {
		return item.ID
	}
	if len(contentHash) >= topicHashPrefix {
		return "topic_" + contentHash[:topicHashPrefix]
	}
	return uuid.New().String()
}

// buildTopicMessage flattens an accepted item into the processing-queue
// payload. The content hash rides along so the processor can stamp it into
// the artifact for same-day dedup.
func buildTopicMessage(item *entity.StandardItem, collectionID, collectionBlob string, score float64, contentHash string) *entity.TopicMessage {
	return &entity.TopicMessage{
		TopicID:        TopicID(item, contentHash),
		Title:          item.Title,
		Source:         item.Source,
		CollectedAt:    item.CollectedAt.UTC().Format(time.RFC3339),
		PriorityScore:  score,
		CollectionID:   collectionID,
		CollectionBlob: collectionBlob,
		Subreddit:      item.MetaString(entity.MetaSubreddit),
		URL:            item.SourceURL(),
		Upvotes:        item.Upvotes(),
		Comments:       item.MetaInt(entity.MetaComments),
		Boosts:         item.MetaInt(entity.MetaBoosts),
		Author:         item.MetaString(entity.MetaAuthor),
		ContentHash:    contentHash,
	}
}
