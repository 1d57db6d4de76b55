package entity

import "time"

// TopicStatus is the lifecycle state of one topic in the processor.
// Transitions: pending → processing → completed | failed.
type TopicStatus string

// Topic lifecycle states.
const (
	TopicPending    TopicStatus = "pending"
	TopicProcessing TopicStatus = "processing"
	TopicCompleted  TopicStatus = "completed"
	TopicFailed     TopicStatus = "failed"
)

// ProcessingAttempt records a single processor attempt at one topic.
type ProcessingAttempt struct {
	AttemptID    string      `json:"attempt_id"`
	ProcessorID  string      `json:"processor_id"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Status       TopicStatus `json:"status"`
	TokensUsed   int         `json:"tokens_used"`
	CostUSD      float64     `json:"cost_usd"`
	QualityScore *float64    `json:"quality_score,omitempty"`
	WordCount    *int        `json:"word_count,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// TopicState tracks the attempt history and cumulative totals for one
// topic_id. It is persisted as a blob for audit and idempotency checks;
// mutual exclusion between processors comes from the lease store, not
// from this record.
type TopicState struct {
	TopicID        string              `json:"topic_id"`
	Status         TopicStatus         `json:"status"`
	Attempts       []ProcessingAttempt `json:"attempts,omitempty"`
	CurrentLease   string              `json:"current_lease,omitempty"`
	LeaseExpiresAt *time.Time          `json:"lease_expires_at,omitempty"`
	TotalTokens    int                 `json:"total_tokens"`
	TotalCostUSD   float64             `json:"total_cost_usd"`

	// ArtifactBlob is the processed-content path written by the successful
	// attempt. A redelivery that finds the topic completed re-enqueues this
	// path instead of generating the article again.
	ArtifactBlob string `json:"artifact_blob,omitempty"`
}

// NewTopicState returns a fresh pending state for the given topic.
func NewTopicState(topicID string) *TopicState {
	return &TopicState{TopicID: topicID, Status: TopicPending}
}

// BeginAttempt appends a new processing attempt owned by processorID and
// moves the topic to the processing state. The returned pointer refers to
// the attempt inside the state's slice; callers finish it via
// CompleteAttempt or FailAttempt.
func (s *TopicState) BeginAttempt(attemptID, processorID string, leaseExpiry time.Time) *ProcessingAttempt {
	s.Attempts = append(s.Attempts, ProcessingAttempt{
		AttemptID:   attemptID,
		ProcessorID: processorID,
		StartedAt:   time.Now().UTC(),
		Status:      TopicProcessing,
	})
	s.Status = TopicProcessing
	s.CurrentLease = processorID
	expiry := leaseExpiry.UTC()
	s.LeaseExpiresAt = &expiry
	return &s.Attempts[len(s.Attempts)-1]
}

// CompleteAttempt marks the latest attempt successful, folds its usage into
// the cumulative totals and clears the lease.
func (s *TopicState) CompleteAttempt(tokens int, costUSD float64, qualityScore float64, wordCount int) {
	a := s.latestAttempt()
	if a == nil {
		return
	}
	now := time.Now().UTC()
	a.CompletedAt = &now
	a.Status = TopicCompleted
	a.TokensUsed = tokens
	a.CostUSD = costUSD
	a.QualityScore = &qualityScore
	a.WordCount = &wordCount

	s.Status = TopicCompleted
	s.TotalTokens += tokens
	s.TotalCostUSD += costUSD
	s.clearLease()
}

// FailAttempt marks the latest attempt failed with the given reason, folds
// any partial usage into the totals and clears the lease.
func (s *TopicState) FailAttempt(reason string, tokens int, costUSD float64) {
	a := s.latestAttempt()
	if a == nil {
		return
	}
	now := time.Now().UTC()
	a.CompletedAt = &now
	a.Status = TopicFailed
	a.TokensUsed = tokens
	a.CostUSD = costUSD
	a.Error = reason

	s.Status = TopicFailed
	s.TotalTokens += tokens
	s.TotalCostUSD += costUSD
	s.clearLease()
}

func (s *TopicState) latestAttempt() *ProcessingAttempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}

func (s *TopicState) clearLease() {
	s.CurrentLease = ""
	s.LeaseExpiresAt = nil
}
