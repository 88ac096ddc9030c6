package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"

	EventSubmissionReviewed = "submission.reviewed"
	EventInterviewAnswered  = "interview.answered"
)

// OutboxPayload is the candidate-facing notification content for a
// recruiter decision.
type OutboxPayload struct {
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Feedback string `json:"feedback,omitempty"`
}

// OutboxEvent is a durable cross-bot notification. Recruiter decisions are
// enqueued in the same transaction as the status update; the dispatcher
// delivers pending rows to the candidate bot and retries failed ones.
type OutboxEvent struct {
	ID         string                            `gorm:"primaryKey;type:uuid" json:"id"`
	TelegramID int64                             `json:"telegram_id" gorm:"not null;index"`
	Kind       string                            `json:"kind" gorm:"not null"`
	Payload    datatypes.JSONType[OutboxPayload] `json:"payload"`
	Status     string                            `json:"status" gorm:"default:'pending';index"`
	CreatedAt  time.Time                         `json:"created_at"`
	SentAt     *time.Time                        `json:"sent_at,omitempty"`
}
