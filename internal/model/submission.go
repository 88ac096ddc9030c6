package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SubmissionKindPractical = "practical_test"

	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// SubmissionPayload carries either an uploaded document handle or inline
// text, whichever the candidate sent.
type SubmissionPayload struct {
	Text     string `json:"text,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// Submission is a candidate artifact awaiting recruiter review. Status is
// set once: a row never leaves approved/rejected.
type Submission struct {
	ID          uint                                  `gorm:"primarykey" json:"id"`
	TelegramID  int64                                 `json:"telegram_id" gorm:"not null;index"`
	Kind        string                                `json:"kind" gorm:"not null"`
	Payload     datatypes.JSONType[SubmissionPayload] `json:"payload"`
	Status      string                                `json:"status" gorm:"default:'pending';index"`
	Feedback    string                                `json:"feedback,omitempty" gorm:"type:text"`
	SubmittedAt time.Time                             `json:"submitted_at" gorm:"autoCreateTime"`
	ReviewedAt  *time.Time                            `json:"reviewed_at,omitempty"`
}
