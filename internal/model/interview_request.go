package model

import "time"

// InterviewRequest is a candidate's preferred interview slot. Day is a
// localized weekday (Mon..Fri), time one of the fixed two-hour windows.
type InterviewRequest struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	TelegramID    int64      `json:"telegram_id" gorm:"not null;index"`
	PreferredDay  string     `json:"preferred_day" gorm:"not null"`
	PreferredTime string     `json:"preferred_time" gorm:"not null"`
	Status        string     `json:"status" gorm:"default:'pending';index"`
	Response      string     `json:"response,omitempty" gorm:"type:text"`
	RequestedAt   time.Time  `json:"requested_at" gorm:"autoCreateTime"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}
