package model

import "time"

// DeveloperMessage is append-only; the read flag is maintained by the
// recruiter bot.
type DeveloperMessage struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	TelegramID int64     `json:"telegram_id" gorm:"not null;index"`
	Username   string    `json:"username"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	Read       bool      `json:"read" gorm:"default:false;index"`
	CreatedAt  time.Time `json:"created_at"`
}
