package model

import (
	"time"

	"gorm.io/datatypes"
)

// User is a candidate keyed by their messenger id. Unlocked stages and test
// results are serialized JSON columns: the set of stages grows
// monotonically, and a test result is written exactly once per test.
type User struct {
	TelegramID     int64                               `gorm:"primaryKey;autoIncrement:false" json:"telegram_id"`
	Username       string                              `json:"username"`
	FirstName      string                              `json:"first_name,omitempty"`
	LastName       string                              `json:"last_name,omitempty"`
	UnlockedStages datatypes.JSONSlice[string]         `json:"unlocked_stages"`
	TestResults    datatypes.JSONType[map[string]bool] `json:"test_results"`
	RegisteredAt   time.Time                           `json:"registered_at" gorm:"autoCreateTime"`
	CreatedAt      time.Time                           `json:"created_at"`
	UpdatedAt      time.Time                           `json:"updated_at"`
}
