package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vkotov/talentflow/internal/model"
)

type OutboxRepository interface {
	// Enqueue stores a notification for later delivery. When tx is nil the
	// repository's own handle is used; passing the reviewing transaction
	// makes the decision and its notification atomic.
	Enqueue(tx *gorm.DB, telegramID int64, kind string, payload model.OutboxPayload) error
	ListPending(limit int) ([]model.OutboxEvent, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(tx *gorm.DB, telegramID int64, kind string, payload model.OutboxPayload) error {
	if tx == nil {
		tx = r.db
	}
	event := model.OutboxEvent{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Kind:       kind,
		Payload:    datatypes.NewJSONType(payload),
		Status:     model.OutboxPending,
	}
	return tx.Create(&event).Error
}

func (r *outboxRepository) ListPending(limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	q := r.db.Where("status = ?", model.OutboxPending).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	now := time.Now()
	return r.db.Model(&model.OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":  model.OutboxSent,
		"sent_at": &now,
	}).Error
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.db.Model(&model.OutboxEvent{}).Where("id = ?", id).
		Update("status", model.OutboxFailed).Error
}
