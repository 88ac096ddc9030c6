package repository

import (
	"gorm.io/gorm"

	"github.com/vkotov/talentflow/internal/model"
)

type MessageRepository interface {
	Create(message *model.DeveloperMessage) error
	ListUnread() ([]model.DeveloperMessage, error)
	MarkRead(ids []uint) error
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(message *model.DeveloperMessage) error {
	return r.db.Create(message).Error
}

func (r *messageRepository) ListUnread() ([]model.DeveloperMessage, error) {
	var messages []model.DeveloperMessage
	if err := r.db.Where("read = ?", false).
		Order("created_at asc").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) MarkRead(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&model.DeveloperMessage{}).
		Where("id IN ?", ids).Update("read", true).Error
}
