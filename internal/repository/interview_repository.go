package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/vkotov/talentflow/internal/model"
)

type InterviewRepository interface {
	Create(request *model.InterviewRequest) error
	FindByID(id uint) (*model.InterviewRequest, error)
	// Respond records the recruiter's answer on a pending request. A
	// second answer returns ErrAlreadyReviewed.
	Respond(id uint, status string, response string) (*model.InterviewRequest, error)
	ListPending() ([]model.InterviewRequest, error)
	HasPending(telegramID int64) (bool, error)
}

type interviewRepository struct {
	db *gorm.DB
}

func NewInterviewRepository(db *gorm.DB) InterviewRepository {
	return &interviewRepository{db: db}
}

func (r *interviewRepository) Create(request *model.InterviewRequest) error {
	return r.db.Create(request).Error
}

func (r *interviewRepository) FindByID(id uint) (*model.InterviewRequest, error) {
	var request model.InterviewRequest
	if err := r.db.First(&request, id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *interviewRepository) Respond(id uint, status string, response string) (*model.InterviewRequest, error) {
	now := time.Now()
	result := r.db.Model(&model.InterviewRequest{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"response":     response,
			"responded_at": &now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyReviewed
	}
	return r.FindByID(id)
}

func (r *interviewRepository) ListPending() ([]model.InterviewRequest, error) {
	var requests []model.InterviewRequest
	if err := r.db.Where("status = ?", model.StatusPending).
		Order("requested_at asc").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *interviewRepository) HasPending(telegramID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.InterviewRequest{}).
		Where("telegram_id = ? AND status = ?", telegramID, model.StatusPending).
		Count(&count).Error
	return count > 0, err
}
