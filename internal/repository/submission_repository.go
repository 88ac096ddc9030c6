package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/vkotov/talentflow/internal/model"
)

type SubmissionRepository interface {
	Create(submission *model.Submission) error
	FindByID(id uint) (*model.Submission, error)
	// Review moves a pending submission to approved or rejected. Reviewing
	// a row that already left pending returns ErrAlreadyReviewed.
	Review(id uint, status string, feedback string) (*model.Submission, error)
	ListPending() ([]model.Submission, error)
	// HasPending reports whether the candidate already has an unreviewed
	// submission of the given kind.
	HasPending(telegramID int64, kind string) (bool, error)
	ListByUser(telegramID int64) ([]model.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(submission *model.Submission) error {
	return r.db.Create(submission).Error
}

func (r *submissionRepository) FindByID(id uint) (*model.Submission, error) {
	var submission model.Submission
	if err := r.db.First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) Review(id uint, status string, feedback string) (*model.Submission, error) {
	now := time.Now()
	result := r.db.Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"feedback":    feedback,
			"reviewed_at": &now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyReviewed
	}
	return r.FindByID(id)
}

func (r *submissionRepository) ListPending() ([]model.Submission, error) {
	var submissions []model.Submission
	if err := r.db.Where("status = ?", model.StatusPending).
		Order("submitted_at asc").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) HasPending(telegramID int64, kind string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Submission{}).
		Where("telegram_id = ? AND kind = ? AND status = ?", telegramID, kind, model.StatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *submissionRepository) ListByUser(telegramID int64) ([]model.Submission, error) {
	var submissions []model.Submission
	if err := r.db.Where("telegram_id = ?", telegramID).
		Order("submitted_at desc").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
