package repository

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vkotov/talentflow/internal/model"
)

type UserRepository interface {
	// RegisterOrRefresh creates the user on first contact and refreshes
	// the profile fields on later ones. Progress columns are never touched.
	RegisterOrRefresh(user *model.User) error
	FindByID(telegramID int64) (*model.User, error)
	// Unlock adds stages to the user's unlocked set. Already unlocked
	// stages are kept; the set only grows.
	Unlock(telegramID int64, stages []string) error
	// RecordTestResult stores a pass/fail verdict exactly once per test.
	// A second write for the same test returns ErrResultExists.
	RecordTestResult(telegramID int64, test string, passed bool) error
	// ResetProgress clears unlocked stages and test results back to the
	// initial state, keeping the registration row.
	ResetProgress(telegramID int64, initialStages []string) error
	FindAll() ([]model.User, error)
	Count() (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) RegisterOrRefresh(user *model.User) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
	}).Create(user).Error
}

func (r *userRepository) FindByID(telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, "telegram_id = ?", telegramID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Unlock(telegramID int64, stages []string) error {
	if len(stages) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "telegram_id = ?", telegramID).Error; err != nil {
			return err
		}
		merged := mergeStages(user.UnlockedStages, stages)
		return tx.Model(&user).Update("unlocked_stages", datatypes.NewJSONSlice(merged)).Error
	})
}

func (r *userRepository) RecordTestResult(telegramID int64, test string, passed bool) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "telegram_id = ?", telegramID).Error; err != nil {
			return err
		}
		results := user.TestResults.Data()
		if results == nil {
			results = make(map[string]bool)
		}
		if _, taken := results[test]; taken {
			return ErrResultExists
		}
		results[test] = passed
		return tx.Model(&user).Update("test_results", datatypes.NewJSONType(results)).Error
	})
}

func (r *userRepository) ResetProgress(telegramID int64, initialStages []string) error {
	return r.db.Model(&model.User{}).Where("telegram_id = ?", telegramID).Updates(map[string]interface{}{
		"unlocked_stages": datatypes.NewJSONSlice(initialStages),
		"test_results":    datatypes.NewJSONType(map[string]bool{}),
	}).Error
}

func (r *userRepository) FindAll() ([]model.User, error) {
	var users []model.User
	if err := r.db.Order("registered_at asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&model.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func mergeStages(current []string, extra []string) []string {
	seen := make(map[string]bool, len(current))
	merged := make([]string, 0, len(current)+len(extra))
	for _, s := range current {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	return merged
}
