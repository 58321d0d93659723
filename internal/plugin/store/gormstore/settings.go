package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/chirino/chat-store/internal/model"
)

// PutUserSetting upserts a value, keeping the original created_at.
func (s *Store) PutUserSetting(ctx context.Context, userID string, name string, value string) error {
	now := model.Now()
	setting := model.UserSetting{UserID: userID, Name: name, Value: value, CreatedAt: now, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to put user setting: %w", err)
	}
	return nil
}

func (s *Store) GetUserSetting(ctx context.Context, userID string, name string) (*model.UserSetting, error) {
	var settings []model.UserSetting
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Limit(1).
		Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to get user setting: %w", err)
	}
	if len(settings) == 0 {
		return nil, nil
	}
	return &settings[0], nil
}

func (s *Store) ListUserSettings(ctx context.Context, userID string) ([]model.UserSetting, error) {
	settings := []model.UserSetting{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list user settings: %w", err)
	}
	return settings, nil
}

func (s *Store) DeleteUserSetting(ctx context.Context, userID string, name string) (bool, error) {
	result := s.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).Delete(&model.UserSetting{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete user setting: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
