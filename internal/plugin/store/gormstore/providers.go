package gormstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// CreateProvider inserts p. When p is the default, any previous default of
// the same user is cleared in the same transaction.
func (s *Store) CreateProvider(ctx context.Context, p *model.Provider) (*model.Provider, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, &registrystore.InvalidArgumentError{Field: "userId", Message: "is required"}
	}
	row := *p
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := model.Now()
	row.CreatedAt = now
	row.UpdatedAt = now
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.IsDefault {
			if err := clearDefaultProvider(tx, row.UserID, now); err != nil {
				return err
			}
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &registrystore.ConflictError{Message: "provider already exists", Code: registrystore.CodeDuplicateKey}
		}
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return &row, nil
}

func (s *Store) GetProvider(ctx context.Context, userID string, providerID string) (*model.Provider, error) {
	var rows []model.Provider
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", providerID, userID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) ListProviders(ctx context.Context, userID string) ([]model.Provider, error) {
	rows := []model.Provider{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").Order("name").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return rows, nil
}

func (s *Store) UpdateProviderAPIKey(ctx context.Context, userID string, providerID string, apiKey *string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Provider{}).
		Where("id = ? AND user_id = ?", providerID, userID).
		Updates(map[string]any{"api_key": apiKey, "updated_at": model.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update provider api key: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetDefaultProvider clears every default of the user and sets one, in one
// transaction so no reader sees zero or two defaults.
func (s *Store) SetDefaultProvider(ctx context.Context, userID string, providerID string) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Provider{}).
			Where("id = ? AND user_id = ?", providerID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		now := model.Now()
		if err := clearDefaultProvider(tx, userID, now); err != nil {
			return err
		}
		result := tx.Model(&model.Provider{}).
			Where("id = ? AND user_id = ?", providerID, userID).
			Updates(map[string]any{"is_default": true, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to set default provider: %w", err)
	}
	return changed, nil
}

func clearDefaultProvider(tx *gorm.DB, userID string, now model.Timestamp) error {
	return tx.Model(&model.Provider{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Updates(map[string]any{"is_default": false, "updated_at": now}).Error
}

func (s *Store) DeleteProvider(ctx context.Context, userID string, providerID string) (bool, error) {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", providerID, userID).Delete(&model.Provider{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete provider: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
