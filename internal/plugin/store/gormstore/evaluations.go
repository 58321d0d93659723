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

// CreateEvaluation inserts the evaluation and its model rows in one transaction.
func (s *Store) CreateEvaluation(ctx context.Context, e *model.Evaluation) (*model.Evaluation, error) {
	if strings.TrimSpace(e.UserID) == "" {
		return nil, &registrystore.InvalidArgumentError{Field: "userId", Message: "is required"}
	}
	row := *e
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := model.Now()
	row.CreatedAt = now
	row.Models = make([]model.EvaluationModel, len(e.Models))
	for i, m := range e.Models {
		m.ID = 0
		m.EvaluationID = row.ID
		m.CreatedAt = now
		row.Models[i] = m
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(row.Models) == 0 {
			return nil
		}
		return tx.Create(&row.Models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation: %w", err)
	}
	return &row, nil
}

func (s *Store) GetEvaluation(ctx context.Context, userID string, evaluationID string) (*model.Evaluation, error) {
	db := s.db.WithContext(ctx)
	var rows []model.Evaluation
	if err := db.Where("id = ? AND user_id = ?", evaluationID, userID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	eval := rows[0]
	eval.Models = []model.EvaluationModel{}
	if err := db.Where("evaluation_id = ?", eval.ID).Order("id").Find(&eval.Models).Error; err != nil {
		return nil, fmt.Errorf("failed to get evaluation models: %w", err)
	}
	return &eval, nil
}

func (s *Store) DeleteEvaluation(ctx context.Context, userID string, evaluationID string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Evaluation{}).
			Where("id = ? AND user_id = ?", evaluationID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if err := tx.Where("evaluation_id = ?", evaluationID).Delete(&model.EvaluationModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", evaluationID).Delete(&model.Evaluation{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete evaluation: %w", err)
	}
	return deleted, nil
}
