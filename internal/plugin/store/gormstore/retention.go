package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chirino/chat-store/internal/model"
)

// FindExpiredConversationIDs returns conversations, deleted or not, whose last
// update is older than cutoff and whose metadata does not pin them.
func (s *Store) FindExpiredConversationIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("updated_at < ?", model.NewTimestamp(cutoff)).
		Where(s.dialect.unpinnedExpr).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired conversations: %w", err)
	}
	return ids, nil
}

// DeleteConversationsHard removes the conversations with their tool outputs,
// tool calls and messages in one transaction.
func (s *Store) DeleteConversationsHard(ctx context.Context, conversationIDs []string) (int64, int64, error) {
	if len(conversationIDs) == 0 {
		return 0, 0, nil
	}
	var messages, conversations int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id IN ?", conversationIDs).Delete(&model.ToolOutput{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id IN ?", conversationIDs).Delete(&model.ToolCall{}).Error; err != nil {
			return err
		}
		result := tx.Where("conversation_id IN ?", conversationIDs).Delete(&model.Message{})
		if result.Error != nil {
			return result.Error
		}
		messages = result.RowsAffected
		result = tx.Where("id IN ?", conversationIDs).Delete(&model.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		conversations = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	return messages, conversations, nil
}
