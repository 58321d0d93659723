package gormstore

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// InsertToolCalls records the calls emitted by a message. A call without an
// explicit index takes its position in the batch.
func (s *Store) InsertToolCalls(ctx context.Context, conversationID string, messageID string, calls []registrystore.ToolCallInput) ([]model.ToolCall, error) {
	if len(calls) == 0 {
		return []model.ToolCall{}, nil
	}
	now := model.Now()
	rows := make([]model.ToolCall, len(calls))
	for i, c := range calls {
		if strings.TrimSpace(c.ID) == "" {
			return nil, &registrystore.InvalidArgumentError{Field: "toolCalls.id", Message: "is required"}
		}
		index := i
		if c.CallIndex != nil {
			index = *c.CallIndex
		}
		rows[i] = model.ToolCall{
			ID:             c.ID,
			MessageID:      messageID,
			ConversationID: conversationID,
			CallIndex:      index,
			ToolName:       c.ToolName,
			Arguments:      c.Arguments,
			TextOffset:     c.TextOffset,
			CreatedAt:      now,
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireMessage(tx, conversationID, messageID); err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			if isUniqueViolation(err) {
				return &registrystore.ConflictError{
					Message: fmt.Sprintf("duplicate tool call id on message %s", messageID),
					Code:    registrystore.CodeDuplicateToolCall,
				}
			}
			return err
		}
		return touchConversation(tx, conversationID, now)
	})
	if err != nil {
		if registrystore.IsConflict(err) || registrystore.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert tool calls: %w", err)
	}
	return rows, nil
}

// InsertToolOutputs records tool results. Several outputs may reference the
// same call.
func (s *Store) InsertToolOutputs(ctx context.Context, conversationID string, messageID string, outputs []registrystore.ToolOutputInput) ([]model.ToolOutput, error) {
	if len(outputs) == 0 {
		return []model.ToolOutput{}, nil
	}
	now := model.Now()
	rows := make([]model.ToolOutput, len(outputs))
	for i, o := range outputs {
		status := o.Status
		if status == "" {
			status = model.ToolOutputSuccess
		}
		switch status {
		case model.ToolOutputSuccess, model.ToolOutputError, model.ToolOutputTimeout:
		default:
			return nil, &registrystore.InvalidArgumentError{Field: "toolOutputs.status", Message: fmt.Sprintf("unknown status %q", status)}
		}
		executedAt := now
		if o.ExecutedAt != nil {
			executedAt = model.NewTimestamp(*o.ExecutedAt)
		}
		rows[i] = model.ToolOutput{
			ToolCallID:     o.ToolCallID,
			MessageID:      messageID,
			ConversationID: conversationID,
			ToolName:       o.ToolName,
			Output:         o.Output,
			Status:         status,
			ExecutedAt:     executedAt,
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireMessage(tx, conversationID, messageID); err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		return touchConversation(tx, conversationID, now)
	})
	if err != nil {
		if registrystore.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert tool outputs: %w", err)
	}
	return rows, nil
}

func requireMessage(tx *gorm.DB, conversationID string, messageID string) error {
	var count int64
	if err := tx.Model(&model.Message{}).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return nil
}

func (s *Store) ListToolCalls(ctx context.Context, messageIDs []string) ([]model.ToolCall, error) {
	calls, err := listToolCalls(s.db.WithContext(ctx), messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool calls: %w", err)
	}
	return calls, nil
}

func (s *Store) ListToolOutputs(ctx context.Context, messageIDs []string) ([]model.ToolOutput, error) {
	outputs, err := listToolOutputs(s.db.WithContext(ctx), messageIDs, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool outputs: %w", err)
	}
	return outputs, nil
}

func listToolCalls(db *gorm.DB, messageIDs []string) ([]model.ToolCall, error) {
	calls := []model.ToolCall{}
	if len(messageIDs) == 0 {
		return calls, nil
	}
	err := db.Where("message_id IN ?", messageIDs).
		Order("message_id").Order("call_index").
		Find(&calls).Error
	return calls, err
}

// listToolOutputs loads outputs owned by messageIDs plus, in the same query,
// outputs of conversationID correlated to toolCallIDs. Call ids are only
// unique within a conversation.
func listToolOutputs(db *gorm.DB, messageIDs []string, conversationID string, toolCallIDs []string) ([]model.ToolOutput, error) {
	outputs := []model.ToolOutput{}
	if len(messageIDs) == 0 && len(toolCallIDs) == 0 {
		return outputs, nil
	}
	q := db.Model(&model.ToolOutput{})
	switch {
	case len(toolCallIDs) == 0:
		q = q.Where("message_id IN ?", messageIDs)
	case len(messageIDs) == 0:
		q = q.Where("conversation_id = ? AND tool_call_id IN ?", conversationID, toolCallIDs)
	default:
		q = q.Where("(message_id IN ? OR (conversation_id = ? AND tool_call_id IN ?))", messageIDs, conversationID, toolCallIDs)
	}
	err := q.Order("executed_at").Order("id").Find(&outputs).Error
	return outputs, err
}
