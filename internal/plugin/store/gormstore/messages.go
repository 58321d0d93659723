package gormstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chirino/chat-store/internal/content"
	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
	"github.com/chirino/chat-store/internal/transcript"
)

func (s *Store) GetNextSeq(ctx context.Context, conversationID string) (int64, error) {
	next, err := nextSeq(s.db.WithContext(ctx), conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next seq: %w", err)
	}
	return next, nil
}

// nextSeq is max(seq)+1, starting at 1. Gaps left by deletes are not reused.
func nextSeq(tx *gorm.DB, conversationID string) (int64, error) {
	var next int64
	err := tx.Raw("SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&next).Error
	return next, err
}

func (s *Store) InsertUserMessage(ctx context.Context, conversationID string, in registrystore.MessageInput) (*model.Message, error) {
	return s.insertMessage(ctx, conversationID, model.RoleUser, model.StatusFinal, in)
}

func (s *Store) InsertAssistantMessage(ctx context.Context, conversationID string, in registrystore.MessageInput) (*model.Message, error) {
	return s.insertMessage(ctx, conversationID, model.RoleAssistant, model.StatusFinal, in)
}

func (s *Store) InsertToolMessage(ctx context.Context, conversationID string, in registrystore.MessageInput) (*model.Message, error) {
	return s.insertMessage(ctx, conversationID, model.RoleTool, model.StatusSuccess, in)
}

// CreateAssistantDraft opens a streaming assistant message with empty content.
func (s *Store) CreateAssistantDraft(ctx context.Context, conversationID string, clientMessageID *string) (*model.Message, error) {
	return s.insertMessage(ctx, conversationID, model.RoleAssistant, model.StatusStreaming, registrystore.MessageInput{
		Content:         content.Text(""),
		ClientMessageID: clientMessageID,
	})
}

func (s *Store) insertMessage(ctx context.Context, conversationID string, role model.Role, status model.MessageStatus, in registrystore.MessageInput) (*model.Message, error) {
	if in.Status != nil {
		if err := validateStatus(role, *in.Status); err != nil {
			return nil, err
		}
		status = *in.Status
	}
	details, err := reasoningDetails(in.ReasoningDetails)
	if err != nil {
		return nil, err
	}
	flat, structured := in.Content.Normalize()
	now := model.Now()
	msg := model.Message{
		ID:               uuid.NewString(),
		ConversationID:   conversationID,
		Role:             role,
		Status:           status,
		Content:          flat,
		ContentJSON:      structured,
		FinishReason:     in.FinishReason,
		ResponseID:       in.ResponseID,
		ClientMessageID:  in.ClientMessageID,
		ToolCallID:       in.ToolCallID,
		ReasoningDetails: details,
		ReasoningTokens:  clampTokens(in.ReasoningTokens),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireLiveConversation(tx, conversationID); err != nil {
			return err
		}
		seq, err := nextSeq(tx, conversationID)
		if err != nil {
			return err
		}
		msg.Seq = seq
		if err := tx.Create(&msg).Error; err != nil {
			if isUniqueViolation(err) {
				return &registrystore.ConflictError{
					Message: fmt.Sprintf("message seq %d already exists in conversation %s", seq, conversationID),
					Code:    registrystore.CodeDuplicateSeq,
					Details: map[string]interface{}{"conversationId": conversationID, "seq": seq},
				}
			}
			return err
		}
		return touchConversation(tx, conversationID, now)
	})
	if err != nil {
		if registrystore.IsConflict(err) || registrystore.IsNotFound(err) || registrystore.IsInvalidArgument(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert %s message: %w", role, err)
	}
	return &msg, nil
}

func requireLiveConversation(tx *gorm.DB, conversationID string) error {
	var count int64
	if err := tx.Model(&model.Conversation{}).
		Where("id = ? AND deleted_at IS NULL", conversationID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

// AppendAssistantContent concatenates delta onto a streaming draft. It returns
// false when the delta is empty or the message is no longer streaming.
func (s *Store) AppendAssistantContent(ctx context.Context, messageID string, delta string) (bool, error) {
	if delta == "" {
		return false, nil
	}
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := model.Now()
		result := tx.Model(&model.Message{}).
			Where("id = ? AND role = ? AND status = ?", messageID, model.RoleAssistant, model.StatusStreaming).
			Updates(map[string]any{
				"content":    gorm.Expr("content || ?", delta),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return touchConversationOfMessage(tx, messageID, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to append assistant content: %w", err)
	}
	return changed, nil
}

func touchConversationOfMessage(tx *gorm.DB, messageID string, now model.Timestamp) error {
	return tx.Exec("UPDATE conversations SET updated_at = ? WHERE id = (SELECT conversation_id FROM messages WHERE id = ?)", now, messageID).Error
}

// FinalizeAssistantMessage moves a streaming draft to final, or to error when
// f.Error is set. A message that is not streaming is left untouched.
func (s *Store) FinalizeAssistantMessage(ctx context.Context, messageID string, f registrystore.Finalize) (bool, error) {
	updates, err := finalizeUpdates(f)
	if err != nil {
		return false, err
	}
	return s.finishDraft(ctx, updates, "id = ?", messageID)
}

func (s *Store) MarkAssistantError(ctx context.Context, messageID string) (bool, error) {
	return s.FinalizeAssistantMessage(ctx, messageID, registrystore.Finalize{Error: true})
}

func (s *Store) MarkAssistantErrorBySeq(ctx context.Context, conversationID string, seq int64) (bool, error) {
	updates, err := finalizeUpdates(registrystore.Finalize{Error: true})
	if err != nil {
		return false, err
	}
	return s.finishDraft(ctx, updates, "conversation_id = ? AND seq = ?", conversationID, seq)
}

func finalizeUpdates(f registrystore.Finalize) (map[string]any, error) {
	updates := map[string]any{}
	if f.Error {
		updates["status"] = model.StatusError
		updates["finish_reason"] = "error"
	} else {
		updates["status"] = model.StatusFinal
		if f.FinishReason != "" {
			updates["finish_reason"] = f.FinishReason
		}
	}
	if f.ResponseID != nil {
		updates["response_id"] = *f.ResponseID
	}
	if f.Content != nil {
		flat, structured := f.Content.Normalize()
		updates["content"] = flat
		updates["content_json"] = structured
	}
	if len(f.ReasoningDetails) > 0 {
		details, err := reasoningDetails(f.ReasoningDetails)
		if err != nil {
			return nil, err
		}
		updates["reasoning_details"] = details
	}
	if f.ReasoningTokens != nil {
		updates["reasoning_tokens"] = clampTokens(f.ReasoningTokens)
	}
	return updates, nil
}

func (s *Store) finishDraft(ctx context.Context, updates map[string]any, where string, args ...any) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drafts []model.Message
		if err := tx.Where(where, args...).
			Where("role = ? AND status = ?", model.RoleAssistant, model.StatusStreaming).
			Limit(1).
			Find(&drafts).Error; err != nil {
			return err
		}
		if len(drafts) == 0 {
			return nil
		}
		now := model.Now()
		updates["updated_at"] = now
		result := tx.Model(&model.Message{}).
			Where("id = ? AND status = ?", drafts[0].ID, model.StatusStreaming).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return touchConversation(tx, drafts[0].ConversationID, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to finish assistant message: %w", err)
	}
	return changed, nil
}

// GetMessage looks a message up by internal or client id within a conversation.
func (s *Store) GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error) {
	db := s.db.WithContext(ctx)
	msg, err := findMessage(db, conversationID, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return nil, nil
	}
	msgs := []model.Message{*msg}
	if err := attachArtifacts(db, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

func findMessage(tx *gorm.DB, conversationID string, messageID string) (*model.Message, error) {
	var msgs []model.Message
	err := tx.Where("conversation_id = ? AND (id = ? OR client_message_id = ?)", conversationID, messageID, messageID).
		Order("seq ASC").
		Limit(1).
		Find(&msgs).Error
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// GetMessagesPage returns messages with seq > afterSeq in ascending order, with
// tool calls and outputs attached using one query per artifact type.
func (s *Store) GetMessagesPage(ctx context.Context, conversationID string, afterSeq int64, limit int) (*registrystore.MessagePage, error) {
	limit = registrystore.ClampLimit(limit, registrystore.DefaultMessagePageSize, registrystore.MaxMessagePageSize)
	db := s.db.WithContext(ctx)
	var msgs []model.Message
	if err := db.Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if err := attachArtifacts(db, msgs); err != nil {
		return nil, err
	}
	page := &registrystore.MessagePage{Data: msgs}
	if page.Data == nil {
		page.Data = []model.Message{}
	}
	if len(msgs) == limit {
		last := msgs[len(msgs)-1].Seq
		page.NextAfterSeq = &last
	}
	return page, nil
}

// attachArtifacts expects msgs from a single conversation.
func attachArtifacts(db *gorm.DB, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	var toolCallIDs []string
	for i, m := range msgs {
		ids[i] = m.ID
		if m.Role == model.RoleTool && m.ToolCallID != nil {
			toolCallIDs = append(toolCallIDs, *m.ToolCallID)
		}
	}
	calls, err := listToolCalls(db, ids)
	if err != nil {
		return fmt.Errorf("failed to load tool calls: %w", err)
	}
	outputs, err := listToolOutputs(db, ids, msgs[0].ConversationID, toolCallIDs)
	if err != nil {
		return fmt.Errorf("failed to load tool outputs: %w", err)
	}

	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		index[m.ID] = i
	}
	for _, c := range calls {
		if i, ok := index[c.MessageID]; ok {
			msgs[i].ToolCalls = append(msgs[i].ToolCalls, c)
		}
	}
	for i := range msgs {
		m := &msgs[i]
		for _, o := range outputs {
			if o.MessageID == m.ID ||
				(m.Role == model.RoleTool && m.ToolCallID != nil &&
					o.ConversationID == m.ConversationID && o.ToolCallID == *m.ToolCallID) {
				m.ToolOutputs = append(m.ToolOutputs, o)
			}
		}
		m.Status = transcript.ToolMessageStatus(m, m.ToolOutputs)
	}
	return nil
}

// UpdateMessageContent edits a message after re-checking that the conversation
// belongs to owner. It returns nil when the message is not visible.
func (s *Store) UpdateMessageContent(ctx context.Context, owner model.Owner, conversationID string, messageID string, edit registrystore.MessageEdit) (*model.Message, error) {
	o, err := validOwner(owner)
	if err != nil {
		return nil, err
	}
	var updated *model.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := ownedConversation(tx, o, conversationID)
		if err != nil || conv == nil {
			return err
		}
		msg, err := findMessage(tx, conversationID, messageID)
		if err != nil || msg == nil {
			return err
		}
		flat, structured := edit.Content.Normalize()
		now := model.Now()
		updates := map[string]any{
			"content":      flat,
			"content_json": structured,
			"updated_at":   now,
		}
		if edit.Status != nil {
			if err := validateStatus(msg.Role, *edit.Status); err != nil {
				return err
			}
			updates["status"] = *edit.Status
		}
		if len(edit.ReasoningDetails) > 0 {
			details, err := reasoningDetails(edit.ReasoningDetails)
			if err != nil {
				return err
			}
			updates["reasoning_details"] = details
		}
		if edit.ReasoningTokens != nil {
			updates["reasoning_tokens"] = clampTokens(edit.ReasoningTokens)
		}
		if err := tx.Model(&model.Message{}).Where("id = ?", msg.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := touchConversation(tx, conversationID, now); err != nil {
			return err
		}
		var reloaded model.Message
		if err := tx.Where("id = ?", msg.ID).Take(&reloaded).Error; err != nil {
			return err
		}
		updated = &reloaded
		return nil
	})
	if err != nil {
		if registrystore.IsInvalidArgument(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return updated, nil
}

// ClearAllMessages removes every message of an owned conversation with its
// tool artifacts and returns the number of messages deleted.
func (s *Store) ClearAllMessages(ctx context.Context, owner model.Owner, conversationID string) (int64, error) {
	return s.deleteMessages(ctx, owner, conversationID, "conversation_id = ?", conversationID)
}

// DeleteMessagesAfterSeq removes messages with seq greater than seq.
func (s *Store) DeleteMessagesAfterSeq(ctx context.Context, owner model.Owner, conversationID string, seq int64) (int64, error) {
	return s.deleteMessages(ctx, owner, conversationID, "conversation_id = ? AND seq > ?", conversationID, seq)
}

func (s *Store) deleteMessages(ctx context.Context, owner model.Owner, conversationID string, where string, args ...any) (int64, error) {
	o, err := validOwner(owner)
	if err != nil {
		return 0, err
	}
	var deleted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := ownedConversation(tx, o, conversationID)
		if err != nil || conv == nil {
			return err
		}
		selected := tx.Model(&model.Message{}).Select("id").Where(where, args...)
		if err := tx.Where("message_id IN (?)", selected).Delete(&model.ToolOutput{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", selected).Delete(&model.ToolCall{}).Error; err != nil {
			return err
		}
		result := tx.Where(where, args...).Delete(&model.Message{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		if deleted == 0 {
			return nil
		}
		return touchConversation(tx, conversationID, model.Now())
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return deleted, nil
}

func validateStatus(role model.Role, status model.MessageStatus) error {
	valid := false
	switch role {
	case model.RoleAssistant:
		valid = status == model.StatusStreaming || status == model.StatusFinal || status == model.StatusError
	case model.RoleUser:
		valid = status == model.StatusFinal
	case model.RoleTool:
		valid = status == model.StatusSuccess || status == model.StatusError || status == model.StatusTimeout
	}
	if !valid {
		return &registrystore.InvalidArgumentError{Field: "status", Message: fmt.Sprintf("%q is not valid for a %s message", status, role)}
	}
	return nil
}

func reasoningDetails(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, &registrystore.InvalidArgumentError{Field: "reasoningDetails", Message: "must be valid JSON"}
	}
	s := string(raw)
	return &s, nil
}

func clampTokens(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	if v < 0 {
		v = 0
	}
	return &v
}
