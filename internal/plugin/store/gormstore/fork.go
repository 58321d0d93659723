package gormstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// ForkConversationFromMessage copies the source conversation's settings and
// every message with seq <= messageSeq, with their tool calls and outputs,
// into a new conversation. Everything happens in one transaction and copied
// rows are stamped with the fork time.
func (s *Store) ForkConversationFromMessage(ctx context.Context, owner model.Owner, originalID string, messageSeq int64, opts registrystore.ForkOptions) (*model.Conversation, error) {
	o, err := validOwner(owner)
	if err != nil {
		return nil, err
	}
	if messageSeq < 0 {
		return nil, &registrystore.InvalidArgumentError{Field: "messageSeq", Message: "must not be negative"}
	}

	var fork model.Conversation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := ownedConversation(tx, o, originalID)
		if err != nil {
			return err
		}
		if src == nil {
			return &registrystore.NotFoundError{Resource: "conversation", ID: originalID}
		}

		now := model.Now()
		fork = *src
		fork.ID = uuid.NewString()
		fork.Metadata = cloneMetadata(src.Metadata)
		fork.CreatedAt = now
		fork.UpdatedAt = now
		fork.DeletedAt = nil
		if opts.Title != nil {
			fork.Title = *opts.Title
		}
		if err := tx.Create(&fork).Error; err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}

		if err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, seq, role, status, content, content_json, finish_reason,
				response_id, client_message_id, tool_call_id, reasoning_details, reasoning_tokens, created_at, updated_at)
			SELECT `+s.dialect.newIDExpr+`, ?, seq, role, status, content, content_json, finish_reason,
				response_id, client_message_id, tool_call_id, reasoning_details, reasoning_tokens, ?, ?
			FROM messages
			WHERE conversation_id = ? AND seq <= ?`,
			fork.ID, now, now, src.ID, messageSeq).Error; err != nil {
			return fmt.Errorf("copy messages: %w", err)
		}

		if err := tx.Exec(`
			INSERT INTO tool_calls (id, message_id, conversation_id, call_index, tool_name, arguments, text_offset, created_at)
			SELECT tc.id, nm.id, ?, tc.call_index, tc.tool_name, tc.arguments, tc.text_offset, ?
			FROM tool_calls tc
			JOIN messages om ON om.id = tc.message_id
			JOIN messages nm ON nm.conversation_id = ? AND nm.seq = om.seq
			WHERE om.conversation_id = ? AND om.seq <= ?`,
			fork.ID, now, fork.ID, src.ID, messageSeq).Error; err != nil {
			return fmt.Errorf("copy tool calls: %w", err)
		}

		if err := tx.Exec(`
			INSERT INTO tool_outputs (tool_call_id, message_id, conversation_id, tool_name, output, status, executed_at)
			SELECT t.tool_call_id, nm.id, ?, t.tool_name, t.output, t.status, ?
			FROM tool_outputs t
			JOIN messages om ON om.id = t.message_id
			JOIN messages nm ON nm.conversation_id = ? AND nm.seq = om.seq
			WHERE om.conversation_id = ? AND om.seq <= ?
			ORDER BY t.id`,
			fork.ID, now, fork.ID, src.ID, messageSeq).Error; err != nil {
			return fmt.Errorf("copy tool outputs: %w", err)
		}
		return nil
	})
	if err != nil {
		if registrystore.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fork conversation %s: %w", originalID, err)
	}
	return &fork, nil
}
