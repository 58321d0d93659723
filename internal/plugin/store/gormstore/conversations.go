package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func (s *Store) CreateConversation(ctx context.Context, owner model.Owner, in registrystore.NewConversation) (*model.Conversation, error) {
	o, err := validOwner(owner)
	if err != nil {
		return nil, err
	}
	for _, check := range []struct {
		field   string
		value   *string
		allowed []string
	}{
		{"qualityLevel", in.QualityLevel, registrystore.QualityLevels},
		{"reasoningEffort", in.ReasoningEffort, registrystore.ReasoningEfforts},
		{"verbosity", in.Verbosity, registrystore.Verbosities},
	} {
		if err := registrystore.ValidateEnum(check.field, check.value, check.allowed); err != nil {
			return nil, err
		}
	}

	metadata := cloneMetadata(in.Metadata)
	if in.ActiveTools != nil {
		metadata[model.MetadataActiveTools] = toolList(in.ActiveTools)
	}
	streaming := true
	if in.StreamingEnabled != nil {
		streaming = *in.StreamingEnabled
	}
	now := model.Now()
	conv := model.Conversation{
		ID:               uuid.NewString(),
		Title:            in.Title,
		ProviderID:       in.ProviderID,
		Model:            in.Model,
		StreamingEnabled: streaming,
		ToolsEnabled:     in.ToolsEnabled != nil && *in.ToolsEnabled,
		QualityLevel:     in.QualityLevel,
		ReasoningEffort:  in.ReasoningEffort,
		Verbosity:        in.Verbosity,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if o.UserID != "" {
		conv.UserID = &o.UserID
	} else {
		conv.SessionID = &o.SessionID
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

func (s *Store) GetConversation(ctx context.Context, owner model.Owner, conversationID string) (*model.Conversation, error) {
	o, err := validOwner(owner)
	if err != nil {
		return nil, err
	}
	conv, err := ownedConversation(s.db.WithContext(ctx), o, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// updateOwned applies column updates to a live conversation under owner and
// reports whether a row changed.
func (s *Store) updateOwned(ctx context.Context, owner model.Owner, conversationID string, updates map[string]any) (bool, error) {
	o, err := validOwner(owner)
	if err != nil {
		return false, err
	}
	updates["updated_at"] = model.Now()
	result := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Scopes(ownerScope(o, "")).
		Where("id = ? AND deleted_at IS NULL", conversationID).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update conversation: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateConversationMetadata merges patch into the stored metadata. A nil
// value removes the key.
func (s *Store) UpdateConversationMetadata(ctx context.Context, owner model.Owner, conversationID string, patch map[string]any) (bool, error) {
	o, err := validOwner(owner)
	if err != nil {
		return false, err
	}
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := ownedConversation(tx, o, conversationID)
		if err != nil || conv == nil {
			return err
		}
		merged := mergeMetadata(conv.Metadata, patch)
		encoded, err := json.Marshal(merged)
		if err != nil {
			return &registrystore.InvalidArgumentError{Field: "metadata", Message: err.Error()}
		}
		result := tx.Model(&model.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]any{"metadata": jsonText(encoded), "updated_at": model.Now()})
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update conversation metadata: %w", err)
	}
	return changed, nil
}

func (s *Store) UpdateConversationTitle(ctx context.Context, owner model.Owner, conversationID string, title string) (bool, error) {
	return s.updateOwned(ctx, owner, conversationID, map[string]any{"title": strings.TrimSpace(title)})
}

func (s *Store) UpdateConversationProviderID(ctx context.Context, owner model.Owner, conversationID string, providerID *string) (bool, error) {
	return s.updateOwned(ctx, owner, conversationID, map[string]any{"provider_id": providerID})
}

func (s *Store) UpdateConversationModel(ctx context.Context, owner model.Owner, conversationID string, modelName *string) (bool, error) {
	return s.updateOwned(ctx, owner, conversationID, map[string]any{"model": modelName})
}

// UpdateConversationSettings writes only the fields present in patch. An
// empty patch changes nothing and returns false.
func (s *Store) UpdateConversationSettings(ctx context.Context, owner model.Owner, conversationID string, patch registrystore.SettingsPatch) (bool, error) {
	o, err := validOwner(owner)
	if err != nil {
		return false, err
	}
	cols, err := patch.Build()
	if err != nil {
		return false, err
	}
	if cols.Empty() && patch.ActiveTools == nil {
		return false, nil
	}
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := ownedConversation(tx, o, conversationID)
		if err != nil || conv == nil {
			return err
		}
		updates := cols.Values()
		if patch.ActiveTools != nil {
			merged := mergeMetadata(conv.Metadata, map[string]any{
				model.MetadataActiveTools: toolList(*patch.ActiveTools),
			})
			encoded, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			updates["metadata"] = jsonText(encoded)
		}
		updates["updated_at"] = model.Now()
		result := tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update conversation settings: %w", err)
	}
	return changed, nil
}

func (s *Store) SoftDeleteConversation(ctx context.Context, owner model.Owner, conversationID string) (bool, error) {
	return s.updateOwned(ctx, owner, conversationID, map[string]any{"deleted_at": model.Now()})
}

func (s *Store) ListConversations(ctx context.Context, owner model.Owner, query registrystore.ListQuery) (*registrystore.ConversationPage, error) {
	return s.ListConversationsIncludingDeleted(ctx, owner, query, false)
}

// ListConversationsIncludingDeleted lists newest first. Soft-deleted rows are
// only returned when includeDeleted is set.
func (s *Store) ListConversationsIncludingDeleted(ctx context.Context, owner model.Owner, query registrystore.ListQuery, includeDeleted bool) (*registrystore.ConversationPage, error) {
	o, err := validOwner(owner)
	if err != nil {
		return nil, err
	}
	cursor, err := registrystore.DecodeConversationCursor(query.Cursor)
	if err != nil {
		return nil, err
	}
	limit := registrystore.ClampLimit(query.Limit, registrystore.DefaultConversationPageSize, registrystore.MaxConversationPageSize)

	tx := s.db.WithContext(ctx).Model(&model.Conversation{}).Scopes(ownerScope(o, ""))
	if !includeDeleted {
		tx = tx.Where("deleted_at IS NULL")
	}
	if cursor != nil {
		tx = tx.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []model.Conversation
	if err := tx.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	page := &registrystore.ConversationPage{Data: rows}
	if len(rows) > limit {
		page.Data = rows[:limit]
		next := registrystore.EncodeConversationCursor(&page.Data[limit-1])
		page.NextCursor = &next
	}
	if page.Data == nil {
		page.Data = []model.Conversation{}
	}
	return page, nil
}

func (s *Store) CountConversationsBySession(ctx context.Context, sessionID string) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, &registrystore.InvalidArgumentError{Field: "sessionId", Message: "is required"}
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("session_id = ? AND user_id IS NULL AND deleted_at IS NULL", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// ClaimSessionConversations moves session-owned conversations to userID. Each
// row is claimed in its own transaction and rows already owned by a user are
// left alone, so repeated or concurrent claims are safe.
func (s *Store) ClaimSessionConversations(ctx context.Context, userID string, sessionID string) (int, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if userID == "" {
		return 0, &registrystore.InvalidArgumentError{Field: "userId", Message: "is required"}
	}
	if sessionID == "" {
		return 0, &registrystore.InvalidArgumentError{Field: "sessionId", Message: "is required"}
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("session_id = ? AND user_id IS NULL", sessionID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list session conversations: %w", err)
	}

	claimed := 0
	for _, id := range ids {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&model.Conversation{}).
				Where("id = ? AND session_id = ? AND user_id IS NULL", id, sessionID).
				Updates(map[string]any{
					"user_id":    userID,
					"session_id": nil,
					"updated_at": model.Now(),
				})
			if result.Error != nil {
				return result.Error
			}
			claimed += int(result.RowsAffected)
			return nil
		})
		if err != nil {
			return claimed, fmt.Errorf("failed to claim conversation %s: %w", id, err)
		}
	}
	return claimed, nil
}

func cloneMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// mergeMetadata applies a JSON merge patch one level deep.
func mergeMetadata(base, patch map[string]any) map[string]any {
	out := cloneMetadata(base)
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// jsonText binds already encoded JSON so the column serializer is bypassed.
func jsonText(encoded []byte) clause.Expr {
	return gorm.Expr("?", string(encoded))
}

func toolList(tools []string) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
