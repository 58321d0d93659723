package metrics

import (
	"context"
	"time"

	"github.com/chirino/chat-store/internal/model"
	"github.com/chirino/chat-store/internal/monitoring"
	"github.com/chirino/chat-store/internal/registry/store"
)

// Wrap returns a ChatStore that records StoreLatency for every operation.
func Wrap(inner store.ChatStore) store.ChatStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ChatStore
}

func observe(op string, start time.Time) {
	monitoring.ObserveStore(op, start)
}

// --- conversations ---

func (m *metricsStore) CreateConversation(ctx context.Context, owner model.Owner, in store.NewConversation) (*model.Conversation, error) {
	defer observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, owner, in)
}

func (m *metricsStore) GetConversation(ctx context.Context, owner model.Owner, conversationID string) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, owner, conversationID)
}

func (m *metricsStore) UpdateConversationMetadata(ctx context.Context, owner model.Owner, conversationID string, patch map[string]any) (bool, error) {
	defer observe("update_conversation_metadata", time.Now())
	return m.inner.UpdateConversationMetadata(ctx, owner, conversationID, patch)
}

func (m *metricsStore) UpdateConversationTitle(ctx context.Context, owner model.Owner, conversationID string, title string) (bool, error) {
	defer observe("update_conversation_title", time.Now())
	return m.inner.UpdateConversationTitle(ctx, owner, conversationID, title)
}

func (m *metricsStore) UpdateConversationProviderID(ctx context.Context, owner model.Owner, conversationID string, providerID *string) (bool, error) {
	defer observe("update_conversation_provider", time.Now())
	return m.inner.UpdateConversationProviderID(ctx, owner, conversationID, providerID)
}

func (m *metricsStore) UpdateConversationModel(ctx context.Context, owner model.Owner, conversationID string, modelName *string) (bool, error) {
	defer observe("update_conversation_model", time.Now())
	return m.inner.UpdateConversationModel(ctx, owner, conversationID, modelName)
}

func (m *metricsStore) UpdateConversationSettings(ctx context.Context, owner model.Owner, conversationID string, patch store.SettingsPatch) (bool, error) {
	defer observe("update_conversation_settings", time.Now())
	return m.inner.UpdateConversationSettings(ctx, owner, conversationID, patch)
}

func (m *metricsStore) SoftDeleteConversation(ctx context.Context, owner model.Owner, conversationID string) (bool, error) {
	defer observe("delete_conversation", time.Now())
	return m.inner.SoftDeleteConversation(ctx, owner, conversationID)
}

func (m *metricsStore) ListConversations(ctx context.Context, owner model.Owner, query store.ListQuery) (*store.ConversationPage, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, owner, query)
}

func (m *metricsStore) ListConversationsIncludingDeleted(ctx context.Context, owner model.Owner, query store.ListQuery, includeDeleted bool) (*store.ConversationPage, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversationsIncludingDeleted(ctx, owner, query, includeDeleted)
}

func (m *metricsStore) CountConversationsBySession(ctx context.Context, sessionID string) (int64, error) {
	defer observe("count_session_conversations", time.Now())
	return m.inner.CountConversationsBySession(ctx, sessionID)
}

func (m *metricsStore) ClaimSessionConversations(ctx context.Context, userID string, sessionID string) (int, error) {
	defer observe("claim_session_conversations", time.Now())
	return m.inner.ClaimSessionConversations(ctx, userID, sessionID)
}

// --- messages ---

func (m *metricsStore) GetNextSeq(ctx context.Context, conversationID string) (int64, error) {
	defer observe("get_next_seq", time.Now())
	return m.inner.GetNextSeq(ctx, conversationID)
}

func (m *metricsStore) InsertUserMessage(ctx context.Context, conversationID string, in store.MessageInput) (*model.Message, error) {
	defer observe("insert_message", time.Now())
	return m.inner.InsertUserMessage(ctx, conversationID, in)
}

func (m *metricsStore) CreateAssistantDraft(ctx context.Context, conversationID string, clientMessageID *string) (*model.Message, error) {
	defer observe("create_assistant_draft", time.Now())
	return m.inner.CreateAssistantDraft(ctx, conversationID, clientMessageID)
}

func (m *metricsStore) AppendAssistantContent(ctx context.Context, messageID string, delta string) (bool, error) {
	defer observe("append_assistant_content", time.Now())
	return m.inner.AppendAssistantContent(ctx, messageID, delta)
}

func (m *metricsStore) FinalizeAssistantMessage(ctx context.Context, messageID string, f store.Finalize) (bool, error) {
	defer observe("finalize_assistant_message", time.Now())
	return m.inner.FinalizeAssistantMessage(ctx, messageID, f)
}

func (m *metricsStore) MarkAssistantError(ctx context.Context, messageID string) (bool, error) {
	defer observe("mark_assistant_error", time.Now())
	return m.inner.MarkAssistantError(ctx, messageID)
}

func (m *metricsStore) MarkAssistantErrorBySeq(ctx context.Context, conversationID string, seq int64) (bool, error) {
	defer observe("mark_assistant_error", time.Now())
	return m.inner.MarkAssistantErrorBySeq(ctx, conversationID, seq)
}

func (m *metricsStore) InsertAssistantMessage(ctx context.Context, conversationID string, in store.MessageInput) (*model.Message, error) {
	defer observe("insert_message", time.Now())
	return m.inner.InsertAssistantMessage(ctx, conversationID, in)
}

func (m *metricsStore) InsertToolMessage(ctx context.Context, conversationID string, in store.MessageInput) (*model.Message, error) {
	defer observe("insert_message", time.Now())
	return m.inner.InsertToolMessage(ctx, conversationID, in)
}

func (m *metricsStore) GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, conversationID, messageID)
}

func (m *metricsStore) GetMessagesPage(ctx context.Context, conversationID string, afterSeq int64, limit int) (*store.MessagePage, error) {
	defer observe("get_messages_page", time.Now())
	return m.inner.GetMessagesPage(ctx, conversationID, afterSeq, limit)
}

func (m *metricsStore) UpdateMessageContent(ctx context.Context, owner model.Owner, conversationID string, messageID string, edit store.MessageEdit) (*model.Message, error) {
	defer observe("update_message_content", time.Now())
	return m.inner.UpdateMessageContent(ctx, owner, conversationID, messageID, edit)
}

func (m *metricsStore) ClearAllMessages(ctx context.Context, owner model.Owner, conversationID string) (int64, error) {
	defer observe("delete_messages", time.Now())
	return m.inner.ClearAllMessages(ctx, owner, conversationID)
}

func (m *metricsStore) DeleteMessagesAfterSeq(ctx context.Context, owner model.Owner, conversationID string, seq int64) (int64, error) {
	defer observe("delete_messages", time.Now())
	return m.inner.DeleteMessagesAfterSeq(ctx, owner, conversationID, seq)
}

// --- tools ---

func (m *metricsStore) InsertToolCalls(ctx context.Context, conversationID string, messageID string, calls []store.ToolCallInput) ([]model.ToolCall, error) {
	defer observe("insert_tool_calls", time.Now())
	return m.inner.InsertToolCalls(ctx, conversationID, messageID, calls)
}

func (m *metricsStore) InsertToolOutputs(ctx context.Context, conversationID string, messageID string, outputs []store.ToolOutputInput) ([]model.ToolOutput, error) {
	defer observe("insert_tool_outputs", time.Now())
	return m.inner.InsertToolOutputs(ctx, conversationID, messageID, outputs)
}

func (m *metricsStore) ListToolCalls(ctx context.Context, messageIDs []string) ([]model.ToolCall, error) {
	defer observe("list_tool_calls", time.Now())
	return m.inner.ListToolCalls(ctx, messageIDs)
}

func (m *metricsStore) ListToolOutputs(ctx context.Context, messageIDs []string) ([]model.ToolOutput, error) {
	defer observe("list_tool_outputs", time.Now())
	return m.inner.ListToolOutputs(ctx, messageIDs)
}

// --- fork and retention ---

func (m *metricsStore) ForkConversationFromMessage(ctx context.Context, owner model.Owner, originalID string, messageSeq int64, opts store.ForkOptions) (*model.Conversation, error) {
	defer observe("fork_conversation", time.Now())
	return m.inner.ForkConversationFromMessage(ctx, owner, originalID, messageSeq, opts)
}

func (m *metricsStore) FindExpiredConversationIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	defer observe("find_expired_conversations", time.Now())
	return m.inner.FindExpiredConversationIDs(ctx, cutoff, limit)
}

func (m *metricsStore) DeleteConversationsHard(ctx context.Context, conversationIDs []string) (int64, int64, error) {
	defer observe("delete_conversations_hard", time.Now())
	return m.inner.DeleteConversationsHard(ctx, conversationIDs)
}

// --- users ---

func (m *metricsStore) CreateUser(ctx context.Context, in store.NewUser) (*model.User, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, in)
}

func (m *metricsStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) CreateSession(ctx context.Context, sessionID string) (*model.Session, error) {
	defer observe("create_session", time.Now())
	return m.inner.CreateSession(ctx, sessionID)
}

func (m *metricsStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	defer observe("get_session", time.Now())
	return m.inner.GetSession(ctx, sessionID)
}

func (m *metricsStore) TouchSession(ctx context.Context, sessionID string) (bool, error) {
	defer observe("touch_session", time.Now())
	return m.inner.TouchSession(ctx, sessionID)
}

func (m *metricsStore) GetUserDEK(ctx context.Context, userID string) ([]byte, int, error) {
	defer observe("get_user_dek", time.Now())
	return m.inner.GetUserDEK(ctx, userID)
}

func (m *metricsStore) StoreUserDEKIfAbsent(ctx context.Context, userID string, wrapped []byte, version int) (bool, error) {
	defer observe("store_user_dek", time.Now())
	return m.inner.StoreUserDEKIfAbsent(ctx, userID, wrapped, version)
}

// --- settings, providers, evaluations ---

func (m *metricsStore) PutUserSetting(ctx context.Context, userID string, name string, value string) error {
	defer observe("put_user_setting", time.Now())
	return m.inner.PutUserSetting(ctx, userID, name, value)
}

func (m *metricsStore) GetUserSetting(ctx context.Context, userID string, name string) (*model.UserSetting, error) {
	defer observe("get_user_setting", time.Now())
	return m.inner.GetUserSetting(ctx, userID, name)
}

func (m *metricsStore) ListUserSettings(ctx context.Context, userID string) ([]model.UserSetting, error) {
	defer observe("list_user_settings", time.Now())
	return m.inner.ListUserSettings(ctx, userID)
}

func (m *metricsStore) DeleteUserSetting(ctx context.Context, userID string, name string) (bool, error) {
	defer observe("delete_user_setting", time.Now())
	return m.inner.DeleteUserSetting(ctx, userID, name)
}

func (m *metricsStore) CreateProvider(ctx context.Context, p *model.Provider) (*model.Provider, error) {
	defer observe("create_provider", time.Now())
	return m.inner.CreateProvider(ctx, p)
}

func (m *metricsStore) GetProvider(ctx context.Context, userID string, providerID string) (*model.Provider, error) {
	defer observe("get_provider", time.Now())
	return m.inner.GetProvider(ctx, userID, providerID)
}

func (m *metricsStore) ListProviders(ctx context.Context, userID string) ([]model.Provider, error) {
	defer observe("list_providers", time.Now())
	return m.inner.ListProviders(ctx, userID)
}

func (m *metricsStore) UpdateProviderAPIKey(ctx context.Context, userID string, providerID string, apiKey *string) (bool, error) {
	defer observe("update_provider_api_key", time.Now())
	return m.inner.UpdateProviderAPIKey(ctx, userID, providerID, apiKey)
}

func (m *metricsStore) SetDefaultProvider(ctx context.Context, userID string, providerID string) (bool, error) {
	defer observe("set_default_provider", time.Now())
	return m.inner.SetDefaultProvider(ctx, userID, providerID)
}

func (m *metricsStore) DeleteProvider(ctx context.Context, userID string, providerID string) (bool, error) {
	defer observe("delete_provider", time.Now())
	return m.inner.DeleteProvider(ctx, userID, providerID)
}

func (m *metricsStore) CreateEvaluation(ctx context.Context, e *model.Evaluation) (*model.Evaluation, error) {
	defer observe("create_evaluation", time.Now())
	return m.inner.CreateEvaluation(ctx, e)
}

func (m *metricsStore) GetEvaluation(ctx context.Context, userID string, evaluationID string) (*model.Evaluation, error) {
	defer observe("get_evaluation", time.Now())
	return m.inner.GetEvaluation(ctx, userID, evaluationID)
}

func (m *metricsStore) DeleteEvaluation(ctx context.Context, userID string, evaluationID string) (bool, error) {
	defer observe("delete_evaluation", time.Now())
	return m.inner.DeleteEvaluation(ctx, userID, evaluationID)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
