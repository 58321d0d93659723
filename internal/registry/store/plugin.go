package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/chat-store/internal/content"
	"github.com/chirino/chat-store/internal/model"
)

// NewConversation is the input for CreateConversation.
type NewConversation struct {
	Title      string
	ProviderID *string
	Model      *string
	// StreamingEnabled defaults to true when nil.
	StreamingEnabled *bool
	ToolsEnabled     *bool
	QualityLevel     *string
	ReasoningEffort  *string
	Verbosity        *string
	Metadata         map[string]any
	ActiveTools      []string
}

// ListQuery holds cursor pagination parameters.
type ListQuery struct {
	Cursor *string
	Limit  int
}

// ConversationPage is one page of conversations, newest first.
type ConversationPage struct {
	Data       []model.Conversation `json:"data"`
	NextCursor *string              `json:"nextCursor"`
}

// MessagePage is one page of messages in ascending seq order. NextAfterSeq is
// set only when the page is full.
type MessagePage struct {
	Data         []model.Message `json:"data"`
	NextAfterSeq *int64          `json:"next_after_seq"`
}

// MessageInput is the input for inserting a complete message.
type MessageInput struct {
	Content          content.Content
	ClientMessageID  *string
	FinishReason     *string
	ResponseID       *string
	ToolCallID       *string
	ReasoningDetails json.RawMessage
	ReasoningTokens  *int64
	// Status overrides the role default (final for user/assistant, success for tool).
	Status *model.MessageStatus
}

// Finalize is the terminal transition of an assistant draft.
type Finalize struct {
	FinishReason string
	ResponseID   *string
	// Content, when set, replaces the accumulated text (e.g. with mixed content).
	Content          *content.Content
	ReasoningDetails json.RawMessage
	ReasoningTokens  *int64
	// Error transitions to error with finish_reason "error".
	Error bool
}

// MessageEdit is the input for UpdateMessageContent.
type MessageEdit struct {
	Content          content.Content
	Status           *model.MessageStatus
	ReasoningDetails json.RawMessage
	ReasoningTokens  *int64
}

// ToolCallInput describes one tool call. CallIndex defaults to the position in the batch.
type ToolCallInput struct {
	ID         string
	ToolName   string
	Arguments  string
	CallIndex  *int
	TextOffset *int
}

// ToolOutputInput describes one tool result.
type ToolOutputInput struct {
	ToolCallID string
	ToolName   *string
	Output     string
	Status     string
	ExecutedAt *time.Time
}

// ForkOptions customise a fork. Title defaults to the source title.
type ForkOptions struct {
	Title *string
}

// NewUser is the input for CreateUser. ID is generated when empty.
type NewUser struct {
	ID          string
	Email       *string
	DisplayName string
}

// ConversationStore manages owner-scoped conversation records.
type ConversationStore interface {
	CreateConversation(ctx context.Context, owner model.Owner, in NewConversation) (*model.Conversation, error)
	// GetConversation returns nil when the conversation is absent, foreign or soft-deleted.
	GetConversation(ctx context.Context, owner model.Owner, conversationID string) (*model.Conversation, error)
	UpdateConversationMetadata(ctx context.Context, owner model.Owner, conversationID string, patch map[string]any) (bool, error)
	UpdateConversationTitle(ctx context.Context, owner model.Owner, conversationID string, title string) (bool, error)
	UpdateConversationProviderID(ctx context.Context, owner model.Owner, conversationID string, providerID *string) (bool, error)
	UpdateConversationModel(ctx context.Context, owner model.Owner, conversationID string, modelName *string) (bool, error)
	UpdateConversationSettings(ctx context.Context, owner model.Owner, conversationID string, patch SettingsPatch) (bool, error)
	SoftDeleteConversation(ctx context.Context, owner model.Owner, conversationID string) (bool, error)
	ListConversations(ctx context.Context, owner model.Owner, query ListQuery) (*ConversationPage, error)
	ListConversationsIncludingDeleted(ctx context.Context, owner model.Owner, query ListQuery, includeDeleted bool) (*ConversationPage, error)
	CountConversationsBySession(ctx context.Context, sessionID string) (int64, error)
	ClaimSessionConversations(ctx context.Context, userID string, sessionID string) (int, error)
}

// MessageStore manages the sequence-numbered message log.
type MessageStore interface {
	GetNextSeq(ctx context.Context, conversationID string) (int64, error)
	InsertUserMessage(ctx context.Context, conversationID string, in MessageInput) (*model.Message, error)
	CreateAssistantDraft(ctx context.Context, conversationID string, clientMessageID *string) (*model.Message, error)
	AppendAssistantContent(ctx context.Context, messageID string, delta string) (bool, error)
	FinalizeAssistantMessage(ctx context.Context, messageID string, f Finalize) (bool, error)
	MarkAssistantError(ctx context.Context, messageID string) (bool, error)
	MarkAssistantErrorBySeq(ctx context.Context, conversationID string, seq int64) (bool, error)
	InsertAssistantMessage(ctx context.Context, conversationID string, in MessageInput) (*model.Message, error)
	InsertToolMessage(ctx context.Context, conversationID string, in MessageInput) (*model.Message, error)
	GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error)
	GetMessagesPage(ctx context.Context, conversationID string, afterSeq int64, limit int) (*MessagePage, error)
	UpdateMessageContent(ctx context.Context, owner model.Owner, conversationID string, messageID string, edit MessageEdit) (*model.Message, error)
	ClearAllMessages(ctx context.Context, owner model.Owner, conversationID string) (int64, error)
	DeleteMessagesAfterSeq(ctx context.Context, owner model.Owner, conversationID string, seq int64) (int64, error)
}

// ToolStore records tool calls and outputs against a message.
type ToolStore interface {
	InsertToolCalls(ctx context.Context, conversationID string, messageID string, calls []ToolCallInput) ([]model.ToolCall, error)
	InsertToolOutputs(ctx context.Context, conversationID string, messageID string, outputs []ToolOutputInput) ([]model.ToolOutput, error)
	ListToolCalls(ctx context.Context, messageIDs []string) ([]model.ToolCall, error)
	ListToolOutputs(ctx context.Context, messageIDs []string) ([]model.ToolOutput, error)
}

// ForkStore copies a conversation prefix.
type ForkStore interface {
	ForkConversationFromMessage(ctx context.Context, owner model.Owner, originalID string, messageSeq int64, opts ForkOptions) (*model.Conversation, error)
}

// RetentionStore supports the retention sweeper.
type RetentionStore interface {
	// FindExpiredConversationIDs returns up to limit unpinned conversations last updated before cutoff.
	FindExpiredConversationIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// DeleteConversationsHard removes the conversations and everything attached to them in one transaction.
	DeleteConversationsHard(ctx context.Context, conversationIDs []string) (messages int64, conversations int64, err error)
}

// UserStore manages users, sessions and the per-user wrapped DEK.
type UserStore interface {
	CreateUser(ctx context.Context, in NewUser) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	CreateSession(ctx context.Context, sessionID string) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	TouchSession(ctx context.Context, sessionID string) (bool, error)

	// GetUserDEK returns the wrapped DEK (nil when none exists yet). NotFoundError when the user is unknown.
	GetUserDEK(ctx context.Context, userID string) ([]byte, int, error)
	// StoreUserDEKIfAbsent persists a wrapped DEK unless one already exists; false means another writer won.
	StoreUserDEKIfAbsent(ctx context.Context, userID string, wrapped []byte, version int) (bool, error)
}

// SettingsStore persists named per-user values.
type SettingsStore interface {
	PutUserSetting(ctx context.Context, userID string, name string, value string) error
	GetUserSetting(ctx context.Context, userID string, name string) (*model.UserSetting, error)
	ListUserSettings(ctx context.Context, userID string) ([]model.UserSetting, error)
	DeleteUserSetting(ctx context.Context, userID string, name string) (bool, error)
}

// ProviderStore persists LLM provider configurations.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *model.Provider) (*model.Provider, error)
	GetProvider(ctx context.Context, userID string, providerID string) (*model.Provider, error)
	ListProviders(ctx context.Context, userID string) ([]model.Provider, error)
	UpdateProviderAPIKey(ctx context.Context, userID string, providerID string, apiKey *string) (bool, error)
	SetDefaultProvider(ctx context.Context, userID string, providerID string) (bool, error)
	DeleteProvider(ctx context.Context, userID string, providerID string) (bool, error)
}

// EvaluationStore persists evaluations with their per-model rows.
type EvaluationStore interface {
	CreateEvaluation(ctx context.Context, e *model.Evaluation) (*model.Evaluation, error)
	GetEvaluation(ctx context.Context, userID string, evaluationID string) (*model.Evaluation, error)
	DeleteEvaluation(ctx context.Context, userID string, evaluationID string) (bool, error)
}

// ChatStore is the full data access interface of the chat store.
type ChatStore interface {
	ConversationStore
	MessageStore
	ToolStore
	ForkStore
	RetentionStore
	UserStore
	SettingsStore
	ProviderStore
	EvaluationStore

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Loader creates a ChatStore from the config carried in ctx.
type Loader func(ctx context.Context) (ChatStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
