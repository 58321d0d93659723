package model

import (
	"encoding/json"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageStatus is the lifecycle state of a message. Assistant drafts move
// from streaming to exactly one of final or error. Tool messages carry the
// status of their correlated output.
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusFinal     MessageStatus = "final"
	StatusError     MessageStatus = "error"
	StatusSuccess   MessageStatus = "success"
	StatusTimeout   MessageStatus = "timeout"
)

// IsTerminal reports whether no further content appends are allowed.
func (s MessageStatus) IsTerminal() bool {
	return s != StatusStreaming
}

// ToolOutputStatus values.
const (
	ToolOutputSuccess = "success"
	ToolOutputError   = "error"
	ToolOutputTimeout = "timeout"
)

// MetadataActiveTools is the reserved metadata key listing enabled tools.
const MetadataActiveTools = "active_tools"

// MetadataPinned exempts a conversation from retention when truthy.
const MetadataPinned = "pinned"

// User is an authenticated account. The per-user DEK lives on this row.
type User struct {
	ID           string     `json:"id"                     gorm:"primaryKey"`
	Email        *string    `json:"email,omitempty"        gorm:"uniqueIndex"`
	DisplayName  string     `json:"displayName"            gorm:"not null;default:''"`
	EncryptedDEK []byte     `json:"-"`
	DEKCreatedAt *Timestamp `json:"-"`
	DEKVersion   int        `json:"-"                      gorm:"not null;default:1"`
	CreatedAt    Timestamp  `json:"createdAt"              gorm:"not null"`
	UpdatedAt    Timestamp  `json:"updatedAt"              gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Session is an anonymous browser session that may own conversations until claimed.
type Session struct {
	ID         string    `json:"id"               gorm:"primaryKey"`
	UserID     *string   `json:"userId,omitempty"`
	CreatedAt  Timestamp `json:"createdAt"        gorm:"not null"`
	LastSeenAt Timestamp `json:"lastSeenAt"       gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// Conversation is owned by exactly one of UserID or SessionID.
type Conversation struct {
	ID               string         `json:"id"                        gorm:"primaryKey"`
	UserID           *string        `json:"userId,omitempty"`
	SessionID        *string        `json:"sessionId,omitempty"`
	Title            string         `json:"title"                     gorm:"not null;default:''"`
	ProviderID       *string        `json:"providerId,omitempty"`
	Model            *string        `json:"model,omitempty"`
	StreamingEnabled bool           `json:"streamingEnabled"          gorm:"not null"`
	ToolsEnabled     bool           `json:"toolsEnabled"              gorm:"not null"`
	QualityLevel     *string        `json:"qualityLevel,omitempty"`
	ReasoningEffort  *string        `json:"reasoningEffort,omitempty"`
	Verbosity        *string        `json:"verbosity,omitempty"`
	Metadata         map[string]any `json:"metadata"                  gorm:"serializer:json;not null"`
	CreatedAt        Timestamp      `json:"createdAt"                 gorm:"not null"`
	UpdatedAt        Timestamp      `json:"updatedAt"                 gorm:"not null"`
	DeletedAt        *Timestamp     `json:"deletedAt,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Owner returns the ownership pair stored on the row.
func (c *Conversation) Owner() Owner {
	var o Owner
	if c.UserID != nil {
		o.UserID = *c.UserID
	}
	if c.SessionID != nil {
		o.SessionID = *c.SessionID
	}
	return o
}

// ActiveTools returns the metadata's active tool list, or nil.
func (c *Conversation) ActiveTools() []string {
	raw, ok := c.Metadata[MetadataActiveTools].([]any)
	if !ok {
		return nil
	}
	tools := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			tools = append(tools, s)
		}
	}
	return tools
}

// Message is one entry in a conversation's sequence-numbered log.
type Message struct {
	ID               string        `json:"-"                         gorm:"primaryKey"`
	ConversationID   string        `json:"conversationId"            gorm:"not null"`
	Seq              int64         `json:"seq"                       gorm:"not null"`
	Role             Role          `json:"role"                      gorm:"not null"`
	Status           MessageStatus `json:"status"                    gorm:"not null"`
	Content          string        `json:"-"                         gorm:"not null;default:''"`
	ContentJSON      *string       `json:"-"`
	FinishReason     *string       `json:"finishReason,omitempty"`
	ResponseID       *string       `json:"responseId,omitempty"`
	ClientMessageID  *string       `json:"-"`
	ToolCallID       *string       `json:"toolCallId,omitempty"`
	ReasoningDetails *string       `json:"-"`
	ReasoningTokens  *int64        `json:"reasoningTokens,omitempty"`
	CreatedAt        Timestamp     `json:"createdAt"                 gorm:"not null"`
	UpdatedAt        Timestamp     `json:"updatedAt"                 gorm:"not null"`

	// Attached on read by the message page query.
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"   gorm:"-"`
	ToolOutputs []ToolOutput `json:"toolOutputs,omitempty" gorm:"-"`
}

func (Message) TableName() string { return "messages" }

// PublicID is the identifier exposed to clients: the client-supplied id when
// one was given, otherwise the internal id.
func (m *Message) PublicID() string {
	if m.ClientMessageID != nil && *m.ClientMessageID != "" {
		return *m.ClientMessageID
	}
	return m.ID
}

// MarshalJSON renders the client view: PublicID as id, structured content when
// present and reasoning details as raw JSON.
func (m Message) MarshalJSON() ([]byte, error) {
	type Alias Message // avoid recursion
	aux := struct {
		Alias
		ID               string          `json:"id"`
		Content          json.RawMessage `json:"content"`
		ReasoningDetails json.RawMessage `json:"reasoningDetails,omitempty"`
	}{
		Alias: Alias(m),
		ID:    m.PublicID(),
	}
	if m.ContentJSON != nil && json.Valid([]byte(*m.ContentJSON)) {
		aux.Content = json.RawMessage(*m.ContentJSON)
	} else {
		aux.Content, _ = json.Marshal(m.Content)
	}
	if m.ReasoningDetails != nil && json.Valid([]byte(*m.ReasoningDetails)) {
		aux.ReasoningDetails = json.RawMessage(*m.ReasoningDetails)
	}
	return json.Marshal(aux)
}

// ToolCall is a tool invocation emitted by an assistant message.
type ToolCall struct {
	ID             string    `json:"id"                   gorm:"primaryKey"`
	MessageID      string    `json:"messageId"            gorm:"primaryKey"`
	ConversationID string    `json:"conversationId"       gorm:"not null"`
	CallIndex      int       `json:"callIndex"            gorm:"not null"`
	ToolName       string    `json:"toolName"             gorm:"not null"`
	Arguments      string    `json:"arguments"            gorm:"not null;default:''"`
	TextOffset     *int      `json:"textOffset,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"            gorm:"not null"`
}

func (ToolCall) TableName() string { return "tool_calls" }

// ToolOutput is a result recorded for a tool call. ToolCallID is a weak reference.
type ToolOutput struct {
	ID             int64     `json:"id"                 gorm:"primaryKey;autoIncrement"`
	ToolCallID     string    `json:"toolCallId"         gorm:"not null"`
	MessageID      string    `json:"messageId"          gorm:"not null"`
	ConversationID string    `json:"conversationId"     gorm:"not null"`
	ToolName       *string   `json:"toolName,omitempty"`
	Output         string    `json:"output"             gorm:"not null;default:''"`
	Status         string    `json:"status"             gorm:"not null"`
	ExecutedAt     Timestamp `json:"executedAt"         gorm:"not null"`
}

func (ToolOutput) TableName() string { return "tool_outputs" }

// UserSetting is a named per-user value; sensitive names hold ciphertext.
type UserSetting struct {
	UserID    string    `json:"userId"    gorm:"primaryKey"`
	Name      string    `json:"name"      gorm:"primaryKey"`
	Value     string    `json:"value"     gorm:"not null"`
	CreatedAt Timestamp `json:"createdAt" gorm:"not null"`
	UpdatedAt Timestamp `json:"updatedAt" gorm:"not null"`
}

func (UserSetting) TableName() string { return "user_settings" }

// Provider is a user's LLM provider configuration. APIKey holds ciphertext when a KEK is configured.
type Provider struct {
	ID           string    `json:"id"                gorm:"primaryKey"`
	UserID       string    `json:"userId"            gorm:"not null"`
	Name         string    `json:"name"              gorm:"not null"`
	ProviderType string    `json:"providerType"      gorm:"not null"`
	BaseURL      *string   `json:"baseUrl,omitempty"`
	APIKey       *string   `json:"-"`
	IsDefault    bool      `json:"isDefault"         gorm:"not null"`
	Enabled      bool      `json:"enabled"           gorm:"not null"`
	CreatedAt    Timestamp `json:"createdAt"         gorm:"not null"`
	UpdatedAt    Timestamp `json:"updatedAt"         gorm:"not null"`
}

func (Provider) TableName() string { return "providers" }

// Evaluation is a judged comparison of several model responses to one prompt.
type Evaluation struct {
	ID             string    `json:"id"                       gorm:"primaryKey"`
	UserID         string    `json:"userId"                   gorm:"not null"`
	ConversationID *string   `json:"conversationId,omitempty"`
	Prompt         string    `json:"prompt"                   gorm:"not null"`
	JudgeModel     *string   `json:"judgeModel,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"                gorm:"not null"`

	Models []EvaluationModel `json:"models" gorm:"-"`
}

func (Evaluation) TableName() string { return "evaluations" }

// EvaluationModel is one model's response within an evaluation.
type EvaluationModel struct {
	ID           int64     `json:"id"                   gorm:"primaryKey;autoIncrement"`
	EvaluationID string    `json:"evaluationId"         gorm:"not null"`
	ProviderID   *string   `json:"providerId,omitempty"`
	Model        string    `json:"model"                gorm:"not null"`
	Response     string    `json:"response"             gorm:"not null;default:''"`
	Score        *float64  `json:"score,omitempty"`
	CreatedAt    Timestamp `json:"createdAt"            gorm:"not null"`
}

func (EvaluationModel) TableName() string { return "evaluation_models" }
