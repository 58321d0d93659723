package store

import (
	"strings"

	"github.com/chirino/chat-store/internal/model"
)

const (
	DefaultConversationPageSize = 20
	MaxConversationPageSize     = 100
	DefaultMessagePageSize      = 50
	MaxMessagePageSize          = 200
)

// ConversationCursor is the decoded "<createdAt>|<id>" pagination boundary.
type ConversationCursor struct {
	CreatedAt string
	ID        string
}

// EncodeConversationCursor renders the boundary of the last row on a page.
func EncodeConversationCursor(c *model.Conversation) string {
	return c.CreatedAt.String() + "|" + c.ID
}

// DecodeConversationCursor parses a cursor token. A nil or blank token means
// the first page and returns nil.
func DecodeConversationCursor(token *string) (*ConversationCursor, error) {
	if token == nil || strings.TrimSpace(*token) == "" {
		return nil, nil
	}
	createdAt, id, ok := strings.Cut(*token, "|")
	if !ok || createdAt == "" || id == "" {
		return nil, &InvalidArgumentError{Field: "cursor", Message: "expected <createdAt>|<id>"}
	}
	ts, err := model.ParseTimestamp(createdAt)
	if err != nil {
		return nil, &InvalidArgumentError{Field: "cursor", Message: err.Error()}
	}
	return &ConversationCursor{CreatedAt: ts.String(), ID: id}, nil
}

// ClampLimit applies the default when limit is 0 and clamps it to [1, max].
func ClampLimit(limit, def, max int) int {
	if limit == 0 {
		return def
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
