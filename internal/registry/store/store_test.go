package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/model"
)

func TestConversationCursorRoundTrip(t *testing.T) {
	c := &model.Conversation{ID: "abc", CreatedAt: model.NewTimestamp(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))}
	token := EncodeConversationCursor(c)
	assert.Equal(t, "2024-03-01T10:00:00.000Z|abc", token)

	cur, err := DecodeConversationCursor(&token)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", cur.CreatedAt)
	assert.Equal(t, "abc", cur.ID)
}

func TestDecodeConversationCursor_FirstPageAndErrors(t *testing.T) {
	cur, err := DecodeConversationCursor(nil)
	require.NoError(t, err)
	assert.Nil(t, cur)

	blank := "  "
	cur, err = DecodeConversationCursor(&blank)
	require.NoError(t, err)
	assert.Nil(t, cur)

	for _, bad := range []string{"no-separator", "|id", "2024-01-01T00:00:00.000Z|", "yesterday|id"} {
		bad := bad
		_, err = DecodeConversationCursor(&bad)
		assert.True(t, IsInvalidArgument(err), bad)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, DefaultConversationPageSize, MaxConversationPageSize))
	assert.Equal(t, 1, ClampLimit(-5, DefaultConversationPageSize, MaxConversationPageSize))
	assert.Equal(t, 100, ClampLimit(1000, DefaultConversationPageSize, MaxConversationPageSize))
	assert.Equal(t, 200, ClampLimit(201, DefaultMessagePageSize, MaxMessagePageSize))
	assert.Equal(t, 7, ClampLimit(7, DefaultMessagePageSize, MaxMessagePageSize))
}

func TestPatch_AllowList(t *testing.T) {
	p := NewPatch("title")
	require.NoError(t, p.Set("title", "x"))
	err := p.Set("user_id", "attacker")
	require.True(t, IsInvalidArgument(err))
	assert.Equal(t, []string{"title"}, p.Columns())
	assert.Equal(t, map[string]any{"title": "x"}, p.Values())
}

func TestSettingsPatch_Build(t *testing.T) {
	enabled := false
	p, err := SettingsPatch{
		ToolsEnabled: &enabled,
		QualityLevel: Value("high"),
		Verbosity:    Null[string](),
	}.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"quality_level", "tools_enabled", "verbosity"}, p.Columns())
	vals := p.Values()
	assert.Equal(t, false, vals["tools_enabled"])
	assert.Equal(t, "high", vals["quality_level"])
	assert.Nil(t, vals["verbosity"])

	empty, err := SettingsPatch{}.Build()
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestSettingsPatch_RejectsUnknownEnum(t *testing.T) {
	_, err := SettingsPatch{ReasoningEffort: Value("extreme")}.Build()
	require.True(t, IsInvalidArgument(err))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNotFound(&NotFoundError{Resource: "user", ID: "u"}))
	assert.True(t, IsConflict(&ConflictError{Code: CodeDuplicateSeq}))
	assert.True(t, IsUnavailable(&UnavailableError{}))
	assert.False(t, IsConflict(&NotFoundError{}))
	assert.Equal(t, "store unavailable", (&UnavailableError{}).Error())
}
