package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Text(t *testing.T) {
	flat, canonical := Text("hello").Normalize()
	assert.Equal(t, "hello", flat)
	assert.Nil(t, canonical)
}

func TestNormalize_MixedConcatenatesTextInOrder(t *testing.T) {
	c := Mixed(TextSegment("look at "), ImageSegment("https://img/1.png"), TextSegment("this"))
	flat, canonical := c.Normalize()
	assert.Equal(t, "look at this", flat)
	require.NotNil(t, canonical)
	assert.JSONEq(t, `[{"type":"text","text":"look at "},{"type":"image","image_url":"https://img/1.png"},{"type":"text","text":"this"}]`, *canonical)
}

func TestNormalize_EmptyMixed(t *testing.T) {
	flat, canonical := Mixed().Normalize()
	assert.Empty(t, flat)
	require.NotNil(t, canonical)
	assert.Equal(t, "[]", *canonical)
}

func TestParse_ContentJSONIsAuthoritative(t *testing.T) {
	structured := `[{"type":"text","text":"from json"}]`
	c := Parse("stale flat text", &structured)
	assert.True(t, c.IsMixed())
	assert.Equal(t, "from json", c.Flat())

	broken := "{not json"
	c = Parse("flat", &broken)
	assert.False(t, c.IsMixed())
	assert.Equal(t, "flat", c.Flat())

	c = Parse("flat", nil)
	assert.Equal(t, []Segment{TextSegment("flat")}, c.Segments())
}

func TestJSONPolymorphicShape(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &c))
	assert.False(t, c.IsMixed())
	assert.Equal(t, "plain", c.Flat())

	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"image","image_url":"u"}]`), &c))
	assert.True(t, c.IsMixed())
	assert.Len(t, c.Segments(), 2)

	require.Error(t, json.Unmarshal([]byte(`42`), &c))

	data, err := json.Marshal(Text("x"))
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(data))
}
