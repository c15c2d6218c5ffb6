package jsonextract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_FencedBlock(t *testing.T) {
	text := "Here are your questions:\n```json\n[\"Tell me about a conflict\", \"Describe a failure\"]\n```\nGood luck!"

	raw, err := Extract(text, Array)
	require.NoError(t, err)

	var questions []string
	require.NoError(t, json.Unmarshal(raw, &questions))
	assert.Equal(t, []string{"Tell me about a conflict", "Describe a failure"}, questions)
}

func TestExtract_BareObject(t *testing.T) {
	text := `Sure! {"score": 8, "feedback": "clear STAR structure"} Hope this helps.`

	raw, err := Extract(text, Object)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, float64(8), got["score"])
}

func TestExtract_AnyPicksFirst(t *testing.T) {
	raw, err := Extract(`result: [1, 2] and {"a": 1}`, Any)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2]`, string(raw))

	raw, err = Extract(`{"items": [1, 2]}`, Any)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": [1, 2]}`, string(raw))
}

func TestExtract_Repairs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"trailing comma", "[1, 2, 3,]", `[1, 2, 3]`},
		{"single quotes", "{'name': 'two sum'}", `{"name": "two sum"}`},
		{"truncated", `{"a": [1, 2`, `{"a": [1, 2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Extract(tt.text, Any)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestExtract_NoJSON(t *testing.T) {
	_, err := Extract("The model refused to answer.", Any)
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = Extract(`{"only": "object"}`, Array)
	assert.ErrorIs(t, err, ErrNoJSON)
}
