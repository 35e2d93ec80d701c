package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "bare object",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "object in markdown fences",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "object surrounded by prose",
			input:    "Sure, here you go: {\"a\": 1} hope that helps!",
			expected: `{"a": 1}`,
		},
		{
			name:     "think tag stripped",
			input:    "<think>let me reason about braces {</think>{\"a\": 1}",
			expected: `{"a": 1}`,
		},
		{
			name:     "array payload",
			input:    "results: [1, 2, 3]",
			expected: `[1, 2, 3]`,
		},
		{
			name:     "braces inside strings do not confuse depth",
			input:    `{"evidence": "INSERT INTO t VALUES ('{')"}`,
			expected: `{"evidence": "INSERT INTO t VALUES ('{')"}`,
		},
		{
			name:    "no json at all",
			input:   "I found nothing worth proposing.",
			wantErr: true,
		},
		{
			name:    "unterminated object",
			input:   `{"a": 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("valid", func(t *testing.T) {
		got, err := ParseJSONResponse[payload]("```json\n{\"name\": \"orders\", \"count\": 3}\n```")
		require.NoError(t, err)
		assert.Equal(t, payload{Name: "orders", Count: 3}, got)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ParseJSONResponse[payload](`{"name": "orders", "count": "three"}`)
		assert.Error(t, err)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseJSONResponse[payload]("nothing here")
		assert.Error(t, err)
	})
}
