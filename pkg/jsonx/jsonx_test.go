package jsonx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/pkg/errors"
)

type llmResult struct {
	Answer     string `json:"answer"`
	Conclusion string `json:"conclusion"`
	Requery    string `json:"requery"`
}

func TestUnmarshalStrategies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  llmResult
	}{
		{
			name:  "strict",
			input: `{"answer":"select 1","conclusion":"terminate","requery":""}`,
			want:  llmResult{Answer: "select 1", Conclusion: "terminate"},
		},
		{
			name:  "fenced",
			input: "Here you go:\n```json\n{\"answer\": \"a\", \"conclusion\": \"continue\", \"requery\": \"q2\"}\n```\nthanks",
			want:  llmResult{Answer: "a", Conclusion: "continue", Requery: "q2"},
		},
		{
			name:  "python literal with apostrophe inside double quotes",
			input: `{'answer': "it's 3", 'conclusion': 'terminate', 'requery': None}`,
			want:  llmResult{Answer: "it's 3", Conclusion: "terminate"},
		},
		{
			name:  "trailing comma",
			input: "```\n{'answer': 'x', 'conclusion': 'terminate',}\n```",
			want:  llmResult{Answer: "x", Conclusion: "terminate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got llmResult
			require.NoError(t, Unmarshal(tt.input, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var got llmResult
	err := Unmarshal("I cannot answer that", &got)
	assert.True(t, errors.Is(err, errors.ErrParseFailure))

	err = Unmarshal("   ", &got)
	assert.True(t, errors.Is(err, errors.ErrParseFailure))
}

func TestUnmarshalSizeLimit(t *testing.T) {
	p := New(16)
	var got map[string]any
	err := p.Unmarshal(`{"a":"`+strings.Repeat("x", 32)+`"}`, &got)
	assert.True(t, errors.Is(err, errors.ErrPayloadTooLarge))
}

func TestEvalLiteral(t *testing.T) {
	v, err := EvalLiteral(`{'tables': ('orders', 'users'), 'n': 3, 'ok': True, 'x': -1.5}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"tables": []any{"orders", "users"},
		"n":      int64(3),
		"ok":     true,
		"x":      -1.5,
	}, v)

	_, err = EvalLiteral(`{'a': __import__('os')}`)
	assert.Error(t, err)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `[1,2]`, StripFences("```json\n[1,2]\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`result: {"a":1} done`))
	assert.Equal(t, "plain", StripFences("plain"))
}
