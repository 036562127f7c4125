package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type card struct {
	Name   string   `json:"name"`
	Skills []string `json:"skills,omitempty"`
}

func TestMarshalKeepsMapKeysSorted(t *testing.T) {
	got, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(got))
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(card{Name: "sales", Skills: []string{"sql"}}))

	var out card
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	assert.Equal(t, "sales", out.Name)
	assert.Equal(t, []string{"sql"}, out.Skills)
}

func TestMarshalString(t *testing.T) {
	assert.Equal(t, `{"name":"x"}`, MarshalString(card{Name: "x"}))
	assert.Equal(t, "", MarshalString(func() {}))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":1}`)))
	assert.False(t, Valid([]byte(`{'a':1}`)))
}
