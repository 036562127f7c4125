package httpclient

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSSE(t *testing.T) {
	stream := ": keepalive\n\nevent: artifact\nid: 1\ndata: {\"a\":1}\n\ndata: line1\ndata: line2\n\ndata: [DONE]"
	var events []Event
	err := ReadSSE(strings.NewReader(stream), func(e Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Name: "artifact", ID: "1", Data: `{"a":1}`}, events[0])
	assert.Equal(t, "line1\nline2", events[1].Data)
	assert.Equal(t, "[DONE]", events[2].Data)
}

func TestReadSSEStopsOnEOF(t *testing.T) {
	stream := "data: a\n\ndata: b\n\n"
	var seen []string
	err := ReadSSE(strings.NewReader(stream), func(e Event) error {
		seen = append(seen, e.Data)
		return io.EOF
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, seen)
}
