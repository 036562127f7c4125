package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/pkg/llm"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "sk-test"
	cfg.MaxRetries = 0
	return NewProviderWithConfig(cfg)
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(map[string]any{})
	require.Error(t, err)

	p, err := llm.NewProvider(ProviderName, map[string]any{"api_key": "k", "chat_model": "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
}

func TestChat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.False(t, req.Stream)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.2, *req.Temperature, 1e-6)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	})

	out, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		llm.WithJSONMode(), llm.WithTemperature(0.2))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestChatStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	out, err := llm.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestChatStatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})
	_, err := p.Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEmbedOrdersByIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	})
	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, out)
}
