package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/pkg/llm"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

func fastRetry(n int) *RetryConfig {
	return &RetryConfig{MaxAttempts: n, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	now := time.Now()
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errors.New("x") })
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errors.New("x") })
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	_ = cb.Execute(func() error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return &httpclient.StatusError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return &httpclient.StatusError{StatusCode: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return &httpclient.StatusError{StatusCode: 500}
	})
	assert.Contains(t, err.Error(), "max retry attempts (2)")
	assert.Equal(t, 2, calls)
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{ErrCircuitOpen, false},
		{&httpclient.StatusError{StatusCode: 429}, true},
		{fmt.Errorf("wrapped: %w", &httpclient.StatusError{StatusCode: 502}), true},
		{&httpclient.StatusError{StatusCode: 401}, false},
		{errors.New("error, status code: 500, message: overloaded"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("invalid json"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsRetryableError(c.err), "%v", c.err)
	}
}

type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) Name() string { return "flaky" }

func (f *flakyChat) Chat(context.Context, []llm.Message, ...llm.ChatOption) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", &httpclient.StatusError{StatusCode: 502}
	}
	return "ok", nil
}

func (f *flakyChat) ChatStream(ctx context.Context, m []llm.Message, o ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	out, err := f.Chat(ctx, m, o...)
	if err != nil {
		return nil, err
	}
	return llm.SingleChunkStream(out, nil), nil
}

func TestWrapChat(t *testing.T) {
	p := &flakyChat{failures: 2}
	chat := WrapChat(p, &Config{Retry: fastRetry(3), RateLimit: 1000})

	out, err := chat.Chat(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "flaky", chat.Name())

	p2 := &flakyChat{failures: 1}
	stream, err := WrapChat(p2, &Config{Retry: fastRetry(2)}).ChatStream(context.Background(), nil)
	require.NoError(t, err)
	text, err := llm.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
