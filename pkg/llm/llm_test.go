package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu         sync.Mutex
	embedCalls [][]string
	inflight   atomic.Int32
	peak       atomic.Int32
	reply      string
	chunks     []string
	delay      time.Duration
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls = append(f.embedCalls, texts)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeProvider) Chat(_ context.Context, _ []Message, _ ...ChatOption) (string, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	return f.reply, nil
}

func (f *fakeProvider) ChatStream(_ context.Context, _ []Message, _ ...ChatOption) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- StreamChunk{Content: c}
	}
	close(ch)
	return ch, nil
}

func TestGateBoundsConcurrency(t *testing.T) {
	p := &fakeProvider{reply: "ok", delay: 20 * time.Millisecond}
	gate := NewGate(2, nil)
	chat := gate.WrapChat(p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := chat.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
			assert.NoError(t, err)
			assert.Equal(t, "ok", out)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.peak.Load(), int32(2))
	assert.Equal(t, 2, gate.Size())
}

func TestGateStreamReleasesSlot(t *testing.T) {
	p := &fakeProvider{chunks: []string{"a", "b", "c"}}
	gate := NewGate(1, nil)
	chat := gate.WrapChat(p)

	for i := 0; i < 3; i++ {
		ch, err := chat.ChatStream(context.Background(), nil)
		require.NoError(t, err)
		out, err := Collect(ch)
		require.NoError(t, err)
		assert.Equal(t, "abc", out)
	}
}

func TestGateAcquireCancelled(t *testing.T) {
	gate := NewGate(1, nil)
	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachedEmbeddingProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := &fakeProvider{}
	cached := NewCachedEmbeddingProvider(p, rdb, nil)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	second, err := cached.Embed(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []float32{3, 1}, second[1])

	require.Len(t, p.embedCalls, 2)
	assert.Equal(t, []string{"ccc"}, p.embedCalls[1])

	single, err := cached.EmbedSingle(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first[0], single)
	assert.Len(t, p.embedCalls, 2)
}

func TestCachedEmbeddingWithoutRedis(t *testing.T) {
	p := &fakeProvider{}
	cached := NewCachedEmbeddingProvider(p, nil, nil)
	_, err := cached.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, p.embedCalls, 2)
}

func TestRegistry(t *testing.T) {
	RegisterProvider("fake-test", func(map[string]any) (Provider, error) { return &fakeProvider{}, nil })
	p, err := NewChatProvider("fake-test", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Name())
	assert.Contains(t, ListProviders(), "fake-test")

	_, err = NewProvider("missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake-test")
}

func TestGenerateAndCollect(t *testing.T) {
	p := &fakeProvider{reply: "answer"}
	out, err := Generate(context.Background(), p, "q", "sys")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	_, err = Collect(SingleChunkStream("", errors.New("boom")))
	assert.EqualError(t, err, "boom")
}

func TestConfigHelpers(t *testing.T) {
	cfg := map[string]any{"t": 5 * time.Second, "s": "2s", "i": 3, "f": 0.5}
	assert.Equal(t, 5*time.Second, ConfigDuration(cfg, "t", time.Second))
	assert.Equal(t, 2*time.Second, ConfigDuration(cfg, "s", time.Second))
	assert.Equal(t, time.Second, ConfigDuration(cfg, "missing", time.Second))
	assert.Equal(t, 3, ConfigInt(cfg, "i", 1))
	assert.Equal(t, 0.5, ConfigFloat(cfg, "f", 1))
}
