package registry

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/registry"
)

func card(name string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:         name,
		Description:  name + " analytics",
		URL:          fmt.Sprintf("http://%s.local:20001/", strings.ToLower(name)),
		Version:      "1.0.0",
		Capabilities: a2a.Capabilities{Streaming: true},
	}
}

func newRegistry(t *testing.T) (*miniredis.Miniredis, *Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, 0, options.NewOptions())
}

func TestRegisterGetList(t *testing.T) {
	mr, reg := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, card("Sales")))
	require.NoError(t, reg.Register(ctx, card("Orders")))

	got, err := reg.Get(ctx, "Orders")
	require.NoError(t, err)
	assert.Equal(t, "http://orders.local:20001/", got.URL)

	score, err := mr.ZScore("agent_heartbeats", "Orders")
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Unix()), score, 2)
	assert.True(t, mr.Exists("expert_agents:Orders"))

	mr.HSet("expert_agents", "Broken", "{not json")
	cards, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "Orders", cards[0].Name)
	assert.Equal(t, "Sales", cards[1].Name)
}

func TestRegisterLastWriterWins(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()

	c := card("Orders")
	require.NoError(t, reg.Register(ctx, c))
	c.Description = "second instance"
	require.NoError(t, reg.Register(ctx, c))

	got, err := reg.Get(ctx, "Orders")
	require.NoError(t, err)
	assert.Equal(t, "second instance", got.Description)
}

func TestRegisterRejectsInvalidCard(t *testing.T) {
	_, reg := newRegistry(t)

	err := reg.Register(context.Background(), a2a.AgentCard{Name: "x", URL: "not a url"})
	assert.ErrorIs(t, err, errors.ErrInvalidAgentCard)

	err = reg.Register(context.Background(), a2a.AgentCard{URL: "http://a/"})
	assert.ErrorIs(t, err, errors.ErrInvalidAgentCard)
}

func TestGetMissing(t *testing.T) {
	_, reg := newRegistry(t)
	_, err := reg.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, errors.ErrAgentNotFound)
}

func TestUnregister(t *testing.T) {
	mr, reg := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, card("Orders")))
	require.NoError(t, reg.Unregister(ctx, "Orders"))

	assert.False(t, mr.Exists("expert_agents:Orders"))
	_, err := reg.Get(ctx, "Orders")
	assert.ErrorIs(t, err, errors.ErrAgentNotFound)
	members, _ := mr.ZMembers("agent_heartbeats")
	assert.Empty(t, members)
}

func TestCleanupExpired(t *testing.T) {
	mr, reg := newRegistry(t)
	ctx := context.Background()
	now := time.Now()

	for _, n := range []string{"Stale", "Edge", "Fresh"} {
		require.NoError(t, reg.Register(ctx, card(n)))
	}
	_, err := mr.ZAdd("agent_heartbeats", float64(now.Add(-100*time.Second).Unix()), "Stale")
	require.NoError(t, err)
	_, err = mr.ZAdd("agent_heartbeats", float64(now.Add(-30*time.Second).Unix()), "Edge")
	require.NoError(t, err)

	removed, err := reg.CleanupExpired(ctx, now, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"Stale"}, removed)

	cards, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.False(t, mr.Exists("expert_agents:Stale"))

	removed, err = reg.CleanupExpired(ctx, now, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

// renewOnRange 在第一次 ZRANGEBYSCORE 之后由另一个连接续约 name。
type renewOnRange struct {
	other *goredis.Client
	name  string
	done  bool
}

func (h *renewOnRange) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h *renewOnRange) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func (h *renewOnRange) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		if !h.done && cmd.Name() == "zrangebyscore" {
			h.done = true
			h.other.ZAdd(ctx, "agent_heartbeats", goredis.Z{Score: float64(time.Now().Unix()), Member: h.name})
		}
		return err
	}
}

func TestCleanupExpiredSparesConcurrentHeartbeat(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	other := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		_ = other.Close()
	})
	reg := New(rdb, 0, options.NewOptions())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, reg.Register(ctx, card("Stale")))
	_, err := mr.ZAdd("agent_heartbeats", float64(now.Add(-100*time.Second).Unix()), "Stale")
	require.NoError(t, err)

	hook := &renewOnRange{other: other, name: "Stale"}
	rdb.AddHook(hook)

	removed, err := reg.CleanupExpired(ctx, now, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, hook.done)
	assert.Empty(t, removed)

	got, err := reg.Get(ctx, "Stale")
	require.NoError(t, err)
	assert.Equal(t, "Stale", got.Name)
}

func TestHeartbeatRecoversFlushedRegistration(t *testing.T) {
	mr, reg := newRegistry(t)
	ctx := context.Background()
	hb := NewHeartbeatService(reg)

	require.NoError(t, hb.Register(ctx, card("Orders")))
	assert.Equal(t, []string{"Orders"}, hb.Owned())

	mr.FlushAll()
	hb.Beat(ctx)
	hb.Beat(ctx)
	assert.False(t, mr.Exists("expert_agents"), "recovery runs only every third beat")
	_, err := mr.ZScore("agent_heartbeats", "Orders")
	require.NoError(t, err)

	hb.Beat(ctx)
	got, err := reg.Get(ctx, "Orders")
	require.NoError(t, err)
	assert.Equal(t, "Orders", got.Name)
	assert.True(t, mr.Exists("expert_agents:Orders"))
}

func TestHeartbeatStopUnregistersOwnedAgents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	opts := options.NewOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	reg := New(rdb, 0, opts)
	hb := NewHeartbeatService(reg)
	ctx := context.Background()

	require.NoError(t, hb.Register(ctx, card("Orders")))
	require.NoError(t, hb.Start(ctx))
	require.NoError(t, hb.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, hb.Stop(ctx))
	require.NoError(t, hb.Stop(ctx))

	cards, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestCleanupServiceSweep(t *testing.T) {
	mr, reg := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, card("Stale")))
	_, err := mr.ZAdd("agent_heartbeats", float64(time.Now().Add(-time.Hour).Unix()), "Stale")
	require.NoError(t, err)

	var cleaned []string
	NewCleanupService(reg, func(names []string) { cleaned = append(cleaned, names...) }).Sweep(ctx)
	assert.Equal(t, []string{"Stale"}, cleaned)
}

func TestParseChannel(t *testing.T) {
	reg := New(nil, 2, nil)
	name, ok := reg.parseChannel("__keyspace@2__:expert_agents:Orders")
	assert.True(t, ok)
	assert.Equal(t, "Orders", name)

	_, ok = reg.parseChannel("__keyspace@0__:expert_agents:Orders")
	assert.False(t, ok)
	_, ok = reg.parseChannel("__keyspace@2__:expert_agents:")
	assert.False(t, ok)
	assert.Equal(t, "__keyspace@2__:expert_agents:*", reg.keyspacePattern())
}

func TestDirectoryFollowsNotifications(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	reg := New(rdb, 0, nil)
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, card("Sales")))

	events := make(chan Event, 4)
	dir := NewDirectory(reg, func(ev Event) { events <- ev })
	require.NoError(t, dir.Start(ctx))
	assert.Equal(t, 1, dir.Len())

	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, reg.Register(ctx, card("Orders")))
	mr.Publish("__keyspace@0__:expert_agents:Orders", "set")
	ev := <-events
	assert.Equal(t, EventAdd, ev.Type)
	require.NotNil(t, ev.Card)
	assert.Equal(t, "http://orders.local:20001/", ev.Card.URL)
	assert.Equal(t, []string{"Orders", "Sales"}, names(dir.Cards()))

	mr.Publish("__keyspace@0__:expert_agents:Sales", "expire")
	require.NoError(t, reg.Unregister(ctx, "Sales"))
	mr.Publish("__keyspace@0__:expert_agents:Sales", "del")
	ev = <-events
	assert.Equal(t, EventRemove, ev.Type)
	assert.Equal(t, "Sales", ev.Name)
	assert.Equal(t, []string{"Orders"}, names(dir.Cards()))

	require.NoError(t, dir.Stop(ctx))
}

func names(cards []a2a.AgentCard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Name
	}
	return out
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Name() string { return "fake" }

func (f fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(strings.ToLower(t), "order"):
			out[i] = []float32{1, 0}
		case strings.Contains(strings.ToLower(t), "weather"):
			out[i] = []float32{0, 1}
		default:
			out[i] = []float32{0.5, 0.5}
		}
	}
	return out, nil
}

func TestRankerSemantic(t *testing.T) {
	cards := []a2a.AgentCard{
		{Name: "WeatherAgent", Description: "weather forecast"},
		{Name: "Misc", Description: "everything else"},
		{Name: "OrdersAgent", Description: "order analytics"},
	}
	got := NewRanker(fakeEmbedder{}).Rank(context.Background(), "orders last month", cards, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "OrdersAgent", got[0].Card.Name)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "Misc", got[1].Card.Name)
}

func TestRankerKeywordFallback(t *testing.T) {
	cards := []a2a.AgentCard{
		{Name: "OrdersAgent", Description: "order analytics"},
		{Name: "WeatherAgent", Description: "weather forecast"},
	}
	for _, r := range []*Ranker{NewRanker(nil), NewRanker(fakeEmbedder{err: fmt.Errorf("down")})} {
		got := r.Rank(context.Background(), "weather tomorrow", cards, 0)
		require.Len(t, got, 2)
		assert.Equal(t, "WeatherAgent", got[0].Card.Name)
		assert.InDelta(t, 0.5, got[0].Score, 1e-9)
		assert.Zero(t, got[1].Score)
	}
	assert.Nil(t, NewRanker(nil).Rank(context.Background(), "q", nil, 3))
}
