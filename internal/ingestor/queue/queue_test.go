package queue

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	ingestopts "github.com/kart-io/dataagent/pkg/options/ingest"
)

type fakeHandler struct {
	mu   sync.Mutex
	jobs []*descriptor.Job
	errs []error
}

func (h *fakeHandler) Handle(_ context.Context, job *descriptor.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.jobs)
	h.jobs = append(h.jobs, job)
	if n < len(h.errs) {
		return h.errs[n]
	}
	return nil
}

func (h *fakeHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

func deleteJob() *descriptor.Job {
	return &descriptor.Job{Operation: descriptor.OperationDelete, Descriptor: descriptor.Ref{Namespace: "team-a", Name: "sales"}}
}

func newRedisStream(t *testing.T, h Handler) (*RedisStream, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	opts := ingestopts.NewOptions()
	opts.RedisStream = "dataagent:ingest"
	opts.RedisConsumer = "worker-1"
	opts.ClaimIdle = 20 * time.Millisecond
	opts.BlockTimeout = 20 * time.Millisecond
	return NewRedisStream(rdb, h, opts), rdb
}

func pending(t *testing.T, rdb *redis.Client) int64 {
	t.Helper()
	p, err := rdb.XPending(context.Background(), "dataagent:ingest", "ingestor").Result()
	require.NoError(t, err)
	return p.Count
}

func TestRedisStreamAcksHandledJob(t *testing.T) {
	h := &fakeHandler{}
	rs, rdb := newRedisStream(t, h)
	ctx := context.Background()

	require.NoError(t, rs.Start(ctx))
	t.Cleanup(func() { _ = rs.Stop(context.Background()) })
	require.NoError(t, rs.Publish(ctx, deleteJob()))

	require.Eventually(t, func() bool { return h.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "delete:team_a_sales", h.jobs[0].Key())
	assert.Eventually(t, func() bool { return pending(t, rdb) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisStreamReclaimsFailedJob(t *testing.T) {
	h := &fakeHandler{errs: []error{errors.ErrSourceUnavailable}}
	rs, rdb := newRedisStream(t, h)
	ctx := context.Background()

	require.NoError(t, rs.Start(ctx))
	t.Cleanup(func() { _ = rs.Stop(context.Background()) })
	require.NoError(t, rs.Publish(ctx, deleteJob()))

	require.Eventually(t, func() bool { return h.calls() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return pending(t, rdb) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisStreamDropsInvalidJobs(t *testing.T) {
	h := &fakeHandler{errs: []error{errors.ErrInvalidDescriptor}}
	rs, rdb := newRedisStream(t, h)
	ctx := context.Background()

	require.NoError(t, rs.Start(ctx))
	t.Cleanup(func() { _ = rs.Stop(context.Background()) })
	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: "dataagent:ingest", Values: map[string]any{jobField: "{not json"}}).Err())
	require.NoError(t, rs.Publish(ctx, deleteJob()))

	require.Eventually(t, func() bool { return h.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return pending(t, rdb) == 0 }, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.calls())
}

func TestRedisStreamStartTwiceKeepsGroup(t *testing.T) {
	rs, _ := newRedisStream(t, &fakeHandler{})
	require.NoError(t, rs.ensureGroup(context.Background()))
	require.NoError(t, rs.ensureGroup(context.Background()))
}

// fakeMsg 只实现消费逻辑用到的方法。
type fakeMsg struct {
	jetstream.Msg
	data     []byte
	acked    bool
	nakDelay time.Duration
	termed   string
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { m.acked = true; return nil }

func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.nakDelay = d
	return nil
}

func (m *fakeMsg) TermWithReason(reason string) error {
	m.termed = reason
	return nil
}

func (m *fakeMsg) InProgress() error { return nil }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: 1}, nil
}

type fakeStream struct {
	published [][]byte
}

func (s *fakeStream) Consumer(context.Context) (jetstream.Consumer, error) {
	return nil, stderrors.New("not connected")
}

func (s *fakeStream) Publish(_ context.Context, data []byte) error {
	s.published = append(s.published, data)
	return nil
}

func TestJetStreamProcess(t *testing.T) {
	ctx := context.Background()
	stream := &fakeStream{}
	h := &fakeHandler{errs: []error{nil, errors.ErrSourceTimeout, errors.ErrInvalidDescriptor}}
	js := NewJetStream(stream, h, 30*time.Second, time.Minute)

	require.NoError(t, js.Publish(ctx, deleteJob()))
	require.Len(t, stream.published, 1)

	ok := &fakeMsg{data: stream.published[0]}
	js.process(ctx, ok)
	assert.True(t, ok.acked)

	retry := &fakeMsg{data: stream.published[0]}
	js.process(ctx, retry)
	assert.False(t, retry.acked)
	assert.Equal(t, 30*time.Second, retry.nakDelay)

	invalid := &fakeMsg{data: stream.published[0]}
	js.process(ctx, invalid)
	assert.False(t, invalid.acked)
	assert.NotEmpty(t, invalid.termed)

	malformed := &fakeMsg{data: []byte("{")}
	js.process(ctx, malformed)
	assert.Equal(t, "malformed job", malformed.termed)
	assert.Equal(t, 3, h.calls())
}

func TestJetStreamStartFailsWithoutConsumer(t *testing.T) {
	js := NewJetStream(&fakeStream{}, &fakeHandler{}, time.Second, time.Minute)
	assert.Error(t, js.Start(context.Background()))
	assert.NoError(t, js.Stop(context.Background()))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
	assert.Equal(t, 16*time.Second, backoff(5))
	assert.Equal(t, 30*time.Second, backoff(10))
}
