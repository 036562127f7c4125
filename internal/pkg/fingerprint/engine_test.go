package fingerprint

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/internal/pkg/textutil"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/pool"
	"github.com/kart-io/dataagent/pkg/llm"
	fpopts "github.com/kart-io/dataagent/pkg/options/fingerprint"
)

var firstTableRE = regexp.MustCompile("Table: `([a-z0-9_]+)`")

// fakeChat 按提示词类型返回固定结果。
type fakeChat struct {
	calls     atomic.Int32
	mu        sync.Mutex
	prompts   []string
	failTable string
	agentOut  []string
	agentIdx  atomic.Int32
}

func (f *fakeChat) Name() string { return "fake" }

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, _ ...llm.ChatOption) (string, error) {
	f.calls.Add(1)
	last := messages[len(messages)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, last)
	f.mu.Unlock()

	if messages[0].Role == llm.RoleSystem {
		i := int(f.agentIdx.Add(1)) - 1
		if i < len(f.agentOut) {
			return f.agentOut[i], nil
		}
		return `{"name": "ShopAgent", "description": "orders"}`, nil
	}

	m := firstTableRE.FindStringSubmatch(last)
	if m == nil {
		return "combined summary", nil
	}
	if m[1] == f.failTable {
		return "", stderrors.New("model overloaded")
	}
	return "summary of " + m[1], nil
}

func (f *fakeChat) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	out, err := f.Chat(ctx, messages, opts...)
	return llm.SingleChunkStream(out, err), nil
}

func newTestEngine(t *testing.T, chat llm.ChatProvider, maxChars int) *Engine {
	t.Helper()
	p, err := pool.NewPool("fingerprint", pool.FingerprintPool, &pool.Config{Capacity: 10, ExpiryDuration: time.Second})
	require.NoError(t, err)
	t.Cleanup(p.Release)

	opts := fpopts.NewOptions()
	opts.AgentInfoBackoff = time.Millisecond
	if maxChars > 0 {
		opts.MaxCombinedChars = maxChars
	}
	return NewEngine(chat, p, opts)
}

func tables(n int) []source.TableSchema {
	out := make([]source.TableSchema, n)
	for i := range out {
		out[i] = source.TableSchema{
			TableName: fmt.Sprintf("t%d", i),
			Columns:   []source.Column{{Name: "id", Type: "int", Key: "PRI"}},
		}
	}
	return out
}

func TestAnalyzeEmptyInput(t *testing.T) {
	chat := &fakeChat{}
	e := newTestEngine(t, chat, 0)

	res, err := e.Analyze(context.Background(), nil, descriptor.KindMySQL, 5)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, chat.calls.Load())
}

func TestAnalyzeSingleBatch(t *testing.T) {
	chat := &fakeChat{}
	e := newTestEngine(t, chat, 0)

	res, err := e.Analyze(context.Background(), Tables(tables(3)), descriptor.KindMySQL, 5)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "summary of t0", res.Summary)
	assert.Equal(t, textutil.MD5(res.Summary), res.FingerprintID)
	require.Len(t, res.Batches, 1)
	assert.Equal(t, 0, res.Batches[0].BatchNumber)
	assert.Equal(t, "ShopAgent", res.AgentName)
	// one summary plus one agent info call
	assert.EqualValues(t, 2, chat.calls.Load())

	md := res.Metadata()
	assert.Equal(t, res.FingerprintID, md["fingerprint_id"])
	assert.Equal(t, len("summary of t0"), md["fingerprint_length"])
	assert.Equal(t, "orders", md["agent_info_description"])
}

func TestAnalyzeMultipleBatchesCombines(t *testing.T) {
	chat := &fakeChat{}
	e := newTestEngine(t, chat, 0)

	res, err := e.Analyze(context.Background(), Tables(tables(12)), descriptor.KindPostgres, 5)
	require.NoError(t, err)

	require.Len(t, res.Batches, 3)
	for i, want := range []string{"t0", "t5", "t10"} {
		assert.Equal(t, i, res.Batches[i].BatchNumber)
		assert.Equal(t, "summary of "+want, res.Batches[i].FingerprintSummary)
		assert.Equal(t, textutil.MD5("summary of "+want), res.Batches[i].FingerprintID)
	}
	assert.Equal(t, "combined summary", res.Summary)
	assert.Equal(t, textutil.MD5("combined summary"), res.FingerprintID)
	// three batches, one combine, one agent info
	assert.EqualValues(t, 5, chat.calls.Load())

	var combinedPrompt string
	for _, p := range chat.prompts {
		if strings.Contains(p, "summary of t0\nsummary of t5\nsummary of t10") {
			combinedPrompt = p
		}
	}
	assert.NotEmpty(t, combinedPrompt)
}

func TestAnalyzeDropsFailedBatch(t *testing.T) {
	chat := &fakeChat{failTable: "t5"}
	e := newTestEngine(t, chat, 0)

	res, err := e.Analyze(context.Background(), Tables(tables(12)), descriptor.KindMySQL, 5)
	require.NoError(t, err)

	require.Len(t, res.Batches, 2)
	assert.Equal(t, 0, res.Batches[0].BatchNumber)
	assert.Equal(t, 2, res.Batches[1].BatchNumber)
	assert.Equal(t, "combined summary", res.Summary)
}

func TestAnalyzeAllBatchesFail(t *testing.T) {
	chat := &fakeChat{failTable: "t0"}
	e := newTestEngine(t, chat, 0)

	_, err := e.Analyze(context.Background(), Tables(tables(2)), descriptor.KindMySQL, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoFingerprint))
}

func TestAnalyzeDocuments(t *testing.T) {
	chat := &fakeChat{}
	e := newTestEngine(t, chat, 0)

	docs := []descriptor.Document{
		{PageContent: "Table: `alpha` notes"},
		{PageContent: "second chunk"},
	}
	res, err := e.Analyze(context.Background(), Documents(docs), descriptor.KindMinIO, 5)
	require.NoError(t, err)
	assert.Equal(t, "summary of alpha", res.Summary)
	assert.Contains(t, chat.prompts[0], "Table: `alpha` notes\nsecond chunk")
}

func TestAgentInfoRecoversAndRetries(t *testing.T) {
	chat := &fakeChat{agentOut: []string{
		"I cannot answer that",
		"```json\n{'name': 'LoanAgent', 'description': 'loans'}\n```",
	}}
	e := newTestEngine(t, chat, 0)

	info, err := e.AgentInfo(context.Background(), "summary")
	require.NoError(t, err)
	assert.Equal(t, "LoanAgent", info.Name)
	assert.Equal(t, "loans", info.Description)
	assert.EqualValues(t, 2, chat.calls.Load())
}

func TestAgentInfoGivesUp(t *testing.T) {
	chat := &fakeChat{agentOut: []string{"no", "no", "no", "no"}}
	e := newTestEngine(t, chat, 0)

	_, err := e.AgentInfo(context.Background(), "summary")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrParseFailure))
	// one attempt plus three retries
	assert.EqualValues(t, 4, chat.calls.Load())
}

func TestCombine(t *testing.T) {
	assert.Equal(t, "aa\nbb", combine([]string{"aa", "bb"}, 10))

	// over the cap: each part keeps 10/3 = 3 characters
	got := combine([]string{"aaaaaa", "bbbbbb", "cccccc"}, 10)
	assert.Equal(t, "aaa\nbbb\ncc", got)
	assert.LessOrEqual(t, len(got), 10)

	assert.Equal(t, "指纹\n摘要", combine([]string{"指纹长文", "摘要长文"}, 5))
}
