package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/planner"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/llm"
	expertopts "github.com/kart-io/dataagent/pkg/options/expert"
)

const errReply = "!error"

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

var promptKinds = []struct {
	name   string
	marker string
}{
	{"task", firstLine(taskAnalyzePrompt)},
	{"sql", firstLine(mysqlPrompt)},
	{"pgsql", firstLine(postgresPrompt)},
	{"tables", firstLine(tableSelectorPrompt)},
	{"dims", firstLine(dimensionSelectorPrompt)},
	{"common", firstLine(commonPrompt)},
	{"unstructured", firstLine(unstructuredPrompt)},
	{"requery", firstLine(requeryPrompt)},
	{"requery-sql", firstLine(requerySQLPrompt)},
	{"observe-sql", firstLine(observeSQLPrompt)},
	{"observe-common", firstLine(observeCommonPrompt)},
	{"observe-unstructured", firstLine(observeUnstructuredPrompt)},
}

type chatCall struct {
	kind   string
	system string
	user   string
	stuck  bool
}

// scriptedChat 按提示词类型依次返回预设回复，队列只剩一条时重复返回。
type scriptedChat struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   []chatCall
}

func newScriptedChat(replies map[string][]string) *scriptedChat {
	return &scriptedChat{replies: replies}
}

func (c *scriptedChat) Name() string { return "scripted" }

func (c *scriptedChat) Chat(ctx context.Context, messages []llm.Message, _ ...llm.ChatOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	system := messages[0].Content
	stuck := strings.HasPrefix(system, stuckPrompt)
	system = strings.TrimPrefix(system, stuckPrompt+"\n")

	kind := "unknown"
	for _, k := range promptKinds {
		if strings.HasPrefix(system, k.marker) {
			kind = k.name
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, chatCall{kind: kind, system: system, user: messages[1].Content, stuck: stuck})

	queue := c.replies[kind]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply for %s", kind)
	}
	reply := queue[0]
	if len(queue) > 1 {
		c.replies[kind] = queue[1:]
	}
	if reply == errReply {
		return "", fmt.Errorf("%s: connection reset", kind)
	}
	return reply, nil
}

func (c *scriptedChat) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	out, err := c.Chat(ctx, messages, opts...)
	return llm.SingleChunkStream(out, err), nil
}

func (c *scriptedChat) callsOf(kind string) []chatCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chatCall
	for _, call := range c.calls {
		if call.kind == kind {
			out = append(out, call)
		}
	}
	return out
}

type fakeReader struct {
	mu       sync.Mutex
	schemas  []source.TableSchema
	results  map[string][]map[string]any
	errs     map[string]error
	queries  []string
	describe [][]string
}

func (r *fakeReader) ListTables(context.Context, string) ([]source.TableInfo, error) {
	return nil, nil
}

func (r *fakeReader) Describe(_ context.Context, tables []string) ([]source.TableSchema, error) {
	r.mu.Lock()
	r.describe = append(r.describe, tables)
	r.mu.Unlock()
	if len(tables) == 0 {
		return r.schemas, nil
	}
	var out []source.TableSchema
	for _, s := range r.schemas {
		for _, t := range tables {
			if s.TableName == t {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (r *fakeReader) Sample(_ context.Context, tables []string, _ int) ([]source.TableSample, error) {
	out := make([]source.TableSample, len(tables))
	for i, t := range tables {
		out[i] = source.TableSample{TableName: t}
	}
	return out, nil
}

func (r *fakeReader) ForeignKeys(context.Context, []string) (*source.Relationships, error) {
	return &source.Relationships{}, nil
}

func (r *fakeReader) ExecuteQuery(_ context.Context, stmt string, _ ...any) ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, stmt)
	if err, ok := r.errs[stmt]; ok {
		return nil, err
	}
	return r.results[stmt], nil
}

func (r *fakeReader) Close() error { return nil }

type stubBackend struct {
	mu       sync.Mutex
	content  string
	searches []string
}

func (b *stubBackend) EnsureCollection(context.Context, string) error { return nil }

func (b *stubBackend) AddDocuments(context.Context, string, []descriptor.Document) error { return nil }

func (b *stubBackend) DeleteCollection(context.Context, string) error { return nil }

func (b *stubBackend) Search(_ context.Context, collection string, req retrieval.SearchRequest) (*retrieval.SearchResult, error) {
	b.mu.Lock()
	b.searches = append(b.searches, req.Query)
	b.mu.Unlock()
	return &retrieval.SearchResult{
		Collection:   collection,
		VectorResult: []retrieval.VectorResult{{Content: b.content}},
	}, nil
}

var ordersSchema = []source.TableSchema{{
	TableName: "orders",
	Columns: []source.Column{
		{Name: "order_id", Type: "bigint"},
		{Name: "city", Type: "varchar(32)"},
		{Name: "quantity", Type: "int(11)"},
		{Name: "total", Type: "decimal(10,2)"},
	},
}}

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }

func structured() descriptor.Binding {
	return descriptor.Binding{Name: "OrdersAgent", Type: descriptor.AgentStructured, DBType: descriptor.KindMySQL}
}

func unstructured() descriptor.Binding {
	return descriptor.Binding{Name: "DocsAgent", Type: descriptor.AgentUnstructured}
}

func newAgent(t *testing.T, chat llm.ChatProvider, binding descriptor.Binding, opts *expertopts.Options, options ...Option) *Agent {
	t.Helper()
	if opts == nil {
		opts = expertopts.NewOptions()
	}
	options = append(options, WithClock(fixedNow))
	a, err := New(chat, binding, []string{"ns_orders"}, opts, options...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func collect(chunks *[]string) func(string) error {
	return func(s string) error {
		*chunks = append(*chunks, s)
		return nil
	}
}

func TestNewValidatesBinding(t *testing.T) {
	_, err := New(newScriptedChat(nil), structured(), nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = New(newScriptedChat(nil), descriptor.Binding{Name: "x", Type: "graph"}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	a, err := New(newScriptedChat(nil), unstructured(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "DocsAgent", a.Name())
	a.Close()
}

func TestSQLAnswerAccepted(t *testing.T) {
	chat := newScriptedChat(map[string][]string{
		"task":   {`{"task": "上海的销售额", "conclusion": "sql"}`},
		"tables": {`["orders"]`},
		"dims": {`{"dimensions": [
			{"name": "城市", "column": "city", "table": "orders", "sql": "SELECT DISTINCT city FROM orders"},
			{"name": "订单", "column": "order_id", "table": "orders", "sql": "SELECT DISTINCT order_id FROM orders"},
			{"name": "数量", "column": "quantity", "table": "orders", "sql": "SELECT DISTINCT quantity FROM orders"}
		], "reason": ""}`},
		"sql":         {"{\"answer\": \"```sql\\nSELECT SUM(total) AS total FROM orders WHERE city = '上海';\\n```\", \"conclusion\": \"terminate\"}"},
		"observe-sql": {`{"reason": "sum of shanghai orders", "conclusion": "terminate"}`},
	})
	reader := &fakeReader{
		schemas: ordersSchema,
		results: map[string][]map[string]any{
			"SELECT DISTINCT city FROM orders":                          {{"city": "上海"}, {"city": "北京"}, {"city": "上海"}, {"city": ""}, {"city": nil}},
			"SELECT SUM(total) AS total FROM orders WHERE city = '上海'": {{"total": 42}},
		},
	}
	backend := &stubBackend{content: "orders: one row per order"}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)

	a := newAgent(t, chat, structured(), nil, WithReader(reader), WithBackend(backend, nil), WithMetrics(m), WithGate(llm.NewGate(2, nil)))

	var chunks []string
	v, err := a.run(context.Background(), Request{Query: "上海的销售额"}, collect(&chunks))
	require.NoError(t, err)

	assert.Equal(t, StateFinished, v.state)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0], "step 1/5: query: 上海的销售额\n\nconditions:城市（数据库字段：city，表：orders）包括：上海, 北京\n\nanswer: \nsql: SELECT SUM(total) AS total FROM orders WHERE city = '上海', "))
	assert.Contains(t, chunks[0], `"total": 42`)
	assert.Contains(t, chunks[0], "reason:"+SuccessSentinel+" ,sum of shanghai orders")

	assert.Equal(t, [][]string{{"orders"}}, reader.describe)
	assert.NotContains(t, reader.queries, "SELECT DISTINCT order_id FROM orders")
	assert.NotContains(t, reader.queries, "SELECT DISTINCT quantity FROM orders")
	assert.Equal(t, []string{"上海的销售额"}, backend.searches)

	sqlCall := chat.callsOf("sql")
	require.Len(t, sqlCall, 1)
	assert.Contains(t, sqlCall[0].system, "2025-03-01 08:00:00")
	assert.Contains(t, sqlCall[0].system, "Tables Schema:")
	assert.Contains(t, sqlCall[0].system, "城市（数据库字段：city，表：orders）包括：上海, 北京")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExpertSteps.WithLabelValues(pathSQL, outcomeFinished)))
}

func TestSQLEmptyResultAccepted(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.SQLProcessMode = expertopts.ModeDirect

	chat := newScriptedChat(map[string][]string{
		"task":        {`{"task": "q", "conclusion": "sql"}`},
		"pgsql":       {`{"answer": "SELECT name FROM users WHERE age > 200", "conclusion": "terminate"}`},
		"observe-sql": {`{"reason": "nobody that old", "conclusion": "terminate"}`},
	})
	binding := structured()
	binding.DBType = descriptor.KindPostgres
	reader := &fakeReader{schemas: ordersSchema}

	a := newAgent(t, chat, binding, opts, WithReader(reader))

	var chunks []string
	require.NoError(t, a.Run(context.Background(), Request{Query: "q"}, collect(&chunks)))

	require.Len(t, chunks, 1)
	assert.Equal(t,
		"step 1/5: query: q\n\nanswer: \nsql: SELECT name FROM users WHERE age > 200 \n\nsql query result: not found records\n\nreason:"+SuccessSentinel+" ,nobody that old\n",
		chunks[0])
	assert.Empty(t, chat.callsOf("tables"))
	assert.Empty(t, reader.describe)
}

func TestSQLErrorThenRequery(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.SQLProcessMode = expertopts.ModeDirect

	chat := newScriptedChat(map[string][]string{
		"task": {`{"task": "q", "conclusion": "sql"}`},
		"sql": {
			`{"answer": "SELECT totl FROM orders", "conclusion": "terminate"}`,
			`{"answer": "SELECT total FROM orders", "conclusion": "terminate"}`,
		},
		"requery-sql": {`{"requery": "q2", "conclusion": "terminate"}`},
		"observe-sql": {`{"reason": "ok", "conclusion": "terminate"}`},
	})
	reader := &fakeReader{
		errs:    map[string]error{"SELECT totl FROM orders": fmt.Errorf("unknown column totl")},
		results: map[string][]map[string]any{"SELECT total FROM orders": {{"total": "9.50"}}},
	}

	a := newAgent(t, chat, structured(), opts, WithReader(reader))

	var chunks []string
	v, err := a.run(context.Background(), Request{Query: "q"}, collect(&chunks))
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "step 1/5: query: q\n\nanswer: sql error:unknown column totl, sql: SELECT totl FROM orders\n", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "step 2/5: query: q2\n\n"))
	assert.Contains(t, chunks[1], SuccessSentinel)

	assert.Equal(t, []string{"q"}, v.oldQueries)
	assert.Equal(t, "q2", v.query)
	assert.Equal(t, StateFinished, v.state)

	requery := chat.callsOf("requery-sql")
	require.Len(t, requery, 1)
	assert.Contains(t, requery[0].system, "sql error: unknown column totl")

	second := chat.callsOf("sql")[1]
	assert.Contains(t, second.system, "query 1: q")
	assert.Equal(t, "q2", second.user)
}

func TestSQLRecordsRejected(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.SQLProcessMode = expertopts.ModeDirect
	opts.MaxSteps = 1

	chat := newScriptedChat(map[string][]string{
		"task":        {`{"task": "q", "conclusion": "sql"}`},
		"sql":         {`{"answer": "SELECT city FROM orders", "conclusion": "terminate"}`},
		"observe-sql": {`{"reason": "missing totals", "conclusion": "continue"}`},
		"requery-sql": {`{"requery": "", "conclusion": "continue"}`},
	})
	reader := &fakeReader{results: map[string][]map[string]any{"SELECT city FROM orders": {{"city": "北京"}}}}

	a := newAgent(t, chat, structured(), opts, WithReader(reader))

	var chunks []string
	v, err := a.run(context.Background(), Request{Query: "q"}, collect(&chunks))
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "answer: searched records do not meet query, sql: SELECT city FROM orders, \n\nsql query result: ")
	assert.Contains(t, chunks[0], "reason: missing totals")
	assert.NotContains(t, chunks[0], SuccessSentinel)
	assert.Equal(t, StateIdle, v.state)
	assert.Empty(t, v.oldQueries)
}

func TestNoSQLPathReviewed(t *testing.T) {
	chat := newScriptedChat(map[string][]string{
		"task":           {`{"task": "q", "conclusion": "nosql"}`},
		"common":         {`{"answer": "the average is 12", "conclusion": "terminate"}`},
		"observe-common": {`{"reason": "uses task 1 result", "conclusion": "terminate"}`},
	})
	statuses := []planner.TaskStatus{
		{Task: planner.Task{ID: 1, Description: "list totals", Agent: "OrdersAgent"}, Answer: "10, 14", Status: planner.StatusComplete},
		{Task: planner.Task{ID: 2, Description: "average the totals", Agent: "OrdersAgent"}, Status: planner.StatusNotStarted},
	}

	a := newAgent(t, chat, structured(), nil, WithReader(&fakeReader{}))

	var chunks []string
	require.NoError(t, a.Run(context.Background(), Request{
		Query:         "average the totals",
		CurrentTask:   "average the totals",
		CurrentTaskID: 2,
		Statuses:      statuses,
	}, collect(&chunks)))

	require.Len(t, chunks, 1)
	assert.Equal(t, "step 1/5: query: average the totals\n\nanswer: the average is 12, \n\nreason:"+SuccessSentinel+" ,uses task 1 result\n", chunks[0])

	common := chat.callsOf("common")
	require.Len(t, common, 1)
	assert.Contains(t, common[0].system, "Task 1: list totals")
	observe := chat.callsOf("observe-common")
	require.Len(t, observe, 1)
	assert.Equal(t, "question: average the totals\n\nanswer: the average is 12", observe[0].user)
}

func TestUnstructuredRejectedThenAccepted(t *testing.T) {
	chat := newScriptedChat(map[string][]string{
		"unstructured": {
			`{"answer": "Go is a language", "conclusion": "terminate"}`,
			`{"answer": "Java runs on the JVM", "conclusion": "terminate"}`,
		},
		"observe-unstructured": {
			`{"reason": "answer is about Go", "conclusion": "continue"}`,
			`{"reason": "relevant", "conclusion": "terminate"}`,
		},
		"requery": {`{"requery": "What is Java?", "conclusion": "terminate"}`},
	})
	backend := &stubBackend{content: "Java is a JVM language"}
	statuses := []planner.TaskStatus{{Task: planner.Task{ID: 3, Description: "Tell me about Java", Agent: "DocsAgent"}}}

	a := newAgent(t, chat, unstructured(), nil, WithBackend(backend, nil))

	var chunks []string
	v, err := a.run(context.Background(), Request{Query: "Tell me about Java", Memory: "user likes JVM", Statuses: statuses, CurrentTaskID: 3}, collect(&chunks))
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "step 1/5: query: Tell me about Java\n\nanswer: knowledge can do not meet query, \n\nreason: answer is about Go\n", chunks[0])
	assert.Equal(t, "step 2/5: query: What is Java?\n\nanswer: Java runs on the JVM, \n\nreason:"+SuccessSentinel+" ,relevant\n", chunks[1])

	assert.Equal(t, []string{"Tell me about Java", "What is Java?"}, backend.searches)
	assert.Equal(t, "What is Java?", v.statuses[0].Description)
	assert.Equal(t, "Tell me about Java", statuses[0].Description)

	first := chat.callsOf("unstructured")[0]
	assert.Contains(t, first.system, "user likes JVM")
	assert.Contains(t, first.system, "Java is a JVM language")
}

func TestStepErrorFallsBackToRequery(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.MaxSteps = 2

	chat := newScriptedChat(map[string][]string{
		"task":    {errReply},
		"requery": {`{"requery": "q2", "conclusion": "terminate"}`},
	})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)

	a := newAgent(t, chat, structured(), opts, WithReader(&fakeReader{}), WithMetrics(m))

	var chunks []string
	v, err := a.run(context.Background(), Request{Query: "q"}, collect(&chunks))
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "step 1/2: query: q\n\nanswer: No relevant knowledge available to answer the question: q, will try a different question!\n", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "step 2/2: query: q2\n\n"))
	require.Len(t, v.steps, 2)
	assert.True(t, strings.HasPrefix(v.steps[0].Answer, "step error : "))
	assert.Equal(t, "q2", v.query)
	assert.Equal(t, []string{"q"}, v.oldQueries)
	assert.Equal(t, StateIdle, v.state)
	assert.Len(t, chat.callsOf("requery"), 1, "the last step does not requery")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExpertSteps.WithLabelValues(pathNoSQL, outcomeError)))
}

func TestOldQueriesGrowEveryStep(t *testing.T) {
	tests := []struct {
		name         string
		unstructured string
		requery      []string
		wantQueries  []string
		wantOld      []string
	}{
		{
			name:         "continue without requery asks for one",
			unstructured: `{"answer": "a", "conclusion": "continue", "requery": ""}`,
			requery: []string{
				`{"requery": "q2", "conclusion": "terminate"}`,
				`{"requery": "q3", "conclusion": "terminate"}`,
			},
			wantQueries: []string{"q", "q2", "q3"},
			wantOld:     []string{"q", "q2"},
		},
		{
			name:         "unparseable answer with duplicate requery",
			unstructured: "I am not sure what you mean.",
			requery: []string{
				`{"requery": "q", "conclusion": "terminate"}`,
				`{"requery": "q2", "conclusion": "terminate"}`,
			},
			wantQueries: []string{"q", "q (attempt 2)", "q2"},
			wantOld:     []string{"q", "q (attempt 2)"},
		},
		{
			name:         "failing requery",
			unstructured: `{"answer": "a", "conclusion": "continue", "requery": ""}`,
			requery:      []string{errReply},
			wantQueries:  []string{"q", "q (attempt 2)", "q (attempt 3)"},
			wantOld:      []string{"q", "q (attempt 2)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := expertopts.NewOptions()
			opts.MaxSteps = 3
			chat := newScriptedChat(map[string][]string{
				"unstructured": {tt.unstructured},
				"requery":      tt.requery,
			})
			a := newAgent(t, chat, unstructured(), opts)

			var chunks []string
			v, err := a.run(context.Background(), Request{Query: "q"}, collect(&chunks))
			require.NoError(t, err)

			require.Len(t, chunks, 3)
			for i, q := range tt.wantQueries {
				assert.True(t, strings.HasPrefix(chunks[i], fmt.Sprintf("step %d/3: query: %s\n", i+1, q)), chunks[i])
			}
			assert.Equal(t, tt.wantOld, v.oldQueries)
			assert.Len(t, v.oldQueries, v.step-1)
			assert.Len(t, chat.callsOf("requery"), 2)
		})
	}
}

func TestUnparseableAnswerDegrades(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.MaxSteps = 1

	chat := newScriptedChat(map[string][]string{
		"unstructured": {"I am not sure what you mean."},
	})
	a := newAgent(t, chat, unstructured(), opts)

	var chunks []string
	require.NoError(t, a.Run(context.Background(), Request{Query: "q"}, collect(&chunks)))

	require.Len(t, chunks, 1)
	assert.Equal(t, "step 1/1: query: q\n\nanswer: "+parseFailureAnswer+"\n", chunks[0])
	assert.Len(t, chat.callsOf("unstructured"), opts.ParseAttempts)
}

func TestTableSelectionFallsBackToAllTables(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.MaxSteps = 1

	chat := newScriptedChat(map[string][]string{
		"task":        {`{"task": "q", "conclusion": "sql"}`},
		"tables":      {"orders please"},
		"dims":        {`{"dimensions": [], "reason": "fuzzy match is enough"}`},
		"sql":         {`{"answer": "SELECT 1", "conclusion": "terminate"}`},
		"observe-sql": {`{"reason": "ok", "conclusion": "terminate"}`},
	})
	reader := &fakeReader{schemas: ordersSchema, results: map[string][]map[string]any{"SELECT 1": {{"1": 1}}}}

	a := newAgent(t, chat, structured(), opts, WithReader(reader))

	var chunks []string
	require.NoError(t, a.Run(context.Background(), Request{Query: "q"}, collect(&chunks)))

	require.Len(t, reader.describe, 1)
	assert.Empty(t, reader.describe[0])
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0], "step 1/1: query: q\n\nconditions:fuzzy match is enough\n\nanswer: "))
}

func TestRepeatedAnswersInjectStuckPrompt(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.MaxSteps = 3

	chat := newScriptedChat(map[string][]string{
		"unstructured": {`{"answer": "I do not know", "conclusion": "continue", "requery": ""}`},
	})
	a := newAgent(t, chat, unstructured(), opts)

	var chunks []string
	v, err := a.run(context.Background(), Request{Query: "q"}, collect(&chunks))
	require.NoError(t, err)

	assert.Len(t, chunks, 3)
	assert.True(t, v.stuck)
	assert.NotEqual(t, StateFinished, v.state)

	calls := chat.callsOf("unstructured")
	require.Len(t, calls, 3)
	assert.False(t, calls[0].stuck)
	assert.False(t, calls[1].stuck)
	assert.True(t, calls[2].stuck)
}

func TestEmitErrorAborts(t *testing.T) {
	chat := newScriptedChat(map[string][]string{
		"unstructured": {`{"answer": "a", "conclusion": "continue", "requery": "q2"}`},
	})
	a := newAgent(t, chat, unstructured(), nil)

	boom := fmt.Errorf("client gone")
	calls := 0
	err := a.Run(context.Background(), Request{Query: "q"}, func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Len(t, chat.callsOf("unstructured"), 1)
}

func TestCanceledContext(t *testing.T) {
	chat := newScriptedChat(map[string][]string{
		"task": {`{"task": "q", "conclusion": "sql"}`},
	})
	a := newAgent(t, chat, structured(), nil, WithReader(&fakeReader{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var chunks []string
	err := a.Run(ctx, Request{Query: "q"}, collect(&chunks))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, chunks)
}

func TestAdvance(t *testing.T) {
	a := newAgent(t, newScriptedChat(nil), unstructured(), nil)
	v := a.newInvocation(Request{Query: "q1"})

	v.advance("  ")
	v.advance("q1")
	assert.Empty(t, v.oldQueries)

	v.advance("q2")
	v.advance("q3")
	v.advance("q1")
	assert.Equal(t, []string{"q1", "q2"}, v.oldQueries)
	assert.Equal(t, "q3", v.query)
	assert.Equal(t, "query 1: q1\nquery 2: q2\nquery 3: q3", v.historyQueries(true))
	assert.Equal(t, "query 1: q1\nquery 2: q2", v.historyQueries(false))

	assert.Equal(t, "No historical step records", v.stepHistory())
	v.step = 1
	v.saveStep("q1", "a1")
	assert.Equal(t, "Step 1:\n  Query: q1\n  Answer: a1", v.stepHistory())
}

func TestIsStuck(t *testing.T) {
	a := newAgent(t, newScriptedChat(nil), unstructured(), nil)
	v := a.newInvocation(Request{Query: "q"})

	v.answers = []string{"a"}
	assert.False(t, v.isStuck())
	v.answers = []string{"a b", "c"}
	assert.False(t, v.isStuck())
	v.answers = []string{"a  b\n", "c", "a b"}
	assert.True(t, v.isStuck())

	a.opts.DuplicateThreshold = 3
	assert.False(t, v.isStuck())
}

func TestStepResultText(t *testing.T) {
	header := "step 1/5: query: q"
	assert.Equal(t, "step 1/5: query: q\n\nanswer: a\n", stepResult{answer: "a"}.text(header))
	assert.Equal(t, "step 1/5: query: q\n\nconditions:d\n\nanswer: a\n", stepResult{answer: "a", dimensions: "d"}.text(header))
	assert.Equal(t, "step 1/5: query: q\n\nconditions:r\n\nanswer: a\n", stepResult{answer: "a", reason: "r"}.text(header))
	assert.Equal(t, "step 1/5: query: q\n\nconditions:d, r\n\nanswer: a\n", stepResult{answer: "a", dimensions: "d", reason: "r"}.text(header))
}

func TestDimensionHelpers(t *testing.T) {
	assert.False(t, isDimensionColumn(ordersSchema, "orders", "id"))
	assert.False(t, isDimensionColumn(ordersSchema, "orders", "customer_id"))
	assert.False(t, isDimensionColumn(ordersSchema, "orders", "total"))
	assert.True(t, isDimensionColumn(ordersSchema, "orders", "city"))
	assert.True(t, isDimensionColumn(ordersSchema, "users", "gender"))

	assert.Equal(t, []string{"否", "是"}, distinctValues([]map[string]any{{"vip": true}, {"vip": false}, {"vip": true}}, "vip"))
	assert.Equal(t, []string{"a", "b"}, distinctValues([]map[string]any{{"DISTINCT x": "b"}, {"DISTINCT x": " a "}}, "x"))

	assert.Equal(t, "SELECT 1", cleanSQL("```sql\nSELECT 1;\n```"))
	assert.Equal(t, "SELECT 2", cleanSQL("  SELECT 2 ; "))
}

func TestEnumerateFormatsFailures(t *testing.T) {
	reader := &fakeReader{
		results: map[string][]map[string]any{"SELECT DISTINCT city FROM orders": {{"city": "北京"}}},
		errs:    map[string]error{"SELECT DISTINCT level FROM users": fmt.Errorf("no such table")},
	}
	a := newAgent(t, newScriptedChat(nil), structured(), nil, WithReader(reader))
	v := a.newInvocation(Request{Query: "q"})

	text := v.enumerate(context.Background(), []dimension{
		{Name: "城市", Column: "city", Table: "orders", SQL: "SELECT DISTINCT city FROM orders"},
		{Name: "等级", Column: "level", Table: "users", SQL: "SELECT DISTINCT level FROM users"},
		{Name: "状态", Column: "status", Table: "orders", SQL: "SELECT DISTINCT status FROM orders"},
	})
	assert.Equal(t,
		"城市（数据库字段：city，表：orders）包括：北京\n\n等级（数据库字段：level，表：users）查询失败：no such table\n\n状态（数据库字段：status，表：orders）：无数据",
		text)
}
