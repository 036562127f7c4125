package agent

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/pool"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

const (
	sampleLimit   = 10
	noRecordsText = "not found records"
)

var sqlFenceRE = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)```")

// numericTypes 数字类型字段不作为维度。
var numericTypes = []string{
	"tinyint", "smallint", "mediumint", "int", "integer", "bigint",
	"float", "double", "decimal", "numeric", "real", "serial", "bigserial", "smallserial", "money",
}

// dimension 是 LLM 选出的一个维度及其取值查询。
type dimension struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Table  string `json:"table"`
	SQL    string `json:"sql"`
}

type dimensionSelection struct {
	Dimensions []dimension `json:"dimensions"`
	Reason     string      `json:"reason"`
}

func (v *invocation) answerSQL(ctx context.Context, res *stepResult) (*llmResult, error) {
	knowledge, err := v.Knowledge(ctx, v.query)
	if err != nil {
		return nil, err
	}

	if v.opts.DictionaryMode() {
		schema, schemas, err := v.selectTables(ctx, knowledge)
		if err != nil {
			return nil, err
		}
		res.dimensions, res.reason, err = v.selectDimensions(ctx, schema, schemas)
		if err != nil {
			return nil, err
		}
		knowledge = schema
	}

	prompt := mysqlPrompt
	if v.binding.DBType == descriptor.KindPostgres {
		prompt = postgresPrompt
	}
	system := render(prompt,
		"{current_time}", v.currentTime(),
		"{knowledge}", knowledge,
		"{memory}", v.req.Memory,
		"{original_query}", v.originalQuery,
		"{history_querys}", v.historyQueries(false),
		"{dimensions}", res.dimensions,
	)
	out, err := v.generate(ctx, "sql", system)
	if err != nil {
		return nil, err
	}
	if out.Conclusion == conclusionTerminate {
		v.executeSQL(ctx, out, knowledge)
	}
	return out, nil
}

// executeSQL 执行生成的 SQL 并由观察者判定结果，out 被改写为最终答案。
func (v *invocation) executeSQL(ctx context.Context, out *llmResult, knowledge string) {
	stmt := cleanSQL(out.Answer)
	rows, err := v.reader.ExecuteQuery(ctx, stmt)
	if err != nil {
		logger.Warnw("Generated SQL failed", "agent", v.binding.Name, "sql", stmt, "error", err)
		out.Conclusion = conclusionContinue
		v.state = StateIdle
		if q := v.requerySQL(ctx, stmt, "sql error: "+err.Error(), knowledge); q != "" {
			out.Requery = q
		}
		out.Answer = fmt.Sprintf("sql error:%s, sql: %s", err, stmt)
		return
	}

	result := noRecordsText
	if len(rows) > 0 {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			result = fmt.Sprint(rows)
		} else {
			result = string(data)
		}
	}

	system := render(observeSQLPrompt,
		"{current_time}", v.currentTime(),
		"{sql}", stmt,
		"{answer}", result,
		"{knowledge}", knowledge,
	)
	obs, err := v.observe(ctx, "observe-sql", system, result)
	if err != nil {
		obs = &observation{Conclusion: conclusionContinue, Reason: err.Error()}
	}

	if obs.Conclusion == conclusionTerminate {
		if len(rows) > 0 {
			out.Answer = fmt.Sprintf("\nsql: %s, \n\nsql query result: %s, \n\nreason:%s ,%s", stmt, result, SuccessSentinel, obs.Reason)
		} else {
			out.Answer = fmt.Sprintf("\nsql: %s \n\nsql query result: %s\n\nreason:%s ,%s", stmt, noRecordsText, SuccessSentinel, obs.Reason)
		}
		return
	}

	out.Conclusion = conclusionContinue
	v.state = StateIdle
	if len(rows) > 0 {
		if q := v.requerySQL(ctx, stmt, "searched records do not meet query", knowledge); q != "" {
			out.Requery = q
		}
		out.Answer = fmt.Sprintf("searched records do not meet query, sql: %s, \n\nsql query result: %s, \n\nreason: %s", stmt, result, obs.Reason)
		return
	}
	if q := v.requerySQL(ctx, stmt, noRecordsText, knowledge); q != "" {
		out.Requery = q
	}
	out.Answer = fmt.Sprintf("%s, sql: %s, \n reason: %s", noRecordsText, stmt, obs.Reason)
}

// selectTables 让 LLM 挑选相关的表并返回它们的结构、外键与样本数据。
// 无法解析选择结果时使用全部表。
func (v *invocation) selectTables(ctx context.Context, knowledge string) (string, []source.TableSchema, error) {
	system := render(tableSelectorPrompt,
		"{current_time}", v.currentTime(),
		"{knowledge}", knowledge,
	)
	var tables []string
	if err := v.ask(ctx, "table-selector", system, "question："+v.query, &tables); err != nil {
		if !errors.Is(err, errors.ErrParseFailure) {
			return "", nil, err
		}
		logger.Warnw("Table selection failed, using all tables", "agent", v.binding.Name, "error", err)
		tables = nil
	}
	tables = slices.DeleteFunc(tables, func(t string) bool { return strings.TrimSpace(t) == "" })

	schemas, err := v.reader.Describe(ctx, tables)
	if err != nil {
		return "", nil, err
	}
	names := source.TableNames(schemas)
	rels, err := v.reader.ForeignKeys(ctx, names)
	if err != nil {
		return "", nil, err
	}
	samples, err := v.reader.Sample(ctx, names, sampleLimit)
	if err != nil {
		return "", nil, err
	}
	logger.Infow("Expert selected tables", "agent", v.binding.Name, "tables", names)

	text := fmt.Sprintf("\n\nTables Schema:\n %s\n\nTables Relationship:\n%s\n\nSample SQL Data:\n%s\n\n",
		source.SchemaMarkdown(schemas), source.RelationshipsJSON(rels), source.SamplesJSON(samples))
	return text, schemas, nil
}

// selectDimensions 识别问题中的维度并枚举其真实取值。
func (v *invocation) selectDimensions(ctx context.Context, schema string, schemas []source.TableSchema) (string, string, error) {
	system := render(dimensionSelectorPrompt,
		"{current_time}", v.currentTime(),
		"{knowledge}", schema,
	)
	var sel dimensionSelection
	if err := v.ask(ctx, "dimension-selector", system, "question："+v.query, &sel); err != nil {
		return "", "", err
	}

	dims := slices.DeleteFunc(sel.Dimensions, func(d dimension) bool {
		return strings.TrimSpace(d.SQL) == "" || !isDimensionColumn(schemas, d.Table, d.Column)
	})
	if len(dims) == 0 {
		return "", strings.TrimSpace(sel.Reason), nil
	}
	return v.enumerate(ctx, dims), strings.TrimSpace(sel.Reason), nil
}

// enumerate 并发执行维度查询，每个维度渲染为一行。
func (v *invocation) enumerate(ctx context.Context, dims []dimension) string {
	values, errs := pool.Map(ctx, v.pool, len(dims), func(ctx context.Context, i int) ([]string, error) {
		var out []string
		query := func(ctx context.Context) error {
			rows, err := v.reader.ExecuteQuery(ctx, cleanSQL(dims[i].SQL))
			if err != nil {
				return err
			}
			out = distinctValues(rows, dims[i].Column)
			return nil
		}
		var err error
		if v.gate != nil {
			err = v.gate.Do(ctx, query)
		} else {
			err = query(ctx)
		}
		return out, err
	})

	lines := make([]string, len(dims))
	for i, d := range dims {
		label := fmt.Sprintf("%s（数据库字段：%s，表：%s）", d.Name, d.Column, d.Table)
		switch {
		case errs[i] != nil:
			logger.Warnw("Dimension query failed", "agent", v.binding.Name, "dimension", d.Name, "sql", d.SQL, "error", errs[i])
			lines[i] = label + "查询失败：" + errs[i].Error()
		case len(values[i]) == 0:
			lines[i] = label + "：无数据"
		default:
			lines[i] = label + "包括：" + strings.Join(values[i], ", ")
		}
	}
	return strings.Join(lines, "\n\n")
}

// distinctValues 提取列的去重非空取值并排序。
func distinctValues(rows []map[string]any, column string) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		val, ok := row[column]
		if !ok && len(row) == 1 {
			for _, only := range row {
				val = only
			}
		}
		s := formatValue(val)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func formatValue(val any) string {
	switch x := val.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "是"
		}
		return "否"
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// isDimensionColumn 排除数字类型与编号字段。表结构中找不到的列保留。
func isDimensionColumn(schemas []source.TableSchema, table, column string) bool {
	col := strings.ToLower(strings.TrimSpace(column))
	if col == "" || col == "id" || strings.HasSuffix(col, "_id") {
		return false
	}
	for _, s := range schemas {
		if !strings.EqualFold(s.TableName, table) {
			continue
		}
		for _, c := range s.Columns {
			if strings.EqualFold(c.Name, column) {
				return !isNumericType(c.Type)
			}
		}
	}
	return true
}

func isNumericType(typ string) bool {
	typ = strings.ToLower(strings.TrimSpace(typ))
	for _, n := range numericTypes {
		if strings.HasPrefix(typ, n) {
			return true
		}
	}
	return false
}

// cleanSQL 去掉代码块标记与末尾分号。
func cleanSQL(stmt string) string {
	if m := sqlFenceRE.FindStringSubmatch(stmt); m != nil {
		stmt = m[1]
	}
	return strings.TrimRight(strings.TrimSpace(stmt), "; \n")
}
