package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

// dialect carries the SQL that differs between relational sources.
type dialect interface {
	name() string
	quote(ident string) string
	// placeholder returns the n-th (1-based) bind placeholder.
	placeholder(n int) string
	// schemaArgs are bound before table names in metadata queries.
	schemaArgs() []any
	listTablesSQL() string
	tablesSQL(filter string) string
	columnsSQL(filter string) string
	foreignKeysSQL(filter string) string
}

// relational implements Reader over database/sql for one dialect.
type relational struct {
	db      *sql.DB
	dialect dialect
	opts    *options.Options
}

var _ Reader = (*relational)(nil)

func newRelational(db *sql.DB, d dialect, opts *options.Options) *relational {
	if opts == nil {
		opts = options.NewOptions()
	}
	db.SetMaxOpenConns(opts.MaxConnections)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(time.Minute)
	return &relational{db: db, dialect: d, opts: opts}
}

// ping verifies connectivity within the connect timeout.
func (r *relational) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()
	return classify(r.db.PingContext(ctx))
}

// Close drains the pool.
func (r *relational) Close() error {
	return r.db.Close()
}

// inClause renders "IN (p_k, p_k+1, ...)" starting at placeholder start.
func (r *relational) inClause(start, n int) string {
	ph := make([]string, n)
	for i := range n {
		ph[i] = r.dialect.placeholder(start + i)
	}
	return "IN (" + strings.Join(ph, ", ") + ")"
}

func (r *relational) tableArgs(tables []string) []any {
	args := append([]any{}, r.dialect.schemaArgs()...)
	for _, t := range tables {
		args = append(args, t)
	}
	return args
}

func (r *relational) tableFilter(tables []string) string {
	if len(tables) == 0 {
		return ""
	}
	return r.inClause(len(r.dialect.schemaArgs())+1, len(tables))
}

// ListTables returns base tables whose name matches the glob filter.
func (r *relational) ListTables(ctx context.Context, filter string) ([]TableInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, r.dialect.listTablesSQL(), r.dialect.schemaArgs()...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var (
			name    string
			comment sql.NullString
		)
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, classify(err)
		}
		if filter != "" {
			ok, err := doublestar.Match(filter, name)
			if err != nil {
				return nil, errors.ErrInvalidParam.WithMessagef("invalid table filter %q", filter)
			}
			if !ok {
				continue
			}
		}
		out = append(out, TableInfo{Name: name, Comment: comment.String})
	}
	return out, classify(rows.Err())
}

// Describe returns the schema of the given tables, or of all tables.
func (r *relational) Describe(ctx context.Context, tables []string) ([]TableSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	filter := r.tableFilter(tables)
	args := r.tableArgs(tables)

	rows, err := r.db.QueryContext(ctx, r.dialect.tablesSQL(filter), args...)
	if err != nil {
		return nil, classify(err)
	}
	var (
		result []TableSchema
		index  = make(map[string]int)
	)
	for rows.Next() {
		var (
			name    string
			comment sql.NullString
		)
		if err := rows.Scan(&name, &comment); err != nil {
			rows.Close()
			return nil, classify(err)
		}
		index[name] = len(result)
		result = append(result, TableSchema{TableName: name, TableComment: comment.String, Columns: []Column{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	cols, err := r.db.QueryContext(ctx, r.dialect.columnsSQL(filter), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer cols.Close()
	for cols.Next() {
		var (
			table                   string
			c                       Column
			key, def, comment, null sql.NullString
		)
		if err := cols.Scan(&table, &c.Name, &c.Type, &null, &key, &def, &comment); err != nil {
			return nil, classify(err)
		}
		c.Nullable, c.Key, c.Default, c.Comment = null.String, key.String, def.String, comment.String
		if i, ok := index[table]; ok {
			result[i].Columns = append(result[i].Columns, c)
		}
	}
	return result, classify(cols.Err())
}

// Sample reads up to limit rows per table. Per-table failures are recorded
// on the TableSample.
func (r *relational) Sample(ctx context.Context, tables []string, limit int) ([]TableSample, error) {
	if limit <= 0 {
		limit = r.opts.SampleLimit
	}
	if len(tables) == 0 {
		infos, err := r.ListTables(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, t := range infos {
			tables = append(tables, t.Name)
		}
	}

	out := make([]TableSample, 0, len(tables))
	for _, table := range tables {
		stmt := fmt.Sprintf("SELECT * FROM %s LIMIT %d", r.dialect.quote(table), limit)
		rows, err := r.query(ctx, stmt)
		if err != nil {
			if isConnError(err) {
				return nil, classify(err)
			}
			logger.Warnw("sample table failed", "source", r.dialect.name(), "table", table, "error", err.Error())
			out = append(out, TableSample{TableName: table, Rows: []map[string]any{}, Error: err.Error()})
			continue
		}
		out = append(out, TableSample{TableName: table, Rows: rows})
	}
	return out, nil
}

// ForeignKeys returns the foreign key edges leaving the given tables and
// their classification.
func (r *relational) ForeignKeys(ctx context.Context, tables []string) (*Relationships, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, r.dialect.foreignKeysSQL(r.tableFilter(tables)), r.tableArgs(tables)...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	edges := []ForeignKey{}
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn, &fk.Constraint); err != nil {
			return nil, classify(err)
		}
		edges = append(edges, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return &Relationships{ForeignKeys: edges, Summary: ClassifyRelationships(edges)}, nil
}

// ExecuteQuery runs a read-only statement inside a read-only transaction.
func (r *relational) ExecuteQuery(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	if !readOnly(stmt) {
		return nil, errors.ErrInvalidQuery.WithMessage("only read-only statements are allowed")
	}
	rows, err := r.query(ctx, stmt, args...)
	return rows, classify(err)
}

// query runs stmt in a read-only transaction and scans every row.
func (r *relational) query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize turns driver values into JSON friendly ones.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.DateTime)
	default:
		return val
	}
}

var readOnlyPrefixes = []string{"select", "with", "show", "explain", "describe", "desc", "values", "("}

func readOnly(stmt string) bool {
	s := strings.ToLower(strings.TrimSpace(stmt))
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
