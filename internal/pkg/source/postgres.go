package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

// postgresDialect reads the current schema of the connection.
type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) schemaArgs() []any { return nil }

func (postgresDialect) listTablesSQL() string {
	return postgresTables("")
}

func (postgresDialect) tablesSQL(filter string) string {
	return postgresTables(filter)
}

func postgresTables(filter string) string {
	return `SELECT t.table_name, pg_catalog.obj_description(pc.oid, 'pg_class') AS table_comment
FROM information_schema.tables t
JOIN pg_class pc ON pc.relname = t.table_name
JOIN pg_namespace pn ON pn.oid = pc.relnamespace AND pn.nspname = t.table_schema
WHERE t.table_schema = current_schema() AND t.table_type = 'BASE TABLE'` + and("t.table_name", filter) + `
ORDER BY t.table_name`
}

func (postgresDialect) columnsSQL(filter string) string {
	return `SELECT c.table_name, c.column_name,
  c.udt_name || CASE
    WHEN c.character_maximum_length IS NOT NULL THEN '(' || c.character_maximum_length || ')'
    WHEN c.numeric_precision IS NOT NULL AND c.numeric_scale IS NOT NULL THEN '(' || c.numeric_precision || ',' || c.numeric_scale || ')'
    ELSE '' END AS column_type,
  c.is_nullable,
  CASE WHEN EXISTS (
    SELECT 1 FROM pg_index i
    JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
    JOIN pg_class pc ON pc.oid = i.indrelid
    WHERE i.indisprimary AND a.attname = c.column_name AND pc.relname = c.table_name
  ) THEN 'PRI' ELSE '' END AS column_key,
  c.column_default,
  pg_catalog.col_description((quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass, c.ordinal_position) AS column_comment
FROM information_schema.columns c
WHERE c.table_schema = current_schema()` + and("c.table_name", filter) + `
ORDER BY c.table_name, c.ordinal_position`
}

func (postgresDialect) foreignKeysSQL(filter string) string {
	return `SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name, tc.constraint_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage AS ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema()` + and("tc.table_name", filter) + `
ORDER BY tc.table_name, kcu.ordinal_position`
}

// NewPostgres opens a PostgreSQL reader and verifies connectivity.
func NewPostgres(ctx context.Context, conn descriptor.Connection, opts *options.Options) (Reader, error) {
	if opts == nil {
		opts = options.NewOptions()
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=%d",
		conn.Host, conn.Port, conn.User, dsnQuote(conn.Password), conn.Database, int(opts.ConnectTimeout.Seconds()))

	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, classify(err)
	}
	r := newRelational(sql.OpenDB(connector), postgresDialect{}, opts)
	if err := r.ping(ctx); err != nil {
		_ = r.db.Close()
		return nil, err
	}
	return r, nil
}

// dsnQuote quotes a key/value DSN value.
func dsnQuote(v string) string {
	if v == "" {
		return "''"
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}
