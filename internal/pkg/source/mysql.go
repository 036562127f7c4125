package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

type mysqlDialect struct {
	database string
}

func (mysqlDialect) name() string { return "mysql" }

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) placeholder(int) string { return "?" }

func (d mysqlDialect) schemaArgs() []any { return []any{d.database} }

func (mysqlDialect) listTablesSQL() string {
	return `SELECT TABLE_NAME, TABLE_COMMENT FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (mysqlDialect) tablesSQL(filter string) string {
	return `SELECT TABLE_NAME, TABLE_COMMENT FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'` + and("TABLE_NAME", filter) + ` ORDER BY TABLE_NAME`
}

func (mysqlDialect) columnsSQL(filter string) string {
	return `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT, COLUMN_COMMENT
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = ?` + and("TABLE_NAME", filter) + ` ORDER BY TABLE_NAME, ORDINAL_POSITION`
}

func (mysqlDialect) foreignKeysSQL(filter string) string {
	return `SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL` + and("TABLE_NAME", filter) + `
ORDER BY TABLE_NAME, ORDINAL_POSITION`
}

func and(column, filter string) string {
	if filter == "" {
		return ""
	}
	return fmt.Sprintf(" AND %s %s", column, filter)
}

// NewMySQL opens a MySQL reader and verifies connectivity.
func NewMySQL(ctx context.Context, conn descriptor.Connection, opts *options.Options) (Reader, error) {
	if opts == nil {
		opts = options.NewOptions()
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	cfg.DBName = conn.Database
	cfg.Timeout = opts.ConnectTimeout
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, classify(err)
	}
	r := newRelational(db, mysqlDialect{database: conn.Database}, opts)
	if err := r.ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}
