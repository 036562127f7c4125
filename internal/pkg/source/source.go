// Package source provides uniform introspection over relational databases,
// object stores and file servers.
package source

import (
	"context"
)

// TableInfo 是表的名称和注释。
type TableInfo struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

// Column describes one column.
type Column struct {
	Name     string `json:"column_name"`
	Type     string `json:"column_type"`
	Nullable string `json:"is_nullable"`
	Key      string `json:"column_key"`
	Default  string `json:"column_default,omitempty"`
	Comment  string `json:"column_comment"`
}

// TableSchema is the structure of one table.
type TableSchema struct {
	TableName    string   `json:"table_name"`
	TableComment string   `json:"table_comment"`
	Columns      []Column `json:"columns"`
}

// TableSample holds sampled rows of a table. A failed table keeps its error
// here instead of failing the whole call.
type TableSample struct {
	TableName string           `json:"table_name"`
	Rows      []map[string]any `json:"sample_data"`
	Error     string           `json:"error,omitempty"`
}

// ForeignKey is one foreign key edge.
type ForeignKey struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Constraint string `json:"constraint_name"`
}

// Summary groups edges by relationship kind.
type Summary struct {
	OneToMany       []ForeignKey `json:"one_to_many"`
	ManyToMany      []ForeignKey `json:"many_to_many"`
	SelfReferencing []ForeignKey `json:"self_referencing"`
}

// Relationships is the result of ForeignKeys.
type Relationships struct {
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Summary     Summary      `json:"relationships_summary"`
}

// Reader introspects a relational source. An empty table subset means all
// base tables. All methods are read-only.
type Reader interface {
	ListTables(ctx context.Context, filter string) ([]TableInfo, error)
	Describe(ctx context.Context, tables []string) ([]TableSchema, error)
	Sample(ctx context.Context, tables []string, limit int) ([]TableSample, error)
	ForeignKeys(ctx context.Context, tables []string) (*Relationships, error)
	ExecuteQuery(ctx context.Context, stmt string, args ...any) ([]map[string]any, error)
	Close() error
}
