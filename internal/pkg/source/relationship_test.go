package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRelationships(t *testing.T) {
	edges := []ForeignKey{
		{FromTable: "categories", FromColumn: "parent_id", ToTable: "categories", ToColumn: "id"},
		{FromTable: "orders", FromColumn: "user_id", ToTable: "users", ToColumn: "user_id"},
		{FromTable: "student_course", FromColumn: "student_id", ToTable: "students", ToColumn: "id"},
		{FromTable: "student_course", FromColumn: "course_id", ToTable: "courses", ToColumn: "id"},
		{FromTable: "courses", FromColumn: "mentor_id", ToTable: "students", ToColumn: "id"},
	}

	s := ClassifyRelationships(edges)

	assert.Equal(t, []ForeignKey{edges[0]}, s.SelfReferencing)
	// courses -> students 经 student_course 连接两端
	assert.Equal(t, []ForeignKey{edges[4]}, s.ManyToMany)
	assert.Equal(t, []ForeignKey{edges[1], edges[2], edges[3]}, s.OneToMany)
}

func TestClassifyRelationshipsEmpty(t *testing.T) {
	s := ClassifyRelationships(nil)
	assert.NotNil(t, s.OneToMany)
	assert.Empty(t, s.OneToMany)
	assert.Empty(t, s.ManyToMany)
	assert.Empty(t, s.SelfReferencing)
}

func TestSchemaMarkdown(t *testing.T) {
	md := SchemaMarkdown([]TableSchema{{
		TableName:    "users",
		TableComment: "用户表",
		Columns:      []Column{{Name: "id", Type: "int", Nullable: "NO", Key: "PRI", Comment: "主键"}},
	}})
	assert.Contains(t, md, "## Table: `users`")
	assert.Contains(t, md, "*用户表*")
	assert.Contains(t, md, "| `id` | `int` | NO | PRI | 主键 |")

	assert.Equal(t, "No schema information available", SchemaMarkdown(nil))
	assert.Equal(t, []string{"users"}, TableNames([]TableSchema{{TableName: "users"}}))
}

func TestRelationshipsJSON(t *testing.T) {
	out := RelationshipsJSON(&Relationships{ForeignKeys: []ForeignKey{{FromTable: "a", ToTable: "b"}}, Summary: ClassifyRelationships(nil)})
	assert.Contains(t, out, `"from_table": "a"`)
	assert.Contains(t, out, `"relationships_summary"`)
	assert.Equal(t, "{}", RelationshipsJSON(nil))
	assert.Contains(t, SamplesJSON([]TableSample{{TableName: "t", Rows: []map[string]any{}}}), `"table_name": "t"`)
}
