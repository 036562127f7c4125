package source

import (
	"fmt"
	"strings"

	"github.com/kart-io/dataagent/pkg/utils/json"
)

// SchemaMarkdown renders table schemas as markdown tables.
func SchemaMarkdown(schemas []TableSchema) string {
	if len(schemas) == 0 {
		return "No schema information available"
	}

	var lines []string
	for _, t := range schemas {
		lines = append(lines, fmt.Sprintf("\n## Table: `%s`", t.TableName))
		if t.TableComment != "" {
			lines = append(lines, fmt.Sprintf("*%s*", t.TableComment))
		}
		lines = append(lines,
			"\n| Column | Type | Nullable | Key | Comment |",
			"|--------|------|----------|-----|---------|",
		)
		for _, c := range t.Columns {
			lines = append(lines, fmt.Sprintf("| `%s` | `%s` | %s | %s | %s |", c.Name, c.Type, c.Nullable, c.Key, c.Comment))
		}
	}
	return strings.Join(lines, "\n")
}

// RelationshipsJSON renders relationships as indented JSON for prompts.
func RelationshipsJSON(r *Relationships) string {
	if r == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// SamplesJSON renders samples as indented JSON for prompts.
func SamplesJSON(samples []TableSample) string {
	if len(samples) == 0 {
		return "[]"
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// TableNames returns the names of schemas in order.
func TableNames(schemas []TableSchema) []string {
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.TableName
	}
	return names
}
