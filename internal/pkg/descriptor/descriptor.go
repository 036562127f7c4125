// Package descriptor defines data descriptors, the ingestion job message,
// documents and collection naming shared by the ingestor and the experts.
package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/validator"
)

// Kind 是数据源类型。
type Kind string

const (
	KindMySQL      Kind = "mysql"
	KindPostgres   Kind = "postgres"
	KindMinIO      Kind = "minio"
	KindFileServer Kind = "fileserver"
)

// Relational reports whether the kind is a SQL database.
func (k Kind) Relational() bool {
	return k == KindMySQL || k == KindPostgres
}

// Operation 是 ingestion 操作类型。
type Operation string

const (
	OperationCreate Operation = "create"
	OperationDelete Operation = "delete"
)

// 批大小边界。
const (
	DefaultBatchSize = 5
	MaxBatchSize     = 100
)

// ClampBatchSize maps n ≤ 0 to the default and caps it at MaxBatchSize.
func ClampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	default:
		return n
	}
}

// Ref identifies a descriptor.
type Ref struct {
	Namespace string `json:"namespace" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

// CollectionID returns the retrieval collection name of the descriptor.
func (r Ref) CollectionID() string {
	return CollectionID(r.Namespace, r.Name)
}

func (r Ref) String() string {
	return r.Namespace + "/" + r.Name
}

// CollectionID returns lower(replace(namespace + "_" + name, "-", "_")).
func CollectionID(namespace, name string) string {
	return strings.ToLower(strings.ReplaceAll(namespace+"_"+name, "-", "_"))
}

// Source describes where the data lives.
type Source struct {
	Type     Kind           `json:"type" validate:"required,oneof=mysql postgres minio fileserver"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Extract narrows what is read from the source.
type Extract struct {
	Tables    []string `json:"tables,omitempty" validate:"omitempty,dive,ident"`
	Files     []string `json:"files,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
}

// Knowledge is one background knowledge entry.
type Knowledge struct {
	Description string `json:"description"`
}

// Fewshot is an example question with its answer.
type Fewshot struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Prompts carries user supplied prompt material.
type Prompts struct {
	BackgroundKnowledge []Knowledge `json:"background_knowledge,omitempty"`
	Fewshots            []Fewshot   `json:"fewshots,omitempty"`
}

// Background renders background knowledge as a numbered list.
func (p Prompts) Background() string {
	lines := make([]string, 0, len(p.BackgroundKnowledge))
	for i, k := range p.BackgroundKnowledge {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, k.Description))
	}
	return strings.Join(lines, "\n")
}

// FewshotText renders few-shot examples.
func (p Prompts) FewshotText() string {
	var sb strings.Builder
	for i, f := range p.Fewshots {
		fmt.Fprintf(&sb, "%d. user input: %s \n   sql: %s \n\n", i+1, f.Query, f.Answer)
	}
	return strings.TrimRight(sb.String(), " \n")
}

// Job is the ingestion queue message.
type Job struct {
	Operation  Operation `json:"operation"`
	Source     *Source   `json:"source,omitempty"`
	Descriptor Ref       `json:"descriptor"`
	Extract    Extract   `json:"extract"`
	Prompts    Prompts   `json:"prompts"`
}

// Normalize lower-cases the operation; an empty operation means create.
func (j *Job) Normalize() {
	j.Operation = Operation(strings.ToLower(string(j.Operation)))
	if j.Operation == "" {
		j.Operation = OperationCreate
	}
}

// Validate checks the job after Normalize.
func (j *Job) Validate() error {
	if j.Operation != OperationCreate && j.Operation != OperationDelete {
		return errors.ErrInvalidDescriptor.WithMessagef("unknown operation %q", j.Operation)
	}
	if err := validator.Struct(j); err != nil {
		return errors.ErrInvalidDescriptor.WithCause(err)
	}
	if j.Operation == OperationCreate {
		if j.Source == nil {
			return errors.ErrInvalidDescriptor.WithMessage("source is required for create")
		}
		if !j.Source.Type.Relational() && len(j.Extract.Files) == 0 {
			return errors.ErrInvalidDescriptor.WithMessage("extract.files is required for object sources")
		}
	}
	return nil
}

// Key identifies the job for retries: operation plus collection.
func (j *Job) Key() string {
	return string(j.Operation) + ":" + j.Descriptor.CollectionID()
}

// Connection holds the connection parameters of a source.
type Connection struct {
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// ConnectionFromMetadata applies per-kind defaults to source metadata.
func ConnectionFromMetadata(kind Kind, md map[string]any) Connection {
	c := Connection{
		Host:      metaString(md, "host", ""),
		User:      metaString(md, "user", ""),
		Password:  metaString(md, "password", ""),
		Database:  metaString(md, "database", ""),
		AccessKey: metaString(md, "access_key", ""),
		SecretKey: metaString(md, "secret_key", ""),
		Bucket:    metaString(md, "bucket", ""),
		Secure:    metaBool(md, "secure"),
	}
	switch kind {
	case KindMySQL:
		c.Port = metaInt(md, "port", 3306)
		c.User = or(c.User, "root")
		c.Host = or(c.Host, "localhost")
	case KindPostgres:
		c.Port = metaInt(md, "port", 5432)
		c.User = or(c.User, "postgres")
		c.Database = or(c.Database, "postgres")
		c.Host = or(c.Host, "localhost")
	case KindMinIO:
		c.Host = or(c.Host, "localhost:9000")
	case KindFileServer:
		c.Port = metaInt(md, "port", 8000)
		c.Host = or(c.Host, "localhost")
	}
	return c
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func metaString(md map[string]any, key, def string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func metaInt(md map[string]any, key string, def int) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func metaBool(md map[string]any, key string) bool {
	switch v := md[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Document is a retrieval-ready text chunk.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}
