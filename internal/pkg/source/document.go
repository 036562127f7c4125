package source

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/textutil"
	"github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

// DocumentReader reads files from an object store or a file server.
type DocumentReader interface {
	// List resolves patterns into concrete object ids.
	List(ctx context.Context, patterns []string) ([]string, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
	Close() error
}

// Loader turns raw file bytes into documents.
type Loader interface {
	Load(name string, data []byte) ([]descriptor.Document, error)
}

var textExtensions = map[string]struct{}{
	"": {}, ".txt": {}, ".md": {}, ".markdown": {}, ".csv": {}, ".json": {},
	".sql": {}, ".yaml": {}, ".yml": {}, ".log": {}, ".html": {}, ".xml": {},
}

// TextLoader chunks UTF-8 text files. Binary formats are rejected.
type TextLoader struct {
	ChunkSize    int
	ChunkOverlap int
}

// Load implements Loader.
func (l TextLoader) Load(name string, data []byte) ([]descriptor.Document, error) {
	if _, ok := textExtensions[strings.ToLower(path.Ext(name))]; !ok {
		return nil, errors.ErrUnsupportedSource.WithMessagef("no loader for %s", name)
	}
	if !utf8.Valid(data) {
		return nil, errors.ErrUnsupportedSource.WithMessagef("%s is not valid UTF-8 text", name)
	}

	chunks := textutil.SplitIntoChunks(string(data), l.ChunkSize, l.ChunkOverlap)
	docs := make([]descriptor.Document, 0, len(chunks))
	for i, c := range chunks {
		docs = append(docs, descriptor.Document{
			PageContent: c,
			Metadata: map[string]any{
				"source":      name,
				"chunk_index": i,
			},
		})
	}
	return docs, nil
}

// LoadDocuments lists, fetches and loads every file matching patterns.
// Files that fail are logged and skipped; an empty result is an error.
func LoadDocuments(ctx context.Context, r DocumentReader, loader Loader, patterns []string, kind descriptor.Kind) ([]descriptor.Document, error) {
	ids, err := r.List(ctx, patterns)
	if err != nil {
		return nil, err
	}

	var docs []descriptor.Document
	for _, id := range ids {
		data, err := r.Fetch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warnw("fetch file failed", "file", id, "error", err.Error())
			continue
		}
		loaded, err := loader.Load(id, data)
		if err != nil {
			logger.Warnw("load file failed", "file", id, "error", err.Error())
			continue
		}
		for i := range loaded {
			loaded[i].Metadata["source_type"] = string(kind)
		}
		docs = append(docs, loaded...)
	}
	if len(docs) == 0 {
		return nil, errors.ErrSourceUnavailable.WithMessagef("no documents loaded from %d file(s)", len(ids))
	}
	return docs, nil
}

// matchAny reports whether name matches one of the glob patterns.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// NewLoader returns the default text loader for opts.
func NewLoader(opts *options.Options) Loader {
	if opts == nil {
		opts = options.NewOptions()
	}
	return TextLoader{ChunkSize: opts.ChunkSize, ChunkOverlap: opts.ChunkOverlap}
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return errors.ErrInvalidParam.WithMessage(fmt.Sprintf("invalid file pattern %q", p))
		}
	}
	return nil
}
