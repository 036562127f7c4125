package source

import (
	"context"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

// Open opens a relational reader for kind.
func Open(ctx context.Context, kind descriptor.Kind, conn descriptor.Connection, opts *options.Options) (Reader, error) {
	switch kind {
	case descriptor.KindMySQL:
		return NewMySQL(ctx, conn, opts)
	case descriptor.KindPostgres:
		return NewPostgres(ctx, conn, opts)
	default:
		return nil, errors.ErrUnsupportedSource.WithMessagef("%q is not a relational source", kind)
	}
}

// OpenDocuments opens a document reader for kind.
func OpenDocuments(kind descriptor.Kind, conn descriptor.Connection, opts *options.Options) (DocumentReader, error) {
	switch kind {
	case descriptor.KindMinIO:
		return NewObjectStoreReader(conn, opts)
	case descriptor.KindFileServer:
		return NewFileServerReader(conn, opts), nil
	default:
		return nil, errors.ErrUnsupportedSource.WithMessagef("%q is not a document source", kind)
	}
}
