package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/component/minio"
	"github.com/kart-io/dataagent/pkg/errors"
	minioopts "github.com/kart-io/dataagent/pkg/options/minio"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

// objectStore is the subset of the MinIO client used by ObjectStoreReader.
type objectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]minio.Object, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// ObjectStoreReader reads objects of one bucket.
type ObjectStoreReader struct {
	store   objectStore
	bucket  string
	include []string
}

var _ DocumentReader = (*ObjectStoreReader)(nil)

// NewObjectStoreReader connects to the bucket described by conn.
func NewObjectStoreReader(conn descriptor.Connection, opts *options.Options) (*ObjectStoreReader, error) {
	if conn.Bucket == "" {
		return nil, errors.ErrInvalidDescriptor.WithMessage("object store bucket is required")
	}
	if opts == nil {
		opts = options.NewOptions()
	}
	client, err := minio.New(&minioopts.Options{
		Endpoint:  conn.Host,
		AccessKey: conn.AccessKey,
		SecretKey: conn.SecretKey,
		UseSSL:    conn.Secure,
	})
	if err != nil {
		return nil, errors.ErrSourceUnavailable.WithCause(err)
	}
	return newObjectStoreReader(client, conn.Bucket, opts.Include), nil
}

func newObjectStoreReader(store objectStore, bucket string, include []string) *ObjectStoreReader {
	return &ObjectStoreReader{store: store, bucket: bucket, include: include}
}

// List expands glob patterns against the bucket listing. Plain keys are
// returned as is.
func (r *ObjectStoreReader) List(ctx context.Context, patterns []string) ([]string, error) {
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; ok || !matchAny(r.include, k) {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	for _, p := range patterns {
		base, glob := doublestar.SplitPattern(p)
		if !strings.ContainsAny(glob, "*?[{") {
			add(p)
			continue
		}
		prefix := ""
		if base != "." {
			prefix = base + "/"
		}
		objects, err := r.store.List(ctx, r.bucket, prefix)
		if err != nil {
			return nil, errors.ErrSourceUnavailable.WithCause(err)
		}
		for _, obj := range objects {
			if ok, _ := doublestar.Match(p, obj.Key); ok {
				add(obj.Key)
			}
		}
	}
	return keys, nil
}

// Fetch reads one object.
func (r *ObjectStoreReader) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, err := r.store.Get(ctx, r.bucket, key)
	if err != nil {
		return nil, errors.ErrSourceUnavailable.WithCause(fmt.Errorf("%s/%s: %w", r.bucket, key, err))
	}
	return data, nil
}

// Close is a no-op; the MinIO client holds no persistent connection.
func (r *ObjectStoreReader) Close() error { return nil }
