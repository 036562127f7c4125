package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/source"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

// FileServerReader downloads files from a plain HTTP file server.
type FileServerReader struct {
	client  *httpclient.Client
	include []string
}

var _ DocumentReader = (*FileServerReader)(nil)

// NewFileServerReader creates a reader for http://host:port.
func NewFileServerReader(conn descriptor.Connection, opts *options.Options) *FileServerReader {
	base := conn.Host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = fmt.Sprintf("http://%s:%d", conn.Host, conn.Port)
	}
	return newFileServerReader(base, opts)
}

func newFileServerReader(baseURL string, opts *options.Options) *FileServerReader {
	if opts == nil {
		opts = options.NewOptions()
	}
	cfg := httpclient.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = opts.QueryTimeout
	return &FileServerReader{client: httpclient.NewClient(cfg), include: opts.Include}
}

// List keeps the paths accepted by the include patterns. File servers
// cannot be listed, so globs in paths are not expanded.
func (r *FileServerReader) List(_ context.Context, paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		p = strings.TrimLeft(p, "/")
		if p != "" && matchAny(r.include, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Fetch downloads one file.
func (r *FileServerReader) Fetch(ctx context.Context, path string) ([]byte, error) {
	resp, err := r.client.R(ctx).Get("/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, errors.ErrNotFound.WithMessagef("file %s not found", path)
	}
	if resp.IsError() {
		return nil, errors.ErrSourceUnavailable.WithCause(&httpclient.StatusError{StatusCode: resp.StatusCode(), Body: resp.String()})
	}
	return resp.Body(), nil
}

// Close is a no-op.
func (r *FileServerReader) Close() error { return nil }
