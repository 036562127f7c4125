package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/component/minio"
	errs "github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/source"
)

type fakeStore struct {
	objects map[string]string
	lists   []string
}

func (f *fakeStore) List(_ context.Context, _, prefix string) ([]minio.Object, error) {
	f.lists = append(f.lists, prefix)
	var out []minio.Object
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, minio.Object{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, _, key string) ([]byte, error) {
	v, ok := f.objects[key]
	if !ok {
		return nil, assert.AnError
	}
	return []byte(v), nil
}

func TestObjectStoreReader(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"docs/a.md":          "# A\nalpha",
		"docs/sub/b.txt":     "beta",
		"docs/sub/c.pdf":     "%PDF",
		"other/readme.md":    "other",
		"manual/intro.txt":   strings.Repeat("x", 1500),
		"manual/missing.txt": "",
	}}
	r := newObjectStoreReader(store, "bucket", []string{"**/*.{md,txt,pdf}"})

	keys, err := r.List(context.Background(), []string{"docs/**/*", "manual/intro.txt", "docs/a.md"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/a.md", "docs/sub/b.txt", "docs/sub/c.pdf", "manual/intro.txt"}, keys)
	assert.Equal(t, []string{"docs/"}, store.lists)

	docs, err := LoadDocuments(context.Background(), r, TextLoader{ChunkSize: 1000, ChunkOverlap: 200}, []string{"docs/**/*", "manual/intro.txt"}, descriptor.KindMinIO)
	require.NoError(t, err)
	// a.md, b.txt 各一块，intro.txt 两块，pdf 被跳过
	assert.Len(t, docs, 4)
	for _, d := range docs {
		assert.Equal(t, "minio", d.Metadata["source_type"])
		assert.NotEmpty(t, d.Metadata["source"])
	}

	_, err = r.List(context.Background(), []string{"docs/[a"})
	assert.ErrorIs(t, err, errs.ErrInvalidParam)
}

func TestLoadDocumentsEmpty(t *testing.T) {
	r := newObjectStoreReader(&fakeStore{objects: map[string]string{}}, "bucket", []string{"**"})
	_, err := LoadDocuments(context.Background(), r, NewLoader(nil), []string{"missing.txt"}, descriptor.KindMinIO)
	assert.ErrorIs(t, err, errs.ErrSourceUnavailable)
}

func TestFileServerReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/guide.md":
			_, _ = w.Write([]byte("guide content"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	opts := options.NewOptions()
	opts.Include = []string{"**/*.md"}
	r := NewFileServerReader(descriptor.Connection{Host: srv.URL}, opts)

	paths, err := r.List(context.Background(), []string{"/files/guide.md", "files/image.png", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"files/guide.md"}, paths)

	data, err := r.Fetch(context.Background(), "files/guide.md")
	require.NoError(t, err)
	assert.Equal(t, "guide content", string(data))

	_, err = r.Fetch(context.Background(), "files/none.md")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	docs, err := LoadDocuments(context.Background(), r, NewLoader(opts), []string{"files/guide.md", "files/none.md"}, descriptor.KindFileServer)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "guide content", docs[0].PageContent)
	assert.Equal(t, "fileserver", docs[0].Metadata["source_type"])
}

func TestTextLoaderRejectsBinary(t *testing.T) {
	_, err := TextLoader{ChunkSize: 10}.Load("a.docx", []byte("x"))
	assert.ErrorIs(t, err, errs.ErrUnsupportedSource)

	_, err = TextLoader{ChunkSize: 10}.Load("a.txt", []byte{0xff, 0xfe})
	assert.ErrorIs(t, err, errs.ErrUnsupportedSource)
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(context.Background(), descriptor.KindMinIO, descriptor.Connection{}, nil)
	assert.ErrorIs(t, err, errs.ErrUnsupportedSource)

	_, err = OpenDocuments(descriptor.KindMySQL, descriptor.Connection{}, nil)
	assert.ErrorIs(t, err, errs.ErrUnsupportedSource)

	_, err = OpenDocuments(descriptor.KindMinIO, descriptor.Connection{}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidDescriptor)
}
