package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kart-io/dataagent/internal/model"
	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

type fakeCoordinator struct {
	err  error
	jobs []*descriptor.Job
}

func (f *fakeCoordinator) Handle(_ context.Context, job *descriptor.Job) error {
	job.Normalize()
	f.jobs = append(f.jobs, job)
	return f.err
}

type fakePublisher struct {
	jobs []*descriptor.Job
}

func (p *fakePublisher) Publish(_ context.Context, job *descriptor.Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeStore struct {
	fp *model.Fingerprint
}

func (s *fakeStore) Upsert(context.Context, *model.Fingerprint) error { return nil }

func (s *fakeStore) DeleteByDescriptor(context.Context, descriptor.Ref) (int64, error) {
	return 0, nil
}

func (s *fakeStore) Get(_ context.Context, ref descriptor.Ref) (*model.Fingerprint, error) {
	if s.fp == nil || s.fp.DDNamespace != ref.Namespace || s.fp.DDName != ref.Name {
		return nil, gorm.ErrRecordNotFound
	}
	return s.fp, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h *IngestHandler, method, target, body string) (int, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/ingest", h.Submit)
	r.GET("/v1/fingerprints/:namespace/:name", h.GetFingerprint)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

const deleteBody = `{"operation": "Delete", "descriptor": {"namespace": "team-a", "name": "sales"}}`

func TestSubmitRunsJob(t *testing.T) {
	c := &fakeCoordinator{}
	status, env := do(t, NewIngestHandler(c, &fakeStore{}, nil), http.MethodPost, "/v1/ingest", deleteBody)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, SubmitResponse{Job: "delete:team_a_sales", Operation: "delete", Collection: "team_a_sales"}, resp)
	require.Len(t, c.jobs, 1)
}

func TestSubmitReportsJobError(t *testing.T) {
	c := &fakeCoordinator{err: errors.ErrSourceUnavailable.WithMessage("connection refused")}
	status, env := do(t, NewIngestHandler(c, &fakeStore{}, nil), http.MethodPost, "/v1/ingest", deleteBody)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, errors.ErrSourceUnavailable.Code, env.Code)
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	c := &fakeCoordinator{}
	status, env := do(t, NewIngestHandler(c, &fakeStore{}, nil), http.MethodPost, "/v1/ingest", "{")

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.ErrInvalidParam.Code, env.Code)
	assert.Empty(t, c.jobs)
}

func TestSubmitAsync(t *testing.T) {
	c := &fakeCoordinator{}
	p := &fakePublisher{}
	h := NewIngestHandler(c, &fakeStore{}, p)

	status, env := do(t, h, http.MethodPost, "/v1/ingest?async=true", deleteBody)
	assert.Equal(t, http.StatusAccepted, status)
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Queued)
	require.Len(t, p.jobs, 1)
	assert.Empty(t, c.jobs)

	status, env = do(t, h, http.MethodPost, "/v1/ingest?async=true", `{"operation": "create", "descriptor": {"namespace": "a", "name": "b"}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.ErrInvalidDescriptor.Code, env.Code)
	assert.Len(t, p.jobs, 1)

	status, _ = do(t, NewIngestHandler(c, &fakeStore{}, nil), http.MethodPost, "/v1/ingest?async=1", deleteBody)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestGetFingerprint(t *testing.T) {
	s := &fakeStore{fp: &model.Fingerprint{FID: "f1", FingerprintID: "abc", DDNamespace: "team-a", DDName: "sales"}}
	h := NewIngestHandler(&fakeCoordinator{}, s, nil)

	status, env := do(t, h, http.MethodGet, "/v1/fingerprints/team-a/sales", "")
	assert.Equal(t, http.StatusOK, status)
	var fp model.Fingerprint
	require.NoError(t, json.Unmarshal(env.Data, &fp))
	assert.Equal(t, "abc", fp.FingerprintID)

	status, env = do(t, h, http.MethodGet, "/v1/fingerprints/team-a/hr", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errors.ErrNotFound.Code, env.Code)
}
