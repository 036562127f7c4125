// Package handler provides the HTTP submit API of the ingestor.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"gorm.io/gorm"

	"github.com/kart-io/dataagent/internal/ingestor/queue"
	"github.com/kart-io/dataagent/internal/ingestor/store"
	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/response"
)

// Coordinator runs ingestion jobs.
type Coordinator interface {
	Handle(ctx context.Context, job *descriptor.Job) error
}

// IngestHandler handles ingestion HTTP requests.
type IngestHandler struct {
	coordinator Coordinator
	store       store.FingerprintStore
	publisher   queue.Publisher
}

// NewIngestHandler creates a new IngestHandler. publisher may be nil when no queue is configured.
func NewIngestHandler(c Coordinator, fps store.FingerprintStore, publisher queue.Publisher) *IngestHandler {
	return &IngestHandler{coordinator: c, store: fps, publisher: publisher}
}

// SubmitResponse is the result of a submitted job.
type SubmitResponse struct {
	Job        string `json:"job"`
	Operation  string `json:"operation"`
	Collection string `json:"collection"`
	Queued     bool   `json:"queued"`
}

// Submit runs a job synchronously, or enqueues it when async=true.
func (h *IngestHandler) Submit(c *gin.Context) {
	var job descriptor.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		response.Fail(c, errors.ErrInvalidParam.WithCause(err))
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		h.enqueue(c, &job)
		return
	}

	if err := h.coordinator.Handle(c.Request.Context(), &job); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, SubmitResponse{
		Job:        job.Key(),
		Operation:  string(job.Operation),
		Collection: job.Descriptor.CollectionID(),
	})
}

func (h *IngestHandler) enqueue(c *gin.Context, job *descriptor.Job) {
	if h.publisher == nil {
		response.Fail(c, errors.ErrUnavailable.WithMessage("no ingestion queue configured"))
		return
	}
	job.Normalize()
	if err := job.Validate(); err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), job); err != nil {
		response.Fail(c, errors.ErrUnavailable.WithCause(err))
		return
	}
	logger.Infow("Ingestion job queued", "job", job.Key())

	r := response.Success(SubmitResponse{
		Job:        job.Key(),
		Operation:  string(job.Operation),
		Collection: job.Descriptor.CollectionID(),
		Queued:     true,
	})
	r.RequestID = c.GetString(response.ContextKeyRequestID)
	c.JSON(http.StatusAccepted, r)
}

// GetFingerprint returns the stored fingerprint of a descriptor.
func (h *IngestHandler) GetFingerprint(c *gin.Context) {
	ref := descriptor.Ref{Namespace: c.Param("namespace"), Name: c.Param("name")}
	fp, err := h.store.Get(c.Request.Context(), ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.Fail(c, errors.ErrNotFound.WithMessagef("no fingerprint for %s", ref))
		return
	}
	if err != nil {
		response.Fail(c, errors.ErrInternal.WithCause(err))
		return
	}
	response.OK(c, fp)
}
