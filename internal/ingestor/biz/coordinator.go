// Package biz 入库协调器：读取数据源、生成指纹、落库并把文档发布到检索后端。
package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/sync/singleflight"

	"github.com/kart-io/dataagent/internal/ingestor/store"
	"github.com/kart-io/dataagent/internal/model"
	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/fingerprint"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/infra/pool"
	ingestopts "github.com/kart-io/dataagent/pkg/options/ingest"
	sourceopts "github.com/kart-io/dataagent/pkg/options/source"
)

// ReaderOpener opens a relational reader.
type ReaderOpener func(ctx context.Context, kind descriptor.Kind, conn descriptor.Connection) (source.Reader, error)

// DocumentOpener opens an object store or file server reader.
type DocumentOpener func(kind descriptor.Kind, conn descriptor.Connection) (source.DocumentReader, error)

// Coordinator 执行入库任务。同一 (operation, collection) 的并发任务只执行一次。
type Coordinator struct {
	engine     *fingerprint.Engine
	store      store.FingerprintStore
	backend    retrieval.Backend
	summaries  *pool.Pool
	opts       *ingestopts.Options
	sourceOpts *sourceopts.Options
	metrics    *metrics.Metrics

	openReader    ReaderOpener
	openDocuments DocumentOpener
	inflight      singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReaderOpener replaces the relational reader factory.
func WithReaderOpener(fn ReaderOpener) Option {
	return func(c *Coordinator) { c.openReader = fn }
}

// WithDocumentOpener replaces the document reader factory.
func WithDocumentOpener(fn DocumentOpener) Option {
	return func(c *Coordinator) { c.openDocuments = fn }
}

// WithMetrics records job outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator. summaries bounds concurrent table summaries in dictionary mode.
func New(engine *fingerprint.Engine, fps store.FingerprintStore, backend retrieval.Backend, summaries *pool.Pool,
	opts *ingestopts.Options, sourceOpts *sourceopts.Options, options ...Option,
) *Coordinator {
	if opts == nil {
		opts = ingestopts.NewOptions()
	}
	if sourceOpts == nil {
		sourceOpts = sourceopts.NewOptions()
	}
	c := &Coordinator{
		engine:     engine,
		store:      fps,
		backend:    backend,
		summaries:  summaries,
		opts:       opts,
		sourceOpts: sourceOpts,
	}
	c.openReader = func(ctx context.Context, kind descriptor.Kind, conn descriptor.Connection) (source.Reader, error) {
		return source.Open(ctx, kind, conn, c.sourceOpts)
	}
	c.openDocuments = func(kind descriptor.Kind, conn descriptor.Connection) (source.DocumentReader, error) {
		return source.OpenDocuments(kind, conn, c.sourceOpts)
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Handle 执行一个入库任务。任务可安全重试：create 会先清空集合再写入。
// 校验失败返回 ErrInvalidDescriptor，调用方不应重试。
func (c *Coordinator) Handle(ctx context.Context, job *descriptor.Job) error {
	job.Normalize()
	if err := job.Validate(); err != nil {
		c.observe(job.Operation, err)
		return err
	}

	start := time.Now()
	// 共享执行不随首个调用方取消，每个调用方只在自己的 ctx 上等待
	work := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(job.Key(), func() (any, error) {
		wctx := work
		if c.opts.JobTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(work, c.opts.JobTimeout)
			defer cancel()
		}
		switch job.Operation {
		case descriptor.OperationDelete:
			return nil, c.delete(wctx, job)
		default:
			return nil, c.create(wctx, job)
		}
	})

	var (
		err    error
		shared bool
	)
	select {
	case res := <-ch:
		err, shared = res.Err, res.Shared
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.observe(job.Operation, err)

	if err != nil {
		logger.Errorw("Ingestion job failed", "job", job.Key(), "shared", shared, "error", err)
		return err
	}
	logger.Infow("Ingestion job finished", "job", job.Key(), "shared", shared, "elapsed", time.Since(start).String())
	return nil
}

func (c *Coordinator) observe(op descriptor.Operation, err error) {
	if c.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	c.metrics.IngestJobs.WithLabelValues(string(op), status).Inc()
}

func (c *Coordinator) delete(ctx context.Context, job *descriptor.Job) error {
	n, err := c.store.DeleteByDescriptor(ctx, job.Descriptor)
	if err != nil {
		return errors.ErrInternal.WithCause(fmt.Errorf("delete fingerprint: %w", err))
	}
	collection := job.Descriptor.CollectionID()
	if err := c.backend.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("delete collection %s: %w", collection, err)
	}
	logger.Infow("Descriptor removed", "collection", collection, "fingerprints", n)
	return nil
}

func (c *Coordinator) create(ctx context.Context, job *descriptor.Job) error {
	var (
		docs []descriptor.Document
		err  error
	)
	if job.Source.Type.Relational() {
		docs, err = c.relational(ctx, job)
	} else {
		docs, err = c.documents(ctx, job)
	}
	if err != nil {
		return err
	}
	return c.publish(ctx, job.Descriptor.CollectionID(), docs)
}

func (c *Coordinator) batchSize(job *descriptor.Job) int {
	if job.Extract.BatchSize > 0 {
		return descriptor.ClampBatchSize(job.Extract.BatchSize)
	}
	return descriptor.ClampBatchSize(c.opts.SQLBatchSize)
}

// relational 读取表结构与外键，生成指纹并按配置的布局组装文档。
func (c *Coordinator) relational(ctx context.Context, job *descriptor.Job) ([]descriptor.Document, error) {
	kind := job.Source.Type
	reader, err := c.openReader(ctx, kind, descriptor.ConnectionFromMetadata(kind, job.Source.Metadata))
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	tables := job.Extract.Tables
	schemas, err := reader.Describe(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("describe tables: %w", err)
	}
	if len(schemas) == 0 {
		return nil, errors.ErrInvalidDescriptor.WithMessagef("no tables found in %s", job.Descriptor)
	}

	rels, err := reader.ForeignKeys(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("read foreign keys: %w", err)
	}
	relationships := source.RelationshipsJSON(rels)
	if md, err := c.engine.Relationships(ctx, relationships); err != nil {
		logger.Warnw("Relationship markdown unavailable, using raw foreign keys", "collection", job.Descriptor.CollectionID(), "error", err)
	} else {
		relationships = md
	}

	size := c.batchSize(job)
	res, err := c.analyze(ctx, job, fingerprint.Tables(schemas), size)
	if err != nil {
		return nil, err
	}

	m := &material{
		job:           job,
		schemas:       schemas,
		relationships: relationships,
		fingerprint:   res,
		batchSize:     size,
	}
	if c.opts.EnableSampleData {
		m.samples = func(ctx context.Context, tables []string) (string, error) {
			samples, err := reader.Sample(ctx, tables, c.sourceOpts.SampleLimit)
			if err != nil {
				return "", fmt.Errorf("sample tables: %w", err)
			}
			return source.SamplesJSON(samples), nil
		}
	}

	var docs []descriptor.Document
	switch c.opts.SQLProcessMode {
	case ingestopts.ModeAllInOne:
		docs, err = c.allInOne(ctx, m)
	case ingestopts.ModeBatch:
		docs, err = c.batch(ctx, m)
	default:
		docs, err = c.dictionary(ctx, m)
	}
	if err != nil {
		return nil, err
	}
	logger.Infow("Relational documents built",
		"collection", job.Descriptor.CollectionID(),
		"mode", c.opts.SQLProcessMode,
		"tables", len(schemas),
		"documents", len(docs),
	)
	return docs, nil
}

// documents 拉取对象存储或文件服务器中的文件，切块后按文本方式生成指纹。
func (c *Coordinator) documents(ctx context.Context, job *descriptor.Job) ([]descriptor.Document, error) {
	kind := job.Source.Type
	reader, err := c.openDocuments(kind, descriptor.ConnectionFromMetadata(kind, job.Source.Metadata))
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	docs, err := source.LoadDocuments(ctx, reader, source.NewLoader(c.sourceOpts), job.Extract.Files, kind)
	if err != nil {
		return nil, err
	}

	res, err := c.analyze(ctx, job, fingerprint.Documents(docs), c.batchSize(job))
	if err != nil {
		return nil, err
	}

	for i := range docs {
		delete(docs[i].Metadata, "orig_elements")
		docs[i].Metadata["dd_namespace"] = job.Descriptor.Namespace
		docs[i].Metadata["dd_name"] = job.Descriptor.Name
		docs[i].Metadata["fingerprint_id"] = res.FingerprintID
	}
	logger.Infow("Documents loaded", "collection", job.Descriptor.CollectionID(), "documents", len(docs))
	return docs, nil
}

// analyze 生成指纹并以 (dd_namespace, dd_name) 为键落库。
func (c *Coordinator) analyze(ctx context.Context, job *descriptor.Job, items []fingerprint.Item, batchSize int) (*fingerprint.Result, error) {
	res, err := c.engine.Analyze(ctx, items, job.Source.Type, batchSize)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.ErrNoFingerprint.WithMessagef("nothing to fingerprint in %s", job.Descriptor)
	}

	row := &model.Fingerprint{
		FingerprintID:        res.FingerprintID,
		FingerprintSummary:   res.Summary,
		AgentInfoName:        res.AgentName,
		AgentInfoDescription: res.AgentDescription,
		DDNamespace:          job.Descriptor.Namespace,
		DDName:               job.Descriptor.Name,
	}
	if err := c.store.Upsert(ctx, row); err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("save fingerprint: %w", err))
	}
	logger.Infow("Fingerprint saved", "collection", job.Descriptor.CollectionID(), "fid", row.FID, "fingerprint_id", row.FingerprintID)
	return res, nil
}

// publish 重建集合并写入文档。
func (c *Coordinator) publish(ctx context.Context, collection string, docs []descriptor.Document) error {
	if err := c.backend.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("reset collection %s: %w", collection, err)
	}
	if err := c.backend.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := c.backend.AddDocuments(ctx, collection, docs); err != nil {
		return fmt.Errorf("add documents to %s: %w", collection, err)
	}
	logger.Infow("Documents published", "collection", collection, "documents", len(docs))
	return nil
}
