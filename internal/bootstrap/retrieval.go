package bootstrap

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/retrieval"
)

// RetrievalName 检索后端初始化器名称。
const RetrievalName = "retrieval"

// RetrievalInitializer 打开检索后端，向量后端使用 LLMInitializer 的 embedding 供应商。
type RetrievalInitializer struct {
	cfg     *retrieval.Config
	llm     *LLMInitializer
	backend retrieval.Backend
	closer  func()
}

// NewRetrievalInitializer creates a new RetrievalInitializer.
func NewRetrievalInitializer(cfg *retrieval.Config, llm *LLMInitializer) *RetrievalInitializer {
	return &RetrievalInitializer{cfg: cfg, llm: llm}
}

func (ri *RetrievalInitializer) Name() string { return RetrievalName }

func (ri *RetrievalInitializer) Dependencies() []string {
	if ri.llm != nil {
		return []string{LoggingName, LLMName}
	}
	return []string{LoggingName}
}

func (ri *RetrievalInitializer) Initialize(ctx context.Context) error {
	if ri.cfg.Embedder == nil && ri.llm != nil {
		ri.cfg.Embedder = ri.llm.Embedding()
	}
	b, closer, err := retrieval.Open(ctx, ri.cfg)
	if err != nil {
		return err
	}
	ri.backend, ri.closer = b, closer
	logger.Infow("Retrieval backend ready", "backend", ri.cfg.Retrieval.Backend)
	return nil
}

// Backend 返回检索后端。
func (ri *RetrievalInitializer) Backend() retrieval.Backend { return ri.backend }

func (ri *RetrievalInitializer) Shutdown(_ context.Context) error {
	if ri.closer != nil {
		ri.closer()
	}
	return nil
}
