package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/dataagent/pkg/llm"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	milvusopts "github.com/kart-io/dataagent/pkg/options/milvus"
	qdrantopts "github.com/kart-io/dataagent/pkg/options/qdrant"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

// Config 汇总各后端的连接配置。
type Config struct {
	Retrieval    *retrievalopts.Options
	DataServices *dataservicesopts.Options
	Milvus       *milvusopts.Options
	Qdrant       *qdrantopts.Options
	// Embedder 向量后端必需
	Embedder llm.EmbeddingProvider
}

// Factory 创建一个向量后端，返回的 closer 释放底层连接。
type Factory func(ctx context.Context, cfg *Config) (Backend, func(), error)

// Milvus 与 Qdrant 的 go 客户端注册了同名的 common.proto，不能链接进同一进程。
// 向量后端各自位于子包中，按构建标签注册：默认 milvus，-tags qdrant 时为 qdrant。
var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register 注册向量后端，通常在子包的 init 中调用。
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("retrieval backend %q already registered", name))
	}
	factories[name] = f
}

// Registered 返回已链接的向量后端名称。
func Registered(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open 按 Retrieval.Backend 创建后端，返回的 closer 释放底层连接。
func Open(ctx context.Context, cfg *Config) (Backend, func(), error) {
	name := cfg.Retrieval.Backend
	if name == retrievalopts.BackendDataServices {
		return NewDataServices(NewDataServicesClient(cfg.DataServices)), func() {}, nil
	}

	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("retrieval backend %q is not built into this binary (milvus is the default, use -tags qdrant for qdrant)", name)
	}
	if cfg.Embedder == nil {
		return nil, nil, fmt.Errorf("%s backend requires an embedding provider", name)
	}
	return f(ctx, cfg)
}

// NewDataServicesClient 按配置创建 data-services HTTP 客户端。
func NewDataServicesClient(opts *dataservicesopts.Options) *httpclient.Client {
	hc := httpclient.DefaultConfig()
	hc.BaseURL = opts.BaseURL
	hc.Timeout = opts.Timeout
	hc.RetryCount = opts.MaxRetries
	return httpclient.NewClient(hc)
}
