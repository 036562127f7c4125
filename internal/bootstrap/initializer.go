// Package bootstrap 组装各服务共用的基础设施：日志、追踪、Redis、数据库、LLM 与检索后端。
//
// 每个组件实现 Initializer，Bootstrapper 按依赖关系排序后依次初始化，
// 退出时按相反顺序关闭实现了 Shutdowner 的组件。
package bootstrap

import "context"

// Initializer defines the interface for initialization components.
type Initializer interface {
	// Name returns the name of the initializer for logging purposes.
	Name() string

	// Dependencies returns the names of initializers that must run first.
	Dependencies() []string

	// Initialize performs the initialization logic.
	Initialize(ctx context.Context) error
}

// Shutdowner defines the interface for components that need graceful shutdown.
type Shutdowner interface {
	// Shutdown releases the component. The context may carry a deadline.
	Shutdown(ctx context.Context) error
}
