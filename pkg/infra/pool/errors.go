package pool

import "github.com/kart-io/dataagent/pkg/errors"

// 池错误带错误码，经由 response.Fail 返回时映射为 429/503/500。
var (
	ErrPoolClosed        = errors.NewNetworkError(errors.ServicePool, 1).Message("Pool closed", "池已关闭").MustBuild()
	ErrPoolOverload      = errors.NewRateLimitError(errors.ServicePool, 1).Message("Pool overloaded", "池已满").MustBuild()
	ErrPoolNotFound      = errors.NewInternalError(errors.ServicePool, 1).Message("Pool not registered", "池不存在").MustBuild()
	ErrPoolAlreadyExists = errors.NewInternalError(errors.ServicePool, 2).Message("Pool already registered", "池已存在").MustBuild()
	ErrInvalidPoolConfig = errors.NewConfigError(errors.ServicePool, 1).Message("Invalid pool config", "无效的池配置").MustBuild()
)
