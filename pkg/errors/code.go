package errors

import "net/http"

// ============================================================================
// Common
// ============================================================================

var (
	// OK represents a successful operation.
	OK = Register(&Errno{Code: 0, HTTP: http.StatusOK, MessageEN: "Success", MessageZH: "成功"})

	ErrBadRequest       = NewRequestError(ServiceCommon, 0).Message("Bad request", "请求错误").MustBuild()
	ErrInvalidParam     = NewRequestError(ServiceCommon, 1).Message("Invalid parameter", "参数无效").MustBuild()
	ErrValidationFailed = NewRequestError(ServiceCommon, 4).Message("Validation failed", "验证失败").MustBuild()
	ErrNotFound         = NewNotFoundError(ServiceCommon, 0).Message("Resource not found", "资源不存在").MustBuild()
	ErrInternal         = NewInternalError(ServiceCommon, 0).Message("Internal server error", "服务器内部错误").MustBuild()
	ErrUnavailable      = NewNetworkError(ServiceCommon, 0).Message("Service unavailable", "服务不可用").MustBuild()
	ErrTimeout          = NewTimeoutError(ServiceCommon, 0).Message("Request timeout", "请求超时").MustBuild()
	ErrInvalidConfig    = NewConfigError(ServiceCommon, 0).Message("Invalid configuration", "配置无效").MustBuild()
)

// ============================================================================
// Source readers
// ============================================================================

var (
	// ErrSourceUnavailable indicates the data source could not be reached.
	ErrSourceUnavailable = NewNetworkError(ServiceSource, 1).Message("Source unavailable", "数据源不可用").MustBuild()
	// ErrSourceAuthFailed indicates the data source rejected the credentials.
	ErrSourceAuthFailed = NewAuthError(ServiceSource, 1).Message("Source authentication failed", "数据源认证失败").MustBuild()
	// ErrInvalidQuery indicates the statement was rejected by the source.
	ErrInvalidQuery = NewRequestError(ServiceSource, 1).Message("Invalid query", "查询语句无效").MustBuild()
	// ErrSourceTimeout indicates the source did not answer in time.
	ErrSourceTimeout = NewTimeoutError(ServiceSource, 1).Message("Source timeout", "数据源超时").MustBuild()
	// ErrUnsupportedSource indicates an unknown source kind.
	ErrUnsupportedSource = NewRequestError(ServiceSource, 2).Message("Unsupported source kind", "不支持的数据源类型").MustBuild()
)

// ============================================================================
// Ingestion
// ============================================================================

var (
	// ErrInvalidDescriptor indicates a malformed ingestion job.
	ErrInvalidDescriptor = NewRequestError(ServiceIngestor, 1).Message("Invalid data descriptor", "数据描述符无效").MustBuild()
	// ErrNoFingerprint indicates every fingerprint batch failed.
	ErrNoFingerprint = NewInternalError(ServiceIngestor, 1).Message("No fingerprint produced", "未生成指纹").MustBuild()
)

// ============================================================================
// Registry / dispatch
// ============================================================================

var (
	// ErrAgentNotFound indicates no registered agent carries the name.
	ErrAgentNotFound = NewNotFoundError(ServiceRegistry, 1).Message("Agent not found", "智能体不存在").MustBuild()
	// ErrInvalidAgentCard indicates a card without name or with an unparseable url.
	ErrInvalidAgentCard = NewRequestError(ServiceRegistry, 1).Message("Invalid agent card", "智能体卡片无效").MustBuild()
	// ErrEmptyPlan indicates the planner produced no dispatchable task.
	ErrEmptyPlan = NewInternalError(ServiceOrchestrator, 1).Message("Planner returned no task", "规划结果为空").MustBuild()
)

// ============================================================================
// LLM
// ============================================================================

var (
	// ErrParseFailure indicates LLM output could not be decoded.
	ErrParseFailure = NewInternalError(ServiceLLM, 1).Message("Unable to parse model response", "模型输出解析失败").MustBuild()
	// ErrPayloadTooLarge indicates an LLM payload above the parser limit.
	ErrPayloadTooLarge = NewRequestError(ServiceLLM, 1).Message("Payload too large", "负载过大").MustBuild()
	// ErrLLMUnavailable indicates the provider failed after retries.
	ErrLLMUnavailable = NewNetworkError(ServiceLLM, 1).Message("LLM provider unavailable", "大模型服务不可用").MustBuild()
)
