package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// ErrnoBuilder provides a fluent API for building error codes.
//
//	var ErrOrderNotFound = errors.NewBuilder(ServiceOrder, errors.CategoryResource, 1).
//	    HTTP(http.StatusNotFound).
//	    GRPC(codes.NotFound).
//	    Message("Order not found", "订单不存在").
//	    MustBuild()
type ErrnoBuilder struct {
	service   int
	category  int
	sequence  int
	http      int
	grpc      codes.Code
	messageEN string
	messageZH string
}

// NewBuilder creates a builder defaulting to HTTP 500 / codes.Internal.
func NewBuilder(service, category, sequence int) *ErrnoBuilder {
	return &ErrnoBuilder{
		service:  service,
		category: category,
		sequence: sequence,
		http:     http.StatusInternalServerError,
		grpc:     codes.Internal,
	}
}

// HTTP sets the HTTP status code.
func (b *ErrnoBuilder) HTTP(status int) *ErrnoBuilder {
	b.http = status
	return b
}

// GRPC sets the gRPC status code.
func (b *ErrnoBuilder) GRPC(code codes.Code) *ErrnoBuilder {
	b.grpc = code
	return b
}

// Message sets both English and Chinese messages.
func (b *ErrnoBuilder) Message(en, zh string) *ErrnoBuilder {
	b.messageEN = en
	b.messageZH = zh
	return b
}

// MustBuild creates and registers the Errno. Panics on duplicate codes.
func (b *ErrnoBuilder) MustBuild() *Errno {
	if b.messageEN == "" {
		panic("errno: English message is required")
	}
	return Register(&Errno{
		Code:      MakeCode(b.service, b.category, b.sequence),
		HTTP:      b.http,
		GRPCCode:  b.grpc,
		MessageEN: b.messageEN,
		MessageZH: b.messageZH,
	})
}

// NewRequestError creates a builder for request/validation errors (HTTP 400).
func NewRequestError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryRequest, sequence).
		HTTP(http.StatusBadRequest).
		GRPC(codes.InvalidArgument)
}

// NewAuthError creates a builder for authentication errors (HTTP 401).
func NewAuthError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryAuth, sequence).
		HTTP(http.StatusUnauthorized).
		GRPC(codes.Unauthenticated)
}

// NewNotFoundError creates a builder for resource not found errors (HTTP 404).
func NewNotFoundError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryResource, sequence).
		HTTP(http.StatusNotFound).
		GRPC(codes.NotFound)
}

// NewInternalError creates a builder for internal errors (HTTP 500).
func NewInternalError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryInternal, sequence)
}

// NewNetworkError creates a builder for network errors (HTTP 503).
func NewNetworkError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryNetwork, sequence).
		HTTP(http.StatusServiceUnavailable).
		GRPC(codes.Unavailable)
}

// NewTimeoutError creates a builder for timeout errors (HTTP 504).
func NewTimeoutError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryTimeout, sequence).
		HTTP(http.StatusGatewayTimeout).
		GRPC(codes.DeadlineExceeded)
}

// NewRateLimitError creates a builder for overload errors (HTTP 429).
func NewRateLimitError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryRateLimit, sequence).
		HTTP(http.StatusTooManyRequests).
		GRPC(codes.ResourceExhausted)
}

// NewConfigError creates a builder for configuration errors (HTTP 500).
func NewConfigError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryConfig, sequence)
}
