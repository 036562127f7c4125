// Package response provides unified API response structures.
// All JSON (non-streaming) endpoints answer with Response.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/dataagent/pkg/errors"
)

// ContextKeyRequestID 是请求 ID 在 gin.Context 中的键。
const ContextKeyRequestID = "request_id"

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data any `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) *Response {
	return &Response{Code: 0, Message: "success", Data: data}
}

// Err creates an error response from an Errno.
func Err(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, Message: e.Message(lang)}
}

// OK writes a 200 response carrying data.
func OK(c *gin.Context, data any) {
	r := Success(data)
	r.RequestID = c.GetString(ContextKeyRequestID)
	c.JSON(http.StatusOK, r)
}

// Fail writes the error response, status taken from the errno.
// Causes are appended to the message so that callers see the underlying reason.
func Fail(c *gin.Context, err error) {
	e := errors.FromError(err)
	r := Err(e, c.GetHeader("Accept-Language"))
	if cause := e.Unwrap(); cause != nil {
		r.Message += ": " + cause.Error()
	}
	r.RequestID = c.GetString(ContextKeyRequestID)
	c.AbortWithStatusJSON(e.HTTPStatus(), r)
}
