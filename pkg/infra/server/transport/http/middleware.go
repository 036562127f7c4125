package http

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/id"
	"github.com/kart-io/dataagent/pkg/utils/response"
)

// HeaderXRequestID 请求 ID 头。
const HeaderXRequestID = "X-Request-ID"

const tracerName = "github.com/kart-io/dataagent/pkg/infra/server/transport/http"

// RequestID 为每个请求分配请求 ID，已有的 X-Request-ID 头会被沿用。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = id.NewHex()
		}
		c.Set(response.ContextKeyRequestID, rid)
		c.Header(HeaderXRequestID, rid)
		c.Next()
	}
}

// Recovery 捕获 handler 中的 panic，记录堆栈并返回统一错误响应。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"path", c.Request.URL.Path,
					"request_id", c.GetString(response.ContextKeyRequestID),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				response.Fail(c, errors.ErrInternal.WithCause(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}

// Logger 记录访问日志，skipPaths 中的路径不记录。
func Logger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"latency_ms", latency.Milliseconds(),
		}
		if rid := c.GetString(response.ContextKeyRequestID); rid != "" {
			fields = append(fields, "request_id", rid)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warnw("HTTP Request", fields...)
			return
		}
		logger.Infow("HTTP Request", fields...)
	}
}

// Tracing 从请求头提取 W3C Trace Context 并为请求开启 server span。
func Tracing(service string) gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		spanName := c.FullPath()
		if spanName == "" {
			spanName = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service.name", service),
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", spanName),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}
