package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackhub/pkg/logger"
	"trackhub/pkg/metrics"
	"trackhub/pkg/trace"
)

// TraceMiddleware 复用请求头中的 trace id，缺失时生成新的，并回写到响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName()); id != "" {
			ctx = trace.WithContext(ctx, id)
		}
		ctx, traceID := trace.Ensure(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogger 记录每个请求的耗时和状态码，同时上报 HTTP 延迟指标
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		}
		l := logger.WithTrace(c.Request.Context(), log)
		if status >= 500 {
			l.Warn("HTTP request failed", fields...)
			return
		}
		l.Debug("HTTP request", fields...)
	}
}
