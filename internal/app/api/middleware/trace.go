package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/tool"
)

// TraceHeader carries the trace id in both directions.
const TraceHeader = "X-Request-ID"

// TraceMiddleware reads X-Request-ID if the caller sent one, otherwise
// generates a UUIDv7, and stores it on gin.Context and the request context.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = tool.GenerateUUIDV7()
		}

		c.Set(logctx.GinTraceIDKey, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}
