package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
)

const (
	TraceIDHeader = "X-Trace-ID"
	ActorHeader   = "X-Actor"
	traceIDKey    = "trace_id"
)

// TraceID tags the request with the caller's trace id, or a fresh one, and
// carries it in the request context for logging.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(traceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Next()
	}
}

func GetTraceID(c *gin.Context) string {
	if traceID, ok := c.Get(traceIDKey); ok {
		if v, ok := traceID.(string); ok {
			return v
		}
	}
	return ""
}
