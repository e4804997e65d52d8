package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const requestIDKey = "request_id"

// requestID assigns a correlation id to every request, echoed in the
// X-Request-Id response header and in any error body's correlation_id
// field, so a caller-reported failure can be matched to a server log line.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func correlationID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// requestLogger logs one line per request at completion, in the style of
// the teacher's structured logrus usage throughout service.go/config.go.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id": correlationID(c),
		}).Info("request handled")
	}
}
