package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/session"
	"github.com/telekom/authy/pkg/system"
)

// requestLogger stores a logger annotated with the request identity in the gin context.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := s.log.With(system.RequestFields(session.ClientIP(c.Request), c.Request.Method, c.Request.URL.Path)...)
		if id := c.GetHeader("X-Request-ID"); id != "" {
			reqLog = reqLog.With("requestID", id)
		}
		c.Set(system.ReqLoggerKey, reqLog)
		c.Next()
	}
}

// accessLog writes one line per request. Everything but 2xx and 3xx is logged as a warning.
func accessLog(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"clientIP", session.ClientIP(c.Request),
			"method", c.Request.Method,
			"uri", c.Request.URL.RequestURI(),
			"proto", c.Request.Proto,
			"status", status,
			"latencyMs", time.Since(start).Milliseconds(),
		}
		if subject := c.GetString(system.SubjectKey); subject != "" {
			fields = append(fields, "subject", subject)
		}
		if status >= 200 && status < 400 {
			log.Infow("Request", fields...)
		} else {
			log.Warnw("Request", fields...)
		}
	}
}
