package api

import (
	"github.com/gin-gonic/gin"

	"github.com/telekom/authy/pkg/apiresponses"
	"github.com/telekom/authy/pkg/apperrors"
	"github.com/telekom/authy/pkg/metrics"
	"github.com/telekom/authy/pkg/session"
	"github.com/telekom/authy/pkg/system"
)

// sessionGate lets only requests with a valid session cookie through.
func (s *Server) sessionGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := system.GetReqLogger(c, s.log)

		sess, err := s.validator.Validate(c.Request)
		if err != nil {
			kind := apperrors.KindOf(err)
			metrics.SessionValidations.WithLabelValues(kind.String()).Inc()
			reason := publicMessage(err)
			reqLog.Warnw("Session rejected", "kind", kind.String(), "reason", reason)
			dependencyFailure := kind == apperrors.KindUpstream || kind == apperrors.KindTimeout
			s.audit.SessionRejected(c.Request.Context(), c.Request, session.ClientIP(c.Request), reason, dependencyFailure)
			apiresponses.RespondError(c, err, reqLog)
			return
		}

		metrics.SessionValidations.WithLabelValues("valid").Inc()
		c.Set(system.SubjectKey, sess.Claims.Subject)
		if sess.Claims.Username != "" {
			c.Set(system.UsernameKey, sess.Claims.Username)
		}
		c.Set(system.ReqLoggerKey, system.EnrichReqLoggerWithSession(c, reqLog))
		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

// forward proxies a gated request to the protected backend.
func (s *Server) forward(c *gin.Context) {
	reqLog := system.GetReqLogger(c, s.log)

	resp, err := s.proxy.Forward(c.Request.Context(), c.Request)
	if err != nil {
		kind := apperrors.KindOf(err)
		reqLog.Warnw("Proxy request failed", "kind", kind.String(), "error", err)
		if kind == apperrors.KindUpstream || kind == apperrors.KindTimeout {
			var subject string
			if sess, ok := session.FromContext(c.Request.Context()); ok {
				subject = sess.Claims.Subject
			}
			s.audit.UpstreamFailed(c.Request.Context(), c.Request, session.ClientIP(c.Request), subject, publicMessage(err))
		}
		apiresponses.RespondError(c, err, reqLog)
		return
	}

	if err := resp.Write(c.Writer); err != nil {
		reqLog.Debugw("Client went away while writing proxied response", "error", err)
	}
}

// publicMessage is the client facing message of err.
func publicMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}
