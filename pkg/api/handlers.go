package api

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/telekom/authy/pkg/apiresponses"
	"github.com/telekom/authy/pkg/apperrors"
	"github.com/telekom/authy/pkg/metrics"
	"github.com/telekom/authy/pkg/revocation"
	"github.com/telekom/authy/pkg/session"
	"github.com/telekom/authy/pkg/system"
)

func (s *Server) health(c *gin.Context) {
	apiresponses.RespondOK(c, gin.H{"status": "ok"})
}

// login sends the browser to the identity provider.
func (s *Server) login(c *gin.Context) {
	metrics.LoginRedirects.Inc()
	s.audit.LoginStarted(c.Request.Context(), c.Request, session.ClientIP(c.Request))
	apiresponses.RespondRedirect(c, s.flow.BeginLogin())
}

// callback finishes the code exchange and sets the session cookie.
func (s *Server) callback(c *gin.Context) {
	reqLog := system.GetReqLogger(c, s.log)
	clientIP := session.ClientIP(c.Request)

	result, err := s.flow.HandleCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		kind := apperrors.KindOf(err)
		metrics.Callbacks.WithLabelValues(kind.String()).Inc()
		reqLog.Warnw("Login callback failed", "kind", kind.String(), "error", err)
		s.audit.AuthFailed(c.Request.Context(), c.Request, clientIP, publicMessage(err))
		apiresponses.RespondError(c, err, reqLog)
		return
	}

	var subject string
	if result.IDTokenClaims != nil {
		subject = result.IDTokenClaims.Subject
	} else {
		subject = unverifiedSubject(result.Token.AccessToken)
	}
	metrics.Callbacks.WithLabelValues("success").Inc()
	reqLog.Infow("Login completed", "subject", subject)
	s.audit.AuthSucceeded(c.Request.Context(), c.Request, clientIP, subject)
	apiresponses.RespondRedirect(c, result.RedirectURL, result.Cookie)
}

// logout expires the session cookie, revokes a still valid token and ends the provider session.
func (s *Server) logout(c *gin.Context) {
	reqLog := system.GetReqLogger(c, s.log)
	clientIP := session.ClientIP(c.Request)

	subject, revoked := "", false
	if sess, err := s.validator.Validate(c.Request); err == nil {
		subject = sess.Claims.Subject
		if s.revocation != nil {
			ttl := sess.Claims.ExpiresAt.Time.Sub(s.clock())
			if err := s.revocation.Revoke(c.Request.Context(), revocation.TokenID(sess.Claims.ID, sess.Token), ttl); err != nil {
				reqLog.Warnw("Failed to revoke token on logout", "subject", subject, "error", err)
			} else {
				revoked = true
			}
		}
	}

	metrics.Logouts.Inc()
	s.audit.LoggedOut(c.Request.Context(), c.Request, clientIP, subject, revoked)
	apiresponses.RespondRedirect(c, s.flow.LogoutURL(), session.ClearCookie(s.flow.SecureCookies()))
}

// unverifiedSubject reads sub for logging only. The token is verified on every later request.
func unverifiedSubject(token string) string {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}
