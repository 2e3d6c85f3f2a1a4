// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the access token claims the gateway relies on.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Scope    string `json:"scope,omitempty"`
}

// Session is a validated access token. It only lives for the duration of one request.
type Session struct {
	Claims *Claims
	Token  string
}

type contextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// ClientIP returns the X-Forwarded-For header verbatim when present, else the host of the
// transport peer address, else "unknown". The value is used for audit only.
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		return xff
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
