// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a gateway failure. Each kind maps to exactly one HTTP status.
type Kind int

const (
	// KindAuth covers OAuth2 flow failures (missing code, provider error, rejected exchange).
	KindAuth Kind = iota + 1
	// KindUnauthorized covers session validation failures.
	KindUnauthorized
	// KindInternal covers unexpected local failures.
	KindInternal
	// KindUpstream covers transport failures towards the identity provider or the backend.
	KindUpstream
	// KindTimeout covers outbound calls that exceeded their deadline.
	KindTimeout
)

// String returns the stable code used in API responses.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "AUTH_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindInternal:
		return "INTERNAL_ERROR"
	case KindUpstream:
		return "BAD_GATEWAY"
	case KindTimeout:
		return "GATEWAY_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// StatusCode returns the HTTP status a failure of this kind is rendered with.
func (k Kind) StatusCode() int {
	switch k {
	case KindAuth, KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type returned by the gateway core.
// Message is safe to return to the caller; ClientIP, Path and Err are for operators only.
type Error struct {
	Kind    Kind
	Message string

	// ClientIP and Path are populated for session validation failures.
	ClientIP string
	Path     string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for this error.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// Auth returns an OAuth2 flow failure.
func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// Unauthorized returns a session validation failure annotated with the requester's address and path.
func Unauthorized(message, clientIP, path string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, ClientIP: clientIP, Path: path}
}

// Internal returns a local failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Upstream returns a dependency failure.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Timeout returns a dependency deadline failure.
func Timeout(message string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: err}
}

// Transport classifies an outbound call failure as Timeout or Upstream.
// The message is formatted as "<prefix>: <err>".
func Transport(prefix string, err error) *Error {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	if IsTimeout(err) {
		return Timeout(msg, err)
	}
	return Upstream(msg, err)
}

// IsTimeout reports whether err was caused by an exceeded deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating foreign errors as internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
