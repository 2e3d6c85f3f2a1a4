// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/telekom/authy/pkg/apperrors"
	"github.com/telekom/authy/pkg/jwks"
	"github.com/telekom/authy/pkg/revocation"
)

// Validator checks the session cookie of a request. Checks run in a fixed order and the
// first failure is returned.
type Validator struct {
	resolver   jwks.Resolver
	issuer     string
	audience   string
	revocation revocation.Store
	now        func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source used for the expiry check.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithRevocationStore enables the revocation check.
func WithRevocationStore(s revocation.Store) ValidatorOption {
	return func(v *Validator) {
		v.revocation = s
	}
}

// NewValidator returns a Validator that accepts RS256 tokens signed by a key from resolver
// with the given issuer and audience.
func NewValidator(resolver jwks.Resolver, issuer, audience string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		resolver: resolver,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate returns the session for r or an *apperrors.Error annotated with the client IP and path.
func (v *Validator) Validate(r *http.Request) (*Session, error) {
	clientIP := ClientIP(r)
	path := r.URL.Path
	deny := func(msg string) error {
		return apperrors.Unauthorized(msg, clientIP, path)
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, deny("No session cookie found")
	}
	token := cookie.Value

	kid, err := unverifiedKeyID(token)
	if err != nil {
		return nil, deny(fmt.Sprintf("Invalid token header: %v", err))
	}
	if kid == "" {
		return nil, deny("No key ID in token")
	}

	key, err := v.resolver.ResolveKey(r.Context(), kid)
	switch {
	case err == nil:
	case errors.Is(err, jwks.ErrKeyNotFound):
		return nil, deny("No matching key found")
	case errors.Is(err, jwks.ErrInvalidDocument):
		return nil, deny("Invalid JWKS format")
	case errors.Is(err, jwks.ErrMalformed):
		return nil, deny("Invalid key format: " + strings.TrimPrefix(err.Error(), jwks.ErrMalformed.Error()+": "))
	case jwks.IsTransient(err):
		appErr := apperrors.Transport("JWKS fetch failed", err)
		appErr.ClientIP, appErr.Path = clientIP, path
		return nil, appErr
	default:
		appErr := apperrors.Internal("Key resolution failed", err)
		appErr.ClientIP, appErr.Path = clientIP, path
		return nil, appErr
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		return nil, deny(fmt.Sprintf("Invalid token: %v", err))
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, deny("Invalid token: invalid audience")
	}
	if !claims.VerifyIssuer(v.issuer, true) {
		return nil, deny("Invalid token: invalid issuer")
	}
	if claims.ExpiresAt == nil {
		return nil, deny("Invalid token: missing exp claim")
	}

	if !claims.ExpiresAt.Time.After(v.now()) {
		return nil, deny("Token expired")
	}

	if v.revocation != nil {
		revoked, err := v.revocation.IsRevoked(r.Context(), revocation.TokenID(claims.ID, token))
		if err != nil {
			appErr := apperrors.Transport("Revocation check failed", err)
			appErr.ClientIP, appErr.Path = clientIP, path
			return nil, appErr
		}
		if revoked {
			return nil, deny("Token revoked")
		}
	}

	return &Session{Claims: claims, Token: token}, nil
}

// unverifiedKeyID reads the kid header without verifying anything.
func unverifiedKeyID(token string) (string, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	kid, _ := tok.Header["kid"].(string)
	return kid, nil
}
