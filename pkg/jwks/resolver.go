// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
)

// WellKnownPath is where the identity provider publishes its signing keys.
const WellKnownPath = "/.well-known/jwks.json"

var (
	// ErrKeyNotFound means the key set has no entry for the requested key id.
	// A key rotation race or a token referencing a forged key id both end here.
	ErrKeyNotFound = errors.New("no matching key found")

	// ErrMalformed means the key set document or the matched key is missing required fields.
	ErrMalformed = errors.New("malformed key set")

	// ErrInvalidDocument is the ErrMalformed case where the document itself is not a key set.
	ErrInvalidDocument = fmt.Errorf("%w: invalid JWKS format", ErrMalformed)

	// ErrUnavailable means the key set could not be fetched.
	ErrUnavailable = errors.New("key set unavailable")
)

// Resolver resolves a key id to the identity provider's RSA public key.
type Resolver interface {
	ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, kid string) (*rsa.PublicKey, error)

// ResolveKey calls f(ctx, kid).
func (f ResolverFunc) ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	return f(ctx, kid)
}

// URLForDomain returns the JWKS endpoint of an identity provider domain.
func URLForDomain(domain string) string {
	return strings.TrimRight(domain, "/") + WellKnownPath
}
