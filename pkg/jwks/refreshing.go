// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// RefreshingResolver holds the key set in memory and refreshes it in the background.
// Unknown key ids trigger a rate limited refresh before failing.
type RefreshingResolver struct {
	jwks *keyfunc.JWKS
}

// RefreshOptions configures a RefreshingResolver.
type RefreshOptions struct {
	Interval  time.Duration
	Timeout   time.Duration
	RateLimit time.Duration
	Client    *http.Client
}

// NewRefreshingResolver performs the initial key set download and starts background refresh.
func NewRefreshingResolver(domain string, opts RefreshOptions, log *zap.SugaredLogger) (*RefreshingResolver, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5 * time.Minute
	}

	options := keyfunc.Options{
		Client:            opts.Client,
		RefreshInterval:   opts.Interval,
		RefreshTimeout:    opts.Timeout,
		RefreshRateLimit:  opts.RateLimit,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Errorf("failed to refresh JWKS: %v", err)
		},
	}

	url := URLForDomain(domain)
	jwks, err := keyfunc.Get(url, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	log.Debugw("loaded JWKS", "url", url, "keys", len(jwks.KIDs()))
	return &RefreshingResolver{jwks: jwks}, nil
}

func (r *RefreshingResolver) ResolveKey(_ context.Context, kid string) (*rsa.PublicKey, error) {
	key, err := r.jwks.Keyfunc(&jwt.Token{
		Method: jwt.SigningMethodRS256,
		Header: map[string]interface{}{"kid": kid, "alg": jwt.SigningMethodRS256.Alg()},
	})
	if err != nil {
		if errors.Is(err, keyfunc.ErrKIDNotFound) {
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key %q is not an RSA key", ErrMalformed, kid)
	}
	return rsaKey, nil
}

// Stop ends background refresh.
func (r *RefreshingResolver) Stop() {
	r.jwks.EndBackground()
}
