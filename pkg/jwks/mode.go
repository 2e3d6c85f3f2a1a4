// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CacheMode selects how signing keys are obtained.
type CacheMode string

const (
	// CacheNone fetches the key set for every validation.
	CacheNone CacheMode = "none"
	// CacheTTL keeps resolved keys for a fixed TTL.
	CacheTTL CacheMode = "ttl"
	// CacheRefresh keeps the whole key set in memory and refreshes it in the background.
	CacheRefresh CacheMode = "background"
)

// Valid reports whether m is a known mode. The empty mode means CacheNone.
func (m CacheMode) Valid() bool {
	switch m {
	case "", CacheNone, CacheTTL, CacheRefresh:
		return true
	}
	return false
}

// Options configures NewResolver.
type Options struct {
	Mode         CacheMode
	TTL          time.Duration
	FetchTimeout time.Duration
	Client       *http.Client
}

// NewResolver builds the resolver for the selected mode. The returned stop function
// releases background goroutines and is never nil.
func NewResolver(domain string, opts Options, log *zap.SugaredLogger) (Resolver, func(), error) {
	switch opts.Mode {
	case "", CacheNone:
		return NewFetcher(domain, WithHTTPClient(opts.Client), WithFetchTimeout(opts.FetchTimeout)), func() {}, nil
	case CacheTTL:
		cached := NewCachedResolver(
			NewFetcher(domain, WithHTTPClient(opts.Client), WithFetchTimeout(opts.FetchTimeout)),
			opts.TTL,
		)
		return cached, cached.Stop, nil
	case CacheRefresh:
		r, err := NewRefreshingResolver(domain, RefreshOptions{
			Interval: opts.TTL,
			Timeout:  opts.FetchTimeout,
			Client:   opts.Client,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown JWKS cache mode %q", opts.Mode)
	}
}
