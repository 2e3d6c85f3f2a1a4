// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telekom/authy/pkg/metrics"
)

// DefaultFetchTimeout bounds a single JWKS request.
const DefaultFetchTimeout = 5 * time.Second

const maxDocumentSize = 1 << 20

// Fetcher downloads the key set on every lookup. It is the uncached baseline resolver.
type Fetcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for key set requests.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher returns a Fetcher for the JWKS endpoint of the given identity provider domain.
func NewFetcher(domain string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		url:     URLForDomain(domain),
		client:  http.DefaultClient,
		timeout: DefaultFetchTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// URL returns the JWKS endpoint.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads and parses the key set document.
func (f *Fetcher) Fetch(ctx context.Context) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.JWKSFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.JWKSFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		metrics.JWKSFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: reading body: %w", ErrUnavailable, err)
	}

	doc, err := ParseDocument(body)
	if err != nil {
		metrics.JWKSFetches.WithLabelValues("malformed").Inc()
		return nil, err
	}
	metrics.JWKSFetches.WithLabelValues("success").Inc()
	return doc, nil
}

// ResolveKey fetches the key set and returns the RSA key for kid.
func (f *Fetcher) ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	doc, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	jwk, err := doc.Lookup(kid)
	if err != nil {
		return nil, err
	}
	key, err := jwk.RSAPublicKey()
	if err != nil {
		return nil, err
	}
	return key, nil
}

// IsTransient reports whether a resolver error may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
