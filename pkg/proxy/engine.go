// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/telekom/authy/pkg/apperrors"
	"github.com/telekom/authy/pkg/metrics"
)

const (
	// DefaultMaxBodySize caps the buffered inbound request body.
	DefaultMaxBodySize int64 = 10 << 20
	// DefaultTimeout bounds one upstream round trip including the response body.
	DefaultTimeout = 30 * time.Second
)

// Config configures an Engine.
type Config struct {
	// UpstreamURL is the protected backend base URL.
	UpstreamURL string
	// BehindProxy enables the protocol transition rewrites driven by X-Forwarded-Proto.
	BehindProxy bool
	// RewriteHost sends the upstream's own host instead of the inbound Host header.
	RewriteHost bool
	Timeout     time.Duration
	MaxBodySize int64
}

// Response is a fully buffered upstream response after rewriting.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Write sends the response to w.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for name, values := range r.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}

// Engine forwards authenticated requests to the protected backend.
type Engine struct {
	upstream    string
	behindProxy bool
	rewriteHost bool
	timeout     time.Duration
	maxBody     int64
	client      *http.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransport overrides the round tripper used for upstream calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Engine) {
		if rt != nil {
			e.client.Transport = rt
		}
	}
}

// NewTransport returns the default upstream transport. Compression is left to the
// browser and the backend so bodies pass through unchanged.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewEngine validates the upstream URL and builds the engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.UpstreamURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("upstream URL %q must be an absolute http(s) URL", cfg.UpstreamURL)
	}

	e := &Engine{
		upstream:    strings.TrimRight(cfg.UpstreamURL, "/"),
		behindProxy: cfg.BehindProxy,
		rewriteHost: cfg.RewriteHost,
		timeout:     cfg.Timeout,
		maxBody:     cfg.MaxBodySize,
		client: &http.Client{
			Transport: NewTransport(),
			// Redirects are returned to the browser, never followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxBody <= 0 {
		e.maxBody = DefaultMaxBodySize
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// IsHTTPS reports whether the original client connection was https as seen through the
// fronting proxy. It is always false unless the engine runs behind a proxy.
func (e *Engine) IsHTTPS(r *http.Request) bool {
	return e.behindProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

// UpstreamURL returns the backend URL r is forwarded to.
func (e *Engine) UpstreamURL(r *http.Request) string {
	target := e.upstream + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// Forward sends r to the backend and returns the rewritten response.
func (e *Engine) Forward(ctx context.Context, r *http.Request) (*Response, error) {
	start := time.Now()
	isHTTPS := e.IsHTTPS(r)

	body, err := e.readBody(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, r.Method, e.UpstreamURL(r), bytes.NewReader(body))
	if err != nil {
		if strings.Contains(err.Error(), "invalid method") {
			return nil, apperrors.Internal(fmt.Sprintf("Invalid method: %s", r.Method), err)
		}
		return nil, apperrors.Internal(fmt.Sprintf("Failed to build upstream request: %v", err), err)
	}

	copyHeaders(out.Header, r.Header)
	host := r.Host
	if !e.rewriteHost {
		out.Host = host
	}
	if e.behindProxy {
		proto := "http"
		if isHTTPS {
			proto = "https"
		}
		out.Header.Set("X-Forwarded-Proto", proto)
		out.Header.Set("X-Forwarded-Host", host)
	}

	resp, err := e.client.Do(out)
	if err != nil {
		return nil, apperrors.Transport("Proxy request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Transport("Failed to read upstream response", err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     e.rewriteResponseHeaders(resp.Header, isHTTPS),
		Body:       respBody,
	}

	metrics.ProxyRequests.WithLabelValues(r.Method, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.ProxyDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	return result, nil
}

var errBodyTooLarge = errors.New("request body too large")

func (e *Engine) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, e.maxBody+1))
	if err != nil {
		return nil, apperrors.Internal(fmt.Sprintf("Failed to read request body: %v", err), err)
	}
	if int64(len(body)) > e.maxBody {
		return nil, apperrors.Internal(
			fmt.Sprintf("Failed to read request body: exceeds %d bytes", e.maxBody), errBodyTooLarge)
	}
	return body, nil
}

func (e *Engine) rewriteResponseHeaders(src http.Header, isHTTPS bool) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if IsHopHeader(name) {
			continue
		}
		for _, v := range values {
			if e.behindProxy {
				switch {
				case strings.EqualFold(name, "Set-Cookie"):
					v = rewriteSetCookie(v, isHTTPS)
				case strings.EqualFold(name, "Location") && isHTTPS:
					v = rewriteLocation(v)
				}
			}
			dst.Add(name, v)
		}
	}
	return dst
}
