// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/telekom/authy/pkg/apperrors"
	"github.com/telekom/authy/pkg/jwks"
	"github.com/telekom/authy/pkg/session"
)

// DefaultExchangeTimeout bounds the token endpoint call.
const DefaultExchangeTimeout = 10 * time.Second

// Config holds the identity provider and gateway addresses the flow needs.
type Config struct {
	IdentityProviderDomain string
	ClientID               string
	ClientSecret           string
	// ServerDomain is the gateway's public base URL.
	ServerDomain string
	// SuccessRedirect is where the browser lands after a completed login.
	SuccessRedirect string
	ExchangeTimeout time.Duration

	// VerifyIDToken enables id_token verification against Issuer.
	VerifyIDToken bool
	// Issuer defaults to IdentityProviderDomain.
	Issuer string
}

// TokenResponse is the token endpoint answer. It only lives inside a callback.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	IDToken      string
	RefreshToken string
}

// CallbackResult tells the HTTP layer how to finish a successful login.
type CallbackResult struct {
	RedirectURL string
	Cookie      *http.Cookie
	Token       *TokenResponse
	// IDTokenClaims is set when the id_token was verified.
	IDTokenClaims *IDTokenClaims
}

// IDTokenClaims is the subset of id_token claims recorded after verification.
type IDTokenClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
}

// Flow drives the authorization code flow against the identity provider.
type Flow struct {
	conf          *oauth2.Config
	idp           *url.URL
	server        *url.URL
	redirect      string
	secureCookies bool
	timeout       time.Duration
	client        *http.Client
	verifier      *oidc.IDTokenVerifier
	now           func() time.Time
}

// Option configures a Flow.
type Option func(*Flow)

// WithHTTPClient sets the client used for the token endpoint and id_token keys.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		if c != nil {
			f.client = c
		}
	}
}

// WithClock overrides the time source used for id_token expiry.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlow validates the configured URLs and builds the flow.
func NewFlow(cfg Config, opts ...Option) (*Flow, error) {
	idp, err := parseBaseURL("identity provider domain", cfg.IdentityProviderDomain)
	if err != nil {
		return nil, err
	}
	server, err := parseBaseURL("server domain", cfg.ServerDomain)
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if cfg.SuccessRedirect == "" {
		return nil, errors.New("post login redirect is required")
	}

	f := &Flow{
		idp:           idp,
		server:        server,
		redirect:      cfg.SuccessRedirect,
		secureCookies: strings.EqualFold(server.Scheme, "https"),
		timeout:       cfg.ExchangeTimeout,
		client:        http.DefaultClient,
		now:           time.Now,
	}
	if f.timeout <= 0 {
		f.timeout = DefaultExchangeTimeout
	}
	for _, o := range opts {
		o(f)
	}

	base := strings.TrimRight(idp.String(), "/")
	f.conf = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/login",
			TokenURL:  base + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		RedirectURL: strings.TrimRight(server.String(), "/") + "/callback",
		Scopes:      []string{oidc.ScopeOpenID},
	}

	if cfg.VerifyIDToken {
		issuer := cfg.Issuer
		if issuer == "" {
			issuer = cfg.IdentityProviderDomain
		}
		keyCtx := oidc.ClientContext(context.Background(), f.client)
		keySet := oidc.NewRemoteKeySet(keyCtx, jwks.URLForDomain(base))
		f.verifier = oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: []string{oidc.RS256},
			Now:                  func() time.Time { return f.now() },
		})
	}

	return f, nil
}

func parseBaseURL(name, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not a valid URL: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%s %q must be an absolute http(s) URL", name, raw)
	}
	return u, nil
}

// SecureCookies reports whether session cookies get the Secure attribute.
func (f *Flow) SecureCookies() bool {
	return f.secureCookies
}

// BeginLogin returns the identity provider login URL. No state parameter is added.
func (f *Flow) BeginLogin() string {
	return f.conf.AuthCodeURL("")
}

// LogoutURL returns the identity provider logout URL that sends the browser back to the gateway root.
func (f *Flow) LogoutURL() string {
	q := url.Values{}
	q.Set("client_id", f.conf.ClientID)
	q.Set("logout_uri", strings.TrimRight(f.server.String(), "/")+"/")
	return strings.TrimRight(f.idp.String(), "/") + "/logout?" + q.Encode()
}

// HandleCallback exchanges the authorization code and returns the session cookie to set.
func (f *Flow) HandleCallback(ctx context.Context, query url.Values) (*CallbackResult, error) {
	code := query.Get("code")
	if code == "" {
		return nil, apperrors.Auth("No authorization code provided")
	}
	if providerErr := query.Get("error"); providerErr != "" {
		return nil, apperrors.Auth(providerErr)
	}

	token, err := f.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	result := &CallbackResult{
		RedirectURL: f.redirect,
		Cookie:      session.IssueCookie(token.AccessToken, f.secureCookies),
		Token:       token,
	}

	if f.verifier != nil && token.IDToken != "" {
		claims, err := f.verifyIDToken(ctx, token.IDToken)
		if err != nil {
			return nil, err
		}
		result.IDTokenClaims = claims
	}

	return result, nil
}

func (f *Flow) exchange(ctx context.Context, code string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)

	tok, err := f.conf.Exchange(ctx, code, oauth2.SetAuthURLParam("client_id", f.conf.ClientID))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, apperrors.Auth(string(retrieveErr.Body))
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) || apperrors.IsTimeout(err) {
			return nil, apperrors.Transport("Token exchange failed", err)
		}
		return nil, apperrors.Upstream(fmt.Sprintf("Invalid token response: %v", err), err)
	}

	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		RefreshToken: tok.RefreshToken,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	return resp, nil
}

func (f *Flow) verifyIDToken(ctx context.Context, raw string) (*IDTokenClaims, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	ctx = oidc.ClientContext(ctx, f.client)

	idToken, err := f.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, apperrors.Auth(fmt.Sprintf("Invalid ID token: %v", err))
	}
	claims := &IDTokenClaims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, apperrors.Auth(fmt.Sprintf("Invalid ID token: %v", err))
	}
	return claims, nil
}
