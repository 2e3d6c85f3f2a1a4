package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/telekom/authy/pkg/apiresponses"
	"github.com/telekom/authy/pkg/audit"
	"github.com/telekom/authy/pkg/config"
	"github.com/telekom/authy/pkg/revocation"
	"github.com/telekom/authy/pkg/session"
	"github.com/telekom/authy/pkg/system"
)

const (
	testClientID     = "gateway-client"
	testClientSecret = "gateway-secret"
	testServerDomain = "https://gateway.example.com"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testIDP serves the token and JWKS endpoints of a fake identity provider.
type testIDP struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu          sync.Mutex
	accessToken string
	tokenCalls  int
}

func newTestIDP(t *testing.T) *testIDP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idp := &testIDP{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		idp.mu.Lock()
		idp.tokenCalls++
		token := idp.accessToken
		idp.mu.Unlock()

		if user, pass, ok := r.BasicAuth(); !ok || user != testClientID || pass != testClientSecret {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kid": "k1",
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	})
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func (i *testIDP) URL() string { return i.srv.URL }

func (i *testIDP) calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tokenCalls
}

// sign issues an access token for subject signed with the provider key under kid.
func (i *testIDP) sign(t *testing.T, subject, kid string, exp time.Time) string {
	t.Helper()
	claims := session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.URL(),
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        "jti-" + subject,
		},
		Username: subject + "-name",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

// testBackend is the protected website.
type testBackend struct {
	srv  *httptest.Server
	hits atomic.Int32
	last atomic.Pointer[http.Request]
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *testBackend {
	t.Helper()
	b := &testBackend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		b.last.Store(r.Clone(r.Context()))
		if handler != nil {
			handler(w, r)
			return
		}
		_, _ = w.Write([]byte("protected:" + r.URL.RequestURI()))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

type gateway struct {
	idp     *testIDP
	backend *testBackend
	server  *Server
	handler http.Handler
}

func newGateway(t *testing.T, backendHandler http.HandlerFunc, mutate func(*config.Config), opts ...Option) *gateway {
	t.Helper()
	idp := newTestIDP(t)
	backend := newTestBackend(t, backendHandler)

	cfg := config.Config{
		IdentityProvider: config.IdentityProvider{
			Domain:       idp.URL(),
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
		},
		Server: config.Server{
			Domain:         testServerDomain,
			MetricsAddress: "-",
		},
		Upstream: config.Upstream{URL: backend.srv.URL},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	server, err := NewServer(system.NewTestLogger(t), cfg, true, opts...)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	return &gateway{idp: idp, backend: backend, server: server, handler: server.Handler()}
}

func (g *gateway) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, req)
	return w
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiresponses.APIError {
	t.Helper()
	var body apiresponses.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	g := newGateway(t, nil, nil)
	w := g.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Zero(t, g.backend.hits.Load())
}

func TestTrailingSlashPathsGoThroughGate(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	for _, path := range []string{"/callback/", "/logout/", "/health/"} {
		t.Run(path, func(t *testing.T) {
			w := g.do(httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Empty(t, w.Header().Get("Location"))

			w = g.do(withSession(httptest.NewRequest(http.MethodGet, path, nil), token))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "protected:"+path, w.Body.String())
		})
	}
	assert.Equal(t, int32(3), g.backend.hits.Load())
}

func TestLoginRedirectsToIdentityProvider(t *testing.T) {
	g := newGateway(t, nil, nil)
	w := g.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, g.idp.URL()+"/login", loc.Scheme+"://"+loc.Host+loc.Path)
	assert.Equal(t, testClientID, loc.Query().Get("client_id"))
	assert.Equal(t, testServerDomain+"/callback", loc.Query().Get("redirect_uri"))
	assert.Equal(t, "code", loc.Query().Get("response_type"))
	assert.Equal(t, "openid", loc.Query().Get("scope"))
	assert.Empty(t, loc.Query().Get("state"))
}

func TestCallbackWithoutCode(t *testing.T) {
	g := newGateway(t, nil, nil)
	w := g.do(httptest.NewRequest(http.MethodGet, "/callback", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apiresponses.APIError{Error: "No authorization code provided", Code: "AUTH_ERROR"}, decodeError(t, w))
	assert.Zero(t, g.idp.calls())
}

func TestCallbackProviderErrorWithCode(t *testing.T) {
	g := newGateway(t, nil, nil)
	w := g.do(httptest.NewRequest(http.MethodGet, "/callback?code=x&error=access_denied", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apiresponses.APIError{Error: "access_denied", Code: "AUTH_ERROR"}, decodeError(t, w))
	assert.Zero(t, g.idp.calls(), "the code must not be exchanged")
}

func TestCallbackIssuesSessionCookie(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))
	g.idp.mu.Lock()
	g.idp.accessToken = token
	g.idp.mu.Unlock()

	w := g.do(httptest.NewRequest(http.MethodGet, "/callback?code=abc", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, g.backend.srv.URL, w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 1, g.idp.calls())
}

func TestCallbackPostLoginRedirect(t *testing.T) {
	g := newGateway(t, nil, func(c *config.Config) {
		c.Server.PostLoginRedirect = "https://app.example.com/welcome"
	})
	g.idp.accessToken = g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	w := g.do(httptest.NewRequest(http.MethodGet, "/callback?code=abc", nil))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.example.com/welcome", w.Header().Get("Location"))
}

func TestGateRejectsMissingSession(t *testing.T) {
	g := newGateway(t, nil, nil)
	w := g.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apiresponses.APIError{Error: "No session cookie found", Code: "UNAUTHORIZED"}, decodeError(t, w))
	assert.Zero(t, g.backend.hits.Load())
}

func TestGateRejectsUnknownKeyID(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "rotated-away", time.Now().Add(time.Hour))

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No matching key found", decodeError(t, w).Error)
	assert.Zero(t, g.backend.hits.Load())
}

func TestGateRejectsExpiredToken(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(-time.Minute))

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token expired", decodeError(t, w).Error)
}

func TestGateForwardsValidSession(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	req := withSession(httptest.NewRequest(http.MethodGet, "/reports/a%2Fb?page=2", nil), token)
	w := g.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "protected:/reports/a%2Fb?page=2", w.Body.String())
	assert.Equal(t, int32(1), g.backend.hits.Load())
}

func TestTracingSpansProxiedRequest(t *testing.T) {
	prevProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prevProp) })

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	g := newGateway(t, nil, func(c *config.Config) {
		c.Tracing = config.Tracing{Enabled: true, Exporter: "none"}
	}, WithTracerProvider(tp))
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var server sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "GET proxy" {
			server = span
		}
	}
	require.NotNil(t, server, "no server span recorded")
	upstream := g.backend.last.Load()
	require.NotNil(t, upstream)
	assert.Contains(t, upstream.Header.Get("traceparent"), server.SpanContext().TraceID().String())
}

func TestGateForwardsBodyAndMethod(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.Method + ":" + string(body)))
	}, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	// POST / is not the login route; it goes through the gate to the backend.
	w := g.do(withSession(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("payload")), token))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "POST:payload", w.Body.String())
}

func TestProxyRewritesBehindHTTPSProxy(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Add("Set-Cookie", "session=1; Path=/")
		w.Header().Set("Location", "http://backend/target")
		w.WriteHeader(http.StatusFound)
	}, func(c *config.Config) {
		c.Server.BehindProxy = true
	})
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	req := withSession(httptest.NewRequest(http.MethodGet, "/go", nil), token)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := g.do(req)

	require.Equal(t, http.StatusFound, w.Code)
	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "SameSite=Lax")
	assert.Contains(t, setCookie, "Path=/")
	assert.Equal(t, "https://backend/target", w.Header().Get("Location"))
	assert.Equal(t, "https", g.backend.last.Load().Header.Get("X-Forwarded-Proto"))
}

func TestProxyUpstreamDown(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))
	g.backend.srv.Close()

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "BAD_GATEWAY", body.Code)
	assert.True(t, strings.HasPrefix(body.Error, "Proxy request failed"), body.Error)
}

func TestUpstreamFailureAuditsSessionSubject(t *testing.T) {
	auditLog, logs := system.NewObservedLogger(zapcore.InfoLevel)
	manager := audit.NewManager(audit.NewLogSink(auditLog), audit.DefaultManagerConfig(), zap.NewNop())

	g := newGateway(t, nil, nil, WithAuditManager(manager))
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))
	g.backend.srv.Close()

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.NoError(t, manager.Close())

	var failure map[string]interface{}
	for _, e := range logs.All() {
		if ctx := e.ContextMap(); ctx["event_type"] == string(audit.EventUpstreamFail) {
			failure = ctx
		}
	}
	require.NotNil(t, failure, "no upstream failure event")
	assert.Equal(t, "alice", failure["subject"])
	assert.Equal(t, "/dashboard", failure["path"])
}

func TestJWKSOutageIsBadGateway(t *testing.T) {
	g := newGateway(t, nil, nil)
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))
	g.idp.srv.Close()

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "BAD_GATEWAY", decodeError(t, w).Code)
	assert.Zero(t, g.backend.hits.Load())
}

func TestLogoutRevokesToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := revocation.NewRedisStoreWithClient(client, "test:")

	g := newGateway(t, nil, nil, WithRevocationStore(store))
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	w := g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))
	require.Equal(t, http.StatusOK, w.Code)

	w = g.do(withSession(httptest.NewRequest(http.MethodGet, "/logout", nil), token))
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/logout", loc.Path)
	assert.Equal(t, testClientID, loc.Query().Get("client_id"))
	assert.Equal(t, testServerDomain+"/", loc.Query().Get("logout_uri"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)

	assert.True(t, mr.Exists("test:jti:jti-alice"))
	ttl := mr.TTL("test:jti:jti-alice")
	assert.Greater(t, ttl, 50*time.Minute)

	w = g.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token revoked", decodeError(t, w).Error)
	assert.Equal(t, int32(1), g.backend.hits.Load())
}

func TestLogoutWithoutSession(t *testing.T) {
	g := newGateway(t, nil, nil)
	w := g.do(httptest.NewRequest(http.MethodGet, "/logout", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/logout?")
}

func TestAuditEventsForGatewayDecisions(t *testing.T) {
	auditLog, logs := system.NewObservedLogger(zapcore.InfoLevel)
	manager := audit.NewManager(audit.NewLogSink(auditLog), audit.DefaultManagerConfig(), zap.NewNop())

	g := newGateway(t, nil, nil, WithAuditManager(manager))
	g.idp.accessToken = g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	g.do(httptest.NewRequest(http.MethodGet, "/", nil))
	g.do(httptest.NewRequest(http.MethodGet, "/callback?code=abc", nil))
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	g.do(req)

	require.NoError(t, manager.Close())

	byType := map[string]map[string]interface{}{}
	for _, e := range logs.All() {
		ctx := e.ContextMap()
		if et, ok := ctx["event_type"].(string); ok {
			byType[et] = ctx
		}
	}
	require.Contains(t, byType, string(audit.EventLoginStarted))
	require.Contains(t, byType, string(audit.EventAuthSuccess))
	assert.Equal(t, "alice", byType[string(audit.EventAuthSuccess)]["subject"])

	denied := byType[string(audit.EventSessionDenied)]
	require.NotNil(t, denied)
	assert.Equal(t, "203.0.113.7", denied["client_ip"])
	assert.Equal(t, "/secret", denied["path"])
	assert.Equal(t, "No session cookie found", denied["reason"])
}

func TestRateLimitOnAuthRoutes(t *testing.T) {
	g := newGateway(t, nil, func(c *config.Config) {
		c.RateLimit = config.RateLimit{Enabled: true, Rate: 0.001, Burst: 1}
	})

	first := g.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, first.Code)

	second := g.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, second).Code)

	// health checks are never limited
	assert.Equal(t, http.StatusOK, g.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestRateLimitPerSubjectBehindGate(t *testing.T) {
	g := newGateway(t, nil, func(c *config.Config) {
		c.RateLimit = config.RateLimit{Enabled: true, Rate: 100, Burst: 100, SessionRate: 0.001, SessionBurst: 1}
	})
	token := g.idp.sign(t, "alice", "k1", time.Now().Add(time.Hour))

	assert.Equal(t, http.StatusOK, g.do(withSession(httptest.NewRequest(http.MethodGet, "/a", nil), token)).Code)
	assert.Equal(t, http.StatusTooManyRequests, g.do(withSession(httptest.NewRequest(http.MethodGet, "/b", nil), token)).Code)

	other := g.idp.sign(t, "bob", "k1", time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusOK, g.do(withSession(httptest.NewRequest(http.MethodGet, "/c", nil), other)).Code)
}

func TestNewServerRejectsBadTrustedProxies(t *testing.T) {
	idp := newTestIDP(t)
	cfg := config.Config{
		IdentityProvider: config.IdentityProvider{Domain: idp.URL(), ClientID: testClientID, ClientSecret: testClientSecret},
		Server:           config.Server{Domain: testServerDomain, TrustedProxies: []string{"not-an-ip"}},
		Upstream:         config.Upstream{URL: "http://127.0.0.1:1"},
	}
	cfg.ApplyDefaults()

	_, err := NewServer(system.NewTestLogger(t), cfg, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trustedProxies")
}

func TestNewServerBackgroundJWKSNeedsProvider(t *testing.T) {
	cfg := config.Config{
		IdentityProvider: config.IdentityProvider{
			Domain:       "http://127.0.0.1:1",
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			JWKSCache:    "background",
		},
		Server:   config.Server{Domain: testServerDomain},
		Upstream: config.Upstream{URL: "http://127.0.0.1:1"},
		Timeouts: config.Timeouts{JWKSFetch: "200ms"},
	}
	cfg.ApplyDefaults()

	_, err := NewServer(system.NewTestLogger(t), cfg, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWKS")
}

func TestCloseIsIdempotent(t *testing.T) {
	g := newGateway(t, nil, func(c *config.Config) {
		c.RateLimit = config.RateLimit{Enabled: true, Rate: 1, Burst: 1}
		c.IdentityProvider.JWKSCache = "ttl"
	})
	g.server.Close()
	g.server.Close()
}
