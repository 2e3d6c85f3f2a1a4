package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/audit"
	"github.com/telekom/authy/pkg/config"
	"github.com/telekom/authy/pkg/jwks"
	"github.com/telekom/authy/pkg/metrics"
	"github.com/telekom/authy/pkg/oauth"
	"github.com/telekom/authy/pkg/proxy"
	"github.com/telekom/authy/pkg/ratelimit"
	"github.com/telekom/authy/pkg/revocation"
	"github.com/telekom/authy/pkg/session"
	"github.com/telekom/authy/pkg/telemetry"
)

// Server is the gateway: login and callback routes, the session gate and the proxy fallback.
type Server struct {
	gin    *gin.Engine
	config config.Config
	log    *zap.SugaredLogger

	flow      *oauth.Flow
	validator *session.Validator
	proxy     *proxy.Engine

	resolver   jwks.Resolver
	revocation revocation.Store
	audit      *audit.Manager
	clock      func() time.Time
	tracer     trace.TracerProvider

	httpClient        *http.Client
	upstreamTransport http.RoundTripper

	publicRateLimiter  *ratelimit.Limiter
	sessionRateLimiter *ratelimit.SessionLimiter

	// closers release what NewServer built itself, in reverse order.
	closers   []func()
	closeOnce sync.Once
}

// Option customises NewServer. Dependencies not injected are built from the config.
type Option func(*Server)

// WithResolver injects the signing key resolver.
func WithResolver(r jwks.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithRevocationStore injects the revocation store. The caller keeps ownership.
func WithRevocationStore(store revocation.Store) Option {
	return func(s *Server) { s.revocation = store }
}

// WithAuditManager injects the audit manager. The caller keeps ownership.
func WithAuditManager(m *audit.Manager) Option {
	return func(s *Server) { s.audit = m }
}

// WithHTTPClient sets the client used for identity provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// WithUpstreamTransport sets the round tripper used to reach the protected backend.
func WithUpstreamTransport(rt http.RoundTripper) Option {
	return func(s *Server) { s.upstreamTransport = rt }
}

// WithClock overrides the time source of the session and id_token checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.clock = now }
}

// WithTracerProvider sets the provider used for request and outbound spans when
// tracing is enabled. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp }
}

// NewServer builds the gateway from a validated config.
func NewServer(log *zap.Logger, cfg config.Config, debug bool, opts ...Option) (*Server, error) {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		log:    log.Sugar(),
		clock:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.buildDependencies(log); err != nil {
		s.Close()
		return nil, err
	}

	engine := gin.New()
	// Paths like /callback/ belong to the backend, not to the gateway routes.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid server.trustedProxies: %w", err)
	}
	if cfg.Tracing.Enabled {
		engine.Use(telemetry.Middleware(s.tracer))
	}
	engine.Use(
		s.requestLogger(),
		accessLog(s.log),
		ginzap.RecoveryWithZap(log, true),
		corsMiddleware(cfg.CORS.AllowedOrigins),
	)

	rejectAudit := func(c *gin.Context) {
		s.audit.RateLimited(c.Request.Context(), c.Request, session.ClientIP(c.Request))
	}

	public := []gin.HandlerFunc{}
	gated := []gin.HandlerFunc{s.sessionGate()}
	if cfg.RateLimit.Enabled {
		s.publicRateLimiter = ratelimit.New(ratelimit.Config{
			Rate:            cfg.RateLimit.Rate,
			Burst:           cfg.RateLimit.Burst,
			CleanupInterval: time.Minute,
			MaxAge:          5 * time.Minute,
		})
		sessionCfg := ratelimit.DefaultSessionConfig()
		sessionCfg.Anonymous.Rate, sessionCfg.Anonymous.Burst = cfg.RateLimit.Rate, cfg.RateLimit.Burst
		if cfg.RateLimit.SessionRate > 0 && cfg.RateLimit.SessionBurst > 0 {
			sessionCfg.Authenticated.Rate = cfg.RateLimit.SessionRate
			sessionCfg.Authenticated.Burst = cfg.RateLimit.SessionBurst
		}
		s.sessionRateLimiter = ratelimit.NewSessionLimiter(sessionCfg, nil)

		public = append(public, s.publicRateLimiter.Middleware("auth", nil, rejectAudit))
		gated = append(gated, s.sessionRateLimiter.Middleware("proxy", rejectAudit))
	}

	engine.GET("/health", s.health)
	engine.GET("/", chain(public, s.login)...)
	engine.GET("/callback", chain(public, s.callback)...)
	engine.GET("/logout", chain(public, s.logout)...)
	engine.NoRoute(chain(gated, s.forward)...)

	s.gin = engine
	return s, nil
}

func chain(middleware []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middleware)+1)
	return append(append(out, middleware...), h)
}

func (s *Server) buildDependencies(log *zap.Logger) error {
	cfg := s.config
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}
	if cfg.Tracing.Enabled {
		client := *s.httpClient
		client.Transport = telemetry.Transport(client.Transport, s.tracer)
		s.httpClient = &client
		if s.upstreamTransport == nil {
			s.upstreamTransport = proxy.NewTransport()
		}
		s.upstreamTransport = telemetry.Transport(s.upstreamTransport, s.tracer)
	}

	if s.resolver == nil {
		resolver, stop, err := jwks.NewResolver(cfg.IdentityProvider.Domain, jwks.Options{
			Mode:         jwks.CacheMode(cfg.IdentityProvider.JWKSCache),
			TTL:          cfg.IdentityProvider.GetJWKSCacheTTL(),
			FetchTimeout: cfg.Timeouts.GetJWKSFetch(),
			Client:       s.httpClient,
		}, s.log)
		if err != nil {
			return fmt.Errorf("failed to set up JWKS resolver: %w", err)
		}
		s.resolver = resolver
		s.closers = append(s.closers, stop)
	}

	if s.revocation == nil && cfg.RevocationEnabled() {
		store, err := newRevocationStore(cfg.Revocation, cfg.Timeouts.GetJWKSFetch())
		if err != nil {
			return err
		}
		s.revocation = store
		s.closers = append(s.closers, func() { _ = store.Close() })
	}

	if s.audit == nil && cfg.Audit.Enabled {
		manager, err := newAuditManager(cfg.Audit, log)
		if err != nil {
			return err
		}
		s.audit = manager
		s.closers = append(s.closers, func() { _ = manager.Close() })
	}

	flow, err := oauth.NewFlow(oauth.Config{
		IdentityProviderDomain: cfg.IdentityProvider.Domain,
		ClientID:               cfg.IdentityProvider.ClientID,
		ClientSecret:           cfg.IdentityProvider.ClientSecret,
		ServerDomain:           cfg.Server.Domain,
		SuccessRedirect:        cfg.Server.PostLoginRedirect,
		ExchangeTimeout:        cfg.Timeouts.GetTokenExchange(),
		VerifyIDToken:          cfg.IdentityProvider.VerifyIDToken,
		Issuer:                 cfg.IdentityProvider.Issuer,
	}, oauth.WithHTTPClient(s.httpClient), oauth.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("failed to set up OAuth2 flow: %w", err)
	}
	s.flow = flow

	validatorOpts := []session.ValidatorOption{session.WithClock(s.clock)}
	if s.revocation != nil {
		validatorOpts = append(validatorOpts, session.WithRevocationStore(s.revocation))
	}
	s.validator = session.NewValidator(s.resolver, cfg.IdentityProvider.Issuer, cfg.IdentityProvider.ClientID, validatorOpts...)

	engine, err := proxy.NewEngine(proxy.Config{
		UpstreamURL: cfg.Upstream.URL,
		BehindProxy: cfg.Server.BehindProxy,
		RewriteHost: cfg.Upstream.RewriteHost,
		Timeout:     cfg.Timeouts.GetUpstream(),
	}, proxy.WithTransport(s.upstreamTransport))
	if err != nil {
		return fmt.Errorf("failed to set up proxy: %w", err)
	}
	s.proxy = engine
	return nil
}

// Handler returns the gateway as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves the gateway, and the metrics endpoint unless disabled, until ctx is done.
// In-flight requests get server.shutdownTimeout to complete.
func (s *Server) Listen(ctx context.Context) error {
	timeouts := s.config.Server.GetServerTimeouts()
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadTimeout:       timeouts.GetReadTimeout(),
		ReadHeaderTimeout: timeouts.GetReadHeaderTimeout(),
		WriteTimeout:      timeouts.GetWriteTimeout(),
		IdleTimeout:       timeouts.GetIdleTimeout(),
		MaxHeaderBytes:    timeouts.GetMaxHeaderBytes(),
	}
	servers := []*http.Server{srv}

	if addr := s.config.Server.MetricsAddress; addr != "" && addr != "-" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.MetricsHandler())
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: timeouts.GetReadHeaderTimeout(),
		})
	}

	s.audit.Emit(ctx, &audit.Event{Type: audit.EventSystemStartup})

	errCh := make(chan error, len(servers))
	for _, hs := range servers {
		go func(hs *http.Server) {
			s.log.Infow("Listening", "address", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listener %s: %w", hs.Addr, err)
				return
			}
			errCh <- nil
		}(hs)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.audit.Emit(context.Background(), &audit.Event{Type: audit.EventSystemShutdown})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.GetShutdownTimeout())
	defer cancel()
	for _, hs := range servers {
		if err := hs.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("Graceful shutdown incomplete", "address", hs.Addr, "error", err)
		}
	}
	return serveErr
}

// Close stops background work and releases what NewServer created. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.publicRateLimiter != nil {
			s.publicRateLimiter.Stop()
		}
		if s.sessionRateLimiter != nil {
			s.sessionRateLimiter.Stop()
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	})
}
