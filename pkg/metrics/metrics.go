package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginRedirects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authy_login_redirects_total",
		Help: "Total number of redirects to the identity provider login page",
	})
	Callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_callbacks_total",
		Help: "Total number of OAuth2 callbacks handled, by result",
	}, []string{"result"})
	Logouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authy_logouts_total",
		Help: "Total number of logout requests",
	})

	// Session gate metrics. result is "valid" or the failure kind.
	SessionValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_session_validations_total",
		Help: "Total number of session validations, by result",
	}, []string{"result"})
	JWKSFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_jwks_fetches_total",
		Help: "Total number of JWKS document fetches from the identity provider, by result",
	}, []string{"result"})
	JWKSCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_jwks_cache_lookups_total",
		Help: "Total number of signing key cache lookups, by result (hit/miss)",
	}, []string{"result"})

	// Proxy metrics. Keep the code label to the numeric status; the path is intentionally omitted.
	ProxyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_proxy_requests_total",
		Help: "Total number of requests forwarded to the protected backend",
	}, []string{"method", "code"})
	ProxyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authy_proxy_request_duration_seconds",
		Help:    "Latency of forwarded requests including body buffering",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_ratelimit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})

	// Audit delivery metrics
	AuditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_audit_events_total",
		Help: "Total number of audit events written to sinks, by sink and result",
	}, []string{"sink", "result"})
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authy_audit_events_dropped_total",
		Help: "Total number of audit events dropped because the queue was full or closed",
	})
	AuditSinkConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "authy_audit_sink_connected",
		Help: "Whether an audit sink is currently able to deliver events (1) or not (0)",
	}, []string{"sink"})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authy_audit_sink_errors_total",
		Help: "Total number of audit sink write failures, by sink and error type",
	}, []string{"sink", "error_type"})
	AuditSinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authy_audit_sink_write_duration_seconds",
		Help:    "Latency of a single audit sink write",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(LoginRedirects)
	prometheus.MustRegister(Callbacks)
	prometheus.MustRegister(Logouts)
	prometheus.MustRegister(SessionValidations)
	prometheus.MustRegister(JWKSFetches)
	prometheus.MustRegister(JWKSCacheLookups)
	prometheus.MustRegister(ProxyRequests)
	prometheus.MustRegister(ProxyDuration)
	prometheus.MustRegister(RateLimitRejections)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(AuditSinkConnected)
	prometheus.MustRegister(AuditSinkErrors)
	prometheus.MustRegister(AuditSinkLatency)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
