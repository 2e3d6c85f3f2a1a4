package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is used when neither --config nor AUTHY_CONFIG_PATH is given.
const DefaultConfigPath = "./config.yaml"

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "AUTHY_CONFIG_PATH"

const (
	DefaultListenAddress  = ":3000"
	DefaultMetricsAddress = ":8081"
	DefaultJWKSCacheTTL   = 10 * time.Minute

	DefaultTokenExchangeTimeout = 10 * time.Second
	DefaultJWKSFetchTimeout     = 5 * time.Second
	DefaultUpstreamTimeout      = 30 * time.Second

	DefaultRevocationKeyPrefix = "authy:revoked:"
)

// IdentityProvider describes the OAuth2/OIDC provider the gateway logs users in with.
type IdentityProvider struct {
	// Domain is the provider base URL, e.g. https://example.auth.eu-central-1.amazoncognito.com
	Domain       string `yaml:"domain"`
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	// Issuer overrides the expected iss claim. Defaults to Domain.
	Issuer        string `yaml:"issuer"`
	VerifyIDToken bool   `yaml:"verifyIDToken"`
	// JWKSCache is one of "none", "ttl", "background". Empty means "none".
	JWKSCache    string `yaml:"jwksCache"`
	JWKSCacheTTL string `yaml:"jwksCacheTTL"`
}

type Server struct {
	// Domain is the gateway's public base URL, used for the OAuth2 redirect_uri.
	Domain            string `yaml:"domain"`
	ListenAddress     string `yaml:"listenAddress"`
	PostLoginRedirect string `yaml:"postLoginRedirect"`
	BehindProxy       bool   `yaml:"behindProxy"`
	// MetricsAddress serves /metrics. "-" disables the metrics listener.
	MetricsAddress  string          `yaml:"metricsAddress"`
	TrustedProxies  []string        `yaml:"trustedProxies"`
	Timeouts        *ServerTimeouts `yaml:"timeouts"`
	ShutdownTimeout string          `yaml:"shutdownTimeout"`
}

// Upstream is the protected backend.
type Upstream struct {
	URL         string `yaml:"url"`
	RewriteHost bool   `yaml:"rewriteHost"`
}

// Timeouts bound the outbound calls made while serving a request.
type Timeouts struct {
	TokenExchange string `yaml:"tokenExchange"`
	JWKSFetch     string `yaml:"jwksFetch"`
	Upstream      string `yaml:"upstream"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type RateLimit struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Burst   int     `yaml:"burst"`
	// SessionRate and SessionBurst apply per session subject behind the gate.
	SessionRate  float64 `yaml:"sessionRate"`
	SessionBurst int     `yaml:"sessionBurst"`
}

// Revocation configures the optional Redis-backed token revocation store.
// An empty RedisAddress disables revocation.
type Revocation struct {
	RedisAddress  string `yaml:"redisAddress"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	KeyPrefix     string `yaml:"keyPrefix"`
}

type WebhookAudit struct {
	URL     string            `yaml:"url"`
	Timeout string            `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// KafkaAudit configures the kafka audit sink. ClientCertFile and ClientKeyFile enable mTLS
// when both are set.
type KafkaAudit struct {
	Brokers            []string `yaml:"brokers"`
	Topic              string   `yaml:"topic"`
	CompressionCodec   string   `yaml:"compressionCodec"`
	TLS                bool     `yaml:"tls"`
	CAFile             string   `yaml:"caFile"`
	ClientCertFile     string   `yaml:"clientCertFile"`
	ClientKeyFile      string   `yaml:"clientKeyFile"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
	SASLMechanism      string   `yaml:"saslMechanism"`
	SASLUsername       string   `yaml:"saslUsername"`
	SASLPassword       string   `yaml:"saslPassword"`
}

type Audit struct {
	Enabled   bool          `yaml:"enabled"`
	Webhook   *WebhookAudit `yaml:"webhook"`
	Kafka     *KafkaAudit   `yaml:"kafka"`
	QueueSize int           `yaml:"queueSize"`
	Workers   int           `yaml:"workers"`
}

// Tracing configures OpenTelemetry spans for inbound requests and outbound calls.
type Tracing struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is one of "otlp" (default), "stdout", "none".
	Exporter string `yaml:"exporter"`
	// Endpoint is the OTLP/HTTP collector address, e.g. otel-collector:4318.
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
}

type Config struct {
	IdentityProvider IdentityProvider `yaml:"identityProvider"`
	Server           Server           `yaml:"server"`
	Upstream         Upstream         `yaml:"upstream"`
	Timeouts         Timeouts         `yaml:"timeouts"`
	CORS             CORS             `yaml:"cors"`
	RateLimit        RateLimit        `yaml:"rateLimit"`
	Revocation       Revocation       `yaml:"revocation"`
	Audit            Audit            `yaml:"audit"`
	Tracing          Tracing          `yaml:"tracing"`
}

// Load reads the config file, applies environment overrides and defaults, and validates the result.
// If configPath is empty, AUTHY_CONFIG_PATH and then "./config.yaml" are tried. A missing file is
// not an error when the path was not given explicitly, so a purely environment-driven setup works.
func Load(configPath ...string) (Config, error) {
	path, explicit := DefaultConfigPath, false
	if p := os.Getenv(ConfigPathEnv); p != "" {
		path, explicit = p, true
	}
	if len(configPath) > 0 && configPath[0] != "" {
		path, explicit = configPath[0], true
	}

	var config Config

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &config); err != nil {
			return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
		}
	case explicit || !os.IsNotExist(err):
		return config, fmt.Errorf("trying to open authy config file %s: %v", path, err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return config, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides file values with the deployment environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set("COGNITO_DOMAIN", &c.IdentityProvider.Domain)
	set("COGNITO_CLIENT_ID", &c.IdentityProvider.ClientID)
	set("COGNITO_CLIENT_SECRET", &c.IdentityProvider.ClientSecret)
	set("SERVER_DOMAIN", &c.Server.Domain)
	set("PROTECTED_WEBSITE_URL", &c.Upstream.URL)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil || port == 0 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.ListenAddress = ":" + strconv.FormatUint(port, 10)
	}
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}
	if v, ok := lookup("BEHIND_PROXY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BEHIND_PROXY %q: %v", v, err)
		}
		c.Server.BehindProxy = b
	}
	return nil
}

// ApplyDefaults fills optional values.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = DefaultMetricsAddress
	}
	if c.Server.PostLoginRedirect == "" {
		c.Server.PostLoginRedirect = c.Upstream.URL
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.IdentityProvider.JWKSCache == "" {
		c.IdentityProvider.JWKSCache = "none"
	}
	if c.IdentityProvider.Issuer == "" {
		c.IdentityProvider.Issuer = strings.TrimRight(c.IdentityProvider.Domain, "/")
	}
	if c.Revocation.KeyPrefix == "" {
		c.Revocation.KeyPrefix = DefaultRevocationKeyPrefix
	}
	if c.Tracing.Enabled && c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
}

// Validate reports every missing or malformed required value at once.
func (c *Config) Validate() error {
	var problems []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}
	requireURL := func(value, name string) {
		if value == "" {
			return
		}
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s %q must be an absolute http(s) URL", name, value))
		}
	}

	require(c.IdentityProvider.Domain, "identityProvider.domain (COGNITO_DOMAIN)")
	require(c.IdentityProvider.ClientID, "identityProvider.clientID (COGNITO_CLIENT_ID)")
	require(c.IdentityProvider.ClientSecret, "identityProvider.clientSecret (COGNITO_CLIENT_SECRET)")
	require(c.Server.Domain, "server.domain (SERVER_DOMAIN)")
	require(c.Upstream.URL, "upstream.url (PROTECTED_WEBSITE_URL)")

	requireURL(c.IdentityProvider.Domain, "identityProvider.domain")
	requireURL(c.Server.Domain, "server.domain")
	requireURL(c.Upstream.URL, "upstream.url")
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" {
			requireURL(origin, "cors.allowedOrigins entry")
		}
	}

	switch c.IdentityProvider.JWKSCache {
	case "", "none", "ttl", "background":
	default:
		problems = append(problems, fmt.Sprintf("identityProvider.jwksCache %q must be one of none, ttl, background", c.IdentityProvider.JWKSCache))
	}

	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "rateLimit.rate and rateLimit.burst must be positive when rate limiting is enabled")
	}

	if c.Audit.Enabled && c.Audit.Kafka != nil {
		if len(c.Audit.Kafka.Brokers) == 0 {
			problems = append(problems, "audit.kafka.brokers is required when the kafka sink is configured")
		}
		require(c.Audit.Kafka.Topic, "audit.kafka.topic")
		if (c.Audit.Kafka.ClientCertFile == "") != (c.Audit.Kafka.ClientKeyFile == "") {
			problems = append(problems, "audit.kafka.clientCertFile and audit.kafka.clientKeyFile must be set together")
		}
	}
	if c.Audit.Enabled && c.Audit.Webhook != nil {
		require(c.Audit.Webhook.URL, "audit.webhook.url")
		requireURL(c.Audit.Webhook.URL, "audit.webhook.url")
	}

	switch c.Tracing.Exporter {
	case "", "otlp", "stdout", "none":
	default:
		problems = append(problems, fmt.Sprintf("tracing.exporter %q must be one of otlp, stdout, none", c.Tracing.Exporter))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		problems = append(problems, "tracing.samplingRate must be between 0 and 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetJWKSCacheTTL returns the key cache lifetime used in "ttl" mode.
func (p IdentityProvider) GetJWKSCacheTTL() time.Duration {
	return parseDurationOrDefault(p.JWKSCacheTTL, DefaultJWKSCacheTTL)
}

func (t Timeouts) GetTokenExchange() time.Duration {
	return parseDurationOrDefault(t.TokenExchange, DefaultTokenExchangeTimeout)
}

func (t Timeouts) GetJWKSFetch() time.Duration {
	return parseDurationOrDefault(t.JWKSFetch, DefaultJWKSFetchTimeout)
}

func (t Timeouts) GetUpstream() time.Duration {
	return parseDurationOrDefault(t.Upstream, DefaultUpstreamTimeout)
}

// GetTimeout returns the webhook delivery timeout, 5s by default.
func (w *WebhookAudit) GetTimeout() time.Duration {
	if w == nil {
		return 5 * time.Second
	}
	return parseDurationOrDefault(w.Timeout, 5*time.Second)
}

// RevocationEnabled reports whether a revocation store is configured.
func (c *Config) RevocationEnabled() bool {
	return c.Revocation.RedisAddress != ""
}
