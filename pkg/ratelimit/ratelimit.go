package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/telekom/authy/pkg/metrics"
)

// RejectedMessage is returned to clients that exceed their limit.
const RejectedMessage = "Rate limit exceeded, please try again later"

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of requests allowed per second
	Rate float64
	// Burst is the maximum number of requests allowed in a burst
	Burst int
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration
}

// SessionConfig holds separate limits for requests with and without a validated session.
type SessionConfig struct {
	// Anonymous applies per client IP to requests without a session (login, callback, rejected requests)
	Anonymous Config
	// Authenticated applies per session subject
	Authenticated Config
	// SubjectKey is the gin context key the session gate stores the subject under
	SubjectKey string
}

// DefaultConfig returns the default per-IP limit: 20 req/s, burst of 50.
func DefaultConfig() Config {
	return Config{
		Rate:            20,
		Burst:           50,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

// DefaultSessionConfig returns default limits for the session gate.
// Anonymous: 10 req/s per IP, burst of 20. Authenticated: 50 req/s per subject, burst of 100.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Anonymous: Config{
			Rate:            10,
			Burst:           20,
			CleanupInterval: time.Minute,
			MaxAge:          5 * time.Minute,
		},
		Authenticated: Config{
			Rate:            50,
			Burst:           100,
			CleanupInterval: time.Minute,
			MaxAge:          10 * time.Minute,
		},
		SubjectKey: "subject",
	}
}

// entry holds rate limiter and last access time for a key
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter implements keyed token-bucket rate limiting with automatic cleanup.
type Limiter struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	config   Config
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new keyed rate limiter with the given configuration
func New(cfg Config) *Limiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}

	rl := &Limiter{
		entries: make(map[string]*entry),
		config:  cfg,
		done:    make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request for key should be allowed
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.entries[key]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst),
		}
		rl.entries[key] = e
	}
	e.lastAccess = time.Now()

	return e.limiter.Allow()
}

// KeyFunc extracts the limiter key from a request.
type KeyFunc func(c *gin.Context) string

// RejectFunc is called for every rejected request before the response is written.
type RejectFunc func(c *gin.Context)

// Middleware returns a Gin middleware applying the limit per key.
// route labels the rejection metric. A nil keyFunc uses c.ClientIP().
func (rl *Limiter) Middleware(route string, keyFunc KeyFunc, onReject RejectFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	return func(c *gin.Context) {
		if !rl.Allow(keyFunc(c)) {
			reject(c, route, onReject)
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, route string, onReject RejectFunc) {
	metrics.RateLimitRejections.WithLabelValues(route).Inc()
	if onReject != nil {
		onReject(c)
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": RejectedMessage,
		"code":  "RATE_LIMITED",
	})
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *Limiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

// cleanupStaleEntries removes entries that haven't been accessed recently
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.config.MaxAge {
			delete(rl.entries, key)
		}
	}
}

// Len returns the current number of tracked keys (for testing/metrics)
func (rl *Limiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

// Config returns a copy of the current configuration (for testing)
func (rl *Limiter) Config() Config {
	return rl.config
}

// SessionLimiter limits validated sessions per subject and everything else per client IP.
type SessionLimiter struct {
	ipLimiter      *Limiter
	subjectLimiter *Limiter
	subjectKey     string
	clientIP       KeyFunc
}

// NewSessionLimiter creates a limiter that differentiates sessions from anonymous traffic.
// clientIP resolves the per-IP key; nil uses c.ClientIP().
func NewSessionLimiter(cfg SessionConfig, clientIP KeyFunc) *SessionLimiter {
	if cfg.SubjectKey == "" {
		cfg.SubjectKey = "subject"
	}
	if clientIP == nil {
		clientIP = func(c *gin.Context) string { return c.ClientIP() }
	}

	return &SessionLimiter{
		ipLimiter:      New(cfg.Anonymous),
		subjectLimiter: New(cfg.Authenticated),
		subjectKey:     cfg.SubjectKey,
		clientIP:       clientIP,
	}
}

// Allow reports whether the request may proceed and whether it was counted against a subject.
func (sl *SessionLimiter) Allow(c *gin.Context) (allowed, authenticated bool) {
	if subject := c.GetString(sl.subjectKey); subject != "" {
		return sl.subjectLimiter.Allow(subject), true
	}
	return sl.ipLimiter.Allow(sl.clientIP(c)), false
}

// Middleware must run after the session gate stored the subject.
func (sl *SessionLimiter) Middleware(route string, onReject RejectFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowed, _ := sl.Allow(c); !allowed {
			reject(c, route, onReject)
			return
		}
		c.Next()
	}
}

// Stop stops both cleanup goroutines
func (sl *SessionLimiter) Stop() {
	sl.ipLimiter.Stop()
	sl.subjectLimiter.Stop()
}

// IPLen returns the current number of tracked IPs
func (sl *SessionLimiter) IPLen() int {
	return sl.ipLimiter.Len()
}

// SubjectLen returns the current number of tracked subjects
func (sl *SessionLimiter) SubjectLen() int {
	return sl.subjectLimiter.Len()
}
