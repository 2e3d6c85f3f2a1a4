/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/metrics"
)

// Manager queues audit events and delivers them to a sink from a small worker pool.
// Emit never blocks the request path. A nil *Manager is valid and discards every event.
type Manager struct {
	sink       Sink
	asyncQueue chan *Event
	logger     *zap.Logger
	wg         sync.WaitGroup
	closed     atomic.Bool
	mu         sync.RWMutex // guards sends against close(asyncQueue)

	queuedEvents    atomic.Int64
	droppedEvents   atomic.Int64
	processedEvents atomic.Int64

	config ManagerConfig
}

// ManagerConfig configures the audit Manager.
type ManagerConfig struct {
	// QueueSize is the size of the async event queue.
	// Default: 10000
	QueueSize int

	// WorkerCount is the number of async delivery workers.
	// Default: 2
	WorkerCount int

	// WriteTimeout bounds a single sink write.
	// Default: 5s
	WriteTimeout time.Duration
}

// DefaultManagerConfig returns the default queue configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		QueueSize:    10000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewManager creates a Manager and starts its workers.
func NewManager(sink Sink, cfg ManagerConfig, logger *zap.Logger) *Manager {
	def := DefaultManagerConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	m := &Manager{
		sink:       sink,
		asyncQueue: make(chan *Event, cfg.QueueSize),
		logger:     logger.Named("audit-manager"),
		config:     cfg,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		m.wg.Add(1)
		go m.processQueue(i)
	}

	logger.Info("audit manager started",
		zap.String("sink", sink.Name()),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Int("workers", cfg.WorkerCount))

	return m
}

func fillDefaults(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityForEventType(event.Type)
	}
}

// Emit queues an event. When the queue is full or closed the event is dropped.
func (m *Manager) Emit(_ context.Context, event *Event) {
	if m == nil || event == nil {
		return
	}
	fillDefaults(event)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed.Load() {
		m.drop(event, "closed")
		return
	}

	select {
	case m.asyncQueue <- event:
		m.queuedEvents.Add(1)
	default:
		m.drop(event, "queue full")
	}
}

func (m *Manager) drop(event *Event, reason string) {
	m.droppedEvents.Add(1)
	metrics.AuditEventsDropped.Inc()
	m.logger.Debug("dropping audit event",
		zap.String("reason", reason),
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID))
}

// EmitSync writes an event straight to the sink, bypassing the queue.
func (m *Manager) EmitSync(ctx context.Context, event *Event) error {
	if m == nil || event == nil {
		return nil
	}
	fillDefaults(event)
	return m.sink.Write(ctx, event)
}

func (m *Manager) processQueue(workerID int) {
	defer m.wg.Done()

	for event := range m.asyncQueue {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.WriteTimeout)
		if err := m.sink.Write(ctx, event); err != nil {
			m.logger.Warn("failed to write audit event",
				zap.Int("worker", workerID),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("error", err.Error()))
		} else {
			m.processedEvents.Add(1)
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the sink.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed.Swap(true) {
		m.mu.Unlock()
		return nil
	}
	close(m.asyncQueue)
	m.mu.Unlock()

	m.wg.Wait()

	m.logger.Info("audit manager stopped",
		zap.Int64("processed", m.processedEvents.Load()),
		zap.Int64("dropped", m.droppedEvents.Load()))

	return m.sink.Close()
}

// Stats returns current audit manager statistics.
func (m *Manager) Stats() ManagerStats {
	if m == nil {
		return ManagerStats{}
	}
	return ManagerStats{
		QueuedEvents:    m.queuedEvents.Load(),
		ProcessedEvents: m.processedEvents.Load(),
		DroppedEvents:   m.droppedEvents.Load(),
		QueueLength:     len(m.asyncQueue),
		QueueCapacity:   cap(m.asyncQueue),
	}
}

// ManagerStats contains audit manager statistics.
type ManagerStats struct {
	QueuedEvents    int64
	ProcessedEvents int64
	DroppedEvents   int64
	QueueLength     int
	QueueCapacity   int
}

// --- Helpers for gateway events ---

// RequestEvent builds an event describing r. clientIP is the address the gateway resolved for r.
func RequestEvent(eventType EventType, r *http.Request, clientIP string) *Event {
	return &Event{
		Type: eventType,
		Actor: Actor{
			SourceIP:  clientIP,
			UserAgent: r.UserAgent(),
		},
		Target: Target{
			Method: r.Method,
			Path:   r.URL.Path,
		},
		CorrelationID: r.Header.Get("X-Request-ID"),
	}
}

// LoginStarted records a redirect to the identity provider.
func (m *Manager) LoginStarted(ctx context.Context, r *http.Request, clientIP string) {
	m.Emit(ctx, RequestEvent(EventLoginStarted, r, clientIP))
}

// AuthSucceeded records a completed code exchange.
func (m *Manager) AuthSucceeded(ctx context.Context, r *http.Request, clientIP, subject string) {
	e := RequestEvent(EventAuthSuccess, r, clientIP)
	e.Actor.Subject = subject
	m.Emit(ctx, e)
}

// AuthFailed records a rejected callback.
func (m *Manager) AuthFailed(ctx context.Context, r *http.Request, clientIP, reason string) {
	eventType := EventAuthFailure
	if strings.HasPrefix(reason, "Invalid ID token") {
		eventType = EventIDTokenInvalid
	}
	e := RequestEvent(eventType, r, clientIP)
	e.Reason = reason
	m.Emit(ctx, e)
}

// SessionRejected records a request the session gate turned away. Rejections caused by an
// unavailable dependency are recorded as session errors instead of denials.
func (m *Manager) SessionRejected(ctx context.Context, r *http.Request, clientIP, reason string, dependencyFailure bool) {
	eventType := EventSessionDenied
	switch {
	case dependencyFailure:
		eventType = EventSessionError
	case reason == "Token revoked":
		eventType = EventTokenRevoked
	}
	e := RequestEvent(eventType, r, clientIP)
	e.Reason = reason
	m.Emit(ctx, e)
}

// LoggedOut records a logout. revoked reports whether the token was written to the revocation store.
func (m *Manager) LoggedOut(ctx context.Context, r *http.Request, clientIP, subject string, revoked bool) {
	e := RequestEvent(EventLogout, r, clientIP)
	e.Actor.Subject = subject
	e.Details = map[string]interface{}{"revoked": revoked}
	m.Emit(ctx, e)
}

// RateLimited records a request rejected by the rate limiter.
func (m *Manager) RateLimited(ctx context.Context, r *http.Request, clientIP string) {
	m.Emit(ctx, RequestEvent(EventRateLimited, r, clientIP))
}

// UpstreamFailed records a request the backend could not serve.
func (m *Manager) UpstreamFailed(ctx context.Context, r *http.Request, clientIP, subject, reason string) {
	e := RequestEvent(EventUpstreamFail, r, clientIP)
	e.Actor.Subject = subject
	e.Reason = reason
	m.Emit(ctx, e)
}
