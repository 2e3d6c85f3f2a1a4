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
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/metrics"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	// Name is the identifier for this sink instance.
	Name string

	Brokers []string
	Topic   string

	TLS  *KafkaTLSConfig
	SASL *KafkaSASLConfig

	// BatchSize is the number of messages to batch before flushing.
	// Default: 100
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing a batch.
	// Default: 1 second
	BatchTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// RequiredAcks: -1 all replicas, 1 leader only. Zero selects -1.
	RequiredAcks int

	// CompressionCodec is one of "none", "gzip", "snappy", "lz4", "zstd".
	// Default: "snappy"
	CompressionCodec string
}

// KafkaTLSConfig holds TLS configuration for Kafka connections.
type KafkaTLSConfig struct {
	Enabled bool

	// CACert is the PEM-encoded CA certificate for verifying the brokers.
	CACert []byte

	// ClientCert and ClientKey are PEM-encoded and enable mTLS when both are set.
	ClientCert []byte
	ClientKey  []byte

	// WARNING: Only use for testing.
	InsecureSkipVerify bool
}

// KafkaSASLConfig holds SASL authentication configuration.
type KafkaSASLConfig struct {
	// Mechanism is "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	Mechanism string
	Username  string
	Password  string
}

// KafkaSink writes audit events to a Kafka topic.
type KafkaSink struct {
	name   string
	writer *kafka.Writer
	logger *zap.Logger
	mu     sync.Mutex
	closed bool

	messagesWritten atomic.Int64
	messagesFailed  atomic.Int64
	connected       atomic.Bool
	lastError       atomic.Value // error
	lastErrorTime   atomic.Value // time.Time
}

// NewKafkaSink creates a new KafkaSink. No connection is made until the first write.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	writer, err := newKafkaWriter(cfg, logger)
	if err != nil {
		return nil, err
	}

	sinkName := cfg.Name
	if sinkName == "" {
		sinkName = "kafka"
	}

	sink := &KafkaSink{
		name:   sinkName,
		writer: writer,
		logger: logger.Named("kafka-audit"),
	}
	sink.connected.Store(true) // optimistic until the first failed write
	metrics.AuditSinkConnected.WithLabelValues(sinkName).Set(1)

	logger.Info("Kafka audit sink created",
		zap.String("name", sinkName),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls_enabled", cfg.TLS != nil && cfg.TLS.Enabled),
		zap.Bool("sasl_enabled", cfg.SASL != nil && cfg.SASL.Mechanism != ""))

	return sink, nil
}

func newKafkaWriter(cfg KafkaSinkConfig, logger *zap.Logger) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	transport := &kafka.Transport{}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		transport.TLS = tlsConfig
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	requiredAcks := cfg.RequiredAcks
	if requiredAcks == 0 {
		requiredAcks = -1
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequiredAcks(requiredAcks),
		Compression:            compressionCodec(cfg.CompressionCodec, logger),
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}, nil
}

func compressionCodec(name string, logger *zap.Logger) kafka.Compression {
	switch name {
	case "none":
		return 0
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "snappy", "":
		return kafka.Snappy
	default:
		logger.Warn("unknown compression codec, defaulting to snappy", zap.String("codec", name))
		return kafka.Snappy
	}
}

// classifyKafkaError categorizes Kafka errors for metrics and logging.
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SASL") || strings.Contains(errStr, "authentication"):
		return "auth"
	case strings.Contains(errStr, "authorization") || strings.Contains(errStr, "ACL"):
		return "authorization"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "TLS") || strings.Contains(errStr, "certificate"):
		return "tls"
	case strings.Contains(errStr, "broker") || strings.Contains(errStr, "leader"):
		return "broker"
	case strings.Contains(errStr, "topic"):
		return "topic"
	default:
		return "other"
	}
}

// eventMessage builds the Kafka message for an event. Events are keyed by ID.
func eventMessage(event *Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal audit event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event-type", Value: []byte(event.Type)},
		{Key: "severity", Value: []byte(event.Severity)},
		{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
	}
	if event.Actor.Subject != "" {
		headers = append(headers, kafka.Header{Key: "subject", Value: []byte(event.Actor.Subject)})
	}
	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation-id", Value: []byte(event.CorrelationID)})
	}

	return kafka.Message{
		Key:     []byte(event.ID),
		Value:   value,
		Headers: headers,
	}, nil
}

// Write sends an audit event to Kafka.
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		metrics.AuditSinkErrors.WithLabelValues(s.name, "closed").Inc()
		return fmt.Errorf("kafka sink is closed")
	}

	msg, err := eventMessage(event)
	if err != nil {
		metrics.AuditSinkErrors.WithLabelValues(s.name, "serialization").Inc()
		s.messagesFailed.Add(1)
		return err
	}

	start := time.Now()
	err = s.writer.WriteMessages(ctx, msg)
	duration := time.Since(start)
	metrics.AuditSinkLatency.WithLabelValues(s.name).Observe(duration.Seconds())

	if err != nil {
		errorType := classifyKafkaError(err)
		metrics.AuditSinkErrors.WithLabelValues(s.name, errorType).Inc()
		s.messagesFailed.Add(1)
		if s.connected.Swap(false) {
			metrics.AuditSinkConnected.WithLabelValues(s.name).Set(0)
		}
		s.lastError.Store(err)
		s.lastErrorTime.Store(time.Now())

		logFields := []zap.Field{
			zap.Error(err),
			zap.String("error_type", errorType),
			zap.Duration("duration", duration),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		}
		switch errorType {
		case "network", "dns", "timeout":
			s.logger.Warn("Kafka sink temporarily unavailable, event dropped", logFields...)
		case "auth", "authorization", "tls":
			s.logger.Error("Kafka connection rejected", logFields...)
		default:
			s.logger.Error("failed to write audit event to Kafka", logFields...)
		}
		return fmt.Errorf("failed to write to Kafka (%s): %w", errorType, err)
	}

	s.messagesWritten.Add(1)
	if !s.connected.Swap(true) {
		metrics.AuditSinkConnected.WithLabelValues(s.name).Set(1)
		s.logger.Info("Kafka sink connection restored", zap.String("name", s.name))
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	metrics.AuditSinkConnected.WithLabelValues(s.name).Set(0)

	s.logger.Info("closing Kafka audit sink",
		zap.String("name", s.name),
		zap.Int64("messages_written", s.messagesWritten.Load()),
		zap.Int64("messages_failed", s.messagesFailed.Load()))

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

// Name returns the sink identifier.
func (s *KafkaSink) Name() string {
	return s.name
}

// IsConnected returns the connection state observed by the last write.
func (s *KafkaSink) IsConnected() bool {
	return s.connected.Load()
}

// LastError returns the last error encountered and when it occurred.
func (s *KafkaSink) LastError() (time.Time, error) {
	err, _ := s.lastError.Load().(error)
	t, _ := s.lastErrorTime.Load().(time.Time)
	return t, err
}

// HealthCheck fails when the sink is closed or the last write within a minute failed.
func (s *KafkaSink) HealthCheck() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("kafka sink is closed")
	}

	if !s.connected.Load() {
		lastErrTime, lastErr := s.LastError()
		if lastErr != nil && time.Since(lastErrTime) < time.Minute {
			return fmt.Errorf("kafka sink unhealthy: %w (at %s)", lastErr, lastErrTime.Format(time.RFC3339))
		}
	}
	return nil
}

func buildTLSConfig(cfg *KafkaTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Configurable for testing
	}

	if len(cfg.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.CACert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if len(cfg.ClientCert) > 0 && len(cfg.ClientKey) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func buildSASLMechanism(cfg *KafkaSASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		mechanism, err := scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-256 mechanism: %w", err)
		}
		return mechanism, nil
	case "SCRAM-SHA-512":
		mechanism, err := scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-512 mechanism: %w", err)
		}
		return mechanism, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.Mechanism)
	}
}
