package api

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/audit"
	"github.com/telekom/authy/pkg/config"
	"github.com/telekom/authy/pkg/revocation"
)

func newRevocationStore(cfg config.Revocation, timeout time.Duration) (*revocation.RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	store, err := revocation.NewRedisStore(ctx, revocation.RedisOptions{
		Address:   cfg.RedisAddress,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up revocation store: %w", err)
	}
	return store, nil
}

// newAuditManager always logs events and additionally delivers them to the configured
// webhook and Kafka topic.
func newAuditManager(cfg config.Audit, log *zap.Logger) (*audit.Manager, error) {
	sinks := []audit.Sink{audit.NewLogSink(log)}

	if cfg.Webhook != nil {
		sinks = append(sinks, audit.NewWebhookSink(audit.WebhookSinkConfig{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Timeout: cfg.Webhook.GetTimeout(),
		}, log))
	}

	if cfg.Kafka != nil {
		kafkaCfg := audit.KafkaSinkConfig{
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.Topic,
			CompressionCodec: cfg.Kafka.CompressionCodec,
		}
		if cfg.Kafka.TLS {
			tlsCfg, err := kafkaTLSConfig(cfg.Kafka)
			if err != nil {
				return nil, err
			}
			kafkaCfg.TLS = tlsCfg
		}
		if cfg.Kafka.SASLMechanism != "" {
			kafkaCfg.SASL = &audit.KafkaSASLConfig{
				Mechanism: cfg.Kafka.SASLMechanism,
				Username:  cfg.Kafka.SASLUsername,
				Password:  cfg.Kafka.SASLPassword,
			}
		}
		sink, err := audit.NewKafkaSink(kafkaCfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to set up kafka audit sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	var sink audit.Sink = sinks[0]
	if len(sinks) > 1 {
		sink = audit.NewMultiSink(sinks, log)
	}

	return audit.NewManager(sink, audit.ManagerConfig{
		QueueSize:   cfg.QueueSize,
		WorkerCount: cfg.Workers,
	}, log), nil
}

// kafkaTLSConfig reads the PEM files referenced by the kafka audit settings.
func kafkaTLSConfig(cfg *config.KafkaAudit) (*audit.KafkaTLSConfig, error) {
	tlsCfg := &audit.KafkaTLSConfig{Enabled: true, InsecureSkipVerify: cfg.InsecureSkipVerify}
	files := []struct {
		path, name string
		dst        *[]byte
	}{
		{cfg.CAFile, "caFile", &tlsCfg.CACert},
		{cfg.ClientCertFile, "clientCertFile", &tlsCfg.ClientCert},
		{cfg.ClientKeyFile, "clientKeyFile", &tlsCfg.ClientKey},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit.kafka.%s: %w", f.name, err)
		}
		*f.dst = data
	}
	return tlsCfg, nil
}
