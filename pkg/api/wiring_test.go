package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telekom/authy/pkg/config"
)

func TestKafkaTLSConfigReadsFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	tlsCfg, err := kafkaTLSConfig(&config.KafkaAudit{
		TLS:                true,
		CAFile:             write("ca.pem", "ca"),
		ClientCertFile:     write("client.pem", "cert"),
		ClientKeyFile:      write("client-key.pem", "key"),
		InsecureSkipVerify: true,
	})
	require.NoError(t, err)
	assert.True(t, tlsCfg.Enabled)
	assert.Equal(t, []byte("ca"), tlsCfg.CACert)
	assert.Equal(t, []byte("cert"), tlsCfg.ClientCert)
	assert.Equal(t, []byte("key"), tlsCfg.ClientKey)
	assert.True(t, tlsCfg.InsecureSkipVerify)
}

func TestKafkaTLSConfigWithoutFiles(t *testing.T) {
	tlsCfg, err := kafkaTLSConfig(&config.KafkaAudit{TLS: true})
	require.NoError(t, err)
	assert.Nil(t, tlsCfg.CACert)
	assert.Nil(t, tlsCfg.ClientCert)
	assert.False(t, tlsCfg.InsecureSkipVerify)
}

func TestKafkaTLSConfigMissingFile(t *testing.T) {
	_, err := kafkaTLSConfig(&config.KafkaAudit{
		TLS:            true,
		ClientCertFile: filepath.Join(t.TempDir(), "missing.pem"),
		ClientKeyFile:  filepath.Join(t.TempDir(), "missing-key.pem"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit.kafka.clientCertFile")
}

func TestNewAuditManagerRejectsBadClientCertificate(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "client.pem")
	key := filepath.Join(dir, "client-key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("not a cert"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("not a key"), 0o600))

	_, err := newAuditManager(config.Audit{
		Enabled: true,
		Kafka: &config.KafkaAudit{
			Brokers:        []string{"127.0.0.1:9092"},
			Topic:          "authy-audit",
			TLS:            true,
			ClientCertFile: cert,
			ClientKeyFile:  key,
		},
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set up kafka audit sink")
}
