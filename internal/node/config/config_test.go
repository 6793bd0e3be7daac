package config

import (
	"os"
	"path/filepath"
	"testing"

	"MovieDHT/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().ValidateConfig())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
dht:
  protocol: mesh
  id_bits: 16
  hash: murmur3
  leaf_size: 8
  migrate_on_leave: true
  bootstrap:
    nodes: 5
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateConfig())

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, ProtocolMesh, cfg.DHT.Protocol)
	assert.Equal(t, 16, cfg.DHT.IDBits)
	assert.Equal(t, "murmur3", cfg.DHT.Hash)
	assert.Equal(t, 8, cfg.DHT.LeafSize)
	assert.True(t, cfg.DHT.MigrateOnLeave)
	assert.Equal(t, 5, cfg.DHT.Bootstrap.Nodes)
	// untouched fields keep their defaults
	assert.Equal(t, 3, cfg.DHT.ReplicationFactor)
	assert.Equal(t, "node", cfg.DHT.Bootstrap.Prefix)
	assert.Equal(t, "console", cfg.Logger.Encoding)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "dht:\n  fingers: 3\n"))
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateConfigCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DHT.Protocol = "kademlia"
	cfg.DHT.IDBits = 80
	cfg.DHT.LeafSize = 0
	cfg.Logger.Mode = "syslog"
	cfg.Telemetry.Tracing.Enabled = true
	cfg.Telemetry.Tracing.Exporter = "otlp"

	err := cfg.ValidateConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Len(t, multierr.Errors(err), 5)
}
