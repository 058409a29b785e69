package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Bridge.ResultTimeout)
	assert.False(t, cfg.Bridge.ReportUnavailable)
	assert.Equal(t, "127.0.0.1:9999", cfg.RPC.Listen)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: bolt
  path: /tmp/items.db
  quota: 1024
bridge:
  report_unavailable: true
`), 0o600))
	t.Setenv("KVBRIDGE_STORAGE_QUOTA", "2048")
	t.Setenv("KVBRIDGE_BRIDGE_RESULT_TIMEOUT", "2s")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/items.db", cfg.Storage.Path)
	assert.Equal(t, int64(2048), cfg.Storage.Quota)
	assert.True(t, cfg.Bridge.ReportUnavailable)
	assert.Equal(t, 2*time.Second, cfg.Bridge.ResultTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":  func(c *Config) { c.Storage.Backend = "etcd" },
		"quota":    func(c *Config) { c.Storage.Quota = -1 },
		"timeout":  func(c *Config) { c.Bridge.ResultTimeout = 0 },
		"cert":     func(c *Config) { c.RPC.CertFile = "server.crt" },
		"clientca": func(c *Config) { c.RPC.ClientCA = "ca.crt" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestNewLogger(t *testing.T) {
	log := NewLogger(Log{Level: "debug", Format: "json"})
	assert.True(t, log.Core().Enabled(-1))
	log = NewLogger(Log{Level: "nonsense"})
	assert.False(t, log.Core().Enabled(-1))
}
