package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(1048576), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "/slack", cfg.Slack.HTTPPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Slack.MaxSkew)
	assert.Empty(t, cfg.Slack.SigningSecret)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, RegistryPostgres, cfg.Registry.Backend)
	assert.Equal(t, 30*time.Second, cfg.Registry.CacheTTL)
	assert.Equal(t, CorrelationRedis, cfg.Correlation.Backend)
	assert.Equal(t, 7*24*time.Hour, cfg.Correlation.TTL)
	assert.Equal(t, DispatchJetStream, cfg.Dispatch.Backend)
	assert.Equal(t, "slack.blocks", cfg.Dispatch.SubjectPrefix)
	assert.True(t, cfg.Dispatch.DLQEnabled)
	assert.True(t, cfg.Activity.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Activity.FlushInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.NeedsDatabase())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
slack:
  signing_secret: file-secret
  team_id: T123
  http_prefix: /hooks/slack
registry:
  backend: file
  file: /etc/slack-connector/subscribers.yaml
  cache_ttl: 0s
correlation:
  backend: memory
  ttl: 24h
dispatch:
  backend: nats
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Slack.SigningSecret)
	assert.Equal(t, "T123", cfg.Slack.TeamID)
	assert.Equal(t, "/hooks/slack", cfg.Slack.HTTPPrefix)
	assert.Equal(t, RegistryFile, cfg.Registry.Backend)
	assert.Equal(t, time.Duration(0), cfg.Registry.CacheTTL)
	assert.Equal(t, CorrelationMemory, cfg.Correlation.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Correlation.TTL)
	assert.Equal(t, DispatchNATS, cfg.Dispatch.Backend)
	assert.False(t, cfg.NeedsDatabase())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONNECTOR_SLACK_SIGNING_SECRET", "env-secret")
	t.Setenv("CONNECTOR_SERVER_PORT", "9100")
	t.Setenv("CONNECTOR_REGISTRY_BACKEND", "memory")
	t.Setenv("CONNECTOR_CORRELATION_TTL", "1h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Slack.SigningSecret)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, RegistryMemory, cfg.Registry.Backend)
	assert.Equal(t, time.Hour, cfg.Correlation.TTL)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Slack:       SlackConfig{HTTPPrefix: "/slack"},
			Registry:    RegistryConfig{Backend: RegistryMemory},
			Correlation: CorrelationConfig{Backend: CorrelationMemory},
			Dispatch:    DispatchConfig{Backend: DispatchNATS},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown registry", mutate: func(c *Config) { c.Registry.Backend = "mongo" }, wantErr: true},
		{name: "file registry without path", mutate: func(c *Config) { c.Registry.Backend = RegistryFile }, wantErr: true},
		{name: "unknown correlation", mutate: func(c *Config) { c.Correlation.Backend = "etcd" }, wantErr: true},
		{name: "unknown dispatch", mutate: func(c *Config) { c.Dispatch.Backend = "kafka" }, wantErr: true},
		{name: "relative prefix", mutate: func(c *Config) { c.Slack.HTTPPrefix = "slack" }, wantErr: true},
		{name: "empty prefix", mutate: func(c *Config) { c.Slack.HTTPPrefix = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
