package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadConfigFromYAML is a helper to load config from YAML string on top of
// the defaults, the way the CLI does.
func loadConfigFromYAML(t *testing.T, yaml string) Config {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	v := viper.New()
	v.SetConfigFile(configPath)
	require.NoError(t, v.ReadInConfig())

	cfg := Defaults()
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Telegram.Token = "123:abc"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, 60*time.Second, cfg.Telegram.PollTimeout)
	require.Equal(t, "http://localhost:1337", cfg.Backend.URL)
	require.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	require.Equal(t, SessionDriverSQLite, cfg.Session.Driver)
	require.True(t, strings.HasSuffix(cfg.Session.Path, "sessions.db"))
	require.Equal(t, 15*time.Second, cfg.Engine.HandlerTimeout)
	require.True(t, cfg.Engine.SerializePerUser)
	require.Zero(t, cfg.Engine.DedupWindow)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, cfg.Tracing.Enabled)
}

func TestValidate_DefaultsNeedOnlyToken(t *testing.T) {
	err := Defaults().Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "telegram.token")

	require.NoError(t, validConfig().Validate())
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.URL = "ftp://cms"
	cfg.Session.Driver = "redis"
	cfg.Engine.DedupWindow = -time.Second
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"backend.url", "session.driver", "engine.dedup_window", "log.level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend BackendConfig
		wantErr string
	}{
		{"valid", BackendConfig{URL: "https://cms.example.com", APIPrefix: "/api"}, ""},
		{"missing url", BackendConfig{}, "backend.url is required"},
		{"no host", BackendConfig{URL: "http://"}, "backend.url must be"},
		{"negative timeout", BackendConfig{URL: "http://cms", Timeout: -1}, "backend.timeout"},
		{"bad prefix", BackendConfig{URL: "http://cms", APIPrefix: "api"}, "backend.api_prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBackend(tt.backend)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSession(t *testing.T) {
	require.NoError(t, ValidateSession(SessionConfig{Driver: SessionDriverMemory}))
	require.NoError(t, ValidateSession(SessionConfig{Driver: SessionDriverSQLite, Path: "/tmp/s.db"}))
	require.Error(t, ValidateSession(SessionConfig{Driver: SessionDriverSQLite}))
	require.Error(t, ValidateSession(SessionConfig{Driver: "redis", Path: "x"}))
}

func TestValidateTracing(t *testing.T) {
	require.NoError(t, ValidateTracing(TracingConfig{}))
	require.Error(t, ValidateTracing(TracingConfig{SampleRate: 1.5}))
	require.Error(t, ValidateTracing(TracingConfig{Exporter: "zipkin"}))
	require.Error(t, ValidateTracing(TracingConfig{Enabled: true, Exporter: "file"}))
	require.Error(t, ValidateTracing(TracingConfig{Enabled: true, Exporter: "otlp"}))
	require.NoError(t, ValidateTracing(TracingConfig{Enabled: true, Exporter: "stdout"}))
}

func TestLoad_OverridesDefaults(t *testing.T) {
	cfg := loadConfigFromYAML(t, `
telegram:
  token: "42:xyz"
backend:
  url: https://cms.example.com
  timeout: 3s
engine:
  dedup_window: 750ms
  currency: RUB
session:
  driver: memory
`)

	require.Equal(t, "42:xyz", cfg.Telegram.Token)
	require.Equal(t, 60*time.Second, cfg.Telegram.PollTimeout, "untouched keys keep defaults")
	require.Equal(t, "https://cms.example.com", cfg.Backend.URL)
	require.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	require.Equal(t, 750*time.Millisecond, cfg.Engine.DedupWindow)
	require.Equal(t, "RUB", cfg.Engine.Currency)
	require.Equal(t, SessionDriverMemory, cfg.Session.Driver)
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	cfg := loadConfigFromYAML(t, DefaultConfigTemplate())
	want := Defaults()

	require.Equal(t, want.Telegram, cfg.Telegram)
	require.Equal(t, want.Backend, cfg.Backend)
	require.Equal(t, want.Session, cfg.Session)
	require.Equal(t, want.Catalog, cfg.Catalog)
	require.Equal(t, want.Engine, cfg.Engine)
	require.Equal(t, want.Log, cfg.Log)
	require.Equal(t, want.Tracing, cfg.Tracing)
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
