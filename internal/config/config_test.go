package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mailscan/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "8.8.8.8:53", cfg.Resolver.Server)
	require.Equal(t, "udp", cfg.Resolver.Network)
	require.Equal(t, 5*time.Second, cfg.Resolver.Timeout)
	require.Equal(t, 15*time.Second, cfg.HTTPClient.Timeout)
	require.Equal(t, "https://autoconfig.thunderbird.net/v1.1", cfg.Discovery.ISPDBURL)
	require.Equal(t, 10, cfg.Discovery.MaxRedirects)
	require.True(t, cfg.Discovery.MXLookup)
	require.Equal(t, "/metrics", cfg.HTTP.MetricsPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RESOLVER_SERVER", "1.1.1.1:53")
	t.Setenv("DISCOVERY_MAX_REDIRECTS", "3")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "1.1.1.1:53", cfg.Resolver.Server)
	require.Equal(t, 3, cfg.Discovery.MaxRedirects)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
environment: production
resolver:
  server: 9.9.9.9:53
  timeout: 2s
discovery:
  mxLookup: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "9.9.9.9:53", cfg.Resolver.Server)
	require.Equal(t, 2*time.Second, cfg.Resolver.Timeout)
	require.False(t, cfg.Discovery.MXLookup)
	// untouched values keep their defaults
	require.Equal(t, "udp", cfg.Resolver.Network)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
