package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "cosmic:\n  bucket_slug: demo-bucket\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "remote", cfg.Cosmic.Backend)
	assert.Equal(t, "demo-bucket", cfg.Cosmic.BucketSlug)
	assert.Equal(t, "https://api.cosmicjs.com/v3", cfg.Cosmic.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "demo", cfg.Assistant.Provider)
	assert.Equal(t, 1500*time.Millisecond, cfg.Assistant.ReplyDelay)
	assert.Equal(t, DefaultDemoReply, cfg.Assistant.ReplyText)
	assert.Equal(t, []string{"en"}, cfg.I18n.Languages)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("COSMIC_BUCKET_SLUG", "env-bucket")
	t.Setenv("COSMIC_READ_KEY", "read-123")
	t.Setenv("COSMIC_WRITE_KEY", "write-456")
	t.Setenv("REDIS_HOST", "cache.internal")

	path := writeConfig(t, "cosmic:\n  bucket_slug: file-bucket\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-bucket", cfg.Cosmic.BucketSlug)
	assert.Equal(t, "read-123", cfg.Cosmic.ReadKey)
	assert.Equal(t, "write-456", cfg.Cosmic.WriteKey)
	assert.Equal(t, "cache.internal:6379", cfg.Cache.Redis.Addr)
}

func TestLoadConfigMissingCredentialsIsNotAnError(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Cosmic.ReadKey)
	assert.Empty(t, cfg.Cosmic.WriteKey)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"bad port":         "server:\n  port: 70000\n",
		"bad backend":      "cosmic:\n  backend: sqlite\n",
		"bad cache":        "cache:\n  type: disk\n",
		"bad provider":     "assistant:\n  provider: oracle\n",
		"endpoint missing": "assistant:\n  provider: endpoint\n",
		"bad proxy":        "rate_limit:\n  trusted_proxies: [\"10.0.0.0/33\"]\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "rate_limit:\n  trusted_proxies:\n    - 10.0.0.0/8\n    - 192.0.2.1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.RateLimit.TrustedProxies)

	cfg, err = LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.RateLimit.TrustedProxies)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
