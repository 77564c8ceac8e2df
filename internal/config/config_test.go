package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"BBREF_BASE_URL", "ATLAS_DSN", "REDIS_URL", "REST_PORT", "WS_PORT", "LOG_LEVEL",
		"FETCH_BACKEND", "FETCH_USER_AGENT", "FETCH_MIN_INTERVAL", "FETCH_MAX_CONCURRENCY", "BACKFILL_WORKERS",
		"SCHEDULER_ENABLED", "SCHEDULER_HOUR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, BackendHTTP, cfg.Fetch.Backend)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "diamond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://mirror.local
log_level: debug
fetch:
  backend: browser
  min_interval: 500ms
  max_concurrency: 1
backfill:
  workers: 8
scheduler:
  hour: 4
  team: NYY
`), 0o600))

	t.Setenv("FETCH_MIN_INTERVAL", "2s")
	t.Setenv("REST_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.local", cfg.BaseURL)
	assert.Equal(t, BackendBrowser, cfg.Fetch.Backend)
	assert.Equal(t, 2*time.Second, cfg.Fetch.MinInterval)
	assert.Equal(t, 1, cfg.Fetch.MaxConcurrency)
	assert.Equal(t, 8, cfg.Backfill.Workers)
	assert.Equal(t, "9090", cfg.RESTPort)
	assert.Equal(t, 4, cfg.Scheduler.Hour)
	assert.Equal(t, "NYY", cfg.Scheduler.Team)
	assert.True(t, cfg.Scheduler.Enabled, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout, "unset keys keep defaults")
	assert.Equal(t, "DEBUG", cfg.Level().CapitalString())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "FETCH_BACKEND", "carrier-pigeon"},
		{"zero concurrency", "FETCH_MAX_CONCURRENCY", "0"},
		{"unparsable interval", "FETCH_MIN_INTERVAL", "soon"},
		{"bad scheme", "BBREF_BASE_URL", "ftp://example.test"},
		{"bad level", "LOG_LEVEL", "chatty"},
		{"no workers", "BACKFILL_WORKERS", "0"},
		{"hour out of range", "SCHEDULER_HOUR", "24"},
		{"unparsable toggle", "SCHEDULER_ENABLED", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
