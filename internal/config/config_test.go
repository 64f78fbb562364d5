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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Crawler.Concurrency)
	assert.Equal(t, 3, cfg.Crawler.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Crawler.RetryBaseDelay)
	assert.Equal(t, "https://books.toscrape.com/catalogue/page-1.html", cfg.Crawler.StartURL)
	assert.True(t, cfg.Crawler.EmptyPageEndsCatalog)
	assert.Equal(t, "local", cfg.Snapshot.Backend)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
crawler:
  start_url: "https://catalog.example.com/page-1.html"
  concurrency: 4
  max_attempts: 5
  retry_base_delay: 500ms
snapshot:
  backend: memory
scheduler:
  enabled: true
  cron_spec: "@hourly"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://catalog.example.com/page-1.html", cfg.Crawler.StartURL)
	assert.Equal(t, 4, cfg.Crawler.Concurrency)
	assert.Equal(t, 5, cfg.Crawler.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Crawler.RetryBaseDelay)
	assert.Equal(t, "memory", cfg.Snapshot.Backend)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "@hourly", cfg.Scheduler.CronSpec)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("zero concurrency", func(t *testing.T) {
		cfg := base()
		cfg.Crawler.Concurrency = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("auth without key", func(t *testing.T) {
		cfg := base()
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown snapshot backend", func(t *testing.T) {
		cfg := base()
		cfg.Snapshot.Backend = "tape"
		assert.Error(t, cfg.Validate())
	})

	t.Run("gcs backend without bucket", func(t *testing.T) {
		cfg := base()
		cfg.Snapshot.Backend = "gcs"
		cfg.Snapshot.GCSBucket = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("scheduler without spec", func(t *testing.T) {
		cfg := base()
		cfg.Scheduler.Enabled = true
		cfg.Scheduler.CronSpec = ""
		assert.Error(t, cfg.Validate())
	})
}
