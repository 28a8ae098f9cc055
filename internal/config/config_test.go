package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-scanner/internal/discovery"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 35, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 15*time.Millisecond, cfg.Scheduler.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.MaxDelay)
	assert.Equal(t, scan.DefaultPrefixes(), cfg.Scan.Prefixes)
	assert.Equal(t, scan.AllPhases(), cfg.Scan.Phases)
	assert.Equal(t, discovery.DefaultLimits(), cfg.Limits)
	assert.Equal(t, discovery.DefaultDictionaries(), cfg.Probes)
	assert.Equal(t, 500, cfg.Server.MaxURLLength)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "csv", cfg.Tracking.Backend)

	sc := cfg.ScanConfig()
	assert.Equal(t, int64(1), sc.Classify.LowestMinMinor)
	assert.Equal(t, int64(1), sc.Classify.FreeBelowMinor)
	assert.Equal(t, 10, sc.Classify.LowestCount)
	assert.Equal(t, 1000, sc.Classify.CheckpointEvery)
	assert.Equal(t, 35, sc.Scheduler.MaxConcurrent)
	assert.Equal(t, 10, sc.Scheduler.MaxRateLimitRetries)
	assert.Equal(t, 15*time.Millisecond, sc.Scheduler.Pacing.BaseDelay)
	assert.Equal(t, 500*time.Millisecond, sc.Discovery.Limits.SearchPause)
	assert.Empty(t, sc.NotifyTopic)

	fc := cfg.FetcherConfig()
	assert.Equal(t, "storescan/1.0", fc.UserAgent)
	assert.Equal(t, 8*time.Second, fc.Timeout)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
http:
  timeout: 3s
scheduler:
  max_concurrent: 10
  base_delay: 50ms
scan:
  prefixes: ["", "www."]
  phases:
    search: false
  resume: true
limits:
  max_catalog_pages: 7
  search_pause: 0s
classify:
  lowest_count: 5
  lowest_min: 0.5
  free_below: 0.25
probes:
  search_queries: ["free", "gift"]
storage:
  backend: gcs
  gcs_bucket: scans
pubsub:
  project_id: proj
  topic_name: scan-events
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, []string{"", "www."}, cfg.Scan.Prefixes)
	assert.False(t, cfg.Scan.Phases.Search)
	assert.True(t, cfg.Scan.Phases.Catalog)
	assert.True(t, cfg.Scan.Resume)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Auth.Enabled)

	// Dictionaries left out of the file keep their defaults.
	defaults := discovery.DefaultDictionaries()
	assert.Equal(t, []string{"free", "gift"}, cfg.Probes.SearchQueries)
	assert.Equal(t, defaults.HiddenCollections, cfg.Probes.HiddenCollections)
	assert.Equal(t, defaults.GWPMarkers, cfg.Probes.GWPMarkers)

	sc := cfg.ScanConfig()
	assert.Equal(t, 10, sc.Scheduler.MaxConcurrent)
	assert.Equal(t, 50*time.Millisecond, sc.Scheduler.Pacing.BaseDelay)
	assert.Equal(t, 7, sc.Discovery.Limits.MaxCatalogPages)
	assert.Zero(t, sc.Discovery.Limits.SearchPause)
	assert.Equal(t, 5, sc.Classify.LowestCount)
	assert.Equal(t, int64(50), sc.Classify.LowestMinMinor)
	assert.Equal(t, int64(25), sc.Classify.FreeBelowMinor)
	assert.Equal(t, "scan-events", sc.NotifyTopic)
	assert.Equal(t, []string{"free", "gift"}, sc.Discovery.Dict.SearchQueries)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("STORESCAN_SERVER_PORT", "9999")
	t.Setenv("STORESCAN_SCHEDULER_MAX_CONCURRENT", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Scheduler.MaxConcurrent)
}

func TestLoadBindsFlags(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("resume", false, "")
	flags.Int("concurrency", 3, "")
	require.NoError(t, flags.Parse([]string{"--resume", "--concurrency=5"}))

	cfg, err := Load("",
		BindFlag("scan.resume", flags.Lookup("resume")),
		BindFlag("batch.concurrency", flags.Lookup("concurrency")),
		BindFlag("scan.scheme", flags.Lookup("missing")),
	)
	require.NoError(t, err)
	assert.True(t, cfg.Scan.Resume)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.Equal(t, "https", cfg.Scan.Scheme)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout must be > 0"},
		{"concurrency", func(c *Config) { c.Scheduler.MaxConcurrent = 0 }, "scheduler.max_concurrent must be > 0"},
		{"delay order", func(c *Config) { c.Scheduler.MaxDelay = time.Millisecond }, "scheduler.max_delay must be >= scheduler.base_delay"},
		{"scheme", func(c *Config) { c.Scan.Scheme = "ftp" }, "scan.scheme must be http or https"},
		{"prefixes", func(c *Config) { c.Scan.Prefixes = nil }, "scan.prefixes must not be empty"},
		{"lowest count", func(c *Config) { c.Classify.LowestCount = 0 }, "classify.lowest_count must be > 0"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs_bucket must be set for the gcs backend"},
		{"storage backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend must be local, memory or gcs"},
		{"redis addr", func(c *Config) { c.Tracking.Backend = "redis" }, "tracking.redis_addr must be set for the redis backend"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "t" }, "pubsub.project_id must be set when pubsub.topic_name is"},
		{"api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key must be set when auth is enabled"},
		{"scan pool", func(c *Config) { c.Server.MaxConcurrentScans = 0 }, "server.max_concurrent_scans must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Scan.Prefixes = append([]string(nil), base.Scan.Prefixes...)
			tt.mutate(&cfg)
			require.EqualError(t, cfg.Validate(), tt.want)
		})
	}
	require.NoError(t, base.Validate())
}
