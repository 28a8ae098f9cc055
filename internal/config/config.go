// Package config loads and validates scanner configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/discovery"
	collyfetcher "github.com/JakeFAU/storefront-scanner/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-scanner/internal/policy/ratelimit"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
	"github.com/JakeFAU/storefront-scanner/internal/scheduler"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// EnvPrefix prefixes every environment override, e.g. STORESCAN_SERVER_PORT.
const EnvPrefix = "STORESCAN"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig          `mapstructure:"logging"`
	HTTP      HTTPConfig             `mapstructure:"http"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"`
	Scan      ScanConfig             `mapstructure:"scan"`
	Limits    discovery.Limits       `mapstructure:"limits"`
	Classify  ClassifyConfig         `mapstructure:"classify"`
	Probes    discovery.Dictionaries `mapstructure:"probes"`
	Storage   StorageConfig          `mapstructure:"storage"`
	Tracking  TrackingConfig         `mapstructure:"tracking"`
	PubSub    PubSubConfig           `mapstructure:"pubsub"`
	Server    ServerConfig           `mapstructure:"server"`
	Auth      AuthConfig             `mapstructure:"auth"`
	CORS      CORSConfig             `mapstructure:"cors"`
	Batch     BatchConfig            `mapstructure:"batch"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the outbound fetcher.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// SchedulerConfig bounds outbound concurrency and pacing.
type SchedulerConfig struct {
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	BaseDelay           time.Duration `mapstructure:"base_delay"`
	MaxDelay            time.Duration `mapstructure:"max_delay"`
	MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries"`
}

// ScanConfig shapes a single scan.
type ScanConfig struct {
	Scheme           string        `mapstructure:"scheme"`
	Prefixes         []string      `mapstructure:"prefixes"`
	Phases           scan.Phases   `mapstructure:"phases"`
	Resume           bool          `mapstructure:"resume"`
	ProductCacheSize int           `mapstructure:"product_cache_size"`
	ReportDir        string        `mapstructure:"report_dir"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
}

// ClassifyConfig holds classification thresholds in major currency units.
type ClassifyConfig struct {
	LowestCount     int     `mapstructure:"lowest_count"`
	LowestMin       float64 `mapstructure:"lowest_min"`
	FreeBelow       float64 `mapstructure:"free_below"`
	CheckpointEvery int     `mapstructure:"checkpoint_every"`
}

// StorageConfig selects where checkpoints and reports go.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// TrackingConfig selects the historical counters store.
type TrackingConfig struct {
	Backend       string `mapstructure:"backend"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	MaxConcurrentScans int           `mapstructure:"max_concurrent_scans"`
	QueueDepth         int           `mapstructure:"queue_depth"`
	MaxURLLength       int           `mapstructure:"max_url_length"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BatchConfig controls multi-domain runs.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// Option adjusts the Viper instance before unmarshalling.
type Option func(*viper.Viper) error

// BindFlag lets a command-line flag override key. A nil flag is ignored.
func BindFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
		return nil
	}
}

// Load builds a Config from defaults, an optional file, the environment and
// any bound flags, in increasing precedence.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := mergo.Merge(&cfg.Probes, discovery.DefaultDictionaries()); err != nil {
		return Config{}, fmt.Errorf("merge probe dictionaries: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)

	v.SetDefault("http.timeout", 8*time.Second)
	v.SetDefault("http.user_agent", "storescan/1.0")
	v.SetDefault("http.max_body_bytes", 0)

	pacing := ratelimit.DefaultConfig()
	v.SetDefault("scheduler.max_concurrent", 35)
	v.SetDefault("scheduler.base_delay", pacing.BaseDelay)
	v.SetDefault("scheduler.max_delay", pacing.MaxDelay)
	v.SetDefault("scheduler.max_rate_limit_retries", 10)

	v.SetDefault("scan.scheme", "https")
	v.SetDefault("scan.prefixes", scan.DefaultPrefixes())
	v.SetDefault("scan.phases.sitemap", true)
	v.SetDefault("scan.phases.catalog", true)
	v.SetDefault("scan.phases.collections", true)
	v.SetDefault("scan.phases.search", true)
	v.SetDefault("scan.phases.cart", true)
	v.SetDefault("scan.resume", false)
	v.SetDefault("scan.product_cache_size", 10000)
	v.SetDefault("scan.report_dir", "reports")
	v.SetDefault("scan.persist_timeout", 30*time.Second)

	limits := discovery.DefaultLimits()
	v.SetDefault("limits.page_size", limits.PageSize)
	v.SetDefault("limits.max_catalog_pages", limits.MaxCatalogPages)
	v.SetDefault("limits.max_sorted_pages", limits.MaxSortedPages)
	v.SetDefault("limits.max_collection_pages", limits.MaxCollectionPages)
	v.SetDefault("limits.empty_catalog_pages", limits.EmptyCatalogPages)
	v.SetDefault("limits.empty_collection_pages", limits.EmptyCollectionPages)
	v.SetDefault("limits.probe_batch", limits.ProbeBatch)
	v.SetDefault("limits.collection_batch", limits.CollectionBatch)
	v.SetDefault("limits.search_batch", limits.SearchBatch)
	v.SetDefault("limits.search_pause", limits.SearchPause)
	v.SetDefault("limits.product_batch", limits.ProductBatch)
	v.SetDefault("limits.sitemap_batch", limits.SitemapBatch)
	v.SetDefault("limits.variant_batch", limits.VariantBatch)

	v.SetDefault("classify.lowest_count", 10)
	v.SetDefault("classify.lowest_min", 0.01)
	v.SetDefault("classify.free_below", 0.01)
	v.SetDefault("classify.checkpoint_every", 1000)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data")

	v.SetDefault("tracking.backend", "csv")
	v.SetDefault("tracking.dir", "data")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent_scans", 1)
	v.SetDefault("server.queue_depth", 16)
	v.SetDefault("server.max_url_length", 500)
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("batch.concurrency", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler.max_concurrent must be > 0")
	}
	if c.Scheduler.BaseDelay < 0 {
		return fmt.Errorf("scheduler.base_delay must be >= 0")
	}
	if c.Scheduler.MaxDelay < c.Scheduler.BaseDelay {
		return fmt.Errorf("scheduler.max_delay must be >= scheduler.base_delay")
	}
	if c.Scan.Scheme != "http" && c.Scan.Scheme != "https" {
		return fmt.Errorf("scan.scheme must be http or https")
	}
	if len(c.Scan.Prefixes) == 0 {
		return fmt.Errorf("scan.prefixes must not be empty")
	}
	if c.Limits.PageSize <= 0 {
		return fmt.Errorf("limits.page_size must be > 0")
	}
	if c.Classify.LowestCount <= 0 {
		return fmt.Errorf("classify.lowest_count must be > 0")
	}
	if c.Classify.CheckpointEvery <= 0 {
		return fmt.Errorf("classify.checkpoint_every must be > 0")
	}
	if c.Classify.LowestMin < 0 || c.Classify.FreeBelow < 0 {
		return fmt.Errorf("classify thresholds must be >= 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be local, memory or gcs")
	}
	switch c.Tracking.Backend {
	case "csv":
		if c.Tracking.Dir == "" {
			return fmt.Errorf("tracking.dir must be set for the csv backend")
		}
	case "redis":
		if c.Tracking.RedisAddr == "" {
			return fmt.Errorf("tracking.redis_addr must be set for the redis backend")
		}
	case "none":
	default:
		return fmt.Errorf("tracking.backend must be csv, redis or none")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxConcurrentScans <= 0 {
		return fmt.Errorf("server.max_concurrent_scans must be > 0")
	}
	if c.Server.MaxURLLength <= 0 {
		return fmt.Errorf("server.max_url_length must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0")
	}
	return nil
}

// FetcherConfig converts the http section into fetcher settings.
func (c Config) FetcherConfig() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:    c.HTTP.UserAgent,
		Timeout:      c.HTTP.Timeout,
		MaxBodyBytes: c.HTTP.MaxBodyBytes,
	}
}

// ScanConfig converts the scan-related sections into orchestrator settings.
// Thresholds are converted to minor units here, once.
func (c Config) ScanConfig() scan.Config {
	pacing := ratelimit.DefaultConfig()
	pacing.BaseDelay = c.Scheduler.BaseDelay
	pacing.MaxDelay = c.Scheduler.MaxDelay
	return scan.Config{
		Scheme:   c.Scan.Scheme,
		Prefixes: append([]string(nil), c.Scan.Prefixes...),
		Phases:   c.Scan.Phases,
		Resume:   c.Scan.Resume,
		Scheduler: scheduler.Config{
			MaxConcurrent:       c.Scheduler.MaxConcurrent,
			MaxRateLimitRetries: c.Scheduler.MaxRateLimitRetries,
			Pacing:              pacing,
		},
		Classify: classifier.Config{
			LowestCount:     c.Classify.LowestCount,
			LowestMinMinor:  storefront.MajorToMinor(c.Classify.LowestMin),
			FreeBelowMinor:  storefront.MajorToMinor(c.Classify.FreeBelow),
			CheckpointEvery: c.Classify.CheckpointEvery,
		},
		Discovery:      discovery.Config{Dict: c.Probes, Limits: c.Limits},
		ReportDir:      c.Scan.ReportDir,
		NotifyTopic:    c.PubSub.TopicName,
		PersistTimeout: c.Scan.PersistTimeout,
	}
}
