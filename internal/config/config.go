// Package config loads axon configuration from a YAML file merged with
// environment variable overrides.
//
// Precedence, lowest to highest:
//  1. Hardcoded defaults
//  2. User config ($XDG_CONFIG_HOME/axon/config.yaml)
//  3. Environment variables (AXON_*, TEI_URL, QDRANT_URL, QDRANT_COLLECTION)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults for the daemon's webhook ingress and queue behavior.
const (
	DefaultWebhookPort  = 53000
	DefaultWebhookPath  = "/webhooks/crawl"
	DefaultBindAddress  = "127.0.0.1"
	DefaultStaleMinutes = 10
	DefaultCleanupHours = 24
	DefaultMaxRetries   = 3
	DefaultCollection   = "axon"
)

// Config is the complete axon configuration.
type Config struct {
	Tei      TeiConfig      `yaml:"tei"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TeiConfig locates the text-embeddings-inference service.
type TeiConfig struct {
	// URL is the TEI base URL, e.g. http://localhost:8080. Required for
	// embedding; jobs fail with a config error when missing.
	URL string `yaml:"url"`
}

// QdrantConfig locates the vector database.
type QdrantConfig struct {
	// URL is the Qdrant base URL, e.g. http://localhost:6333. Required for
	// embedding; jobs fail with a config error when missing.
	URL string `yaml:"url"`
	// Collection is the target collection name.
	Collection string `yaml:"collection"`
}

// CrawlerConfig locates the remote scraping API.
type CrawlerConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// WebhookConfig configures the daemon's webhook ingress and the webhook the
// scraping API calls back to.
type WebhookConfig struct {
	// URL is the externally reachable webhook URL registered with crawls.
	// Empty means crawls are registered without a webhook and rely on the
	// sweeper's stale-job polling.
	URL string `yaml:"url"`
	// Secret authenticates webhook requests. Empty means the daemon
	// generates one at startup and persists it under the config dir.
	Secret string `yaml:"secret"`
	Port   int    `yaml:"port"`
	Path   string `yaml:"path"`
}

// EmbedderConfig configures the durable queue and daemon behavior.
type EmbedderConfig struct {
	// QueueDir overrides the default queue directory.
	QueueDir string `yaml:"queue_dir"`
	// StaleMinutes is the age after which a pending job is swept.
	StaleMinutes int `yaml:"stale_minutes"`
	// BindAddress is the ingress bind address. Only "0.0.0.0" changes the
	// loopback default; any other value is ignored.
	BindAddress string `yaml:"bind_address"`
	// CleanupHours is the retention horizon for terminal jobs.
	CleanupHours int `yaml:"cleanup_hours"`
	// MaxRetries is the retry budget for new jobs.
	MaxRetries int `yaml:"max_retries"`
}

// LoggingConfig configures the daemon log file.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Qdrant: QdrantConfig{
			Collection: DefaultCollection,
		},
		Webhook: WebhookConfig{
			Port: DefaultWebhookPort,
			Path: DefaultWebhookPath,
		},
		Embedder: EmbedderConfig{
			QueueDir:     DefaultQueueDir(),
			StaleMinutes: DefaultStaleMinutes,
			BindAddress:  DefaultBindAddress,
			CleanupHours: DefaultCleanupHours,
			MaxRetries:   DefaultMaxRetries,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigDir returns the axon config directory, following the XDG base
// directory convention.
func UserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "axon")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "axon")
	}
	return filepath.Join(home, ".config", "axon")
}

// UserConfigPath returns the path of the user configuration file.
func UserConfigPath() string {
	return filepath.Join(UserConfigDir(), "config.yaml")
}

// DefaultQueueDir returns the default location of the durable job queue.
func DefaultQueueDir() string {
	return filepath.Join(UserConfigDir(), "embed-queue")
}

// SecretPath returns where a generated webhook secret is persisted.
func SecretPath() string {
	return filepath.Join(UserConfigDir(), "webhook-secret")
}

// Load builds the effective configuration: defaults, then the user config
// file if present, then environment overrides.
func Load() (*Config, error) {
	cfg := NewConfig()

	path := UserConfigPath()
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges non-zero values from a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Tei.URL != "" {
		c.Tei.URL = other.Tei.URL
	}

	if other.Qdrant.URL != "" {
		c.Qdrant.URL = other.Qdrant.URL
	}
	if other.Qdrant.Collection != "" {
		c.Qdrant.Collection = other.Qdrant.Collection
	}

	if other.Crawler.APIURL != "" {
		c.Crawler.APIURL = other.Crawler.APIURL
	}
	if other.Crawler.APIKey != "" {
		c.Crawler.APIKey = other.Crawler.APIKey
	}

	if other.Webhook.URL != "" {
		c.Webhook.URL = other.Webhook.URL
	}
	if other.Webhook.Secret != "" {
		c.Webhook.Secret = other.Webhook.Secret
	}
	if other.Webhook.Port != 0 {
		c.Webhook.Port = other.Webhook.Port
	}
	if other.Webhook.Path != "" {
		c.Webhook.Path = other.Webhook.Path
	}

	if other.Embedder.QueueDir != "" {
		c.Embedder.QueueDir = other.Embedder.QueueDir
	}
	if other.Embedder.StaleMinutes != 0 {
		c.Embedder.StaleMinutes = other.Embedder.StaleMinutes
	}
	if other.Embedder.BindAddress != "" {
		c.Embedder.BindAddress = other.Embedder.BindAddress
	}
	if other.Embedder.CleanupHours != 0 {
		c.Embedder.CleanupHours = other.Embedder.CleanupHours
	}
	if other.Embedder.MaxRetries != 0 {
		c.Embedder.MaxRetries = other.Embedder.MaxRetries
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies environment variable overrides, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TEI_URL"); v != "" {
		c.Tei.URL = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		c.Qdrant.Collection = v
	}

	if v := os.Getenv("AXON_CRAWL_API_URL"); v != "" {
		c.Crawler.APIURL = v
	}
	if v := os.Getenv("AXON_API_KEY"); v != "" {
		c.Crawler.APIKey = v
	}

	if v := os.Getenv("AXON_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("AXON_WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("AXON_WEBHOOK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Webhook.Port = port
		}
	}
	if v := os.Getenv("AXON_WEBHOOK_PATH"); v != "" {
		c.Webhook.Path = v
	}

	if v := os.Getenv("AXON_EMBEDDER_QUEUE_DIR"); v != "" {
		c.Embedder.QueueDir = v
	}
	if v := os.Getenv("AXON_EMBEDDER_STALE_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			c.Embedder.StaleMinutes = minutes
		}
	}
	// Only the explicit all-interfaces opt-in changes the loopback default.
	if v := os.Getenv("AXON_EMBEDDER_BIND_ADDRESS"); v == "0.0.0.0" {
		c.Embedder.BindAddress = v
	}

	if v := os.Getenv("AXON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks structural constraints. Missing service URLs are not
// errors here; they surface as per-job config errors at processing time.
func (c *Config) Validate() error {
	if c.Webhook.Port <= 0 || c.Webhook.Port >= 65536 {
		return fmt.Errorf("webhook port %d out of range", c.Webhook.Port)
	}
	if c.Webhook.Path == "" || c.Webhook.Path[0] != '/' {
		return fmt.Errorf("webhook path %q must start with /", c.Webhook.Path)
	}
	if c.Embedder.StaleMinutes <= 0 {
		return fmt.Errorf("stale minutes must be positive, got %d", c.Embedder.StaleMinutes)
	}
	if c.Embedder.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.Embedder.MaxRetries)
	}
	if c.Embedder.BindAddress != DefaultBindAddress && c.Embedder.BindAddress != "0.0.0.0" {
		return fmt.Errorf("bind address must be %s or 0.0.0.0, got %q",
			DefaultBindAddress, c.Embedder.BindAddress)
	}
	return nil
}
