package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultEncodingKey is used for the obfuscated whitelist payload when no
// key is configured. Deployments are expected to override it.
const DefaultEncodingKey = "gatekeeper"

// GitHubConfig addresses one remote repository and the file paths the
// publisher maintains inside it. Realm-level overrides fall back to the
// process-wide values field by field.
type GitHubConfig struct {
	BaseURL     string `yaml:"base_url"`
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	Branch      string `yaml:"branch"`
	Token       string `yaml:"token"`
	RawPath     string `yaml:"raw_path"`
	EncodedPath string `yaml:"encoded_path"`
	DerivedDir  string `yaml:"derived_dir"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// CloudflareConfig holds CDN purge credentials. Missing credentials mean
// purging is skipped, not an error.
type CloudflareConfig struct {
	BaseURL string `yaml:"base_url"`
	ZoneID  string `yaml:"zone_id"`
	Token   string `yaml:"token"`
	// SiteBaseURL is the public origin whose whitelist endpoints get purged.
	SiteBaseURL string `yaml:"site_base_url"`
}

// RealmConfig is a per-realm override of publish settings.
type RealmConfig struct {
	GitHub      GitHubConfig     `yaml:"github"`
	Cloudflare  CloudflareConfig `yaml:"cloudflare"`
	EncodingKey string           `yaml:"encoding_key"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Database struct {
		Enabled      bool   `yaml:"enabled"`
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Identity struct {
		BaseURL           string        `yaml:"base_url"`
		Token             string        `yaml:"token"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
		CacheTTL          time.Duration `yaml:"cache_ttl"`
	} `yaml:"identity"`

	GitHub     GitHubConfig     `yaml:"github"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`

	Encoding struct {
		Key string `yaml:"key"`
	} `yaml:"encoding"`

	Publish struct {
		DebounceDelay time.Duration `yaml:"debounce_delay"`
		Retry         struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`
	} `yaml:"publish"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	// SecretKey decrypts "enc:" prefixed secrets loaded from the file.
	SecretKey string `yaml:"secret_key"`

	Realms map[string]RealmConfig `yaml:"realms"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Database.MaxOpenConns = 10
	cfg.Database.MaxIdleConns = 5
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Identity.BaseURL = "https://discord.com/api/v10"
	cfg.Identity.RequestsPerSecond = 5
	cfg.Identity.Burst = 5
	cfg.Identity.CacheTTL = time.Hour
	cfg.GitHub.BaseURL = "https://api.github.com"
	cfg.GitHub.Branch = "main"
	cfg.GitHub.RawPath = "whitelist.txt"
	cfg.GitHub.EncodedPath = "whitelist.dat"
	cfg.GitHub.DerivedDir = "rooftops"
	cfg.Cloudflare.BaseURL = "https://api.cloudflare.com/client/v4"
	cfg.Encoding.Key = DefaultEncodingKey
	cfg.Publish.DebounceDelay = 5 * time.Second
	cfg.Publish.Retry.MaxAttempts = 3
	cfg.Publish.Retry.InitialDelay = 500 * time.Millisecond
	cfg.Publish.Retry.MaxDelay = 10 * time.Second
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0
	return cfg
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Publish.DebounceDelay <= 0 {
		return fmt.Errorf("publish.debounce_delay must be > 0")
	}
	if c.Identity.RequestsPerSecond < 0 {
		return fmt.Errorf("identity.requests_per_second must be >= 0")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set when database.enabled is true")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// GitHubFor resolves the publish repository settings for a realm:
// realm-level overrides win field by field over the process-wide values.
func (c *Config) GitHubFor(realmID string) GitHubConfig {
	resolved := c.GitHub
	realm, ok := c.Realms[realmID]
	if !ok {
		return resolved
	}

	override := realm.GitHub
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	if override.Owner != "" {
		resolved.Owner = override.Owner
	}
	if override.Repo != "" {
		resolved.Repo = override.Repo
	}
	if override.Branch != "" {
		resolved.Branch = override.Branch
	}
	if override.Token != "" {
		resolved.Token = override.Token
	}
	if override.RawPath != "" {
		resolved.RawPath = override.RawPath
	}
	if override.EncodedPath != "" {
		resolved.EncodedPath = override.EncodedPath
	}
	if override.DerivedDir != "" {
		resolved.DerivedDir = override.DerivedDir
	}
	if override.AuthorName != "" {
		resolved.AuthorName = override.AuthorName
	}
	if override.AuthorEmail != "" {
		resolved.AuthorEmail = override.AuthorEmail
	}
	return resolved
}

// CloudflareFor resolves CDN purge settings for a realm.
func (c *Config) CloudflareFor(realmID string) CloudflareConfig {
	resolved := c.Cloudflare
	realm, ok := c.Realms[realmID]
	if !ok {
		return resolved
	}

	override := realm.Cloudflare
	if override.BaseURL != "" {
		resolved.BaseURL = override.BaseURL
	}
	if override.ZoneID != "" {
		resolved.ZoneID = override.ZoneID
	}
	if override.Token != "" {
		resolved.Token = override.Token
	}
	if override.SiteBaseURL != "" {
		resolved.SiteBaseURL = override.SiteBaseURL
	}
	return resolved
}

// EncodingKeyFor resolves the obfuscation key for a realm.
func (c *Config) EncodingKeyFor(realmID string) string {
	if realm, ok := c.Realms[realmID]; ok && realm.EncodingKey != "" {
		return realm.EncodingKey
	}
	if c.Encoding.Key != "" {
		return c.Encoding.Key
	}
	return DefaultEncodingKey
}
