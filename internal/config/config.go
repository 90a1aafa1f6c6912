// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Remote() RemoteConfig
	Network() NetworkConfig
	Extraction() ExtractionConfig
	Snapshot() SnapshotConfig
	Graph() GraphConfig

	SetRemoteMaxPollAttempts(int)
	SetRemotePollInterval(time.Duration)
	SetExtractionConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	RemoteCfg     RemoteConfig     `mapstructure:"remote" yaml:"remote"`
	NetworkCfg    NetworkConfig    `mapstructure:"network" yaml:"network"`
	ExtractionCfg ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	SnapshotCfg   SnapshotConfig   `mapstructure:"snapshot" yaml:"snapshot"`
	GraphCfg      GraphConfig      `mapstructure:"graph" yaml:"graph"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Remote() RemoteConfig         { return c.RemoteCfg }
func (c *Config) Network() NetworkConfig       { return c.NetworkCfg }
func (c *Config) Extraction() ExtractionConfig { return c.ExtractionCfg }
func (c *Config) Snapshot() SnapshotConfig     { return c.SnapshotCfg }
func (c *Config) Graph() GraphConfig           { return c.GraphCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRemoteMaxPollAttempts(n int)        { c.RemoteCfg.MaxPollAttempts = n }
func (c *Config) SetRemotePollInterval(d time.Duration) { c.RemoteCfg.PollInterval = d }
func (c *Config) SetExtractionConcurrency(n int)        { c.ExtractionCfg.AnalysisConcurrency = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	MaxConns       int32  `mapstructure:"max_conns" yaml:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start" yaml:"migrate_on_start"`
}

// RemoteConfig configures the metadata API client and its polling loop.
type RemoteConfig struct {
	APIVersion      string        `mapstructure:"api_version" yaml:"api_version"`
	MetadataTypes   []string      `mapstructure:"metadata_types" yaml:"metadata_types"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts" yaml:"max_poll_attempts"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes the HTTP transport shared by remote calls.
type NetworkConfig struct {
	DialTimeout         time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout" yaml:"tls_handshake_timeout"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	IgnoreTLSErrors     bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ProxyURL            string        `mapstructure:"proxy_url" yaml:"proxy_url"`
}

// ExtractionConfig tunes the archive analysis pass.
type ExtractionConfig struct {
	AnalysisConcurrency int `mapstructure:"analysis_concurrency" yaml:"analysis_concurrency"`
}

// SnapshotConfig configures the optional object storage sink for retrieved
// archives.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"-"`
	SecretKey string `mapstructure:"secret_key" yaml:"-"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// GraphConfig configures dependency network reads.
type GraphConfig struct {
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// DefaultMetadataTypes is the package manifest requested from the remote
// service when no explicit list is configured. Every type is retrieved with
// the wildcard member.
var DefaultMetadataTypes = []string{
	"ApexClass",
	"ApexTrigger",
	"ApexPage",
	"ApexComponent",
	"CustomObject",
	"Flow",
	"Workflow",
	"Layout",
	"FlexiPage",
	"CustomTab",
	"CustomApplication",
	"QuickAction",
	"PermissionSet",
	"PermissionSetGroup",
	"Profile",
	"Role",
	"Group",
	"Queue",
	"CustomPermission",
	"CustomMetadata",
	"CustomLabels",
	"CustomSite",
	"NamedCredential",
	"StaticResource",
	"GlobalValueSet",
	"StandardValueSet",
	"SharingRules",
	"PathAssistant",
	"PlatformEventChannel",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "metagraph")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate_on_start", true)

	// -- Remote --
	v.SetDefault("remote.api_version", "62.0")
	v.SetDefault("remote.metadata_types", DefaultMetadataTypes)
	v.SetDefault("remote.poll_interval", "60s")
	v.SetDefault("remote.max_poll_attempts", 60)
	v.SetDefault("remote.submit_timeout", "300s")
	v.SetDefault("remote.poll_timeout", "180s")
	v.SetDefault("remote.user_agent", "metagraph")

	// -- Network --
	v.SetDefault("network.dial_timeout", "30s")
	v.SetDefault("network.tls_handshake_timeout", "15s")
	v.SetDefault("network.idle_conn_timeout", "90s")
	v.SetDefault("network.max_idle_conns_per_host", 4)
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Extraction --
	v.SetDefault("extraction.analysis_concurrency", 8)

	// -- Snapshot --
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.region", "us-east-1")
	v.SetDefault("snapshot.bucket", "metagraph-archives")
	v.SetDefault("snapshot.use_ssl", true)

	// -- Graph --
	v.SetDefault("graph.cache_size", 1024)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "METAGRAPH_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("snapshot.access_key", "METAGRAPH_SNAPSHOT_ACCESS_KEY")
	_ = v.BindEnv("snapshot.secret_key", "METAGRAPH_SNAPSHOT_SECRET_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the rest of the program
// cannot work with. database.url is optional because local analysis can run
// against the in-memory store.
func (c *Config) Validate() error {
	if c.DatabaseCfg.URL != "" {
		if _, err := url.Parse(c.DatabaseCfg.URL); err != nil {
			return fmt.Errorf("database.url is not a valid URL: %w", err)
		}
	}
	if c.DatabaseCfg.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must not be negative")
	}
	if err := c.RemoteCfg.Validate(); err != nil {
		return fmt.Errorf("remote configuration invalid: %w", err)
	}
	if c.ExtractionCfg.AnalysisConcurrency <= 0 {
		return fmt.Errorf("extraction.analysis_concurrency must be a positive integer")
	}
	if err := c.SnapshotCfg.Validate(); err != nil {
		return fmt.Errorf("snapshot configuration invalid: %w", err)
	}
	if c.GraphCfg.CacheSize <= 0 {
		return fmt.Errorf("graph.cache_size must be a positive integer")
	}
	return nil
}

// Validate checks the polling and request settings.
func (r *RemoteConfig) Validate() error {
	if strings.TrimSpace(r.APIVersion) == "" {
		return fmt.Errorf("remote.api_version is required")
	}
	if len(r.MetadataTypes) == 0 {
		return fmt.Errorf("remote.metadata_types must list at least one type")
	}
	if r.MaxPollAttempts <= 0 {
		return fmt.Errorf("remote.max_poll_attempts must be a positive integer")
	}
	if r.PollInterval < 0 {
		return fmt.Errorf("remote.poll_interval must not be negative")
	}
	if r.SubmitTimeout <= 0 || r.PollTimeout <= 0 {
		return fmt.Errorf("remote.submit_timeout and remote.poll_timeout must be positive")
	}
	return nil
}

// Validate checks that an enabled snapshot sink is fully configured.
func (s *SnapshotConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("snapshot.endpoint is required when snapshots are enabled")
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return fmt.Errorf("snapshot.bucket is required when snapshots are enabled")
	}
	if strings.TrimSpace(s.AccessKey) == "" || strings.TrimSpace(s.SecretKey) == "" {
		return fmt.Errorf("snapshot.access_key and snapshot.secret_key are required when snapshots are enabled")
	}
	return nil
}
