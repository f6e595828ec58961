package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Remote drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverNone     = "none"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Terminal     TerminalConfig     `yaml:"terminal"`
	Server       ServerConfig       `yaml:"server"`
	Local        LocalConfig        `yaml:"local"`
	Remote       RemoteConfig       `yaml:"remote"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	Log          LogConfig          `yaml:"log"`
	Backup       BackupConfig       `yaml:"backup"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// TerminalConfig identifies this till.
type TerminalConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LocalConfig contains durable local store settings.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig selects and bounds the remote store.
type RemoteConfig struct {
	Driver  string   `yaml:"driver"`
	DSN     string   `yaml:"-"` // env-only, never in YAML
	Timeout Duration `yaml:"timeout"`
}

// ConnectivityConfig contains platform network-status settings.
type ConnectivityConfig struct {
	InitialOnline bool `yaml:"initial_online"`
	// StatusFile, when set, is watched for online/offline markers.
	StatusFile string `yaml:"status_file"`
}

// SyncConfig contains sync triggering settings. The sync engine itself
// never schedules retries.
type SyncConfig struct {
	RetryInterval Duration `yaml:"retry_interval"`
	OnReconnect   bool     `yaml:"on_reconnect"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// BackupConfig contains S3-compatible backup settings for the local store.
// An empty bucket disables backups.
type BackupConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only
	SecretKey string   `yaml:"-"` // env-only
	UseSSL    *bool    `yaml:"use_ssl"`
	Interval  Duration `yaml:"interval"`
}

// Enabled reports whether backups are configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("TILL_CONFIG_PATH", "config/till.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used by the --config flag and in tests.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Terminal: TerminalConfig{
			ID: "till-1",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Local: LocalConfig{
			Path: "data/till.db",
		},
		Remote: RemoteConfig{
			Driver:  DriverNone,
			Timeout: Duration(10 * time.Second),
		},
		Connectivity: ConnectivityConfig{
			InitialOnline: true,
		},
		Sync: SyncConfig{
			RetryInterval: Duration(5 * time.Minute),
			OnReconnect:   true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Backup: BackupConfig{
			Interval: Duration(1 * time.Hour),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty, parseable env vars override config values.
func applyEnvOverrides(cfg *Config) {
	envString("TILL_TERMINAL_ID", &cfg.Terminal.ID)

	// Server
	envInt("TILL_PORT", &cfg.Server.Port)
	envDuration("TILL_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("TILL_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("TILL_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Local store
	envString("TILL_LOCAL_PATH", &cfg.Local.Path)

	// Remote store
	envString("TILL_REMOTE_DRIVER", &cfg.Remote.Driver)
	envString("TILL_REMOTE_DSN", &cfg.Remote.DSN)
	envDuration("TILL_REMOTE_TIMEOUT", &cfg.Remote.Timeout)

	// Connectivity
	envBool("TILL_INITIAL_ONLINE", &cfg.Connectivity.InitialOnline)
	envString("TILL_STATUS_FILE", &cfg.Connectivity.StatusFile)

	// Sync
	envDuration("TILL_SYNC_RETRY_INTERVAL", &cfg.Sync.RetryInterval)
	envBool("TILL_SYNC_ON_RECONNECT", &cfg.Sync.OnReconnect)

	// Log
	envString("TILL_LOG_LEVEL", &cfg.Log.Level)
	envString("TILL_LOG_FORMAT", &cfg.Log.Format)
	envString("TILL_LOG_FILE", &cfg.Log.File)

	// Backup
	envString("TILL_BACKUP_BUCKET", &cfg.Backup.Bucket)
	envString("TILL_S3_ENDPOINT", &cfg.Backup.Endpoint)
	envString("TILL_S3_REGION", &cfg.Backup.Region)
	envString("TILL_S3_ACCESS_KEY", &cfg.Backup.AccessKey)
	envString("TILL_S3_SECRET_KEY", &cfg.Backup.SecretKey)
	if v := os.Getenv("TILL_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Backup.UseSSL = &useSSL
	}
	envDuration("TILL_BACKUP_INTERVAL", &cfg.Backup.Interval)

	// Metrics
	envBool("TILL_METRICS_ENABLED", &cfg.Metrics.Enabled)
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Local.Path) == "" {
		errs = append(errs, errors.New("local.path is required"))
	}

	switch c.Remote.Driver {
	case DriverPostgres, DriverMySQL:
		if c.Remote.DSN == "" {
			errs = append(errs, fmt.Errorf("TILL_REMOTE_DSN is required when remote.driver is %s", c.Remote.Driver))
		}
	case DriverNone:
	default:
		errs = append(errs, fmt.Errorf("remote.driver %q must be one of: postgres, mysql, none", c.Remote.Driver))
	}
	if c.Remote.Timeout < 0 {
		errs = append(errs, errors.New("remote.timeout must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of: debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if c.Backup.Enabled() {
		if c.Backup.Endpoint == "" {
			errs = append(errs, errors.New("backup.endpoint is required when backup.bucket is set"))
		}
		if c.Backup.AccessKey == "" || c.Backup.SecretKey == "" {
			errs = append(errs, errors.New("TILL_S3_ACCESS_KEY and TILL_S3_SECRET_KEY are required when backup.bucket is set"))
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}

	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
