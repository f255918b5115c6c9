// Package config loads tracker configuration from YAML files and the environment.
package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
)

// Mode controls how verbosely the tracker reports outgoing traffic.
type Mode string

const (
	ModeProduction Mode = "production"
	// ModeDebug logs every outgoing request URL.
	ModeDebug Mode = "debug"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Environment overrides.
const (
	EnvDomain        = "TRACK_DOMAIN"
	EnvMode          = "TRACK_MODE"
	EnvStorageDriver = "TRACK_STORAGE_DRIVER"
	EnvStorageDSN    = "TRACK_STORAGE_DSN"
)

// Defaults.
const (
	DefaultEventsURL        = "https://events.attentivemobile.com/e"
	DefaultTagURLFormat     = "https://cdn.attn.tv/%s/dtag.js"
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = 1 << 20
	DefaultTable            = "track_kv"
	DefaultUserAgent        = "go-track-kit"
)

// Config is the complete tracker configuration.
type Config struct {
	// Domain is the tenant's logical domain. Required.
	Domain       string         `json:"domain" yaml:"domain"`
	Mode         Mode           `json:"mode" yaml:"mode"`
	EventsURL    string         `json:"events_url,omitempty" yaml:"events_url,omitempty"`
	TagURLFormat string         `json:"tag_url_format,omitempty" yaml:"tag_url_format,omitempty"`
	Transport    TransportConfig `json:"transport" yaml:"transport"`
	Storage      StorageConfig  `json:"storage" yaml:"storage"`
	Logging      logging.Config `json:"logging" yaml:"logging"`
}

// TransportConfig bounds outgoing HTTP traffic.
type TransportConfig struct {
	Timeout          time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxResponseBytes int64         `json:"max_response_bytes,omitempty" yaml:"max_response_bytes,omitempty"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty" yaml:"burst,omitempty"`
	// Gzip asks servers for gzip-encoded responses.
	Gzip      bool    `json:"gzip" yaml:"gzip"`
	UserAgent string  `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// StorageConfig selects the key-value store backing the visitor id.
type StorageConfig struct {
	Driver    string `json:"driver" yaml:"driver"`
	DSN       string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Table     string `json:"table,omitempty" yaml:"table,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
}

// Default returns a production configuration for domain with in-memory storage.
func Default(domain string) Config {
	return Config{
		Domain:       domain,
		Mode:         ModeProduction,
		EventsURL:    DefaultEventsURL,
		TagURLFormat: DefaultTagURLFormat,
		Transport: TransportConfig{
			Timeout:          DefaultTimeout,
			MaxResponseBytes: DefaultMaxResponseBytes,
			Gzip:             true,
			UserAgent:        DefaultUserAgent,
		},
		Storage: StorageConfig{Driver: DriverMemory, Table: DefaultTable},
		Logging: logging.DefaultConfig,
	}
}

// LoadFile reads a YAML (or JSON) file, applies environment overrides and validates the result.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.NewConfigError(fmt.Errorf("failed to open config file %s: %w", path, err))
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Config{}, errors.NewConfigError(fmt.Errorf("failed to read config file %s: %w", path, err))
	}
	return Load(data)
}

// Load parses data, which may be YAML or JSON, over the defaults, then
// applies environment overrides and validates the result.
func Load(data []byte) (Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.NewConfigError(fmt.Errorf("failed to parse config: %w", err))
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any TRACK_* variables and the logging variables that are set.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv(EnvDomain); v != "" {
		cfg.Domain = v
	}
	if v := os.Getenv(EnvMode); v != "" {
		cfg.Mode = Mode(strings.ToLower(v))
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv(EnvStorageDSN); v != "" {
		cfg.Storage.DSN = v
	}
	cfg.Logging = logging.ApplyEnv(cfg.Logging)
	return cfg
}

// Validate reports every problem with cfg as one CONFIG_FAILURE error.
func (c Config) Validate() error {
	var problems []error

	if strings.TrimSpace(c.Domain) == "" {
		problems = append(problems, stderrors.New("domain is required"))
	}
	switch c.Mode {
	case ModeProduction, ModeDebug:
	default:
		problems = append(problems, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.EventsURL == "" {
		problems = append(problems, stderrors.New("events_url is required"))
	}
	if strings.Count(c.TagURLFormat, "%s") != 1 {
		problems = append(problems, fmt.Errorf("tag_url_format must contain exactly one %%s: %q", c.TagURLFormat))
	}
	if c.Transport.Timeout < 0 {
		problems = append(problems, stderrors.New("transport timeout cannot be negative"))
	}
	if c.Transport.MaxResponseBytes < 0 {
		problems = append(problems, stderrors.New("transport max_response_bytes cannot be negative"))
	}
	if c.Transport.RateLimit < 0 || c.Transport.Burst < 0 {
		problems = append(problems, stderrors.New("transport rate_limit and burst cannot be negative"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			problems = append(problems, fmt.Errorf("storage dsn is required for driver %s", c.Storage.Driver))
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" && c.Storage.DSN == "" {
			problems = append(problems, stderrors.New("storage redis_addr or dsn is required for driver redis"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.NewConfigError(stderrors.Join(problems...))
}

// Debug reports whether outgoing request URLs should be logged.
func (c Config) Debug() bool { return c.Mode == ModeDebug }
