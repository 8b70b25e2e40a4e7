// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, quota, store, image API)
// - Defaults that reproduce the reference deployment: 1000/week globally, 10/week per client
// - Validation catches structural mistakes at load time
// - Missing counter store credentials are reported on first use, not at load time
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Counter store type constants
const (
	StoreTypeREST     = "rest"
	StoreTypeRedis    = "redis"
	StoreTypeMemory   = "memory"
	StoreTypePostgres = "postgres"
	StoreTypeSQLite   = "sqlite"
)

// DefaultPeriod is one calendar week, the length of a quota bucket.
const DefaultPeriod = 7 * 24 * time.Hour

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Quota: weekly request ceilings and counter key layout
// - Store: the remote counter store backing all quota counters
// - ImageAPI: the upstream image provider
// - Logging: structured logging and output configuration
// - Metrics / Observability: Prometheus metrics and OpenTelemetry tracing
//
// A Config is built once per process and passed by value into constructors;
// nothing reads it again after startup.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Quota         QuotaConfig         `yaml:"quota" json:"quota"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	ImageAPI      ImageAPIConfig      `yaml:"image_api" json:"image_api"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// QuotaConfig holds the static quota policy. ClientLimit is expected to be
// no larger than GlobalLimit; this is not enforced.
type QuotaConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	GlobalLimit int64         `yaml:"global_limit" json:"global_limit"`
	ClientLimit int64         `yaml:"client_limit" json:"client_limit"`
	Period      time.Duration `yaml:"period" json:"period"`
	KeyPrefix   string        `yaml:"key_prefix" json:"key_prefix"`
}

type StoreConfig struct {
	Type            string          `yaml:"type" json:"type"`
	REST            RESTStoreConfig `yaml:"rest" json:"rest"`
	Redis           RedisConfig     `yaml:"redis" json:"redis"`
	Database        DatabaseConfig  `yaml:"database" json:"database"`
	CleanupInterval time.Duration   `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// RESTStoreConfig addresses an Upstash-compatible REST endpoint.
type RESTStoreConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Token   string        `yaml:"token" json:"-"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"-"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

type ImageAPIConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	APIKey            string        `yaml:"api_key" json:"-"`
	Model             string        `yaml:"model" json:"model"`
	Size              string        `yaml:"size" json:"size"`
	OutputFormat      string        `yaml:"output_format" json:"output_format"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	MaxEditBytes      int64         `yaml:"max_edit_bytes" json:"max_edit_bytes"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration matching the reference deployment.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Write timeout 120s: image generation routinely takes tens of seconds
// - REST counter store: the hosted store the service was designed around
// - 1000 global / 10 per client per ISO week
// - CORS open to any origin for POST/OPTIONS, as browsers call the API directly
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Quota: QuotaConfig{
			Enabled:     true,
			GlobalLimit: 1000,
			ClientLimit: 10,
			Period:      DefaultPeriod,
			KeyPrefix:   "rate",
		},
		Store: StoreConfig{
			Type: StoreTypeREST,
			REST: RESTStoreConfig{
				Timeout: 5 * time.Second,
			},
			Database: DatabaseConfig{
				MaxOpenConns: 10,
			},
			CleanupInterval: 10 * time.Minute,
		},
		ImageAPI: ImageAPIConfig{
			BaseURL:           "https://api.openai.com",
			Model:             "gpt-image-1.5",
			Size:              "1536x1024",
			OutputFormat:      "jpeg",
			Timeout:           110 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			MaxEditBytes:      25 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "imagegate",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("invalid quota config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}

	if err := c.ImageAPI.Validate(); err != nil {
		return fmt.Errorf("invalid image API config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

// Warnings reports settings that load fine but are probably mistakes.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Quota.Enabled && c.Quota.ClientLimit > c.Quota.GlobalLimit {
		warnings = append(warnings, fmt.Sprintf("client limit %d exceeds global limit %d; the client limit can never be reached",
			c.Quota.ClientLimit, c.Quota.GlobalLimit))
	}
	if c.Quota.Enabled && c.Store.Type == StoreTypeREST && (c.Store.REST.URL == "" || c.Store.REST.Token == "") {
		warnings = append(warnings, "counter store URL or token is not set; quota checks will fail")
	}
	if c.ImageAPI.APIKey == "" {
		warnings = append(warnings, "image API key is not set; upstream calls will be rejected")
	}
	return warnings
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	return nil
}

func (qc *QuotaConfig) Validate() error {
	if !qc.Enabled {
		return nil
	}

	if qc.GlobalLimit <= 0 {
		return errors.New("global limit must be positive")
	}

	if qc.ClientLimit <= 0 {
		return errors.New("client limit must be positive")
	}

	if qc.Period < time.Second {
		return errors.New("period must be at least one second")
	}

	if qc.KeyPrefix == "" {
		return errors.New("key prefix cannot be empty")
	}

	return nil
}

func (stc *StoreConfig) Validate() error {
	validTypes := []string{StoreTypeREST, StoreTypeRedis, StoreTypeMemory, StoreTypePostgres, StoreTypeSQLite}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid store type: %s", stc.Type)
	}

	switch stc.Type {
	case StoreTypeREST:
		// URL and token are checked on first use.
		if stc.REST.Timeout < 0 {
			return errors.New("REST store timeout cannot be negative")
		}
	case StoreTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("Redis address is required when store type is redis")
		}
	case StoreTypePostgres, StoreTypeSQLite:
		if stc.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s store", stc.Type)
		}
	}

	if stc.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}

	return nil
}

func (ic *ImageAPIConfig) Validate() error {
	if ic.BaseURL == "" {
		return errors.New("base URL cannot be empty")
	}

	if ic.Model == "" {
		return errors.New("model cannot be empty")
	}

	if ic.RequestsPerSecond < 0 {
		return errors.New("requests per second cannot be negative")
	}

	if ic.RequestsPerSecond > 0 && ic.Burst <= 0 {
		return errors.New("burst must be positive when requests per second is set")
	}

	if ic.MaxEditBytes <= 0 {
		return errors.New("max edit bytes must be positive")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	if !slices.Contains([]string{"stdout", "otlp"}, oc.Tracing.Exporter) {
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required when exporter is otlp")
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
