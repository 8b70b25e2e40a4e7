package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"imagegate/internal/models"
)

// Load loads configuration from file, an optional .env file and environment variables
func Load(configPath string) (*models.Config, error) {
	return LoadWithEnvFile(configPath, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. An empty envPath or a
// missing file is skipped. Variables already present in the environment win
// over the dotenv file.
func LoadWithEnvFile(configPath, envPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadDotEnv(envPath); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return err
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		*target = strings.ToLower(v) == "true"
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

func envString(target *string, keys ...string) {
	if v := firstEnv(keys...); v != "" {
		*target = v
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("IMAGEGATE_PORT", &config.Server.Port)
	envString(&config.Server.Host, "IMAGEGATE_HOST")
	envDuration("IMAGEGATE_READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("IMAGEGATE_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IMAGEGATE_IDLE_TIMEOUT", &config.Server.IdleTimeout)

	// Quota configuration
	envBool("IMAGEGATE_QUOTA_ENABLED", &config.Quota.Enabled)
	envInt64("IMAGEGATE_GLOBAL_LIMIT", &config.Quota.GlobalLimit)
	envInt64("IMAGEGATE_CLIENT_LIMIT", &config.Quota.ClientLimit)
	if secs := os.Getenv("IMAGEGATE_PERIOD_SECONDS"); secs != "" {
		if n, err := strconv.ParseInt(secs, 10, 64); err == nil {
			config.Quota.Period = time.Duration(n) * time.Second
		}
	}
	envString(&config.Quota.KeyPrefix, "IMAGEGATE_KEY_PREFIX")

	// Counter store configuration. The Upstash names come first so a
	// deployment configured for the hosted store needs no extra variables.
	envString(&config.Store.Type, "IMAGEGATE_STORE_TYPE")
	envString(&config.Store.REST.URL, "UPSTASH_REDIS_REST_URL", "IMAGEGATE_STORE_URL")
	envString(&config.Store.REST.Token, "UPSTASH_REDIS_REST_TOKEN", "IMAGEGATE_STORE_TOKEN")
	envDuration("IMAGEGATE_STORE_TIMEOUT", &config.Store.REST.Timeout)
	envDuration("IMAGEGATE_STORE_CLEANUP_INTERVAL", &config.Store.CleanupInterval)

	// Redis configuration
	envString(&config.Store.Redis.Addr, "IMAGEGATE_REDIS_ADDR")
	envString(&config.Store.Redis.Password, "IMAGEGATE_REDIS_PASSWORD")
	envInt("IMAGEGATE_REDIS_DB", &config.Store.Redis.DB)
	envInt("IMAGEGATE_REDIS_POOL_SIZE", &config.Store.Redis.PoolSize)

	// Database configuration
	envString(&config.Store.Database.DSN, "IMAGEGATE_DATABASE_DSN")
	envInt("IMAGEGATE_DATABASE_MAX_OPEN_CONNS", &config.Store.Database.MaxOpenConns)

	// Image provider configuration
	envString(&config.ImageAPI.APIKey, "OPENAI_API_KEY", "IMAGEGATE_IMAGE_API_KEY")
	envString(&config.ImageAPI.BaseURL, "IMAGEGATE_IMAGE_API_BASE_URL")
	envString(&config.ImageAPI.Model, "IMAGEGATE_IMAGE_MODEL")
	envString(&config.ImageAPI.Size, "IMAGEGATE_IMAGE_SIZE")
	envString(&config.ImageAPI.OutputFormat, "IMAGEGATE_IMAGE_OUTPUT_FORMAT")
	envDuration("IMAGEGATE_IMAGE_TIMEOUT", &config.ImageAPI.Timeout)
	envFloat("IMAGEGATE_IMAGE_RPS", &config.ImageAPI.RequestsPerSecond)
	envInt("IMAGEGATE_IMAGE_BURST", &config.ImageAPI.Burst)
	envInt64("IMAGEGATE_IMAGE_MAX_EDIT_BYTES", &config.ImageAPI.MaxEditBytes)

	// Logging configuration
	envString(&config.Logging.Level, "IMAGEGATE_LOG_LEVEL")
	envString(&config.Logging.Format, "IMAGEGATE_LOG_FORMAT")
	envString(&config.Logging.Output, "IMAGEGATE_LOG_OUTPUT")
	envString(&config.Logging.FilePath, "IMAGEGATE_LOG_FILE_PATH")

	// Metrics configuration
	envBool("IMAGEGATE_METRICS_ENABLED", &config.Metrics.Enabled)
	envString(&config.Metrics.Path, "IMAGEGATE_METRICS_PATH")
	envInt("IMAGEGATE_METRICS_PORT", &config.Metrics.Port)

	// Tracing configuration
	envString(&config.Observability.ServiceName, "IMAGEGATE_SERVICE_NAME")
	envBool("IMAGEGATE_TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString(&config.Observability.Tracing.Exporter, "IMAGEGATE_TRACING_EXPORTER")
	envString(&config.Observability.Tracing.OTLPEndpoint, "IMAGEGATE_TRACING_OTLP_ENDPOINT")
	envFloat("IMAGEGATE_TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Store.REST.URL = "https://your-database.upstash.io"
	config.Store.REST.Token = "your-rest-token"
	config.ImageAPI.APIKey = "sk-your-api-key"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
