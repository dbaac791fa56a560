// Package config loads docdb settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// DOCDB_* environment variables. Validate reports the first invalid value.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink kinds for flushed pipeline batches
const (
	SinkMemory = "memory"
	SinkDir    = "dir"
	SinkBadger = "badger"
)

// Config holds all docdb settings
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// StorageConfig locates the storage units
type StorageConfig struct {
	// DataDir holds one <namespace>.db file per namespace; empty keeps
	// every namespace in memory
	DataDir     string        `yaml:"data_dir"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LoggingConfig selects the log level and format
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// PipelineConfig configures the event pipeline buffer and its sink
type PipelineConfig struct {
	BatchSize    int    `yaml:"batch_size"`
	RetryEnabled bool   `yaml:"retry_enabled"`
	Sink         string `yaml:"sink"`
	SinkPath     string `yaml:"sink_path"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint. An
// empty URL uses the deterministic fallback only.
type EmbeddingConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoadDefaults returns the built-in configuration
func LoadDefaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:     "",
			BusyTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Address:         ":8787",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Pipeline: PipelineConfig{
			BatchSize:    100,
			RetryEnabled: true,
			Sink:         SinkMemory,
		},
		Embedding: EmbeddingConfig{
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads defaults, then the YAML file at path (if non-empty), then the
// environment
func Load(path string) (*Config, error) {
	cfg := LoadDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	ApplyEnvVars(cfg)
	return cfg, nil
}

// LoadFromEnv is Load without a file
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	ApplyEnvVars(cfg)
	return cfg
}

// FindConfigFile returns the first docdb.yaml found in the working directory
// or the user config directory, or ""
func FindConfigFile() string {
	candidates := []string{"docdb.yaml", "docdb.yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "docdb", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// ApplyEnvVars overrides cfg with DOCDB_* variables that are set
func ApplyEnvVars(cfg *Config) {
	cfg.Storage.DataDir = getEnv("DOCDB_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.BusyTimeout = getEnvDuration("DOCDB_BUSY_TIMEOUT", cfg.Storage.BusyTimeout)

	cfg.Server.Address = getEnv("DOCDB_ADDRESS", cfg.Server.Address)
	cfg.Server.ReadTimeout = getEnvDuration("DOCDB_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("DOCDB_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("DOCDB_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxBodyBytes = int64(getEnvInt("DOCDB_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Logging.Level = getEnv("DOCDB_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("DOCDB_LOG_FORMAT", cfg.Logging.Format)

	cfg.Pipeline.BatchSize = getEnvInt("DOCDB_PIPELINE_BATCH_SIZE", cfg.Pipeline.BatchSize)
	cfg.Pipeline.RetryEnabled = getEnvBool("DOCDB_PIPELINE_RETRY", cfg.Pipeline.RetryEnabled)
	cfg.Pipeline.Sink = getEnv("DOCDB_PIPELINE_SINK", cfg.Pipeline.Sink)
	cfg.Pipeline.SinkPath = getEnv("DOCDB_PIPELINE_SINK_PATH", cfg.Pipeline.SinkPath)

	cfg.Embedding.URL = getEnv("DOCDB_EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Model = getEnv("DOCDB_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getEnv("DOCDB_EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Timeout = getEnvDuration("DOCDB_EMBEDDING_TIMEOUT", cfg.Embedding.Timeout)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server address is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid max body size: %d", c.Server.MaxBodyBytes)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("invalid pipeline batch size: %d", c.Pipeline.BatchSize)
	}
	switch c.Pipeline.Sink {
	case SinkMemory:
	case SinkDir, SinkBadger:
		if c.Pipeline.SinkPath == "" {
			return fmt.Errorf("pipeline sink %q requires a sink path", c.Pipeline.Sink)
		}
	default:
		return fmt.Errorf("unknown pipeline sink: %q", c.Pipeline.Sink)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %q", c.Logging.Format)
	}
	if c.Embedding.URL != "" && c.Embedding.Model == "" {
		return errors.New("embedding model is required when an embedding url is set")
	}
	return nil
}

// String renders the configuration without secrets
func (c *Config) String() string {
	key := ""
	if c.Embedding.APIKey != "" {
		key = "****"
	}
	return fmt.Sprintf("Config{DataDir: %q, Address: %s, Log: %s/%s, Pipeline: %d/%s, Embedding: %q %s key=%s}",
		c.Storage.DataDir, c.Server.Address, c.Logging.Level, c.Logging.Format,
		c.Pipeline.BatchSize, c.Pipeline.Sink, c.Embedding.URL, c.Embedding.Model, key)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
