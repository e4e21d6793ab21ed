package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the lexdex ingestion service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Worker     WorkerConfig     `yaml:"worker"`
	Categories []CategoryConfig `yaml:"categories"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds the ops HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // label for metrics
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// OracleConfig holds the category-validation model settings. An empty
// model disables the oracle; unknown labels are then rejected outright.
type OracleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// FetcherConfig holds document fetch settings.
type FetcherConfig struct {
	TimeoutSec   int    `yaml:"timeout_sec"`
	MinDelaySec  int    `yaml:"min_delay_sec"`
	MaxJitterSec int    `yaml:"max_jitter_sec"`
	UserAgent    string `yaml:"user_agent"`
	Stealth      bool   `yaml:"stealth"`
}

// PipelineConfig holds ingestion pipeline settings.
type PipelineConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars"`
}

// WorkerConfig holds scheduler and retry settings.
type WorkerConfig struct {
	Enabled         bool `yaml:"enabled"`
	MaxRetries      int  `yaml:"max_retries"`
	RetryBackoffSec int  `yaml:"retry_backoff_sec"`
}

// CategoryConfig declares one legal-domain category and its crawl
// sources. Document URLs are seeded into the registry at startup.
type CategoryConfig struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Description  string   `yaml:"description"`
	DocumentURLs []string `yaml:"document_urls"`
	Schedule     string   `yaml:"schedule"` // daily, weekly, monthly
	Time         string   `yaml:"time"`     // HH:MM
	MaxDocuments int      `yaml:"max_documents"`
	Active       bool     `yaml:"active"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Fetcher.TimeoutSec <= 0 {
		c.Fetcher.TimeoutSec = 30
	}
	if c.Fetcher.MinDelaySec <= 0 {
		c.Fetcher.MinDelaySec = 2
	}
	if c.Pipeline.MaxChunkChars <= 0 {
		c.Pipeline.MaxChunkChars = 380
	}
	if c.Worker.MaxRetries <= 0 {
		c.Worker.MaxRetries = 3
	}
	if c.Worker.RetryBackoffSec <= 0 {
		c.Worker.RetryBackoffSec = 30
	}
	for i := range c.Categories {
		if c.Categories[i].Schedule == "" {
			c.Categories[i].Schedule = "daily"
		}
		if c.Categories[i].Time == "" {
			c.Categories[i].Time = "02:00"
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "memory":
		// no connection settings needed
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("categories[%d].name is required", i)
		}
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seen[cat.Name] = struct{}{}
		switch cat.Schedule {
		case "daily", "weekly", "monthly":
			// ok
		default:
			return fmt.Errorf("categories[%d].schedule must be daily, weekly, or monthly, got %q",
				i, cat.Schedule)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
