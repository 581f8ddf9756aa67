// Package config provides YAML-based configuration with environment overrides.
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

// Config represents the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Worker   WorkerConfig   `yaml:"worker"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	BodyLimit            string        `yaml:"body_limit"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
}

// StorageConfig contains upload storage settings
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	UploadsDir  string `yaml:"uploads_dir"`
	KeepUploads bool   `yaml:"keep_uploads"`
}

// DatabaseConfig selects the job store engine.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite, postgres or duckdb
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// QueueConfig selects the queue backend probed at startup.
type QueueConfig struct {
	Backend      string        `yaml:"backend"` // redis, nats, amqp or none
	URL          string        `yaml:"url"`
	Name         string        `yaml:"name"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// WorkerConfig contains worker loop settings
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// AnalysisConfig contains settings for the analysis function.
type AnalysisConfig struct {
	DefaultQuery  string        `yaml:"default_query"`
	Timeout       time.Duration `yaml:"timeout"` // 0 disables the deadline
	PdftotextPath string        `yaml:"pdftotext_path"`
	MaxExcerpt    int           `yaml:"max_excerpt"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	drivers  = []string{"sqlite", "postgres", "duckdb"}
	backends = []string{"redis", "nats", "amqp", "none"}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 8000,
			ReadTimeout:          30 * time.Second,
			WriteTimeout:         10 * time.Minute,
			IdleTimeout:          120 * time.Second,
			BodyLimit:            "50M",
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			UploadsDir: "./data/uploads",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "./data/analysis.db",
			MaxOpenConns: 8,
		},
		Queue: QueueConfig{
			Backend:      "redis",
			URL:          "redis://localhost:6379/0",
			Name:         "financial",
			ProbeTimeout: 2 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency: 2,
		},
		Analysis: AnalysisConfig{
			DefaultQuery:  "Analyze this financial document for investment insights",
			Timeout:       5 * time.Minute,
			PdftotextPath: "pdftotext",
			MaxExcerpt:    500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a YAML file. An empty path yields the
// defaults; a missing file is created with the defaults. Environment
// variables are applied last.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		config.applyEnvironmentOverrides()
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.resolvePaths(filepath.Dir(configPath))
	config.applyEnvironmentOverrides()

	return config, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Financial Document Analyzer configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *Config) applyEnvironmentOverrides() {
	if port := firstEnv("ANALYZER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("ANALYZER_DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
		c.Storage.UploadsDir = filepath.Join(dataDir, "uploads")
	}
	if v := os.Getenv("ANALYZER_UPLOADS_DIR"); v != "" {
		c.Storage.UploadsDir = v
	}
	if v := os.Getenv("ANALYZER_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := firstEnv("ANALYZER_DB_DSN", "DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("ANALYZER_QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = v
	}
	if v := os.Getenv("ANALYZER_QUEUE_URL"); v != "" {
		c.Queue.URL = v
	}
	if v := os.Getenv("ANALYZER_QUEUE_NAME"); v != "" {
		c.Queue.Name = v
	}
	if v := os.Getenv("ANALYZER_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("ANALYZER_ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Analysis.Timeout = d
		}
	}
	if v := os.Getenv("ANALYZER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ANALYZER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *Config) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDir) {
		c.Storage.DataDir = filepath.Join(configDir, c.Storage.DataDir)
	}
	if !filepath.IsAbs(c.Storage.UploadsDir) {
		c.Storage.UploadsDir = filepath.Join(configDir, c.Storage.UploadsDir)
	}
	if c.Database.Driver != "postgres" && c.Database.DSN != "" && !filepath.IsAbs(c.Database.DSN) && !strings.HasPrefix(c.Database.DSN, "file:") {
		c.Database.DSN = filepath.Join(configDir, c.Database.DSN)
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if !contains(drivers, c.Database.Driver) {
		return fmt.Errorf("database.driver %q is not one of %s", c.Database.Driver, strings.Join(drivers, ", "))
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if !contains(backends, c.Queue.Backend) {
		return fmt.Errorf("queue.backend %q is not one of %s", c.Queue.Backend, strings.Join(backends, ", "))
	}
	if c.Queue.Backend != "none" && c.Queue.Name == "" {
		return errors.New("queue.name is required")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("analysis.timeout must not be negative, got %s", c.Analysis.Timeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.UploadsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
