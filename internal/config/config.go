// Package config provides YAML-based configuration for the console.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = "pangan-console.yaml"

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Storage  StorageConfig  `yaml:"storage"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains dashboard HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	BindAddress  string        `yaml:"bind_address"`
	EnableCORS   bool          `yaml:"enable_cors"`
	AllowOrigins []string      `yaml:"allow_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	BodyLimit    string        `yaml:"body_limit"`
}

// BackendConfig points at the forecasting API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig contains local file locations. Staging and state
// directories are relative to the data directory unless absolute.
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory"`
	StagingDirectory string `yaml:"staging_directory"`
	StateDirectory   string `yaml:"state_directory"`
}

// WorkflowConfig tunes the training pipeline.
type WorkflowConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AutoPreprocess bool          `yaml:"auto_preprocess"`
	AutoTrain      bool          `yaml:"auto_train"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	RequestLogging bool   `yaml:"request_logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  2 * time.Minute,
			BodyLimit:    "50M",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			StagingDirectory: "staging",
			StateDirectory:   "state",
		},
		Workflow: WorkflowConfig{
			PollInterval:   5 * time.Second,
			RequestTimeout: 30 * time.Second,
			AutoPreprocess: true,
			AutoTrain:      true,
		},
		Logging: LoggingConfig{
			Level:          "info",
			RequestLogging: true,
		},
	}
}

// LoadEnv overlays .env files onto the process environment. Missing
// files are ignored; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file, creating it with
// defaults when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Harga Pangan console configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the console cannot run with.
func (c *AppConfig) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Workflow.PollInterval <= 0 {
		return fmt.Errorf("workflow.poll_interval must be positive, got %s", c.Workflow.PollInterval)
	}
	return nil
}

// applyEnvironmentOverrides lets environment variables override file values.
func (c *AppConfig) applyEnvironmentOverrides() error {
	if url := os.Getenv("PANGAN_API_BASE_URL"); url != "" {
		c.Backend.BaseURL = url
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if interval := os.Getenv("PANGAN_POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid PANGAN_POLL_INTERVAL %q: %w", interval, err)
		}
		c.Workflow.PollInterval = d
	}

	for name, target := range map[string]*bool{
		"PANGAN_AUTO_PREPROCESS": &c.Workflow.AutoPreprocess,
		"PANGAN_AUTO_TRAIN":      &c.Workflow.AutoTrain,
	} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			*target = b
		}
	}

	if level := os.Getenv("PANGAN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// resolvePaths converts relative paths to absolute ones based on the config
// file location.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.StagingDirectory) {
		c.Storage.StagingDirectory = filepath.Join(c.Storage.DataDirectory, c.Storage.StagingDirectory)
	}
	if !filepath.IsAbs(c.Storage.StateDirectory) {
		c.Storage.StateDirectory = filepath.Join(c.Storage.DataDirectory, c.Storage.StateDirectory)
	}
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.StagingDirectory,
		c.Storage.StateDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
