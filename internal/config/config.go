package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the rwlock CLI configuration
type Config struct {
	// LockTimeoutMS is the lock acquisition timeout in milliseconds (default: 30000)
	LockTimeoutMS int `json:"lock_timeout_ms,omitempty"`

	// RetryIntervalMS is the initial retry interval in milliseconds (default: 10)
	RetryIntervalMS int `json:"retry_interval_ms,omitempty"`

	// Debug is the debug verbosity: 0 off, 1 basic, 2 verbose including guard traffic
	Debug int `json:"debug,omitempty"`
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		LockTimeoutMS:   30000,
		RetryIntervalMS: 10,
		Debug:           0,
	}
}

// Timeout returns the lock acquisition timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// RetryInterval returns the initial retry interval as a duration
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMS) * time.Millisecond
}

// Loader loads configuration from multiple sources
type Loader struct {
	userPath string
}

// NewLoader creates a new config loader
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()

	return &Loader{
		userPath: filepath.Join(homeDir, ".config", "rwlock", "config.json"),
	}
}

// Load loads and merges configuration from all sources
// Precedence: env > user config file > defaults
func (l *Loader) Load() (*Config, error) {
	config := Default()

	if err := l.loadFromFile(l.userPath, config); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	l.loadFromEnv(config)

	return config, nil
}

// loadFromFile loads config from a JSON file, merging non-zero values
func (l *Loader) loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	if partial.LockTimeoutMS > 0 {
		config.LockTimeoutMS = partial.LockTimeoutMS
	}
	if partial.RetryIntervalMS > 0 {
		config.RetryIntervalMS = partial.RetryIntervalMS
	}
	if partial.Debug > 0 {
		config.Debug = partial.Debug
	}

	return nil
}

// loadFromEnv loads config from environment variables
func (l *Loader) loadFromEnv(config *Config) {
	if val := os.Getenv("RWLOCK_TIMEOUT_MS"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			config.LockTimeoutMS = timeout
		}
	}
	if val := os.Getenv("RWLOCK_RETRY_INTERVAL_MS"); val != "" {
		if interval, err := strconv.Atoi(val); err == nil && interval > 0 {
			config.RetryIntervalMS = interval
		}
	}
	if val := os.Getenv("RWLOCK_DEBUG"); val != "" {
		if debug, err := strconv.Atoi(val); err == nil && debug >= 0 {
			config.Debug = debug
		}
	}
}

// Save saves configuration to the user config file
func (l *Loader) Save(config *Config) error {
	dir := filepath.Dir(l.userPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically
	tempPath := l.userPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, l.userPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Path returns the user config file path
func (l *Loader) Path() string {
	return l.userPath
}
