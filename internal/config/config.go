// Package config loads the detoxd YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/detox/internal/schedule"
)

// Config represents the daemon configuration
type Config struct {
	Session   SessionConfig  `yaml:"session"`
	Budget    BudgetConfig   `yaml:"budget"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Monitor   MonitorConfig  `yaml:"monitor"`
	Storage   StorageConfig  `yaml:"storage"`
	Server    ServerConfig   `yaml:"server"`
	Log       LogConfig      `yaml:"log"`
	Billing   BillingConfig  `yaml:"billing"`
	Whitelist []string       `yaml:"whitelist,omitempty"` // seeds the whitelist on first run
}

// SessionConfig holds session controller settings
type SessionConfig struct {
	MaxMinutes     int    `yaml:"max_minutes"`
	DefaultMinutes int    `yaml:"default_minutes"`
	CancelPolicy   string `yaml:"cancel_policy"`   // budgeted | free
	DegradedPolicy string `yaml:"degraded_policy"` // unlock | keep-locked
}

// BudgetConfig holds emergency unlock settings
type BudgetConfig struct {
	Max         int   `yaml:"max"`
	DailyRefill *bool `yaml:"daily_refill,omitempty"`
}

// RefillDaily reports whether the budget resets at local midnight.
func (b BudgetConfig) RefillDaily() bool {
	return b.DailyRefill == nil || *b.DailyRefill
}

// ScheduleConfig holds the scheduled-window trigger settings
type ScheduleConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Start         string        `yaml:"start"`
	End           string        `yaml:"end"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// MonitorConfig holds foreground monitoring and enforcement settings
type MonitorConfig struct {
	ForegroundCommand []string      `yaml:"foreground_command,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	QueueSize         int           `yaml:"queue_size"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	ResendEvery       int           `yaml:"resend_every"`
	LockCommand       []string      `yaml:"lock_command,omitempty"`
	UnlockCommand     []string      `yaml:"unlock_command,omitempty"`
	BlockCommand      []string      `yaml:"block_command,omitempty"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // file | encrypted
	DataDir string `yaml:"data_dir,omitempty"`
}

// ServerConfig holds the control API listener
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings
type LogConfig struct {
	Path  string `yaml:"path,omitempty"`
	Level string `yaml:"level"`
}

// BillingConfig holds the external purchase hook
type BillingConfig struct {
	Command []string `yaml:"command,omitempty"`
}

const (
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
)

// LoadConfig loads configuration from a YAML file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.SetDefaults()
	return &config, nil
}

// LoadOrDefault loads filePath when it exists and falls back to defaults otherwise.
func LoadOrDefault(filePath string) (*Config, error) {
	if filePath == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadConfig(filePath)
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Session.MaxMinutes == 0 {
		c.Session.MaxMinutes = 180
	}
	if c.Session.DefaultMinutes == 0 {
		c.Session.DefaultMinutes = min(30, c.Session.MaxMinutes)
	}
	if c.Session.CancelPolicy == "" {
		c.Session.CancelPolicy = "budgeted"
	}
	if c.Session.DegradedPolicy == "" {
		c.Session.DegradedPolicy = "unlock"
	}

	if c.Budget.Max == 0 {
		c.Budget.Max = 3
	}

	if c.Schedule.Start == "" {
		c.Schedule.Start = "09:00"
	}
	if c.Schedule.End == "" {
		c.Schedule.End = "18:00"
	}
	if c.Schedule.CheckInterval == 0 {
		c.Schedule.CheckInterval = 30 * time.Second
	}

	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = time.Second
	}
	if c.Monitor.ProbeInterval == 0 {
		c.Monitor.ProbeInterval = 5 * time.Second
	}
	if c.Monitor.QueueSize == 0 {
		c.Monitor.QueueSize = 64
	}
	if c.Monitor.FailureThreshold == 0 {
		c.Monitor.FailureThreshold = 3
	}
	if c.Monitor.ResendEvery == 0 {
		c.Monitor.ResendEvery = 5
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendEncrypted
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7878
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Session.MaxMinutes < 1 {
		return fmt.Errorf("session.max_minutes must be at least 1")
	}
	if c.Session.DefaultMinutes < 1 || c.Session.DefaultMinutes > c.Session.MaxMinutes {
		return fmt.Errorf("session.default_minutes must be between 1 and %d", c.Session.MaxMinutes)
	}
	switch c.Session.CancelPolicy {
	case "budgeted", "free":
	default:
		return fmt.Errorf("session.cancel_policy %q: want budgeted or free", c.Session.CancelPolicy)
	}
	switch c.Session.DegradedPolicy {
	case "unlock", "keep-locked":
	default:
		return fmt.Errorf("session.degraded_policy %q: want unlock or keep-locked", c.Session.DegradedPolicy)
	}

	if c.Budget.Max < 0 {
		return fmt.Errorf("budget.max must not be negative")
	}

	if _, err := schedule.ParseWindow(c.Schedule.Start, c.Schedule.End); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if c.Schedule.CheckInterval < time.Second {
		return fmt.Errorf("schedule.check_interval must be at least 1s")
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.QueueSize < 1 {
		return fmt.Errorf("monitor.queue_size must be at least 1")
	}

	switch c.Storage.Backend {
	case BackendFile, BackendEncrypted:
	default:
		return fmt.Errorf("storage.backend %q: want %s or %s", c.Storage.Backend, BackendFile, BackendEncrypted)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{}
	config.SetDefaults()
	return config
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
