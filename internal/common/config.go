package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// EnvSiteConfigDir overrides the per-site JSON config directory
const EnvSiteConfigDir = "WEB_SITE_CONFIG_DIR"

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Runner      RunnerConfig    `toml:"runner"`
	Sites       SitesConfig     `toml:"sites"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port       int    `toml:"port"`
	Host       string `toml:"host"`
	CORSOrigin string `toml:"cors_origin"` // Access-Control-Allow-Origin value, "*" when unset
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SchedulerConfig controls the due-task polling loop
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled"`
	PollSchedule string `toml:"poll_schedule"` // cron expression driving the poll tick
	RecoveryDays int    `toml:"recovery_days"` // look-back window for failed-task recovery
}

// RunnerConfig controls task execution
type RunnerConfig struct {
	MaxConcurrentTasks int    `toml:"max_concurrent_tasks"`
	OutputDir          string `toml:"output_dir"`    // CSV output directory
	CancelWaitSec      int    `toml:"cancel_wait"`   // max seconds to wait for running tasks on shutdown
}

// SitesConfig controls per-site crawler configuration loading
type SitesConfig struct {
	ConfigDir string  `toml:"config_dir"` // Directory containing per-site JSON config files
	RateLimit float64 `toml:"rate_limit"` // Requests per second per site
	UserAgent string  `toml:"user_agent"`
}

// WebSocketConfig controls progress broadcasting to WebSocket clients
type WebSocketConfig struct {
	ThrottleInterval string `toml:"throttle_interval"` // min interval between progress frames per client, e.g. "500ms"
}

// ThrottleEvery parses the throttle interval, zero when unset or invalid
func (w *WebSocketConfig) ThrottleEvery() time.Duration {
	if w.ThrottleInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(w.ThrottleInterval)
	if err != nil {
		return 0
	}
	return d
}

// DefaultConfig returns the configuration defaults applied before any file
// or environment override
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/gazette"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollSchedule: "*/1 * * * *",
			RecoveryDays: 3,
		},
		Runner: RunnerConfig{
			MaxConcurrentTasks: 4,
			OutputDir:          "./logs",
			CancelWaitSec:      30,
		},
		Sites: SitesConfig{
			ConfigDir: "./configs",
			RateLimit: 2.0,
			UserAgent: "gazette/1.0",
		},
		WebSocket: WebSocketConfig{
			ThrottleInterval: "500ms",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyFlagOverrides applies command-line flag values; highest priority
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks cross-field configuration invariants
func Validate(config *Config) error {
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Scheduler.PollSchedule != "" {
		if err := ValidateCronSchedule(config.Scheduler.PollSchedule); err != nil {
			return fmt.Errorf("invalid scheduler poll_schedule: %w", err)
		}
	}
	if config.Runner.MaxConcurrentTasks < 1 {
		return fmt.Errorf("runner max_concurrent_tasks must be >= 1")
	}
	return nil
}

// ValidateCronSchedule validates a standard 5-field cron expression
func ValidateCronSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// CancelWait returns the shutdown cancel wait as a duration
func (r *RunnerConfig) CancelWait() time.Duration {
	return time.Duration(r.CancelWaitSec) * time.Second
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("GAZETTE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("GAZETTE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("GAZETTE_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv(EnvSiteConfigDir); v != "" {
		config.Sites.ConfigDir = v
	}
}
