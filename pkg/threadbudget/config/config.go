package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// CPUConfig selects how the host CPU count is read.
type CPUConfig struct {
	Source string `mapstructure:"source"`
}

// BudgetConfig shapes the thread budget derived from the CPU count.
type BudgetConfig struct {
	Reserve int `mapstructure:"reserve"`
	Threads int `mapstructure:"threads"` // 0 derives the budget from the CPU count
	Max     int `mapstructure:"max"`     // 0 means uncapped
}

// EnvConfig lists the environment variables the budget is written to.
type EnvConfig struct {
	Vars  []string `mapstructure:"vars"`
	Extra []string `mapstructure:"extra"`
}

// All returns Vars followed by Extra.
func (e EnvConfig) All() []string {
	out := make([]string, 0, len(e.Vars)+len(e.Extra))
	out = append(out, e.Vars...)
	return append(out, e.Extra...)
}

// RuntimeConfig configures the numeric runtime.
type RuntimeConfig struct {
	GOMAXPROCS bool `mapstructure:"gomaxprocs"`
}

// OutputConfig selects the report format.
type OutputConfig struct {
	Format   string `mapstructure:"format"`
	Template string `mapstructure:"template"`
}

// HistoryConfig configures the record of applied budgets.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	CPU     CPUConfig     `mapstructure:"cpu"`
	Budget  BudgetConfig  `mapstructure:"budget"`
	Env     EnvConfig     `mapstructure:"env"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Output  OutputConfig  `mapstructure:"output"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// New returns a viper instance with defaults, THREADBUDGET_ environment
// bindings and, when present, the config file already read.
//
// An empty configFile searches, in order:
//   - $XDG_CONFIG_HOME/threadbudget/config.yaml
//   - $HOME/.config/threadbudget/config.yaml
//
// A missing file in the search path is not an error; a missing explicit
// configFile is.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("THREADBUDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cpu.source", DefaultCPUSource)

	v.SetDefault("budget.reserve", DefaultReserve)
	v.SetDefault("budget.threads", 0)
	v.SetDefault("budget.max", 0)

	v.SetDefault("env.vars", DefaultEnvVars)
	v.SetDefault("env.extra", []string{})

	v.SetDefault("runtime.gomaxprocs", true)

	v.SetDefault("output.format", DefaultOutputFormat)
	v.SetDefault("output.template", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // empty means DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // empty means the logging package default
	v.SetDefault("logging.rotation.max_size", "10MiB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"configurator": "info",
		"tuner":        "info",
		"numrt":        "info",
		"history":      "info",
	})
}

// Decode unmarshals v into a Config and resolves paths.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath()
	} else if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path != "" {
		if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Load loads configuration from the default file locations and the environment.
// Environment variables are prefixed with THREADBUDGET_ (e.g. THREADBUDGET_BUDGET_RESERVE).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from configFile, or the default locations when empty.
func LoadFile(configFile string) (*Config, error) {
	v, err := New(configFile)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// ConfigDir returns $XDG_CONFIG_HOME/threadbudget, or ~/.config/threadbudget
// when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", appName), nil
}

// ConfigPath returns the path of the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists and returns its path.
// An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# threadbudget configuration

cpu:
  # CPU count source: logical, affinity (scheduler mask) or quota (cgroup limit)
  source: %s

budget:
  # CPUs left out of the budget; the budget is never below 1
  reserve: %d
  # Fixed thread count (0 derives it from the CPU count)
  threads: 0
  # Upper bound (0 means uncapped)
  max: 0

env:
  # Variables read by native math libraries
  vars:
    - OMP_NUM_THREADS
    - MKL_NUM_THREADS
  # Additional variables, e.g. OPENBLAS_NUM_THREADS
  extra: []

runtime:
  # Also set GOMAXPROCS to the budget
  gomaxprocs: true

output:
  # plain, pretty, json, yaml or template
  format: %s
  template: ""

history:
  enabled: true
  # Empty means $XDG_DATA_HOME/threadbudget/history
  path: ""
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/threadbudget/threadbudget.log
  path: ""
  rotation:
    max_size: 10MiB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    configurator: info
    tuner: info
    numrt: info
    history: info
`, DefaultCPUSource, DefaultReserve, DefaultOutputFormat, DefaultRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/threadbudget/ for the history database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// StateDir returns $XDG_STATE_HOME/threadbudget/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}
