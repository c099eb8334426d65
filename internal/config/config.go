package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	qerrors "qfactor/internal/errors"
)

// Config is the complete pipeline configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database" envconfig:"DATABASE"`
	Provider    ProviderConfig    `yaml:"provider" envconfig:"PROVIDER"`
	Calculation CalculationConfig `yaml:"calculation" envconfig:"CALCULATION"`
	Analysis    AnalysisConfig    `yaml:"analysis" envconfig:"ANALYSIS"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Metrics     MetricsConfig     `yaml:"metrics" envconfig:"METRICS"`
}

// DatabaseConfig selects and tunes the Panel Store backend.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DRIVER" validate:"oneof=sqlite3 postgres"`
	DSN             string        `yaml:"dsn" envconfig:"DSN" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
}

// ProviderConfig tunes the market data pull client. BaseURL may stay
// empty for binaries that never fetch.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	RatePerSec float64       `yaml:"rate_per_sec" envconfig:"RATE_PER_SEC" validate:"gt=0"`
	Burst      int           `yaml:"burst" envconfig:"BURST" validate:"gte=1"`
	MaxRetries int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"gte=0"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
}

// CalculationConfig tunes the factor engine batch. Windows overrides the
// default window parameter per factor kind, such as price_mean: 10.
type CalculationConfig struct {
	BatchSize int            `yaml:"batch_size" envconfig:"BATCH_SIZE" validate:"gte=1"`
	Workers   int            `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`
	Timeout   time.Duration  `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	Windows   map[string]int `yaml:"windows" envconfig:"WINDOWS"`
	Extended  bool           `yaml:"extended" envconfig:"EXTENDED"`
}

// AnalysisConfig tunes the factor analyzer.
type AnalysisConfig struct {
	ForwardPeriod int    `yaml:"forward_period" envconfig:"FORWARD_PERIOD" validate:"gte=1"`
	Groups        int    `yaml:"groups" envconfig:"GROUPS" validate:"gte=2"`
	Normalize     string `yaml:"normalize" envconfig:"NORMALIZE" validate:"oneof=none time_series cross_section"`
	RollingWindow int    `yaml:"rolling_window" envconfig:"ROLLING_WINDOW" validate:"gte=2"`
}

// LoggingConfig controls the slog setup shared by every binary.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// MetricsConfig controls the diagnostics HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Addr    string `yaml:"addr" envconfig:"ADDR"`
}

// Default returns the configuration every load starts from.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "qfactor.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Provider: ProviderConfig{
			RatePerSec: 5,
			Burst:      10,
			MaxRetries: 3,
			Timeout:    30 * time.Second,
		},
		Calculation: CalculationConfig{
			BatchSize: 100,
			Workers:   4,
			Timeout:   30 * time.Minute,
		},
		Analysis: AnalysisConfig{
			ForwardPeriod: 1,
			Groups:        5,
			Normalize:     "none",
			RollingWindow: 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/qfactor.log",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load assembles the configuration in ascending precedence: defaults,
// then the YAML file if one is found, then QF_* environment variables.
// A .env file in the working directory seeds the environment first.
func Load() (*Config, error) {
	// Absent .env is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	if path := findConfigFile(); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("QF", cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays YAML keys onto cfg, leaving absent keys untouched.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// findConfigFile returns the first config file that exists: the QF_CONFIG
// override, then the conventional locations.
func findConfigFile() string {
	if path := os.Getenv("QF_CONFIG"); path != "" {
		return path
	}
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

var validate = validator.New()

// Validate checks the struct tags and reports the first violation as a
// ConfigurationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return &qerrors.ConfigurationError{
			Field:   first.Namespace(),
			Message: fmt.Sprintf("failed %q validation", first.Tag()),
			Value:   first.Value(),
		}
	}
	return fmt.Errorf("validate config: %w", err)
}
