package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Configuration validation constants
const (
	MinDaysBack   = 1   // Minimum trailing days for cost queries
	MaxDaysBack   = 365 // Cost Explorer keeps ~13 months; cap well inside it
	MaxAPITimeout = 300 // Maximum AWS API timeout in seconds

	// Default values
	DefaultRegion       = "us-east-1" // Billing metrics only exist in us-east-1
	DefaultJobName      = "aws-billing-collector"
	DefaultInstanceName = "github-actions"
	DefaultDaysBack     = 2
	DefaultDataDir      = "data"
	DefaultLogDir       = "logs"
	DefaultLogLevel     = "info"
	DefaultAPITimeout   = 30 // AWS API timeout in seconds
)

// AWS holds the AWS account and region settings
type AWS struct {
	Region    string `yaml:"region"`
	AccountID string `yaml:"account_id"` // optional; budget collection is skipped without it
}

// Gateway holds the Pushgateway target settings
type Gateway struct {
	URL      string `yaml:"url"`
	Job      string `yaml:"job"`
	Instance string `yaml:"instance"`
}

// Collection holds the cost query settings
type Collection struct {
	DaysBack int `yaml:"days_back"`
	// SuppressNonPositiveCost drops zero and negative cost-by-service
	// values before emission. Pointer to distinguish an explicit false
	// from unset.
	SuppressNonPositiveCost *bool `yaml:"suppress_non_positive_cost"`
}

// Config represents the application configuration
type Config struct {
	AWS        AWS        `yaml:"aws"`
	Gateway    Gateway    `yaml:"gateway"`
	Collection Collection `yaml:"collection"`
	DataDir    string     `yaml:"data_dir"`
	LogDir     string     `yaml:"log_dir"`
	LogLevel   string     `yaml:"log_level"`
	APITimeout int        `yaml:"api_timeout"` // AWS API timeout in seconds
}

// Load loads configuration from an optional YAML file and applies
// environment variable overrides. An empty path means env-only operation,
// which covers the CI use case where everything arrives via secrets.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 -- Config file path is provided by administrator via CLI flag, not user input
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment variable error: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// RequireGateway returns an error when no Pushgateway URL is configured.
// Only the delivery-facing stages call it; collection works without one.
func (c *Config) RequireGateway() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("no Pushgateway URL configured (set PROMETHEUS_PUSHGATEWAY_URL or gateway.url)")
	}
	return nil
}

// applyDefaults sets default values for configuration
func applyDefaults(cfg *Config) {
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultRegion
	}
	if cfg.Gateway.Job == "" {
		cfg.Gateway.Job = DefaultJobName
	}
	if cfg.Gateway.Instance == "" {
		cfg.Gateway.Instance = DefaultInstanceName
	}
	if cfg.Collection.DaysBack == 0 {
		cfg.Collection.DaysBack = DefaultDaysBack
	}
	// Only apply default if SuppressNonPositiveCost is nil (not set),
	// not if it's explicitly false
	if cfg.Collection.SuppressNonPositiveCost == nil {
		suppress := true
		cfg.Collection.SuppressNonPositiveCost = &suppress
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.APITimeout == 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.AWS.Region = val
	}

	if val := os.Getenv("AWS_ACCOUNT_ID"); val != "" {
		cfg.AWS.AccountID = val
	}

	if val := os.Getenv("PROMETHEUS_PUSHGATEWAY_URL"); val != "" {
		cfg.Gateway.URL = val
	}

	if val := os.Getenv("PROMETHEUS_JOB_NAME"); val != "" {
		cfg.Gateway.Job = val
	}

	if val := os.Getenv("PROMETHEUS_INSTANCE_NAME"); val != "" {
		cfg.Gateway.Instance = val
	}

	if val := os.Getenv("BILLING_DAYS_BACK"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid BILLING_DAYS_BACK: must be an integer, got %q", val)
		}
		cfg.Collection.DaysBack = i
	}

	if val := os.Getenv("BILLING_SUPPRESS_NON_POSITIVE"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid BILLING_SUPPRESS_NON_POSITIVE: must be a boolean, got %q", val)
		}
		cfg.Collection.SuppressNonPositiveCost = &b
	}

	if val := os.Getenv("BILLING_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}

	if val := os.Getenv("BILLING_LOG_DIR"); val != "" {
		cfg.LogDir = val
	}

	if val := os.Getenv("BILLING_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if val := os.Getenv("BILLING_API_TIMEOUT"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid BILLING_API_TIMEOUT: must be an integer, got %q", val)
		}
		cfg.APITimeout = i
	}

	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.AWS.Region == "" {
		return fmt.Errorf("aws region must not be empty")
	}

	if cfg.Gateway.URL != "" {
		u, err := url.Parse(cfg.Gateway.URL)
		if err != nil {
			return fmt.Errorf("invalid gateway URL %q: %w", cfg.Gateway.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("gateway URL must use http or https, got %q", cfg.Gateway.URL)
		}
	}

	if cfg.Gateway.Job == "" {
		return fmt.Errorf("gateway job name must not be empty")
	}

	if cfg.Collection.DaysBack < MinDaysBack {
		return fmt.Errorf("days_back must be at least %d, got %d", MinDaysBack, cfg.Collection.DaysBack)
	}

	if cfg.Collection.DaysBack > MaxDaysBack {
		return fmt.Errorf("days_back must not exceed %d, got %d", MaxDaysBack, cfg.Collection.DaysBack)
	}

	if cfg.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be positive, got %d", cfg.APITimeout)
	}

	if cfg.APITimeout > MaxAPITimeout {
		return fmt.Errorf("api_timeout should not exceed %d seconds, got %d", MaxAPITimeout, cfg.APITimeout)
	}

	return nil
}
