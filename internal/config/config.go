// Package config loads run configuration from defaults, an optional YAML
// file, environment variables and bound CLI flags, in that precedence
// order (lowest to highest).
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the tool's historical behavior.
const (
	DefaultColumn     = "moduledescription"
	DefaultModel      = "gpt-5-chat-latest"
	DefaultWorkers    = 5
	DefaultMaxRetries = 5

	// APIKeyEnv names the environment variable carrying the credential.
	APIKeyEnv = "OPENAI_API_KEY"

	// EnvPrefix scopes environment overrides, e.g. REFORMULATOR_WORKERS.
	EnvPrefix = "REFORMULATOR"
)

// Config is the configuration for one run. It is constructed once and
// passed by value into the orchestrator; nothing mutates it afterwards.
type Config struct {
	Input      string  `mapstructure:"input" yaml:"input"`
	Output     string  `mapstructure:"output" yaml:"output"`
	Column     string  `mapstructure:"column" yaml:"column"`
	Model      string  `mapstructure:"model" yaml:"model"`
	Workers    int     `mapstructure:"workers" yaml:"workers"`
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"`
	LimitRows  int     `mapstructure:"limit_rows" yaml:"limit_rows"`
	DryRun     bool    `mapstructure:"dry_run" yaml:"dry_run"`
	Delimiter  string  `mapstructure:"delimiter" yaml:"delimiter"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	// APIKey may reference an environment variable with ${VAR} syntax.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Column:     DefaultColumn,
		Model:      DefaultModel,
		Workers:    DefaultWorkers,
		MaxRetries: DefaultMaxRetries,
		APIKey:     "${" + APIKeyEnv + "}",
	}
}

// Load seeds viper with defaults, reads the optional config file and the
// environment, and unmarshals the merged state. Bound CLI flags take
// precedence through viper's usual resolution.
func Load(cfgFile string) (*Config, error) {
	defaults := DefaultConfig()
	viper.SetDefault("column", defaults.Column)
	viper.SetDefault("model", defaults.Model)
	viper.SetDefault("workers", defaults.Workers)
	viper.SetDefault("max_retries", defaults.MaxRetries)
	viper.SetDefault("api_key", defaults.APIKey)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("reformulator")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.reformulator")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for a run. Violations are reported
// with the specific element named, before any row is processed.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input path is required (--input)")
	}
	if _, err := os.Stat(c.Input); err != nil {
		return fmt.Errorf("input file not found: %s", c.Input)
	}
	if c.Column == "" {
		return fmt.Errorf("target column is required (--column)")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1, got %d", c.MaxRetries)
	}
	if c.LimitRows < 0 {
		return fmt.Errorf("limit rows must be >= 0, got %d", c.LimitRows)
	}
	if len([]rune(c.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if !c.DryRun && c.ResolveAPIKey() == "" {
		return fmt.Errorf("missing API key: set %s or api_key in the config file", APIKeyEnv)
	}
	return nil
}

// ResolveAPIKey expands any ${ENV_VAR} reference in the configured key.
func (c *Config) ResolveAPIKey() string {
	return ResolveEnvVars(c.APIKey)
}

// DelimiterRune returns the forced delimiter, or 0 for auto-detection.
func (c *Config) DelimiterRune() rune {
	runes := []rune(c.Delimiter)
	if len(runes) == 0 {
		return 0
	}
	return runes[0]
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// MaskAPIKey returns a masked representation safe for display.
func MaskAPIKey(apiKey string) string {
	trimmed := strings.TrimSpace(apiKey)
	switch {
	case trimmed == "":
		return ""
	case len(trimmed) <= 4:
		return strings.Repeat("*", len(trimmed))
	case len(trimmed) <= 8:
		return trimmed[:1] + strings.Repeat("*", len(trimmed)-2) + trimmed[len(trimmed)-1:]
	default:
		return trimmed[:4] + "..." + trimmed[len(trimmed)-2:]
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Reformulator configuration
# The API key uses ${ENV_VAR} syntax to reference an environment variable.
# Set it in your shell: export OPENAI_API_KEY=sk-...

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
