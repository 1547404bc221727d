// Package config provides configuration management for code-buddy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoAPIKey        = errors.New("missing API key")
)

// Config holds the configuration for both sides of a chat. API keys are only read from the environment.
type Config struct {
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	MaxOutputTokens int64    `yaml:"max_output_tokens"`
	MaxPromptTokens int      `yaml:"max_prompt_tokens"` // 0 disables the check
	OpenAIBaseURL   string   `yaml:"openai_base_url"`
	WorkspaceRoot   string   `yaml:"workspace_root"`
	ExcludeDirs     []string `yaml:"exclude_dirs"` // In addition to node_modules, vendor and .git

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	MetricsAddr      string `yaml:"metrics_addr"`
	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`

	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Provider:        ProviderAnthropic,
		MaxOutputTokens: 4096,
		MaxPromptTokens: 150000,
		WorkspaceRoot:   ".",
		LogLevel:        "info",
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the file leave cfg unchanged.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays environment variables onto cfg
func LoadEnv(cfg *Config) error {
	loadFromEnv(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	loadFromEnv(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	loadFromEnv(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	loadFromEnv(&cfg.Provider, "CODE_BUDDY_PROVIDER")
	loadFromEnv(&cfg.Model, "CODE_BUDDY_MODEL")
	loadFromEnv(&cfg.WorkspaceRoot, "CODE_BUDDY_WORKSPACE")
	loadFromEnv(&cfg.LogLevel, "CODE_BUDDY_LOG_LEVEL")
	loadFromEnv(&cfg.LogFile, "CODE_BUDDY_LOG_FILE")
	loadFromEnv(&cfg.MetricsAddr, "CODE_BUDDY_METRICS_ADDR")
	loadFromEnv(&cfg.OTLPEndpoint, "CODE_BUDDY_OTLP_ENDPOINT")

	if err := parseFromEnv(&cfg.MaxOutputTokens, "CODE_BUDDY_MAX_OUTPUT_TOKENS", func(v string) (int64, error) {
		return strconv.ParseInt(v, 10, 64)
	}); err != nil {
		return err
	}
	if err := parseFromEnv(&cfg.MaxPromptTokens, "CODE_BUDDY_MAX_PROMPT_TOKENS", strconv.Atoi); err != nil {
		return err
	}
	if err := parseFromEnv(&cfg.TelemetryEnabled, "CODE_BUDDY_TELEMETRY", strconv.ParseBool); err != nil {
		return err
	}
	if v := os.Getenv("CODE_BUDDY_EXCLUDE_DIRS"); v != "" {
		cfg.ExcludeDirs = strings.Split(v, ",")
	}
	return nil
}

func loadFromEnv(dest *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dest = v
	}
}

func parseFromEnv[T any](dest *T, key string, parseFn func(string) (T, error)) error {
	str := os.Getenv(key)
	if str == "" {
		return nil // Leave default value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}

// APIKey returns the key for the configured provider
func (c Config) APIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

// Validate checks that the backend can be constructed from this configuration
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrNoAPIKey)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY", ErrNoAPIKey)
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownProvider, c.Provider)
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.MaxOutputTokens)
	}
	if c.MaxPromptTokens < 0 {
		return fmt.Errorf("max_prompt_tokens must not be negative, got %d", c.MaxPromptTokens)
	}
	if c.TelemetryEnabled && c.OTLPEndpoint == "" {
		return errors.New("telemetry is enabled but no OTLP endpoint is set")
	}
	return nil
}
