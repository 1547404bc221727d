package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cchalm/code-buddy/internal/config"
)

var cfg = config.Default()

// flagValues holds the persistent flags. A flag only overrides the file and environment when set explicitly.
var flagValues struct {
	configPath      string
	provider        string
	model           string
	workspace       string
	logLevel        string
	logFile         string
	metricsAddr     string
	telemetry       bool
	otlpEndpoint    string
	maxPromptTokens int
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagValues.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&flagValues.provider, "provider", "", "Model provider: anthropic or openai")
	flags.StringVar(&flagValues.model, "model", "", "Model name")
	flags.StringVar(&flagValues.workspace, "workspace", "", "Directory searched for attached and @mentioned files")
	flags.StringVar(&flagValues.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&flagValues.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.StringVar(&flagValues.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&flagValues.telemetry, "telemetry", false, "Export traces over OTLP/HTTP")
	flags.StringVar(&flagValues.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector address, host:port")
	flags.IntVar(&flagValues.maxPromptTokens, "max-prompt-tokens", 0, "Refuse prompts estimated above this many tokens")
}

// loadConfig layers defaults, the config file, the environment and explicit flags, in that order
func loadConfig(cmd *cobra.Command) error {
	c := config.Default()
	if flagValues.configPath != "" {
		if err := config.LoadFile(flagValues.configPath, &c); err != nil {
			return err
		}
	}
	if err := config.LoadEnv(&c); err != nil {
		return err
	}

	flags := cmd.Flags()
	overrideString := func(name string, dest *string, v string) {
		if flags.Changed(name) {
			*dest = v
		}
	}
	overrideString("provider", &c.Provider, flagValues.provider)
	overrideString("model", &c.Model, flagValues.model)
	overrideString("workspace", &c.WorkspaceRoot, flagValues.workspace)
	overrideString("log-level", &c.LogLevel, flagValues.logLevel)
	overrideString("log-file", &c.LogFile, flagValues.logFile)
	overrideString("metrics-addr", &c.MetricsAddr, flagValues.metricsAddr)
	overrideString("otlp-endpoint", &c.OTLPEndpoint, flagValues.otlpEndpoint)
	if flags.Changed("telemetry") {
		c.TelemetryEnabled = flagValues.telemetry
	}
	if flags.Changed("max-prompt-tokens") {
		c.MaxPromptTokens = flagValues.maxPromptTokens
	}

	cfg = c
	return nil
}

// requireBackendConfig fails commands that talk to a model when the configuration cannot support one
func requireBackendConfig() error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
