package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/cchalm/code-buddy/internal/backend"
	"github.com/cchalm/code-buddy/internal/config"
	"github.com/cchalm/code-buddy/internal/metrics"
	"github.com/cchalm/code-buddy/internal/telemetry"
	"github.com/cchalm/code-buddy/internal/transport"
	"github.com/cchalm/code-buddy/internal/workspace"
)

func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Info().Msg("Interrupt signal detected, shutting down gracefully...")
		cancel()
		<-interrupt
		log.Fatal().Msg("Forcing shutdown")
	}()

	return ctx, cancel
}

func createResponder(c config.Config) (backend.Responder, error) {
	rateLimitedHTTPClient := &http.Client{
		Transport: transport.WithRateLimiting(nil),
	}
	switch c.Provider {
	case config.ProviderAnthropic:
		return backend.NewAnthropicResponder(c.Model, c.MaxOutputTokens,
			option.WithHTTPClient(rateLimitedHTTPClient),
			option.WithAPIKey(c.APIKey()),
			option.WithMaxRetries(5),
		), nil
	case config.ProviderOpenAI:
		return backend.NewOpenAIResponder(c.APIKey(), c.OpenAIBaseURL, c.Model, int(c.MaxOutputTokens), rateLimitedHTTPClient), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownProvider, c.Provider)
	}
}

func createTelemetryProvider(ctx context.Context, side string) (*telemetry.Provider, error) {
	telemetryConfig := telemetry.TelemetryConfig{
		Enabled:      cfg.TelemetryEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Side:         side,
	}
	return telemetry.NewProvider(ctx, telemetryConfig)
}

func shutdownTelemetry(p *telemetry.Provider) {
	if err := p.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to flush telemetry")
	}
}

func startMetrics(ctx context.Context) {
	if cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// newBackendServer builds the backend for the configured provider and workspace, attached to t
func newBackendServer(t transport.Transport, tel *telemetry.Provider) (*backend.Server, error) {
	responder, err := createResponder(cfg)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.New(cfg.WorkspaceRoot, cfg.ExcludeDirs...)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", responder.Name()).Str("workspace", ws.Root()).Msg("Backend ready")

	return backend.NewServer(t, responder,
		backend.WithResolver(ws),
		backend.WithFilePicker(workspace.NewPicker(ws)),
		backend.WithTelemetry(tel),
		backend.WithMaxPromptTokens(cfg.MaxPromptTokens),
	), nil
}
