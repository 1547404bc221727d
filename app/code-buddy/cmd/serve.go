package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/code-buddy/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend over stdin and stdout",
	Long: `Runs the backend for an editor host. Messages are read from stdin and written to stdout as
newline-delimited JSON. Logs go to stderr.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := requireBackendConfig(); err != nil {
		return err
	}
	ctx, cancel := setupContext()
	defer cancel()

	tel, err := createTelemetryProvider(ctx, "backend")
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)
	startMetrics(ctx)

	stream := transport.NewStream("backend", cmd.InOrStdin(), os.Stdout)
	server, err := newBackendServer(stream, tel)
	if err != nil {
		return err
	}

	log.Info().Msg("Serving on stdio")
	err = stream.Serve(ctx)
	server.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
