package cmd

import (
	"io"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/code-buddy/internal/logging"
)

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "code-buddy",
	Short: "AI chat assistant for code",
	Long: `Code Buddy is a chat assistant for working on code. Queries are answered by a language model, with
attached files and @mentioned workspace files included as context. Code blocks in each response are
extracted as named snippets.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRootConfig,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	// Load .env file
	envErr := godotenv.Load()

	if err := loadConfig(cmd); err != nil {
		return err
	}
	closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	logCloser = closer

	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}
	return nil
}
