package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/code-buddy/internal/snippet"
)

var extractOutDir string

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract code snippets from a response",
	Long: `Reads a model response from the given file, or stdin, and extracts its fenced code blocks. Snippets are
printed as JSON, or written to --out-dir as one file each, named after their titles.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractOutDir, "out-dir", "", "Write each snippet to a file in this directory")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open response: %w", err)
		}
		defer f.Close()
		in = f
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	snippets := snippet.Extract(string(b))
	if extractOutDir == "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snippets)
	}
	return writeSnippets(extractOutDir, snippets, cmd.OutOrStdout())
}

// writeSnippets writes each snippet to dir. Repeated names get a numeric suffix.
func writeSnippets(dir string, snippets []snippet.Snippet, out io.Writer) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	used := map[string]int{}
	for _, s := range snippets {
		name := s.Filename()
		if n := used[name]; n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
		}
		used[s.Filename()]++

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(s.Code+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write snippet: %w", err)
		}
		log.Debug().Str("path", path).Str("language", s.Language).Msg("Wrote snippet")
		fmt.Fprintln(out, path)
	}
	return nil
}
