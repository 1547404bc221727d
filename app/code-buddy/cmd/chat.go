package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/code-buddy/internal/ledger"
	"github.com/cchalm/code-buddy/internal/protocol"
	"github.com/cchalm/code-buddy/internal/session"
	"github.com/cchalm/code-buddy/internal/transport"
)

var transcriptPath string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Starts an interactive chat in the terminal. Type a query and press enter. Mention workspace files as
@name.ext to include them.

Commands:
  /attach <path>   attach a file to the next query
  /transcript      print the conversation as Markdown
  /quit            leave the chat`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&transcriptPath, "transcript", "", "Write the conversation as Markdown to this file on exit")
	rootCmd.AddCommand(chatCmd)
}

// console serializes output from the input loop and from response callbacks
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) printTurn(turn ledger.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\n%s\n", turn.AIResponse)
	for i, s := range turn.CodeSnippets {
		fmt.Fprintf(c.out, "  [%d] %s (%s, %d lines)\n", i+1, s.Filename(), s.Language, strings.Count(s.Code, "\n")+1)
	}
	fmt.Fprint(c.out, "> ")
}

func runChat(cmd *cobra.Command, _ []string) error {
	if err := requireBackendConfig(); err != nil {
		return err
	}
	ctx, cancel := setupContext()
	defer cancel()

	tel, err := createTelemetryProvider(ctx, "chat")
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tel)
	startMetrics(ctx)

	uiSide, backendSide := transport.Pipe()
	server, err := newBackendServer(backendSide, tel)
	if err != nil {
		return err
	}

	out := &console{out: cmd.OutOrStdout()}
	sess := session.New(uiSide,
		session.WithTelemetry(tel),
		session.WithSettledHandler(out.printTurn),
		session.WithAttachedHandler(func(f protocol.File) {
			out.printf("Attached %s (%d bytes)\n> ", f.Filename, len(f.Content))
		}),
	)

	var wg sync.WaitGroup
	for _, s := range []*transport.Stream{uiSide, backendSide} {
		wg.Add(1)
		go func(s *transport.Stream) {
			defer wg.Done()
			if err := s.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Transport stopped")
			}
		}(s)
	}

	err = chatLoop(ctx, cmd.InOrStdin(), out, sess)

	server.Wait()
	_ = uiSide.Close()
	_ = backendSide.Close()
	wg.Wait()

	if transcriptPath != "" {
		if writeErr := writeTranscript(sess.Ledger(), transcriptPath); writeErr != nil {
			return errors.Join(err, writeErr)
		}
	}
	return err
}

func chatLoop(ctx context.Context, in io.Reader, out *console, sess *session.Session) error {
	scanner := bufio.NewScanner(in)
	out.printf("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			out.printf("> ")
		case line == "/quit":
			return nil
		case line == "/transcript":
			md, err := sess.Ledger().Markdown()
			if err != nil {
				return err
			}
			out.printf("%s\n> ", md)
		case strings.HasPrefix(line, "/attach"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach"))
			if path == "" {
				out.printf("usage: /attach <path>\n> ")
				continue
			}
			if err := sess.PickFile(ctx, path); err != nil {
				return err
			}
		default:
			_, err := sess.Send(ctx, line)
			if errors.Is(err, session.ErrTurnInFlight) {
				out.printf("Still waiting for the previous response\n> ")
				continue
			} else if err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func writeTranscript(l *ledger.Ledger, path string) error {
	md, err := l.Markdown()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(md), 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	log.Info().Str("path", path).Msg("Wrote transcript")
	return nil
}
