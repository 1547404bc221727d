package ledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed transcript.tmpl
var transcriptTemplate string

type transcriptData struct {
	Turns []Turn
}

// Markdown renders the ledger as a Markdown transcript
func (l *Ledger) Markdown() (string, error) {
	return RenderMarkdown(l.Turns())
}

// RenderMarkdown renders turns as a Markdown transcript
func RenderMarkdown(turns []Turn) (string, error) {
	funcMap := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
		// fence returns a backtick run longer than any run inside code, so the snippet can't close its own block
		"fence": func(code string) string {
			longest, run := 0, 0
			for _, r := range code {
				if r == '`' {
					run++
					longest = max(longest, run)
				} else {
					run = 0
				}
			}
			return strings.Repeat("`", max(3, longest+1))
		},
	}

	tmpl, err := template.New("transcript").Funcs(funcMap).Parse(transcriptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse transcript template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, transcriptData{Turns: turns}); err != nil {
		return "", fmt.Errorf("failed to execute transcript template: %w", err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}
