package workspace

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

func readPDFText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	return strings.TrimSpace(builder.String()), nil
}
