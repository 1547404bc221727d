package snippet

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Snippet is one parsed fence: the title that preceded it, its language tag, and its trimmed code
type Snippet struct {
	Title    string `json:"title"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Extractor defines the interface for extracting snippets from text
type Extractor interface {
	Extract(text string) []Snippet
}

// FenceExtractor implements Extractor with the line Tokenizer
type FenceExtractor struct{}

// Extract implements Extractor
func (FenceExtractor) Extract(text string) []Snippet {
	return Extract(text)
}

// Extract parses text and returns its snippets in the order their fences close. It never fails: malformed input
// produces fewer snippets or snippets with empty titles. A title applies only to the next completed snippet.
func Extract(text string) []Snippet {
	snippets := []Snippet{}

	var (
		currentTitle string
		language     string
		code         strings.Builder
	)

	tok := NewTokenizer(text)
	for {
		ev, ok := tok.Next()
		if !ok {
			break
		}
		switch ev.Kind {
		case EventTitle:
			currentTitle = ev.Text
		case EventFenceOpen:
			language = ev.Text
			code.Reset()
		case EventContent:
			if code.Len() > 0 {
				code.WriteByte('\n')
			}
			code.WriteString(ev.Text)
		case EventFenceClose:
			snippets = append(snippets, Snippet{
				Title:    currentTitle,
				Language: language,
				Code:     strings.TrimSpace(code.String()),
			})
			currentTitle = ""
		}
	}

	// An unterminated fence is dropped along with its content
	if tok.InFence() {
		log.Debug().Str("language", language).Int("snippets", len(snippets)).Msg("Dropping unterminated fence")
	}
	return snippets
}

var (
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9]+`)
	fileLikeTitle = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*\.[A-Za-z0-9]+$`)
)

// Filename suggests a file name for writing the snippet to disk. A title that is already a file name is used as
// is. Otherwise the title is slugged, falling back to a short hash of the code.
func (s Snippet) Filename() string {
	if fileLikeTitle.MatchString(s.Title) {
		return s.Title
	}
	ext := languageToExt(s.Language)
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s.Title), "_"), "_")
	if slug == "" {
		hash := fmt.Sprintf("%x", md5.Sum([]byte(s.Code)))[:8]
		slug = "snippet_" + hash
	}
	return slug + "." + ext
}

// languageToExt maps fence language tags to their typical file extensions
func languageToExt(lang string) string {
	switch strings.ToLower(lang) {
	case "go", "golang":
		return "go"
	case "python", "py":
		return "py"
	case "bash", "shell", "sh", "zsh":
		return "sh"
	case "javascript", "js":
		return "js"
	case "jsx":
		return "jsx"
	case "typescript", "ts":
		return "ts"
	case "tsx":
		return "tsx"
	case "json":
		return "json"
	case "html":
		return "html"
	case "css":
		return "css"
	case "java":
		return "java"
	case "cpp", "c++":
		return "cpp"
	case "c":
		return "c"
	case "rust", "rs":
		return "rs"
	case "yaml", "yml":
		return "yaml"
	case "sql":
		return "sql"
	default:
		return "txt"
	}
}
