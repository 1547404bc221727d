// Package snippet extracts titled, language-tagged code snippets from AI responses.
package snippet

import "strings"

const (
	fenceMarker     = "```"
	titleMarker     = "**"
	DefaultLanguage = "plaintext"
)

// EventKind classifies a line produced by the Tokenizer
type EventKind int

const (
	// EventTitle is a bold title line seen outside a fence. Text holds the title.
	EventTitle EventKind = iota
	// EventFenceOpen starts a fence. Text holds the language tag.
	EventFenceOpen
	// EventContent is a line inside a fence. Text holds the line verbatim.
	EventContent
	// EventFenceClose ends the open fence.
	EventFenceClose
)

func (k EventKind) String() string {
	switch k {
	case EventTitle:
		return "title"
	case EventFenceOpen:
		return "fence_open"
	case EventContent:
		return "content"
	case EventFenceClose:
		return "fence_close"
	default:
		return "unknown"
	}
}

// Event is a single classified line
type Event struct {
	Kind EventKind
	Text string
}

// Tokenizer classifies the lines of a text buffer one at a time. It looks at nothing beyond the current line and
// cannot be rewound. Prose lines outside of fences are skipped and never surface as events.
type Tokenizer struct {
	rest    string
	done    bool
	inFence bool
}

// NewTokenizer returns a Tokenizer positioned at the first line of text
func NewTokenizer(text string) *Tokenizer {
	return &Tokenizer{rest: text}
}

// InFence reports whether the most recently returned event left a fence open
func (t *Tokenizer) InFence() bool {
	return t.inFence
}

// Next returns the next event. ok is false once the buffer is exhausted.
func (t *Tokenizer) Next() (ev Event, ok bool) {
	for {
		line, more := t.nextLine()
		if !more {
			return Event{}, false
		}
		if ev, ok := t.classify(line); ok {
			return ev, true
		}
	}
}

func (t *Tokenizer) nextLine() (string, bool) {
	if t.done {
		return "", false
	}
	line, rest, found := strings.Cut(t.rest, "\n")
	if !found {
		t.done = true
	}
	t.rest = rest
	return strings.TrimSuffix(line, "\r"), true
}

// classify applies the precedence rules: title (outside fences only), fence marker, fence content, prose
func (t *Tokenizer) classify(line string) (Event, bool) {
	if !t.inFence {
		if title, ok := parseTitle(line); ok {
			return Event{Kind: EventTitle, Text: title}, true
		}
	}

	if strings.HasPrefix(line, fenceMarker) {
		if t.inFence {
			t.inFence = false
			return Event{Kind: EventFenceClose}, true
		}
		t.inFence = true
		lang := strings.TrimSpace(strings.TrimPrefix(line, fenceMarker))
		if lang == "" {
			lang = DefaultLanguage
		}
		return Event{Kind: EventFenceOpen, Text: lang}, true
	}

	if t.inFence {
		return Event{Kind: EventContent, Text: line}, true
	}

	return Event{}, false
}

// parseTitle matches a line that starts with a paired bold marker, e.g. "**Fix the loop** (optional trailer)"
func parseTitle(line string) (string, bool) {
	if !strings.HasPrefix(line, titleMarker) {
		return "", false
	}
	inner := line[len(titleMarker):]
	end := strings.Index(inner, titleMarker)
	if end < 0 {
		return "", false
	}
	return inner[:end], true
}
