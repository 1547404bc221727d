// Package ledger keeps the ordered chat history of a session and settles pending turns as responses arrive.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/cchalm/code-buddy/internal/snippet"
)

// EmptyResponsePlaceholder is recorded when a response arrives with no text, so that the turn still leaves the
// pending state
const EmptyResponsePlaceholder = "(empty response)"

var (
	ErrUnknownTurn = errors.New("unknown turn")
	ErrTurnSettled = errors.New("turn already settled")
)

// Turn is a user query paired with its eventual response and the snippets extracted from it
type Turn struct {
	ID           string            `json:"id"`
	UserQuery    string            `json:"userQuery"`
	AIResponse   string            `json:"aiResponse"` // Empty while the turn is pending
	CodeSnippets []snippet.Snippet `json:"codeSnippets"`
}

// Pending reports whether the turn is still waiting for its response
func (t Turn) Pending() bool {
	return t.AIResponse == ""
}

func (t Turn) clone() Turn {
	t.CodeSnippets = slices.Clone(t.CodeSnippets)
	return t
}

// Ledger is an append-only sequence of turns. Turns are addressed by the correlation id handed out by BeginTurn, so
// any number of turns may be pending at once without a response settling the wrong one.
type Ledger struct {
	mu    sync.Mutex
	turns []Turn
	index map[string]int // turn id -> position in turns

	extractor snippet.Extractor
	newID     func() string
}

// Option configures a Ledger
type Option func(*Ledger)

// WithExtractor parses settled responses with e instead of the fence extractor
func WithExtractor(e snippet.Extractor) Option {
	return func(l *Ledger) { l.extractor = e }
}

// New creates an empty Ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		index:     make(map[string]int),
		extractor: snippet.FenceExtractor{},
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BeginTurn appends a pending turn for userQuery and returns its correlation id
func (l *Ledger) BeginTurn(userQuery string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.newID()
	l.index[id] = len(l.turns)
	l.turns = append(l.turns, Turn{
		ID:           id,
		UserQuery:    userQuery,
		CodeSnippets: []snippet.Snippet{},
	})
	return id
}

// Settle records responseText as the response of the turn with the given id
func (l *Ledger) Settle(id string, responseText string) (Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %s", ErrUnknownTurn, id)
	}
	if !l.turns[i].Pending() {
		return Turn{}, fmt.Errorf("%w: %s", ErrTurnSettled, id)
	}
	l.settle(i, responseText)
	return l.turns[i].clone(), nil
}

// SettleLatest records responseText as the response of the most recently appended turn, by position. It is the
// fallback for responses that carry no correlation id. ok is false if the ledger is empty or the latest turn has
// already been settled.
func (l *Ledger) SettleLatest(responseText string) (turn Turn, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.turns) == 0 {
		return Turn{}, false
	}
	i := len(l.turns) - 1
	if !l.turns[i].Pending() {
		return Turn{}, false
	}
	l.settle(i, responseText)
	return l.turns[i].clone(), true
}

func (l *Ledger) settle(i int, responseText string) {
	if responseText == "" {
		responseText = EmptyResponsePlaceholder
	}
	turn := &l.turns[i]
	turn.AIResponse = responseText
	turn.CodeSnippets = l.extractor.Extract(responseText)
	if turn.CodeSnippets == nil {
		turn.CodeSnippets = []snippet.Snippet{}
	}
}

// Turn returns a copy of the turn with the given id
func (l *Ledger) Turn(id string) (Turn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return Turn{}, false
	}
	return l.turns[i].clone(), true
}

// Turns returns a copy of all turns in the order they were begun
func (l *Ledger) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	turns := make([]Turn, len(l.turns))
	for i, turn := range l.turns {
		turns[i] = turn.clone()
	}
	return turns
}

// Len returns the number of turns
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Pending returns the ids of all turns still waiting for a response, oldest first
func (l *Ledger) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ids []string
	for _, turn := range l.turns {
		if turn.Pending() {
			ids = append(ids, turn.ID)
		}
	}
	return ids
}
