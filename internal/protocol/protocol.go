// Package protocol defines the messages exchanged between the chat UI and the backend.
// Messages are JSON-encoded, one per line.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags a message
type Type string

const (
	// TypeUserMessage (UI to backend) starts a turn
	TypeUserMessage Type = "userMessage"
	// TypePickFile (UI to backend) asks the host to pick a file and report back
	TypePickFile Type = "pickFile"
	// TypeAttachedFiles (backend to UI) is the result of a file pick
	TypeAttachedFiles Type = "attachedFiles"
	// TypeAIResponse (backend to UI) settles a turn
	TypeAIResponse Type = "aiResponse"
)

var ErrMissingType = errors.New("message has no type")

// File is a file payload staged for, or attached to, a request
type File struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Message is the tagged record sent in either direction. Which fields are meaningful depends on Type.
type Message struct {
	Type Type `json:"type"`
	// ID is the correlation id of the turn. Set on userMessage and echoed on the matching aiResponse.
	ID    string `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
	Files []File `json:"files,omitempty"`
	// Path optionally tells the host which file to pick instead of prompting
	Path string `json:"path,omitempty"`
}

// UserMessage builds a userMessage
func UserMessage(id, text string, files ...File) Message {
	return Message{Type: TypeUserMessage, ID: id, Text: text, Files: files}
}

// PickFile builds a pickFile request
func PickFile(path string) Message {
	return Message{Type: TypePickFile, Path: path}
}

// AttachedFiles builds an attachedFiles message
func AttachedFiles(files ...File) Message {
	return Message{Type: TypeAttachedFiles, Files: files}
}

// AIResponse builds an aiResponse
func AIResponse(id, text string) Message {
	return Message{Type: TypeAIResponse, ID: id, Text: text}
}

// Decode parses a single encoded message
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}

// Encode serializes a message without a trailing newline
func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return b, nil
}
