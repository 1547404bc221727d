// Package workspace gives read access to the files of the project the user is chatting about.
package workspace

import (
	"context"
	"errors"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrOutsideRoot  = errors.New("path is outside the workspace root")
)

// ReadOnlyFileSystem is a basic interface for reading files. Paths are relative to the workspace root.
type ReadOnlyFileSystem interface {
	// Read reads the content of a file at the given path
	Read(ctx context.Context, path string) (string, error)

	// FileExists returns true if the file at the given path exists, false otherwise
	FileExists(ctx context.Context, path string) (bool, error)

	// IsDir returns true if the given path is a directory, false otherwise
	IsDir(ctx context.Context, dir string) (bool, error)

	// ListDir lists all entries in the given directory. Directories carry a trailing slash.
	ListDir(ctx context.Context, dir string) ([]string, error)
}
