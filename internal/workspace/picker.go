package workspace

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cchalm/code-buddy/internal/protocol"
)

// FileSource is the file access a Picker needs
type FileSource interface {
	ReadOnlyFileSystem

	// FindFile returns the path of the first file named name, or ErrFileNotFound
	FindFile(ctx context.Context, name string) (string, error)
}

// Picker answers pickFile requests by reading the hinted files from a FileSource
type Picker struct {
	fs FileSource
}

// NewPicker returns a picker over fs
func NewPicker(fs FileSource) *Picker {
	return &Picker{fs: fs}
}

// PickFiles returns the file named by hint. An empty hint selects nothing, like a dismissed dialog. A hint naming
// a directory selects the files directly inside it, in lexical order. Any other hint that is not a path in the
// workspace is searched for by name.
func (p *Picker) PickFiles(ctx context.Context, hint string) ([]protocol.File, error) {
	if hint == "" {
		return nil, nil
	}

	isDir, err := p.fs.IsDir(ctx, hint)
	if err != nil {
		return nil, err
	}
	if isDir {
		return p.pickDir(ctx, hint)
	}

	target := hint
	exists, err := p.fs.FileExists(ctx, hint)
	if err != nil {
		return nil, err
	}
	if !exists {
		found, err := p.fs.FindFile(ctx, hint)
		if errors.Is(err, ErrFileNotFound) {
			log.Debug().Str("hint", hint).Msg("No file matches pick hint")
			return nil, nil
		} else if err != nil {
			return nil, err
		}
		target = found
	}

	content, err := p.fs.Read(ctx, target)
	if err != nil {
		return nil, err
	}
	return []protocol.File{{Filename: filepath.Base(filepath.FromSlash(target)), Content: content}}, nil
}

func (p *Picker) pickDir(ctx context.Context, dir string) ([]protocol.File, error) {
	entries, err := p.fs.ListDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	var files []protocol.File
	for _, name := range entries {
		if strings.HasSuffix(name, "/") {
			continue
		}
		content, err := p.fs.Read(ctx, path.Join(filepath.ToSlash(dir), name))
		if err != nil {
			return nil, err
		}
		files = append(files, protocol.File{Filename: name, Content: content})
	}
	if len(files) == 0 {
		log.Debug().Str("dir", dir).Msg("Picked directory holds no files")
	}
	return files, nil
}
