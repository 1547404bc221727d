package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Directories never searched for mentioned files
var defaultExcludes = []string{"node_modules", "vendor", ".git"}

// Workspace is a directory on the local disk
type Workspace struct {
	root    string
	exclude map[string]struct{}
}

var _ FileSource = (*Workspace)(nil)

// New opens the workspace rooted at root. exclude names directories skipped by FindFile in addition to
// node_modules, vendor and .git.
func New(root string, exclude ...string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	ex := map[string]struct{}{}
	for _, dir := range append(append([]string{}, defaultExcludes...), exclude...) {
		if dir = strings.TrimSpace(dir); dir != "" {
			ex[dir] = struct{}{}
		}
	}
	return &Workspace{root: abs, exclude: ex}, nil
}

// Root returns the absolute path of the workspace
func (w *Workspace) Root() string {
	return w.root
}

// resolve maps a workspace-relative or absolute path to an absolute path inside the root
func (w *Workspace) resolve(path string) (string, error) {
	p := filepath.FromSlash(path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return p, nil
}

// Read returns the text of the file at path. PDF documents are converted to plain text.
func (w *Workspace) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(filepath.Ext(p), ".pdf") {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return readPDFText(p)
	}

	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	} else if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

// FileExists returns true if a regular file exists at path
func (w *Workspace) FileExists(_ context.Context, path string) (bool, error) {
	p, err := w.resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// IsDir returns true if a directory exists at dir
func (w *Workspace) IsDir(_ context.Context, dir string) (bool, error) {
	p, err := w.resolve(dir)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// ListDir lists the entries of dir in lexical order
func (w *Workspace) ListDir(_ context.Context, dir string) ([]string, error) {
	p, err := w.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dir)
	} else if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// FindFile walks the workspace in lexical order and returns the slash-separated relative path of the first
// file whose path is name or ends with "/"+name.
func (w *Workspace) FindFile(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrFileNotFound)
	}

	var found string
	errFound := errors.New("found")
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than failing the whole search
			if d != nil && d.IsDir() && p != w.root {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if _, skip := w.exclude[d.Name()]; skip && p != w.root {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == name || strings.HasSuffix(rel, "/"+name) {
			found = rel
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return found, nil
	} else if err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

// ResolveMention finds and reads the file a query refers to as @name
func (w *Workspace) ResolveMention(ctx context.Context, name string) (string, bool, error) {
	path, err := w.FindFile(ctx, name)
	if errors.Is(err, ErrFileNotFound) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	content, err := w.Read(ctx, path)
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}
