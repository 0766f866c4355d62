// Package world gives handlers read access to the workspace the primary
// agent works in. Paths are always relative to the workspace root and may
// not leave it.
package world

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxFileSize bounds files added to the chat.
const DefaultMaxFileSize = 512 * 1024

var (
	ErrOutsideWorkspace = errors.New("path is outside the workspace")
	ErrNotFound         = errors.New("file not found")
	ErrNotRegular       = errors.New("not a regular file")
	ErrTooLarge         = errors.New("file too large")
	ErrBinary           = errors.New("file is not text")
)

// Workspace reads files under a root directory.
type Workspace struct {
	root    string
	maxSize int64
}

// NewWorkspace opens root. An empty root is the working directory.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", abs)
	}
	return &Workspace{root: abs, maxSize: DefaultMaxFileSize}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// SetMaxFileSize changes the size bound used by Read.
func (w *Workspace) SetMaxFileSize(n int64) {
	w.maxSize = n
}

// Resolve maps a workspace-relative path to an absolute one and returns the
// cleaned relative form. Absolute paths are accepted when they lie under the root.
func (w *Workspace) Resolve(path string) (abs, rel string, err error) {
	p := filepath.FromSlash(strings.TrimSpace(path))
	if p == "" {
		return "", "", fmt.Errorf("%q: %w", path, ErrNotFound)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}

	rel, err = filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	return p, filepath.ToSlash(rel), nil
}

// Exists reports whether path names a regular file inside the workspace.
func (w *Workspace) Exists(path string) bool {
	abs, _, err := w.Resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the text content of a workspace file and its cleaned relative path.
func (w *Workspace) Read(path string) (content, rel string, err error) {
	abs, rel, err := w.Resolve(path)
	if err != nil {
		return "", "", err
	}

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", rel, fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		return "", rel, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", rel, err
	}
	if !info.Mode().IsRegular() {
		return "", rel, fmt.Errorf("%s: %w", rel, ErrNotRegular)
	}
	if w.maxSize > 0 && info.Size() > w.maxSize {
		return "", rel, fmt.Errorf("%s (%d bytes): %w", rel, info.Size(), ErrTooLarge)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", rel, err
	}
	if !utf8.Valid(data) || strings.IndexByte(string(data), 0) >= 0 {
		return "", rel, fmt.Errorf("%s: %w", rel, ErrBinary)
	}
	return string(data), rel, nil
}
