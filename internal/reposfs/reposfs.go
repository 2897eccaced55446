// Package reposfs provides the narrow filesystem surface a repository
// driver needs: reading a repository's files by relative path, listing a
// directory's entries, writing a single restored file atomically, and
// creating output directories. It deliberately does not support symlink
// confinement; every path a driver resolves is derived from a hex digest or
// enumerated directly from the repository tree, never taken verbatim from
// untrusted input.
package reposfs

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/duskline/vaultreader/ioutil"
	"github.com/duskline/vaultreader/ioutil/atomic"
)

// maxReadFileSize bounds a single ReadFile call so that a corrupted or
// hostile repository file (chunks and pack files are read at sizes the
// repository's own metadata dictates, not sizes this engine chooses) can't
// force an unbounded allocation.
const maxReadFileSize = 1 << 30 // 1 GiB

// FS roots every operation at a single repository directory on the local
// filesystem.
type FS struct {
	root string
}

// Open roots an FS at dir, verifying it exists and is a directory.
func Open(dir string) (*FS, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reposfs: opening repository root %q: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("reposfs: repository root %q is not a directory", dir)
	}
	return &FS{root: dir}, nil
}

// Root returns the directory this FS is rooted at, exactly as passed to Open.
func (f *FS) Root() string {
	return f.root
}

// ReadFile reads the full contents of the file at the given repository-
// relative path, capped at maxReadFileSize.
func (f *FS) ReadFile(relPath string) ([]byte, error) {
	file, err := os.Open(filepath.Join(f.root, relPath))
	if err != nil {
		return nil, fmt.Errorf("reposfs: reading %q: %w", relPath, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := ioutil.LimitCopy(&buf, file, maxReadFileSize); err != nil {
		return nil, fmt.Errorf("reposfs: reading %q: %w", relPath, err)
	}
	return buf.Bytes(), nil
}

// ReadDir lists the entries of the directory at the given repository-
// relative path, sorted by name.
func (f *FS) ReadDir(relPath string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, relPath))
	if err != nil {
		return nil, fmt.Errorf("reposfs: listing %q: %w", relPath, err)
	}
	return entries, nil
}

// Stat returns file information for the given repository-relative path.
func (f *FS) Stat(relPath string) (fs.FileInfo, error) {
	fi, err := os.Stat(filepath.Join(f.root, relPath))
	if err != nil {
		return nil, fmt.Errorf("reposfs: statting %q: %w", relPath, err)
	}
	return fi, nil
}

// OutputWriter roots restore output at a separate directory, kept distinct
// from the repository FS so a driver can never accidentally write back
// into the repository it is reading from.
type OutputWriter struct {
	root string
}

// NewOutputWriter roots an OutputWriter at dir, creating it if necessary.
func NewOutputWriter(dir string) (*OutputWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reposfs: creating output directory %q: %w", dir, err)
	}
	return &OutputWriter{root: dir}, nil
}

// WriteFile atomically writes data to the given output-relative path,
// creating any intermediate directories it needs.
func (w *OutputWriter) WriteFile(relPath string, data []byte) error {
	target := filepath.Join(w.root, relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("reposfs: creating parent directories for %q: %w", relPath, err)
	}
	if err := atomic.WriteFile(target, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("reposfs: writing %q: %w", relPath, err)
	}
	return nil
}

// MkdirAll creates the given output-relative directory and any parents.
func (w *OutputWriter) MkdirAll(relPath string) error {
	if err := os.MkdirAll(filepath.Join(w.root, relPath), 0o755); err != nil {
		return fmt.Errorf("reposfs: creating directory %q: %w", relPath, err)
	}
	return nil
}
