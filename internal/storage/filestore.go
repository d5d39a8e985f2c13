package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists uploaded response files under a root directory, nested
// by form id then response id, retaining the original uploaded filename:
//
//	<root>/<formID>/<responseID>/<filename>
//
// Stored paths are recorded relative to the root so the root can move
// between environments. Paths are deterministic; a re-submission of the
// same (response, question, filename) overwrites in place.
type FileStore struct {
	Root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}
	return &FileStore{Root: root}, nil
}

// Save writes one uploaded payload and returns the stored path relative to
// the root. The filename is reduced to its base name so a crafted filename
// cannot escape the response directory.
func (s *FileStore) Save(formID, responseID uint64, filename string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.Clean(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", filename)
	}

	rel := filepath.Join(fmt.Sprintf("%d", formID), fmt.Sprintf("%d", responseID), base)
	abs := filepath.Join(s.Root, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create response directory: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", rel, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return rel, nil
}

// Resolve maps a stored (root-relative) path back to an absolute path,
// rejecting anything that would resolve outside the root.
func (s *FileStore) Resolve(stored string) (string, error) {
	abs := filepath.Join(s.Root, filepath.Clean(stored))
	rootAbs, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	fullAbs, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("stored path %q escapes the upload root", stored)
	}
	return fullAbs, nil
}

// Exists reports whether a stored path currently has a backing file.
// A record in the database with no backing file is a dangling reference
// the caller downgrades to not-found.
func (s *FileStore) Exists(stored string) bool {
	abs, err := s.Resolve(stored)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}
