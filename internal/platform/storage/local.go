// Package storage persists uploaded files (avatars, report documents) on
// local disk and hands back the relative path stored on the owning row.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type FileStore interface {
	// Save writes the stream under the given subdirectory and returns the
	// stored relative path.
	Save(subdir, originalName string, r io.Reader) (string, error)
	Remove(relPath string) error
}

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Save(subdir, originalName string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dir: %w", err)
	}

	name := uuid.NewString() + sanitizeExt(originalName)
	full := filepath.Join(dir, name)

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(subdir, name)), nil
}

func (s *LocalStore) Remove(relPath string) error {
	clean := filepath.Clean(relPath)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid path: %s", relPath)
	}
	return os.Remove(filepath.Join(s.root, clean))
}

// sanitizeExt keeps the original extension when it looks harmless.
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf":
		return ext
	default:
		return ""
	}
}
