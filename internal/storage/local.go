package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps snapshot documents as JSON files under a base directory
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a file based store rooted at dir
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create knowledge directory %s: %w", dir, err)
	}
	return &LocalStore{baseDir: dir}, nil
}

// Load reads the snapshot for key. A missing or zero-length file is not found.
func (s *LocalStore) Load(ctx context.Context, key Key) (Result, error) {
	filename := s.Location(key)

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound(), nil
		}
		return Result{}, fmt.Errorf("failed to stat knowledge file: %w", err)
	}
	if info.Size() == 0 {
		return notFound(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return DecodeDocument(data), nil
}

// Save replaces the file for key. The new document is written to a temporary
// file first so a failed write never truncates the previous snapshot.
func (s *LocalStore) Save(ctx context.Context, key Key, snapshot Snapshot) error {
	data, err := EncodeDocument(snapshot)
	if err != nil {
		return err
	}

	filename := s.Location(key)
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create knowledge directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".knowledge-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary knowledge file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write knowledge file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write knowledge file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set knowledge file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to replace knowledge file: %w", err)
	}
	return nil
}

// Location returns the file path of the snapshot for key
func (s *LocalStore) Location(key Key) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key.Path()))
}
