package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore writes objects below a root directory. The HTTP server
// serves that directory under baseURL.
type FileSystemStore struct {
	root    string
	baseURL string
}

// NewFileSystemStore creates the root directory if needed.
func NewFileSystemStore(root, baseURL string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &FileSystemStore{root: root, baseURL: baseURL}, nil
}

// Root is the directory objects are written to.
func (s *FileSystemStore) Root() string { return s.root }

// Put writes the object atomically (temp file + rename).
func (s *FileSystemStore) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	destPath := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return joinURL(s.baseURL, key), nil
}

func (s *FileSystemStore) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// ValidateSetup verifies that the root exists and is a directory.
func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("media root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", s.root)
	}
	return nil
}

// ctxReader stops a copy once the request is abandoned.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Store = (*FileSystemStore)(nil)
