// Package media stores uploaded story images and videos and returns their
// public URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Delete and Open for unknown keys.
var ErrNotFound = errors.New("media object not found")

// Store is a blob store for uploaded media.
type Store interface {
	// Put stores size bytes read from r under key and returns a stable public URL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// ValidateSetup verifies the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// Folder groups objects by media kind.
type Folder string

const (
	FolderImages Folder = "images"
	FolderVideos Folder = "videos"
)

// NewKey builds an object key of the form <folder>/<unix-ms>-<uuid><ext>,
// keeping the original file extension.
func NewKey(folder Folder, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return fmt.Sprintf("%s/%d-%s%s", folder, now.UnixMilli(), uuid.NewString(), ext)
}

// validKey rejects keys that could escape the store root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid media key %q", key)
	}
	return nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
