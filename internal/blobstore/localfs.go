package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// localFS stores objects as regular files under root, using the key
// (already slash-separated, e.g. "videos/<id>/source.mp4") as a relative
// path. Intended for development and single-node deployments.
type localFS struct {
	root string
}

// NewLocalFS creates a local-filesystem backend rooted at root. root is
// created if it doesn't already exist.
func NewLocalFS(root string) (Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return withMetrics(&localFS{root: root}), nil
}

func (l *localFS) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *localFS) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dest := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (l *localFS) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (l *localFS) Exists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *localFS) DeleteDirectory(ctx context.Context, prefix string) error {
	err := os.RemoveAll(l.path(prefix))
	if err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", prefix, err)
	}
	return nil
}

// Resolve returns the real on-disk path directly: no staging copy is
// needed since the backend already is the local filesystem.
func (l *localFS) Resolve(ctx context.Context, key string) (string, func(), error) {
	p := l.path(key)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return p, func() {}, nil
}
