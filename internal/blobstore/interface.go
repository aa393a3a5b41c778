// Package blobstore abstracts the storage backend videos and their derived
// HLS output live on. The upload handler stores source files through it,
// the Pipeline Orchestrator uploads renditions through it, and the HLS
// Server reads playlists and segments back through it.
// Two backends are provided: a local-filesystem backend for development and
// single-node deployments, and an S3-compatible backend for production.
package blobstore

import (
	"context"
	"io"
)

// Storage is implemented by every blobstore backend.
type Storage interface {
	// Upload writes size bytes read from r to key, overwriting any existing
	// object at that key.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Download returns a stream positioned at the start of key's object.
	// Callers must Close the returned ReadCloser.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is present, verified against the backend
	// itself (a stat on the local backend, a HeadObject on S3) rather than
	// any local cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes a single object. Deleting a key that doesn't exist is
	// not an error — delete is idempotent.
	Delete(ctx context.Context, key string) error

	// DeleteDirectory removes every object whose key has the given prefix.
	// Used to clean up a video's full rendition tree on deletion.
	DeleteDirectory(ctx context.Context, prefix string) error

	// Resolve stages key onto the local filesystem and returns its path,
	// so ffprobe/ffmpeg (which only understand local files) can operate on
	// it regardless of backend. cleanup removes any staged copy; it is a
	// no-op for the local backend, where Resolve returns the real path.
	Resolve(ctx context.Context, key string) (path string, cleanup func(), err error)
}
