package pipeline

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vaultstream/vaultstream/internal/blobstore"
	"github.com/vaultstream/vaultstream/internal/transcoder"
)

// stageLocalDir creates a local scratch directory for ffmpeg to write a
// rendition's segments and playlist into, regardless of the configured
// blobstore backend — ffmpeg only understands local paths.
func stageLocalDir(ctx context.Context, storage blobstore.Storage, key string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "vaultstream-rendition-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create staging dir for %s: %w", key, err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	return dir, cleanup, nil
}

// uploadLocalDir uploads every file under localDir to the blobstore,
// keyed by keyPrefix joined with the file's name relative to localDir.
func uploadLocalDir(ctx context.Context, storage blobstore.Storage, localDir, keyPrefix string) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("failed to read staged rendition dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		localPath := filepath.Join(localDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", localPath, err)
		}

		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", localPath, err)
		}

		key := path.Join(keyPrefix, entry.Name())
		contentType := mime.TypeByExtension(filepath.Ext(entry.Name()))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		err = storage.Upload(ctx, key, f, info.Size(), contentType)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
	}

	return nil
}

// newStringReader returns an io.Reader over a string, for uploading
// in-memory content (the master playlist) without staging it to disk.
func newStringReader(s string) io.Reader {
	return strings.NewReader(s)
}

// generateAndUploadThumbnail extracts a single frame and uploads it to
// thumbKey. Any failure here is non-fatal to the pipeline as a whole.
func generateAndUploadThumbnail(ctx context.Context, storage blobstore.Storage, sourcePath, thumbKey string) error {
	tmp, err := os.CreateTemp("", "vaultstream-thumb-*.jpg")
	if err != nil {
		return fmt.Errorf("failed to create thumbnail temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := transcoder.GenerateThumbnail(ctx, sourcePath, tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open generated thumbnail: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat generated thumbnail: %w", err)
	}

	return storage.Upload(ctx, thumbKey, f, info.Size(), "image/jpeg")
}
