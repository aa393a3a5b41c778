package blobstore

import (
	"context"
	"io"
	"time"

	"github.com/vaultstream/vaultstream/internal/metrics"
)

// instrumented wraps a Storage backend and records per-operation counts and
// durations, so the local-fs and S3 backends don't each need to duplicate
// the bookkeeping.
type instrumented struct {
	inner   Storage
	metrics *metrics.Metrics
}

// withMetrics decorates a backend with Prometheus instrumentation.
func withMetrics(inner Storage) Storage {
	return &instrumented{inner: inner, metrics: metrics.NewMetrics()}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	i.metrics.BlobstoreOperationTotal.WithLabelValues(op, status).Inc()
	i.metrics.BlobstoreOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	start := time.Now()
	err := i.inner.Upload(ctx, key, r, size, contentType)
	i.observe("upload", start, err)
	return err
}

func (i *instrumented) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.inner.Download(ctx, key)
	i.observe("download", start, err)
	return rc, err
}

func (i *instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.inner.Exists(ctx, key)
	i.observe("exists", start, err)
	return ok, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.inner.Delete(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) DeleteDirectory(ctx context.Context, prefix string) error {
	start := time.Now()
	err := i.inner.DeleteDirectory(ctx, prefix)
	i.observe("delete_directory", start, err)
	return err
}

func (i *instrumented) Resolve(ctx context.Context, key string) (string, func(), error) {
	start := time.Now()
	path, cleanup, err := i.inner.Resolve(ctx, key)
	i.observe("resolve", start, err)
	return path, cleanup, err
}
