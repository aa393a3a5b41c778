// Package pipeline orchestrates a video's journey from uploaded source to
// ready-to-stream HLS output: probe, derive ladder, encode each rendition,
// write the master playlist, and persist the result. It owns the
// uploading -> processing -> ready|failed state machine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/vaultstream/vaultstream/internal/blobstore"
	"github.com/vaultstream/vaultstream/internal/event"
	"github.com/vaultstream/vaultstream/internal/metrics"
	"github.com/vaultstream/vaultstream/internal/model"
	"github.com/vaultstream/vaultstream/internal/transcoder"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

// Config controls the orchestrator's resource limits.
type Config struct {
	Workers          int           // worker pool size; New uses 1 when zero or negative
	RenditionTimeout time.Duration // wall-clock ceiling per rendition encode
	SegmentSeconds   int           // fixed HLS segment duration
}

// Orchestrator runs the transcoding pipeline for queued videos. One
// Orchestrator is created per process; Start launches its worker pool and
// performs the crash-recovery requeue scan.
type Orchestrator struct {
	store     videostore.Store
	blobs     blobstore.Storage
	publisher event.Publisher
	cfg       Config
	metrics   *metrics.Metrics

	sem chan struct{}
}

// New creates an Orchestrator. cfg.Workers defaults to 1 if zero or
// negative; callers normally supply internal/config's resolved
// PipelineWorkers (runtime.NumCPU() unless configured) instead.
func New(store videostore.Store, blobs blobstore.Storage, publisher event.Publisher, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics.NewMetrics(),
		sem:       make(chan struct{}, cfg.Workers),
	}
}

// Start performs the crash-recovery requeue scan — every video still in
// "processing" is assumed to be orphaned by a prior crash and is
// re-enqueued from scratch, since every pipeline step from probe onward is
// idempotent. Call this once at boot, before accepting new uploads.
func (o *Orchestrator) Start(ctx context.Context) error {
	cursor := ""
	for {
		videos, next, err := o.store.ListByStatus(ctx, model.StatusProcessing, 100, cursor)
		if err != nil {
			return fmt.Errorf("failed to scan orphaned videos: %w", err)
		}
		for _, v := range videos {
			slog.Info("requeueing orphaned video after restart", "videoId", v.ID)
			o.Enqueue(context.Background(), v.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return nil
}

// Enqueue schedules videoId for processing. It blocks until a worker slot
// is free, then runs the pipeline in a new goroutine so Enqueue itself
// returns quickly to the HTTP handler that called it.
func (o *Orchestrator) Enqueue(ctx context.Context, videoID string) {
	o.metrics.PipelineQueueDepth.Inc()
	o.sem <- struct{}{}
	go func() {
		o.metrics.PipelineQueueDepth.Dec()
		defer func() { <-o.sem }()
		if err := o.run(context.Background(), videoID); err != nil {
			slog.Error("pipeline run failed", "videoId", videoID, "error", err)
		}
	}()
}

// run executes the full pipeline for a single video. Once the video is
// marked processing, errors from any later step transition it to failed
// with ProcessingError set and do not propagate past this function, so a
// processing failure ends in a terminal status rather than leaving the
// video stuck in processing. A failure to load the video or to mark it
// processing is returned without any status change.
func (o *Orchestrator) run(ctx context.Context, videoID string) error {
	v, err := o.store.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load video %s: %w", videoID, err)
	}

	if err := o.store.UpdateStatus(ctx, videoID, v.Status, model.StatusProcessing, nil); err != nil {
		return fmt.Errorf("failed to mark video %s processing: %w", videoID, err)
	}
	o.publisher.PublishVideoProcessing(ctx, *v)

	if err := o.process(ctx, v); err != nil {
		slog.Error("pipeline processing failed", "videoId", videoID, "error", err)
		failErr := o.store.UpdateStatus(ctx, videoID, model.StatusProcessing, model.StatusFailed, func(video *model.Video) {
			video.ProcessingError = err.Error()
		})
		if failErr != nil {
			return fmt.Errorf("failed to mark video %s failed: %w", videoID, failErr)
		}
		if v, getErr := o.store.Get(ctx, videoID); getErr == nil {
			o.publisher.PublishVideoFailed(ctx, *v)
		}
		return nil
	}

	return nil
}

// process runs probe -> ladder -> encode -> manifest -> finalize for one
// video. Finalize persists the ready status and its fields itself; the
// failed transition on error is left to the caller.
func (o *Orchestrator) process(ctx context.Context, v *model.Video) error {
	sourcePath, cleanup, err := o.blobs.Resolve(ctx, v.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to resolve source: %w", err)
	}
	defer cleanup()

	probe, err := transcoder.Probe(ctx, sourcePath)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	ladder := transcoder.DeriveLadder(probe.Height)

	hlsPrefix := path.Join("videos", v.ID, "hls")
	renditionPaths := make(map[string]string)
	var encoded []model.Rendition
	var lastErr error

	for _, rendition := range ladder {
		localOutDir, localCleanup, encodeErr := stageLocalDir(ctx, o.blobs, path.Join(hlsPrefix, rendition.Name))
		if encodeErr != nil {
			lastErr = encodeErr
			continue
		}

		encodeStart := time.Now()
		encodeErr = transcoder.EncodeRendition(ctx, transcoder.EncodeOptions{
			SourcePath:     sourcePath,
			OutputDir:      localOutDir,
			Rendition:      rendition,
			SegmentSeconds: o.cfg.SegmentSeconds,
			Timeout:        o.cfg.RenditionTimeout,
		})
		o.metrics.RenditionEncodeDuration.WithLabelValues(rendition.Name, encodeStatusLabel(encodeErr)).Observe(time.Since(encodeStart).Seconds())
		o.metrics.RenditionEncodeTotal.WithLabelValues(rendition.Name, encodeStatusLabel(encodeErr)).Inc()
		if encodeErr != nil {
			slog.Warn("rendition encode failed, continuing with remaining renditions",
				"videoId", v.ID, "rendition", rendition.Name, "error", encodeErr)
			localCleanup()
			lastErr = encodeErr
			continue
		}

		if err := uploadLocalDir(ctx, o.blobs, localOutDir, hlsPrefix); err != nil {
			localCleanup()
			lastErr = err
			continue
		}
		localCleanup()

		renditionPaths[rendition.Name] = rendition.Name + ".m3u8"
		encoded = append(encoded, rendition)
	}

	if len(encoded) == 0 {
		if lastErr != nil {
			return fmt.Errorf("all renditions failed, last error: %w", lastErr)
		}
		return fmt.Errorf("no renditions were produced")
	}

	master, err := transcoder.WriteMasterPlaylist(encoded, renditionPaths)
	if err != nil {
		return fmt.Errorf("failed to write master playlist: %w", err)
	}

	masterKey := path.Join(hlsPrefix, "master.m3u8")
	if err := o.blobs.Upload(ctx, masterKey, newStringReader(master), int64(len(master)), "application/vnd.apple.mpegurl"); err != nil {
		return fmt.Errorf("failed to upload master playlist: %w", err)
	}

	thumbKey := path.Join("videos", v.ID, "thumbnail.jpg")
	if err := generateAndUploadThumbnail(ctx, o.blobs, sourcePath, thumbKey); err != nil {
		slog.Warn("thumbnail generation failed, continuing without one", "videoId", v.ID, "error", err)
		thumbKey = ""
	}

	err = o.store.UpdateStatus(ctx, v.ID, model.StatusProcessing, model.StatusReady, func(video *model.Video) {
		video.HLSPath = hlsPrefix
		video.MasterPlaylistPath = masterKey
		video.Duration = probe.DurationSeconds
		video.Resolution = model.Resolution{Width: probe.Width, Height: probe.Height}
		video.ThumbnailPath = thumbKey
	})
	if err != nil {
		return fmt.Errorf("failed to mark video ready: %w", err)
	}

	if ready, getErr := o.store.Get(ctx, v.ID); getErr == nil {
		o.publisher.PublishVideoReady(ctx, *ready)
	}

	return nil
}

func encodeStatusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
