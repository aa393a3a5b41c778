// cmd/vaultstreamd/main.go
// Package main implements the entry point for the VaultStream service.
// It initializes every component — storage, blobstore, signer, event
// publisher, and the pipeline orchestrator's crash-recovery scan — then
// starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaultstream/vaultstream/internal/access"
	"github.com/vaultstream/vaultstream/internal/bearerauth"
	"github.com/vaultstream/vaultstream/internal/blobstore"
	"github.com/vaultstream/vaultstream/internal/config"
	"github.com/vaultstream/vaultstream/internal/event"
	"github.com/vaultstream/vaultstream/internal/hlsserver"
	"github.com/vaultstream/vaultstream/internal/pipeline"
	"github.com/vaultstream/vaultstream/internal/server"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/telemetry"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	_, err = telemetry.InitTracer("vaultstream")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	var store videostore.Store
	if cfg.DatabaseDSN != "" {
		store, err = videostore.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres videostore", "error", err)
			os.Exit(1)
		}
	} else {
		store = videostore.NewMemory()
	}

	var blobs blobstore.Storage
	if cfg.StorageBackend == "s3" {
		blobs, err = blobstore.NewS3(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey, cfg.ScratchDir)
		if err != nil {
			logger.Error("failed to initialize s3 blobstore", "error", err)
			os.Exit(1)
		}
	} else {
		blobs, err = blobstore.NewLocalFS(cfg.StorageRoot)
		if err != nil {
			logger.Error("failed to initialize local blobstore", "error", err)
			os.Exit(1)
		}
	}

	publisher := event.NewPublisherFromEnv(cfg.NATSURL)
	defer publisher.Close()

	tokenTTL := time.Duration(cfg.TokenTTLSeconds) * time.Second
	signerInstance := signer.New(cfg.SignerSecret, tokenTTL)
	auth := bearerauth.NewVerifier(cfg.SignerSecret)

	orchestrator := pipeline.New(store, blobs, publisher, pipeline.Config{
		Workers:          cfg.PipelineWorkers,
		RenditionTimeout: time.Duration(cfg.RenditionTimeoutSeconds) * time.Second,
		SegmentSeconds:   cfg.HLSSegmentSeconds,
	})

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := orchestrator.Start(startCtx); err != nil {
		logger.Error("crash-recovery requeue scan failed", "error", err)
	}
	startCancel()

	gate := access.New(store, signerInstance)
	hls := hlsserver.New(store, blobs, signerInstance)

	mux := server.NewMux(server.Deps{
		Store:              store,
		Blobs:              blobs,
		Orchestrator:       orchestrator,
		Gate:               gate,
		HLS:                hls,
		Auth:               auth,
		MaxUploadBytes:     cfg.MaxUploadMiB * 1024 * 1024,
		AllowedExtensions:  cfg.AllowedSourceExtensions,
		BcryptCost:         cfg.BcryptCost,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // segment/playlist responses can legitimately stream for a while
	}

	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env, "storageBackend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	if closer, ok := store.(interface{ Close() }); ok {
		closer.Close()
	}

	logger.Info("server exited")
}
