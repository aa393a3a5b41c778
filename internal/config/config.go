// Package config provides configuration loading and management for VaultStream.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// It loads .env and .env.local from the working directory if they exist,
// whatever the deployment environment; without them only system environment
// variables are used.
// godotenv.Load() does not override already-set environment variables,
// preserving OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for VaultStream.
type Config struct {
	Env  string // Deployment environment (dev, staging, prod)
	Port string // HTTP server port

	DatabaseDSN string // Postgres DSN; empty selects the in-memory videostore
	NATSURL     string // NATS server URL; empty selects the noop event publisher

	StorageBackend string // "local" or "s3"
	StorageRoot    string // local backend root directory
	ScratchDir     string // upload staging / S3 resolve() staging directory
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string

	SignerSecret       string // HMAC secret, must be >= 32 bytes unless Env is dev or test
	TokenTTLSeconds    int64  // default signed-URL lifetime
	BcryptCost         int    // passphrase-hash cost parameter

	AllowedSourceExtensions []string // enumerated allowed upload container extensions
	MaxUploadMiB            int64

	HLSSegmentSeconds int // fixed HLS segment duration

	PipelineWorkers          int   // worker pool size bounding concurrent pipelines
	RenditionTimeoutSeconds  int64 // wall-clock ceiling per rendition encode

	// CORSAllowedOrigins is consumed by the deployment layer in front of
	// this service; the core only carries it through so a real deployment
	// has somewhere to read it from. Segment endpoints (/stream/...)
	// should be exempted from whatever rate limiter is installed there —
	// segment bursts are expected traffic, not abuse.
	CORSAllowedOrigins []string
}

const (
	defaultPort              = "8080"
	defaultEnv               = "dev"
	defaultS3Region          = "us-east-1"
	defaultTokenTTLSeconds   = 3600
	defaultBcryptCost        = 10
	defaultMaxUploadMiB      = 2048
	defaultHLSSegmentSeconds = 4
	defaultRenditionTimeout  = 3600
)

var defaultAllowedExtensions = []string{"mp4", "mov", "avi", "mkv", "webm"}

// Load reads environment variables and produces a Config suitable for wiring
// the service. Returns an error if required parameters are missing or
// invalid — a production-mode boot MUST refuse a missing or short signer
// secret rather than silently running unsigned.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Env = getEnv("VAULTSTREAM_ENV", defaultEnv)
	cfg.Port = getEnv("VAULTSTREAM_PORT", defaultPort)
	cfg.DatabaseDSN = getEnv("VAULTSTREAM_DATABASE_DSN", "")
	cfg.NATSURL = getEnv("VAULTSTREAM_NATS_URL", "")

	cfg.StorageBackend = getEnv("VAULTSTREAM_STORAGE_BACKEND", "local")
	cfg.StorageRoot = getEnv("VAULTSTREAM_STORAGE_ROOT", "./data/videos")
	cfg.ScratchDir = getEnv("VAULTSTREAM_SCRATCH_DIR", "./data/scratch")
	cfg.S3Endpoint = getEnv("VAULTSTREAM_S3_ENDPOINT", "")
	cfg.S3Region = getEnv("VAULTSTREAM_S3_REGION", defaultS3Region)
	cfg.S3Bucket = getEnv("VAULTSTREAM_S3_BUCKET", "")
	cfg.S3AccessKey = getEnv("VAULTSTREAM_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("VAULTSTREAM_S3_SECRET_KEY", "")

	cfg.SignerSecret = getEnv("VAULTSTREAM_SIGNER_SECRET", "")

	if ttl, exists := os.LookupEnv("VAULTSTREAM_TOKEN_TTL_SECONDS"); exists {
		v, err := strconv.ParseInt(ttl, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAULTSTREAM_TOKEN_TTL_SECONDS: %w", err)
		}
		cfg.TokenTTLSeconds = v
	} else {
		cfg.TokenTTLSeconds = defaultTokenTTLSeconds
	}

	if cost, exists := os.LookupEnv("VAULTSTREAM_BCRYPT_COST"); exists {
		v, err := strconv.Atoi(cost)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAULTSTREAM_BCRYPT_COST: %w", err)
		}
		cfg.BcryptCost = v
	} else {
		cfg.BcryptCost = defaultBcryptCost
	}

	if exts, exists := os.LookupEnv("VAULTSTREAM_ALLOWED_EXTENSIONS"); exists {
		cfg.AllowedSourceExtensions = splitTrim(exts)
	} else {
		cfg.AllowedSourceExtensions = defaultAllowedExtensions
	}

	if maxMiB, exists := os.LookupEnv("VAULTSTREAM_MAX_UPLOAD_MIB"); exists {
		v, err := strconv.ParseInt(maxMiB, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAULTSTREAM_MAX_UPLOAD_MIB: %w", err)
		}
		cfg.MaxUploadMiB = v
	} else {
		cfg.MaxUploadMiB = defaultMaxUploadMiB
	}

	if seg, exists := os.LookupEnv("VAULTSTREAM_HLS_SEGMENT_SECONDS"); exists {
		v, err := strconv.Atoi(seg)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAULTSTREAM_HLS_SEGMENT_SECONDS: %w", err)
		}
		cfg.HLSSegmentSeconds = v
	} else {
		cfg.HLSSegmentSeconds = defaultHLSSegmentSeconds
	}

	if workers, exists := os.LookupEnv("VAULTSTREAM_PIPELINE_WORKERS"); exists {
		v, err := strconv.Atoi(workers)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAULTSTREAM_PIPELINE_WORKERS: %w", err)
		}
		cfg.PipelineWorkers = v
	} else {
		cfg.PipelineWorkers = runtime.NumCPU()
	}

	if timeout, exists := os.LookupEnv("VAULTSTREAM_RENDITION_TIMEOUT_SECONDS"); exists {
		v, err := strconv.ParseInt(timeout, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid VAULTSTREAM_RENDITION_TIMEOUT_SECONDS: %w", err)
		}
		cfg.RenditionTimeoutSeconds = v
	} else {
		cfg.RenditionTimeoutSeconds = defaultRenditionTimeout
	}

	if origins, exists := os.LookupEnv("VAULTSTREAM_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = splitTrim(origins)
	} else {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.Env != "dev" && cfg.Env != "test" {
		if len(cfg.SignerSecret) < 32 {
			return cfg, fmt.Errorf("VAULTSTREAM_SIGNER_SECRET must be set and at least 32 bytes in %s", cfg.Env)
		}
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if
// not set or empty.
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// splitTrim splits a comma-separated list and trims whitespace from each entry.
func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
