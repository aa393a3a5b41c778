package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vaultstream/vaultstream/internal/model"
)

// EncodeOptions configures a single rendition encode.
type EncodeOptions struct {
	SourcePath      string        // local path to the probed source file
	OutputDir       string        // directory the rendition's segments/playlist are written to
	Rendition       model.Rendition
	SegmentSeconds  int           // fixed HLS segment duration
	Timeout         time.Duration // wall-clock ceiling for this rendition
}

// nominalFPS is the assumed source frame rate the closed GOP size is
// derived from; the source's real frame rate is not probed.
const nominalFPS = 24

// EncodeRendition runs ffmpeg against a single rendition, writing its
// segmented HLS playlist flat into opts.OutputDir as "<name>.m3u8" and
// "<name>_NNN.ts": every rendition is uploaded under the same storage
// prefix, so names must stay collision-free and single-segment (no subdirectories)
// for the HLS Server's resource-name guard to accept them. Renditions are
// encoded one at a time rather than via ffmpeg's multi-output filter
// graph: sequential execution keeps a single rendition's failure from
// aborting the others and keeps peak resource usage to one encode at a
// time per video.
func EncodeRendition(ctx context.Context, opts EncodeOptions) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	playlist := filepath.Join(opts.OutputDir, opts.Rendition.Name+".m3u8")
	segmentPattern := filepath.Join(opts.OutputDir, opts.Rendition.Name+"_%03d.ts")

	gop := strconv.Itoa(2 * nominalFPS)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", opts.SourcePath,
		"-vf", fmt.Sprintf("scale=-2:%d", opts.Rendition.Height),
		"-c:v", "libx264",
		"-b:v", opts.Rendition.Bitrate,
		"-maxrate", scaleBitrate(opts.Rendition.Bitrate, 110),
		"-bufsize", scaleBitrate(opts.Rendition.Bitrate, 150),
		"-c:a", "aac",
		"-b:a", "128k",
		"-bf", "1", "-keyint_min", gop,
		"-g", gop, "-sc_threshold", "0",
		"-f", "hls",
		"-hls_time", strconv.Itoa(opts.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		playlist,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed for rendition %s: %w: %s", opts.Rendition.Name, err, out)
	}

	return nil
}

// scaleBitrate scales a ffmpeg bitrate string (e.g. "5000k") by
// percent/100 and re-renders it in the same "<n>k" form, for deriving
// maxrate/bufsize from a rendition's nominal bitrate.
func scaleBitrate(bitrate string, percent int) string {
	numeric := strings.TrimSuffix(bitrate, "k")
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return bitrate
	}
	return strconv.Itoa(n*percent/100) + "k"
}

// GenerateThumbnail extracts a single frame near the start of the source
// as a JPEG thumbnail. Best-effort: callers should log and continue on
// failure rather than fail the whole pipeline.
func GenerateThumbnail(ctx context.Context, sourcePath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", "1",
		"-i", sourcePath,
		"-frames:v", "1",
		"-q:v", "2",
		outputPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("thumbnail extraction failed: %w: %s", err, out)
	}
	return nil
}
