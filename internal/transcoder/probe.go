// Package transcoder drives ffprobe and ffmpeg as external processes to
// derive a video's quality ladder and produce its HLS renditions. Every
// operation shells out via os/exec rather than binding a C library, the
// same approach nohren-tritontube's encodeVideo takes for DASH packaging.
package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult is the subset of ffprobe's output the pipeline needs.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe runs ffprobe against the source file at path and extracts duration
// and the first video stream's native resolution.
func Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	if parsed.Format.Duration != "" {
		d, err := strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration: %w", err)
		}
		result.DurationSeconds = d
	}

	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			result.Width = s.Width
			result.Height = s.Height
			break
		}
	}

	if result.Width == 0 || result.Height == 0 {
		return nil, fmt.Errorf("no video stream found in %s", path)
	}

	return result, nil
}
