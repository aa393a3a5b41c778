package transcoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vaultstream/vaultstream/internal/model"
)

// WriteMasterPlaylist renders the master HLS manifest listing every
// successfully-encoded rendition. renditionPaths maps a rendition's Name
// to the relative path (from the master playlist's own location) of its
// variant playlist.
func WriteMasterPlaylist(renditions []model.Rendition, renditionPaths map[string]string) (string, error) {
	var emitted int
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, r := range renditions {
		path, ok := renditionPaths[r.Name]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n",
			bandwidthBPS(r.Bitrate), resolutionLabel(r),
		))
		b.WriteString(path)
		b.WriteString("\n")
		emitted++
	}

	if emitted == 0 {
		return "", fmt.Errorf("no renditions to write into master playlist")
	}

	return b.String(), nil
}

// bandwidthBPS converts a ffmpeg bitrate string (e.g. "5000k") to the
// bits-per-second integer HLS's BANDWIDTH attribute expects.
func bandwidthBPS(bitrate string) int {
	numeric := strings.TrimSuffix(bitrate, "k")
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return 0
	}
	return n * 1000
}

// resolutionLabel approximates a 16:9 width from the rendition's height,
// since HLS's RESOLUTION attribute wants both dimensions and ffmpeg's
// "scale=-2:H" filter picks the matching width automatically at encode
// time without surfacing it back to this package.
func resolutionLabel(r model.Rendition) string {
	width := r.Height * 16 / 9
	width -= width % 2
	return fmt.Sprintf("%dx%d", width, r.Height)
}
