package transcoder

import (
	"strings"
	"testing"
)

func TestDeriveLadderNeverUpscales(t *testing.T) {
	ladder := DeriveLadder(720)

	for _, r := range ladder {
		if r.Height > 720 {
			t.Errorf("rendition %s (height %d) exceeds source height 720", r.Name, r.Height)
		}
	}
	if len(ladder) != 3 {
		t.Errorf("len(ladder) = %d, want 3 (720p, 480p, 360p)", len(ladder))
	}
}

func TestDeriveLadderExactMatch(t *testing.T) {
	ladder := DeriveLadder(1080)
	if len(ladder) != 4 {
		t.Fatalf("len(ladder) = %d, want 4", len(ladder))
	}
	if ladder[0].Name != "1080p" {
		t.Errorf("ladder[0].Name = %s, want 1080p", ladder[0].Name)
	}
}

func TestDeriveLadderBelowLowestRung(t *testing.T) {
	ladder := DeriveLadder(240)
	if len(ladder) != 1 {
		t.Fatalf("len(ladder) = %d, want 1", len(ladder))
	}
	if ladder[0].Height != 240 {
		t.Errorf("ladder[0].Height = %d, want 240 (source height, not upscaled)", ladder[0].Height)
	}
}

func TestWriteMasterPlaylistSkipsMissingPaths(t *testing.T) {
	ladder := DeriveLadder(1080)
	paths := map[string]string{
		"1080p": "1080p/index.m3u8",
		"480p":  "480p/index.m3u8",
	}

	out, err := WriteMasterPlaylist(ladder, paths)
	if err != nil {
		t.Fatalf("WriteMasterPlaylist() error = %v", err)
	}
	if !strings.Contains(out, "1080p/index.m3u8") || !strings.Contains(out, "480p/index.m3u8") {
		t.Errorf("output missing expected rendition paths: %s", out)
	}
	if strings.Contains(out, "720p/index.m3u8") {
		t.Errorf("output should not reference a rendition with no path entry: %s", out)
	}
}
