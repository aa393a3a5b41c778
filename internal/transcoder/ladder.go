package transcoder

import "github.com/vaultstream/vaultstream/internal/model"

// fullLadder is the deterministic quality ladder, ordered highest to
// lowest. DeriveLadder filters this against the source's native height
// rather than ever upscaling a rendition above what the source provides.
var fullLadder = []model.Rendition{
	{Name: "1080p", Height: 1080, Bitrate: "5000k"},
	{Name: "720p", Height: 720, Bitrate: "2800k"},
	{Name: "480p", Height: 480, Bitrate: "1400k"},
	{Name: "360p", Height: 360, Bitrate: "800k"},
}

// DeriveLadder returns the renditions to encode for a source of the given
// native height: every ladder rung at or below the source's height. A
// source shorter than the lowest rung (360p) still gets exactly one
// rendition, at the source's own height, so the invariant "at least one
// rendition always exists" holds without ever upscaling.
func DeriveLadder(sourceHeight int) []model.Rendition {
	var ladder []model.Rendition
	for _, r := range fullLadder {
		if r.Height <= sourceHeight {
			ladder = append(ladder, r)
		}
	}

	if len(ladder) == 0 {
		lowest := fullLadder[len(fullLadder)-1]
		ladder = append(ladder, model.Rendition{
			Name:    "source",
			Height:  sourceHeight,
			Bitrate: lowest.Bitrate,
		})
	}

	return ladder
}
