// Package hlsserver implements the three playback endpoints: master
// playlist, variant playlists, and segments. All three require
// a valid signed token bound to the requested resource; master and variant
// responses are rewritten in-flight so every descendant URL carries its
// own token.
package hlsserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	vserrors "github.com/vaultstream/vaultstream/internal/errors"
	"github.com/vaultstream/vaultstream/internal/blobstore"
	"github.com/vaultstream/vaultstream/internal/metrics"
	"github.com/vaultstream/vaultstream/internal/model"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

// resourceNamePattern guards against directory traversal: only simple
// file names are ever accepted as the trailing path segment.
var resourceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+\.(m3u8|ts)$`)

// Server serves HLS resources for ready videos, rewriting playlists so
// every descendant URL is individually signed.
type Server struct {
	store   videostore.Store
	blobs   blobstore.Storage
	signer  *signer.Signer
	metrics *metrics.Metrics
}

// New creates a Server.
func New(store videostore.Store, blobs blobstore.Storage, s *signer.Signer) *Server {
	return &Server{store: store, blobs: blobs, signer: s, metrics: metrics.NewMetrics()}
}

// verified is the outcome of the shared per-request verification steps.
type verified struct {
	video *model.Video
	claim *signer.Claims
}

// verify runs the steps common to all three endpoints: token signature
// and expiry, resource-path equality, filename shape, and video
// readiness. Returns a *vserrors.Error ready to write to the response.
func (s *Server) verify(ctx context.Context, videoID, resource, token string) (*verified, *vserrors.Error) {
	if !resourceNamePattern.MatchString(resource) {
		return nil, vserrors.New(vserrors.INVALID_SEGMENT, "invalid resource name", "")
	}

	claim, err := s.signer.Verify(token, videoID, resource)
	if err != nil {
		switch {
		case errors.Is(err, signer.ErrExpired):
			return nil, vserrors.New(vserrors.TOKEN_EXPIRED, "token expired", "")
		case errors.Is(err, signer.ErrResourceMismatch):
			return nil, vserrors.New(vserrors.RESOURCE_MISMATCH, "token does not match requested resource", "")
		default:
			return nil, vserrors.New(vserrors.INVALID_SIGNATURE, "invalid token", "")
		}
	}

	v, err := s.store.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, videostore.ErrNotFound) {
			return nil, vserrors.New(vserrors.VIDEO_NOT_FOUND, "video not found", "")
		}
		return nil, vserrors.New(vserrors.INTERNAL, "failed to load video", "")
	}
	if v.Status != model.StatusReady {
		return nil, vserrors.New(vserrors.VIDEO_NOT_FOUND, "video not found", "")
	}

	return &verified{video: v, claim: claim}, nil
}

func writeError(w http.ResponseWriter, err *vserrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	fmt.Fprintf(w, `{"code":%q,"message":%q}`, err.Code, err.Message)
}

// HandleMaster serves GET /stream/:videoId/master.m3u8.
func (s *Server) HandleMaster(w http.ResponseWriter, r *http.Request, videoID, token string) {
	ctx := r.Context()
	v, verr := s.verify(ctx, videoID, "master.m3u8", token)
	if verr != nil {
		writeError(w, verr)
		return
	}

	s.serveRewrittenPlaylist(w, r, v.video, v.claim, path.Join(v.video.HLSPath, "master.m3u8"), ".m3u8")
}

// HandleVariant serves GET /stream/:videoId/:name.m3u8 for name != master.
func (s *Server) HandleVariant(w http.ResponseWriter, r *http.Request, videoID, name, token string) {
	ctx := r.Context()
	resource := name + ".m3u8"
	v, verr := s.verify(ctx, videoID, resource, token)
	if verr != nil {
		writeError(w, verr)
		return
	}

	s.serveRewrittenPlaylist(w, r, v.video, v.claim, path.Join(v.video.HLSPath, resource), ".ts")
}

// serveRewrittenPlaylist reads a playlist and appends a freshly minted
// token to every line ending in rewriteSuffix, preserving all other lines
// verbatim. Child tokens are minted in one MintMany call rather than one
// Mint call per line, so a playlist with many renditions or segments costs
// a single batch signing pass.
func (s *Server) serveRewrittenPlaylist(w http.ResponseWriter, r *http.Request, v *model.Video, claim *signer.Claims, key, rewriteSuffix string) {
	body, err := s.blobs.Download(r.Context(), key)
	if err != nil {
		writeError(w, vserrors.New(vserrors.INVALID_PLAYLIST, "failed to read playlist", ""))
		return
	}
	defer body.Close()

	var lines []string
	var rewriteIdx []int
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, rewriteSuffix) {
			rewriteIdx = append(rewriteIdx, len(lines))
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		writeError(w, vserrors.New(vserrors.INVALID_PLAYLIST, "failed to read playlist", ""))
		return
	}

	resources := make([]string, len(rewriteIdx))
	for i, idx := range rewriteIdx {
		resources[i] = lines[idx]
	}
	tokens, err := s.signer.MintMany(v.ID, resources, claim.UserID)
	if err != nil {
		writeError(w, vserrors.New(vserrors.INTERNAL, "failed to mint child tokens", ""))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")

	var out strings.Builder
	for i, idx := range rewriteIdx {
		lines[idx] = lines[idx] + "?token=" + tokens[i]
	}
	for _, line := range lines {
		out.WriteString(line)
		out.WriteString("\n")
	}

	w.Write([]byte(out.String()))
}

// HandleSegment serves GET /stream/:videoId/:seg.ts.
func (s *Server) HandleSegment(w http.ResponseWriter, r *http.Request, videoID, seg, token string) {
	ctx := r.Context()
	resource := seg + ".ts"
	v, verr := s.verify(ctx, videoID, resource, token)
	if verr != nil {
		writeError(w, verr)
		return
	}

	key := path.Join(v.video.HLSPath, resource)
	start := time.Now()
	body, err := s.blobs.Download(ctx, key)
	if err != nil {
		s.metrics.SegmentServeTotal.WithLabelValues("error").Inc()
		writeError(w, vserrors.New(vserrors.INVALID_SEGMENT, "failed to read segment", ""))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "video/MP2T")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)

	status := "success"
	// Once headers are written, a stream error is terminated silently —
	// a JSON error body here would corrupt an in-flight video segment.
	if _, err := io.Copy(w, body); err != nil {
		status = "error"
		if !errors.Is(err, context.Canceled) {
			slog.Warn("segment stream error", "videoId", videoID, "key", key, "error", err)
		}
	}
	s.metrics.SegmentServeTotal.WithLabelValues(status).Inc()
	s.metrics.SegmentServeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
