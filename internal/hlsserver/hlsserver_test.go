package hlsserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vaultstream/vaultstream/internal/blobstore"
	"github.com/vaultstream/vaultstream/internal/model"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

func newTestServer(t *testing.T) (*Server, *signer.Signer, blobstore.Storage) {
	t.Helper()
	store := videostore.NewMemory()
	blobs, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS() error = %v", err)
	}
	s := signer.New("test-secret-at-least-32-bytes-long!!", time.Hour)

	video := model.Video{
		ID:         "v1",
		Visibility: model.VisibilityUnlisted,
		Status:     model.StatusReady,
		HLSPath:    "videos/v1/hls",
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Create(context.Background(), video); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=5000000\n720p.m3u8\n"
	if err := blobs.Upload(context.Background(), "videos/v1/hls/master.m3u8", strings.NewReader(master), int64(len(master)), "application/vnd.apple.mpegurl"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	return New(store, blobs, s), s, blobs
}

func TestHandleMasterRewritesVariantTokens(t *testing.T) {
	server, s, _ := newTestServer(t)
	token, err := s.Mint("v1", "master.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/v1/master.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()

	server.HandleMaster(rec, req, "v1", token)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "720p.m3u8?token=") {
		t.Errorf("expected rewritten variant line with token, got: %s", body)
	}
	if rec.Header().Get("Content-Type") != "application/vnd.apple.mpegurl" {
		t.Errorf("Content-Type = %s", rec.Header().Get("Content-Type"))
	}
}

func TestHandleMasterRejectsResourceMismatch(t *testing.T) {
	server, s, _ := newTestServer(t)
	token, err := s.Mint("v1", "720p.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/v1/master.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()

	server.HandleMaster(rec, req, "v1", token)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandleMasterRejectsExpiredToken(t *testing.T) {
	store := videostore.NewMemory()
	blobs, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS() error = %v", err)
	}
	s := signer.New("test-secret-at-least-32-bytes-long!!", -time.Second)
	server := New(store, blobs, s)

	token, err := s.Mint("v1", "master.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/v1/master.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()

	server.HandleMaster(rec, req, "v1", token)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for expired token", rec.Code)
	}
}

func TestHandleSegmentStreamsContent(t *testing.T) {
	store := videostore.NewMemory()
	blobs, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS() error = %v", err)
	}
	s := signer.New("test-secret-at-least-32-bytes-long!!", time.Hour)

	video := model.Video{ID: "v1", Status: model.StatusReady, HLSPath: "videos/v1/hls", CreatedAt: time.Now().UTC()}
	if err := store.Create(context.Background(), video); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	segData := "fake-ts-data"
	if err := blobs.Upload(context.Background(), "videos/v1/hls/720p_000.ts", strings.NewReader(segData), int64(len(segData)), "video/MP2T"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	server := New(store, blobs, s)
	token, err := s.Mint("v1", "720p_000.ts", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/v1/720p_000.ts?token="+token, nil)
	rec := httptest.NewRecorder()

	server.HandleSegment(rec, req, "v1", "720p_000", token)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != segData {
		t.Errorf("body = %q, want %q", rec.Body.String(), segData)
	}
	if rec.Header().Get("Content-Type") != "video/MP2T" {
		t.Errorf("Content-Type = %s", rec.Header().Get("Content-Type"))
	}
}

// extractRewrittenLine returns the first line in an HLS playlist body
// ending in suffix, split into its bare resource name and token query
// param, mirroring how a real player would follow a rewritten playlist.
func extractRewrittenLine(t *testing.T, body, suffix string) (resource, token string) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, suffix+"?token=") {
			continue
		}
		parts := strings.SplitN(line, "?token=", 2)
		return parts[0], parts[1]
	}
	t.Fatalf("no rewritten line with suffix %q found in body: %s", suffix, body)
	return "", ""
}

// TestStreamEndToEnd follows a full master -> variant -> segment chain
// the way a real player does: each response's rewritten child URL is
// parsed out and used to drive the next request, rather than minting
// tokens directly for each endpoint.
func TestStreamEndToEnd(t *testing.T) {
	store := videostore.NewMemory()
	blobs, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS() error = %v", err)
	}
	s := signer.New("test-secret-at-least-32-bytes-long!!", time.Hour)

	video := model.Video{
		ID:         "v1",
		Visibility: model.VisibilityPublic,
		Status:     model.StatusReady,
		HLSPath:    "videos/v1/hls",
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Create(context.Background(), video); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1280x720\n720p.m3u8\n"
	if err := blobs.Upload(context.Background(), "videos/v1/hls/master.m3u8", strings.NewReader(master), int64(len(master)), "application/vnd.apple.mpegurl"); err != nil {
		t.Fatalf("Upload(master) error = %v", err)
	}
	variant := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:6.0,\n720p_000.ts\n#EXT-X-ENDLIST\n"
	if err := blobs.Upload(context.Background(), "videos/v1/hls/720p.m3u8", strings.NewReader(variant), int64(len(variant)), "application/vnd.apple.mpegurl"); err != nil {
		t.Fatalf("Upload(variant) error = %v", err)
	}
	segData := "fake-segment-bytes"
	if err := blobs.Upload(context.Background(), "videos/v1/hls/720p_000.ts", strings.NewReader(segData), int64(len(segData)), "video/MP2T"); err != nil {
		t.Fatalf("Upload(segment) error = %v", err)
	}

	server := New(store, blobs, s)

	masterToken, err := s.Mint("v1", "master.m3u8", "")
	if err != nil {
		t.Fatalf("Mint(master) error = %v", err)
	}
	masterReq := httptest.NewRequest(http.MethodGet, "/stream/v1/master.m3u8?token="+masterToken, nil)
	masterRec := httptest.NewRecorder()
	server.HandleMaster(masterRec, masterReq, "v1", masterToken)
	if masterRec.Code != http.StatusOK {
		t.Fatalf("master status = %d, body = %s", masterRec.Code, masterRec.Body.String())
	}

	variantResource, variantToken := extractRewrittenLine(t, masterRec.Body.String(), ".m3u8")
	variantName := strings.TrimSuffix(variantResource, ".m3u8")
	variantReq := httptest.NewRequest(http.MethodGet, "/stream/v1/"+variantResource+"?token="+variantToken, nil)
	variantRec := httptest.NewRecorder()
	server.HandleVariant(variantRec, variantReq, "v1", variantName, variantToken)
	if variantRec.Code != http.StatusOK {
		t.Fatalf("variant status = %d, body = %s", variantRec.Code, variantRec.Body.String())
	}

	segResource, segToken := extractRewrittenLine(t, variantRec.Body.String(), ".ts")
	segName := strings.TrimSuffix(segResource, ".ts")
	segReq := httptest.NewRequest(http.MethodGet, "/stream/v1/"+segResource+"?token="+segToken, nil)
	segRec := httptest.NewRecorder()
	server.HandleSegment(segRec, segReq, "v1", segName, segToken)

	if segRec.Code != http.StatusOK {
		t.Fatalf("segment status = %d, body = %s", segRec.Code, segRec.Body.String())
	}
	if segRec.Body.String() != segData {
		t.Errorf("segment body = %q, want %q", segRec.Body.String(), segData)
	}
}
