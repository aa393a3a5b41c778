package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vaultstream/vaultstream/internal/access"
	"github.com/vaultstream/vaultstream/internal/bearerauth"
	"github.com/vaultstream/vaultstream/internal/blobstore"
	"github.com/vaultstream/vaultstream/internal/event"
	"github.com/vaultstream/vaultstream/internal/hlsserver"
	"github.com/vaultstream/vaultstream/internal/pipeline"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

func newTestMux(t *testing.T, maxUploadBytes int64, allowedExtensions []string) (*http.ServeMux, *bearerauth.Verifier) {
	t.Helper()
	store := videostore.NewMemory()
	blobs, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS() error = %v", err)
	}
	s := signer.New("test-secret-at-least-32-bytes-long!!", time.Hour)
	auth := bearerauth.NewVerifier("test-secret-at-least-32-bytes-long!!")
	// An empty NATS URL falls back to the noop publisher.
	publisher := event.NewPublisherFromEnv("")
	orchestrator := pipeline.New(store, blobs, publisher, pipeline.Config{Workers: 1})
	gate := access.New(store, s)
	hls := hlsserver.New(store, blobs, s)

	mux := NewMux(Deps{
		Store:             store,
		Blobs:             blobs,
		Orchestrator:      orchestrator,
		Gate:              gate,
		HLS:               hls,
		Auth:              auth,
		MaxUploadBytes:    maxUploadBytes,
		AllowedExtensions: allowedExtensions,
		BcryptCost:        4,
	})
	return mux, auth
}

func TestHealthzEndpoint(t *testing.T) {
	mux, _ := newTestMux(t, 10<<20, []string{"mp4"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyzEndpoint(t *testing.T) {
	mux, _ := newTestMux(t, 10<<20, []string{"mp4"})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	mux, _ := newTestMux(t, 10<<20, []string{"mp4"})

	req := httptest.NewRequest(http.MethodPost, "/videos/upload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	mux, auth := newTestMux(t, 10<<20, []string{"mp4"})
	token, err := auth.Mint("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("title", "a video")
	part, _ := w.CreateFormFile("file", "clip.mov")
	part.Write([]byte("not really a video"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/videos/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestUploadRejectsMissingTitle(t *testing.T) {
	mux, auth := newTestMux(t, 10<<20, []string{"mp4"})
	token, err := auth.Mint("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "clip.mp4")
	part.Write([]byte("fake-mp4-bytes"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/videos/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestGetVideoRequiresOwnership(t *testing.T) {
	mux, auth := newTestMux(t, 10<<20, []string{"mp4"})
	uploaderToken, err := auth.Mint("uploader", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("title", "a video")
	part, _ := w.CreateFormFile("file", "clip.mp4")
	part.Write([]byte("fake-mp4-bytes"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/videos/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+uploaderToken)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var uploadResp struct {
		Data struct {
			VideoID string `json:"videoId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &uploadResp); err != nil {
		t.Fatalf("failed to parse upload response: %v", err)
	}

	otherToken, err := auth.Mint("someone-else", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/videos/"+uploadResp.Data.VideoID, nil)
	getReq.Header.Set("Authorization", "Bearer "+otherToken)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d, body = %s", getRec.Code, http.StatusForbidden, getRec.Body.String())
	}
}
