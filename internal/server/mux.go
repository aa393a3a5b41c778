// Package server wires the HTTP surface for VaultStream: upload,
// management, access, and playback endpoints, all dispatched through a
// single mux with shared middleware for CORS, correlation IDs, and auth.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vaultstream/vaultstream/internal/access"
	"github.com/vaultstream/vaultstream/internal/bearerauth"
	"github.com/vaultstream/vaultstream/internal/blobstore"
	vserrors "github.com/vaultstream/vaultstream/internal/errors"
	"github.com/vaultstream/vaultstream/internal/hlsserver"
	"github.com/vaultstream/vaultstream/internal/metrics"
	"github.com/vaultstream/vaultstream/internal/model"
	"github.com/vaultstream/vaultstream/internal/pipeline"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

// ContextKey namespaces request-scoped context values.
type ContextKey string

const (
	ContextKeyIdentity      ContextKey = "identity"
	ContextKeyCorrelationID ContextKey = "correlationId"
)

// Deps bundles everything NewMux needs to wire the service. Keeping this
// as a struct, rather than a long parameter list, matches how the
// orchestrator and blobstore backends are already constructed in cmd/.
type Deps struct {
	Store        videostore.Store
	Blobs        blobstore.Storage
	Orchestrator *pipeline.Orchestrator
	Gate         *access.Gate
	HLS          *hlsserver.Server
	Auth         *bearerauth.Verifier

	MaxUploadBytes     int64
	AllowedExtensions  []string
	BcryptCost         int
	CORSAllowedOrigins []string
}

// Mux handles HTTP requests for VaultStream's upload, management, access,
// and playback endpoints.
type Mux struct {
	mux *http.ServeMux

	store        videostore.Store
	blobs        blobstore.Storage
	orchestrator *pipeline.Orchestrator
	gate         *access.Gate
	hls          *hlsserver.Server
	auth         *bearerauth.Verifier
	metrics      *metrics.Metrics

	maxUploadBytes     int64
	allowedExtensions  []string
	bcryptCost         int
	corsAllowedOrigins []string
}

// NewMux builds the full VaultStream HTTP surface.
func NewMux(d Deps) *http.ServeMux {
	m := &Mux{
		mux:                http.NewServeMux(),
		store:              d.Store,
		blobs:              d.Blobs,
		orchestrator:       d.Orchestrator,
		gate:               d.Gate,
		hls:                d.HLS,
		auth:               d.Auth,
		metrics:            metrics.NewMetrics(),
		maxUploadBytes:     d.MaxUploadBytes,
		allowedExtensions:  d.AllowedExtensions,
		bcryptCost:         d.BcryptCost,
		corsAllowedOrigins: d.CORSAllowedOrigins,
	}

	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	m.mux.HandleFunc("/videos/upload", m.method(http.MethodPost, m.withMiddleware(m.handleUploadVideo)))
	m.mux.HandleFunc("/videos/", m.withMiddleware(m.handleVideoByID))

	// Segment endpoints are intentionally exempt from any deployment-level
	// rate limiter sitting in front of this mux — segment bursts are
	// expected traffic, not abuse.
	m.mux.HandleFunc("/stream/", m.method(http.MethodGet, m.withMiddleware(m.handleStream)))

	return m.mux
}

// method rejects requests whose HTTP method doesn't match.
func (m *Mux) method(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			m.writeErrorDef(w, vserrors.New(vserrors.BAD_REQUEST, "method not allowed", ""))
			return
		}
		h(w, r)
	}
}

// withMiddleware applies CORS handling, correlation-ID propagation, and
// request logging to every registered handler. Authentication is left to
// individual handlers since some endpoints (public playback, unlisted
// access) are legitimately anonymous.
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if len(m.corsAllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			if origin != "" && m.originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		// Optional auth: attach an identity to the context when a bearer
		// token is present and valid; handlers that require a caller check
		// for its absence themselves.
		if identity, err := m.auth.VerifyRequest(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, identity))
		}

		h(w, r)
		m.logRequest(r, time.Since(start), correlationID)
	}
}

func (m *Mux) originAllowed(origin string) bool {
	for _, allowed := range m.corsAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (m *Mux) identity(r *http.Request) *bearerauth.Identity {
	id, _ := r.Context().Value(ContextKeyIdentity).(*bearerauth.Identity)
	return id
}

func (m *Mux) correlationID(r *http.Request) string {
	id, _ := r.Context().Value(ContextKeyCorrelationID).(string)
	return id
}

func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func (m *Mux) writeErrorDef(w http.ResponseWriter, err *vserrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": err})
}

func (m *Mux) logRequest(r *http.Request, duration time.Duration, correlationID string) {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"duration", duration,
		"correlationId", correlationID,
	}
	if id := m.identity(r); id != nil {
		attrs = append(attrs, "userId", id.UserID)
	}
	slog.Info("request completed", attrs...)

	m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, "completed").Inc()
	m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, "completed").Observe(duration.Seconds())
}

func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := m.store.Get(ctx, "readyz-probe"); err != nil && !errors.Is(err, videostore.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleUploadVideo handles POST /videos/upload: a multipart form carrying
// the source file plus title/description/visibility/passphrase fields.
func (m *Mux) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("vaultstream").Start(r.Context(), "handleUploadVideo")
	defer span.End()
	correlationID := m.correlationID(r)

	identity := m.identity(r)
	if identity == nil {
		m.writeErrorDef(w, vserrors.New(vserrors.AUTHN, "missing or invalid bearer token", correlationID))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, m.maxUploadBytes+1<<20) // allow a little slack for form fields
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		m.writeErrorDef(w, vserrors.New(vserrors.BAD_REQUEST, "failed to parse upload: "+err.Error(), correlationID))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		m.writeErrorDef(w, vserrors.New(vserrors.VALIDATION, "file is required", correlationID))
		return
	}
	defer file.Close()

	if header.Size > m.maxUploadBytes {
		m.writeErrorDef(w, vserrors.New(vserrors.MEDIA_SIZE, fmt.Sprintf("file exceeds limit of %d bytes", m.maxUploadBytes), correlationID))
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !m.extensionAllowed(ext) {
		m.writeErrorDef(w, vserrors.New(vserrors.MEDIA_TYPE, fmt.Sprintf("file extension %q is not allowed", ext), correlationID))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		m.writeErrorDef(w, vserrors.New(vserrors.VALIDATION, "title is required", correlationID))
		return
	}

	visibility := model.Visibility(r.FormValue("visibility"))
	switch visibility {
	case model.VisibilityPublic, model.VisibilityUnlisted, model.VisibilityPrivate:
	case "":
		visibility = model.VisibilityUnlisted
	default:
		m.writeErrorDef(w, vserrors.New(vserrors.VALIDATION, "visibility must be public, unlisted, or private", correlationID))
		return
	}

	var passphraseHash string
	if passphrase := r.FormValue("passphrase"); passphrase != "" {
		passphraseHash, err = access.HashPassphrase(passphrase, m.bcryptCost)
		if err != nil {
			m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to hash passphrase", correlationID))
			return
		}
	}

	videoID := uuid.New().String()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension("." + ext)
	}
	storagePath := path.Join("videos", videoID, "source."+ext)

	span.SetAttributes(
		attribute.String("videoId", videoID),
		attribute.String("ownerUserId", identity.UserID),
		attribute.Int64("size", header.Size),
	)

	if err := m.blobs.Upload(ctx, storagePath, file, header.Size, contentType); err != nil {
		span.SetStatus(codes.Error, "upload failed")
		m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to store upload", correlationID))
		return
	}

	video := model.Video{
		ID:               videoID,
		OwnerUserID:      identity.UserID,
		Title:            title,
		Description:      strings.TrimSpace(r.FormValue("description")),
		Visibility:       visibility,
		PassphraseHash:   passphraseHash,
		StoragePath:      storagePath,
		FileSize:         header.Size,
		MimeType:         contentType,
		OriginalFilename: header.Filename,
		Status:           model.StatusUploading,
		CreatedAt:        time.Now().UTC(),
	}

	if err := m.store.Create(ctx, video); err != nil {
		m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to create video record", correlationID))
		return
	}

	m.orchestrator.Enqueue(context.WithoutCancel(ctx), videoID)

	m.writeSuccess(w, http.StatusAccepted, map[string]string{
		"videoId": videoID,
		"status":  string(model.StatusUploading),
	})
}

func (m *Mux) extensionAllowed(ext string) bool {
	for _, allowed := range m.allowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// handleVideoByID dispatches GET/DELETE /videos/:id and POST
// /videos/:id/access, since the path carries a variable video ID segment
// plus an optional trailing "/access".
func (m *Mux) handleVideoByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/videos/")
	segments := strings.Split(strings.Trim(trimmed, "/"), "/")

	switch {
	case len(segments) == 1 && segments[0] != "":
		switch r.Method {
		case http.MethodGet:
			m.handleGetVideo(w, r, segments[0])
		case http.MethodDelete:
			m.handleDeleteVideo(w, r, segments[0])
		default:
			m.writeErrorDef(w, vserrors.New(vserrors.BAD_REQUEST, "method not allowed", m.correlationID(r)))
		}
	case len(segments) == 2 && segments[1] == "access" && r.Method == http.MethodPost:
		m.handleRequestAccess(w, r, segments[0])
	default:
		m.writeErrorDef(w, vserrors.New(vserrors.VIDEO_NOT_FOUND, "not found", m.correlationID(r)))
	}
}

// handleGetVideo returns the full management view of a video; only the
// owner may see it, since it carries storage paths and processing errors
// that SafeMetadata deliberately omits.
func (m *Mux) handleGetVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx, span := otel.Tracer("vaultstream").Start(r.Context(), "handleGetVideo")
	defer span.End()
	correlationID := m.correlationID(r)

	identity := m.identity(r)
	if identity == nil {
		m.writeErrorDef(w, vserrors.New(vserrors.AUTHN, "missing or invalid bearer token", correlationID))
		return
	}

	v, err := m.store.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, videostore.ErrNotFound) {
			m.writeErrorDef(w, vserrors.New(vserrors.VIDEO_NOT_FOUND, "video not found", correlationID))
			return
		}
		m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to load video", correlationID))
		return
	}

	if v.OwnerUserID != identity.UserID {
		m.writeErrorDef(w, vserrors.New(vserrors.ACCESS_DENIED, "not the video owner", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, v)
}

// handleDeleteVideo removes a video's blobs and record. Blob-deletion
// failures are logged but never block removing the record itself — an
// orphaned object is cheaper to clean up later than a record a user
// believes they deleted but can still query.
func (m *Mux) handleDeleteVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx, span := otel.Tracer("vaultstream").Start(r.Context(), "handleDeleteVideo")
	defer span.End()
	correlationID := m.correlationID(r)

	identity := m.identity(r)
	if identity == nil {
		m.writeErrorDef(w, vserrors.New(vserrors.AUTHN, "missing or invalid bearer token", correlationID))
		return
	}

	v, err := m.store.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, videostore.ErrNotFound) {
			m.writeErrorDef(w, vserrors.New(vserrors.VIDEO_NOT_FOUND, "video not found", correlationID))
			return
		}
		m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to load video", correlationID))
		return
	}
	if v.OwnerUserID != identity.UserID {
		m.writeErrorDef(w, vserrors.New(vserrors.ACCESS_DENIED, "not the video owner", correlationID))
		return
	}

	if v.StoragePath != "" {
		if err := m.blobs.Delete(ctx, v.StoragePath); err != nil {
			slog.Warn("failed to delete source blob", "videoId", videoID, "error", err)
		}
	}
	if v.HLSPath != "" {
		if err := m.blobs.DeleteDirectory(ctx, v.HLSPath); err != nil {
			slog.Warn("failed to delete HLS output", "videoId", videoID, "error", err)
		}
	}
	thumbKey := path.Join("videos", videoID, "thumbnail.jpg")
	if err := m.blobs.Delete(ctx, thumbKey); err != nil {
		slog.Warn("failed to delete thumbnail", "videoId", videoID, "error", err)
	}

	if err := m.store.Delete(ctx, videoID); err != nil {
		m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to delete video record", correlationID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRequestAccess handles POST /videos/:id/access: the sole entry
// point the Access Gate is reached through.
func (m *Mux) handleRequestAccess(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx, span := otel.Tracer("vaultstream").Start(r.Context(), "handleRequestAccess")
	defer span.End()
	correlationID := m.correlationID(r)

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if r.ContentLength > 0 {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			m.writeErrorDef(w, vserrors.New(vserrors.VALIDATION, "invalid JSON", correlationID))
			return
		}
	}

	requestingUserID := ""
	if identity := m.identity(r); identity != nil {
		requestingUserID = identity.UserID
	}

	span.SetAttributes(attribute.String("videoId", videoID))

	result, err := m.gate.RequestAccess(ctx, videoID, requestingUserID, req.Passphrase)
	if err != nil {
		m.writeAccessError(w, err, correlationID)
		return
	}

	m.writeSuccess(w, http.StatusOK, result)
}

func (m *Mux) writeAccessError(w http.ResponseWriter, err error, correlationID string) {
	var notReady *access.NotReadyError
	switch {
	case errors.Is(err, access.ErrNotFound):
		m.writeErrorDef(w, vserrors.New(vserrors.VIDEO_NOT_FOUND, "video not found", correlationID))
	case errors.As(err, &notReady):
		m.writeErrorDef(w, vserrors.NewWithDetails(vserrors.VIDEO_NOT_READY, "video not ready", correlationID, map[string]string{"status": string(notReady.Status)}))
	case errors.Is(err, access.ErrAccessDenied):
		m.writeErrorDef(w, vserrors.New(vserrors.ACCESS_DENIED, "access denied", correlationID))
	case errors.Is(err, access.ErrPassphraseRequired):
		m.writeErrorDef(w, vserrors.New(vserrors.PASSPHRASE_REQUIRED, "passphrase required", correlationID))
	case errors.Is(err, access.ErrInvalidPassphrase):
		m.writeErrorDef(w, vserrors.New(vserrors.INVALID_PASSPHRASE, "invalid passphrase", correlationID))
	default:
		m.writeErrorDef(w, vserrors.New(vserrors.INTERNAL, "failed to process access request", correlationID))
	}
}

// handleStream dispatches GET /stream/:videoId/:resource to the HLS
// Server, routing by the resource's trailing extension.
func (m *Mux) handleStream(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/stream/")
	parts := strings.SplitN(strings.Trim(trimmed, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		m.writeErrorDef(w, vserrors.New(vserrors.VIDEO_NOT_FOUND, "not found", m.correlationID(r)))
		return
	}
	videoID, resource := parts[0], parts[1]
	token := r.URL.Query().Get("token")

	switch {
	case resource == "master.m3u8":
		m.hls.HandleMaster(w, r, videoID, token)
	case strings.HasSuffix(resource, ".m3u8"):
		m.hls.HandleVariant(w, r, videoID, strings.TrimSuffix(resource, ".m3u8"), token)
	case strings.HasSuffix(resource, ".ts"):
		m.hls.HandleSegment(w, r, videoID, strings.TrimSuffix(resource, ".ts"), token)
	default:
		m.writeErrorDef(w, vserrors.New(vserrors.INVALID_SEGMENT, "unrecognized resource type", m.correlationID(r)))
	}
}
