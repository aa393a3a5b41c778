// Package access implements the Access Gate: the single entry point that
// turns a playback request into a time-limited streaming capability, after
// enforcing visibility and passphrase rules.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaultstream/vaultstream/internal/model"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/videostore"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors mapped to the HTTP-boundary error taxonomy by callers.
var (
	ErrNotFound           = errors.New("video not found")
	ErrNotReady           = errors.New("video not ready")
	ErrAccessDenied       = errors.New("access denied")
	ErrPassphraseRequired = errors.New("passphrase required")
	ErrInvalidPassphrase  = errors.New("invalid passphrase")
)

// NotReadyError carries the video's current status for the caller to
// surface in the error response.
type NotReadyError struct {
	Status model.Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("video not ready: status=%s", e.Status)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// Gate enforces the access-control logic for requesting a playback capability.
type Gate struct {
	store  videostore.Store
	signer *signer.Signer
}

// New creates a Gate.
func New(store videostore.Store, s *signer.Signer) *Gate {
	return &Gate{store: store, signer: s}
}

// Result is what RequestAccess returns on success.
type Result struct {
	StreamURL string
	Metadata  model.SafeMetadata
}

// RequestAccess runs the gate's six checks in order: lookup, readiness,
// visibility, passphrase presence, passphrase correctness, then mints a
// token scoped to this video and (if present) this caller.
func (g *Gate) RequestAccess(ctx context.Context, videoID, requestingUserID, passphrase string) (*Result, error) {
	v, err := g.store.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, videostore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load video: %w", err)
	}

	if v.Status != model.StatusReady {
		return nil, &NotReadyError{Status: v.Status}
	}

	if v.Visibility == model.VisibilityPrivate && requestingUserID != v.OwnerUserID {
		return nil, ErrAccessDenied
	}

	if v.HasPassphrase() {
		if passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		// bcrypt.CompareHashAndPassword is constant-time with respect to
		// the candidate password; it deliberately costs tens of
		// milliseconds and is not meant to be cancellable mid-compute.
		if err := bcrypt.CompareHashAndPassword([]byte(v.PassphraseHash), []byte(passphrase)); err != nil {
			return nil, ErrInvalidPassphrase
		}
	}

	token, err := g.signer.Mint(videoID, "master.m3u8", requestingUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint stream token: %w", err)
	}

	return &Result{
		StreamURL: fmt.Sprintf("/api/stream/%s/master.m3u8?token=%s", videoID, token),
		Metadata:  v.Metadata(),
	}, nil
}

// HashPassphrase hashes a plaintext passphrase for storage on a Video
// record at upload time, using the configured bcrypt cost.
func HashPassphrase(passphrase string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(passphrase), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passphrase: %w", err)
	}
	return string(hashed), nil
}
