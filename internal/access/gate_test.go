package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaultstream/vaultstream/internal/model"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/videostore"
)

func newTestGate(t *testing.T) (*Gate, videostore.Store) {
	t.Helper()
	store := videostore.NewMemory()
	s := signer.New("test-secret-at-least-32-bytes-long!!", time.Hour)
	return New(store, s), store
}

func mustCreate(t *testing.T, store videostore.Store, v model.Video) {
	t.Helper()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if err := store.Create(context.Background(), v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestRequestAccessUnlistedNoPassphrase(t *testing.T) {
	gate, store := newTestGate(t)
	mustCreate(t, store, model.Video{
		ID:         "v1",
		Visibility: model.VisibilityUnlisted,
		Status:     model.StatusReady,
	})

	result, err := gate.RequestAccess(context.Background(), "v1", "", "")
	if err != nil {
		t.Fatalf("RequestAccess() error = %v", err)
	}
	if result.StreamURL == "" {
		t.Error("StreamURL is empty")
	}
}

func TestRequestAccessNotFound(t *testing.T) {
	gate, _ := newTestGate(t)
	if _, err := gate.RequestAccess(context.Background(), "missing", "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RequestAccess() error = %v, want ErrNotFound", err)
	}
}

func TestRequestAccessNotReady(t *testing.T) {
	gate, store := newTestGate(t)
	mustCreate(t, store, model.Video{
		ID:         "v1",
		Visibility: model.VisibilityPublic,
		Status:     model.StatusProcessing,
	})

	_, err := gate.RequestAccess(context.Background(), "v1", "", "")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("RequestAccess() error = %v, want ErrNotReady", err)
	}
}

func TestRequestAccessPrivateDeniesNonOwner(t *testing.T) {
	gate, store := newTestGate(t)
	mustCreate(t, store, model.Video{
		ID:          "v1",
		OwnerUserID: "owner",
		Visibility:  model.VisibilityPrivate,
		Status:      model.StatusReady,
	})

	if _, err := gate.RequestAccess(context.Background(), "v1", "someone-else", ""); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("RequestAccess() error = %v, want ErrAccessDenied", err)
	}

	result, err := gate.RequestAccess(context.Background(), "v1", "owner", "")
	if err != nil {
		t.Fatalf("RequestAccess() as owner error = %v", err)
	}
	if result.StreamURL == "" {
		t.Error("StreamURL is empty for owner access")
	}
}

func TestRequestAccessPassphraseRequiredAndValidated(t *testing.T) {
	gate, store := newTestGate(t)
	hash, err := HashPassphrase("correct horse", 4)
	if err != nil {
		t.Fatalf("HashPassphrase() error = %v", err)
	}
	mustCreate(t, store, model.Video{
		ID:             "v1",
		Visibility:     model.VisibilityUnlisted,
		PassphraseHash: hash,
		Status:         model.StatusReady,
	})

	if _, err := gate.RequestAccess(context.Background(), "v1", "", ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("RequestAccess() error = %v, want ErrPassphraseRequired", err)
	}

	if _, err := gate.RequestAccess(context.Background(), "v1", "", "wrong"); !errors.Is(err, ErrInvalidPassphrase) {
		t.Fatalf("RequestAccess() error = %v, want ErrInvalidPassphrase", err)
	}

	result, err := gate.RequestAccess(context.Background(), "v1", "", "correct horse")
	if err != nil {
		t.Fatalf("RequestAccess() with correct passphrase error = %v", err)
	}
	if result.StreamURL == "" {
		t.Error("StreamURL is empty")
	}
}
