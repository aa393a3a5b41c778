package bearerauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyRequestRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret-at-least-32-bytes-long!!")

	token, err := v.Mint("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/videos/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity, err := v.VerifyRequest(req)
	if err != nil {
		t.Fatalf("VerifyRequest() error = %v", err)
	}
	if identity.UserID != "user-42" {
		t.Errorf("UserID = %v, want user-42", identity.UserID)
	}
}

func TestVerifyRequestMissingHeader(t *testing.T) {
	v := NewVerifier("test-secret-at-least-32-bytes-long!!")
	req := httptest.NewRequest(http.MethodGet, "/videos/abc", nil)

	if _, err := v.VerifyRequest(req); err != ErrMissingToken {
		t.Fatalf("VerifyRequest() error = %v, want ErrMissingToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret-at-least-32-bytes-long!!")

	token, err := v.Mint("user-42", -time.Second)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v1 := NewVerifier("test-secret-at-least-32-bytes-long!!")
	v2 := NewVerifier("different-secret-at-least-32-bytes!")

	token, err := v1.Mint("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := v2.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}
