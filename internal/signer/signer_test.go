package signer

import (
	"errors"
	"testing"
	"time"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	s := New("test-secret-at-least-32-bytes-long!!", time.Hour)

	token, err := s.Mint("video-1", "master.m3u8", "user-1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := s.Verify(token, "video-1", "master.m3u8")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.VideoID != "video-1" || claims.Resource != "master.m3u8" || claims.UserID != "user-1" {
		t.Errorf("claims = %+v, unexpected", claims)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	s := New("test-secret-at-least-32-bytes-long!!", time.Hour)

	token, err := s.Mint("video-1", "master.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	tampered := token[:len(token)-4] + "abcd"
	if _, err := s.Verify(tampered, "video-1", "master.m3u8"); err == nil {
		t.Fatal("Verify() expected error for tampered token, got nil")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := New("test-secret-at-least-32-bytes-long!!", -time.Second)

	token, err := s.Mint("video-1", "master.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = s.Verify(token, "video-1", "master.m3u8")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify() error = %v, want ErrExpired", err)
	}
}

func TestVerifyRejectsResourceMismatch(t *testing.T) {
	s := New("test-secret-at-least-32-bytes-long!!", time.Hour)

	token, err := s.Mint("video-1", "1080p/index.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := s.Verify(token, "video-1", "720p/index.m3u8"); !errors.Is(err, ErrResourceMismatch) {
		t.Fatalf("Verify() error = %v, want ErrResourceMismatch", err)
	}
	if _, err := s.Verify(token, "video-2", "1080p/index.m3u8"); !errors.Is(err, ErrResourceMismatch) {
		t.Fatalf("Verify() error = %v, want ErrResourceMismatch", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s1 := New("test-secret-at-least-32-bytes-long!!", time.Hour)
	s2 := New("different-secret-at-least-32-bytes!", time.Hour)

	token, err := s1.Mint("video-1", "master.m3u8", "")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := s2.Verify(token, "video-1", "master.m3u8"); err == nil {
		t.Fatal("Verify() expected error when verifying with a different secret, got nil")
	}
}
