// Package signer mints and verifies the short-lived bearer tokens that
// gate access to a video's HLS resources (master playlist, variant
// playlists, segments). Each token binds to one videoId, one resource
// path, and optionally the requesting userId, and carries its own
// expiry — it is independent of the bearer/session tokens internal/bearerauth
// verifies on the upload and management endpoints.
package signer

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by Verify, mapped to the Signer error taxonomy
// (INVALID_SIGNATURE, TOKEN_EXPIRED, RESOURCE_MISMATCH) at the HTTP boundary.
var (
	ErrMalformed       = errors.New("malformed token")
	ErrBadSignature    = errors.New("bad signature")
	ErrExpired         = errors.New("token expired")
	ErrResourceMismatch = errors.New("token does not match requested resource")
)

// Claims is the payload carried by a resource token.
type Claims struct {
	VideoID  string `json:"vid"`
	Resource string `json:"res"`
	UserID   string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and verifies resource tokens using a single shared HMAC
// secret. There is no key rotation or discovery: the secret is
// provisioned directly via config.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// New creates a Signer. secret must be non-empty; ttl is the default
// lifetime used by Mint.
func New(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Mint produces an opaque bearer token scoped to videoID and resource,
// optionally bound to userID (empty for anonymous/public access). The
// token expires after the Signer's configured TTL.
func (s *Signer) Mint(videoID, resource, userID string) (string, error) {
	return s.MintWithTTL(videoID, resource, userID, s.ttl)
}

// MintWithTTL is Mint with an explicit lifetime, used when a caller needs
// a shorter-than-default window (e.g. re-minting segment tokens to match
// the remaining lifetime of a playlist token).
func (s *Signer) MintWithTTL(videoID, resource, userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		VideoID:  videoID,
		Resource: resource,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// MintMany mints one token per resource, all bound to videoID and userID
// and sharing the same expiry, so a playlist rewrite can batch its child
// tokens in one call instead of minting line by line. The returned slice
// is positional: result[i] corresponds to resources[i].
func (s *Signer) MintMany(videoID string, resources []string, userID string) ([]string, error) {
	now := time.Now().UTC()
	expiresAt := jwt.NewNumericDate(now.Add(s.ttl))
	issuedAt := jwt.NewNumericDate(now)

	tokens := make([]string, len(resources))
	for i, resource := range resources {
		claims := Claims{
			VideoID:  videoID,
			Resource: resource,
			UserID:   userID,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  issuedAt,
				ExpiresAt: expiresAt,
			},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(s.secret)
		if err != nil {
			return nil, err
		}
		tokens[i] = signed
	}
	return tokens, nil
}

// Verify checks a token's signature and expiry, then confirms it was
// minted for exactly the given videoID and resource. Mismatches on either
// dimension return ErrResourceMismatch rather than ErrBadSignature: the
// token is authentic, just not valid for what was requested.
func (s *Signer) Verify(tokenString, videoID, resource string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrBadSignature
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrMalformed
		}
		return nil, ErrBadSignature
	}
	if !token.Valid {
		return nil, ErrBadSignature
	}

	if claims.VideoID != videoID || claims.Resource != resource {
		return nil, ErrResourceMismatch
	}

	return claims, nil
}
