// Package bearerauth verifies the bearer/session tokens presented on the
// upload and management endpoints (/videos/*). These identify the calling
// user for ownership checks; they are unrelated to the per-resource tokens
// internal/signer mints for HLS playback. Account issuance itself is out
// of scope — this package only verifies tokens an external auth system
// already minted with the shared secret it was configured with.
package bearerauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors surfaced to callers; mapped to AUTHN at the HTTP boundary.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Verifier checks session bearer tokens using a single shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier from a shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID string
}

// VerifyRequest extracts and verifies the bearer token from the request's
// Authorization header, returning the caller's identity.
func (v *Verifier) VerifyRequest(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil, ErrMissingToken
	}

	return v.Verify(parts[1])
}

// Verify validates tokenString and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: sub}, nil
}

// Mint is exposed for tests and local-development tooling that need to
// fabricate a valid session token without a real external auth system.
func (v *Verifier) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
