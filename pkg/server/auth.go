package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength     = 16
	iterationCount = 4096
	keyLength      = 32
)

// Authenticator guards the HTTP API with a single shared bearer token,
// derived from an operator-supplied passphrase via PBKDF2-HMAC-SHA256
// rather than stored or compared in the clear.
type Authenticator struct {
	salt []byte
	key  []byte
}

// NewAuthenticator derives a verification key from passphrase under a
// freshly generated salt.
func NewAuthenticator(passphrase string) (*Authenticator, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate auth salt: %w", err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterationCount, keyLength, sha256.New)
	return &Authenticator{salt: salt, key: key}, nil
}

// Token returns the bearer token clients must present. The server prints
// this once at startup; it is not recoverable from the passphrase alone
// without the salt generated for this run.
func (a *Authenticator) Token() string {
	return base64.StdEncoding.EncodeToString(a.key)
}

// Middleware rejects any request whose Authorization header does not carry
// the exact bearer token, using a constant-time comparison.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	expected := []byte(a.Token())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !hmac.Equal([]byte(token), expected) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
