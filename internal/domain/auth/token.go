// Package auth describes API bearer tokens. Tokens are never stored in
// plain text: only their HMAC-SHA256 digest keyed with a server-side pepper.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrTokenNotFound is returned when no active token matches a hash.
var ErrTokenNotFound = errors.New("token not found")

// Token is an active API token.
type Token struct {
	ID   int64
	Name string
	// Hash is the hex encoded HMAC-SHA256 of the raw token.
	Hash string
}

// Repository provides lookup of active tokens by their hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Token, error)
}

// Hash returns the hex encoded HMAC-SHA256 of token keyed with pepper.
func Hash(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
