package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-stock-api/internal/domain/auth"
)

// SecurityHandler authenticates requests by bearer token. Tokens are looked
// up by their HMAC-SHA256 digest keyed with a server-side pepper.
type SecurityHandler struct {
	tokens auth.Repository
	pepper []byte
}

// NewSecurityHandler creates a SecurityHandler with the given token
// repository and HMAC pepper.
func NewSecurityHandler(tokens auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		tokens: tokens,
		pepper: pepper,
	}
}

// Authenticate rejects requests without a valid Authorization: Bearer token
// with 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeMsg(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		hash := auth.Hash(s.pepper, raw)
		token, err := s.tokens.FindByHash(r.Context(), hash)
		switch {
		case errors.Is(err, auth.ErrTokenNotFound):
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeMsg(w, http.StatusUnauthorized, "Invalid token.")
			return
		case err != nil:
			writeError(w, r, errors.Wrap(err, "find token"))
			return
		}

		// The stored digest must match what we computed, not just the row
		// the lookup happened to return.
		if !equalHex(hash, token.Hash) {
			writeMsg(w, http.StatusUnauthorized, "Invalid token.")
			return
		}

		ctx := zctx.With(r.Context(), zap.String("token", token.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func equalHex(a, b string) bool {
	x, err := hex.DecodeString(a)
	if err != nil {
		return false
	}
	y, err := hex.DecodeString(b)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(x, y) == 1
}
