package memory

import (
	"context"

	"github.com/xenking/order-stock-api/internal/domain/auth"
)

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository implements auth.Repository.
type TokenRepository struct {
	db *DB
}

// Upsert registers an active token by its hash.
func (r *TokenRepository) Upsert(_ context.Context, name, hash string) (*auth.Token, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.seq.token++
	t := auth.Token{ID: r.db.seq.token, Name: name, Hash: hash}
	r.db.tokens[hash] = t
	return &t, nil
}

func (r *TokenRepository) FindByHash(_ context.Context, hash string) (*auth.Token, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	t, ok := r.db.tokens[hash]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	return &t, nil
}
