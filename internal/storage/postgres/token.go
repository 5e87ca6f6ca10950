package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-stock-api/internal/domain/auth"
)

const (
	findTokenByHashSQL = `SELECT id, name, token_hash FROM api_tokens WHERE token_hash = $1 AND active`

	upsertTokenSQL = `INSERT INTO api_tokens (token_hash, name) VALUES ($1, $2)
		ON CONFLICT (token_hash) DO UPDATE SET name = EXCLUDED.name, active = TRUE
		RETURNING id, name, token_hash`
)

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository provides API token lookups backed by PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindByHash looks up an active token by its HMAC-SHA256 hash.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*auth.Token, error) {
	var t auth.Token
	err := r.pool.QueryRow(ctx, findTokenByHashSQL, hash).Scan(&t.ID, &t.Name, &t.Hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, fmt.Errorf("finding token by hash: %w", err)
	}
	return &t, nil
}

// Upsert stores an active token hash, reactivating it if it already exists.
func (r *TokenRepository) Upsert(ctx context.Context, name, hash string) (*auth.Token, error) {
	var t auth.Token
	if err := r.pool.QueryRow(ctx, upsertTokenSQL, hash, name).Scan(&t.ID, &t.Name, &t.Hash); err != nil {
		return nil, fmt.Errorf("upserting token %q: %w", name, err)
	}
	return &t, nil
}
