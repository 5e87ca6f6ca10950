// Package seed loads the default catalog and registers bearer tokens.
package seed

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-stock-api/internal/domain/auth"
	"github.com/xenking/order-stock-api/internal/domain/product"
)

type productJSON struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// ParseProducts decodes a JSON array of {name, price, stock} objects and
// validates every entry.
func ParseProducts(data []byte) ([]product.Fields, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products")
	}
	out := make([]product.Fields, len(raw))
	for i, p := range raw {
		f := product.Fields{Name: p.Name, Price: p.Price, Stock: p.Stock}
		if err := f.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %d", i)
		}
		out[i] = f
	}
	return out, nil
}

// Products creates the given products when the catalog is empty and returns
// how many were created. A non-empty catalog is left untouched so reruns do
// not duplicate rows.
func Products(ctx context.Context, repo product.Repository, products []product.Fields) (int, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list products")
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, f := range products {
		if _, err := repo.Create(ctx, f); err != nil {
			return 0, errors.Wrapf(err, "create product %q", f.Name)
		}
	}
	return len(products), nil
}

// TokenStore persists token hashes.
type TokenStore interface {
	Upsert(ctx context.Context, name, hash string) (*auth.Token, error)
}

// Token registers raw under name, storing only its peppered hash.
func Token(ctx context.Context, store TokenStore, pepper []byte, name, raw string) (*auth.Token, error) {
	if raw == "" {
		return nil, errors.New("empty token")
	}
	t, err := store.Upsert(ctx, name, auth.Hash(pepper, raw))
	if err != nil {
		return nil, errors.Wrapf(err, "upsert token %q", name)
	}
	return t, nil
}
