package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-stock-api/db"
	"github.com/xenking/order-stock-api/internal/domain/auth"
	"github.com/xenking/order-stock-api/internal/storage/memory"
)

func TestParseProducts_Embedded(t *testing.T) {
	products, err := ParseProducts(db.SeedProducts)
	require.NoError(t, err)
	require.NotEmpty(t, products)
	assert.Equal(t, "Espresso", products[0].Name)
	assert.Equal(t, "3.00", products[0].Price.StringFixed(2))
	assert.Equal(t, 40, products[0].Stock)
}

func TestParseProducts_Invalid(t *testing.T) {
	_, err := ParseProducts([]byte(`{"name": "x"}`))
	require.Error(t, err)

	_, err = ParseProducts([]byte(`[{"name": "x", "price": "1.00", "stock": -1}]`))
	require.Error(t, err)
}

func TestProducts_OnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	repo := memory.New().Products()
	products, err := ParseProducts(db.SeedProducts)
	require.NoError(t, err)

	n, err := Products(ctx, repo, products)
	require.NoError(t, err)
	assert.Equal(t, len(products), n)

	n, err = Products(ctx, repo, products)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(products))
}

func TestToken(t *testing.T) {
	ctx := context.Background()
	tokens := memory.New().Tokens()
	pepper := []byte("pepper")

	created, err := Token(ctx, tokens, pepper, "default", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "default", created.Name)

	found, err := tokens.FindByHash(ctx, auth.Hash(pepper, "s3cret"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = Token(ctx, tokens, pepper, "default", "")
	require.Error(t, err)
}
