package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-stock-api/internal/domain/product"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders  map[int64]*Order
	details []Detail
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) { return nil, nil }

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) Create(_ context.Context) (*Order, error) { return nil, nil }

func (m *mockOrderRepo) ListDetails(_ context.Context, orderID int64) ([]Detail, error) {
	var out []Detail
	for _, d := range m.details {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListAllDetails(_ context.Context) ([]Detail, error) { return m.details, nil }

func (m *mockOrderRepo) GetDetail(_ context.Context, _ int64) (*Detail, error) {
	return nil, ErrDetailNotFound
}

type mockProductRepo struct {
	product.Repository
	byID map[int64]product.Product
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockRates struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (m *mockRates) Rate(_ context.Context) (decimal.Decimal, error) {
	m.calls++
	return m.rate, m.err
}

// --- Helpers ---

func newFixture() (*mockOrderRepo, *mockProductRepo) {
	orders := &mockOrderRepo{
		orders: map[int64]*Order{1: {ID: 1}, 2: {ID: 2}},
		details: []Detail{
			{ID: 1, OrderID: 1, ProductID: 1, Quantity: 5},
			{ID: 2, OrderID: 1, ProductID: 2, Quantity: 2},
		},
	}
	products := &mockProductRepo{byID: map[int64]product.Product{
		1: {ID: 1, Name: "plate", Price: decimal.RequireFromString("3.00"), Stock: 15},
		2: {ID: 2, Name: "cup", Price: decimal.RequireFromString("1.25"), Stock: 8},
	}}
	return orders, products
}

// --- Tests ---

func TestTotal(t *testing.T) {
	orders, products := newFixture()
	totals := NewTotals(orders, products, &mockRates{})

	total, err := totals.Total(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("17.50").Equal(total), "got %s", total)
}

func TestTotal_EmptyOrder(t *testing.T) {
	orders, products := newFixture()
	totals := NewTotals(orders, products, &mockRates{})

	total, err := totals.Total(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestTotal_OrderNotFound(t *testing.T) {
	orders, products := newFixture()
	totals := NewTotals(orders, products, &mockRates{})

	_, err := totals.Total(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTotal_LivePrice(t *testing.T) {
	orders, products := newFixture()
	totals := NewTotals(orders, products, &mockRates{})

	p := products.byID[1]
	p.Price = decimal.RequireFromString("4.00")
	products.byID[1] = p

	total, err := totals.Total(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("22.50").Equal(total), "got %s", total)
}

func TestTotal_MissingProduct(t *testing.T) {
	orders, products := newFixture()
	delete(products.byID, 2)
	totals := NewTotals(orders, products, &mockRates{})

	_, err := totals.Total(context.Background(), 1)

	var diErr *DataIntegrityError
	require.ErrorAs(t, err, &diErr)
	assert.Equal(t, int64(2), diErr.DetailID)
	assert.Equal(t, int64(2), diErr.ProductID)
}

func TestTotalConverted(t *testing.T) {
	orders, products := newFixture()
	rates := &mockRates{rate: decimal.RequireFromString("350")}
	totals := NewTotals(orders, products, rates)

	converted, err := totals.TotalConverted(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.05").Equal(converted), "got %s", converted)
	assert.Equal(t, 1, rates.calls)
}

func TestTotalConverted_EmptyOrderSkipsProvider(t *testing.T) {
	orders, products := newFixture()
	rates := &mockRates{err: errors.New("upstream down")}
	totals := NewTotals(orders, products, rates)

	converted, err := totals.TotalConverted(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, converted.IsZero())
	assert.Zero(t, rates.calls)
}

func TestTotalConverted_ProviderError(t *testing.T) {
	orders, products := newFixture()
	upstream := errors.New("upstream down")
	totals := NewTotals(orders, products, &mockRates{err: upstream})

	_, err := totals.TotalConverted(context.Background(), 1)
	require.ErrorIs(t, err, upstream)
	assert.Contains(t, err.Error(), "exchange rate")
}
