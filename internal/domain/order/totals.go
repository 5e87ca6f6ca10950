package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-stock-api/internal/domain/product"
)

// RateProvider returns the number of local currency units per foreign unit.
type RateProvider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Totals computes order payment totals from the current catalog prices.
// Prices are never snapshotted: changing a product price changes the total
// of every existing order that contains it.
type Totals struct {
	orders   Repository
	products product.Repository
	rates    RateProvider
}

// NewTotals creates a Totals calculator.
func NewTotals(orders Repository, products product.Repository, rates RateProvider) *Totals {
	return &Totals{
		orders:   orders,
		products: products,
		rates:    rates,
	}
}

// Total returns the sum of quantity × current price over all details of the
// order, rounded to 2 decimal places.
func (t *Totals) Total(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	if _, err := t.orders.GetByID(ctx, orderID); err != nil {
		return decimal.Zero, err
	}

	details, err := t.orders.ListDetails(ctx, orderID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "list details")
	}
	return t.sum(ctx, details)
}

// TotalConverted returns Total divided by the provider's exchange rate in a
// single call, for callers that only need the converted amount. Callers
// that report both amounts use Total and then Convert instead. Empty orders
// short-circuit to zero without consulting the provider.
func (t *Totals) TotalConverted(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	total, err := t.Total(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Convert(ctx, total)
}

// Convert divides a local amount by the current exchange rate.
func (t *Totals) Convert(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	rate, err := t.rates.Rate(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "exchange rate")
	}
	return amount.Div(rate).Round(2), nil
}

func (t *Totals) sum(ctx context.Context, details []Detail) (decimal.Decimal, error) {
	if len(details) == 0 {
		return decimal.Zero, nil
	}

	ids := make([]int64, len(details))
	for i, d := range details {
		ids[i] = d.ProductID
	}

	fetched, err := t.products.GetByIDs(ctx, ids)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get products")
	}

	prices := make(map[int64]decimal.Decimal, len(fetched))
	for _, p := range fetched {
		prices[p.ID] = p.Price
	}

	total := decimal.Zero
	for _, d := range details {
		price, ok := prices[d.ProductID]
		if !ok {
			return decimal.Zero, &DataIntegrityError{DetailID: d.ID, ProductID: d.ProductID}
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(d.Quantity))))
	}
	return total.Round(2), nil
}
