package product

import (
	"context"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxNameLength bounds the product name, matching the catalog column width.
const MaxNameLength = 50

// maxPrice is the largest value that fits NUMERIC(10,2).
var maxPrice = decimal.RequireFromString("99999999.99")

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ValidationError describes a product field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Product represents a catalog item with its available stock.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Fields holds every mutable product attribute. It is used for creation and
// full replacement.
type Fields struct {
	Name  string
	Price decimal.Decimal
	Stock int
}

// Validate checks the field ranges enforced by the catalog.
func (f Fields) Validate() error {
	n := utf8.RuneCountInString(f.Name)
	switch {
	case n == 0:
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	case n > MaxNameLength:
		return &ValidationError{Field: "name", Reason: "must be at most 50 characters"}
	case f.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case f.Price.GreaterThan(maxPrice):
		return &ValidationError{Field: "price", Reason: "exceeds maximum value"}
	case !f.Price.Equal(f.Price.Round(2)):
		return &ValidationError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	return ValidateStock(f.Stock)
}

// ValidateStock enforces the non-negative stock invariant.
func ValidateStock(stock int) error {
	if stock < 0 {
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	return nil
}

// Repository defines catalog operations. Stock changes made through SetStock
// bypass reservation logic and are meant for administrative restocks.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, f Fields) (*Product, error)
	Update(ctx context.Context, id int64, f Fields) (*Product, error)
	SetStock(ctx context.Context, id int64, stock int) (*Product, error)
	Delete(ctx context.Context, id int64) error
}
