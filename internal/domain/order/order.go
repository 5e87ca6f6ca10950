package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for order lookups.
var (
	ErrNotFound       = errors.New("order not found")
	ErrDetailNotFound = errors.New("order detail not found")
)

// DataIntegrityError indicates an order detail references a product that no
// longer exists.
type DataIntegrityError struct {
	DetailID  int64
	ProductID int64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("order detail %d references missing product %d", e.DetailID, e.ProductID)
}

// Order is a customer order. Its line items are stored as Details.
type Order struct {
	ID        int64
	CreatedAt time.Time
}

// Detail is a single order line linking an order to a product.
type Detail struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
}

// Repository defines persistence operations for orders and their details.
// Mutations of details go through the stock engine, never through this
// interface.
type Repository interface {
	// List returns all orders, newest first.
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	Create(ctx context.Context) (*Order, error)

	ListDetails(ctx context.Context, orderID int64) ([]Detail, error)
	ListAllDetails(ctx context.Context) ([]Detail, error)
	GetDetail(ctx context.Context, id int64) (*Detail, error)
}
