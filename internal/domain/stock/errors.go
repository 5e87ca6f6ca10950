package stock

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Reservation validation errors.
var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrProductNotFound   = errors.New("product does not exist")
	ErrDuplicateProduct  = errors.New("product already ordered")
	ErrInsufficientStock = errors.New("stock unavailable")
)

// OrderNotFoundError indicates a reservation targeted an order that does not
// exist.
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d does not exist", e.OrderID)
}

// IsValidation reports whether err is a reservation precondition failure
// that leaves all state unchanged.
func IsValidation(err error) bool {
	var onf *OrderNotFoundError
	return errors.As(err, &onf) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrDuplicateProduct) ||
		errors.Is(err, ErrInsufficientStock)
}
