package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/order-stock-api/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	db *DB
}

// List returns all orders, newest first. Orders created at the same instant
// are ordered by descending ID.
func (r *OrderRepository) List(_ context.Context) ([]order.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := make([]order.Order, 0, len(r.db.orders))
	for _, o := range r.db.orders {
		list = append(list, o)
	}
	slices.SortFunc(list, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return list, nil
}

func (r *OrderRepository) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	o, ok := r.db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (r *OrderRepository) Create(_ context.Context) (*order.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.seq.order++
	o := order.Order{
		ID:        r.db.seq.order,
		CreatedAt: r.db.now().UTC(),
	}
	r.db.orders[o.ID] = o
	return &o, nil
}

// ListDetails returns the details of one order ordered by ID. An unknown
// order yields an empty list.
func (r *OrderRepository) ListDetails(_ context.Context, orderID int64) ([]order.Detail, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return r.db.detailsOf(orderID), nil
}

// ListAllDetails returns every detail ordered by ID.
func (r *OrderRepository) ListAllDetails(_ context.Context) ([]order.Detail, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := make([]order.Detail, 0, len(r.db.details))
	for _, d := range r.db.details {
		list = append(list, d)
	}
	sortDetails(list)
	return list, nil
}

func (r *OrderRepository) GetDetail(_ context.Context, id int64) (*order.Detail, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	d, ok := r.db.details[id]
	if !ok {
		return nil, order.ErrDetailNotFound
	}
	return &d, nil
}

// detailsOf must be called with the lock held.
func (db *DB) detailsOf(orderID int64) []order.Detail {
	var list []order.Detail
	for _, d := range db.details {
		if d.OrderID == orderID {
			list = append(list, d)
		}
	}
	sortDetails(list)
	return list
}

func sortDetails(list []order.Detail) {
	slices.SortFunc(list, func(a, b order.Detail) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
