// Package memory implements every storage contract in process memory. It is
// used for local development and as the reference store in tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/xenking/order-stock-api/internal/domain/auth"
	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/domain/stock"
)

var _ stock.Store = (*DB)(nil)

// DB holds all tables. Transactions run one at a time behind the write lock,
// which makes every stock.Tx lock trivially held.
type DB struct {
	mu sync.RWMutex

	products map[int64]product.Product
	orders   map[int64]order.Order
	details  map[int64]order.Detail
	tokens   map[string]auth.Token

	seq struct {
		product, order, detail, token int64
	}

	now func() time.Time
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		products: map[int64]product.Product{},
		orders:   map[int64]order.Order{},
		details:  map[int64]order.Detail{},
		tokens:   map[string]auth.Token{},
		now:      time.Now,
	}
}

// Products returns the catalog repository.
func (db *DB) Products() *ProductRepository { return &ProductRepository{db: db} }

// Orders returns the order repository.
func (db *DB) Orders() *OrderRepository { return &OrderRepository{db: db} }

// Tokens returns the API token repository.
func (db *DB) Tokens() *TokenRepository { return &TokenRepository{db: db} }

// InTx implements stock.Store. Changes made by fn are discarded when it
// returns an error.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx stock.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var (
		products = maps.Clone(db.products)
		orders   = maps.Clone(db.orders)
		details  = maps.Clone(db.details)
		seq      = db.seq
	)
	if err := fn(ctx, &tx{db: db}); err != nil {
		db.products, db.orders, db.details, db.seq = products, orders, details, seq
		return err
	}
	return nil
}

// tx operates on the DB with the write lock already held.
type tx struct {
	db *DB
}

func (t *tx) ShareOrder(_ context.Context, orderID int64) error {
	if _, ok := t.db.orders[orderID]; !ok {
		return order.ErrNotFound
	}
	return nil
}

func (t *tx) LockOrder(ctx context.Context, orderID int64) error {
	return t.ShareOrder(ctx, orderID)
}

func (t *tx) LockProduct(_ context.Context, productID int64) (*product.Product, error) {
	p, ok := t.db.products[productID]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (t *tx) ProductOrdered(_ context.Context, productID int64) (bool, error) {
	for _, d := range t.db.details {
		if d.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) SetStock(_ context.Context, productID int64, stock int) error {
	p, ok := t.db.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if err := product.ValidateStock(stock); err != nil {
		return err
	}
	p.Stock = stock
	t.db.products[productID] = p
	return nil
}

func (t *tx) InsertDetail(_ context.Context, d *order.Detail) error {
	if _, ok := t.db.orders[d.OrderID]; !ok {
		return order.ErrNotFound
	}
	if _, ok := t.db.products[d.ProductID]; !ok {
		return product.ErrNotFound
	}
	t.db.seq.detail++
	d.ID = t.db.seq.detail
	t.db.details[d.ID] = *d
	return nil
}

func (t *tx) GetDetail(_ context.Context, id int64) (*order.Detail, error) {
	d, ok := t.db.details[id]
	if !ok {
		return nil, order.ErrDetailNotFound
	}
	return &d, nil
}

func (t *tx) LockDetail(ctx context.Context, id int64) (*order.Detail, error) {
	return t.GetDetail(ctx, id)
}

func (t *tx) ListDetails(_ context.Context, orderID int64) ([]order.Detail, error) {
	return t.db.detailsOf(orderID), nil
}

func (t *tx) DeleteDetail(_ context.Context, id int64) error {
	if _, ok := t.db.details[id]; !ok {
		return order.ErrDetailNotFound
	}
	delete(t.db.details, id)
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.db.orders[id]; !ok {
		return order.ErrNotFound
	}
	// Same as the ON DELETE CASCADE of the relational schema.
	for detailID, d := range t.db.details {
		if d.OrderID == id {
			delete(t.db.details, detailID)
		}
	}
	delete(t.db.orders, id)
	return nil
}
