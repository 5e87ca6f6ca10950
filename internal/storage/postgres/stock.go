package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/domain/stock"
)

const (
	shareOrderSQL = `SELECT id FROM orders WHERE id = $1 FOR SHARE`

	lockOrderSQL = `SELECT id FROM orders WHERE id = $1 FOR UPDATE`

	lockProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	productOrderedSQL = `SELECT EXISTS (SELECT 1 FROM order_details WHERE product_id = $1)`

	updateStockSQL = `UPDATE products SET stock = $2 WHERE id = $1`

	insertDetailSQL = `INSERT INTO order_details (order_id, product_id, quantity) VALUES ($1, $2, $3)
		RETURNING id`

	lockDetailSQL = getDetailSQL + ` FOR UPDATE`

	lockOrderDetailsSQL = listOrderDetailsSQL + ` FOR UPDATE`

	deleteDetailSQL = `DELETE FROM order_details WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ stock.Store = (*StockStore)(nil)

// StockStore implements stock.Store with pgx transactions. Locks are row
// locks taken with SELECT ... FOR SHARE / FOR UPDATE at READ COMMITTED, so
// every statement after a lock sees rows committed by the previous holder.
type StockStore struct {
	pool *pgxpool.Pool
}

// NewStockStore returns a StockStore that uses the given pool.
func NewStockStore(pool *pgxpool.Pool) *StockStore {
	return &StockStore{pool: pool}
}

// InTx implements stock.Store.
func (s *StockStore) InTx(ctx context.Context, fn func(ctx context.Context, tx stock.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &stockTx{tx: tx})
	})
}

type stockTx struct {
	tx pgx.Tx
}

func (t *stockTx) ShareOrder(ctx context.Context, orderID int64) error {
	return t.lockOrder(ctx, shareOrderSQL, orderID)
}

func (t *stockTx) LockOrder(ctx context.Context, orderID int64) error {
	return t.lockOrder(ctx, lockOrderSQL, orderID)
}

func (t *stockTx) lockOrder(ctx context.Context, sql string, orderID int64) error {
	var id int64
	if err := t.tx.QueryRow(ctx, sql, orderID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("locking order %d: %w", orderID, err)
	}
	return nil
}

func (t *stockTx) LockProduct(ctx context.Context, productID int64) (*product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("locking product %d: %w", productID, err)
	}
	return collectProduct(rows, productID)
}

func (t *stockTx) ProductOrdered(ctx context.Context, productID int64) (bool, error) {
	var ordered bool
	if err := t.tx.QueryRow(ctx, productOrderedSQL, productID).Scan(&ordered); err != nil {
		return false, fmt.Errorf("checking orders of product %d: %w", productID, err)
	}
	return ordered, nil
}

func (t *stockTx) SetStock(ctx context.Context, productID int64, stock int) error {
	tag, err := t.tx.Exec(ctx, updateStockSQL, productID, stock)
	if err != nil {
		if isCheckViolation(err) {
			return &product.ValidationError{Field: "stock", Reason: "must not be negative"}
		}
		return fmt.Errorf("updating stock of product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (t *stockTx) InsertDetail(ctx context.Context, d *order.Detail) error {
	err := t.tx.QueryRow(ctx, insertDetailSQL, d.OrderID, d.ProductID, d.Quantity).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("inserting detail: %w", err)
	}
	return nil
}

func (t *stockTx) GetDetail(ctx context.Context, id int64) (*order.Detail, error) {
	return getDetail(ctx, t.tx, getDetailSQL, id)
}

func (t *stockTx) LockDetail(ctx context.Context, id int64) (*order.Detail, error) {
	return getDetail(ctx, t.tx, lockDetailSQL, id)
}

// ListDetails locks the order's details in id order. Callers lock products
// only afterwards, the same way ProductRepository.Delete does.
func (t *stockTx) ListDetails(ctx context.Context, orderID int64) ([]order.Detail, error) {
	return listDetails(ctx, t.tx, lockOrderDetailsSQL, orderID)
}

func (t *stockTx) DeleteDetail(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteDetailSQL, id)
	if err != nil {
		return fmt.Errorf("deleting detail %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrDetailNotFound
	}
	return nil
}

func (t *stockTx) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
