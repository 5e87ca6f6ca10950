package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-stock-api/internal/domain/order"
)

const (
	listOrdersSQL = `SELECT id, created_at FROM orders ORDER BY created_at DESC, id DESC`

	getOrderByIDSQL = `SELECT id, created_at FROM orders WHERE id = $1`

	createOrderSQL = `INSERT INTO orders DEFAULT VALUES RETURNING id, created_at`

	detailColumns = `id, order_id, product_id, quantity`

	listOrderDetailsSQL = `SELECT ` + detailColumns + ` FROM order_details WHERE order_id = $1 ORDER BY id`

	listAllDetailsSQL = `SELECT ` + detailColumns + ` FROM order_details ORDER BY id`

	getDetailSQL = `SELECT ` + detailColumns + ` FROM order_details WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// Create inserts an empty order stamped with the database clock.
func (r *OrderRepository) Create(ctx context.Context) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, createOrderSQL)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	return &o, nil
}

// ListDetails returns the details of one order ordered by ID.
func (r *OrderRepository) ListDetails(ctx context.Context, orderID int64) ([]order.Detail, error) {
	return listDetails(ctx, r.pool, listOrderDetailsSQL, orderID)
}

// ListAllDetails returns every order detail ordered by ID.
func (r *OrderRepository) ListAllDetails(ctx context.Context) ([]order.Detail, error) {
	rows, err := r.pool.Query(ctx, listAllDetailsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing details: %w", err)
	}
	return pgx.CollectRows(rows, scanDetail)
}

// GetDetail returns a single order detail.
func (r *OrderRepository) GetDetail(ctx context.Context, id int64) (*order.Detail, error) {
	return getDetail(ctx, r.pool, getDetailSQL, id)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listDetails(ctx context.Context, q querier, sql string, orderID int64) ([]order.Detail, error) {
	rows, err := q.Query(ctx, sql, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing details of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanDetail)
}

func getDetail(ctx context.Context, q querier, sql string, id int64) (*order.Detail, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting detail %d: %w", id, err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDetail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrDetailNotFound
		}
		return nil, fmt.Errorf("getting detail %d: %w", id, err)
	}
	return &d, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.CreatedAt)
	return o, err
}

func scanDetail(row pgx.CollectableRow) (order.Detail, error) {
	var d order.Detail
	err := row.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity)
	return d, err
}
