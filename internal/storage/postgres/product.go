package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-stock-api/internal/domain/product"
)

const (
	productColumns = `id, name, price, stock`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	createProductSQL = `INSERT INTO products (name, price, stock) VALUES ($1, $2, $3)
		RETURNING ` + productColumns

	updateProductSQL = `UPDATE products SET name = $2, price = $3, stock = $4 WHERE id = $1
		RETURNING ` + productColumns

	setProductStockSQL = `UPDATE products SET stock = $2 WHERE id = $1
		RETURNING ` + productColumns

	lockProductDetailsSQL = `SELECT id FROM order_details WHERE product_id = $1 ORDER BY id FOR UPDATE`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return collectProduct(rows, id)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create validates and inserts a product.
func (r *ProductRepository) Create(ctx context.Context, f product.Fields) (*product.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, createProductSQL, f.Name, f.Price, f.Stock)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return &p, nil
}

// Update replaces every mutable field of a product.
func (r *ProductRepository) Update(ctx context.Context, id int64, f product.Fields) (*product.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, updateProductSQL, id, f.Name, f.Price, f.Stock)
	if err != nil {
		return nil, fmt.Errorf("updating product %d: %w", id, err)
	}
	return collectProduct(rows, id)
}

// SetStock overwrites the stock of a product.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, stock int) (*product.Product, error) {
	if err := product.ValidateStock(stock); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, setProductStockSQL, id, stock)
	if err != nil {
		return nil, fmt.Errorf("setting stock of product %d: %w", id, err)
	}
	return collectProduct(rows, id)
}

// Delete removes a product. Its order details are removed by the foreign key
// cascade. They are locked before the product row, the same order
// stock.Engine uses when it deletes details or whole orders.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockProductDetailsSQL, id); err != nil {
			return fmt.Errorf("locking details of product %d: %w", id, err)
		}
		tag, err := tx.Exec(ctx, deleteProductSQL, id)
		if err != nil {
			return fmt.Errorf("deleting product %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return product.ErrNotFound
		}
		return nil
	})
}

func collectProduct(rows pgx.Rows, id int64) (*product.Product, error) {
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		if isCheckViolation(err) {
			return nil, &product.ValidationError{Field: "stock", Reason: "must not be negative"}
		}
		return nil, fmt.Errorf("reading product %d: %w", id, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	return p, err
}
