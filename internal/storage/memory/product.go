package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/order-stock-api/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	db *DB
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := make([]product.Product, 0, len(r.db.products))
	for _, p := range r.db.products {
		list = append(list, p)
	}
	slices.SortFunc(list, func(a, b product.Product) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return list, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids. Unknown IDs are
// skipped.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok {
			list = append(list, p)
		}
	}
	return list, nil
}

func (r *ProductRepository) Create(_ context.Context, f product.Fields) (*product.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.seq.product++
	p := product.Product{
		ID:    r.db.seq.product,
		Name:  f.Name,
		Price: f.Price,
		Stock: f.Stock,
	}
	r.db.products[p.ID] = p
	return &p, nil
}

func (r *ProductRepository) Update(_ context.Context, id int64, f product.Fields) (*product.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p.Name, p.Price, p.Stock = f.Name, f.Price, f.Stock
	r.db.products[id] = p
	return &p, nil
}

func (r *ProductRepository) SetStock(_ context.Context, id int64, stock int) (*product.Product, error) {
	if err := product.ValidateStock(stock); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p.Stock = stock
	r.db.products[id] = p
	return &p, nil
}

// Delete removes the product together with every detail referencing it.
// Stock of other products is left untouched.
func (r *ProductRepository) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.products[id]; !ok {
		return product.ErrNotFound
	}
	for detailID, d := range r.db.details {
		if d.ProductID == id {
			delete(r.db.details, detailID)
		}
	}
	delete(r.db.products, id)
	return nil
}
