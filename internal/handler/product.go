package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-stock-api/internal/domain/product"
)

type productResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:    p.ID,
		Name:  p.Name,
		Price: p.Price.StringFixed(2),
		Stock: p.Stock,
	}
}

// productRequest accepts the price as a JSON string or number.
type productRequest struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

func (req productRequest) fields() (product.Fields, error) {
	switch {
	case req.Name == nil:
		return product.Fields{}, required("name")
	case req.Price == nil:
		return product.Fields{}, required("price")
	case req.Stock == nil:
		return product.Fields{}, required("stock")
	}
	f := product.Fields{Name: *req.Name, Price: *req.Price, Stock: *req.Stock}
	return f, f.Validate()
}

type stockRequest struct {
	Stock *int `json:"stock"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]productResponse, len(list))
	for i, p := range list {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := req.fields()
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(*p))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req productRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := req.fields()
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), id, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// deleteProduct removes the product and, through the storage cascade, its
// order details. Stock is not restored.
func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// modifyStock overwrites the stock only. Reservations are not involved.
func (h *Handler) modifyStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req stockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Stock == nil {
		writeError(w, r, required("stock"))
		return
	}
	p, err := h.products.SetStock(r.Context(), id, *req.Stock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}
