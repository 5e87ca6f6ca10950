package handler

import (
	"net/http"

	"github.com/xenking/order-stock-api/internal/domain/order"
)

type detailResponse struct {
	ID       int64 `json:"id"`
	Order    int64 `json:"order"`
	Quantity int   `json:"quantity"`
	Product  int64 `json:"product"`
}

func toDetailResponse(d order.Detail) detailResponse {
	return detailResponse{
		ID:       d.ID,
		Order:    d.OrderID,
		Quantity: d.Quantity,
		Product:  d.ProductID,
	}
}

// detailRequest also accepts the legacy "cuantity" spelling of quantity.
type detailRequest struct {
	Order    *int64 `json:"order"`
	Product  *int64 `json:"product"`
	Quantity *int   `json:"quantity"`
	Cuantity *int   `json:"cuantity"`
}

func (req detailRequest) quantity() (int, bool) {
	switch {
	case req.Quantity != nil:
		return *req.Quantity, true
	case req.Cuantity != nil:
		return *req.Cuantity, true
	default:
		return 0, false
	}
}

func (h *Handler) listDetails(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListAllDetails(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]detailResponse, len(list))
	for i, d := range list {
		resp[i] = toDetailResponse(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

// createDetail reserves stock for a new order line.
func (h *Handler) createDetail(w http.ResponseWriter, r *http.Request) {
	var req detailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty, ok := req.quantity()
	switch {
	case req.Order == nil:
		writeError(w, r, required("order"))
		return
	case req.Product == nil:
		writeError(w, r, required("product"))
		return
	case !ok:
		writeError(w, r, required("quantity"))
		return
	}

	res, err := h.stock.Reserve(r.Context(), *req.Order, *req.Product, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMsg(w, http.StatusCreated, res.ProductName+" added.")
}

func (h *Handler) getDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.orders.GetDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailResponse(*d))
}

// deleteDetail returns the reserved units to stock and removes the line.
func (h *Handler) deleteDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.stock.DeleteDetail(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
