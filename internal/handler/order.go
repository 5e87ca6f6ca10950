package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-stock-api/internal/domain/order"
)

type orderResponse struct {
	ID          int64     `json:"id"`
	DateTime    time.Time `json:"date_time"`
	GetTotal    string    `json:"get_total"`
	GetTotalUSD string    `json:"get_total_usd"`
}

type detailRowResponse struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	Quantity  int   `json:"quantity"`
	ProductID int64 `json:"product_id"`
}

func (h *Handler) toOrderResponse(ctx context.Context, o order.Order) (orderResponse, error) {
	total, err := h.totals.Total(ctx, o.ID)
	if err != nil {
		return orderResponse{}, errors.Wrapf(err, "total of order %d", o.ID)
	}
	usd, err := h.totals.Convert(ctx, total)
	if err != nil {
		return orderResponse{}, errors.Wrapf(err, "converted total of order %d", o.ID)
	}
	return orderResponse{
		ID:          o.ID,
		DateTime:    o.CreatedAt.UTC(),
		GetTotal:    total.StringFixed(2),
		GetTotalUSD: usd.StringFixed(2),
	}, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(list))
	for i, o := range list {
		if resp[i], err = h.toOrderResponse(r.Context(), o); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// createOrder creates an empty order. The request body, if any, is ignored.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.toOrderResponse(r.Context(), *o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.toOrderResponse(r.Context(), *o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteOrder returns every reserved unit to stock and removes the order
// with its details atomically.
func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.stock.DeleteOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getOrderDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.orders.GetByID(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	details, err := h.orders.ListDetails(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]detailRowResponse, len(details))
	for i, d := range details {
		resp[i] = detailRowResponse{
			ID:        d.ID,
			OrderID:   d.OrderID,
			Quantity:  d.Quantity,
			ProductID: d.ProductID,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
