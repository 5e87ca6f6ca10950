package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/domain/stock"
	"github.com/xenking/order-stock-api/internal/rates"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

type message struct {
	Msg string `json:"msg"`
}

// badRequestError is a malformed request reported back verbatim.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, message{Msg: msg})
}

// writeError maps domain errors to API responses. Unexpected errors are
// logged and reported without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		badReq *badRequestError
		onf    *stock.OrderNotFoundError
		verr   *product.ValidationError
	)
	switch {
	case errors.As(err, &badReq):
		writeMsg(w, http.StatusBadRequest, badReq.msg)
	case errors.As(err, &verr):
		writeMsg(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, stock.ErrInvalidQuantity):
		writeMsg(w, http.StatusBadRequest, "Quantity must be greater than 0.")
	case errors.As(err, &onf):
		writeMsg(w, http.StatusBadRequest, fmt.Sprintf("Order id %d does not exist.", onf.OrderID))
	case errors.Is(err, stock.ErrProductNotFound):
		writeMsg(w, http.StatusBadRequest, "Product does not exist.")
	case errors.Is(err, stock.ErrDuplicateProduct):
		writeMsg(w, http.StatusBadRequest, "Product already ordered.")
	case errors.Is(err, stock.ErrInsufficientStock):
		writeMsg(w, http.StatusBadRequest, "Stock unavailable.")
	case errors.Is(err, product.ErrNotFound):
		writeMsg(w, http.StatusNotFound, "Product not found.")
	case errors.Is(err, order.ErrNotFound):
		writeMsg(w, http.StatusNotFound, "Order not found.")
	case errors.Is(err, order.ErrDetailNotFound):
		writeMsg(w, http.StatusNotFound, "Order detail not found.")
	case errors.Is(err, rates.ErrUnavailable):
		zctx.From(r.Context()).Warn("Exchange rate unavailable", zap.Error(err))
		writeMsg(w, http.StatusBadGateway, "Exchange rate unavailable.")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeMsg(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return badRequest("Malformed request body.")
	}
	return nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("Invalid id %q.", raw)
	}
	return id, nil
}

func required(field string) error {
	return badRequest("%s: this field is required", field)
}
