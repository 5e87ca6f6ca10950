// Package handler implements the HTTP API on top of the domain packages.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/domain/stock"
)

// Handler serves the product, order and order detail resources.
type Handler struct {
	products product.Repository
	orders   order.Repository
	stock    *stock.Engine
	totals   *order.Totals
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	orders order.Repository,
	engine *stock.Engine,
	totals *order.Totals,
) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
		stock:    engine,
		totals:   totals,
	}
}

// Router returns the API routes. Every route requires a bearer token checked
// by sec. Trailing slashes are optional.
func (h *Handler) Router(sec *SecurityHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMsg(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMsg(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	r.Group(func(r chi.Router) {
		r.Use(sec.Authenticate)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getProduct)
				r.Put("/", h.updateProduct)
				r.Delete("/", h.deleteProduct)
				r.Put("/modify-stock", h.modifyStock)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.createOrder)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Delete("/", h.deleteOrder)
				r.Get("/get-details", h.getOrderDetails)
			})
		})

		r.Route("/order-details", func(r chi.Router) {
			r.Get("/", h.listDetails)
			r.Post("/", h.createDetail)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getDetail)
				r.Delete("/", h.deleteDetail)
			})
		})
	})

	return r
}
