// Package stock keeps product stock consistent with the set of active order
// details.
//
// Every operation runs inside a single storage transaction. Locks are taken
// in a fixed order (order, then detail, then products by ascending ID), so a
// reservation can never pass the stock check concurrently with another one
// against the same product, and workflows touching the same rows cannot
// deadlock.
package stock

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/events"
)

const instrumentationName = "github.com/xenking/order-stock-api/internal/domain/stock"

// Tx is the set of storage operations available inside a transaction.
type Tx interface {
	// ShareOrder checks the order exists and blocks its deletion until the
	// transaction ends. Returns order.ErrNotFound.
	ShareOrder(ctx context.Context, orderID int64) error
	// LockOrder checks the order exists and locks it exclusively.
	// Returns order.ErrNotFound.
	LockOrder(ctx context.Context, orderID int64) error
	// LockProduct returns the product and locks it until the transaction
	// ends. Returns product.ErrNotFound.
	LockProduct(ctx context.Context, productID int64) (*product.Product, error)
	// ProductOrdered reports whether any detail of any order references the
	// product.
	ProductOrdered(ctx context.Context, productID int64) (bool, error)
	SetStock(ctx context.Context, productID int64, stock int) error

	// InsertDetail persists d and assigns its ID.
	InsertDetail(ctx context.Context, d *order.Detail) error
	// GetDetail and LockDetail return order.ErrDetailNotFound.
	GetDetail(ctx context.Context, id int64) (*order.Detail, error)
	LockDetail(ctx context.Context, id int64) (*order.Detail, error)
	// ListDetails returns the order's details ordered by ID and locks them
	// until the transaction ends.
	ListDetails(ctx context.Context, orderID int64) ([]order.Detail, error)
	DeleteDetail(ctx context.Context, id int64) error
	DeleteOrder(ctx context.Context, id int64) error
}

// Store runs fn atomically: every change made through tx is committed when
// fn returns nil and discarded otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reservation is the outcome of a successful Reserve.
type Reservation struct {
	Detail      order.Detail
	ProductName string
	// Stock is the product stock left after the reservation.
	Stock int
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	publisher      events.Publisher
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithPublisher sets the publisher notified after committed changes.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithTracerProvider sets the tracer provider for engine spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for engine counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Engine implements reservations and releases of product stock.
type Engine struct {
	store     Store
	publisher events.Publisher
	tracer    trace.Tracer

	reservations metric.Int64Counter
	releases     metric.Int64Counter
}

// NewEngine creates an Engine over the given transactional store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	o := options{
		publisher:      events.Nop{},
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	reservations, err := meter.Int64Counter("stock.reservations",
		metric.WithDescription("Stock reservation attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "reservations counter")
	}
	releases, err := meter.Int64Counter("stock.releases",
		metric.WithDescription("Order details released back to stock"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "releases counter")
	}

	return &Engine{
		store:        store,
		publisher:    o.publisher,
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		reservations: reservations,
		releases:     releases,
	}, nil
}

// Reserve takes quantity units of the product for the order and records the
// order detail. Preconditions are checked in a fixed order and the first
// failure is returned: quantity, order existence, product existence,
// duplicate product, available stock. A failed reservation changes nothing.
//
// A product may be referenced by at most one detail across all orders, not
// just within the target order.
func (e *Engine) Reserve(ctx context.Context, orderID, productID int64, quantity int) (_ *Reservation, rerr error) {
	ctx, span := e.tracer.Start(ctx, "stock.Reserve", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", quantity),
	))
	defer func() {
		e.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", reserveResult(rerr))))
		endSpan(span, rerr)
	}()

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var res Reservation
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ShareOrder(ctx, orderID); err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return &OrderNotFoundError{OrderID: orderID}
			}
			return errors.Wrap(err, "lock order")
		}

		p, err := tx.LockProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return ErrProductNotFound
			}
			return errors.Wrap(err, "lock product")
		}

		ordered, err := tx.ProductOrdered(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "check ordered")
		}
		if ordered {
			return ErrDuplicateProduct
		}

		if p.Stock < quantity {
			return ErrInsufficientStock
		}

		remaining := p.Stock - quantity
		if err := tx.SetStock(ctx, productID, remaining); err != nil {
			return errors.Wrap(err, "set stock")
		}

		d := order.Detail{
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  quantity,
		}
		if err := tx.InsertDetail(ctx, &d); err != nil {
			return errors.Wrap(err, "insert detail")
		}

		res = Reservation{
			Detail:      d,
			ProductName: p.Name,
			Stock:       remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := events.New(events.TypeStockReserved, orderID)
	ev.DetailID = res.Detail.ID
	ev.ProductID = productID
	ev.Quantity = quantity
	ev.Stock = res.Stock
	e.publisher.Publish(ctx, ev)

	return &res, nil
}

// Release returns the detail quantity to its product's stock and reports the
// resulting stock. It does not delete the detail. A detail whose product is
// gone yields *order.DataIntegrityError.
func (e *Engine) Release(ctx context.Context, tx Tx, d order.Detail) (int, error) {
	p, err := tx.LockProduct(ctx, d.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			zctx.From(ctx).Error("Order detail references missing product",
				zap.Int64("detail_id", d.ID),
				zap.Int64("order_id", d.OrderID),
				zap.Int64("product_id", d.ProductID),
			)
			return 0, &order.DataIntegrityError{DetailID: d.ID, ProductID: d.ProductID}
		}
		return 0, errors.Wrap(err, "lock product")
	}

	stock := p.Stock + d.Quantity
	if err := tx.SetStock(ctx, d.ProductID, stock); err != nil {
		return 0, errors.Wrap(err, "set stock")
	}
	e.releases.Add(ctx, 1)
	return stock, nil
}

// DeleteDetail releases a single detail and removes it. Returns
// order.ErrDetailNotFound when no such detail exists.
func (e *Engine) DeleteDetail(ctx context.Context, id int64) (rerr error) {
	ctx, span := e.tracer.Start(ctx, "stock.DeleteDetail", trace.WithAttributes(
		attribute.Int64("detail.id", id),
	))
	defer func() { endSpan(span, rerr) }()

	var (
		released order.Detail
		stock    int
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.GetDetail(ctx, id)
		if err != nil {
			return err
		}

		// Take the order lock first so this cannot interleave with a
		// concurrent deletion of the whole order.
		if err := tx.LockOrder(ctx, d.OrderID); err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return order.ErrDetailNotFound
			}
			return errors.Wrap(err, "lock order")
		}
		if d, err = tx.LockDetail(ctx, id); err != nil {
			return err
		}

		if stock, err = e.Release(ctx, tx, *d); err != nil {
			return err
		}
		if err := tx.DeleteDetail(ctx, id); err != nil {
			return errors.Wrap(err, "delete detail")
		}
		released = *d
		return nil
	})
	if err != nil {
		return err
	}

	e.publisher.Publish(ctx, releasedEvent(released, stock))
	return nil
}

// DeleteOrder releases every detail of the order, removes the details and
// then the order itself, all in one transaction. Returns order.ErrNotFound
// when no such order exists.
func (e *Engine) DeleteOrder(ctx context.Context, orderID int64) (rerr error) {
	ctx, span := e.tracer.Start(ctx, "stock.DeleteOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
	))
	defer func() { endSpan(span, rerr) }()

	var released []events.Event
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockOrder(ctx, orderID); err != nil {
			return err
		}

		// Details are locked before any product.
		details, err := tx.ListDetails(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "list details")
		}
		sort.Slice(details, func(i, j int) bool {
			return details[i].ProductID < details[j].ProductID
		})

		released = make([]events.Event, 0, len(details))
		for _, d := range details {
			stock, err := e.Release(ctx, tx, d)
			if err != nil {
				return err
			}
			released = append(released, releasedEvent(d, stock))
		}
		for _, d := range details {
			if err := tx.DeleteDetail(ctx, d.ID); err != nil {
				return errors.Wrapf(err, "delete detail %d", d.ID)
			}
		}
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("details.released", len(released)))
	for _, ev := range released {
		e.publisher.Publish(ctx, ev)
	}
	e.publisher.Publish(ctx, events.New(events.TypeOrderDeleted, orderID))
	return nil
}

func releasedEvent(d order.Detail, stock int) events.Event {
	ev := events.New(events.TypeStockReleased, d.OrderID)
	ev.DetailID = d.ID
	ev.ProductID = d.ProductID
	ev.Quantity = d.Quantity
	ev.Stock = stock
	return ev
}

func reserveResult(err error) string {
	var onf *OrderNotFoundError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.As(err, &onf):
		return "order_not_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrDuplicateProduct):
		return "duplicate_product"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && !IsValidation(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
