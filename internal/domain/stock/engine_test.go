package stock_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/domain/stock"
	"github.com/xenking/order-stock-api/internal/events"
	"github.com/xenking/order-stock-api/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db     *memory.DB
	engine *stock.Engine
	pub    *recordingPublisher
}

func newFixture(t *testing.T, opts ...stock.Option) *fixture {
	t.Helper()
	db := memory.New()
	pub := &recordingPublisher{}
	e, err := stock.NewEngine(db, append([]stock.Option{stock.WithPublisher(pub)}, opts...)...)
	require.NoError(t, err)
	return &fixture{db: db, engine: e, pub: pub}
}

func (f *fixture) product(t *testing.T, name string, price string, qty int) *product.Product {
	t.Helper()
	p, err := f.db.Products().Create(context.Background(), product.Fields{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: qty,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.db.Orders().Create(context.Background())
	require.NoError(t, err)
	return o
}

func (f *fixture) stockOf(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.db.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) detailCount(t *testing.T) int {
	t.Helper()
	list, err := f.db.Orders().ListAllDetails(context.Background())
	require.NoError(t, err)
	return len(list)
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 20)
	o := f.order(t)

	res, err := f.engine.Reserve(ctx, o.ID, coffee.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", res.ProductName)
	assert.Equal(t, 15, res.Stock)
	assert.NotZero(t, res.Detail.ID)
	assert.Equal(t, o.ID, res.Detail.OrderID)
	assert.Equal(t, coffee.ID, res.Detail.ProductID)
	assert.Equal(t, 5, res.Detail.Quantity)

	assert.Equal(t, 15, f.stockOf(t, coffee.ID))

	stored, err := f.db.Orders().GetDetail(ctx, res.Detail.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Detail, *stored)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, events.TypeStockReserved, ev.Type)
	assert.Equal(t, res.Detail.ID, ev.DetailID)
	assert.Equal(t, 15, ev.Stock)
}

func TestReserve_WholeStock(t *testing.T) {
	f := newFixture(t)
	tea := f.product(t, "Tea", "1.00", 4)
	o := f.order(t)

	_, err := f.engine.Reserve(context.Background(), o.ID, tea.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stockOf(t, tea.ID))
}

func TestReserve_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 10)
	tea := f.product(t, "Tea", "2.00", 2)
	taken := f.product(t, "Cake", "5.00", 10)
	first := f.order(t)
	second := f.order(t)

	_, err := f.engine.Reserve(ctx, first.ID, taken.ID, 1)
	require.NoError(t, err)
	f.pub.events = nil

	const missing = 999
	for _, tt := range []struct {
		name      string
		orderID   int64
		productID int64
		quantity  int
		check     func(t *testing.T, err error)
	}{
		{
			name:      "ZeroQuantityWins",
			orderID:   missing,
			productID: missing,
			quantity:  0,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, stock.ErrInvalidQuantity)
			},
		},
		{
			name:      "NegativeQuantity",
			orderID:   first.ID,
			productID: coffee.ID,
			quantity:  -3,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, stock.ErrInvalidQuantity)
			},
		},
		{
			name:      "OrderBeforeProduct",
			orderID:   missing,
			productID: missing,
			quantity:  1,
			check: func(t *testing.T, err error) {
				var onf *stock.OrderNotFoundError
				require.ErrorAs(t, err, &onf)
				assert.Equal(t, int64(missing), onf.OrderID)
			},
		},
		{
			name:      "ProductMissing",
			orderID:   second.ID,
			productID: missing,
			quantity:  1,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, stock.ErrProductNotFound)
			},
		},
		{
			name:      "DuplicateInOtherOrder",
			orderID:   second.ID,
			productID: taken.ID,
			quantity:  1,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, stock.ErrDuplicateProduct)
			},
		},
		{
			name:      "DuplicateBeforeStock",
			orderID:   first.ID,
			productID: taken.ID,
			quantity:  1000,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, stock.ErrDuplicateProduct)
			},
		},
		{
			name:      "InsufficientStock",
			orderID:   second.ID,
			productID: tea.ID,
			quantity:  3,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, stock.ErrInsufficientStock)
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.engine.Reserve(ctx, tt.orderID, tt.productID, tt.quantity)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, stock.IsValidation(err))
			tt.check(t, err)

			assert.Equal(t, 10, f.stockOf(t, coffee.ID))
			assert.Equal(t, 2, f.stockOf(t, tea.ID))
			assert.Equal(t, 9, f.stockOf(t, taken.ID))
			assert.Equal(t, 1, f.detailCount(t))
			assert.Empty(t, f.pub.events)
		})
	}
}

func TestDeleteDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 20)
	o := f.order(t)

	res, err := f.engine.Reserve(ctx, o.ID, coffee.ID, 5)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteDetail(ctx, res.Detail.ID))
	assert.Equal(t, 20, f.stockOf(t, coffee.ID))
	assert.Zero(t, f.detailCount(t))

	// The product can be ordered again once released.
	_, err = f.engine.Reserve(ctx, o.ID, coffee.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.TypeStockReserved,
		events.TypeStockReleased,
		events.TypeStockReserved,
	}, f.pub.types())
	assert.Equal(t, 20, f.pub.events[1].Stock)

	err = f.engine.DeleteDetail(ctx, 12345)
	require.ErrorIs(t, err, order.ErrDetailNotFound)
}

func TestDeleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 20)
	tea := f.product(t, "Tea", "2.00", 8)
	cake := f.product(t, "Cake", "5.00", 3)
	o := f.order(t)
	other := f.order(t)

	_, err := f.engine.Reserve(ctx, o.ID, tea.ID, 8)
	require.NoError(t, err)
	_, err = f.engine.Reserve(ctx, o.ID, coffee.ID, 5)
	require.NoError(t, err)
	kept, err := f.engine.Reserve(ctx, other.ID, cake.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteOrder(ctx, o.ID))

	assert.Equal(t, 20, f.stockOf(t, coffee.ID))
	assert.Equal(t, 8, f.stockOf(t, tea.ID))
	assert.Equal(t, 2, f.stockOf(t, cake.ID))

	_, err = f.db.Orders().GetByID(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	all, err := f.db.Orders().ListAllDetails(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.Detail, all[0])

	assert.Equal(t, []events.Type{
		events.TypeStockReserved,
		events.TypeStockReserved,
		events.TypeStockReserved,
		events.TypeStockReleased,
		events.TypeStockReleased,
		events.TypeOrderDeleted,
	}, f.pub.types())

	require.ErrorIs(t, f.engine.DeleteOrder(ctx, o.ID), order.ErrNotFound)
}

func TestDeleteOrder_Empty(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)

	require.NoError(t, f.engine.DeleteOrder(context.Background(), o.ID))
	assert.Equal(t, []events.Type{events.TypeOrderDeleted}, f.pub.types())
}

// lostProductStore hides one product from transactions, simulating a detail
// that outlived its product.
type lostProductStore struct {
	*memory.DB
	productID int64
}

func (s lostProductStore) InTx(ctx context.Context, fn func(ctx context.Context, tx stock.Tx) error) error {
	return s.DB.InTx(ctx, func(ctx context.Context, tx stock.Tx) error {
		return fn(ctx, lostProductTx{Tx: tx, productID: s.productID})
	})
}

type lostProductTx struct {
	stock.Tx
	productID int64
}

func (tx lostProductTx) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	if id == tx.productID {
		return nil, product.ErrNotFound
	}
	return tx.Tx.LockProduct(ctx, id)
}

// lockTraceStore records the order in which transactions take locks.
type lockTraceStore struct {
	*memory.DB
	calls *[]string
}

func (s lockTraceStore) InTx(ctx context.Context, fn func(ctx context.Context, tx stock.Tx) error) error {
	return s.DB.InTx(ctx, func(ctx context.Context, tx stock.Tx) error {
		return fn(ctx, lockTraceTx{Tx: tx, calls: s.calls})
	})
}

type lockTraceTx struct {
	stock.Tx
	calls *[]string
}

func (tx lockTraceTx) LockOrder(ctx context.Context, id int64) error {
	*tx.calls = append(*tx.calls, "order")
	return tx.Tx.LockOrder(ctx, id)
}

func (tx lockTraceTx) ListDetails(ctx context.Context, orderID int64) ([]order.Detail, error) {
	*tx.calls = append(*tx.calls, "details")
	return tx.Tx.ListDetails(ctx, orderID)
}

func (tx lockTraceTx) LockDetail(ctx context.Context, id int64) (*order.Detail, error) {
	*tx.calls = append(*tx.calls, "detail")
	return tx.Tx.LockDetail(ctx, id)
}

func (tx lockTraceTx) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	*tx.calls = append(*tx.calls, "product")
	return tx.Tx.LockProduct(ctx, id)
}

func TestEngine_LockOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 20)
	tea := f.product(t, "Tea", "2.00", 8)
	o := f.order(t)

	_, err := f.engine.Reserve(ctx, o.ID, tea.ID, 1)
	require.NoError(t, err)
	res, err := f.engine.Reserve(ctx, o.ID, coffee.ID, 1)
	require.NoError(t, err)

	var calls []string
	traced, err := stock.NewEngine(lockTraceStore{DB: f.db, calls: &calls})
	require.NoError(t, err)

	// Details are always locked before their products, matching product
	// deletion which locks details and then the product row.
	require.NoError(t, traced.DeleteDetail(ctx, res.Detail.ID))
	assert.Equal(t, []string{"order", "detail", "product"}, calls)

	calls = nil
	require.NoError(t, traced.DeleteOrder(ctx, o.ID))
	assert.Equal(t, []string{"order", "details", "product"}, calls)
}

func TestDeleteOrder_DataIntegrity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 20)
	tea := f.product(t, "Tea", "2.00", 8)
	o := f.order(t)

	_, err := f.engine.Reserve(ctx, o.ID, coffee.ID, 5)
	require.NoError(t, err)
	teaDetail, err := f.engine.Reserve(ctx, o.ID, tea.ID, 3)
	require.NoError(t, err)

	broken, err := stock.NewEngine(lostProductStore{DB: f.db, productID: tea.ID})
	require.NoError(t, err)

	err = broken.DeleteOrder(ctx, o.ID)
	var die *order.DataIntegrityError
	require.ErrorAs(t, err, &die)
	assert.Equal(t, tea.ID, die.ProductID)
	assert.Equal(t, teaDetail.Detail.ID, die.DetailID)
	assert.False(t, stock.IsValidation(err))

	// Nothing was applied: the coffee release was rolled back with the rest.
	assert.Equal(t, 15, f.stockOf(t, coffee.ID))
	assert.Equal(t, 2, f.detailCount(t))
	_, err = f.db.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)

	err = broken.DeleteDetail(ctx, teaDetail.Detail.ID)
	require.ErrorAs(t, err, &die)
	assert.Equal(t, 2, f.detailCount(t))
}

func TestReserve_ConcurrentSameProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coffee := f.product(t, "Coffee", "3.00", 100)

	const n = 32
	orders := make([]int64, n)
	for i := range orders {
		orders[i] = f.order(t).ID
	}

	var (
		mu      sync.Mutex
		ok, dup int
		g, gctx = errgroup.WithContext(ctx)
	)
	for _, id := range orders {
		g.Go(func() error {
			_, err := f.engine.Reserve(gctx, id, coffee.ID, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, stock.ErrDuplicateProduct):
				dup++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)
	assert.Equal(t, 97, f.stockOf(t, coffee.ID))
	assert.Equal(t, 1, f.detailCount(t))
}

func TestEngine_ConcurrentConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const (
		products = 16
		initial  = 10
	)
	ids := make([]int64, products)
	for i := range ids {
		ids[i] = f.product(t, fmt.Sprintf("P%d", i), "1.00", initial).ID
	}
	orders := []int64{f.order(t).ID, f.order(t).ID, f.order(t).ID, f.order(t).ID}

	g, gctx := errgroup.WithContext(ctx)
	for i, pid := range ids {
		oid := orders[i%len(orders)]
		g.Go(func() error {
			_, err := f.engine.Reserve(gctx, oid, pid, 1+i%initial)
			if err != nil && !stock.IsValidation(err) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		err := f.engine.DeleteOrder(gctx, orders[0])
		if err != nil && !errors.Is(err, order.ErrNotFound) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		all, err := f.db.Orders().ListAllDetails(gctx)
		if err != nil {
			return err
		}
		for _, d := range all {
			err := f.engine.DeleteDetail(gctx, d.ID)
			if err != nil && !errors.Is(err, order.ErrDetailNotFound) {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	details, err := f.db.Orders().ListAllDetails(ctx)
	require.NoError(t, err)
	reserved := map[int64]int{}
	for _, d := range details {
		reserved[d.ProductID] += d.Quantity
	}
	for _, pid := range ids {
		got := f.stockOf(t, pid)
		assert.GreaterOrEqual(t, got, 0)
		assert.Equal(t, initial, got+reserved[pid], "product %d", pid)
	}
}

func TestEngine_Telemetry(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
	})

	f := newFixture(t, stock.WithMeterProvider(mp), stock.WithTracerProvider(tp))
	coffee := f.product(t, "Coffee", "3.00", 1)
	o := f.order(t)

	res, err := f.engine.Reserve(ctx, o.ID, coffee.ID, 1)
	require.NoError(t, err)
	_, err = f.engine.Reserve(ctx, o.ID, coffee.ID, 1)
	require.ErrorIs(t, err, stock.ErrDuplicateProduct)
	require.NoError(t, f.engine.DeleteDetail(ctx, res.Detail.ID))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := m.Name
				if v, ok := dp.Attributes.Value(attribute.Key("result")); ok {
					key += "/" + v.AsString()
				}
				counts[key] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		"stock.reservations/ok":                1,
		"stock.reservations/duplicate_product": 1,
		"stock.releases":                       1,
	}, counts)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"stock.Reserve", "stock.Reserve", "stock.DeleteDetail"}, names)
}
