package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/order-stock-api/db"
	"github.com/xenking/order-stock-api/internal/domain/auth"
	"github.com/xenking/order-stock-api/internal/domain/order"
	"github.com/xenking/order-stock-api/internal/domain/product"
	"github.com/xenking/order-stock-api/internal/domain/stock"
	"github.com/xenking/order-stock-api/internal/events"
	"github.com/xenking/order-stock-api/internal/handler"
	"github.com/xenking/order-stock-api/internal/rates"
	"github.com/xenking/order-stock-api/internal/seed"
	"github.com/xenking/order-stock-api/internal/storage/memory"
	"github.com/xenking/order-stock-api/internal/storage/postgres"
	"github.com/xenking/order-stock-api/pkg/health"
	"github.com/xenking/order-stock-api/pkg/httpmiddleware"
)

const serviceName = "order-stock-api"

// storage bundles the repositories of one backend.
type storage struct {
	products product.Repository
	orders   order.Repository
	tokens   auth.Repository
	stock    stock.Store
	upsert   seed.TokenStore
	close    func()
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, err := openStorage(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.BootstrapToken != "" {
		if _, err := seed.Token(ctx, st.upsert, []byte(cfg.TokenPepper), "bootstrap", cfg.BootstrapToken); err != nil {
			return errors.Wrap(err, "register bootstrap token")
		}
	}

	// Stock event feed.
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Buffer, lg.Named("events"))
		kp.Start()
		defer kp.Close()
		publisher = kp
		lg.Info("Publishing stock events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	engine, err := stock.NewEngine(st.stock,
		stock.WithPublisher(publisher),
		stock.WithTracerProvider(m.TracerProvider()),
		stock.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create stock engine")
	}

	// Exchange rate provider with its cache.
	var cache rates.Cache = rates.NewMemoryCache()
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		cache = rates.NewRedisCache(rdb)
	}
	quotes := rates.NewQuoteClient(cfg.Rates.URL, cfg.Rates.Name, cfg.Rates.Timeout,
		rates.WithHTTPClient(&http.Client{
			Timeout: cfg.Rates.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
		}),
	)
	provider := rates.NewCached(quotes, cache, cfg.Rates.Name, cfg.Rates.TTL)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(st.products, st.orders, engine,
		order.NewTotals(st.orders, st.products, provider),
	)
	sec := handler.NewSecurityHandler(st.tokens, []byte(cfg.TokenPepper))

	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/", h.Router(sec))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Routes(),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Rate:  cfg.RateLimit.Rate,
				Burst: cfg.RateLimit.Burst,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config, healthSvc *health.Health) (*storage, error) {
	if cfg.Storage == StorageMemory {
		mem := memory.New()
		products, err := seed.ParseProducts(db.SeedProducts)
		if err != nil {
			return nil, errors.Wrap(err, "parse seed products")
		}
		n, err := seed.Products(ctx, mem.Products(), products)
		if err != nil {
			return nil, errors.Wrap(err, "seed products")
		}
		lg.Info("Using in-memory storage", zap.Int("seeded_products", n))
		return &storage{
			products: mem.Products(),
			orders:   mem.Orders(),
			tokens:   mem.Tokens(),
			stock:    mem,
			upsert:   mem.Tokens(),
			close:    func() {},
		}, nil
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	tokens := postgres.NewTokenRepository(pool)
	return &storage{
		products: postgres.NewProductRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		tokens:   tokens,
		stock:    postgres.NewStockStore(pool),
		upsert:   tokens,
		close:    pool.Close,
	}, nil
}
