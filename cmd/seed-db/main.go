package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/order-stock-api/db"
	"github.com/xenking/order-stock-api/internal/seed"
	"github.com/xenking/order-stock-api/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL  string
		productsFile string
		tokenName    string
		token        string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (default: embedded catalog)")
	flag.StringVar(&tokenName, "token-name", "default", "name of the seeded bearer token")
	flag.StringVar(&token, "token", "", "bearer token to seed (or ORDERS_SEED_TOKEN env)")
	flag.StringVar(&pepper, "token-pepper", "", "HMAC pepper for token hashing (or ORDERS_TOKEN_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("ORDERS_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if token == "" {
		token = os.Getenv("ORDERS_SEED_TOKEN")
	}
	if token == "" {
		slog.Error("token is required: set --token or ORDERS_SEED_TOKEN")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("ORDERS_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, tokenName, token, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, tokenName, token, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}
	products, err := seed.ParseProducts(data)
	if err != nil {
		return err
	}

	n, err := seed.Products(ctx, postgres.NewProductRepository(pool), products)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if n == 0 {
		slog.Info("catalog not empty, products left untouched")
	} else {
		slog.Info("created products", slog.Int("count", n))
	}

	t, err := seed.Token(ctx, postgres.NewTokenRepository(pool), []byte(pepper), tokenName, token)
	if err != nil {
		return errors.Wrap(err, "seed token")
	}
	slog.Info("upserted token", slog.Int64("id", t.ID), slog.String("name", t.Name))

	return nil
}
