// Command seed-db loads users, addresses, and products from a JSON fixture
// into the database. Intended for local development and integration tests.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pchaiwong/shophub-orders/internal/storage/postgres"
)

type fixture struct {
	Users []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"users"`
	Addresses []struct {
		ID         string `json:"id"`
		UserID     string `json:"userId"`
		Recipient  string `json:"recipient"`
		Phone      string `json:"phone"`
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		District   string `json:"district"`
		Province   string `json:"province"`
		PostalCode string `json:"postalCode"`
	} `json:"addresses"`
	Products []struct {
		ID     string          `json:"id"`
		SKU    string          `json:"sku"`
		Name   string          `json:"name"`
		Price  decimal.Decimal `json:"price"`
		Stock  int             `json:"stock"`
		Active bool            `json:"active"`
	} `json:"products"`
}

func main() {
	var (
		databaseURL string
		fixtureFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture-file", "db/seed/fixture.json", "path to seed fixture JSON")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile string) error {
	slog.Info("reading fixture", slog.String("path", fixtureFile))

	data, err := os.ReadFile(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "read fixture file")
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return errors.Wrap(err, "parse fixture JSON")
	}

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

	if err := seedUsers(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedAddresses(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed addresses")
	}
	if err := seedProducts(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed products")
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, fx fixture) error {
	slog.Info("upserting users", slog.Int("count", len(fx.Users)))

	for _, u := range fx.Users {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name`,
			u.ID, u.Email, u.Name,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
	}
	return nil
}

func seedAddresses(ctx context.Context, pool *pgxpool.Pool, fx fixture) error {
	slog.Info("upserting addresses", slog.Int("count", len(fx.Addresses)))

	for _, a := range fx.Addresses {
		_, err := pool.Exec(ctx, `
			INSERT INTO addresses (id, user_id, recipient, phone, line1, line2, district, province, postal_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				recipient = EXCLUDED.recipient, phone = EXCLUDED.phone,
				line1 = EXCLUDED.line1, line2 = EXCLUDED.line2,
				district = EXCLUDED.district, province = EXCLUDED.province,
				postal_code = EXCLUDED.postal_code`,
			a.ID, a.UserID, a.Recipient, a.Phone, a.Line1, a.Line2, a.District, a.Province, a.PostalCode,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert address %s", a.ID)
		}
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, fx fixture) error {
	slog.Info("upserting products", slog.Int("count", len(fx.Products)))

	for _, p := range fx.Products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, sku, name, price, stock, active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				sku = EXCLUDED.sku, name = EXCLUDED.name, price = EXCLUDED.price,
				stock = EXCLUDED.stock, active = EXCLUDED.active, updated_at = now()`,
			p.ID, p.SKU, p.Name, p.Price, p.Stock, p.Active,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.SKU)
		}

		slog.Info("upserted product", slog.String("sku", p.SKU), slog.String("name", p.Name))
	}
	return nil
}
