package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/storage/postgres"
)

type seedFile struct {
	Customers []customerJSON `json:"customers"`
	Orders    []orderJSON    `json:"orders"`
}

type customerJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type orderJSON struct {
	ID          string       `json:"id"`
	TableNumber string       `json:"table_number"`
	Kind        order.Kind   `json:"kind"`
	CustomerID  string       `json:"customer_id"`
	Lines       []order.Line `json:"lines"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/demo.json", "path to the customers and open orders JSON file")
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

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
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

	customers := postgres.NewCustomerStore(pool)
	for _, c := range seed.Customers {
		if err := customers.Upsert(ctx, &customer.Customer{ID: c.ID, Name: c.Name, Balance: c.Balance}); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
		slog.Info("upserted customer", slog.String("id", c.ID), slog.String("balance", c.Balance.StringFixed(2)))
	}

	orders := postgres.NewOrderStore(pool)
	for _, oj := range seed.Orders {
		o := &order.Order{
			ID:          oj.ID,
			TableNumber: oj.TableNumber,
			Kind:        oj.Kind,
			CustomerID:  oj.CustomerID,
			Lines:       oj.Lines,
		}
		o.ComputeTotals()
		if err := orders.Upsert(ctx, o); err != nil {
			return errors.Wrapf(err, "upsert order %s", o.ID)
		}
		slog.Info("upserted order",
			slog.String("id", o.ID),
			slog.String("kind", string(o.Kind)),
			slog.String("total", o.Total.StringFixed(2)),
		)
	}

	return nil
}
