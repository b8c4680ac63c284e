// Command ledger-archive exports the closed-document ledger to gzip JSON
// lines and restores such archives.
//
//	ledger-archive export -out ledger.jsonl.gz
//	ledger-archive import ledger-2025.jsonl.gz ledger-2026.jsonl.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-settle/internal/storage/postgres"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var (
		fs          = flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		databaseURL string
		out         string
	)
	fs.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	if os.Args[1] == "export" {
		fs.StringVar(&out, "out", "ledger.jsonl.gz", "archive file to write")
	}
	_ = fs.Parse(os.Args[2:])

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1], databaseURL, out, fs.Args()); err != nil {
		slog.Error("ledger archive failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("ledger archive completed successfully")
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledger-archive export [-out file] | import file...")
}

func run(ctx context.Context, cmd, databaseURL, out string, files []string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := postgres.NewLedgerStore(pool)

	switch cmd {
	case "export":
		n, err := export(ctx, store, out)
		if err != nil {
			return errors.Wrap(err, "export")
		}
		slog.Info("export complete", slog.String("file", out), slog.Int("records", n))
		return nil
	case "import":
		if len(files) == 0 {
			return errors.New("no archive files given")
		}
		st, err := restore(ctx, store, files)
		if err != nil {
			return errors.Wrap(err, "import")
		}
		slog.Info("import complete",
			slog.Int("read", st.read),
			slog.Int("appended", st.appended),
			slog.Int("skipped", st.skipped),
		)
		return nil
	default:
		usage()
		return errors.Errorf("unknown command %q", cmd)
	}
}
