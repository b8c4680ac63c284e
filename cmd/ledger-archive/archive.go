package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-settle/internal/domain/ledger"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineSize   = 1 << 20
)

// archiveStore is the part of the ledger the tool needs.
type archiveStore interface {
	Each(ctx context.Context, fn func(*ledger.ClosedTicket) error) error
	Get(ctx context.Context, id string) (*ledger.ClosedTicket, error)
	Append(ctx context.Context, t *ledger.ClosedTicket) error
}

// export streams the ledger in insertion order into a gzip file, one JSON
// record per line. Reading and compressing run concurrently.
func export(ctx context.Context, store archiveStore, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", path)
	}
	defer func() { _ = f.Close() }()

	gz := pgzip.NewWriter(f)
	records := make(chan []byte, 256)
	written := 0

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		return store.Each(ctx, func(t *ledger.ClosedTicket) error {
			line, err := t.MarshalJSON()
			if err != nil {
				return errors.Wrapf(err, "encode %s", t.ID)
			}
			select {
			case records <- line:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	g.Go(func() error {
		w := bufio.NewWriter(gz)
		for line := range records {
			if _, err := w.Write(line); err != nil {
				return errors.Wrap(err, "write record")
			}
			if err := w.WriteByte('\n'); err != nil {
				return errors.Wrap(err, "write record")
			}
			written++
			if written%progressEvery == 0 {
				slog.Info("export progress", slog.Int("records", written))
			}
		}
		return w.Flush()
	})
	if err := g.Wait(); err != nil {
		return written, err
	}

	if err := gz.Close(); err != nil {
		return written, errors.Wrap(err, "close gzip writer")
	}
	return written, f.Close()
}

type importStats struct {
	read     int
	appended int
	skipped  int
}

// restore appends archived records that are not yet in the ledger. Archives
// are decoded concurrently and appended in the order given. Existing IDs are
// loaded into a bloom filter first; only records that hit the filter need an
// exact lookup.
func restore(ctx context.Context, store archiveStore, files []string) (importStats, error) {
	var st importStats

	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	existing := 0
	if err := store.Each(ctx, func(t *ledger.ClosedTicket) error {
		filter.AddString(t.ID)
		existing++
		return nil
	}); err != nil {
		return st, errors.Wrap(err, "index existing records")
	}
	slog.Info("indexed existing records", slog.Int("count", existing))

	decoded := make([][]ledger.ClosedTicket, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			records, err := readArchive(gctx, path)
			if err != nil {
				return err
			}
			slog.Info("archive decoded", slog.String("file", path), slog.Int("records", len(records)))
			decoded[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}

	for _, records := range decoded {
		for i := range records {
			t := &records[i]
			st.read++

			if filter.TestString(t.ID) {
				_, err := store.Get(ctx, t.ID)
				if err == nil {
					st.skipped++
					continue
				}
				if !errors.Is(err, ledger.ErrNotFound) {
					return st, errors.Wrapf(err, "look up %s", t.ID)
				}
			}

			err := store.Append(ctx, t)
			switch {
			case errors.Is(err, ledger.ErrDuplicate):
				st.skipped++
			case err != nil:
				return st, errors.Wrapf(err, "append %s", t.ID)
			default:
				filter.AddString(t.ID)
				st.appended++
			}
		}
	}
	return st, nil
}

// readArchive decodes one gzip JSON lines file.
func readArchive(ctx context.Context, path string) ([]ledger.ClosedTicket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var out []ledger.ClosedTicket
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var t ledger.ClosedTicket
		if err := t.UnmarshalJSON(scanner.Bytes()); err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, line)
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	return out, nil
}
