// Command discount-ingest bulk-loads promotional code dumps into the discount
// ledger. Marketing exports arrive as large gzipped text files, one code per
// line, with heavy overlap and junk lines; a code is accepted when it appears
// in at least two export files. Cross-file membership is tested with bloom
// filters so the whole run stays in bounded memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/evermart/checkout/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

const insertDiscountSQL = `INSERT INTO discount_codes (id, code, kind, value, active)
	VALUES ('ingest-' || $1, $1, 'percentage', $2, TRUE)
	ON CONFLICT (code) DO NOTHING`

func main() {
	var (
		dataDir     string
		databaseURL string
		percentOff  int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz code export files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&percentOff, "percent-off", 10, "percentage discount assigned to ingested codes")
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

	if err := run(ctx, dataDir, databaseURL, percentOff); err != nil {
		slog.Error("discount ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, percentOff int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list export files")
	}
	if len(files) < 2 {
		return errors.Errorf("need at least 2 export files in %s, found %d", dataDir, len(files))
	}

	// Pass 1: one bloom filter per file.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64
			if err := streamGzFile(gctx, path, func(code string) {
				if len(code) >= minCodeLen && len(code) <= maxCodeLen {
					filter.AddString(code)
					count++
					if count%progressEvery == 0 {
						slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: re-stream each file, keeping codes that another file's filter
	// also claims. Per-file bitmasks are merged and codes present in 2+ files
	// survive.
	slog.Info("pass 2: cross-checking codes")

	results := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			if err := streamGzFile(gctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						candidates[code] |= fileBit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "cross-check codes")
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}

	slog.Info("valid codes found", slog.Int("count", len(valid)))
	if len(valid) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCodes(ctx, pool, valid, percentOff)
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func writeCodes(ctx context.Context, pool *pgxpool.Pool, codes []string, percentOff int) error {
	slog.Info("writing discount codes", slog.Int("count", len(codes)))

	value := decimal.NewFromInt(int64(percentOff))
	for i, code := range codes {
		if _, err := pool.Exec(ctx, insertDiscountSQL, code, value); err != nil {
			return errors.Wrapf(err, "insert code %s", code)
		}
		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
