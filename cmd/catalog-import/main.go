// Command catalog-import reconciles product stock from warehouse stocktake
// scans. Each scanN.gz file is one independent scanner pass over the shelves,
// one line per scanned unit's SKU. A SKU is trusted only when it shows up in
// at least two passes, which filters out scanner misreads; its stock is set
// to the highest unit count observed across the passes that contain it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/pchaiwong/shophub-orders/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxSKULen     = 32
)

// scanResult holds per-SKU unit counts from one file, restricted to SKUs that
// also appear in at least one other file's bloom filter.
type scanResult struct {
	counts map[string]int
	mask   map[string]uint
}

func main() {
	var (
		dataDir     string
		numFiles    int
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing scanN.gz files")
	flag.IntVar(&numFiles, "files", 3, "number of scan files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, numFiles, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir string, numFiles int, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("scan%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: counting cross-verified SKUs")

	stocks, err := countVerifiedSKUs(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "count verified SKUs")
	}

	slog.Info("verified SKUs", slog.Int("count", len(stocks)))

	if len(stocks) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return errors.Wrap(writeStocks(ctx, pool, stocks), "write stock levels")
}

// buildBloomFilters creates one bloom filter per scan file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, f, func(sku string) {
				filter.AddString(sku)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("units", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_units", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// countVerifiedSKUs re-streams each file, counting units for SKUs that any
// other file's bloom filter also contains. SKUs confirmed by 2+ files map to
// their maximum observed unit count.
func countVerifiedSKUs(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]int, error) {
	results := make([]scanResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			res := scanResult{
				counts: make(map[string]int),
				mask:   make(map[string]uint),
			}
			fileBit := uint(1) << uint(i)

			if err := streamGzFile(ctx, f, func(sku string) {
				for j, filter := range filters {
					if j == i {
						continue
					}
					if filter.TestString(sku) {
						res.counts[sku]++
						res.mask[sku] |= fileBit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "count SKUs in file %d", i+1)
			}

			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(res.counts)))
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	maxCounts := make(map[string]int)
	for _, res := range results {
		for sku, m := range res.mask {
			merged[sku] |= m
		}
		for sku, n := range res.counts {
			if n > maxCounts[sku] {
				maxCounts[sku] = n
			}
		}
	}

	stocks := make(map[string]int)
	for sku, m := range merged {
		if bits.OnesCount(m) >= 2 {
			stocks[sku] = maxCounts[sku]
		}
	}
	return stocks, nil
}

// streamGzFile opens a gzip-compressed scan file and calls fn for each
// non-empty line that looks like a SKU.
func streamGzFile(ctx context.Context, path string, fn func(sku string)) error {
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
		sku := strings.TrimSpace(scanner.Text())
		if sku == "" || len(sku) > maxSKULen {
			continue
		}
		fn(sku)
	}

	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

// writeStocks sets stock levels for verified SKUs. Unknown SKUs are counted
// and reported, not treated as failures.
func writeStocks(ctx context.Context, pool *pgxpool.Pool, stocks map[string]int) error {
	slog.Info("writing stock levels", slog.Int("skus", len(stocks)))

	var written, unknown int
	for sku, stock := range stocks {
		ct, err := pool.Exec(ctx, `
			UPDATE products SET stock = $2, updated_at = now() WHERE sku = $1`,
			sku, stock,
		)
		if err != nil {
			return errors.Wrapf(err, "update stock for sku %s", sku)
		}
		if ct.RowsAffected() == 0 {
			unknown++
			continue
		}
		written++
		if written%100 == 0 {
			slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(stocks)))
		}
	}

	slog.Info("stock write complete", slog.Int("written", written), slog.Int("unknown_skus", unknown))
	return nil
}
