// Command discount-export writes every discount code of the shop to a gzip
// compressed TSV file, optionally with a bloom filter of the codes.
package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	appkg "github.com/xenking/storefront-discounts/internal/app"
	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/export"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadExportConfig()
		if err != nil {
			return err
		}
		upstream, err := appkg.NewShopifyClient(cfg.Shopify, m)
		if err != nil {
			return errors.Wrap(err, "create shopify client")
		}
		exporter := export.New(upstream, coupon.Config{
			PageSize:        cfg.Resolver.PageSize,
			MaxPages:        cfg.Resolver.MaxPages,
			ScanConcurrency: cfg.Resolver.ScanConcurrency,
		})
		return run(zctx.Base(ctx, lg), lg, exporter, cfg.Output, cfg.Filter)
	})
}

func run(ctx context.Context, lg *zap.Logger, exporter *export.Exporter, output, filterPath string) error {
	out, err := createTemp(output)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(out.Name()) }()

	var filter *os.File
	if filterPath != "" {
		if filter, err = createTemp(filterPath); err != nil {
			_ = out.Close()
			return err
		}
		defer func() { _ = os.Remove(filter.Name()) }()
	}

	sum, err := exporter.Export(ctx, out, writerOrNil(filter))
	if closeErr := closeAll(out, filter); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "export")
	}

	// Renames happen last so a failed run never replaces a good snapshot.
	if err := os.Rename(out.Name(), output); err != nil {
		return errors.Wrap(err, "publish snapshot")
	}
	if filter != nil {
		if err := os.Rename(filter.Name(), filterPath); err != nil {
			return errors.Wrap(err, "publish filter")
		}
	}

	lg.Info("Export complete",
		zap.String("output", output),
		zap.Int("price_rules", sum.Rules),
		zap.Int("codes", sum.Codes),
		zap.Int("duplicates", sum.Duplicates),
	)
	return nil
}

func createTemp(path string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	return f, nil
}

func closeAll(files ...*os.File) error {
	var first error
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// writerOrNil keeps a nil *os.File from becoming a non-nil io.Writer.
func writerOrNil(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}
