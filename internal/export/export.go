// Package export writes a snapshot of every discount code in the shop.
package export

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

const (
	filterFPR     = 0.001
	progressEvery = 50
)

// Header is the first line of the snapshot.
const Header = "code\tprice_rule_id\tprice_rule_title\tusage_count"

// Summary describes a finished export.
type Summary struct {
	Rules      int
	Codes      int
	Duplicates int
}

// Exporter enumerates price rules and their discount codes through the
// upstream API.
type Exporter struct {
	upstream coupon.Upstream
	cfg      coupon.Config
}

// New creates an Exporter. Zero fields of cfg take the resolver defaults.
func New(upstream coupon.Upstream, cfg coupon.Config) *Exporter {
	return &Exporter{upstream: upstream, cfg: cfg}
}

type ruleCodes struct {
	rule  discount.PriceRule
	codes []discount.DiscountCode
}

// Export writes one gzip compressed TSV line per discount code to out, in
// upstream rule order. When filter is not nil a bloom filter of all
// normalized codes is written to it as well.
//
// Disabled price rules are skipped, as the resolver never matches their codes.
// Unlike the resolver, the export is all or nothing: a failed listing or a
// listing stopped by the page cap fails the whole run.
func (e *Exporter) Export(ctx context.Context, out, filter io.Writer) (Summary, error) {
	lg := zctx.From(ctx)

	rules, err := listAll(ctx, e.cfg, "price rules", e.upstream.ListPriceRules)
	if err != nil {
		return Summary{}, err
	}
	rules = enabled(rules)
	lg.Info("Listed price rules", zap.Int("count", len(rules)))

	collected, err := e.collect(ctx, rules)
	if err != nil {
		return Summary{}, err
	}

	var total int
	for _, rc := range collected {
		total += len(rc.codes)
	}
	bf := bloom.NewWithEstimates(uint(max(total, 1)), filterFPR)

	sum, err := write(out, collected, bf)
	if err != nil {
		return Summary{}, errors.Wrap(err, "write snapshot")
	}
	if sum.Duplicates > 0 {
		lg.Warn("Codes shared by several price rules, kept the first", zap.Int("duplicates", sum.Duplicates))
	}

	if filter != nil {
		if _, err := bf.WriteTo(filter); err != nil {
			return Summary{}, errors.Wrap(err, "write filter")
		}
	}
	return sum, nil
}

// collect fetches the codes of every rule with bounded parallelism. The
// first failure cancels the remaining fetches.
func (e *Exporter) collect(ctx context.Context, rules []discount.PriceRule) ([]ruleCodes, error) {
	out := make([]ruleCodes, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, rule := range rules {
		g.Go(func() error {
			codes, err := listAll(gctx, e.cfg, "discount codes of "+rule.ID,
				func(ctx context.Context, req coupon.PageRequest) (coupon.Page[discount.DiscountCode], error) {
					return e.upstream.ListDiscountCodes(ctx, rule.ID, req)
				},
			)
			if err != nil {
				return err
			}
			out[i] = ruleCodes{rule: rule, codes: codes}
			if (i+1)%progressEvery == 0 {
				zctx.From(ctx).Info("Export progress", zap.Int("rules", i+1), zap.Int("total", len(rules)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func enabled(rules []discount.PriceRule) []discount.PriceRule {
	out := rules[:0:0]
	for _, rule := range rules {
		if !rule.Disabled() {
			out = append(out, rule)
		}
	}
	return out
}

func (e *Exporter) concurrency() int {
	if e.cfg.ScanConcurrency > 0 {
		return e.cfg.ScanConcurrency
	}
	return coupon.DefaultScanConcurrency
}

func listAll[T any](
	ctx context.Context,
	cfg coupon.Config,
	what string,
	fetch func(context.Context, coupon.PageRequest) (coupon.Page[T], error),
) ([]T, error) {
	items, capped, err := coupon.Paginate(ctx, cfg, fetch)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", what)
	}
	if capped {
		return nil, errors.Errorf("list %s: page cap reached after %d items", what, len(items))
	}
	return items, nil
}

func write(out io.Writer, collected []ruleCodes, bf *bloom.BloomFilter) (Summary, error) {
	gz := pgzip.NewWriter(out)
	w := bufio.NewWriter(gz)

	sum := Summary{Rules: len(collected)}
	seen := make(map[string]struct{})

	if _, err := w.WriteString(Header + "\n"); err != nil {
		return sum, err
	}
	for _, rc := range collected {
		for _, c := range rc.codes {
			code := discount.NormalizeCode(c.Code)
			if code == "" {
				continue
			}
			if _, dup := seen[code]; dup {
				sum.Duplicates++
				continue
			}
			seen[code] = struct{}{}
			bf.AddString(code)

			usage := max(c.UsageCount, rc.rule.UsageCount)
			line := code + "\t" + rc.rule.ID + "\t" + sanitize(rc.rule.Title) + "\t" + strconv.Itoa(usage) + "\n"
			if _, err := w.WriteString(line); err != nil {
				return sum, err
			}
			sum.Codes++
		}
	}

	if err := w.Flush(); err != nil {
		return sum, err
	}
	if err := gz.Close(); err != nil {
		return sum, err
	}
	return sum, nil
}

// sanitize keeps a title on one TSV field.
func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c == '\t' || c == '\n' || c == '\r' {
			b[i] = ' '
		}
	}
	return string(b)
}
