package coupon

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-discounts/internal/cache"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

const (
	DefaultPageSize        = 250
	DefaultMaxPages        = 100
	DefaultScanConcurrency = 4

	filterFPR = 0.001
)

const (
	keyAllPriceRules = "all_price_rules"
	keyCodeFilter    = "code_filter"
)

func lookupKey(code string) string      { return "lookup:" + code }
func priceRuleKey(id string) string     { return "price_rule:" + id }
func discountCodesKey(id string) string { return "discount_codes:" + id }

// Caches holds one cache per kind of upstream data the resolver reads.
// Nil fields disable caching of that kind.
type Caches struct {
	Lookups   cache.Cache[discount.DiscountCode]
	Rules     cache.Cache[discount.PriceRule]
	RuleLists cache.Cache[[]discount.PriceRule]
	CodeLists cache.Cache[[]discount.DiscountCode]
	Filters   cache.Cache[*bloom.BloomFilter]
}

// Config tunes pagination and fallback parallelism. Zero values fall back to
// the package defaults.
type Config struct {
	PageSize        int
	MaxPages        int
	ScanConcurrency int
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = DefaultScanConcurrency
	}
	return c
}

// Resolver maps a raw discount code to its discount code and price rule.
type Resolver struct {
	upstream Upstream
	caches   Caches
	cfg      Config
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures a Resolver.
type Option func(r *Resolver)

// WithTracerProvider traces every resolution as a span of provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(r *Resolver) {
		r.tracer = provider.Tracer("storefront-discounts/coupon")
	}
}

// NewResolver creates a resolver reading from upstream. A nil metrics
// records nothing.
func NewResolver(upstream Upstream, caches Caches, cfg Config, metrics *Metrics, opts ...Option) *Resolver {
	if metrics == nil {
		metrics = noopMetrics()
	}
	r := &Resolver{
		upstream: upstream,
		caches:   caches.withDefaults(),
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds the discount code matching raw and the price rule it belongs
// to. It returns ErrNotFound when no code matches and *UpstreamError when the
// code was found but its price rule could not be fetched.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	code := discount.NormalizeCode(raw)
	if code == "" {
		return nil, ErrNotFound
	}
	ctx, span := r.tracer.Start(ctx, "coupon.Resolve",
		trace.WithAttributes(attribute.String("discount.code", code)),
	)
	defer span.End()
	lg := zctx.From(ctx).With(zap.String("code", code))

	fast := r.fastPath(ctx, code)
	switch fast.kind {
	case stepOK:
		r.finish(ctx, span, "fast", "found", nil)
		return &fast.value, nil
	case stepFatal:
		r.finish(ctx, span, "fast", "error", fast.err)
		return nil, fast.err
	}
	lg.Debug("Fast path unavailable, scanning price rules", zap.Error(fast.err))

	res := r.fallback(ctx, code)
	switch res.kind {
	case stepOK:
		r.remember(ctx, code, res.value)
		r.finish(ctx, span, "fallback", "found", nil)
		lg.Debug("Code found by price rule scan", zap.String("price_rule_id", res.value.Rule.ID))
		return &res.value, nil
	case stepFatal:
		r.finish(ctx, span, "fallback", "error", res.err)
		return nil, res.err
	default:
		r.finish(ctx, span, "fallback", "not_found", nil)
		return nil, ErrNotFound
	}
}

func (r *Resolver) finish(ctx context.Context, span trace.Span, path, outcome string, err error) {
	r.metrics.resolved(ctx, path, outcome)
	span.SetAttributes(
		attribute.String("discount.path", path),
		attribute.String("discount.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// fastPath resolves code through the lookup endpoint. Any lookup failure is a
// skip; failing to load the price rule of a found code is fatal.
func (r *Resolver) fastPath(ctx context.Context, code string) step[Resolution] {
	dc, err := cached(ctx, r.metrics, r.caches.Lookups, "lookup", lookupKey(code),
		func(ctx context.Context) (discount.DiscountCode, error) {
			found, err := r.upstream.LookupDiscountCode(ctx, code)
			if err != nil {
				return discount.DiscountCode{}, err
			}
			return *found, nil
		},
	)
	if err != nil {
		return skip[Resolution](errors.Wrap(err, "lookup"))
	}
	if discount.NormalizeCode(dc.Code) != code || dc.PriceRuleID == "" {
		return skip[Resolution](errors.Errorf("lookup returned unrelated code %q", dc.Code))
	}

	rule, err := cached(ctx, r.metrics, r.caches.Rules, "price_rule", priceRuleKey(dc.PriceRuleID),
		func(ctx context.Context) (discount.PriceRule, error) {
			found, err := r.upstream.GetPriceRule(ctx, dc.PriceRuleID)
			if err != nil {
				return discount.PriceRule{}, err
			}
			return *found, nil
		},
	)
	if err != nil {
		return fatal[Resolution](&UpstreamError{Op: "get price rule " + dc.PriceRuleID, Err: err})
	}
	return ok(newResolution(dc, rule))
}

// fallback scans the codes of every enabled price rule in upstream order and
// returns the first match.
func (r *Resolver) fallback(ctx context.Context, code string) step[Resolution] {
	lg := zctx.From(ctx)

	filter, hit := r.caches.Filters.Get(ctx, keyCodeFilter)
	hit = hit && filter != nil
	r.metrics.cacheResult(ctx, "code_filter", hit)
	if hit && !filter.TestString(code) {
		return skip[Resolution](ErrNotFound)
	}

	// A rule list fetched from upstream also refreshes every code list it
	// leads to, so a filter built from the scan is never older than its
	// sources and expires with them.
	rules, complete, fresh := r.priceRules(ctx)
	enabled := rules[:0:0]
	for _, rule := range rules {
		if rule.Disabled() {
			continue
		}
		enabled = append(enabled, rule)
	}

	var seen []string
	for start := 0; start < len(enabled); start += r.cfg.ScanConcurrency {
		batch := enabled[start:min(start+r.cfg.ScanConcurrency, len(enabled))]
		results := r.fetchCodes(ctx, batch, fresh)
		r.metrics.rulesScanned(ctx, len(batch))

		for i, res := range results {
			rule := batch[i]
			if res.kind != stepOK {
				complete = false
				r.metrics.ruleSkipped(ctx)
				lg.Warn("Skipping price rule",
					zap.String("price_rule_id", rule.ID),
					zap.Error(res.err),
				)
				continue
			}
			for _, dc := range res.value {
				normalized := discount.NormalizeCode(dc.Code)
				if normalized == code {
					if dc.PriceRuleID == "" {
						dc.PriceRuleID = rule.ID
					}
					return ok(newResolution(dc, rule))
				}
				seen = append(seen, normalized)
			}
		}

		if err := ctx.Err(); err != nil {
			return fatal[Resolution](errors.Wrap(err, "scan price rules"))
		}
	}

	if complete && fresh {
		r.storeFilter(ctx, seen)
	}
	return skip[Resolution](ErrNotFound)
}

// fetchCodes loads the code lists of a batch of rules in parallel, bypassing
// the cache when refresh is set. Results keep the batch order.
func (r *Resolver) fetchCodes(ctx context.Context, batch []discount.PriceRule, refresh bool) []step[[]discount.DiscountCode] {
	results := make([]step[[]discount.DiscountCode], len(batch))

	var g errgroup.Group
	g.SetLimit(r.cfg.ScanConcurrency)
	for i, rule := range batch {
		g.Go(func() error {
			results[i] = r.discountCodes(ctx, rule.ID, refresh)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// priceRules returns every price rule of the shop. complete is false when the
// listing stopped early, either at the page cap or on an upstream error.
// fresh reports that the list came from upstream rather than the cache.
// Fetching it drops the negative filter built from the previous list.
func (r *Resolver) priceRules(ctx context.Context) (rules []discount.PriceRule, complete, fresh bool) {
	if cachedRules, hit := r.caches.RuleLists.Get(ctx, keyAllPriceRules); hit {
		r.metrics.cacheResult(ctx, "price_rules", true)
		return cachedRules, true, false
	}
	r.metrics.cacheResult(ctx, "price_rules", false)
	r.caches.Filters.Delete(ctx, keyCodeFilter)

	rules, capped, err := Paginate(ctx, r.cfg, r.upstream.ListPriceRules)
	if err != nil {
		zctx.From(ctx).Warn("Listing price rules failed, scanning partial list",
			zap.Int("fetched", len(rules)),
			zap.Error(err),
		)
		return rules, false, true
	}
	if capped {
		r.metrics.pageCapReached(ctx, "price_rules")
		zctx.From(ctx).Warn("Price rule listing reached page cap",
			zap.Int("max_pages", r.cfg.MaxPages),
			zap.Int("fetched", len(rules)),
		)
	}
	r.caches.RuleLists.Set(ctx, keyAllPriceRules, rules)
	return rules, !capped, true
}

// discountCodes returns every code of one price rule. A capped listing is
// kept and reported; an upstream error skips the rule. refresh skips the
// cache read.
func (r *Resolver) discountCodes(ctx context.Context, ruleID string, refresh bool) step[[]discount.DiscountCode] {
	key := discountCodesKey(ruleID)
	if !refresh {
		if codes, hit := r.caches.CodeLists.Get(ctx, key); hit {
			r.metrics.cacheResult(ctx, "discount_codes", true)
			return ok(codes)
		}
	}
	r.metrics.cacheResult(ctx, "discount_codes", false)

	codes, capped, err := Paginate(ctx, r.cfg, func(ctx context.Context, req PageRequest) (Page[discount.DiscountCode], error) {
		return r.upstream.ListDiscountCodes(ctx, ruleID, req)
	})
	if err != nil {
		return skip[[]discount.DiscountCode](errors.Wrap(err, "list discount codes"))
	}
	if capped {
		r.metrics.pageCapReached(ctx, "discount_codes")
		zctx.From(ctx).Warn("Discount code listing reached page cap",
			zap.String("price_rule_id", ruleID),
			zap.Int("max_pages", r.cfg.MaxPages),
		)
	}
	r.caches.CodeLists.Set(ctx, key, codes)
	return ok(codes)
}

// storeFilter caches a bloom filter of every known code so later misses skip
// the scan.
func (r *Resolver) storeFilter(ctx context.Context, codes []string) {
	filter := bloom.NewWithEstimates(uint(max(len(codes), 1)), filterFPR)
	for _, code := range codes {
		filter.AddString(code)
	}
	r.caches.Filters.Set(ctx, keyCodeFilter, filter)
}

// remember primes the fast path caches with a code found by the scan.
func (r *Resolver) remember(ctx context.Context, code string, res Resolution) {
	r.caches.Lookups.Set(ctx, lookupKey(code), res.Code)
	r.caches.Rules.Set(ctx, priceRuleKey(res.Rule.ID), res.Rule)
}

// Paginate follows cursors until the last page, an error or cfg.MaxPages
// requests. capped reports that the cap stopped it. Items fetched before an
// error are returned with it.
func Paginate[T any](
	ctx context.Context,
	cfg Config,
	fetch func(ctx context.Context, req PageRequest) (Page[T], error),
) (items []T, capped bool, err error) {
	cfg = cfg.withDefaults()
	req := PageRequest{Limit: cfg.PageSize}
	for range cfg.MaxPages {
		page, err := fetch(ctx, req)
		if err != nil {
			return items, false, err
		}
		items = append(items, page.Items...)
		if page.NextCursor == "" || len(page.Items) < cfg.PageSize {
			return items, false, nil
		}
		req.Cursor = page.NextCursor
	}
	return items, true, nil
}

// cached reads key from c, loading and storing it on a miss. Load errors are
// not cached.
func cached[V any](
	ctx context.Context,
	m *Metrics,
	c cache.Cache[V],
	kind, key string,
	load func(ctx context.Context) (V, error),
) (V, error) {
	if v, hit := c.Get(ctx, key); hit {
		m.cacheResult(ctx, kind, true)
		return v, nil
	}
	m.cacheResult(ctx, kind, false)

	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(ctx, key, v)
	return v, nil
}
