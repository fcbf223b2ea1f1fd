package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records resolver activity.
type Metrics struct {
	resolutions metric.Int64Counter
	cacheLookup metric.Int64Counter
	skipped     metric.Int64Counter
	capReached  metric.Int64Counter
	scannedRule metric.Int64Counter
}

// NewMetrics registers resolver instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.resolutions, err = meter.Int64Counter("discount.resolutions",
		metric.WithDescription("Discount code resolutions by outcome and path"),
	); err != nil {
		return nil, errors.Wrap(err, "resolutions counter")
	}
	if m.cacheLookup, err = meter.Int64Counter("discount.cache.lookups",
		metric.WithDescription("Resolver cache lookups by kind and result"),
	); err != nil {
		return nil, errors.Wrap(err, "cache counter")
	}
	if m.skipped, err = meter.Int64Counter("discount.fallback.skipped_rules",
		metric.WithDescription("Price rules skipped during fallback scans after a fetch failure"),
	); err != nil {
		return nil, errors.Wrap(err, "skipped counter")
	}
	if m.capReached, err = meter.Int64Counter("discount.pagination.cap_reached",
		metric.WithDescription("Paginated enumerations stopped by the page cap"),
	); err != nil {
		return nil, errors.Wrap(err, "cap counter")
	}
	if m.scannedRule, err = meter.Int64Counter("discount.fallback.scanned_rules",
		metric.WithDescription("Price rules whose codes were scanned during fallback"),
	); err != nil {
		return nil, errors.Wrap(err, "scanned counter")
	}
	return &m, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

func (m *Metrics) resolved(ctx context.Context, path, outcome string) {
	m.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) cacheResult(ctx context.Context, kind string, hit bool) {
	m.cacheLookup.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("hit", hit),
	))
}

func (m *Metrics) ruleSkipped(ctx context.Context) {
	m.skipped.Add(ctx, 1)
}

func (m *Metrics) rulesScanned(ctx context.Context, n int) {
	m.scannedRule.Add(ctx, int64(n))
}

func (m *Metrics) pageCapReached(ctx context.Context, listing string) {
	m.capReached.Add(ctx, 1, metric.WithAttributes(attribute.String("listing", listing)))
}
