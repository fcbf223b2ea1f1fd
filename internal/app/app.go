package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront-discounts/internal/cache"
	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/handler"
	"github.com/xenking/storefront-discounts/internal/shopify"
	"github.com/xenking/storefront-discounts/pkg/health"
	"github.com/xenking/storefront-discounts/pkg/httpmiddleware"
)

const serviceName = "storefront-discounts"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("shop", cfg.Shopify.Domain),
		zap.String("cache", cfg.Cache.Backend),
	)

	// Upstream discount API.
	upstream, err := NewShopifyClient(cfg.Shopify, m)
	if err != nil {
		return errors.Wrap(err, "create shopify client")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("shopify", 5*time.Second, health.PingCheck("shopify", upstream))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Resolver caches.
	var caches coupon.Caches
	switch cfg.Cache.Backend {
	case CacheRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(client))
		caches = coupon.RedisCaches(client, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
	default:
		caches = coupon.MemoryCaches(cfg.Cache.TTL, cfg.Cache.Capacity)
	}

	healthSvc.Start(ctx, 30*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	metrics, err := coupon.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create resolver metrics")
	}
	resolver := coupon.NewResolver(upstream, caches, coupon.Config{
		PageSize:        cfg.Resolver.PageSize,
		MaxPages:        cfg.Resolver.MaxPages,
		ScanConcurrency: cfg.Resolver.ScanConcurrency,
	}, metrics, coupon.WithTracerProvider(m.TracerProvider()))
	checkSvc := coupon.NewService(resolver)

	// HTTP: health endpoints + API routes on one chi router.
	router := handler.NewHandler(checkSvc).Routes()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	instrument, err := httpmiddleware.Instrument(serviceName, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create http metrics")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Fallback scans may page through many upstream listings.
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Routes(),
			instrument,
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// NewShopifyClient builds the upstream client with a transport traced and
// measured through the telemetry providers.
func NewShopifyClient(cfg ShopifyConfig, m *app.Telemetry) (*shopify.Client, error) {
	return shopify.New(shopify.Config{
		Domain:      cfg.Domain,
		AccessToken: cfg.AccessToken,
		APIVersion:  cfg.APIVersion,
		Timeout:     cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	})
}
