package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const (
	defaultAddr = "0.0.0.0:8080"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (DISCOUNTS_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Shopify   ShopifyConfig
	Resolver  ResolverConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// ShopifyConfig points the service at a shop's Admin REST API.
type ShopifyConfig struct {
	Domain      string        `usage:"Shop domain, e.g. example.myshopify.com (or SHOPIFY_STORE_DOMAIN)"`
	AccessToken string        `usage:"Admin API access token (or SHOPIFY_ADMIN_ACCESS_TOKEN)" flag:"shopify-access-token"`
	APIVersion  string        `default:"2024-01" usage:"Admin API version"`
	Timeout     time.Duration `default:"10s" usage:"Upstream request timeout"`
}

// ResolverConfig tunes the fallback scan over price rules.
type ResolverConfig struct {
	PageSize        int `default:"250" usage:"Items requested per upstream page"`
	MaxPages        int `default:"100" usage:"Page cap for a single paginated listing"`
	ScanConcurrency int `default:"4"   usage:"Price rules whose codes are fetched in parallel"`
}

// CacheConfig selects and sizes the resolver cache.
type CacheConfig struct {
	Backend     string        `default:"memory" usage:"Cache backend: memory or redis"`
	TTL         time.Duration `default:"5m"     usage:"Cache entry lifetime"`
	Capacity    int           `default:"2000"   usage:"Max entries per in-memory cache"`
	RedisURL    string        `usage:"Redis URL for the redis backend (or REDIS_URL)" flag:"redis-url"`
	RedisPrefix string        `default:""       usage:"Extra key prefix to share one Redis between deployments"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"60" usage:"Max requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// ExportConfig configures the discount-export command.
type ExportConfig struct {
	Shopify  ShopifyConfig
	Resolver ResolverConfig
	Output   string `default:"discount-codes.tsv.gz" usage:"Gzip TSV file receiving every discount code"`
	Filter   string `default:"" usage:"Optional file receiving a bloom filter of all codes"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadExportConfig loads the export command configuration from the same
// sources as the server.
func LoadExportConfig() (*ExportConfig, error) {
	var cfg ExportConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.Shopify.applyPlatformDefaults(os.Getenv)

	if err := cfg.Shopify.validate(); err != nil {
		return nil, err
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	return &cfg, nil
}

func load(dst any) error {
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: "DISCOUNTS",
		Files:     []string{"config.yaml", "/etc/discounts/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}
	return nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms and the storefront deployment to the DISCOUNTS_ configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	c.Shopify.applyPlatformDefaults(getenv)
	if c.Cache.RedisURL == "" {
		c.Cache.RedisURL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *ShopifyConfig) applyPlatformDefaults(getenv func(string) string) {
	if c.Domain == "" {
		c.Domain = getenv("SHOPIFY_STORE_DOMAIN")
	}
	if c.AccessToken == "" {
		c.AccessToken = getenv("SHOPIFY_ADMIN_ACCESS_TOKEN")
	}
}

func (c *ShopifyConfig) validate() error {
	if c.Domain == "" {
		return errors.New("shop domain is required: set DISCOUNTS_SHOPIFY_DOMAIN or SHOPIFY_STORE_DOMAIN")
	}
	if c.AccessToken == "" {
		return errors.New("access token is required: set DISCOUNTS_SHOPIFY_ACCESS_TOKEN or SHOPIFY_ADMIN_ACCESS_TOKEN")
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.Shopify.validate(); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("redis cache requires DISCOUNTS_CACHE_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
