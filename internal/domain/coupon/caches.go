package coupon

import (
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront-discounts/internal/cache"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

// MemoryCaches returns in-process caches sharing ttl and capacity.
func MemoryCaches(ttl time.Duration, capacity int) Caches {
	return Caches{
		Lookups:   cache.NewMemory[discount.DiscountCode](ttl, capacity),
		Rules:     cache.NewMemory[discount.PriceRule](ttl, capacity),
		RuleLists: cache.NewMemory[[]discount.PriceRule](ttl, capacity),
		CodeLists: cache.NewMemory[[]discount.DiscountCode](ttl, capacity),
		Filters:   cache.NewMemory[*bloom.BloomFilter](ttl, 1),
	}
}

// RedisCaches returns caches shared through Redis, one key namespace per kind.
func RedisCaches(client redis.UniversalClient, prefix string, ttl time.Duration) Caches {
	ns := func(kind string) string {
		if prefix == "" {
			return kind
		}
		return prefix + ":" + kind
	}
	return Caches{
		Lookups:   cache.NewRedis[discount.DiscountCode](client, ns("lookups"), ttl),
		Rules:     cache.NewRedis[discount.PriceRule](client, ns("rules"), ttl),
		RuleLists: cache.NewRedis[[]discount.PriceRule](client, ns("rule_lists"), ttl),
		CodeLists: cache.NewRedis[[]discount.DiscountCode](client, ns("code_lists"), ttl),
		Filters:   cache.NewRedis[*bloom.BloomFilter](client, ns("filters"), ttl),
	}
}

func (c Caches) withDefaults() Caches {
	if c.Lookups == nil {
		c.Lookups = cache.Nop[discount.DiscountCode]{}
	}
	if c.Rules == nil {
		c.Rules = cache.Nop[discount.PriceRule]{}
	}
	if c.RuleLists == nil {
		c.RuleLists = cache.Nop[[]discount.PriceRule]{}
	}
	if c.CodeLists == nil {
		c.CodeLists = cache.Nop[[]discount.DiscountCode]{}
	}
	if c.Filters == nil {
		c.Filters = cache.Nop[*bloom.BloomFilter]{}
	}
	return c
}
