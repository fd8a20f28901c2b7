package species

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/observability"
)

// CachedResolver wraps a SpeciesResolver with a TTL cache. Concurrent misses
// for the same key share one underlying lookup.
type CachedResolver struct {
	inner   domain.SpeciesResolver
	cache   *cache.Cache
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver. metrics may be nil.
func NewCachedResolver(inner domain.SpeciesResolver, ttl time.Duration, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   cache.New(ttl, ttl*2),
		metrics: metrics,
	}
}

func (c *CachedResolver) MatchSpecies(ctx context.Context, input string, universe domain.SpeciesUniverse) ([]domain.Species, error) {
	key := fmt.Sprintf("match:%d:%s", universe, strings.ToLower(strings.TrimSpace(input)))
	if v, ok := c.cache.Get(key); ok {
		c.observe("match", "hit")
		return v.([]domain.Species), nil
	}
	c.observe("match", "miss")
	v, err, _ := c.group.Do(key, func() (any, error) {
		found, err := c.inner.MatchSpecies(ctx, input, universe)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, found, cache.DefaultExpiration)
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Species), nil
}

func (c *CachedResolver) SpeciesByName(ctx context.Context, name string) (domain.Species, error) {
	key := "name:" + name
	if v, ok := c.cache.Get(key); ok {
		c.observe("name", "hit")
		return v.(domain.Species), nil
	}
	c.observe("name", "miss")
	v, err, _ := c.group.Do(key, func() (any, error) {
		sp, err := c.inner.SpeciesByName(ctx, name)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, sp, cache.DefaultExpiration)
		return sp, nil
	})
	if err != nil {
		return domain.Species{}, err
	}
	return v.(domain.Species), nil
}

// Flush drops every cached result, e.g. after the species table is reseeded.
func (c *CachedResolver) Flush() {
	c.cache.Flush()
}

func (c *CachedResolver) observe(lookup, result string) {
	if c.metrics != nil {
		c.metrics.SpeciesCache.WithLabelValues(lookup, result).Inc()
	}
}
