// Package catalog caches the rental backend's reference data (operating
// locations and facet vocabularies) per language.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	shardedcache "github.com/simp-lee/cache"
	"golang.org/x/sync/singleflight"

	"github.com/simp-lee/carhire/internal/domain"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 10 * time.Minute

// Cache groups. "fresh" entries expire after the ttl; "known" keeps the last
// good value of every key so a failed refresh can fall back to it.
const (
	groupFresh = "fresh"
	groupKnown = "known"

	locationsPrefix = "locations:"
	facetPrefix     = "facet:"
)

// Catalog is a read-through cache in front of domain.RentalAPI. Concurrent
// misses for the same key share one backend call. When a refresh fails and a
// previous value exists, the stale value is served.
type Catalog struct {
	api    domain.RentalAPI
	ttl    time.Duration
	logger *slog.Logger

	cache shardedcache.CacheInterface
	fresh shardedcache.Group
	known shardedcache.Group
	group singleflight.Group

	closeOnce sync.Once
}

// New returns a Catalog over api. Close releases the cache's cleanup workers.
func New(api domain.RentalAPI, ttl time.Duration, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := shardedcache.NewCache(shardedcache.Options{
		DefaultExpiration: 0,
		CleanupInterval:   ttl,
		ShardCount:        8,
	})
	return &Catalog{
		api:    api,
		ttl:    ttl,
		logger: logger,
		cache:  c,
		fresh:  c.Group(groupFresh),
		known:  c.Group(groupKnown),
	}
}

// Close stops the cache's background cleanup. It is safe to call twice.
func (c *Catalog) Close() {
	c.closeOnce.Do(c.cache.Close)
}

var _ domain.LocationSource = (*Catalog)(nil)

// Locations returns every operating location for language, in backend order.
func (c *Catalog) Locations(ctx context.Context, language string) ([]domain.Location, error) {
	return load(ctx, c, locationsPrefix+language, func(ctx context.Context) ([]domain.Location, error) {
		return c.api.ListLocations(ctx, language)
	}, slog.String("language", language))
}

// PickupLocations returns the active pickup-eligible locations.
func (c *Catalog) PickupLocations(ctx context.Context, language string) ([]domain.Location, error) {
	all, err := c.Locations(ctx, language)
	if err != nil {
		return nil, err
	}
	return domain.PickupLocations(all), nil
}

// DropoffLocations returns the active dropoff-eligible locations.
func (c *Catalog) DropoffLocations(ctx context.Context, language string) ([]domain.Location, error) {
	all, err := c.Locations(ctx, language)
	if err != nil {
		return nil, err
	}
	return domain.DropoffLocations(all), nil
}

// Facet returns the vocabulary of one facet kind.
func (c *Catalog) Facet(ctx context.Context, kind, language string) ([]domain.FacetOption, error) {
	if !domain.IsFacetKind(kind) {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unknown facet %q", kind), nil)
	}
	return load(ctx, c, facetPrefix+kind+":"+language, func(ctx context.Context) ([]domain.FacetOption, error) {
		return c.api.ListFacet(ctx, kind, language)
	}, slog.String("facet", kind), slog.String("language", language))
}

// Refresh re-fetches the location list of every language seen so far, and
// English when none has been requested yet. Failures keep the old data.
func (c *Catalog) Refresh(ctx context.Context) error {
	var langs []string
	for _, key := range c.known.Keys() {
		if lang, ok := strings.CutPrefix(key, locationsPrefix); ok {
			langs = append(langs, lang)
		}
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	slices.Sort(langs)

	var firstErr error
	for _, lang := range langs {
		locs, err := c.api.ListLocations(ctx, lang)
		if err != nil {
			c.logger.ErrorContext(ctx, "refresh locations failed", slog.String("language", lang), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.store(locationsPrefix+lang, locs)
		c.logger.DebugContext(ctx, "locations refreshed", slog.String("language", lang), slog.Int("count", len(locs)))
	}
	return firstErr
}

func (c *Catalog) store(key string, items any) {
	c.fresh.SetWithExpiration(key, items, c.ttl)
	c.known.SetWithExpiration(key, items, shardedcache.NoExpiration)
}

// load serves key from the fresh group, or fetches it once for all
// concurrent callers. A failed fetch falls back to the last known value.
func load[T any](ctx context.Context, c *Catalog, key string, fetch func(context.Context) ([]T, error), attrs ...any) ([]T, error) {
	if v, ok := lookup[T](c.fresh, key); ok {
		return slices.Clone(v), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		items, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, items)
		return items, nil
	})
	if err != nil {
		if stale, ok := lookup[T](c.known, key); ok {
			c.logger.WarnContext(ctx, "serving stale catalog entry", append(attrs, slog.Any("error", err))...)
			return slices.Clone(stale), nil
		}
		return nil, err
	}
	return slices.Clone(v.([]T)), nil
}

func lookup[T any](g shardedcache.Group, key string) ([]T, bool) {
	v, ok := g.Get(key)
	if !ok {
		return nil, false
	}
	items, ok := v.([]T)
	return items, ok
}
