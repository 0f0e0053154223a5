package cache

import (
	"context"
	"errors"
	"log"

	"pgstay/internal/domain"
)

type PropertyCache interface {
	Get(ctx context.Context, propertyID string) (*domain.Property, error)
	Set(ctx context.Context, property *domain.Property) error
	Delete(ctx context.Context, propertyID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache never stores anything; every Get is a miss.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*domain.Property, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, *domain.Property) error          { return nil }
func (NopCache) Delete(context.Context, string) error                 { return nil }

type PropertySource interface {
	GetByID(ctx context.Context, id string) (*domain.Property, error)
}

// ActiveChecker is implemented by sources that can confirm a property is still listed
// without loading it.
type ActiveChecker interface {
	IsActive(ctx context.Context, id string) (bool, error)
}

// ReadThrough serves property lookups from the cache and falls back to source.
// Cache failures are logged and never fail the lookup. When the source is an
// ActiveChecker, a cache hit is only served while the property is still active;
// a deactivated property is evicted and reported as not found.
type ReadThrough struct {
	source  PropertySource
	cache   PropertyCache
	loggerf func(format string, args ...interface{})
}

func NewReadThrough(source PropertySource, c PropertyCache) *ReadThrough {
	if c == nil {
		c = NopCache{}
	}
	return &ReadThrough{source: source, cache: c, loggerf: log.Printf}
}

func (r *ReadThrough) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	p, err := r.cache.Get(ctx, id)
	if err == nil {
		checker, ok := r.source.(ActiveChecker)
		if !ok {
			return p, nil
		}
		active, err := checker.IsActive(ctx, id)
		if err != nil {
			return nil, err
		}
		if active {
			return p, nil
		}
		if err := r.cache.Delete(ctx, id); err != nil {
			r.loggerf("level=warn msg=property_cache_delete_failed property_id=%s err=%v", id, err)
		}
		return nil, domain.ErrPropertyNotFound
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.loggerf("level=warn msg=property_cache_get_failed property_id=%s err=%v", id, err)
	}

	p, err = r.source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, p); err != nil {
		r.loggerf("level=warn msg=property_cache_set_failed property_id=%s err=%v", id, err)
	}
	return p, nil
}
