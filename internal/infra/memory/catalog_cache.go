package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

const categoriesKey = "categories"

// CatalogCache caches category listings with TTL to avoid repeated upstream calls.
type CatalogCache struct {
	loader app.Catalog
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     any
	expiresAt time.Time
}

func NewCatalogCache(loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedEntry),
	}
}

func (c *CatalogCache) Categories(ctx context.Context) ([]domain.Category, error) {
	v, err := c.get(ctx, categoriesKey, func(ctx context.Context) (any, error) {
		return c.loader.Categories(ctx)
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Category(nil), v.([]domain.Category)...), nil
}

func (c *CatalogCache) CategoryCount(ctx context.Context, categoryID int) (domain.QuestionCount, error) {
	v, err := c.get(ctx, "count:"+strconv.Itoa(categoryID), func(ctx context.Context) (any, error) {
		return c.loader.CategoryCount(ctx, categoryID)
	})
	if err != nil {
		return domain.QuestionCount{}, err
	}
	return v.(domain.QuestionCount), nil
}

// get serves key from cache or loads it once for all concurrent callers.
// Failures are not cached.
func (c *CatalogCache) get(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedEntry{
			value:     v,
			expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (c *CatalogCache) lookup(key string) (any, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		return entry.value, true
	}
	return nil, false
}

func (c *CatalogCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
