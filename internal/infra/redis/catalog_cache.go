package redis

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// CatalogCache caches category listings in Redis and falls back to a loader on miss.
// Categories are stored as:      HSET trivia:categories {id} {name}
// Question counts are stored as: HSET trivia:category:{id}:counts total|easy|medium|hard {n}
type CatalogCache struct {
	client *redis.Client
	loader app.Catalog
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const categoriesKey = "trivia:categories"

func (c *CatalogCache) Categories(ctx context.Context) ([]domain.Category, error) {
	if cached, err := c.client.HGetAll(ctx, categoriesKey).Result(); err == nil && len(cached) > 0 {
		return buildCategories(cached), nil
	}

	result, err, _ := c.sf.Do(categoriesKey, func() (any, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.HGetAll(ctx, categoriesKey).Result(); err == nil && len(cached) > 0 {
			return buildCategories(cached), nil
		}

		categories, err := c.loader.Categories(ctx)
		if err != nil {
			return nil, err
		}
		if len(categories) == 0 {
			return categories, nil
		}

		pipe := c.client.Pipeline()
		for _, cat := range categories {
			pipe.HSet(ctx, categoriesKey, strconv.Itoa(cat.ID), cat.Name)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, categoriesKey, ttl)
		}
		_, _ = pipe.Exec(ctx)
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Category), nil
}

func (c *CatalogCache) CategoryCount(ctx context.Context, categoryID int) (domain.QuestionCount, error) {
	key := countsKey(categoryID)
	if cached, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
		return buildCount(cached), nil
	}

	result, err, _ := c.sf.Do(key, func() (any, error) {
		if cached, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
			return buildCount(cached), nil
		}

		count, err := c.loader.CategoryCount(ctx, categoryID)
		if err != nil {
			return domain.QuestionCount{}, err
		}

		pipe := c.client.Pipeline()
		pipe.HSet(ctx, key, "total", count.Total, "easy", count.Easy, "medium", count.Medium, "hard", count.Hard)
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)
		return count, nil
	})
	if err != nil {
		return domain.QuestionCount{}, err
	}
	return result.(domain.QuestionCount), nil
}

func countsKey(categoryID int) string {
	return "trivia:category:" + strconv.Itoa(categoryID) + ":counts"
}

func buildCategories(cached map[string]string) []domain.Category {
	categories := make([]domain.Category, 0, len(cached))
	for idStr, name := range cached {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		categories = append(categories, domain.Category{ID: id, Name: name})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories
}

func buildCount(cached map[string]string) domain.QuestionCount {
	n := func(field string) int {
		v, _ := strconv.Atoi(cached[field])
		return v
	}
	return domain.QuestionCount{Total: n("total"), Easy: n("easy"), Medium: n("medium"), Hard: n("hard")}
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
