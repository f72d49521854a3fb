package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trivia-service/internal/domain"
)

func TestCatalogCacheCaches(t *testing.T) {
	loader := &countingCatalog{}
	cache := NewCatalogCache(loader, time.Minute)

	for i := 0; i < 3; i++ {
		categories, err := cache.Categories(context.Background())
		if err != nil {
			t.Fatalf("categories: %v", err)
		}
		if len(categories) != 2 {
			t.Fatalf("expected 2 categories, got %d", len(categories))
		}
	}
	if n := loader.categoryCalls.Load(); n != 1 {
		t.Fatalf("expected loader once, got %d", n)
	}

	if _, err := cache.CategoryCount(context.Background(), 9); err != nil {
		t.Fatalf("count: %v", err)
	}
	count, err := cache.CategoryCount(context.Background(), 9)
	if err != nil {
		t.Fatalf("count 2: %v", err)
	}
	if count.Total != 90 {
		t.Fatalf("expected total 90, got %d", count.Total)
	}
	if _, err := cache.CategoryCount(context.Background(), 10); err != nil {
		t.Fatalf("count other: %v", err)
	}
	if n := loader.countCalls.Load(); n != 2 {
		t.Fatalf("expected one load per category, got %d", n)
	}
}

func TestCatalogCacheExpires(t *testing.T) {
	loader := &countingCatalog{}
	cache := NewCatalogCache(loader, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	if _, err := cache.Categories(context.Background()); err != nil {
		t.Fatalf("categories: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.Categories(context.Background()); err != nil {
		t.Fatalf("categories: %v", err)
	}
	if n := loader.categoryCalls.Load(); n != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", n)
	}
}

func TestCatalogCacheDoesNotCacheFailures(t *testing.T) {
	loader := &countingCatalog{err: errors.New("upstream down")}
	cache := NewCatalogCache(loader, time.Minute)

	if _, err := cache.CategoryCount(context.Background(), 9); err == nil {
		t.Fatalf("expected error")
	}
	loader.setErr(nil)
	if _, err := cache.CategoryCount(context.Background(), 9); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestCatalogCacheCoalescesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingCatalog{gate: release}
	cache := NewCatalogCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Categories(context.Background()); err != nil {
				t.Errorf("categories: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(time.Second)
	for loader.categoryCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loader.categoryCalls.Load(); n != 1 {
		t.Fatalf("expected a single upstream load, got %d", n)
	}
}

type countingCatalog struct {
	categoryCalls atomic.Int32
	countCalls    atomic.Int32
	gate          chan struct{}

	mu  sync.Mutex
	err error
}

func (c *countingCatalog) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *countingCatalog) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *countingCatalog) Categories(context.Context) ([]domain.Category, error) {
	c.categoryCalls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if err := c.failure(); err != nil {
		return nil, err
	}
	return []domain.Category{{ID: 9, Name: "General Knowledge"}, {ID: 10, Name: "Entertainment: Books"}}, nil
}

func (c *countingCatalog) CategoryCount(_ context.Context, categoryID int) (domain.QuestionCount, error) {
	c.countCalls.Add(1)
	if err := c.failure(); err != nil {
		return domain.QuestionCount{}, err
	}
	return domain.QuestionCount{Total: categoryID * 10, Easy: categoryID}, nil
}
