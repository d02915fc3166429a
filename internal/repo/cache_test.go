package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-rob/internal/cache"
	"github.com/miradorstack/mirador-rob/internal/models"
)

var errCacheDown = errors.New("cache unavailable")

// flakyCache is an in-process provider that can be switched into an outage.
type flakyCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	down    bool
	gets    int
}

func newFlakyCache() *flakyCache {
	return &flakyCache{entries: make(map[string][]byte)}
}

func (f *flakyCache) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *flakyCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down {
		return nil, errCacheDown
	}
	value, ok := f.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (f *flakyCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errCacheDown
	}
	f.entries[key] = append([]byte(nil), value...)
	return nil
}

func (f *flakyCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, errCacheDown
	}
	if _, exists := f.entries[key]; exists {
		return false, nil
	}
	f.entries[key] = append([]byte(nil), value...)
	return true, nil
}

func (f *flakyCache) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errCacheDown
	}
	delete(f.entries, key)
	return nil
}

func (f *flakyCache) Close() error { return nil }

func TestCachedStoreSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	provider := newFlakyCache()
	store := NewCachedStore(inner, provider, time.Minute)

	provider.setDown(true)
	if err := store.SaveTemplate(ctx, "p1", &models.Template{ID: "t1", ToolType: models.ToolQUADAS2, Name: "q"}); err != nil {
		t.Fatalf("save during outage: %v", err)
	}
	for i := 0; i < 2; i++ {
		tmpl, err := store.GetTemplate(ctx, "p1", models.ToolQUADAS2)
		if err != nil || tmpl.Name != "q" {
			t.Fatalf("read during outage: %v %+v", err, tmpl)
		}
	}
	if inner.templateReads != 2 {
		t.Fatalf("expected every read to reach the store, got %d", inner.templateReads)
	}

	provider.setDown(false)
	if _, err := store.GetTemplate(ctx, "p1", models.ToolQUADAS2); err != nil {
		t.Fatalf("read after recovery: %v", err)
	}
	if _, err := store.GetTemplate(ctx, "p1", models.ToolQUADAS2); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if inner.templateReads != 3 {
		t.Fatalf("expected cache to absorb the last read, got %d store reads", inner.templateReads)
	}
}

func TestCachedStoreWithoutTTLBypassesCache(t *testing.T) {
	provider := newFlakyCache()
	store := NewCachedStore(NewMemoryStore(), provider, 0)
	if _, err := store.GetTemplate(context.Background(), "p1", models.ToolRoB2); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if provider.gets != 0 {
		t.Fatalf("cache consulted with ttl 0: %d gets", provider.gets)
	}
}
