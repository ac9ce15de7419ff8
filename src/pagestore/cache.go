package pagestore

import (
	"context"
	"fmt"
	"sync"
)

// CacheStats captures page cache metrics.
type CacheStats struct {
	// Hits is the total number of LoadPage calls served from the cache.
	Hits uint64

	// Misses is the total number of LoadPage calls that went to the backing store.
	Misses uint64

	// Evictions is the total number of pages evicted due to the capacity limit.
	Evictions uint64

	// Size is the current number of cached pages.
	Size int

	// Capacity is the maximum number of cached pages.
	Capacity int
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits*100) / float64(total)
}

type lruItem struct {
	key  pageKey
	page *Page
	prev *lruItem
	next *lruItem
}

// CachedStore is a write-through LRU page cache in front of another Store.
// Cached pages are private copies; callers never share buffers with the cache.
type CachedStore struct {
	Store

	mu       sync.Mutex
	capacity int
	items    map[pageKey]*lruItem
	head     *lruItem
	tail     *lruItem
	stats    CacheStats
}

// NewCachedStore caches up to pages pages of store.
func NewCachedStore(store Store, pages int) (*CachedStore, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("page cache capacity must be > 0, got %d", pages)
	}
	return &CachedStore{
		Store:    store,
		capacity: pages,
		items:    make(map[pageKey]*lruItem),
		stats:    CacheStats{Capacity: pages},
	}, nil
}

func (c *CachedStore) LoadPage(ctx context.Context, fileID, pageIndex int64) (*Page, error) {
	key := pageKey{fileID: fileID, pageIndex: pageIndex}

	c.mu.Lock()
	if item, ok := c.items[key]; ok {
		c.moveToFront(item)
		c.stats.Hits++
		page := item.page.Clone()
		c.mu.Unlock()
		return page, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	page, err := c.Store.LoadPage(ctx, fileID, pageIndex)
	if err != nil {
		return nil, err
	}
	c.set(key, page.Clone())
	return page, nil
}

func (c *CachedStore) StorePage(ctx context.Context, fileID, pageIndex int64, page *Page) error {
	if err := c.Store.StorePage(ctx, fileID, pageIndex, page); err != nil {
		return err
	}
	c.set(pageKey{fileID: fileID, pageIndex: pageIndex}, page.Clone())
	return nil
}

func (c *CachedStore) DeleteFile(ctx context.Context, fileID int64) error {
	c.purgeFile(fileID)
	return c.Store.DeleteFile(ctx, fileID)
}

func (c *CachedStore) TruncateFile(ctx context.Context, fileID int64) error {
	c.purgeFile(fileID)
	return c.Store.TruncateFile(ctx, fileID)
}

// Stats returns cache statistics.
func (c *CachedStore) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Size = len(c.items)
	return c.stats
}

func (c *CachedStore) set(key pageKey, page *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[key]; ok {
		item.page = page
		c.moveToFront(item)
		return
	}

	item := &lruItem{key: key, page: page}
	c.items[key] = item
	c.moveToFront(item)

	if len(c.items) > c.capacity {
		c.evictLRU()
	}
}

func (c *CachedStore) purgeFile(fileID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if key.fileID == fileID {
			c.removeItem(item)
			delete(c.items, key)
		}
	}
}

func (c *CachedStore) moveToFront(item *lruItem) {
	if item == c.head {
		return
	}

	if item.prev != nil {
		item.prev.next = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	}
	if item == c.tail {
		c.tail = item.prev
	}

	item.prev = nil
	item.next = c.head
	if c.head != nil {
		c.head.prev = item
	}
	c.head = item
	if c.tail == nil {
		c.tail = item
	}
}

func (c *CachedStore) removeItem(item *lruItem) {
	if item.prev != nil {
		item.prev.next = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	}
	if item == c.head {
		c.head = item.next
	}
	if item == c.tail {
		c.tail = item.prev
	}
	item.prev, item.next = nil, nil
}

func (c *CachedStore) evictLRU() {
	if c.tail == nil {
		return
	}
	tail := c.tail
	c.removeItem(tail)
	delete(c.items, tail.key)
	c.stats.Evictions++
}

var _ Store = (*CachedStore)(nil)
