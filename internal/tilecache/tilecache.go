// Package tilecache bounds the number of decoded tiles kept resident by
// wrapping a fixed-capacity LRU over the tile coordinate space, evicting
// the least-recently-used tile's coefficient blocks back to their block
// allocators whenever the cache is full.
package tilecache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Key identifies a single cached tile.
type Key struct {
	Scale int
	X, Y  int
}

// Entry is the cached payload for one tile: its final RGBA pixels plus
// the coefficient blocks that produced them, so an eviction callback can
// return those blocks to their allocator.
type Entry struct {
	RGBA   []byte
	Blocks [][]byte

	// OnEvict, if set, runs after Blocks have been released, so the owner
	// can clear any flags/pointers (e.g. a Tile's HasLL/HasH) that mirror
	// the entry's residency.
	OnEvict func()
}

// ReleaseFunc returns a coefficient block to the allocator it came from.
type ReleaseFunc func(block []byte)

// Cache is an LRU cache over decoded tiles, bounded by tile count.
type Cache struct {
	lru     *lru.Cache
	release ReleaseFunc
}

// New creates a cache holding at most capacity tiles. release is invoked
// for every coefficient block belonging to a tile evicted to make room;
// it may be nil if the caller has no block allocator to return blocks to.
func New(capacity int, release ReleaseFunc) (*Cache, error) {
	c := &Cache{release: release}
	l, err := lru.NewWithEvict(capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

func (c *Cache) onEvict(key, value interface{}) {
	entry, ok := value.(Entry)
	if !ok {
		return
	}
	if c.release != nil {
		for _, block := range entry.Blocks {
			c.release(block)
		}
	}
	if entry.OnEvict != nil {
		entry.OnEvict()
	}
}

// Get returns the cached entry for key, if present, marking it most
// recently used.
func (c *Cache) Get(key Key) (Entry, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Add inserts or replaces the entry for key.
func (c *Cache) Add(key Key, entry Entry) {
	c.lru.Add(key, entry)
}

// Remove evicts key immediately, if present, running the release callback.
func (c *Cache) Remove(key Key) {
	c.lru.Remove(key)
}

// Len returns the number of tiles currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge evicts every cached tile, running the release callback for each.
func (c *Cache) Purge() {
	c.lru.Purge()
}
