// Package geomcache keeps the encoded vertex streams of meshes that are
// drawn frame after frame, so they are not re-encoded every frame.
//
// A geometry is retained only after it has been seen in PromoteAfter
// distinct frames. Entries unused for TTL frames expire, and the least
// recently used entries are evicted when the byte budget is exceeded.
package geomcache

import (
	"hash/fnv"
	"sync"
)

// Defaults.
const (
	DefaultMaxBytes     = 32 << 20
	DefaultTTL          = 1800
	DefaultPromoteAfter = 2
)

// Key identifies a geometry. Scope separates vertex formats: equal IDs in
// different scopes are different geometries.
type Key struct {
	Scope uint8
	ID    uint64
}

// Options configure a Cache. Zero fields take the defaults.
type Options struct {
	MaxBytes     int
	TTL          uint64 // frames
	PromoteAfter int
}

type entry struct {
	node     *lruNode
	data     []byte
	lastUsed uint64
}

type sighting struct {
	frames    int
	lastFrame uint64
}

// Stats are cumulative counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int
}

// Cache maps a geometry key to its encoded bytes. Safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	maxBytes     int
	ttl          uint64
	promoteAfter int

	frame   uint64
	entries map[Key]*entry
	seen    map[Key]*sighting
	lru     lruList
	bytes   int

	hits, misses, evictions uint64
}

// New returns an empty cache.
func New(opts Options) *Cache {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.PromoteAfter <= 0 {
		opts.PromoteAfter = DefaultPromoteAfter
	}
	return &Cache{
		maxBytes:     opts.MaxBytes,
		ttl:          opts.TTL,
		promoteAfter: opts.PromoteAfter,
		entries:      make(map[Key]*entry),
		seen:         make(map[Key]*sighting),
	}
}

// Hash returns the FNV-1a hash of b, for callers keying by content.
func Hash(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// BeginFrame advances the cache clock and drops expired entries.
func (c *Cache) BeginFrame(serial uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = serial
	if serial <= c.ttl {
		return
	}
	cutoff := serial - c.ttl
	for k, e := range c.entries {
		if e.lastUsed < cutoff {
			c.remove(k, e)
		}
	}
	for k, s := range c.seen {
		if s.lastFrame < cutoff {
			delete(c.seen, k)
		}
	}
}

// Encoded returns the bytes cached under key, calling encode on a miss.
// size is the byte length the caller expects; a cached entry of another
// length is dropped and re-encoded, and an encoding of another length is
// never cached.
func (c *Cache) Encoded(key Key, size int, encode func() []byte) []byte {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if len(e.data) == size {
			e.lastUsed = c.frame
			c.lru.MoveToFront(e.node)
			c.hits++
			c.mu.Unlock()
			return e.data
		}
		c.remove(key, e)
	}
	c.misses++
	s := c.seen[key]
	if s == nil {
		s = &sighting{}
		c.seen[key] = s
	}
	if s.frames == 0 || s.lastFrame != c.frame {
		s.frames++
		s.lastFrame = c.frame
	}
	promote := s.frames >= c.promoteAfter
	c.mu.Unlock()

	data := encode()
	if !promote || len(data) != size || len(data) > c.maxBytes {
		return data
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return data
	}
	delete(c.seen, key)
	c.entries[key] = &entry{node: c.lru.PushFront(key), data: data, lastUsed: c.frame}
	c.bytes += len(data)
	for c.bytes > c.maxBytes {
		k, ok := c.lru.Oldest()
		if !ok {
			break
		}
		c.remove(k, c.entries[k])
		c.evictions++
	}
	return data
}

func (c *Cache) remove(key Key, e *entry) {
	c.lru.Remove(e.node)
	c.bytes -= len(e.data)
	delete(c.entries, key)
}

// Contains reports whether key is cached.
func (c *Cache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
		Bytes:     c.bytes,
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.seen)
	c.lru = lruList{}
	c.bytes = 0
}
