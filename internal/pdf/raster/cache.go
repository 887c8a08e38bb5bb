package raster

import (
	"fmt"
	"image"
	"sync"
)

// Cache is a least recently used store for decoded source images and
// rendered pages, bounded by the pixel bytes it holds. A cache belongs to
// one processing session and is dropped with it, so nothing leaks between
// documents.
type Cache struct {
	mutex    sync.Mutex
	maxBytes int64
	bytes    int64
	items    map[string]*cacheNode
	head     *cacheNode // most recently used
	tail     *cacheNode // least recently used
	hits     int64
	misses   int64
}

type cacheNode struct {
	key   string
	value image.Image
	size  int64
	prev  *cacheNode
	next  *cacheNode
}

// CacheStats provides statistics about cache performance
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate_percent"`
	Entries  int     `json:"entries"`
	Bytes    int64   `json:"bytes"`
	MaxBytes int64   `json:"max_bytes"`
}

// NewCache creates a cache holding at most maxBytes of pixel data. A budget
// of zero or less disables caching.
func NewCache(maxBytes int64) *Cache {
	c := &Cache{
		maxBytes: maxBytes,
		items:    make(map[string]*cacheNode),
		head:     &cacheNode{},
		tail:     &cacheNode{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

func imageKey(objNr int) string {
	return fmt.Sprintf("img:%d", objNr)
}

func pageKey(pageNr int, dpi float64) string {
	return fmt.Sprintf("page:%d@%g", pageNr, dpi)
}

// imageBytes is the memory held by an image's pixel buffer
func imageBytes(img image.Image) int64 {
	switch v := img.(type) {
	case nil:
		return 0
	case *image.RGBA:
		return int64(len(v.Pix))
	case *image.NRGBA:
		return int64(len(v.Pix))
	case *image.Gray:
		return int64(len(v.Pix))
	case *image.Alpha:
		return int64(len(v.Pix))
	case *image.CMYK:
		return int64(len(v.Pix))
	case *image.YCbCr:
		return int64(len(v.Y) + len(v.Cb) + len(v.Cr))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

// Get retrieves a value and marks it as recently used
func (c *Cache) Get(key string) (image.Image, bool) {
	if c == nil {
		return nil, false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, exists := c.items[key]; exists {
		c.moveToFront(node)
		c.hits++
		return node.value, true
	}

	c.misses++
	return nil, false
}

// Put adds or updates an entry, evicting least recently used entries until
// the budget holds. An image larger than the whole budget is not stored.
func (c *Cache) Put(key string, value image.Image) {
	if c == nil || c.maxBytes <= 0 {
		return
	}

	size := imageBytes(value)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, exists := c.items[key]; exists {
		c.remove(node)
	}
	if size > c.maxBytes {
		return
	}

	node := &cacheNode{key: key, value: value, size: size}
	c.addToFront(node)
	c.items[key] = node
	c.bytes += size

	for c.bytes > c.maxBytes {
		c.remove(c.tail.prev)
	}
}

// Clear removes all entries and resets statistics
func (c *Cache) Clear() {
	if c == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*cacheNode)
	c.head.next = c.tail
	c.tail.prev = c.head
	c.bytes = 0
	c.hits = 0
	c.misses = 0
}

// Len returns the current number of entries
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Keys returns all keys from most to least recently used
func (c *Cache) Keys() []string {
	if c == nil {
		return nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	keys := make([]string, 0, len(c.items))
	for n := c.head.next; n != c.tail; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return CacheStats{
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  hitRate,
		Entries:  len(c.items),
		Bytes:    c.bytes,
		MaxBytes: c.maxBytes,
	}
}

// remove drops node from the list and the index
func (c *Cache) remove(node *cacheNode) {
	c.removeNode(node)
	delete(c.items, node.key)
	c.bytes -= node.size
}

func (c *Cache) moveToFront(node *cacheNode) {
	c.removeNode(node)
	c.addToFront(node)
}

func (c *Cache) addToFront(node *cacheNode) {
	node.prev = c.head
	node.next = c.head.next
	c.head.next.prev = node
	c.head.next = node
}

func (c *Cache) removeNode(node *cacheNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}
