package raster

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gray returns an n-byte grayscale image
func gray(n int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, n, 1))
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2)
	img := gray(1)

	c.Put("a", img)
	c.Put("b", img)
	_, ok := c.Get("a") // a becomes most recently used
	assert.True(t, ok)

	c.Put("c", img)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	assert.Equal(t, []string{"c", "a"}, c.Keys())
	assert.Equal(t, 2, c.Len())
}

func TestCacheByteBudget(t *testing.T) {
	page := image.NewRGBA(image.Rect(0, 0, 100, 100)) // 40000 bytes
	c := NewCache(100_000)

	for i := 0; i < 5; i++ {
		c.Put(pageKey(i+1, 150), page)
		assert.LessOrEqual(t, c.Stats().Bytes, int64(100_000))
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(80_000), stats.Bytes)
	assert.Equal(t, []string{pageKey(5, 150), pageKey(4, 150)}, c.Keys())

	// Many small images push out one large one.
	for i := 0; i < 30; i++ {
		c.Put(imageKey(i), gray(1000))
	}
	stats = c.Stats()
	assert.Equal(t, int64(70_000), stats.Bytes)
	assert.Equal(t, 31, stats.Entries)
	_, ok := c.Get(pageKey(4, 150))
	assert.False(t, ok)
}

func TestCacheOversizedEntry(t *testing.T) {
	c := NewCache(1000)
	c.Put("small", gray(10))
	c.Put("huge", gray(1001))

	_, ok := c.Get("huge")
	assert.False(t, ok)
	_, ok = c.Get("small")
	assert.True(t, ok, "an oversized entry does not flush the cache")
	assert.Equal(t, int64(10), c.Stats().Bytes)
}

func TestCacheUpdate(t *testing.T) {
	c := NewCache(100)
	first := image.NewGray(image.Rect(0, 0, 1, 1))
	second := image.NewGray(image.Rect(0, 0, 2, 2))

	c.Put("k", first)
	c.Put("k", second)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, second.Bounds(), got.Bounds())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(4), c.Stats().Bytes)
}

func TestCacheStats(t *testing.T) {
	c := NewCache(4)
	c.Put("x", gray(1))

	c.Get("x")
	c.Get("y")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
	assert.Equal(t, int64(4), stats.MaxBytes)
	assert.Equal(t, int64(1), stats.Bytes)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Hits)
	assert.Equal(t, int64(0), c.Stats().Bytes)
}

func TestCacheDisabled(t *testing.T) {
	c := NewCache(0)
	c.Put("x", gray(1))
	_, ok := c.Get("x")
	assert.False(t, ok)
}

func TestCacheNil(t *testing.T) {
	var c *Cache
	require.NotPanics(t, func() {
		c.Put("x", nil)
		_, ok := c.Get("x")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
		assert.Nil(t, c.Keys())
		assert.Equal(t, CacheStats{}, c.Stats())
		c.Clear()
	})
}

func TestImageBytes(t *testing.T) {
	assert.Equal(t, int64(0), imageBytes(nil))
	assert.Equal(t, int64(24), imageBytes(image.NewRGBA(image.Rect(0, 0, 3, 2))))
	assert.Equal(t, int64(6), imageBytes(image.NewGray(image.Rect(0, 0, 3, 2))))
	assert.Equal(t, int64(6), imageBytes(image.NewAlpha(image.Rect(0, 0, 3, 2))))
	assert.Equal(t, int64(24), imageBytes(image.NewCMYK(image.Rect(0, 0, 3, 2))))
	assert.Equal(t, int64(6), imageBytes(image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)))
	assert.Equal(t, int64(24), imageBytes(image.NewGray16(image.Rect(0, 0, 3, 2))))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "img:12", imageKey(12))
	assert.Equal(t, "page:3@150", pageKey(3, 150))
	assert.Equal(t, "page:3@72.5", pageKey(3, 72.5))
}
