// Package detectcache memoizes face detection results per frame fingerprint.
package detectcache

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// FingerprintFunc computes the cache key for a frame.
type FingerprintFunc func(image.Image) string

// DetectFunc runs the underlying detector.
type DetectFunc func(ctx context.Context, img image.Image) ([]facematch.Box, error)

type entry struct {
	boxes     []facematch.Box
	timestamp time.Time
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sweeps int64 `json:"sweeps"`
}

// Cache maps frame fingerprints to detected boxes.
// An entry is valid while now-timestamp < timeout. Every timeout the whole
// cache is purged, checked on each lookup. The LRU bound caps memory between sweeps.
// Detection runs without holding the lock.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, entry]
	timeout   time.Duration
	lastSweep time.Time
	stats     Stats
	now       func() time.Time
}

// New creates a cache with the given expiry and size bound.
func New(timeout time.Duration, maxSize int) (*Cache, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("cache timeout must be positive, got %s", timeout)
	}
	entries, err := lru.New[string, entry](maxSize)
	if err != nil {
		return nil, fmt.Errorf("creating detection cache: %w", err)
	}
	return &Cache{
		entries:   entries,
		timeout:   timeout,
		lastSweep: time.Now(),
		now:       time.Now,
	}, nil
}

// CentralFingerprint is the default FingerprintFunc.
func CentralFingerprint(img image.Image) string {
	return fingerprint.Frame(img, constants.FingerprintRegion)
}

// GetOrDetect returns cached boxes for frame when a valid entry exists, and
// otherwise runs detect and stores the result. With useCache false it only detects.
// Detector errors are returned and never cached.
func (c *Cache) GetOrDetect(ctx context.Context, frame image.Image, fp FingerprintFunc, detect DetectFunc, useCache bool) ([]facematch.Box, error) {
	if !useCache {
		metrics.DetectionCacheTotal.WithLabelValues("bypass").Inc()
		return detect(ctx, frame)
	}

	key := fp(frame)

	c.mu.Lock()
	now := c.now()
	c.sweepLocked(now)
	if e, ok := c.entries.Get(key); ok && now.Sub(e.timestamp) < c.timeout {
		c.stats.Hits++
		c.mu.Unlock()
		metrics.DetectionCacheTotal.WithLabelValues("hit").Inc()
		return slices.Clone(e.boxes), nil
	}
	c.stats.Misses++
	c.mu.Unlock()
	metrics.DetectionCacheTotal.WithLabelValues("miss").Inc()

	boxes, err := detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries.Add(key, entry{boxes: slices.Clone(boxes), timestamp: c.now()})
	c.mu.Unlock()

	return boxes, nil
}

// sweepLocked purges every entry once timeout has elapsed since the last sweep.
func (c *Cache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.timeout {
		return
	}
	c.entries.Purge()
	c.lastSweep = now
	c.stats.Sweeps++
	metrics.DetectionCacheSweeps.Inc()
}

// Clear drops every entry immediately (recovery action).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.lastSweep = c.now()
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.entries.Len()
	return s
}
