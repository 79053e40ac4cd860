package service

import (
	"sync"
	"time"
)

// signedURLSafety is subtracted from the URL expiry when caching so a
// cached URL always stays valid for the lifetime we advertise.
const signedURLSafety = 30 * time.Second

type cachedURL struct {
	url     string
	expires time.Time
}

// urlCache is a size-bounded map of object path to signed URL. When full,
// the entry closest to expiry is evicted.
type urlCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]cachedURL
}

func newURLCache(max int) *urlCache {
	return &urlCache{
		max:     max,
		entries: make(map[string]cachedURL, max),
	}
}

func (c *urlCache) get(objectPath string, now time.Time) (string, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[objectPath]
	if !ok {
		return "", time.Time{}, false
	}
	if !now.Before(entry.expires.Add(-signedURLSafety)) {
		delete(c.entries, objectPath)
		return "", time.Time{}, false
	}
	return entry.url, entry.expires, true
}

func (c *urlCache) put(objectPath, url string, expires, now time.Time) {
	if expires.Sub(now) <= signedURLSafety {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[objectPath]; !exists && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[objectPath] = cachedURL{url: url, expires: expires}
}

// evictOldest removes the entry expiring soonest. Callers hold the lock.
func (c *urlCache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, entry := range c.entries {
		if !found || entry.expires.Before(oldest) {
			oldestKey, oldest, found = key, entry.expires, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
