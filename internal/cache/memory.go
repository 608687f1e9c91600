package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider for single-instance deployments and the CLI.
type MemoryProvider struct {
	mu   sync.Mutex
	data map[string]item
	now  func() time.Time
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]item), now: time.Now}
}

// Get returns a copy of the stored value, or ErrCacheMiss when absent or expired.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && c.now().After(it.expiresAt) {
		delete(c.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value. A non-positive TTL never expires.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.data[key] = item{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes an entry.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]item)
	return nil
}
