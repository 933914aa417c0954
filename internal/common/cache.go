package common

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache — LRU-кэш с временем жизни записей.
// Используется для ответов оракула и подписей геокодера.
type TTLCache[V any] struct {
	lruCache *lru.Cache[string, cacheItem[V]]
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewTTLCache создаёт кэш на size записей. ttl <= 0 — записи не протухают.
func NewTTLCache[V any](size int, ttl time.Duration) (*TTLCache[V], error) {
	l, err := lru.New[string, cacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[V]{lruCache: l, ttl: ttl, now: time.Now}, nil
}

// Set кладёт значение в кэш.
func (c *TTLCache[V]) Set(key string, value V) {
	item := cacheItem[V]{value: value}
	if c.ttl > 0 {
		item.expiresAt = c.now().Add(c.ttl)
	}
	c.lruCache.Add(key, item)
}

// Get возвращает значение, если оно есть и ещё не протухло.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	item, ok := c.lruCache.Get(key)
	if !ok {
		return zero, false
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		c.lruCache.Remove(key)
		return zero, false
	}
	return item.value, true
}

// Delete удаляет запись.
func (c *TTLCache[V]) Delete(key string) {
	c.lruCache.Remove(key)
}
