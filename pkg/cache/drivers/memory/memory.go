// Package memory is an in-process cache driver backed by go-cache.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
)

// DefaultCleanupInterval is how often the janitor drops expired items.
const DefaultCleanupInterval = time.Minute

type Cache struct {
	c *gocache.Cache
}

var _ cache.Cache = (*Cache)(nil)

func New(cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Cache{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *Cache) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *Cache) Ping(context.Context) error { return nil }

// Len reports the number of items, expired ones included until the janitor runs.
func (m *Cache) Len() int { return m.c.ItemCount() }
