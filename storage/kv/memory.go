// Package kv provides the backing stores of the session tiers.
package kv

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/trezcool/masomo-portal/core/session"
)

// evictionGrace keeps entries around a little longer than the session TTL:
// expiry is decided by the session guard, eviction only reclaims memory.
const evictionGrace = time.Hour

// Memory is an in-process session.Store.
type Memory struct {
	cache *ttlcache.Cache[string, string]
}

var _ session.Store = (*Memory)(nil)

// NewMemory returns a Memory evicting entries `ttl` (session.DefaultTTL if <= 0) plus a grace period after their last write.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl+evictionGrace),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &Memory{cache: cache}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	item := m.cache.Get(key)
	if item == nil {
		return "", session.ErrKeyNotFound
	}
	return item.Value(), nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.cache.Set(key, value, ttlcache.DefaultTTL)
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *Memory) Len() int {
	return m.cache.Len()
}

// Close stops the eviction loop.
func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}
