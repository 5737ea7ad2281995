// Package cache provides named, independently configured in-process cache pools.
//
// Each pool is typed to its payload, capped at a maximum entry count and
// expires entries by wall-clock TTL. Capacity eviction removes the
// least-recently-set entry; reads never refresh recency.
package cache

import (
	"context"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AdmitFunc decides whether a value is worth caching.
type AdmitFunc[V any] func(V) bool

// ErrorPayload is implemented by values that may carry an error outcome.
// Pools never store a value whose IsError reports true.
type ErrorPayload interface {
	IsError() bool
}

// PoolConfig configures a single pool.
type PoolConfig[V any] struct {
	Name       string
	TTL        time.Duration
	MaxEntries int
	Admit      AdmitFunc[V]
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Stats is a point-in-time view of a pool's counters.
type Stats struct {
	Name      string  `json:"name"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Evictions uint64  `json:"evictions"`
	Expired   uint64  `json:"expired"`
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry[V]) expiredAt(now time.Time) bool {
	return e.ttl > 0 && !now.Before(e.insertedAt.Add(e.ttl))
}

// Pool is a typed TTL cache with a hard entry cap.
type Pool[V any] struct {
	name     string
	ttl      time.Duration
	capacity int
	admit    AdmitFunc[V]
	now      func() time.Time

	// TTL is tracked per entry; the LRU only enforces the size cap.
	lru *expirable.LRU[string, entry[V]]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64
}

// NewPool creates a pool. MaxEntries below 1 is treated as 1.
func NewPool[V any](cfg PoolConfig[V]) *Pool[V] {
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Pool[V]{
		name:     cfg.Name,
		ttl:      cfg.TTL,
		capacity: cfg.MaxEntries,
		admit:    cfg.Admit,
		now:      cfg.Clock,
		lru:      expirable.NewLRU[string, entry[V]](cfg.MaxEntries, nil, 0),
	}
}

// Name returns the pool name.
func (p *Pool[V]) Name() string {
	return p.name
}

// TTL returns the pool's default time-to-live.
func (p *Pool[V]) TTL() time.Duration {
	return p.ttl
}

// Get returns the cached value for key. Expired entries count as a miss and
// are removed.
func (p *Pool[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := p.lru.Peek(key)
	if !ok {
		p.misses.Add(1)
		return zero, false
	}
	if e.expiredAt(p.now()) {
		p.lru.Remove(key)
		p.expired.Add(1)
		p.misses.Add(1)
		return zero, false
	}
	p.hits.Add(1)
	return e.value, true
}

// Set stores value under key with the pool's default TTL. It reports false
// when the value was not worth caching.
func (p *Pool[V]) Set(key string, value V) bool {
	return p.SetWithTTL(key, value, p.ttl)
}

// SetWithTTL stores value with an explicit TTL. A ttl of zero means the entry
// only leaves the pool through capacity eviction or invalidation.
func (p *Pool[V]) SetWithTTL(key string, value V, ttl time.Duration) bool {
	if !p.worthCaching(value) {
		return false
	}
	if p.lru.Add(key, entry[V]{value: value, insertedAt: p.now(), ttl: ttl}) {
		p.evictions.Add(1)
	}
	return true
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Load errors are returned and nothing is cached.
func (p *Pool[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := p.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	p.Set(key, v)
	return v, nil
}

// Invalidate removes key, or every key matching a glob pattern, and returns
// the number of entries removed.
func (p *Pool[V]) Invalidate(keyOrPattern string) int {
	if !strings.ContainsAny(keyOrPattern, "*?[") {
		if p.lru.Remove(keyOrPattern) {
			return 1
		}
		return 0
	}

	removed := 0
	for _, key := range p.lru.Keys() {
		if ok, err := path.Match(keyOrPattern, key); err == nil && ok {
			if p.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Purge drops every entry. Counters are kept.
func (p *Pool[V]) Purge() {
	p.lru.Purge()
}

// Sweep removes every expired entry and returns how many were dropped.
func (p *Pool[V]) Sweep() int {
	now := p.now()
	removed := 0
	for _, key := range p.lru.Keys() {
		e, ok := p.lru.Peek(key)
		if ok && e.expiredAt(now) && p.lru.Remove(key) {
			removed++
		}
	}
	p.expired.Add(uint64(removed))
	return removed
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (p *Pool[V]) Len() int {
	return p.lru.Len()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[V]) Stats() Stats {
	hits := p.hits.Load()
	misses := p.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Name:      p.name,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
		Size:      p.lru.Len(),
		Capacity:  p.capacity,
		Evictions: p.evictions.Load(),
		Expired:   p.expired.Load(),
	}
}

func (p *Pool[V]) worthCaching(value V) bool {
	switch v := any(value).(type) {
	case nil:
		return false
	case error:
		return false
	case ErrorPayload:
		if v.IsError() {
			return false
		}
	}
	if p.admit != nil && !p.admit(value) {
		return false
	}
	return true
}

// NonEmpty admits slices with at least one element.
func NonEmpty[T any]() AdmitFunc[[]T] {
	return func(v []T) bool {
		return len(v) > 0
	}
}
