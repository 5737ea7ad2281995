package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pool names used by the query core.
const (
	PoolResults   = "results"
	PoolDerived   = "derived"
	PoolSnapshots = "snapshots"
)

// Namespace is the untyped view of a pool the manager needs for
// administration.
type Namespace interface {
	Name() string
	Invalidate(keyOrPattern string) int
	Sweep() int
	Stats() Stats
	Purge()
}

// Manager is a registry of named pools.
type Manager struct {
	mu     sync.RWMutex
	pools  map[string]Namespace
	logger zerolog.Logger
}

// NewManager creates an empty pool registry.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		pools:  make(map[string]Namespace),
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Register adds a pool. Pool names must be unique.
func (m *Manager) Register(pool Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[pool.Name()]; exists {
		return fmt.Errorf("cache pool %q already registered", pool.Name())
	}
	m.pools[pool.Name()] = pool
	return nil
}

// Register creates a typed pool and adds it to the manager.
func Register[V any](m *Manager, cfg PoolConfig[V]) (*Pool[V], error) {
	pool := NewPool(cfg)
	if err := m.Register(pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Invalidate removes key or pattern matches from the named pool.
func (m *Manager) Invalidate(pool, keyOrPattern string) (int, error) {
	ns, err := m.lookup(pool)
	if err != nil {
		return 0, err
	}
	removed := ns.Invalidate(keyOrPattern)
	m.logger.Debug().
		Str("pool", pool).
		Str("pattern", keyOrPattern).
		Int("removed", removed).
		Msg("cache invalidated")
	return removed, nil
}

// Stats returns counters for the named pool.
func (m *Manager) Stats(pool string) (Stats, error) {
	ns, err := m.lookup(pool)
	if err != nil {
		return Stats{}, err
	}
	return ns.Stats(), nil
}

// AllStats returns counters for every pool ordered by name.
func (m *Manager) AllStats() []Stats {
	m.mu.RLock()
	stats := make([]Stats, 0, len(m.pools))
	for _, ns := range m.pools {
		stats = append(stats, ns.Stats())
	}
	m.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Sweep purges expired entries from every pool.
func (m *Manager) Sweep() int {
	m.mu.RLock()
	pools := make([]Namespace, 0, len(m.pools))
	for _, ns := range m.pools {
		pools = append(pools, ns)
	}
	m.mu.RUnlock()

	total := 0
	for _, ns := range pools {
		total += ns.Sweep()
	}
	return total
}

// StartSweeper runs Sweep on every tick until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				m.logger.Debug().Int("removed", removed).Msg("cache sweep")
			}
		}
	}
}

func (m *Manager) lookup(pool string) (Namespace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.pools[pool]
	if !ok {
		return nil, fmt.Errorf("unknown cache pool %q", pool)
	}
	return ns, nil
}
