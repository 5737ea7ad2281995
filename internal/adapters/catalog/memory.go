// Package catalog provides in-process catalog repositories: an in-memory store
// and a decorator that remembers the last successful reads of another store.
package catalog

import (
	"context"
	"strconv"
	"sync"

	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
)

// Memory is an in-memory CatalogRepository. Entities keep insertion order.
type Memory struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*entities.CatalogEntity
	// anonymous numbers entities put without an ID.
	anonymous int
}

// NewMemory creates a memory catalog holding list.
func NewMemory(list ...*entities.CatalogEntity) *Memory {
	m := &Memory{byID: make(map[string]*entities.CatalogEntity)}
	m.Put(list...)
	return m
}

// Put inserts or replaces entities by ID. Replacements keep their position.
// Entities without an ID are always appended and can't be replaced or removed.
func (m *Memory) Put(list ...*entities.CatalogEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range list {
		if e == nil {
			continue
		}
		key := e.ID
		if key == "" {
			m.anonymous++
			key = "\x00" + strconv.Itoa(m.anonymous)
		}
		if _, ok := m.byID[key]; !ok {
			m.order = append(m.order, key)
		}
		m.byID[key] = e
	}
}

// Replace swaps the whole content for list.
func (m *Memory) Replace(list []*entities.CatalogEntity) {
	m.mu.Lock()
	m.order = nil
	m.byID = make(map[string]*entities.CatalogEntity, len(list))
	m.mu.Unlock()
	m.Put(list...)
}

// Remove deletes an entity and reports whether it existed.
func (m *Memory) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return false
	}
	delete(m.byID, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entities held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// ListEntities returns the entities matching filter in insertion order.
func (m *Memory) ListEntities(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entities.CatalogEntity, 0, len(m.order))
	for _, id := range m.order {
		if e := m.byID[id]; filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
