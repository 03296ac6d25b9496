// Package cache holds the short-lived recent-links listing cache.
// Staleness up to the TTL is accepted; writers invalidate on create.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roniherschmann/linkpulse/internal/store"
)

type Recent interface {
	Get(ctx context.Context, limit, offset int) ([]store.Link, bool)
	Set(ctx context.Context, limit, offset int, links []store.Link)
	Invalidate(ctx context.Context)
}

func key(limit, offset int) string {
	return fmt.Sprintf("recent:%d:%d", limit, offset)
}

type memEntry struct {
	links   []store.Link
	expires time.Time
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, limit, offset int) ([]store.Link, bool) {
	m.mu.RLock()
	e, ok := m.entries[key(limit, offset)]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expires) {
		return nil, false
	}
	return e.links, true
}

func (m *Memory) Set(_ context.Context, limit, offset int, links []store.Link) {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key(limit, offset)] = memEntry{links: links, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory) Invalidate(context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.mu.Unlock()
}
