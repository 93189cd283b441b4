package cache

import "sync"

// Local is a named, process-local cache for read models (appointments,
// patient-snapshots, doctor-snapshots). Entries live until invalidated by a
// cache.invalidate broadcast or by the owning projection.
type Local struct {
	mu     sync.RWMutex
	caches map[string]map[string]interface{}
}

func NewLocal() *Local {
	return &Local{caches: make(map[string]map[string]interface{})}
}

func (l *Local) Get(cacheName, key string) (interface{}, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries, ok := l.caches[cacheName]
	if !ok {
		return nil, false
	}
	v, ok := entries[key]
	return v, ok
}

func (l *Local) Put(cacheName, key string, value interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.caches[cacheName]
	if !ok {
		entries = make(map[string]interface{})
		l.caches[cacheName] = entries
	}
	entries[key] = value
}

// Evict removes a single entry from the named cache.
func (l *Local) Evict(cacheName, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entries, ok := l.caches[cacheName]; ok {
		delete(entries, key)
	}
}

// Clear drops every entry in the named cache. Used when denormalized fields
// make targeted eviction unsafe.
func (l *Local) Clear(cacheName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.caches, cacheName)
}

// Invalidate applies a broadcast invalidation: specific ids when given,
// otherwise the whole named cache.
func (l *Local) Invalidate(cacheNames []string, entityIDs []string, invalidateAll bool) {
	for _, name := range cacheNames {
		if invalidateAll || len(entityIDs) == 0 {
			l.Clear(name)
			continue
		}
		for _, id := range entityIDs {
			l.Evict(name, id)
		}
	}
}

// Len reports the entry count of the named cache.
func (l *Local) Len(cacheName string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.caches[cacheName])
}
