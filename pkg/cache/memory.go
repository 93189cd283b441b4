package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meditrust/hospital-core/pkg/logger"
)

// memoryStore is an in-memory, process-local fallback that satisfies Store
// when the external store is unavailable. It is best-effort and intended for
// development and tests; data is not shared across replicas and TTLs are
// enforced lazily on read.
type memoryStore struct {
	mu     sync.Mutex
	data   map[string]memoryEntry
	logger logger.Logger
}

type memoryEntry struct {
	value     []byte
	counter   int64
	isCounter bool
	expiresAt time.Time
}

func NewMemoryStore(log logger.Logger) Store {
	return &memoryStore{data: make(map[string]memoryEntry), logger: log}
}

func (m *memoryStore) get(key string) (memoryEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.data, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.get(key)
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if e.isCounter {
		return []byte(fmt.Sprintf("%d", e.counter)), nil
	}
	return e.value, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryEntry{value: data, expiresAt: expiry(ttl)}
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(key); ok {
		return false, nil
	}
	if n, ok := toInt64(value); ok {
		m.data[key] = memoryEntry{counter: n, isCounter: true, expiresAt: expiry(ttl)}
		return true, nil
	}
	data, err := encode(value)
	if err != nil {
		return false, err
	}
	m.data[key] = memoryEntry{value: data, expiresAt: expiry(ttl)}
	return true, nil
}

func (m *memoryStore) Decr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.get(key)
	if !ok {
		e = memoryEntry{isCounter: true}
	}
	e.isCounter = true
	e.counter--
	m.data[key] = e
	return e.counter, nil
}

// HealthCheck reports failure so readiness probes can tell the external
// store is not connected.
func (m *memoryStore) HealthCheck(ctx context.Context) error {
	return fmt.Errorf("in-memory cache in use (external store not connected)")
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func toInt64(value interface{}) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
