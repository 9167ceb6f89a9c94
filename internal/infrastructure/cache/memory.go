package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used when Redis is not
// configured. Expired entries are dropped lazily on read.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value string
	// zero expiresAt means the entry never expires
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return "", ErrKeyNotFound{Key: key}
	}
	if m.expired(item) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return "", ErrKeyNotFound{Key: key}
	}

	return item.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	item := memoryItem{value: encoded}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if m.expired(item) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return false, nil
	}

	return true, nil
}

func (m *MemoryStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	return decodeJSON(key, []byte(data), dest)
}

func (m *MemoryStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeJSON(key, value)
	if err != nil {
		return err
	}

	return m.Set(ctx, key, data, ttl)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()

	return nil
}

// Len reports the number of stored entries, including any not yet
// swept by lazy expiry
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryStore) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && !item.expiresAt.After(m.now())
}
