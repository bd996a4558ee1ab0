package cache

import (
	"context"
	"sync"
	"time"

	"voice-journal/internal/domain"
)

// Memory процессный кэш для окружений без Redis.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

var _ domain.Cache = (*Memory)(nil)

// NewMemory создаёт кэш в памяти.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryItem), now: time.Now}
}

func (m *Memory) setNX(key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[key]; ok && !m.expired(item) {
		return false
	}
	m.items[key] = memoryItem{value: []byte("1"), expiresAt: m.deadline(ttl)}
	return true
}

// Once выполняет функцию, если ключ ещё не задан.
func (m *Memory) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	if !m.setNX(key, ttl) {
		return nil
	}
	if err := fn(); err != nil {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Set задаёт значение.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: m.deadline(ttl)}
	return nil
}

// Get возвращает значение или ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || m.expired(item) {
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Del удаляет ключ.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && m.now().After(item.expiresAt)
}
