package speech

import (
	"slices"
	"sync"
)

// Hub раздаёт события подписчикам. Обработчики вызываются вне блокировки.
type Hub[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(T)
}

// Subscription отписка от Hub.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe снимает обработчик. Повторный вызов ничего не делает.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscribe добавляет обработчик.
func (h *Hub[T]) Subscribe(fn func(T)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[uint64]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}}
}

// Emit доставляет событие всем текущим подписчикам в порядке подписки.
func (h *Hub[T]) Emit(v T) {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len возвращает число подписчиков.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close снимает всех подписчиков.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	h.subs = nil
	h.mu.Unlock()
}
