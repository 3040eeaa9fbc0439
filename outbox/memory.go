package outbox

import (
	"context"
	"sync"
)

// Memory is a ring buffer Store. It is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	cap   int
	head  int
	size  int
	items []string
}

var _ Store = (*Memory)(nil)

func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Memory{
		cap:   capacity,
		items: make([]string, capacity),
	}
}

func (m *Memory) Push(_ context.Context, msg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	if m.size == m.cap {
		m.items[m.head] = ""
		m.head = (m.head + 1) % m.cap
		m.size--
		evicted = 1
	}
	m.items[(m.head+m.size)%m.cap] = msg
	m.size++
	return evicted, nil
}

func (m *Memory) Requeue(_ context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == m.cap {
		// drop the newest
		m.items[(m.head+m.size-1)%m.cap] = ""
		m.size--
	}
	m.head = (m.head - 1 + m.cap) % m.cap
	m.items[m.head] = msg
	m.size++
	return nil
}

func (m *Memory) Pop(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == 0 {
		return "", false, nil
	}
	msg := m.items[m.head]
	m.items[m.head] = ""
	m.head = (m.head + 1) % m.cap
	m.size--
	return msg, true, nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.items)
	m.head = 0
	m.size = 0
	return nil
}

func (m *Memory) Cap() int {
	return m.cap
}
