package notify

import (
	"context"
	"sync"
)

// Memory is an in-process relay for dev and tests.
// Events are dropped for subscribers whose buffer is full.
type Memory struct {
	mu     sync.RWMutex
	subs   map[Group]map[chan Event]struct{}
	buffer int
}

// NewMemory creates a relay with a per-subscriber buffer.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 16
	}
	return &Memory{subs: make(map[Group]map[chan Event]struct{}), buffer: buffer}
}

// Publish hands evt to every subscriber of group without blocking.
func (m *Memory) Publish(ctx context.Context, group Group, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs[group] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The subscription also ends when ctx is done.
func (m *Memory) Subscribe(ctx context.Context, group Group) (<-chan Event, func(), error) {
	ch := make(chan Event, m.buffer)
	m.mu.Lock()
	if m.subs[group] == nil {
		m.subs[group] = make(map[chan Event]struct{})
	}
	m.subs[group][ch] = struct{}{}
	m.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			m.mu.Lock()
			delete(m.subs[group], ch)
			if len(m.subs[group]) == 0 {
				delete(m.subs, group)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// Subscribers reports how many viewers are attached to group.
func (m *Memory) Subscribers(group Group) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[group])
}
