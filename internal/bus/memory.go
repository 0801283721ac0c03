// Package bus provides an in-process event bus for single-instance
// deployments and tests. Multi-instance deployments use the Redis-backed bus
// instead.
package bus

import (
	"context"
	"sync"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts dropping events rather than blocking
// publishers.
const subscriberBuffer = 128

// Memory is an in-process implementation of domain.EventBus.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[*memSub]struct{}
	closed bool
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*memSub]struct{})}
}

// Publish delivers payload to every current subscriber of channel. Slow
// subscribers are skipped, never blocked on.
func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for sub := range m.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber on channel.
func (m *Memory) Subscribe(ctx context.Context, channel string) (domain.Subscription, error) {
	sub := &memSub{
		bus:     m,
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
	}

	m.mu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*memSub]struct{})
	}
	m.subs[channel][sub] = struct{}{}
	m.mu.Unlock()

	return sub, nil
}

// Close drops every subscriber and closes their channels.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for channel, subs := range m.subs {
		for sub := range subs {
			sub.markRemoved()
			close(sub.ch)
		}
		delete(m.subs, channel)
	}
}

func (m *Memory) remove(sub *memSub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[sub.channel]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(m.subs, sub.channel)
	}
	close(sub.ch)
}

// memSub is one registered subscriber.
type memSub struct {
	bus     *Memory
	channel string
	ch      chan []byte
	once    sync.Once
}

// C returns the payload channel. It closes after Unsubscribe.
func (s *memSub) C() <-chan []byte {
	return s.ch
}

// Unsubscribe removes the subscriber from the bus. Safe to call repeatedly.
func (s *memSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// markRemoved prevents a later Unsubscribe from double-closing the channel.
func (s *memSub) markRemoved() {
	s.once.Do(func() {})
}

// Compile-time interface checks.
var (
	_ domain.EventBus     = (*Memory)(nil)
	_ domain.Subscription = (*memSub)(nil)
)
