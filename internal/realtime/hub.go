// Package realtime fans tenant-scoped change notifications out to subscribers in
// this process and relays them to other instances and services.
package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"deleonpos/backend/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Hub delivers events to the subscribers of the event's tenant. Delivery never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Uint64
}

type Subscription struct {
	C        <-chan domain.Event
	ch       chan domain.Event
	hub      *Hub
	tenantID string
	once     sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Subscribe(tenantID string) *Subscription {
	ch := make(chan domain.Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, tenantID: tenantID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*Subscription]struct{})
	}
	h.subs[tenantID][sub] = struct{}{}
	return sub
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[s.tenantID], s)
		if len(h.subs[s.tenantID]) == 0 {
			delete(h.subs, s.tenantID)
		}
		close(s.ch)
	})
}

func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[event.TenantID] {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Dropped counts deliveries skipped because a subscriber was too slow.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// MultiPublisher publishes to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.Event) error { return nil }
