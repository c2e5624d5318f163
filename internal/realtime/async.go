package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/domain"
)

// AsyncPublisher queues events for a slower publisher (network brokers) and sends
// them from a single goroutine. A full queue drops the event.
type AsyncPublisher struct {
	next    Publisher
	name    string
	queue   chan domain.Event
	timeout time.Duration
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

func NewAsyncPublisher(name string, next Publisher, size int, timeout time.Duration) *AsyncPublisher {
	if size < 1 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	p := &AsyncPublisher{
		next:    next,
		name:    name,
		queue:   make(chan domain.Event, size),
		timeout: timeout,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *AsyncPublisher) Publish(_ context.Context, event domain.Event) error {
	select {
	case p.queue <- event:
	default:
		p.dropped.Add(1)
		log.Warn().Str("publisher", p.name).Str("event", event.Type).Msg("realtime queue full, event dropped")
	}
	return nil
}

func (p *AsyncPublisher) run() {
	defer p.wg.Done()
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("publisher", p.name).Str("event", event.Type).Str("tenant_id", event.TenantID).Msg("realtime publish failed")
		}
		cancel()
	}
}

// Close drains the queue and waits for the sender to finish. Publish must not be
// called after Close.
func (p *AsyncPublisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}
