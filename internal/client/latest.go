package client

import (
	"context"
	"sync"
)

// Latest holds the result of the most recently started fetch. A fetch that settles
// after a newer one was started is discarded, whatever order the responses
// arrive in.
type Latest[T any] struct {
	mu     sync.Mutex
	issued uint64
	value  T
	loaded bool
}

// Begin starts a fetch and returns its ticket.
func (l *Latest[T]) Begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	return l.issued
}

// Settle stores v if ticket is still the newest one issued.
func (l *Latest[T]) Settle(ticket uint64, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ticket != l.issued {
		return false
	}
	l.value = v
	l.loaded = true
	return true
}

func (l *Latest[T]) Value() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}

// Fetch runs fn under a fresh ticket. applied is false when a newer fetch started
// while fn was running; the returned value is then fn's result, not the stored one.
func (l *Latest[T]) Fetch(ctx context.Context, fn func(context.Context) (T, error)) (v T, applied bool, err error) {
	ticket := l.Begin()
	v, err = fn(ctx)
	if err != nil {
		return v, false, err
	}
	return v, l.Settle(ticket, v), nil
}
