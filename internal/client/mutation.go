package client

import (
	"context"
	"errors"
	"sync"
)

type MutationState string

const (
	MutationIdle      MutationState = "idle"
	MutationPending   MutationState = "pending"
	MutationSucceeded MutationState = "succeeded"
	MutationFailed    MutationState = "failed"
)

var ErrMutationPending = errors.New("another change is still being saved")

// Mutation tracks one optimistic change at a time. While the call is pending the
// optimistic value is visible; success replaces it with the server's answer and
// failure restores what was there before.
type Mutation[T any] struct {
	mu    sync.Mutex
	state MutationState
	value T
	err   error
}

func NewMutation[T any](initial T) *Mutation[T] {
	return &Mutation[T]{state: MutationIdle, value: initial}
}

func (m *Mutation[T]) Run(ctx context.Context, optimistic T, call func(context.Context) (T, error)) (T, error) {
	m.mu.Lock()
	if m.state == MutationPending {
		current := m.value
		m.mu.Unlock()
		return current, ErrMutationPending
	}
	previous := m.value
	m.value = optimistic
	m.state = MutationPending
	m.err = nil
	m.mu.Unlock()

	result, err := call(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.value = previous
		m.state = MutationFailed
		m.err = err
		return previous, err
	}
	m.value = result
	m.state = MutationSucceeded
	return result, nil
}

// Replace sets the confirmed value, e.g. after a refetch. It is ignored while a
// change is pending.
func (m *Mutation[T]) Replace(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MutationPending {
		return false
	}
	m.value = v
	return true
}

func (m *Mutation[T]) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[T]) Value() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// Err is the failure of the last run, nil otherwise.
func (m *Mutation[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
