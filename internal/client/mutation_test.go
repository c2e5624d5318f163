package client

import (
	"context"
	"errors"
	"testing"
)

func TestMutationSuccessUsesServerValue(t *testing.T) {
	m := NewMutation(100)
	if m.State() != MutationIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
	got, err := m.Run(context.Background(), 150, func(context.Context) (int, error) {
		return 160, nil
	})
	if err != nil || got != 160 {
		t.Fatalf("got %d, %v", got, err)
	}
	if m.State() != MutationSucceeded || m.Value() != 160 || m.Err() != nil {
		t.Fatalf("unexpected state %s value %d err %v", m.State(), m.Value(), m.Err())
	}
}

func TestMutationFailureRollsBack(t *testing.T) {
	m := NewMutation(100)
	boom := errors.New("rejected")
	got, err := m.Run(context.Background(), 150, func(context.Context) (int, error) {
		if m.Value() != 150 {
			t.Errorf("optimistic value should be visible while pending, got %d", m.Value())
		}
		if m.State() != MutationPending {
			t.Errorf("expected pending, got %s", m.State())
		}
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if got != 100 || m.Value() != 100 {
		t.Fatalf("expected rollback to 100, got %d / %d", got, m.Value())
	}
	if m.State() != MutationFailed || !errors.Is(m.Err(), boom) {
		t.Fatalf("unexpected state %s err %v", m.State(), m.Err())
	}
}

func TestMutationRejectsOverlappingRuns(t *testing.T) {
	m := NewMutation("a")
	inFlight := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := m.Run(context.Background(), "b", func(context.Context) (string, error) {
			close(inFlight)
			<-release
			return "c", nil
		})
		done <- err
	}()
	<-inFlight

	if _, err := m.Run(context.Background(), "x", func(context.Context) (string, error) {
		t.Error("second call must not run")
		return "x", nil
	}); !errors.Is(err, ErrMutationPending) {
		t.Fatalf("expected ErrMutationPending, got %v", err)
	}
	if m.Replace("refetched") {
		t.Fatal("replace must be ignored while pending")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if m.Value() != "c" {
		t.Fatalf("expected c, got %q", m.Value())
	}
	if !m.Replace("refetched") || m.Value() != "refetched" {
		t.Fatal("replace should apply once settled")
	}
}
