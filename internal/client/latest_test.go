package client

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestLatestDiscardsOlderResponses(t *testing.T) {
	var l Latest[string]
	first := l.Begin()
	second := l.Begin()

	if !l.Settle(second, "new") {
		t.Fatal("newest ticket should apply")
	}
	if l.Settle(first, "old") {
		t.Fatal("older ticket must not apply after a newer one was started")
	}
	if v, ok := l.Value(); !ok || v != "new" {
		t.Fatalf("expected new, got %q (loaded=%v)", v, ok)
	}
}

func TestLatestOlderResponseStillAppliesBeforeNewerStarts(t *testing.T) {
	var l Latest[int]
	if v, ok := l.Value(); ok || v != 0 {
		t.Fatalf("empty value expected, got %v", v)
	}
	ticket := l.Begin()
	if !l.Settle(ticket, 7) {
		t.Fatal("only ticket should apply")
	}
}

func TestLatestFetchOutOfOrderCompletion(t *testing.T) {
	var l Latest[string]
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})

	var wg sync.WaitGroup
	var slowApplied bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowApplied, _ = l.Fetch(context.Background(), func(context.Context) (string, error) {
			close(slowStarted)
			<-releaseSlow
			return "slow", nil
		})
	}()
	<-slowStarted

	_, fastApplied, err := l.Fetch(context.Background(), func(context.Context) (string, error) {
		return "fast", nil
	})
	if err != nil || !fastApplied {
		t.Fatalf("fast fetch should apply, applied=%v err=%v", fastApplied, err)
	}
	close(releaseSlow)
	wg.Wait()

	if slowApplied {
		t.Fatal("slow fetch finished last but started first; it must be dropped")
	}
	if v, _ := l.Value(); v != "fast" {
		t.Fatalf("expected fast, got %q", v)
	}
}

func TestLatestFetchErrorKeepsValue(t *testing.T) {
	var l Latest[string]
	l.Settle(l.Begin(), "kept")

	_, applied, err := l.Fetch(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("offline")
	})
	if err == nil || applied {
		t.Fatalf("expected failed fetch, applied=%v err=%v", applied, err)
	}
	if v, _ := l.Value(); v != "kept" {
		t.Fatalf("expected kept, got %q", v)
	}
}
