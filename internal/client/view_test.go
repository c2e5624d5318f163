package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/reconcile"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "1,250.50", want: 1250.5},
		{in: "RD$ 300", want: 300},
		{in: " 12 ", want: 12},
		{in: "0", want: 0},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "12abc", wantErr: true},
		{in: "-5", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidLocalInput) {
				t.Errorf("ParseAmount(%q): expected local input error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseAmount(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestCashRegisterViewComputesClosureLocally(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	cashier := b.loggedIn(t, "cashier", "cashier123")
	admin := b.loggedIn(t, "admin", "admin123")

	view := NewCashRegisterView(cashier, "", "caja-1")
	snap, err := view.Load(ctx, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Phase != "no_session" || snap.Session != nil || snap.Date == "" {
		t.Fatalf("unexpected empty day %+v", snap)
	}

	if snap, err = view.Open(ctx, 1000); err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.Phase != "open" || snap.Summary.OpeningFloat != 1000 {
		t.Fatalf("unexpected snapshot after open %+v", snap)
	}
	if snap, err = view.AddCash(ctx, 200, "cambio"); err != nil {
		t.Fatalf("add cash: %v", err)
	}
	if snap.Summary.AddedCash != 200 {
		t.Fatalf("expected added cash 200, got %v", snap.Summary.AddedCash)
	}

	paidCashOrder(t, cashier, "dish-bandera", 2)
	if snap, err = view.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := snap.Summary.Bucket(reconcile.BucketCash).Total; got != 700 {
		t.Fatalf("expected 700 cash sales, got %v", got)
	}
	if snap.Summary.CashInRegister != 1900 || snap.Summary.VarianceStatus != "uncounted" {
		t.Fatalf("unexpected summary %+v", snap.Summary)
	}

	if _, err := admin.SetManagerCode(ctx, domain.ManagerCodeSetRequest{Code: "4829"}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if snap, err = view.Close(ctx, 1850, "4829", ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if snap.Phase != "closed" || snap.Summary.Variance == nil || *snap.Summary.Variance != -50 {
		t.Fatalf("unexpected closed snapshot %+v", snap.Summary)
	}
	if snap.Summary.VarianceStatus != "short" {
		t.Fatalf("expected short, got %s", snap.Summary.VarianceStatus)
	}

	server, err := admin.CashSummary(ctx, "", snap.Date, "caja-1")
	if err != nil {
		t.Fatalf("server summary: %v", err)
	}
	if server.CashInRegister != snap.Summary.CashInRegister || *server.Variance != *snap.Summary.Variance {
		t.Fatalf("local and server figures differ: %+v vs %+v", snap.Summary, server)
	}
}

func TestCashRegisterViewRollsBackRejectedChange(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	cashier := b.loggedIn(t, "cashier", "cashier123")

	view := NewCashRegisterView(cashier, "", "caja-1")
	if _, err := view.Load(ctx, ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := view.Open(ctx, 500); err != nil {
		t.Fatalf("open: %v", err)
	}

	var mu sync.Mutex
	var seen []Snapshot
	view.OnChange(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	snap, err := view.Close(ctx, 500, "", "")
	if !IsInvalidManagerCode(err) {
		t.Fatalf("expected manager code error, got %v", err)
	}
	if snap.Phase != "open" || snap.Session.Status != domain.SessionStatusOpen || snap.Pending {
		t.Fatalf("rejected close must roll back, got %+v", snap)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 {
		t.Fatalf("expected optimistic and rollback notifications, got %d", len(seen))
	}
	if !seen[0].Pending || seen[0].Phase != "closed" {
		t.Fatalf("first notification should show the pending close, got %+v", seen[0])
	}
	if last := seen[len(seen)-1]; last.Pending || last.Phase != "open" {
		t.Fatalf("last notification should show the rollback, got %+v", last)
	}
}

func TestCashRegisterViewAdjustCloseWithManagerCode(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	admin := b.loggedIn(t, "admin", "admin123")

	if _, err := admin.SetManagerCode(ctx, domain.ManagerCodeSetRequest{Code: "4829"}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	view := NewCashRegisterView(admin, "", "caja-1")
	if _, err := view.Load(ctx, ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := view.Open(ctx, 1000); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := view.Close(ctx, 1100, "4829", ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	snap, err := view.AdjustClose(ctx, 1200, "", "recuento")
	if !IsInvalidManagerCode(err) {
		t.Fatalf("adjust-close without code should ask for it, got %v", err)
	}
	if snap.Session.Closing.CountedTotal != 1100 {
		t.Fatalf("rejected adjust-close must keep the count, got %v", snap.Session.Closing.CountedTotal)
	}

	snap, err = view.AdjustClose(ctx, 1000, "4829", "recuento")
	if err != nil {
		t.Fatalf("adjust-close: %v", err)
	}
	if snap.Phase != "closed" || snap.Session.Closing.CountedTotal != 1000 {
		t.Fatalf("unexpected adjusted session %+v", snap.Session)
	}
	if snap.Summary.Variance == nil || *snap.Summary.Variance != 0 || snap.Summary.VarianceStatus != "balanced" {
		t.Fatalf("unexpected summary after adjust %+v", snap.Summary)
	}
}

func TestCashRegisterViewSecondOpenIsConflict(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	cashier := b.loggedIn(t, "cashier", "cashier123")

	view := NewCashRegisterView(cashier, "", "caja-1")
	if _, err := view.Load(ctx, ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := view.Open(ctx, 300); err != nil {
		t.Fatalf("open: %v", err)
	}
	snap, err := view.Open(ctx, 900)
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if snap.Session == nil || snap.Session.OpeningFloat != 300 {
		t.Fatalf("conflicting open must keep the original float, got %+v", snap.Session)
	}
}

func TestCashRegisterViewFollowsRealtimeEvents(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cashier := b.loggedIn(t, "cashier", "cashier123")
	waiter := b.loggedIn(t, "waiter", "waiter123")

	view := NewCashRegisterView(cashier, "", "caja-1")
	if _, err := view.Load(ctx, ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	conn := NewConnection(cashier)
	unbind := view.Bind(ctx, conn)
	defer unbind()
	if err := conn.Connect(ctx, ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Disconnect()

	updates := make(chan Snapshot, 8)
	view.OnChange(func(s Snapshot) { updates <- s })

	if _, err := waiter.CreateOrder(ctx, domain.OrderCreateRequest{
		TableID: "mesa-9",
		Items:   []domain.OrderItemRequest{{DishID: "dish-mofongo", Qty: 1}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Summary.OrderCount == 1 {
				return
			}
		case <-deadline:
			t.Fatal("view did not refetch after the order event")
		}
	}
}
