package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"deleonpos/backend/internal/billsplit"
	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/httpapi"
	"deleonpos/backend/internal/realtime"
	"deleonpos/backend/internal/reconcile"
	"deleonpos/backend/internal/service"
	"deleonpos/backend/internal/store/memory"
)

type testBackend struct {
	server   *httptest.Server
	hub      *realtime.Hub
	requests atomic.Int64
}

// newTestBackend runs the real HTTP API over an in-memory store.
func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	repo := memory.NewSeeded("main")
	hub := realtime.NewHub(16)
	svc := service.New(repo, service.Options{
		DefaultTenantID: "main",
		TaxRatePercent:  18,
		TipRatePercent:  10,
		Events:          hub,
	})
	auth := httpapi.NewAuthManager("client-test-secret", time.Hour, "main", repo)
	api := httpapi.New(svc, auth, hub, "*")

	b := &testBackend{hub: hub}
	handler := api.Handler()
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		api.CloseStreams()
		b.server.Close()
	})
	return b
}

func (b *testBackend) loggedIn(t *testing.T, username, password string) *Client {
	t.Helper()
	c := New(b.server.URL, b.server.Client())
	if _, err := c.Login(context.Background(), username, password); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return c
}

func zero() *float64 {
	v := 0.0
	return &v
}

func paidCashOrder(t *testing.T, c *Client, dishID string, qty int) domain.Order {
	t.Helper()
	ctx := context.Background()
	order, err := c.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{{DishID: dishID, Qty: qty}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	order, err = c.Checkout(ctx, order.ID, domain.CheckoutRequest{
		PaymentMethod:  "efectivo",
		TaxRatePercent: zero(),
		TipRatePercent: zero(),
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return order
}

func TestDecodeBodyUnwrapsOnlyDataEnvelope(t *testing.T) {
	var order domain.Order
	if err := decodeBody([]byte(`{"data":{"id":"o-1","status":"open"}}`), &order); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if order.ID != "o-1" {
		t.Fatalf("expected envelope payload, got %+v", order)
	}

	var token struct {
		Token string `json:"csrf_token"`
	}
	if err := decodeBody([]byte(`{"csrf_token":"abc"}`), &token); err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if token.Token != "abc" {
		t.Fatalf("expected bare payload, got %+v", token)
	}

	var summary struct {
		Data  string `json:"data"`
		Other int    `json:"other"`
	}
	if err := decodeBody([]byte(`{"data":"x","other":2}`), &summary); err != nil {
		t.Fatalf("decode two keys: %v", err)
	}
	if summary.Data != "x" || summary.Other != 2 {
		t.Fatalf("object with more than one key must be decoded as-is, got %+v", summary)
	}

	if err := decodeBody(nil, &summary); err != nil {
		t.Fatalf("empty body should be ignored: %v", err)
	}
}

func TestClientLoginFailureIsTyped(t *testing.T) {
	b := newTestBackend(t)
	c := New(b.server.URL, b.server.Client())

	_, err := c.Login(context.Background(), "cashier", "wrong-password")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != "unauthorized" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if c.Token() != "" {
		t.Fatal("failed login must not store a token")
	}
}

func TestClientCashDayEndToEnd(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	cashier := b.loggedIn(t, "cashier", "cashier123")
	admin := b.loggedIn(t, "admin", "admin123")

	me, err := cashier.Me(ctx)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Role != domain.RoleCashier || !me.Capabilities.CanCloseSession || me.Capabilities.CanAdjustClosedSession {
		t.Fatalf("unexpected capabilities %+v", me)
	}

	opened, err := cashier.OpenSession(ctx, domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 500})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Session == nil || opened.Phase != "open" {
		t.Fatalf("expected open session, got %+v", opened)
	}
	_, err = cashier.OpenSession(ctx, domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 100})
	if !IsConflict(err) {
		t.Fatalf("second open should conflict, got %v", err)
	}

	paidCashOrder(t, cashier, "dish-bandera", 2)

	closeReq := domain.SessionCloseRequest{RegisterID: "caja-1", CountedTotal: 1200}
	_, err = cashier.CloseSession(ctx, closeReq)
	if !IsInvalidManagerCode(err) {
		t.Fatalf("close without a configured code should ask for the manager code, got %v", err)
	}
	if IsForbidden(err) {
		t.Fatal("manager code failure must not read as a plain permission error")
	}

	if _, err := cashier.SetManagerCode(ctx, domain.ManagerCodeSetRequest{Code: "4829"}); !IsForbidden(err) {
		t.Fatalf("cashier must not set the manager code, got %v", err)
	}
	status, err := admin.SetManagerCode(ctx, domain.ManagerCodeSetRequest{Code: "4829"})
	if err != nil {
		t.Fatalf("set manager code: %v", err)
	}
	if !status.Configured || status.Hint != "**29" {
		t.Fatalf("unexpected status %+v", status)
	}

	closeReq.ManagerCode = "4829"
	closed, err := cashier.CloseSession(ctx, closeReq)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Phase != "closed" || closed.Session.Closing == nil || closed.Session.Closing.CountedTotal != 1200 {
		t.Fatalf("unexpected closed session %+v", closed)
	}

	summary, err := admin.CashSummary(ctx, "", "", "caja-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got := summary.Bucket(reconcile.BucketCash).Total; got != 700 {
		t.Fatalf("expected 700 in cash, got %v", got)
	}
	if summary.CashInRegister != 1200 || summary.VarianceStatus != "balanced" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	sessions, err := admin.ListSessions(ctx, "", "")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].RegisterID != "caja-1" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestClientRejectsInvalidInputLocally(t *testing.T) {
	b := newTestBackend(t)
	c := b.loggedIn(t, "cashier", "cashier123")
	before := b.requests.Load()

	_, err := c.AddCash(context.Background(), domain.SessionAddCashRequest{RegisterID: "caja-1", Amount: -5})
	if !errors.Is(err, ErrInvalidLocalInput) {
		t.Fatalf("expected local validation error, got %v", err)
	}
	_, err = c.OpenSession(context.Background(), domain.SessionOpenRequest{OpeningFloat: 100})
	if !errors.Is(err, ErrInvalidLocalInput) {
		t.Fatalf("missing register should fail locally, got %v", err)
	}
	if after := b.requests.Load(); after != before {
		t.Fatalf("invalid input reached the server: %d requests", after-before)
	}
}

func TestClientRefreshesStaleCSRFToken(t *testing.T) {
	b := newTestBackend(t)
	c := b.loggedIn(t, "cashier", "cashier123")
	c.mu.Lock()
	c.csrf = "stale-token"
	c.mu.Unlock()

	if _, err := c.OpenSession(context.Background(), domain.SessionOpenRequest{RegisterID: "caja-2", OpeningFloat: 0}); err != nil {
		t.Fatalf("open with stale csrf token: %v", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.csrf == "stale-token" {
		t.Fatal("csrf token was not refreshed")
	}
}

func TestClientManagerCodeClear(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	admin := b.loggedIn(t, "admin", "admin123")

	if _, err := admin.SetManagerCode(ctx, domain.ManagerCodeSetRequest{Code: "12"}); !errors.Is(err, ErrInvalidLocalInput) {
		t.Fatalf("short code should fail locally, got %v", err)
	}
	if _, err := admin.SetManagerCode(ctx, domain.ManagerCodeSetRequest{Code: "739154"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := admin.ClearManagerCode(ctx, ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	status, err := admin.ManagerCodeStatus(ctx, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Configured {
		t.Fatalf("code should be cleared, got %+v", status)
	}
}

func TestClientSplitAndInvoice(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	c := b.loggedIn(t, "admin", "admin123")

	order, err := c.CreateOrder(ctx, domain.OrderCreateRequest{
		TableID: "mesa-4",
		Items:   []domain.OrderItemRequest{{DishID: "dish-mofongo", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	split, err := c.SplitOrder(ctx, order.ID, domain.SplitOrderRequest{EvenAccounts: 2})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(split.Bills) != 2 {
		t.Fatalf("expected 2 bills, got %+v", split.Bills)
	}
	invoice, err := c.Invoice(ctx, order.ID, split.Bills[0].ID)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if invoice.OrderID != order.ID || invoice.PreviewText == "" {
		t.Fatalf("unexpected invoice %+v", invoice)
	}

	_, err = c.Invoice(ctx, "missing-order", "")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientMermaRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	c := b.loggedIn(t, "cashier", "cashier123")

	batch, err := c.CreateMerma(ctx, domain.MermaCreateRequest{Product: "yuca", Unit: "lb", RawQty: 10, UnitCostOriginal: 30})
	if err != nil {
		t.Fatalf("create merma: %v", err)
	}
	batch, err = c.CloseMerma(ctx, batch.ID, domain.MermaCloseRequest{FinalQty: 8})
	if err != nil {
		t.Fatalf("close merma: %v", err)
	}
	if batch.WasteCost != 60 {
		t.Fatalf("expected waste cost 60, got %v", batch.WasteCost)
	}
	list, err := c.ListMerma(ctx, "", "")
	if err != nil {
		t.Fatalf("list merma: %v", err)
	}
	if len(list.Batches) != 1 || list.WasteCost != 60 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestSubmitSplitChecksDraftLocally(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	c := b.loggedIn(t, "cashier", "cashier123")

	order, err := c.CreateOrder(ctx, domain.OrderCreateRequest{
		TableID: "mesa-5",
		Items:   []domain.OrderItemRequest{{DishID: "dish-mofongo", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	lineID := order.Items[0].ID

	draft := NewSplit(order)
	before := b.requests.Load()
	if _, err := c.SubmitSplit(ctx, order.ID, draft); !errors.Is(err, billsplit.ErrNoAccounts) {
		t.Fatalf("expected no accounts error, got %v", err)
	}
	ana := draft.AddAccount("Ana")
	luis := draft.AddAccount("Luis")
	if got, _ := draft.SetAllocation(lineID, ana.ID, 2); got != 2 {
		t.Fatalf("expected 2 allocated, got %d", got)
	}
	_, err = c.SubmitSplit(ctx, order.ID, draft)
	if !errors.Is(err, ErrInvalidLocalInput) || !errors.Is(err, billsplit.ErrIncompleteAllocation) {
		t.Fatalf("expected local incomplete allocation, got %v", err)
	}
	if after := b.requests.Load(); after != before {
		t.Fatalf("incomplete split reached the server: %d requests", after-before)
	}

	if got, _ := draft.SetAllocation(lineID, luis.ID, 5); got != 1 {
		t.Fatalf("allocation must be capped at the remaining 1, got %d", got)
	}
	resp, err := c.SubmitSplit(ctx, order.ID, draft)
	if err != nil {
		t.Fatalf("submit split: %v", err)
	}
	if len(resp.Bills) != 2 || resp.Bills[0].AccountName != "Ana" || resp.Bills[0].Subtotal != 900 || resp.Bills[1].Subtotal != 450 {
		t.Fatalf("unexpected bills %+v", resp.Bills)
	}
	if resp.Bills[0].ChargeRule != "pending" {
		t.Fatalf("tax and tip should stay pending, got %q", resp.Bills[0].ChargeRule)
	}
}
