package service

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deleonpos/backend/internal/billsplit"
	"deleonpos/backend/internal/cache"
	"deleonpos/backend/internal/cashsession"
	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/reconcile"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

var (
	adminActor   = domain.Actor{Username: "admin", Role: domain.RoleAdmin, TenantID: "main"}
	cashierActor = domain.Actor{Username: "cashier", Role: domain.RoleCashier, TenantID: "main"}
	waiterActor  = domain.Actor{Username: "waiter", Role: domain.RoleWaiter, TenantID: "main"}
	rootActor    = domain.Actor{Username: "root", Role: domain.RoleSuperAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

// gatedRepo blocks ListSessions once armed until release is closed.
type gatedRepo struct {
	store.Repository
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func (r *gatedRepo) ListSessions(ctx context.Context, tenantID string, dateKey string) ([]domain.CashSession, error) {
	sessions, err := r.Repository.ListSessions(ctx, tenantID, dateKey)
	if r.armed.CompareAndSwap(true, false) {
		close(r.reached)
		<-r.release
	}
	return sessions, err
}

func newTestService(t *testing.T, opts Options) (*Service, *recordingPublisher) {
	t.Helper()
	events := &recordingPublisher{}
	opts.DefaultTenantID = "main"
	opts.Location = time.UTC
	opts.Events = events
	opts.Now = func() time.Time { return fixedNow }
	return New(memory.NewSeeded("main"), opts), events
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func mustOrder(t *testing.T, svc *Service, ctx context.Context, req domain.OrderCreateRequest) domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestOpenSessionTwiceConflicts(t *testing.T) {
	svc, events := newTestService(t, Options{})
	ctx := as(cashierActor)

	resp, err := svc.OpenSession(ctx, domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 500})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if resp.Phase != string(cashsession.PhaseOpen) || resp.Session.DateKey != "2026-03-14" {
		t.Fatalf("unexpected open response %+v", resp)
	}

	_, err = svc.OpenSession(as(adminActor), domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 800})
	if !errors.Is(err, store.ErrConflict) || !errors.Is(err, cashsession.ErrSessionExists) {
		t.Fatalf("expected conflict on second open, got %v", err)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventCashUpdated {
		t.Fatalf("expected one cash event, got %v", got)
	}
}

func TestCloseSessionManagerCodeChecks(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashier := as(cashierActor)
	admin := as(adminActor)

	if _, err := svc.OpenSession(cashier, domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 500}); err != nil {
		t.Fatalf("open session: %v", err)
	}

	closeReq := domain.SessionCloseRequest{RegisterID: "caja-1", CountedTotal: 520}
	if _, err := svc.CloseSession(cashier, closeReq); !errors.Is(err, ErrManagerCodeRequired) {
		t.Fatalf("expected code required, got %v", err)
	}
	closeReq.ManagerCode = "4826"
	if _, err := svc.CloseSession(cashier, closeReq); !errors.Is(err, ErrManagerCodeNotConfigured) {
		t.Fatalf("expected code not configured, got %v", err)
	}

	if _, err := svc.SetManagerCode(admin, domain.ManagerCodeSetRequest{Code: "4826"}); err != nil {
		t.Fatalf("set manager code: %v", err)
	}
	closeReq.ManagerCode = "4827"
	_, err := svc.CloseSession(cashier, closeReq)
	if !errors.Is(err, ErrInvalidManagerCode) || !IsManagerCodeError(err) {
		t.Fatalf("expected invalid manager code, got %v", err)
	}

	closeReq.ManagerCode = "4826"
	closed, err := svc.CloseSession(cashier, closeReq)
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if closed.Phase != string(cashsession.PhaseClosed) || closed.Session.Closing.CountedTotal != 520 {
		t.Fatalf("unexpected close response %+v", closed)
	}
	if closed.Session.Closing.ClosedBy != "cashier" || closed.Session.Closing.AuthorizedBy == "" {
		t.Fatalf("expected closer and authorizer recorded, got %+v", closed.Session.Closing)
	}

	if _, err := svc.AdjustClose(cashier, closeReq); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier adjust-close to be forbidden, got %v", err)
	}
	closeReq.CountedTotal = 500
	adjusted, err := svc.AdjustClose(admin, closeReq)
	if err != nil {
		t.Fatalf("adjust close: %v", err)
	}
	if len(adjusted.Session.Adjustments) != 1 || adjusted.Session.Adjustments[0].Previous != 520 {
		t.Fatalf("expected adjustment trail, got %+v", adjusted.Session.Adjustments)
	}
	if adjusted.Session.Closing.ClosedBy != "cashier" {
		t.Fatalf("adjust-close must keep the original closer, got %s", adjusted.Session.Closing.ClosedBy)
	}
}

func TestAdjustOpeningFloat(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashier := as(cashierActor)

	if _, err := svc.OpenSession(cashier, domain.SessionOpenRequest{RegisterID: "caja-1"}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	resp, err := svc.AdjustOpening(cashier, domain.SessionAdjustOpeningRequest{RegisterID: "caja-1", OpeningFloat: 500})
	if err != nil {
		t.Fatalf("first float set: %v", err)
	}
	if resp.Session.OpeningFloat != 500 {
		t.Fatalf("expected float 500, got %v", resp.Session.OpeningFloat)
	}
	if _, err := svc.AdjustOpening(cashier, domain.SessionAdjustOpeningRequest{RegisterID: "caja-1", OpeningFloat: 900}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected locked float for cashier, got %v", err)
	}

	opened, err := svc.AdjustOpening(as(adminActor), domain.SessionAdjustOpeningRequest{RegisterID: "caja-2", OpeningFloat: 300})
	if err != nil {
		t.Fatalf("admin adjust without session: %v", err)
	}
	if opened.Phase != string(cashsession.PhaseOpen) || opened.Session.OpeningFloat != 300 {
		t.Fatalf("expected admin adjust to open the register, got %+v", opened)
	}
}

func TestSetManagerCodeRules(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	if _, err := svc.SetManagerCode(as(cashierActor), domain.ManagerCodeSetRequest{Code: "4826"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}
	for _, code := range []string{"1234", "0000", "9876", "12", "12ab"} {
		if _, err := svc.SetManagerCode(as(adminActor), domain.ManagerCodeSetRequest{Code: code}); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected %q to be rejected, got %v", code, err)
		}
	}

	status, err := svc.SetManagerCode(as(adminActor), domain.ManagerCodeSetRequest{Code: "730519"})
	if err != nil {
		t.Fatalf("set code: %v", err)
	}
	if !status.Configured || status.Hint != "****19" {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := svc.ClearManagerCode(as(adminActor), ""); err != nil {
		t.Fatalf("clear code: %v", err)
	}
	status, err = svc.ManagerCodeStatus(as(cashierActor), "")
	if err != nil || status.Configured {
		t.Fatalf("expected cleared code, got %+v %v", status, err)
	}
}

func TestWeakManagerCode(t *testing.T) {
	cases := map[string]bool{
		"1234":   true,
		"4321":   true,
		"7777":   true,
		"890123": true,
		"123":    true,
		"4826":   false,
		"730519": false,
	}
	for code, want := range cases {
		if got := WeakManagerCode(code); got != want {
			t.Errorf("WeakManagerCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestCheckoutComputesBill(t *testing.T) {
	svc, _ := newTestService(t, Options{TaxRatePercent: 18, TipRatePercent: 10})
	ctx := as(cashierActor)

	order := mustOrder(t, svc, ctx, domain.OrderCreateRequest{TableID: "mesa-4", Items: []domain.OrderItemRequest{{DishID: "dish-mofongo", Qty: 2}}})
	paid, err := svc.Checkout(ctx, order.ID, domain.CheckoutRequest{PaymentMethod: "Efectivo", Discount: 100, NCF: "B0100000001"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	want := domain.Bill{Subtotal: 900, Discount: 100, Tax: 144, Tip: 80, Total: 1024}
	if !closeEnough(paid.Bill.Subtotal, want.Subtotal) || !closeEnough(paid.Bill.Tax, want.Tax) ||
		!closeEnough(paid.Bill.Tip, want.Tip) || !closeEnough(paid.Bill.Total, want.Total) {
		t.Fatalf("unexpected bill %+v, want %+v", paid.Bill, want)
	}
	if paid.Status != domain.OrderStatusPaid || paid.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", paid)
	}

	if _, err := svc.Checkout(ctx, order.ID, domain.CheckoutRequest{PaymentMethod: "Tarjeta"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second checkout, got %v", err)
	}
	if _, err := svc.CancelOrder(ctx, order.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier void of paid order to be forbidden, got %v", err)
	}
	if _, err := svc.CancelOrder(as(adminActor), order.ID); err != nil {
		t.Fatalf("admin void: %v", err)
	}
}

func TestWaiterTakesOrdersButCannotCheckout(t *testing.T) {
	svc, events := newTestService(t, Options{})
	ctx := as(waiterActor)

	order := mustOrder(t, svc, ctx, domain.OrderCreateRequest{
		TableID: "mesa-2",
		Items:   []domain.OrderItemRequest{{DishID: "dish-bandera", Qty: 1}, {DishID: "dish-bandera", Qty: 2}},
	})
	if len(order.Items) != 1 || order.Items[0].Qty != 3 {
		t.Fatalf("expected repeated dish merged into one line, got %+v", order.Items)
	}

	order, err := svc.AddOrderItems(ctx, order.ID, domain.OrderItemsRequest{Items: []domain.OrderItemRequest{{DishID: "dish-morir", Qty: 2}}})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}
	if !closeEnough(order.Bill.Subtotal, 3*350+2*150) {
		t.Fatalf("unexpected subtotal %v", order.Bill.Subtotal)
	}
	order, err = svc.RemoveOrderItem(ctx, order.ID, order.Items[1].ID)
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected one line after removal, got %d", len(order.Items))
	}

	if _, err := svc.Checkout(ctx, order.ID, domain.CheckoutRequest{PaymentMethod: "Efectivo"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected waiter checkout to be forbidden, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemRequest{{DishID: "dish-unknown", Qty: 1}}}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown dish to be rejected, got %v", err)
	}

	got := events.types()
	if len(got) < 2 || got[0] != domain.EventOrdersUpdated || got[1] != domain.EventTablesUpdated {
		t.Fatalf("expected orders and tables events, got %v", got)
	}
}

func TestCashSummaryReconcilesDay(t *testing.T) {
	summaries := cache.NewMemorySummaryCache()
	svc, _ := newTestService(t, Options{Cache: summaries})
	cashier := as(cashierActor)
	admin := as(adminActor)

	if _, err := svc.OpenSession(cashier, domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 500}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if _, err := svc.AddCash(cashier, domain.SessionAddCashRequest{RegisterID: "caja-1", Amount: 300, Note: "cambio"}); err != nil {
		t.Fatalf("add cash: %v", err)
	}

	pay := func(req domain.OrderCreateRequest, method string) {
		order := mustOrder(t, svc, cashier, req)
		if _, err := svc.Checkout(cashier, order.ID, domain.CheckoutRequest{PaymentMethod: method}); err != nil {
			t.Fatalf("checkout: %v", err)
		}
	}
	pay(domain.OrderCreateRequest{Items: []domain.OrderItemRequest{{DishID: "dish-mofongo", Qty: 2}}}, "Efectivo")
	pay(domain.OrderCreateRequest{Items: []domain.OrderItemRequest{{DishID: "dish-bandera", Qty: 2}}}, "Tarjeta de crédito")
	pay(domain.OrderCreateRequest{Channel: "Uber Eats", Items: []domain.OrderItemRequest{{DishID: "dish-sancocho", Qty: 1}}}, "app")
	mustOrder(t, svc, cashier, domain.OrderCreateRequest{Items: []domain.OrderItemRequest{{DishID: "dish-tostones", Qty: 1}}})
	cancelled := mustOrder(t, svc, cashier, domain.OrderCreateRequest{Items: []domain.OrderItemRequest{{DishID: "dish-presidente", Qty: 4}}})
	if _, err := svc.CancelOrder(cashier, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	batch, err := svc.CreateMermaBatch(cashier, domain.MermaCreateRequest{Product: "Platano", RawQty: 10, UnitCostOriginal: 60})
	if err != nil {
		t.Fatalf("create merma: %v", err)
	}
	if _, err := svc.CloseMermaBatch(cashier, batch.ID, domain.MermaCloseRequest{FinalQty: 7}); err != nil {
		t.Fatalf("close merma: %v", err)
	}

	summary, err := svc.CashSummary(cashier, "", "", "caja-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !closeEnough(summary.GrandTotal, 2150) || summary.OrderCount != 4 {
		t.Fatalf("unexpected grand total %v over %d orders", summary.GrandTotal, summary.OrderCount)
	}
	checks := map[reconcile.Bucket]float64{
		reconcile.BucketCash:     900,
		reconcile.BucketCard:     700,
		reconcile.BucketUberEats: 400,
		reconcile.BucketOther:    150,
	}
	for bucket, want := range checks {
		if got := summary.Bucket(bucket).Total; !closeEnough(got, want) {
			t.Fatalf("bucket %s = %v, want %v", bucket, got, want)
		}
	}
	if !closeEnough(summary.CashInRegister, 1700) || !closeEnough(summary.Menudo, 800) || !closeEnough(summary.NetSales, 1970) {
		t.Fatalf("unexpected closure figures %+v", summary)
	}
	if summary.VarianceStatus != reconcile.VarianceUncounted {
		t.Fatalf("expected uncounted before close, got %s", summary.VarianceStatus)
	}

	if _, err := svc.SetManagerCode(admin, domain.ManagerCodeSetRequest{Code: "4826"}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if _, err := svc.CloseSession(cashier, domain.SessionCloseRequest{RegisterID: "caja-1", CountedTotal: 1650, ManagerCode: "4826"}); err != nil {
		t.Fatalf("close: %v", err)
	}
	summary, err = svc.CashSummary(cashier, "", "", "caja-1")
	if err != nil {
		t.Fatalf("summary after close: %v", err)
	}
	if summary.Variance == nil || !closeEnough(*summary.Variance, -50) || summary.VarianceStatus != reconcile.VarianceShort {
		t.Fatalf("expected short by 50, got %+v", summary)
	}
	if gen, _ := summaries.Generation(context.Background(), "main", "2026-03-14"); gen == 0 {
		t.Fatalf("expected mutations to invalidate cached summaries")
	}

	if _, err := svc.CashSummary(as(waiterActor), "", "", "caja-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected waiter to be denied reports, got %v", err)
	}
}

func TestCashSummaryDropsResultOfInvalidatedDay(t *testing.T) {
	repo := &gatedRepo{
		Repository: memory.NewSeeded("main"),
		reached:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := New(repo, Options{
		DefaultTenantID: "main",
		Location:        time.UTC,
		Cache:           cache.NewMemorySummaryCache(),
		Now:             func() time.Time { return fixedNow },
	})
	cashier := as(cashierActor)

	if _, err := svc.OpenSession(cashier, domain.SessionOpenRequest{RegisterID: "caja-1", OpeningFloat: 500}); err != nil {
		t.Fatalf("open session: %v", err)
	}

	repo.armed.Store(true)
	type result struct {
		summary reconcile.Summary
		err     error
	}
	first := make(chan result, 1)
	go func() {
		summary, err := svc.CashSummary(cashier, "", "", "caja-1")
		first <- result{summary, err}
	}()
	<-repo.reached

	if _, err := svc.AddCash(cashier, domain.SessionAddCashRequest{RegisterID: "caja-1", Amount: 300}); err != nil {
		t.Fatalf("add cash: %v", err)
	}
	close(repo.release)
	res := <-first
	if res.err != nil {
		t.Fatalf("summary: %v", res.err)
	}
	if !closeEnough(res.summary.CashInRegister, 500) {
		t.Fatalf("summary read before add-cash should see 500, got %v", res.summary.CashInRegister)
	}

	summary, err := svc.CashSummary(cashier, "", "", "caja-1")
	if err != nil {
		t.Fatalf("summary after add-cash: %v", err)
	}
	if !closeEnough(summary.AddedCash, 300) || !closeEnough(summary.CashInRegister, 800) {
		t.Fatalf("stale summary served after add-cash: added=%v cashInRegister=%v", summary.AddedCash, summary.CashInRegister)
	}
}

func TestSplitOrder(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := as(cashierActor)

	order := mustOrder(t, svc, ctx, domain.OrderCreateRequest{Items: []domain.OrderItemRequest{
		{DishID: "dish-mofongo", Qty: 3},
		{DishID: "dish-bandera", Qty: 1},
	}})
	mofongo, bandera := order.Items[0].ID, order.Items[1].ID

	_, err := svc.SplitOrder(ctx, order.ID, domain.SplitOrderRequest{Accounts: []domain.SplitAccountRequest{
		{Name: "Ana", Allocations: map[string]int{mofongo: 2}},
	}})
	if !errors.Is(err, store.ErrInvalidInput) || !errors.Is(err, billsplit.ErrIncompleteAllocation) {
		t.Fatalf("expected incomplete allocation, got %v", err)
	}

	_, err = svc.SplitOrder(ctx, order.ID, domain.SplitOrderRequest{Accounts: []domain.SplitAccountRequest{
		{Name: "Ana", Allocations: map[string]int{mofongo: 2}},
		{Name: "Luis", Allocations: map[string]int{mofongo: 2, bandera: 1}},
	}})
	if !errors.Is(err, store.ErrInvalidInput) || !strings.Contains(err.Error(), "Luis allocates more") {
		t.Fatalf("submitted over-allocation must be rejected, not capped, got %v", err)
	}

	resp, err := svc.SplitOrder(ctx, order.ID, domain.SplitOrderRequest{EvenAccounts: 2})
	if err != nil {
		t.Fatalf("even split: %v", err)
	}
	if len(resp.Bills) != 2 || !closeEnough(resp.Bills[0].Subtotal, 1250) || !closeEnough(resp.Bills[1].Subtotal, 450) {
		t.Fatalf("unexpected even split %+v", resp.Bills)
	}
	if resp.Bills[0].ChargeRule != domain.SplitChargeRulePending {
		t.Fatalf("expected pending charge rule, got %s", resp.Bills[0].ChargeRule)
	}

	stored, err := svc.ListSplitBills(ctx, order.ID)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected two stored bills, got %d %v", len(stored), err)
	}

	invoice, err := svc.BuildInvoice(ctx, domain.InvoiceRequest{OrderID: order.ID, SplitBillID: stored[1].ID})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(invoice.EscposBase64)
	if err != nil || len(raw) < 2 || raw[0] != 0x1b || raw[1] != 0x40 {
		t.Fatalf("expected ESC/POS init sequence, got %v %v", raw, err)
	}
	if !strings.Contains(invoice.PreviewText, "Cuenta 2") || !strings.Contains(invoice.PreviewText, "450") {
		t.Fatalf("unexpected invoice preview:\n%s", invoice.PreviewText)
	}
}

func TestMermaLifecycle(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashier := as(cashierActor)

	batch, err := svc.CreateMermaBatch(cashier, domain.MermaCreateRequest{Product: "Yuca", Unit: "lb", RawQty: 10, UnitCostOriginal: 600})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CloseMermaBatch(cashier, batch.ID, domain.MermaCloseRequest{FinalQty: 11}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected final above raw to be rejected, got %v", err)
	}
	closed, err := svc.CloseMermaBatch(cashier, batch.ID, domain.MermaCloseRequest{FinalQty: 7})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closeEnough(closed.WasteCost, 1800) {
		t.Fatalf("unexpected waste cost %v", closed.WasteCost)
	}

	final := 8.0
	if _, err := svc.EditMermaBatch(cashier, batch.ID, domain.MermaEditRequest{FinalQty: &final}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier edit to be forbidden, got %v", err)
	}
	edited, err := svc.EditMermaBatch(as(adminActor), batch.ID, domain.MermaEditRequest{FinalQty: &final})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !closeEnough(edited.WasteCost, 1200) || !closeEnough(edited.EffectiveUnitCost, 750) {
		t.Fatalf("unexpected edited figures %+v", edited)
	}

	list, err := svc.ListMermaBatches(cashier, "", "2026-03-14")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Batches) != 1 || !closeEnough(list.WasteCost, 1200) {
		t.Fatalf("unexpected day list %+v", list)
	}
}

func TestTenantScoping(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	if _, err := svc.ListOrders(as(cashierActor), "other", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cross-tenant read to be forbidden, got %v", err)
	}
	if _, err := svc.ListTenants(as(adminActor)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected admin tenant listing to be forbidden, got %v", err)
	}

	root := as(rootActor)
	if _, err := svc.CreateTenant(root, domain.TenantCreateRequest{ID: "sucursal-2", Name: "De Leon Piantini"}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if _, err := svc.CreateTenant(root, domain.TenantCreateRequest{ID: "sucursal-2", Name: "Dup"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate tenant conflict, got %v", err)
	}
	if _, err := svc.SetTenantActive(root, "sucursal-2", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	branchCashier := as(domain.Actor{Username: "maria", Role: domain.RoleCashier, TenantID: "sucursal-2"})
	if _, err := svc.ListOrders(branchCashier, "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected inactive tenant to be refused, got %v", err)
	}
	if _, err := svc.ListOrders(root, "sucursal-2", ""); err != nil {
		t.Fatalf("super admin should still read inactive tenant: %v", err)
	}
	if _, err := svc.ListOrders(context.Background(), "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected anonymous call to be refused, got %v", err)
	}
}
