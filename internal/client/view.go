package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/reconcile"
)

const refetchTimeout = 10 * time.Second

// ParseAmount reads an amount typed by a person: "1,250.50", "RD$ 300", " 12 ".
// Unlike money.Amount it refuses text that is not a number instead of reading it
// as zero.
func ParseAmount(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "RD$")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(strings.TrimSpace(cleaned), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("%w: amount is empty", ErrInvalidLocalInput)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an amount", ErrInvalidLocalInput, raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount cannot be negative", ErrInvalidLocalInput)
	}
	return d.InexactFloat64(), nil
}

// Snapshot is what a cash register screen shows for one day.
type Snapshot struct {
	Date    string
	Orders  []domain.Order
	Session *domain.CashSession
	Phase   string
	Actions []string
	Merma   []domain.MermaBatch
	Summary reconcile.Summary
	// Pending is true while a session change is waiting for the server.
	Pending bool
}

type dayData struct {
	date      string
	orders    []domain.Order
	merma     []domain.MermaBatch
	wasteCost float64
	session   domain.SessionResponse
}

// CashRegisterView loads a register's day and recomputes the closure locally, so
// an optimistic session change shows up in the figures before the server answers.
// Fetches follow last-started-wins.
type CashRegisterView struct {
	client     *Client
	tenantID   string
	registerID string

	data    Latest[dayData]
	session *Mutation[domain.SessionResponse]

	mu        sync.Mutex
	date      string
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

// NewCashRegisterView watches registerID. An empty tenantID means the caller's own
// tenant.
func NewCashRegisterView(c *Client, tenantID, registerID string) *CashRegisterView {
	return &CashRegisterView{
		client:     c,
		tenantID:   tenantID,
		registerID: registerID,
		session:    NewMutation(domain.SessionResponse{Phase: "no_session"}),
		listeners:  make(map[uint64]func(Snapshot)),
	}
}

// Load fetches date ("" for today on the server's clock) and makes it the current
// day. A response that arrives after a newer Load started is dropped.
func (v *CashRegisterView) Load(ctx context.Context, date string) (Snapshot, error) {
	v.mu.Lock()
	v.date = date
	v.mu.Unlock()

	_, applied, err := v.data.Fetch(ctx, func(ctx context.Context) (dayData, error) {
		return v.fetch(ctx, date)
	})
	if err != nil {
		return v.Snapshot(), err
	}
	if applied {
		loaded, _ := v.data.Value()
		v.session.Replace(loaded.session)
		v.notify()
	}
	return v.Snapshot(), nil
}

// Refresh reloads the current day.
func (v *CashRegisterView) Refresh(ctx context.Context) (Snapshot, error) {
	v.mu.Lock()
	date := v.date
	v.mu.Unlock()
	return v.Load(ctx, date)
}

func (v *CashRegisterView) fetch(ctx context.Context, date string) (dayData, error) {
	orders, err := v.client.ListOrders(ctx, v.tenantID, date)
	if err != nil {
		return dayData{}, fmt.Errorf("list orders: %w", err)
	}
	// Pin the remaining calls to the date the server resolved.
	date = orders.Date
	session, err := v.client.GetSession(ctx, v.tenantID, date, v.registerID)
	if err != nil {
		return dayData{}, fmt.Errorf("get session: %w", err)
	}
	batches, err := v.client.ListMerma(ctx, v.tenantID, date)
	if err != nil {
		return dayData{}, fmt.Errorf("list merma: %w", err)
	}
	return dayData{
		date:      date,
		orders:    orders.Orders,
		merma:     batches.Batches,
		wasteCost: batches.WasteCost,
		session:   session,
	}, nil
}

// Snapshot returns the current figures, including any optimistic session change.
func (v *CashRegisterView) Snapshot() Snapshot {
	data, _ := v.data.Value()
	session := v.session.Value()

	in := reconcile.Input{
		DateKey:    data.date,
		RegisterID: v.registerID,
		Orders:     data.orders,
		WasteCost:  data.wasteCost,
	}
	if s := session.Session; s != nil {
		in.TenantID = s.TenantID
		in.OpeningFloat = s.OpeningFloat
		in.AddedCash = s.AddedTotal
		if s.Status == domain.SessionStatusClosed && s.Closing != nil {
			counted := s.Closing.CountedTotal
			in.CountedTotal = &counted
		}
	}
	return Snapshot{
		Date:    data.date,
		Orders:  data.orders,
		Session: session.Session,
		Phase:   session.Phase,
		Actions: session.Actions,
		Merma:   data.merma,
		Summary: reconcile.Summarize(in),
		Pending: v.session.State() == MutationPending,
	}
}

// OnChange calls fn after every applied load and every session change, including
// rollbacks. The returned func unregisters it.
func (v *CashRegisterView) OnChange(fn func(Snapshot)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

func (v *CashRegisterView) notify() {
	v.mu.Lock()
	listeners := make([]func(Snapshot), 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	v.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	snap := v.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Bind refetches whenever the connection reports a change that affects the
// register, and after every reconnect.
func (v *CashRegisterView) Bind(ctx context.Context, conn *Connection) func() {
	refetch := func(domain.Event) {
		go func() {
			fetchCtx, cancel := context.WithTimeout(ctx, refetchTimeout)
			defer cancel()
			_, _ = v.Refresh(fetchCtx)
		}()
	}
	unbind := []func(){
		conn.On(domain.EventOrdersUpdated, refetch),
		conn.On(domain.EventCashUpdated, refetch),
		conn.On(domain.EventMermaUpdated, refetch),
		conn.On(EventReconnected, refetch),
	}
	return func() {
		for _, fn := range unbind {
			fn()
		}
	}
}

func (v *CashRegisterView) currentDate() string {
	data, ok := v.data.Value()
	if ok {
		return data.date
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.date
}

func (v *CashRegisterView) mutate(ctx context.Context, optimistic domain.SessionResponse, call func(context.Context) (domain.SessionResponse, error)) (Snapshot, error) {
	_, err := v.session.Run(ctx, optimistic, func(ctx context.Context) (domain.SessionResponse, error) {
		// The optimistic value is visible from here until the call returns.
		v.notify()
		return call(ctx)
	})
	if errors.Is(err, ErrMutationPending) {
		return v.Snapshot(), err
	}
	v.notify()
	return v.Snapshot(), err
}

func (v *CashRegisterView) Open(ctx context.Context, openingFloat float64) (Snapshot, error) {
	date := v.currentDate()
	optimistic := domain.SessionResponse{
		Session: &domain.CashSession{
			TenantID:     v.tenantID,
			RegisterID:   v.registerID,
			DateKey:      date,
			OpeningFloat: openingFloat,
			Status:       domain.SessionStatusOpen,
		},
		Phase: "open",
	}
	return v.mutate(ctx, optimistic, func(ctx context.Context) (domain.SessionResponse, error) {
		return v.client.OpenSession(ctx, domain.SessionOpenRequest{
			TenantID:     v.tenantID,
			DateKey:      date,
			RegisterID:   v.registerID,
			OpeningFloat: openingFloat,
		})
	})
}

func (v *CashRegisterView) AddCash(ctx context.Context, amount float64, note string) (Snapshot, error) {
	date := v.currentDate()
	optimistic := v.session.Value()
	if optimistic.Session != nil {
		next := *optimistic.Session
		next.AddedTotal += amount
		optimistic.Session = &next
	}
	return v.mutate(ctx, optimistic, func(ctx context.Context) (domain.SessionResponse, error) {
		return v.client.AddCash(ctx, domain.SessionAddCashRequest{
			TenantID:   v.tenantID,
			DateKey:    date,
			RegisterID: v.registerID,
			Amount:     amount,
			Note:       note,
		})
	})
}

func (v *CashRegisterView) AdjustOpening(ctx context.Context, openingFloat float64, note string) (Snapshot, error) {
	date := v.currentDate()
	optimistic := v.session.Value()
	if optimistic.Session != nil {
		next := *optimistic.Session
		next.OpeningFloat = openingFloat
		optimistic.Session = &next
	}
	return v.mutate(ctx, optimistic, func(ctx context.Context) (domain.SessionResponse, error) {
		return v.client.AdjustOpening(ctx, domain.SessionAdjustOpeningRequest{
			TenantID:     v.tenantID,
			DateKey:      date,
			RegisterID:   v.registerID,
			OpeningFloat: openingFloat,
			Note:         note,
		})
	})
}

// Close counts the drawer. The server checks managerCode against the tenant's code.
func (v *CashRegisterView) Close(ctx context.Context, counted float64, managerCode, note string) (Snapshot, error) {
	return v.closeWith(ctx, counted, managerCode, note, v.client.CloseSession)
}

// AdjustClose corrects the counted total of a closed session. It needs the
// manager code like Close does.
func (v *CashRegisterView) AdjustClose(ctx context.Context, counted float64, managerCode, note string) (Snapshot, error) {
	return v.closeWith(ctx, counted, managerCode, note, v.client.AdjustClose)
}

func (v *CashRegisterView) closeWith(ctx context.Context, counted float64, managerCode, note string, send func(context.Context, domain.SessionCloseRequest) (domain.SessionResponse, error)) (Snapshot, error) {
	date := v.currentDate()
	optimistic := v.session.Value()
	req := domain.SessionCloseRequest{
		TenantID:     v.tenantID,
		DateKey:      date,
		RegisterID:   v.registerID,
		CountedTotal: counted,
		Note:         note,
		ManagerCode:  managerCode,
	}
	if optimistic.Session != nil {
		next := *optimistic.Session
		req.SessionID = next.ID
		closing := domain.CashClosing{CountedTotal: counted, Note: note}
		if next.Closing != nil {
			closing = *next.Closing
			closing.CountedTotal = counted
		}
		next.Status = domain.SessionStatusClosed
		next.Closing = &closing
		optimistic.Session = &next
		optimistic.Phase = "closed"
	}
	return v.mutate(ctx, optimistic, func(ctx context.Context) (domain.SessionResponse, error) {
		return send(ctx, req)
	})
}
