package cashsession

import (
	"errors"
	"slices"
	"testing"
	"time"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/store"
)

var (
	admin   = domain.Actor{Username: "admin", Role: domain.RoleAdmin, TenantID: "t1"}
	cashier = domain.Actor{Username: "caja", Role: domain.RoleCashier, TenantID: "t1"}
	waiter  = domain.Actor{Username: "mesero", Role: domain.RoleWaiter, TenantID: "t1"}
	now     = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func openSession(t *testing.T, actor domain.Actor, float float64) domain.CashSession {
	t.Helper()
	s, err := Open(nil, OpenParams{ID: "s1", TenantID: "t1", DateKey: "2026-03-14", RegisterID: "caja-1", OpeningFloat: float}, actor, now)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestOpenTwiceConflicts(t *testing.T) {
	s := openSession(t, cashier, 2000)
	if PhaseOf(&s) != PhaseOpen {
		t.Fatalf("expected open phase, got %s", PhaseOf(&s))
	}
	_, err := Open(&s, OpenParams{DateKey: "2026-03-14", RegisterID: "caja-1", OpeningFloat: 500}, cashier, now)
	if !errors.Is(err, ErrSessionExists) || !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second open, got %v", err)
	}
	if !IsConflict(err) {
		t.Fatalf("expected IsConflict to classify the error")
	}
}

func TestOpenRequiresCapability(t *testing.T) {
	_, err := Open(nil, OpenParams{DateKey: "2026-03-14", RegisterID: "caja-1"}, waiter, now)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for waiter, got %v", err)
	}
	_, err = Open(nil, OpenParams{DateKey: "2026-03-14", RegisterID: "caja-1", OpeningFloat: -1}, cashier, now)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative float, got %v", err)
	}
}

func TestAddCashAccumulates(t *testing.T) {
	s := openSession(t, cashier, 2000)
	next, err := AddCash(&s, 100, "cambio", cashier, now)
	if err != nil {
		t.Fatalf("add cash: %v", err)
	}
	next, err = AddCash(&next, 50.5, "", cashier, now)
	if err != nil {
		t.Fatalf("add cash: %v", err)
	}
	if next.AddedTotal != 150.5 || len(next.Additions) != 2 {
		t.Fatalf("unexpected additions %+v", next)
	}
	if len(s.Additions) != 0 {
		t.Fatalf("transition mutated its input")
	}
	if _, err := AddCash(&next, 0, "", cashier, now); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero amount, got %v", err)
	}
	if _, err := AddCash(nil, 10, "", cashier, now); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
}

func TestAdjustOpeningGating(t *testing.T) {
	zero := openSession(t, cashier, 0)
	set, err := AdjustOpening(&zero, 1500, "olvide el fondo", cashier, now)
	if err != nil {
		t.Fatalf("cashier should set a zero float: %v", err)
	}
	if _, err := AdjustOpening(&set, 1800, "", cashier, now); !errors.Is(err, ErrFloatLocked) {
		t.Fatalf("expected locked float for cashier, got %v", err)
	}
	fixed, err := AdjustOpening(&set, 1800, "correccion", admin, now)
	if err != nil {
		t.Fatalf("admin adjust: %v", err)
	}
	if fixed.OpeningFloat != 1800 {
		t.Fatalf("expected 1800, got %v", fixed.OpeningFloat)
	}
	last := fixed.Adjustments[len(fixed.Adjustments)-1]
	if last.Kind != domain.AdjustmentOpening || last.Previous != 1500 || last.By != "admin" {
		t.Fatalf("unexpected adjustment trail %+v", last)
	}

	closed, err := Close(&fixed, 1800, "", cashier, "admin", now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := AdjustOpening(&closed, 100, "", admin, now); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected not open after close, got %v", err)
	}
}

func TestCloseAndAdjustClose(t *testing.T) {
	s := openSession(t, cashier, 2000)
	closed, err := Close(&s, 2590, "faltan 10", cashier, "admin", now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if PhaseOf(&closed) != PhaseClosed || closed.Closing.CountedTotal != 2590 || closed.Closing.ClosedBy != "caja" {
		t.Fatalf("unexpected closed session %+v", closed)
	}
	if _, err := Close(&closed, 2600, "", cashier, "admin", now); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected second close to fail, got %v", err)
	}
	if _, err := AdjustClose(&closed, 2600, "", cashier, "admin", now); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected cashier adjust-close forbidden, got %v", err)
	}
	if _, err := AdjustClose(&s, 2600, "", admin, "admin", now); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("expected adjust-close on open session to fail, got %v", err)
	}

	adjusted, err := AdjustClose(&closed, 2600, "se encontraron 10", admin, "admin", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("adjust close: %v", err)
	}
	if adjusted.Closing.CountedTotal != 2600 || adjusted.Closing.ClosedBy != "caja" {
		t.Fatalf("unexpected closing after adjust %+v", adjusted.Closing)
	}
	last := adjusted.Adjustments[len(adjusted.Adjustments)-1]
	if last.Kind != domain.AdjustmentClose || last.Previous != 2590 || last.Value != 2600 {
		t.Fatalf("unexpected adjustment trail %+v", last)
	}
	if closed.Closing.CountedTotal != 2590 {
		t.Fatalf("adjust-close mutated the previous closing record")
	}
}

func TestAllowed(t *testing.T) {
	caps := domain.CapabilitiesFor
	if got := Allowed(nil, caps(domain.RoleCashier)); !slices.Equal(got, []Action{ActionOpen}) {
		t.Fatalf("unexpected actions without session: %v", got)
	}
	if got := Allowed(nil, caps(domain.RoleWaiter)); len(got) != 0 {
		t.Fatalf("waiter should have no session actions, got %v", got)
	}

	open := openSession(t, cashier, 2000)
	if got := Allowed(&open, caps(domain.RoleCashier)); !slices.Equal(got, []Action{ActionAddCash, ActionClose}) {
		t.Fatalf("unexpected cashier actions: %v", got)
	}
	if got := Allowed(&open, caps(domain.RoleAdmin)); !slices.Equal(got, []Action{ActionAddCash, ActionAdjustOpening, ActionClose}) {
		t.Fatalf("unexpected admin actions: %v", got)
	}

	zero := openSession(t, cashier, 0)
	if got := Allowed(&zero, caps(domain.RoleCashier)); !slices.Contains(got, ActionAdjustOpening) {
		t.Fatalf("cashier should be offered to set a zero float: %v", got)
	}

	closed, _ := Close(&open, 2600, "", cashier, "admin", now)
	if got := Allowed(&closed, caps(domain.RoleCashier)); len(got) != 0 {
		t.Fatalf("cashier should have no actions after close: %v", got)
	}
	if got := Allowed(&closed, caps(domain.RoleSuperAdmin)); !slices.Equal(got, []Action{ActionAdjustClose}) {
		t.Fatalf("unexpected superadmin actions after close: %v", got)
	}
}
