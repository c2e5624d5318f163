package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deleonpos/backend/internal/httpapi"
	"deleonpos/backend/internal/realtime"
	"deleonpos/backend/internal/service"
	"deleonpos/backend/internal/store/memory"
)

func newBackend(t *testing.T) string {
	t.Helper()
	repo := memory.NewSeeded("main")
	hub := realtime.NewHub(16)
	svc := service.New(repo, service.Options{DefaultTenantID: "main", Events: hub})
	auth := httpapi.NewAuthManager("posctl-test-secret", time.Hour, "main", repo)
	api := httpapi.New(svc, auth, hub, "*")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		api.CloseStreams()
		srv.Close()
	})
	return srv.URL
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunRequiresUserAndCommand(t *testing.T) {
	t.Setenv("POS_USER", "")
	if code, _, stderr := runCLI(t, "summary"); code != 2 || !strings.Contains(stderr, "-user") {
		t.Fatalf("expected usage error, got %d %q", code, stderr)
	}
	if code, _, stderr := runCLI(t, "-user", "admin"); code != 2 || !strings.Contains(stderr, "missing command") {
		t.Fatalf("expected missing command, got %d %q", code, stderr)
	}
	if code, _, stderr := runCLI(t, "-user", "admin", "explode"); code != 2 || !strings.Contains(stderr, "unknown command") {
		t.Fatalf("expected unknown command, got %d %q", code, stderr)
	}
}

func TestRunRegisterDay(t *testing.T) {
	url := newBackend(t)
	cashier := []string{"-url", url, "-user", "cashier", "-password", "cashier123", "-register", "caja-1"}
	admin := []string{"-url", url, "-user", "admin", "-password", "admin123", "-register", "caja-1"}

	code, out, stderr := runCLI(t, append(cashier, "open", "-float", "1,000")...)
	if code != 0 || !strings.Contains(out, "open") || !strings.Contains(out, "1,000") {
		t.Fatalf("open: %d %q %q", code, out, stderr)
	}
	if code, _, stderr = runCLI(t, append(cashier, "open", "-float", "50")...); code != 1 || !strings.Contains(stderr, "already exists") {
		t.Fatalf("second open should conflict: %d %q", code, stderr)
	}
	if code, _, stderr = runCLI(t, append(cashier, "add", "-amount", "doscientos")...); code != 1 || !strings.Contains(stderr, "invalid input") {
		t.Fatalf("non-numeric amount should be rejected: %d %q", code, stderr)
	}
	if code, out, stderr = runCLI(t, append(cashier, "add", "-amount", "RD$ 250", "-note", "cambio")...); code != 0 || !strings.Contains(out, "menudo 250") {
		t.Fatalf("add: %d %q %q", code, out, stderr)
	}
	if code, _, stderr = runCLI(t, append(cashier, "close", "-counted", "1250")...); code != 1 || !strings.Contains(stderr, "manager code") {
		t.Fatalf("close without code: %d %q", code, stderr)
	}
	if code, _, stderr = runCLI(t, append(cashier, "code", "-set", "4829")...); code != 1 || !strings.Contains(stderr, "not allowed") {
		t.Fatalf("cashier must not set the code: %d %q", code, stderr)
	}
	if code, out, stderr = runCLI(t, append(admin, "code", "-set", "4829")...); code != 0 || !strings.Contains(out, "**29") {
		t.Fatalf("set code: %d %q %q", code, out, stderr)
	}
	if code, out, stderr = runCLI(t, append(cashier, "close", "-counted", "1250", "-code", "4829")...); code != 0 || !strings.Contains(out, "closed") {
		t.Fatalf("close: %d %q %q", code, out, stderr)
	}

	code, out, stderr = runCLI(t, append(admin, "summary", "-format", "csv")...)
	if code != 0 || !strings.Contains(out, "cash,cash_in_register,1250.00") {
		t.Fatalf("summary csv: %d %q %q", code, out, stderr)
	}
	code, out, _ = runCLI(t, append(admin, "summary")...)
	if code != 0 || !strings.Contains(out, "Efectivo en caja") || !strings.Contains(out, "balanced") {
		t.Fatalf("summary table: %d %q", code, out)
	}
	if code, out, _ = runCLI(t, append(admin, "session")...); code != 0 || !strings.Contains(out, "contado 1,250 por cashier") {
		t.Fatalf("session: %d %q", code, out)
	}
	if code, out, stderr = runCLI(t, append(admin, "close", "-adjust", "-counted", "1300", "-code", "4829", "-note", "recuento")...); code != 0 || !strings.Contains(out, "contado 1,300 por") {
		t.Fatalf("adjust close: %d %q %q", code, out, stderr)
	}
}

func TestRunLoginFailure(t *testing.T) {
	url := newBackend(t)
	code, _, stderr := runCLI(t, "-url", url, "-user", "cashier", "-password", "nope", "session")
	if code != 1 || !strings.Contains(stderr, "login failed") {
		t.Fatalf("expected login failure, got %d %q", code, stderr)
	}
}
