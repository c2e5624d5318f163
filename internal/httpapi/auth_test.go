package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"deleonpos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				TenantID:  "main",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, "main", store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginTokenCarriesRoleAndTenant(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "main", legacyAdminStore())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" || resp.TenantID != "main" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin || actor.TenantID != "main" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "main", nil)
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "mallory",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "deleonpos",
		},
		Role: "owner",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token with unknown role to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("other-secret", time.Hour, "main", legacyAdminStore())
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	verifier := NewAuthManager("test-secret", time.Hour, "main", nil)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateUserStoresPasswordHashInActorTenant(t *testing.T) {
	store := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, "main", store)
	admin := domain.Actor{Username: "admin", Role: domain.RoleAdmin, TenantID: "main"}

	user, err := manager.CreateUser(context.Background(), admin, domain.UserCreateRequest{
		Username: "MESERO1",
		Password: "pass1234",
		Role:     "waiter",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "mesero1" || user.Role != "waiter" || user.TenantID != "main" {
		t.Fatalf("unexpected user %+v", user)
	}

	saved := store.users["mesero1"]
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "mesero1", Password: "pass1234"}); err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
}

func TestCreateUserScopeRules(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "main", legacyAdminStore())
	admin := domain.Actor{Username: "admin", Role: domain.RoleAdmin, TenantID: "main"}
	cashier := domain.Actor{Username: "caja", Role: domain.RoleCashier, TenantID: "main"}
	root := domain.Actor{Username: "root", Role: domain.RoleSuperAdmin}

	cases := []struct {
		name  string
		actor domain.Actor
		req   domain.UserCreateRequest
	}{
		{"cashier cannot manage users", cashier, domain.UserCreateRequest{Username: "nuevo1", Password: "pass1234", Role: "waiter"}},
		{"admin cannot mint superadmin", admin, domain.UserCreateRequest{Username: "nuevo2", Password: "pass1234", Role: "superadmin"}},
		{"admin cannot target another tenant", admin, domain.UserCreateRequest{Username: "nuevo3", Password: "pass1234", Role: "cashier", TenantID: "otro"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.CreateUser(context.Background(), tc.actor, tc.req); !errors.Is(err, domain.ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}

	user, err := manager.CreateUser(context.Background(), root, domain.UserCreateRequest{Username: "jefe-otro", Password: "pass1234", Role: "admin", TenantID: "otro"})
	if err != nil {
		t.Fatalf("superadmin create failed: %v", err)
	}
	if user.TenantID != "otro" {
		t.Fatalf("expected tenant otro, got %s", user.TenantID)
	}
	if _, err := manager.CreateUser(context.Background(), admin, domain.UserCreateRequest{Username: "nuevo4", Password: "pass1234", Role: "boss"}); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestListUsersIsTenantScoped(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "main", legacyAdminStore())
	root := domain.Actor{Username: "root", Role: domain.RoleSuperAdmin}
	if _, err := manager.CreateUser(context.Background(), root, domain.UserCreateRequest{Username: "admin-otro", Password: "pass1234", Role: "admin", TenantID: "otro"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	users, err := manager.ListUsers(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin, TenantID: "main"})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.TenantID != "main" {
			t.Fatalf("admin saw user from tenant %s", user.TenantID)
		}
	}

	all, err := manager.ListUsers(context.Background(), root)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected superadmin to see 2 users, got %d", len(all))
	}
}
