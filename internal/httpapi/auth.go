package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"deleonpos/backend/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

const userStoreTimeout = 5 * time.Second

type AuthManager struct {
	mu              sync.RWMutex
	secret          []byte
	tokenTTL        time.Duration
	defaultTenantID string
	userStore       UserStore
	users           map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     domain.Role
	tenantID string
	active   bool
	created  time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, defaultTenantID string, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	manager := &AuthManager{
		secret:          []byte(secret),
		tokenTTL:        tokenTTL,
		defaultTenantID: strings.TrimSpace(defaultTenantID),
		userStore:       userStore,
		users:           make(map[string]credential),
	}
	ctx, cancel := context.WithTimeout(context.Background(), userStoreTimeout)
	defer cancel()
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	// Reload so accounts created by another instance can sign in.
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        string(cred.role),
		TenantID:    cred.tenantID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken verifies an access token. A role claim outside the known set is
// treated as an invalid token rather than a guest.
func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("deleonpos"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{Username: sub, Role: role, TenantID: claims.TenantID}, nil
}

func (a *AuthManager) sign(username string, cred credential, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "deleonpos",
		},
		Role:     string(cred.role),
		TenantID: cred.tenantID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateUser adds a staff account. Admins create accounts for their own tenant and
// can not mint superadmins; a superadmin may create any role for any tenant.
func (a *AuthManager) CreateUser(ctx context.Context, actor domain.Actor, req domain.UserCreateRequest) (domain.User, error) {
	if !actor.Capabilities().CanManageUsers {
		return domain.User{}, domain.ErrForbidden
	}
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.User{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.User{}, fmt.Errorf("username must not contain spaces")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.User{}, fmt.Errorf("password must be at least 6 characters")
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return domain.User{}, fmt.Errorf("unknown role %q", req.Role)
	}

	tenantID := strings.TrimSpace(req.TenantID)
	if role == domain.RoleSuperAdmin {
		if actor.Role != domain.RoleSuperAdmin {
			return domain.User{}, domain.ErrForbidden
		}
		tenantID = ""
	} else if actor.Role != domain.RoleSuperAdmin {
		own := actor.TenantID
		if own == "" {
			own = a.defaultTenantID
		}
		if tenantID != "" && tenantID != own {
			return domain.User{}, domain.ErrForbidden
		}
		tenantID = own
	} else if tenantID == "" {
		tenantID = a.defaultTenantID
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.User{}, fmt.Errorf("username already exists")
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password")
	}

	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  passwordHash,
			Role:      string(role),
			TenantID:  tenantID,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.User{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password: passwordHash,
		role:     role,
		tenantID: tenantID,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.User{
		Username:  username,
		Role:      string(role),
		TenantID:  tenantID,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// ListUsers returns the accounts visible to actor: everything for a superadmin,
// the actor's own tenant otherwise.
func (a *AuthManager) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if !actor.Capabilities().CanManageUsers {
		return nil, domain.ErrForbidden
	}
	a.bootstrapUsers(ctx)
	tenantID := actor.TenantID
	if tenantID == "" {
		tenantID = a.defaultTenantID
	}

	a.mu.RLock()
	result := make([]domain.User, 0, len(a.users))
	for username, user := range a.users {
		if actor.Role != domain.RoleSuperAdmin && user.tenantID != tenantID {
			continue
		}
		result = append(result, domain.User{
			Username:  username,
			Role:      string(user.role),
			TenantID:  user.tenantID,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

// bootstrapUsers loads user accounts from the user store into the in-memory
// credential cache and upgrades legacy plain-text passwords to bcrypt hashes.
// Accounts with an unknown role are skipped.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("auth: failed to load users")
		return
	}
	if len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		role, ok := domain.ParseRole(user.Role)
		if !ok {
			log.Warn().Str("username", username).Str("role", user.Role).Msg("auth: skipping account with unknown role")
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
					log.Warn().Err(err).Str("username", username).Msg("auth: failed to upgrade password hash")
				}
			}
		}
		tenantID := strings.TrimSpace(user.TenantID)
		if tenantID == "" && role != domain.RoleSuperAdmin {
			tenantID = a.defaultTenantID
		}
		a.users[username] = credential{
			password: password,
			role:     role,
			tenantID: tenantID,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
