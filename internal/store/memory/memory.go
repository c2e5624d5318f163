package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	tenants         map[string]domain.Tenant
	dishes          map[string]map[string]domain.Dish
	orders          map[string]map[string]domain.Order
	sessions        map[string]domain.CashSession
	managerCodes    map[string]domain.ManagerCode
	merma           map[string]map[string]domain.MermaBatch
	splitBills      map[string][]domain.SplitBill
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		tenants:         make(map[string]domain.Tenant),
		dishes:          make(map[string]map[string]domain.Dish),
		orders:          make(map[string]map[string]domain.Order),
		sessions:        make(map[string]domain.CashSession),
		managerCodes:    make(map[string]domain.ManagerCode),
		merma:           make(map[string]map[string]domain.MermaBatch),
		splitBills:      make(map[string][]domain.SplitBill),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from SEED_*_PASSWORD and
// fall back to dev defaults with a warning. The postgres store never uses them.
func seedUsers(tenantID string) map[string]domain.UserAccount {
	defaults := []struct {
		username string
		env      string
		fallback string
		role     domain.Role
		tenantID string
	}{
		{"root", "SEED_SUPERADMIN_PASSWORD", "root12345", domain.RoleSuperAdmin, ""},
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin, tenantID},
		{"cashier", "SEED_CASHIER_PASSWORD", "cashier123", domain.RoleCashier, tenantID},
		{"waiter", "SEED_WAITER_PASSWORD", "waiter123", domain.RoleWaiter, tenantID},
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	warned := false
	for _, u := range defaults {
		password := os.Getenv(u.env)
		if password == "" {
			password = u.fallback
			if !warned {
				log.Warn().Msg("memory store: using default dev credentials, set SEED_*_PASSWORD to override")
				warned = true
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("memory store: failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      string(u.role),
			TenantID:  u.tenantID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

// NewSeeded returns a store with one tenant, a small menu and the demo accounts.
func NewSeeded(tenantID string) *Store {
	s := New()
	now := time.Now().UTC()
	s.tenants[tenantID] = domain.Tenant{ID: tenantID, Name: "Restaurante De Leon", Active: true, CreatedAt: now}

	menu := []domain.Dish{
		{ID: "dish-mofongo", Name: "Mofongo de chicharron", Category: "platos", Price: 450},
		{ID: "dish-bandera", Name: "La bandera", Category: "platos", Price: 350},
		{ID: "dish-sancocho", Name: "Sancocho", Category: "sopas", Price: 400},
		{ID: "dish-tostones", Name: "Tostones", Category: "acompanantes", Price: 150},
		{ID: "dish-morir", Name: "Morir sonando", Category: "bebidas", Price: 150},
		{ID: "dish-presidente", Name: "Presidente grande", Category: "bebidas", Price: 250},
	}
	s.dishes[tenantID] = make(map[string]domain.Dish, len(menu))
	for _, dish := range menu {
		dish.TenantID = tenantID
		dish.Active = true
		s.dishes[tenantID][dish.ID] = dish
	}
	s.usersByUsername = seedUsers(tenantID)
	return s
}

func (s *Store) ListTenants(_ context.Context) ([]domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]domain.Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		tenants = append(tenants, tenant)
	}
	slices.SortFunc(tenants, func(a, b domain.Tenant) int {
		return strings.Compare(a.ID, b.ID)
	})
	return tenants, nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tenant, nil
}

func (s *Store) CreateTenant(_ context.Context, tenant domain.Tenant) (*domain.Tenant, error) {
	if strings.TrimSpace(tenant.ID) == "" || strings.TrimSpace(tenant.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return nil, store.ErrConflict
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	s.tenants[tenant.ID] = tenant
	return &tenant, nil
}

func (s *Store) SetTenantActive(_ context.Context, tenantID string, active bool) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	tenant.Active = active
	s.tenants[tenantID] = tenant
	return &tenant, nil
}

func (s *Store) ListDishes(_ context.Context, tenantID string) ([]domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dishes := make([]domain.Dish, 0, len(s.dishes[tenantID]))
	for _, dish := range s.dishes[tenantID] {
		dishes = append(dishes, dish)
	}
	slices.SortFunc(dishes, func(a, b domain.Dish) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return dishes, nil
}

func (s *Store) GetDish(_ context.Context, tenantID string, dishID string) (*domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dish, ok := s.dishes[tenantID][dishID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &dish, nil
}

func (s *Store) CreateDish(_ context.Context, dish domain.Dish) (*domain.Dish, error) {
	if strings.TrimSpace(dish.TenantID) == "" || strings.TrimSpace(dish.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dish.ID == "" {
		dish.ID = xid.New("dish")
	}
	if s.dishes[dish.TenantID] == nil {
		s.dishes[dish.TenantID] = make(map[string]domain.Dish)
	}
	if _, exists := s.dishes[dish.TenantID][dish.ID]; exists {
		return nil, store.ErrConflict
	}
	s.dishes[dish.TenantID][dish.ID] = dish
	return &dish, nil
}

func (s *Store) UpdateDish(_ context.Context, dish domain.Dish) (*domain.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dishes[dish.TenantID][dish.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.dishes[dish.TenantID][dish.ID] = dish
	return &dish, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.TenantID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if s.orders[order.TenantID] == nil {
		s.orders[order.TenantID] = make(map[string]domain.Order)
	}
	if _, exists := s.orders[order.TenantID][order.ID]; exists {
		return nil, store.ErrConflict
	}
	order = cloneOrder(order)
	s.orders[order.TenantID][order.ID] = order
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) GetOrder(_ context.Context, tenantID string, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[tenantID][orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) UpdateOrder(_ context.Context, tenantID string, orderID string, mutate store.OrderMutator) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[tenantID][orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cloneOrder(current)
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID, next.TenantID = orderID, tenantID
	s.orders[tenantID][orderID] = next
	out := cloneOrder(next)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0)
	for _, order := range s.orders[tenantID] {
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return orders, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.TenantID) == "" || strings.TrimSpace(session.DateKey) == "" || strings.TrimSpace(session.RegisterID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(session.TenantID, session.DateKey, session.RegisterID)
	if _, exists := s.sessions[key]; exists {
		return nil, store.ErrConflict
	}
	if session.ID == "" {
		session.ID = xid.New("cash")
	}
	s.sessions[key] = cloneSession(session)
	out := cloneSession(session)
	return &out, nil
}

func (s *Store) GetSession(_ context.Context, tenantID string, dateKey string, registerID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionKey(tenantID, dateKey, registerID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSession(session)
	return &out, nil
}

func (s *Store) UpdateSession(_ context.Context, tenantID string, dateKey string, registerID string, mutate store.SessionMutator) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(tenantID, dateKey, registerID)
	current, ok := s.sessions[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cloneSession(current)
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID, next.TenantID, next.DateKey, next.RegisterID = current.ID, tenantID, dateKey, registerID
	s.sessions[key] = next
	out := cloneSession(next)
	return &out, nil
}

func (s *Store) ListSessions(_ context.Context, tenantID string, dateKey string) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.CashSession, 0)
	for _, session := range s.sessions {
		if session.TenantID == tenantID && session.DateKey == dateKey {
			sessions = append(sessions, cloneSession(session))
		}
	}
	slices.SortFunc(sessions, func(a, b domain.CashSession) int {
		return strings.Compare(a.RegisterID, b.RegisterID)
	})
	return sessions, nil
}

func (s *Store) GetManagerCode(_ context.Context, tenantID string) (*domain.ManagerCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code, ok := s.managerCodes[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &code, nil
}

func (s *Store) UpsertManagerCode(_ context.Context, code domain.ManagerCode) error {
	if strings.TrimSpace(code.TenantID) == "" || code.Hash == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.managerCodes[code.TenantID] = code
	return nil
}

func (s *Store) DeleteManagerCode(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.managerCodes[tenantID]; !ok {
		return store.ErrNotFound
	}
	delete(s.managerCodes, tenantID)
	return nil
}

func (s *Store) CreateMermaBatch(_ context.Context, batch domain.MermaBatch) (*domain.MermaBatch, error) {
	if strings.TrimSpace(batch.TenantID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ID == "" {
		batch.ID = xid.New("merma")
	}
	if s.merma[batch.TenantID] == nil {
		s.merma[batch.TenantID] = make(map[string]domain.MermaBatch)
	}
	s.merma[batch.TenantID][batch.ID] = cloneMerma(batch)
	out := cloneMerma(batch)
	return &out, nil
}

func (s *Store) GetMermaBatch(_ context.Context, tenantID string, batchID string) (*domain.MermaBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.merma[tenantID][batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneMerma(batch)
	return &out, nil
}

func (s *Store) UpdateMermaBatch(_ context.Context, tenantID string, batchID string, mutate store.MermaMutator) (*domain.MermaBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.merma[tenantID][batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cloneMerma(current)
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID, next.TenantID = batchID, tenantID
	s.merma[tenantID][batchID] = next
	out := cloneMerma(next)
	return &out, nil
}

func (s *Store) ListMermaBatches(_ context.Context, tenantID string, dateKey string) ([]domain.MermaBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.MermaBatch, 0)
	for _, batch := range s.merma[tenantID] {
		if batch.DateKey == dateKey {
			batches = append(batches, cloneMerma(batch))
		}
	}
	slices.SortFunc(batches, func(a, b domain.MermaBatch) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return batches, nil
}

func (s *Store) ReplaceSplitBills(_ context.Context, tenantID string, orderID string, bills []domain.SplitBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[tenantID][orderID]; !ok {
		return store.ErrNotFound
	}
	copied := make([]domain.SplitBill, 0, len(bills))
	for _, bill := range bills {
		bill.Lines = slices.Clone(bill.Lines)
		copied = append(copied, bill)
	}
	s.splitBills[tenantID+"|"+orderID] = copied
	return nil
}

func (s *Store) ListSplitBills(_ context.Context, tenantID string, orderID string) ([]domain.SplitBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.splitBills[tenantID+"|"+orderID]
	bills := make([]domain.SplitBill, 0, len(stored))
	for _, bill := range stored {
		bill.Lines = slices.Clone(bill.Lines)
		bills = append(bills, bill)
	}
	return bills, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.TenantID != tenantID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = string(domain.RoleCashier)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sessionKey(tenantID string, dateKey string, registerID string) string {
	return tenantID + "|" + dateKey + "|" + registerID
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = slices.Clone(src.Items)
	if src.PaidAt != nil {
		paidAt := *src.PaidAt
		dst.PaidAt = &paidAt
	}
	return dst
}

func cloneSession(src domain.CashSession) domain.CashSession {
	dst := src
	dst.Additions = slices.Clone(src.Additions)
	dst.Adjustments = slices.Clone(src.Adjustments)
	if src.Closing != nil {
		closing := *src.Closing
		dst.Closing = &closing
	}
	return dst
}

func cloneMerma(src domain.MermaBatch) domain.MermaBatch {
	dst := src
	dst.Steps = slices.Clone(src.Steps)
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		dst.ClosedAt = &closedAt
	}
	if src.EditedAt != nil {
		editedAt := *src.EditedAt
		dst.EditedAt = &editedAt
	}
	return dst
}
