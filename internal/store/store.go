package store

import (
	"context"
	"errors"
	"time"

	"deleonpos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Mutators passed to the Update* methods run while the row is locked. Returning an
// error aborts the update and the error is returned unchanged.
type (
	OrderMutator   func(order *domain.Order) error
	SessionMutator func(session *domain.CashSession) error
	MermaMutator   func(batch *domain.MermaBatch) error
)

type Repository interface {
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	CreateTenant(ctx context.Context, tenant domain.Tenant) (*domain.Tenant, error)
	SetTenantActive(ctx context.Context, tenantID string, active bool) (*domain.Tenant, error)

	ListDishes(ctx context.Context, tenantID string) ([]domain.Dish, error)
	GetDish(ctx context.Context, tenantID string, dishID string) (*domain.Dish, error)
	CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error)
	UpdateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, tenantID string, orderID string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, tenantID string, orderID string, mutate OrderMutator) (*domain.Order, error)
	ListOrders(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Order, error)

	// CreateSession fails with ErrConflict when a session already exists for the
	// same tenant, date and register.
	CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	GetSession(ctx context.Context, tenantID string, dateKey string, registerID string) (*domain.CashSession, error)
	UpdateSession(ctx context.Context, tenantID string, dateKey string, registerID string, mutate SessionMutator) (*domain.CashSession, error)
	ListSessions(ctx context.Context, tenantID string, dateKey string) ([]domain.CashSession, error)

	GetManagerCode(ctx context.Context, tenantID string) (*domain.ManagerCode, error)
	UpsertManagerCode(ctx context.Context, code domain.ManagerCode) error
	DeleteManagerCode(ctx context.Context, tenantID string) error

	CreateMermaBatch(ctx context.Context, batch domain.MermaBatch) (*domain.MermaBatch, error)
	GetMermaBatch(ctx context.Context, tenantID string, batchID string) (*domain.MermaBatch, error)
	UpdateMermaBatch(ctx context.Context, tenantID string, batchID string, mutate MermaMutator) (*domain.MermaBatch, error)
	ListMermaBatches(ctx context.Context, tenantID string, dateKey string) ([]domain.MermaBatch, error)

	// ReplaceSplitBills swaps every stored split bill of the order for bills.
	ReplaceSplitBills(ctx context.Context, tenantID string, orderID string, bills []domain.SplitBill) error
	ListSplitBills(ctx context.Context, tenantID string, orderID string) ([]domain.SplitBill, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
