package domain

import "time"

const (
	EventOrdersUpdated = "orders.updated"
	EventTablesUpdated = "tables.updated"
	EventCashUpdated   = "cash.updated"
	EventMermaUpdated  = "merma.updated"
	EventMenuUpdated   = "menu.updated"
	EventTenantUpdated = "tenant.updated"
)

// Event is an informational, tenant-scoped notification that something changed.
// Consumers refetch; the payload never carries the changed state itself.
type Event struct {
	Type     string    `json:"type"`
	TenantID string    `json:"tenant_id"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}
