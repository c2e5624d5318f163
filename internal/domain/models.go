package domain

import "time"

const DateKeyLayout = "2006-01-02"

type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RNC       string    `json:"rnc,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type TenantCreateRequest struct {
	ID   string `json:"id" validate:"required,min=3,max=64"`
	Name string `json:"name" validate:"required,min=2"`
	RNC  string `json:"rnc,omitempty" validate:"omitempty,numeric,min=9,max=11"`
}

type TenantToggleRequest struct {
	Active bool `json:"active"`
}

type Dish struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenant_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Active   bool    `json:"active"`
}

type DishCreateRequest struct {
	TenantID string  `json:"tenant_id,omitempty"`
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category" validate:"required"`
	Price    float64 `json:"price" validate:"gt=0"`
}

type DishUpdateRequest struct {
	Name     *string  `json:"name,omitempty"`
	Category *string  `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Active   *bool    `json:"active,omitempty"`
}

type OrderLine struct {
	ID        string  `json:"id"`
	DishID    string  `json:"dish_id"`
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

type Bill struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Tip      float64 `json:"tip"`
	Total    float64 `json:"total"`
}

type Order struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	TableID       string      `json:"table_id,omitempty"`
	Items         []OrderLine `json:"items"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Channel       string      `json:"channel,omitempty"`
	Delivery      bool        `json:"delivery"`
	Bill          Bill        `json:"bill"`
	NCF           string      `json:"ncf,omitempty"`
	Status        string      `json:"status"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	PaidAt        *time.Time  `json:"paid_at,omitempty"`
}

type OrderItemRequest struct {
	DishID string `json:"dish_id" validate:"required"`
	Qty    int    `json:"qty" validate:"gte=1"`
}

type OrderCreateRequest struct {
	TenantID string             `json:"tenant_id,omitempty"`
	TableID  string             `json:"table_id,omitempty"`
	Channel  string             `json:"channel,omitempty"`
	Delivery bool               `json:"delivery"`
	Items    []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderItemsRequest struct {
	Items []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CheckoutRequest struct {
	PaymentMethod  string   `json:"payment_method" validate:"required"`
	Discount       float64  `json:"discount" validate:"gte=0"`
	TaxRatePercent *float64 `json:"tax_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	TipRatePercent *float64 `json:"tip_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	NCF            string   `json:"ncf,omitempty"`
}

type OrderListResponse struct {
	Date   string  `json:"date"`
	Orders []Order `json:"orders"`
}

type CashAddition struct {
	Amount float64   `json:"amount"`
	Note   string    `json:"note,omitempty"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
}

type CashClosing struct {
	CountedTotal float64   `json:"counted_total"`
	Note         string    `json:"note,omitempty"`
	ClosedBy     string    `json:"closed_by"`
	AuthorizedBy string    `json:"authorized_by"`
	ClosedAt     time.Time `json:"closed_at"`
}

type SessionAdjustment struct {
	Kind     string    `json:"kind"`
	Previous float64   `json:"previous"`
	Value    float64   `json:"value"`
	Note     string    `json:"note,omitempty"`
	By       string    `json:"by"`
	At       time.Time `json:"at"`
}

type CashSession struct {
	ID           string              `json:"id"`
	TenantID     string              `json:"tenant_id"`
	RegisterID   string              `json:"register_id"`
	DateKey      string              `json:"date"`
	OpeningFloat float64             `json:"opening_float"`
	AddedTotal   float64             `json:"added_total"`
	Additions    []CashAddition      `json:"additions"`
	Status       string              `json:"status"`
	OpenedBy     string              `json:"opened_by"`
	OpenedAt     time.Time           `json:"opened_at"`
	Closing      *CashClosing        `json:"closing,omitempty"`
	Adjustments  []SessionAdjustment `json:"adjustments"`
}

type SessionOpenRequest struct {
	TenantID     string  `json:"tenant_id,omitempty"`
	DateKey      string  `json:"date,omitempty"`
	RegisterID   string  `json:"register_id" validate:"required"`
	OpeningFloat float64 `json:"opening_float" validate:"gte=0"`
}

type SessionAddCashRequest struct {
	TenantID   string  `json:"tenant_id,omitempty"`
	DateKey    string  `json:"date,omitempty"`
	RegisterID string  `json:"register_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"gt=0"`
	Note       string  `json:"note,omitempty"`
}

type SessionAdjustOpeningRequest struct {
	TenantID     string  `json:"tenant_id,omitempty"`
	DateKey      string  `json:"date,omitempty"`
	RegisterID   string  `json:"register_id" validate:"required"`
	OpeningFloat float64 `json:"opening_float" validate:"gte=0"`
	Note         string  `json:"note,omitempty"`
}

type SessionCloseRequest struct {
	TenantID     string  `json:"tenant_id,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	DateKey      string  `json:"date,omitempty"`
	RegisterID   string  `json:"register_id" validate:"required"`
	CountedTotal float64 `json:"counted_total" validate:"gte=0"`
	Note         string  `json:"note,omitempty"`
	ManagerCode  string  `json:"manager_code"`
}

type SessionResponse struct {
	Session *CashSession `json:"session"`
	Phase   string       `json:"phase"`
	Actions []string     `json:"actions"`
}

type ManagerCode struct {
	TenantID  string    `json:"tenant_id"`
	Hash      string    `json:"-"`
	Hint      string    `json:"hint"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ManagerCodeStatus struct {
	Configured bool       `json:"configured"`
	Hint       string     `json:"hint,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type ManagerCodeSetRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Code     string `json:"code" validate:"required,numeric,min=4,max=12"`
}

type MermaStep struct {
	Label string  `json:"label" validate:"required"`
	Qty   float64 `json:"qty" validate:"gte=0"`
}

type MermaBatch struct {
	ID                string      `json:"id"`
	TenantID          string      `json:"tenant_id"`
	DateKey           string      `json:"date"`
	Product           string      `json:"product"`
	Unit              string      `json:"unit,omitempty"`
	RawQty            float64     `json:"raw_qty"`
	UnitCostOriginal  float64     `json:"unit_cost_original"`
	TotalCost         float64     `json:"total_cost"`
	FinalQty          float64     `json:"final_qty"`
	WasteQty          float64     `json:"waste_qty"`
	WasteCost         float64     `json:"waste_cost"`
	EffectiveUnitCost float64     `json:"effective_unit_cost"`
	Steps             []MermaStep `json:"steps"`
	Status            string      `json:"status"`
	Note              string      `json:"note,omitempty"`
	CreatedBy         string      `json:"created_by"`
	CreatedAt         time.Time   `json:"created_at"`
	ClosedBy          string      `json:"closed_by,omitempty"`
	ClosedAt          *time.Time  `json:"closed_at,omitempty"`
	EditedBy          string      `json:"edited_by,omitempty"`
	EditedAt          *time.Time  `json:"edited_at,omitempty"`
}

type MermaCreateRequest struct {
	TenantID         string      `json:"tenant_id,omitempty"`
	DateKey          string      `json:"date,omitempty"`
	Product          string      `json:"product" validate:"required"`
	Unit             string      `json:"unit,omitempty"`
	RawQty           float64     `json:"raw_qty" validate:"gt=0"`
	UnitCostOriginal float64     `json:"unit_cost_original" validate:"gte=0"`
	Steps            []MermaStep `json:"steps,omitempty" validate:"dive"`
}

type MermaCloseRequest struct {
	FinalQty float64     `json:"final_qty" validate:"gt=0"`
	Steps    []MermaStep `json:"steps,omitempty" validate:"dive"`
	Note     string      `json:"note,omitempty"`
}

type MermaEditRequest struct {
	RawQty           *float64    `json:"raw_qty,omitempty" validate:"omitempty,gt=0"`
	UnitCostOriginal *float64    `json:"unit_cost_original,omitempty" validate:"omitempty,gte=0"`
	FinalQty         *float64    `json:"final_qty,omitempty" validate:"omitempty,gt=0"`
	Steps            []MermaStep `json:"steps,omitempty" validate:"dive"`
	Note             *string     `json:"note,omitempty"`
}

type MermaListResponse struct {
	Date      string       `json:"date"`
	Batches   []MermaBatch `json:"batches"`
	WasteCost float64      `json:"waste_cost"`
}

type SplitAccountRequest struct {
	Name        string         `json:"name"`
	Allocations map[string]int `json:"allocations"`
}

type SplitOrderRequest struct {
	EvenAccounts int                   `json:"even_accounts,omitempty" validate:"gte=0,lte=50"`
	Accounts     []SplitAccountRequest `json:"accounts,omitempty"`
}

type SplitLine struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
}

type SplitBill struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	OrderID     string      `json:"order_id"`
	AccountID   string      `json:"account_id"`
	AccountName string      `json:"account_name"`
	Lines       []SplitLine `json:"lines"`
	Subtotal    float64     `json:"subtotal"`
	Tax         float64     `json:"tax"`
	Tip         float64     `json:"tip"`
	Total       float64     `json:"total"`
	ChargeRule  string      `json:"charge_rule"`
	CreatedAt   time.Time   `json:"created_at"`
}

type SplitOrderResponse struct {
	OrderID string      `json:"order_id"`
	Bills   []SplitBill `json:"bills"`
}

type InvoiceRequest struct {
	OrderID     string `json:"order_id" validate:"required"`
	SplitBillID string `json:"split_bill_id,omitempty"`
}

type InvoiceResponse struct {
	OrderID      string `json:"order_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     Role
	TenantID string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	TenantID  string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	OrderStatusOpen      = "open"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	AdjustmentOpening = "opening"
	AdjustmentClose   = "close"
)

const (
	MermaStatusOpen   = "open"
	MermaStatusClosed = "closed"
)

const SplitChargeRulePending = "pending"
