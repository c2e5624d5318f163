package reconcile

import (
	"math"
	"strings"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/money"
)

// VarianceTolerance is the absolute difference still reported as balanced.
const VarianceTolerance = 1.0

const (
	VarianceUncounted = "uncounted"
	VarianceBalanced  = "balanced"
	VarianceShort     = "short"
	VarianceOver      = "over"
)

type Input struct {
	TenantID     string
	DateKey      string
	RegisterID   string
	Orders       []domain.Order
	OpeningFloat float64
	AddedCash    float64
	WasteCost    float64
	// CountedTotal is nil until the drawer has been counted.
	CountedTotal *float64
}

type BucketTotal struct {
	Bucket Bucket  `json:"bucket"`
	Label  string  `json:"label"`
	Total  float64 `json:"total"`
	Count  int     `json:"count"`
}

// Summary holds unrounded figures. Round with money.Round2 or money.Format when
// rendering.
type Summary struct {
	TenantID       string        `json:"tenant_id,omitempty"`
	DateKey        string        `json:"date,omitempty"`
	RegisterID     string        `json:"register_id,omitempty"`
	Buckets        []BucketTotal `json:"buckets"`
	GrandTotal     float64       `json:"grand_total"`
	OrderCount     int           `json:"order_count"`
	OpeningFloat   float64       `json:"opening_float"`
	AddedCash      float64       `json:"added_cash"`
	Menudo         float64       `json:"menudo"`
	TotalWithFloat float64       `json:"total_with_float"`
	CashInRegister float64       `json:"cash_in_register"`
	WasteCost      float64       `json:"waste_cost"`
	NetSales       float64       `json:"net_sales"`
	Counted        *float64      `json:"counted,omitempty"`
	Variance       *float64      `json:"variance,omitempty"`
	VarianceStatus string        `json:"variance_status"`
}

// Bucket returns the totals for b, or a zero entry when b is unknown.
func (s Summary) Bucket(b Bucket) BucketTotal {
	for _, entry := range s.Buckets {
		if entry.Bucket == b {
			return entry
		}
	}
	return BucketTotal{Bucket: b, Label: b.Label()}
}

// OrderAmount is the amount an order contributes to its bucket: the billed total
// once the order is paid or carries a payment method, even when that total is 0,
// or the line subtotal while it is still open and unbilled.
func OrderAmount(order domain.Order) float64 {
	if billed(order) {
		return money.Amount(order.Bill.Total)
	}
	if total := money.Amount(order.Bill.Total); total > 0 {
		return total
	}
	subtotal := 0.0
	for _, line := range order.Items {
		subtotal += float64(money.ClampQty(line.Qty)) * money.Amount(line.UnitPrice)
	}
	return subtotal
}

func billed(order domain.Order) bool {
	return order.Status == domain.OrderStatusPaid || strings.TrimSpace(order.PaymentMethod) != ""
}

// Summarize derives the closure figures. Cancelled orders are skipped. Waste cost
// only reduces NetSales; it never touches the cash expected in the drawer.
func Summarize(in Input) Summary {
	opening := money.Amount(in.OpeningFloat)
	added := money.Amount(in.AddedCash)
	waste := money.Amount(in.WasteCost)

	index := make(map[Bucket]int, len(Buckets))
	buckets := make([]BucketTotal, len(Buckets))
	for i, b := range Buckets {
		index[b] = i
		buckets[i] = BucketTotal{Bucket: b, Label: b.Label()}
	}

	summary := Summary{
		TenantID:     in.TenantID,
		DateKey:      in.DateKey,
		RegisterID:   in.RegisterID,
		OpeningFloat: opening,
		AddedCash:    added,
		WasteCost:    waste,
	}
	for _, order := range in.Orders {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		amount := OrderAmount(order)
		i := index[Classify(order)]
		buckets[i].Total += amount
		buckets[i].Count++
		summary.GrandTotal += amount
		summary.OrderCount++
	}
	summary.Buckets = buckets

	summary.Menudo = opening + added
	summary.TotalWithFloat = summary.GrandTotal + opening
	summary.CashInRegister = opening + buckets[index[BucketCash]].Total + added
	summary.NetSales = summary.GrandTotal - waste

	summary.VarianceStatus = VarianceUncounted
	if in.CountedTotal != nil {
		counted := money.Amount(*in.CountedTotal)
		variance := counted - summary.CashInRegister
		summary.Counted = &counted
		summary.Variance = &variance
		summary.VarianceStatus = VarianceStatusOf(variance)
	}
	return summary
}

func VarianceStatusOf(variance float64) string {
	switch {
	case math.Abs(variance) <= VarianceTolerance:
		return VarianceBalanced
	case variance < 0:
		return VarianceShort
	default:
		return VarianceOver
	}
}
