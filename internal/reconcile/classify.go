// Package reconcile buckets orders by how they were settled and derives the cash
// closure figures for a register day.
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"deleonpos/backend/internal/domain"
)

type Bucket string

const (
	BucketCash      Bucket = "cash"
	BucketCard      Bucket = "card"
	BucketTransfer  Bucket = "transfer"
	BucketDelivery  Bucket = "delivery"
	BucketUberEats  Bucket = "uber_eats"
	BucketPedidosYa Bucket = "pedidos_ya"
	BucketOther     Bucket = "other"
)

// Buckets lists every bucket in report order.
var Buckets = []Bucket{
	BucketCash,
	BucketCard,
	BucketTransfer,
	BucketDelivery,
	BucketUberEats,
	BucketPedidosYa,
	BucketOther,
}

var bucketLabels = map[Bucket]string{
	BucketCash:      "Efectivo",
	BucketCard:      "Tarjeta",
	BucketTransfer:  "Transferencia",
	BucketDelivery:  "Delivery",
	BucketUberEats:  "Uber Eats",
	BucketPedidosYa: "PedidosYa",
	BucketOther:     "Otros",
}

func (b Bucket) Label() string {
	if label, ok := bucketLabels[b]; ok {
		return label
	}
	return string(b)
}

type keywordRule struct {
	bucket   Bucket
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var paymentRules = []keywordRule{
	{BucketCash, []string{"efectivo", "cash", "contado"}},
	{BucketCard, []string{"tarjeta", "card", "credito", "debito", "visa", "mastercard"}},
	{BucketTransfer, []string{"transferencia", "transfer", "deposito"}},
}

var channelRules = []keywordRule{
	{BucketUberEats, []string{"uber"}},
	{BucketPedidosYa, []string{"pedidosya", "pedidos ya"}},
	{BucketDelivery, []string{"delivery", "domicilio"}},
}

// Classify assigns the order to exactly one bucket. The payment method decides
// first, then the sales channel, and everything else lands in BucketOther.
func Classify(order domain.Order) Bucket {
	if bucket, ok := ClassifyPayment(order.PaymentMethod); ok {
		return bucket
	}
	if bucket, ok := matchRules(fold(order.Channel), channelRules); ok {
		return bucket
	}
	if order.Delivery {
		return BucketDelivery
	}
	return BucketOther
}

// ClassifyPayment reports the settlement bucket named by free-text payment method.
func ClassifyPayment(method string) (Bucket, bool) {
	return matchRules(fold(method), paymentRules)
}

func matchRules(text string, rules []keywordRule) (Bucket, bool) {
	if text == "" {
		return "", false
	}
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return rule.bucket, true
			}
		}
	}
	return "", false
}

// fold lowercases s and strips diacritics so "Crédito" and "credito" compare equal.
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
