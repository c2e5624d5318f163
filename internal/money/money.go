// Package money coerces loosely typed amounts and quantities coming from clients
// into finite numbers and renders them for display.
package money

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinQty = 0
	MaxQty = 9999
)

// Amount returns a finite number for v. Malformed input yields 0.
func Amount(v any) float64 {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint64:
		f = float64(val)
	case *float64:
		if val == nil {
			return 0
		}
		f = *val
	case json.Number:
		f = parseAmount(val.String())
	case decimal.Decimal:
		f = val.InexactFloat64()
	case string:
		f = parseAmount(val)
	case []byte:
		f = parseAmount(string(val))
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseAmount accepts values like "RD$ 1,250.50", "$300", " 12 ".
// Commas are thousands separators; the dot is the decimal mark.
func parseAmount(raw string) float64 {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return 0
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// Qty coerces v into a quantity within [MinQty, MaxQty]. Fractions are truncated.
func Qty(v any) int {
	f := Amount(v)
	if f >= MaxQty {
		return MaxQty
	}
	return ClampQty(int(f))
}

func ClampQty(n int) int {
	if n < MinQty {
		return MinQty
	}
	if n > MaxQty {
		return MaxQty
	}
	return n
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	v = Amount(v)
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Format renders v with thousands separators and at most two decimals.
func Format(v float64) string {
	s := decimal.NewFromFloat(Amount(v)).Round(2).String()
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	out := groupThousands(intPart)
	if hasFrac {
		out += "." + fracPart
	}
	if negative {
		return "-" + out
	}
	return out
}

// FormatInput formats partially typed input. A trailing decimal point and up to
// two typed decimals are preserved so the field can keep being edited.
func FormatInput(raw string) string {
	var intDigits, fracDigits strings.Builder
	seenDot := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			if seenDot {
				if fracDigits.Len() < 2 {
					fracDigits.WriteRune(r)
				}
			} else {
				intDigits.WriteRune(r)
			}
		case r == '.' && !seenDot:
			seenDot = true
		}
	}
	intPart := strings.TrimLeft(intDigits.String(), "0")
	if intPart == "" && (intDigits.Len() > 0 || seenDot) {
		intPart = "0"
	}
	if intPart == "" {
		return ""
	}
	out := groupThousands(intPart)
	if seenDot {
		out += "." + fracDigits.String()
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var parts []string
	for i := len(digits); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		parts = append([]string{digits[start:i]}, parts...)
	}
	return strings.Join(parts, ",")
}

// FormatFixed renders v with exactly two decimals and no grouping, for exports.
func FormatFixed(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}
