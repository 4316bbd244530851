// Package priceparse normalises raw price fragments scraped from retailer
// pages ("€ 1.299,00", "$1,299.99", "12,-") into exact decimal amounts.
//
// Parse never fails loudly: a fragment that does not hold a positive amount
// yields ok=false, which callers treat as "field not found".
package priceparse

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Parse extracts a positive amount from text. Every character other than
// digits, comma, period and minus is discarded first.
//
// Separator rules:
//   - both ',' and '.' present: the last one is the decimal separator.
//   - a single separator followed by exactly three digits is a thousands
//     separator ("1,299", "1.299"), unless the integer part is zero.
//   - repeated separators of one kind are thousands separators, except a
//     trailing group of one or two digits.
//   - "12,-" (whole amount notation) parses as 12.
//
// A leading minus, an empty result or a non-positive value gives ok=false.
func Parse(text string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s[0] == '-' {
		return decimal.Decimal{}, false
	}

	// Whole-amount notation ("12,-" / "12.-") and ranges ("10-20" keeps 10).
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, ",.")
	if s == "" {
		return decimal.Decimal{}, false
	}

	s = normalizeSeparators(s)
	if s == "" || s == "." {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseFloat converts a numeric value found in structured data.
func ParseFloat(v float64) (decimal.Decimal, bool) {
	d := decimal.NewFromFloat(v)
	if !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Format renders an amount with two decimals and a '.' separator, the form
// Parse reads back to the same value.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// normalizeSeparators rewrites s (digits, ',' and '.') into a plain decimal
// literal with '.' as the only separator.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return resolveSingleKind(s, ",")
	case lastDot >= 0:
		return resolveSingleKind(s, ".")
	default:
		return s
	}
}

// resolveSingleKind handles strings that use only one separator character.
func resolveSingleKind(s, sep string) string {
	parts := strings.Split(s, sep)
	last := parts[len(parts)-1]
	head := strings.Join(parts[:len(parts)-1], "")

	if len(parts) == 2 {
		if len(last) == 3 && strings.TrimLeft(head, "0") != "" {
			return head + last
		}
		return head + "." + last
	}

	if len(last) == 1 || len(last) == 2 {
		return head + "." + last
	}
	return head + last
}
