package priceparse

import "strings"

// currencyMarkers maps symbols and codes seen in price text to ISO 4217
// codes. Multi-character markers come first so "US$" wins over "$".
var currencyMarkers = []struct {
	marker string
	code   string
}{
	{"EUR", "EUR"},
	{"USD", "USD"},
	{"US$", "USD"},
	{"GBP", "GBP"},
	{"CHF", "CHF"},
	{"SEK", "SEK"},
	{"DKK", "DKK"},
	{"NOK", "NOK"},
	{"PLN", "PLN"},
	{"JPY", "JPY"},
	{"zł", "PLN"},
	{"kr", "SEK"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"$", "USD"},
}

// DetectCurrency returns the ISO code suggested by a raw price fragment, or
// "" when the text carries no recognisable marker.
func DetectCurrency(text string) string {
	upper := strings.ToUpper(text)
	for _, m := range currencyMarkers {
		if strings.Contains(text, m.marker) || strings.Contains(upper, m.marker) {
			return m.code
		}
	}
	return ""
}

// NormalizeCurrency upper-cases a currency code taken from structured data
// and maps bare symbols to their code.
func NormalizeCurrency(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if isISOCode(code) {
		return code
	}
	if c := DetectCurrency(code); c != "" {
		return c
	}
	return strings.ToUpper(code)
}

func isISOCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
