package priceparse

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"19.99", "19.99"},
		{"€ 19,99", "19.99"},
		{"$1,299.99", "1299.99"},
		{"€ 1.299,00", "1299"},
		{"1 299,95 zł", "1299.95"},
		{"EUR 1.234.567,89", "1234567.89"},
		{"1,234,567", "1234567"},
		{"1,299", "1299"},
		{"1.299", "1299"},
		{"0.125", "0.125"},
		{"£0.99", "0.99"},
		{"12,-", "12"},
		{"€ 249.-", "249"},
		{"Price: 42", "42"},
		{"10-20", "10"},
		{",99", "0.99"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := Parse(tc.in)
			require.True(t, ok, "Parse(%q) not found", tc.in)
			want := decimal.RequireFromString(tc.want)
			assert.True(t, got.Equal(want), "Parse(%q) = %s, want %s", tc.in, got, want)
		})
	}
}

func TestParse_NotFound(t *testing.T) {
	for _, in := range []string{"", "   ", "free", "0", "0,00", "-5", "- 12.50", ".", ",-", "€"} {
		_, ok := Parse(in)
		assert.False(t, ok, "Parse(%q) should report not found", in)
	}
}

func TestParse_FormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.01", "1", "9.90", "19.99", "1299", "1299.5", "100000.00"} {
		x := decimal.RequireFromString(s)
		got, ok := Parse(Format(x))
		require.True(t, ok, "Parse(Format(%s))", s)
		assert.True(t, got.Equal(x), "Parse(Format(%s)) = %s", s, got)
	}
}

func TestParseFloat(t *testing.T) {
	got, ok := ParseFloat(24.5)
	require.True(t, ok)
	assert.Equal(t, "24.50", Format(got))

	_, ok = ParseFloat(0)
	assert.False(t, ok)
	_, ok = ParseFloat(-3)
	assert.False(t, ok)
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, "EUR", DetectCurrency("€ 12,99"))
	assert.Equal(t, "USD", DetectCurrency("$5"))
	assert.Equal(t, "USD", DetectCurrency("US$ 5"))
	assert.Equal(t, "GBP", DetectCurrency("£3.50"))
	assert.Equal(t, "CHF", DetectCurrency("CHF 20.-"))
	assert.Equal(t, "", DetectCurrency("12.00"))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "EUR", NormalizeCurrency("EUR"))
	assert.Equal(t, "EUR", NormalizeCurrency("eur"))
	assert.Equal(t, "EUR", NormalizeCurrency("€"))
	assert.Equal(t, "", NormalizeCurrency(" "))
}
