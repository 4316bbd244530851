package history

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification is the direction of a price series.
type Classification string

const (
	Increasing       Classification = "increasing"
	Decreasing       Classification = "decreasing"
	Stable           Classification = "stable"
	InsufficientData Classification = "insufficient_data"
)

// DefaultTrendDays is the window used when none is given.
const DefaultTrendDays = 30

var (
	upperBand = decimal.RequireFromString("1.05")
	lowerBand = decimal.RequireFromString("0.95")
)

// Trend summarises a series over a window.
type Trend struct {
	ProductID      string          `json:"product_id"`
	Retailer       string          `json:"retailer"`
	WindowDays     int             `json:"window_days"`
	Points         int             `json:"points"`
	Classification Classification  `json:"classification"`
	Current        decimal.Decimal `json:"current"`
	Mean           decimal.Decimal `json:"mean"`
	Min            decimal.Decimal `json:"min"`
	Max            decimal.Decimal `json:"max"`
	Volatility     float64         `json:"volatility"` // (max-min)/mean
}

// Trend classifies the series over the last windowDays: increasing when the
// current price is above the window mean by more than 5%, decreasing when
// below it by more than 5%, stable otherwise. Fewer than two points give
// InsufficientData rather than a guess.
func (r *Recorder) Trend(ctx context.Context, productID, retailer string, windowDays int) (*Trend, error) {
	if windowDays <= 0 {
		windowDays = DefaultTrendDays
	}
	since := r.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	entries, err := r.st.Range(ctx, productID, retailer, since.UnixMilli(), 0)
	if err != nil {
		return nil, fmt.Errorf("history: trend: %w", err)
	}

	t := &Trend{ProductID: productID, Retailer: retailer, WindowDays: windowDays, Points: len(entries)}
	if len(entries) > 0 {
		t.Current = entries[len(entries)-1].Price
	}
	if len(entries) < 2 {
		t.Classification = InsufficientData
		return t, nil
	}

	sum := decimal.Zero
	t.Min, t.Max = entries[0].Price, entries[0].Price
	for _, e := range entries {
		sum = sum.Add(e.Price)
		t.Min = decimal.Min(t.Min, e.Price)
		t.Max = decimal.Max(t.Max, e.Price)
	}
	t.Mean = sum.DivRound(decimal.NewFromInt(int64(len(entries))), 4)
	t.Volatility = t.Max.Sub(t.Min).DivRound(t.Mean, 4).InexactFloat64()

	switch {
	case t.Current.GreaterThan(t.Mean.Mul(upperBand)):
		t.Classification = Increasing
	case t.Current.LessThan(t.Mean.Mul(lowerBand)):
		t.Classification = Decreasing
	default:
		t.Classification = Stable
	}
	return t, nil
}
