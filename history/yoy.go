package history

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// YearComparison is the lowest price seen around one year's edition of an
// event.
type YearComparison struct {
	Year      int             `json:"year"`
	Event     string          `json:"event"`
	EventDate time.Time       `json:"event_date"`
	MinPrice  decimal.Decimal `json:"min_price"`
	MinAt     time.Time       `json:"min_at"`
	Points    int             `json:"points"`
	// Change against the previous row, absent on the first.
	ChangeFromPrevious decimal.NullDecimal `json:"change_from_previous"`
	ChangePercent      *float64            `json:"change_percent,omitempty"`
}

// YearOverYear compares every edition of an event sharing eventName's base
// name ("Black Friday 2025" and "Black Friday" both match "Black Friday
// 2024"). For each edition it takes the minimum price recorded within the
// event window; editions without data are left out. Rows are ordered by
// event date.
func (r *Recorder) YearOverYear(ctx context.Context, productID, retailer, eventName string) ([]YearComparison, error) {
	events, err := r.events.EventsByBaseName(ctx, BaseName(eventName))
	if err != nil {
		return nil, fmt.Errorf("history: year over year: %w", err)
	}

	var out []YearComparison
	for _, ev := range events {
		day := ev.Date.UTC().Truncate(24 * time.Hour)
		from := day.Add(-r.window)
		to := day.Add(r.window + 24*time.Hour)
		entries, err := r.st.Range(ctx, productID, retailer, from.UnixMilli(), to.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("history: year over year: %w", err)
		}
		if len(entries) == 0 {
			continue
		}
		low := entries[0]
		for _, e := range entries[1:] {
			if e.Price.LessThan(low.Price) {
				low = e
			}
		}
		year := ev.Year
		if year == 0 {
			year = ev.Date.Year()
		}
		row := YearComparison{
			Year:      year,
			Event:     ev.Name,
			EventDate: ev.Date,
			MinPrice:  low.Price,
			MinAt:     time.UnixMilli(low.RecordedAt).UTC(),
			Points:    len(entries),
		}
		if n := len(out); n > 0 {
			prev := out[n-1].MinPrice
			change := low.Price.Sub(prev)
			row.ChangeFromPrevious = decimal.NullDecimal{Decimal: change, Valid: true}
			pct := change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
			row.ChangePercent = &pct
		}
		out = append(out, row)
	}
	return out, nil
}
