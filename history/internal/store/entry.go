package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/pricewatch/dbopen"
)

// Entry is one persisted price point.
type Entry struct {
	ID                 string              `json:"id"`
	ProductID          string              `json:"product_id"`
	Retailer           string              `json:"retailer"`
	URL                string              `json:"url,omitempty"`
	Price              decimal.Decimal     `json:"price"`
	OriginalPrice      decimal.NullDecimal `json:"original_price"`
	PriceChange        decimal.NullDecimal `json:"price_change"`
	PriceChangePercent *float64            `json:"price_change_percent,omitempty"`
	InStock            bool                `json:"in_stock"`
	Currency           string              `json:"currency,omitempty"`
	PriceEvent         string              `json:"price_event,omitempty"`
	ExtractedBy        string              `json:"extracted_by,omitempty"`
	RecordedAt         int64               `json:"recorded_at"` // unix ms
}

const entryColumns = `id, product_id, retailer, url, price, original_price, price_change,
	price_change_percent, in_stock, currency, price_event, extracted_by, recorded_at`

// Insert writes e.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO price_history (`+entryColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ProductID, e.Retailer, e.URL, e.Price.String(), e.OriginalPrice, e.PriceChange,
		e.PriceChangePercent, e.InStock, e.Currency, e.PriceEvent, e.ExtractedBy, e.RecordedAt,
	)
	return err
}

// Latest returns the newest entry of a series, or nil if there is none.
func (s *Store) Latest(ctx context.Context, productID, retailer string) (*Entry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM price_history
		WHERE product_id = ? AND retailer = ?
		ORDER BY recorded_at DESC LIMIT 1`, productID, retailer)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Range returns the entries of a series with from <= recorded_at < to,
// oldest first. A zero to means no upper bound.
func (s *Store) Range(ctx context.Context, productID, retailer string, from, to int64) ([]*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM price_history
		WHERE product_id = ? AND retailer = ? AND recorded_at >= ?`
	args := []any{productID, retailer, from}
	if to > 0 {
		query += ` AND recorded_at < ?`
		args = append(args, to)
	}
	query += ` ORDER BY recorded_at ASC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Series lists every (product, retailer) pair with history.
func (s *Store) Series(ctx context.Context) ([][2]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT product_id, retailer FROM price_history ORDER BY product_id, retailer`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	e := &Entry{}
	var price string
	err := sc.Scan(&e.ID, &e.ProductID, &e.Retailer, &e.URL, &price, &e.OriginalPrice, &e.PriceChange,
		&e.PriceChangePercent, &e.InStock, &e.Currency, &e.PriceEvent, &e.ExtractedBy, &e.RecordedAt)
	if err != nil {
		return nil, err
	}
	if e.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return e, nil
}
