package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazyhaar/pricewatch/dbopen"
)

// Event is a commerce event row. Date is "2006-01-02".
type Event struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Date     string `json:"date"`
	Year     int    `json:"year"`
	Active   bool   `json:"active"`
	Position int    `json:"position"`
}

const eventColumns = `id, name, type, date, year, active, position`

// UpsertEvent inserts ev or updates the row with the same name. A negative
// position appends a new event after every existing one; an existing event
// keeps its position unless a non-negative one is given.
func (s *Store) UpsertEvent(ctx context.Context, ev *Event) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		pos := ev.Position
		if pos < 0 {
			err := tx.QueryRowContext(ctx, `
				SELECT COALESCE(
					(SELECT position FROM commerce_events WHERE name = ?),
					(SELECT COALESCE(MAX(position), -1) + 1 FROM commerce_events))`, ev.Name).Scan(&pos)
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commerce_events (`+eventColumns+`)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT (name) DO UPDATE SET
				type = excluded.type,
				date = excluded.date,
				year = excluded.year,
				active = excluded.active,
				position = excluded.position`,
			ev.ID, ev.Name, ev.Type, ev.Date, ev.Year, ev.Active, pos)
		if err == nil {
			ev.Position = pos
		}
		return err
	})
}

// SetEventActive flips the active flag. It reports whether the event exists.
func (s *Store) SetEventActive(ctx context.Context, name string, active bool) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `UPDATE commerce_events SET active = ? WHERE name = ?`, active, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// GetEvent returns an event by name, or nil.
func (s *Store) GetEvent(ctx context.Context, name string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM commerce_events WHERE name = ?`, name)
	ev := &Event{}
	err := row.Scan(&ev.ID, &ev.Name, &ev.Type, &ev.Date, &ev.Year, &ev.Active, &ev.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Events lists events in configuration order, optionally active ones only.
func (s *Store) Events(ctx context.Context, activeOnly bool) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM commerce_events`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY position, name`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Type, &ev.Date, &ev.Year, &ev.Active, &ev.Position); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
