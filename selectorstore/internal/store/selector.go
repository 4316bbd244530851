package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazyhaar/pricewatch/dbopen"
)

// Selector is a learned extraction strategy for one field of one domain.
type Selector struct {
	ID           string  `json:"id"`
	Domain       string  `json:"domain"`
	Field        string  `json:"field"`
	Selector     string  `json:"selector"`
	SelectorType string  `json:"selector_type"` // "css"
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	SuccessRate  float64 `json:"success_rate"` // 0..100
	Priority     int     `json:"priority"`     // 0..1000
	LearnedFrom  string  `json:"learned_from"` // "css", "ai-vision", "manual"
	ExampleValue string  `json:"example_value,omitempty"`
	FirstSeen    int64   `json:"first_seen"`
	LastUsed     int64   `json:"last_used,omitempty"`
	LastSuccess  int64   `json:"last_success,omitempty"`
}

const selectorColumns = `id, domain, field, selector, selector_type, success_count, failure_count,
	success_rate, priority, learned_from, example_value, first_seen, last_used, last_success`

// ListFor returns the selectors of (domain, field) in rank order.
func (s *Store) ListFor(ctx context.Context, domain, field string) ([]*Selector, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+selectorColumns+`
		FROM learned_selectors
		WHERE domain = ? AND field = ?
		ORDER BY priority DESC, success_rate DESC, last_used DESC, first_seen ASC`, domain, field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSelectors(rows)
}

// ListDomain returns every selector of a domain, grouped by field.
func (s *Store) ListDomain(ctx context.Context, domain string) ([]*Selector, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+selectorColumns+`
		FROM learned_selectors
		WHERE domain = ?
		ORDER BY field, priority DESC, success_rate DESC, last_used DESC, first_seen ASC`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSelectors(rows)
}

// Get returns one selector, or nil if it is unknown.
func (s *Store) Get(ctx context.Context, domain, field, selector string) (*Selector, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+selectorColumns+`
		FROM learned_selectors
		WHERE domain = ? AND field = ? AND selector = ?`, domain, field, selector)
	sel, err := scanSelector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sel, err
}

// Insert adds sel unless (domain, field, selector) already exists. It reports
// whether a row was created.
func (s *Store) Insert(ctx context.Context, sel *Selector) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO learned_selectors
			(id, domain, field, selector, selector_type, learned_from, example_value, first_seen)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (domain, field, selector) DO NOTHING`,
		sel.ID, sel.Domain, sel.Field, sel.Selector, sel.SelectorType,
		sel.LearnedFrom, sel.ExampleValue, sel.FirstSeen,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyOutcome counts one attempt against a selector and rescores it in a
// single statement: successRate = s/(s+f)*100, priority = s*1000/(s+f) with
// integer division. It reports whether the selector exists.
func (s *Store) ApplyOutcome(ctx context.Context, domain, field, selector string, succeeded bool, example string, now int64) (bool, error) {
	var inc int
	if succeeded {
		inc = 1
	}
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE learned_selectors SET
			success_count = success_count + ?,
			failure_count = failure_count + (1 - ?),
			success_rate  = (success_count + ?) * 100.0 / (success_count + failure_count + 1),
			priority      = ((success_count + ?) * 1000) / (success_count + failure_count + 1),
			last_used     = ?,
			last_success  = CASE WHEN ? = 1 THEN ? ELSE last_success END,
			example_value = CASE WHEN ? = 1 AND ? <> '' THEN ? ELSE example_value END
		WHERE domain = ? AND field = ? AND selector = ?`,
		inc, inc, inc, inc,
		now,
		inc, now,
		inc, example, example,
		domain, field, selector,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HasSuccess reports whether any selector of (domain, field) ever succeeded.
func (s *Store) HasSuccess(ctx context.Context, domain, field string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM learned_selectors
		WHERE domain = ? AND field = ? AND success_count > 0`, domain, field).Scan(&n)
	return n > 0, err
}

// Domains lists every domain with at least one selector.
func (s *Store) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT domain FROM learned_selectors ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LeaderboardEntry aggregates selector reliability per domain.
type LeaderboardEntry struct {
	Domain         string  `json:"domain"`
	Selectors      int     `json:"selectors"`
	Fields         int     `json:"fields"`
	AvgSuccessRate float64 `json:"avg_success_rate"` // over tested selectors
	Successes      int     `json:"successes"`
	Failures       int     `json:"failures"`
	VisionLearned  int     `json:"vision_learned"`
	LastUsed       int64   `json:"last_used"`
}

// Leaderboard ranks domains by the average success rate of their tested
// selectors.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	query := `
		SELECT domain,
		       COUNT(*),
		       COUNT(DISTINCT field),
		       COALESCE(AVG(CASE WHEN success_count + failure_count > 0 THEN success_rate END), 0),
		       SUM(success_count),
		       SUM(failure_count),
		       SUM(CASE WHEN learned_from = 'ai-vision' THEN 1 ELSE 0 END),
		       MAX(last_used)
		FROM learned_selectors
		GROUP BY domain
		ORDER BY 4 DESC, 5 DESC, domain`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LeaderboardEntry
	for rows.Next() {
		e := &LeaderboardEntry{}
		if err := rows.Scan(&e.Domain, &e.Selectors, &e.Fields, &e.AvgSuccessRate,
			&e.Successes, &e.Failures, &e.VisionLearned, &e.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSelector(row scanner) (*Selector, error) {
	sel := &Selector{}
	err := row.Scan(
		&sel.ID, &sel.Domain, &sel.Field, &sel.Selector, &sel.SelectorType,
		&sel.SuccessCount, &sel.FailureCount, &sel.SuccessRate, &sel.Priority,
		&sel.LearnedFrom, &sel.ExampleValue, &sel.FirstSeen, &sel.LastUsed, &sel.LastSuccess,
	)
	if err != nil {
		return nil, err
	}
	return sel, nil
}

func scanSelectors(rows *sql.Rows) ([]*Selector, error) {
	var out []*Selector
	for rows.Next() {
		sel, err := scanSelector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}
