// Package selectorstore remembers which selectors work for which retailer
// domain and field, and ranks them so the most reliable strategy is tried
// first on the next scrape.
//
// Scoring is explicit and reproducible:
//
//	successRate = successCount / (successCount + failureCount) * 100   (0 when untested)
//	priority    = floor(successRate * 10)                              (0..1000)
//
// Selectors are ordered by priority, then successRate, then lastUsed, all
// descending, so among equally reliable strategies the one proven most
// recently against the live markup wins. Rows are never deleted.
//
// Updates are atomic per (domain, field, selector): a striped mutex
// serialises writers of the same key inside the process and every update is
// a single SQL statement.
package selectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/idgen"
	"github.com/hazyhaar/pricewatch/internal/keylock"
	"github.com/hazyhaar/pricewatch/selectorstore/internal/store"
)

// Source tells how a selector was first discovered.
type Source string

const (
	SourceCSS    Source = "css"
	SourceVision Source = "ai-vision"
	SourceManual Source = "manual"
)

// ErrUnknownSelector is returned by RecordOutcome for a selector that was
// never learned.
var ErrUnknownSelector = errors.New("selectorstore: unknown selector")

// Store is the selector store. It is safe for concurrent use.
type Store struct {
	st     *store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  idgen.Generator
	locks  keylock.Map
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the selector database at path.
func Open(path string, opts ...Option) (*Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("selectorstore: open: %w", err)
	}
	return newStore(st, opts), nil
}

// New wraps an already open database, applying the schema.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if _, err := db.Exec(store.Schema); err != nil {
		return nil, fmt.Errorf("selectorstore: apply schema: %w", err)
	}
	return newStore(&store.Store{DB: db}, opts), nil
}

func newStore(st *store.Store, opts []Option) *Store {
	s := &Store{
		st:     st,
		logger: slog.Default(),
		now:    time.Now,
		newID:  idgen.Prefixed("sel_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.st.Close()
}

// Score is the ranking function applied by the store.
func Score(successCount, failureCount int) (successRate float64, priority int) {
	total := successCount + failureCount
	if total == 0 {
		return 0, 0
	}
	return float64(successCount) * 100 / float64(total), successCount * 1000 / total
}

// NormalizeDomain lowercases a host and drops a leading "www.".
func NormalizeDomain(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}

// SelectorsFor returns every known selector for (domain, field), best first.
func (s *Store) SelectorsFor(ctx context.Context, domain, field string) ([]*LearnedSelector, error) {
	sels, err := s.st.ListFor(ctx, NormalizeDomain(domain), field)
	if err != nil {
		return nil, fmt.Errorf("selectorstore: selectors for %s/%s: %w", domain, field, err)
	}
	return sels, nil
}

// SelectorsForDomain returns every selector of a domain, grouped by field.
func (s *Store) SelectorsForDomain(ctx context.Context, domain string) ([]*LearnedSelector, error) {
	sels, err := s.st.ListDomain(ctx, NormalizeDomain(domain))
	if err != nil {
		return nil, fmt.Errorf("selectorstore: selectors for %s: %w", domain, err)
	}
	return sels, nil
}

// Get returns one selector, or nil if it was never learned.
func (s *Store) Get(ctx context.Context, domain, field, selector string) (*LearnedSelector, error) {
	sel, err := s.st.Get(ctx, NormalizeDomain(domain), field, selector)
	if err != nil {
		return nil, fmt.Errorf("selectorstore: get: %w", err)
	}
	return sel, nil
}

// RecordOutcome counts one attempt with selector. exampleValue replaces the
// stored example on success when non-empty.
func (s *Store) RecordOutcome(ctx context.Context, domain, field, selector string, succeeded bool, exampleValue string) error {
	domain = NormalizeDomain(domain)
	defer s.locks.Lock(domain, field, selector)()
	return s.recordLocked(ctx, domain, field, selector, succeeded, exampleValue)
}

func (s *Store) recordLocked(ctx context.Context, domain, field, selector string, succeeded bool, example string) error {
	ok, err := s.st.ApplyOutcome(ctx, domain, field, selector, succeeded, example, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("selectorstore: record outcome: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %s %q", ErrUnknownSelector, domain, field, selector)
	}
	return nil
}

// Learn stores a newly discovered selector. A new row starts untested and
// ranks below every selector that has ever succeeded until it earns
// outcomes. Learning a selector that already exists counts as a success for
// it instead of creating a duplicate.
//
// The selector may hold several comma-separated alternatives; it is rejected
// with extract.ErrInvalidSelector only when none of them parses.
func (s *Store) Learn(ctx context.Context, domain, field, selector, exampleValue string, source Source) error {
	selector = strings.TrimSpace(selector)
	if err := validate(selector); err != nil {
		return fmt.Errorf("selectorstore: learn: %w", err)
	}
	if source == "" {
		source = SourceCSS
	}
	domain = NormalizeDomain(domain)

	defer s.locks.Lock(domain, field, selector)()

	created, err := s.st.Insert(ctx, &store.Selector{
		ID:           s.newID(),
		Domain:       domain,
		Field:        field,
		Selector:     selector,
		SelectorType: "css",
		LearnedFrom:  string(source),
		ExampleValue: exampleValue,
		FirstSeen:    s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("selectorstore: learn: %w", err)
	}
	if created {
		s.logger.Info("selectorstore: learned selector",
			"domain", domain, "field", field, "selector", selector, "source", source)
		return nil
	}
	return s.recordLocked(ctx, domain, field, selector, true, exampleValue)
}

// HasSuccessful reports whether any selector of (domain, field) has ever
// succeeded.
func (s *Store) HasSuccessful(ctx context.Context, domain, field string) (bool, error) {
	ok, err := s.st.HasSuccess(ctx, NormalizeDomain(domain), field)
	if err != nil {
		return false, fmt.Errorf("selectorstore: has success: %w", err)
	}
	return ok, nil
}

// Domains lists every domain with learned selectors.
func (s *Store) Domains(ctx context.Context) ([]string, error) {
	return s.st.Domains(ctx)
}

// Leaderboard returns per-domain reliability, best first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	return s.st.Leaderboard(ctx, limit)
}

// DB exposes the underlying database so other stores can share the file.
func (s *Store) DB() *sql.DB {
	return s.st.DB
}

func validate(selector string) error {
	alts := extract.SplitAlternatives(selector)
	if len(alts) == 0 {
		return fmt.Errorf("%w: empty", extract.ErrInvalidSelector)
	}
	var firstErr error
	for _, alt := range alts {
		_, err := extract.ParseSelector(alt)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
