// Package history keeps the price time series of every (product, retailer)
// pair and derives trends from it.
//
// Writes are suppressed: a new entry is stored only when there is no prior
// entry, the price moved, or the latest entry is older than the staleness
// threshold (24h by default). Each stored entry carries the delta against
// the previous one and the name of a commerce event running within the
// event window (±3 days by default), first match in configuration order.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/pricewatch/history/internal/store"
	"github.com/hazyhaar/pricewatch/idgen"
	"github.com/hazyhaar/pricewatch/internal/keylock"
)

const (
	DefaultStaleness   = 24 * time.Hour
	DefaultEventWindow = 3 * 24 * time.Hour
)

var (
	// ErrOutOfOrder rejects an observation not newer than the latest entry
	// of its series.
	ErrOutOfOrder = errors.New("history: observation older than latest entry")
	// ErrInvalidObservation rejects observations missing identity or price.
	ErrInvalidObservation = errors.New("history: invalid observation")
)

// Observation is a price reading to record.
type Observation struct {
	ProductID     string
	Retailer      string
	URL           string
	Price         decimal.Decimal
	OriginalPrice decimal.NullDecimal
	InStock       bool
	Currency      string
	ExtractedBy   string
	// At is when the price was seen; zero means now.
	At time.Time
}

// Recorder writes and reads price history. It is safe for concurrent use;
// recordings of the same series are serialised.
type Recorder struct {
	st        *store.Store
	events    EventFeed
	logger    *slog.Logger
	now       func() time.Time
	newID     idgen.Generator
	staleness time.Duration
	window    time.Duration
	locks     keylock.Map
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithEventFeed replaces the SQLite event table as the event source.
func WithEventFeed(f EventFeed) Option {
	return func(r *Recorder) { r.events = f }
}

// WithStaleness sets the age after which an unchanged price is written again.
func WithStaleness(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.staleness = d
		}
	}
}

// WithEventWindow sets how far from an event's date a price is tagged with it.
func WithEventWindow(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.window = d
		}
	}
}

// Open opens the history database at path.
func Open(path string, opts ...Option) (*Recorder, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	return newRecorder(st, opts), nil
}

// New wraps an already open database, applying the schema.
func New(db *sql.DB, opts ...Option) (*Recorder, error) {
	if _, err := db.Exec(store.Schema); err != nil {
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return newRecorder(&store.Store{DB: db}, opts), nil
}

func newRecorder(st *store.Store, opts []Option) *Recorder {
	r := &Recorder{
		st:        st,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     idgen.Prefixed("ph_", idgen.Default),
		staleness: DefaultStaleness,
		window:    DefaultEventWindow,
	}
	for _, o := range opts {
		o(r)
	}
	if r.events == nil {
		r.events = &EventStore{st: st, newID: idgen.Prefixed("ev_", idgen.Default)}
	}
	return r
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.st.Close()
}

// Events returns the event store sharing the history database.
func (r *Recorder) Events() *EventStore {
	return &EventStore{st: r.st, newID: idgen.Prefixed("ev_", idgen.Default)}
}

// RecordPrice records an observation. It returns the entry as computed,
// with delta and event tag, and whether it was written. A suppressed entry
// has no ID. Store failures are returned, never swallowed.
func (r *Recorder) RecordPrice(ctx context.Context, obs Observation) (*Entry, bool, error) {
	obs.ProductID = strings.TrimSpace(obs.ProductID)
	obs.Retailer = strings.TrimSpace(obs.Retailer)
	if obs.ProductID == "" || obs.Retailer == "" {
		return nil, false, fmt.Errorf("%w: product and retailer are required", ErrInvalidObservation)
	}
	if !obs.Price.IsPositive() {
		return nil, false, fmt.Errorf("%w: price must be positive", ErrInvalidObservation)
	}
	at := obs.At
	if at.IsZero() {
		at = r.now()
	}
	at = at.Truncate(time.Millisecond)

	defer r.locks.Lock(obs.ProductID, obs.Retailer)()

	prev, err := r.st.Latest(ctx, obs.ProductID, obs.Retailer)
	if err != nil {
		return nil, false, fmt.Errorf("history: latest: %w", err)
	}
	if prev != nil && at.UnixMilli() <= prev.RecordedAt {
		return nil, false, fmt.Errorf("%w: %s/%s at %s", ErrOutOfOrder, obs.ProductID, obs.Retailer, at.Format(time.RFC3339))
	}

	e := &Entry{
		ProductID:     obs.ProductID,
		Retailer:      obs.Retailer,
		URL:           obs.URL,
		Price:         obs.Price,
		OriginalPrice: obs.OriginalPrice,
		InStock:       obs.InStock,
		Currency:      obs.Currency,
		ExtractedBy:   obs.ExtractedBy,
		RecordedAt:    at.UnixMilli(),
	}
	if prev != nil {
		change := obs.Price.Sub(prev.Price)
		e.PriceChange = decimal.NullDecimal{Decimal: change, Valid: true}
		pct := change.Div(prev.Price).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		e.PriceChangePercent = &pct
	}
	if e.PriceEvent, err = r.eventAt(ctx, at); err != nil {
		return nil, false, err
	}

	if prev != nil && obs.Price.Equal(prev.Price) && at.Sub(time.UnixMilli(prev.RecordedAt)) <= r.staleness {
		r.logger.Debug("history: suppressed unchanged price",
			"product", obs.ProductID, "retailer", obs.Retailer, "price", obs.Price.String())
		return e, false, nil
	}

	e.ID = r.newID()
	if err := r.st.Insert(ctx, e); err != nil {
		return nil, false, fmt.Errorf("history: insert: %w", err)
	}
	r.logger.Info("history: price recorded",
		"product", obs.ProductID, "retailer", obs.Retailer, "price", obs.Price.String(),
		"change", e.PriceChange.Decimal.String(), "event", e.PriceEvent)
	return e, true, nil
}

// eventAt returns the first active event, in configuration order, whose
// date lies within the window of at.
func (r *Recorder) eventAt(ctx context.Context, at time.Time) (string, error) {
	events, err := r.events.ActiveEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("history: active events: %w", err)
	}
	for _, ev := range events {
		if within(at, ev.Date, r.window) {
			return ev.Name, nil
		}
	}
	return "", nil
}

// within compares calendar days in UTC, so an event dated the 27th covers
// the whole of the 24th through the 30th with a three-day window.
func within(at, date time.Time, window time.Duration) bool {
	day := at.UTC().Truncate(24 * time.Hour)
	d := day.Sub(date.UTC().Truncate(24 * time.Hour))
	if d < 0 {
		d = -d
	}
	return d <= window
}

// Latest returns the newest entry of a series, or nil.
func (r *Recorder) Latest(ctx context.Context, productID, retailer string) (*Entry, error) {
	e, err := r.st.Latest(ctx, productID, retailer)
	if err != nil {
		return nil, fmt.Errorf("history: latest: %w", err)
	}
	return e, nil
}

// List returns the entries of a series recorded at or after since, oldest
// first.
func (r *Recorder) List(ctx context.Context, productID, retailer string, since time.Time) ([]*Entry, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	}
	entries, err := r.st.Range(ctx, productID, retailer, from, 0)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return entries, nil
}

// Series lists every tracked (product, retailer) pair.
func (r *Recorder) Series(ctx context.Context) ([][2]string, error) {
	s, err := r.st.Series(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: series: %w", err)
	}
	return s, nil
}

// DB exposes the underlying database.
func (r *Recorder) DB() *sql.DB {
	return r.st.DB
}
