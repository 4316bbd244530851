package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/pricewatch/history/internal/store"
	"github.com/hazyhaar/pricewatch/idgen"
)

const dateLayout = "2006-01-02"

// EventType classifies a commerce event.
type EventType string

const (
	EventSale     EventType = "sale"
	EventSeasonal EventType = "seasonal"
	EventHoliday  EventType = "holiday"
	EventCustom   EventType = "custom"
)

// ErrUnknownEvent is returned when an event name does not exist.
var ErrUnknownEvent = errors.New("history: unknown event")

// Event is a dated commerce event such as "Black Friday 2025".
type Event struct {
	Name   string    `json:"name"`
	Type   EventType `json:"type"`
	Date   time.Time `json:"date"` // UTC midnight
	Year   int       `json:"year"`
	Active bool      `json:"active"`
}

// EventFeed supplies commerce events.
type EventFeed interface {
	// ActiveEvents returns active events in configuration order.
	ActiveEvents(ctx context.Context) ([]Event, error)
	// EventsByBaseName returns every event, active or not, whose base name
	// matches, oldest first.
	EventsByBaseName(ctx context.Context, base string) ([]Event, error)
}

// BaseName strips a trailing year: "Black Friday 2024" → "Black Friday".
func BaseName(name string) string {
	name = strings.TrimSpace(name)
	i := strings.LastIndexByte(name, ' ')
	if i < 0 || len(name)-i-1 != 4 {
		return name
	}
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return name
		}
	}
	return strings.TrimSpace(name[:i])
}

// EventConfig is an event as written in the configuration file.
type EventConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Date   string `yaml:"date"` // 2006-01-02
	Active *bool  `yaml:"active"`
}

// Event validates c.
func (c EventConfig) Event() (Event, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return Event{}, errors.New("history: event without name")
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(c.Date))
	if err != nil {
		return Event{}, fmt.Errorf("history: event %q: bad date %q", name, c.Date)
	}
	typ := EventType(strings.ToLower(strings.TrimSpace(c.Type)))
	switch typ {
	case EventSale, EventSeasonal, EventHoliday, EventCustom:
	case "":
		typ = EventCustom
	default:
		return Event{}, fmt.Errorf("history: event %q: unknown type %q", name, c.Type)
	}
	active := c.Active == nil || *c.Active
	return Event{Name: name, Type: typ, Date: date, Year: date.Year(), Active: active}, nil
}

// StaticFeed serves a fixed list of events; list order is configuration
// order.
type StaticFeed []Event

func (f StaticFeed) ActiveEvents(context.Context) ([]Event, error) {
	var out []Event
	for _, ev := range f {
		if ev.Active {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f StaticFeed) EventsByBaseName(_ context.Context, base string) ([]Event, error) {
	return byBaseName(f, base), nil
}

func byBaseName(events []Event, base string) []Event {
	base = BaseName(base)
	var out []Event
	for _, ev := range events {
		if strings.EqualFold(BaseName(ev.Name), base) {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b Event) int { return a.Date.Compare(b.Date) })
	return out
}

// EventStore keeps events in the commerce_events table.
type EventStore struct {
	st    *store.Store
	newID idgen.Generator
}

// Upsert inserts or updates an event by name. New events go after every
// existing one in configuration order.
func (s *EventStore) Upsert(ctx context.Context, ev Event) error {
	return s.upsert(ctx, ev, -1)
}

func (s *EventStore) upsert(ctx context.Context, ev Event, position int) error {
	if strings.TrimSpace(ev.Name) == "" || ev.Date.IsZero() {
		return errors.New("history: event needs a name and a date")
	}
	if ev.Type == "" {
		ev.Type = EventCustom
	}
	year := ev.Year
	if year == 0 {
		year = ev.Date.Year()
	}
	row := &store.Event{
		ID:       s.newID(),
		Name:     strings.TrimSpace(ev.Name),
		Type:     string(ev.Type),
		Date:     ev.Date.UTC().Format(dateLayout),
		Year:     year,
		Active:   ev.Active,
		Position: position,
	}
	if err := s.st.UpsertEvent(ctx, row); err != nil {
		return fmt.Errorf("history: upsert event %q: %w", ev.Name, err)
	}
	return nil
}

// SeedFromConfig upserts the configured events; their list order becomes
// their configuration order. It returns how many were stored.
func (s *EventStore) SeedFromConfig(ctx context.Context, cfg []EventConfig) (int, error) {
	for i, c := range cfg {
		ev, err := c.Event()
		if err != nil {
			return i, err
		}
		if err := s.upsert(ctx, ev, i); err != nil {
			return i, err
		}
	}
	return len(cfg), nil
}

// SetActive enables or disables an event.
func (s *EventStore) SetActive(ctx context.Context, name string, active bool) error {
	ok, err := s.st.SetEventActive(ctx, name, active)
	if err != nil {
		return fmt.Errorf("history: set event active: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return nil
}

// Get returns an event by name, or nil.
func (s *EventStore) Get(ctx context.Context, name string) (*Event, error) {
	row, err := s.st.GetEvent(ctx, name)
	if err != nil || row == nil {
		return nil, err
	}
	ev, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// List returns every event in configuration order.
func (s *EventStore) List(ctx context.Context) ([]Event, error) {
	return s.list(ctx, false)
}

func (s *EventStore) ActiveEvents(ctx context.Context) ([]Event, error) {
	return s.list(ctx, true)
}

func (s *EventStore) EventsByBaseName(ctx context.Context, base string) ([]Event, error) {
	all, err := s.list(ctx, false)
	if err != nil {
		return nil, err
	}
	return byBaseName(all, base), nil
}

func (s *EventStore) list(ctx context.Context, activeOnly bool) ([]Event, error) {
	rows, err := s.st.Events(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("history: list events: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func fromRow(row *store.Event) (Event, error) {
	date, err := time.Parse(dateLayout, row.Date)
	if err != nil {
		return Event{}, fmt.Errorf("history: event %q: bad stored date %q", row.Name, row.Date)
	}
	return Event{
		Name:   row.Name,
		Type:   EventType(row.Type),
		Date:   date,
		Year:   row.Year,
		Active: row.Active,
	}, nil
}
