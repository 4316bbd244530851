package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/pricewatch/dbopen"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd, h int) time.Time {
	return time.Date(y, m, dd, h, 0, 0, 0, time.UTC)
}

func testRecorder(t *testing.T, c *clock, opts ...Option) *Recorder {
	t.Helper()
	r, err := New(dbopen.OpenMemory(t), append([]Option{WithClock(c.Now)}, opts...)...)
	require.NoError(t, err)
	return r
}

func obs(product, price string) Observation {
	return Observation{ProductID: product, Retailer: "bol.com", Price: d(price), InStock: true, Currency: "EUR"}
}

func rows(t *testing.T, r *Recorder, product string) []*Entry {
	t.Helper()
	entries, err := r.List(context.Background(), product, "bol.com", time.Time{})
	require.NoError(t, err)
	return entries
}

func TestRecordPrice_UnchangedWithinStalenessWritesOnce(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: day(2026, 3, 2, 10)}
	r := testRecorder(t, c, WithEventFeed(StaticFeed(nil)))

	first, wrote, err := r.RecordPrice(ctx, obs("airfryer-xxl", "249.99"))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.PriceChange.Valid)
	assert.Nil(t, first.PriceChangePercent)

	c.advance(2 * time.Hour)
	second, wrote, err := r.RecordPrice(ctx, obs("airfryer-xxl", "249.99"))
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Empty(t, second.ID)
	assert.True(t, second.PriceChange.Decimal.IsZero())

	assert.Len(t, rows(t, r, "airfryer-xxl"), 1)
}

func TestRecordPrice_ChangeWritesExactDelta(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: day(2026, 3, 2, 10)}
	r := testRecorder(t, c, WithEventFeed(StaticFeed(nil)))

	_, _, err := r.RecordPrice(ctx, obs("kettle", "19.99"))
	require.NoError(t, err)
	c.advance(time.Hour)
	e, wrote, err := r.RecordPrice(ctx, obs("kettle", "17.49"))
	require.NoError(t, err)
	assert.True(t, wrote)

	require.True(t, e.PriceChange.Valid)
	assert.True(t, e.PriceChange.Decimal.Equal(d("-2.50")), e.PriceChange.Decimal.String())
	require.NotNil(t, e.PriceChangePercent)
	assert.InDelta(t, -12.51, *e.PriceChangePercent, 1e-9)

	stored := rows(t, r, "kettle")
	require.Len(t, stored, 2)
	assert.True(t, stored[1].Price.Equal(d("17.49")))
	assert.True(t, stored[1].PriceChange.Decimal.Equal(d("-2.5")))
	assert.Equal(t, "EUR", stored[1].Currency)
}

func TestRecordPrice_StalenessOverride(t *testing.T) {
	ctx := context.Background()
	t0 := day(2026, 3, 2, 10)
	r := testRecorder(t, &clock{t: t0}, WithEventFeed(StaticFeed(nil)))

	o := obs("toaster", "39.00")
	o.At = t0
	_, wrote, err := r.RecordPrice(ctx, o)
	require.NoError(t, err)
	require.True(t, wrote)

	o.At = t0.Add(24 * time.Hour)
	_, wrote, err = r.RecordPrice(ctx, o)
	require.NoError(t, err)
	assert.False(t, wrote, "exactly the threshold is not stale yet")

	o.At = t0.Add(25 * time.Hour)
	_, wrote, err = r.RecordPrice(ctx, o)
	require.NoError(t, err)
	assert.True(t, wrote)

	assert.Len(t, rows(t, r, "toaster"), 2)
}

func TestRecordPrice_OutOfOrder(t *testing.T) {
	ctx := context.Background()
	t0 := day(2026, 3, 2, 10)
	r := testRecorder(t, &clock{t: t0}, WithEventFeed(StaticFeed(nil)))

	o := obs("mixer", "89.00")
	o.At = t0
	_, _, err := r.RecordPrice(ctx, o)
	require.NoError(t, err)

	for _, at := range []time.Time{t0, t0.Add(-time.Hour)} {
		o := obs("mixer", "79.00")
		o.At = at
		_, _, err := r.RecordPrice(ctx, o)
		assert.ErrorIs(t, err, ErrOutOfOrder)
	}
	assert.Len(t, rows(t, r, "mixer"), 1)
}

func TestRecordPrice_Invalid(t *testing.T) {
	r := testRecorder(t, &clock{t: day(2026, 3, 2, 10)}, WithEventFeed(StaticFeed(nil)))
	for _, o := range []Observation{
		{Retailer: "bol.com", Price: d("1")},
		{ProductID: "x", Price: d("1")},
		{ProductID: "x", Retailer: "bol.com"},
		{ProductID: "x", Retailer: "bol.com", Price: d("-3")},
	} {
		_, _, err := r.RecordPrice(context.Background(), o)
		assert.ErrorIs(t, err, ErrInvalidObservation)
	}
}

func TestRecordPrice_EventWindow(t *testing.T) {
	feed := StaticFeed{{Name: "Black Friday 2026", Type: EventSale, Date: day(2026, 11, 27, 0), Year: 2026, Active: true}}
	cases := []struct {
		at   time.Time
		want string
	}{
		{day(2026, 11, 23, 12), ""},
		{day(2026, 11, 24, 0), "Black Friday 2026"},
		{day(2026, 11, 27, 15), "Black Friday 2026"},
		{day(2026, 11, 30, 23), "Black Friday 2026"},
		{day(2026, 12, 1, 0), ""},
	}
	r := testRecorder(t, &clock{t: day(2026, 11, 1, 0)}, WithEventFeed(feed))
	for i, tc := range cases {
		o := obs("tv-55", "599.00")
		o.ProductID = o.ProductID + "-" + string(rune('a'+i))
		o.At = tc.at
		e, _, err := r.RecordPrice(context.Background(), o)
		require.NoError(t, err)
		assert.Equal(t, tc.want, e.PriceEvent, tc.at)
	}
}

func TestRecordPrice_OverlappingEventsFirstConfiguredWins(t *testing.T) {
	ctx := context.Background()
	r := testRecorder(t, &clock{t: day(2026, 11, 28, 9)})
	events := r.Events()
	n, err := events.SeedFromConfig(ctx, []EventConfig{
		{Name: "Cyber Monday 2026", Type: "sale", Date: "2026-11-30"},
		{Name: "Black Friday 2026", Type: "sale", Date: "2026-11-27"},
		{Name: "Singles Day 2026", Type: "sale", Date: "2026-11-11"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	e, _, err := r.RecordPrice(ctx, obs("headphones", "199.00"))
	require.NoError(t, err)
	assert.Equal(t, "Cyber Monday 2026", e.PriceEvent)

	require.NoError(t, events.SetActive(ctx, "Cyber Monday 2026", false))
	e, _, err = r.RecordPrice(ctx, obs("speaker", "99.00"))
	require.NoError(t, err)
	assert.Equal(t, "Black Friday 2026", e.PriceEvent)

	assert.ErrorIs(t, events.SetActive(ctx, "Prime Day 2026", true), ErrUnknownEvent)
}

func TestTrend(t *testing.T) {
	ctx := context.Background()
	t0 := day(2026, 5, 1, 12)
	c := &clock{t: t0.Add(7 * 24 * time.Hour)}
	r := testRecorder(t, c, WithEventFeed(StaticFeed(nil)))

	series := func(product string, prices ...string) {
		for i, p := range prices {
			o := obs(product, p)
			o.At = t0.Add(time.Duration(i*2) * 24 * time.Hour)
			_, wrote, err := r.RecordPrice(ctx, o)
			require.NoError(t, err)
			require.True(t, wrote)
		}
	}
	series("up", "100", "100", "100", "120")
	series("down", "100", "100", "100", "80")
	series("flat", "100", "100", "100", "102")
	series("single", "100")

	up, err := r.Trend(ctx, "up", "bol.com", 30)
	require.NoError(t, err)
	assert.Equal(t, Increasing, up.Classification)
	assert.Equal(t, 4, up.Points)
	assert.True(t, up.Mean.Equal(d("105")), up.Mean.String())
	assert.True(t, up.Min.Equal(d("100")))
	assert.True(t, up.Max.Equal(d("120")))
	assert.InDelta(t, 0.1905, up.Volatility, 1e-9)

	down, err := r.Trend(ctx, "down", "bol.com", 30)
	require.NoError(t, err)
	assert.Equal(t, Decreasing, down.Classification)

	flat, err := r.Trend(ctx, "flat", "bol.com", 30)
	require.NoError(t, err)
	assert.Equal(t, Stable, flat.Classification)

	single, err := r.Trend(ctx, "single", "bol.com", 30)
	require.NoError(t, err)
	assert.Equal(t, InsufficientData, single.Classification)
	assert.Equal(t, 1, single.Points)
	assert.True(t, single.Current.Equal(d("100")))

	none, err := r.Trend(ctx, "unknown", "bol.com", 0)
	require.NoError(t, err)
	assert.Equal(t, InsufficientData, none.Classification)
	assert.Equal(t, DefaultTrendDays, none.WindowDays)

	// Only days 4 and 6 fall in a three-day window ending on day 7.
	recent, err := r.Trend(ctx, "up", "bol.com", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, recent.Points)
	assert.True(t, recent.Mean.Equal(d("110")), recent.Mean.String())
	assert.Equal(t, Increasing, recent.Classification)
}

func TestYearOverYear(t *testing.T) {
	ctx := context.Background()
	feed := StaticFeed{
		{Name: "Black Friday 2023", Date: day(2023, 11, 24, 0), Year: 2023, Active: false},
		{Name: "Black Friday 2025", Date: day(2025, 11, 28, 0), Year: 2025, Active: true},
		{Name: "Cyber Monday 2025", Date: day(2025, 12, 1, 0), Year: 2025, Active: true},
		{Name: "Black Friday 2024", Date: day(2024, 11, 29, 0), Year: 2024, Active: false},
	}
	r := testRecorder(t, &clock{t: day(2026, 1, 10, 0)}, WithEventFeed(feed))

	for _, p := range []struct {
		at    time.Time
		price string
	}{
		{day(2024, 11, 20, 12), "300"},
		{day(2024, 11, 27, 12), "270"},
		{day(2024, 11, 29, 12), "250"},
		{day(2024, 12, 2, 12), "260"},
		{day(2025, 11, 26, 12), "240"},
		{day(2025, 11, 28, 12), "230"},
		{day(2025, 12, 5, 12), "210"},
	} {
		o := obs("console", p.price)
		o.At = p.at
		_, _, err := r.RecordPrice(ctx, o)
		require.NoError(t, err)
	}

	got, err := r.YearOverYear(ctx, "console", "bol.com", "Black Friday 2026")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 2024, got[0].Year)
	assert.Equal(t, "Black Friday 2024", got[0].Event)
	assert.True(t, got[0].MinPrice.Equal(d("250")))
	assert.Equal(t, day(2024, 11, 29, 12), got[0].MinAt)
	assert.Equal(t, 3, got[0].Points)
	assert.False(t, got[0].ChangeFromPrevious.Valid)

	assert.Equal(t, 2025, got[1].Year)
	assert.True(t, got[1].MinPrice.Equal(d("230")))
	assert.Equal(t, 2, got[1].Points)
	require.True(t, got[1].ChangeFromPrevious.Valid)
	assert.True(t, got[1].ChangeFromPrevious.Decimal.Equal(d("-20")))
	require.NotNil(t, got[1].ChangePercent)
	assert.InDelta(t, -8.0, *got[1].ChangePercent, 1e-9)
}

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"Black Friday 2024":   "Black Friday",
		"Prime Day":           "Prime Day",
		"Sale 24":             "Sale 24",
		"2024":                "2024",
		" Summer Sale  2025 ": "Summer Sale",
		"Boxing Day 20x5":     "Boxing Day 20x5",
	}
	for in, want := range cases {
		assert.Equal(t, want, BaseName(in), in)
	}
}

func TestEventConfig(t *testing.T) {
	ev, err := EventConfig{Name: "Black Friday 2026", Date: "2026-11-27"}.Event()
	require.NoError(t, err)
	assert.Equal(t, EventCustom, ev.Type)
	assert.True(t, ev.Active)
	assert.Equal(t, 2026, ev.Year)

	off := false
	ev, err = EventConfig{Name: "Koningsdag 2026", Type: "Holiday", Date: "2026-04-27", Active: &off}.Event()
	require.NoError(t, err)
	assert.Equal(t, EventHoliday, ev.Type)
	assert.False(t, ev.Active)

	for _, bad := range []EventConfig{
		{Date: "2026-11-27"},
		{Name: "x", Date: "27/11/2026"},
		{Name: "x", Date: "2026-11-27", Type: "flash"},
	} {
		_, err := bad.Event()
		assert.Error(t, err, bad)
	}
}

func TestEventStore_UpsertKeepsOrder(t *testing.T) {
	ctx := context.Background()
	r := testRecorder(t, &clock{t: day(2026, 1, 1, 0)})
	events := r.Events()

	require.NoError(t, events.Upsert(ctx, Event{Name: "Black Friday 2026", Type: EventSale, Date: day(2026, 11, 27, 0), Active: true}))
	require.NoError(t, events.Upsert(ctx, Event{Name: "Prime Day 2026", Type: EventSale, Date: day(2026, 7, 14, 0), Active: true}))
	require.NoError(t, events.Upsert(ctx, Event{Name: "Black Friday 2026", Type: EventSale, Date: day(2026, 11, 28, 0), Active: true}))

	all, err := events.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, ev := range all {
		names = append(names, ev.Name)
	}
	if diff := cmp.Diff([]string{"Black Friday 2026", "Prime Day 2026"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, day(2026, 11, 28, 0), all[0].Date)

	got, err := events.Get(ctx, "Prime Day 2026")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year)

	missing, err := events.Get(ctx, "Singles Day 2026")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byBase, err := events.EventsByBaseName(ctx, "black friday")
	require.NoError(t, err)
	assert.Len(t, byBase, 1)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: day(2026, 3, 2, 10)}
	r := testRecorder(t, c, WithEventFeed(StaticFeed(nil)))

	e, err := r.Latest(ctx, "none", "bol.com")
	require.NoError(t, err)
	assert.Nil(t, e)

	o := obs("blender", "59.95")
	o.OriginalPrice = decimal.NullDecimal{Decimal: d("79.95"), Valid: true}
	o.InStock = false
	_, _, err = r.RecordPrice(ctx, o)
	require.NoError(t, err)

	e, err = r.Latest(ctx, "blender", "bol.com")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.OriginalPrice.Valid)
	assert.True(t, e.OriginalPrice.Decimal.Equal(d("79.95")))
	assert.False(t, e.InStock)
	assert.Equal(t, c.t.UnixMilli(), e.RecordedAt)

	series, err := r.Series(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"blender", "bol.com"}}, series)
}
