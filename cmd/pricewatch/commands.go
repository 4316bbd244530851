package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/fingerprint"
	"github.com/hazyhaar/pricewatch/history"
	"github.com/hazyhaar/pricewatch/pricewatch"
	"github.com/hazyhaar/pricewatch/scrape"
	"github.com/hazyhaar/pricewatch/selectorstore"
)

type targetFlags struct {
	fields  []string
	maxTier string
	maxCost float64
	device  string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.fields, "fields", nil, "fields besides price: originalPrice,title,brand,stock")
	cmd.Flags().StringVar(&f.maxTier, "max-tier", "", "most expensive tier allowed: http, browser, proxyBrowser, visionFallback")
	cmd.Flags().Float64Var(&f.maxCost, "max-cost", 0, "cost budget in USD (0 = no cap)")
	cmd.Flags().StringVar(&f.device, "device", "", "fingerprint device class: desktop or mobile")
}

func (f *targetFlags) target(url string) scrape.Target {
	t := scrape.Target{
		URL:         url,
		MaxTier:     scrape.TierName(f.maxTier),
		MaxCost:     f.maxCost,
		DeviceClass: fingerprint.DeviceClass(f.device),
	}
	for _, name := range f.fields {
		t.Fields = append(t.Fields, extract.Field(name))
	}
	return t
}

// --- scrape ---

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var (
		tf     targetFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Extract the current price of a product page without recording it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			res, err := svc.Scraper().Scrape(cmd.Context(), tf.target(args[0]))
			if err != nil {
				var ex *scrape.ExhaustedError
				if errors.As(err, &ex) && !asJSON {
					printAttempts(out, ex.Attempts)
				}
				return err
			}
			if asJSON {
				return printJSON(out, res)
			}
			printObservation(out, res.Observation)
			printAttempts(out, res.Attempts)
			fmt.Fprintf(out, "extracted by %s, cost $%.4f\n", res.Tier, res.Cost)
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printObservation(w io.Writer, obs *scrape.Observation) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Field", "Value", "Source"})
	t.AppendRow(table.Row{"price", obs.Price.StringFixed(2) + " " + obs.Currency, orDash(string(obs.Sources[extract.FieldPrice]))})
	if obs.OriginalPrice.Valid {
		t.AppendRow(table.Row{"originalPrice", obs.OriginalPrice.Decimal.StringFixed(2), orDash(string(obs.Sources[extract.FieldOriginalPrice]))})
	}
	if obs.Title != "" {
		t.AppendRow(table.Row{"title", obs.Title, orDash(string(obs.Sources[extract.FieldTitle]))})
	}
	if obs.Brand != "" {
		t.AppendRow(table.Row{"brand", obs.Brand, orDash(string(obs.Sources[extract.FieldBrand]))})
	}
	t.AppendRow(table.Row{"inStock", obs.InStock, orDash(string(obs.Sources[extract.FieldStock]))})
	t.Render()
}

func printAttempts(w io.Writer, attempts []scrape.Attempt) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Tier", "Result", "Reason", "Fingerprint", "Proxy", "Cost", "Elapsed"})
	for _, a := range attempts {
		result := "failed"
		switch {
		case a.Succeeded:
			result = "ok"
		case a.Skipped:
			result = "skipped"
		}
		t.AppendRow(table.Row{a.Tier, result, orDash(a.Reason), orDash(a.Fingerprint), orDash(a.Proxy),
			fmt.Sprintf("%.4f", a.Cost), a.Elapsed.Round(time.Millisecond)})
	}
	t.Render()
}

// --- track ---

func newTrackCmd(opts *rootOptions) *cobra.Command {
	var tf targetFlags
	cmd := &cobra.Command{
		Use:   "track <product> <retailer> <url>",
		Short: "Scrape a product page and record the price in its history",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Track(cmd.Context(), pricewatch.TrackRequest{
				ProductID: args[0],
				Retailer:  args[1],
				Target:    tf.target(args[2]),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			e := res.Entry
			t := newTable(out)
			t.AppendHeader(table.Row{"Product", "Retailer", "Price", "Change", "Change %", "Event", "Tier", "Written"})
			change, pct := "-", "-"
			if e.PriceChange.Valid {
				change = e.PriceChange.Decimal.StringFixed(2)
			}
			if e.PriceChangePercent != nil {
				pct = fmt.Sprintf("%.2f", *e.PriceChangePercent)
			}
			t.AppendRow(table.Row{e.ProductID, e.Retailer, e.Price.StringFixed(2) + " " + e.Currency,
				change, pct, orDash(e.PriceEvent), e.ExtractedBy, res.Written})
			t.Render()
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

// --- trend ---

func newTrendCmd(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "trend <product> <retailer>",
		Short: "Classify the price trend of a series",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			tr, err := svc.History().Trend(cmd.Context(), args[0], args[1], days)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Window", "Points", "Trend", "Current", "Mean", "Min", "Max", "Volatility"})
			t.AppendRow(table.Row{fmt.Sprintf("%dd", tr.WindowDays), tr.Points, tr.Classification,
				tr.Current.StringFixed(2), tr.Mean.StringFixed(2), tr.Min.StringFixed(2), tr.Max.StringFixed(2),
				fmt.Sprintf("%.4f", tr.Volatility)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", history.DefaultTrendDays, "window in days")
	return cmd
}

// --- yoy ---

func newYearOverYearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "yoy <product> <retailer> <event>",
		Short: "Compare the lowest price around every edition of a commerce event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			rows, err := svc.History().YearOverYear(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Year", "Event", "Date", "Min price", "Seen", "Points", "Change", "Change %"})
			for _, r := range rows {
				change, pct := "-", "-"
				if r.ChangeFromPrevious.Valid {
					change = r.ChangeFromPrevious.Decimal.StringFixed(2)
				}
				if r.ChangePercent != nil {
					pct = fmt.Sprintf("%.2f", *r.ChangePercent)
				}
				t.AppendRow(table.Row{r.Year, r.Event, r.EventDate.Format("2006-01-02"), r.MinPrice.StringFixed(2),
					r.MinAt.UTC().Format("2006-01-02 15:04"), r.Points, change, pct})
			}
			t.Render()
			return nil
		},
	}
}

// --- selectors ---

func newSelectorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selectors <domain> [field]",
		Short: "List the learned selectors of a domain, best first",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			var sels []*selectorstore.LearnedSelector
			if len(args) == 2 {
				sels, err = svc.Selectors().SelectorsFor(ctx, args[0], args[1])
			} else {
				sels, err = svc.Selectors().SelectorsForDomain(ctx, args[0])
			}
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Field", "Selector", "Success", "Fail", "Rate", "Priority", "From", "Last used"})
			for _, s := range sels {
				t.AppendRow(table.Row{s.Field, s.Selector, s.SuccessCount, s.FailureCount,
					fmt.Sprintf("%.1f%%", s.SuccessRate), s.Priority, s.LearnedFrom, msTime(s.LastUsed)})
			}
			t.Render()
			return nil
		},
	}
}

// --- events ---

func newEventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage commerce events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Store the events of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()
			n, err := svc.SeedEvents(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d events seeded\n", n)
			return nil
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List stored events in configuration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			defer svc.Close()
			events, err := svc.History().Events().List(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Type", "Date", "Active"})
			for _, ev := range events {
				t.AppendRow(table.Row{ev.Name, ev.Type, ev.Date.Format("2006-01-02"), ev.Active})
			}
			t.Render()
			return nil
		},
	})
	return cmd
}
