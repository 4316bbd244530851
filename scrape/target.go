package scrape

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/fingerprint"
	"github.com/hazyhaar/pricewatch/selectorstore"
)

// TierName identifies an extraction tier.
type TierName string

const (
	TierHTTP           TierName = "http"
	TierBrowser        TierName = "browser"
	TierProxyBrowser   TierName = "proxyBrowser"
	TierVisionFallback TierName = "visionFallback"
)

// TierOrder is the escalation order, cheapest first.
var TierOrder = []TierName{TierHTTP, TierBrowser, TierProxyBrowser, TierVisionFallback}

// DefaultCosts are the per-attempt cost estimates in USD.
var DefaultCosts = map[TierName]float64{
	TierHTTP:           0.0001,
	TierBrowser:        0.002,
	TierProxyBrowser:   0.01,
	TierVisionFallback: 0.03,
}

func (t TierName) rank() int { return slices.Index(TierOrder, t) }

// Valid reports whether t is a known tier.
func (t TierName) Valid() bool { return t.rank() >= 0 }

// Target is one scrape request.
type Target struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"` // derived from URL when empty
	// Fields lists the fields wanted besides price, which is always required.
	Fields []extract.Field `json:"fields,omitempty"`
	// MaxTier is the most expensive tier the caller allows; empty allows all.
	MaxTier TierName `json:"max_tier,omitempty"`
	// MaxCost caps the summed cost of attempted tiers; 0 means no cap.
	MaxCost float64 `json:"max_cost,omitempty"`
	// DeviceClass restricts fingerprints for browser tiers; empty rotates
	// through the whole pool.
	DeviceClass fingerprint.DeviceClass `json:"device_class,omitempty"`
}

func (t *Target) normalize() error {
	u, err := url.Parse(t.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: bad URL %q", ErrInvalidTarget, t.URL)
	}
	if t.Domain == "" {
		t.Domain = u.Hostname()
	}
	t.Domain = selectorstore.NormalizeDomain(t.Domain)
	if t.MaxTier != "" && !t.MaxTier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidTarget, t.MaxTier)
	}
	if t.MaxCost < 0 {
		return fmt.Errorf("%w: negative cost budget", ErrInvalidTarget)
	}
	fields := []extract.Field{extract.FieldPrice}
	for _, f := range t.Fields {
		if !slices.Contains(extract.AllFields, f) {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidTarget, f)
		}
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	t.Fields = fields
	return nil
}

// Observation is a normalised successful extraction.
type Observation struct {
	URL           string                           `json:"url"`
	Price         decimal.Decimal                  `json:"price"`
	OriginalPrice decimal.NullDecimal              `json:"original_price"`
	Title         string                           `json:"title,omitempty"`
	Brand         string                           `json:"brand,omitempty"`
	InStock       bool                             `json:"in_stock"`
	Currency      string                           `json:"currency,omitempty"`
	ExtractedBy   TierName                         `json:"extracted_by"`
	Sources       map[extract.Field]extract.Source `json:"sources,omitempty"`
	ScrapedAt     time.Time                        `json:"scraped_at"`
}

// Attempt records one tier's execution within a scrape.
type Attempt struct {
	Tier        TierName      `json:"tier"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Proxy       string        `json:"proxy,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Skipped     bool          `json:"skipped,omitempty"` // not run: budget or eligibility
	Reason      string        `json:"reason,omitempty"`
	Cost        float64       `json:"cost"`
	Elapsed     time.Duration `json:"elapsed"`
	Err         error         `json:"-"`
}

// Result is a successful scrape.
type Result struct {
	Observation *Observation `json:"observation"`
	Tier        TierName     `json:"tier"`
	Cost        float64      `json:"cost"`
	Attempts    []Attempt    `json:"attempts"`
	Path        []State      `json:"path"` // states visited, for replay
}
