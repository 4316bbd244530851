package scrape

import (
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/pricewatch/browser"
	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/fingerprint"
	"github.com/hazyhaar/pricewatch/priceparse"
	"github.com/hazyhaar/pricewatch/vision"
)

// Job is the state a tier works on: the target, the selector plan built
// from the store, and what the current attempt used and tried. Tiers call
// UseFingerprint/UseProxy for provenance and one of the Extract methods to
// turn what they fetched into an Observation.
type Job struct {
	Target Target

	logger *slog.Logger
	plan   extract.Plan
	known  map[extract.Field]map[string]bool

	tier        TierName
	fingerprint string
	proxy       string
	outcomes    []extract.Outcome
	seeds       []seed
}

// seed is a selector discovered by the vision reader.
type seed struct {
	field    extract.Field
	selector string
	value    string
}

func (j *Job) begin(tier TierName) {
	j.tier = tier
	j.fingerprint = ""
	j.proxy = ""
	j.outcomes = nil
	j.seeds = nil
}

// Tier returns the tier currently attempting the job.
func (j *Job) Tier() TierName { return j.tier }

// UseFingerprint records the profile presented for this attempt.
func (j *Job) UseFingerprint(p fingerprint.Profile) { j.fingerprint = p.ID }

// UseProxy records the outbound proxy of this attempt.
func (j *Job) UseProxy(p browser.Proxy) { j.proxy = p.String() }

// Profile picks a fingerprint from pool honouring the target's device class
// and records it.
func (j *Job) Profile(pool *fingerprint.Pool) fingerprint.Profile {
	var p fingerprint.Profile
	if j.Target.DeviceClass != "" {
		p = pool.ByDeviceClass(j.Target.DeviceClass)
	} else {
		p = pool.Next()
	}
	j.UseFingerprint(p)
	return p
}

// Extract runs the full extraction over a rendered document.
func (j *Job) Extract(html []byte) (*Observation, error) {
	return j.extract(html, false)
}

// ExtractStatic is Extract for documents fetched without script execution.
// A page that is still an application shell and carries no structured price
// fails without consulting selectors, so their ranking is not charged for
// markup that was never rendered.
func (j *Job) ExtractStatic(html []byte) (*Observation, error) {
	return j.extract(html, true)
}

func (j *Job) extract(html []byte, static bool) (*Observation, error) {
	doc, err := extract.Parse(html, extract.WithLogger(j.logger))
	if err != nil {
		return nil, &ExtractionError{Tier: j.tier, Reason: err.Error()}
	}
	if static && doc.IsShell() {
		s := doc.Structured()
		if !accept(extract.FieldPrice, s.Price) {
			return nil, &ExtractionError{Tier: j.tier, Reason: "page is an unrendered script shell"}
		}
	}

	res := doc.Resolve(j.Target.Fields, j.plan, accept)
	j.outcomes = append(j.outcomes, res.Outcomes...)

	f := res.Fields
	if f.Title == "" && slices.Contains(j.Target.Fields, extract.FieldTitle) {
		f.Title = doc.Title()
	}
	return j.observe(f)
}

// FromReadings builds an observation from vision readings. Every accepted
// reading that came with a locator is queued for learning.
func (j *Job) FromReadings(readings map[extract.Field]vision.Reading) (*Observation, error) {
	var f extract.Fields
	for _, field := range j.Target.Fields {
		r, ok := readings[field]
		if !ok || !accept(field, r.Value) {
			continue
		}
		if !f.Set(field, r.Value, extract.SourceVision) {
			continue
		}
		if r.Locator != "" {
			j.seeds = append(j.seeds, seed{field: field, selector: r.Locator, value: r.Value})
		}
	}
	return j.observe(f)
}

func (j *Job) observe(f extract.Fields) (*Observation, error) {
	price, ok := priceparse.Parse(f.Price)
	if !ok {
		return nil, &ExtractionError{Tier: j.tier, Reason: "no valid price"}
	}
	obs := &Observation{
		URL:     j.Target.URL,
		Price:   price,
		Title:   f.Title,
		Brand:   f.Brand,
		InStock: true,
		Sources: f.Sources,
	}
	if orig, ok := priceparse.Parse(f.OriginalPrice); ok {
		obs.OriginalPrice = decimal.NullDecimal{Decimal: orig, Valid: true}
	}
	if f.InStock != nil {
		obs.InStock = *f.InStock
	}
	obs.Currency = priceparse.NormalizeCurrency(f.Currency)
	if obs.Currency == "" {
		obs.Currency = priceparse.DetectCurrency(f.Price)
	}
	return obs, nil
}

// accept validates candidate values: price fields must parse to a positive
// amount, anything else must be non-empty.
func accept(field extract.Field, value string) bool {
	switch field {
	case extract.FieldPrice, extract.FieldOriginalPrice:
		_, ok := priceparse.Parse(value)
		return ok
	}
	return value != ""
}
