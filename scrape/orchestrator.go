// Package scrape is the tier orchestrator: it tries the cheapest extraction
// tier first and escalates on failure, keeping the selector store informed of
// which selectors worked.
//
// Each tier runs at most once per scrape. Selector outcomes of an attempt are
// buffered and committed only after the attempt completes; an attempt cut
// short by cancellation commits nothing.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/selectorstore"
)

var tracer = otel.Tracer("github.com/hazyhaar/pricewatch/scrape")

// costEpsilon absorbs float noise when comparing summed costs to a budget.
const costEpsilon = 1e-9

// Tier is one extraction strategy.
type Tier interface {
	Name() TierName
	// Cost is the estimated cost of one attempt, charged whether or not it
	// succeeds.
	Cost() float64
	// Attempt fetches the target and extracts an observation through job.
	// Transport problems are reported as *TransportError, pages without a
	// usable price as *ExtractionError.
	Attempt(ctx context.Context, job *Job) (*Observation, error)
}

// SelectorStore is the part of the selector store the orchestrator uses.
type SelectorStore interface {
	SelectorsFor(ctx context.Context, domain, field string) ([]*selectorstore.LearnedSelector, error)
	RecordOutcome(ctx context.Context, domain, field, selector string, succeeded bool, exampleValue string) error
	Learn(ctx context.Context, domain, field, selector, exampleValue string, source selectorstore.Source) error
	HasSuccessful(ctx context.Context, domain, field string) (bool, error)
}

// Orchestrator runs the escalation state machine. It is safe for concurrent
// use; each Scrape call is sequential internally.
type Orchestrator struct {
	tiers  map[TierName]Tier
	store  SelectorStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the clock used for ScrapedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator over the given tiers. Tiers may be passed in
// any order and any subset; each name may appear once.
func New(store SelectorStore, tiers []Tier, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("scrape: selector store is required")
	}
	o := &Orchestrator{
		tiers:  make(map[TierName]Tier, len(tiers)),
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, t := range tiers {
		name := t.Name()
		if !name.Valid() {
			return nil, fmt.Errorf("scrape: unknown tier %q", name)
		}
		if _, dup := o.tiers[name]; dup {
			return nil, fmt.Errorf("scrape: tier %q registered twice", name)
		}
		o.tiers[name] = t
	}
	if len(o.tiers) == 0 {
		return nil, errors.New("scrape: no tiers")
	}
	return o, nil
}

// Tiers lists the configured tiers in escalation order.
func (o *Orchestrator) Tiers() []TierName {
	var out []TierName
	for _, name := range TierOrder {
		if _, ok := o.tiers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Scrape extracts an observation for target, escalating through the tiers.
// It returns *ExhaustedError when no tier succeeded; that error matches
// ErrBudgetExhausted when the budget excluded a tier. Cancellation returns
// the context error.
func (o *Orchestrator) Scrape(ctx context.Context, target Target) (*Result, error) {
	if err := target.normalize(); err != nil {
		return nil, err
	}
	job := o.newJob(ctx, target)
	res := &Result{Path: []State{StateNotStarted}}
	budgetHit := false

	for _, name := range TierOrder {
		tier, ok := o.tiers[name]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scrape: %s: %w", target.URL, err)
		}
		if reason, out := excluded(target, name, tier.Cost(), res.Cost); out {
			budgetHit = true
			res.Attempts = append(res.Attempts, Attempt{Tier: name, Skipped: true, Reason: reason})
			o.logger.Debug("scrape: tier excluded", "url", target.URL, "tier", name, "reason", reason)
			continue
		}
		if name == TierVisionFallback {
			if reason, skip := o.visionIneligible(ctx, target.Domain); skip {
				res.Attempts = append(res.Attempts, Attempt{Tier: name, Skipped: true, Reason: reason})
				continue
			}
		}

		res.Path = append(res.Path, stateOf(name))
		obs, att := o.run(ctx, tier, job)
		if err := ctx.Err(); err != nil {
			o.logger.Info("scrape: abandoned", "url", target.URL, "tier", name, "error", err)
			return nil, fmt.Errorf("scrape: %s: %w", target.URL, err)
		}
		o.commit(ctx, job)
		res.Cost += att.Cost
		res.Attempts = append(res.Attempts, att)

		if obs != nil {
			obs.URL = target.URL
			obs.ExtractedBy = name
			obs.ScrapedAt = o.now()
			res.Observation = obs
			res.Tier = name
			res.Path = append(res.Path, StateSucceeded)
			o.logger.Info("scrape: succeeded",
				"url", target.URL, "tier", name, "price", obs.Price.String(), "cost", res.Cost)
			return res, nil
		}
	}

	res.Path = append(res.Path, StateExhausted)
	o.logger.Warn("scrape: exhausted", "url", target.URL, "attempts", len(res.Attempts), "budget", budgetHit)
	return nil, &ExhaustedError{URL: target.URL, Attempts: res.Attempts, Cost: res.Cost, Budget: budgetHit}
}

// newJob builds the selector plan: learned selectors in rank order, then the
// default alternatives. A store read failure degrades to defaults only.
func (o *Orchestrator) newJob(ctx context.Context, target Target) *Job {
	job := &Job{
		Target: target,
		logger: o.logger,
		plan:   make(extract.Plan, len(target.Fields)),
		known:  make(map[extract.Field]map[string]bool, len(target.Fields)),
	}
	for _, field := range target.Fields {
		known := make(map[string]bool)
		learned, err := o.store.SelectorsFor(ctx, target.Domain, string(field))
		if err != nil {
			o.logger.Error("scrape: load selectors", "domain", target.Domain, "field", field, "error", err)
		}
		for _, s := range learned {
			job.plan[field] = append(job.plan[field], s.Selector)
			known[s.Selector] = true
		}
		if def := extract.DefaultSelectors[field]; def != "" && !known[def] {
			job.plan[field] = append(job.plan[field], def)
		}
		job.known[field] = known
	}
	return job
}

func (o *Orchestrator) run(ctx context.Context, tier Tier, job *Job) (*Observation, Attempt) {
	name := tier.Name()
	ctx, span := tracer.Start(ctx, "scrape.tier."+string(name), trace.WithAttributes(
		attribute.String("scrape.tier", string(name)),
		attribute.String("scrape.domain", job.Target.Domain),
		attribute.String("scrape.url", job.Target.URL),
	))
	defer span.End()

	job.begin(name)
	start := time.Now()
	obs, err := tier.Attempt(ctx, job)
	att := Attempt{
		Tier:        name,
		Fingerprint: job.fingerprint,
		Proxy:       job.proxy,
		Cost:        tier.Cost(),
		Elapsed:     time.Since(start),
	}
	if err == nil && obs == nil {
		err = &ExtractionError{Tier: name, Reason: "no observation"}
	}
	span.SetAttributes(attribute.Bool("scrape.succeeded", err == nil), attribute.Float64("scrape.cost", att.Cost))
	if err != nil {
		att.Err = err
		att.Reason = reason(err)
		span.SetStatus(codes.Error, att.Reason)
		o.logger.Info("scrape: tier failed",
			"url", job.Target.URL, "tier", name, "fingerprint", att.Fingerprint, "reason", att.Reason)
		return nil, att
	}
	att.Succeeded = true
	return obs, att
}

// commit applies the attempt's buffered selector outcomes. Learned selectors
// get their outcome recorded; a default alternative that won is learned.
// Store failures are logged, never fatal to the scrape.
func (o *Orchestrator) commit(ctx context.Context, job *Job) {
	domain := job.Target.Domain
	for _, oc := range job.outcomes {
		field := string(oc.Field)
		var err error
		switch {
		case job.known[oc.Field][oc.Selector]:
			err = o.store.RecordOutcome(ctx, domain, field, oc.Selector, oc.Matched, oc.Value)
		case oc.Matched:
			err = o.store.Learn(ctx, domain, field, oc.Alternative, oc.Value, selectorstore.SourceCSS)
		}
		if err != nil {
			o.logger.Error("scrape: record selector outcome",
				"domain", domain, "field", field, "selector", oc.Selector, "error", err)
		}
	}
	for _, s := range job.seeds {
		if err := o.store.Learn(ctx, domain, string(s.field), s.selector, s.value, selectorstore.SourceVision); err != nil {
			o.logger.Warn("scrape: vision locator not learned",
				"domain", domain, "field", s.field, "selector", s.selector, "error", err)
		}
	}
}

// visionIneligible keeps the vision tier for domains where no price selector
// has ever worked.
func (o *Orchestrator) visionIneligible(ctx context.Context, domain string) (string, bool) {
	ok, err := o.store.HasSuccessful(ctx, domain, string(extract.FieldPrice))
	if err != nil {
		o.logger.Error("scrape: vision eligibility", "domain", domain, "error", err)
		return "selector store unavailable", true
	}
	if ok {
		return "domain has a working price selector", true
	}
	return "", false
}

func excluded(t Target, name TierName, cost, spent float64) (string, bool) {
	if t.MaxTier != "" && name.rank() > t.MaxTier.rank() {
		return fmt.Sprintf("above max tier %s", t.MaxTier), true
	}
	if t.MaxCost > 0 && spent+cost > t.MaxCost+costEpsilon {
		return fmt.Sprintf("cost %.4f would exceed budget %.4f", spent+cost, t.MaxCost), true
	}
	return "", false
}

func reason(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return "transport: " + te.Err.Error()
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return err.Error()
}
