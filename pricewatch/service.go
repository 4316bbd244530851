// Package pricewatch wires the extraction engine into one service: it opens
// the shared database, builds the tier ladder from configuration and turns a
// scrape into a price history entry.
//
// Usage:
//
//	svc, err := pricewatch.New(cfg, logger)
//	if err != nil { ... }
//	defer svc.Close()
//	res, err := svc.Track(ctx, pricewatch.TrackRequest{ProductID: "p1", Target: scrape.Target{URL: u}})
package pricewatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/pricewatch/browser"
	"github.com/hazyhaar/pricewatch/dbopen"
	"github.com/hazyhaar/pricewatch/fingerprint"
	"github.com/hazyhaar/pricewatch/history"
	"github.com/hazyhaar/pricewatch/scrape"
	"github.com/hazyhaar/pricewatch/selectorstore"
	"github.com/hazyhaar/pricewatch/vision"
)

// Service is the assembled engine.
type Service struct {
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	db        *sql.DB
	ownDB     bool
	tiers     []scrape.Tier
	pool      *fingerprint.Pool
	selectors *selectorstore.Store
	history   *history.Recorder
	scraper   *scrape.Orchestrator
	browser   *browser.Manager

	global  *semaphore.Weighted
	mu      sync.Mutex
	domains map[string]*semaphore.Weighted
}

// Option configures a Service.
type Option func(*Service)

// WithDB uses an already open database instead of opening cfg.DBPath. The
// caller keeps ownership of db.
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

// WithTiers replaces the tiers built from configuration.
func WithTiers(tiers ...scrape.Tier) Option {
	return func(s *Service) { s.tiers = tiers }
}

// WithClock overrides the clock of every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFingerprints replaces the default fingerprint pool.
func WithFingerprints(p *fingerprint.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// New builds a Service from cfg. Chrome is only started by the first
// browser-backed attempt.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		global:  semaphore.NewWeighted(int64(cfg.Concurrency.Global)),
		domains: make(map[string]*semaphore.Weighted),
	}
	for _, o := range opts {
		o(s)
	}

	if s.db == nil {
		db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
		if err != nil {
			return nil, fmt.Errorf("pricewatch: open db: %w", err)
		}
		s.db, s.ownDB = db, true
	}

	if err := s.build(); err != nil {
		s.Close()
		return nil, err
	}

	if len(cfg.Events) > 0 {
		n, err := s.SeedEvents(context.Background())
		if err != nil {
			s.Close()
			return nil, err
		}
		logger.Info("pricewatch: events seeded", "count", n)
	}
	logger.Info("pricewatch: ready", "db", cfg.DBPath, "tiers", s.scraper.Tiers())
	return s, nil
}

func (s *Service) build() error {
	var err error
	if s.pool == nil {
		if s.pool, err = fingerprint.New(); err != nil {
			return fmt.Errorf("pricewatch: fingerprints: %w", err)
		}
	}
	s.selectors, err = selectorstore.New(s.db,
		selectorstore.WithLogger(s.logger), selectorstore.WithClock(s.now))
	if err != nil {
		return err
	}
	s.history, err = history.New(s.db,
		history.WithLogger(s.logger),
		history.WithClock(s.now),
		history.WithStaleness(s.cfg.History.Staleness),
		history.WithEventWindow(s.cfg.History.EventWindow))
	if err != nil {
		return err
	}
	if s.tiers == nil {
		if s.tiers, err = s.buildTiers(); err != nil {
			return err
		}
	}
	s.scraper, err = scrape.New(s.selectors, s.tiers,
		scrape.WithLogger(s.logger), scrape.WithClock(s.now))
	return err
}

// buildTiers assembles the enabled tiers. The proxy tier needs at least one
// proxy and the vision tier needs vision.enabled.
func (s *Service) buildTiers() ([]scrape.Tier, error) {
	cfg := s.cfg
	var tiers []scrape.Tier
	if cfg.enabled(scrape.TierHTTP) {
		h := cfg.HTTP
		h.Cost = cfg.Tiers.Costs[scrape.TierHTTP]
		tiers = append(tiers, scrape.NewHTTPTier(s.pool, h))
	}

	needBrowser := cfg.enabled(scrape.TierBrowser) ||
		(cfg.enabled(scrape.TierProxyBrowser) && len(cfg.Proxies) > 0) ||
		(cfg.enabled(scrape.TierVisionFallback) && cfg.Vision.Enabled)
	if needBrowser {
		bc := cfg.Browser
		if bc.Logger == nil {
			bc.Logger = s.logger
		}
		s.browser = browser.NewManager(bc)
	}

	if cfg.enabled(scrape.TierBrowser) {
		tiers = append(tiers, scrape.NewBrowserTier(s.browser, s.pool, cfg.Tiers.Costs[scrape.TierBrowser]))
	}
	if cfg.enabled(scrape.TierProxyBrowser) && len(cfg.Proxies) > 0 {
		rot, err := browser.NewProxyRotator(cfg.Proxies)
		if err != nil {
			return nil, fmt.Errorf("pricewatch: proxies: %w", err)
		}
		t, err := scrape.NewProxyBrowserTier(s.browser, s.pool, rot, cfg.Tiers.Costs[scrape.TierProxyBrowser])
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	if cfg.enabled(scrape.TierVisionFallback) && cfg.Vision.Enabled {
		vc := cfg.Vision.Config
		if vc.Logger == nil {
			vc.Logger = s.logger
		}
		tiers = append(tiers, scrape.NewVisionTier(s.browser, vision.New(vc), s.pool, cfg.Tiers.Costs[scrape.TierVisionFallback]))
	}
	if len(tiers) == 0 {
		return nil, errors.New("pricewatch: every tier is disabled")
	}
	return tiers, nil
}

// Close releases the browser and, when the service opened it, the database.
func (s *Service) Close() error {
	var errs []error
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.ownDB && s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// Scraper returns the tier orchestrator.
func (s *Service) Scraper() *scrape.Orchestrator { return s.scraper }

// Selectors returns the selector store.
func (s *Service) Selectors() *selectorstore.Store { return s.selectors }

// History returns the price history recorder.
func (s *Service) History() *history.Recorder { return s.history }

// SeedEvents upserts the configured commerce events.
func (s *Service) SeedEvents(ctx context.Context) (int, error) {
	n, err := s.history.Events().SeedFromConfig(ctx, s.cfg.Events)
	if err != nil {
		return n, fmt.Errorf("pricewatch: seed events: %w", err)
	}
	return n, nil
}

// TrackRequest asks for one product's price at one retailer.
type TrackRequest struct {
	ProductID string `json:"product_id"`
	// Retailer names the series; empty uses the target's domain.
	Retailer string        `json:"retailer,omitempty"`
	Target   scrape.Target `json:"target"`
}

// TrackResult is a scrape and what it did to the price history.
type TrackResult struct {
	Scrape  *scrape.Result `json:"scrape"`
	Entry   *history.Entry `json:"entry"`
	Written bool           `json:"written"`
}

// Track scrapes the target and records the observed price. Scrape failures
// are returned as the orchestrator reports them; history failures are
// wrapped and never dropped.
func (s *Service) Track(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, fmt.Errorf("%w: product id is required", history.ErrInvalidObservation)
	}
	res, err := s.scraper.Scrape(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	obs := res.Observation
	retailer := req.Retailer
	if retailer == "" {
		retailer = domainOf(obs.URL)
	}
	entry, written, err := s.history.RecordPrice(ctx, history.Observation{
		ProductID:     req.ProductID,
		Retailer:      retailer,
		URL:           obs.URL,
		Price:         obs.Price,
		OriginalPrice: obs.OriginalPrice,
		InStock:       obs.InStock,
		Currency:      obs.Currency,
		ExtractedBy:   string(obs.ExtractedBy),
		At:            obs.ScrapedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("pricewatch: record %s/%s: %w", req.ProductID, retailer, err)
	}
	return &TrackResult{Scrape: res, Entry: entry, Written: written}, nil
}

// TrackOutcome is the result of one request of a batch.
type TrackOutcome struct {
	Request TrackRequest `json:"request"`
	Result  *TrackResult `json:"result,omitempty"`
	Err     error        `json:"-"`
}

// TrackBatch tracks every request, at most Concurrency.Global at once and
// Concurrency.PerDomain at once against any single domain. Requests are
// dispatched per domain and take a global slot only once their domain has
// room, so a crowded domain never holds slots another domain could use.
// Outcomes are returned in request order; one failure does not stop the
// others.
func (s *Service) TrackBatch(ctx context.Context, reqs []TrackRequest) []TrackOutcome {
	out := make([]TrackOutcome, len(reqs))

	var order []string
	byDomain := make(map[string][]int)
	for i, req := range reqs {
		d := domainOf(req.Target.URL)
		if _, ok := byDomain[d]; !ok {
			order = append(order, d)
		}
		byDomain[d] = append(byDomain[d], i)
	}

	var g errgroup.Group
	for _, domain := range order {
		idx := byDomain[domain]
		g.Go(func() error {
			var dg errgroup.Group
			dg.SetLimit(s.cfg.Concurrency.PerDomain)
			for _, i := range idx {
				dg.Go(func() error {
					out[i] = s.trackLimited(ctx, domain, reqs[i])
					return nil
				})
			}
			return dg.Wait()
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	s.logger.Info("pricewatch: batch done", "requests", len(reqs), "failed", failed)
	return out
}

// trackLimited holds a slot of the domain, then a global one, for the
// duration of Track. The domain semaphores are shared by concurrent batches.
func (s *Service) trackLimited(ctx context.Context, domain string, req TrackRequest) TrackOutcome {
	o := TrackOutcome{Request: req}
	sem := s.domainSemaphore(domain)
	if err := sem.Acquire(ctx, 1); err != nil {
		o.Err = err
		return o
	}
	defer sem.Release(1)
	if err := s.global.Acquire(ctx, 1); err != nil {
		o.Err = err
		return o
	}
	defer s.global.Release(1)
	o.Result, o.Err = s.Track(ctx, req)
	if o.Err != nil {
		s.logger.Warn("pricewatch: track failed", "product", req.ProductID, "url", req.Target.URL, "error", o.Err)
	}
	return o
}

func (s *Service) domainSemaphore(domain string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.domains[domain]
	if !ok {
		sem = semaphore.NewWeighted(int64(s.cfg.Concurrency.PerDomain))
		s.domains[domain] = sem
	}
	return sem
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return selectorstore.NormalizeDomain(u.Hostname())
}
