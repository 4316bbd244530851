package scrape

import (
	"context"
	"errors"

	"github.com/hazyhaar/pricewatch/browser"
	"github.com/hazyhaar/pricewatch/fingerprint"
)

// Renderer loads a page in a real browser. *browser.Manager implements it;
// the page resource is released before Render returns.
type Renderer interface {
	Render(ctx context.Context, req browser.RenderRequest) (*browser.Rendered, error)
}

// BrowserTier renders the page with a rotated fingerprint, optionally
// through a rotating proxy.
type BrowserTier struct {
	name    TierName
	cost    float64
	r       Renderer
	pool    *fingerprint.Pool
	proxies *browser.ProxyRotator
}

// NewBrowserTier creates the direct browser tier. A cost of zero uses the
// default.
func NewBrowserTier(r Renderer, pool *fingerprint.Pool, cost float64) *BrowserTier {
	if cost <= 0 {
		cost = DefaultCosts[TierBrowser]
	}
	return &BrowserTier{name: TierBrowser, cost: cost, r: r, pool: pool}
}

// NewProxyBrowserTier creates the proxied browser tier.
func NewProxyBrowserTier(r Renderer, pool *fingerprint.Pool, proxies *browser.ProxyRotator, cost float64) (*BrowserTier, error) {
	if proxies == nil || proxies.Len() == 0 {
		return nil, errors.New("scrape: proxy browser tier needs at least one proxy")
	}
	if cost <= 0 {
		cost = DefaultCosts[TierProxyBrowser]
	}
	return &BrowserTier{name: TierProxyBrowser, cost: cost, r: r, pool: pool, proxies: proxies}, nil
}

func (t *BrowserTier) Name() TierName { return t.name }
func (t *BrowserTier) Cost() float64  { return t.cost }

func (t *BrowserTier) Attempt(ctx context.Context, job *Job) (*Observation, error) {
	req := browser.RenderRequest{URL: job.Target.URL, Profile: job.Profile(t.pool)}
	if t.proxies != nil {
		p := t.proxies.Next()
		job.UseProxy(p)
		req.Proxy = &p
	}
	page, err := t.r.Render(ctx, req)
	if err != nil {
		return nil, &TransportError{Tier: t.name, Err: err}
	}
	return job.Extract(page.HTML)
}
