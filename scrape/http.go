package scrape

import (
	"context"
	"fmt"
	"io"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/pricewatch/fingerprint"
)

// HTTPConfig configures the plain HTTP tier.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxRedirects int           `yaml:"max_redirects"`
	Cost         float64       `yaml:"-"`
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
	if c.Cost <= 0 {
		c.Cost = DefaultCosts[TierHTTP]
	}
}

// HTTPTier fetches the page without running scripts, presenting a pooled
// fingerprint's headers.
type HTTPTier struct {
	cfg    HTTPConfig
	pool   *fingerprint.Pool
	client *resty.Client
}

// NewHTTPTier creates the HTTP tier.
func NewHTTPTier(pool *fingerprint.Pool, cfg HTTPConfig) *HTTPTier {
	cfg.defaults()
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	return &HTTPTier{cfg: cfg, pool: pool, client: client}
}

func (t *HTTPTier) Name() TierName { return TierHTTP }
func (t *HTTPTier) Cost() float64  { return t.cfg.Cost }

// Attempt fetches the target. Error statuses count as transport failures.
func (t *HTTPTier) Attempt(ctx context.Context, job *Job) (*Observation, error) {
	p := job.Profile(t.pool)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(p.Headers()).
		SetDoNotParseResponse(true).
		Get(job.Target.URL)
	if err != nil {
		return nil, &TransportError{Tier: TierHTTP, Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return nil, &TransportError{Tier: TierHTTP, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	raw, err := io.ReadAll(io.LimitReader(body, t.cfg.MaxBodyBytes))
	if err != nil {
		return nil, &TransportError{Tier: TierHTTP, Err: fmt.Errorf("read body: %w", err)}
	}
	return job.ExtractStatic(raw)
}
