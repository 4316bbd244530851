package scrape

import (
	"context"
	"errors"

	"github.com/hazyhaar/pricewatch/browser"
	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/fingerprint"
	"github.com/hazyhaar/pricewatch/vision"
)

// VisionReader reads fields off a page screenshot. *vision.Client
// implements it.
type VisionReader interface {
	Read(ctx context.Context, screenshot []byte, fields []extract.Field) (map[extract.Field]vision.Reading, error)
}

// VisionTier screenshots the rendered page and asks a vision model for the
// fields. Readings that name their element seed the selector store.
type VisionTier struct {
	cost   float64
	r      Renderer
	reader VisionReader
	pool   *fingerprint.Pool
}

// NewVisionTier creates the vision fallback tier.
func NewVisionTier(r Renderer, reader VisionReader, pool *fingerprint.Pool, cost float64) *VisionTier {
	if cost <= 0 {
		cost = DefaultCosts[TierVisionFallback]
	}
	return &VisionTier{cost: cost, r: r, reader: reader, pool: pool}
}

func (t *VisionTier) Name() TierName { return TierVisionFallback }
func (t *VisionTier) Cost() float64  { return t.cost }

func (t *VisionTier) Attempt(ctx context.Context, job *Job) (*Observation, error) {
	page, err := t.r.Render(ctx, browser.RenderRequest{
		URL:        job.Target.URL,
		Profile:    job.Profile(t.pool),
		Screenshot: true,
	})
	if err != nil {
		return nil, &TransportError{Tier: TierVisionFallback, Err: err}
	}
	if len(page.Screenshot) == 0 {
		return nil, &TransportError{Tier: TierVisionFallback, Err: errors.New("no screenshot")}
	}
	readings, err := t.reader.Read(ctx, page.Screenshot, job.Target.Fields)
	if err != nil {
		return nil, &TransportError{Tier: TierVisionFallback, Err: err}
	}
	return job.FromReadings(readings)
}
