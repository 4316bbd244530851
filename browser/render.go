package browser

import (
	"context"
	"errors"

	"github.com/hazyhaar/pricewatch/fingerprint"
)

// RenderRequest asks for one rendered page.
type RenderRequest struct {
	URL        string
	Profile    fingerprint.Profile
	Proxy      *Proxy
	Screenshot bool
}

// Rendered is the outcome of a render.
type Rendered struct {
	HTML       []byte
	Screenshot []byte // PNG, only when requested
	FinalURL   string
}

// Render opens a session, loads the page and captures what was asked for.
// The session is closed before Render returns, on every path.
func (m *Manager) Render(ctx context.Context, req RenderRequest) (out *Rendered, err error) {
	s, err := m.OpenSession(ctx, SessionOptions{Profile: req.Profile, Proxy: req.Proxy})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			m.cfg.Logger.Debug("browser: session close", "error", cerr)
		}
	}()

	if err := s.Navigate(ctx, req.URL); err != nil {
		return nil, err
	}
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	out = &Rendered{HTML: html, FinalURL: s.URL()}
	if req.Screenshot {
		if out.Screenshot, err = s.Screenshot(ctx); err != nil {
			return nil, err
		}
	}
	if len(out.HTML) == 0 {
		return nil, errors.New("browser: empty document")
	}
	return out, nil
}
