package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pricewatch/fingerprint"
)

// SessionOptions shape one browser session.
type SessionOptions struct {
	Profile fingerprint.Profile
	// Proxy routes the session through an isolated browser context.
	Proxy *Proxy
}

// Session is one stealth page, optionally inside its own proxied browser
// context. Close releases everything and is safe to call more than once.
type Session struct {
	page      *rod.Page
	browser   *rod.Browser
	contextID proto.BrowserBrowserContextID
	cancel    context.CancelFunc
	release   func()
	once      sync.Once
	mgr       *Manager
}

// OpenSession creates a page with stealth scripts, the profile's user-agent,
// locale and viewport applied. The caller must Close the session.
func (m *Manager) OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	b, err := m.acquire()
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{browser: b, cancel: cancel, release: m.release, mgr: m}

	if err := s.setup(ctx, sctx, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) setup(ctx, sctx context.Context, opts SessionOptions) error {
	target := proto.TargetCreateTarget{URL: ""}
	if opts.Proxy != nil {
		res, err := proto.TargetCreateBrowserContext{ProxyServer: opts.Proxy.Server}.Call(s.browser.Context(ctx))
		if err != nil {
			return fmt.Errorf("browser: create proxy context: %w", err)
		}
		s.contextID = res.BrowserContextID
		target.BrowserContextID = res.BrowserContextID
	}

	page, err := s.browser.Context(ctx).Page(target)
	if err != nil {
		return fmt.Errorf("browser: create page: %w", err)
	}
	s.page = page.Context(sctx)

	if _, err := s.page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("browser: stealth: %w", err)
	}

	p := opts.Profile
	if p.UserAgent != "" {
		err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      p.UserAgent,
			AcceptLanguage: p.AcceptLanguage(),
			Platform:       p.Platform,
		})
		if err != nil {
			return fmt.Errorf("browser: user agent: %w", err)
		}
	}
	if p.Viewport.Width > 0 {
		err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             p.Viewport.Width,
			Height:            p.Viewport.Height,
			DeviceScaleFactor: p.Viewport.DeviceScaleFactor,
			Mobile:            p.Viewport.Mobile,
		})
		if err != nil {
			return fmt.Errorf("browser: viewport: %w", err)
		}
	}
	if p.Viewport.Touch {
		if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: true}).Call(s.page); err != nil {
			return fmt.Errorf("browser: touch: %w", err)
		}
	}

	ic := newInterceptor(s.mgr.cfg.ResourceBlocking, opts.Proxy)
	if ic.needed() {
		if err := ic.start(sctx, s.page); err != nil {
			return fmt.Errorf("browser: request interception: %w", err)
		}
	}
	return nil
}

// Navigate loads url and waits for the load event, bounded by ctx and the
// manager's navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	nctx, cancel := context.WithTimeout(ctx, s.mgr.cfg.NavigationTimeout)
	defer cancel()

	p := s.page.Context(nctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.mgr.cfg.Logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

// HTML returns the rendered document.
func (s *Session) HTML(ctx context.Context) ([]byte, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: html: %w", err)
	}
	return []byte(html), nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return png, nil
}

// URL returns the page's current URL.
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close closes the page, disposes the proxy context and releases the
// session slot.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		if s.page != nil {
			// The session context is cancelled; close through a fresh one.
			if cerr := s.page.Context(context.Background()).Close(); cerr != nil {
				err = cerr
			}
		}
		if s.contextID != "" {
			if derr := (proto.TargetDisposeBrowserContext{BrowserContextID: s.contextID}).Call(s.browser); derr != nil && err == nil {
				err = derr
			}
		}
		s.release()
	})
	return err
}
