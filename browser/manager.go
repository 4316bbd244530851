// Package browser owns the headless Chrome used by the browser-backed scrape
// tiers: lazy launch or remote connect via Rod, time-based recycling,
// relaunch after a crash, and scoped sessions that always release their page
// and browser context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// pingTimeout bounds the liveness check made before a session is opened.
const pingTimeout = 5 * time.Second

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string `yaml:"remote_url"`

	// Headful disables headless mode for a local Chrome.
	Headful bool `yaml:"headful"`

	// RecycleInterval is the maximum lifetime of a Chrome process. A due
	// recycle waits until no session is open. Default: 4h.
	RecycleInterval time.Duration `yaml:"recycle_interval"`

	// NavigationTimeout bounds Navigate plus WaitLoad. Default: 30s.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string `yaml:"resource_blocking"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages one Chrome process shared by all sessions.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	active  int
	closed  bool

	launch       func() (*rod.Browser, error)
	ping         func(*rod.Browser) error
	closeBrowser func(*rod.Browser) error
}

// NewManager creates a Manager. Chrome starts on the first session.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{cfg: cfg, ping: ping, closeBrowser: (*rod.Browser).Close}
	m.launch = m.launchChrome
	return m
}

// ping asks the browser for its version. Any error means the DevTools
// connection is gone.
func ping(b *rod.Browser) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	_, err := proto.BrowserGetVersion{}.Call(b.Context(ctx))
	return err
}

// acquire returns a connected browser and counts one more open session.
func (m *Manager) acquire() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil && m.active == 0 && time.Since(m.startAt) > m.cfg.RecycleInterval {
		m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
		m.cleanup()
	}
	if m.browser != nil {
		if err := m.ping(m.browser); err != nil {
			m.cfg.Logger.Warn("browser: unresponsive, relaunching", "error", err, "open_sessions", m.active)
			m.discard()
		}
	}
	if m.browser == nil {
		b, err := m.launch()
		if err != nil {
			return nil, err
		}
		m.browser = b
		m.startAt = time.Now()
	}
	m.active++
	return m.browser, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launchChrome() (*rod.Browser, error) {
	log := m.cfg.Logger

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.closeBrowser(m.browser); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// discard forgets a browser whose connection is dead. A local process is
// killed rather than asked to close. Caller holds mu.
func (m *Manager) discard() {
	m.browser = nil
	if m.lnch != nil {
		m.lnch.Kill()
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
