package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"priceflow/internal/config"
	"priceflow/internal/logging"
)

// ErrNoProxy is returned when a proxied context is requested but no proxy
// pool is configured.
var ErrNoProxy = errors.New("browser: no proxy configured")

// Options configures the session manager.
type Options struct {
	Config config.BrowserConfig
	Logger zerolog.Logger
}

// Manager owns the shared connection to the remote browser. Pages are never
// shared between checks; every check gets a fresh isolated context.
type Manager struct {
	cfg    config.BrowserConfig
	logger zerolog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewManager builds a session manager. Connection happens lazily on first
// acquire so startup does not depend on the browser endpoint being up.
func NewManager(opts Options) *Manager {
	return &Manager{
		cfg:    opts.Config,
		logger: logging.Component(opts.Logger, "browser"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PageContext is one isolated page with its own cookies, cache, and
// fingerprint. Callers must Close it when the check finishes.
type PageContext struct {
	Page    *rod.Page
	Profile Fingerprint

	browser   *rod.Browser
	contextID proto.BrowserBrowserContextID
}

// Close discards the page and its browser context.
func (c *PageContext) Close() {
	if c == nil {
		return
	}
	if c.Page != nil {
		_ = c.Page.Close()
	}
	if c.browser != nil && c.contextID != "" {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: c.contextID}.Call(c.browser)
	}
}

// AcquireContext returns a fresh isolated page context with a randomized
// fingerprint applied. Hostile domains request a proxied context.
func (m *Manager) AcquireContext(ctx context.Context, requiresProxy bool) (*PageContext, error) {
	browser, err := m.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	var proxy string
	if requiresProxy {
		proxy, err = m.pickProxy()
		if err != nil {
			return nil, err
		}
	}

	created, err := proto.TargetCreateBrowserContext{
		DisposeOnDetach: true,
		ProxyServer:     proxy,
	}.Call(browser)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	target, err := proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: created.BrowserContextID,
	}.Call(browser)
	if err != nil {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: created.BrowserContextID}.Call(browser)
		return nil, fmt.Errorf("create target: %w", err)
	}

	page, err := browser.PageFromTarget(target.TargetID)
	if err != nil {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: created.BrowserContextID}.Call(browser)
		return nil, fmt.Errorf("attach page: %w", err)
	}
	page = page.Context(ctx)

	profile := m.nextProfile()
	if err := applyProfile(page, profile); err != nil {
		_ = page.Close()
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: created.BrowserContextID}.Call(browser)
		return nil, err
	}

	m.logger.Debug().
		Str("platform", profile.Platform).
		Int("viewport_w", profile.ViewportWidth).
		Int("viewport_h", profile.ViewportHeight).
		Bool("proxied", proxy != "").
		Msg("browser context acquired")

	return &PageContext{
		Page:      page,
		Profile:   profile,
		browser:   browser,
		contextID: created.BrowserContextID,
	}, nil
}

// HealthCheck verifies the connection by opening and discarding a throwaway
// page. A failed check tears the connection down; the next acquire
// reconnects.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return false
	}
	if _, err := m.browser.Version(); err != nil {
		m.logger.Warn().Err(err).Msg("stale browser connection detected")
		m.teardownLocked()
		return false
	}

	page, err := m.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		m.logger.Warn().Err(err).Msg("health check page failed")
		m.teardownLocked()
		return false
	}
	_ = page.Close()
	return true
}

// Shutdown closes the browser connection and any locally launched process.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.browser != nil {
		_ = m.browser.Close()
		m.browser = nil
	}
	if m.launched != nil {
		m.launched.Cleanup()
		m.launched = nil
	}
}

func (m *Manager) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return m.browser, nil
		}
		m.logger.Warn().Msg("reconnecting stale browser")
		m.teardownLocked()
	}

	controlURL := m.cfg.ControlURL
	if controlURL != "" {
		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err == nil {
			m.browser = browser
			m.logger.Info().Str("control_url", controlURL).Msg("connected to remote browser")
			return m.browser, nil
		} else if !m.cfg.AllowLocalFallback {
			return nil, fmt.Errorf("connect remote browser: %w", err)
		} else {
			m.logger.Warn().Err(err).Msg("remote browser unreachable, launching local fallback")
		}
	}

	if !m.cfg.AllowLocalFallback && controlURL == "" {
		return nil, errors.New("browser: no control URL and local fallback disabled")
	}

	launch := launcher.New().Headless(true)
	if m.cfg.LocalBin != "" {
		launch = launch.Bin(m.cfg.LocalBin)
	}
	localURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch local browser: %w", err)
	}

	browser := rod.New().ControlURL(localURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect local browser: %w", err)
	}

	m.browser = browser
	m.launched = launch
	m.logger.Info().Msg("local fallback browser launched")
	return m.browser, nil
}

func (m *Manager) nextProfile() Fingerprint {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return pickProfile(m.rng)
}

func (m *Manager) pickProxy() (string, error) {
	if len(m.cfg.Proxies) == 0 {
		return "", ErrNoProxy
	}
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.cfg.Proxies[m.rng.Intn(len(m.cfg.Proxies))], nil
}

func applyProfile(page *rod.Page, profile Fingerprint) error {
	if err := (proto.NetworkSetUserAgentOverride{
		UserAgent:      profile.UserAgent,
		AcceptLanguage: profile.Locale,
		Platform:       profile.Platform,
	}).Call(page); err != nil {
		return fmt.Errorf("override user agent: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             profile.ViewportWidth,
		Height:            profile.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	if err := (proto.EmulationSetTimezoneOverride{
		TimezoneID: profile.Timezone,
	}).Call(page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}

	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{
		Source: stealthScript,
	}).Call(page); err != nil {
		return fmt.Errorf("install stealth script: %w", err)
	}

	return nil
}
