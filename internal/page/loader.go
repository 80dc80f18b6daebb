package page

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"priceflow/internal/browser"
	"priceflow/internal/config"
	"priceflow/internal/logging"
)

// unavailableMarkers signal a product page that no longer exists. Checked
// against the lowercased title and body text.
var unavailableMarkers = []string{
	"produit introuvable",
	"cette page est introuvable",
	"page non trouvée",
	"page introuvable",
	"n'est plus disponible",
	"article n'existe plus",
	"produit n'existe plus",
	"oups ! la page demandée",
}

// Capture is everything downstream extraction needs from one page visit.
type Capture struct {
	RequestedURL    string
	FinalURL        string
	Title           string
	HTML            string
	Text            string
	ScreenshotPath  string
	UnavailableHint bool
}

// Options configures a Loader.
type Options struct {
	Config config.BrowserConfig
	Logger zerolog.Logger
}

// Loader navigates a page context to a product URL and captures its state.
type Loader struct {
	cfg    config.BrowserConfig
	logger zerolog.Logger
}

// NewLoader builds a Loader.
func NewLoader(opts Options) *Loader {
	return &Loader{
		cfg:    opts.Config,
		logger: logging.Component(opts.Logger, "page"),
	}
}

const denoiseJS = `
() => {
    const clone = document.body.cloneNode(true);
    clone.querySelectorAll('script, style, noscript, svg, iframe, link').forEach(el => el.remove());
    return (clone.innerText || clone.textContent || '').replace(/\n{3,}/g, '\n\n');
}
`

// Load navigates to the URL and captures HTML, denoised text, and a full
// page screenshot. The slug names the screenshot file.
func (l *Loader) Load(ctx context.Context, pc *browser.PageContext, rawURL, slug string) (*Capture, error) {
	target := SimplifyURL(rawURL)
	page := pc.Page

	wait := page.Timeout(l.cfg.NavigationTimeout).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Timeout(l.cfg.NavigationTimeout).Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	wait()

	// Best effort only. Retail pages stream analytics forever; waiting for
	// true network idle would time out every check.
	_ = rod.Try(func() {
		page.Timeout(l.cfg.NetworkIdleTimeout).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	})

	dismissed := DismissPopups(page, l.cfg.ElementTimeout)
	if hook := HookFor(target); hook != nil {
		if err := hook(page); err != nil {
			l.logger.Warn().Err(err).Str("url", target).Msg("domain hook failed")
		}
	}
	hidden, err := forceHideOverlays(page)
	if err != nil {
		l.logger.Warn().Err(err).Msg("overlay fallback failed")
	}
	if dismissed > 0 || hidden > 0 {
		l.logger.Debug().Int("dismissed", dismissed).Int("force_hidden", hidden).Msg("popups handled")
	}

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("page html: %w", err)
	}

	text := l.captureText(page)

	capture := &Capture{
		RequestedURL: target,
		FinalURL:     info.URL,
		Title:        info.Title,
		HTML:         html,
		Text:         text,
	}
	capture.UnavailableHint = hasUnavailableMarker(capture.Title, capture.Text)

	if l.cfg.ScreenshotDir != "" {
		path, err := l.screenshot(page, slug)
		if err != nil {
			l.logger.Warn().Err(err).Msg("screenshot failed")
		} else {
			capture.ScreenshotPath = path
		}
	}

	return capture, nil
}

func (l *Loader) captureText(page *rod.Page) string {
	res, err := page.Evaluate(&rod.EvalOptions{JS: denoiseJS, ByValue: true})
	if err != nil {
		l.logger.Warn().Err(err).Msg("text capture failed")
		return ""
	}
	return TruncateText(res.Value.Str(), l.cfg.TextBudget)
}

func (l *Loader) screenshot(page *rod.Page, slug string) (string, error) {
	data, err := page.Screenshot(true, nil)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.MkdirAll(l.cfg.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	name := fmt.Sprintf("%s-%d.png", slug, time.Now().Unix())
	path := filepath.Join(l.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// TruncateText limits text to a rune budget, cutting at the last line break
// before the limit when one is close enough.
func TruncateText(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	cut := string(runes[:budget])
	if idx := strings.LastIndexByte(cut, '\n'); idx > budget/2 {
		return cut[:idx]
	}
	return cut
}

func hasUnavailableMarker(title, text string) bool {
	haystack := strings.ToLower(title + "\n" + text)
	for _, marker := range unavailableMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}
