package page

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// cookieSelectors are tried in order on every load. Collected from the
// consent managers actually deployed on the monitored French retail sites.
var cookieSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#didomi-notice-agree-button",
	".axeptio_btn_acceptAll",
	"#axeptio_btn_acceptAll",
	"#cookie-consent-accept",
	"#acceptAllCookies",
	"button#footer_tc_privacy_button_2",
	"button[data-testid='cookie-accept-all']",
	"button[aria-label='Accepter']",
	"button[title='Accepter et fermer']",
	"#sp-cc-accept",
	".cookie-banner__accept",
	"#popin_tc_privacy_button",
}

const dismissPasses = 3

// DismissPopups runs repeated passes over the consent selectors and finishes
// each pass with an Escape press. Consent managers frequently re-render a
// second layer after the first click, hence the passes.
func DismissPopups(page *rod.Page, elementTimeout time.Duration) int {
	dismissed := 0
	for pass := 0; pass < dismissPasses; pass++ {
		clicked := false
		for _, selector := range cookieSelectors {
			err := rod.Try(func() {
				el := page.Timeout(elementTimeout).MustElement(selector)
				if visible, _ := el.Visible(); !visible {
					return
				}
				el.MustClick()
			})
			if err == nil {
				dismissed++
				clicked = true
			}
		}
		_ = page.Keyboard.Press(input.Escape)
		if !clicked {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	return dismissed
}

// overlayCandidate is one potentially page-covering element reported by the
// collection script.
type overlayCandidate struct {
	Index    int     `json:"index"`
	Position string  `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	ZIndex   float64 `json:"zIndex"`
}

// shouldForceHide decides whether an element is an interaction-blocking
// overlay: out-of-flow and covering more than half the viewport in both
// dimensions.
func shouldForceHide(c overlayCandidate, viewportW, viewportH float64) bool {
	if viewportW <= 0 || viewportH <= 0 {
		return false
	}
	if c.Position != "fixed" && c.Position != "absolute" {
		return false
	}
	return c.Width > viewportW*0.5 && c.Height > viewportH*0.5
}

const collectOverlaysJS = `
() => {
    const out = { vw: window.innerWidth, vh: window.innerHeight, candidates: [] };
    const nodes = Array.from(document.querySelectorAll('body *')).slice(0, 2000);
    nodes.forEach((el, index) => {
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return;
        if (style.position !== 'fixed' && style.position !== 'absolute') return;
        const rect = el.getBoundingClientRect();
        if (rect.width === 0 || rect.height === 0) return;
        el.setAttribute('data-overlay-index', String(index));
        out.candidates.push({
            index,
            position: style.position,
            width: rect.width,
            height: rect.height,
            zIndex: parseFloat(style.zIndex) || 0,
        });
    });
    return out;
}
`

const hideOverlaysJS = `
(indexes) => {
    indexes.forEach((index) => {
        const el = document.querySelector('[data-overlay-index="' + index + '"]');
        if (el) el.style.setProperty('display', 'none', 'important');
    });
    document.body.style.overflow = 'auto';
    document.documentElement.style.overflow = 'auto';
    return indexes.length;
}
`

// forceHideOverlays is the geometric fallback for popups no selector knows
// about. It hides any out-of-flow element covering most of the viewport and
// restores body scrolling afterwards.
func forceHideOverlays(page *rod.Page) (int, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:      collectOverlaysJS,
		ByValue: true,
	})
	if err != nil {
		return 0, fmt.Errorf("collect overlays: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("marshal overlay report: %w", err)
	}

	var report struct {
		VW         float64            `json:"vw"`
		VH         float64            `json:"vh"`
		Candidates []overlayCandidate `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return 0, fmt.Errorf("decode overlay report: %w", err)
	}

	indexes := make([]int, 0)
	for _, candidate := range report.Candidates {
		if shouldForceHide(candidate, report.VW, report.VH) {
			indexes = append(indexes, candidate.Index)
		}
	}
	if len(indexes) == 0 {
		return 0, nil
	}

	if _, err := page.Evaluate(&rod.EvalOptions{
		JS:      hideOverlaysJS,
		JSArgs:  []interface{}{indexes},
		ByValue: true,
	}); err != nil {
		return 0, fmt.Errorf("hide overlays: %w", err)
	}
	return len(indexes), nil
}
