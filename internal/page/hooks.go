package page

import (
	"time"

	"github.com/go-rod/rod"
)

// Hook runs site-specific preparation after popup dismissal, before the
// capture is taken. Store pickers and locale gates go here.
type Hook func(page *rod.Page) error

var hooks = map[string]Hook{
	"carrefour.fr": carrefourStoreGate,
	"auchan.fr":    auchanDriveGate,
}

// HookFor returns the preparation hook for a URL's domain, or nil.
func HookFor(rawURL string) Hook {
	return hooks[Domain(rawURL)]
}

// carrefourStoreGate confirms the default store when the drive-selection
// interstitial appears, otherwise prices stay hidden.
func carrefourStoreGate(page *rod.Page) error {
	return dismissIfPresent(page, "button[data-testid='store-locator-validate']")
}

// auchanDriveGate closes the delivery-mode chooser shown on first visit.
func auchanDriveGate(page *rod.Page) error {
	return dismissIfPresent(page, "button.journey-choice__close, button[aria-label='Fermer']")
}

func dismissIfPresent(page *rod.Page, selector string) error {
	_ = rod.Try(func() {
		el := page.Timeout(2 * time.Second).MustElement(selector)
		if visible, _ := el.Visible(); visible {
			el.MustClick()
		}
	})
	return nil
}
