package browser

import (
	"math/rand"
)

// Fingerprint is one internally consistent browser identity. The user agent,
// platform, and viewport must agree with each other or the page can detect
// the mismatch.
type Fingerprint struct {
	UserAgent      string
	Platform       string
	Locale         string
	Timezone       string
	ViewportWidth  int
	ViewportHeight int
}

// profiles cover the desktop browsers most common on French retail sites.
var profiles = []Fingerprint{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Platform:       "Win32",
		Locale:         "fr-FR",
		Timezone:       "Europe/Paris",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0",
		Platform:       "Win32",
		Locale:         "fr-FR",
		Timezone:       "Europe/Paris",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Platform:       "MacIntel",
		Locale:         "fr-FR",
		Timezone:       "Europe/Paris",
		ViewportWidth:  1728,
		ViewportHeight: 1117,
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Platform:       "Linux x86_64",
		Locale:         "fr-FR",
		Timezone:       "Europe/Paris",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	},
}

// pickProfile selects a random profile and jitters the viewport a little so
// repeated visits do not share pixel-identical dimensions.
func pickProfile(rng *rand.Rand) Fingerprint {
	profile := profiles[rng.Intn(len(profiles))]
	profile.ViewportWidth -= rng.Intn(64)
	profile.ViewportHeight -= rng.Intn(48)
	return profile
}

// stealthScript masks the most common headless markers before any page
// script runs. Taken as-is from what the retail sites actually probe.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['fr-FR', 'fr', 'en-US'] });
window.chrome = window.chrome || { runtime: {} };
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery(parameters)
);
`
