package detect

import "strings"

// botWallMarkers appear on captcha pages, rate-limit interstitials, and the
// French Amazon robot check.
var botWallMarkers = []string{
	"captcha",
	"access denied",
	"accès refusé",
	"robot check",
	"toutes nos excuses",
	"êtes-vous un robot",
	"vérifiez que vous n'êtes pas un robot",
	"attention required",
	"just a moment",
	"pardon our interruption",
	"too many requests",
	"saisissez les caractères que vous voyez",
}

// placeholderTitles are bare titles that mean the real product page never
// rendered.
var placeholderTitles = map[string]bool{
	"":           true,
	"amazon.fr":  true,
	"amazon.com": true,
	"carrefour":  true,
	"gifi":       true,
	"403":        true,
	"error":      true,
}

// IsBotWall reports whether a capture looks like a bot-detection page
// rather than product content.
func IsBotWall(title, text string) bool {
	haystack := strings.ToLower(title + "\n" + text)
	for _, marker := range botWallMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

// IsPlaceholderTitle reports whether a title is a bare site or error name
// with no product in it.
func IsPlaceholderTitle(title string) bool {
	return placeholderTitles[strings.ToLower(strings.TrimSpace(title))]
}
