package detect

import (
	"regexp"
	"strings"
)

// siteSuffixes are retailer names commonly appended to product page titles.
var siteSuffixes = []string{
	"gifi", "amazon.fr", "amazon", "carrefour", "centrakor", "cdiscount",
	"auchan", "leroy merlin", "conforama", "but.fr", "but", "action",
	"la redoute", "fnac", "darty", "boulanger",
}

var (
	letterDigitBoundary = regexp.MustCompile(`(\p{L})(\d)`)
	digitLetterBoundary = regexp.MustCompile(`(\d)(\p{L})`)
	punctuation         = regexp.MustCompile(`[^\p{L}\d\s]+`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
	suffixSeparator     = regexp.MustCompile(`\s*[|\-–—:]\s*`)
)

// NormalizeTitle reduces a page or item title to a comparable word form:
// lowercase, retailer suffix removed, punctuation dropped, spaces inserted
// between letter and digit runs, whitespace collapsed. Idempotent.
func NormalizeTitle(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))
	lowered = stripSiteSuffix(lowered)
	lowered = letterDigitBoundary.ReplaceAllString(lowered, "$1 $2")
	lowered = digitLetterBoundary.ReplaceAllString(lowered, "$1 $2")
	lowered = punctuation.ReplaceAllString(lowered, " ")
	lowered = whitespaceRun.ReplaceAllString(lowered, " ")
	return strings.TrimSpace(lowered)
}

func stripSiteSuffix(title string) string {
	parts := suffixSeparator.Split(title, -1)
	if len(parts) < 2 {
		return title
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	for _, suffix := range siteSuffixes {
		if last == suffix {
			return strings.TrimSpace(strings.Join(parts[:len(parts)-1], " "))
		}
	}
	return title
}

// Jaccard computes word-set similarity between two normalized titles.
// Symmetric; 1.0 for identical sets, 0.0 for disjoint or empty input.
func Jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for word := range setA {
		if setB[word] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		set[word] = true
	}
	return set
}

const (
	titleSimilarityThreshold = 0.4
	shortNameMaxWords        = 5
	shortNameMatchRatio      = 0.75
)

// TitleMatches decides whether the observed page title plausibly belongs to
// the stored item. Retail titles carry noise (color, size, promo text), so
// three progressively looser rules apply before giving up.
func TitleMatches(itemName, pageTitle string) bool {
	name := NormalizeTitle(itemName)
	title := NormalizeTitle(pageTitle)
	if name == "" {
		return true
	}
	if title == "" {
		return false
	}

	if strings.Contains(title, name) || strings.Contains(name, title) {
		return true
	}

	if Jaccard(name, title) >= titleSimilarityThreshold {
		return true
	}

	// Short item names ("coussin vert 60x60") often appear inside much
	// longer page titles; require most of the name's words to show up.
	nameWords := strings.Fields(name)
	if len(nameWords) > 0 && len(nameWords) <= shortNameMaxWords {
		titleSet := wordSet(title)
		present := 0
		for _, word := range nameWords {
			if titleSet[word] {
				present++
			}
		}
		if float64(present)/float64(len(nameWords)) >= shortNameMatchRatio {
			return true
		}
	}

	return false
}
